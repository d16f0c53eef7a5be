// Copyright 2026 fanjia1024
// Secret management abstraction

package secrets

import (
	"context"
	"fmt"
	"strings"
)

// Store Secret 只读存储接口
type Store interface {
	// Get 获取 secret 值
	Get(ctx context.Context, key string) (string, error)
}

// Config Secret Store 配置
type Config struct {
	Provider string      // vault | env | memory
	Vault    VaultConfig // provider=vault 时使用
}

// NewStore 创建 Secret Store
func NewStore(config Config) (Store, error) {
	switch config.Provider {
	case "", "env":
		return NewEnvStore(), nil
	case "memory":
		return NewMemoryStore(nil), nil
	case "vault":
		return NewVaultStore(config.Vault)
	default:
		return nil, fmt.Errorf("unsupported secret provider: %s", config.Provider)
	}
}

// Resolve 解析形如 env:NAME / vault:path 的引用；其他值原样返回（视为明文）。
// env: 前缀总是读取环境变量，vault: 前缀交给 store 解析。
func Resolve(ctx context.Context, store Store, ref string) (string, error) {
	switch {
	case strings.HasPrefix(ref, "env:"):
		return NewEnvStore().Get(ctx, strings.TrimPrefix(ref, "env:"))
	case strings.HasPrefix(ref, "vault:"):
		if store == nil {
			return "", fmt.Errorf("secret %q references vault but no secret store is configured", ref)
		}
		return store.Get(ctx, strings.TrimPrefix(ref, "vault:"))
	default:
		return ref, nil
	}
}
