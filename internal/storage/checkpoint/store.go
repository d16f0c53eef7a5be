package checkpoint

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"datagen-platform/pkg/config"
)

// NewStore 根据配置创建 checkpoint 存储；dir 供 file 类型使用，namespace 供 redis/postgres 区分步骤
func NewStore(ctx context.Context, cfg config.CheckpointStoreConfig, dir, namespace string) (Store, error) {
	switch cfg.Type {
	case "", "file":
		return NewFileStore(dir), nil
	case "redis":
		if cfg.Addr == "" {
			return nil, fmt.Errorf("checkpoint_store.addr 未配置")
		}
		return NewRedisStore(ctx, &redis.Options{
			Addr:     cfg.Addr,
			Password: cfg.Password,
			DB:       cfg.DB,
		}, namespace)
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("checkpoint_store.dsn 未配置")
		}
		return NewPostgresStore(ctx, cfg.DSN, namespace)
	default:
		return nil, fmt.Errorf("不支持的 checkpoint 存储类型: %s", cfg.Type)
	}
}
