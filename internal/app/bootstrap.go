// Copyright 2026 fanjia1024
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package app

import (
	"context"
	"fmt"
	"time"

	"datagen-platform/internal/model/llm"
	"datagen-platform/pkg/config"
	"datagen-platform/pkg/log"
	"datagen-platform/pkg/secrets"
	"datagen-platform/pkg/utils"
)

// Bootstrap 统一初始化：日志、secret 存储与 LLM 客户端，供 CLI 各子命令复用
type Bootstrap struct {
	Config  *config.Config
	Logger  *log.Logger
	Secrets secrets.Store
	Client  llm.Client
}

// NewBootstrap 根据配置创建 Bootstrap；未配置默认模型时 Client 为 nil
func NewBootstrap(ctx context.Context, cfg *config.Config) (*Bootstrap, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}
	logger, err := log.NewLogger(&log.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		File:   cfg.Log.File,
	})
	if err != nil {
		return nil, fmt.Errorf("初始化日志failed: %w", err)
	}

	store, err := secrets.NewStore(secrets.Config{
		Provider: cfg.Secrets.Provider,
		Vault: secrets.VaultConfig{
			Address:    cfg.Secrets.Vault.Address,
			Token:      cfg.Secrets.Vault.Token,
			PathPrefix: cfg.Secrets.Vault.PathPrefix,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("初始化 secret 存储failed: %w", err)
	}

	b := &Bootstrap{Config: cfg, Logger: logger, Secrets: store}
	if cfg.Model.Defaults.LLM != "" {
		if b.Client, err = NewLLMClient(ctx, cfg, store); err != nil {
			return nil, err
		}
		logger.Info("LLM 客户端已就绪", "provider", b.Client.Provider(), "model", b.Client.Model())
	}
	return b, nil
}

// NewLLMClient 按 model.defaults.llm 创建客户端，并套上限流与指标
func NewLLMClient(ctx context.Context, cfg *config.Config, store secrets.Store) (llm.Client, error) {
	providerName, modelKey, err := config.ParseDefaultKey(cfg.Model.Defaults.LLM)
	if err != nil {
		return nil, err
	}
	pc, ok := cfg.Model.LLM.Providers[providerName]
	if !ok {
		return nil, fmt.Errorf("LLM provider %q not configured", providerName)
	}
	mi, ok := pc.Models[modelKey]
	if !ok {
		return nil, fmt.Errorf("LLM model %q not configured in provider %q", modelKey, providerName)
	}
	apiKey, err := secrets.Resolve(ctx, store, pc.APIKey)
	if err != nil {
		return nil, fmt.Errorf("resolve api_key for provider %q: %w", providerName, err)
	}
	var timeout time.Duration
	if pc.Timeout != "" {
		if timeout, err = time.ParseDuration(pc.Timeout); err != nil {
			return nil, fmt.Errorf("provider %q timeout: %w", providerName, err)
		}
	}

	client, err := llm.NewClient(ctx, llm.Options{
		Provider: utils.CoalesceString(pc.Type, providerName),
		Model:    utils.CoalesceString(mi.Name, modelKey),
		APIKey:   apiKey,
		BaseURL:  pc.BaseURL,
		Timeout:  timeout,
	})
	if err != nil {
		return nil, err
	}

	var limiter *llm.LLMRateLimiter
	if rl, ok := cfg.RateLimits.LLM[providerName]; ok {
		limiter = llm.NewLLMRateLimiter(map[string]llm.LLMLimitConfig{
			client.Provider(): {
				TokensPerMinute:   rl.TokensPerMinute,
				RequestsPerMinute: rl.RequestsPerMinute,
				MaxConcurrent:     rl.MaxConcurrent,
			},
		}, nil)
	}
	return llm.NewInstrumentedClient(llm.NewRateLimitedClient(client, limiter)), nil
}
