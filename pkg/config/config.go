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

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Config 应用配置结构体
type Config struct {
	Model           ModelConfig           `mapstructure:"model"`
	RateLimits      RateLimitsConfig      `mapstructure:"rate_limits"`
	Paths           PathsConfig           `mapstructure:"paths"`
	CheckpointStore CheckpointStoreConfig `mapstructure:"checkpoint_store"`
	Pipeline        PipelineConfig        `mapstructure:"pipeline"`
	Log             LogConfig             `mapstructure:"log"`
	Monitoring      MonitoringConfig      `mapstructure:"monitoring"`
	Secrets         SecretsConfig         `mapstructure:"secrets"`
}

// RateLimitsConfig 限流配置（按 LLM provider）
type RateLimitsConfig struct {
	LLM map[string]LLMRateLimitConfig `mapstructure:"llm"`
}

// LLMRateLimitConfig 单个 LLM Provider 的限流配置
type LLMRateLimitConfig struct {
	TokensPerMinute   int     `mapstructure:"tokens_per_minute"`
	RequestsPerMinute float64 `mapstructure:"requests_per_minute"`
	MaxConcurrent     int     `mapstructure:"max_concurrent"`
}

// PathsConfig 输入（prompt 模板）与输出根目录
type PathsConfig struct {
	InputDir            string `mapstructure:"input_dir"`             // prompt 模板根目录
	DefaultPromptFolder string `mapstructure:"default_prompt_folder"` // 相对 input_dir；prompt_folder 中缺失时回退到这里
	PromptFolder        string `mapstructure:"prompt_folder"`         // 相对 input_dir；用户覆盖的 prompt 目录
	OutputDir           string `mapstructure:"output_dir"`
}

// CheckpointStoreConfig Checkpoint 存储配置
type CheckpointStoreConfig struct {
	Type     string `mapstructure:"type"`     // file | redis | postgres
	DSN      string `mapstructure:"dsn"`      // Postgres 连接串，type=postgres 时必填
	Addr     string `mapstructure:"addr"`     // Redis 地址，type=redis 时必填
	Password string `mapstructure:"password"` // Redis 密码，可选
	DB       int    `mapstructure:"db"`       // Redis DB 编号
}

// PipelineConfig 管线执行配置
type PipelineConfig struct {
	Concurrency int                   `mapstructure:"concurrency"` // 同时执行的 item 数，<=0 使用默认 8
	Steps       map[string]StepConfig `mapstructure:"steps"`
}

// StepConfig 单个 PipelineStep 的声明式定义
type StepConfig struct {
	PromptPath             string                 `mapstructure:"prompt_path"` // 不含扩展名，chat 模式追加 .yaml，completion 模式追加 .txt
	CompletionMode         bool                   `mapstructure:"completion_mode"`
	SamplingParams         map[string]interface{} `mapstructure:"sampling_params"`
	UseStop                *bool                  `mapstructure:"use_stop"` // 未配置时默认 true
	Regex                  string                 `mapstructure:"regex"`    // 空则取整个输出
	RegexGroup             int                    `mapstructure:"regex_group"`
	OutputProcessor        string                 `mapstructure:"output_processor"` // identity | trim | json | steps
	Validator              string                 `mapstructure:"validator"`        // any | nonempty
	GenerationRetries      *int                   `mapstructure:"generation_retries"`
	MaxRetries             int                    `mapstructure:"max_retries"`
	ResultKey              string                 `mapstructure:"result_key"`
	OutputSubdir           string                 `mapstructure:"output_subdir"`
	SavePath               string                 `mapstructure:"save_path"`
	IntermediateOutputPath string                 `mapstructure:"intermediate_output_path"`
	StaticArguments        map[string]interface{} `mapstructure:"static_arguments"`
}

// ModelConfig 模型配置
type ModelConfig struct {
	LLM      LLMConfig      `mapstructure:"llm"`
	Defaults DefaultsConfig `mapstructure:"defaults"`
}

// LLMConfig LLM 模型配置
type LLMConfig struct {
	Providers map[string]ProviderConfig `mapstructure:"providers"`
}

// ProviderConfig 模型提供商配置
type ProviderConfig struct {
	Type    string               `mapstructure:"type"`    // openai | claude | eino-openai；空则与 provider 名相同
	APIKey  string               `mapstructure:"api_key"` // 支持 ${ENV}、env:NAME、vault:path
	BaseURL string               `mapstructure:"base_url"`
	Timeout string               `mapstructure:"timeout"` // 如 "120s"
	Models  map[string]ModelInfo `mapstructure:"models"`
}

// ModelInfo 模型信息
type ModelInfo struct {
	Name          string `mapstructure:"name"`
	ContextWindow int    `mapstructure:"context_window"`
	MaxTokens     int    `mapstructure:"max_tokens"`
}

// DefaultsConfig 默认模型配置，格式 provider.model_key
type DefaultsConfig struct {
	LLM string `mapstructure:"llm"`
}

// LogConfig 日志配置
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"`
}

// MonitoringConfig 监控配置
type MonitoringConfig struct {
	Prometheus PrometheusConfig `mapstructure:"prometheus"`
	Tracing    TracingConfig    `mapstructure:"tracing"`
}

// TracingConfig 链路追踪配置（OpenTelemetry）
type TracingConfig struct {
	Enable         bool   `mapstructure:"enable"`
	ServiceName    string `mapstructure:"service_name"`
	ExportEndpoint string `mapstructure:"export_endpoint"`
	Insecure       bool   `mapstructure:"insecure"`
}

// PrometheusConfig Prometheus 配置
type PrometheusConfig struct {
	Enable bool `mapstructure:"enable"`
	Port   int  `mapstructure:"port"`
}

// SecretsConfig Secret 存储配置，用于解析 provider api_key 中的 env:/vault: 引用
type SecretsConfig struct {
	Provider string      `mapstructure:"provider"` // env | memory | vault
	Vault    VaultConfig `mapstructure:"vault"`
}

// VaultConfig Vault 连接配置
type VaultConfig struct {
	Address    string `mapstructure:"address"`
	Token      string `mapstructure:"token"`
	PathPrefix string `mapstructure:"path_prefix"`
}

// LoadConfig 加载配置文件；使用独立 viper 实例，避免进程级全局状态
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("无法读取配置文件: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("无法解析配置文件: %w", err)
	}

	if err := restoreStepKeys(configPath, &config); err != nil {
		return nil, err
	}
	replaceEnvVars(&config)
	return &config, nil
}

// rawSteps pipeline.steps 中由用户命名的 map（步骤名、采样参数、模板参数）
type rawSteps struct {
	Pipeline struct {
		Steps map[string]struct {
			SamplingParams  map[string]interface{} `yaml:"sampling_params"`
			StaticArguments map[string]interface{} `yaml:"static_arguments"`
		} `yaml:"steps"`
	} `yaml:"pipeline"`
}

// restoreStepKeys viper 会把 map key 统一转为小写，而步骤名与模板占位符区分大小写；
// 这里用 yaml.v3 重新解码 pipeline.steps，恢复原始大小写
func restoreStepKeys(configPath string, config *Config) error {
	switch strings.ToLower(filepath.Ext(configPath)) {
	case ".yaml", ".yml", ".json":
	default:
		return nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("无法读取配置文件: %w", err)
	}
	var raw rawSteps
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("无法解析 pipeline.steps: %w", err)
	}
	if len(raw.Pipeline.Steps) == 0 {
		return nil
	}
	steps := make(map[string]StepConfig, len(config.Pipeline.Steps))
	for name, sc := range config.Pipeline.Steps {
		steps[name] = sc
	}
	for name, r := range raw.Pipeline.Steps {
		lower := strings.ToLower(name)
		sc, ok := steps[lower]
		if !ok {
			continue
		}
		if r.SamplingParams != nil {
			sc.SamplingParams = r.SamplingParams
		}
		if r.StaticArguments != nil {
			sc.StaticArguments = r.StaticArguments
		}
		if name != lower {
			delete(steps, lower)
		}
		steps[name] = sc
	}
	config.Pipeline.Steps = steps
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("paths.input_dir", "inputs")
	v.SetDefault("paths.output_dir", "output")
	v.SetDefault("checkpoint_store.type", "file")
	v.SetDefault("pipeline.concurrency", 8)
	v.SetDefault("secrets.provider", "env")
}

// replaceEnvVars 替换 ${VAR} 形式的 api_key；env:/vault: 引用留给 secrets 在运行期解析
func replaceEnvVars(config *Config) {
	for provider, providerConfig := range config.Model.LLM.Providers {
		if strings.HasPrefix(providerConfig.APIKey, "${") {
			envVar := strings.TrimPrefix(strings.TrimSuffix(providerConfig.APIKey, "}"), "${")
			if val := os.Getenv(envVar); val != "" {
				providerConfig.APIKey = val
				config.Model.LLM.Providers[provider] = providerConfig
			}
		}
	}
	if strings.HasPrefix(config.Secrets.Vault.Token, "${") {
		envVar := strings.TrimPrefix(strings.TrimSuffix(config.Secrets.Vault.Token, "}"), "${")
		config.Secrets.Vault.Token = os.Getenv(envVar)
	}
}

// ParseDefaultKey 解析 provider.model_key 形式的默认模型键
func ParseDefaultKey(key string) (provider, modelKey string, err error) {
	parts := strings.SplitN(key, ".", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("default key 格式应为 provider.model_key，如 openai.default，当前: %q", key)
	}
	return parts[0], parts[1], nil
}

// Step 按名称取步骤定义
func (c *Config) Step(name string) (StepConfig, error) {
	sc, ok := c.Pipeline.Steps[name]
	if !ok {
		return StepConfig{}, fmt.Errorf("pipeline step %q 未配置", name)
	}
	return sc, nil
}
