package llm

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Client LLM 客户端接口
type Client interface {
	// GenerateWithContext 原始文本补全（completion 模式）
	GenerateWithContext(ctx context.Context, prompt string, params SamplingParams) (string, error)
	// ChatWithContext 结构化消息对话（chat 模式）
	ChatWithContext(ctx context.Context, messages []Message, params SamplingParams) (string, error)
	// Model 返回模型名称
	Model() string
	// Provider 返回提供商名称
	Provider() string
}

// SamplingParams 采样参数（temperature、top_p、max_tokens、stop 等），原样透传给后端
type SamplingParams map[string]interface{}

// Clone 返回拷贝；nil 返回空 map
func (p SamplingParams) Clone() SamplingParams {
	out := make(SamplingParams, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

// Without 返回去掉指定 key 的拷贝
func (p SamplingParams) Without(keys ...string) SamplingParams {
	out := p.Clone()
	for _, k := range keys {
		delete(out, k)
	}
	return out
}

// MaxTokens 读取 max_tokens；不存在或类型不符时返回 0
func (p SamplingParams) MaxTokens() int {
	n, _ := toInt(p["max_tokens"])
	return n
}

// Float 读取浮点参数
func (p SamplingParams) Float(key string) (float64, bool) {
	switch v := p[key].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	}
	return 0, false
}

// Int 读取整数参数
func (p SamplingParams) Int(key string) (int, bool) {
	return toInt(p[key])
}

// Stop 读取 stop 序列，兼容单个字符串与列表
func (p SamplingParams) Stop() []string {
	switch v := p["stop"].(type) {
	case string:
		return []string{v}
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, s := range v {
			out = append(out, fmt.Sprint(s))
		}
		return out
	}
	return nil
}

func toInt(v interface{}) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case float32:
		return int(n), true
	}
	return 0, false
}

// Message 聊天消息
type Message struct {
	Role    string `json:"role" yaml:"role"` // system, user, assistant
	Content string `json:"content" yaml:"content"`
}

// Options 构造客户端所需参数
type Options struct {
	Provider string // openai | claude | eino-openai
	Model    string
	APIKey   string
	BaseURL  string // OpenAI 兼容端点（vLLM、DashScope 等）；空则用默认或环境变量
	Timeout  time.Duration
}

// NewClient 创建新的 LLM 客户端
func NewClient(ctx context.Context, opts Options) (Client, error) {
	switch strings.ToLower(opts.Provider) {
	case "", "openai", "vllm", "qwen":
		return NewOpenAIClient(opts)
	case "claude", "anthropic":
		return NewClaudeClient(opts)
	case "gemini":
		return NewGeminiClient(opts)
	case "eino-openai", "eino":
		return NewEinoOpenAIClient(ctx, opts)
	default:
		return nil, fmt.Errorf("unsupported llm provider %q", opts.Provider)
	}
}
