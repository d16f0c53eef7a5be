package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

const claudeDefaultMaxTokens = 1024

// ClaudeClient Claude 客户端（Messages API）
type ClaudeClient struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	client   *resty.Client
}

// NewClaudeClient 创建新的 Claude 客户端
func NewClaudeClient(opts Options) (*ClaudeClient, error) {
	model := opts.Model
	if model == "" {
		model = "claude-3-opus-20240229"
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.anthropic.com/v1"
		if envURL := os.Getenv("ANTHROPIC_BASE_URL"); envURL != "" {
			baseURL = envURL
		}
	}
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 120 * time.Second
	}

	client := resty.New()
	client.SetTimeout(timeout)
	client.SetRetryCount(3)
	client.SetRetryWaitTime(1 * time.Second)
	client.SetRetryMaxWaitTime(5 * time.Second)

	return &ClaudeClient{
		provider: "claude",
		model:    model,
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   client,
	}, nil
}

// GenerateWithContext completion 模式：整段 prompt 作为一条 user 消息发送
func (c *ClaudeClient) GenerateWithContext(ctx context.Context, prompt string, params SamplingParams) (string, error) {
	return c.ChatWithContext(ctx, []Message{{Role: "user", Content: prompt}}, params)
}

// ChatWithContext 使用上下文聊天；system 消息合并到顶层 system 字段
func (c *ClaudeClient) ChatWithContext(ctx context.Context, messages []Message, params SamplingParams) (string, error) {
	var system []string
	claudeMessages := make([]Message, 0, len(messages))
	for _, msg := range messages {
		if msg.Role == "system" {
			system = append(system, msg.Content)
			continue
		}
		claudeMessages = append(claudeMessages, msg)
	}

	request := params.Without("stop")
	request["model"] = c.model
	request["messages"] = claudeMessages
	if stop := params.Stop(); len(stop) > 0 {
		request["stop_sequences"] = stop
	}
	if params.MaxTokens() <= 0 {
		request["max_tokens"] = claudeDefaultMaxTokens
	}
	if len(system) > 0 {
		request["system"] = strings.Join(system, "\n\n")
	}

	response, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetHeader("x-api-key", c.apiKey).
		SetHeader("anthropic-version", "2023-06-01").
		SetBody(request).
		Post(c.baseURL + "/messages")

	if err != nil {
		return "", fmt.Errorf("调用 Claude API 失败: %w", err)
	}

	// 检查响应状态
	if response.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("Claude API 返回错误 (%d): %s", response.StatusCode(), response.String())
	}

	var result struct {
		Content []struct {
			Type string `json:"type"`
			Text string `json:"text"`
		} `json:"content"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return "", fmt.Errorf("解析 Claude 响应失败: %w", err)
	}

	var b strings.Builder
	for _, part := range result.Content {
		if part.Type == "" || part.Type == "text" {
			b.WriteString(part.Text)
		}
	}
	if b.Len() == 0 {
		return "", fmt.Errorf("Claude API 没有返回结果")
	}
	return b.String(), nil
}

// Model 返回模型名称
func (c *ClaudeClient) Model() string {
	return c.model
}

// Provider 返回提供商名称
func (c *ClaudeClient) Provider() string {
	return c.provider
}
