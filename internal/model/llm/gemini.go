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

// GeminiClient Gemini 客户端（generateContent）
type GeminiClient struct {
	provider string
	model    string
	apiKey   string
	baseURL  string
	client   *resty.Client
}

// NewGeminiClient 创建新的 Gemini 客户端
func NewGeminiClient(opts Options) (*GeminiClient, error) {
	model := opts.Model
	if model == "" {
		model = "gemini-1.5-flash"
	}
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://generativelanguage.googleapis.com/v1beta"
		if envURL := os.Getenv("GEMINI_BASE_URL"); envURL != "" {
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

	return &GeminiClient{
		provider: "gemini",
		model:    model,
		apiKey:   opts.APIKey,
		baseURL:  strings.TrimSuffix(baseURL, "/"),
		client:   client,
	}, nil
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

// GenerateWithContext completion 模式：prompt 作为单条 user 内容发送
func (c *GeminiClient) GenerateWithContext(ctx context.Context, prompt string, params SamplingParams) (string, error) {
	return c.generate(ctx, nil, []geminiContent{{Role: "user", Parts: []geminiPart{{Text: prompt}}}}, params)
}

// ChatWithContext system 消息合并为 systemInstruction，assistant 映射为 model
func (c *GeminiClient) ChatWithContext(ctx context.Context, messages []Message, params SamplingParams) (string, error) {
	var system []string
	contents := make([]geminiContent, 0, len(messages))
	for _, msg := range messages {
		switch msg.Role {
		case "system":
			system = append(system, msg.Content)
			continue
		case "assistant":
			contents = append(contents, geminiContent{Role: "model", Parts: []geminiPart{{Text: msg.Content}}})
		default:
			contents = append(contents, geminiContent{Role: "user", Parts: []geminiPart{{Text: msg.Content}}})
		}
	}
	var instruction *geminiContent
	if len(system) > 0 {
		instruction = &geminiContent{Parts: []geminiPart{{Text: strings.Join(system, "\n\n")}}}
	}
	return c.generate(ctx, instruction, contents, params)
}

func (c *GeminiClient) generate(ctx context.Context, system *geminiContent, contents []geminiContent, params SamplingParams) (string, error) {
	request := map[string]interface{}{
		"contents":         contents,
		"generationConfig": geminiGenerationConfig(params),
	}
	if system != nil {
		request["systemInstruction"] = system
	}

	req := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(request)
	if c.apiKey != "" {
		req.SetHeader("x-goog-api-key", c.apiKey)
	}
	response, err := req.Post(c.baseURL + "/models/" + c.model + ":generateContent")
	if err != nil {
		return "", fmt.Errorf("调用 Gemini API 失败: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return "", fmt.Errorf("Gemini API 返回错误 (%d): %s", response.StatusCode(), response.String())
	}

	var result struct {
		Candidates []struct {
			Content geminiContent `json:"content"`
		} `json:"candidates"`
	}
	if err := json.Unmarshal(response.Body(), &result); err != nil {
		return "", fmt.Errorf("解析 Gemini 响应失败: %w", err)
	}
	if len(result.Candidates) == 0 {
		return "", fmt.Errorf("Gemini API 没有返回结果")
	}
	var sb strings.Builder
	for _, p := range result.Candidates[0].Content.Parts {
		sb.WriteString(p.Text)
	}
	return sb.String(), nil
}

// geminiGenerationConfig 将通用采样参数映射为 generationConfig 字段名
func geminiGenerationConfig(params SamplingParams) map[string]interface{} {
	cfg := map[string]interface{}{}
	if v, ok := params.Float("temperature"); ok {
		cfg["temperature"] = v
	}
	if v, ok := params.Float("top_p"); ok {
		cfg["topP"] = v
	}
	if v, ok := params.Int("top_k"); ok {
		cfg["topK"] = v
	}
	if n := params.MaxTokens(); n > 0 {
		cfg["maxOutputTokens"] = n
	}
	if stop := params.Stop(); len(stop) > 0 {
		cfg["stopSequences"] = stop
	}
	return cfg
}

// Model 返回模型名称
func (c *GeminiClient) Model() string {
	return c.model
}

// Provider 返回提供商名称
func (c *GeminiClient) Provider() string {
	return c.provider
}
