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

package llm

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino-ext/components/model/openai"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// EinoClient 将 eino ChatModel 适配为 Client
type EinoClient struct {
	provider string
	model    string
	chat     model.BaseChatModel
}

// NewEinoClient 包装任意 eino BaseChatModel
func NewEinoClient(provider, modelName string, chat model.BaseChatModel) *EinoClient {
	return &EinoClient{provider: provider, model: modelName, chat: chat}
}

// NewEinoOpenAIClient 通过 eino-ext openai 创建 ChatModel
func NewEinoOpenAIClient(ctx context.Context, opts Options) (*EinoClient, error) {
	if opts.Model == "" {
		return nil, fmt.Errorf("eino-openai: model 未配置")
	}
	cfg := &openai.ChatModelConfig{
		Model:   opts.Model,
		APIKey:  opts.APIKey,
		BaseURL: opts.BaseURL,
	}
	if opts.Timeout > 0 {
		cfg.Timeout = opts.Timeout
	}
	chatModel, err := openai.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("创建 OpenAI ChatModel failed: %w", err)
	}
	return NewEinoClient("eino-openai", opts.Model, chatModel), nil
}

// GenerateWithContext completion 模式：prompt 作为单条 user 消息
func (c *EinoClient) GenerateWithContext(ctx context.Context, prompt string, params SamplingParams) (string, error) {
	return c.ChatWithContext(ctx, []Message{{Role: "user", Content: prompt}}, params)
}

// ChatWithContext 使用上下文聊天
func (c *EinoClient) ChatWithContext(ctx context.Context, messages []Message, params SamplingParams) (string, error) {
	in := make([]*schema.Message, 0, len(messages))
	for _, m := range messages {
		in = append(in, &schema.Message{Role: roleToSchema(m.Role), Content: m.Content})
	}
	out, err := c.chat.Generate(ctx, in, modelOptions(params)...)
	if err != nil {
		return "", fmt.Errorf("eino generate: %w", err)
	}
	if out == nil {
		return "", fmt.Errorf("eino generate: empty response")
	}
	return out.Content, nil
}

// Model 返回模型名称
func (c *EinoClient) Model() string { return c.model }

// Provider 返回提供商名称
func (c *EinoClient) Provider() string { return c.provider }

func roleToSchema(role string) schema.RoleType {
	switch role {
	case "assistant":
		return schema.Assistant
	case "system":
		return schema.System
	default:
		return schema.User
	}
}

// modelOptions 将已知采样参数映射为 eino Option；其余 key 无对应 Option，忽略
func modelOptions(params SamplingParams) []model.Option {
	var opts []model.Option
	if v, ok := params.Float("temperature"); ok {
		opts = append(opts, model.WithTemperature(float32(v)))
	}
	if v, ok := params.Float("top_p"); ok {
		opts = append(opts, model.WithTopP(float32(v)))
	}
	if v := params.MaxTokens(); v > 0 {
		opts = append(opts, model.WithMaxTokens(v))
	}
	if stop := params.Stop(); len(stop) > 0 {
		opts = append(opts, model.WithStop(stop))
	}
	return opts
}
