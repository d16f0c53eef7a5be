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

// Package generation 单次模型调用 + 抽取 + 内层重试
package generation

import (
	"context"
	"fmt"

	"datagen-platform/internal/model/llm"
	"datagen-platform/internal/pipeline/common"
	"datagen-platform/internal/pipeline/extract"
	"datagen-platform/internal/pipeline/prompt"
	perrors "datagen-platform/pkg/errors"
	"datagen-platform/pkg/log"
	"datagen-platform/pkg/metrics"
	"datagen-platform/pkg/tracing"
)

// Config GenerationStep 配置
type Config struct {
	// Name 用于日志与指标标签，通常为所属 PipelineStep 名称
	Name string
	// PromptPath 模板相对路径（已含扩展名）
	PromptPath string
	Prompts    prompt.Loader
	// SamplingParams 原样透传给后端
	SamplingParams llm.SamplingParams
	CompletionMode bool
	// IgnoreStop 为 true 时发送前去掉 stop 参数
	IgnoreStop bool
	// Extractor 为 nil 时取完整输出
	Extractor extract.Extractor
	// Retries 失败后的额外尝试次数，总尝试次数为 Retries+1
	Retries int
}

// Result 一次成功生成的结果
type Result struct {
	Text string // 抽取后的文本
	Raw  string // 后端完整原始输出，用于归档
}

// Step GenerationStep：渲染模板、调用后端、抽取，失败时在预算内重试
type Step struct {
	cfg    Config
	params llm.SamplingParams
	client llm.Client
	logger *log.Logger
}

// New 创建 GenerationStep；client 不能为空
func New(cfg Config, client llm.Client, logger *log.Logger) (*Step, error) {
	if client == nil {
		return nil, common.ErrNoClient
	}
	if cfg.PromptPath == "" {
		return nil, perrors.Mark(fmt.Errorf("prompt path is empty"), perrors.ErrInvalidArg)
	}
	if cfg.Retries < 0 {
		cfg.Retries = 0
	}
	if cfg.Extractor == nil {
		cfg.Extractor = extract.Whole()
	}
	if logger == nil {
		logger = log.Nop()
	}
	params := cfg.SamplingParams.Clone()
	if cfg.IgnoreStop {
		delete(params, "stop")
	}
	return &Step{
		cfg:    cfg,
		params: params,
		client: client,
		logger: logger.With("component", "generation", "prompt", cfg.PromptPath),
	}, nil
}

// Generate 渲染模板并调用后端；模板与 chat 解析错误立即返回，后端错误与抽取失败在预算内重试，
// 不可重试的错误（如调用被取消）直接返回
func (s *Step) Generate(ctx context.Context, args map[string]interface{}) (Result, error) {
	tmpl, err := s.cfg.Prompts.Load(s.cfg.PromptPath)
	if err != nil {
		return Result{}, common.NewPipelineError("prompt", "load template", err)
	}
	rendered, err := prompt.Render(tmpl, args)
	if err != nil {
		return Result{}, err
	}

	var messages []llm.Message
	if !s.cfg.CompletionMode {
		if messages, err = prompt.ParseChat(rendered); err != nil {
			return Result{}, err
		}
	}

	attempts := s.cfg.Retries + 1
	var last error
	for attempt := 1; attempt <= attempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := s.attempt(ctx, attempt, rendered, messages)
		if err == nil {
			return res, nil
		}
		last = err
		s.logger.Warn("generation attempt failed",
			"attempt", attempt,
			"max_attempts", attempts,
			"error", err.Error(),
		)
		if !common.IsRetryable(err) {
			return Result{}, err
		}
	}
	s.logger.Error("generation retries exhausted", "attempts", attempts, "error", last.Error())
	return Result{}, &common.GenerationExhaustedError{Attempts: attempts, Last: last}
}

func (s *Step) attempt(ctx context.Context, attempt int, rendered string, messages []llm.Message) (res Result, err error) {
	ctx, span := tracing.StartGenerationSpan(ctx, s.cfg.PromptPath, attempt, s.cfg.CompletionMode)
	defer func() { tracing.EndSpan(span, err) }()

	var raw string
	if s.cfg.CompletionMode {
		raw, err = s.client.GenerateWithContext(ctx, rendered, s.params)
	} else {
		raw, err = s.client.ChatWithContext(ctx, messages, s.params)
	}
	if err != nil {
		metrics.GenerationAttempts.WithLabelValues(s.cfg.Name, "backend_error").Inc()
		return Result{}, perrors.Mark(err, common.ErrBackend)
	}

	text, err := s.cfg.Extractor.Extract(raw)
	if err != nil {
		metrics.GenerationAttempts.WithLabelValues(s.cfg.Name, "extraction_mismatch").Inc()
		return Result{}, perrors.Mark(err, common.ErrExtractionMismatch)
	}
	metrics.GenerationAttempts.WithLabelValues(s.cfg.Name, "ok").Inc()
	return Result{Text: text, Raw: raw}, nil
}
