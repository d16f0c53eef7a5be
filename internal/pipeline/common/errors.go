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

package common

import (
	"context"
	"errors"
	"fmt"
)

// 生成/校验链路的错误分类
var (
	// ErrTemplateRender 模板占位符缺失或格式错误；确定性失败，GenerationStep 内不重试
	ErrTemplateRender = errors.New("template render failed")
	// ErrMalformedChatTemplate chat 模式下渲染结果不是合法的 role/content 消息列表
	ErrMalformedChatTemplate = errors.New("malformed chat template")
	// ErrBackend 后端调用失败，计入内层重试预算
	ErrBackend = errors.New("backend call failed")
	// ErrExtractionMismatch 抽取模式未匹配，与 ErrBackend 共用内层重试预算
	ErrExtractionMismatch = errors.New("extraction pattern did not match")
	// ErrGenerationExhausted 内层重试预算耗尽
	ErrGenerationExhausted = errors.New("generation retries exhausted")
	// ErrValidationFailed 结果被校验函数拒绝，触发整轮重新生成
	ErrValidationFailed = errors.New("validation failed")
	// ErrStepAbandoned 外层预算耗尽，item 被跳过；仅用于日志与统计，不向驱动方抛出
	ErrStepAbandoned = errors.New("pipeline step abandoned")
	// ErrNoClient 未提供后端客户端
	ErrNoClient = errors.New("llm client not provided")
)

// GenerationExhaustedError 内层重试耗尽时返回，携带尝试次数与最后一次错误
type GenerationExhaustedError struct {
	Attempts int
	Last     error
}

// Error 实现 error 接口
func (e *GenerationExhaustedError) Error() string {
	return fmt.Sprintf("generation step failed after %d attempts: %v", e.Attempts, e.Last)
}

// Unwrap 同时暴露哨兵与最后一次错误
func (e *GenerationExhaustedError) Unwrap() []error {
	if e.Last == nil {
		return []error{ErrGenerationExhausted}
	}
	return []error{ErrGenerationExhausted, e.Last}
}

// PipelineError Pipeline 错误结构体
type PipelineError struct {
	Stage   string
	Message string
	Err     error
}

// Error 实现 error 接口
func (e *PipelineError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[Pipeline] %s: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("[Pipeline] %s: %s", e.Stage, e.Message)
}

// Unwrap 实现 errors.Unwrap 接口
func (e *PipelineError) Unwrap() error {
	return e.Err
}

// NewPipelineError 创建新的 Pipeline 错误
func NewPipelineError(stage string, message string, err error) *PipelineError {
	return &PipelineError{
		Stage:   stage,
		Message: message,
		Err:     err,
	}
}

// GetPipelineError 获取 Pipeline 错误
func GetPipelineError(err error) (*PipelineError, bool) {
	var pipelineErr *PipelineError
	if errors.As(err, &pipelineErr) {
		return pipelineErr, true
	}
	return nil, false
}

// IsRetryable 判断错误是否应当在 GenerationStep 内层重试；被取消的调用不再重试
func IsRetryable(err error) bool {
	if errors.Is(err, context.Canceled) {
		return false
	}
	return errors.Is(err, ErrBackend) || errors.Is(err, ErrExtractionMismatch)
}
