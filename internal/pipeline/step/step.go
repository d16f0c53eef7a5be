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

// Package step PipelineStep：checkpoint 查找、生成、校验重试与持久化
package step

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"datagen-platform/internal/model/llm"
	"datagen-platform/internal/pipeline/common"
	"datagen-platform/internal/pipeline/extract"
	"datagen-platform/internal/pipeline/generation"
	"datagen-platform/internal/pipeline/prompt"
	"datagen-platform/internal/storage/artifact"
	"datagen-platform/internal/storage/checkpoint"
	perrors "datagen-platform/pkg/errors"
	"datagen-platform/pkg/log"
	"datagen-platform/pkg/metrics"
	"datagen-platform/pkg/tracing"
)

const (
	// DefaultGenerationRetries 内层（单次生成）默认重试次数
	DefaultGenerationRetries = 1
	// DefaultMaxValidationRetries 外层（生成+校验）默认尝试次数
	DefaultMaxValidationRetries = 3
	// DefaultResultKey 结果字段默认名
	DefaultResultKey = "result"
)

// State 单个 item 的处理状态
type State string

const (
	StateCheckpointHit State = "checkpoint_hit"
	StateGenerating    State = "generating"
	StateValidating    State = "validating"
	StatePersisted     State = "persisted"
	StateAbandoned     State = "abandoned"
	// StateFailed 基础设施错误（输入处理、持久化、ctx 取消），随 error 一起返回
	StateFailed State = "failed"
)

// InputProcessor 将原始 item 映射为模板参数
type InputProcessor func(input common.Record) (map[string]interface{}, error)

// Config PipelineStep 定义；构造后不可变
type Config struct {
	Name string
	// PromptPath 不含扩展名；chat 模式追加 .yaml，completion 模式追加 .txt
	PromptPath     string
	Prompts        prompt.Loader
	SamplingParams llm.SamplingParams
	CompletionMode bool
	IgnoreStop     bool

	Extractor        extract.Extractor
	OutputProcessor  OutputProcessor
	Validator        Validator
	ProcessInputData InputProcessor

	// GenerationRetries nil 时为 DefaultGenerationRetries
	GenerationRetries *int
	// MaxValidationRetries <=0 时为 DefaultMaxValidationRetries
	MaxValidationRetries int
	ResultKey            string

	// 输出布局：<OutputDir>/<OutputSubdir>/<SavePath>/<idx>.json 与 <OutputDir>/<OutputSubdir>/<IntermediateOutputPath>/<id>.txt
	OutputDir              string
	OutputSubdir           string
	SavePath               string
	IntermediateOutputPath string

	StaticArguments map[string]interface{}

	// Checkpoints/Artifacts 为空时使用上述目录下的文件存储
	Checkpoints checkpoint.Store
	Artifacts   artifact.Store
}

// Int 返回 n 的指针，便于设置 GenerationRetries
func Int(n int) *int { return &n }

// Step PipelineStep
type Step struct {
	cfg         Config
	genCfg      generation.Config
	checkpoints checkpoint.Store
	artifacts   artifact.Store
	logger      *log.Logger
}

// New 创建 PipelineStep；map 参数在此处复制，不同 Step 之间不共享可变状态
func New(cfg Config, logger *log.Logger) (*Step, error) {
	if cfg.PromptPath == "" {
		return nil, perrors.Mark(fmt.Errorf("pipeline step %q: prompt path is empty", cfg.Name), perrors.ErrInvalidArg)
	}
	if cfg.Name == "" {
		cfg.Name = filepath.Base(cfg.PromptPath)
	}
	if cfg.ResultKey == "" {
		cfg.ResultKey = DefaultResultKey
	}
	if cfg.MaxValidationRetries <= 0 {
		cfg.MaxValidationRetries = DefaultMaxValidationRetries
	}
	retries := DefaultGenerationRetries
	if cfg.GenerationRetries != nil && *cfg.GenerationRetries >= 0 {
		retries = *cfg.GenerationRetries
	}
	if cfg.OutputProcessor == nil {
		cfg.OutputProcessor = Identity
	}
	if cfg.Validator == nil {
		cfg.Validator = AcceptAll
	}
	if cfg.ProcessInputData == nil {
		cfg.ProcessInputData = identityInput
	}
	cfg.SamplingParams = cfg.SamplingParams.Clone()
	cfg.StaticArguments = common.Merge(cfg.StaticArguments)

	base := filepath.Join(cfg.OutputDir, cfg.OutputSubdir)
	checkpoints := cfg.Checkpoints
	if checkpoints == nil {
		checkpoints = checkpoint.NewFileStore(filepath.Join(base, cfg.SavePath))
	}
	artifacts := cfg.Artifacts
	if artifacts == nil {
		artifacts = artifact.NewFileStore(filepath.Join(base, cfg.IntermediateOutputPath))
	}
	if logger == nil {
		logger = log.Nop()
	}

	return &Step{
		cfg: cfg,
		genCfg: generation.Config{
			Name:           cfg.Name,
			PromptPath:     prompt.WithExtension(cfg.PromptPath, cfg.CompletionMode),
			Prompts:        cfg.Prompts,
			SamplingParams: cfg.SamplingParams,
			CompletionMode: cfg.CompletionMode,
			IgnoreStop:     cfg.IgnoreStop,
			Extractor:      cfg.Extractor,
			Retries:        retries,
		},
		checkpoints: checkpoints,
		artifacts:   artifacts,
		logger:      logger.With("step", cfg.Name),
	}, nil
}

// Name 步骤名称
func (s *Step) Name() string { return s.cfg.Name }

// ResultKey 结果字段名
func (s *Step) ResultKey() string { return s.cfg.ResultKey }

// Close 释放 checkpoint 存储
func (s *Step) Close() error { return s.checkpoints.Close() }

// Run 处理单个 item。
//
// 命中 checkpoint 时直接返回缓存记录；外层预算耗尽返回 (nil, StateAbandoned, nil)，不写任何文件；
// 只有基础设施错误（输入处理、持久化、ctx 取消）才返回 error。
func (s *Step) Run(ctx context.Context, client llm.Client, idx int, input common.Record, out *Collection) (record common.Record, state State, err error) {
	ctx, span := tracing.StartItemSpan(ctx, s.cfg.Name, idx)
	start := time.Now()
	metrics.InFlightItems.WithLabelValues(s.cfg.Name).Inc()
	defer func() {
		metrics.InFlightItems.WithLabelValues(s.cfg.Name).Dec()
		metrics.ItemDuration.WithLabelValues(s.cfg.Name).Observe(time.Since(start).Seconds())
		metrics.ItemsTotal.WithLabelValues(s.cfg.Name, string(state)).Inc()
		tracing.EndSpan(span, err)
	}()
	logger := s.logger.With("idx", idx)

	if cached, ok := s.readPrevious(ctx, logger, idx); ok {
		metrics.CheckpointHits.WithLabelValues(s.cfg.Name).Inc()
		out.Add(idx, cached)
		logger.Debug("checkpoint hit")
		return cached, StateCheckpointHit, nil
	}

	gen, err := generation.New(s.genCfg, client, logger)
	if err != nil {
		return nil, StateFailed, err
	}
	args, err := s.processInput(input)
	if err != nil {
		return nil, StateFailed, common.NewPipelineError("input", fmt.Sprintf("process item %d", idx), err)
	}
	args = common.Merge(args, s.cfg.StaticArguments)

	var (
		result interface{}
		raw    string
	)
	complete := false
	for remaining := s.cfg.MaxValidationRetries; !complete && remaining > 0; remaining-- {
		var reason string
		result, raw, reason, err = s.iterate(ctx, logger, gen, args, input)
		if err == nil {
			complete = true
			break
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, StateFailed, ctxErr
		}
		metrics.IterationFailures.WithLabelValues(s.cfg.Name, reason).Inc()
		if reason == failureValidation {
			metrics.ValidationRejections.WithLabelValues(s.cfg.Name).Inc()
		}
		logger.Warn("pipeline step iteration failed",
			"remaining", remaining-1,
			"reason", reason,
			"error", err.Error(),
		)
	}
	if !complete {
		logger.Error("item abandoned", "attempts", s.cfg.MaxValidationRetries, "error", common.ErrStepAbandoned.Error())
		return nil, StateAbandoned, nil
	}

	record, err = s.save(ctx, idx, input, result, raw)
	if err != nil {
		return nil, StateFailed, err
	}
	out.Add(idx, record)
	logger.Info("item persisted")
	return record, StatePersisted, nil
}

// readPrevious 读失败仅记录日志并按未命中处理
func (s *Step) readPrevious(ctx context.Context, logger *log.Logger, idx int) (common.Record, bool) {
	rec, ok, err := s.checkpoints.Load(ctx, idx)
	if err != nil {
		logger.Warn("read checkpoint failed, regenerating", "error", err.Error())
		return nil, false
	}
	return rec, ok
}

func (s *Step) processInput(input common.Record) (args map[string]interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in input processor: %v", r)
		}
	}()
	return s.cfg.ProcessInputData(input.Clone())
}

// 外层迭代失败原因，用作指标标签
const (
	failureGeneration = "generation"
	failureProcessor  = "processor"
	failureValidation = "validation"
	failurePanic      = "panic"
)

// iterate 一轮生成 + 处理 + 校验；用户函数 panic 视为本轮失败
func (s *Step) iterate(ctx context.Context, logger *log.Logger, gen *generation.Step, args map[string]interface{}, input common.Record) (result interface{}, raw string, reason string, err error) {
	defer func() {
		if r := recover(); r != nil {
			reason = failurePanic
			err = fmt.Errorf("panic in pipeline step %s: %v", s.cfg.Name, r)
		}
	}()

	logger.Debug("state", "state", StateGenerating)
	res, err := gen.Generate(ctx, args)
	if err != nil {
		return nil, "", failureGeneration, err
	}
	result, err = s.cfg.OutputProcessor(res.Text)
	if err != nil {
		return nil, "", failureProcessor, fmt.Errorf("output processor: %w", err)
	}

	logger.Debug("state", "state", StateValidating)
	if err := s.cfg.Validator(result, input.Clone()); err != nil {
		return nil, "", failureValidation, perrors.Mark(err, common.ErrValidationFailed)
	}
	return result, res.Raw, "", nil
}

// save 先写原始输出，再写 checkpoint；两次写入之间崩溃只会导致重做
func (s *Step) save(ctx context.Context, idx int, input common.Record, result interface{}, raw string) (common.Record, error) {
	id := artifact.NewID()
	loc, err := s.artifacts.Put(ctx, id, raw)
	if err != nil {
		return nil, common.NewPipelineError("persist", "write raw artifact", err)
	}
	record := input.With(s.cfg.ResultKey, result)
	if err := s.checkpoints.Save(ctx, idx, record); err != nil {
		return nil, common.NewPipelineError("persist", fmt.Sprintf("write checkpoint %d", idx), err)
	}
	s.logger.Debug("artifact saved", "idx", idx, "artifact", loc)
	return record, nil
}

func identityInput(input common.Record) (map[string]interface{}, error) {
	return input, nil
}
