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

// Package runner 将配置装配为可执行的 PipelineStep 并驱动一次完整运行
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"time"

	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"datagen-platform/internal/api/http"
	"datagen-platform/internal/app"
	"datagen-platform/internal/pipeline/extract"
	"datagen-platform/internal/pipeline/prompt"
	"datagen-platform/internal/pipeline/step"
	"datagen-platform/internal/storage/checkpoint"
	"datagen-platform/pkg/config"
	"datagen-platform/pkg/log"
	"datagen-platform/pkg/tracing"
	"datagen-platform/pkg/utils"
)

const (
	defaultSavePath         = "saved"
	defaultIntermediatePath = "intermediate_generations"
)

// Options 单次运行参数
type Options struct {
	Step        string // pipeline.steps 中的步骤名
	InputFile   string // JSONL 或 JSON 数组
	OutputFile  string // 可选：按下标排序写出全部记录
	Concurrency int    // 覆盖 pipeline.concurrency
}

// Runner 运行器
type Runner struct {
	boot      *app.Bootstrap
	logger    *log.Logger
	progress  *Progress
	openStore func(ctx context.Context, cfg config.CheckpointStoreConfig, dir, namespace string) (checkpoint.Store, error)
}

// New 创建 Runner
func New(boot *app.Bootstrap) *Runner {
	return &Runner{
		boot:      boot,
		logger:    boot.Logger.With("component", "runner"),
		progress:  &Progress{},
		openStore: checkpoint.NewStore,
	}
}

// Progress 当前进度
func (r *Runner) Progress() *Progress { return r.progress }

// BuildStep 按名称装配 PipelineStep
func (r *Runner) BuildStep(ctx context.Context, name string) (*step.Step, error) {
	cfg := r.boot.Config
	sc, err := cfg.Step(name)
	if err != nil {
		return nil, err
	}

	extractor := extract.Whole()
	if sc.Regex != "" {
		if extractor, err = extract.NewRegex(sc.Regex, sc.RegexGroup); err != nil {
			return nil, fmt.Errorf("step %s: %w", name, err)
		}
	}
	processor, err := step.ProcessorByName(sc.OutputProcessor)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", name, err)
	}
	validator, err := step.ValidatorByName(sc.Validator)
	if err != nil {
		return nil, fmt.Errorf("step %s: %w", name, err)
	}

	subdir := utils.CoalesceString(sc.OutputSubdir, name)
	savePath := utils.CoalesceString(sc.SavePath, defaultSavePath)
	checkpoints, err := r.openStore(ctx, cfg.CheckpointStore,
		filepath.Join(cfg.Paths.OutputDir, subdir, savePath), subdir+"/"+savePath)
	if err != nil {
		return nil, fmt.Errorf("step %s: checkpoint store: %w", name, err)
	}

	s, err := step.New(step.Config{
		Name:       name,
		PromptPath: utils.CoalesceString(sc.PromptPath, name),
		Prompts: prompt.Loader{
			InputDir:            cfg.Paths.InputDir,
			PromptFolder:        cfg.Paths.PromptFolder,
			DefaultPromptFolder: cfg.Paths.DefaultPromptFolder,
		},
		SamplingParams:         sc.SamplingParams,
		CompletionMode:         sc.CompletionMode,
		IgnoreStop:             sc.UseStop != nil && !*sc.UseStop,
		Extractor:              extractor,
		OutputProcessor:        processor,
		Validator:              validator,
		GenerationRetries:      sc.GenerationRetries,
		MaxValidationRetries:   sc.MaxRetries,
		ResultKey:              sc.ResultKey,
		OutputDir:              cfg.Paths.OutputDir,
		OutputSubdir:           subdir,
		SavePath:               savePath,
		IntermediateOutputPath: utils.CoalesceString(sc.IntermediateOutputPath, defaultIntermediatePath),
		StaticArguments:        sc.StaticArguments,
		Checkpoints:            checkpoints,
	}, r.boot.Logger)
	if err != nil {
		_ = checkpoints.Close()
		return nil, err
	}
	return s, nil
}

// Run 读取输入、执行步骤并可选写出结果
func (r *Runner) Run(ctx context.Context, opts Options) (step.Summary, error) {
	if r.boot.Client == nil {
		return step.Summary{}, fmt.Errorf("model.defaults.llm 未配置，无法创建 LLM 客户端")
	}
	items, err := ReadItems(opts.InputFile)
	if err != nil {
		return step.Summary{}, err
	}
	s, err := r.BuildStep(ctx, opts.Step)
	if err != nil {
		return step.Summary{}, err
	}
	defer s.Close()

	shutdownTracing := r.startTracing(ctx)
	defer shutdownTracing()
	stopServer := r.startStatusServer()
	defer stopServer()

	concurrency := utils.DefaultInt(opts.Concurrency, r.boot.Config.Pipeline.Concurrency)
	r.logger.Info("开始运行", "step", opts.Step, "items", len(items), "concurrency", concurrency)
	r.progress.Start(opts.Step, len(items))
	start := time.Now()
	out, summary, runErr := step.RunAll(ctx, s, r.boot.Client, items, concurrency, step.OnItemDone(r.progress.Done))
	r.progress.Finish()
	r.logger.Info("运行结束", "step", opts.Step, "elapsed", time.Since(start).String(), "records", out.Len())

	if opts.OutputFile != "" {
		if err := WriteOutput(opts.OutputFile, out.Sorted()); err != nil {
			return summary, fmt.Errorf("write output: %w", err)
		}
	}
	return summary, runErr
}

// startTracing 按 monitoring.tracing 初始化 OpenTelemetry；返回关闭函数
func (r *Runner) startTracing(ctx context.Context) func() {
	tc := r.boot.Config.Monitoring.Tracing
	if !tc.Enable {
		return func() {}
	}
	endpoint := utils.CoalesceString(tc.ExportEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
	if endpoint == "" {
		r.logger.Warn("链路追踪已启用但未配置 export_endpoint，跳过")
		return func() {}
	}
	tp, err := tracing.InitTracer(ctx, tracing.OTelConfig{
		ServiceName:    utils.CoalesceString(tc.ServiceName, "datagen"),
		ExportEndpoint: endpoint,
		Insecure:       tc.Insecure,
	})
	if err != nil {
		r.logger.Warn("初始化链路追踪失败", "error", err)
		return func() {}
	}
	r.logger.Info("链路追踪已启用", "endpoint", endpoint)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}
}

// startStatusServer 按 monitoring.prometheus 启动 /metrics 与 /api/health；返回关闭函数
func (r *Runner) startStatusServer() func() {
	pc := r.boot.Config.Monitoring.Prometheus
	if !pc.Enable || pc.Port <= 0 {
		return func() {}
	}
	r.setupHertzLogger()

	addr := ":" + strconv.Itoa(pc.Port)
	handler := http.NewHandler("datagen", r.progress.Snapshot)
	var opts []hertzconfig.Option
	var tracerCfg *hertztracing.Config
	if r.boot.Config.Monitoring.Tracing.Enable {
		var tracerOpt hertzconfig.Option
		tracerOpt, tracerCfg = hertztracing.NewServerTracer()
		opts = append(opts, tracerOpt)
	}
	h := http.NewServer(addr, handler, opts...)
	if tracerCfg != nil {
		h.Use(hertztracing.ServerMiddleware(tracerCfg))
	}
	go func() {
		if err := h.Run(); err != nil {
			r.logger.Warn("状态服务退出", "error", err)
		}
	}()
	r.logger.Info("状态服务已启动", "addr", addr)
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = h.Shutdown(ctx)
	}
}

// setupHertzLogger 使用 Hertz slog 扩展，与日志配置对齐
func (r *Runner) setupHertzLogger() {
	output := os.Stdout
	if f := r.boot.Config.Log.File; f != "" {
		if file, err := os.OpenFile(f, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644); err == nil {
			output = file
		}
	}
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(r.boot.Config.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(output),
		hertzslog.WithLevel(levelVar),
	))
}
