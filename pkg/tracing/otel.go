// Copyright 2026 fanjia1024
// OpenTelemetry integration for distributed tracing

package tracing

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.17.0"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "datagen"

// OTelConfig OpenTelemetry 配置
type OTelConfig struct {
	ServiceName    string
	ExportEndpoint string
	Insecure       bool
}

// InitTracer 初始化 OpenTelemetry tracer；未调用时 otel 使用 no-op provider
func InitTracer(ctx context.Context, config OTelConfig) (*sdktrace.TracerProvider, error) {
	opts := []otlptracehttp.Option{
		otlptracehttp.WithEndpoint(config.ExportEndpoint),
	}
	if config.Insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}

	exporter, err := otlptrace.New(ctx, otlptracehttp.NewClient(opts...))
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(config.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)
	return tp, nil
}

// StartItemSpan 开始单个 work item 的 span
func StartItemSpan(ctx context.Context, step string, idx int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "pipeline_step.run",
		trace.WithAttributes(
			attribute.String("step.name", step),
			attribute.Int("item.index", idx),
		),
	)
}

// StartGenerationSpan 开始一次后端调用尝试的 span
func StartGenerationSpan(ctx context.Context, promptPath string, attempt int, completionMode bool) (context.Context, trace.Span) {
	mode := "chat"
	if completionMode {
		mode = "completion"
	}
	return otel.Tracer(tracerName).Start(ctx, "generation.attempt",
		trace.WithAttributes(
			attribute.String("prompt.path", promptPath),
			attribute.Int("attempt", attempt),
			attribute.String("mode", mode),
		),
	)
}

// EndSpan 结束 span，err 非 nil 时记录错误状态
func EndSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
