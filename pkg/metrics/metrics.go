package metrics

import (
	"io"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// 全局 Registry，供 Runner 注册、由 /metrics 暴露
var DefaultRegistry = prometheus.NewRegistry()

func init() {
	DefaultRegistry.MustRegister(
		ItemsTotal, ItemDuration, CheckpointHits,
		GenerationAttempts, ValidationRejections, IterationFailures,
		LLMRequestDuration, LLMTokensTotal, RateLimitWaitSeconds,
		InFlightItems,
	)
}

// ItemsTotal 按最终状态统计的 item 数
var ItemsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datagen_items_total",
		Help: "PipelineStep 处理的 item 总数（按最终状态）",
	},
	[]string{"step", "state"}, // checkpoint_hit | persisted | abandoned | failed
)

// ItemDuration 单个 item 从 Run 开始到结束的耗时（秒）
var ItemDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "datagen_item_duration_seconds",
		Help:    "单个 item 处理耗时（秒）",
		Buckets: prometheus.ExponentialBuckets(0.05, 2, 14),
	},
	[]string{"step"},
)

// CheckpointHits 命中 checkpoint 而跳过生成的次数
var CheckpointHits = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datagen_checkpoint_hits_total",
		Help: "命中已持久化 checkpoint 的次数",
	},
	[]string{"step"},
)

// GenerationAttempts GenerationStep 单次尝试计数
var GenerationAttempts = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datagen_generation_attempts_total",
		Help: "生成尝试次数（按结果）",
	},
	[]string{"step", "outcome"}, // ok | backend_error | extraction_mismatch
)

// ValidationRejections 结果被校验函数拒绝的次数
var ValidationRejections = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datagen_validation_rejections_total",
		Help: "生成结果被校验函数拒绝的次数",
	},
	[]string{"step"},
)

// IterationFailures 外层迭代失败次数（按原因）
var IterationFailures = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datagen_iteration_failures_total",
		Help: "PipelineStep 外层迭代失败次数（按原因）",
	},
	[]string{"step", "reason"}, // generation | processor | validation | panic
)

// LLMRequestDuration 后端请求耗时（秒）
var LLMRequestDuration = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "datagen_llm_request_duration_seconds",
		Help:    "LLM 后端请求耗时（秒）",
		Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
	},
	[]string{"provider", "mode", "status"}, // mode: completion | chat
)

// LLMTokensTotal LLM 调用 token 数（估算）
var LLMTokensTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "datagen_llm_tokens_total",
		Help: "LLM 调用 token 总数（按 4 字符约 1 token 估算）",
	},
	[]string{"provider", "direction"}, // input | output
)

// RateLimitWaitSeconds 限流等待耗时（秒）
var RateLimitWaitSeconds = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "datagen_rate_limit_wait_seconds",
		Help:    "限流等待耗时（秒）",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"kind", "provider"},
)

// InFlightItems 当前正在执行的 item 数
var InFlightItems = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "datagen_items_in_flight",
		Help: "当前正在执行的 item 数",
	},
	[]string{"step"},
)

// WritePrometheus 将 Prometheus 文本格式写入 w（供 Hertz 等复用）
func WritePrometheus(w io.Writer) error {
	metrics, err := DefaultRegistry.Gather()
	if err != nil {
		return err
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range metrics {
		if err := enc.Encode(mf); err != nil {
			return err
		}
	}
	return nil
}
