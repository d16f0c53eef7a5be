package llm

import (
	"context"
	"time"

	"datagen-platform/pkg/metrics"
)

// InstrumentedClient 记录每次后端调用的耗时与估算 token 数
type InstrumentedClient struct {
	inner Client
}

// NewInstrumentedClient 包装 Client
func NewInstrumentedClient(inner Client) *InstrumentedClient {
	return &InstrumentedClient{inner: inner}
}

// GenerateWithContext 实现 Client
func (c *InstrumentedClient) GenerateWithContext(ctx context.Context, prompt string, params SamplingParams) (string, error) {
	start := time.Now()
	out, err := c.inner.GenerateWithContext(ctx, prompt, params)
	c.observe("completion", start, len(prompt), out, err)
	return out, err
}

// ChatWithContext 实现 Client
func (c *InstrumentedClient) ChatWithContext(ctx context.Context, messages []Message, params SamplingParams) (string, error) {
	start := time.Now()
	out, err := c.inner.ChatWithContext(ctx, messages, params)
	c.observe("chat", start, len(messagesText(messages)), out, err)
	return out, err
}

func (c *InstrumentedClient) observe(mode string, start time.Time, inputLen int, out string, err error) {
	provider := c.inner.Provider()
	status := "ok"
	if err != nil {
		status = "error"
	}
	metrics.LLMRequestDuration.WithLabelValues(provider, mode, status).Observe(time.Since(start).Seconds())
	metrics.LLMTokensTotal.WithLabelValues(provider, "input").Add(float64(inputLen / 4))
	if err == nil {
		metrics.LLMTokensTotal.WithLabelValues(provider, "output").Add(float64(len(out) / 4))
	}
}

// Model 实现 Client
func (c *InstrumentedClient) Model() string { return c.inner.Model() }

// Provider 实现 Client
func (c *InstrumentedClient) Provider() string { return c.inner.Provider() }
