package llm

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClient struct {
	inFlight, peak int32
	delay          time.Duration
	err            error
}

func (s *stubClient) call() (string, error) {
	n := atomic.AddInt32(&s.inFlight, 1)
	for {
		p := atomic.LoadInt32(&s.peak)
		if n <= p || atomic.CompareAndSwapInt32(&s.peak, p, n) {
			break
		}
	}
	time.Sleep(s.delay)
	atomic.AddInt32(&s.inFlight, -1)
	if s.err != nil {
		return "", s.err
	}
	return "ok", nil
}

func (s *stubClient) GenerateWithContext(ctx context.Context, prompt string, params SamplingParams) (string, error) {
	return s.call()
}

func (s *stubClient) ChatWithContext(ctx context.Context, messages []Message, params SamplingParams) (string, error) {
	return s.call()
}

func (s *stubClient) Model() string    { return "stub-model" }
func (s *stubClient) Provider() string { return "stub" }

func TestRateLimitedClient_MaxConcurrent(t *testing.T) {
	stub := &stubClient{delay: 20 * time.Millisecond}
	limiter := NewLLMRateLimiter(map[string]LLMLimitConfig{
		"stub": {MaxConcurrent: 2},
	}, nil)
	c := NewRateLimitedClient(stub, limiter)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GenerateWithContext(context.Background(), "p", nil)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, atomic.LoadInt32(&stub.peak), int32(2))
	assert.Equal(t, 0, limiter.InFlight("stub"), "slots released")
}

func TestRateLimitedClient_ReleasesOnError(t *testing.T) {
	stub := &stubClient{err: errors.New("backend down")}
	limiter := NewLLMRateLimiter(map[string]LLMLimitConfig{"stub": {MaxConcurrent: 1}}, nil)
	c := NewRateLimitedClient(stub, limiter)
	for i := 0; i < 3; i++ {
		_, err := c.ChatWithContext(context.Background(), []Message{{Role: "user", Content: "x"}}, nil)
		require.Error(t, err)
	}
	assert.Equal(t, 0, limiter.InFlight("stub"))
}

func TestLLMRateLimiter_ContextCancelled(t *testing.T) {
	limiter := NewLLMRateLimiter(map[string]LLMLimitConfig{"stub": {MaxConcurrent: 1}}, nil)
	require.NoError(t, limiter.Wait(context.Background(), "stub", 1))
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := limiter.Wait(ctx, "stub", 1)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	limiter.Release("stub")
}

func TestRateLimitedClient_NilLimiter(t *testing.T) {
	c := NewRateLimitedClient(&stubClient{}, nil)
	out, err := c.GenerateWithContext(context.Background(), "p", nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
	assert.Equal(t, "stub", c.Provider())
	assert.Equal(t, "stub-model", c.Model())
}

func TestInstrumentedClient_PassThrough(t *testing.T) {
	c := NewInstrumentedClient(&stubClient{err: errors.New("x")})
	_, err := c.GenerateWithContext(context.Background(), "p", nil)
	require.Error(t, err)
	c = NewInstrumentedClient(&stubClient{})
	out, err := c.ChatWithContext(context.Background(), nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}
