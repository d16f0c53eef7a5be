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

package step

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"datagen-platform/internal/model/llm"
	"datagen-platform/internal/pipeline/common"
	"datagen-platform/internal/pipeline/extract"
	"datagen-platform/internal/pipeline/prompt"
	"datagen-platform/internal/storage/artifact"
	"datagen-platform/pkg/log"
	"datagen-platform/pkg/metrics"
)

// countingClient 第 n 次调用返回 "answer-n"；fail 为 true 时总是返回错误
type countingClient struct {
	calls   int64
	fail    bool
	latency func() time.Duration
	mu      sync.Mutex
	prompts []string
}

func (c *countingClient) GenerateWithContext(ctx context.Context, p string, params llm.SamplingParams) (string, error) {
	n := atomic.AddInt64(&c.calls, 1)
	c.mu.Lock()
	c.prompts = append(c.prompts, p)
	c.mu.Unlock()
	if c.latency != nil {
		time.Sleep(c.latency())
	}
	if c.fail {
		return "", errors.New("connection reset")
	}
	return fmt.Sprintf("Result: answer-%d", n), nil
}

func (c *countingClient) ChatWithContext(ctx context.Context, msgs []llm.Message, params llm.SamplingParams) (string, error) {
	return c.GenerateWithContext(ctx, msgs[len(msgs)-1].Content, params)
}

func (c *countingClient) Model() string    { return "counting" }
func (c *countingClient) Provider() string { return "counting" }

func (c *countingClient) Calls() int { return int(atomic.LoadInt64(&c.calls)) }

type fixture struct {
	inputDir  string
	outputDir string
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	f := fixture{inputDir: t.TempDir(), outputDir: t.TempDir()}
	require.NoError(t, os.WriteFile(filepath.Join(f.inputDir, "qa.txt"), []byte("Text: {text}\nStyle: {style}\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(f.inputDir, "qa.yaml"),
		[]byte("- role: user\n  content: \"Text: {text}\"\n"), 0o644))
	return f
}

func (f fixture) config() Config {
	return Config{
		Name:                   "qa",
		PromptPath:             "qa",
		Prompts:                prompt.Loader{InputDir: f.inputDir},
		CompletionMode:         true,
		Extractor:              extract.MustRegex(`Result: (\S+)`, 1),
		GenerationRetries:      Int(0),
		ResultKey:              "answer",
		OutputDir:              f.outputDir,
		OutputSubdir:           "qa_step",
		SavePath:               "saved",
		IntermediateOutputPath: "raw",
		StaticArguments:        map[string]interface{}{"style": "terse"},
	}
}

func (f fixture) checkpointPath(idx int) string {
	return filepath.Join(f.outputDir, "qa_step", "saved", fmt.Sprintf("%d.json", idx))
}

func (f fixture) rawDir() string {
	return filepath.Join(f.outputDir, "qa_step", "raw")
}

func newStep(t *testing.T, cfg Config) *Step {
	t.Helper()
	s, err := New(cfg, log.Nop())
	require.NoError(t, err)
	return s
}

func TestRun_PersistsRecordAndArtifact(t *testing.T) {
	f := newFixture(t)
	s := newStep(t, f.config())
	client := &countingClient{}
	out := NewCollection()

	rec, state, err := s.Run(context.Background(), client, 0, common.Record{"text": "rivers"}, out)
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, state)
	assert.Equal(t, common.Record{"text": "rivers", "answer": "answer-1"}, rec)
	assert.Equal(t, 1, out.Len())
	assert.Equal(t, []string{"Text: rivers\nStyle: terse\n"}, client.prompts)

	_, err = os.Stat(f.checkpointPath(0))
	require.NoError(t, err)
	entries, err := os.ReadDir(f.rawDir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	raw, err := os.ReadFile(filepath.Join(f.rawDir(), entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, "Result: answer-1", string(raw))
}

func TestRun_Idempotent(t *testing.T) {
	f := newFixture(t)
	client := &countingClient{}

	first, state, err := newStep(t, f.config()).Run(context.Background(), client, 4, common.Record{"text": "a"}, NewCollection())
	require.NoError(t, err)
	require.Equal(t, StatePersisted, state)

	out := NewCollection()
	second, state, err := newStep(t, f.config()).Run(context.Background(), client, 4, common.Record{"text": "a"}, out)
	require.NoError(t, err)
	assert.Equal(t, StateCheckpointHit, state)
	assert.Equal(t, 1, client.Calls(), "backend invoked at most once")
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("cached record differs (-first +second):\n%s", diff)
	}
	assert.Equal(t, []common.Record{second}, out.Records())
}

func TestRun_ValidationDrivesRegeneration(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.MaxValidationRetries = 4
	rejections := 0
	cfg.Validator = func(result interface{}, input common.Record) error {
		if rejections < 2 {
			rejections++
			return fmt.Errorf("reject %v", result)
		}
		return nil
	}
	client := &countingClient{}

	rec, state, err := newStep(t, cfg).Run(context.Background(), client, 1, common.Record{"text": "x"}, NewCollection())
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, state)
	assert.Equal(t, "answer-3", rec["answer"], "third generation is the accepted one")
	assert.Equal(t, 3, client.Calls())

	b, err := os.ReadFile(f.checkpointPath(1))
	require.NoError(t, err)
	assert.Contains(t, string(b), `"answer":"answer-3"`)
}

func TestRun_ExhaustionIsSilentSkip(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.MaxValidationRetries = 3
	cfg.Validator = func(result interface{}, input common.Record) error { return errors.New("never good enough") }
	client := &countingClient{}
	out := NewCollection()

	rec, state, err := newStep(t, cfg).Run(context.Background(), client, 2, common.Record{"text": "x"}, out)
	require.NoError(t, err, "abandonment is not surfaced as an error")
	assert.Nil(t, rec)
	assert.Equal(t, StateAbandoned, state)
	assert.Equal(t, 3, client.Calls())
	assert.Zero(t, out.Len())
	_, err = os.Stat(f.checkpointPath(2))
	assert.True(t, errors.Is(err, os.ErrNotExist), "no checkpoint written")
	_, err = os.Stat(f.rawDir())
	assert.True(t, errors.Is(err, os.ErrNotExist), "no artifact written")
}

func TestRun_GenerationExhaustionConsumesOuterIteration(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.GenerationRetries = nil // 默认内层重试 1 次，即每轮 2 次调用
	cfg.MaxValidationRetries = 3
	client := &countingClient{fail: true}

	_, state, err := newStep(t, cfg).Run(context.Background(), client, 0, common.Record{"text": "x"}, NewCollection())
	require.NoError(t, err)
	assert.Equal(t, StateAbandoned, state)
	assert.Equal(t, 6, client.Calls())
}

func TestRun_FailureMetricsByReason(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.Name = "qa_backend_down"
	cfg.MaxValidationRetries = 2
	_, state, err := newStep(t, cfg).Run(context.Background(), &countingClient{fail: true}, 0, common.Record{"text": "x"}, NewCollection())
	require.NoError(t, err)
	require.Equal(t, StateAbandoned, state)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.IterationFailures.WithLabelValues("qa_backend_down", "generation")))
	assert.Zero(t, testutil.ToFloat64(metrics.ValidationRejections.WithLabelValues("qa_backend_down")),
		"backend failures are not validation rejections")

	cfg = f.config()
	cfg.Name = "qa_rejected"
	cfg.MaxValidationRetries = 2
	cfg.Validator = func(result interface{}, input common.Record) error { return errors.New("no") }
	_, state, err = newStep(t, cfg).Run(context.Background(), &countingClient{}, 1, common.Record{"text": "x"}, NewCollection())
	require.NoError(t, err)
	require.Equal(t, StateAbandoned, state)
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.ValidationRejections.WithLabelValues("qa_rejected")))
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.IterationFailures.WithLabelValues("qa_rejected", "validation")))

	cfg = f.config()
	cfg.Name = "qa_bad_processor"
	cfg.MaxValidationRetries = 1
	cfg.OutputProcessor = func(text string) (interface{}, error) { return nil, errors.New("unparseable") }
	_, _, err = newStep(t, cfg).Run(context.Background(), &countingClient{}, 2, common.Record{"text": "x"}, NewCollection())
	require.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.IterationFailures.WithLabelValues("qa_bad_processor", "processor")))
	assert.Zero(t, testutil.ToFloat64(metrics.ValidationRejections.WithLabelValues("qa_bad_processor")))
}

func TestRun_ReadsCheckpointWithBOM(t *testing.T) {
	f := newFixture(t)
	path := f.checkpointPath(9)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	body := append([]byte{0xEF, 0xBB, 0xBF}, []byte(`{"text":"old","answer":"cached"}`)...)
	require.NoError(t, os.WriteFile(path, body, 0o644))
	client := &countingClient{}

	rec, state, err := newStep(t, f.config()).Run(context.Background(), client, 9, common.Record{"text": "old"}, NewCollection())
	require.NoError(t, err)
	assert.Equal(t, StateCheckpointHit, state)
	assert.Equal(t, "cached", rec["answer"])
	assert.Zero(t, client.Calls())
}

func TestRun_CorruptCheckpointIsMiss(t *testing.T) {
	f := newFixture(t)
	path := f.checkpointPath(3)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(`{"half":`), 0o644))
	client := &countingClient{}

	rec, state, err := newStep(t, f.config()).Run(context.Background(), client, 3, common.Record{"text": "t"}, NewCollection())
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, state)
	assert.Equal(t, "answer-1", rec["answer"])
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(b), "answer-1", "corrupt checkpoint overwritten")
}

func TestRun_PanicCountsAsFailedIteration(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	calls := 0
	cfg.OutputProcessor = func(text string) (interface{}, error) {
		calls++
		if calls == 1 {
			panic("processor bug")
		}
		return strings.ToUpper(text), nil
	}
	client := &countingClient{}

	rec, state, err := newStep(t, cfg).Run(context.Background(), client, 0, common.Record{"text": "t"}, NewCollection())
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, state)
	assert.Equal(t, "ANSWER-2", rec["answer"])
}

func TestRun_StaticArgumentsAndInputProcessor(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.ProcessInputData = func(input common.Record) (map[string]interface{}, error) {
		return map[string]interface{}{"text": strings.ToUpper(input["text"].(string)), "style": "ignored"}, nil
	}
	static := cfg.StaticArguments
	client := &countingClient{}
	s := newStep(t, cfg)
	static["style"] = "mutated after construction"

	rec, _, err := s.Run(context.Background(), client, 0, common.Record{"text": "abc"}, NewCollection())
	require.NoError(t, err)
	assert.Equal(t, []string{"Text: ABC\nStyle: terse\n"}, client.prompts, "static arguments win and are copied at construction")
	assert.Equal(t, "abc", rec["text"], "record keeps the original item fields")
}

func TestRun_InputProcessorError(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.ProcessInputData = func(input common.Record) (map[string]interface{}, error) {
		return nil, errors.New("missing field")
	}
	_, state, err := newStep(t, cfg).Run(context.Background(), &countingClient{}, 0, common.Record{}, NewCollection())
	require.Error(t, err)
	assert.Equal(t, StateFailed, state)
	pe, ok := common.GetPipelineError(err)
	require.True(t, ok)
	assert.Equal(t, "input", pe.Stage)
}

type failingArtifacts struct{}

func (failingArtifacts) Put(ctx context.Context, id, text string) (string, error) {
	return "", errors.New("disk full")
}

func TestRun_PersistenceErrorSurfaces(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.Artifacts = failingArtifacts{}
	out := NewCollection()

	_, state, err := newStep(t, cfg).Run(context.Background(), &countingClient{}, 0, common.Record{"text": "t"}, out)
	require.Error(t, err)
	assert.Equal(t, StateFailed, state)
	assert.Zero(t, out.Len())
}

func TestRun_ChatMode(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.CompletionMode = false
	mem := artifact.NewMemoryStore()
	cfg.Artifacts = mem
	client := &countingClient{}

	rec, state, err := newStep(t, cfg).Run(context.Background(), client, 0, common.Record{"text": "chat"}, NewCollection())
	require.NoError(t, err)
	assert.Equal(t, StatePersisted, state)
	assert.Equal(t, "answer-1", rec["answer"])
	assert.Equal(t, []string{"Text: chat"}, client.prompts)
	assert.Equal(t, 1, mem.Len())
}

func TestRun_NilClient(t *testing.T) {
	f := newFixture(t)
	_, state, err := newStep(t, f.config()).Run(context.Background(), nil, 0, common.Record{"text": "t"}, NewCollection())
	assert.ErrorIs(t, err, common.ErrNoClient)
	assert.Equal(t, StateFailed, state)
}

func TestRunAll_Concurrent(t *testing.T) {
	f := newFixture(t)
	const n = 40
	client := &countingClient{latency: func() time.Duration {
		return time.Duration(rand.Intn(5)) * time.Millisecond
	}}
	items := make([]common.WorkItem, n)
	for i := range items {
		items[i] = common.WorkItem{Index: i, Data: common.Record{"text": fmt.Sprintf("item-%d", i), "idx": i}}
	}

	out, summary, err := RunAll(context.Background(), newStep(t, f.config()), client, items, 8)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: n, Persisted: n}, summary)
	assert.Equal(t, n, out.Len())

	files, err := filepath.Glob(filepath.Join(f.outputDir, "qa_step", "saved", "*.json"))
	require.NoError(t, err)
	assert.Len(t, files, n)

	for i, e := range out.Sorted() {
		assert.Equal(t, i, e.Index)
		assert.Equal(t, fmt.Sprintf("item-%d", i), e.Record["text"])
	}

	_, summary, err = RunAll(context.Background(), newStep(t, f.config()), client, items, 8)
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: n, Cached: n}, summary)
	assert.Equal(t, n, client.Calls(), "second pass served entirely from checkpoints")
}

func TestNew_Defaults(t *testing.T) {
	s, err := New(Config{PromptPath: "prompts/judge"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "judge", s.Name())
	assert.Equal(t, DefaultResultKey, s.ResultKey())
	assert.Equal(t, DefaultMaxValidationRetries, s.cfg.MaxValidationRetries)
	assert.Equal(t, DefaultGenerationRetries, s.genCfg.Retries)
	assert.Equal(t, "prompts/judge.yaml", s.genCfg.PromptPath)

	_, err = New(Config{}, nil)
	require.Error(t, err)
}

func TestRunAll_MixedOutcomes(t *testing.T) {
	f := newFixture(t)
	cfg := f.config()
	cfg.MaxValidationRetries = 1
	cfg.Validator = func(result interface{}, input common.Record) error {
		if input["reject"] == true {
			return errors.New("rejected")
		}
		return nil
	}
	items := []common.WorkItem{
		{Index: 0, Data: common.Record{"text": "a"}},
		{Index: 1, Data: common.Record{"text": "b", "reject": true}},
		{Index: 2, Data: common.Record{"text": "c"}},
	}
	var (
		mu   sync.Mutex
		seen = map[int]State{}
	)
	out, summary, err := RunAll(context.Background(), newStep(t, cfg), &countingClient{}, items, 2,
		OnItemDone(func(idx int, state State) {
			mu.Lock()
			seen[idx] = state
			mu.Unlock()
		}))
	require.NoError(t, err)
	assert.Equal(t, Summary{Total: 3, Persisted: 2, Abandoned: 1}, summary)
	assert.Equal(t, 2, out.Len())
	assert.Equal(t, map[int]State{0: StatePersisted, 1: StateAbandoned, 2: StatePersisted}, seen)
}
