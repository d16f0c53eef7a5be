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
	"sync"

	"golang.org/x/sync/errgroup"

	"datagen-platform/internal/model/llm"
	"datagen-platform/internal/pipeline/common"
)

// DefaultConcurrency RunAll 默认并发度
const DefaultConcurrency = 8

// Summary RunAll 统计
type Summary struct {
	Total     int `json:"total"`
	Persisted int `json:"persisted"`
	Cached    int `json:"cached"`
	Abandoned int `json:"abandoned"`
	Failed    int `json:"failed"`
}

// Add 按最终状态计数，未知状态计为 Failed
func (s *Summary) Add(state State) {
	switch state {
	case StatePersisted:
		s.Persisted++
	case StateCheckpointHit:
		s.Cached++
	case StateAbandoned:
		s.Abandoned++
	default:
		s.Failed++
	}
}

// RunOption RunAll 可选参数
type RunOption func(*runOptions)

type runOptions struct {
	onDone func(idx int, state State)
}

// OnItemDone 每个 item 结束后回调，可能被并发调用
func OnItemDone(fn func(idx int, state State)) RunOption {
	return func(o *runOptions) { o.onDone = fn }
}

// RunAll 以有限并发对所有 item 执行 Run。
//
// 单个 item 的失败不会中断其他 item；返回的 error 汇总了所有基础设施错误。
func RunAll(ctx context.Context, s *Step, client llm.Client, items []common.WorkItem, concurrency int, opts ...RunOption) (*Collection, Summary, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	var o runOptions
	for _, opt := range opts {
		opt(&o)
	}
	out := NewCollection()
	summary := Summary{Total: len(items)}

	var (
		mu   sync.Mutex
		errs []error
	)
	g := new(errgroup.Group)
	g.SetLimit(concurrency)
	for _, item := range items {
		item := item
		g.Go(func() error {
			_, state, err := s.Run(ctx, client, item.Index, item.Data, out)
			if o.onDone != nil {
				o.onDone(item.Index, state)
			}
			mu.Lock()
			defer mu.Unlock()
			summary.Add(state)
			if err != nil {
				errs = append(errs, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	s.logger.Info("pipeline step finished",
		"total", summary.Total,
		"persisted", summary.Persisted,
		"cached", summary.Cached,
		"abandoned", summary.Abandoned,
		"failed", summary.Failed,
	)
	return out, summary, errors.Join(errs...)
}
