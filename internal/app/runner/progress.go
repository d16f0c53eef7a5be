package runner

import (
	"sync"

	"datagen-platform/internal/pipeline/step"
)

// Progress 运行中的进度统计，供 /api/progress 读取
type Progress struct {
	mu       sync.Mutex
	stepName string
	summary  step.Summary
	running  bool
}

// Start 开始新一轮统计
func (p *Progress) Start(name string, total int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stepName = name
	p.summary = step.Summary{Total: total}
	p.running = true
}

// Done 记录单个 item 结果
func (p *Progress) Done(idx int, state step.State) {
	p.mu.Lock()
	p.summary.Add(state)
	p.mu.Unlock()
}

// Finish 标记结束
func (p *Progress) Finish() {
	p.mu.Lock()
	p.running = false
	p.mu.Unlock()
}

// Snapshot 当前进度
func (p *Progress) Snapshot() interface{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	s := p.summary
	return map[string]interface{}{
		"step":      p.stepName,
		"running":   p.running,
		"total":     s.Total,
		"completed": s.Persisted + s.Cached + s.Abandoned + s.Failed,
		"summary":   s,
	}
}
