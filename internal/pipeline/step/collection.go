package step

import (
	"sort"
	"sync"

	"datagen-platform/internal/pipeline/common"
)

// Entry 输出集合中的一项
type Entry struct {
	Index  int
	Record common.Record
}

// Collection 并发安全的输出集合，只追加；顺序为完成顺序
type Collection struct {
	mu      sync.Mutex
	entries []Entry
}

// NewCollection 创建空集合
func NewCollection() *Collection {
	return &Collection{}
}

// Add 追加一条记录；nil 集合上调用为空操作
func (c *Collection) Add(idx int, record common.Record) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.entries = append(c.entries, Entry{Index: idx, Record: record})
	c.mu.Unlock()
}

// Records 按完成顺序返回记录
func (c *Collection) Records() []common.Record {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]common.Record, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.Record
	}
	return out
}

// Sorted 按原始下标排序返回
func (c *Collection) Sorted() []Entry {
	c.mu.Lock()
	out := make([]Entry, len(c.entries))
	copy(out, c.entries)
	c.mu.Unlock()
	sort.SliceStable(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out
}

// Len 记录数
func (c *Collection) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
