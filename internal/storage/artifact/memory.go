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

package artifact

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore 内存 artifact 存储，用于测试与 dry-run
type MemoryStore struct {
	items map[string]string
	mu    sync.RWMutex
}

// NewMemoryStore 创建新的内存 artifact 存储
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]string)}
}

// Put 保存原始输出
func (s *MemoryStore) Put(ctx context.Context, id string, text string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[id] = text
	return "memory://" + id, nil
}

// Get 读取原始输出
func (s *MemoryStore) Get(id string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	text, ok := s.items[id]
	return text, ok
}

// IDs 返回已保存的 id（排序后）
func (s *MemoryStore) IDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.items))
	for id := range s.items {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Len 已保存数量
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
