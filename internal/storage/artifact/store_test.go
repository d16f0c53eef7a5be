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
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Put(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "qa", "raw")
	s := NewFileStore(dir)
	id := NewID()
	_, err := uuid.Parse(id)
	require.NoError(t, err)

	loc, err := s.Put(context.Background(), id, "full raw output\nwith 多字节")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, id+".txt"), loc)
	b, err := os.ReadFile(loc)
	require.NoError(t, err)
	assert.Equal(t, "full raw output\nwith 多字节", string(b))

	_, err = s.Put(context.Background(), NewID(), "second")
	require.NoError(t, err, "existing directory is reused")
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 2)

	_, err = s.Put(context.Background(), "", "x")
	assert.Error(t, err)
}

func TestMemoryStore(t *testing.T) {
	s := NewMemoryStore()
	loc, err := s.Put(context.Background(), "a", "text")
	require.NoError(t, err)
	assert.Equal(t, "memory://a", loc)
	got, ok := s.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "text", got)
	assert.Equal(t, []string{"a"}, s.IDs())
	assert.Equal(t, 1, s.Len())
}

func TestNewID_Unique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewID()
		assert.False(t, seen[id])
		seen[id] = true
	}
}
