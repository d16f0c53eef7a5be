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
	"fmt"
	"os"
	"path/filepath"
)

// FileStore 每个 artifact 一个 <dir>/<id>.txt 文件
type FileStore struct {
	dir string
}

// NewFileStore 创建文件 artifact 存储；目录在写入时按需创建
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Put 写入原始输出
func (s *FileStore) Put(ctx context.Context, id string, text string) (string, error) {
	if id == "" {
		return "", fmt.Errorf("artifact id is empty")
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	path := filepath.Join(s.dir, id+".txt")
	if err := os.WriteFile(path, []byte(text), 0o644); err != nil {
		return "", fmt.Errorf("write artifact %s: %w", id, err)
	}
	return path, nil
}
