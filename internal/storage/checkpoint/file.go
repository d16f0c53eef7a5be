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

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"datagen-platform/internal/pipeline/common"
)

// FileStore 每个 idx 一个 <dir>/<idx>.json 文件
type FileStore struct {
	dir string
}

// NewFileStore 创建文件 checkpoint 存储；目录在首次写入时创建
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Path 返回 idx 对应文件路径
func (s *FileStore) Path(idx int) string {
	return filepath.Join(s.dir, strconv.Itoa(idx)+".json")
}

// Load 读取 checkpoint
func (s *FileStore) Load(ctx context.Context, idx int) (common.Record, bool, error) {
	data, err := os.ReadFile(s.Path(idx))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("read checkpoint %d: %w", idx, err)
	}
	record, err := DecodeRecord(data)
	if err != nil {
		return nil, false, fmt.Errorf("checkpoint %s: %w", s.Path(idx), err)
	}
	return record, true, nil
}

// Save 原子写入：临时文件 + fsync + rename，中途崩溃不会留下半个 checkpoint
func (s *FileStore) Save(ctx context.Context, idx int, record common.Record) error {
	data, err := EncodeRecord(record)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.Path(idx), data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint %d: %w", idx, err)
	}
	return nil
}

// Close 无资源需要释放
func (s *FileStore) Close() error { return nil }

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp.*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return err
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return nil
}
