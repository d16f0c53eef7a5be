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

package runner

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"datagen-platform/internal/pipeline/common"
	"datagen-platform/internal/pipeline/step"
	"datagen-platform/internal/storage/checkpoint"
)

const maxLineSize = 16 * 1024 * 1024

// ReadItems 读取输入 item：.json 文件为对象数组，其余按 JSONL 逐行解析；下标为在文件中的顺序
func ReadItems(path string) ([]common.WorkItem, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open items: %w", err)
	}
	defer f.Close()
	if filepath.Ext(path) == ".json" {
		var records []common.Record
		if err := json.NewDecoder(f).Decode(&records); err != nil {
			return nil, fmt.Errorf("decode items %s: %w", path, err)
		}
		items := make([]common.WorkItem, len(records))
		for i, r := range records {
			items[i] = common.WorkItem{Index: i, Data: r}
		}
		return items, nil
	}
	return readJSONL(f, path)
}

func readJSONL(r io.Reader, name string) ([]common.WorkItem, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	var items []common.WorkItem
	line := 0
	for sc.Scan() {
		line++
		b := bytes.TrimSpace(sc.Bytes())
		if len(b) == 0 {
			continue
		}
		var rec common.Record
		if err := json.Unmarshal(b, &rec); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", name, line, err)
		}
		items = append(items, common.WorkItem{Index: len(items), Data: rec})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return items, nil
}

// WriteOutput 按原始下标顺序写出 JSONL
func WriteOutput(path string, entries []step.Entry) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, e := range entries {
		b, err := checkpoint.EncodeRecord(e.Record)
		if err != nil {
			_ = f.Close()
			return err
		}
		_, _ = w.Write(b)
		_ = w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}
