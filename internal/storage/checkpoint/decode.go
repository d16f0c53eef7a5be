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
	"bytes"
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"golang.org/x/text/encoding/unicode"

	"datagen-platform/internal/pipeline/common"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// DecodeRecord 解析 checkpoint 内容，依次尝试：严格 UTF-8、去 BOM 的 UTF-8、非法字节替换为 U+FFFD
func DecodeRecord(data []byte) (common.Record, error) {
	var lastErr error
	for _, candidate := range decodeLadder(data) {
		var record common.Record
		if err := json.Unmarshal(candidate, &record); err != nil {
			lastErr = err
			continue
		}
		if record == nil {
			lastErr = fmt.Errorf("checkpoint is not a JSON object")
			continue
		}
		return record, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("checkpoint is not valid UTF-8")
	}
	return nil, fmt.Errorf("decode checkpoint: %w", lastErr)
}

func decodeLadder(data []byte) [][]byte {
	var out [][]byte
	hasBOM := bytes.HasPrefix(data, utf8BOM)
	if utf8.Valid(data) && !hasBOM {
		out = append(out, data)
	}
	if hasBOM && utf8.Valid(data[len(utf8BOM):]) {
		if stripped, err := unicode.UTF8BOM.NewDecoder().Bytes(data); err == nil {
			out = append(out, stripped)
		}
	}
	// UTF8BOM 解码器同时去掉 BOM 并把非法序列替换为 U+FFFD
	if lossy, err := unicode.UTF8BOM.NewDecoder().Bytes(data); err == nil {
		out = append(out, lossy)
	}
	return out
}

// EncodeRecord 序列化记录；非 ASCII 字符与 <>& 原样保留
func EncodeRecord(record common.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(record); err != nil {
		return nil, fmt.Errorf("encode checkpoint: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
