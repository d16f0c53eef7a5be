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

package prompt

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

const (
	// ChatExt chat 模式模板扩展名
	ChatExt = ".yaml"
	// CompletionExt completion 模式模板扩展名
	CompletionExt = ".txt"
)

// Loader 从输入根目录加载模板；PromptFolder 中找不到时回退到 DefaultPromptFolder
type Loader struct {
	InputDir            string
	PromptFolder        string
	DefaultPromptFolder string
}

// WithExtension 按模式给模板路径追加扩展名；已带扩展名时原样返回
func WithExtension(path string, completionMode bool) string {
	ext := ChatExt
	if completionMode {
		ext = CompletionExt
	}
	if strings.HasSuffix(path, ext) {
		return path
	}
	return path + ext
}

// Resolve 返回模板的实际文件路径
func (l Loader) Resolve(path string) (string, error) {
	candidates := make([]string, 0, 2)
	if l.PromptFolder != "" {
		candidates = append(candidates, filepath.Join(l.InputDir, l.PromptFolder, path))
	}
	if l.DefaultPromptFolder != "" && l.DefaultPromptFolder != l.PromptFolder {
		candidates = append(candidates, filepath.Join(l.InputDir, l.DefaultPromptFolder, path))
	}
	if len(candidates) == 0 {
		candidates = append(candidates, filepath.Join(l.InputDir, path))
	}
	for _, c := range candidates {
		info, err := os.Stat(c)
		if err == nil && !info.IsDir() {
			return c, nil
		}
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return "", fmt.Errorf("stat prompt %s: %w", c, err)
		}
	}
	return "", fmt.Errorf("prompt %q not found under %s: %w", path, l.InputDir, fs.ErrNotExist)
}

// Load 读取模板全文
func (l Loader) Load(path string) (string, error) {
	resolved, err := l.Resolve(path)
	if err != nil {
		return "", err
	}
	b, err := os.ReadFile(resolved)
	if err != nil {
		return "", fmt.Errorf("read prompt %s: %w", resolved, err)
	}
	return string(b), nil
}
