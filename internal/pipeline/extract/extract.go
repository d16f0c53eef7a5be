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

// Package extract 从模型原始输出中抽取有效片段
package extract

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"datagen-platform/internal/pipeline/common"
)

// Extractor 抽取策略；未匹配时返回包装了 common.ErrExtractionMismatch 的错误
type Extractor interface {
	Extract(raw string) (string, error)
	Name() string
}

// Func 将函数适配为 Extractor
type Func func(raw string) (string, error)

// Extract 实现 Extractor
func (f Func) Extract(raw string) (string, error) { return f(raw) }

// Name 实现 Extractor
func (f Func) Name() string { return "func" }

type whole struct{}

// Whole 返回完整输出
func Whole() Extractor { return whole{} }

func (whole) Extract(raw string) (string, error) { return raw, nil }
func (whole) Name() string                       { return "whole" }

// Regex 正则 + 捕获组
type Regex struct {
	re    *regexp.Regexp
	group int
}

// NewRegex 编译 pattern；group<=0 时取第一个捕获组，pattern 无捕获组则取整体匹配
func NewRegex(pattern string, group int) (*Regex, error) {
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("compile extraction pattern: %w", err)
	}
	if group <= 0 {
		group = 0
		if re.NumSubexp() > 0 {
			group = 1
		}
	}
	if group > re.NumSubexp() {
		return nil, fmt.Errorf("extraction pattern %q has %d groups, group %d requested", pattern, re.NumSubexp(), group)
	}
	return &Regex{re: re, group: group}, nil
}

// MustRegex 同 NewRegex，出错时 panic
func MustRegex(pattern string, group int) *Regex {
	r, err := NewRegex(pattern, group)
	if err != nil {
		panic(err)
	}
	return r
}

// Extract 返回第一处匹配的指定捕获组
func (r *Regex) Extract(raw string) (string, error) {
	m := r.re.FindStringSubmatchIndex(raw)
	if m == nil || m[2*r.group] < 0 {
		return "", fmt.Errorf("%w: %s", common.ErrExtractionMismatch, r.re.String())
	}
	return raw[m[2*r.group]:m[2*r.group+1]], nil
}

// Name 实现 Extractor
func (r *Regex) Name() string { return "regex" }

var (
	stepMarker     = regexp.MustCompile(`Step (\d+)\.`)
	stepTerminator = regexp.MustCompile(`Step \d\.`)
	leadingWord    = regexp.MustCompile(`^\s*(\S+)`)
)

// Steps 抽取 "Step N." 分段中指定编号的内容，每段一行
type Steps struct {
	steps map[int]struct{}
}

// NewSteps 创建分段抽取器；未指定编号时默认 2、4、5
func NewSteps(steps ...int) *Steps {
	if len(steps) == 0 {
		steps = []int{2, 4, 5}
	}
	s := &Steps{steps: make(map[int]struct{}, len(steps))}
	for _, n := range steps {
		s.steps[n] = struct{}{}
	}
	return s
}

// Extract 每个选中分段的内容截止到下一个 "Step d."；最后一段后面没有标记时只取第一个词，
// 其后的文字与首个标记之前的文字一样视为噪声。没有任何选中分段时视为未匹配
func (s *Steps) Extract(raw string) (string, error) {
	parts := s.collect(raw)
	if len(parts) == 0 {
		return "", fmt.Errorf("%w: no selected Step N. sections", common.ErrExtractionMismatch)
	}
	return strings.Join(parts, "\n"), nil
}

// Join 同 Extract，但没有选中分段时返回空串
func (s *Steps) Join(raw string) string {
	return strings.Join(s.collect(raw), "\n")
}

func (s *Steps) collect(raw string) []string {
	var parts []string
	cursor := 0
	for _, m := range stepMarker.FindAllStringSubmatchIndex(raw, -1) {
		if m[0] < cursor {
			continue
		}
		n, err := strconv.Atoi(raw[m[2]:m[3]])
		if err != nil {
			continue
		}
		if _, ok := s.steps[n]; !ok {
			continue
		}
		loc := stepTerminator.FindStringIndex(raw[m[1]:])
		if loc == nil {
			if w := leadingWord.FindStringSubmatch(raw[m[1]:]); w != nil {
				parts = append(parts, w[1])
			} else {
				parts = append(parts, "")
			}
			break
		}
		end := m[1] + loc[0]
		parts = append(parts, strings.TrimSpace(raw[m[1]:end]))
		cursor = end
	}
	return parts
}

// Name 实现 Extractor
func (s *Steps) Name() string { return "steps" }
