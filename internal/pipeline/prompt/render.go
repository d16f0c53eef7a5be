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
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"datagen-platform/internal/model/llm"
	"datagen-platform/internal/pipeline/common"
)

// Render 替换模板中的 {name} 占位符；{{ 与 }} 输出字面量花括号
//
// 占位符缺失、未闭合或名称非法时返回 ErrTemplateRender。
func Render(tmpl string, args map[string]interface{}) (string, error) {
	var b strings.Builder
	b.Grow(len(tmpl))
	for i := 0; i < len(tmpl); i++ {
		c := tmpl[i]
		switch c {
		case '{':
			if i+1 < len(tmpl) && tmpl[i+1] == '{' {
				b.WriteByte('{')
				i++
				continue
			}
			end := strings.IndexByte(tmpl[i+1:], '}')
			if end < 0 {
				return "", fmt.Errorf("%w: unclosed placeholder at offset %d", common.ErrTemplateRender, i)
			}
			name := tmpl[i+1 : i+1+end]
			if !validName(name) {
				return "", fmt.Errorf("%w: malformed placeholder {%s}", common.ErrTemplateRender, name)
			}
			v, ok := args[name]
			if !ok {
				return "", fmt.Errorf("%w: missing argument %q", common.ErrTemplateRender, name)
			}
			b.WriteString(toString(v))
			i += end + 1
		case '}':
			if i+1 < len(tmpl) && tmpl[i+1] == '}' {
				b.WriteByte('}')
				i++
				continue
			}
			return "", fmt.Errorf("%w: single '}' at offset %d", common.ErrTemplateRender, i)
		default:
			b.WriteByte(c)
		}
	}
	return b.String(), nil
}

func validName(name string) bool {
	if name == "" {
		return false
	}
	for i, r := range name {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}

func toString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case nil:
		return "None"
	default:
		return fmt.Sprint(t)
	}
}

// ParseChat 将渲染后的 chat 模板解析为消息列表；先按 JSON 解析，失败再按 YAML
func ParseChat(rendered string) ([]llm.Message, error) {
	var msgs []llm.Message
	jsonErr := json.Unmarshal([]byte(rendered), &msgs)
	if jsonErr != nil {
		msgs = nil
		if yamlErr := yaml.Unmarshal([]byte(rendered), &msgs); yamlErr != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrMalformedChatTemplate, jsonErr)
		}
	}
	if len(msgs) == 0 {
		return nil, fmt.Errorf("%w: no messages", common.ErrMalformedChatTemplate)
	}
	for i, m := range msgs {
		if m.Role == "" {
			return nil, fmt.Errorf("%w: message %d has no role", common.ErrMalformedChatTemplate, i)
		}
	}
	return msgs, nil
}
