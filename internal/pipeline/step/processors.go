package step

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"datagen-platform/internal/pipeline/common"
	"datagen-platform/internal/pipeline/extract"
)

// OutputProcessor 将抽取后的文本转为结构化结果
type OutputProcessor func(text string) (interface{}, error)

// Validator 判断结果是否可接受；返回 nil 表示接受，非 nil 为拒绝原因
type Validator func(result interface{}, input common.Record) error

// Identity 原样返回文本
func Identity(text string) (interface{}, error) { return text, nil }

// Trim 去掉首尾空白
func Trim(text string) (interface{}, error) { return strings.TrimSpace(text), nil }

// JSON 将文本解析为 JSON 值；容忍 ```json 代码块包裹
func JSON(text string) (interface{}, error) {
	body := strings.TrimSpace(text)
	if strings.HasPrefix(body, "```") {
		body = strings.TrimPrefix(body, "```json")
		body = strings.TrimPrefix(body, "```")
		body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	}
	var v interface{}
	if err := json.Unmarshal([]byte(body), &v); err != nil {
		return nil, fmt.Errorf("parse json result: %w", err)
	}
	return v, nil
}

// StepsProcessor 抽取指定编号的 "Step N." 分段，每段一行
func StepsProcessor(steps ...int) OutputProcessor {
	ex := extract.NewSteps(steps...)
	return func(text string) (interface{}, error) {
		return ex.Join(text), nil
	}
}

// ProcessorByName 按名称取内置输出处理器
func ProcessorByName(name string) (OutputProcessor, error) {
	switch strings.ToLower(name) {
	case "", "identity":
		return Identity, nil
	case "trim":
		return Trim, nil
	case "json":
		return JSON, nil
	case "steps":
		return StepsProcessor(), nil
	default:
		return nil, fmt.Errorf("unknown output processor %q", name)
	}
}

// AcceptAll 接受任何结果
func AcceptAll(result interface{}, input common.Record) error { return nil }

// NonEmpty 拒绝 nil、空白字符串与空集合
func NonEmpty(result interface{}, input common.Record) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	if s, ok := result.(string); ok {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("result is blank")
		}
		return nil
	}
	v := reflect.ValueOf(result)
	switch v.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return fmt.Errorf("result is empty")
		}
	}
	return nil
}

// ValidatorByName 按名称取内置校验函数
func ValidatorByName(name string) (Validator, error) {
	switch strings.ToLower(name) {
	case "", "any", "accept_all":
		return AcceptAll, nil
	case "nonempty", "non_empty":
		return NonEmpty, nil
	default:
		return nil, fmt.Errorf("unknown validator %q", name)
	}
}
