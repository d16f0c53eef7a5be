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

package common

// Record 一条输入数据或输出记录：字段名 -> 值（JSON 对象）
type Record map[string]interface{}

// Clone 浅拷贝 Record；输出记录总是在输入的拷贝上追加结果字段
func (r Record) Clone() Record {
	out := make(Record, len(r)+1)
	for k, v := range r {
		out[k] = v
	}
	return out
}

// With 返回追加了 key=value 的拷贝，不修改原记录
func (r Record) With(key string, value interface{}) Record {
	out := r.Clone()
	out[key] = value
	return out
}

// WorkItem 一个待处理单元：输入数据 + 稳定的整数下标（即 checkpoint 键）
type WorkItem struct {
	Index int
	Data  Record
}

// Arguments 模板渲染参数
type Arguments map[string]interface{}

// Merge 合并多组参数，靠后的覆盖靠前的；总是返回新 map
func Merge(sets ...map[string]interface{}) Arguments {
	n := 0
	for _, s := range sets {
		n += len(s)
	}
	out := make(Arguments, n)
	for _, s := range sets {
		for k, v := range s {
			out[k] = v
		}
	}
	return out
}
