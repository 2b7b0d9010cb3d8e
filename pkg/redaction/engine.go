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

package redaction

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"reflect"
	"sort"
	"strings"
	"sync"
)

// Observer 每次替换后回调，供指标统计
type Observer func(category string, count int)

// Engine PII 脱敏引擎
type Engine struct {
	rules    []Rule
	logger   *slog.Logger
	observer Observer
}

// Option 引擎选项
type Option func(*Engine)

// WithLogger 设置失败日志输出
func WithLogger(l *slog.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// WithObserver 设置命中回调
func WithObserver(o Observer) Option {
	return func(e *Engine) { e.observer = o }
}

// NewEngine 创建脱敏引擎；rules 应已由 ParseRules 编译排序
func NewEngine(rules []Rule, opts ...Option) *Engine {
	e := &Engine{rules: rules, logger: slog.Default()}
	for _, o := range opts {
		o(e)
	}
	return e
}

var (
	defaultOnce   sync.Once
	defaultEngine *Engine
)

// Default 使用内置规则的共享引擎
func Default() *Engine {
	defaultOnce.Do(func() {
		rules, err := DefaultRules()
		if err != nil {
			panic(err)
		}
		defaultEngine = NewEngine(rules)
	})
	return defaultEngine
}

// Redact 使用内置规则脱敏文本
func Redact(text string) string { return Default().Redact(text) }

// RedactDeep 使用内置规则递归脱敏
func RedactDeep(v any) any { return Default().RedactDeep(v) }

type span struct {
	start, end  int
	placeholder string
	category    string
}

// Redact 找出所有类别的全部匹配，按优先级提交不重叠的区间，再从尾部向前替换。
// 内部异常时原样返回输入。
func (e *Engine) Redact(text string) (out string) {
	if e == nil || text == "" {
		return text
	}
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("PII 脱敏失败，返回原文", "error", fmt.Sprint(r))
			out = text
		}
	}()

	var committed []span
	for i := range e.rules {
		rule := &e.rules[i]
		for _, re := range rule.compiled {
			for _, loc := range re.FindAllStringIndex(text, -1) {
				s, ok := rule.trim(text, loc[0], loc[1])
				if !ok || overlaps(committed, s) {
					continue
				}
				committed = append(committed, s)
			}
		}
	}
	if len(committed) == 0 {
		return text
	}

	sort.Slice(committed, func(i, j int) bool { return committed[i].start > committed[j].start })
	counts := make(map[string]int)
	out = text
	for _, s := range committed {
		out = out[:s.start] + s.placeholder + out[s.end:]
		counts[s.category]++
	}
	if e.observer != nil {
		for cat, n := range counts {
			e.observer(cat, n)
		}
	}
	return out
}

// trim 去掉区间首尾空白与结尾冒号；姓名规则额外去掉前导常用词
func (r *Rule) trim(text string, start, end int) (span, bool) {
	for start < end && isSpace(text[start]) {
		start++
	}
	for end > start && (isSpace(text[end-1]) || text[end-1] == ':') {
		end--
	}
	if r.MinWords > 0 {
		words := strings.Fields(text[start:end])
		skipped := 0
		for skipped < len(words) {
			if _, stop := r.stop[words[skipped]]; !stop {
				break
			}
			start += strings.Index(text[start:], words[skipped]) + len(words[skipped])
			skipped++
		}
		if len(words)-skipped < r.MinWords {
			return span{}, false
		}
		for start < end && isSpace(text[start]) {
			start++
		}
	}
	if start >= end {
		return span{}, false
	}
	return span{start: start, end: end, placeholder: r.Placeholder, category: r.Category}, true
}

func isSpace(b byte) bool {
	return b == ' ' || b == '\t' || b == '\n' || b == '\r'
}

func overlaps(committed []span, s span) bool {
	for _, c := range committed {
		if s.start < c.end && c.start < s.end {
			return true
		}
	}
	return false
}

// RedactDeep 递归脱敏：map/slice 中的字符串叶子逐一脱敏，数字、布尔、nil 原样保留。
// 返回新值，不修改入参。其他结构体等类型先经 JSON 转为通用结构。
func (e *Engine) RedactDeep(v any) any {
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		return e.Redact(t)
	case bool, float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, json.Number:
		return v
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			out[k] = e.RedactDeep(val)
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = e.RedactDeep(val)
		}
		return out
	case map[string]string:
		out := make(map[string]string, len(t))
		for k, val := range t {
			out[k] = e.Redact(val)
		}
		return out
	case []string:
		out := make([]string, len(t))
		for i, val := range t {
			out[i] = e.Redact(val)
		}
		return out
	case json.RawMessage:
		var generic any
		if err := json.Unmarshal(t, &generic); err != nil {
			return e.Redact(string(t))
		}
		return e.RedactDeep(generic)
	}
	switch reflect.ValueOf(v).Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Array, reflect.Pointer:
		raw, err := json.Marshal(v)
		if err != nil {
			return v
		}
		var generic any
		if err := json.Unmarshal(raw, &generic); err != nil {
			return v
		}
		return e.RedactDeep(generic)
	}
	return v
}

// Apply 按字段名规则处理结构化数据，返回副本
func (p KeyPolicy) Apply(v any) any {
	switch t := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(t))
		for k, val := range t {
			mode, hit := p.lookup(k)
			if !hit {
				out[k] = p.Apply(val)
				continue
			}
			switch mode {
			case RedactionModeRemove:
			case RedactionModeHash:
				out[k] = hashValue(fmt.Sprintf("%v", val), p.Salt)
			default:
				out[k] = "***REDACTED***"
			}
		}
		return out
	case []any:
		out := make([]any, len(t))
		for i, val := range t {
			out[i] = p.Apply(val)
		}
		return out
	}
	return v
}

func (p KeyPolicy) lookup(key string) (RedactionMode, bool) {
	if m, ok := p.Keys[key]; ok {
		return m, true
	}
	for k, m := range p.Keys {
		if strings.EqualFold(k, key) {
			return m, true
		}
	}
	return "", false
}

// hashValue 计算字段的 SHA256 hash
func hashValue(value string, salt string) string {
	h := sha256.New()
	h.Write([]byte(value))
	if salt != "" {
		h.Write([]byte(salt))
	}
	return "hash:" + hex.EncodeToString(h.Sum(nil))
}
