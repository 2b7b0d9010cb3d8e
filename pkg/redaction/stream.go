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

import "strings"

const (
	// sentenceHold 缓冲超过该长度后允许在句末切分
	sentenceHold = 80
	// maxHold 缓冲超过该长度后允许在任意空白处切分
	maxHold = 256
)

// StreamRedactor 对流式增量文本脱敏。
// 增量先进入缓冲，只在安全边界处释放，保证跨增量的 PII 仍能被整体匹配。
// 非并发安全，每个流一个实例。
type StreamRedactor struct {
	engine *Engine
	buf    strings.Builder
}

// NewStreamRedactor 创建流式脱敏器；engine 为 nil 时原样透传
func NewStreamRedactor(engine *Engine) *StreamRedactor {
	return &StreamRedactor{engine: engine}
}

// Write 追加增量，返回可以安全输出的已脱敏文本（可能为空）
func (s *StreamRedactor) Write(delta string) string {
	if s.engine == nil {
		return delta
	}
	s.buf.WriteString(delta)
	pending := s.buf.String()
	cut := safeCut(pending)
	if cut <= 0 {
		return ""
	}
	s.buf.Reset()
	s.buf.WriteString(pending[cut:])
	return s.engine.Redact(pending[:cut])
}

// Flush 释放缓冲中剩余的文本
func (s *StreamRedactor) Flush() string {
	pending := s.buf.String()
	s.buf.Reset()
	if s.engine == nil {
		return pending
	}
	return s.engine.Redact(pending)
}

// safeCut 返回可释放前缀的长度，0 表示继续缓冲
func safeCut(p string) int {
	if i := strings.LastIndexByte(p, '\n'); i >= 0 {
		return i + 1
	}
	if len(p) >= sentenceHold {
		best := -1
		for _, sep := range []string{". ", "! ", "? "} {
			if i := strings.LastIndex(p, sep); i > best {
				best = i
			}
		}
		if best >= 0 {
			return best + 2
		}
	}
	if len(p) >= maxHold {
		if i := strings.LastIndexAny(p, " \t"); i > 0 {
			return i + 1
		}
		return len(p)
	}
	return 0
}
