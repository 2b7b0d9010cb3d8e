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

// Package chat 定义对话消息模型与线上 JSON 编码。
// 服务端无状态：每次请求由客户端提交完整对话。
package chat

import (
	"encoding/json"
	"fmt"
)

// Role 消息角色
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleSystem    Role = "system"
)

// Message 一条对话消息
type Message struct {
	ID    string `json:"id,omitempty"`
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

type messageWire struct {
	ID      string          `json:"id,omitempty"`
	Role    Role            `json:"role"`
	Parts   []Part          `json:"parts"`
	Content json.RawMessage `json:"content,omitempty"`
}

// UnmarshalJSON 兼容旧格式：无 parts 时把 content 字符串视为单个文本段
func (m *Message) UnmarshalJSON(data []byte) error {
	var w messageWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Role {
	case RoleUser, RoleAssistant, RoleSystem:
	default:
		return fmt.Errorf("unknown message role %q", w.Role)
	}
	m.ID, m.Role, m.Parts = w.ID, w.Role, w.Parts
	if len(m.Parts) == 0 && len(w.Content) > 0 {
		var text string
		if err := json.Unmarshal(w.Content, &text); err == nil && text != "" {
			m.Parts = []Part{TextPart(text)}
		}
	}
	return nil
}

// Text 拼接消息中的全部文本段
func (m Message) Text() string {
	var out string
	for _, p := range m.Parts {
		if p.Type == PartText {
			out += p.Text
		}
	}
	return out
}

// ToolParts 返回消息中的工具段下标
func (m Message) ToolParts() []int {
	var idx []int
	for i, p := range m.Parts {
		if p.Type == PartTool {
			idx = append(idx, i)
		}
	}
	return idx
}

// Clone 深拷贝 parts 切片（Input/Output 按引用共享）
func (m Message) Clone() Message {
	parts := make([]Part, len(m.Parts))
	copy(parts, m.Parts)
	m.Parts = parts
	return m
}

// CloneAll 拷贝对话
func CloneAll(msgs []Message) []Message {
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m.Clone()
	}
	return out
}

// HasSystemMessage 对话中是否已有 system 消息
func HasSystemMessage(msgs []Message) bool {
	for _, m := range msgs {
		if m.Role == RoleSystem {
			return true
		}
	}
	return false
}
