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

package pipeline

import (
	"fmt"
	"strings"

	"hitl-chat/internal/chat"
	"hitl-chat/internal/tool"
)

// DefaultPersona 未配置 chat.system_prompt 时使用的人设
const DefaultPersona = `You are a helpful commerce assistant. Be concise and friendly.
Some tools require the user's explicit confirmation before they run; when you call one, wait for the user's decision instead of assuming the outcome.
If a tool result starts with "Error", explain the problem to the user plainly and do not retry the same call.`

// BuildSystemPrompt 人设加可用工具清单
func BuildSystemPrompt(persona string, defs []*tool.Definition, confirm map[string]bool) string {
	if persona == "" {
		persona = DefaultPersona
	}
	var b strings.Builder
	b.WriteString(persona)
	if len(defs) == 0 {
		return b.String()
	}
	b.WriteString("\n\nAvailable capabilities:\n")
	for _, d := range defs {
		desc := d.Description
		if desc == "" {
			desc = "no description"
		}
		fmt.Fprintf(&b, "- %s: %s", d.Name, desc)
		if confirm[d.Name] {
			b.WriteString(" (requires user confirmation)")
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// EnsureSystemMessage 对话中没有 system 消息时在最前面插入一条；已有则原样返回
func EnsureSystemMessage(msgs []chat.Message, prompt string) []chat.Message {
	if chat.HasSystemMessage(msgs) {
		return msgs
	}
	out := make([]chat.Message, 0, len(msgs)+1)
	out = append(out, chat.Message{ID: "system", Role: chat.RoleSystem, Parts: []chat.Part{chat.TextPart(prompt)}})
	return append(out, msgs...)
}
