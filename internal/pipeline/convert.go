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
	"encoding/json"

	"github.com/cloudwego/eino/schema"

	"hitl-chat/internal/chat"
	"hitl-chat/pkg/redaction"
)

// RedactTranscript 返回对话副本，文本段经 PII 脱敏。
// 工具段保持原样：执行器使用原始入参，发给模型时再由 ToSchemaMessages 脱敏。
func RedactTranscript(msgs []chat.Message, r *redaction.Engine) []chat.Message {
	if r == nil {
		return msgs
	}
	out := chat.CloneAll(msgs)
	for i := range out {
		for j := range out[i].Parts {
			if part := &out[i].Parts[j]; part.Type == chat.PartText {
				part.Text = r.Redact(part.Text)
			}
		}
	}
	return out
}

// ToSchemaMessages 把客户端对话转为模型输入。
// 助手消息按“文本 + 已有结果的工具调用”分段，每段生成一条带 ToolCalls 的助手消息和对应的工具消息；
// 尚无结果的工具调用不发给模型。工具入参与结果经 r 脱敏，r 为 nil 时原样发送。
func ToSchemaMessages(msgs []chat.Message, r *redaction.Engine) []*schema.Message {
	var out []*schema.Message
	for _, m := range msgs {
		switch m.Role {
		case chat.RoleSystem:
			out = append(out, schema.SystemMessage(m.Text()))
		case chat.RoleUser:
			out = append(out, schema.UserMessage(m.Text()))
		case chat.RoleAssistant:
			out = append(out, assistantMessages(m, r)...)
		}
	}
	return out
}

func assistantMessages(m chat.Message, r *redaction.Engine) []*schema.Message {
	var (
		out     []*schema.Message
		text    string
		calls   []schema.ToolCall
		results []*schema.Message
	)
	flush := func() {
		if text == "" && len(calls) == 0 {
			return
		}
		out = append(out, schema.AssistantMessage(text, calls))
		out = append(out, results...)
		text, calls, results = "", nil, nil
	}
	for _, p := range m.Parts {
		switch p.Type {
		case chat.PartText:
			if len(calls) > 0 {
				flush()
			}
			text += p.Text
		case chat.PartTool:
			if !p.HasOutput() {
				continue
			}
			calls = append(calls, schema.ToolCall{
				ID:       p.ToolCallID,
				Type:     "function",
				Function: schema.FunctionCall{Name: p.ToolName, Arguments: argumentsJSON(r.RedactDeep(p.Input))},
			})
			results = append(results, schema.ToolMessage(r.Redact(outputText(p)), p.ToolCallID))
		}
	}
	flush()
	return out
}

func argumentsJSON(input any) string {
	switch t := input.(type) {
	case nil:
		return "{}"
	case string:
		if json.Valid([]byte(t)) {
			return t
		}
	}
	raw, err := json.Marshal(input)
	if err != nil {
		return "{}"
	}
	return string(raw)
}

// outputText 工具结果的文本形式
func outputText(p chat.Part) string {
	if p.State == chat.StateOutputError || (p.Output == nil && p.ErrorText != "") {
		return "Error: " + p.ErrorText
	}
	return stringify(p.Output)
}

func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return ""
	}
	return string(raw)
}
