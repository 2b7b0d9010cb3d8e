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

package chat

import (
	"encoding/json"
	"fmt"
	"strings"
)

// PartType 消息段类型
type PartType string

const (
	PartText  PartType = "text"
	PartTool  PartType = "tool"
	PartOther PartType = "other" // 未识别的段，原样透传
)

// ToolState 工具调用状态机
type ToolState string

const (
	StateInputStreaming  ToolState = "input-streaming"
	StateInputAvailable  ToolState = "input-available"
	StateOutputAvailable ToolState = "output-available"
	StateOutputError     ToolState = "output-error"
)

// Terminal 是否为终态
func (s ToolState) Terminal() bool {
	return s == StateOutputAvailable || s == StateOutputError
}

// Part 消息段：文本段或工具段。
// 工具段的 Output 为 nil 表示尚无结果；线上的审批哨兵字符串在解码时转为 Decision。
type Part struct {
	Type PartType

	Text string

	ToolName   string
	ToolCallID string
	State      ToolState
	Input      any
	Output     any
	ErrorText  string
	Decision   Decision

	raw json.RawMessage
}

// TextPart 构造文本段
func TextPart(text string) Part {
	return Part{Type: PartText, Text: text}
}

// ToolPart 构造等待结果的工具段
func ToolPart(name, callID string, input any) Part {
	return Part{Type: PartTool, ToolName: name, ToolCallID: callID, State: StateInputAvailable, Input: input}
}

// HasOutput 是否已有真实结果（不含审批哨兵）
func (p Part) HasOutput() bool {
	return p.Output != nil || p.ErrorText != ""
}

type partWire struct {
	Type       string    `json:"type"`
	Text       string    `json:"text,omitempty"`
	ToolName   string    `json:"toolName,omitempty"`
	ToolCallID string    `json:"toolCallId,omitempty"`
	State      ToolState `json:"state,omitempty"`
	Input      any       `json:"input,omitempty"`
	Output     any       `json:"output,omitempty"`
	ErrorText  string    `json:"errorText,omitempty"`
}

// UnmarshalJSON 识别 text、tool、tool-<name>、dynamic-tool；其余类型原样保留
func (p *Part) UnmarshalJSON(data []byte) error {
	var w partWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch {
	case w.Type == "text":
		*p = Part{Type: PartText, Text: w.Text}
		return nil
	case w.Type == "tool", w.Type == "dynamic-tool", strings.HasPrefix(w.Type, "tool-"):
		name := w.ToolName
		if name == "" {
			name = strings.TrimPrefix(w.Type, "tool-")
		}
		if name == "" || name == "tool" {
			return fmt.Errorf("tool part without tool name")
		}
		*p = Part{
			Type:       PartTool,
			ToolName:   name,
			ToolCallID: w.ToolCallID,
			State:      w.State,
			Input:      w.Input,
			Output:     w.Output,
			ErrorText:  w.ErrorText,
		}
		if p.State == "" {
			p.State = StateInputAvailable
		}
		if d := DecisionOf(p.Output); d != Pending {
			p.Decision = d
			p.Output = nil
		}
		return nil
	default:
		*p = Part{Type: PartOther, raw: append(json.RawMessage(nil), data...)}
		return nil
	}
}

// MarshalJSON 工具段统一写为 tool-<name>；未决的审批结果写回哨兵字符串
func (p Part) MarshalJSON() ([]byte, error) {
	switch p.Type {
	case PartText:
		return json.Marshal(partWire{Type: "text", Text: p.Text})
	case PartTool:
		w := partWire{
			Type:       "tool-" + p.ToolName,
			ToolName:   p.ToolName,
			ToolCallID: p.ToolCallID,
			State:      p.State,
			Input:      p.Input,
			Output:     p.Output,
			ErrorText:  p.ErrorText,
		}
		if w.Output == nil && p.Decision != Pending {
			w.Output = p.Decision.Sentinel()
		}
		return json.Marshal(w)
	default:
		if len(p.raw) > 0 {
			return p.raw, nil
		}
		return []byte("null"), nil
	}
}
