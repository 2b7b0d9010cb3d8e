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

// EventType 结构化流事件类型
type EventType string

const (
	EventStart               EventType = "start"
	EventStartStep           EventType = "start-step"
	EventTextStart           EventType = "text-start"
	EventTextDelta           EventType = "text-delta"
	EventTextEnd             EventType = "text-end"
	EventToolInputStart      EventType = "tool-input-start"
	EventToolInputDelta      EventType = "tool-input-delta"
	EventToolInputAvailable  EventType = "tool-input-available"
	EventToolOutputAvailable EventType = "tool-output-available"
	EventToolOutputError     EventType = "tool-output-error"
	EventFinishStep          EventType = "finish-step"
	EventFinish              EventType = "finish"
	EventError               EventType = "error"
	EventDataSummary         EventType = "data-summary"
)

// Event 结构化流中的一条事件，按 JSON 编码为 data: 帧
type Event struct {
	Type           EventType `json:"type"`
	MessageID      string    `json:"messageId,omitempty"`
	ID             string    `json:"id,omitempty"`
	Delta          string    `json:"delta,omitempty"`
	ToolCallID     string    `json:"toolCallId,omitempty"`
	ToolName       string    `json:"toolName,omitempty"`
	InputTextDelta string    `json:"inputTextDelta,omitempty"`
	Input          any       `json:"input,omitempty"`
	Output         any       `json:"output,omitempty"`
	ErrorText      string    `json:"errorText,omitempty"`
	FinishReason   string    `json:"finishReason,omitempty"`
	Data           any       `json:"data,omitempty"`
}

// ToolOutputEvent 工具结果事件
func ToolOutputEvent(p Part) Event {
	if p.State == StateOutputError {
		return Event{Type: EventToolOutputError, ToolCallID: p.ToolCallID, ErrorText: p.ErrorText}
	}
	return Event{Type: EventToolOutputAvailable, ToolCallID: p.ToolCallID, Output: p.Output}
}
