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

// 线上协议的审批哨兵字符串
const (
	ApprovalYes = "Yes, confirmed."
	ApprovalNo  = "No, denied."
)

// Decision 人工决策
type Decision int

const (
	Pending Decision = iota
	Approved
	Denied
)

func (d Decision) String() string {
	switch d {
	case Approved:
		return "approved"
	case Denied:
		return "denied"
	}
	return "pending"
}

// Sentinel 决策对应的线上字符串；Pending 为空串
func (d Decision) Sentinel() string {
	switch d {
	case Approved:
		return ApprovalYes
	case Denied:
		return ApprovalNo
	}
	return ""
}

// DecisionOf 从工具段 output 解析决策
func DecisionOf(output any) Decision {
	s, ok := output.(string)
	if !ok {
		return Pending
	}
	switch s {
	case ApprovalYes:
		return Approved
	case ApprovalNo:
		return Denied
	}
	return Pending
}

// IsAwaitingConfirmation 工具段是否在等待人工决策：
// 工具属于确认集合、状态为 input-available、尚无结果且尚无决策
func IsAwaitingConfirmation(p Part, confirm map[string]bool) bool {
	return p.Type == PartTool &&
		confirm[p.ToolName] &&
		p.State == StateInputAvailable &&
		!p.HasOutput() &&
		p.Decision == Pending
}

// HasPendingConfirmation 对话中是否存在等待人工决策的工具段
func HasPendingConfirmation(msgs []Message, confirm map[string]bool) bool {
	for _, m := range msgs {
		for _, p := range m.Parts {
			if IsAwaitingConfirmation(p, confirm) {
				return true
			}
		}
	}
	return false
}
