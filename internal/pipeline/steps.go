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
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"hitl-chat/internal/chat"
	"hitl-chat/internal/tool"
	"hitl-chat/pkg/redaction"
)

// 结束原因
const (
	FinishStop      = "stop"
	FinishToolCalls = "tool-calls"
)

// summary data-summary 事件内容
type summary struct {
	Steps                int      `json:"steps"`
	ToolCalls            []string `json:"toolCalls"`
	PendingConfirmations []string `json:"pendingConfirmations"`
	FinishReason         string   `json:"finishReason"`
}

// stepSink 单步输出的去向；数据流写事件，纯文本流只写文本
type stepSink interface {
	startStep() error
	startText() error
	text(delta string) error
	endText() error
	toolInputStart(id, name string) error
	toolInputDelta(id, delta string) error
	toolInputAvailable(id, name string, input any) error
	toolOutput(id string, output any) error
	finishStep() error
}

type toolCall struct {
	id      string
	name    string
	args    strings.Builder
	started bool
	input   any
}

type stepResult struct {
	text  string
	calls []*toolCall
}

// assistantMessage 本步输出回填到历史，文本与入参同样脱敏
func (r stepResult) assistantMessage(e *redaction.Engine) *schema.Message {
	calls := make([]schema.ToolCall, 0, len(r.calls))
	for _, c := range r.calls {
		calls = append(calls, schema.ToolCall{
			ID:       c.id,
			Type:     "function",
			Function: schema.FunctionCall{Name: c.name, Arguments: argumentsJSON(e.RedactDeep(c.input))},
		})
	}
	return schema.AssistantMessage(e.Redact(r.text), calls)
}

// runSteps model-streaming：循环调用模型直到不再调用工具、遇到需确认的工具或达到步数上限
func (p *Pipeline) runSteps(ctx context.Context, msgs []chat.Message, ts toolset, sink stepSink, hitlEnabled bool) (summary, error) {
	sum := summary{ToolCalls: []string{}, PendingConfirmations: []string{}, FinishReason: FinishToolCalls}
	history := ToSchemaMessages(msgs, p.opts.Redactor)

	infos := ts.reg.ToolInfos(func(d *tool.Definition) bool {
		return hitlEnabled || !ts.confirm[d.Name]
	})
	bound := p.model
	if len(infos) > 0 {
		var err error
		if bound, err = p.model.WithTools(infos); err != nil {
			return sum, NewPipelineError(StageModelStream, "绑定工具失败", err)
		}
	}

	for step := 0; step < p.opts.MaxSteps; step++ {
		sum.Steps++
		if err := sink.startStep(); err != nil {
			return sum, err
		}
		res, err := p.streamStep(ctx, bound, history, sink)
		if err != nil {
			return sum, err
		}
		if len(res.calls) == 0 {
			sum.FinishReason = FinishStop
			return sum, sink.finishStep()
		}

		history = append(history, res.assistantMessage(p.opts.Redactor))
		pending := false
		for _, c := range res.calls {
			sum.ToolCalls = append(sum.ToolCalls, c.name)
			if ts.confirm[c.name] && hitlEnabled {
				pending = true
				sum.PendingConfirmations = append(sum.PendingConfirmations, c.id)
				continue
			}
			var output any
			exec := ts.executorFor(c.name)
			if exec == nil || ts.confirm[c.name] {
				output = "Error: No executor found for tool " + c.name
			} else {
				output, _ = p.orchestrator.RunAuto(ctx, c.name, c.id, c.input, exec)
			}
			if err := sink.toolOutput(c.id, output); err != nil {
				return sum, err
			}
			history = append(history, schema.ToolMessage(stringify(output), c.id))
		}
		if err := sink.finishStep(); err != nil {
			return sum, err
		}
		if pending {
			return sum, nil
		}
	}
	p.logger.Warn("达到单轮最大步数", "maxSteps", p.opts.MaxSteps)
	return sum, nil
}

// streamStep 读取一次模型流式输出，转发文本增量与工具调用事件
func (p *Pipeline) streamStep(ctx context.Context, m model.BaseChatModel, history []*schema.Message, sink stepSink) (stepResult, error) {
	sr, err := m.Stream(ctx, history)
	if err != nil {
		return stepResult{}, NewPipelineError(StageModelStream, "模型调用失败", err)
	}
	defer sr.Close()

	var (
		text     strings.Builder
		textOpen bool
		acc      callAccumulator
	)
	for {
		if err := ctx.Err(); err != nil {
			return stepResult{}, err
		}
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return stepResult{}, NewPipelineError(StageModelStream, "读取模型输出失败", err)
		}
		if chunk == nil {
			continue
		}
		if chunk.Content != "" {
			if !textOpen {
				textOpen = true
				if err := sink.startText(); err != nil {
					return stepResult{}, err
				}
			}
			text.WriteString(chunk.Content)
			if err := sink.text(chunk.Content); err != nil {
				return stepResult{}, err
			}
		}
		for _, tc := range chunk.ToolCalls {
			c := acc.add(tc)
			c.args.WriteString(tc.Function.Arguments)
			if !c.started && c.id != "" && c.name != "" {
				c.started = true
				if err := sink.toolInputStart(c.id, c.name); err != nil {
					return stepResult{}, err
				}
				// 开始前已收到的参数一次补发
				if c.args.Len() > 0 {
					if err := sink.toolInputDelta(c.id, c.args.String()); err != nil {
						return stepResult{}, err
					}
				}
				continue
			}
			if c.started && tc.Function.Arguments != "" {
				if err := sink.toolInputDelta(c.id, tc.Function.Arguments); err != nil {
					return stepResult{}, err
				}
			}
		}
	}
	if textOpen {
		if err := sink.endText(); err != nil {
			return stepResult{}, err
		}
	}

	for _, c := range acc.calls {
		if c.id == "" {
			c.id = "call_" + uuid.New().String()
		}
		if !c.started {
			c.started = true
			if err := sink.toolInputStart(c.id, c.name); err != nil {
				return stepResult{}, err
			}
		}
		c.input = parseArguments(c.args.String())
		if err := sink.toolInputAvailable(c.id, c.name, c.input); err != nil {
			return stepResult{}, err
		}
	}
	return stepResult{text: text.String(), calls: acc.calls}, nil
}

// callAccumulator 按 Index（无 Index 时按 ID）拼接分片到达的工具调用
type callAccumulator struct {
	calls   []*toolCall
	byIndex map[int]*toolCall
}

func (a *callAccumulator) add(tc schema.ToolCall) *toolCall {
	var c *toolCall
	switch {
	case tc.Index != nil:
		if a.byIndex == nil {
			a.byIndex = make(map[int]*toolCall)
		}
		c = a.byIndex[*tc.Index]
		if c == nil {
			c = a.newCall()
			a.byIndex[*tc.Index] = c
		}
	case tc.ID != "":
		for _, existing := range a.calls {
			if existing.id == tc.ID {
				c = existing
				break
			}
		}
		if c == nil {
			c = a.newCall()
		}
	case len(a.calls) > 0:
		c = a.calls[len(a.calls)-1]
	default:
		c = a.newCall()
	}
	if c.id == "" {
		c.id = tc.ID
	}
	if c.name == "" {
		c.name = tc.Function.Name
	}
	return c
}

func (a *callAccumulator) newCall() *toolCall {
	c := &toolCall{}
	a.calls = append(a.calls, c)
	return c
}

// parseArguments 解析模型给出的参数 JSON；空串视为空对象，非法 JSON 原样保留
func parseArguments(raw string) any {
	if strings.TrimSpace(raw) == "" {
		return map[string]any{}
	}
	var v any
	if err := json.Unmarshal([]byte(raw), &v); err != nil {
		return raw
	}
	return v
}
