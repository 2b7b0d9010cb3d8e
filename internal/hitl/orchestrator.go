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

// Package hitl 在每个请求开始时处理客户端带回的人工决策：
// 对已确认的工具调用执行真实工具，对拒绝的写入固定错误串，其余原样透传。
// 服务端不保存任何跨请求状态，挂起等待由客户端“不发下一次请求”实现。
package hitl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"hitl-chat/internal/audit"
	"hitl-chat/internal/chat"
	"hitl-chat/internal/tool"
	"hitl-chat/internal/tool/registry"
	"hitl-chat/pkg/metrics"
	"hitl-chat/pkg/redaction"
	"hitl-chat/pkg/tracing"
)

// RemoteTools 远端工具来源（通常为当前请求凭证对应的网关）
type RemoteTools interface {
	HasTool(name string) bool
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
}

// Turn 一次请求的处理输入
type Turn struct {
	Messages []chat.Message
	// Tools 本次请求可用的工具；为 nil 时使用 Orchestrator 的静态注册表
	Tools *registry.Registry
	// Remote 可为 nil
	Remote   RemoteTools
	Identity string
}

// Emit 已解决工具调用的旁路事件
type Emit func(chat.Event)

// credentialKeys 模型回显的入参中一律剔除的凭证字段；远端调用只用请求自带的凭证
var credentialKeys = redaction.KeyPolicy{Keys: map[string]redaction.RedactionMode{
	"credentials":              redaction.RedactionModeRemove,
	"commercetoolsCredentials": redaction.RedactionModeRemove,
	"clientId":                 redaction.RedactionModeRemove,
	"clientSecret":             redaction.RedactionModeRemove,
	"client_secret":            redaction.RedactionModeRemove,
	"accessToken":              redaction.RedactionModeRemove,
	"access_token":             redaction.RedactionModeRemove,
	"apiKey":                   redaction.RedactionModeRemove,
	"api_key":                  redaction.RedactionModeRemove,
	"password":                 redaction.RedactionModeRemove,
	"authorization":            redaction.RedactionModeRemove,
}}

// Orchestrator 人工确认编排器
type Orchestrator struct {
	tools    *registry.Registry
	redactor *redaction.Engine
	audit    audit.Store
	logger   *slog.Logger
}

// Option 可选配置
type Option func(*Orchestrator)

// WithRedactor 对工具结果做 PII 脱敏；不设置则原样保存
func WithRedactor(e *redaction.Engine) Option {
	return func(o *Orchestrator) { o.redactor = e }
}

// WithAudit 记录每次决策
func WithAudit(s audit.Store) Option {
	return func(o *Orchestrator) { o.audit = s }
}

// WithLogger 设置日志
func WithLogger(l *slog.Logger) Option {
	return func(o *Orchestrator) { o.logger = l }
}

// New 创建编排器
func New(tools *registry.Registry, opts ...Option) *Orchestrator {
	o := &Orchestrator{tools: tools, logger: slog.Default()}
	for _, opt := range opts {
		opt(o)
	}
	if o.tools == nil {
		o.tools = registry.New()
	}
	return o
}

// ProcessTurn 处理最后一条消息中带有人工决策的工具调用，返回更新后的消息副本。
// 更早的消息视为已解决，原样返回。已有输出的工具调用不会再次执行，也不会再次发事件。
func (o *Orchestrator) ProcessTurn(ctx context.Context, turn Turn, emit Emit) ([]chat.Message, error) {
	msgs := chat.CloneAll(turn.Messages)
	if len(msgs) == 0 {
		return msgs, nil
	}
	tools := turn.Tools
	if tools == nil {
		tools = o.tools
	}

	last := &msgs[len(msgs)-1]
	for _, i := range last.ToolParts() {
		if err := ctx.Err(); err != nil {
			return msgs, err
		}
		p := &last.Parts[i]
		if !needsResolution(*p) {
			continue
		}
		o.resolve(ctx, p, tools, turn)
		if emit != nil {
			emit(chat.ToolOutputEvent(*p))
		}
	}
	return msgs, nil
}

// needsResolution 带有决策且尚未写入结果的工具调用
func needsResolution(p chat.Part) bool {
	return p.Type == chat.PartTool &&
		p.Decision != chat.Pending &&
		p.State != chat.StateInputStreaming &&
		!p.HasOutput()
}

func (o *Orchestrator) resolve(ctx context.Context, p *chat.Part, tools *registry.Registry, turn Turn) {
	start := time.Now()
	outcome := audit.OutcomeOK
	decision := p.Decision

	switch decision {
	case chat.Denied:
		outcome = audit.OutcomeDenied
		p.Output = fmt.Sprintf("Error: User denied execution of %s", p.ToolName)
	case chat.Approved:
		exec := o.executorFor(p.ToolName, tools, turn.Remote)
		if exec == nil {
			outcome = audit.OutcomeUnknown
			p.Output = fmt.Sprintf("Error: No executor found for tool %s", p.ToolName)
			o.logger.Warn("确认的工具无执行器", "tool", p.ToolName, "toolCallId", p.ToolCallID)
			break
		}
		result, err := o.run(ctx, p, exec)
		if err != nil {
			outcome = audit.OutcomeError
			p.Output = fmt.Sprintf("Error executing tool %s: %s", p.ToolName, o.redactText(err.Error()))
			o.logger.Warn("工具执行失败", "tool", p.ToolName, "toolCallId", p.ToolCallID, "error", err)
			break
		}
		p.Output = o.redactValue(result)
	}
	p.State = chat.StateOutputAvailable
	p.ErrorText = ""

	elapsed := time.Since(start)
	metrics.HITLDecisionsTotal.WithLabelValues(p.ToolName, decision.String()).Inc()
	if o.audit != nil {
		entry := audit.Entry{
			ToolCallID: p.ToolCallID,
			ToolName:   p.ToolName,
			Decision:   decision.String(),
			Outcome:    outcome,
			Identity:   turn.Identity,
			Duration:   elapsed,
		}
		if err := o.audit.Record(ctx, entry); err != nil {
			o.logger.Warn("审计记录写入失败", "toolCallId", p.ToolCallID, "error", err)
		}
	}
	o.logger.Info("人工决策已处理", "tool", p.ToolName, "toolCallId", p.ToolCallID, "decision", decision.String(), "outcome", outcome, "duration", elapsed)
}

// executorFor 确认后执行顺序：OnApprove，Execute，远端同名工具
func (o *Orchestrator) executorFor(name string, tools *registry.Registry, remote RemoteTools) tool.Executor {
	if def, ok := tools.Get(name); ok {
		if exec := def.ApprovedExecutor(); exec != nil {
			return exec
		}
	}
	if remote != nil && remote.HasTool(name) {
		return func(ctx context.Context, input map[string]any) (any, error) {
			return remote.CallTool(ctx, name, input)
		}
	}
	return nil
}

func (o *Orchestrator) run(ctx context.Context, p *chat.Part, exec tool.Executor) (result any, err error) {
	ctx, span := tracing.StartToolSpan(ctx, p.ToolName, p.ToolCallID)
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
		status := "ok"
		if err != nil {
			status = "error"
		}
		metrics.ToolDuration.WithLabelValues(p.ToolName, status).Observe(time.Since(start).Seconds())
		tracing.EndSpan(span, err)
	}()
	return exec(ctx, ToolInput(p.Input))
}

// ToolInput 把工具调用入参转为执行器使用的对象，并剔除凭证字段
func ToolInput(input any) map[string]any {
	var m map[string]any
	switch t := input.(type) {
	case nil:
		return map[string]any{}
	case map[string]any:
		m = t
	case string:
		if err := json.Unmarshal([]byte(t), &m); err != nil {
			return map[string]any{}
		}
	default:
		raw, err := json.Marshal(t)
		if err != nil || json.Unmarshal(raw, &m) != nil {
			return map[string]any{}
		}
	}
	if m == nil {
		return map[string]any{}
	}
	return credentialKeys.Apply(m).(map[string]any)
}

func (o *Orchestrator) redactValue(v any) any {
	if o.redactor == nil {
		return v
	}
	return o.redactor.RedactDeep(v)
}

func (o *Orchestrator) redactText(s string) string {
	if o.redactor == nil {
		return s
	}
	return o.redactor.Redact(s)
}

// RunAuto 执行自动工具调用并返回写入消息的输出；执行失败时输出为错误串，不中断本轮
func (o *Orchestrator) RunAuto(ctx context.Context, name, callID string, input any, exec tool.Executor) (output any, failed bool) {
	p := &chat.Part{Type: chat.PartTool, ToolName: name, ToolCallID: callID, Input: input}
	result, err := o.run(ctx, p, exec)
	if err != nil {
		o.logger.Warn("工具执行失败", "tool", name, "toolCallId", callID, "error", err)
		return fmt.Sprintf("Error executing tool %s: %s", name, o.redactText(err.Error())), true
	}
	return o.redactValue(result), false
}
