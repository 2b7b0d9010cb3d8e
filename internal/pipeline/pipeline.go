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

// Package pipeline 驱动一次对话请求：补 system 消息，处理人工决策，流式调用模型并执行自动工具，
// 以纯文本或结构化事件流写回客户端。
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/google/uuid"

	"hitl-chat/internal/chat"
	"hitl-chat/internal/gateway"
	"hitl-chat/internal/hitl"
	"hitl-chat/internal/tool"
	"hitl-chat/internal/tool/registry"
	"hitl-chat/pkg/metrics"
	"hitl-chat/pkg/redaction"
	"hitl-chat/pkg/tracing"
)

const defaultMaxSteps = 5

// GatewayProvider 按凭证返回已连接的远端工具网关
type GatewayProvider interface {
	Get(ctx context.Context, creds gateway.Credentials) (*gateway.Gateway, error)
}

// Request 一次对话请求
type Request struct {
	Messages []chat.Message
	// Credentials 为 nil 时使用默认平台凭证（若有）
	Credentials    *gateway.Credentials
	IncludeSummary bool
}

// Options 管线配置
type Options struct {
	Persona                string
	MaxSteps               int
	ConfirmationRequired   []string // 额外需要人工确认的工具名
	ConfirmRemoteMutations bool
	DefaultCredentials     gateway.Credentials
	Redactor               *redaction.Engine // nil 表示不脱敏
	Logger                 *slog.Logger
}

// Pipeline 对话管线，可被多个请求并发使用
type Pipeline struct {
	model        model.ToolCallingChatModel
	tools        *registry.Registry
	gateways     GatewayProvider
	orchestrator *hitl.Orchestrator
	opts         Options
	logger       *slog.Logger
}

// New 创建管线；gateways 可为 nil（不接入远端工具）
func New(m model.ToolCallingChatModel, tools *registry.Registry, gateways GatewayProvider, orchestrator *hitl.Orchestrator, opts Options) *Pipeline {
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = defaultMaxSteps
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if tools == nil {
		tools = registry.New()
	}
	if orchestrator == nil {
		orchestrator = hitl.New(tools, hitl.WithRedactor(opts.Redactor), hitl.WithLogger(opts.Logger))
	}
	return &Pipeline{
		model:        m,
		tools:        tools,
		gateways:     gateways,
		orchestrator: orchestrator,
		opts:         opts,
		logger:       opts.Logger,
	}
}

// toolset 单个请求可用的工具
type toolset struct {
	reg       *registry.Registry
	remote    hitl.RemoteTools
	remoteErr *gateway.ConnectError // 有凭证但网关连接失败
	identity  string
	confirm   map[string]bool
}

func (p *Pipeline) resolveTools(ctx context.Context, creds *gateway.Credentials) toolset {
	ts := toolset{reg: p.tools}
	c := p.opts.DefaultCredentials
	if creds != nil && !creds.IsZero() {
		c = *creds
	}
	if p.gateways != nil && !c.IsZero() {
		gw, err := p.gateways.Get(ctx, c)
		if err != nil {
			ts.remoteErr = connectError(err)
			p.logger.Warn("远端工具不可用，本轮仅使用内置工具", "credentials", c, "kind", ts.remoteErr.Kind, "error", err)
		} else {
			ts.reg = p.tools.With(gw.Definitions(p.opts.ConfirmRemoteMutations)...)
			ts.remote = gw
			ts.identity = c.Identity()
		}
	}
	ts.confirm = ts.reg.ConfirmationSet(p.opts.ConfirmationRequired...)
	return ts
}

func connectError(err error) *gateway.ConnectError {
	var ce *gateway.ConnectError
	if errors.As(err, &ce) {
		return ce
	}
	return &gateway.ConnectError{Kind: gateway.Classify(err), Err: err}
}

// awaitsRemote 最后一条消息中是否有已批准、尚未执行且本地未注册的工具调用
func (ts toolset) awaitsRemote(msgs []chat.Message) bool {
	if len(msgs) == 0 {
		return false
	}
	last := msgs[len(msgs)-1]
	for _, i := range last.ToolParts() {
		part := last.Parts[i]
		if part.Decision != chat.Approved || part.HasOutput() || part.State == chat.StateInputStreaming {
			continue
		}
		if _, ok := ts.reg.Get(part.ToolName); !ok {
			return true
		}
	}
	return false
}

// ToolInfo 对外展示的工具摘要
type ToolInfo struct {
	Name                 string `json:"name"`
	Description          string `json:"description"`
	Source               string `json:"source"`
	RequiresConfirmation bool   `json:"requiresConfirmation"`
}

// Tools 列出该凭证下可用的工具；creds 为空时使用默认凭证
func (p *Pipeline) Tools(ctx context.Context, creds *gateway.Credentials) []ToolInfo {
	ts := p.resolveTools(ctx, creds)
	defs := ts.reg.List()
	out := make([]ToolInfo, 0, len(defs))
	for _, d := range defs {
		out = append(out, ToolInfo{
			Name:                 d.Name,
			Description:          d.Description,
			Source:               d.Source,
			RequiresConfirmation: ts.confirm[d.Name],
		})
	}
	return out
}

// NeedsConfirmation 工具是否需要人工确认（不建立远端连接）
func (p *Pipeline) NeedsConfirmation(name string) bool {
	if def, ok := p.tools.Get(name); ok && def.RequiresConfirmation() {
		return true
	}
	for _, n := range p.opts.ConfirmationRequired {
		if n == name {
			return true
		}
	}
	if _, builtin := p.tools.Get(name); !builtin && p.opts.ConfirmRemoteMutations {
		return gateway.IsMutating(name)
	}
	return false
}

// PendingConfirmation 对话中是否仍有等待人工决策的工具调用
func (p *Pipeline) PendingConfirmation(msgs []chat.Message) bool {
	for _, m := range msgs {
		for _, part := range m.Parts {
			if part.Type == chat.PartTool && part.State == chat.StateInputAvailable &&
				!part.HasOutput() && part.Decision == chat.Pending && p.NeedsConfirmation(part.ToolName) {
				return true
			}
		}
	}
	return false
}

// prepare received → system-message-ensured → tool-calls-resolved
func (p *Pipeline) prepare(ctx context.Context, req Request, ts toolset, emit hitl.Emit) ([]chat.Message, error) {
	if len(req.Messages) == 0 {
		return nil, NewPipelineError(StageReceived, "请求无消息", ErrEmptyConversation)
	}
	// 网关不可用时不消耗用户的批准，整轮失败，客户端可原样重试
	if ts.remoteErr != nil && ts.awaitsRemote(req.Messages) {
		return nil, NewPipelineError(StageToolsResolved, "远端工具不可用", ts.remoteErr)
	}
	prompt := BuildSystemPrompt(p.opts.Persona, ts.reg.List(), ts.confirm)
	msgs := EnsureSystemMessage(RedactTranscript(req.Messages, p.opts.Redactor), prompt)
	p.logger.Debug("对话阶段", "stage", StageSystemMessage, "messages", len(msgs))
	msgs, err := p.orchestrator.ProcessTurn(ctx, hitl.Turn{
		Messages: msgs,
		Tools:    ts.reg,
		Remote:   ts.remote,
		Identity: ts.identity,
	}, emit)
	if err != nil {
		return nil, NewPipelineError(StageToolsResolved, "处理人工决策失败", err)
	}
	return msgs, nil
}

// executorFor 自动执行的工具：注册表中的 Execute，否则远端同名工具
func (ts toolset) executorFor(name string) tool.Executor {
	if def, ok := ts.reg.Get(name); ok {
		return def.Execute
	}
	if ts.remote != nil && ts.remote.HasTool(name) {
		remote := ts.remote
		return func(ctx context.Context, input map[string]any) (any, error) {
			return remote.CallTool(ctx, name, input)
		}
	}
	return nil
}

func (p *Pipeline) finishTurn(mode string, start time.Time, err error) {
	status := StageComplete
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled), errors.Is(err, ErrSinkWrite):
		status = "cancelled"
	default:
		status = StageError
	}
	metrics.ChatTurnsTotal.WithLabelValues(mode, status).Inc()
	if err != nil && status == StageError {
		p.logger.Error("对话轮次失败", "mode", mode, "stage", StageOf(err), "error", err, "duration", time.Since(start))
		return
	}
	p.logger.Info("对话轮次结束", "mode", mode, "status", status, "duration", time.Since(start))
}

// StreamData 结构化事件流：start → 人工决策结果 → 多步模型输出与工具事件 → finish → [DONE]。
// 失败时写 error 事件与 [ERROR]；客户端断开时直接返回。
func (p *Pipeline) StreamData(ctx context.Context, req Request, w EventWriter) (err error) {
	start := time.Now()
	ctx, span := tracing.StartTurnSpan(ctx, "data", len(req.Messages))
	defer func() {
		tracing.EndSpan(span, err)
		p.finishTurn("data", start, err)
	}()

	if err := w.WriteEvent(chat.Event{Type: chat.EventStart, MessageID: "msg-" + uuid.New().String()}); err != nil {
		return err
	}

	ts := p.resolveTools(ctx, req.Credentials)
	var emitErr error
	msgs, err := p.prepare(ctx, req, ts, func(e chat.Event) {
		if emitErr == nil {
			emitErr = w.WriteEvent(e)
		}
	})
	if err == nil {
		err = emitErr
	}
	if err == nil {
		var sum summary
		sum, err = p.runSteps(ctx, msgs, ts, newDataSink(w, p.opts.Redactor), true)
		if err == nil {
			if req.IncludeSummary {
				err = w.WriteEvent(chat.Event{Type: chat.EventDataSummary, Data: sum})
			}
			if err == nil {
				err = w.WriteEvent(chat.Event{Type: chat.EventFinish, FinishReason: sum.FinishReason})
			}
			if err == nil {
				err = w.Done()
			}
			return err
		}
	}

	if ctx.Err() != nil {
		return ctx.Err()
	}
	// 客户端已断开，不再向连接写错误事件
	if errors.Is(err, ErrSinkWrite) {
		return err
	}
	_ = w.WriteEvent(chat.Event{Type: chat.EventError, ErrorText: clientMessage(err)})
	_ = w.Fail()
	return err
}

// StreamText 纯文本流：只向模型提供自动执行的工具，工具调用静默执行
func (p *Pipeline) StreamText(ctx context.Context, req Request, w TextWriter) (err error) {
	start := time.Now()
	ctx, span := tracing.StartTurnSpan(ctx, "text", len(req.Messages))
	defer func() {
		tracing.EndSpan(span, err)
		p.finishTurn("text", start, err)
	}()

	ts := p.resolveTools(ctx, req.Credentials)
	msgs, err := p.prepare(ctx, req, ts, nil)
	if err != nil {
		return err
	}
	_, err = p.runSteps(ctx, msgs, ts, &textSink{w: w, redactor: redaction.NewStreamRedactor(p.opts.Redactor)}, false)
	return err
}

// clientMessage 返回给客户端的错误描述，不暴露内部细节
func clientMessage(err error) string {
	switch StageOf(err) {
	case StageReceived:
		return "invalid request"
	case StageToolsResolved:
		var ce *gateway.ConnectError
		if errors.As(err, &ce) {
			return fmt.Sprintf("remote tools are unavailable (%s): %s", ce.Kind, ce.Kind.Message())
		}
		return "failed to resolve tool decisions"
	case StageModelStream:
		return "the model request failed"
	}
	return "internal error"
}
