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

package http

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"github.com/cloudwego/hertz/pkg/protocol/http1/resp"

	"hitl-chat/internal/chat"
	"hitl-chat/internal/gateway"
	"hitl-chat/internal/pipeline"
	perrors "hitl-chat/pkg/errors"
	"hitl-chat/pkg/metrics"
)

// 请求错误类型
const (
	ErrInvalidRequest      = "INVALID_REQUEST"
	ErrPendingConfirmation = "PENDING_CONFIRMATION"
)

// ChatPipeline 对话管线
type ChatPipeline interface {
	StreamData(ctx context.Context, req pipeline.Request, w pipeline.EventWriter) error
	StreamText(ctx context.Context, req pipeline.Request, w pipeline.TextWriter) error
	PendingConfirmation(msgs []chat.Message) bool
	Tools(ctx context.Context, creds *gateway.Credentials) []pipeline.ToolInfo
}

// Gateways 远端工具连接池
type Gateways interface {
	Lookup(creds gateway.Credentials) (*gateway.Gateway, bool)
	Validate(ctx context.Context, creds gateway.Credentials) gateway.ValidationResult
}

// Handler HTTP 处理器
type Handler struct {
	chat     ChatPipeline
	gateways Gateways
	defaults gateway.Credentials
	logger   *slog.Logger

	newSink func(c *app.RequestContext) pipeline.Sink
	now     func() time.Time
}

// NewHandler 创建新的 HTTP 处理器
func NewHandler(p ChatPipeline, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		chat:    p,
		logger:  logger,
		newSink: chunkedSink,
		now:     time.Now,
	}
}

// SetGateways 设置远端工具连接池与默认凭证（未设置时校验与状态接口返回 503）
func (h *Handler) SetGateways(gw Gateways, defaults gateway.Credentials) {
	h.gateways = gw
	h.defaults = defaults
}

// chunkedSink 接管响应写出，改为 chunked 编码逐块刷新
func chunkedSink(c *app.RequestContext) pipeline.Sink {
	c.Response.HijackWriter(resp.NewChunkedBodyWriter(&c.Response, c.GetWriter()))
	return c
}

// ChatRequest 对话请求体
type ChatRequest struct {
	Messages       []chat.Message       `json:"messages"`
	Credentials    *gateway.Credentials `json:"commercetoolsCredentials,omitempty"`
	IncludeSummary bool                 `json:"includeSummary,omitempty"`
}

// ErrorResponse 请求错误响应
type ErrorResponse struct {
	Error     string `json:"error"`
	ErrorType string `json:"errorType"`
}

// abortWithError 按错误链上的 TypedError 输出 {error, errorType}
func abortWithError(c *app.RequestContext, status int, err error) {
	c.AbortWithStatusJSON(status, ErrorResponse{
		Error:     err.Error(),
		ErrorType: perrors.TypeOf(err, ErrInvalidRequest),
	})
}

// parseChat 解析并校验对话请求，失败时返回 HTTP 状态码与带类型的错误
func (h *Handler) parseChat(c *app.RequestContext) (pipeline.Request, int, error) {
	var body ChatRequest
	if err := c.BindJSON(&body); err != nil {
		return pipeline.Request{}, consts.StatusBadRequest,
			perrors.Typed(ErrInvalidRequest, "invalid request body", err)
	}
	if len(body.Messages) == 0 {
		return pipeline.Request{}, consts.StatusBadRequest,
			perrors.Typed(ErrInvalidRequest, "messages must not be empty", perrors.ErrInvalidArg)
	}
	if body.Credentials != nil && !body.Credentials.IsZero() {
		if ce := gateway.CheckFields(*body.Credentials); ce != nil {
			return pipeline.Request{}, consts.StatusBadRequest,
				perrors.Typed(string(ce.Kind), "invalid credentials", ce.Err)
		}
	}
	last := body.Messages[len(body.Messages)-1]
	if last.Role == chat.RoleUser && h.chat.PendingConfirmation(body.Messages[:len(body.Messages)-1]) {
		return pipeline.Request{}, consts.StatusConflict, perrors.Typed(ErrPendingConfirmation,
			"a tool call is still awaiting confirmation; approve or deny it before sending a new message", perrors.ErrConflict)
	}
	return pipeline.Request{
		Messages:       body.Messages,
		Credentials:    body.Credentials,
		IncludeSummary: body.IncludeSummary,
	}, consts.StatusOK, nil
}

// bindChat 解析失败时写出错误响应并返回 false
func (h *Handler) bindChat(c *app.RequestContext, mode string) (pipeline.Request, bool) {
	req, status, err := h.parseChat(c)
	if err != nil {
		metrics.ChatTurnsTotal.WithLabelValues(mode, "rejected").Inc()
		abortWithError(c, status, err)
		return pipeline.Request{}, false
	}
	return req, true
}

// DataStream 结构化事件流（text/event-stream）
func (h *Handler) DataStream(ctx context.Context, c *app.RequestContext) {
	req, ok := h.bindChat(c, "data")
	if !ok {
		return
	}
	c.SetStatusCode(consts.StatusOK)
	c.Response.Header.Set("Content-Type", "text/event-stream")
	c.Response.Header.Set("Cache-Control", "no-cache")
	c.Response.Header.Set("Connection", "keep-alive")
	c.Response.Header.Set("X-Accel-Buffering", "no")
	c.Response.Header.Set("X-Vercel-AI-UI-Message-Stream", "v1")

	w := pipeline.NewSSEWriter(h.newSink(c))
	if err := h.chat.StreamData(ctx, req, w); err != nil {
		h.logStreamError("data", err)
	}
}

// TextStream 纯文本流（text/plain）
func (h *Handler) TextStream(ctx context.Context, c *app.RequestContext) {
	req, ok := h.bindChat(c, "text")
	if !ok {
		return
	}
	c.SetStatusCode(consts.StatusOK)
	c.Response.Header.Set("Content-Type", "text/plain; charset=utf-8")
	c.Response.Header.Set("Cache-Control", "no-cache")
	c.Response.Header.Set("X-Accel-Buffering", "no")

	w := pipeline.NewPlainWriter(h.newSink(c))
	if err := h.chat.StreamText(ctx, req, w); err != nil {
		h.logStreamError("text", err)
	}
}

func (h *Handler) logStreamError(mode string, err error) {
	if errors.Is(err, context.Canceled) || errors.Is(err, pipeline.ErrSinkWrite) {
		h.logger.Info("客户端断开，流已停止", "mode", mode)
		return
	}
	h.logger.Warn("流式对话异常结束", "mode", mode, "stage", pipeline.StageOf(err), "error", err)
}

// HealthCheck 健康检查
func (h *Handler) HealthCheck(ctx context.Context, c *app.RequestContext) {
	c.JSON(consts.StatusOK, map[string]any{
		"status":    "ok",
		"timestamp": h.now().UTC().Format(time.RFC3339),
	})
}

// ListTools 列出当前可用工具（默认凭证下的远端工具一并列出）
func (h *Handler) ListTools(ctx context.Context, c *app.RequestContext) {
	tools := h.chat.Tools(ctx, nil)
	c.JSON(consts.StatusOK, map[string]any{
		"tools": tools,
		"total": len(tools),
	})
}

// Metrics Prometheus 指标
func (h *Handler) Metrics(ctx context.Context, c *app.RequestContext) {
	c.Response.Header.Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	if err := metrics.WritePrometheus(c); err != nil {
		h.logger.Error("写出指标失败", "error", err)
		c.SetStatusCode(consts.StatusInternalServerError)
	}
}
