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

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"

	"hitl-chat/internal/gateway"
	perrors "hitl-chat/pkg/errors"
)

// CredentialsRequest 凭证请求体
type CredentialsRequest struct {
	Credentials *gateway.Credentials `json:"credentials"`
}

var errNoGateways = perrors.Typed("GATEWAY_UNAVAILABLE", "remote tools are not configured", perrors.ErrUnavailable)

// ValidateCredentials 校验平台凭证：连接、列工具、断开，失败按类别返回。
// 校验结果本身（含失败）以 200 返回；请求体无法解析时返回 400。
func (h *Handler) ValidateCredentials(ctx context.Context, c *app.RequestContext) {
	if h.gateways == nil {
		abortWithError(c, consts.StatusServiceUnavailable, errNoGateways)
		return
	}
	var body CredentialsRequest
	if err := c.BindJSON(&body); err != nil {
		abortWithError(c, consts.StatusBadRequest, perrors.Typed(ErrInvalidRequest, "invalid request body", err))
		return
	}
	var creds gateway.Credentials
	if body.Credentials != nil {
		creds = *body.Credentials
	}
	result := h.gateways.Validate(ctx, creds)
	if !result.Valid {
		h.logger.Info("凭证校验失败", "credentials", creds, "kind", result.ErrorType)
	}
	c.JSON(consts.StatusOK, result)
}

// GatewayStatus 查询凭证身份对应的连接状态，不触发建连。
// GET 查询默认凭证；POST 携带 {credentials} 查询指定凭证。
func (h *Handler) GatewayStatus(ctx context.Context, c *app.RequestContext) {
	if h.gateways == nil {
		abortWithError(c, consts.StatusServiceUnavailable, errNoGateways)
		return
	}
	creds := h.defaults
	if string(c.Method()) == consts.MethodPost {
		var body CredentialsRequest
		if err := c.BindJSON(&body); err != nil {
			abortWithError(c, consts.StatusBadRequest, perrors.Typed(ErrInvalidRequest, "invalid request body", err))
			return
		}
		if body.Credentials != nil {
			creds = *body.Credentials
		}
	}
	if creds.IsZero() {
		c.JSON(consts.StatusOK, gateway.Status{State: gateway.StateDisconnected, ToolNames: []string{}})
		return
	}
	gw, ok := h.gateways.Lookup(creds)
	if !ok {
		c.JSON(consts.StatusOK, gateway.Status{State: gateway.StateDisconnected, ToolNames: []string{}, Identity: creds.Identity()})
		return
	}
	c.JSON(consts.StatusOK, gw.Status())
}
