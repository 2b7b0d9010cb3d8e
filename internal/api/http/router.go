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
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/middlewares/server/recovery"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/config"

	"hitl-chat/internal/api/http/middleware"
)

// RouterOptions 路由开关
type RouterOptions struct {
	CORS         bool
	RateLimit    bool
	RateLimitRPS int
	RateLimitMax time.Duration // 限流最长排队时间
	Metrics      bool
}

// Router 路由器
type Router struct {
	handler    *Handler
	middleware *middleware.Middleware
	opts       RouterOptions
	leading    []app.HandlerFunc
}

// NewRouter 创建新的路由器
func NewRouter(handler *Handler, mw *middleware.Middleware, opts RouterOptions) *Router {
	if opts.RateLimitMax <= 0 {
		opts.RateLimitMax = time.Second
	}
	return &Router{handler: handler, middleware: mw, opts: opts}
}

// Use 追加在全部内置中间件之前执行的中间件（如链路追踪），须在 Build 之前调用
func (r *Router) Use(mw ...app.HandlerFunc) {
	r.leading = append(r.leading, mw...)
}

// Build 创建 Hertz 实例并注册路由；extra 用于注入链路追踪等服务端选项
func (r *Router) Build(addr string, extra ...config.Option) *server.Hertz {
	h := server.New(serverOptions(addr, extra...)...)
	if len(r.leading) > 0 {
		h.Use(r.leading...)
	}
	h.Use(recovery.Recovery(), r.middleware.AccessLog())
	if r.opts.CORS {
		h.Use(r.middleware.CORS())
		// 预检请求由 CORS 中间件直接应答
		h.OPTIONS("/*path", func(ctx context.Context, c *app.RequestContext) {})
	}
	r.SetupRoutes(h)
	return h
}

// serverOptions 客户端断开时取消请求 ctx，流式对话随之停止读取模型输出
func serverOptions(addr string, extra ...config.Option) []config.Option {
	return append([]config.Option{
		server.WithHostPorts(addr),
		server.WithExitWaitTime(5 * time.Second),
		server.WithSenseClientDisconnection(true),
	}, extra...)
}

// SetupRoutes 设置路由
func (r *Router) SetupRoutes(h *server.Hertz) {
	api := h.Group("/api")
	api.GET("/health", r.handler.HealthCheck)
	api.GET("/tools", r.handler.ListTools)

	chat := api.Group("/chat")
	if r.opts.RateLimit {
		chat.Use(r.middleware.RateLimit(r.opts.RateLimitRPS, r.opts.RateLimitMax))
	}
	chat.POST("/text-stream", r.handler.TextStream)
	chat.POST("/data-stream", r.handler.DataStream)

	ct := api.Group("/commercetools")
	ct.POST("/validate", r.handler.ValidateCredentials)
	ct.GET("/status", r.handler.GatewayStatus)
	ct.POST("/status", r.handler.GatewayStatus)

	if r.opts.Metrics {
		h.GET("/metrics", r.handler.Metrics)
	}
}
