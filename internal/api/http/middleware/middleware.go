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

package middleware

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/protocol/consts"
	"golang.org/x/time/rate"

	"hitl-chat/pkg/config"
	"hitl-chat/pkg/metrics"
	"hitl-chat/pkg/utils"
)

// Middleware 中间件管理器
type Middleware struct {
	cfg    config.APIConfig
	logger *slog.Logger
}

// NewMiddleware 创建新的中间件管理器
func NewMiddleware(cfg config.APIConfig, logger *slog.Logger) *Middleware {
	if logger == nil {
		logger = slog.Default()
	}
	return &Middleware{cfg: cfg, logger: logger}
}

// CORS 按配置放行来源；未配置来源时允许任意来源
func (m *Middleware) CORS() app.HandlerFunc {
	allowAll := len(m.cfg.CORS.AllowOrigins) == 0
	allowed := make(map[string]bool, len(m.cfg.CORS.AllowOrigins))
	for _, o := range m.cfg.CORS.AllowOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[strings.TrimRight(o, "/")] = true
	}

	return func(ctx context.Context, c *app.RequestContext) {
		origin := string(c.Request.Header.Peek("Origin"))
		switch {
		case origin == "":
		case allowAll:
			c.Response.Header.Set("Access-Control-Allow-Origin", "*")
		case allowed[origin]:
			c.Response.Header.Set("Access-Control-Allow-Origin", origin)
			c.Response.Header.Set("Vary", "Origin")
		}
		c.Response.Header.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Response.Header.Set("Access-Control-Allow-Headers", "Origin, Content-Type, Accept")
		c.Response.Header.Set("Access-Control-Max-Age", "86400")

		if string(c.Method()) == consts.MethodOptions {
			c.AbortWithStatus(consts.StatusNoContent)
			return
		}
		c.Next(ctx)
	}
}

// RateLimit 全局令牌桶限流：等待不超过 maxWait，否则返回 429
func (m *Middleware) RateLimit(rps int, maxWait time.Duration) app.HandlerFunc {
	rps = utils.DefaultInt(rps, 10)
	limiter := rate.NewLimiter(rate.Limit(rps), rps)

	return func(ctx context.Context, c *app.RequestContext) {
		r := limiter.Reserve()
		delay := r.Delay()
		if !r.OK() || delay > maxWait {
			r.Cancel()
			c.AbortWithStatusJSON(consts.StatusTooManyRequests, map[string]string{
				"error":     "too many requests, please retry later",
				"errorType": "RATE_LIMITED",
			})
			return
		}
		if delay > 0 {
			t := time.NewTimer(delay)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
				r.Cancel()
				c.AbortWithStatus(consts.StatusServiceUnavailable)
				return
			}
			metrics.RateLimitWaitSeconds.WithLabelValues("http", string(c.Path())).Observe(delay.Seconds())
		}
		c.Next(ctx)
	}
}

// AccessLog 访问日志
func (m *Middleware) AccessLog() app.HandlerFunc {
	return func(ctx context.Context, c *app.RequestContext) {
		start := time.Now()
		c.Next(ctx)
		m.logger.Info("http request",
			"method", string(c.Method()),
			"path", string(c.Path()),
			"status", c.Response.StatusCode(),
			"client_ip", c.ClientIP(),
			"latency", time.Since(start),
		)
	}
}
