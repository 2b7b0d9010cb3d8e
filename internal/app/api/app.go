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

package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/cloudwego/hertz/pkg/app/server"
	hertzconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/hlog"
	hertzslog "github.com/hertz-contrib/logger/slog"
	hertztracing "github.com/hertz-contrib/obs-opentelemetry/tracing"

	"hitl-chat/internal/api/http"
	"hitl-chat/internal/api/http/middleware"
	"hitl-chat/internal/app"
	"hitl-chat/internal/gateway"
	"hitl-chat/internal/hitl"
	"hitl-chat/internal/model/llm"
	"hitl-chat/internal/pipeline"
	"hitl-chat/internal/tool/builtin"
	"hitl-chat/internal/tool/registry"
	"hitl-chat/pkg/config"
	"hitl-chat/pkg/log"
	"hitl-chat/pkg/tracing"
	"hitl-chat/pkg/utils"
)

// otelProviderShutdown 用于优雅关闭时关闭 OpenTelemetry provider
type otelProviderShutdown interface {
	Shutdown(ctx context.Context) error
}

// App API 应用：装配模型、工具注册表、远端工具连接池、人工确认编排、对话管线与 HTTP 路由
type App struct {
	config       *app.Bootstrap
	router       *http.Router
	gateways     *gateway.Manager
	hertz        *server.Hertz
	otelProvider otelProviderShutdown

	stopSweep    context.CancelFunc
	shutdownOnce sync.Once
}

// NewApp 创建 API 应用
func NewApp(ctx context.Context, bootstrap *app.Bootstrap) (*App, error) {
	if bootstrap == nil || bootstrap.Config == nil {
		return nil, errors.New("bootstrap 未初始化")
	}
	cfg := bootstrap.Config
	logger := bootstrap.Logger.Logger

	chatModel, provider, err := llm.NewChatModel(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("初始化对话模型失败: %w", err)
	}
	logger.Info("对话模型已就绪", "provider", provider, "default", cfg.Model.Defaults.LLM)

	tools := registry.New()
	builtin.RegisterBuiltin(tools, builtin.Deps{
		Config: cfg.Tools,
		Cache:  bootstrap.Cache,
		Logger: logger,
	})

	defaults, err := bootstrap.DefaultCredentials(ctx)
	if err != nil {
		logger.Warn("默认平台凭证不可用，仅在请求携带凭证时启用远端工具", "error", err)
		defaults = gateway.Credentials{}
	}
	if !defaults.IsZero() {
		if ce := gateway.CheckFields(defaults); ce != nil {
			logger.Warn("默认平台凭证不完整，已忽略", "kind", ce.Kind, "error", ce.Err)
			defaults = gateway.Credentials{}
		}
	}

	gateways := gateway.NewManager(
		gateway.NewMCPConnector(gateway.MCPConfig{
			Command: cfg.Gateway.Command,
			Args:    cfg.Gateway.Args,
		}),
		gateway.ManagerOptions{
			Gateway: gateway.Options{
				ConnectTimeout: config.ParseDuration(cfg.Gateway.ConnectTimeout, 30*time.Second),
				CallTimeout:    config.ParseDuration(cfg.Gateway.CallTimeout, 60*time.Second),
			},
			SweepInterval: config.ParseDuration(cfg.Gateway.SweepInterval, 5*time.Minute),
			IdleTTL:       config.ParseDuration(cfg.Gateway.IdleTTL, 0),
		},
		logger,
	)

	orchestrator := hitl.New(tools,
		hitl.WithRedactor(bootstrap.Redactor),
		hitl.WithAudit(bootstrap.Audit),
		hitl.WithLogger(logger),
	)

	chat := pipeline.New(chatModel, tools, gateways, orchestrator, pipeline.Options{
		Persona:                cfg.Chat.SystemPrompt,
		MaxSteps:               cfg.Chat.MaxSteps,
		ConfirmationRequired:   cfg.HITL.ConfirmationRequired,
		ConfirmRemoteMutations: cfg.HITL.ConfirmRemoteMutations,
		DefaultCredentials:     defaults,
		Redactor:               bootstrap.Redactor,
		Logger:                 logger,
	})

	handler := http.NewHandler(chat, logger)
	handler.SetGateways(gateways, defaults)
	router := http.NewRouter(handler, middleware.NewMiddleware(cfg.API, logger), http.RouterOptions{
		CORS:         cfg.API.CORS.Enable,
		RateLimit:    cfg.API.Middleware.RateLimit,
		RateLimitRPS: cfg.API.Middleware.RateLimitRPS,
		Metrics:      cfg.Monitoring.Prometheus.Enable,
	})

	logger.Info("工具已注册", "tools", tools.ListNames(), "remote_default", !defaults.IsZero())
	return &App{
		config:   bootstrap,
		router:   router,
		gateways: gateways,
	}, nil
}

// Run 启动连接清理与 HTTP 服务，addr 如 ":8080"；阻塞直到服务退出
func (a *App) Run(addr string) error {
	cfg := a.config.Config
	a.config.Logger.Info("API 服务启动", "addr", addr)

	// 使用 Hertz slog 扩展，与 bootstrap 日志输出、级别对齐
	levelVar := &slog.LevelVar{}
	levelVar.Set(log.ParseLevel(cfg.Log.Level))
	hlog.SetLogger(hertzslog.NewLogger(
		hertzslog.WithOutput(a.config.Logger.Writer()),
		hertzslog.WithLevel(levelVar),
	))

	// 可选：启用链路追踪（OpenTelemetry）
	var opts []hertzconfig.Option
	if t := cfg.Monitoring.Tracing; t.Enable {
		serviceName := utils.CoalesceString(t.ServiceName, "hitl-chat")
		endpoint := utils.CoalesceString(t.ExportEndpoint, os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
		if endpoint != "" {
			tp, err := tracing.InitTracer(tracing.OTelConfig{
				ServiceName:    serviceName,
				ExportEndpoint: endpoint,
				Insecure:       t.Insecure,
			})
			if err != nil {
				a.config.Logger.Warn("链路追踪初始化失败，继续运行", "error", err)
			} else {
				a.otelProvider = tp
				tracerOpt, tcfg := hertztracing.NewServerTracer()
				opts = append(opts, tracerOpt)
				a.router.Use(hertztracing.ServerMiddleware(tcfg))
				a.config.Logger.Info("链路追踪已启用", "service_name", serviceName, "endpoint", endpoint)
			}
		}
	}

	a.hertz = a.router.Build(addr, opts...)

	sweepCtx, cancel := context.WithCancel(context.Background())
	a.stopSweep = cancel
	a.gateways.Start(sweepCtx)

	return a.hertz.Run()
}

// Shutdown 优雅关闭（传入 ctx 以支持超时，如 cmd 层 WithTimeout）：
// 先停 HTTP，再断开全部远端工具连接，最后关闭存储与 tracer
func (a *App) Shutdown(ctx context.Context) error {
	var errs []error
	a.shutdownOnce.Do(func() {
		if a.hertz != nil {
			errs = append(errs, a.hertz.Shutdown(ctx))
		}
		if a.stopSweep != nil {
			a.stopSweep()
		}
		errs = append(errs, a.gateways.Shutdown(ctx))
		if a.otelProvider != nil {
			errs = append(errs, a.otelProvider.Shutdown(ctx))
		}
		errs = append(errs, a.config.Close())
	})
	return errors.Join(errs...)
}
