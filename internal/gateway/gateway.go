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

package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"hitl-chat/pkg/metrics"
	"hitl-chat/pkg/tracing"
)

// State 网关连接状态
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateFailed       State = "failed"
)

// Status 网关状态快照，不含任何密钥
type Status struct {
	Connected bool     `json:"connected"`
	State     State    `json:"state"`
	ToolCount int      `json:"toolCount"`
	ToolNames []string `json:"toolNames"`
	Identity  string   `json:"identity,omitempty"`
	LastError string   `json:"lastError,omitempty"`
}

// Options 网关超时配置
type Options struct {
	ConnectTimeout time.Duration
	CallTimeout    time.Duration
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = 30 * time.Second
	}
	if o.CallTimeout <= 0 {
		o.CallTimeout = 60 * time.Second
	}
	return o
}

// Gateway 把一组凭证对应的远端工具进程包装为本地工具来源。
// 状态迁移：disconnected → connecting → connected | failed；
// connected 时以不同身份连接会先断开旧连接，相同身份为 no-op；failed 时重新连接从头开始。
type Gateway struct {
	connector Connector
	opts      Options
	logger    *slog.Logger

	mu       sync.Mutex
	state    State
	identity string
	session  Session
	tools    []RemoteTool
	lastErr  error
	lastUsed time.Time
	now      func() time.Time
}

// New 创建未连接的网关
func New(connector Connector, opts Options, logger *slog.Logger) *Gateway {
	if logger == nil {
		logger = slog.Default()
	}
	return &Gateway{
		connector: connector,
		opts:      opts.withDefaults(),
		logger:    logger,
		state:     StateDisconnected,
		now:       time.Now,
	}
}

// Connect 按凭证建立连接
func (g *Gateway) Connect(ctx context.Context, creds Credentials) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.connectLocked(ctx, creds)
}

func (g *Gateway) connectLocked(ctx context.Context, creds Credentials) (err error) {
	id := creds.Identity()
	if g.state == StateConnected && g.identity == id {
		g.lastUsed = g.now()
		return nil
	}
	if g.state == StateConnected {
		g.logger.Info("凭证身份变化，断开旧连接", "old", g.identity, "new", id)
		g.teardownLocked()
	}

	ctx, span := tracing.StartGatewaySpan(ctx, "connect", id)
	defer func() { tracing.EndSpan(span, err) }()

	g.state = StateConnecting
	g.identity = id
	cctx, cancel := context.WithTimeout(ctx, g.opts.ConnectTimeout)
	defer cancel()

	session, err := g.connector(cctx, creds)
	if err == nil {
		var tools []RemoteTool
		tools, err = session.ListTools(cctx)
		if err != nil {
			_ = session.Close()
		} else {
			g.session, g.tools = session, sortTools(tools)
		}
	}
	if err != nil {
		ce := classified(err)
		g.state, g.lastErr, g.session, g.tools = StateFailed, ce, nil, nil
		metrics.GatewayConnectTotal.WithLabelValues("error").Inc()
		g.logger.Warn("远端工具连接失败", "credentials", creds, "kind", ce.Kind, "error", err)
		return ce
	}
	g.state, g.lastErr, g.lastUsed = StateConnected, nil, g.now()
	metrics.GatewayConnectTotal.WithLabelValues("ok").Inc()
	g.logger.Info("远端工具已连接", "credentials", creds, "tools", len(g.tools))
	return nil
}

// GetTools 返回远端工具；未连接或身份不同则先（重新）连接
func (g *Gateway) GetTools(ctx context.Context, creds Credentials) ([]RemoteTool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if err := g.connectLocked(ctx, creds); err != nil {
		return nil, err
	}
	return append([]RemoteTool(nil), g.tools...), nil
}

// HasTool 当前连接是否提供该工具
func (g *Gateway) HasTool(name string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, t := range g.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// CallTool 调用远端工具。调用期间不持锁，同一身份的多个请求可并发调用；失败不重试
func (g *Gateway) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	g.mu.Lock()
	session := g.session
	if g.state != StateConnected || session == nil {
		g.mu.Unlock()
		return nil, ErrNotConnected
	}
	g.lastUsed = g.now()
	g.mu.Unlock()

	cctx, cancel := context.WithTimeout(ctx, g.opts.CallTimeout)
	defer cancel()
	if args == nil {
		args = map[string]any{}
	}
	return session.CallTool(cctx, name, args)
}

// RefreshTools 不重连，重新拉取远端工具列表
func (g *Gateway) RefreshTools(ctx context.Context) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.state != StateConnected || g.session == nil {
		return ErrNotConnected
	}
	cctx, cancel := context.WithTimeout(ctx, g.opts.ConnectTimeout)
	defer cancel()
	tools, err := g.session.ListTools(cctx)
	if err != nil {
		return fmt.Errorf("刷新远端工具失败: %w", err)
	}
	g.tools = sortTools(tools)
	return nil
}

// Disconnect 释放连接，可重复调用
func (g *Gateway) Disconnect() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.teardownLocked()
}

func (g *Gateway) teardownLocked() error {
	var err error
	if g.session != nil {
		err = g.session.Close()
		g.logger.Info("远端工具连接已关闭", "identity", g.identity)
	}
	g.session, g.tools, g.state = nil, nil, StateDisconnected
	return err
}

// Status 当前状态
func (g *Gateway) Status() Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	names := make([]string, 0, len(g.tools))
	for _, t := range g.tools {
		names = append(names, t.Name)
	}
	st := Status{
		Connected: g.state == StateConnected,
		State:     g.state,
		ToolCount: len(g.tools),
		ToolNames: names,
		Identity:  g.identity,
	}
	if g.lastErr != nil {
		st.LastError = g.lastErr.Error()
	}
	return st
}

// Healthy 连接是否仍可用；会话支持探活时执行一次 Ping
func (g *Gateway) Healthy(ctx context.Context) bool {
	g.mu.Lock()
	session, state := g.session, g.state
	g.mu.Unlock()
	if state != StateConnected || session == nil {
		return false
	}
	if p, ok := session.(Pinger); ok {
		cctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		return p.Ping(cctx) == nil
	}
	return true
}

func (g *Gateway) idleSince() time.Time {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.lastUsed
}

func sortTools(tools []RemoteTool) []RemoteTool {
	sort.Slice(tools, func(i, j int) bool { return tools[i].Name < tools[j].Name })
	return tools
}
