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
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"hitl-chat/pkg/metrics"
)

// ManagerOptions 连接池配置
type ManagerOptions struct {
	Gateway       Options
	SweepInterval time.Duration // 默认 5m
	IdleTTL       time.Duration // <=0 表示不因空闲回收
}

// Manager 按凭证身份持有网关：惰性创建，同一身份并发建连只发生一次，定期清理断开或空闲的连接。
// 由 app 构造并显式 Start/Shutdown。
type Manager struct {
	connector Connector
	opts      ManagerOptions
	logger    *slog.Logger

	mu       sync.Mutex
	gateways map[string]*Gateway
	group    singleflight.Group

	stopOnce sync.Once
	stop     chan struct{}
	now      func() time.Time
}

// NewManager 创建连接池
func NewManager(connector Connector, opts ManagerOptions, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.SweepInterval <= 0 {
		opts.SweepInterval = 5 * time.Minute
	}
	return &Manager{
		connector: connector,
		opts:      opts,
		logger:    logger,
		gateways:  make(map[string]*Gateway),
		stop:      make(chan struct{}),
		now:       time.Now,
	}
}

// Get 返回该凭证身份的已连接网关，必要时建连
func (m *Manager) Get(ctx context.Context, creds Credentials) (*Gateway, error) {
	id := creds.Identity()
	m.mu.Lock()
	gw, ok := m.gateways[id]
	m.mu.Unlock()
	if ok && gw.Status().Connected {
		if err := gw.Connect(ctx, creds); err == nil {
			return gw, nil
		}
	}

	// 建连不受单个请求取消的影响，超时由网关自身控制
	v, err, _ := m.group.Do(id, func() (any, error) {
		m.mu.Lock()
		gw, ok := m.gateways[id]
		if !ok {
			gw = New(m.connector, m.opts.Gateway, m.logger)
			gw.now = m.now
			m.gateways[id] = gw
		}
		m.mu.Unlock()
		if err := gw.Connect(context.WithoutCancel(ctx), creds); err != nil {
			m.remove(id, gw)
			return nil, err
		}
		m.updateGauge()
		return gw, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Gateway), nil
}

// Lookup 返回已存在的网关，不建连
func (m *Manager) Lookup(creds Credentials) (*Gateway, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	gw, ok := m.gateways[creds.Identity()]
	return gw, ok
}

// Validate 用独立的临时网关校验凭证，不影响池中连接
func (m *Manager) Validate(ctx context.Context, creds Credentials) ValidationResult {
	return ValidateCredentials(ctx, m.connector, creds, m.opts.Gateway, m.logger)
}

// Disconnect 断开并移除该凭证身份的网关
func (m *Manager) Disconnect(creds Credentials) error {
	id := creds.Identity()
	m.mu.Lock()
	gw, ok := m.gateways[id]
	delete(m.gateways, id)
	m.mu.Unlock()
	m.updateGauge()
	if !ok {
		return nil
	}
	return gw.Disconnect()
}

// Len 当前持有的网关数
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.gateways)
}

// Sweep 移除已断开、探活失败或空闲超时的网关，返回移除数量
func (m *Manager) Sweep(ctx context.Context) int {
	m.mu.Lock()
	snapshot := make(map[string]*Gateway, len(m.gateways))
	for id, gw := range m.gateways {
		snapshot[id] = gw
	}
	m.mu.Unlock()

	removed := 0
	for id, gw := range snapshot {
		idle := m.opts.IdleTTL > 0 && m.now().Sub(gw.idleSince()) > m.opts.IdleTTL
		if !idle && gw.Healthy(ctx) {
			continue
		}
		if m.remove(id, gw) {
			_ = gw.Disconnect()
			removed++
			m.logger.Info("清理远端工具连接", "identity", id, "idle", idle)
		}
	}
	m.updateGauge()
	return removed
}

// Start 后台定期清理，直到 Shutdown 或 ctx 结束
func (m *Manager) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(m.opts.SweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-m.stop:
				return
			case <-ticker.C:
				m.Sweep(ctx)
			}
		}
	}()
}

// Shutdown 停止清理并并行断开全部连接
func (m *Manager) Shutdown(ctx context.Context) error {
	m.stopOnce.Do(func() { close(m.stop) })

	m.mu.Lock()
	all := make([]*Gateway, 0, len(m.gateways))
	for _, gw := range m.gateways {
		all = append(all, gw)
	}
	m.gateways = make(map[string]*Gateway)
	m.mu.Unlock()
	m.updateGauge()

	var wg sync.WaitGroup
	for _, gw := range all {
		wg.Add(1)
		go func(gw *Gateway) {
			defer wg.Done()
			_ = gw.Disconnect()
		}(gw)
	}
	finished := make(chan struct{})
	go func() {
		wg.Wait()
		close(finished)
	}()
	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// remove 仅当映射中仍是同一实例时删除
func (m *Manager) remove(id string, gw *Gateway) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cur, ok := m.gateways[id]; ok && cur == gw {
		delete(m.gateways, id)
		return true
	}
	return false
}

func (m *Manager) updateGauge() {
	metrics.GatewayConnections.Set(float64(m.Len()))
}
