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

// Package audit 记录每次人工确认的处理结果：谁的凭证、哪个工具、确认还是拒绝、执行结果与耗时。
// 只记录元数据，不保存工具入参与输出。
package audit

import (
	"context"
	"fmt"
	"time"

	"hitl-chat/pkg/config"
)

// 处理结果
const (
	OutcomeOK      = "ok"
	OutcomeError   = "error"
	OutcomeDenied  = "denied"
	OutcomeUnknown = "unknown_tool"
)

// Entry 单条决策记录
type Entry struct {
	ID         string        `json:"id"`
	ToolCallID string        `json:"toolCallId"`
	ToolName   string        `json:"toolName"`
	Decision   string        `json:"decision"`
	Outcome    string        `json:"outcome"`
	Identity   string        `json:"identity,omitempty"` // 凭证身份哈希
	Duration   time.Duration `json:"duration"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Store 决策审计存储
type Store interface {
	// Record 追加一条记录；ID、CreatedAt 为空时由实现填充
	Record(ctx context.Context, e Entry) error
	// List 按 toolCallID 查询，按时间升序
	List(ctx context.Context, toolCallID string) ([]Entry, error)
	Close() error
}

// NewStore 按配置创建审计存储：memory（默认）| postgres
func NewStore(ctx context.Context, cfg config.AuditConfig) (Store, error) {
	switch cfg.Type {
	case "", "memory":
		return NewMemoryStore(), nil
	case "postgres":
		if cfg.DSN == "" {
			return nil, fmt.Errorf("audit.dsn 未配置")
		}
		return NewPgStore(ctx, cfg.DSN)
	default:
		return nil, fmt.Errorf("不支持的审计存储类型: %s", cfg.Type)
	}
}
