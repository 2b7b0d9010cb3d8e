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

package audit

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

const schemaSQL = `CREATE TABLE IF NOT EXISTS tool_decisions (
	id           TEXT PRIMARY KEY,
	tool_call_id TEXT NOT NULL,
	tool_name    TEXT NOT NULL,
	decision     TEXT NOT NULL,
	outcome      TEXT NOT NULL,
	identity     TEXT NOT NULL DEFAULT '',
	duration_ms  BIGINT NOT NULL DEFAULT 0,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT now()
);
CREATE INDEX IF NOT EXISTS idx_tool_decisions_call ON tool_decisions (tool_call_id);`

// PgStore PostgreSQL 审计存储，启动时建表
type PgStore struct {
	pool *pgxpool.Pool
}

// NewPgStore 连接数据库并确保 tool_decisions 表存在
func NewPgStore(ctx context.Context, dsn string) (*PgStore, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	if _, err := pool.Exec(ctx, schemaSQL); err != nil {
		pool.Close()
		return nil, err
	}
	return &PgStore{pool: pool}, nil
}

func (s *PgStore) Record(ctx context.Context, e Entry) error {
	if e.ID == "" {
		e.ID = "dec-" + uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := s.pool.Exec(ctx,
		`INSERT INTO tool_decisions (id, tool_call_id, tool_name, decision, outcome, identity, duration_ms, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		e.ID, e.ToolCallID, e.ToolName, e.Decision, e.Outcome, e.Identity, e.Duration.Milliseconds(), e.CreatedAt)
	return err
}

func (s *PgStore) List(ctx context.Context, toolCallID string) ([]Entry, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, tool_call_id, tool_name, decision, outcome, identity, duration_ms, created_at
		 FROM tool_decisions WHERE tool_call_id = $1 ORDER BY created_at`, toolCallID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Entry
	for rows.Next() {
		var e Entry
		var ms int64
		if err := rows.Scan(&e.ID, &e.ToolCallID, &e.ToolName, &e.Decision, &e.Outcome, &e.Identity, &ms, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Duration = time.Duration(ms) * time.Millisecond
		out = append(out, e)
	}
	return out, rows.Err()
}

// Close 关闭连接池
func (s *PgStore) Close() error {
	s.pool.Close()
	return nil
}

var _ Store = (*PgStore)(nil)
