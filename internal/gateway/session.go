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

	"hitl-chat/internal/tool"
)

// RemoteTool 远端进程声明的工具
type RemoteTool struct {
	Name        string
	Description string
	Schema      tool.Schema
}

// Session 与远端工具进程的一条活动连接
type Session interface {
	ListTools(ctx context.Context) ([]RemoteTool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (any, error)
	Close() error
}

// Pinger 可探活的会话，清理时用于发现静默断开的连接
type Pinger interface {
	Ping(ctx context.Context) error
}

// Connector 按凭证建立会话
type Connector func(ctx context.Context, creds Credentials) (Session, error)
