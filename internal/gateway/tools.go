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
	"strings"

	"hitl-chat/internal/tool"
)

// IsMutating 工具名是否表示写操作
func IsMutating(name string) bool {
	n := strings.ToLower(name)
	for _, verb := range []string{"create", "update", "delete", "remove"} {
		if strings.Contains(n, verb) {
			return true
		}
	}
	return false
}

// Definitions 把网关上的远端工具转为工具定义。
// 默认自动执行；confirmMutations 为真时写操作只能经人工确认后执行。
func (g *Gateway) Definitions(confirmMutations bool) []*tool.Definition {
	g.mu.Lock()
	tools := append([]RemoteTool(nil), g.tools...)
	g.mu.Unlock()

	defs := make([]*tool.Definition, 0, len(tools))
	for _, t := range tools {
		name := t.Name
		exec := func(ctx context.Context, input map[string]any) (any, error) {
			return g.CallTool(ctx, name, input)
		}
		def := &tool.Definition{
			Name:        name,
			Description: t.Description,
			Schema:      t.Schema,
			Source:      tool.SourceRemote,
		}
		if confirmMutations && IsMutating(name) {
			def.OnApprove = exec
		} else {
			def.Execute = exec
		}
		defs = append(defs, def)
	}
	return defs
}
