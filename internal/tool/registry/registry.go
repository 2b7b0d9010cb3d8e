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

package registry

import (
	"sort"
	"sync"

	"github.com/cloudwego/eino/schema"

	"hitl-chat/internal/tool"
)

// Registry 工具注册表：按名称注册、查找，同名后注册者覆盖先注册者。
// 启动后以读为主。
type Registry struct {
	mu    sync.RWMutex
	tools map[string]*tool.Definition
}

// New 创建新的 ToolRegistry
func New() *Registry {
	return &Registry{
		tools: make(map[string]*tool.Definition),
	}
}

// Register 注册工具；executor 为 nil 表示需要人工确认。返回是否覆盖了同名工具
func (r *Registry) Register(name, description string, input tool.Schema, executor tool.Executor) bool {
	return r.Add(&tool.Definition{
		Name:        name,
		Description: description,
		Schema:      input,
		Execute:     executor,
		Source:      tool.SourceBuiltin,
	})
}

// RegisterConfirmed 注册需要人工确认的工具，onApprove 在确认后执行
func (r *Registry) RegisterConfirmed(name, description string, input tool.Schema, onApprove tool.Executor) bool {
	return r.Add(&tool.Definition{
		Name:        name,
		Description: description,
		Schema:      input,
		OnApprove:   onApprove,
		Source:      tool.SourceBuiltin,
	})
}

// Add 注册完整定义，返回是否覆盖了同名工具
func (r *Registry) Add(def *tool.Definition) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, replaced := r.tools[def.Name]
	r.tools[def.Name] = def
	return replaced
}

// Get 按名称获取工具
func (r *Registry) Get(name string) (*tool.Definition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.tools[name]
	return d, ok
}

// ListNames 返回已注册工具名（升序）
func (r *Registry) ListNames() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// List 返回所有已注册工具（按名称升序）
func (r *Registry) List() []*tool.Definition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	list := make([]*tool.Definition, 0, len(r.tools))
	for _, d := range r.tools {
		list = append(list, d)
	}
	sort.Slice(list, func(i, j int) bool { return list[i].Name < list[j].Name })
	return list
}

// With 返回包含当前工具与 extra 的新注册表，本注册表不变
func (r *Registry) With(extra ...*tool.Definition) *Registry {
	out := New()
	for _, d := range r.List() {
		out.tools[d.Name] = d
	}
	for _, d := range extra {
		out.tools[d.Name] = d
	}
	return out
}

// ToolInfos 返回供模型使用的工具描述；filter 为 nil 时返回全部
func (r *Registry) ToolInfos(filter func(*tool.Definition) bool) []*schema.ToolInfo {
	var infos []*schema.ToolInfo
	for _, d := range r.List() {
		if filter != nil && !filter(d) {
			continue
		}
		infos = append(infos, d.ToolInfo())
	}
	return infos
}

// ConfirmationSet 需要人工确认的工具名集合：无自动执行器的工具加上 extra
func (r *Registry) ConfirmationSet(extra ...string) map[string]bool {
	set := make(map[string]bool)
	for _, d := range r.List() {
		if d.RequiresConfirmation() {
			set[d.Name] = true
		}
	}
	for _, name := range extra {
		set[name] = true
	}
	return set
}
