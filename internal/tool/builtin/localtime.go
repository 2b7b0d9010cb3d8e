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

package builtin

import (
	"context"
	"fmt"
	"time"

	"hitl-chat/internal/tool"
)

const LocalTimeToolName = "getLocalTime"

// LocalTimeTool 返回某个 IANA 时区的当前时间，自动执行
type LocalTimeTool struct {
	now func() time.Time
}

// NewLocalTimeTool 创建本地时间工具
func NewLocalTimeTool() *LocalTimeTool {
	return &LocalTimeTool{now: time.Now}
}

func (t *LocalTimeTool) Schema() tool.Schema {
	return tool.Object(map[string]*tool.Schema{
		"location": tool.String("IANA time zone, e.g. Europe/Paris. Defaults to UTC."),
	})
}

func (t *LocalTimeTool) Execute(ctx context.Context, input map[string]any) (any, error) {
	name := stringArg(input, "location")
	if name == "" {
		name = "UTC"
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("unknown time zone %q", name)
	}
	now := t.now().In(loc)
	return map[string]any{
		"location":  name,
		"time":      now.Format(time.RFC3339),
		"formatted": now.Format("Monday, January 2, 2006 15:04"),
	}, nil
}
