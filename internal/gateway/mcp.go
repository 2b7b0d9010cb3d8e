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
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"hitl-chat/internal/tool"
)

// MCPConfig 远端工具进程（stdio MCP server）启动参数。
// Args 中的 {projectKey} {authUrl} {apiUrl} {clientId} {clientSecret} {accessToken} 按凭证替换。
type MCPConfig struct {
	Command   string
	Args      []string
	TokenArgs []string // 使用 bearer token 时的参数；为空时使用默认
}

var (
	defaultClientArgs = []string{
		"-y", "@commercetools/mcp-essentials",
		"--tools=all",
		"--authType=client_credentials",
		"--clientId={clientId}",
		"--clientSecret={clientSecret}",
		"--projectKey={projectKey}",
		"--authUrl={authUrl}",
		"--apiUrl={apiUrl}",
	}
	defaultTokenArgs = []string{
		"-y", "@commercetools/mcp-essentials",
		"--tools=all",
		"--authType=auth_token",
		"--accessToken={accessToken}",
		"--projectKey={projectKey}",
		"--authUrl={authUrl}",
		"--apiUrl={apiUrl}",
	}
)

// NewMCPConnector 以 stdio 方式启动远端工具进程并完成 MCP 握手
func NewMCPConnector(cfg MCPConfig) Connector {
	if cfg.Command == "" {
		cfg.Command = "npx"
	}
	return func(ctx context.Context, creds Credentials) (Session, error) {
		args := cfg.Args
		if len(args) == 0 {
			args = defaultClientArgs
		}
		if creds.UsesToken() {
			args = cfg.TokenArgs
			if len(args) == 0 {
				args = defaultTokenArgs
			}
		}
		c, err := client.NewStdioMCPClient(cfg.Command, os.Environ(), expandArgs(args, creds)...)
		if err != nil {
			return nil, fmt.Errorf("启动远端工具进程失败: %w", err)
		}
		initReq := mcp.InitializeRequest{
			Params: mcp.InitializeParams{
				ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
				Capabilities:    mcp.ClientCapabilities{},
				ClientInfo: mcp.Implementation{
					Name:    "hitl-chat",
					Version: "1.0.0",
				},
			},
		}
		if _, err := c.Initialize(ctx, initReq); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("MCP 握手失败: %w", err)
		}
		return &mcpSession{client: c}, nil
	}
}

func expandArgs(args []string, c Credentials) []string {
	r := strings.NewReplacer(
		"{projectKey}", c.ProjectKey,
		"{authUrl}", c.AuthURL,
		"{apiUrl}", c.APIURL,
		"{clientId}", c.ClientID,
		"{clientSecret}", c.ClientSecret,
		"{accessToken}", c.AccessToken,
	)
	out := make([]string, len(args))
	for i, a := range args {
		out[i] = r.Replace(a)
	}
	return out
}

type mcpSession struct {
	client *client.Client
}

func (s *mcpSession) ListTools(ctx context.Context) ([]RemoteTool, error) {
	res, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	out := make([]RemoteTool, 0, len(res.Tools))
	for _, t := range res.Tools {
		out = append(out, RemoteTool{
			Name:        t.Name,
			Description: t.Description,
			Schema:      inputSchema(t),
		})
	}
	return out, nil
}

func inputSchema(t mcp.Tool) tool.Schema {
	m := map[string]any{
		"type":       t.InputSchema.Type,
		"properties": t.InputSchema.Properties,
		"required":   t.InputSchema.Required,
	}
	if len(t.InputSchema.Properties) == 0 && len(t.RawInputSchema) > 0 {
		var raw map[string]any
		if err := json.Unmarshal(t.RawInputSchema, &raw); err == nil {
			m = raw
		}
	}
	if s := tool.SchemaFromMap(m); s != nil {
		return *s
	}
	return tool.Schema{Type: "object"}
}

// CallTool 返回文本内容；文本是 JSON 时解析为结构化值。远端报错时返回 error
func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	res, err := s.client.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	})
	if err != nil {
		return nil, err
	}
	text := contentText(res.Content)
	if res.IsError {
		return nil, fmt.Errorf("%s", text)
	}
	var structured any
	if err := json.Unmarshal([]byte(text), &structured); err == nil {
		return structured, nil
	}
	return text, nil
}

func (s *mcpSession) Ping(ctx context.Context) error {
	return s.client.Ping(ctx)
}

func (s *mcpSession) Close() error {
	return s.client.Close()
}

func contentText(contents []mcp.Content) string {
	var parts []string
	for _, c := range contents {
		switch t := c.(type) {
		case mcp.TextContent:
			parts = append(parts, t.Text)
		case *mcp.TextContent:
			parts = append(parts, t.Text)
		default:
			if b, err := json.Marshal(c); err == nil {
				parts = append(parts, string(b))
			}
		}
	}
	return strings.Join(parts, "\n")
}
