package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"hitl-chat/internal/chat"
	"hitl-chat/internal/gateway"
	"hitl-chat/internal/tool"
	"hitl-chat/internal/tool/registry"
)

// scriptedModel 每次 Stream 依次返回预设的一步输出
type scriptedModel struct {
	mu        sync.Mutex
	steps     [][]*schema.Message
	calls     int
	histories [][]*schema.Message
	tools     []*schema.ToolInfo
	err       error
}

func (m *scriptedModel) Generate(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	return schema.AssistantMessage("", nil), nil
}

func (m *scriptedModel) Stream(ctx context.Context, input []*schema.Message, opts ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.histories = append(m.histories, input)
	if m.err != nil {
		return nil, m.err
	}
	idx := m.calls
	m.calls++
	if idx >= len(m.steps) {
		return schema.StreamReaderFromArray([]*schema.Message{schema.AssistantMessage("done", nil)}), nil
	}
	return schema.StreamReaderFromArray(m.steps[idx]), nil
}

func (m *scriptedModel) WithTools(tools []*schema.ToolInfo) (model.ToolCallingChatModel, error) {
	m.mu.Lock()
	m.tools = tools
	m.mu.Unlock()
	return m, nil
}

func (m *scriptedModel) toolNames() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var names []string
	for _, t := range m.tools {
		names = append(names, t.Name)
	}
	return names
}

func textChunk(s string) *schema.Message {
	return schema.AssistantMessage(s, nil)
}

func callChunk(idx int, id, name, args string) *schema.Message {
	i := idx
	return &schema.Message{Role: schema.Assistant, ToolCalls: []schema.ToolCall{{
		Index:    &i,
		ID:       id,
		Type:     "function",
		Function: schema.FunctionCall{Name: name, Arguments: args},
	}}}
}

type bufSink struct {
	bytes.Buffer
	flushes int
}

func (b *bufSink) Flush() error {
	b.flushes++
	return nil
}

type frame struct {
	marker string
	event  map[string]any
}

func parseFrames(t *testing.T, raw string) []frame {
	t.Helper()
	var out []frame
	for _, chunk := range strings.Split(raw, "\n\n") {
		if chunk == "" {
			continue
		}
		require.True(t, strings.HasPrefix(chunk, "data: "), chunk)
		payload := strings.TrimPrefix(chunk, "data: ")
		if payload == "[DONE]" || payload == "[ERROR]" {
			out = append(out, frame{marker: payload})
			continue
		}
		var e map[string]any
		require.NoError(t, json.Unmarshal([]byte(payload), &e))
		out = append(out, frame{event: e})
	}
	return out
}

func types(frames []frame) []string {
	var out []string
	for _, f := range frames {
		if f.marker != "" {
			out = append(out, f.marker)
			continue
		}
		out = append(out, f.event["type"].(string))
	}
	return out
}

func find(frames []frame, typ string) []map[string]any {
	var out []map[string]any
	for _, f := range frames {
		if f.event != nil && f.event["type"] == typ {
			out = append(out, f.event)
		}
	}
	return out
}

func textOf(frames []frame) string {
	var b strings.Builder
	for _, e := range find(frames, "text-delta") {
		b.WriteString(e["delta"].(string))
	}
	return b.String()
}

type weatherSpy struct {
	mu    sync.Mutex
	calls int
	last  map[string]any
}

func (s *weatherSpy) exec(ctx context.Context, input map[string]any) (any, error) {
	s.mu.Lock()
	s.calls++
	s.last = input
	s.mu.Unlock()
	return map[string]any{"city": input["city"], "temperature": 18, "condition": "sunny"}, nil
}

func testRegistry(spy *weatherSpy) *registry.Registry {
	reg := registry.New()
	reg.RegisterConfirmed("getWeatherInformation", "Get the weather",
		tool.Object(map[string]*tool.Schema{"city": tool.String("city")}, "city"), spy.exec)
	reg.Register("getLocalTime", "Get the local time",
		tool.Object(map[string]*tool.Schema{"location": tool.String("tz")}),
		func(ctx context.Context, input map[string]any) (any, error) {
			return map[string]any{"time": "2026-10-15T10:00:00Z"}, nil
		})
	return reg
}

func userMessage(text string) chat.Message {
	return chat.Message{ID: "u1", Role: chat.RoleUser, Parts: []chat.Part{chat.TextPart(text)}}
}

// brokenSink 前 ok 次写入成功，之后模拟客户端断开
type brokenSink struct {
	bufSink
	ok       int
	attempts int
}

func (b *brokenSink) Write(p []byte) (int, error) {
	b.attempts++
	if b.attempts > b.ok {
		return 0, errors.New("write: broken pipe")
	}
	return b.bufSink.Write(p)
}

// downGateways 任何凭证都连接失败
type downGateways struct{ err error }

func (d downGateways) Get(ctx context.Context, creds gateway.Credentials) (*gateway.Gateway, error) {
	return nil, d.err
}

func platformCreds() *gateway.Credentials {
	return &gateway.Credentials{
		ProjectKey:   "demo-shop",
		AuthURL:      "https://auth.europe-west1.gcp.commercetools.com",
		APIURL:       "https://api.europe-west1.gcp.commercetools.com",
		ClientID:     "client",
		ClientSecret: "secret",
	}
}
