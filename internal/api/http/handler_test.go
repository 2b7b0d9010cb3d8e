package http

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/hertz/pkg/app"
	"github.com/cloudwego/hertz/pkg/app/server"
	hconfig "github.com/cloudwego/hertz/pkg/common/config"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hitl-chat/internal/api/http/middleware"
	"hitl-chat/internal/chat"
	"hitl-chat/internal/gateway"
	"hitl-chat/internal/pipeline"
	"hitl-chat/pkg/config"
)

// bodySink 把流写入普通响应体，便于 ut.PerformRequest 读取
type bodySink struct{ c *app.RequestContext }

func (s bodySink) Write(p []byte) (int, error) {
	s.c.Response.AppendBody(p)
	return len(p), nil
}

func (s bodySink) Flush() error { return nil }

type fakePipeline struct {
	mu      sync.Mutex
	pending bool
	reqs    []pipeline.Request
	tools   []pipeline.ToolInfo
}

func (f *fakePipeline) record(req pipeline.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
}

func (f *fakePipeline) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.reqs)
}

func (f *fakePipeline) StreamData(ctx context.Context, req pipeline.Request, w pipeline.EventWriter) error {
	f.record(req)
	for _, e := range []chat.Event{
		{Type: chat.EventStart, MessageID: "msg-1"},
		{Type: chat.EventTextDelta, ID: "txt-1", Delta: "Hello"},
		{Type: chat.EventFinish, FinishReason: "stop"},
	} {
		if err := w.WriteEvent(e); err != nil {
			return err
		}
	}
	return w.Done()
}

func (f *fakePipeline) StreamText(ctx context.Context, req pipeline.Request, w pipeline.TextWriter) error {
	f.record(req)
	if err := w.WriteText("Hello, "); err != nil {
		return err
	}
	return w.WriteText("world")
}

func (f *fakePipeline) PendingConfirmation(msgs []chat.Message) bool { return f.pending }

func (f *fakePipeline) Tools(ctx context.Context, creds *gateway.Credentials) []pipeline.ToolInfo {
	return f.tools
}

type fakeGateways struct {
	result    gateway.ValidationResult
	validated []gateway.Credentials
	gw        *gateway.Gateway
}

func (f *fakeGateways) Lookup(creds gateway.Credentials) (*gateway.Gateway, bool) {
	return f.gw, f.gw != nil
}

func (f *fakeGateways) Validate(ctx context.Context, creds gateway.Credentials) gateway.ValidationResult {
	f.validated = append(f.validated, creds)
	return f.result
}

type stubSession struct{ tools []gateway.RemoteTool }

func (s *stubSession) ListTools(ctx context.Context) ([]gateway.RemoteTool, error) { return s.tools, nil }

func (s *stubSession) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	return "ok", nil
}

func (s *stubSession) Close() error { return nil }

func newTestServer(t *testing.T, p *fakePipeline, gws Gateways, opts RouterOptions) *server.Hertz {
	t.Helper()
	handler := NewHandler(p, nil)
	handler.newSink = func(c *app.RequestContext) pipeline.Sink { return bodySink{c: c} }
	handler.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }
	if gws != nil {
		handler.SetGateways(gws, gateway.Credentials{})
	}
	mw := middleware.NewMiddleware(config.APIConfig{CORS: config.CORSConfig{AllowOrigins: []string{"https://shop.example"}}}, nil)
	return NewRouter(handler, mw, opts).Build(":0")
}

func jsonBody(t *testing.T, v any) *ut.Body {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return &ut.Body{Body: bytes.NewReader(b), Len: len(b)}
}

func emptyBody() *ut.Body {
	return &ut.Body{Body: bytes.NewReader(nil), Len: 0}
}

var jsonHeader = ut.Header{Key: "Content-Type", Value: "application/json"}

func userTurn(text string) map[string]any {
	return map[string]any{
		"messages": []map[string]any{
			{"role": "user", "parts": []map[string]any{{"type": "text", "text": text}}},
		},
	}
}

func decodeError(t *testing.T, body []byte) ErrorResponse {
	t.Helper()
	var e ErrorResponse
	require.NoError(t, json.Unmarshal(body, &e))
	return e
}

func TestHealthCheck(t *testing.T) {
	h := newTestServer(t, &fakePipeline{}, nil, RouterOptions{})
	w := ut.PerformRequest(h.Engine, "GET", "/api/health", emptyBody())
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var body map[string]any
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.Equal(t, "2026-01-02T03:04:05Z", body["timestamp"])
}

func TestDataStream_WritesSSEFrames(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(t, p, nil, RouterOptions{})

	req := userTurn("What's the weather in Paris?")
	req["includeSummary"] = true
	w := ut.PerformRequest(h.Engine, "POST", "/api/chat/data-stream", jsonBody(t, req), jsonHeader)
	resp := w.Result()

	require.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "text/event-stream", string(resp.Header.ContentType()))
	body := string(resp.Body())
	assert.True(t, strings.HasPrefix(body, `data: {"type":"start"`), body)
	assert.Contains(t, body, `"delta":"Hello"`)
	assert.True(t, strings.HasSuffix(body, "data: [DONE]\n\n"), body)

	require.Equal(t, 1, p.calls())
	assert.True(t, p.reqs[0].IncludeSummary)
	require.Len(t, p.reqs[0].Messages, 1)
	assert.Equal(t, "What's the weather in Paris?", p.reqs[0].Messages[0].Text())
}

func TestDataStream_PassesCredentials(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(t, p, nil, RouterOptions{})

	req := userTurn("list products")
	req["commercetoolsCredentials"] = map[string]string{
		"projectKey":   "shop",
		"authUrl":      "https://auth.example.com",
		"apiUrl":       "https://api.example.com",
		"clientId":     "id",
		"clientSecret": "secret",
	}
	w := ut.PerformRequest(h.Engine, "POST", "/api/chat/data-stream", jsonBody(t, req), jsonHeader)
	require.Equal(t, 200, w.Result().StatusCode())
	require.Equal(t, 1, p.calls())
	require.NotNil(t, p.reqs[0].Credentials)
	assert.Equal(t, "shop", p.reqs[0].Credentials.ProjectKey)
}

func TestDataStream_RejectsBadInput(t *testing.T) {
	cases := []struct {
		name    string
		body    map[string]any
		pending bool
		status  int
		errType string
	}{
		{
			name:    "empty messages",
			body:    map[string]any{"messages": []any{}},
			status:  400,
			errType: ErrInvalidRequest,
		},
		{
			name: "malformed credential url",
			body: func() map[string]any {
				b := userTurn("hi")
				b["commercetoolsCredentials"] = map[string]string{
					"projectKey": "shop", "authUrl": "not a url", "apiUrl": "https://api.example.com",
					"clientId": "id", "clientSecret": "secret",
				}
				return b
			}(),
			status:  400,
			errType: string(gateway.KindInvalidURL),
		},
		{
			name: "missing credential field",
			body: func() map[string]any {
				b := userTurn("hi")
				b["commercetoolsCredentials"] = map[string]string{"projectKey": "shop"}
				return b
			}(),
			status:  400,
			errType: string(gateway.KindMissingFields),
		},
		{
			name:    "new message while confirmation pending",
			body:    userTurn("never mind"),
			pending: true,
			status:  409,
			errType: ErrPendingConfirmation,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := &fakePipeline{pending: tc.pending}
			h := newTestServer(t, p, nil, RouterOptions{})
			w := ut.PerformRequest(h.Engine, "POST", "/api/chat/data-stream", jsonBody(t, tc.body), jsonHeader)
			resp := w.Result()
			require.Equal(t, tc.status, resp.StatusCode(), string(resp.Body()))
			assert.Equal(t, tc.errType, decodeError(t, resp.Body()).ErrorType)
			assert.Zero(t, p.calls())
		})
	}
}

func TestDataStream_DecisionTurnNotBlockedByPending(t *testing.T) {
	// 最后一条是 assistant 的审批结果时不做 409 检查
	p := &fakePipeline{pending: true}
	h := newTestServer(t, p, nil, RouterOptions{})
	body := map[string]any{
		"messages": []map[string]any{
			{"role": "user", "parts": []map[string]any{{"type": "text", "text": "weather in Paris"}}},
			{"role": "assistant", "parts": []map[string]any{{
				"type": "tool-getWeatherInformation", "toolCallId": "call-1", "state": "input-available",
				"input": map[string]any{"city": "Paris"}, "output": "Yes, confirmed.",
			}}},
		},
	}
	w := ut.PerformRequest(h.Engine, "POST", "/api/chat/data-stream", jsonBody(t, body), jsonHeader)
	require.Equal(t, 200, w.Result().StatusCode())
	require.Equal(t, 1, p.calls())
	assert.Equal(t, chat.Approved, p.reqs[0].Messages[1].Parts[0].Decision)
}

func TestTextStream(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(t, p, nil, RouterOptions{})
	w := ut.PerformRequest(h.Engine, "POST", "/api/chat/text-stream", jsonBody(t, userTurn("hi")), jsonHeader)
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())
	assert.Equal(t, "text/plain; charset=utf-8", string(resp.Header.ContentType()))
	assert.Equal(t, "Hello, world", string(resp.Body()))
}

func TestTextStream_EmptyMessages(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(t, p, nil, RouterOptions{})
	w := ut.PerformRequest(h.Engine, "POST", "/api/chat/text-stream", jsonBody(t, map[string]any{}), jsonHeader)
	assert.Equal(t, 400, w.Result().StatusCode())
	assert.Zero(t, p.calls())
}

func TestValidateCredentials(t *testing.T) {
	gws := &fakeGateways{result: gateway.ValidationResult{
		Valid:     false,
		Error:     "Authentication failed.",
		ErrorType: gateway.KindAuthentication,
	}}
	h := newTestServer(t, &fakePipeline{}, gws, RouterOptions{})

	body := map[string]any{"credentials": map[string]string{
		"projectKey": "shop", "authUrl": "https://auth.example.com", "apiUrl": "https://api.example.com",
		"clientId": "id", "clientSecret": "wrong",
	}}
	w := ut.PerformRequest(h.Engine, "POST", "/api/commercetools/validate", jsonBody(t, body), jsonHeader)
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var result gateway.ValidationResult
	require.NoError(t, json.Unmarshal(resp.Body(), &result))
	assert.False(t, result.Valid)
	assert.Equal(t, gateway.KindAuthentication, result.ErrorType)
	require.Len(t, gws.validated, 1)
	assert.Equal(t, "wrong", gws.validated[0].ClientSecret)
}

func TestValidateCredentials_NoGateways(t *testing.T) {
	h := newTestServer(t, &fakePipeline{}, nil, RouterOptions{})
	w := ut.PerformRequest(h.Engine, "POST", "/api/commercetools/validate", jsonBody(t, map[string]any{}), jsonHeader)
	assert.Equal(t, 503, w.Result().StatusCode())
}

func TestGatewayStatus(t *testing.T) {
	t.Run("no credentials", func(t *testing.T) {
		h := newTestServer(t, &fakePipeline{}, &fakeGateways{}, RouterOptions{})
		w := ut.PerformRequest(h.Engine, "GET", "/api/commercetools/status", emptyBody())
		resp := w.Result()
		require.Equal(t, 200, resp.StatusCode())
		var st gateway.Status
		require.NoError(t, json.Unmarshal(resp.Body(), &st))
		assert.False(t, st.Connected)
		assert.Equal(t, gateway.StateDisconnected, st.State)
	})

	t.Run("connected", func(t *testing.T) {
		creds := gateway.Credentials{
			ProjectKey: "shop", AuthURL: "https://auth.example.com", APIURL: "https://api.example.com",
			AccessToken: "token",
		}
		session := &stubSession{tools: []gateway.RemoteTool{{Name: "read_products"}, {Name: "create_cart"}}}
		gw := gateway.New(func(ctx context.Context, c gateway.Credentials) (gateway.Session, error) {
			return session, nil
		}, gateway.Options{}, nil)
		require.NoError(t, gw.Connect(context.Background(), creds))

		h := newTestServer(t, &fakePipeline{}, &fakeGateways{gw: gw}, RouterOptions{})
		w := ut.PerformRequest(h.Engine, "POST", "/api/commercetools/status",
			jsonBody(t, map[string]any{"credentials": creds}), jsonHeader)
		resp := w.Result()
		require.Equal(t, 200, resp.StatusCode())
		assert.NotContains(t, string(resp.Body()), "token")

		var st gateway.Status
		require.NoError(t, json.Unmarshal(resp.Body(), &st))
		assert.True(t, st.Connected)
		assert.Equal(t, 2, st.ToolCount)
		assert.Equal(t, creds.Identity(), st.Identity)
	})
}

func TestListTools(t *testing.T) {
	p := &fakePipeline{tools: []pipeline.ToolInfo{
		{Name: "getLocalTime", Source: "builtin"},
		{Name: "getWeatherInformation", Source: "builtin", RequiresConfirmation: true},
	}}
	h := newTestServer(t, p, nil, RouterOptions{})
	w := ut.PerformRequest(h.Engine, "GET", "/api/tools", emptyBody())
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())

	var body struct {
		Tools []pipeline.ToolInfo `json:"tools"`
		Total int                 `json:"total"`
	}
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	assert.Equal(t, 2, body.Total)
	assert.True(t, body.Tools[1].RequiresConfirmation)
}

func TestMetricsEndpoint(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(t, p, nil, RouterOptions{Metrics: true})
	ut.PerformRequest(h.Engine, "POST", "/api/chat/data-stream", jsonBody(t, map[string]any{"messages": []any{}}), jsonHeader)

	w := ut.PerformRequest(h.Engine, "GET", "/metrics", emptyBody())
	resp := w.Result()
	require.Equal(t, 200, resp.StatusCode())
	assert.Contains(t, string(resp.Body()), "hitl_chat_turns_total")
}

func TestCORSPreflight(t *testing.T) {
	h := newTestServer(t, &fakePipeline{}, nil, RouterOptions{CORS: true})

	w := ut.PerformRequest(h.Engine, "OPTIONS", "/api/chat/data-stream", emptyBody(),
		ut.Header{Key: "Origin", Value: "https://shop.example"})
	resp := w.Result()
	assert.Equal(t, 204, resp.StatusCode())
	assert.Equal(t, "https://shop.example", string(resp.Header.Peek("Access-Control-Allow-Origin")))

	w = ut.PerformRequest(h.Engine, "GET", "/api/health", emptyBody(),
		ut.Header{Key: "Origin", Value: "https://evil.example"})
	resp = w.Result()
	assert.Equal(t, 200, resp.StatusCode())
	assert.Empty(t, string(resp.Header.Peek("Access-Control-Allow-Origin")))
}

func TestRateLimit(t *testing.T) {
	p := &fakePipeline{}
	h := newTestServer(t, p, nil, RouterOptions{RateLimit: true, RateLimitRPS: 1, RateLimitMax: time.Millisecond})

	first := ut.PerformRequest(h.Engine, "POST", "/api/chat/text-stream", jsonBody(t, userTurn("one")), jsonHeader)
	require.Equal(t, 200, first.Result().StatusCode())

	second := ut.PerformRequest(h.Engine, "POST", "/api/chat/text-stream", jsonBody(t, userTurn("two")), jsonHeader)
	resp := second.Result()
	require.Equal(t, 429, resp.StatusCode())
	assert.Equal(t, "RATE_LIMITED", decodeError(t, resp.Body()).ErrorType)
	assert.Equal(t, 1, p.calls())

	// 限流只作用于对话接口
	health := ut.PerformRequest(h.Engine, "GET", "/api/health", emptyBody())
	assert.Equal(t, 200, health.Result().StatusCode())
}

func TestServerOptions_CancelOnClientDisconnect(t *testing.T) {
	opts := hconfig.NewOptions(serverOptions("127.0.0.1:0"))
	assert.True(t, opts.SenseClientDisconnection)
	assert.Equal(t, "127.0.0.1:0", opts.Addr)
	assert.Equal(t, 5*time.Second, opts.ExitWaitTimeout)

	// 调用方追加的选项可以覆盖默认值
	opts = hconfig.NewOptions(serverOptions(":0", server.WithExitWaitTime(time.Second)))
	assert.Equal(t, time.Second, opts.ExitWaitTimeout)
	assert.True(t, opts.SenseClientDisconnection)
}
