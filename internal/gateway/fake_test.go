package gateway

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

type fakeSession struct {
	mu      sync.Mutex
	tools   []RemoteTool
	closed  atomic.Bool
	pingErr error
	calls   []string
}

func (s *fakeSession) ListTools(ctx context.Context) ([]RemoteTool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]RemoteTool(nil), s.tools...), nil
}

func (s *fakeSession) CallTool(ctx context.Context, name string, args map[string]any) (any, error) {
	s.mu.Lock()
	s.calls = append(s.calls, name)
	s.mu.Unlock()
	if name == "fail" {
		return nil, errors.New("remote failure")
	}
	return map[string]any{"tool": name, "args": args}, nil
}

func (s *fakeSession) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSession) Ping(ctx context.Context) error { return s.pingErr }

// countingConnector 记录建连次数与每次建立的会话
type countingConnector struct {
	attempts atomic.Int32
	delay    time.Duration
	err      error
	tools    []RemoteTool

	mu       sync.Mutex
	sessions []*fakeSession
}

func (c *countingConnector) connect(ctx context.Context, creds Credentials) (Session, error) {
	c.attempts.Add(1)
	if c.delay > 0 {
		select {
		case <-time.After(c.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if c.err != nil {
		return nil, c.err
	}
	s := &fakeSession{tools: c.tools}
	c.mu.Lock()
	c.sessions = append(c.sessions, s)
	c.mu.Unlock()
	return s, nil
}

func (c *countingConnector) session(i int) *fakeSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessions[i]
}

func testCreds(project string) Credentials {
	return Credentials{
		ProjectKey:   project,
		AuthURL:      "https://auth.europe-west1.gcp.commercetools.com",
		APIURL:       "https://api.europe-west1.gcp.commercetools.com",
		ClientID:     "client",
		ClientSecret: "secret",
	}
}

var sampleTools = []RemoteTool{
	{Name: "read_products", Description: "List products"},
	{Name: "create_cart", Description: "Create a cart"},
}
