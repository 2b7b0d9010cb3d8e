package gateway

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManager_ConcurrentGetConnectsOnce(t *testing.T) {
	conn := &countingConnector{tools: sampleTools, delay: 50 * time.Millisecond}
	m := NewManager(conn.connect, ManagerOptions{}, nil)
	ctx := context.Background()

	var wg sync.WaitGroup
	gws := make([]*Gateway, 10)
	for i := range gws {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			gw, err := m.Get(ctx, testCreds("demo"))
			assert.NoError(t, err)
			gws[i] = gw
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), conn.attempts.Load())
	for _, gw := range gws {
		assert.Same(t, gws[0], gw)
	}
	assert.Equal(t, 1, m.Len())
}

func TestManager_SeparateIdentities(t *testing.T) {
	conn := &countingConnector{tools: sampleTools}
	m := NewManager(conn.connect, ManagerOptions{}, nil)
	ctx := context.Background()

	a, err := m.Get(ctx, testCreds("a"))
	require.NoError(t, err)
	b, err := m.Get(ctx, testCreds("b"))
	require.NoError(t, err)
	assert.NotSame(t, a, b)
	assert.Equal(t, 2, m.Len())

	again, err := m.Get(ctx, testCreds("a"))
	require.NoError(t, err)
	assert.Same(t, a, again)
	assert.Equal(t, int32(2), conn.attempts.Load())
}

func TestManager_FailedConnectNotCached(t *testing.T) {
	conn := &countingConnector{err: errors.New("dial tcp: connection refused")}
	m := NewManager(conn.connect, ManagerOptions{}, nil)

	_, err := m.Get(context.Background(), testCreds("demo"))
	assert.Equal(t, KindNetwork, Classify(err))
	assert.Equal(t, 0, m.Len())
}

func TestManager_CancelledRequestDoesNotAbortConnect(t *testing.T) {
	conn := &countingConnector{tools: sampleTools, delay: 20 * time.Millisecond}
	m := NewManager(conn.connect, ManagerOptions{}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	gw, err := m.Get(ctx, testCreds("demo"))
	require.NoError(t, err)
	assert.True(t, gw.Status().Connected)
}

func TestManager_SweepDropsDeadAndIdle(t *testing.T) {
	conn := &countingConnector{tools: sampleTools}
	m := NewManager(conn.connect, ManagerOptions{IdleTTL: time.Minute}, nil)
	now := time.Unix(1000, 0)
	m.now = func() time.Time { return now }
	ctx := context.Background()

	_, err := m.Get(ctx, testCreds("alive"))
	require.NoError(t, err)
	_, err = m.Get(ctx, testCreds("dead"))
	require.NoError(t, err)
	conn.session(1).pingErr = errors.New("broken pipe")

	assert.Equal(t, 1, m.Sweep(ctx))
	assert.Equal(t, 1, m.Len())
	assert.True(t, conn.session(1).closed.Load())
	_, ok := m.Lookup(testCreds("alive"))
	assert.True(t, ok)

	now = now.Add(2 * time.Minute)
	assert.Equal(t, 1, m.Sweep(ctx))
	assert.Equal(t, 0, m.Len())
}

func TestManager_DisconnectAndShutdown(t *testing.T) {
	conn := &countingConnector{tools: sampleTools}
	m := NewManager(conn.connect, ManagerOptions{SweepInterval: time.Hour}, nil)
	ctx := context.Background()
	m.Start(ctx)

	_, err := m.Get(ctx, testCreds("a"))
	require.NoError(t, err)
	_, err = m.Get(ctx, testCreds("b"))
	require.NoError(t, err)

	require.NoError(t, m.Disconnect(testCreds("a")))
	require.NoError(t, m.Disconnect(testCreds("a")))
	assert.True(t, conn.session(0).closed.Load())
	assert.Equal(t, 1, m.Len())

	require.NoError(t, m.Shutdown(ctx))
	require.NoError(t, m.Shutdown(ctx))
	assert.True(t, conn.session(1).closed.Load())
	assert.Equal(t, 0, m.Len())
}
