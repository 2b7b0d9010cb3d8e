package audit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hitl-chat/pkg/config"
)

func TestMemoryStore_RecordAndList(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	require.NoError(t, s.Record(ctx, Entry{ToolCallID: "c1", ToolName: "getWeatherInformation", Decision: "approved", Outcome: OutcomeOK, Duration: time.Second}))
	require.NoError(t, s.Record(ctx, Entry{ToolCallID: "c2", ToolName: "sendEmail", Decision: "denied", Outcome: OutcomeDenied}))

	got, err := s.List(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "getWeatherInformation", got[0].ToolName)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].CreatedAt.IsZero())

	none, err := s.List(ctx, "missing")
	require.NoError(t, err)
	assert.Empty(t, none)
	assert.Len(t, s.All(), 2)
}

func TestNewStore(t *testing.T) {
	ctx := context.Background()
	s, err := NewStore(ctx, config.AuditConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, s)

	_, err = NewStore(ctx, config.AuditConfig{Type: "postgres"})
	assert.Error(t, err)
	_, err = NewStore(ctx, config.AuditConfig{Type: "mongo"})
	assert.Error(t, err)
}
