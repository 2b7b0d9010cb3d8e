package metrics

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePrometheus(t *testing.T) {
	ObserveRedaction("EMAIL", 2)
	ChatTurnsTotal.WithLabelValues("data", "complete").Inc()
	var buf bytes.Buffer
	require.NoError(t, WritePrometheus(&buf))
	out := buf.String()
	assert.Contains(t, out, `hitl_redactions_total{category="EMAIL"}`)
	assert.Contains(t, out, `hitl_chat_turns_total{mode="data",status="complete"} 1`)
}
