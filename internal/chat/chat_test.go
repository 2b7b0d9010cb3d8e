package chat

import (
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessage_UnmarshalParts(t *testing.T) {
	raw := `{"id":"m1","role":"assistant","parts":[
		{"type":"step-start"},
		{"type":"text","text":"Checking"},
		{"type":"tool-getWeatherInformation","toolCallId":"c1","state":"input-available","input":{"city":"Paris"}},
		{"type":"tool","toolName":"sendEmail","toolCallId":"c2","state":"output-available","input":{},"output":"Yes, confirmed."},
		{"type":"dynamic-tool","toolName":"products.read","toolCallId":"c3","state":"output-available","output":{"count":2}}
	]}`
	var m Message
	require.NoError(t, json.Unmarshal([]byte(raw), &m))
	require.Len(t, m.Parts, 5)
	assert.Equal(t, PartOther, m.Parts[0].Type)
	assert.Equal(t, "Checking", m.Text())

	w := m.Parts[2]
	assert.Equal(t, "getWeatherInformation", w.ToolName)
	assert.Equal(t, StateInputAvailable, w.State)
	assert.Equal(t, map[string]any{"city": "Paris"}, w.Input)
	assert.False(t, w.HasOutput())

	e := m.Parts[3]
	assert.Equal(t, Approved, e.Decision)
	assert.Nil(t, e.Output)

	assert.Equal(t, "products.read", m.Parts[4].ToolName)
	assert.Equal(t, []int{2, 3, 4}, m.ToolParts())
}

func TestMessage_LegacyContent(t *testing.T) {
	var m Message
	require.NoError(t, json.Unmarshal([]byte(`{"role":"user","content":"What's the weather in Paris?"}`), &m))
	require.Len(t, m.Parts, 1)
	assert.Equal(t, "What's the weather in Paris?", m.Text())
}

func TestMessage_RejectsUnknownRole(t *testing.T) {
	var m Message
	assert.Error(t, json.Unmarshal([]byte(`{"role":"tool","parts":[]}`), &m))
}

func TestPart_ToolWithoutName(t *testing.T) {
	var p Part
	assert.Error(t, json.Unmarshal([]byte(`{"type":"tool","toolCallId":"x"}`), &p))
}

func TestPart_MarshalRoundTripKeepsSentinel(t *testing.T) {
	p := ToolPart("sendEmail", "c1", map[string]any{"to": "a"})
	p.State = StateOutputAvailable
	p.Decision = Denied
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"tool-sendEmail","toolName":"sendEmail","toolCallId":"c1","state":"output-available","input":{"to":"a"},"output":"No, denied."}`, string(data))

	var back Part
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, Denied, back.Decision)
}

func TestPart_MarshalOtherIsVerbatim(t *testing.T) {
	var p Part
	require.NoError(t, json.Unmarshal([]byte(`{"type":"reasoning","text":"hmm"}`), &p))
	data, err := json.Marshal(p)
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"reasoning","text":"hmm"}`, string(data))
}

func TestDecisionOf(t *testing.T) {
	assert.Equal(t, Approved, DecisionOf(ApprovalYes))
	assert.Equal(t, Denied, DecisionOf(ApprovalNo))
	assert.Equal(t, Pending, DecisionOf("yes"))
	assert.Equal(t, Pending, DecisionOf(nil))
	assert.Equal(t, Pending, DecisionOf(map[string]any{}))
	assert.Equal(t, "", Pending.Sentinel())
	assert.Equal(t, "approved", Approved.String())
}

func TestIsAwaitingConfirmation_Table(t *testing.T) {
	confirm := map[string]bool{"getWeatherInformation": true}
	states := []ToolState{StateInputStreaming, StateInputAvailable, StateOutputAvailable, StateOutputError}
	outputs := []struct {
		name     string
		output   any
		decision Decision
	}{
		{"none", nil, Pending},
		{"result", "Sunny, 20C", Pending},
		{"approved", nil, Approved},
		{"denied", nil, Denied},
	}
	for _, member := range []bool{true, false} {
		for _, st := range states {
			for _, out := range outputs {
				name := "getLocalTime"
				if member {
					name = "getWeatherInformation"
				}
				p := Part{Type: PartTool, ToolName: name, ToolCallID: "c", State: st, Output: out.output, Decision: out.decision}
				want := member && st == StateInputAvailable && out.name == "none"
				t.Run(fmt.Sprintf("member=%v/%s/%s", member, st, out.name), func(t *testing.T) {
					assert.Equal(t, want, IsAwaitingConfirmation(p, confirm))
				})
			}
		}
	}
	assert.False(t, IsAwaitingConfirmation(TextPart("hi"), confirm))
}

func TestHasPendingConfirmation(t *testing.T) {
	confirm := map[string]bool{"sendEmail": true}
	msgs := []Message{
		{Role: RoleUser, Parts: []Part{TextPart("send it")}},
		{Role: RoleAssistant, Parts: []Part{ToolPart("sendEmail", "c1", map[string]any{})}},
	}
	assert.True(t, HasPendingConfirmation(msgs, confirm))
	msgs[1].Parts[0].Decision = Approved
	assert.False(t, HasPendingConfirmation(msgs, confirm))
}

func TestCloneAll_IndependentParts(t *testing.T) {
	msgs := []Message{{Role: RoleUser, Parts: []Part{TextPart("a")}}}
	cp := CloneAll(msgs)
	cp[0].Parts[0].Text = "b"
	assert.Equal(t, "a", msgs[0].Parts[0].Text)
	assert.True(t, HasSystemMessage([]Message{{Role: RoleSystem}}))
	assert.False(t, HasSystemMessage(msgs))
}

func TestToolOutputEvent(t *testing.T) {
	p := ToolPart("x", "c1", nil)
	p.State, p.Output = StateOutputAvailable, "ok"
	assert.Equal(t, Event{Type: EventToolOutputAvailable, ToolCallID: "c1", Output: "ok"}, ToolOutputEvent(p))
	p.State, p.ErrorText = StateOutputError, "bad"
	assert.Equal(t, EventToolOutputError, ToolOutputEvent(p).Type)
}
