package registry

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hitl-chat/internal/tool"
)

func echo(ctx context.Context, in map[string]any) (any, error) { return in, nil }

func TestRegistry_RegisterGetList(t *testing.T) {
	r := New()
	assert.False(t, r.Register("getLocalTime", "time", tool.Schema{}, echo))
	assert.False(t, r.RegisterConfirmed("sendEmail", "mail", tool.Schema{}, echo))

	d, ok := r.Get("getLocalTime")
	require.True(t, ok)
	assert.False(t, d.RequiresConfirmation())
	d, ok = r.Get("sendEmail")
	require.True(t, ok)
	assert.True(t, d.RequiresConfirmation())
	assert.NotNil(t, d.ApprovedExecutor())

	_, ok = r.Get("missing")
	assert.False(t, ok)
	assert.Equal(t, []string{"getLocalTime", "sendEmail"}, r.ListNames())
}

func TestRegistry_LastRegistrationWins(t *testing.T) {
	r := New()
	r.Register("x", "first", tool.Schema{}, echo)
	assert.True(t, r.Register("x", "second", tool.Schema{}, nil))
	d, _ := r.Get("x")
	assert.Equal(t, "second", d.Description)
	assert.True(t, d.RequiresConfirmation())
}

func TestRegistry_ConfirmationSet(t *testing.T) {
	r := New()
	r.Register("auto", "", tool.Schema{}, echo)
	r.Register("manual", "", tool.Schema{}, nil)
	assert.Equal(t, map[string]bool{"manual": true, "extra": true}, r.ConfirmationSet("extra"))
}

func TestRegistry_WithDoesNotMutate(t *testing.T) {
	r := New()
	r.Register("a", "", tool.Schema{}, echo)
	merged := r.With(&tool.Definition{Name: "remote", Source: tool.SourceRemote, Execute: echo})
	assert.Equal(t, []string{"a", "remote"}, merged.ListNames())
	assert.Equal(t, []string{"a"}, r.ListNames())
}

func TestRegistry_ToolInfos(t *testing.T) {
	r := New()
	r.Register("getWeatherInformation", "weather", tool.Object(map[string]*tool.Schema{
		"city": tool.String("city name"),
	}, "city"), nil)
	r.Register("getLocalTime", "time", tool.Schema{}, echo)

	auto := r.ToolInfos(func(d *tool.Definition) bool { return !d.RequiresConfirmation() })
	require.Len(t, auto, 1)
	assert.Equal(t, "getLocalTime", auto[0].Name)

	all := r.ToolInfos(nil)
	require.Len(t, all, 2)
	js, err := all[1].ParamsOneOf.ToJSONSchema()
	require.NoError(t, err)
	require.NotNil(t, js)
	assert.Contains(t, js.Required, "city")
}
