package tools

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgellm/edgellm/api"
)

func named(name string) api.Tool {
	return fnTool(name, "", objParams(nil))
}

func toolNames(tools []api.Tool) []string {
	out := make([]string, len(tools))
	for i, t := range tools {
		out[i] = NameOf(t)
	}
	return out
}

func TestMergeByName(t *testing.T) {
	cases := []struct {
		name  string
		base  []api.Tool
		extra []api.Tool
		want  []string
	}{
		{
			name:  "disjoint",
			base:  []api.Tool{named("a"), named("b")},
			extra: []api.Tool{named("c")},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "extra duplicates dropped",
			base:  []api.Tool{named("a"), named("b")},
			extra: []api.Tool{named("b"), named("c"), named("a")},
			want:  []string{"a", "b", "c"},
		},
		{
			name:  "base order preserved",
			base:  []api.Tool{named("z"), named("a")},
			extra: []api.Tool{named("m"), named("a")},
			want:  []string{"z", "a", "m"},
		},
		{
			name:  "unnamed always appended",
			base:  []api.Tool{named("a")},
			extra: []api.Tool{named(""), named("")},
			want:  []string{"a", "", ""},
		},
		{name: "both empty", want: []string{}},
		{
			name:  "duplicate within extra",
			base:  nil,
			extra: []api.Tool{named("x"), named("x")},
			want:  []string{"x"},
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got := toolNames(MergeByName(tt.base, tt.extra))
			if len(got) == 0 {
				got = []string{}
			}
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBuiltinsCatalog(t *testing.T) {
	r := Builtins()

	want := []string{"random", "add", "dump_ui", "global_action", "click_view_id", "click_text", "set_text_view_id"}
	assert.Equal(t, want, toolNames(r.Tools()))

	for _, name := range want {
		_, ok := r.Handler(name)
		assert.True(t, ok, "missing handler for %s", name)
	}
	_, ok := r.Handler("nope")
	assert.False(t, ok)
}

func TestRandomHandler(t *testing.T) {
	r := Builtins()
	h, _ := r.Handler("random")

	for i := 0; i < 50; i++ {
		out := h(map[string]any{"floor": 3.0, "ceiling": 7.0})
		v, ok := out["value"].(int)
		require.True(t, ok)
		require.GreaterOrEqual(t, v, 3)
		require.LessOrEqual(t, v, 7)
	}

	// Reversed bounds swap instead of failing.
	out := h(map[string]any{"floor": 9.0, "ceiling": 2.0})
	v := out["value"].(int)
	require.GreaterOrEqual(t, v, 2)
	require.LessOrEqual(t, v, 9)
}

func TestAddHandler(t *testing.T) {
	r := Builtins()
	h, _ := r.Handler("add")

	out := h(map[string]any{"a": 2.0, "b": 40.0})
	assert.Equal(t, 42.0, out["value"])

	out = h(map[string]any{})
	assert.Equal(t, 0.0, out["value"])
}

type fakeBridge struct {
	dump    string
	actions []string
}

func (b *fakeBridge) DumpUI() (string, error)        { return b.dump, nil }
func (b *fakeBridge) GlobalAction(name string) error { b.actions = append(b.actions, name); return nil }
func (b *fakeBridge) ClickViewID(string) error       { return nil }
func (b *fakeBridge) ClickText(string) error         { return nil }
func (b *fakeBridge) SetTextViewID(string, string) error {
	return nil
}

func TestBridgeHandlers(t *testing.T) {
	r := Builtins()
	dump, _ := r.Handler("dump_ui")
	action, _ := r.Handler("global_action")

	SetBridge(nil)
	out := dump(nil)
	assert.Equal(t, false, out["ok"])

	b := &fakeBridge{dump: "<root/>"}
	SetBridge(b)
	defer SetBridge(nil)

	out = dump(nil)
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, "<root/>", out["dump"])

	out = action(map[string]any{"name": "back"})
	assert.Equal(t, true, out["ok"])
	assert.Equal(t, []string{"back"}, b.actions)
}
