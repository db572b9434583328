package llm

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/edgellm/edgellm/api"
)

// scriptBackend replays one canned output per Generate invocation, fed to
// onToken in small chunks.
type scriptBackend struct {
	outputs []string
	round   int
	prompts []string
}

func (b *scriptBackend) Generate(_ context.Context, prompt string, _ GenerateConfig, onToken func(string) bool) error {
	b.prompts = append(b.prompts, prompt)
	out := ""
	if b.round < len(b.outputs) {
		out = b.outputs[b.round]
	}
	b.round++

	for i := 0; i < len(out); i += 4 {
		end := min(i+4, len(out))
		if !onToken(out[i:end]) {
			return nil
		}
	}
	return nil
}

func (b *scriptBackend) Close() error { return nil }

func collectTokens(t *testing.T, r *Runner, cfg GenerateConfig) string {
	t.Helper()
	var sb strings.Builder
	err := r.Generate(context.Background(), r.Prefill("prompt"), cfg, func(tok string) bool {
		sb.WriteString(tok)
		return true
	})
	require.NoError(t, err)
	return sb.String()
}

func TestGeneratePlainPassthrough(t *testing.T) {
	backend := &scriptBackend{outputs: []string{"Hello there!"}}
	r := NewRunner(backend, nil, "qwen3")

	got := collectTokens(t, r, DefaultConfig())
	assert.Equal(t, "Hello there!", got)
	assert.Len(t, backend.prompts, 1)
}

func TestGenerateExecuteToolLoop(t *testing.T) {
	backend := &scriptBackend{outputs: []string{
		`I will use a tool. <tool_call>{"name":"add","arguments":{"a":1,"b":2}}</tool_call>`,
		`The answer is 3.`,
	}}
	r := NewRunner(backend, nil, "qwen3")

	var dispatched []api.ToolCall
	cfg := DefaultConfig()
	cfg.ToolCallback = func(call api.ToolCall) map[string]any {
		dispatched = append(dispatched, call)
		return map[string]any{"result": map[string]any{"value": 3.0}, "call": call}
	}

	got := collectTokens(t, r, cfg)

	require.Len(t, dispatched, 1)
	assert.Equal(t, "add", dispatched[0].Function.Name)
	assert.Equal(t, "I will use a tool. The answer is 3.", got)

	// The second round's prompt embeds the call and its result.
	require.Len(t, backend.prompts, 2)
	assert.Contains(t, backend.prompts[1], "<tool_call>")
	assert.Contains(t, backend.prompts[1], "<tool_response>")
	assert.Contains(t, backend.prompts[1], `"value":3`)
	assert.True(t, strings.HasSuffix(backend.prompts[1], "<|im_start|>assistant\n"))
}

func TestGenerateEmitModeStopsAtBoundary(t *testing.T) {
	backend := &scriptBackend{outputs: []string{
		`<tool_call>{"name":"add","arguments":{"a":1,"b":2}}</tool_call> trailing text`,
		`should never be requested`,
	}}
	r := NewRunner(backend, nil, "qwen3")

	var emitted []api.ToolCall
	cfg := DefaultConfig()
	cfg.ReturnToolCalls = true
	cfg.OnToolCall = func(call api.ToolCall) { emitted = append(emitted, call) }

	collectTokens(t, r, cfg)

	require.Len(t, emitted, 1)
	assert.Equal(t, "add", emitted[0].Function.Name)
	assert.Len(t, backend.prompts, 1, "emit mode must not start another round")
}

func TestGenerateAbortOnSinkFailure(t *testing.T) {
	backend := &scriptBackend{outputs: []string{"a very long answer that keeps going"}}
	r := NewRunner(backend, nil, "qwen3")

	seen := 0
	err := r.Generate(context.Background(), r.Prefill("p"), DefaultConfig(), func(string) bool {
		seen++
		return seen < 2
	})
	require.NoError(t, err)
	assert.Equal(t, 2, seen)
}

func TestGenerateToolRoundLimit(t *testing.T) {
	// A backend that calls a tool every round must be cut off.
	outputs := make([]string, maxToolRounds+5)
	for i := range outputs {
		outputs[i] = `<tool_call>{"name":"loop","arguments":{}}</tool_call>`
	}
	backend := &scriptBackend{outputs: outputs}
	r := NewRunner(backend, nil, "qwen3")

	calls := 0
	cfg := DefaultConfig()
	cfg.ToolCallback = func(api.ToolCall) map[string]any {
		calls++
		return map[string]any{"result": "again"}
	}

	err := r.Generate(context.Background(), r.Prefill("p"), cfg, func(string) bool { return true })
	require.NoError(t, err)
	assert.Equal(t, maxToolRounds, calls)
}
