package renderers

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/edgellm/edgellm/api"
)

func TestQwen3Renderer(t *testing.T) {
	addTool := api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        "add",
			Description: "add two integers",
			Parameters: api.ToolFunctionParameters{
				Type: "object",
				Properties: map[string]api.ToolProperty{
					"a": {Type: "integer"},
				},
				Required: []string{"a"},
			},
		},
	}

	cases := []struct {
		name           string
		messages       []api.Message
		tools          []api.Tool
		generate       bool
		thinking       bool
		expected       string
		expectContains []string
	}{
		{
			name: "basic conversation",
			messages: []api.Message{
				{Role: "system", Content: "You are a helpful assistant."},
				{Role: "user", Content: "Hello"},
			},
			generate: true,
			expected: "<|im_start|>system\nYou are a helpful assistant.<|im_end|>\n" +
				"<|im_start|>user\nHello<|im_end|>\n" +
				"<|im_start|>assistant\n<think>\n\n</think>\n\n",
		},
		{
			name: "thinking enabled omits empty think block",
			messages: []api.Message{
				{Role: "user", Content: "Hi"},
			},
			generate: true,
			thinking: true,
			expected: "<|im_start|>user\nHi<|im_end|>\n<|im_start|>assistant\n",
		},
		{
			name: "no generation prompt",
			messages: []api.Message{
				{Role: "user", Content: "Hi"},
				{Role: "assistant", Content: "Hello!"},
			},
			expected: "<|im_start|>user\nHi<|im_end|>\n<|im_start|>assistant\nHello!<|im_end|>\n",
		},
		{
			name: "tool catalog in system turn",
			messages: []api.Message{
				{Role: "system", Content: "Be brief."},
				{Role: "user", Content: "add 1 and 2"},
			},
			tools:    []api.Tool{addTool},
			generate: true,
			expectContains: []string{
				"<|im_start|>system\nBe brief.\n\n# Tools",
				"<tools>\n{\"type\": \"function\", \"function\": {\"name\": \"add\"",
				"</tools>",
				"<tool_call>\n{\"name\": <function-name>, \"arguments\": <args-json-object>}\n</tool_call><|im_end|>",
				"<|im_start|>assistant\n<think>\n\n</think>\n\n",
			},
		},
		{
			name: "assistant tool call and tool response",
			messages: []api.Message{
				{Role: "user", Content: "add 1 and 2"},
				{Role: "assistant", ToolCalls: []api.ToolCall{{
					Function: api.ToolCallFunction{Name: "add", Arguments: map[string]any{"a": 1.0}},
				}}},
				{Role: "tool", Content: `{"value":3}`},
			},
			generate: true,
			expected: "<|im_start|>user\nadd 1 and 2<|im_end|>\n" +
				"<|im_start|>assistant\n<tool_call>\n{\"name\": \"add\", \"arguments\": {\"a\":1}}\n</tool_call><|im_end|>\n" +
				"<|im_start|>user\n<tool_response>\n{\"value\":3}\n</tool_response><|im_end|>\n" +
				"<|im_start|>assistant\n<think>\n\n</think>\n\n",
		},
		{
			name: "consecutive tool responses share one turn",
			messages: []api.Message{
				{Role: "tool", Content: "one"},
				{Role: "tool", Content: "two"},
			},
			expected: "<|im_start|>user\n<tool_response>\none\n</tool_response>\n" +
				"<tool_response>\ntwo\n</tool_response><|im_end|>\n",
		},
	}

	for _, tt := range cases {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Qwen3Renderer(tt.messages, tt.tools, tt.generate, tt.thinking)
			if err != nil {
				t.Fatal(err)
			}
			if tt.expected != "" {
				if diff := cmp.Diff(tt.expected, got); diff != "" {
					t.Errorf("render mismatch (-want +got):\n%s", diff)
				}
			}
			for _, want := range tt.expectContains {
				if !strings.Contains(got, want) {
					t.Errorf("rendered prompt missing %q\nfull prompt:\n%s", want, got)
				}
			}
		})
	}
}

func TestRenderDispatch(t *testing.T) {
	msgs := []api.Message{{Role: "user", Content: "hi"}}

	for _, family := range []string{"qwen3", "qwen2", "chatml"} {
		if _, err := Render(family, msgs, nil, true, false); err != nil {
			t.Errorf("Render(%q) error: %v", family, err)
		}
	}

	if _, err := Render("not-a-family", msgs, nil, true, false); err == nil {
		t.Error("Render with unknown family should error")
	}
}
