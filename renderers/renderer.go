// Package renderers turns a structured conversation and tool catalog into the
// prompt string a given model family was trained on.
package renderers

import (
	"fmt"

	"github.com/edgellm/edgellm/api"
)

type rendererFunc func(messages []api.Message, tools []api.Tool, addGenerationPrompt, enableThinking bool) (string, error)

// Render renders msgs with the named family renderer.
func Render(family string, msgs []api.Message, tools []api.Tool, addGenerationPrompt, enableThinking bool) (string, error) {
	renderer := rendererForFamily(family)
	if renderer == nil {
		return "", fmt.Errorf("unknown renderer %q", family)
	}
	return renderer(msgs, tools, addGenerationPrompt, enableThinking)
}

func rendererForFamily(family string) rendererFunc {
	switch family {
	case "qwen3", "qwen2", "chatml":
		return Qwen3Renderer
	default:
		return nil
	}
}

// ToolContinuation renders the prompt suffix that resumes generation after a
// dispatched tool call: the assistant turn so far, the call directive, the
// result, and a fresh assistant opener.
func ToolContinuation(family, assistantText string, call api.ToolCall, result any) (string, error) {
	switch family {
	case "qwen3", "qwen2", "chatml":
		return qwen3Continuation(assistantText, call, result)
	default:
		return "", fmt.Errorf("unknown renderer %q", family)
	}
}
