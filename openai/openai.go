// Package openai provides the OpenAI-compatible request and response shapes
// for the chat completion surface, including this server's extensions
// (artifacts, tool_trace, tool_history, tool_trace_line).
package openai

import (
	"encoding/json"
	"log/slog"
	"strconv"

	"github.com/edgellm/edgellm/api"
)

const (
	FinishReasonStop      = "stop"
	FinishReasonToolCalls = "tool_calls"
)

// ChatCompletionRequest is the decoded POST /v1/chat/completions body.
// Generation knobs are read separately from the raw body map so unknown
// fields stay available to the options decoder.
type ChatCompletionRequest struct {
	Model            string        `json:"model"`
	Messages         []api.Message `json:"messages"`
	Tools            []api.Tool    `json:"tools"`
	Stream           bool          `json:"stream"`
	EnableThinking   bool          `json:"enable_thinking"`
	ToolMode         string        `json:"tool_mode"`
	McpImageDelivery string        `json:"mcp_image_delivery"`
}

type Message struct {
	Role      string     `json:"role"`
	Content   string     `json:"content"`
	ToolCalls []ToolCall `json:"tool_calls,omitempty"`
}

// ToolCall is the OpenAI wire form: arguments as a JSON-encoded string.
type ToolCall struct {
	ID       string `json:"id"`
	Index    int    `json:"index"`
	Type     string `json:"type"`
	Function struct {
		Name      string `json:"name"`
		Arguments string `json:"arguments"`
	} `json:"function"`
}

type Choice struct {
	Index        int     `json:"index"`
	Message      Message `json:"message"`
	FinishReason *string `json:"finish_reason"`
}

type ChunkChoice struct {
	Index        int     `json:"index"`
	Delta        Message `json:"delta"`
	FinishReason *string `json:"finish_reason"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type ChatCompletion struct {
	ID      string   `json:"id"`
	Object  string   `json:"object"`
	Created int64    `json:"created"`
	Model   string   `json:"model"`
	Choices []Choice `json:"choices"`
	Usage   Usage    `json:"usage"`

	ToolCalls   []ToolCall             `json:"tool_calls,omitempty"`
	Artifacts   []api.Artifact         `json:"artifacts,omitempty"`
	ToolTrace   []string               `json:"tool_trace,omitempty"`
	ToolHistory []api.ToolHistoryEntry `json:"tool_history,omitempty"`
}

type ChatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Created int64         `json:"created"`
	Model   string        `json:"model"`
	Choices []ChunkChoice `json:"choices"`

	ToolTraceLine string                 `json:"tool_trace_line,omitempty"`
	ToolCalls     []ToolCall             `json:"tool_calls,omitempty"`
	Artifacts     []api.Artifact         `json:"artifacts,omitempty"`
	ToolHistory   []api.ToolHistoryEntry `json:"tool_history,omitempty"`
}

// ToToolCalls converts collected directives to the wire form, assigning
// deterministic call ids derived from the response id.
func ToToolCalls(respID string, calls []api.ToolCall) []ToolCall {
	out := make([]ToolCall, len(calls))
	for i, call := range calls {
		out[i].ID = "call-" + respID + "-" + strconv.Itoa(i)
		out[i].Index = i
		out[i].Type = "function"
		out[i].Function.Name = call.Function.Name

		args, err := json.Marshal(call.Function.Arguments)
		if err != nil {
			slog.Error("could not marshal tool call arguments", "error", err)
			args = []byte("{}")
		}
		out[i].Function.Arguments = string(args)
	}
	return out
}
