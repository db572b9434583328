package renderers

import (
	"encoding/json"
	"strings"

	"github.com/edgellm/edgellm/api"
)

const (
	imStart = "<|im_start|>"
	imEnd   = "<|im_end|>"
)

// marshalWithSpaces marshals v like encoding/json but with a space after each
// ':' and ',' outside string literals, matching the tool-JSON spacing the
// qwen family was trained on.
func marshalWithSpaces(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}

	out := make([]byte, 0, len(b)+len(b)/8)
	inStr, esc := false, false
	for _, c := range b {
		if inStr {
			out = append(out, c)
			if esc {
				esc = false
				continue
			}
			if c == '\\' {
				esc = true
				continue
			}
			if c == '"' {
				inStr = false
			}
			continue
		}
		switch c {
		case '"':
			inStr = true
			out = append(out, c)
		case ':':
			out = append(out, ':', ' ')
		case ',':
			out = append(out, ',', ' ')
		default:
			out = append(out, c)
		}
	}
	return out, nil
}

// Qwen3Renderer renders ChatML turns. When tools are offered the catalog is
// embedded in the system turn inside <tools> tags together with the
// <tool_call> emission instruction.
func Qwen3Renderer(messages []api.Message, tools []api.Tool, addGenerationPrompt, enableThinking bool) (string, error) {
	var sb strings.Builder

	var system string
	rest := messages
	if len(messages) > 0 && messages[0].Role == "system" {
		system = messages[0].Content
		rest = messages[1:]
	}

	if len(tools) > 0 {
		sb.WriteString(imStart + "system\n")
		if system != "" {
			sb.WriteString(system + "\n\n")
		}
		sb.WriteString("# Tools\n\nYou may call one or more functions to assist with the user query.\n\nYou are provided with function signatures within <tools></tools> XML tags:\n<tools>")
		for _, tool := range tools {
			sb.WriteString("\n")
			if b, err := marshalWithSpaces(tool); err == nil {
				sb.Write(b)
			}
		}
		sb.WriteString("\n</tools>\n\nFor each function call, return a json object with function name and arguments within <tool_call></tool_call> XML tags:\n<tool_call>\n{\"name\": <function-name>, \"arguments\": <args-json-object>}\n</tool_call>" + imEnd + "\n")
	} else if system != "" {
		sb.WriteString(imStart + "system\n" + system + imEnd + "\n")
	}

	for i, message := range rest {
		switch message.Role {
		case "user", "system":
			sb.WriteString(imStart + message.Role + "\n" + message.Content + imEnd + "\n")

		case "assistant":
			sb.WriteString(imStart + "assistant\n")
			if message.Content != "" {
				sb.WriteString(message.Content)
			}
			for j, call := range message.ToolCalls {
				if message.Content != "" || j > 0 {
					sb.WriteString("\n")
				}
				args, err := json.Marshal(call.Function.Arguments)
				if err != nil {
					args = []byte("{}")
				}
				sb.WriteString("<tool_call>\n{\"name\": \"" + call.Function.Name + "\", \"arguments\": " + string(args) + "}\n</tool_call>")
			}
			sb.WriteString(imEnd + "\n")

		case "tool":
			// Tool results render as user turns wrapped in <tool_response>;
			// consecutive results share one turn.
			prevTool := i > 0 && rest[i-1].Role == "tool"
			nextTool := i+1 < len(rest) && rest[i+1].Role == "tool"
			if !prevTool {
				sb.WriteString(imStart + "user\n")
			}
			sb.WriteString("<tool_response>\n" + message.Content + "\n</tool_response>")
			if nextTool {
				sb.WriteString("\n")
			} else {
				sb.WriteString(imEnd + "\n")
			}
		}
	}

	if addGenerationPrompt {
		sb.WriteString(imStart + "assistant\n")
		if !enableThinking {
			sb.WriteString("<think>\n\n</think>\n\n")
		}
	}

	return sb.String(), nil
}

// qwen3Continuation closes the assistant turn that produced call, feeds the
// tool result back as a <tool_response> user turn, and reopens the assistant
// turn so decoding can continue.
func qwen3Continuation(assistantText string, call api.ToolCall, result any) (string, error) {
	args, err := json.Marshal(call.Function.Arguments)
	if err != nil {
		args = []byte("{}")
	}
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	if assistantText != "" {
		sb.WriteString(assistantText + "\n")
	}
	sb.WriteString("<tool_call>\n{\"name\": \"" + call.Function.Name + "\", \"arguments\": " + string(args) + "}\n</tool_call>" + imEnd + "\n")
	sb.WriteString(imStart + "user\n<tool_response>\n" + string(resultJSON) + "\n</tool_response>" + imEnd + "\n")
	sb.WriteString(imStart + "assistant\n")
	return sb.String(), nil
}
