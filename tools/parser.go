package tools

import (
	"encoding/json"
	"log/slog"
	"strings"

	"github.com/edgellm/edgellm/api"
)

const (
	callOpen  = "<tool_call>"
	callClose = "</tool_call>"
)

// Parser accumulates streamed model output and extracts balanced
// <tool_call>...</tool_call> JSON blocks. Text outside blocks is returned as
// plain content as soon as it can no longer be the start of an open tag.
type Parser struct {
	sb     strings.Builder
	inCall bool
	index  int
}

// Add feeds one token (or any chunk) into the parser and returns completed
// tool calls plus content safe to surface.
func (p *Parser) Add(s string) (calls []api.ToolCall, content string) {
	p.sb.WriteString(s)

	for {
		buf := p.sb.String()

		if p.inCall {
			end := strings.Index(buf, callClose)
			if end < 0 {
				return calls, content
			}
			if call, ok := parseCall(buf[:end]); ok {
				call.Function.Index = p.index
				p.index++
				calls = append(calls, call)
			}
			p.sb.Reset()
			p.sb.WriteString(buf[end+len(callClose):])
			p.inCall = false
			continue
		}

		start := strings.Index(buf, callOpen)
		if start >= 0 {
			content += buf[:start]
			p.sb.Reset()
			p.sb.WriteString(buf[start+len(callOpen):])
			p.inCall = true
			continue
		}

		// Hold back a suffix that could still grow into the open tag.
		keep := suffixOverlap(buf, callOpen)
		content += buf[:keep]
		p.sb.Reset()
		p.sb.WriteString(buf[keep:])
		return calls, content
	}
}

// Drain returns any buffered text once the stream has ended. An unterminated
// tool call is dropped.
func (p *Parser) Drain() string {
	if p.inCall {
		p.sb.Reset()
		p.inCall = false
		return ""
	}
	out := p.sb.String()
	p.sb.Reset()
	return out
}

// suffixOverlap returns the smallest index such that s[idx:] is a prefix of
// prefix; len(s) when no suffix overlaps.
func suffixOverlap(s, prefix string) int {
	max := min(len(s), len(prefix)-1)
	for i := max; i > 0; i-- {
		if strings.HasPrefix(prefix, s[len(s)-i:]) {
			return len(s) - i
		}
	}
	return len(s)
}

func parseCall(body string) (api.ToolCall, bool) {
	var payload struct {
		Name      string         `json:"name"`
		Arguments map[string]any `json:"arguments"`
	}
	if err := json.Unmarshal([]byte(strings.TrimSpace(body)), &payload); err != nil || payload.Name == "" {
		slog.Debug("discarding malformed tool call block", "body", body)
		return api.ToolCall{}, false
	}
	if payload.Arguments == nil {
		payload.Arguments = map[string]any{}
	}
	return api.ToolCall{
		Type:     "function",
		Function: api.ToolCallFunction{Name: payload.Name, Arguments: payload.Arguments},
	}, true
}
