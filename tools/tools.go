// Package tools holds the builtin tool registry, catalog merging, and the
// parser that extracts tool-call directives from streamed model output.
package tools

import (
	"math/rand"

	"github.com/emirpasic/gods/sets/hashset"
	"golang.org/x/exp/maps"

	"github.com/edgellm/edgellm/api"
)

// NameOf extracts a tool's function name; empty when the schema has none.
func NameOf(tool api.Tool) string {
	return tool.Function.Name
}

// MergeByName returns base followed by the entries of extra whose names are
// not already present. Entries without a name cannot collide and are appended
// unconditionally.
func MergeByName(base, extra []api.Tool) []api.Tool {
	out := make([]api.Tool, 0, len(base)+len(extra))
	seen := hashset.New()
	for _, t := range base {
		if name := NameOf(t); name != "" {
			seen.Add(name)
		}
		out = append(out, t)
	}
	for _, t := range extra {
		name := NameOf(t)
		if name != "" && seen.Contains(name) {
			continue
		}
		if name != "" {
			seen.Add(name)
		}
		out = append(out, t)
	}
	return out
}

// Handler executes one tool call. Handlers never return an error; failures
// are reported in the result object so the model can react to them.
type Handler func(args map[string]any) map[string]any

// Registry routes tool names to builtin handlers and keeps the catalog
// offered to the model.
type Registry struct {
	handlers map[string]Handler
	catalog  []api.Tool
}

func NewRegistry() *Registry {
	return &Registry{handlers: make(map[string]Handler)}
}

// Register adds a tool schema and its handler. Re-registering a name
// replaces the handler and leaves the catalog order unchanged.
func (r *Registry) Register(tool api.Tool, h Handler) {
	name := NameOf(tool)
	if _, exists := r.handlers[name]; !exists {
		r.catalog = append(r.catalog, tool)
	}
	r.handlers[name] = h
}

// Handler looks up a builtin by name.
func (r *Registry) Handler(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Tools returns the catalog in registration order.
func (r *Registry) Tools() []api.Tool {
	return append([]api.Tool(nil), r.catalog...)
}

// Names returns the registered names in no particular order.
func (r *Registry) Names() []string {
	return maps.Keys(r.handlers)
}

func argInt(args map[string]any, key string, fallback int) int {
	switch v := args[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func argFloat(args map[string]any, key string) float64 {
	switch v := args[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}

func argString(args map[string]any, key string) string {
	s, _ := args[key].(string)
	return s
}

func fnTool(name, description string, params api.ToolFunctionParameters) api.Tool {
	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}
}

func objParams(props map[string]api.ToolProperty, required ...string) api.ToolFunctionParameters {
	if props == nil {
		props = map[string]api.ToolProperty{}
	}
	return api.ToolFunctionParameters{Type: "object", Properties: props, Required: required}
}

// Builtins returns the registry of locally handled tools: small demo
// utilities plus the UI-automation bridge surface.
func Builtins() *Registry {
	r := NewRegistry()

	r.Register(fnTool("random", "Return a uniform random integer between floor and ceiling (inclusive)",
		objParams(map[string]api.ToolProperty{
			"floor":   {Type: "integer", Description: "lower bound"},
			"ceiling": {Type: "integer", Description: "upper bound"},
		}, "floor", "ceiling")),
		func(args map[string]any) map[string]any {
			lo := argInt(args, "floor", 0)
			hi := argInt(args, "ceiling", 1)
			if lo > hi {
				lo, hi = hi, lo
			}
			return map[string]any{"value": lo + rand.Intn(hi-lo+1)}
		})

	r.Register(fnTool("add", "Add two numbers",
		objParams(map[string]api.ToolProperty{
			"a": {Type: "number"},
			"b": {Type: "number"},
		}, "a", "b")),
		func(args map[string]any) map[string]any {
			return map[string]any{"value": argFloat(args, "a") + argFloat(args, "b")}
		})

	r.Register(fnTool("dump_ui", "Dump the UI tree of the current screen", objParams(nil)),
		func(args map[string]any) map[string]any {
			b := currentBridge()
			if b == nil {
				return bridgeUnavailable()
			}
			dump, err := b.DumpUI()
			if err != nil || dump == "" {
				return map[string]any{"ok": false, "error": "empty dump (service disabled or no active window?)"}
			}
			return map[string]any{"ok": true, "dump": truncateString(dump, 20000)}
		})

	r.Register(fnTool("global_action", "Perform a global navigation action (back, home, notifications, ...)",
		objParams(map[string]api.ToolProperty{
			"name": {Type: "string", Description: "action name"},
		}, "name")),
		func(args map[string]any) map[string]any {
			b := currentBridge()
			if b == nil {
				return bridgeUnavailable()
			}
			name := argString(args, "name")
			if err := b.GlobalAction(name); err != nil {
				return map[string]any{"ok": false, "action": name, "error": "global action failed or unsupported"}
			}
			return map[string]any{"ok": true, "action": name}
		})

	r.Register(fnTool("click_view_id", "Click the view with the given resource id",
		objParams(map[string]api.ToolProperty{
			"view_id": {Type: "string", Description: "e.g. com.example:id/btn_ok"},
		}, "view_id")),
		func(args map[string]any) map[string]any {
			b := currentBridge()
			if b == nil {
				return bridgeUnavailable()
			}
			viewID := argString(args, "view_id")
			if err := b.ClickViewID(viewID); err != nil {
				return map[string]any{"ok": false, "view_id": viewID, "error": "click failed (not found or not clickable)"}
			}
			return map[string]any{"ok": true, "view_id": viewID}
		})

	r.Register(fnTool("click_text", "Click the first view whose text matches",
		objParams(map[string]api.ToolProperty{
			"text": {Type: "string", Description: "visible text to click"},
		}, "text")),
		func(args map[string]any) map[string]any {
			b := currentBridge()
			if b == nil {
				return bridgeUnavailable()
			}
			text := argString(args, "text")
			if err := b.ClickText(text); err != nil {
				return map[string]any{"ok": false, "text": text, "error": "click failed (not found or not clickable)"}
			}
			return map[string]any{"ok": true, "text": text}
		})

	r.Register(fnTool("set_text_view_id", "Set the text of the input with the given resource id",
		objParams(map[string]api.ToolProperty{
			"view_id": {Type: "string", Description: "e.g. com.example:id/et_input"},
			"text":    {Type: "string", Description: "text to set (may be empty)"},
		}, "view_id", "text")),
		func(args map[string]any) map[string]any {
			b := currentBridge()
			if b == nil {
				return bridgeUnavailable()
			}
			viewID := argString(args, "view_id")
			text := argString(args, "text")
			if err := b.SetTextViewID(viewID, text); err != nil {
				return map[string]any{"ok": false, "view_id": viewID, "error": "setText failed (not found or not editable)"}
			}
			return map[string]any{"ok": true, "view_id": viewID, "text_len": len(text)}
		})

	return r
}

func bridgeUnavailable() map[string]any {
	return map[string]any{"ok": false, "error": "ui bridge not available"}
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "...(truncated)"
}
