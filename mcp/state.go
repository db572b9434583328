package mcp

import (
	"log/slog"
	"time"

	"github.com/edgellm/edgellm/api"
)

// ImageDelivery controls how image payloads from tools reach the client.
type ImageDelivery string

const (
	ImageDeliveryFile   ImageDelivery = "file"
	ImageDeliveryBase64 ImageDelivery = "base64"
	ImageDeliveryBoth   ImageDelivery = "both"
)

// ParseImageDelivery rewrites unrecognized values to "file".
func ParseImageDelivery(s string) ImageDelivery {
	switch ImageDelivery(s) {
	case ImageDeliveryFile, ImageDeliveryBase64, ImageDeliveryBoth:
		return ImageDelivery(s)
	}
	return ImageDeliveryFile
}

// ToolClient is the surface the orchestrator depends on; Client is the stdio
// implementation.
type ToolClient interface {
	ListTools() ([]ToolInfo, error)
	CallTool(name string, args map[string]any) (map[string]any, error)
	Close() error
}

// State carries everything the request pipeline needs to know about the
// external tool server.
type State struct {
	Client         ToolClient
	ToolNames      map[string]struct{}
	OpenAITools    []api.Tool
	MergeTools     bool
	MaxStringBytes int
	ImageDelivery  ImageDelivery
}

// Options configures Init.
type Options struct {
	Cmdline        string
	Timeout        time.Duration
	Transport      Transport
	Debug          bool
	MergeTools     bool
	MaxStringBytes int
}

// Init spawns the configured tool server and loads its catalog. Failures are
// warnings, not errors: the chat pipeline works without external tools.
func Init(opts Options) State {
	state := State{
		ToolNames:      map[string]struct{}{},
		MergeTools:     opts.MergeTools,
		MaxStringBytes: opts.MaxStringBytes,
		ImageDelivery:  ImageDeliveryFile,
	}
	if opts.Cmdline == "" {
		return state
	}

	client := NewClient(opts.Cmdline, opts.Timeout, opts.Transport, opts.Debug)
	if err := client.Start(); err != nil {
		slog.Warn("failed to initialize mcp server", "error", err)
		return state
	}

	tools, err := client.ListTools()
	if err != nil {
		slog.Warn("mcp tools/list failed", "error", err)
		state.Client = client
		return state
	}

	state.Client = client
	for _, t := range tools {
		if t.Name == "" {
			continue
		}
		state.ToolNames[t.Name] = struct{}{}
		state.OpenAITools = append(state.OpenAITools, toOpenAITool(t))
	}
	slog.Info("loaded mcp tools", "count", len(state.OpenAITools))
	return state
}

// toOpenAITool converts a server-advertised schema into the OpenAI shape
// offered in prompts.
func toOpenAITool(t ToolInfo) api.Tool {
	params := api.ToolFunctionParameters{
		Type:       "object",
		Properties: map[string]api.ToolProperty{},
	}

	if props, ok := t.InputSchema["properties"].(map[string]any); ok {
		for name, def := range props {
			defMap, ok := def.(map[string]any)
			if !ok {
				slog.Debug("mcp schema: property definition not an object", "tool", t.Name, "property", name)
				continue
			}
			prop := api.ToolProperty{}
			if s, ok := defMap["type"].(string); ok {
				prop.Type = s
			}
			if s, ok := defMap["description"].(string); ok {
				prop.Description = s
			}
			if items, ok := defMap["items"]; ok {
				prop.Items = items
			}
			params.Properties[name] = prop
		}
	}

	if required, ok := t.InputSchema["required"].([]any); ok {
		for _, req := range required {
			if s, ok := req.(string); ok {
				params.Required = append(params.Required, s)
			}
		}
	}

	return api.Tool{
		Type: "function",
		Function: api.ToolFunction{
			Name:        t.Name,
			Description: t.Description,
			Parameters:  params,
		},
	}
}
