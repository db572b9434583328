package server

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/emirpasic/gods/sets/hashset"

	"github.com/edgellm/edgellm/api"
	"github.com/edgellm/edgellm/mcp"
)

// imageGeneratorTools names the external tools whose results are image
// payloads subject to the delivery policy.
var imageGeneratorTools = map[string]bool{
	"sd_txt2img": true,
}

// toolCallback builds the execute-mode dispatcher for one request. Dispatch
// precedence is builtins first, then the external client for names in the
// allowed set. Every failure is folded into the JSON handed back to the
// model.
func (s *Server) toolCallback(scratch *requestScratch, allowed *hashset.Set, delivery mcp.ImageDelivery) func(api.ToolCall) map[string]any {
	return func(call api.ToolCall) map[string]any {
		name := call.Function.Name
		args := call.Function.Arguments
		if args == nil {
			args = map[string]any{}
		}
		if name == "" {
			return map[string]any{"error": "missing tool name", "call": call}
		}

		slog.Info("tool call", "name", name)
		scratch.toolTrace = append(scratch.toolTrace, name)
		scratch.toolHistory = append(scratch.toolHistory, api.ToolHistoryEntry{Name: name, Arguments: args})
		entry := &scratch.toolHistory[len(scratch.toolHistory)-1]

		if s.builtins != nil {
			if handler, ok := s.builtins.Handler(name); ok {
				t0 := time.Now()
				result := handler(args)
				entry.CostMs = time.Since(t0).Milliseconds()
				entry.OK = true
				entry.Result = result
				slog.Info("tool done (builtin)", "name", name, "cost_ms", entry.CostMs)
				return map[string]any{"result": result, "call": call}
			}
		}

		if s.mcpState.Client == nil || !allowed.Contains(name) {
			slog.Warn("tool rejected or unavailable", "name", name)
			entry.OK = false
			entry.Error = "tool not available"
			return map[string]any{"error": "tool not available", "name": name, "call": call}
		}

		var forcedURL, forcedPath string
		if imageGeneratorTools[name] {
			if delivery == mcp.ImageDeliveryFile || delivery == mcp.ImageDeliveryBoth {
				outdir := filepath.Join(s.webRoot, "generated")
				if err := os.MkdirAll(outdir, 0o755); err != nil {
					slog.Warn("could not create generated dir", "dir", outdir, "error", err)
					args["output"] = string(delivery)
				} else {
					filename := fmt.Sprintf("%s_%d.png", name, time.Now().UnixMilli())
					args["output"] = string(delivery)
					args["out_path"] = filepath.Join(outdir, filename)
					forcedURL = "/generated/" + filename
					forcedPath = filepath.Join(outdir, filename)
				}
			} else {
				args["output"] = "base64"
				delete(args, "out_path")
			}
		}

		s.mcpMu.Lock()
		t0 := time.Now()
		result, err := s.mcpState.Client.CallTool(name, args)
		entry.CostMs = time.Since(t0).Milliseconds()
		entry.OK = err == nil && result != nil
		if err != nil {
			entry.Error = err.Error()
		} else {
			entry.Result = result
		}
		s.mcpMu.Unlock()
		slog.Info("tool done (mcp)", "name", name, "ok", entry.OK, "cost_ms", entry.CostMs)

		if err != nil || result == nil {
			detail := ""
			if err != nil {
				detail = err.Error()
			}
			return map[string]any{"error": "mcp tools/call failed", "detail": detail, "call": call}
		}

		var summaries []map[string]any
		addArtifact := func(a api.Artifact) {
			key := artifactKey(a)
			if key != "" && scratch.artifactsSeen.Contains(key) {
				return
			}
			if key != "" {
				scratch.artifactsSeen.Add(key)
			}
			scratch.artifactsOut = append(scratch.artifactsOut, a)

			summary := map[string]any{"kind": a.Kind}
			if a.URL != "" {
				summary["url"] = a.URL
			}
			summaries = append(summaries, summary)
		}

		if forcedURL != "" {
			addArtifact(api.Artifact{
				Kind:     "image",
				MimeType: "image/png",
				Tool:     name,
				URL:      forcedURL,
				Path:     forcedPath,
			})
		}
		for _, a := range collectImageArtifacts(result) {
			a.Tool = name
			if a.URL == "" {
				a.URL = forcedURL
			}
			addArtifact(a)
		}

		safe := stripImagePayloads(result)
		safe = truncateLargeStrings(safe, s.mcpState.MaxStringBytes)
		resp := map[string]any{"result": safe, "call": call}
		if len(summaries) > 0 {
			resp["artifacts"] = summaries
		}
		return resp
	}
}
