// Package llm defines the inference backend boundary and the generation
// runner that drives it, including the tool-orchestration loop.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
)

// Backend is the low-level inference boundary: it turns a prompt into a token
// stream. Implementations live behind process or FFI boundaries and surface
// every failure as an error.
type Backend interface {
	// Generate streams decoded tokens to onToken until completion, error, or
	// onToken returning false.
	Generate(ctx context.Context, prompt string, cfg GenerateConfig, onToken func(token string) bool) error
	Close() error
}

// BackendFactory constructs a backend for a validated model directory.
type BackendFactory func(info Info, useVulkan bool) (Backend, error)

var backendFactory BackendFactory

// RegisterBackend installs the process-wide backend constructor. Typically
// called from an init function in a build-tagged binding package.
func RegisterBackend(f BackendFactory) {
	backendFactory = f
}

// Info describes a validated model directory.
type Info struct {
	Dir           string   `json:"-"`
	Family        string   `json:"family"`
	TokenizerFile string   `json:"tokenizer"`
	Params        []string `json:"-"`
}

// LoadInfo validates modelPath and reads model.json. A missing or unreadable
// model.json and stray files are warnings; an absent directory is an error.
func LoadInfo(modelPath string) (Info, error) {
	st, err := os.Stat(modelPath)
	if err != nil {
		return Info{}, fmt.Errorf("model path: %w", err)
	}
	if !st.IsDir() {
		return Info{}, fmt.Errorf("model path %s is not a directory", modelPath)
	}

	info := Info{Dir: modelPath, Family: "qwen3"}

	raw, err := os.ReadFile(filepath.Join(modelPath, "model.json"))
	switch {
	case err != nil:
		slog.Warn("model.json missing or unreadable, using defaults", "dir", modelPath, "error", err)
	case len(raw) == 0:
		slog.Warn("model.json is empty, using defaults", "dir", modelPath)
	default:
		if err := json.Unmarshal(raw, &info); err != nil {
			slog.Warn("model.json is not valid JSON, using defaults", "dir", modelPath, "error", err)
		}
	}
	if info.Family == "" {
		info.Family = "qwen3"
	}

	entries, err := os.ReadDir(modelPath)
	if err != nil {
		return Info{}, fmt.Errorf("read model directory: %w", err)
	}
	bins := map[string]bool{}
	var params []string
	for _, e := range entries {
		if !e.Type().IsRegular() {
			slog.Warn("skipping non-regular file in model directory", "name", e.Name())
			continue
		}
		switch filepath.Ext(e.Name()) {
		case ".param":
			params = append(params, e.Name())
		case ".bin":
			bins[strings.TrimSuffix(e.Name(), ".bin")] = true
		}
	}
	for _, p := range params {
		stem := strings.TrimSuffix(p, ".param")
		if !bins[stem] {
			slog.Warn("param file without matching weights", "param", p)
			continue
		}
		info.Params = append(info.Params, stem)
	}
	if len(info.Params) == 0 {
		slog.Warn("no param/bin weight pairs found", "dir", modelPath)
	}

	return info, nil
}

// TokenizerPath resolves the unigram vocabulary file, if configured.
func (i Info) TokenizerPath() string {
	if i.TokenizerFile == "" {
		return ""
	}
	return filepath.Join(i.Dir, i.TokenizerFile)
}

func newBackend(info Info, useVulkan bool) (Backend, error) {
	if backendFactory == nil {
		return nil, fmt.Errorf("no inference backend registered for %s", info.Dir)
	}
	return backendFactory(info, useVulkan)
}
