package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/edgellm/edgellm/api"
	"github.com/edgellm/edgellm/renderers"
	"github.com/edgellm/edgellm/tokenizer"
	"github.com/edgellm/edgellm/tools"
)

// maxToolRounds bounds the execute-mode dispatch loop so a model that keeps
// calling tools cannot spin forever.
const maxToolRounds = 8

// Context is the result of prefilling one prompt.
type Context struct {
	prompt       string
	PromptTokens int
}

// Runner is the Model the request pipeline talks to: it drives the backend
// and runs the tool-orchestration loop over its token stream.
type Runner struct {
	backend Backend
	tok     *tokenizer.Tokenizer
	family  string
}

func NewRunner(backend Backend, tok *tokenizer.Tokenizer, family string) *Runner {
	return &Runner{backend: backend, tok: tok, family: family}
}

// Open validates modelPath, constructs the registered backend, and loads the
// unigram tokenizer named by model.json. A broken tokenizer file is a
// warning; prompt token counts are then reported as zero.
func Open(modelPath string, useVulkan bool) (*Runner, error) {
	info, err := LoadInfo(modelPath)
	if err != nil {
		return nil, err
	}
	backend, err := newBackend(info, useVulkan)
	if err != nil {
		return nil, err
	}

	var tok *tokenizer.Tokenizer
	if path := info.TokenizerPath(); path != "" {
		tok, err = tokenizer.LoadFile(path, tokenizer.SpecialTokens{
			BOS: "<s>", EOS: "</s>", UNK: "<unk>", PAD: "<pad>",
		}, true, true, -10.0)
		if err != nil {
			slog.Warn("tokenizer load failed", "path", path, "error", err)
			tok = nil
		}
	}

	return NewRunner(backend, tok, info.Family), nil
}

func (r *Runner) Family() string { return r.family }

func (r *Runner) Tokenizer() *tokenizer.Tokenizer { return r.tok }

func (r *Runner) Close() error {
	return r.backend.Close()
}

// Prefill prepares a generation context for prompt.
func (r *Runner) Prefill(prompt string) *Context {
	c := &Context{prompt: prompt}
	if r.tok != nil {
		c.PromptTokens = len(r.tok.Encode(prompt, true, false, false, false))
	}
	return c
}

// Generate streams tokens to onToken. With tool hooks armed, structured
// directives in the output are routed per mode: execute dispatches
// cfg.ToolCallback and resumes decoding with the result folded into the
// prompt; emit hands the call to cfg.OnToolCall and stops at the boundary.
// onToken returning false aborts generation; that is not an error.
func (r *Runner) Generate(ctx context.Context, c *Context, cfg GenerateConfig, onToken func(string) bool) error {
	executeMode := !cfg.ReturnToolCalls && cfg.ToolCallback != nil
	emitMode := cfg.ReturnToolCalls && cfg.OnToolCall != nil
	if !executeMode && !emitMode {
		return r.backend.Generate(ctx, c.prompt, cfg, onToken)
	}

	prompt := c.prompt
	aborted := false
	emit := func(s string) bool {
		if s == "" {
			return true
		}
		if !onToken(s) {
			aborted = true
			return false
		}
		return true
	}

	for round := 0; ; round++ {
		var parser tools.Parser
		var pending []api.ToolCall
		var roundText string

		err := r.backend.Generate(ctx, prompt, cfg, func(token string) bool {
			calls, content := parser.Add(token)
			roundText += content
			if !emit(content) {
				return false
			}
			if len(calls) > 0 {
				// Stop decoding at the directive boundary; the loop decides
				// what happens next.
				pending = append(pending, calls...)
				return false
			}
			return true
		})
		if err != nil {
			return err
		}
		if aborted {
			return nil
		}

		if len(pending) == 0 {
			emit(parser.Drain())
			return nil
		}

		if emitMode {
			for _, call := range pending {
				cfg.OnToolCall(call)
			}
			return nil
		}

		if round >= maxToolRounds {
			slog.Warn("tool round limit reached, stopping generation", "rounds", round)
			return nil
		}

		assistantText := roundText
		for _, call := range pending {
			result := cfg.ToolCallback(call)
			cont, err := renderers.ToolContinuation(r.family, assistantText, call, result)
			if err != nil {
				return fmt.Errorf("render tool continuation: %w", err)
			}
			prompt += cont
			assistantText = ""
		}
	}
}
