package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/edgellm/edgellm/api"
	"github.com/edgellm/edgellm/llm"
	"github.com/edgellm/edgellm/openai"
)

// streamChat emits the generation as server-sent chat.completion.chunk
// frames. Writes are blocking; the first failed write aborts generation and
// releases the model gate.
func (s *Server) streamChat(c *gin.Context, respID, modelName, prompt string, cfg llm.GenerateConfig, scratch *requestScratch) {
	c.Writer.Header().Set("Content-Type", "text/event-stream")
	c.Writer.Header().Set("Cache-Control", "no-cache")
	c.Writer.Header().Set("Connection", "keep-alive")
	c.Writer.WriteHeader(http.StatusOK)

	writeFailed := false
	writeFrame := func(v any) bool {
		if writeFailed {
			return false
		}
		data, err := json.Marshal(v)
		if err != nil {
			writeFailed = true
			return false
		}
		if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", data); err != nil {
			writeFailed = true
			return false
		}
		c.Writer.Flush()
		return true
	}

	chunk := func() openai.ChatCompletionChunk {
		return openai.ChatCompletionChunk{
			ID:      respID,
			Object:  "chat.completion.chunk",
			Created: time.Now().Unix(),
			Model:   modelName,
			Choices: []openai.ChunkChoice{{Delta: openai.Message{}}},
		}
	}

	sendTraceLine := func(line string) {
		frame := chunk()
		frame.ToolTraceLine = line
		writeFrame(frame)
	}

	// Tool activity surfaces immediately as trace-only chunks, before any
	// tokens that depend on the call's result.
	if cfg.ToolCallback != nil {
		orig := cfg.ToolCallback
		cfg.ToolCallback = func(call api.ToolCall) map[string]any {
			if name := call.Function.Name; name != "" {
				sendTraceLine(name)
			}
			return orig(call)
		}
	}
	if cfg.ReturnToolCalls && cfg.OnToolCall != nil {
		orig := cfg.OnToolCall
		cfg.OnToolCall = func(call api.ToolCall) {
			if name := call.Function.Name; name != "" {
				sendTraceLine(name)
			}
			orig(call)
		}
	}

	if err := s.gate.Acquire(c.Request.Context(), 1); err != nil {
		return
	}
	defer s.gate.Release(1)

	mctx := s.runner.Prefill(prompt)
	err := s.runner.Generate(c.Request.Context(), mctx, cfg, func(token string) bool {
		frame := chunk()
		frame.Choices[0].Delta = openai.Message{Role: "assistant", Content: sanitizeUTF8(token)}
		return writeFrame(frame)
	})
	if err != nil {
		writeFrame(api.NewError(http.StatusInternalServerError, err.Error()))
		writeDone(c)
		return
	}
	if writeFailed {
		return
	}

	final := chunk()
	finish := openai.FinishReasonStop
	if len(scratch.toolCallsOut) > 0 {
		finish = openai.FinishReasonToolCalls
		final.ToolCalls = openai.ToToolCalls(respID, scratch.toolCallsOut)
	}
	final.Choices[0].FinishReason = &finish
	final.Artifacts = scratch.artifactsOut
	final.ToolHistory = scratch.toolHistory
	writeFrame(final)

	writeDone(c)
}

func writeDone(c *gin.Context) {
	fmt.Fprint(c.Writer, "data: [DONE]\n\n")
	c.Writer.Flush()
}
