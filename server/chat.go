package server

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/emirpasic/gods/sets/hashset"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/edgellm/edgellm/api"
	"github.com/edgellm/edgellm/llm"
	"github.com/edgellm/edgellm/mcp"
	"github.com/edgellm/edgellm/openai"
	"github.com/edgellm/edgellm/renderers"
	"github.com/edgellm/edgellm/tools"
)

// requestScratch is the per-request transient state shared by reference
// between the tool callback and the response emitter.
type requestScratch struct {
	artifactsOut  []api.Artifact
	artifactsSeen *hashset.Set
	toolTrace     []string
	toolHistory   []api.ToolHistoryEntry
	toolCallsOut  []api.ToolCall
}

func newRequestScratch() *requestScratch {
	return &requestScratch{artifactsSeen: hashset.New()}
}

func (s *Server) ChatHandler(c *gin.Context) {
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		abortWithError(c, http.StatusBadRequest, "failed to read request body")
		return
	}

	var req openai.ChatCompletionRequest
	if err := json.Unmarshal(body, &req); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	var raw map[string]any
	if err := json.Unmarshal(body, &raw); err != nil {
		abortWithError(c, http.StatusBadRequest, "Invalid JSON: "+err.Error())
		return
	}
	if _, ok := raw["messages"]; !ok {
		abortWithError(c, http.StatusBadRequest, "`messages` must be an array")
		return
	}
	if len(req.Messages) == 0 {
		abortWithError(c, http.StatusBadRequest, "`messages` must be a non-empty array")
		return
	}

	messages := req.Messages
	if messages[0].Role != "system" {
		messages = append([]api.Message{{Role: "system", Content: "You are a helpful assistant."}}, messages...)
	}

	// Merge the tool catalog: client tools first, then builtins, then the
	// external server's tools (which replace an empty catalog outright when
	// merging is disabled).
	toolList := req.Tools
	if s.builtins != nil {
		toolList = tools.MergeByName(toolList, s.builtins.Tools())
	}
	if len(s.mcpState.OpenAITools) > 0 {
		if s.mcpState.MergeTools {
			toolList = tools.MergeByName(toolList, s.mcpState.OpenAITools)
		} else if len(toolList) == 0 {
			toolList = s.mcpState.OpenAITools
		}
	}

	// Only names actually offered in the prompt are eligible for external
	// dispatch.
	allowed := hashset.New()
	for _, t := range toolList {
		name := tools.NameOf(t)
		if _, ok := s.mcpState.ToolNames[name]; ok {
			allowed.Add(name)
		}
	}

	cfg := llm.DefaultConfig()
	if err := cfg.Apply(raw); err != nil {
		abortWithError(c, http.StatusBadRequest, err.Error())
		return
	}

	modelName := req.Model
	if modelName == "" {
		modelName = defaultModelName
	}

	delivery := s.mcpState.ImageDelivery
	if v, ok := raw["mcp_image_delivery"].(string); ok {
		delivery = mcp.ParseImageDelivery(v)
	}

	scratch := newRequestScratch()
	emitToolCalls := req.ToolMode == "emit"

	if len(toolList) > 0 && emitToolCalls {
		cfg.ReturnToolCalls = true
		cfg.OnToolCall = func(call api.ToolCall) {
			if name := call.Function.Name; name != "" {
				scratch.toolTrace = append(scratch.toolTrace, name)
			}
			scratch.toolCallsOut = append(scratch.toolCallsOut, call)
		}
	} else if len(toolList) > 0 {
		cfg.ToolCallback = s.toolCallback(scratch, allowed, delivery)
	}

	prompt, err := renderers.Render(s.runner.Family(), messages, toolList, true, req.EnableThinking)
	if err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	respID := "chatcmpl-" + uuid.NewString()
	slog.Info("chat request",
		"model", modelName,
		"stream", req.Stream,
		"tools", len(toolList),
		"allowed_mcp", allowed.Size(),
		"prompt_bytes", len(prompt))

	if req.Stream {
		s.streamChat(c, respID, modelName, prompt, cfg, scratch)
		return
	}

	if err := s.gate.Acquire(c.Request.Context(), 1); err != nil {
		abortWithError(c, http.StatusInternalServerError, "request cancelled")
		return
	}
	defer s.gate.Release(1)

	var sb strings.Builder
	evalCount := 0
	mctx := s.runner.Prefill(prompt)
	if err := s.runner.Generate(c.Request.Context(), mctx, cfg, func(token string) bool {
		sb.WriteString(sanitizeUTF8(token))
		evalCount++
		return true
	}); err != nil {
		abortWithError(c, http.StatusInternalServerError, err.Error())
		return
	}

	usage := openai.Usage{
		PromptTokens:     mctx.PromptTokens,
		CompletionTokens: evalCount,
		TotalTokens:      mctx.PromptTokens + evalCount,
	}

	if len(scratch.toolCallsOut) > 0 {
		toolCalls := openai.ToToolCalls(respID, scratch.toolCallsOut)
		finish := openai.FinishReasonToolCalls
		c.JSON(http.StatusOK, openai.ChatCompletion{
			ID:      respID,
			Object:  "chat.completion",
			Created: time.Now().Unix(),
			Model:   modelName,
			Choices: []openai.Choice{{
				Message:      openai.Message{Role: "assistant", Content: "", ToolCalls: toolCalls},
				FinishReason: &finish,
			}},
			Usage:     usage,
			ToolCalls: toolCalls,
			ToolTrace: scratch.toolTrace,
		})
		return
	}

	finish := openai.FinishReasonStop
	c.JSON(http.StatusOK, openai.ChatCompletion{
		ID:      respID,
		Object:  "chat.completion",
		Created: time.Now().Unix(),
		Model:   modelName,
		Choices: []openai.Choice{{
			Message:      openai.Message{Role: "assistant", Content: sb.String()},
			FinishReason: &finish,
		}},
		Usage:       usage,
		Artifacts:   scratch.artifactsOut,
		ToolTrace:   scratch.toolTrace,
		ToolHistory: scratch.toolHistory,
	})
}
