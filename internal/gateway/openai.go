package gateway

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/bashclaw/bashclaw/internal/bashclawerr"
	"github.com/bashclaw/bashclaw/internal/util"
)

// publicModelPrefixes map known OpenAI/Anthropic/Google-shaped model
// names to the "main" agent (§4.H.1); anything else is treated as a
// literal agent id.
var publicModelPrefixes = []string{"gpt-", "claude-", "gemini-"}

type openAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionsRequest struct {
	Model    string          `json:"model"`
	Stream   bool            `json:"stream"`
	Messages []openAIMessage `json:"messages"`
}

type chatCompletionChoice struct {
	Index        int           `json:"index"`
	Message      openAIMessage `json:"message"`
	FinishReason string        `json:"finish_reason"`
}

type chatCompletionUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type chatCompletionResponse struct {
	ID      string                  `json:"id"`
	Object  string                  `json:"object"`
	Model   string                  `json:"model"`
	Choices []chatCompletionChoice  `json:"choices"`
	Usage   chatCompletionUsage     `json:"usage"`
}

// handleChatCompletions implements the OpenAI-compatible shim (§4.H.1):
// a single non-streaming request translated into one engine.Run call.
func (s *Server) handleChatCompletions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "method not allowed"))
		return
	}
	if s.engine == nil {
		writeError(w, bashclawerr.New(bashclawerr.Internal, "agent engine not configured"))
		return
	}

	var req chatCompletionsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, bashclawerr.Wrap(bashclawerr.ValidationError, "request body required", err))
		return
	}
	if req.Stream {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "streaming not supported"))
		return
	}
	if len(req.Messages) == 0 {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "messages array is required"))
		return
	}

	var systemParts []string
	lastUserIdx := -1
	for i, m := range req.Messages {
		switch m.Role {
		case "system":
			systemParts = append(systemParts, m.Content)
		case "user":
			lastUserIdx = i
		}
	}
	if lastUserIdx == -1 {
		writeError(w, bashclawerr.New(bashclawerr.ValidationError, "no user message"))
		return
	}

	userContent := req.Messages[lastUserIdx].Content
	if len(systemParts) > 0 {
		userContent = "[System: " + strings.Join(systemParts, " ") + "]\n" + userContent
	}

	agentID := resolveAgentFromModel(req.Model)

	reply, err := s.engine.Run(r.Context(), agentID, userContent, "openai", "api", false)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			writeError(w, bashclawerr.New(bashclawerr.Timeout, "request deadline exceeded"))
			return
		}
		writeError(w, bashclawerr.Wrap(bashclawerr.Internal, "agent run failed", err))
		return
	}

	writeJSON(w, http.StatusOK, chatCompletionResponse{
		ID:     "chatcmpl-" + util.NewID(),
		Object: "chat.completion",
		Model:  req.Model,
		Choices: []chatCompletionChoice{{
			Index:        0,
			Message:      openAIMessage{Role: "assistant", Content: reply},
			FinishReason: "stop",
		}},
		Usage: chatCompletionUsage{},
	})
}

// resolveAgentFromModel applies §4.H.1's model→agent mapping: an
// explicit "agent:<id>" prefix wins, a recognized public model name
// maps to "main", anything else is treated as a literal agent id.
func resolveAgentFromModel(model string) string {
	if id, ok := strings.CutPrefix(model, "agent:"); ok {
		return id
	}
	for _, prefix := range publicModelPrefixes {
		if strings.HasPrefix(model, prefix) {
			return "main"
		}
	}
	if model == "" {
		return "main"
	}
	return model
}

type modelEntry struct {
	ID      string `json:"id"`
	Object  string `json:"object"`
	OwnedBy string `json:"owned_by"`
}

// handleModels serves a static OpenAI-shaped model catalogue over the
// configured agents (§4.H: "GET /v1/models").
func (s *Server) handleModels(w http.ResponseWriter, _ *http.Request) {
	var ids []string
	if s.cfg != nil {
		ids = s.cfg.AgentIDs()
	}
	if len(ids) == 0 {
		ids = []string{"main"}
	}
	models := make([]modelEntry, 0, len(ids))
	for _, id := range ids {
		models = append(models, modelEntry{ID: "agent:" + id, Object: "model", OwnedBy: "bashclaw"})
	}
	writeJSON(w, http.StatusOK, map[string]any{"object": "list", "data": models})
}
