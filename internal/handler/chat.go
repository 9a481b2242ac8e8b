// Package handler provides HTTP handlers for the API server.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/taskpilot-ai/taskpilot/internal/middleware"
	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
)

// ChatProcessor runs one chat turn. Implemented by agent.ChatAgent.
type ChatProcessor interface {
	ProcessMessage(ctx context.Context, userID, conversationID, message string) *model.ChatResponse
	AvailableTools() []string
}

// ChatHandler handles the natural-language chat endpoint.
type ChatHandler struct {
	agent  ChatProcessor
	logger *logger.Logger
}

// NewChatHandler creates a new chat handler.
func NewChatHandler(agent ChatProcessor, log *logger.Logger) *ChatHandler {
	return &ChatHandler{
		agent:  agent,
		logger: log,
	}
}

// Chat handles POST /api/v1/chat
//
// The turn itself never fails at the HTTP level: agent-side failures come
// back as an apologetic reply with the error field set, so the conversation
// stays usable.
func (h *ChatHandler) Chat(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req model.ChatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := middleware.ValidateMessageContent(req.Message); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.ConversationID != "" {
		if err := middleware.ValidateID(req.ConversationID); err != nil {
			writeError(w, http.StatusBadRequest, "invalid conversation ID format")
			return
		}
	}

	resp := h.agent.ProcessMessage(ctx, userID, req.ConversationID, req.Message)
	writeJSON(w, http.StatusOK, resp)
}

// Tools handles GET /api/v1/chat/tools
func (h *ChatHandler) Tools(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string][]string{
		"tools": h.agent.AvailableTools(),
	})
}
