package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/internal/middleware"
	"github.com/taskpilot-ai/taskpilot/internal/model"
	"github.com/taskpilot-ai/taskpilot/internal/store"
	"github.com/taskpilot-ai/taskpilot/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	store  *store.Store
	logger *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(st *store.Store, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{
		store:  st,
		logger: log,
	}
}

// loadOwned loads the conversation from the URL and enforces ownership.
func (h *ConversationHandler) loadOwned(w http.ResponseWriter, r *http.Request) (*model.Conversation, bool) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, "invalid conversation ID format")
		return nil, false
	}

	conv, err := h.store.GetConversation(ctx, conversationID)
	if err != nil {
		if errors.Is(err, store.ErrConversationNotFound) {
			writeError(w, http.StatusNotFound, "conversation not found")
		} else {
			h.logger.Error("failed to load conversation", zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to load conversation")
		}
		return nil, false
	}
	if conv.UserID != userID {
		writeError(w, http.StatusNotFound, "conversation not found")
		return nil, false
	}
	return conv, true
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	convs, err := h.store.ListConversationsByUser(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list conversations", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list conversations")
		return
	}

	writeJSON(w, http.StatusOK, &model.ListConversationsResponse{
		Conversations: convs,
		Total:         len(convs),
	})
}

// Get handles GET /api/v1/conversations/{id}
func (h *ConversationHandler) Get(w http.ResponseWriter, r *http.Request) {
	conv, ok := h.loadOwned(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// Update handles PUT /api/v1/conversations/{id}
func (h *ConversationHandler) Update(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conv, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	var req model.UpdateConversationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Title != "" {
		if err := middleware.ValidateTitle(req.Title); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		conv.Title = req.Title
	}
	conv.UpdatedAt = time.Now()

	if err := h.store.SaveConversation(ctx, conv); err != nil {
		h.logger.Error("failed to update conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to update conversation")
		return
	}

	writeJSON(w, http.StatusOK, conv)
}

// Delete handles DELETE /api/v1/conversations/{id}
func (h *ConversationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conv, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	if err := h.store.DeleteConversation(ctx, conv.ID); err != nil {
		h.logger.Error("failed to delete conversation", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to delete conversation")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Messages handles GET /api/v1/conversations/{id}/messages
func (h *ConversationHandler) Messages(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	conv, ok := h.loadOwned(w, r)
	if !ok {
		return
	}

	msgs, err := h.store.ListMessages(ctx, conv.ID)
	if err != nil {
		h.logger.Error("failed to list messages", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to list messages")
		return
	}

	writeJSON(w, http.StatusOK, &model.ListMessagesResponse{
		Messages: msgs,
		Total:    len(msgs),
	})
}
