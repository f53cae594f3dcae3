package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/localjobs/hiring-platform/internal/middleware"
	"github.com/localjobs/hiring-platform/internal/service"
	"github.com/localjobs/hiring-platform/pkg/logger"
)

// ConversationHandler handles conversation endpoints.
type ConversationHandler struct {
	conversations *service.ConversationService
	logger        *logger.Logger
}

// NewConversationHandler creates a new conversation handler.
func NewConversationHandler(convs *service.ConversationService, log *logger.Logger) *ConversationHandler {
	return &ConversationHandler{conversations: convs, logger: log}
}

// Open handles POST /api/v1/applications/:id/conversation
// Idempotent: repeated calls return the same conversation.
func (h *ConversationHandler) Open(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := middleware.GetUserID(ctx)
	applicationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(applicationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	conv, err := h.conversations.Open(ctx, applicationID, callerID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, conv)
}

// List handles GET /api/v1/conversations
func (h *ConversationHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := middleware.GetUserID(ctx)

	summaries, err := h.conversations.ListForUser(ctx, callerID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"conversations": summaries,
	})
}
