package handler

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/localjobs/hiring-platform/internal/middleware"
	"github.com/localjobs/hiring-platform/internal/model"
	"github.com/localjobs/hiring-platform/internal/service"
	"github.com/localjobs/hiring-platform/pkg/logger"
)

// MessageHandler handles message endpoints.
type MessageHandler struct {
	messages *service.MessageChannel
	logger   *logger.Logger
}

// NewMessageHandler creates a new message handler.
func NewMessageHandler(msgs *service.MessageChannel, log *logger.Logger) *MessageHandler {
	return &MessageHandler{messages: msgs, logger: log}
}

// List handles GET /api/v1/conversations/:id/messages
// Without query params it returns the full ordered history; with
// ?after_sequence=N it acts as the poll fallback and returns only newer
// messages plus the advanced cursor.
func (h *MessageHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	seqParam := r.URL.Query().Get("after_sequence")
	if seqParam == "" {
		msgs, err := h.messages.List(ctx, conversationID, callerID)
		if err != nil {
			writeServiceError(w, h.logger, err)
			return
		}
		lastSeq := uint64(0)
		if len(msgs) > 0 {
			lastSeq = msgs[len(msgs)-1].Sequence
		}
		writeJSON(w, http.StatusOK, &model.ListMessagesResponse{
			Messages:     msgs,
			LastSequence: lastSeq,
		})
		return
	}

	afterSeq, err := strconv.ParseUint(seqParam, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid after_sequence")
		return
	}

	limit := 50
	if l := r.URL.Query().Get("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 && parsed <= 100 {
			limit = parsed
		}
	}

	resp, err := h.messages.Poll(ctx, conversationID, callerID, afterSeq, limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// Send handles POST /api/v1/conversations/:id/messages
func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SendMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	msg, err := h.messages.Send(ctx, conversationID, callerID, &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, &model.SendMessageResponse{Message: msg})
}
