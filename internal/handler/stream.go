package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/localjobs/hiring-platform/internal/middleware"
	"github.com/localjobs/hiring-platform/internal/model"
	"github.com/localjobs/hiring-platform/internal/service"
	"github.com/localjobs/hiring-platform/pkg/logger"
	"github.com/localjobs/hiring-platform/pkg/metrics"
)

const heartbeatInterval = 30 * time.Second

// StreamHandler handles the SSE push delivery path.
type StreamHandler struct {
	messages *service.MessageChannel
	logger   *logger.Logger
}

// NewStreamHandler creates a new stream handler.
func NewStreamHandler(msgs *service.MessageChannel, log *logger.Logger) *StreamHandler {
	return &StreamHandler{messages: msgs, logger: log}
}

// ReplayCompleteEvent marks the end of cursor replay on a stream.
type ReplayCompleteEvent struct {
	LastSequence uint64 `json:"last_sequence"`
	MessageCount int    `json:"message_count"`
}

// Stream handles GET /api/v1/conversations/:id/stream
// Supports ?after_sequence=N to resume from a cursor: missed messages are
// replayed from the durable log before live delivery begins, and the
// sequence guard keeps replay and push from rendering the same message
// twice or out of order.
func (h *StreamHandler) Stream(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := middleware.GetUserID(ctx)
	conversationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(conversationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var afterSequence uint64
	if seqStr := r.URL.Query().Get("after_sequence"); seqStr != "" {
		if seq, err := strconv.ParseUint(seqStr, 10, 64); err == nil {
			afterSequence = seq
		}
	}

	// Register for live messages before replay so nothing falls in the gap.
	live := make(chan model.Message, 64)
	sub, err := h.messages.Subscribe(ctx, conversationID, callerID, func(msg model.Message) {
		select {
		case live <- msg:
		default:
			// Stream buffer full; the client recovers via its cursor.
		}
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	defer sub.Unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	metrics.IncrementSSEConnections()
	defer metrics.DecrementSSEConnections()

	done := ctx.Done()

	sendSSEEvent(w, flusher, "connected", map[string]string{
		"conversation_id": conversationID,
	})

	// Replay from the cursor in batches.
	lastSequence := afterSequence
	totalReplayed := 0

	for {
		resp, err := h.messages.Poll(ctx, conversationID, callerID, lastSequence, 50)
		if err != nil {
			h.logger.Error("failed to replay messages")
			sendSSEEvent(w, flusher, "error", &model.ErrorEvent{
				Code:    "replay_error",
				Message: "Failed to replay messages",
			})
			return
		}

		for _, msg := range resp.Messages {
			select {
			case <-done:
				return
			default:
			}
			sendSSEEvent(w, flusher, "message", msg)
			lastSequence = msg.Sequence
			totalReplayed++
		}
		sub.MarkSeen(resp.Messages)

		if !resp.HasMore {
			break
		}
	}

	sendSSEEvent(w, flusher, "replay_complete", &ReplayCompleteEvent{
		LastSequence: lastSequence,
		MessageCount: totalReplayed,
	})

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-done:
			return

		case msg := <-live:
			// Replay may already have rendered this one.
			if msg.Sequence <= lastSequence {
				continue
			}
			sendSSEEvent(w, flusher, "message", msg)
			lastSequence = msg.Sequence

		case <-heartbeat.C:
			sendSSEEvent(w, flusher, "heartbeat", &model.HeartbeatEvent{
				Timestamp: time.Now(),
			})
		}
	}
}

func sendSSEEvent(w http.ResponseWriter, flusher http.Flusher, event string, data interface{}) error {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return err
	}

	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", jsonData)
	flusher.Flush()

	return nil
}
