package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/localjobs/hiring-platform/internal/model"
	"github.com/localjobs/hiring-platform/pkg/logger"
)

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{
		"error": message,
	})
}

// writeServiceError maps domain errors onto HTTP statuses. Conflicts
// (already decided, quota exceeded, duplicate application, lifecycle guard)
// are business outcomes, not bugs, and surface as 409.
func writeServiceError(w http.ResponseWriter, log *logger.Logger, err error) {
	var vErr *model.ValidationError
	switch {
	case errors.As(err, &vErr):
		writeError(w, http.StatusBadRequest, vErr.Error())
	case errors.Is(err, model.ErrNotFound):
		writeError(w, http.StatusNotFound, "resource not found")
	case errors.Is(err, model.ErrUnauthorized):
		writeError(w, http.StatusForbidden, "not allowed")
	case errors.Is(err, model.ErrAlreadyDecided),
		errors.Is(err, model.ErrQuotaExceeded),
		errors.Is(err, model.ErrDuplicateApplication),
		errors.Is(err, model.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		log.Error("internal error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}
