package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/localjobs/hiring-platform/internal/middleware"
	"github.com/localjobs/hiring-platform/internal/model"
	"github.com/localjobs/hiring-platform/internal/service"
	"github.com/localjobs/hiring-platform/pkg/logger"
)

// ApplicationHandler handles application endpoints.
type ApplicationHandler struct {
	hiring *service.HiringService
	logger *logger.Logger
}

// NewApplicationHandler creates a new application handler.
func NewApplicationHandler(hiring *service.HiringService, log *logger.Logger) *ApplicationHandler {
	return &ApplicationHandler{hiring: hiring, logger: log}
}

// Submit handles POST /api/v1/jobs/:id/applications
func (h *ApplicationHandler) Submit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workerID := middleware.GetUserID(ctx)
	jobID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(jobID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.SubmitApplicationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.WorkerName == "" {
		req.WorkerName = middleware.GetUserName(ctx)
	}

	app, err := h.hiring.SubmitApplication(ctx, jobID, workerID, &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, app)
}

// ListByJob handles GET /api/v1/jobs/:id/applications
func (h *ApplicationHandler) ListByJob(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employerID := middleware.GetUserID(ctx)
	jobID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(jobID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	apps, err := h.hiring.ListApplications(ctx, jobID, employerID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applications": apps,
	})
}

// ListMine handles GET /api/v1/applications/mine
func (h *ApplicationHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	workerID := middleware.GetUserID(ctx)

	apps, err := h.hiring.ListMyApplications(ctx, workerID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"applications": apps,
	})
}

// Accept handles POST /api/v1/applications/:id/accept
func (h *ApplicationHandler) Accept(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employerID := middleware.GetUserID(ctx)
	applicationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(applicationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	result, err := h.hiring.Accept(ctx, applicationID, employerID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// Reject handles POST /api/v1/applications/:id/reject
func (h *ApplicationHandler) Reject(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employerID := middleware.GetUserID(ctx)
	applicationID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(applicationID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	app, err := h.hiring.Reject(ctx, applicationID, employerID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, app)
}
