// Package handler provides HTTP handlers for the API.
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

// JobHandler handles job endpoints.
type JobHandler struct {
	hiring *service.HiringService
	logger *logger.Logger
}

// NewJobHandler creates a new job handler.
func NewJobHandler(hiring *service.HiringService, log *logger.Logger) *JobHandler {
	return &JobHandler{hiring: hiring, logger: log}
}

// Create handles POST /api/v1/jobs
func (h *JobHandler) Create(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employerID := middleware.GetUserID(ctx)

	var req model.CreateJobRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.hiring.CreateJob(ctx, employerID, &req)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, job)
}

// Get handles GET /api/v1/jobs/:id
func (h *JobHandler) Get(w http.ResponseWriter, r *http.Request) {
	jobID := chi.URLParam(r, "id")
	if err := middleware.ValidateID(jobID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	job, err := h.hiring.GetJob(r.Context(), jobID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// UpdateStatus handles PATCH /api/v1/jobs/:id/status
func (h *JobHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employerID := middleware.GetUserID(ctx)
	jobID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(jobID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req model.UpdateJobStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	job, err := h.hiring.UpdateJobStatus(ctx, jobID, employerID, req.Status)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, job)
}

// Delete handles DELETE /api/v1/jobs/:id
func (h *JobHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	employerID := middleware.GetUserID(ctx)
	jobID := chi.URLParam(r, "id")

	if err := middleware.ValidateID(jobID); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.hiring.DeleteJob(ctx, jobID, employerID); err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
