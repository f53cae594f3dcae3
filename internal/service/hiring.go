// Package service provides business logic for the hiring platform.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localjobs/hiring-platform/internal/model"
	"github.com/localjobs/hiring-platform/internal/store"
	"github.com/localjobs/hiring-platform/pkg/logger"
	"github.com/localjobs/hiring-platform/pkg/metrics"
)

// acceptedEventTimeout bounds the detached notification delivery.
const acceptedEventTimeout = 10 * time.Second

// AcceptedHandler consumes the accepted event after the decision commits.
type AcceptedHandler func(ctx context.Context, event model.ApplicationAcceptedEvent)

// HiringService coordinates the hiring workflow: application intake, the
// accept/reject state machine with its quota invariant, and the job
// lifecycle around it.
type HiringService struct {
	store      store.Store
	logger     *logger.Logger
	onAccepted AcceptedHandler
}

// NewHiringService creates a new hiring service.
func NewHiringService(st store.Store, log *logger.Logger) *HiringService {
	return &HiringService{store: st, logger: log}
}

// SetAcceptedHandler registers the consumer of accepted events. Delivery is
// best-effort and happens after the decision has committed.
func (s *HiringService) SetAcceptedHandler(fn AcceptedHandler) {
	s.onAccepted = fn
}

// CreateJob posts a new job. WorkersNeeded defaults to 1 when omitted.
func (s *HiringService) CreateJob(ctx context.Context, employerID string, req *model.CreateJobRequest) (*model.Job, error) {
	if req.Title == "" {
		return nil, &model.ValidationError{Field: "title", Message: "cannot be empty"}
	}
	workersNeeded := req.WorkersNeeded
	if workersNeeded == 0 {
		workersNeeded = 1
	}
	if workersNeeded < 0 {
		return nil, &model.ValidationError{Field: "workers_needed", Message: "must be positive"}
	}

	now := time.Now()
	job := &model.Job{
		ID:            uuid.Must(uuid.NewV7()).String(),
		EmployerID:    employerID,
		Title:         req.Title,
		WorkersNeeded: workersNeeded,
		Status:        model.JobStatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := s.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("create job: %w", err)
	}

	s.logger.Info("job created",
		zap.String("job_id", job.ID),
		zap.String("employer_id", employerID),
		zap.Int("workers_needed", workersNeeded),
	)
	return job, nil
}

// GetJob retrieves a job by id.
func (s *HiringService) GetJob(ctx context.Context, jobID string) (*model.Job, error) {
	return s.store.GetJob(ctx, jobID)
}

// UpdateJobStatus moves a job through its lifecycle, enforcing the
// transition guard table. open->assigned is reserved for the quota cascade.
func (s *HiringService) UpdateJobStatus(ctx context.Context, jobID, employerID string, status model.JobStatus) (*model.Job, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.EmployerID != employerID {
		return nil, model.ErrUnauthorized
	}
	if !model.CanTransition(job.Status, status) {
		return nil, fmt.Errorf("%w: cannot move job from %s to %s", model.ErrConflict, job.Status, status)
	}
	if err := s.store.UpdateJobStatus(ctx, jobID, status); err != nil {
		return nil, err
	}

	s.logger.Info("job status updated",
		zap.String("job_id", jobID),
		zap.String("from", string(job.Status)),
		zap.String("to", string(status)),
	)
	return s.store.GetJob(ctx, jobID)
}

// DeleteJob removes a job. Jobs with accepted applications must transition
// through completed or cancelled first; deletion is refused with a conflict.
func (s *HiringService) DeleteJob(ctx context.Context, jobID, employerID string) error {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job.EmployerID != employerID {
		return model.ErrUnauthorized
	}
	if err := s.store.DeleteJob(ctx, jobID); err != nil {
		if errors.Is(err, model.ErrConflict) {
			return fmt.Errorf("%w: job has accepted applications, complete or cancel it first", model.ErrConflict)
		}
		return err
	}

	s.logger.Info("job deleted", zap.String("job_id", jobID))
	return nil
}

// SubmitApplication creates a pending application for a worker.
func (s *HiringService) SubmitApplication(ctx context.Context, jobID, workerID string, req *model.SubmitApplicationRequest) (*model.Application, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.EmployerID == workerID {
		return nil, &model.ValidationError{Field: "worker_id", Message: "cannot apply to your own job"}
	}
	if job.Status != model.JobStatusOpen {
		return nil, fmt.Errorf("%w: job is not open for applications", model.ErrConflict)
	}
	if req.ProposedRate != nil && *req.ProposedRate < 0 {
		return nil, &model.ValidationError{Field: "proposed_rate", Message: "must not be negative"}
	}

	now := time.Now()
	app := &model.Application{
		ID:           uuid.Must(uuid.NewV7()).String(),
		JobID:        jobID,
		WorkerID:     workerID,
		WorkerName:   req.WorkerName,
		Status:       model.ApplicationStatusPending,
		CoverMessage: req.CoverMessage,
		ProposedRate: req.ProposedRate,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.store.CreateApplication(ctx, app); err != nil {
		return nil, err
	}

	metrics.ApplicationsTotal.Inc()
	s.logger.Info("application submitted",
		zap.String("application_id", app.ID),
		zap.String("job_id", jobID),
		zap.String("worker_id", workerID),
	)
	return app, nil
}

// GetApplication retrieves an application visible to its worker or the
// job's employer.
func (s *HiringService) GetApplication(ctx context.Context, applicationID, callerID string) (*model.Application, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	job, err := s.store.GetJob(ctx, app.JobID)
	if err != nil {
		return nil, err
	}
	if callerID != app.WorkerID && callerID != job.EmployerID {
		return nil, model.ErrUnauthorized
	}
	return app, nil
}

// ListApplications returns all applications for a job, employer only.
func (s *HiringService) ListApplications(ctx context.Context, jobID, employerID string) ([]model.Application, error) {
	job, err := s.store.GetJob(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if job.EmployerID != employerID {
		return nil, model.ErrUnauthorized
	}
	return s.store.ListApplicationsByJob(ctx, jobID)
}

// ListMyApplications returns the caller's applications across jobs.
func (s *HiringService) ListMyApplications(ctx context.Context, workerID string) ([]model.Application, error) {
	return s.store.ListApplicationsByWorker(ctx, workerID)
}

// Accept decides an application in the worker's favor. The quota check and
// the cascade (auto-reject remaining pending, job to assigned when the last
// slot fills) execute as one atomic store operation; the accepted event is
// emitted only after that commits and cannot roll it back.
func (s *HiringService) Accept(ctx context.Context, applicationID, employerID string) (*model.AcceptResult, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	job, err := s.store.GetJob(ctx, app.JobID)
	if err != nil {
		return nil, err
	}
	if job.EmployerID != employerID {
		return nil, model.ErrUnauthorized
	}
	if app.Status != model.ApplicationStatusPending {
		return nil, model.ErrAlreadyDecided
	}

	result, err := s.store.AcceptWithinQuota(ctx, applicationID)
	if err != nil {
		if errors.Is(err, model.ErrQuotaExceeded) {
			metrics.RecordDecision("quota_exceeded")
		}
		return nil, err
	}

	metrics.RecordDecision("accepted")
	if result.QuotaFilled {
		metrics.AutoRejectedTotal.Add(float64(len(result.AutoRejected)))
	}
	s.logger.Info("application accepted",
		zap.String("application_id", applicationID),
		zap.String("job_id", job.ID),
		zap.Bool("quota_filled", result.QuotaFilled),
		zap.Int("auto_rejected", len(result.AutoRejected)),
	)

	s.emitAccepted(job, result.Application)
	return result, nil
}

// Reject decides an application against the worker. No quota interaction.
// The pending precondition is enforced inside the store write, so a reject
// can never overwrite an accept that committed concurrently.
func (s *HiringService) Reject(ctx context.Context, applicationID, employerID string) (*model.Application, error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	job, err := s.store.GetJob(ctx, app.JobID)
	if err != nil {
		return nil, err
	}
	if job.EmployerID != employerID {
		return nil, model.ErrUnauthorized
	}
	if app.Status != model.ApplicationStatusPending {
		return nil, model.ErrAlreadyDecided
	}

	rejected, err := s.store.RejectIfPending(ctx, applicationID)
	if err != nil {
		return nil, err
	}

	metrics.RecordDecision("rejected")
	s.logger.Info("application rejected",
		zap.String("application_id", applicationID),
		zap.String("job_id", job.ID),
	)
	return rejected, nil
}

// emitAccepted hands the event to the registered consumer on a detached
// context so a slow or failing consumer never affects the caller.
func (s *HiringService) emitAccepted(job *model.Job, app *model.Application) {
	if s.onAccepted == nil {
		return
	}
	event := model.ApplicationAcceptedEvent{
		ApplicationID: app.ID,
		JobID:         job.ID,
		JobTitle:      job.Title,
		EmployerID:    job.EmployerID,
		WorkerID:      app.WorkerID,
		WorkerName:    app.WorkerName,
		AcceptedAt:    app.UpdatedAt,
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), acceptedEventTimeout)
		defer cancel()
		s.onAccepted(ctx, event)
	}()
}
