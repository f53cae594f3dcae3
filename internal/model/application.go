package model

import "time"

// ApplicationStatus represents the decision state of an application.
type ApplicationStatus string

const (
	ApplicationStatusPending  ApplicationStatus = "pending"
	ApplicationStatusAccepted ApplicationStatus = "accepted"
	ApplicationStatusRejected ApplicationStatus = "rejected"
)

// Application represents a worker's request to be hired for a job. At most
// one application exists per (job, worker) pair. Once accepted or rejected
// the status is terminal.
type Application struct {
	ID           string            `json:"id"`
	JobID        string            `json:"job_id"`
	WorkerID     string            `json:"worker_id"`
	WorkerName   string            `json:"worker_name,omitempty"`
	Status       ApplicationStatus `json:"status"`
	CoverMessage string            `json:"cover_message,omitempty"`
	ProposedRate *float64          `json:"proposed_rate,omitempty"`
	CreatedAt    time.Time         `json:"created_at"`
	UpdatedAt    time.Time         `json:"updated_at"`
}

// SubmitApplicationRequest is the request to apply to a job.
type SubmitApplicationRequest struct {
	CoverMessage string   `json:"cover_message,omitempty"`
	ProposedRate *float64 `json:"proposed_rate,omitempty"`
	WorkerName   string   `json:"worker_name,omitempty"`
}

// AcceptResult is the outcome of an accept decision, including the cascade
// that fires when the last quota slot fills.
type AcceptResult struct {
	Application  *Application  `json:"application"`
	QuotaFilled  bool          `json:"quota_filled"`
	AutoRejected []Application `json:"auto_rejected,omitempty"`
}
