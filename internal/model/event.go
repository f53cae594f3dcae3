package model

import "time"

// ApplicationAcceptedEvent is emitted after an accept decision commits. It
// is consumed best-effort by the notification composer; delivery failures
// never roll back the decision.
type ApplicationAcceptedEvent struct {
	ApplicationID string    `json:"application_id"`
	JobID         string    `json:"job_id"`
	JobTitle      string    `json:"job_title"`
	EmployerID    string    `json:"employer_id"`
	WorkerID      string    `json:"worker_id"`
	WorkerName    string    `json:"worker_name"`
	AcceptedAt    time.Time `json:"accepted_at"`
}

// ErrorEvent represents an error delivered over an SSE stream.
type ErrorEvent struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// HeartbeatEvent keeps SSE connections alive through idle proxies.
type HeartbeatEvent struct {
	Timestamp time.Time `json:"timestamp"`
}
