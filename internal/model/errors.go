package model

import "errors"

var (
	// ErrNotFound is returned when a referenced entity does not exist.
	ErrNotFound = errors.New("resource not found")
	// ErrUnauthorized is returned when the caller is not a legitimate participant.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAlreadyDecided is returned when accepting or rejecting a non-pending application.
	ErrAlreadyDecided = errors.New("application already decided")
	// ErrQuotaExceeded is returned when a job's accepted count has reached workers_needed.
	ErrQuotaExceeded = errors.New("worker quota exceeded")
	// ErrDuplicateApplication is returned when a worker applies twice to the same job.
	ErrDuplicateApplication = errors.New("application already exists for this job")
	// ErrConflict is returned for business-rule violations such as invalid
	// job status transitions or deleting a job with accepted applications.
	ErrConflict = errors.New("resource conflict")
)

// ValidationError represents a field-level validation failure.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Field + ": " + e.Message
}
