// Package model defines data structures for the hiring platform.
package model

import "time"

// JobStatus represents the lifecycle state of a job posting.
type JobStatus string

const (
	JobStatusOpen       JobStatus = "open"
	JobStatusAssigned   JobStatus = "assigned"
	JobStatusInProgress JobStatus = "in_progress"
	JobStatusCompleted  JobStatus = "completed"
	JobStatusCancelled  JobStatus = "cancelled"
	JobStatusArchived   JobStatus = "archived"
)

// jobTransitions is the guard table for employer-driven status changes.
// open->assigned is excluded on purpose: only the hiring workflow performs
// it, when the last quota slot fills.
var jobTransitions = map[JobStatus][]JobStatus{
	JobStatusAssigned:   {JobStatusInProgress, JobStatusCancelled},
	JobStatusInProgress: {JobStatusCompleted, JobStatusCancelled},
	JobStatusCompleted:  {JobStatusArchived},
	JobStatusCancelled:  {JobStatusArchived},
}

// CanTransition reports whether an employer may move a job from one status
// to another.
func CanTransition(from, to JobStatus) bool {
	for _, next := range jobTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Job represents a unit of work posted by an employer with a headcount.
type Job struct {
	ID            string    `json:"id"`
	EmployerID    string    `json:"employer_id"`
	Title         string    `json:"title"`
	WorkersNeeded int       `json:"workers_needed"`
	Status        JobStatus `json:"status"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// CreateJobRequest is the request to post a new job.
type CreateJobRequest struct {
	Title         string `json:"title"`
	WorkersNeeded int    `json:"workers_needed"`
}

// UpdateJobStatusRequest is the request to move a job through its lifecycle.
type UpdateJobStatusRequest struct {
	Status JobStatus `json:"status"`
}
