// Package store persists jobs, applications, conversations and messages.
//
// The Store interface is the isolation boundary the hiring workflow depends
// on: AcceptWithinQuota and GetOrCreateConversation must be atomic with
// respect to concurrent callers. Two implementations are provided, an
// in-memory store and a PostgreSQL store.
package store

import (
	"context"

	"github.com/localjobs/hiring-platform/internal/model"
)

// Store is the persistence contract for the hiring workflow.
type Store interface {
	// Jobs
	CreateJob(ctx context.Context, job *model.Job) error
	GetJob(ctx context.Context, id string) (*model.Job, error)
	UpdateJobStatus(ctx context.Context, id string, status model.JobStatus) error
	// DeleteJob removes a job and its applications. It fails with
	// ErrConflict while any accepted application exists.
	DeleteJob(ctx context.Context, id string) error

	// Applications
	CreateApplication(ctx context.Context, app *model.Application) error
	GetApplication(ctx context.Context, id string) (*model.Application, error)
	ListApplicationsByJob(ctx context.Context, jobID string) ([]model.Application, error)
	ListApplicationsByWorker(ctx context.Context, workerID string) ([]model.Application, error)
	// RejectIfPending marks an application rejected only while it is
	// still pending, as one indivisible check-and-write. A decision that
	// committed first stays committed; the caller observes
	// ErrAlreadyDecided.
	RejectIfPending(ctx context.Context, id string) (*model.Application, error)
	// AcceptWithinQuota performs the accept decision as one indivisible
	// unit: re-check the application is pending, re-read the accepted
	// count, fail with ErrQuotaExceeded if the quota is full, otherwise
	// mark accepted; when the quota fills, reject every remaining pending
	// application and move the job to assigned, all atomically.
	AcceptWithinQuota(ctx context.Context, applicationID string) (*model.AcceptResult, error)
	CountAccepted(ctx context.Context, jobID string) (int, error)

	// Conversations
	// GetOrCreateConversation is insert-or-fetch on the application id:
	// concurrent callers observe the same single conversation.
	GetOrCreateConversation(ctx context.Context, applicationID, newID string) (*model.Conversation, error)
	GetConversation(ctx context.Context, id string) (*model.Conversation, error)
	GetConversationByApplication(ctx context.Context, applicationID string) (*model.Conversation, error)
	ListConversationsForUser(ctx context.Context, userID string) ([]model.Conversation, error)

	// Messages
	// AppendMessage assigns the message's per-conversation sequence.
	AppendMessage(ctx context.Context, msg *model.Message) error
	// ListMessages returns messages with sequence greater than afterSeq in
	// (created_at, id) order. limit <= 0 means no limit.
	ListMessages(ctx context.Context, conversationID string, afterSeq uint64, limit int) ([]model.Message, error)
	LastMessage(ctx context.Context, conversationID string) (*model.Message, error)
}
