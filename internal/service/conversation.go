package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localjobs/hiring-platform/internal/model"
	"github.com/localjobs/hiring-platform/internal/store"
	"github.com/localjobs/hiring-platform/pkg/logger"
)

// ConversationService maps each application to its single conversation,
// created lazily on first need.
type ConversationService struct {
	store  store.Store
	logger *logger.Logger
}

// NewConversationService creates a new conversation service.
func NewConversationService(st store.Store, log *logger.Logger) *ConversationService {
	return &ConversationService{store: st, logger: log}
}

// Open returns the conversation for an application, creating it if absent.
// Idempotent under concurrent callers: the store's insert-or-fetch
// guarantees a single conversation per application.
func (s *ConversationService) Open(ctx context.Context, applicationID, callerID string) (*model.Conversation, error) {
	worker, employer, err := s.participantsForApplication(ctx, applicationID)
	if err != nil {
		return nil, err
	}
	if callerID != worker && callerID != employer {
		return nil, model.ErrUnauthorized
	}

	conv, err := s.store.GetOrCreateConversation(ctx, applicationID, uuid.Must(uuid.NewV7()).String())
	if err != nil {
		return nil, fmt.Errorf("open conversation: %w", err)
	}
	return conv, nil
}

// GetByApplication returns the existing conversation for an application.
func (s *ConversationService) GetByApplication(ctx context.Context, applicationID string) (*model.Conversation, error) {
	return s.store.GetConversationByApplication(ctx, applicationID)
}

// Get retrieves a conversation by id.
func (s *ConversationService) Get(ctx context.Context, conversationID string) (*model.Conversation, error) {
	return s.store.GetConversation(ctx, conversationID)
}

// Participants resolves the two legitimate senders of a conversation: the
// application's worker and the job's employer.
func (s *ConversationService) Participants(ctx context.Context, conversationID string) (workerID, employerID string, err error) {
	conv, err := s.store.GetConversation(ctx, conversationID)
	if err != nil {
		return "", "", err
	}
	return s.participantsForApplication(ctx, conv.ApplicationID)
}

// ListForUser returns the caller's inbox: every conversation where they are
// the worker or the employer, each with its last message.
func (s *ConversationService) ListForUser(ctx context.Context, userID string) ([]model.ConversationSummary, error) {
	convs, err := s.store.ListConversationsForUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	summaries := make([]model.ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		summary := model.ConversationSummary{Conversation: conv}

		app, err := s.store.GetApplication(ctx, conv.ApplicationID)
		if err != nil {
			s.logger.Warn("skipping conversation with missing application",
				zap.String("conversation_id", conv.ID))
			continue
		}
		job, err := s.store.GetJob(ctx, app.JobID)
		if err == nil {
			summary.JobTitle = job.Title
			summary.CallerIsEmployer = job.EmployerID == userID
			if summary.CallerIsEmployer {
				summary.OtherParticipant = app.WorkerID
			} else {
				summary.OtherParticipant = job.EmployerID
			}
		}

		last, err := s.store.LastMessage(ctx, conv.ID)
		if err == nil {
			summary.LastMessage = last
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

func (s *ConversationService) participantsForApplication(ctx context.Context, applicationID string) (workerID, employerID string, err error) {
	app, err := s.store.GetApplication(ctx, applicationID)
	if err != nil {
		return "", "", err
	}
	job, err := s.store.GetJob(ctx, app.JobID)
	if err != nil {
		return "", "", err
	}
	return app.WorkerID, job.EmployerID, nil
}
