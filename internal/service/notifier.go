package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/localjobs/hiring-platform/internal/model"
	"github.com/localjobs/hiring-platform/pkg/logger"
	"github.com/localjobs/hiring-platform/pkg/metrics"
)

// Notifier composes system messages for hiring events. It is strictly
// best-effort relative to the hiring decision: every failure is logged and
// swallowed.
type Notifier struct {
	conversations *ConversationService
	messages      *MessageChannel
	logger        *logger.Logger
}

// NewNotifier creates a new notifier.
func NewNotifier(convs *ConversationService, msgs *MessageChannel, log *logger.Logger) *Notifier {
	return &Notifier{
		conversations: convs,
		messages:      msgs,
		logger:        log,
	}
}

// HandleAccepted delivers the acceptance notice into the application's
// conversation, creating the conversation if it does not exist yet. The
// message is sent as the employer.
func (n *Notifier) HandleAccepted(ctx context.Context, event model.ApplicationAcceptedEvent) {
	conv, err := n.conversations.Open(ctx, event.ApplicationID, event.EmployerID)
	if err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		n.logger.Warn("failed to open conversation for acceptance notice",
			zap.String("application_id", event.ApplicationID),
			zap.Error(err),
		)
		return
	}

	if _, err := n.messages.SendSystem(ctx, conv.ID, event.EmployerID, acceptanceNotice(event)); err != nil {
		metrics.NotificationsTotal.WithLabelValues("error").Inc()
		n.logger.Warn("failed to send acceptance notice",
			zap.String("application_id", event.ApplicationID),
			zap.String("conversation_id", conv.ID),
			zap.Error(err),
		)
		return
	}

	metrics.NotificationsTotal.WithLabelValues("ok").Inc()
	n.logger.Info("acceptance notice sent",
		zap.String("application_id", event.ApplicationID),
		zap.String("conversation_id", conv.ID),
	)
}

func acceptanceNotice(event model.ApplicationAcceptedEvent) string {
	name := event.WorkerName
	if name == "" {
		name = "there"
	}
	return fmt.Sprintf(
		"🎉 Congratulations %s!\n\nYour application for %q has been accepted. Welcome aboard!\n\nFeel free to reach out here if you have any questions.",
		name, event.JobTitle,
	)
}
