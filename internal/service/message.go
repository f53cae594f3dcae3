package service

import (
	"context"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/localjobs/hiring-platform/internal/broker"
	"github.com/localjobs/hiring-platform/internal/model"
	"github.com/localjobs/hiring-platform/internal/store"
	"github.com/localjobs/hiring-platform/pkg/logger"
	"github.com/localjobs/hiring-platform/pkg/metrics"
)

const maxMessageLength = 100_000

// MessageChannel stores and delivers messages for a conversation. The store
// is the ordered, durable log; the broker is the live push path. Consumers
// that use both paths get exactly-once rendering because each subscription
// deduplicates by message id at this boundary.
type MessageChannel struct {
	store         store.Store
	broker        broker.Broker
	conversations *ConversationService
	logger        *logger.Logger
}

// NewMessageChannel creates a new message channel.
func NewMessageChannel(st store.Store, bk broker.Broker, convs *ConversationService, log *logger.Logger) *MessageChannel {
	return &MessageChannel{
		store:         st,
		broker:        bk,
		conversations: convs,
		logger:        log,
	}
}

// Send appends a message to a conversation and fans it out to subscribers.
// The sender must be the application's worker or the job's employer.
func (c *MessageChannel) Send(ctx context.Context, conversationID, senderID string, req *model.SendMessageRequest) (*model.Message, error) {
	return c.send(ctx, conversationID, senderID, req.Content, false)
}

// SendSystem appends a platform-generated message on behalf of a
// participant, such as the acceptance notice.
func (c *MessageChannel) SendSystem(ctx context.Context, conversationID, senderID, content string) (*model.Message, error) {
	return c.send(ctx, conversationID, senderID, content, true)
}

func (c *MessageChannel) send(ctx context.Context, conversationID, senderID, content string, system bool) (*model.Message, error) {
	if err := validateContent(content); err != nil {
		return nil, err
	}

	workerID, employerID, err := c.conversations.Participants(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if senderID != workerID && senderID != employerID {
		return nil, model.ErrUnauthorized
	}

	msg := &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		SenderID:       senderID,
		Content:        content,
		System:         system,
		CreatedAt:      time.Now(),
	}
	if err := c.store.AppendMessage(ctx, msg); err != nil {
		return nil, err
	}

	// Push delivery is best-effort: the message is durable already and the
	// poll path recovers anything the broker misses.
	if err := c.broker.Publish(ctx, msg); err != nil {
		metrics.BrokerPublishTotal.WithLabelValues("error").Inc()
		c.logger.Warn("broker publish failed",
			zap.String("conversation_id", conversationID),
			zap.String("message_id", msg.ID),
			zap.Error(err),
		)
	} else {
		metrics.BrokerPublishTotal.WithLabelValues("ok").Inc()
	}

	role := "worker"
	if senderID == employerID {
		role = "employer"
	}
	if system {
		role = "system"
	}
	metrics.MessagesTotal.WithLabelValues(role).Inc()

	return msg, nil
}

// List returns the full ordered history of a conversation.
func (c *MessageChannel) List(ctx context.Context, conversationID, callerID string) ([]model.Message, error) {
	if err := c.authorize(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	return c.store.ListMessages(ctx, conversationID, 0, 0)
}

// Poll returns messages newer than the cursor, in order. Repeatable: the
// same cursor yields the same or a growing result.
func (c *MessageChannel) Poll(ctx context.Context, conversationID, callerID string, afterSeq uint64, limit int) (*model.ListMessagesResponse, error) {
	if err := c.authorize(ctx, conversationID, callerID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	msgs, err := c.store.ListMessages(ctx, conversationID, afterSeq, limit)
	if err != nil {
		return nil, err
	}

	lastSeq := afterSeq
	if len(msgs) > 0 {
		lastSeq = msgs[len(msgs)-1].Sequence
	}
	return &model.ListMessagesResponse{
		Messages:     msgs,
		HasMore:      len(msgs) == limit,
		LastSequence: lastSeq,
	}, nil
}

// Subscribe registers a push listener for new messages. The returned
// subscription must be released when the consumer disconnects. Messages the
// subscriber has already seen, whether via push or poll replay through
// MarkSeen, are suppressed here by id.
func (c *MessageChannel) Subscribe(ctx context.Context, conversationID, callerID string, fn broker.Handler) (*ChannelSubscription, error) {
	if err := c.authorize(ctx, conversationID, callerID); err != nil {
		return nil, err
	}

	dedupe := &ChannelSubscription{seen: make(map[string]struct{})}
	sub, err := c.broker.Subscribe(conversationID, func(msg model.Message) {
		if dedupe.markSeen(msg.ID) {
			fn(msg)
		}
	})
	if err != nil {
		return nil, err
	}
	dedupe.sub = sub
	return dedupe, nil
}

func (c *MessageChannel) authorize(ctx context.Context, conversationID, callerID string) error {
	workerID, employerID, err := c.conversations.Participants(ctx, conversationID)
	if err != nil {
		return err
	}
	if callerID != workerID && callerID != employerID {
		return model.ErrUnauthorized
	}
	return nil
}

func validateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return &model.ValidationError{Field: "content", Message: "cannot be empty"}
	}
	if len(content) > maxMessageLength {
		return &model.ValidationError{Field: "content", Message: "exceeds maximum length"}
	}
	if !utf8.ValidString(content) {
		return &model.ValidationError{Field: "content", Message: "must be valid UTF-8"}
	}
	return nil
}

// ChannelSubscription is a live subscription with id-based deduplication.
type ChannelSubscription struct {
	mu   sync.Mutex
	seen map[string]struct{}
	sub  broker.Subscription
}

// MarkSeen records messages the consumer obtained through the poll path so
// a late push duplicate is not rendered twice.
func (s *ChannelSubscription) MarkSeen(msgs []model.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, msg := range msgs {
		s.seen[msg.ID] = struct{}{}
	}
}

// markSeen returns true the first time an id is observed.
func (s *ChannelSubscription) markSeen(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.seen[id]; dup {
		return false
	}
	s.seen[id] = struct{}{}
	return true
}

// Unsubscribe releases the underlying broker subscription.
func (s *ChannelSubscription) Unsubscribe() {
	s.sub.Unsubscribe()
}
