// Package broker provides live message fan-out for conversation subscribers.
//
// The broker is only the push path. The store is the durable log: a
// subscriber that misses a publish (disconnect, full buffer) recovers it by
// polling with its last-seen cursor, and the channel layer deduplicates by
// message id.
package broker

import (
	"context"

	"github.com/localjobs/hiring-platform/internal/model"
)

// Handler is invoked for each message delivered to a subscription.
type Handler func(msg model.Message)

// Subscription is a live fan-out registration.
type Subscription interface {
	// Unsubscribe releases the subscription. Safe to call more than once.
	Unsubscribe()
}

// Broker fans out messages to conversation subscribers.
type Broker interface {
	// Publish delivers a message to all current subscribers of its
	// conversation. Delivery is asynchronous and at-most-once per
	// subscriber; the caller is never blocked on slow consumers.
	Publish(ctx context.Context, msg *model.Message) error
	// Subscribe registers a handler for new messages in a conversation.
	Subscribe(conversationID string, fn Handler) (Subscription, error)
	Close() error
}
