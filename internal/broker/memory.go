package broker

import (
	"context"
	"errors"
	"sync"

	"github.com/localjobs/hiring-platform/internal/model"
)

const subscriberBuffer = 64

// ErrClosed is returned by Subscribe after the hub has been closed.
var ErrClosed = errors.New("broker closed")

// MemoryHub is an in-process Broker. Each subscription owns a buffered
// channel drained by its own goroutine; a publish never blocks on a slow
// consumer, it drops instead and the consumer catches up via poll.
type MemoryHub struct {
	mu     sync.RWMutex
	subs   map[string]map[*memorySub]struct{}
	closed bool
}

type memorySub struct {
	hub            *MemoryHub
	conversationID string
	ch             chan model.Message
	once           sync.Once
}

// NewMemoryHub creates an in-process broker.
func NewMemoryHub() *MemoryHub {
	return &MemoryHub{subs: make(map[string]map[*memorySub]struct{})}
}

// Publish fans a message out to the conversation's subscribers.
func (h *MemoryHub) Publish(ctx context.Context, msg *model.Message) error {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subs[msg.ConversationID] {
		select {
		case sub.ch <- *msg:
		default:
			// Buffer full; the subscriber recovers via poll.
		}
	}
	return nil
}

// Subscribe registers a handler for a conversation.
func (h *MemoryHub) Subscribe(conversationID string, fn Handler) (Subscription, error) {
	sub := &memorySub{
		hub:            h,
		conversationID: conversationID,
		ch:             make(chan model.Message, subscriberBuffer),
	}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return nil, ErrClosed
	}
	if h.subs[conversationID] == nil {
		h.subs[conversationID] = make(map[*memorySub]struct{})
	}
	h.subs[conversationID][sub] = struct{}{}
	h.mu.Unlock()

	go func() {
		for msg := range sub.ch {
			fn(msg)
		}
	}()

	return sub, nil
}

// Close releases all subscriptions.
func (h *MemoryHub) Close() error {
	h.mu.Lock()
	subs := h.subs
	h.subs = make(map[string]map[*memorySub]struct{})
	h.closed = true
	h.mu.Unlock()

	for _, convSubs := range subs {
		for sub := range convSubs {
			sub.once.Do(func() { close(sub.ch) })
		}
	}
	return nil
}

func (s *memorySub) Unsubscribe() {
	s.hub.mu.Lock()
	if convSubs, ok := s.hub.subs[s.conversationID]; ok {
		delete(convSubs, s)
		if len(convSubs) == 0 {
			delete(s.hub.subs, s.conversationID)
		}
	}
	s.hub.mu.Unlock()

	s.once.Do(func() { close(s.ch) })
}
