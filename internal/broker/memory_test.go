package broker

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localjobs/hiring-platform/internal/model"
)

func testMessage(conversationID, content string) *model.Message {
	return &model.Message{
		ID:             uuid.Must(uuid.NewV7()).String(),
		ConversationID: conversationID,
		SenderID:       "worker-1",
		Content:        content,
		CreatedAt:      time.Now(),
	}
}

func TestMemoryHub_PublishSubscribe(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()

	delivered := make(chan model.Message, 8)
	sub, err := hub.Subscribe("conv-1", func(msg model.Message) {
		delivered <- msg
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	msg := testMessage("conv-1", "hello")
	require.NoError(t, hub.Publish(context.Background(), msg))

	select {
	case got := <-delivered:
		assert.Equal(t, msg.ID, got.ID)
		assert.Equal(t, "hello", got.Content)
	case <-time.After(time.Second):
		t.Fatal("expected delivery")
	}
}

func TestMemoryHub_ConversationIsolation(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()

	delivered := make(chan model.Message, 8)
	sub, err := hub.Subscribe("conv-1", func(msg model.Message) {
		delivered <- msg
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, hub.Publish(context.Background(), testMessage("conv-2", "elsewhere")))

	select {
	case msg := <-delivered:
		t.Fatalf("unexpected cross-conversation delivery: %s", msg.Content)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryHub_FanOut(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()

	const listeners = 3
	channels := make([]chan model.Message, listeners)
	for i := range channels {
		ch := make(chan model.Message, 8)
		channels[i] = ch
		sub, err := hub.Subscribe("conv-1", func(msg model.Message) {
			ch <- msg
		})
		require.NoError(t, err)
		defer sub.Unsubscribe()
	}

	msg := testMessage("conv-1", "broadcast")
	require.NoError(t, hub.Publish(context.Background(), msg))

	for i, ch := range channels {
		select {
		case got := <-ch:
			assert.Equal(t, msg.ID, got.ID, "listener %d", i)
		case <-time.After(time.Second):
			t.Fatalf("listener %d got nothing", i)
		}
	}
}

func TestMemoryHub_Unsubscribe(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()

	delivered := make(chan model.Message, 8)
	sub, err := hub.Subscribe("conv-1", func(msg model.Message) {
		delivered <- msg
	})
	require.NoError(t, err)

	sub.Unsubscribe()
	// Idempotent.
	sub.Unsubscribe()

	require.NoError(t, hub.Publish(context.Background(), testMessage("conv-1", "late")))

	select {
	case msg := <-delivered:
		t.Fatalf("unexpected delivery after unsubscribe: %s", msg.Content)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestMemoryHub_SubscribeAfterClose(t *testing.T) {
	hub := NewMemoryHub()
	require.NoError(t, hub.Close())

	_, err := hub.Subscribe("conv-1", func(model.Message) {})
	assert.ErrorIs(t, err, ErrClosed)
}

func TestMemoryHub_PublishNeverBlocks(t *testing.T) {
	hub := NewMemoryHub()
	defer hub.Close()

	// A handler that never returns wedges the drain goroutine.
	block := make(chan struct{})
	sub, err := hub.Subscribe("conv-1", func(model.Message) {
		<-block
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()
	defer close(block)

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Well past the subscriber buffer.
		for i := 0; i < subscriberBuffer*2; i++ {
			_ = hub.Publish(context.Background(), testMessage("conv-1", "flood"))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}
