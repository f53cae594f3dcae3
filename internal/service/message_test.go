package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localjobs/hiring-platform/internal/model"
)

func (e *testEnv) openConversation(t *testing.T) *model.Conversation {
	t.Helper()
	job := e.createJob(t, "employer-1", 1)
	app := e.apply(t, job.ID, "worker-1")
	conv, err := e.conversations.Open(context.Background(), app.ID, "worker-1")
	require.NoError(t, err)
	return conv
}

func TestSend_Validation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.openConversation(t)

	var verr *model.ValidationError

	_, err := env.messages.Send(ctx, conv.ID, "worker-1", &model.SendMessageRequest{Content: "   "})
	assert.ErrorAs(t, err, &verr)

	_, err = env.messages.Send(ctx, conv.ID, "worker-1", &model.SendMessageRequest{Content: strings.Repeat("x", 100_001)})
	assert.ErrorAs(t, err, &verr)

	_, err = env.messages.Send(ctx, conv.ID, "worker-1", &model.SendMessageRequest{Content: string([]byte{0xff, 0xfe})})
	assert.ErrorAs(t, err, &verr)

	// Only the two participants may post.
	_, err = env.messages.Send(ctx, conv.ID, "worker-2", &model.SendMessageRequest{Content: "hi"})
	assert.ErrorIs(t, err, model.ErrUnauthorized)

	_, err = env.messages.Send(ctx, "no-such-conversation", "worker-1", &model.SendMessageRequest{Content: "hi"})
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSend_OrderAndSequence(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.openConversation(t)

	senders := []string{"worker-1", "employer-1", "worker-1"}
	for i, sender := range senders {
		msg, err := env.messages.Send(ctx, conv.ID, sender, &model.SendMessageRequest{Content: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
		assert.Equal(t, uint64(i+1), msg.Sequence)
	}

	history, err := env.messages.List(ctx, conv.ID, "employer-1")
	require.NoError(t, err)
	require.Len(t, history, 3)
	for i, msg := range history {
		assert.Equal(t, fmt.Sprintf("msg %d", i), msg.Content)
		assert.Equal(t, senders[i], msg.SenderID)
	}

	// Listing is participant only.
	_, err = env.messages.List(ctx, conv.ID, "worker-2")
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestPoll_CursorSemantics(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.openConversation(t)

	for i := 0; i < 5; i++ {
		_, err := env.messages.Send(ctx, conv.ID, "worker-1", &model.SendMessageRequest{Content: fmt.Sprintf("msg %d", i)})
		require.NoError(t, err)
	}

	resp, err := env.messages.Poll(ctx, conv.ID, "employer-1", 0, 3)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 3)
	assert.True(t, resp.HasMore)
	assert.Equal(t, uint64(3), resp.LastSequence)

	// The same cursor is repeatable.
	again, err := env.messages.Poll(ctx, conv.ID, "employer-1", 0, 3)
	require.NoError(t, err)
	assert.Equal(t, resp.Messages, again.Messages)

	// Resume from the returned cursor.
	resp, err = env.messages.Poll(ctx, conv.ID, "employer-1", resp.LastSequence, 3)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 2)
	assert.Equal(t, uint64(5), resp.LastSequence)

	// Caught up: empty result, cursor unchanged.
	resp, err = env.messages.Poll(ctx, conv.ID, "employer-1", 5, 3)
	require.NoError(t, err)
	assert.Empty(t, resp.Messages)
	assert.False(t, resp.HasMore)
	assert.Equal(t, uint64(5), resp.LastSequence)
}

func TestSubscribe_PushDelivery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.openConversation(t)

	var mu sync.Mutex
	var received []model.Message
	sub, err := env.messages.Subscribe(ctx, conv.ID, "employer-1", func(msg model.Message) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	sent, err := env.messages.Send(ctx, conv.ID, "worker-1", &model.SendMessageRequest{Content: "are you there?"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) == 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	assert.Equal(t, sent.ID, received[0].ID)
	mu.Unlock()

	// Non-participants cannot subscribe.
	_, err = env.messages.Subscribe(ctx, conv.ID, "worker-2", func(model.Message) {})
	assert.ErrorIs(t, err, model.ErrUnauthorized)
}

func TestSubscribe_DeduplicatesReplayedMessages(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.openConversation(t)

	// One message exists before the consumer connects.
	early, err := env.messages.Send(ctx, conv.ID, "worker-1", &model.SendMessageRequest{Content: "early"})
	require.NoError(t, err)

	var mu sync.Mutex
	var received []model.Message
	sub, err := env.messages.Subscribe(ctx, conv.ID, "employer-1", func(msg model.Message) {
		mu.Lock()
		received = append(received, msg)
		mu.Unlock()
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// The consumer catches up via poll and records what it saw.
	resp, err := env.messages.Poll(ctx, conv.ID, "employer-1", 0, 50)
	require.NoError(t, err)
	require.Len(t, resp.Messages, 1)
	sub.MarkSeen(resp.Messages)

	// A push duplicate of the replayed message is suppressed.
	require.NoError(t, env.messages.broker.Publish(ctx, early))

	late, err := env.messages.Send(ctx, conv.ID, "worker-1", &model.SendMessageRequest{Content: "late"})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(received) >= 1
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, late.ID, received[0].ID)
}

func TestUnsubscribe_StopsDelivery(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	conv := env.openConversation(t)

	delivered := make(chan model.Message, 8)
	sub, err := env.messages.Subscribe(ctx, conv.ID, "worker-1", func(msg model.Message) {
		delivered <- msg
	})
	require.NoError(t, err)

	_, err = env.messages.Send(ctx, conv.ID, "employer-1", &model.SendMessageRequest{Content: "first"})
	require.NoError(t, err)
	select {
	case <-delivered:
	case <-time.After(time.Second):
		t.Fatal("expected push delivery before unsubscribe")
	}

	sub.Unsubscribe()

	_, err = env.messages.Send(ctx, conv.ID, "employer-1", &model.SendMessageRequest{Content: "second"})
	require.NoError(t, err)
	select {
	case msg := <-delivered:
		t.Fatalf("unexpected delivery after unsubscribe: %s", msg.Content)
	case <-time.After(100 * time.Millisecond):
	}
}
