package broker

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/localjobs/hiring-platform/internal/model"
	"github.com/localjobs/hiring-platform/pkg/logger"
)

func newRedisBroker(t *testing.T) *Redis {
	t.Helper()
	mr := miniredis.RunT(t)

	b, err := ConnectRedis(context.Background(), mr.Addr(), "", logger.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = b.Close() })
	return b
}

func TestRedis_PublishSubscribe(t *testing.T) {
	b := newRedisBroker(t)

	delivered := make(chan model.Message, 8)
	sub, err := b.Subscribe("conv-1", func(msg model.Message) {
		delivered <- msg
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	// Subscription setup races the first publish; retry until it lands.
	msg := testMessage("conv-1", "over redis")
	require.Eventually(t, func() bool {
		require.NoError(t, b.Publish(context.Background(), msg))
		select {
		case got := <-delivered:
			assert.Equal(t, msg.ID, got.ID)
			assert.Equal(t, "over redis", got.Content)
			return true
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 10*time.Millisecond)
}

func TestRedis_ConversationIsolation(t *testing.T) {
	b := newRedisBroker(t)

	delivered := make(chan model.Message, 8)
	sub, err := b.Subscribe("conv-1", func(msg model.Message) {
		delivered <- msg
	})
	require.NoError(t, err)
	defer sub.Unsubscribe()

	require.NoError(t, b.Publish(context.Background(), testMessage("conv-2", "elsewhere")))

	select {
	case msg := <-delivered:
		t.Fatalf("unexpected cross-conversation delivery: %s", msg.Content)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestRedis_UnsubscribeStopsDelivery(t *testing.T) {
	b := newRedisBroker(t)

	delivered := make(chan model.Message, 8)
	sub, err := b.Subscribe("conv-1", func(msg model.Message) {
		delivered <- msg
	})
	require.NoError(t, err)

	sub.Unsubscribe()

	require.NoError(t, b.Publish(context.Background(), testMessage("conv-1", "late")))

	select {
	case msg := <-delivered:
		t.Fatalf("unexpected delivery after unsubscribe: %s", msg.Content)
	case <-time.After(200 * time.Millisecond):
	}
}
