package broker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/localjobs/hiring-platform/internal/model"
	"github.com/localjobs/hiring-platform/pkg/logger"
)

// SubjectPrefix is the prefix for all conversation subjects.
const SubjectPrefix = "conv"

// NATSConfig holds NATS connection configuration.
type NATSConfig struct {
	URL   string
	Token string
}

// NATS is a Broker backed by NATS core pub/sub, for fan-out across API
// instances. Durable history stays in the store, so core pub/sub is enough;
// missed publishes are recovered through the poll path.
type NATS struct {
	conn   *nats.Conn
	logger *logger.Logger
}

// ConnectNATS establishes a connection to the NATS server.
func ConnectNATS(cfg NATSConfig, log *logger.Logger) (*NATS, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info("NATS reconnected")
		}),
	}
	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATS{conn: nc, logger: log}, nil
}

// MessageSubject returns the subject for a conversation's messages.
func MessageSubject(conversationID string) string {
	return fmt.Sprintf("%s.%s.msg", SubjectPrefix, conversationID)
}

// Publish publishes a message to the conversation subject.
func (b *NATS) Publish(ctx context.Context, msg *model.Message) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	if err := b.conn.Publish(MessageSubject(msg.ConversationID), data); err != nil {
		return fmt.Errorf("failed to publish message: %w", err)
	}
	return nil
}

// Subscribe registers a handler for a conversation subject.
func (b *NATS) Subscribe(conversationID string, fn Handler) (Subscription, error) {
	sub, err := b.conn.Subscribe(MessageSubject(conversationID), func(m *nats.Msg) {
		var msg model.Message
		if err := json.Unmarshal(m.Data, &msg); err != nil {
			b.logger.Warn("dropping undecodable broker payload")
			return
		}
		fn(msg)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}
	return &natsSub{sub: sub}, nil
}

// Close drains and closes the connection.
func (b *NATS) Close() error {
	if b.conn != nil {
		b.conn.Close()
	}
	return nil
}

// IsConnected reports whether the NATS connection is up.
func (b *NATS) IsConnected() bool {
	return b.conn != nil && b.conn.IsConnected()
}

type natsSub struct {
	sub *nats.Subscription
}

func (s *natsSub) Unsubscribe() {
	_ = s.sub.Unsubscribe()
}
