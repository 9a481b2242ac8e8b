// Package events publishes domain events to NATS JetStream. Publishing is
// optional: the server runs without it when no NATS URL is configured.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"go.uber.org/zap"

	"github.com/taskpilot-ai/taskpilot/pkg/logger"
)

const (
	// StreamName is the name of the domain event stream.
	StreamName = "TASKPILOT"

	// SubjectPrefix is the prefix for all event subjects.
	SubjectPrefix = "taskpilot"
)

// ChatTurnEvent records one completed chat turn.
type ChatTurnEvent struct {
	UserID         string    `json:"user_id"`
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	ToolsInvoked   []string  `json:"tools_invoked,omitempty"`
	Failed         bool      `json:"failed,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// TaskEvent records one task mutation performed by a tool.
type TaskEvent struct {
	UserID    string    `json:"user_id"`
	TaskID    string    `json:"task_id"`
	Operation string    `json:"operation"`
	CreatedAt time.Time `json:"created_at"`
}

// Config holds NATS connection configuration.
type Config struct {
	URL   string
	Token string
}

// Publisher publishes domain events to JetStream.
type Publisher struct {
	conn   *nats.Conn
	js     jetstream.JetStream
	logger *logger.Logger
}

// Connect establishes a NATS connection and ensures the event stream exists.
func Connect(ctx context.Context, cfg Config, log *logger.Logger) (*Publisher, error) {
	opts := []nats.Option{
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2 * time.Second),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Warn("NATS disconnected", zap.Error(err))
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

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	p := &Publisher{conn: nc, js: js, logger: log}
	if err := p.ensureStream(ctx); err != nil {
		nc.Close()
		return nil, err
	}
	return p, nil
}

func (p *Publisher) ensureStream(ctx context.Context) error {
	if _, err := p.js.Stream(ctx, StreamName); err == nil {
		return nil
	}

	_, err := p.js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Description: "Task and chat domain events",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}
	return nil
}

// IsConnected reports NATS connectivity.
func (p *Publisher) IsConnected() bool {
	return p != nil && p.conn != nil && p.conn.IsConnected()
}

// Close closes the NATS connection.
func (p *Publisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Close()
	}
}

// PublishChatTurn publishes a chat-turn event. A nil publisher is a no-op so
// callers need no NATS awareness.
func (p *Publisher) PublishChatTurn(ctx context.Context, event *ChatTurnEvent) {
	if p == nil {
		return
	}
	subject := fmt.Sprintf("%s.%s.chat.turn", SubjectPrefix, event.UserID)
	p.publish(ctx, subject, event)
}

// PublishTask publishes a task mutation event.
func (p *Publisher) PublishTask(ctx context.Context, event *TaskEvent) {
	if p == nil {
		return
	}
	subject := fmt.Sprintf("%s.%s.task.%s", SubjectPrefix, event.UserID, event.Operation)
	p.publish(ctx, subject, event)
}

func (p *Publisher) publish(ctx context.Context, subject string, event any) {
	data, err := json.Marshal(event)
	if err != nil {
		p.logger.Error("failed to marshal event", zap.String("subject", subject), zap.Error(err))
		return
	}
	if _, err := p.js.Publish(ctx, subject, data); err != nil {
		p.logger.Warn("failed to publish event", zap.String("subject", subject), zap.Error(err))
	}
}
