package nats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
)

const (
	natsMaxReconnects = -1
	natsReconnectWait = 2 * time.Second
)

// publisher is the subset of *nats.Conn the event publisher needs.
type publisher interface {
	Publish(subject string, data []byte) error
}

// EventPublisher sends session lifecycle events as JSON to
// {prefix}.sessions.{sessionId}.{type}.
type EventPublisher struct {
	conn   publisher
	prefix string
}

func NewEventPublisher(conn publisher, prefix string) *EventPublisher {
	if prefix == "" {
		prefix = "quiz"
	}
	return &EventPublisher{conn: conn, prefix: prefix}
}

// Connect dials NATS with reconnect handling.
func Connect(url string) (*nats.Conn, error) {
	opts := []nats.Option{
		nats.Name("live-quiz-service"),
		nats.MaxReconnects(natsMaxReconnects),
		nats.ReconnectWait(natsReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}
	return nc, nil
}

func (p *EventPublisher) Publish(_ context.Context, event domain.SessionEvent) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	subject := p.Subject(event)
	if err := p.conn.Publish(subject, payload); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subject returns the subject an event is published on.
func (p *EventPublisher) Subject(event domain.SessionEvent) string {
	return fmt.Sprintf("%s.sessions.%s.%s", p.prefix, event.SessionID, event.Type)
}
