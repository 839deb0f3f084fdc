package app

import (
	"context"

	"live-quiz-service/internal/domain"
)

// EventPublisher receives session lifecycle events after they commit.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.SessionEvent) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, domain.SessionEvent) error { return nil }
