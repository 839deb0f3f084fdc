package nats

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingConn struct {
	subjects []string
	payloads [][]byte
	err      error
}

func (c *recordingConn) Publish(subject string, data []byte) error {
	if c.err != nil {
		return c.err
	}
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func TestEventPublisherSubjectAndPayload(t *testing.T) {
	conn := &recordingConn{}
	pub := NewEventPublisher(conn, "live")

	event := domain.SessionEvent{
		Type:          domain.EventAdvanced,
		SessionID:     "s1",
		QuizID:        "quiz-1",
		QuestionIndex: 2,
		OccurredAt:    time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, pub.Publish(context.Background(), event))

	require.Equal(t, []string{"live.sessions.s1.advanced"}, conn.subjects)
	var decoded domain.SessionEvent
	require.NoError(t, json.Unmarshal(conn.payloads[0], &decoded))
	assert.Equal(t, event, decoded)
}

func TestEventPublisherDefaultPrefixAndErrors(t *testing.T) {
	conn := &recordingConn{err: errors.New("connection closed")}
	pub := NewEventPublisher(conn, "")

	event := domain.SessionEvent{Type: domain.EventHosted, SessionID: "s1"}
	assert.Equal(t, "quiz.sessions.s1.hosted", pub.Subject(event))
	assert.ErrorContains(t, pub.Publish(context.Background(), event), "connection closed")
}
