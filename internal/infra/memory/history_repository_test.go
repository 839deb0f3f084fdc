package memory

import (
	"context"
	"testing"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHistoryRepositorySuppressesDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository()
	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

	entry := domain.GameHistoryEntry{ParticipantID: "u1", SessionID: "s1", QuizID: "q1", Score: 2400, CompletedAt: now}
	require.NoError(t, repo.Append(ctx, []domain.GameHistoryEntry{entry}))

	entry.Score = 9999
	require.NoError(t, repo.Append(ctx, []domain.GameHistoryEntry{entry}))

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, 2400, all[0].Score)
}

func TestHistoryRepositoryFiltersByQuiz(t *testing.T) {
	ctx := context.Background()
	repo := NewHistoryRepository()
	now := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)

	require.NoError(t, repo.Append(ctx, []domain.GameHistoryEntry{
		{ParticipantID: "u1", SessionID: "s2", QuizID: "q2", CompletedAt: now.Add(time.Hour)},
		{ParticipantID: "u1", SessionID: "s1", QuizID: "q1", CompletedAt: now},
		{ParticipantID: "u2", SessionID: "s1", QuizID: "q1", CompletedAt: now},
	}))

	q1, err := repo.List(ctx, "q1")
	require.NoError(t, err)
	assert.Len(t, q1, 2)

	all, err := repo.List(ctx, "")
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "s2", all[2].SessionID)
}
