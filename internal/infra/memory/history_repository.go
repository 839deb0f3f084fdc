package memory

import (
	"context"
	"sort"
	"sync"

	"live-quiz-service/internal/domain"
)

// HistoryRepository keeps completed-game rows in memory.
type HistoryRepository struct {
	mu      sync.RWMutex
	entries []domain.GameHistoryEntry
	seen    map[historyKey]struct{}
}

type historyKey struct {
	participantID string
	sessionID     string
}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{seen: make(map[historyKey]struct{})}
}

// Append records entries, skipping any participant already recorded for the same session.
func (r *HistoryRepository) Append(_ context.Context, entries []domain.GameHistoryEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range entries {
		key := historyKey{participantID: e.ParticipantID, sessionID: e.SessionID}
		if _, ok := r.seen[key]; ok {
			continue
		}
		r.seen[key] = struct{}{}
		r.entries = append(r.entries, e)
	}
	return nil
}

// List returns entries for quizID, or all entries when quizID is empty, oldest first.
func (r *HistoryRepository) List(_ context.Context, quizID string) ([]domain.GameHistoryEntry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.GameHistoryEntry, 0, len(r.entries))
	for _, e := range r.entries {
		if quizID == "" || e.QuizID == quizID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CompletedAt.Before(out[j].CompletedAt)
	})
	return out, nil
}
