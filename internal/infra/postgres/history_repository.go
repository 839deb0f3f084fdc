package postgres

import (
	"context"
	"fmt"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/uptrace/bun"
)

type historyRow struct {
	bun.BaseModel `bun:"table:game_history"`

	ParticipantID   string    `bun:"participant_id,pk"`
	ParticipantName string    `bun:"participant_name"`
	SessionID       string    `bun:"session_id,pk"`
	QuizID          string    `bun:"quiz_id"`
	QuizTitle       string    `bun:"quiz_title"`
	CompletedAt     time.Time `bun:"completed_at"`
	Score           int       `bun:"score"`
	Rank            int       `bun:"rank"`
	TotalPlayers    int       `bun:"total_players"`
	IsWinner        bool      `bun:"is_winner"`
	CorrectAnswers  int       `bun:"correct_answers"`
}

// HistoryRepository stores completed-game rows in the game_history table.
type HistoryRepository struct {
	db *bun.DB
}

func NewHistoryRepository(db *bun.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

// Append inserts entries. Rows already recorded for the same participant and session are skipped.
func (r *HistoryRepository) Append(ctx context.Context, entries []domain.GameHistoryEntry) error {
	if len(entries) == 0 {
		return nil
	}
	rows := make([]historyRow, 0, len(entries))
	for _, e := range entries {
		rows = append(rows, historyRow{
			ParticipantID:   e.ParticipantID,
			ParticipantName: e.ParticipantName,
			SessionID:       e.SessionID,
			QuizID:          e.QuizID,
			QuizTitle:       e.QuizTitle,
			CompletedAt:     e.CompletedAt.UTC(),
			Score:           e.Score,
			Rank:            e.Rank,
			TotalPlayers:    e.TotalPlayers,
			IsWinner:        e.IsWinner,
			CorrectAnswers:  e.CorrectAnswers,
		})
	}
	_, err := r.db.NewInsert().
		Model(&rows).
		On("CONFLICT (participant_id, session_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

// List returns history rows, optionally restricted to one quiz, oldest first.
func (r *HistoryRepository) List(ctx context.Context, quizID string) ([]domain.GameHistoryEntry, error) {
	var rows []historyRow
	q := r.db.NewSelect().Model(&rows).Order("completed_at ASC", "participant_id ASC")
	if quizID != "" {
		q = q.Where("quiz_id = ?", quizID)
	}
	if err := q.Scan(ctx); err != nil {
		return nil, fmt.Errorf("list history: %w", err)
	}

	out := make([]domain.GameHistoryEntry, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.GameHistoryEntry{
			ParticipantID:   row.ParticipantID,
			ParticipantName: row.ParticipantName,
			SessionID:       row.SessionID,
			QuizID:          row.QuizID,
			QuizTitle:       row.QuizTitle,
			CompletedAt:     row.CompletedAt,
			Score:           row.Score,
			Rank:            row.Rank,
			TotalPlayers:    row.TotalPlayers,
			IsWinner:        row.IsWinner,
			CorrectAnswers:  row.CorrectAnswers,
		})
	}
	return out, nil
}
