package app

import (
	"math"
	"sort"
	"time"

	"live-quiz-service/internal/domain"
)

// RankPlayers orders players by score, then correct answers, then join time, then id.
// The last two keys only make ties deterministic.
func RankPlayers(players map[string]*domain.Player) []domain.LeaderboardEntry {
	ordered := make([]domain.Player, 0, len(players))
	for id, p := range players {
		if p == nil {
			continue
		}
		player := *p
		if player.ID == "" {
			player.ID = id
		}
		ordered = append(ordered, player)
	}
	sort.SliceStable(ordered, func(i, j int) bool {
		a, b := ordered[i], ordered[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.CorrectAnswers != b.CorrectAnswers {
			return a.CorrectAnswers > b.CorrectAnswers
		}
		if !a.JoinedAt.Equal(b.JoinedAt) {
			return a.JoinedAt.Before(b.JoinedAt)
		}
		return a.ID < b.ID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ordered))
	for i, p := range ordered {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:           i + 1,
			ParticipantID:  p.ID,
			Name:           p.Name,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
			IsHost:         p.IsHost,
		})
	}
	return entries
}

// BuildHistory turns a finished session into one history entry per player.
func BuildHistory(session domain.Session, quizTitle string, completedAt time.Time) []domain.GameHistoryEntry {
	ranked := RankPlayers(session.Players)
	out := make([]domain.GameHistoryEntry, 0, len(ranked))
	for _, entry := range ranked {
		out = append(out, domain.GameHistoryEntry{
			ParticipantID:   entry.ParticipantID,
			ParticipantName: entry.Name,
			SessionID:       session.ID,
			QuizID:          session.QuizID,
			QuizTitle:       quizTitle,
			CompletedAt:     completedAt,
			Score:           entry.Score,
			Rank:            entry.Rank,
			TotalPlayers:    len(ranked),
			IsWinner:        entry.Rank == 1,
			CorrectAnswers:  entry.CorrectAnswers,
		})
	}
	return out
}

// AggregateHistory folds history entries into the cross-session leaderboard, sorted by
// total score, then wins, then participant id.
func AggregateHistory(entries []domain.GameHistoryEntry) []domain.GlobalLeaderboardEntry {
	type totals struct {
		entry    domain.GlobalLeaderboardEntry
		lastSeen time.Time
	}
	byParticipant := make(map[string]*totals)
	for _, e := range entries {
		t, ok := byParticipant[e.ParticipantID]
		if !ok {
			t = &totals{entry: domain.GlobalLeaderboardEntry{ParticipantID: e.ParticipantID}}
			byParticipant[e.ParticipantID] = t
		}
		t.entry.TotalScore += e.Score
		t.entry.TotalGames++
		if e.IsWinner {
			t.entry.TotalWins++
		}
		// Most recent display name wins.
		if t.entry.Name == "" || !e.CompletedAt.Before(t.lastSeen) {
			t.entry.Name = e.ParticipantName
			t.lastSeen = e.CompletedAt
		}
	}

	out := make([]domain.GlobalLeaderboardEntry, 0, len(byParticipant))
	for _, t := range byParticipant {
		e := t.entry
		if e.TotalGames > 0 {
			e.AverageScore = int(math.Round(float64(e.TotalScore) / float64(e.TotalGames)))
			e.WinRate = int(math.Round(float64(e.TotalWins) / float64(e.TotalGames) * 100))
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalScore != out[j].TotalScore {
			return out[i].TotalScore > out[j].TotalScore
		}
		if out[i].TotalWins != out[j].TotalWins {
			return out[i].TotalWins > out[j].TotalWins
		}
		return out[i].ParticipantID < out[j].ParticipantID
	})
	for i := range out {
		out[i].Rank = i + 1
	}
	return out
}
