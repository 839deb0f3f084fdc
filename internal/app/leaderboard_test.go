package app

import (
	"testing"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRankPlayersOrdersByScoreThenCorrectAnswers(t *testing.T) {
	joined := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	players := map[string]*domain.Player{
		"a": {ID: "a", Name: "A", Score: 300, CorrectAnswers: 2, JoinedAt: joined},
		"b": {ID: "b", Name: "B", Score: 300, CorrectAnswers: 3, JoinedAt: joined},
		"c": {ID: "c", Name: "C", Score: 500, CorrectAnswers: 1, JoinedAt: joined},
	}

	ranked := RankPlayers(players)
	require.Len(t, ranked, 3)
	assert.Equal(t, []string{"c", "b", "a"}, ids(ranked))
	assert.Equal(t, []int{1, 2, 3}, []int{ranked[0].Rank, ranked[1].Rank, ranked[2].Rank})
}

func TestRankPlayersTieBreaksOnJoinTimeThenID(t *testing.T) {
	joined := time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)
	players := map[string]*domain.Player{
		"late":  {ID: "late", Score: 100, CorrectAnswers: 1, JoinedAt: joined.Add(time.Minute)},
		"zed":   {ID: "zed", Score: 100, CorrectAnswers: 1, JoinedAt: joined},
		"alpha": {ID: "alpha", Score: 100, CorrectAnswers: 1, JoinedAt: joined},
	}

	for i := 0; i < 10; i++ {
		assert.Equal(t, []string{"alpha", "zed", "late"}, ids(RankPlayers(players)))
	}
}

func TestRankPlayersLeavesInputUntouched(t *testing.T) {
	players := map[string]*domain.Player{
		"p1": {Name: "Ann", Score: 100},
		"p2": {Name: "Bob", Score: 200},
	}

	ranked := RankPlayers(players)
	assert.Equal(t, []string{"p2", "p1"}, ids(ranked))
	assert.Empty(t, players["p1"].ID)
	assert.Empty(t, players["p2"].ID)
}

func TestBuildHistoryMarksWinner(t *testing.T) {
	completed := time.Date(2024, 11, 22, 10, 5, 0, 0, time.UTC)
	session := domain.Session{
		ID:     "s1",
		QuizID: "quiz-1",
		Players: map[string]*domain.Player{
			"host": {ID: "host", Name: "Host", IsHost: true, Score: 0},
			"p1":   {ID: "p1", Name: "Ann", Score: 2900, CorrectAnswers: 2},
		},
	}

	history := BuildHistory(session, "Arithmetic", completed)
	require.Len(t, history, 2)
	assert.Equal(t, "p1", history[0].ParticipantID)
	assert.True(t, history[0].IsWinner)
	assert.False(t, history[1].IsWinner)
	assert.Equal(t, 2, history[1].TotalPlayers)
	assert.Equal(t, "Arithmetic", history[0].QuizTitle)
	assert.Equal(t, completed, history[0].CompletedAt)
}

func TestAggregateHistory(t *testing.T) {
	day := time.Date(2024, 11, 22, 0, 0, 0, 0, time.UTC)
	entries := []domain.GameHistoryEntry{
		{ParticipantID: "u1", ParticipantName: "Old", SessionID: "s1", Score: 1000, IsWinner: true, CompletedAt: day},
		{ParticipantID: "u1", ParticipantName: "New", SessionID: "s2", Score: 2001, IsWinner: false, CompletedAt: day.Add(time.Hour)},
		{ParticipantID: "u1", ParticipantName: "New", SessionID: "s3", Score: 0, IsWinner: false, CompletedAt: day.Add(2 * time.Hour)},
		{ParticipantID: "u2", ParticipantName: "Bo", SessionID: "s1", Score: 500, IsWinner: false, CompletedAt: day},
	}

	board := AggregateHistory(entries)
	require.Len(t, board, 2)

	top := board[0]
	assert.Equal(t, 1, top.Rank)
	assert.Equal(t, "u1", top.ParticipantID)
	assert.Equal(t, "New", top.Name)
	assert.Equal(t, 3001, top.TotalScore)
	assert.Equal(t, 3, top.TotalGames)
	assert.Equal(t, 1, top.TotalWins)
	assert.Equal(t, 1000, top.AverageScore)
	assert.Equal(t, 33, top.WinRate)

	assert.Equal(t, 2, board[1].Rank)
	assert.Equal(t, 500, board[1].AverageScore)
	assert.Equal(t, 0, board[1].WinRate)
}

func ids(entries []domain.LeaderboardEntry) []string {
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.ParticipantID)
	}
	return out
}
