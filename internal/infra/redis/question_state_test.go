package redis_test

import (
	"context"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"
	infraredis "live-quiz-service/internal/infra/redis"

	miniredis "github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func TestQuestionStateFollowsAdvancesWithoutAnswers(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	defer client.Close()

	quiz := domain.Quiz{
		ID:    "quiz-1",
		Title: "Three Questions",
		Questions: []domain.Question{
			{Text: "2 + 2?", Options: []string{"3", "4"}, CorrectIndex: 1},
			{Text: "3 + 3?", Options: []string{"6", "7"}, CorrectIndex: 0},
			{Text: "4 + 4?", Options: []string{"8", "9"}, CorrectIndex: 0},
		},
	}
	coord := app.NewCoordinator(
		infraredis.NewDocumentStore(client, time.Minute, infraredis.WithResyncInterval(50*time.Millisecond)),
		memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": quiz}),
		memory.NewHistoryRepository(),
	)

	host, err := coord.HostSession(ctx, "quiz-1", "host", "Hannah")
	require.NoError(t, err)
	_, err = coord.JoinSession(ctx, host.GameCode, "p1", "Ann")
	require.NoError(t, err)
	require.NoError(t, coord.StartRound(ctx, host.SessionID, "host"))

	states := make(chan domain.QuestionState, 16)
	stop, err := coord.SubscribeQuestionState(ctx, host.SessionID, func(s domain.QuestionState) {
		select {
		case states <- s:
		default:
		}
	})
	require.NoError(t, err)
	defer stop()

	waitIndex := func(index int) {
		t.Helper()
		deadline := time.After(3 * time.Second)
		for {
			select {
			case s := <-states:
				if s.CurrentQuestionIndex == index {
					return
				}
			case <-deadline:
				t.Fatalf("question state %d never delivered", index)
			}
		}
	}

	waitIndex(0)
	// Nobody answers, so every question state is replaced without an update in between.
	require.NoError(t, coord.AdvanceRound(ctx, host.SessionID, "host", 0))
	waitIndex(1)
	require.NoError(t, coord.AdvanceRound(ctx, host.SessionID, "host", 1))
	waitIndex(2)
}
