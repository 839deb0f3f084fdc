package participant

import (
	"context"
	"testing"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"
	"live-quiz-service/internal/infra/memory"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type game struct {
	coord     *app.Coordinator
	clock     *clockwork.FakeClock
	sessionID string
	code      string
}

func newGame(t *testing.T, players ...string) *game {
	t.Helper()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC))
	quiz := domain.Quiz{
		ID:    "quiz-1",
		Title: "Two Questions",
		Questions: []domain.Question{
			{Text: "2 + 2?", Options: []string{"3", "4"}, CorrectIndex: 1},
			{Text: "3 + 3?", Options: []string{"6", "7"}, CorrectIndex: 0},
		},
	}
	coord := app.NewCoordinator(
		memory.NewDocumentStore(),
		memory.NewStaticQuizLoader(map[string]domain.Quiz{"quiz-1": quiz}),
		memory.NewHistoryRepository(),
		app.WithClock(clock),
	)
	ctx := context.Background()
	host, err := coord.HostSession(ctx, "quiz-1", "host", "Hannah")
	require.NoError(t, err)
	for _, p := range players {
		_, err := coord.JoinSession(ctx, host.GameCode, p, "Player "+p)
		require.NoError(t, err)
	}
	return &game{coord: coord, clock: clock, sessionID: host.SessionID, code: host.GameCode}
}

func (g *game) client(t *testing.T, ctx context.Context, participantID string) (*Client, <-chan error) {
	t.Helper()
	c := NewClient(g.coord, g.sessionID, participantID, WithClock(g.clock))
	errs := make(chan error, 1)
	go func() { errs <- c.Run(ctx) }()
	return c, errs
}

func waitView(t *testing.T, c *Client, desc string, match func(View) bool) View {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		select {
		case v := <-c.Views():
			if match(v) {
				return v
			}
		case <-deadline:
			t.Fatalf("timed out waiting for view: %s", desc)
			return View{}
		}
	}
}

func isPhase(phase Phase, index int) func(View) bool {
	return func(v View) bool { return v.Phase == phase && v.QuestionIndex == index }
}

func TestClientPlaysThroughGame(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g := newGame(t, "p1")
	c, errs := g.client(t, ctx, "p1")

	waitView(t, c, "lobby", func(v View) bool { return v.Phase == PhaseLobby })
	require.NoError(t, g.coord.StartRound(ctx, g.sessionID, "host"))

	q0 := waitView(t, c, "question 0 with timer", func(v View) bool {
		return isPhase(PhaseQuestion, 0)(v) && !v.Deadline.IsZero()
	})
	assert.True(t, g.clock.Now().Add(20*time.Second).Equal(q0.Deadline), "deadline %v", q0.Deadline)
	assert.False(t, q0.Answered)

	require.NoError(t, c.Answer(ctx, 0, 1))
	assert.ErrorIs(t, c.Answer(ctx, 0, 0), ErrAlreadyAnswered)
	assert.ErrorIs(t, c.Answer(ctx, 1, 0), ErrNotAnswerable)

	fed := waitView(t, c, "answer feedback", func(v View) bool { return v.LastAnswer != nil })
	assert.Equal(t, PhaseQuestion, fed.Phase, "feedback shows before the result view")
	assert.True(t, fed.LastAnswer.Correct)
	assert.Equal(t, 1500, fed.LastAnswer.Points)

	require.NoError(t, g.clock.BlockUntilContext(ctx, 1))
	g.clock.Advance(DefaultResultDelay)
	res := waitView(t, c, "result 0", isPhase(PhaseResult, 0))
	require.NotEmpty(t, res.Leaderboard)
	assert.Equal(t, "p1", res.Leaderboard[0].ParticipantID)

	require.NoError(t, g.coord.AdvanceRound(ctx, g.sessionID, "host", 0))
	waitView(t, c, "question 1 with timer", func(v View) bool {
		return isPhase(PhaseQuestion, 1)(v) && !v.Deadline.IsZero()
	})

	// Let the timer run out: the client submits a timeout on its own.
	require.NoError(t, g.clock.BlockUntilContext(ctx, 1))
	g.clock.Advance(20 * time.Second)
	timedOut := waitView(t, c, "timeout feedback", func(v View) bool {
		return v.QuestionIndex == 1 && v.LastAnswer != nil
	})
	assert.False(t, timedOut.LastAnswer.Correct)
	assert.Equal(t, domain.NoAnswer, timedOut.LastAnswer.ChosenIndex)
	assert.Equal(t, 0, timedOut.LastAnswer.Points)

	require.NoError(t, g.coord.AdvanceRound(ctx, g.sessionID, "host", 1))
	final := waitView(t, c, "finished", func(v View) bool { return v.Phase == PhaseFinished })
	assert.Equal(t, 1500, final.Leaderboard[0].Score)

	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatalf("client did not stop after the session finished")
	}
}

func TestClientSkipsResultDelayWhenHostAdvances(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g := newGame(t, "p1")
	require.NoError(t, g.coord.StartRound(ctx, g.sessionID, "host"))
	c, _ := g.client(t, ctx, "p1")

	waitView(t, c, "question 0", isPhase(PhaseQuestion, 0))
	require.NoError(t, c.Answer(ctx, 0, 0))
	waitView(t, c, "feedback", func(v View) bool { return v.LastAnswer != nil })

	require.NoError(t, g.coord.AdvanceRound(ctx, g.sessionID, "host", 0))
	v := waitView(t, c, "question 1", isPhase(PhaseQuestion, 1))
	assert.False(t, v.Answered)
	assert.Nil(t, v.LastAnswer)
}

func TestClientReconnectDerivesPhaseFromSnapshot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g := newGame(t, "p1")
	require.NoError(t, g.coord.StartRound(ctx, g.sessionID, "host"))
	_, err := g.coord.SubmitAnswer(ctx, domain.AnswerSubmission{
		SessionID: g.sessionID, ParticipantID: "p1", QuestionIndex: 0, ChosenIndex: 1, ElapsedSeconds: 4,
	})
	require.NoError(t, err)

	c, _ := g.client(t, ctx, "p1")
	v := waitView(t, c, "first view", func(View) bool { return true })
	assert.Equal(t, PhaseResult, v.Phase)
	assert.Equal(t, 0, v.QuestionIndex)
	assert.True(t, v.Answered)
	assert.ErrorIs(t, c.Answer(ctx, 0, 1), ErrNotAnswerable)
}

func TestClientFinishedIsOneShot(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	g := newGame(t, "p1")
	require.NoError(t, g.coord.StartRound(ctx, g.sessionID, "host"))
	require.NoError(t, g.coord.AdvanceRound(ctx, g.sessionID, "host", 0))
	require.NoError(t, g.coord.AdvanceRound(ctx, g.sessionID, "host", 1))

	c, errs := g.client(t, ctx, "p1")
	waitView(t, c, "finished", func(v View) bool { return v.Phase == PhaseFinished })

	select {
	case err := <-errs:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatalf("client did not stop")
	}

	// Repeated advances after the end never produce another finished view.
	require.NoError(t, g.coord.AdvanceRound(ctx, g.sessionID, "host", -1))
	select {
	case v := <-c.Views():
		t.Fatalf("unexpected view after finish: %+v", v)
	case <-time.After(100 * time.Millisecond):
	}
	assert.ErrorIs(t, c.Answer(ctx, 1, 0), ErrStopped)
}

func TestClientUnknownSession(t *testing.T) {
	g := newGame(t)
	c := NewClient(g.coord, "missing", "p1", WithClock(g.clock), WithSubmitRetries(0))
	err := c.Run(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
