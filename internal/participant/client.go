// Package participant follows one live session from a single participant's point of view.
//
// A Client owns one event loop. Session snapshots, question-state snapshots, local answers,
// timer expiries and submission results are all funnelled through it, so view state is
// only ever touched by one goroutine.
package participant

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"live-quiz-service/internal/app"
	"live-quiz-service/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Phase is the locally derived stage of the game.
type Phase string

const (
	PhaseConnecting Phase = "connecting"
	PhaseLobby      Phase = "lobby"
	PhaseQuestion   Phase = "question"
	PhaseResult     Phase = "result"
	PhaseFinished   Phase = "finished"
)

// DefaultResultDelay lets the answer feedback show before the result view.
const DefaultResultDelay = 2 * time.Second

var (
	// ErrNotAnswerable is returned when the question is not open locally.
	ErrNotAnswerable = fmt.Errorf("question is not open: %w", domain.ErrInvalidState)
	// ErrAlreadyAnswered is returned for a second local answer to the same question.
	ErrAlreadyAnswered = fmt.Errorf("question already answered: %w", domain.ErrDuplicateSubmission)
	// ErrStopped is returned when the client loop is no longer running.
	ErrStopped = errors.New("participant client stopped")
)

// Coordinator is the part of the session coordinator a participant talks to.
type Coordinator interface {
	SubscribeSession(ctx context.Context, sessionID string, fn func(domain.Session)) (func(), error)
	SubscribeQuestionState(ctx context.Context, sessionID string, fn func(domain.QuestionState)) (func(), error)
	SubmitAnswer(ctx context.Context, sub domain.AnswerSubmission) (domain.AnswerResult, error)
}

// View is what a participant's screen renders.
type View struct {
	Phase         Phase
	QuestionIndex int
	Session       domain.Session
	// Deadline is when the local timer forces a timeout answer. Zero when no timer is armed.
	Deadline    time.Time
	Answered    bool
	LastAnswer  *domain.AnswerResult
	Leaderboard []domain.LeaderboardEntry
}

// Option customizes a Client.
type Option func(*Client)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Client) { c.clock = clock }
}

// WithResultDelay sets the pause between answering and the result view.
func WithResultDelay(d time.Duration) Option {
	return func(c *Client) {
		if d >= 0 {
			c.resultDelay = d
		}
	}
}

// WithSubmitRetries bounds retries of a submission while the store is unavailable.
func WithSubmitRetries(n uint64) Option {
	return func(c *Client) { c.submitRetries = n }
}

// Client is the session-scoped context of one participant.
type Client struct {
	coord         Coordinator
	sessionID     string
	participantID string
	clock         clockwork.Clock
	resultDelay   time.Duration
	submitRetries uint64

	inbox chan event
	views chan View
	done  chan struct{}
	once  sync.Once

	// Loop state. Only the Run goroutine touches these.
	phase         Phase
	index         int
	session       domain.Session
	hasSession    bool
	question      *domain.QuestionState
	enteredAt     time.Time
	answeredIndex int
	lastAnswer    *domain.AnswerResult
	deadline      *pendingTimer
	deadlineAt    time.Time
	delay         *pendingTimer
	finished      bool
}

func NewClient(coord Coordinator, sessionID, participantID string, opts ...Option) *Client {
	c := &Client{
		coord:         coord,
		sessionID:     sessionID,
		participantID: participantID,
		clock:         clockwork.NewRealClock(),
		resultDelay:   DefaultResultDelay,
		submitRetries: 5,
		inbox:         make(chan event, 32),
		views:         make(chan View, 8),
		done:          make(chan struct{}),
		phase:         PhaseConnecting,
		index:         -1,
		answeredIndex: domain.NoAnswer,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Views streams view updates. When the reader falls behind the oldest view is dropped.
func (c *Client) Views() <-chan View {
	return c.views
}

// Answer submits chosenIndex for questionIndex. The answer is accepted once per question;
// scoring happens asynchronously and shows up in later views.
func (c *Client) Answer(ctx context.Context, questionIndex, chosenIndex int) error {
	reply := make(chan error, 1)
	if err := c.post(ctx, answerEvent{index: questionIndex, chosen: chosenIndex, reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// Run subscribes to the session and processes events until the session finishes or ctx
// is done. It returns nil after the finished view has been published.
func (c *Client) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer c.once.Do(func() { close(c.done) })

	unsubscribe, err := c.subscribe(ctx)
	if err != nil {
		return err
	}
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			c.stopTimers()
			return ctx.Err()
		case ev := <-c.inbox:
			ev.apply(ctx, c)
			if c.finished {
				c.stopTimers()
				return nil
			}
		}
	}
}

func (c *Client) subscribe(ctx context.Context) (func(), error) {
	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.submitRetries), ctx)

	var stopSession, stopQuestion func()
	err := backoff.Retry(func() error {
		var err error
		stopSession, err = c.coord.SubscribeSession(ctx, c.sessionID, func(s domain.Session) {
			_ = c.post(ctx, sessionEvent{session: s})
		})
		return retryable(err)
	}, policy)
	if err != nil {
		return nil, err
	}

	policy.Reset()
	err = backoff.Retry(func() error {
		var err error
		stopQuestion, err = c.coord.SubscribeQuestionState(ctx, c.sessionID, func(q domain.QuestionState) {
			_ = c.post(ctx, questionEvent{state: q})
		})
		return retryable(err)
	}, policy)
	if err != nil {
		stopSession()
		return nil, err
	}
	return func() {
		stopSession()
		stopQuestion()
	}, nil
}

func (c *Client) post(ctx context.Context, ev event) error {
	select {
	case c.inbox <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

// onSession derives the phase from the latest session snapshot alone, so a reconnecting
// client lands in the right place without any replay.
func (c *Client) onSession(ctx context.Context, s domain.Session) {
	c.session = s
	c.hasSession = true

	switch s.Status {
	case domain.StatusLobby:
		c.setPhase(PhaseLobby, -1)
	case domain.StatusFinished:
		if c.finished {
			return
		}
		c.stopTimers()
		c.finished = true
		c.setPhase(PhaseFinished, s.CurrentQuestionIndex)
	case domain.StatusPlaying:
		i := s.CurrentQuestionIndex
		me := s.Player(c.participantID)
		serverAnswered := me != nil && me.HasAnswered(i)
		switch {
		case c.phase == PhaseResult && c.index == i:
		case c.phase == PhaseQuestion && c.index == i:
			// Waiting on a submission or on the result delay; the server marker
			// alone does not skip the feedback pause.
			if serverAnswered && c.answeredIndex != i {
				c.answeredIndex = i
				c.stopDeadline()
				c.setPhase(PhaseResult, i)
			}
		case serverAnswered:
			c.answeredIndex = i
			c.stopTimers()
			c.setPhase(PhaseResult, i)
		default:
			c.enterQuestion(ctx, i)
		}
	}
	c.publish()
}

func (c *Client) onQuestionState(ctx context.Context, q domain.QuestionState) {
	c.question = &q
	if c.phase == PhaseQuestion && c.index == q.CurrentQuestionIndex && c.answeredIndex != c.index {
		c.armDeadline(ctx)
		c.publish()
	}
}

func (c *Client) enterQuestion(ctx context.Context, i int) {
	c.stopTimers()
	c.lastAnswer = nil
	c.enteredAt = c.clock.Now()
	c.setPhase(PhaseQuestion, i)
	c.armDeadline(ctx)
}

// armDeadline starts the local countdown once the question state for the current index is
// known. The question state may arrive before or after the session moves to that index.
func (c *Client) armDeadline(ctx context.Context) {
	if c.deadline != nil || c.question == nil || c.question.CurrentQuestionIndex != c.index {
		return
	}
	c.deadlineAt = c.question.Deadline()
	index := c.index
	c.deadline = c.schedule(ctx, c.deadlineAt.Sub(c.clock.Now()), timeoutEvent{index: index})
}

func (c *Client) onAnswer(ctx context.Context, ev answerEvent) {
	if c.phase != PhaseQuestion || c.index != ev.index {
		ev.reply <- ErrNotAnswerable
		return
	}
	if c.answeredIndex == ev.index {
		ev.reply <- ErrAlreadyAnswered
		return
	}
	c.submit(ctx, ev.index, ev.chosen, c.elapsedSeconds())
	ev.reply <- nil
	c.publish()
}

func (c *Client) onTimeout(ctx context.Context, ev timeoutEvent) {
	if c.phase != PhaseQuestion || c.index != ev.index || c.answeredIndex == ev.index {
		return
	}
	limit := domain.DefaultTimeLimit.Seconds()
	if c.question != nil {
		limit = c.question.TimeLimit().Seconds()
	}
	log.Debug().
		Str("session_id", c.sessionID).
		Str("participant_id", c.participantID).
		Int("question_index", ev.index).
		Msg("time is up, submitting no answer")
	c.submit(ctx, ev.index, domain.NoAnswer, limit)
	c.publish()
}

// submit locks the question locally and sends the answer in the background.
func (c *Client) submit(ctx context.Context, index, chosen int, elapsed float64) {
	c.answeredIndex = index
	c.stopDeadline()

	sub := domain.AnswerSubmission{
		SessionID:      c.sessionID,
		ParticipantID:  c.participantID,
		QuestionIndex:  index,
		ChosenIndex:    chosen,
		ElapsedSeconds: elapsed,
	}
	go func() {
		policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), c.submitRetries), ctx)
		var result domain.AnswerResult
		err := backoff.Retry(func() error {
			var err error
			result, err = c.coord.SubmitAnswer(ctx, sub)
			return retryable(err)
		}, policy)
		_ = c.post(ctx, submittedEvent{index: index, result: result, err: err})
	}()
}

func (c *Client) onSubmitted(ctx context.Context, ev submittedEvent) {
	if ev.err != nil {
		// Most likely the host moved on; the next session snapshot takes us there.
		log.Warn().Err(ev.err).
			Str("session_id", c.sessionID).
			Str("participant_id", c.participantID).
			Int("question_index", ev.index).
			Msg("answer not accepted")
		return
	}
	if c.phase != PhaseQuestion || c.index != ev.index {
		return
	}
	result := ev.result
	c.lastAnswer = &result
	c.publish()
	if c.delay == nil {
		c.delay = c.schedule(ctx, c.resultDelay, resultDelayEvent{index: ev.index})
	}
}

func (c *Client) onResultDelay(ev resultDelayEvent) {
	if c.phase != PhaseQuestion || c.index != ev.index {
		return
	}
	c.delay = nil
	c.setPhase(PhaseResult, ev.index)
	c.publish()
}

func (c *Client) setPhase(phase Phase, index int) {
	if c.phase == phase && c.index == index {
		return
	}
	log.Debug().
		Str("session_id", c.sessionID).
		Str("participant_id", c.participantID).
		Str("phase", string(phase)).
		Int("question_index", index).
		Msg("phase changed")
	c.phase = phase
	c.index = index
}

func (c *Client) elapsedSeconds() float64 {
	start := c.enteredAt
	if c.question != nil && c.question.CurrentQuestionIndex == c.index {
		start = c.question.StartedAt
	}
	elapsed := c.clock.Since(start).Seconds()
	if elapsed < 0 {
		return 0
	}
	return elapsed
}

func (c *Client) publish() {
	if !c.hasSession {
		return
	}
	view := View{
		Phase:         c.phase,
		QuestionIndex: c.index,
		Session:       c.session,
		Answered:      c.answeredIndex == c.index && c.index >= 0,
		LastAnswer:    c.lastAnswer,
	}
	if c.deadline != nil {
		view.Deadline = c.deadlineAt
	}
	if c.phase == PhaseResult || c.phase == PhaseFinished {
		view.Leaderboard = app.RankPlayers(c.session.Players)
	}

	select {
	case c.views <- view:
	default:
		// Drop the stale view; readers only need the latest one.
		select {
		case <-c.views:
		default:
		}
		c.views <- view
	}
}

func (c *Client) stopDeadline() {
	if c.deadline != nil {
		c.deadline.cancel()
		c.deadline = nil
	}
	c.deadlineAt = time.Time{}
}

func (c *Client) stopTimers() {
	c.stopDeadline()
	if c.delay != nil {
		c.delay.cancel()
		c.delay = nil
	}
}

// retryable marks everything except transient store failures as permanent.
func retryable(err error) error {
	if err == nil || errors.Is(err, domain.ErrTransientStore) {
		return err
	}
	return backoff.Permanent(err)
}
