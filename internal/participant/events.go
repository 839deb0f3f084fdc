package participant

import (
	"context"
	"time"

	"live-quiz-service/internal/domain"

	"github.com/jonboulle/clockwork"
)

// event is something the client loop reacts to.
type event interface {
	apply(ctx context.Context, c *Client)
}

type sessionEvent struct{ session domain.Session }

func (e sessionEvent) apply(ctx context.Context, c *Client) { c.onSession(ctx, e.session) }

type questionEvent struct{ state domain.QuestionState }

func (e questionEvent) apply(ctx context.Context, c *Client) { c.onQuestionState(ctx, e.state) }

type answerEvent struct {
	index  int
	chosen int
	reply  chan error
}

func (e answerEvent) apply(ctx context.Context, c *Client) { c.onAnswer(ctx, e) }

type timeoutEvent struct{ index int }

func (e timeoutEvent) apply(ctx context.Context, c *Client) { c.onTimeout(ctx, e) }

type submittedEvent struct {
	index  int
	result domain.AnswerResult
	err    error
}

func (e submittedEvent) apply(ctx context.Context, c *Client) { c.onSubmitted(ctx, e) }

type resultDelayEvent struct{ index int }

func (e resultDelayEvent) apply(_ context.Context, c *Client) { c.onResultDelay(e) }

// pendingTimer posts an event into the loop when it fires unless cancelled first.
type pendingTimer struct {
	timer clockwork.Timer
	stop  chan struct{}
}

func (c *Client) schedule(ctx context.Context, d time.Duration, ev event) *pendingTimer {
	if d < 0 {
		d = 0
	}
	p := &pendingTimer{timer: c.clock.NewTimer(d), stop: make(chan struct{})}
	go func() {
		select {
		case <-p.timer.Chan():
			_ = c.post(ctx, ev)
		case <-p.stop:
		case <-ctx.Done():
			stopAndDrainTimer(p.timer)
		}
	}()
	return p
}

// cancel stops the timer before returning so it no longer counts as pending.
func (p *pendingTimer) cancel() {
	stopAndDrainTimer(p.timer)
	close(p.stop)
}

// stopAndDrainTimer stops a timer and empties its channel if it already fired.
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}
