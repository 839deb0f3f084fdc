package app

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// QuizRepository loads quiz content (from cache/backing store).
type QuizRepository interface {
	GetQuiz(ctx context.Context, quizID string) (domain.Quiz, error)
}

// HistoryRepository persists per-participant results of finished sessions.
// Append must ignore entries already stored for the same participant and session.
type HistoryRepository interface {
	Append(ctx context.Context, entries []domain.GameHistoryEntry) error
	List(ctx context.Context, quizID string) ([]domain.GameHistoryEntry, error)
}

const (
	defaultCodeAttempts = 5
	defaultReadRetries  = 3
)

// Coordinator drives live sessions on top of a document store. Every state change is a
// single conditional update of one document; there are no cross-document transactions.
type Coordinator struct {
	store   docstore.Store
	quizzes QuizRepository
	history HistoryRepository
	events  EventPublisher

	clock            clockwork.Clock
	newID            func() string
	newCode          func() string
	codeAttempts     int
	defaultTimeLimit time.Duration
	readRetries      uint64
}

// Option customizes a Coordinator.
type Option func(*Coordinator)

func WithClock(clock clockwork.Clock) Option {
	return func(c *Coordinator) { c.clock = clock }
}

func WithIDGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newID = fn }
}

func WithCodeGenerator(fn func() string) Option {
	return func(c *Coordinator) { c.newCode = fn }
}

// WithCodeAttempts bounds how often hosting regenerates a code that a lobby already uses.
func WithCodeAttempts(n int) Option {
	return func(c *Coordinator) {
		if n > 0 {
			c.codeAttempts = n
		}
	}
}

func WithEventPublisher(p EventPublisher) Option {
	return func(c *Coordinator) {
		if p != nil {
			c.events = p
		}
	}
}

// WithDefaultTimeLimit applies to questions without their own limit.
func WithDefaultTimeLimit(d time.Duration) Option {
	return func(c *Coordinator) {
		if d > 0 {
			c.defaultTimeLimit = d
		}
	}
}

// WithReadRetries sets how many times reads are retried while the store is unavailable.
func WithReadRetries(n uint64) Option {
	return func(c *Coordinator) { c.readRetries = n }
}

func NewCoordinator(store docstore.Store, quizzes QuizRepository, history HistoryRepository, opts ...Option) *Coordinator {
	c := &Coordinator{
		store:            store,
		quizzes:          quizzes,
		history:          history,
		events:           NopPublisher{},
		clock:            clockwork.NewRealClock(),
		newID:            uuid.NewString,
		newCode:          GenerateGameCode,
		codeAttempts:     defaultCodeAttempts,
		defaultTimeLimit: domain.DefaultTimeLimit,
		readRetries:      defaultReadRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// HostSession creates a lobby for quizID with the host as its first player.
func (c *Coordinator) HostSession(ctx context.Context, quizID, hostID, hostName string) (domain.HostResult, error) {
	if err := domain.ValidateID("quiz id", quizID); err != nil {
		return domain.HostResult{}, err
	}
	if err := domain.ValidateID("host id", hostID); err != nil {
		return domain.HostResult{}, err
	}
	hostName = strings.TrimSpace(hostName)
	if hostName == "" {
		return domain.HostResult{}, fmt.Errorf("host name is required: %w", domain.ErrInvalidArgument)
	}

	quiz, err := c.quizzes.GetQuiz(ctx, quizID)
	if err != nil {
		return domain.HostResult{}, err
	}
	if err := quiz.Validate(); err != nil {
		return domain.HostResult{}, err
	}

	code, err := c.uniqueGameCode(ctx)
	if err != nil {
		return domain.HostResult{}, err
	}

	now := c.clock.Now().UTC()
	session := domain.Session{
		ID:            c.newID(),
		GameCode:      code,
		QuizID:        quizID,
		HostID:        hostID,
		Status:        domain.StatusLobby,
		QuestionCount: len(quiz.Questions),
		CreatedAt:     now,
		Players: map[string]*domain.Player{
			hostID: {
				ID:            hostID,
				Name:          hostName,
				IsHost:        true,
				AnsweredIndex: domain.NoAnswer,
				JoinedAt:      now,
			},
		},
	}
	if err := c.store.Create(ctx, sessionPath(session.ID), encodeSession(session)); err != nil {
		return domain.HostResult{}, storeErr("create session", err)
	}

	log.Info().
		Str("session_id", session.ID).
		Str("quiz_id", quizID).
		Str("game_code", code).
		Msg("session hosted")
	c.publish(ctx, domain.SessionEvent{Type: domain.EventHosted, SessionID: session.ID, QuizID: quizID, ParticipantID: hostID})
	return domain.HostResult{SessionID: session.ID, GameCode: code}, nil
}

// uniqueGameCode regenerates while a lobby already uses the code. After the last attempt
// the collision is accepted; joins resolve to the oldest lobby.
func (c *Coordinator) uniqueGameCode(ctx context.Context) (string, error) {
	var code string
	for attempt := 0; attempt < c.codeAttempts; attempt++ {
		code = c.newCode()
		sessions, err := c.sessionsByCode(ctx, code)
		if err != nil {
			return "", err
		}
		if len(lobbies(sessions)) == 0 {
			return code, nil
		}
	}
	log.Warn().Str("game_code", code).Int("attempts", c.codeAttempts).Msg("game code collides with an open lobby")
	return code, nil
}

// JoinSession adds a participant to the oldest lobby using gameCode. Joining a lobby twice
// returns the same session without resetting the player.
func (c *Coordinator) JoinSession(ctx context.Context, gameCode, participantID, displayName string) (domain.JoinResult, error) {
	gameCode = strings.ToUpper(strings.TrimSpace(gameCode))
	if gameCode == "" {
		return domain.JoinResult{}, fmt.Errorf("game code is required: %w", domain.ErrInvalidArgument)
	}
	if err := domain.ValidateID("participant id", participantID); err != nil {
		return domain.JoinResult{}, err
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return domain.JoinResult{}, fmt.Errorf("display name is required: %w", domain.ErrInvalidArgument)
	}

	sessions, err := c.sessionsByCode(ctx, gameCode)
	if err != nil {
		return domain.JoinResult{}, err
	}
	if len(sessions) == 0 {
		return domain.JoinResult{}, domain.ErrGameCodeNotFound
	}
	open := lobbies(sessions)
	if len(open) == 0 {
		return domain.JoinResult{}, domain.ErrAlreadyStarted
	}
	session := open[0]
	result := domain.JoinResult{SessionID: session.ID, QuizID: session.QuizID}
	if session.Player(participantID) != nil {
		return result, nil
	}

	player := domain.Player{
		ID:            participantID,
		Name:          displayName,
		AnsweredIndex: domain.NoAnswer,
		JoinedAt:      c.clock.Now().UTC(),
	}
	err = c.store.Update(ctx, sessionPath(session.ID),
		[]docstore.Condition{
			docstore.Equals(fieldStatus, domain.StatusLobby),
			docstore.Absent(playerField(participantID, fieldID)),
		},
		playerJoinOps(player)...)
	if errors.Is(err, docstore.ErrConditionFailed) {
		// Lost a race with start or with our own retry.
		current, gerr := c.GetSession(ctx, session.ID)
		if gerr != nil {
			return domain.JoinResult{}, gerr
		}
		if current.Player(participantID) != nil {
			return result, nil
		}
		return domain.JoinResult{}, domain.ErrAlreadyStarted
	}
	if err != nil {
		return domain.JoinResult{}, storeErr("join session", err)
	}

	log.Info().
		Str("session_id", session.ID).
		Str("participant_id", participantID).
		Msg("participant joined")
	c.publish(ctx, domain.SessionEvent{Type: domain.EventJoined, SessionID: session.ID, QuizID: session.QuizID, ParticipantID: participantID})
	return result, nil
}

// StartRound moves a lobby to the first question. Host only.
func (c *Coordinator) StartRound(ctx context.Context, sessionID, callerID string) error {
	session, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsHost(callerID) {
		return domain.ErrNotHost
	}
	if session.Status == domain.StatusPlaying && session.CurrentQuestionIndex == 0 {
		restored, err := c.restoreQuestionState(ctx, session)
		if err != nil {
			return err
		}
		if restored {
			return nil
		}
	}
	if session.Status != domain.StatusLobby {
		return domain.ErrAlreadyStarted
	}
	if len(session.Players) == 0 {
		return domain.ErrNoPlayers
	}
	quiz, err := c.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return err
	}
	if len(quiz.Questions) == 0 {
		return fmt.Errorf("quiz %q has no questions: %w", quiz.ID, domain.ErrInvalidArgument)
	}

	err = c.store.Update(ctx, sessionPath(sessionID),
		[]docstore.Condition{docstore.Equals(fieldStatus, domain.StatusLobby)},
		docstore.Set(fieldStatus, domain.StatusPlaying),
		docstore.Set(fieldCurrentQuestionIndex, 0))
	if errors.Is(err, docstore.ErrConditionFailed) {
		return domain.ErrAlreadyStarted
	}
	if err != nil {
		return storeErr("start session", err)
	}

	state := newQuestionState(sessionID, 0, c.clock.Now().UTC(), quiz.Questions[0].TimeLimit(c.defaultTimeLimit))
	if err := c.replaceQuestionState(ctx, state); err != nil {
		return err
	}

	log.Info().Str("session_id", sessionID).Int("players", len(session.Players)).Msg("session started")
	c.publish(ctx, domain.SessionEvent{Type: domain.EventStarted, SessionID: sessionID, QuizID: session.QuizID})
	return nil
}

// SubmitAnswer scores one answer. The session document is the commit point: the score
// increment and the per-player answered marker land in one conditional update, so a
// retried submission is scored at most once and a submission for a question the host
// already moved past changes nothing.
func (c *Coordinator) SubmitAnswer(ctx context.Context, sub domain.AnswerSubmission) (domain.AnswerResult, error) {
	if err := validateSubmission(sub); err != nil {
		return domain.AnswerResult{}, err
	}

	session, err := c.GetSession(ctx, sub.SessionID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	player := session.Player(sub.ParticipantID)
	if player == nil {
		return domain.AnswerResult{}, domain.ErrParticipantNotFound
	}
	if player.HasAnswered(sub.QuestionIndex) {
		return duplicateResult(player, sub), nil
	}
	if session.Status != domain.StatusPlaying || session.CurrentQuestionIndex != sub.QuestionIndex {
		return domain.AnswerResult{}, domain.ErrQuestionClosed
	}

	quiz, err := c.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return domain.AnswerResult{}, err
	}
	if sub.QuestionIndex >= len(quiz.Questions) {
		return domain.AnswerResult{}, domain.ErrQuestionClosed
	}
	question := quiz.Questions[sub.QuestionIndex]
	if sub.ChosenIndex >= len(question.Options) {
		return domain.AnswerResult{}, fmt.Errorf("chosen index %d out of range: %w", sub.ChosenIndex, domain.ErrInvalidArgument)
	}

	correct := sub.ChosenIndex != domain.NoAnswer && sub.ChosenIndex == question.CorrectIndex
	limit := question.TimeLimit(c.defaultTimeLimit)
	last := domain.LastAnswer{
		QuestionIndex: sub.QuestionIndex,
		IsCorrect:     correct,
		Points:        Score(correct, sub.ElapsedSeconds, limit.Seconds()),
	}

	err = c.store.Update(ctx, sessionPath(sub.SessionID),
		[]docstore.Condition{
			docstore.Equals(fieldStatus, domain.StatusPlaying),
			docstore.Equals(fieldCurrentQuestionIndex, sub.QuestionIndex),
			docstore.Exists(playerField(sub.ParticipantID, fieldID)),
			docstore.NotEquals(playerField(sub.ParticipantID, playerAnsweredIndex), sub.QuestionIndex),
		},
		scoreOps(sub.ParticipantID, last)...)
	if errors.Is(err, docstore.ErrConditionFailed) {
		current, gerr := c.GetSession(ctx, sub.SessionID)
		if gerr != nil {
			return domain.AnswerResult{}, gerr
		}
		if p := current.Player(sub.ParticipantID); p != nil && p.HasAnswered(sub.QuestionIndex) {
			return duplicateResult(p, sub), nil
		}
		log.Debug().
			Str("session_id", sub.SessionID).
			Str("participant_id", sub.ParticipantID).
			Int("question_index", sub.QuestionIndex).
			Msg("late answer rejected")
		return domain.AnswerResult{}, domain.ErrQuestionClosed
	}
	if err != nil {
		return domain.AnswerResult{}, storeErr("submit answer", err)
	}

	c.mirrorResponse(ctx, sub, last)

	return domain.AnswerResult{
		QuestionIndex: sub.QuestionIndex,
		ChosenIndex:   sub.ChosenIndex,
		Correct:       correct,
		Points:        last.Points,
		TotalScore:    player.Score + last.Points,
	}, nil
}

// mirrorResponse copies a committed answer into the question state so the host can watch
// responses arrive. The score is already final; losing this write only hides the response.
func (c *Coordinator) mirrorResponse(ctx context.Context, sub domain.AnswerSubmission, last domain.LastAnswer) {
	response := domain.Response{
		ChosenIndex:    sub.ChosenIndex,
		IsCorrect:      last.IsCorrect,
		Points:         last.Points,
		ElapsedSeconds: sub.ElapsedSeconds,
		Timestamp:      c.clock.Now().UTC(),
	}
	err := c.store.Update(ctx, questionStatePath(sub.SessionID),
		[]docstore.Condition{
			docstore.Equals(fieldCurrentQuestionIndex, sub.QuestionIndex),
			docstore.Absent(responseField(sub.ParticipantID)),
		},
		docstore.Set(responseField(sub.ParticipantID), response))
	if err != nil {
		log.Warn().Err(err).
			Str("session_id", sub.SessionID).
			Str("participant_id", sub.ParticipantID).
			Int("question_index", sub.QuestionIndex).
			Msg("response not recorded in question state")
	}
}

// AdvanceRound moves from question fromIndex to the next one, or finishes the session after
// the last question. A negative fromIndex means the current question. Advancing a finished
// session, or from a question that is no longer current, changes nothing. Host only.
func (c *Coordinator) AdvanceRound(ctx context.Context, sessionID, callerID string, fromIndex int) error {
	session, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if !session.IsHost(callerID) {
		return domain.ErrNotHost
	}
	switch session.Status {
	case domain.StatusFinished:
		// Retry history in case the write after finishing failed; entries are deduplicated.
		return c.recordHistory(ctx, sessionID, session.QuizID)
	case domain.StatusLobby:
		return domain.ErrNotStarted
	}

	current := session.CurrentQuestionIndex
	if fromIndex >= 0 && fromIndex != current {
		if fromIndex == current-1 {
			// A retry of an advance whose question state write failed.
			_, err := c.restoreQuestionState(ctx, session)
			return err
		}
		return nil
	}
	guard := []docstore.Condition{
		docstore.Equals(fieldStatus, domain.StatusPlaying),
		docstore.Equals(fieldCurrentQuestionIndex, current),
	}

	if current+1 >= session.QuestionCount {
		err := c.store.Update(ctx, sessionPath(sessionID), guard,
			docstore.Set(fieldStatus, domain.StatusFinished),
			docstore.Set(fieldFinishedAt, c.clock.Now().UTC()))
		if errors.Is(err, docstore.ErrConditionFailed) {
			return nil
		}
		if err != nil {
			return storeErr("finish session", err)
		}
		if err := c.store.Update(ctx, questionStatePath(sessionID),
			[]docstore.Condition{docstore.Equals(fieldCurrentQuestionIndex, current)},
			docstore.Set(fieldIsActive, false)); err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("question state not closed")
		}

		log.Info().Str("session_id", sessionID).Msg("session finished")
		c.publish(ctx, domain.SessionEvent{Type: domain.EventFinished, SessionID: sessionID, QuizID: session.QuizID, QuestionIndex: current})
		return c.recordHistory(ctx, sessionID, session.QuizID)
	}

	quiz, err := c.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return err
	}
	next := current + 1
	if next >= len(quiz.Questions) {
		return fmt.Errorf("quiz %q has %d questions, session expects %d: %w",
			quiz.ID, len(quiz.Questions), session.QuestionCount, domain.ErrInvalidState)
	}

	err = c.store.Update(ctx, sessionPath(sessionID), guard,
		docstore.Set(fieldCurrentQuestionIndex, next))
	if errors.Is(err, docstore.ErrConditionFailed) {
		return nil
	}
	if err != nil {
		return storeErr("advance session", err)
	}

	state := newQuestionState(sessionID, next, c.clock.Now().UTC(), quiz.Questions[next].TimeLimit(c.defaultTimeLimit))
	if err := c.replaceQuestionState(ctx, state); err != nil {
		return err
	}

	log.Info().Str("session_id", sessionID).Int("question_index", next).Msg("session advanced")
	c.publish(ctx, domain.SessionEvent{Type: domain.EventAdvanced, SessionID: sessionID, QuizID: session.QuizID, QuestionIndex: next})
	return nil
}

// recordHistory writes one history entry per player of a finished session. The session is
// re-read so late score increments that committed before the finish are included.
func (c *Coordinator) recordHistory(ctx context.Context, sessionID, quizID string) error {
	var (
		session domain.Session
		title   string
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s, err := c.GetSession(gctx, sessionID)
		session = s
		return err
	})
	g.Go(func() error {
		quiz, err := c.quizzes.GetQuiz(gctx, quizID)
		if err != nil {
			log.Warn().Err(err).Str("session_id", sessionID).Msg("quiz title unavailable for history")
			return nil
		}
		title = quiz.Title
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	completedAt := c.clock.Now().UTC()
	if session.FinishedAt != nil {
		completedAt = *session.FinishedAt
	}
	if err := c.history.Append(ctx, BuildHistory(session, title, completedAt)); err != nil {
		return fmt.Errorf("record history: %w: %v", domain.ErrTransientStore, err)
	}
	return nil
}

// LeaveSession marks a participant as gone from the results view. Once a finished session
// has no remaining participants its documents are deleted.
func (c *Coordinator) LeaveSession(ctx context.Context, sessionID, participantID string) error {
	session, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	player := session.Player(participantID)
	if player == nil {
		return domain.ErrParticipantNotFound
	}
	if player.LeftAt == nil {
		err := c.store.Update(ctx, sessionPath(sessionID),
			[]docstore.Condition{docstore.Absent(playerField(participantID, playerLeftAt))},
			docstore.Set(playerField(participantID, playerLeftAt), c.clock.Now().UTC()))
		if err != nil && !errors.Is(err, docstore.ErrConditionFailed) {
			return storeErr("leave session", err)
		}
	}

	session, err = c.GetSession(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if session.Status != domain.StatusFinished {
		return nil
	}
	for _, p := range session.Players {
		if p.LeftAt == nil {
			return nil
		}
	}
	if err := c.store.Delete(ctx, questionStatePath(sessionID)); err != nil {
		return storeErr("delete question state", err)
	}
	if err := c.store.Delete(ctx, sessionPath(sessionID)); err != nil {
		return storeErr("delete session", err)
	}
	log.Info().Str("session_id", sessionID).Msg("session cleaned up")
	return nil
}

// GetSession returns the current session.
func (c *Coordinator) GetSession(ctx context.Context, sessionID string) (domain.Session, error) {
	if err := domain.ValidateID("session id", sessionID); err != nil {
		return domain.Session{}, err
	}
	snap, err := c.get(ctx, sessionPath(sessionID))
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.Session{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.Session{}, err
	}
	return decodeSession(snap)
}

// GetQuestionState returns the state of the current question.
func (c *Coordinator) GetQuestionState(ctx context.Context, sessionID string) (domain.QuestionState, error) {
	if err := domain.ValidateID("session id", sessionID); err != nil {
		return domain.QuestionState{}, err
	}
	snap, err := c.get(ctx, questionStatePath(sessionID))
	if errors.Is(err, docstore.ErrNotFound) {
		return domain.QuestionState{}, domain.ErrQuestionStateNotFound
	}
	if err != nil {
		return domain.QuestionState{}, err
	}
	return decodeQuestionState(snap)
}

// GetLiveLeaderboard ranks the players of one session.
func (c *Coordinator) GetLiveLeaderboard(ctx context.Context, sessionID string) ([]domain.LeaderboardEntry, error) {
	session, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return RankPlayers(session.Players), nil
}

// GetGlobalLeaderboard ranks participants across finished sessions, optionally for one quiz.
func (c *Coordinator) GetGlobalLeaderboard(ctx context.Context, quizID string) ([]domain.GlobalLeaderboardEntry, error) {
	entries, err := c.history.List(ctx, quizID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrTransientStore, err)
	}
	return AggregateHistory(entries), nil
}

// SubscribeSession calls fn with the current session and after every change until cancel
// is called or ctx is done. Deleted sessions are not delivered.
func (c *Coordinator) SubscribeSession(ctx context.Context, sessionID string, fn func(domain.Session)) (func(), error) {
	if _, err := c.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	cancel, err := c.store.Subscribe(ctx, sessionPath(sessionID), func(snap docstore.Snapshot) {
		if !snap.Exists {
			return
		}
		session, err := decodeSession(snap)
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("skip undecodable session")
			return
		}
		fn(session)
	})
	if err != nil {
		return nil, storeErr("subscribe session", err)
	}
	return cancel, nil
}

// SubscribeQuestionState streams the question state. Nothing is delivered before the
// session starts.
func (c *Coordinator) SubscribeQuestionState(ctx context.Context, sessionID string, fn func(domain.QuestionState)) (func(), error) {
	if err := domain.ValidateID("session id", sessionID); err != nil {
		return nil, err
	}
	cancel, err := c.store.Subscribe(ctx, questionStatePath(sessionID), func(snap docstore.Snapshot) {
		if !snap.Exists {
			return
		}
		state, err := decodeQuestionState(snap)
		if err != nil {
			log.Error().Err(err).Str("session_id", sessionID).Msg("skip undecodable question state")
			return
		}
		fn(state)
	})
	if err != nil {
		return nil, storeErr("subscribe question state", err)
	}
	return cancel, nil
}

func (c *Coordinator) sessionsByCode(ctx context.Context, code string) ([]domain.Session, error) {
	var snaps []docstore.Snapshot
	err := c.retry(ctx, func() error {
		var err error
		snaps, err = c.store.Query(ctx, sessionsCollection, fieldGameCode, code)
		return err
	})
	if err != nil {
		return nil, storeErr("find game code", err)
	}
	sessions := make([]domain.Session, 0, len(snaps))
	for _, snap := range snaps {
		s, err := decodeSession(snap)
		if err != nil {
			log.Error().Err(err).Str("path", snap.Path).Msg("skip undecodable session")
			continue
		}
		sessions = append(sessions, s)
	}
	return sessions, nil
}

// replaceQuestionState writes a fresh question state. It is retried because the session
// document already points at the new question.
func (c *Coordinator) replaceQuestionState(ctx context.Context, state domain.QuestionState) error {
	err := c.retry(ctx, func() error {
		return c.store.Replace(ctx, questionStatePath(state.SessionID), encodeQuestionState(state))
	})
	if err != nil {
		return storeErr("replace question state", err)
	}
	return nil
}

// restoreQuestionState rewrites the question state of a playing session when it is missing
// or still points at an earlier question. It reports whether anything was written.
func (c *Coordinator) restoreQuestionState(ctx context.Context, session domain.Session) (bool, error) {
	current := session.CurrentQuestionIndex
	state, err := c.GetQuestionState(ctx, session.ID)
	switch {
	case err == nil && state.CurrentQuestionIndex >= current:
		return false, nil
	case err != nil && !errors.Is(err, domain.ErrQuestionStateNotFound):
		return false, err
	}

	quiz, err := c.quizzes.GetQuiz(ctx, session.QuizID)
	if err != nil {
		return false, err
	}
	if current >= len(quiz.Questions) {
		return false, fmt.Errorf("quiz %q has no question %d: %w", quiz.ID, current, domain.ErrInvalidState)
	}
	fresh := newQuestionState(session.ID, current, c.clock.Now().UTC(), quiz.Questions[current].TimeLimit(c.defaultTimeLimit))
	if err := c.replaceQuestionState(ctx, fresh); err != nil {
		return false, err
	}
	log.Warn().Str("session_id", session.ID).Int("question_index", current).Msg("question state restored")
	return true, nil
}

func (c *Coordinator) get(ctx context.Context, path string) (docstore.Snapshot, error) {
	var snap docstore.Snapshot
	err := c.retry(ctx, func() error {
		var err error
		snap, err = c.store.Get(ctx, path)
		return err
	})
	if err != nil && !errors.Is(err, docstore.ErrNotFound) {
		return snap, storeErr("read "+path, err)
	}
	return snap, err
}

// retry repeats op while the store reports itself unavailable.
func (c *Coordinator) retry(ctx context.Context, op func() error) error {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 50 * time.Millisecond
	policy.MaxInterval = time.Second
	return backoff.Retry(func() error {
		err := op()
		if err == nil || errors.Is(err, docstore.ErrUnavailable) {
			return err
		}
		return backoff.Permanent(err)
	}, backoff.WithContext(backoff.WithMaxRetries(policy, c.readRetries), ctx))
}

func (c *Coordinator) publish(ctx context.Context, event domain.SessionEvent) {
	event.OccurredAt = c.clock.Now().UTC()
	if err := c.events.Publish(ctx, event); err != nil {
		log.Warn().Err(err).
			Str("session_id", event.SessionID).
			Str("event", string(event.Type)).
			Msg("publish session event")
	}
}

// lobbies returns the lobby-status sessions, oldest first.
func lobbies(sessions []domain.Session) []domain.Session {
	var out []domain.Session
	for _, s := range sessions {
		if s.Status == domain.StatusLobby {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func validateSubmission(sub domain.AnswerSubmission) error {
	if err := domain.ValidateID("session id", sub.SessionID); err != nil {
		return err
	}
	if err := domain.ValidateID("participant id", sub.ParticipantID); err != nil {
		return err
	}
	if sub.QuestionIndex < 0 {
		return fmt.Errorf("question index %d: %w", sub.QuestionIndex, domain.ErrInvalidArgument)
	}
	if sub.ChosenIndex < domain.NoAnswer {
		return fmt.Errorf("chosen index %d: %w", sub.ChosenIndex, domain.ErrInvalidArgument)
	}
	if sub.ElapsedSeconds < 0 || math.IsNaN(sub.ElapsedSeconds) || math.IsInf(sub.ElapsedSeconds, 0) {
		return fmt.Errorf("elapsed seconds %v: %w", sub.ElapsedSeconds, domain.ErrInvalidArgument)
	}
	return nil
}

func duplicateResult(p *domain.Player, sub domain.AnswerSubmission) domain.AnswerResult {
	result := domain.AnswerResult{
		QuestionIndex: sub.QuestionIndex,
		ChosenIndex:   sub.ChosenIndex,
		TotalScore:    p.Score,
		Duplicate:     true,
	}
	if p.LastAnswer != nil && p.LastAnswer.QuestionIndex == sub.QuestionIndex {
		result.Correct = p.LastAnswer.IsCorrect
		result.Points = p.LastAnswer.Points
	}
	return result
}

// storeErr maps store failures onto the domain taxonomy.
func storeErr(op string, err error) error {
	if errors.Is(err, docstore.ErrUnavailable) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrTransientStore, err)
	}
	if errors.Is(err, docstore.ErrAlreadyExists) {
		return fmt.Errorf("%s: %w: %v", op, domain.ErrInvalidState, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
