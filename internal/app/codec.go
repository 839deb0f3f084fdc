package app

import (
	"fmt"
	"time"

	"live-quiz-service/internal/docstore"
	"live-quiz-service/internal/domain"
)

const (
	sessionsCollection       = "sessions"
	questionStatesCollection = "questionStates"
)

// Session document fields.
const (
	fieldID                   = "id"
	fieldGameCode             = "gameCode"
	fieldQuizID               = "quizId"
	fieldHostID               = "hostId"
	fieldStatus               = "status"
	fieldCurrentQuestionIndex = "currentQuestionIndex"
	fieldQuestionCount        = "questionCount"
	fieldCreatedAt            = "createdAt"
	fieldFinishedAt           = "finishedAt"
)

// Player fields, stored under players.{id}.
const (
	playerName           = "name"
	playerIsHost         = "isHost"
	playerScore          = "score"
	playerCorrectAnswers = "correctAnswers"
	playerAnsweredIndex  = "answeredIndex"
	playerLastAnswer     = "lastAnswer"
	playerJoinedAt       = "joinedAt"
	playerLeftAt         = "leftAt"
)

// QuestionState document fields.
const (
	fieldSessionID        = "sessionId"
	fieldStartedAt        = "startedAt"
	fieldTimeLimitSeconds = "timeLimitSeconds"
	fieldIsActive         = "isActive"
)

func sessionPath(sessionID string) string {
	return docstore.Path(sessionsCollection, sessionID)
}

func questionStatePath(sessionID string) string {
	return docstore.Path(questionStatesCollection, sessionID)
}

func playerField(participantID, field string) string {
	return "players." + participantID + "." + field
}

func responseField(participantID string) string {
	return "responses." + participantID
}

// encodeSession produces the full session document, players included.
func encodeSession(s domain.Session) docstore.Document {
	doc := docstore.Document{}.
		Put(fieldID, s.ID).
		Put(fieldGameCode, s.GameCode).
		Put(fieldQuizID, s.QuizID).
		Put(fieldHostID, s.HostID).
		Put(fieldStatus, s.Status).
		Put(fieldCurrentQuestionIndex, s.CurrentQuestionIndex).
		Put(fieldQuestionCount, s.QuestionCount).
		Put(fieldCreatedAt, s.CreatedAt)
	if s.FinishedAt != nil {
		doc.Put(fieldFinishedAt, *s.FinishedAt)
	}
	for _, p := range s.Players {
		for _, op := range playerJoinOps(*p) {
			doc[op.Field] = op.Value
		}
	}
	return doc
}

// playerJoinOps is the field mask written when a player enters a session.
// Score fields start at zero so later increments never see a missing value.
func playerJoinOps(p domain.Player) []docstore.Op {
	ops := []docstore.Op{
		docstore.Set(playerField(p.ID, fieldID), p.ID),
		docstore.Set(playerField(p.ID, playerName), p.Name),
		docstore.Set(playerField(p.ID, playerIsHost), p.IsHost),
		docstore.Set(playerField(p.ID, playerScore), p.Score),
		docstore.Set(playerField(p.ID, playerCorrectAnswers), p.CorrectAnswers),
		docstore.Set(playerField(p.ID, playerAnsweredIndex), p.AnsweredIndex),
		docstore.Set(playerField(p.ID, playerJoinedAt), p.JoinedAt),
	}
	if p.LastAnswer != nil {
		ops = append(ops, docstore.Set(playerField(p.ID, playerLastAnswer), *p.LastAnswer))
	}
	if p.LeftAt != nil {
		ops = append(ops, docstore.Set(playerField(p.ID, playerLeftAt), *p.LeftAt))
	}
	return ops
}

// scoreOps is the field mask of an answer commit. Score and correct answers are
// increments so concurrent players never overwrite each other.
func scoreOps(participantID string, last domain.LastAnswer) []docstore.Op {
	correct := int64(0)
	if last.IsCorrect {
		correct = 1
	}
	return []docstore.Op{
		docstore.Increment(playerField(participantID, playerScore), int64(last.Points)),
		docstore.Increment(playerField(participantID, playerCorrectAnswers), correct),
		docstore.Set(playerField(participantID, playerAnsweredIndex), last.QuestionIndex),
		docstore.Set(playerField(participantID, playerLastAnswer), last),
	}
}

// decodeSession rebuilds a session from its document.
func decodeSession(snap docstore.Snapshot) (domain.Session, error) {
	d := fieldDecoder{snap: snap}
	var s domain.Session
	d.get(fieldID, &s.ID)
	d.get(fieldGameCode, &s.GameCode)
	d.get(fieldQuizID, &s.QuizID)
	d.get(fieldHostID, &s.HostID)
	d.get(fieldStatus, &s.Status)
	d.get(fieldCurrentQuestionIndex, &s.CurrentQuestionIndex)
	d.get(fieldQuestionCount, &s.QuestionCount)
	d.get(fieldCreatedAt, &s.CreatedAt)
	if snap.Has(fieldFinishedAt) {
		var at time.Time
		d.get(fieldFinishedAt, &at)
		s.FinishedAt = &at
	}

	ids := snap.Children("players")
	s.Players = make(map[string]*domain.Player, len(ids))
	for _, id := range ids {
		p := &domain.Player{ID: id, AnsweredIndex: domain.NoAnswer}
		d.get(playerField(id, playerName), &p.Name)
		d.get(playerField(id, playerIsHost), &p.IsHost)
		d.get(playerField(id, playerScore), &p.Score)
		d.get(playerField(id, playerCorrectAnswers), &p.CorrectAnswers)
		d.get(playerField(id, playerAnsweredIndex), &p.AnsweredIndex)
		d.get(playerField(id, playerJoinedAt), &p.JoinedAt)
		if snap.Has(playerField(id, playerLastAnswer)) {
			p.LastAnswer = &domain.LastAnswer{}
			d.get(playerField(id, playerLastAnswer), p.LastAnswer)
		}
		if snap.Has(playerField(id, playerLeftAt)) {
			var at time.Time
			d.get(playerField(id, playerLeftAt), &at)
			p.LeftAt = &at
		}
		s.Players[id] = p
	}
	if d.err != nil {
		return domain.Session{}, d.err
	}
	if s.ID == "" {
		s.ID = snapID(snap.Path)
	}
	return s, nil
}

// newQuestionState is the fresh state written on start and on every advance.
func newQuestionState(sessionID string, index int, startedAt time.Time, limit time.Duration) domain.QuestionState {
	return domain.QuestionState{
		SessionID:            sessionID,
		CurrentQuestionIndex: index,
		StartedAt:            startedAt,
		TimeLimitSeconds:     int(limit / time.Second),
		IsActive:             true,
		Responses:            map[string]*domain.Response{},
	}
}

func encodeQuestionState(q domain.QuestionState) docstore.Document {
	doc := docstore.Document{}.
		Put(fieldSessionID, q.SessionID).
		Put(fieldCurrentQuestionIndex, q.CurrentQuestionIndex).
		Put(fieldStartedAt, q.StartedAt).
		Put(fieldTimeLimitSeconds, q.TimeLimitSeconds).
		Put(fieldIsActive, q.IsActive)
	for id, r := range q.Responses {
		doc.Put(responseField(id), *r)
	}
	return doc
}

func decodeQuestionState(snap docstore.Snapshot) (domain.QuestionState, error) {
	d := fieldDecoder{snap: snap}
	var q domain.QuestionState
	d.get(fieldSessionID, &q.SessionID)
	d.get(fieldCurrentQuestionIndex, &q.CurrentQuestionIndex)
	d.get(fieldStartedAt, &q.StartedAt)
	d.get(fieldTimeLimitSeconds, &q.TimeLimitSeconds)
	d.get(fieldIsActive, &q.IsActive)

	ids := snap.Children("responses")
	q.Responses = make(map[string]*domain.Response, len(ids))
	for _, id := range ids {
		r := &domain.Response{}
		d.get(responseField(id), r)
		q.Responses[id] = r
	}
	if d.err != nil {
		return domain.QuestionState{}, d.err
	}
	if q.SessionID == "" {
		q.SessionID = snapID(snap.Path)
	}
	return q, nil
}

// fieldDecoder keeps the first decode error so callers can read every field unconditionally.
type fieldDecoder struct {
	snap docstore.Snapshot
	err  error
}

func (d *fieldDecoder) get(field string, v any) {
	if d.err != nil {
		return
	}
	if err := d.snap.Decode(field, v); err != nil {
		d.err = fmt.Errorf("corrupt document: %w", err)
	}
}

func snapID(path string) string {
	c := docstore.Collection(path)
	if len(path) > len(c) {
		return path[len(c)+1:]
	}
	return ""
}
