package domain

import "time"

// SessionStatus is the coarse lifecycle of a live session. It only moves forward.
type SessionStatus string

const (
	StatusLobby    SessionStatus = "lobby"
	StatusPlaying  SessionStatus = "playing"
	StatusFinished SessionStatus = "finished"
)

// NoAnswer is the chosen index recorded when a participant's timer runs out.
const NoAnswer = -1

// DefaultTimeLimit is used for questions that do not carry their own limit.
const DefaultTimeLimit = 20 * time.Second

// Session is the authoritative record of one hosted quiz.
type Session struct {
	ID                   string             `json:"id"`
	GameCode             string             `json:"gameCode"`
	QuizID               string             `json:"quizId"`
	HostID               string             `json:"hostId"`
	Status               SessionStatus      `json:"status"`
	CurrentQuestionIndex int                `json:"currentQuestionIndex"`
	QuestionCount        int                `json:"questionCount"`
	CreatedAt            time.Time          `json:"createdAt"`
	FinishedAt           *time.Time         `json:"finishedAt,omitempty"`
	Players              map[string]*Player `json:"players"`
}

// Player is one entry of the session's player map.
type Player struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	IsHost         bool        `json:"isHost"`
	Score          int         `json:"score"`
	CorrectAnswers int         `json:"correctAnswers"`
	AnsweredIndex  int         `json:"answeredIndex"`
	LastAnswer     *LastAnswer `json:"lastAnswer,omitempty"`
	JoinedAt       time.Time   `json:"joinedAt"`
	LeftAt         *time.Time  `json:"leftAt,omitempty"`
}

// HasAnswered reports whether the player was already scored for question index.
func (p *Player) HasAnswered(index int) bool {
	return p.AnsweredIndex == index
}

// LastAnswer is the feedback snapshot shown right after a submission.
type LastAnswer struct {
	QuestionIndex int  `json:"questionIndex"`
	IsCorrect     bool `json:"isCorrect"`
	Points        int  `json:"points"`
}

// Player returns the player with the given id, or nil.
func (s Session) Player(id string) *Player {
	if s.Players == nil {
		return nil
	}
	return s.Players[id]
}

// IsHost reports whether participantID is the session's host.
func (s Session) IsHost(participantID string) bool {
	return participantID != "" && s.HostID == participantID
}

// QuestionState tracks the question currently open for answers.
type QuestionState struct {
	SessionID            string               `json:"sessionId"`
	CurrentQuestionIndex int                  `json:"currentQuestionIndex"`
	StartedAt            time.Time            `json:"startedAt"`
	TimeLimitSeconds     int                  `json:"timeLimitSeconds"`
	IsActive             bool                 `json:"isActive"`
	Responses            map[string]*Response `json:"responses"`
}

// TimeLimit returns the question's limit as a duration.
func (q QuestionState) TimeLimit() time.Duration {
	if q.TimeLimitSeconds <= 0 {
		return DefaultTimeLimit
	}
	return time.Duration(q.TimeLimitSeconds) * time.Second
}

// Deadline is the instant at which clients force a timeout submission.
func (q QuestionState) Deadline() time.Time {
	return q.StartedAt.Add(q.TimeLimit())
}

// Response is a single participant's answer to the current question.
type Response struct {
	ChosenIndex    int       `json:"chosenIndex"`
	IsCorrect      bool      `json:"isCorrect"`
	Points         int       `json:"points"`
	ElapsedSeconds float64   `json:"elapsedSeconds"`
	Timestamp      time.Time `json:"timestamp"`
}

// Question is a multiple-choice question with exactly one correct option.
type Question struct {
	Text             string   `json:"text"`
	Options          []string `json:"options"`
	CorrectIndex     int      `json:"correctIndex"`
	TimeLimitSeconds int      `json:"timeLimitSeconds"` // defaults to 20 if zero
}

// TimeLimit returns the configured limit, or fallback when unset.
func (q Question) TimeLimit(fallback time.Duration) time.Duration {
	if q.TimeLimitSeconds > 0 {
		return time.Duration(q.TimeLimitSeconds) * time.Second
	}
	if fallback > 0 {
		return fallback
	}
	return DefaultTimeLimit
}

// Quiz is an ordered, immutable collection of questions.
type Quiz struct {
	ID          string     `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description,omitempty"`
	Category    string     `json:"category,omitempty"`
	Questions   []Question `json:"questions"`
}

// AnswerSubmission is one participant's answer to the question they believe is current.
type AnswerSubmission struct {
	SessionID      string  `json:"sessionId"`
	ParticipantID  string  `json:"participantId"`
	QuestionIndex  int     `json:"questionIndex"`
	ChosenIndex    int     `json:"chosenIndex"`
	ElapsedSeconds float64 `json:"elapsedSeconds"`
}

// AnswerResult summarizes how a submission was scored.
type AnswerResult struct {
	QuestionIndex int  `json:"questionIndex"`
	ChosenIndex   int  `json:"chosenIndex"`
	Correct       bool `json:"correct"`
	Points        int  `json:"points"`
	TotalScore    int  `json:"totalScore"`
	Duplicate     bool `json:"duplicate"`
}

// HostResult is returned to the host after creating a session.
type HostResult struct {
	SessionID string `json:"sessionId"`
	GameCode  string `json:"gameCode"`
}

// JoinResult is returned to a player after joining by code.
type JoinResult struct {
	SessionID string `json:"sessionId"`
	QuizID    string `json:"quizId"`
}

// LeaderboardEntry is one ranked row of the live leaderboard.
type LeaderboardEntry struct {
	Rank           int    `json:"rank"`
	ParticipantID  string `json:"participantId"`
	Name           string `json:"name"`
	Score          int    `json:"score"`
	CorrectAnswers int    `json:"correctAnswers"`
	IsHost         bool   `json:"isHost"`
}

// GameHistoryEntry is the per-participant record of a completed session.
type GameHistoryEntry struct {
	ParticipantID   string    `json:"participantId"`
	ParticipantName string    `json:"participantName"`
	SessionID       string    `json:"sessionId"`
	QuizID          string    `json:"quizId"`
	QuizTitle       string    `json:"quizTitle"`
	CompletedAt     time.Time `json:"completedAt"`
	Score           int       `json:"score"`
	Rank            int       `json:"rank"`
	TotalPlayers    int       `json:"totalPlayers"`
	IsWinner        bool      `json:"isWinner"`
	CorrectAnswers  int       `json:"correctAnswers"`
}

// GlobalLeaderboardEntry aggregates a participant's history across sessions.
type GlobalLeaderboardEntry struct {
	Rank          int    `json:"rank"`
	ParticipantID string `json:"participantId"`
	Name          string `json:"name"`
	TotalScore    int    `json:"totalScore"`
	TotalGames    int    `json:"totalGames"`
	TotalWins     int    `json:"totalWins"`
	AverageScore  int    `json:"averageScore"`
	WinRate       int    `json:"winRate"`
}

// EventType names a session lifecycle event.
type EventType string

const (
	EventHosted   EventType = "hosted"
	EventJoined   EventType = "joined"
	EventStarted  EventType = "started"
	EventAdvanced EventType = "advanced"
	EventFinished EventType = "finished"
)

// SessionEvent is published after a lifecycle transition commits.
type SessionEvent struct {
	Type          EventType `json:"type"`
	SessionID     string    `json:"sessionId"`
	QuizID        string    `json:"quizId"`
	ParticipantID string    `json:"participantId,omitempty"`
	QuestionIndex int       `json:"questionIndex"`
	OccurredAt    time.Time `json:"occurredAt"`
}
