package domain

import (
	"errors"
	"fmt"
)

// Error categories. Callers branch on these with errors.Is.
var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidState        = errors.New("invalid state")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrDuplicateSubmission = errors.New("duplicate submission")
	ErrTransientStore      = errors.New("store temporarily unavailable")
	ErrInvalidArgument     = errors.New("invalid argument")
)

var (
	// ErrSessionNotFound is returned when a session id does not resolve.
	ErrSessionNotFound = fmt.Errorf("quiz session %w", ErrNotFound)
	// ErrGameCodeNotFound is returned when no session uses a game code.
	ErrGameCodeNotFound = fmt.Errorf("game code %w", ErrNotFound)
	// ErrParticipantNotFound is returned when a user acts before joining.
	ErrParticipantNotFound = fmt.Errorf("participant %w", ErrNotFound)
	// ErrQuizNotFound indicates the quiz content could not be loaded.
	ErrQuizNotFound = fmt.Errorf("quiz %w", ErrNotFound)
	// ErrQuestionStateNotFound is returned before the first round has started.
	ErrQuestionStateNotFound = fmt.Errorf("question state %w", ErrNotFound)

	// ErrAlreadyStarted is returned when joining or starting a session past its lobby.
	ErrAlreadyStarted = fmt.Errorf("game already started: %w", ErrInvalidState)
	// ErrNoPlayers is returned when starting a session without players.
	ErrNoPlayers = fmt.Errorf("at least one player is required: %w", ErrInvalidState)
	// ErrNotStarted is returned when advancing a session still in its lobby.
	ErrNotStarted = fmt.Errorf("game has not started: %w", ErrInvalidState)
	// ErrQuestionClosed rejects answers for a question that is no longer current.
	ErrQuestionClosed = fmt.Errorf("question is no longer active: %w", ErrInvalidState)

	// ErrNotHost is returned when a non-host calls a host-only operation.
	ErrNotHost = fmt.Errorf("host-only operation: %w", ErrUnauthorized)
)
