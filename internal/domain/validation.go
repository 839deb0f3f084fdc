package domain

import (
	"fmt"
	"strings"
)

// Validate checks that a quiz can be played.
func (q Quiz) Validate() error {
	if len(q.Questions) == 0 {
		return fmt.Errorf("quiz %q has no questions: %w", q.ID, ErrInvalidArgument)
	}
	for i, question := range q.Questions {
		if strings.TrimSpace(question.Text) == "" {
			return fmt.Errorf("question %d is empty: %w", i+1, ErrInvalidArgument)
		}
		if len(question.Options) < 2 {
			return fmt.Errorf("question %d needs at least two options: %w", i+1, ErrInvalidArgument)
		}
		for _, opt := range question.Options {
			if strings.TrimSpace(opt) == "" {
				return fmt.Errorf("question %d has empty answers: %w", i+1, ErrInvalidArgument)
			}
		}
		if question.CorrectIndex < 0 || question.CorrectIndex >= len(question.Options) {
			return fmt.Errorf("question %d correct index %d out of range: %w", i+1, question.CorrectIndex, ErrInvalidArgument)
		}
		if question.TimeLimitSeconds < 0 {
			return fmt.Errorf("question %d has a negative time limit: %w", i+1, ErrInvalidArgument)
		}
	}
	return nil
}

// ValidateID rejects identifiers that cannot be used as a document field segment.
func ValidateID(kind, id string) error {
	if strings.TrimSpace(id) == "" {
		return fmt.Errorf("%s is required: %w", kind, ErrInvalidArgument)
	}
	if strings.ContainsAny(id, "./") {
		return fmt.Errorf("%s %q must not contain '.' or '/': %w", kind, id, ErrInvalidArgument)
	}
	return nil
}
