package cli

import "live-quiz-service/internal/domain"

// sampleQuizzes is served when no postgres catalog is configured.
func sampleQuizzes() map[string]domain.Quiz {
	return map[string]domain.Quiz{
		"general-knowledge": {
			ID:          "general-knowledge",
			Title:       "General Knowledge",
			Description: "A short warm-up round",
			Category:    "Trivia",
			Questions: []domain.Question{
				{Text: "What is the capital of France?", Options: []string{"Berlin", "Paris", "Madrid", "Rome"}, CorrectIndex: 1},
				{Text: "How many continents are there?", Options: []string{"5", "6", "7", "8"}, CorrectIndex: 2},
				{Text: "Which planet is known as the Red Planet?", Options: []string{"Venus", "Mars", "Jupiter", "Saturn"}, CorrectIndex: 1, TimeLimitSeconds: 30},
			},
		},
		"arithmetic": {
			ID:       "arithmetic",
			Title:    "Quick Arithmetic",
			Category: "Math",
			Questions: []domain.Question{
				{Text: "What is 2 + 2?", Options: []string{"3", "4", "5"}, CorrectIndex: 1, TimeLimitSeconds: 10},
				{Text: "What is 7 * 6?", Options: []string{"42", "48", "36"}, CorrectIndex: 0, TimeLimitSeconds: 10},
				{Text: "What is 81 / 9?", Options: []string{"8", "9", "7"}, CorrectIndex: 1, TimeLimitSeconds: 10},
			},
		},
	}
}
