package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validQuiz() Quiz {
	return Quiz{
		ID:    "quiz-1",
		Title: "Capitals",
		Questions: []Question{
			{Text: "Capital of France?", Options: []string{"Paris", "Rome"}, CorrectIndex: 0},
		},
	}
}

func TestQuizValidate(t *testing.T) {
	require.NoError(t, validQuiz().Validate())

	cases := map[string]func(*Quiz){
		"no questions":     func(q *Quiz) { q.Questions = nil },
		"empty text":       func(q *Quiz) { q.Questions[0].Text = "  " },
		"single option":    func(q *Quiz) { q.Questions[0].Options = []string{"Paris"} },
		"empty option":     func(q *Quiz) { q.Questions[0].Options[1] = "" },
		"correct too high": func(q *Quiz) { q.Questions[0].CorrectIndex = 2 },
		"correct negative": func(q *Quiz) { q.Questions[0].CorrectIndex = -1 },
		"negative limit":   func(q *Quiz) { q.Questions[0].TimeLimitSeconds = -5 },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			q := validQuiz()
			mutate(&q)
			assert.ErrorIs(t, q.Validate(), ErrInvalidArgument)
		})
	}
}

func TestValidateID(t *testing.T) {
	assert.NoError(t, ValidateID("session id", "3f2a9c"))
	assert.ErrorIs(t, ValidateID("session id", ""), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateID("session id", "a.b"), ErrInvalidArgument)
	assert.ErrorIs(t, ValidateID("session id", "a/b"), ErrInvalidArgument)
}

func TestQuestionTimeLimit(t *testing.T) {
	assert.Equal(t, 30*time.Second, Question{TimeLimitSeconds: 30}.TimeLimit(time.Minute))
	assert.Equal(t, time.Minute, Question{}.TimeLimit(time.Minute))
	assert.Equal(t, DefaultTimeLimit, Question{}.TimeLimit(0))

	state := QuestionState{StartedAt: time.Date(2024, 11, 22, 10, 0, 0, 0, time.UTC)}
	assert.Equal(t, DefaultTimeLimit, state.TimeLimit())
	assert.Equal(t, state.StartedAt.Add(20*time.Second), state.Deadline())
}

func TestErrorCategories(t *testing.T) {
	assert.ErrorIs(t, ErrGameCodeNotFound, ErrNotFound)
	assert.ErrorIs(t, ErrAlreadyStarted, ErrInvalidState)
	assert.ErrorIs(t, ErrQuestionClosed, ErrInvalidState)
	assert.ErrorIs(t, ErrNotHost, ErrUnauthorized)
	assert.NotErrorIs(t, ErrNotHost, ErrNotFound)
}
