package app

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreBounds(t *testing.T) {
	limits := []float64{5, 10, 20, 30, 60}
	for _, limit := range limits {
		assert.Equal(t, 1500, Score(true, 0, limit), "instant answer, limit %v", limit)
		assert.Equal(t, 1000, Score(true, limit, limit), "last instant, limit %v", limit)
		assert.Equal(t, 1000, Score(true, limit+3, limit), "late answer, limit %v", limit)
		for _, elapsed := range []float64{0, 1, limit / 2, limit, limit * 2} {
			assert.Equal(t, 0, Score(false, elapsed, limit))
		}
	}
}

func TestScoreIsMonotonicInElapsedTime(t *testing.T) {
	const limit = 20.0
	prev := Score(true, 0, limit)
	for elapsed := 0.25; elapsed <= 25; elapsed += 0.25 {
		points := Score(true, elapsed, limit)
		if points > prev {
			t.Fatalf("score increased from %d to %d at elapsed %.2f", prev, points, elapsed)
		}
		if points < 1000 || points > 1500 {
			t.Fatalf("score %d out of bounds at elapsed %.2f", points, elapsed)
		}
		prev = points
	}
}

func TestScoreExamples(t *testing.T) {
	assert.Equal(t, 1450, Score(true, 2, 20))
	assert.Equal(t, 1250, Score(true, 10, 20))
	assert.Equal(t, 1500, Score(true, -4, 20))
	assert.Equal(t, 1000, Score(true, 3, 0))
}
