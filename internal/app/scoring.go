package app

import "math"

const (
	basePoints     = 1000
	maxSpeedBonus  = 500
	maxQuestionPts = basePoints + maxSpeedBonus
)

// Score returns the points for one answer. A correct answer earns 1000 plus up to 500
// for speed, proportional to the time left on the clock.
func Score(isCorrect bool, elapsedSeconds, timeLimitSeconds float64) int {
	if !isCorrect {
		return 0
	}
	if timeLimitSeconds <= 0 || math.IsNaN(timeLimitSeconds) || math.IsNaN(elapsedSeconds) {
		return basePoints
	}
	if elapsedSeconds < 0 {
		elapsedSeconds = 0
	}
	remaining := math.Max(0, timeLimitSeconds-elapsedSeconds)
	points := int(math.Round(basePoints + remaining/timeLimitSeconds*maxSpeedBonus))
	if points > maxQuestionPts {
		return maxQuestionPts
	}
	return points
}
