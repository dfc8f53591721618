package engine

import (
	"math"
	"time"
	"unicode/utf8"
)

type ScoreInput struct {
	Word       string
	Elapsed    time.Duration // first keystroke to submit, zero when unknown
	Remaining  float64       // seconds left on the clock at submit
	Difficulty Difficulty
}

const (
	pointsPerLetter = 100
	baselineWPM     = 30
	maxSpeedMult    = 2
)

// Score is the point value of a just-accepted word.
func Score(in ScoreInput) int {
	n := float64(utf8.RuneCountInString(in.Word))
	lengthPoints := n * pointsPerLetter

	speed := 1.0
	if in.Elapsed > 0 {
		wpm := (n / 5) / (in.Elapsed.Seconds() / 60)
		speed = math.Min(wpm/baselineWPM, maxSpeedMult)
	}

	timeLeft := 1 + in.Remaining/60

	return int(math.Round(lengthPoints * speed * timeLeft * in.Difficulty.Multiplier()))
}
