package engine

import "strings"

type Difficulty string

const (
	DifficultyEasy    Difficulty = "easy"
	DifficultyMedium  Difficulty = "medium"
	DifficultyHard    Difficulty = "hard"
	DifficultyExtreme Difficulty = "extreme"
)

// Settings are the per-tier clock constants. All values are seconds.
type Settings struct {
	InitialTime      float64
	CorrectWordBonus float64
	RewriteWordBonus float64
}

var difficultySettings = map[Difficulty]Settings{
	DifficultyEasy:    {InitialTime: 60, CorrectWordBonus: 3, RewriteWordBonus: 1.5},
	DifficultyMedium:  {InitialTime: 30, CorrectWordBonus: 2, RewriteWordBonus: 1},
	DifficultyHard:    {InitialTime: 15, CorrectWordBonus: 1, RewriteWordBonus: 0.5},
	DifficultyExtreme: {InitialTime: 10, CorrectWordBonus: 0.5, RewriteWordBonus: 0.25},
}

var difficultyMultipliers = map[Difficulty]float64{
	DifficultyEasy:    1,
	DifficultyMedium:  1.5,
	DifficultyHard:    2,
	DifficultyExtreme: 3,
}

// ParseDifficulty falls back to medium for anything it doesn't recognize.
func ParseDifficulty(s string) Difficulty {
	d := Difficulty(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := difficultySettings[d]; ok {
		return d
	}
	return DifficultyMedium
}

func (d Difficulty) Settings() Settings {
	if s, ok := difficultySettings[d]; ok {
		return s
	}
	return difficultySettings[DifficultyMedium]
}

func (d Difficulty) Multiplier() float64 {
	if m, ok := difficultyMultipliers[d]; ok {
		return m
	}
	return difficultyMultipliers[DifficultyMedium]
}

// TimeCap is the ceiling bonuses can push the clock to.
func (d Difficulty) TimeCap() float64 {
	return 2 * d.Settings().InitialTime
}
