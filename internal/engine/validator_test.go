package engine

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate(t *testing.T) {
	cases := []struct {
		name      string
		candidate string
		words     []string
		wantWord  string
		wantErr   error
		heuristic Heuristic
	}{
		{name: "chain ok", candidate: "elephant", words: []string{"apple"}, wantWord: "elephant"},
		{name: "chain broken", candidate: "banana", words: []string{"apple"}, wantErr: ErrChainMismatch},
		{name: "first word free", candidate: "Banana", wantWord: "banana"},
		{name: "blank", candidate: "   ", wantErr: ErrEmptyWord},
		{name: "duplicate ignores case", candidate: "apple", words: []string{"Apple"}, wantErr: ErrDuplicateWord},
		{name: "chain ignores case", candidate: "Eagle", words: []string{"applE"}, wantWord: "eagle"},
		{name: "digits", candidate: "e4gle", words: []string{"apple"}, wantErr: ErrInvalidCharacters},
		{name: "space inside", candidate: "ice cream", wantErr: ErrInvalidCharacters},
		{name: "accents allowed", candidate: "éclair", wantWord: "éclair"},
		{name: "repetition beats consonants", candidate: "aaaa", wantErr: ErrLikelyGibberish, heuristic: HeuristicRepetition},
		{name: "consonant heavy", candidate: "strngth", wantErr: ErrLikelyGibberish, heuristic: HeuristicConsonants},
		{name: "unlikely pair", candidate: "aqwa", wantErr: ErrLikelyGibberish, heuristic: HeuristicCombination},
		{name: "unlikely jk pair", candidate: "ajka", wantErr: ErrLikelyGibberish, heuristic: HeuristicCombination},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			prev := ""
			if len(tc.words) > 0 {
				prev = tc.words[len(tc.words)-1]
			}
			got, err := Validate(tc.candidate, tc.words, prev)
			if tc.wantErr != nil {
				require.Error(t, err)
				assert.True(t, errors.Is(err, tc.wantErr), "want %v, got %v", tc.wantErr, err)
				if tc.heuristic != "" {
					var ve *ValidationError
					require.True(t, errors.As(err, &ve))
					assert.Equal(t, tc.heuristic, ve.Heuristic)
				}
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.wantWord, got)
		})
	}
}

func TestValidate_ChainMismatchReportsLetter(t *testing.T) {
	_, err := Validate("banana", []string{"apple"}, "apple")

	var ve *ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Equal(t, ReasonChainMismatch, ve.Reason)
	assert.Equal(t, "e", ve.Expected)
	assert.Contains(t, err.Error(), `"e"`)
}

func TestValidate_ReasonsAreDistinct(t *testing.T) {
	assert.False(t, errors.Is(ErrDuplicateWord, ErrChainMismatch))
	assert.True(t, errors.Is(&ValidationError{Reason: ReasonChainMismatch, Expected: "x"}, ErrChainMismatch))
}

func TestScore(t *testing.T) {
	cases := []struct {
		name string
		in   ScoreInput
		want int
	}{
		{
			// 400 * 0.8 * (1 + 20/60) * 1.5
			name: "worked example",
			in:   ScoreInput{Word: "test", Elapsed: 2 * time.Second, Remaining: 20, Difficulty: DifficultyMedium},
			want: 640,
		},
		{
			name: "unknown elapsed",
			in:   ScoreInput{Word: "test", Remaining: 0, Difficulty: DifficultyEasy},
			want: 400,
		},
		{
			name: "speed capped at 2",
			in:   ScoreInput{Word: "test", Elapsed: 10 * time.Millisecond, Remaining: 0, Difficulty: DifficultyExtreme},
			want: 2400,
		},
		{
			name: "unknown tier scores as medium",
			in:   ScoreInput{Word: "test", Remaining: 0, Difficulty: Difficulty("nightmare")},
			want: 600,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Score(tc.in))
		})
	}
}

func TestParseDifficulty(t *testing.T) {
	assert.Equal(t, DifficultyHard, ParseDifficulty(" HARD "))
	assert.Equal(t, DifficultyMedium, ParseDifficulty(""))
	assert.Equal(t, 20.0, DifficultyEasy.Settings().InitialTime/3)
	assert.Equal(t, 120.0, DifficultyEasy.TimeCap())
}
