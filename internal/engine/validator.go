package engine

import (
	"errors"
	"fmt"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type Reason string

const (
	ReasonEmptyWord         Reason = "EmptyWord"
	ReasonChainMismatch     Reason = "ChainMismatch"
	ReasonDuplicateWord     Reason = "DuplicateWord"
	ReasonInvalidCharacters Reason = "InvalidCharacters"
	ReasonLikelyGibberish   Reason = "LikelyGibberish"
)

// Heuristic names the gibberish rule that fired.
type Heuristic string

const (
	HeuristicRepetition  Heuristic = "repetition"
	HeuristicConsonants  Heuristic = "consonants"
	HeuristicCombination Heuristic = "combination"
)

// ValidationError is the single rejection reason for a candidate word.
type ValidationError struct {
	Reason    Reason
	Expected  string    // ChainMismatch only
	Heuristic Heuristic // LikelyGibberish only
}

func (e *ValidationError) Error() string {
	switch e.Reason {
	case ReasonEmptyWord:
		return "word cannot be empty"
	case ReasonChainMismatch:
		return fmt.Sprintf("word must start with the letter %q", e.Expected)
	case ReasonDuplicateWord:
		return "word has already been used"
	case ReasonInvalidCharacters:
		return "word may only contain letters"
	case ReasonLikelyGibberish:
		switch e.Heuristic {
		case HeuristicRepetition:
			return "too many repeated characters"
		case HeuristicConsonants:
			return "too many consonants"
		case HeuristicCombination:
			return "invalid character combination"
		}
		return "word looks like gibberish"
	}
	return string(e.Reason)
}

// Is matches on Reason so callers can use the sentinels below with errors.Is.
func (e *ValidationError) Is(target error) bool {
	var t *ValidationError
	if !errors.As(target, &t) {
		return false
	}
	return t.Reason == e.Reason
}

var (
	ErrEmptyWord         = &ValidationError{Reason: ReasonEmptyWord}
	ErrChainMismatch     = &ValidationError{Reason: ReasonChainMismatch}
	ErrDuplicateWord     = &ValidationError{Reason: ReasonDuplicateWord}
	ErrInvalidCharacters = &ValidationError{Reason: ReasonInvalidCharacters}
	ErrLikelyGibberish   = &ValidationError{Reason: ReasonLikelyGibberish}
)

var (
	lower = cases.Lower(language.Und)
	fold  = cases.Fold()
)

// letters is the allowlist of accepted code points. Overlapping Latin ranges
// are merged into U+00C0-U+02AF.
var letters = &unicode.RangeTable{
	R16: []unicode.Range16{
		{Lo: 0x0041, Hi: 0x005A, Stride: 1},
		{Lo: 0x0061, Hi: 0x007A, Stride: 1},
		{Lo: 0x00C0, Hi: 0x02AF, Stride: 1},
		{Lo: 0x0370, Hi: 0x037D, Stride: 1},
		{Lo: 0x037F, Hi: 0x1FFF, Stride: 1},
		{Lo: 0x200C, Hi: 0x200D, Stride: 1},
		{Lo: 0x2070, Hi: 0x218F, Stride: 1},
		{Lo: 0x2C00, Hi: 0x2FEF, Stride: 1},
		{Lo: 0x3001, Hi: 0xD7FF, Stride: 1},
		{Lo: 0xF900, Hi: 0xFDCF, Stride: 1},
		{Lo: 0xFDF0, Hi: 0xFFFD, Stride: 1},
	},
}

// unlikelyPairs are letter sets where two adjacent members mark gibberish.
var unlikelyPairs = []string{"qw", "jvk", "mqz"}

// Validate checks candidate against the chain so far. previous is the last
// accepted word, empty for the first word. It returns the normalized word.
func Validate(candidate string, words []string, previous string) (string, error) {
	word := lower.String(strings.TrimSpace(candidate))
	if word == "" {
		return "", ErrEmptyWord
	}

	if previous != "" {
		want, _ := utf8.DecodeLastRuneInString(previous)
		got, _ := utf8.DecodeRuneInString(word)
		if !sameLetter(want, got) {
			return "", &ValidationError{Reason: ReasonChainMismatch, Expected: lower.String(string(want))}
		}
	}

	folded := fold.String(word)
	for _, w := range words {
		if fold.String(w) == folded {
			return "", ErrDuplicateWord
		}
	}

	for _, r := range word {
		if !unicode.Is(letters, r) {
			return "", ErrInvalidCharacters
		}
	}

	if h, ok := gibberish(word); ok {
		return "", &ValidationError{Reason: ReasonLikelyGibberish, Heuristic: h}
	}

	return word, nil
}

func sameLetter(a, b rune) bool {
	return fold.String(string(a)) == fold.String(string(b))
}

func gibberish(word string) (Heuristic, bool) {
	runes := []rune(word)

	// 3+ identical in a row
	run := 1
	for i := 1; i < len(runes); i++ {
		if runes[i] == runes[i-1] {
			run++
			if run >= 3 {
				return HeuristicRepetition, true
			}
		} else {
			run = 1
		}
	}

	vowels := 0
	for _, r := range runes {
		if strings.ContainsRune("aeiou", r) {
			vowels++
		}
	}
	if float64(len(runes)-vowels)/float64(len(runes)) > 0.85 {
		return HeuristicConsonants, true
	}

	for i := 1; i < len(runes); i++ {
		for _, set := range unlikelyPairs {
			if strings.ContainsRune(set, runes[i-1]) && strings.ContainsRune(set, runes[i]) {
				return HeuristicCombination, true
			}
		}
	}

	return "", false
}
