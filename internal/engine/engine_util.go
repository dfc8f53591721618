package engine

import "maps"

// GameState is the shared composite state every peer holds a full copy of.
// It travels whole on every broadcast; receivers never merge fields.
type GameState struct {
	Words            []string    `json:"wordList"`
	Turn             int         `json:"currentPlayerIndex"`
	Remaining        float64     `json:"remainingSeconds"`
	LastWord         string      `json:"lastWord"`
	Scores           map[int]int `json:"scores"`
	Attempts         map[int]int `json:"attempts"`
	Hits             map[int]int `json:"hits"`
	CorrectWordBonus float64     `json:"correctWordBonus"`
	RewriteWordBonus float64     `json:"rewriteWordBonus"`
	Difficulty       Difficulty  `json:"difficulty"`
	Match            uint64      `json:"match"`
	Seq              uint64      `json:"seq"`
}

func NewGameState(d Difficulty, match uint64) GameState {
	s := d.Settings()
	return GameState{
		Words:            []string{},
		Remaining:        s.InitialTime,
		Scores:           map[int]int{},
		Attempts:         map[int]int{},
		Hits:             map[int]int{},
		CorrectWordBonus: s.CorrectWordBonus,
		RewriteWordBonus: s.RewriteWordBonus,
		Difficulty:       d,
		Match:            match,
	}
}

// Clone deep-copies the slices and maps so a broadcast copy can't alias local state.
func (g GameState) Clone() GameState {
	c := g
	c.Words = append([]string{}, g.Words...)
	c.Scores = cloneBucket(g.Scores)
	c.Attempts = cloneBucket(g.Attempts)
	c.Hits = cloneBucket(g.Hits)
	return c
}

// Newer reports whether g should replace cur under last-write-wins with
// (Match, Seq) ordering.
func (g GameState) Newer(cur GameState) bool {
	if g.Match != cur.Match {
		return g.Match > cur.Match
	}
	return g.Seq > cur.Seq
}

func cloneBucket(m map[int]int) map[int]int {
	if m == nil {
		return map[int]int{}
	}
	return maps.Clone(m)
}

func ContainsEvent(events []Event, eventType EventType) bool {
	for _, event := range events {
		if event.Type == eventType {
			return true
		}
	}
	return false
}
