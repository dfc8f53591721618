package session

import (
	"context"

	"go.uber.org/zap"

	"github.com/DoyleJ11/echowords/internal/engine"
	"github.com/DoyleJ11/echowords/internal/store"
)

// RosterEntry is one seat. Seats follow first-join order so every peer that
// reads the same player list derives the same seats.
type RosterEntry struct {
	ClientID   string `json:"clientId"`
	Username   string `json:"username"`
	AvatarSeed string `json:"avatarSeed"`
}

// BuildRoster folds the server's join records into one seat per client. The
// newest record supplies the name and avatar.
func BuildRoster(players []store.Player) []RosterEntry {
	index := map[string]int{}
	var out []RosterEntry
	for _, p := range players {
		e := RosterEntry{ClientID: p.ClientID, Username: p.Username, AvatarSeed: p.AvatarSeed}
		if i, ok := index[p.ClientID]; ok {
			out[i] = e
			continue
		}
		index[p.ClientID] = len(out)
		out = append(out, e)
	}
	return out
}

// SeatOf returns the seat of clientID, or -1.
func SeatOf(roster []RosterEntry, clientID string) int {
	for i, e := range roster {
		if e.ClientID == clientID {
			return i
		}
	}
	return -1
}

func (c *Controller) fetchRoster(ctx context.Context) {
	if c.backend == nil {
		return
	}
	go func() {
		cctx, cancel := context.WithTimeout(ctx, c.cfg.CallTimeout)
		defer cancel()
		players, err := c.backend.Players(cctx, c.cfg.Lobby)
		c.post(rosterLoaded{Players: players, Err: err})
	}()
}

func (c *Controller) setRoster(players []store.Player) {
	c.roster = BuildRoster(players)
	seat := SeatOf(c.roster, c.cfg.ClientID)
	if seat != c.machine.Seat || len(c.roster) != c.machine.Players {
		c.log.Info("roster changed", zap.Int("seat", seat), zap.Int("players", len(c.roster)))
	}
	c.machine.SetRoster(seat, len(c.roster))
	c.publish()
}

// Results turns the final board into one line per seat. Scores and accuracy
// are keyed by seat, so a roster that changed mid-match misattributes them.
func Results(g engine.GameState, roster []RosterEntry) []store.PlayerResult {
	words := engine.WordsBySeat(g, len(roster))
	out := make([]store.PlayerResult, 0, len(roster))
	for seat, e := range roster {
		acc := 0
		if n := g.Attempts[seat]; n > 0 {
			acc = g.Hits[seat] * 100 / n
		}
		out = append(out, store.PlayerResult{
			Username:       e.Username,
			Score:          g.Scores[seat],
			WordsSubmitted: words[seat],
			Accuracy:       acc,
		})
	}
	return out
}
