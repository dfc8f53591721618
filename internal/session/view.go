package session

import (
	"maps"

	"github.com/DoyleJ11/echowords/internal/engine"
	"github.com/DoyleJ11/echowords/pkg/protocol"
)

// View is a copy of everything a UI needs to draw the session.
type View struct {
	Lobby        string
	Seat         int
	Roster       []RosterEntry
	State        engine.GameState
	Phase        engine.Phase
	MyTurn       bool
	ActingSeat   int
	Completed    int
	Remaining    float64
	Driving      bool
	Lease        protocol.Lease
	Pending      map[int]string
	Animation    *protocol.Animation
	Difficulty   engine.Difficulty
	Started      bool
	CountingDown bool
	GameOver     bool
}

func (c *Controller) view() View {
	v := View{
		Lobby:        c.cfg.Lobby,
		Seat:         c.machine.Seat,
		Roster:       append([]RosterEntry(nil), c.roster...),
		State:        c.state.Clone(),
		Phase:        c.machine.Phase,
		MyTurn:       c.machine.MyTurn(c.state),
		ActingSeat:   engine.ActingSeat(c.state, len(c.roster)),
		Completed:    c.machine.Completed,
		Remaining:    c.clock.Remaining(),
		Driving:      c.clock.Driving(),
		Lease:        c.clock.Lease(),
		Pending:      maps.Clone(c.pending),
		Difficulty:   c.difficulty,
		Started:      c.started,
		CountingDown: c.countingDown,
		GameOver:     c.machine.Phase == engine.PhaseTimerExpired,
	}
	if c.animation != nil {
		a := *c.animation
		v.Animation = &a
	}
	return v
}

// publish replaces whatever View is waiting in Updates with the current one.
func (c *Controller) publish() {
	v := c.view()
	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- v:
	default:
	}
}
