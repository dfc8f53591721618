package engine

import (
	"errors"
	"strings"
)

var ErrWrongTurn = errors.New("invalid turn")
var ErrInputLocked = errors.New("input locked while the turn settles")
var ErrRetypeIncomplete = errors.New("previous words must be re-typed first")
var ErrRetypeOutOfOrder = errors.New("re-type slot is not open")
var ErrRetypeMismatch = errors.New("re-typed word does not match")
var ErrGameOver = errors.New("game already over")
var ErrEmptyRoster = errors.New("roster is empty")
var ErrUnsupportedCommand = errors.New("unsupported command")

type Phase string

const (
	PhaseAwaitingFirstWord Phase = "awaiting_first_word"
	PhasePlayerTurn        Phase = "player_turn"
	PhaseSettling          Phase = "settling"
	PhaseTimerExpired      Phase = "timer_expired"
)

type CommandType string

const (
	CmdRetype       CommandType = "Retype"
	CmdSubmitWord   CommandType = "SubmitWord"
	CmdSettled      CommandType = "Settled"
	CmdTimerExpired CommandType = "TimerExpired"
	CmdReset        CommandType = "Reset"
	CmdObserve      CommandType = "Observe"
)

/*
	CmdRetype       -> EvtRetypeAccepted | EvtRetypeRejected (+ ErrRetypeMismatch)
	CmdSubmitWord   -> EvtWordAccepted -> EvtTurnAdvanced -> EvtSettleStarted
	CmdSettled      -> EvtTurnOpened
	CmdTimerExpired -> EvtTimerExpired (once)
	CmdReset        -> EvtReset
	CmdObserve      -> EvtStateReplaced [-> EvtSettleStarted] | nothing when stale
*/

type Command struct {
	Type       CommandType
	Slot       int
	Text       string
	Score      int
	Difficulty Difficulty
	Match      uint64
	State      GameState // CmdObserve
}

type EventType string

const (
	EvtRetypeAccepted EventType = "RetypeAccepted"
	EvtRetypeRejected EventType = "RetypeRejected"
	EvtWordAccepted   EventType = "WordAccepted"
	EvtTurnAdvanced   EventType = "TurnAdvanced"
	EvtSettleStarted  EventType = "SettleStarted"
	EvtTurnOpened     EventType = "TurnOpened"
	EvtTimerExpired   EventType = "TimerExpired"
	EvtReset          EventType = "Reset"
	EvtStateReplaced  EventType = "StateReplaced"
)

type Event struct {
	Type  EventType
	Slot  int
	Seat  int
	Word  string
	Score int
	Bonus float64
}

// Machine is one peer's local view of turn progress. The shared part lives in
// GameState; the re-type counter and phase never leave this peer.
type Machine struct {
	Seat      int
	Players   int
	Completed int
	Phase     Phase

	attempts int
	hits     int
}

func NewMachine(seat, players int) *Machine {
	return &Machine{Seat: seat, Players: players, Phase: PhaseAwaitingFirstWord}
}

func (m *Machine) SetRoster(seat, players int) {
	m.Seat = seat
	m.Players = players
}

// MyTurn reports whether this peer's seat is the acting one for g.
func (m *Machine) MyTurn(g GameState) bool {
	return m.Players > 0 && m.Seat >= 0 && ActingSeat(g, m.Players) == m.Seat
}

// CanSubmit checks everything but the word itself: phase, turn, re-type progress.
func (m *Machine) CanSubmit(g GameState) error {
	if err := m.inputOpen(g); err != nil {
		return err
	}
	if m.Completed < len(g.Words) {
		return ErrRetypeIncomplete
	}
	return nil
}

// NoteRejected counts a rejected new-word attempt toward accuracy.
func (m *Machine) NoteRejected() {
	m.attempts++
}

func (m *Machine) inputOpen(g GameState) error {
	switch m.Phase {
	case PhaseTimerExpired:
		return ErrGameOver
	case PhaseSettling:
		return ErrInputLocked
	}
	if m.Players <= 0 {
		return ErrEmptyRoster
	}
	if !m.MyTurn(g) {
		return ErrWrongTurn
	}
	return nil
}

func (m *Machine) Apply(s GameState, cmd Command) ([]Event, GameState, error) {
	switch cmd.Type {
	case CmdRetype:
		if err := m.inputOpen(s); err != nil {
			return nil, s, err
		}
		if cmd.Slot != m.Completed || cmd.Slot >= len(s.Words) {
			return nil, s, ErrRetypeOutOfOrder
		}

		m.attempts++
		typed := lower.String(strings.TrimSpace(cmd.Text))
		if fold.String(typed) != fold.String(s.Words[cmd.Slot]) {
			// Any miss sends the player back to the first slot.
			m.Completed = 0
			return []Event{{Type: EvtRetypeRejected, Slot: cmd.Slot}}, s, ErrRetypeMismatch
		}

		m.hits++
		m.Completed++
		return []Event{{Type: EvtRetypeAccepted, Slot: cmd.Slot, Bonus: s.RewriteWordBonus}}, s, nil

	case CmdSubmitWord:
		if err := m.CanSubmit(s); err != nil {
			return nil, s, err
		}

		bucket := Bucket(s.Turn, m.Players)
		newState := s.Clone()
		newState.Words = append(newState.Words, cmd.Text)
		newState.LastWord = cmd.Text
		newState.Scores[bucket] += cmd.Score
		newState.Attempts[bucket] += m.attempts + 1
		newState.Hits[bucket] += m.hits + 1
		newState.Turn++
		newState.Seq++

		events := []Event{
			{Type: EvtWordAccepted, Slot: len(s.Words), Seat: bucket, Word: cmd.Text, Score: cmd.Score, Bonus: s.CorrectWordBonus},
			{Type: EvtTurnAdvanced, Seat: ActingSeat(newState, m.Players)},
			{Type: EvtSettleStarted},
		}

		m.resetProgress()
		m.Phase = PhaseSettling
		return events, newState, nil

	case CmdSettled:
		if m.Phase != PhaseSettling {
			return nil, s, nil
		}
		m.Phase = PhasePlayerTurn
		return []Event{{Type: EvtTurnOpened, Seat: ActingSeat(s, m.Players)}}, s, nil

	case CmdTimerExpired:
		if m.Phase == PhaseTimerExpired {
			return nil, s, nil
		}
		m.Phase = PhaseTimerExpired
		return []Event{{Type: EvtTimerExpired}}, s, nil

	case CmdReset:
		m.resetProgress()
		m.Phase = PhaseAwaitingFirstWord
		return []Event{{Type: EvtReset}}, NewGameState(cmd.Difficulty, cmd.Match), nil

	case CmdObserve:
		in := cmd.State
		if !in.Newer(s) {
			return nil, s, nil
		}

		events := []Event{{Type: EvtStateReplaced}}
		newState := in.Clone()

		switch {
		case in.Match != s.Match:
			m.resetProgress()
			m.Phase = PhaseAwaitingFirstWord
			if len(in.Words) > 0 {
				m.Phase = PhaseSettling
				events = append(events, Event{Type: EvtSettleStarted})
			}
		case m.Phase == PhaseTimerExpired:
			// late broadcast from before expiry: adopt it, stay terminal
		case len(in.Words) != len(s.Words):
			m.resetProgress()
			m.Phase = PhaseSettling
			events = append(events, Event{Type: EvtSettleStarted})
		}
		return events, newState, nil

	default:
		return nil, s, ErrUnsupportedCommand
	}
}

func (m *Machine) resetProgress() {
	m.Completed = 0
	m.attempts = 0
	m.hits = 0
}
