package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/echowords/internal/engine"
	"github.com/DoyleJ11/echowords/internal/store"
	"github.com/DoyleJ11/echowords/internal/timer"
	"github.com/DoyleJ11/echowords/pkg/protocol"
)

const (
	DefaultSettleDelay = 1700 * time.Millisecond
	DefaultCountdown   = 3 * time.Second
)

var ErrNotStarted = errors.New("match has not started")
var ErrStopped = errors.New("session stopped")

// Backend is the REST side the session calls into. None of it is on the
// critical path of a turn.
type Backend interface {
	PersistWord(ctx context.Context, word string) error
	Players(ctx context.Context, lobby string) ([]store.Player, error)
	SubmitResults(ctx context.Context, lobby string, results []store.PlayerResult) error
}

type Config struct {
	Lobby        string
	ClientID     string
	SettleDelay  time.Duration
	Countdown    time.Duration
	TickInterval time.Duration
	LeaseTTL     time.Duration
	// CallTimeout bounds each backend call.
	CallTimeout time.Duration
	// LineInput is for front ends that only see whole entries. The new word
	// is timed from the moment its slot opens instead of its first keystroke.
	LineInput bool
}

func (c Config) withDefaults() Config {
	if c.SettleDelay <= 0 {
		c.SettleDelay = DefaultSettleDelay
	}
	if c.Countdown <= 0 {
		c.Countdown = DefaultCountdown
	}
	if c.TickInterval <= 0 {
		c.TickInterval = timer.DefaultInterval
	}
	if c.LeaseTTL <= 0 {
		c.LeaseTTL = timer.DefaultLeaseTTL
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = 10 * time.Second
	}
	return c
}

type sessionMsg interface{ isSessionMsg() }

type remote struct {
	From string
	Msg  protocol.Message
}

type keystroke struct {
	Slot int
	Text string
}

type submit struct {
	Slot  int
	Text  string
	Reply chan error
}

type chooseDifficulty struct{ Difficulty engine.Difficulty }

type startMatch struct{ Reply chan error }

type setAvatar struct {
	Username string
	Seed     string
}

type reconnected struct{}

type refreshRoster struct{}

type rosterLoaded struct {
	Players []store.Player
	Err     error
}

type getView struct{ Reply chan View }

func (remote) isSessionMsg()           {}
func (keystroke) isSessionMsg()        {}
func (submit) isSessionMsg()           {}
func (chooseDifficulty) isSessionMsg() {}
func (startMatch) isSessionMsg()       {}
func (setAvatar) isSessionMsg()        {}
func (reconnected) isSessionMsg()      {}
func (refreshRoster) isSessionMsg()    {}
func (rosterLoaded) isSessionMsg()     {}
func (getView) isSessionMsg()          {}

// Controller is this peer's half of one lobby's game. All game logic runs on
// its goroutine; the relay only fans messages out.
type Controller struct {
	cfg     Config
	out     timer.Broadcaster
	backend Backend
	log     *zap.Logger

	inbox   chan sessionMsg
	updates chan View
	done    chan struct{}

	machine *engine.Machine
	state   engine.GameState
	clock   *timer.Synchronizer

	roster     []RosterEntry
	difficulty engine.Difficulty
	pending    map[int]string
	animation  *protocol.Animation
	firstKey   time.Time

	started      bool
	countingDown bool
	settleAt     <-chan time.Time
	countdownAt  <-chan time.Time
	resultsSent  bool
}

type Option func(*Controller)

func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.log = l }
}

func New(cfg Config, out timer.Broadcaster, backend Backend, opts ...Option) *Controller {
	cfg = cfg.withDefaults()
	c := &Controller{
		cfg:        cfg,
		out:        out,
		backend:    backend,
		log:        zap.NewNop(),
		inbox:      make(chan sessionMsg, 256),
		updates:    make(chan View, 1),
		done:       make(chan struct{}),
		machine:    engine.NewMachine(-1, 0),
		state:      engine.NewGameState(engine.DifficultyMedium, 0),
		difficulty: engine.DifficultyMedium,
		pending:    map[int]string{},
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With(zap.String("lobby", cfg.Lobby), zap.String("client", cfg.ClientID))
	c.clock = timer.New(cfg.ClientID, out, timer.WithLeaseTTL(cfg.LeaseTTL), timer.WithLogger(c.log.Named("timer")))
	s := c.difficulty.Settings()
	c.clock.Reset(s.InitialTime, c.difficulty.TimeCap())
	return c
}

// Updates delivers the newest View after every change. Views a slow reader
// misses are replaced, never queued.
func (c *Controller) Updates() <-chan View { return c.updates }

func (c *Controller) Done() <-chan struct{} { return c.done }

// send enqueues m without blocking past ctx or the controller's end.
func (c *Controller) send(ctx context.Context, m sessionMsg) error {
	select {
	case c.inbox <- m:
		return nil
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// post is for callers that must never wait, like transport callbacks.
func (c *Controller) post(m sessionMsg) {
	select {
	case c.inbox <- m:
	default:
		c.log.Warn("session inbox full, dropping", zap.String("msg", msgName(m)))
	}
}

// Deliver hands the controller a message received from the lobby.
func (c *Controller) Deliver(ctx context.Context, from string, m protocol.Message) error {
	return c.send(ctx, remote{From: from, Msg: m})
}

// Type echoes the text currently in slot to the other players. Lossy.
func (c *Controller) Type(slot int, text string) {
	c.post(keystroke{Slot: slot, Text: text})
}

// Submit enters text in slot: slots before the new-word slot are re-types,
// the last one is the new word.
func (c *Controller) Submit(ctx context.Context, slot int, text string) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, submit{Slot: slot, Text: text, Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) ChooseDifficulty(ctx context.Context, d engine.Difficulty) error {
	return c.send(ctx, chooseDifficulty{Difficulty: d})
}

// StartMatch asks the group to (re)start with the chosen difficulty.
func (c *Controller) StartMatch(ctx context.Context) error {
	reply := make(chan error, 1)
	if err := c.send(ctx, startMatch{Reply: reply}); err != nil {
		return err
	}
	select {
	case err := <-reply:
		return err
	case <-c.done:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) SetAvatar(ctx context.Context, username, seed string) error {
	return c.send(ctx, setAvatar{Username: username, Seed: seed})
}

// Reconnected is the transport's reconnect hook. It never blocks.
func (c *Controller) Reconnected() { c.post(reconnected{}) }

func (c *Controller) RefreshRoster() { c.post(refreshRoster{}) }

func (c *Controller) View(ctx context.Context) (View, error) {
	reply := make(chan View, 1)
	if err := c.send(ctx, getView{Reply: reply}); err != nil {
		return View{}, err
	}
	select {
	case v := <-reply:
		return v, nil
	case <-c.done:
		return View{}, ErrStopped
	case <-ctx.Done():
		return View{}, ctx.Err()
	}
}

// Run owns the session until ctx ends. It fetches the roster first thing.
func (c *Controller) Run(ctx context.Context) {
	defer close(c.done)

	ticker := time.NewTicker(c.cfg.TickInterval)
	defer ticker.Stop()

	c.fetchRoster(ctx)

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			c.tick(ctx, now)

		case <-c.settleAt:
			c.settleAt = nil
			c.settled(time.Now())

		case <-c.countdownAt:
			c.countdownAt = nil
			c.countdownDone(time.Now())

		case m := <-c.inbox:
			c.handle(ctx, m)
		}
	}
}

func (c *Controller) handle(ctx context.Context, m sessionMsg) {
	now := time.Now()
	switch msg := m.(type) {
	case remote:
		c.receive(ctx, now, msg.From, msg.Msg)

	case keystroke:
		if !c.started || c.countingDown || c.machine.Phase == engine.PhaseSettling || !c.machine.MyTurn(c.state) {
			return
		}
		if msg.Slot == len(c.state.Words) && c.firstKey.IsZero() {
			c.firstKey = now
		}
		c.out.Broadcast(protocol.BroadcastUserInput{Index: msg.Slot, Input: msg.Text})

	case submit:
		msg.Reply <- c.submit(ctx, now, msg.Slot, msg.Text)

	case chooseDifficulty:
		c.difficulty = msg.Difficulty
		c.out.Broadcast(protocol.BroadcastDifficulty{Difficulty: msg.Difficulty})
		c.publish()

	case startMatch:
		if len(c.roster) == 0 {
			msg.Reply <- engine.ErrEmptyRoster
			return
		}
		c.out.Broadcast(protocol.StartGame{Difficulty: c.difficulty, Match: c.state.Match + 1})
		msg.Reply <- nil

	case setAvatar:
		c.out.Broadcast(protocol.UpdateAvatar{Username: msg.Username, Seed: msg.Seed})

	case reconnected:
		c.log.Info("reconnected, catching up")
		c.out.Broadcast(protocol.RequestSnapshot{})
		c.fetchRoster(ctx)

	case refreshRoster:
		c.fetchRoster(ctx)

	case rosterLoaded:
		if msg.Err != nil {
			c.log.Warn("roster fetch failed", zap.Error(msg.Err))
			return
		}
		c.setRoster(msg.Players)

	case getView:
		msg.Reply <- c.view()
	}
}

func msgName(m sessionMsg) string {
	switch m.(type) {
	case remote:
		return "remote"
	case keystroke:
		return "keystroke"
	case reconnected:
		return "reconnected"
	case refreshRoster:
		return "refresh_roster"
	case rosterLoaded:
		return "roster_loaded"
	}
	return "other"
}
