package session

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/echowords/internal/engine"
	"github.com/DoyleJ11/echowords/internal/store"
	"github.com/DoyleJ11/echowords/pkg/protocol"
)

func (c *Controller) submit(ctx context.Context, now time.Time, slot int, text string) error {
	if !c.started {
		return ErrNotStarted
	}
	if c.countingDown {
		return engine.ErrInputLocked
	}
	if slot < len(c.state.Words) {
		return c.retype(now, slot, text)
	}
	if slot != len(c.state.Words) {
		return engine.ErrRetypeOutOfOrder
	}

	if err := c.machine.CanSubmit(c.state); err != nil {
		return err
	}

	word, err := engine.Validate(text, c.state.Words, c.state.LastWord)
	if err != nil {
		c.machine.NoteRejected()
		c.out.Broadcast(protocol.BroadcastAnimation{Index: slot, Kind: protocol.AnimationInvalid})
		return err
	}

	var elapsed time.Duration
	if !c.firstKey.IsZero() {
		elapsed = now.Sub(c.firstKey)
	}
	score := engine.Score(engine.ScoreInput{
		Word:       word,
		Elapsed:    elapsed,
		Remaining:  c.clock.Remaining(),
		Difficulty: c.state.Difficulty,
	})

	_, next, err := c.machine.Apply(c.state, engine.Command{Type: engine.CmdSubmitWord, Text: word, Score: score})
	if err != nil {
		return err
	}

	c.persist(ctx, word)

	c.clock.AddBonus(next.CorrectWordBonus)
	next.Remaining = c.clock.Remaining()
	c.state = next
	c.out.Broadcast(protocol.BroadcastGameState(c.state.Clone()))
	c.out.Broadcast(protocol.BroadcastAnimation{Index: slot, Kind: protocol.AnimationCorrect})

	c.clock.Pause()
	c.startSettle()
	c.log.Info("word accepted", zap.String("word", word), zap.Int("score", score), zap.Int("turn", c.state.Turn))
	c.publish()
	return nil
}

func (c *Controller) retype(now time.Time, slot int, text string) error {
	events, _, err := c.machine.Apply(c.state, engine.Command{Type: engine.CmdRetype, Slot: slot, Text: text})
	switch {
	case engine.ContainsEvent(events, engine.EvtRetypeAccepted):
		c.clock.AddBonus(c.state.RewriteWordBonus)
		c.out.Broadcast(protocol.BroadcastAnimation{Index: slot, Kind: protocol.AnimationCorrect})
		c.slotOpened(now)
	case engine.ContainsEvent(events, engine.EvtRetypeRejected):
		c.out.Broadcast(protocol.BroadcastAnimation{Index: slot, Kind: protocol.AnimationIncorrect})
	}
	c.publish()
	return err
}

// persist records the word in the background. Failures are logged and never
// retried; the turn does not wait.
func (c *Controller) persist(ctx context.Context, word string) {
	if c.backend == nil {
		return
	}
	go func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CallTimeout)
		defer cancel()
		if err := c.backend.PersistWord(cctx, word); err != nil {
			c.log.Warn("persist word failed", zap.String("word", word), zap.Error(err))
		}
	}()
}

func (c *Controller) startSettle() {
	c.pending = map[int]string{}
	c.firstKey = time.Time{}
	c.settleAt = time.After(c.cfg.SettleDelay)
}

// settled opens the next turn. The new acting player takes over the clock.
func (c *Controller) settled(now time.Time) {
	events, _, _ := c.machine.Apply(c.state, engine.Command{Type: engine.CmdSettled})
	if !engine.ContainsEvent(events, engine.EvtTurnOpened) {
		return
	}
	if c.machine.MyTurn(c.state) && c.clock.Resume(now) {
		c.log.Debug("took the clock", zap.Uint64("term", c.clock.Lease().Term))
	}
	c.slotOpened(now)
	c.publish()
}

// slotOpened starts the new-word clock for line input once every prior word
// has been re-typed.
func (c *Controller) slotOpened(now time.Time) {
	if !c.cfg.LineInput || !c.firstKey.IsZero() || c.countingDown {
		return
	}
	if c.machine.CanSubmit(c.state) == nil {
		c.firstKey = now
	}
}

func (c *Controller) receive(ctx context.Context, now time.Time, from string, m protocol.Message) {
	switch v := m.(type) {
	case protocol.ReceiveGameState:
		c.observe(engine.GameState(v))

	case protocol.ReceiveUserInput:
		c.pending[v.Index] = v.Input

	case protocol.ReceiveAnimation:
		a := protocol.Animation(v)
		c.animation = &a

	case protocol.ReceiveDifficultyUpdate:
		c.difficulty = engine.ParseDifficulty(string(v.Difficulty))

	case protocol.RedirectToGame:
		c.redirect(v)

	case protocol.ReceiveTimerStart:
		c.started = true
		c.countingDown = false
		c.countdownAt = nil
		c.clock.ObserveStart(now, from, protocol.TimerValue(v))

	case protocol.ReceiveTimerSync:
		if c.clock.ObserveSync(now, from, protocol.TimerValue(v)) {
			c.expire(ctx)
		}

	case protocol.ReceiveTimerResume:
		if c.clock.ObserveSync(now, from, protocol.TimerValue(v)) {
			c.expire(ctx)
		}

	case protocol.ReceiveTimerPause:
		c.clock.ObservePause(now, from, protocol.TimerPause(v))

	case protocol.AvatarUpdated:
		for i := range c.roster {
			if c.roster[i].Username == v.Username {
				c.roster[i].AvatarSeed = v.Seed
			}
		}

	case protocol.PlayerJoined:
		c.fetchRoster(ctx)

	case protocol.Error:
		c.log.Warn("relay error", zap.String("error", v.Error))
		return

	default:
		c.log.Debug("ignored message", zap.String("type", string(m.Type())))
		return
	}
	c.publish()
}

// observe replaces local state with a received one if it is newer.
func (c *Controller) observe(in engine.GameState) {
	if in.Match > 0 && in.Match >= c.state.Match {
		c.started = true
	}
	events, next, err := c.machine.Apply(c.state, engine.Command{Type: engine.CmdObserve, State: in})
	if err != nil || len(events) == 0 {
		return
	}
	if next.Match != c.state.Match {
		c.resetClock(next.Difficulty)
		c.resultsSent = false
	}
	c.state = next
	c.clock.Adopt(next.Remaining)
	if engine.ContainsEvent(events, engine.EvtSettleStarted) {
		c.startSettle()
	}
}

// redirect is the group-wide (re)start. Seat 0 starts the clock once the
// countdown ends.
func (c *Controller) redirect(v protocol.RedirectToGame) {
	if c.started && v.Match <= c.state.Match {
		return
	}
	d := engine.ParseDifficulty(string(v.Difficulty))
	c.difficulty = d

	_, next, _ := c.machine.Apply(c.state, engine.Command{Type: engine.CmdReset, Difficulty: d, Match: v.Match})
	c.state = next
	c.resetClock(d)
	c.pending = map[int]string{}
	c.animation = nil
	c.firstKey = time.Time{}
	c.settleAt = nil
	c.resultsSent = false

	c.started = true
	c.countingDown = true
	c.countdownAt = time.After(c.cfg.Countdown)
	c.log.Info("match starting", zap.Uint64("match", v.Match), zap.String("difficulty", string(d)))
}

func (c *Controller) resetClock(d engine.Difficulty) {
	c.clock.Reset(d.Settings().InitialTime, d.TimeCap())
}

func (c *Controller) countdownDone(now time.Time) {
	c.countingDown = false
	if c.machine.Seat == 0 && !c.clock.Expired() {
		c.clock.Start(now, c.state.Difficulty.Settings().InitialTime)
	}
	c.slotOpened(now)
	c.publish()
}

func (c *Controller) tick(ctx context.Context, now time.Time) {
	if c.clock.Driving() {
		before := c.clock.Remaining()
		if c.clock.Tick(now) {
			c.expire(ctx)
		}
		if c.clock.Remaining() != before {
			c.publish()
		}
		return
	}

	if c.clock.LeaseExpired(now) && c.isTakeoverSeat() {
		c.log.Warn("timer lease expired, taking over",
			zap.String("holder", c.clock.Lease().Holder), zap.Uint64("term", c.clock.Lease().Term))
		c.clock.Resume(now)
		c.publish()
	}
}

// isTakeoverSeat picks one peer to revive a silent clock: the acting seat, or
// the seat after it when the acting player is the one that went quiet.
func (c *Controller) isTakeoverSeat() bool {
	n := len(c.roster)
	if n == 0 || c.machine.Seat < 0 || c.countingDown || c.settleAt != nil {
		return false
	}
	seat := engine.ActingSeat(c.state, n)
	if c.roster[seat].ClientID == c.clock.Lease().Holder && n > 1 {
		seat = (seat + 1) % n
	}
	return seat == c.machine.Seat
}

// expire ends the match once. Seat 0 reports the results.
func (c *Controller) expire(ctx context.Context) {
	events, _, _ := c.machine.Apply(c.state, engine.Command{Type: engine.CmdTimerExpired})
	if !engine.ContainsEvent(events, engine.EvtTimerExpired) {
		return
	}
	c.settleAt = nil
	c.log.Info("time is up", zap.Int("words", len(c.state.Words)))

	if c.machine.Seat == 0 && !c.resultsSent {
		c.resultsSent = true
		c.submitResults(ctx, Results(c.state, c.roster))
	}
	c.publish()
}

func (c *Controller) submitResults(ctx context.Context, results []store.PlayerResult) {
	if c.backend == nil {
		return
	}
	lobby := c.cfg.Lobby
	go func() {
		cctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), c.cfg.CallTimeout)
		defer cancel()
		if err := c.backend.SubmitResults(cctx, lobby, results); err != nil && !errors.Is(err, context.Canceled) {
			c.log.Warn("submit results failed", zap.Error(err))
			return
		}
		c.log.Info("results submitted", zap.Int("players", len(results)))
	}()
}
