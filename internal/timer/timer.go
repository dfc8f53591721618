package timer

import (
	"math"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/echowords/pkg/protocol"
)

const (
	DefaultInterval = 100 * time.Millisecond
	DefaultLeaseTTL = 3 * time.Second
)

// Broadcaster sends to the lobby group. Sends are fire-and-forget.
type Broadcaster interface {
	Broadcast(m protocol.Message)
}

// Synchronizer is one peer's view of the shared countdown. Only the lease
// holder ticks; everyone else shows the last value it received.
//
// It is not safe for concurrent use. The session actor owns it and feeds it
// ticks and received timer messages from a single goroutine.
type Synchronizer struct {
	self string
	out  Broadcaster
	log  *zap.Logger
	ttl  time.Duration

	remaining float64
	cap       float64
	driving   bool
	paused    bool
	expired   bool
	last      time.Time

	lease     protocol.Lease
	leaseSeen time.Time
}

type Option func(*Synchronizer)

func WithLeaseTTL(d time.Duration) Option {
	return func(s *Synchronizer) { s.ttl = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(s *Synchronizer) { s.log = l }
}

func New(self string, out Broadcaster, opts ...Option) *Synchronizer {
	s := &Synchronizer{
		self:   self,
		out:    out,
		log:    zap.NewNop(),
		ttl:    DefaultLeaseTTL,
		paused: true,
		cap:    math.Inf(1),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Synchronizer) Remaining() float64 { return s.remaining }
func (s *Synchronizer) Driving() bool { return s.driving }
func (s *Synchronizer) Paused() bool { return s.paused }
func (s *Synchronizer) Expired() bool { return s.expired }
func (s *Synchronizer) Lease() protocol.Lease { return s.lease }
func (s *Synchronizer) HoldsLease() bool { return s.lease.Holder == s.self }

// LeaseExpired reports whether the current holder has gone quiet for longer
// than the TTL. A peer that is driving never sees its own lease expire.
func (s *Synchronizer) LeaseExpired(now time.Time) bool {
	if s.driving || s.expired || s.paused || s.lease.Holder == "" {
		return false
	}
	return now.Sub(s.leaseSeen) > s.ttl
}

// Reset is used on rematch. The lease term is kept so claims stay ordered
// across matches.
func (s *Synchronizer) Reset(seconds, cap float64) {
	s.cap = cap
	s.remaining = s.clamp(seconds)
	s.driving = false
	s.paused = true
	s.expired = false
}

// Adopt takes the clock value carried by a received GameState. The driver
// keeps its own value.
func (s *Synchronizer) Adopt(seconds float64) {
	if s.driving || s.expired {
		return
	}
	s.remaining = s.clamp(seconds)
}

// Start begins a fresh countdown with this peer driving.
func (s *Synchronizer) Start(now time.Time, seconds float64) {
	s.remaining = s.clamp(seconds)
	s.expired = false
	s.claim(now)
	s.out.Broadcast(protocol.BroadcastTimerStart{Seconds: s.remaining, Lease: s.lease})
}

// Resume restarts ticking from the current value and takes drive.
func (s *Synchronizer) Resume(now time.Time) bool {
	if s.expired {
		return false
	}
	s.claim(now)
	s.out.Broadcast(protocol.BroadcastTimerResume{Seconds: s.remaining, Lease: s.lease})
	return true
}

func (s *Synchronizer) Pause() {
	s.driving = false
	s.paused = true
	s.out.Broadcast(protocol.BroadcastTimerPause{Lease: s.lease})
}

// AddBonus applies a bonus right away and pushes it to the group without
// waiting for the next second boundary.
func (s *Synchronizer) AddBonus(seconds float64) {
	if s.expired || seconds <= 0 {
		return
	}
	s.remaining = s.clamp(s.remaining + seconds)
	s.out.Broadcast(protocol.BroadcastTimerSync{Seconds: s.remaining, Lease: s.lease})
}

// Tick advances the countdown by the real time since the previous tick. It
// returns true exactly once, on the tick that reaches zero.
func (s *Synchronizer) Tick(now time.Time) bool {
	if !s.driving {
		return false
	}
	delta := now.Sub(s.last).Seconds()
	s.last = now
	s.leaseSeen = now
	if delta <= 0 {
		return false
	}

	prev := s.remaining
	s.remaining = math.Max(0, prev-delta)

	if math.Floor(prev) != math.Floor(s.remaining) || (s.remaining == 0 && prev > 0) {
		s.out.Broadcast(protocol.BroadcastTimerSync{Seconds: s.remaining, Lease: s.lease})
	}
	return s.crossed(prev)
}

// ObserveStart applies a received TimerStart.
func (s *Synchronizer) ObserveStart(now time.Time, from string, v protocol.TimerValue) bool {
	if !s.accept(now, from, v.Lease) {
		return false
	}
	s.expired = false
	s.paused = false
	s.remaining = s.clamp(v.Seconds)
	return false
}

// ObserveSync applies a received TimerSync or TimerResume value. It returns
// true when the value moves the clock across zero.
func (s *Synchronizer) ObserveSync(now time.Time, from string, v protocol.TimerValue) bool {
	if !s.accept(now, from, v.Lease) {
		return false
	}
	s.paused = false
	prev := s.remaining
	s.remaining = s.clamp(v.Seconds)
	return s.crossed(prev)
}

// ObservePause stops ticking even when we hold the lease: the acting player
// pauses on submit whether or not its own resume reached the group.
func (s *Synchronizer) ObservePause(now time.Time, from string, p protocol.TimerPause) {
	if !s.accept(now, from, p.Lease) {
		return
	}
	s.driving = false
	s.paused = true
}

func (s *Synchronizer) claim(now time.Time) {
	s.lease = protocol.Lease{Holder: s.self, Term: s.lease.Term + 1}
	s.leaseSeen = now
	s.last = now
	s.driving = true
	s.paused = false
}

// accept applies lease ordering to a received timer message. Own echoes and
// stale terms are dropped; a newer term from another peer demotes us.
func (s *Synchronizer) accept(now time.Time, from string, l protocol.Lease) bool {
	if from == s.self {
		return false
	}
	if s.lease.Newer(l) {
		s.log.Debug("stale timer message",
			zap.String("holder", l.Holder), zap.Uint64("term", l.Term),
			zap.Uint64("current_term", s.lease.Term))
		return false
	}
	if s.driving && l.Holder != s.self {
		s.log.Info("timer lease lost",
			zap.String("holder", l.Holder), zap.Uint64("term", l.Term))
		s.driving = false
	}
	s.lease = l
	s.leaseSeen = now
	return true
}

func (s *Synchronizer) crossed(prev float64) bool {
	if prev > 0 && s.remaining <= 0 && !s.expired {
		s.expired = true
		s.driving = false
		return true
	}
	return false
}

func (s *Synchronizer) clamp(v float64) float64 {
	return math.Min(math.Max(0, v), s.cap)
}
