package timer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/echowords/pkg/protocol"
)

type recorder struct {
	sent []protocol.Message
}

func (r *recorder) Broadcast(m protocol.Message) { r.sent = append(r.sent, m) }

func (r *recorder) syncs() []protocol.BroadcastTimerSync {
	var out []protocol.BroadcastTimerSync
	for _, m := range r.sent {
		if s, ok := m.(protocol.BroadcastTimerSync); ok {
			out = append(out, s)
		}
	}
	return out
}

var t0 = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

func TestTick_UsesRealDeltaAndNeverGoesNegative(t *testing.T) {
	out := &recorder{}
	s := New("a", out)
	s.Reset(2, 4)
	s.Start(t0, 2)

	// irregular spacing: 100ms, 250ms, 1.5s, then far past zero
	now := t0
	for _, step := range []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 1500 * time.Millisecond, 5 * time.Second} {
		now = now.Add(step)
		prev := s.Remaining()
		s.Tick(now)
		want := prev - step.Seconds()
		if want < 0 {
			want = 0
		}
		assert.InDelta(t, want, s.Remaining(), 1e-9)
		assert.GreaterOrEqual(t, s.Remaining(), 0.0)
	}
}

func TestTick_BroadcastsOnSecondBoundary(t *testing.T) {
	out := &recorder{}
	s := New("a", out)
	s.Reset(3, 6)
	s.Start(t0, 3)
	require.IsType(t, protocol.BroadcastTimerStart{}, out.sent[0])

	now := t0
	for i := 0; i < 5; i++ { // 3.0 -> 2.5
		now = now.Add(100 * time.Millisecond)
		s.Tick(now)
	}
	syncs := out.syncs()
	require.Len(t, syncs, 1, "3.0 -> 2.9 crosses into second 2")
	assert.InDelta(t, 2.9, syncs[0].Seconds, 1e-9)

	for i := 0; i < 6; i++ { // 2.5 -> 1.9
		now = now.Add(100 * time.Millisecond)
		s.Tick(now)
	}
	assert.Len(t, out.syncs(), 2)
}

func TestTick_ExpiryFiresOnce(t *testing.T) {
	out := &recorder{}
	s := New("a", out)
	s.Reset(1, 2)
	s.Start(t0, 0.15)

	assert.False(t, s.Tick(t0.Add(100*time.Millisecond)))
	assert.True(t, s.Tick(t0.Add(200*time.Millisecond)))
	assert.False(t, s.Tick(t0.Add(300*time.Millisecond)))
	assert.True(t, s.Expired())
	assert.False(t, s.Driving())

	last := out.syncs()[len(out.syncs())-1]
	assert.Equal(t, 0.0, last.Seconds)

	assert.False(t, s.Resume(t0.Add(time.Second)), "expired clock stays stopped")
}

func TestAddBonus_ImmediateAndCapped(t *testing.T) {
	out := &recorder{}
	s := New("a", out)
	s.Reset(10, 20)
	s.Start(t0, 10)

	s.AddBonus(2)
	require.Len(t, out.syncs(), 1)
	assert.Equal(t, 12.0, out.syncs()[0].Seconds)

	s.AddBonus(100)
	assert.Equal(t, 20.0, s.Remaining())
}

func TestPauseResume(t *testing.T) {
	out := &recorder{}
	s := New("a", out)
	s.Reset(10, 20)
	s.Start(t0, 10)

	s.Pause()
	assert.False(t, s.Driving())
	s.Tick(t0.Add(time.Second))
	assert.Equal(t, 10.0, s.Remaining(), "paused clock does not move")

	require.True(t, s.Resume(t0.Add(2*time.Second)))
	resume, ok := out.sent[len(out.sent)-1].(protocol.BroadcastTimerResume)
	require.True(t, ok)
	assert.Equal(t, 10.0, resume.Seconds)
	assert.Equal(t, uint64(2), resume.Lease.Term)

	// delta is measured from the resume, not from the pause
	s.Tick(t0.Add(2*time.Second + 100*time.Millisecond))
	assert.InDelta(t, 9.9, s.Remaining(), 1e-9)
}

func TestObserve_NonDriverShowsReceivedValue(t *testing.T) {
	s := New("b", &recorder{})
	s.Reset(30, 60)

	s.ObserveStart(t0, "a", protocol.TimerValue{Seconds: 30, Lease: protocol.Lease{Holder: "a", Term: 1}})
	s.ObserveSync(t0.Add(time.Second), "a", protocol.TimerValue{Seconds: 28.97, Lease: protocol.Lease{Holder: "a", Term: 1}})

	assert.Equal(t, 28.97, s.Remaining())
	s.Tick(t0.Add(5 * time.Second))
	assert.Equal(t, 28.97, s.Remaining(), "non-driver does not tick")
}

func TestObserve_StaleTermDiscarded(t *testing.T) {
	s := New("c", &recorder{})
	s.Reset(30, 60)

	s.ObserveSync(t0, "b", protocol.TimerValue{Seconds: 20, Lease: protocol.Lease{Holder: "b", Term: 5}})
	s.ObserveSync(t0, "a", protocol.TimerValue{Seconds: 25, Lease: protocol.Lease{Holder: "a", Term: 4}})

	assert.Equal(t, 20.0, s.Remaining())
	assert.Equal(t, protocol.Lease{Holder: "b", Term: 5}, s.Lease())
}

func TestObserve_HigherTermDemotesDriver(t *testing.T) {
	out := &recorder{}
	s := New("a", out)
	s.Reset(30, 60)
	s.Start(t0, 30) // term 1

	s.ObserveSync(t0.Add(time.Second), "b", protocol.TimerValue{Seconds: 17, Lease: protocol.Lease{Holder: "b", Term: 2}})

	assert.False(t, s.Driving())
	assert.False(t, s.HoldsLease())
	assert.Equal(t, 17.0, s.Remaining())

	// next claim outranks b
	s.Resume(t0.Add(2 * time.Second))
	assert.Equal(t, protocol.Lease{Holder: "a", Term: 3}, s.Lease())
}

func TestObserve_OwnEchoIgnored(t *testing.T) {
	out := &recorder{}
	s := New("a", out)
	s.Reset(30, 60)
	s.Start(t0, 30)
	s.Tick(t0.Add(500 * time.Millisecond))

	s.ObserveStart(t0.Add(600*time.Millisecond), "a", protocol.TimerValue{Seconds: 30, Lease: s.Lease()})
	assert.InDelta(t, 29.5, s.Remaining(), 1e-9)
	assert.True(t, s.Driving())
}

func TestObservePause_StopsDriver(t *testing.T) {
	s := New("a", &recorder{})
	s.Reset(30, 60)
	s.Start(t0, 30)

	s.ObservePause(t0.Add(time.Second), "b", protocol.TimerPause{Lease: s.Lease()})
	assert.False(t, s.Driving())
	assert.True(t, s.Paused())
}

func TestObserveSync_ZeroExpiresOnce(t *testing.T) {
	s := New("b", &recorder{})
	s.Reset(30, 60)
	l := protocol.Lease{Holder: "a", Term: 1}

	s.ObserveStart(t0, "a", protocol.TimerValue{Seconds: 1, Lease: l})
	assert.True(t, s.ObserveSync(t0, "a", protocol.TimerValue{Seconds: 0, Lease: l}))
	assert.False(t, s.ObserveSync(t0, "a", protocol.TimerValue{Seconds: 0, Lease: l}))
}

func TestLeaseExpired(t *testing.T) {
	s := New("b", &recorder{}, WithLeaseTTL(time.Second))
	s.Reset(30, 60)
	l := protocol.Lease{Holder: "a", Term: 1}

	assert.False(t, s.LeaseExpired(t0), "no holder yet")

	s.ObserveStart(t0, "a", protocol.TimerValue{Seconds: 30, Lease: l})
	assert.False(t, s.LeaseExpired(t0.Add(900*time.Millisecond)))

	s.ObserveSync(t0.Add(900*time.Millisecond), "a", protocol.TimerValue{Seconds: 29, Lease: l})
	assert.False(t, s.LeaseExpired(t0.Add(1500*time.Millisecond)), "sync renews")
	assert.True(t, s.LeaseExpired(t0.Add(2*time.Second)))

	s.ObservePause(t0.Add(2*time.Second), "a", protocol.TimerPause{Lease: l})
	assert.False(t, s.LeaseExpired(t0.Add(10*time.Second)), "paused clock has no driver to lose")
}

func TestAdopt_OnlyWhenNotDriving(t *testing.T) {
	s := New("a", &recorder{})
	s.Reset(30, 60)

	s.Adopt(12.5)
	assert.Equal(t, 12.5, s.Remaining())
	s.Adopt(500)
	assert.Equal(t, 60.0, s.Remaining())

	s.Start(time.Now(), 20)
	s.Adopt(3)
	assert.Equal(t, 20.0, s.Remaining(), "driver keeps its own clock")
}
