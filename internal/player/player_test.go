package player

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/echowords/internal/engine"
	"github.com/DoyleJ11/echowords/internal/session"
	"github.com/DoyleJ11/echowords/internal/store"
	"github.com/DoyleJ11/echowords/pkg/protocol"
)

type dict map[string][]string

func (d dict) Words(ctx context.Context, prefix string) ([]string, error) {
	return d[prefix], nil
}

func TestParseLine(t *testing.T) {
	tests := []struct {
		line, cmd, arg string
	}{
		{"", "", ""},
		{"   ", "", ""},
		{"apple", "word", "apple"},
		{" ice cream ", "word", "ice cream"},
		{"/start", "start", ""},
		{"/Difficulty  hard", "difficulty", "hard"},
		{"/quit now", "quit", "now"},
	}
	for _, tt := range tests {
		cmd, arg := ParseLine(tt.line)
		assert.Equal(t, tt.cmd, cmd, tt.line)
		assert.Equal(t, tt.arg, arg, tt.line)
	}
}

func TestSlot(t *testing.T) {
	v := session.View{State: engine.GameState{Words: []string{"apple", "egg"}}}
	assert.Equal(t, 0, Slot(v))
	v.Completed = 1
	assert.Equal(t, 1, Slot(v))
	v.Completed = 2
	assert.Equal(t, 2, Slot(v))
}

func TestBot_NextWord(t *testing.T) {
	b := NewBot(dict{
		"":  {"apple"},
		"e": {"egg", "eel", "elephant"},
		"g": {},
	}, 0, nil)
	ctx := context.Background()

	w, err := b.NextWord(ctx, engine.GameState{})
	require.NoError(t, err)
	assert.Equal(t, "apple", w)

	w, err = b.NextWord(ctx, engine.GameState{Words: []string{"apple", "egg", "goose"}, LastWord: "goose"})
	require.NoError(t, err)
	assert.Equal(t, "eel", w, "egg is already used")

	_, err = b.NextWord(ctx, engine.GameState{Words: []string{"dog"}, LastWord: "dog"})
	assert.ErrorIs(t, err, ErrNoWord)
}

func TestStatus(t *testing.T) {
	roster := []session.RosterEntry{{Username: "ann"}, {Username: "bob"}}

	s := Status(session.View{Lobby: "ABCD", Roster: roster, Difficulty: engine.DifficultyHard})
	assert.Equal(t, "lobby ABCD | 2 players | waiting to start (hard)", s)

	v := session.View{
		Started:    true,
		Roster:     roster,
		Remaining:  12.4,
		ActingSeat: 1,
		State:      engine.GameState{Words: []string{"apple", "egg"}},
	}
	assert.Equal(t, "  12s | apple > egg | bob's turn", Status(v))

	v.MyTurn, v.Completed = true, 1
	assert.Contains(t, Status(v), "your turn, slot 1")

	v.GameOver = true
	v.State.Scores = map[int]int{0: 500, 1: 300}
	assert.Equal(t, "time! 2 words | ann 500 bob 300", Status(v))
}

// loopback is a one-player relay: it records what the session sends and
// feeds the mirrored frames back in order.
type loopback struct {
	frames chan protocol.Message

	mu   sync.Mutex
	sent []protocol.Message
}

func (l *loopback) Broadcast(m protocol.Message) {
	l.mu.Lock()
	l.sent = append(l.sent, m)
	l.mu.Unlock()
	l.frames <- m
}

func (l *loopback) serve(ctx context.Context, ctl *session.Controller) {
	for {
		select {
		case <-ctx.Done():
			return
		case m := <-l.frames:
			if out, _, ok := protocol.Mirror(m); ok {
				_ = ctl.Deliver(ctx, "me", out)
			}
		}
	}
}

func (l *loopback) inputs() []protocol.BroadcastUserInput {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []protocol.BroadcastUserInput
	for _, m := range l.sent {
		if in, ok := m.(protocol.BroadcastUserInput); ok {
			out = append(out, in)
		}
	}
	return out
}

type soloBackend struct{}

func (soloBackend) PersistWord(ctx context.Context, word string) error { return nil }

func (soloBackend) Players(ctx context.Context, lobby string) ([]store.Player, error) {
	return []store.Player{{ID: 1, ClientID: "me", Username: "ann", LobbyID: lobby}}, nil
}

func (soloBackend) SubmitResults(ctx context.Context, lobby string, results []store.PlayerResult) error {
	return nil
}

func TestReadCommands_EchoesAndTimesWords(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	relay := &loopback{frames: make(chan protocol.Message, 256)}
	ctl := session.New(session.Config{
		Lobby:        "ABCD",
		ClientID:     "me",
		Countdown:    20 * time.Millisecond,
		SettleDelay:  50 * time.Millisecond,
		TickInterval: 5 * time.Millisecond,
		LineInput:    true,
	}, relay, soloBackend{})
	go ctl.Run(ctx)
	go relay.serve(ctx, ctl)

	in, w := io.Pipe()
	defer w.Close()
	done := make(chan error, 1)
	go func() { done <- readCommands(ctx, ctl, engine.DifficultyMedium, in, io.Discard) }()

	waitView := func(cond func(session.View) bool) session.View {
		var v session.View
		require.Eventually(t, func() bool {
			var err error
			v, err = ctl.View(ctx)
			return err == nil && cond(v)
		}, 3*time.Second, 5*time.Millisecond)
		return v
	}

	waitView(func(v session.View) bool { return len(v.Roster) == 1 })
	_, err := fmt.Fprintln(w, "/start")
	require.NoError(t, err)
	waitView(func(v session.View) bool { return v.Started && !v.CountingDown })

	time.Sleep(1500 * time.Millisecond)
	_, err = fmt.Fprintln(w, "apple")
	require.NoError(t, err)
	v := waitView(func(v session.View) bool { return len(v.State.Words) == 1 })

	assert.Equal(t, []protocol.BroadcastUserInput{{Index: 0, Input: "apple"}}, relay.inputs())

	// the word was timed from when its slot opened, not from the enter key
	d := v.State.Difficulty
	before := v.State.Remaining - d.Settings().CorrectWordBonus
	speed := float64(v.State.Scores[0]) / (5 * 100 * (1 + before/60) * d.Multiplier())
	assert.Greater(t, speed, 1.0)
	assert.Less(t, speed, 1.5)

	_, err = fmt.Fprintln(w, "/quit")
	require.NoError(t, err)
	assert.ErrorIs(t, <-done, errQuit)
}
