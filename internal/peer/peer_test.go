package peer

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/echowords/internal/engine"
	"github.com/DoyleJ11/echowords/internal/httpapi"
	"github.com/DoyleJ11/echowords/internal/hub"
	"github.com/DoyleJ11/echowords/internal/store"
	"github.com/DoyleJ11/echowords/pkg/protocol"
)

// relay is a full server whose websocket sessions can be cut from the test.
type relay struct {
	*httptest.Server
	mu      sync.Mutex
	cancels []context.CancelFunc
}

func newRelay(t *testing.T) *relay {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	h := hub.NewHub(ctx)
	api := httpapi.SetupRoutes(httpapi.Deps{Hub: h, Store: store.NewMemoryStore()})

	rl := &relay{}
	rl.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/ws" {
			api.ServeHTTP(w, r)
			return
		}
		cctx, ccancel := context.WithCancel(r.Context())
		rl.mu.Lock()
		rl.cancels = append(rl.cancels, ccancel)
		rl.mu.Unlock()
		api.ServeHTTP(w, r.WithContext(cctx))
	}))
	t.Cleanup(func() {
		rl.cut()
		rl.Close()
		cancel()
	})
	return rl
}

// cut drops every live websocket session.
func (rl *relay) cut() {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for _, c := range rl.cancels {
		c()
	}
	rl.cancels = nil
}

func startConn(t *testing.T, url, id string) (*Conn, chan State) {
	t.Helper()
	c, err := NewConn(url, id, WithSchedule([]time.Duration{0, 20 * time.Millisecond}))
	require.NoError(t, err)

	states := make(chan State, 16)
	c.OnState(func(s State) {
		select {
		case states <- s:
		default:
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	waitState(t, states, Connected)
	return c, states
}

func waitState(t *testing.T, states <-chan State, want State) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case s := <-states:
			if s == want {
				return
			}
		case <-deadline:
			t.Fatalf("never reached %s", want)
		}
	}
}

func recvType(t *testing.T, c *Conn, want protocol.Type) Inbound {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		select {
		case in := <-c.Inbound():
			if in.Msg.Type() == want {
				return in
			}
		case <-deadline:
			t.Fatalf("no %s arrived", want)
			return Inbound{}
		}
	}
}

// joinAndWait returns once the relay has the membership registered.
func joinAndWait(t *testing.T, c *Conn, code string) {
	t.Helper()
	require.NoError(t, c.Join(code))
	c.Lobby(code).Broadcast(protocol.BroadcastAnimation{Index: -1, Kind: protocol.AnimationCorrect})
	for {
		in := recvType(t, c, protocol.TypeReceiveAnimation)
		if in.From == c.ClientID() {
			return
		}
	}
}

func TestWebsocketURL(t *testing.T) {
	tests := []struct {
		in, want string
		wantErr  bool
	}{
		{"http://localhost:8080", "ws://localhost:8080/ws?client=c1", false},
		{"https://play.example.com/", "wss://play.example.com/ws?client=c1", false},
		{"https://example.com/echo", "wss://example.com/echo/ws?client=c1", false},
		{"ftp://example.com", "", true},
	}
	for _, tt := range tests {
		got, err := WebsocketURL(tt.in, "c1")
		if tt.wantErr {
			assert.Error(t, err, tt.in)
			continue
		}
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestAPI_RoundTrip(t *testing.T) {
	rl := newRelay(t)
	ctx := context.Background()
	ann := NewAPI(rl.URL, "c-ann")
	bob := NewAPI(rl.URL+"/", "c-bob")

	code, err := ann.CreateLobby(ctx)
	require.NoError(t, err)
	require.Len(t, code, hub.CodeLength)

	p, err := ann.NewPlayer(ctx, "Ann", code)
	require.NoError(t, err)
	assert.Equal(t, "ann", p.Username)
	assert.Equal(t, "c-ann", p.ClientID)

	_, err = bob.NewPlayer(ctx, "bob", "")
	require.NoError(t, err)
	_, err = bob.JoinLobby(ctx, code)
	require.NoError(t, err)

	players, err := ann.Players(ctx, code)
	require.NoError(t, err)
	require.Len(t, players, 2)
	assert.Equal(t, "bob", players[1].Username)

	require.NoError(t, bob.PersistWord(ctx, "eel"))
	words, err := ann.Words(ctx, "ee")
	require.NoError(t, err)
	assert.Equal(t, []string{"eel"}, words)

	require.NoError(t, ann.SubmitResults(ctx, code, []store.PlayerResult{
		{Username: "ann", Score: 500, WordsSubmitted: 1, Accuracy: 100},
	}))
	res, err := bob.Results(ctx, code)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalWords)

	_, err = ann.NewPlayer(ctx, " ", "")
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusBadRequest, se.Code)
}

func TestConn_SendBeforeConnect(t *testing.T) {
	c, err := NewConn("http://127.0.0.1:1", "c1")
	require.NoError(t, err)
	assert.ErrorIs(t, c.Send("ABCD", protocol.BroadcastTimerPause{}), ErrNotConnected)
	// membership is still recorded for the first connect
	assert.ErrorIs(t, c.Join("ABCD"), ErrNotConnected)
	assert.Contains(t, c.lobbies, "ABCD")
}

func TestConn_RelaysBetweenPeers(t *testing.T) {
	rl := newRelay(t)
	a, _ := startConn(t, rl.URL, "a")
	b, _ := startConn(t, rl.URL, "b")
	joinAndWait(t, a, "ABCD")
	joinAndWait(t, b, "ABCD")

	gs := engine.NewGameState(engine.DifficultyHard, 1)
	gs.Words = []string{"kite"}
	gs.Seq = 1
	a.Lobby("ABCD").Broadcast(protocol.BroadcastGameState(gs))

	in := recvType(t, b, protocol.TypeReceiveGameState)
	assert.Equal(t, "a", in.From)
	assert.Equal(t, "ABCD", in.Lobby)
	assert.Equal(t, []string{"kite"}, in.Msg.(protocol.ReceiveGameState).Words)
}

func TestConn_ReconnectRejoinsAndCatchesUp(t *testing.T) {
	rl := newRelay(t)
	a, states := startConn(t, rl.URL, "a")

	reconnected := make(chan struct{}, 1)
	a.OnReconnect(func() { reconnected <- struct{}{} })

	joinAndWait(t, a, "ABCD")
	gs := engine.NewGameState(engine.DifficultyEasy, 1)
	gs.Words = []string{"apple", "egg"}
	gs.Seq = 2
	a.Lobby("ABCD").Broadcast(protocol.BroadcastGameState(gs))
	recvType(t, a, protocol.TypeReceiveGameState)

	rl.cut()
	waitState(t, states, Disconnected)
	waitState(t, states, Connected)

	select {
	case <-reconnected:
	case <-time.After(2 * time.Second):
		t.Fatal("OnReconnect never ran")
	}

	// rejoining brings the relay's cached board back
	in := recvType(t, a, protocol.TypeReceiveGameState)
	assert.Equal(t, uint64(2), in.Msg.(protocol.ReceiveGameState).Seq)
}

func TestConn_ImmediateDropsBackOff(t *testing.T) {
	var accepts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := websocket.Accept(w, r, nil)
		if err != nil {
			return
		}
		accepts.Add(1)
		ws.Close(websocket.StatusTryAgainLater, "dropped by lobby")
	}))
	t.Cleanup(srv.Close)

	c, err := NewConn(srv.URL, "a", WithSchedule([]time.Duration{0, 100 * time.Millisecond, 200 * time.Millisecond}))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 700*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.Run(ctx), context.DeadlineExceeded)

	n := accepts.Load()
	assert.GreaterOrEqual(t, n, int32(2))
	assert.LessOrEqual(t, n, int32(6), "drops right after the dial must follow the schedule")
}
