package peer

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/DoyleJ11/echowords/pkg/protocol"
)

// DefaultSchedule is the wait before each reconnect attempt. The last entry
// repeats for as long as the server stays away.
var DefaultSchedule = []time.Duration{0, 2 * time.Second, 5 * time.Second, 10 * time.Second, 30 * time.Second}

// DefaultStableAfter is how long a connection must last before a loss
// restarts the schedule from the top.
const DefaultStableAfter = 5 * time.Second

var ErrNotConnected = errors.New("not connected")

// Inbound is one decoded frame from the relay.
type Inbound struct {
	Lobby string
	From  string
	Msg   protocol.Message
}

type State int

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	}
	return "disconnected"
}

type Option func(*Conn)

func WithStableAfter(d time.Duration) Option {
	return func(c *Conn) { c.stableAfter = d }
}

func WithLogger(l *zap.Logger) Option {
	return func(c *Conn) { c.log = l }
}

func WithSchedule(s []time.Duration) Option {
	return func(c *Conn) {
		if len(s) > 0 {
			c.schedule = s
		}
	}
}

// Conn is one websocket to the relay, shared by every lobby this peer is in.
// Sends never block: frames that cannot be queued are logged and dropped.
type Conn struct {
	url      string
	clientID string
	log      *zap.Logger
	schedule []time.Duration

	stableAfter time.Duration

	in  chan Inbound
	out chan []byte

	mu          sync.Mutex
	lobbies     map[string]struct{}
	onReconnect []func()
	onState     []func(State)

	state atomic.Int32
}

// NewConn builds a connection to serverURL (http or https). Nothing is dialed
// until Run.
func NewConn(serverURL, clientID string, opts ...Option) (*Conn, error) {
	wsURL, err := WebsocketURL(serverURL, clientID)
	if err != nil {
		return nil, err
	}
	c := &Conn{
		url:      wsURL,
		clientID: clientID,
		log:      zap.NewNop(),
		schedule: DefaultSchedule,
		in:       make(chan Inbound, 128),
		out:      make(chan []byte, 64),
		lobbies:  map[string]struct{}{},

		stableAfter: DefaultStableAfter,
	}
	for _, o := range opts {
		o(c)
	}
	c.log = c.log.With(zap.String("client", clientID))
	return c, nil
}

// WebsocketURL maps http(s)://host[/base] to ws(s)://host[/base]/ws?client=id.
func WebsocketURL(serverURL, clientID string) (string, error) {
	u, err := url.Parse(serverURL)
	if err != nil {
		return "", fmt.Errorf("server url: %w", err)
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("server url: unsupported scheme %q", u.Scheme)
	}
	u.Path = strings.TrimSuffix(u.Path, "/") + "/ws"
	u.RawQuery = url.Values{"client": {clientID}}.Encode()
	return u.String(), nil
}

func (c *Conn) ClientID() string { return c.clientID }

func (c *Conn) Inbound() <-chan Inbound { return c.in }

func (c *Conn) State() State { return State(c.state.Load()) }

// OnReconnect registers f to run after every successful reconnect (not the
// first connect). Lobbies are already rejoined when it runs. f must not block.
func (c *Conn) OnReconnect(f func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onReconnect = append(c.onReconnect, f)
}

// OnState registers f for connection state changes. f must not block.
func (c *Conn) OnState(f func(State)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = append(c.onState, f)
}

// Join adds code to the lobbies this connection belongs to. Membership
// survives reconnects, so ErrNotConnected here only means the join frame goes
// out on the next connect.
func (c *Conn) Join(code string) error {
	c.mu.Lock()
	c.lobbies[code] = struct{}{}
	c.mu.Unlock()
	return c.Send(code, protocol.JoinLobby{})
}

func (c *Conn) Leave(code string) error {
	c.mu.Lock()
	delete(c.lobbies, code)
	c.mu.Unlock()
	return c.Send(code, protocol.LeaveLobby{})
}

// Send queues m for lobby code. It reports why a frame was dropped but never
// waits; callers log and move on.
func (c *Conn) Send(code string, m protocol.Message) error {
	if c.State() != Connected {
		return ErrNotConnected
	}
	data, err := protocol.Encode(code, "", m)
	if err != nil {
		return err
	}
	select {
	case c.out <- data:
		return nil
	default:
		return fmt.Errorf("send %s: outbound queue full", m.Type())
	}
}

// Lobby binds the connection to one lobby code.
func (c *Conn) Lobby(code string) *LobbyChannel {
	return &LobbyChannel{conn: c, code: code}
}

// LobbyChannel sends to one lobby and logs what it could not send.
type LobbyChannel struct {
	conn *Conn
	code string
}

func (l *LobbyChannel) Code() string { return l.code }

func (l *LobbyChannel) Broadcast(m protocol.Message) {
	if err := l.conn.Send(l.code, m); err != nil {
		l.conn.log.Warn("broadcast dropped",
			zap.String("lobby", l.code), zap.String("type", string(m.Type())), zap.Error(err))
	}
}

// Run keeps the connection up until ctx ends, following the reconnect
// schedule between attempts.
func (c *Conn) Run(ctx context.Context) error {
	attempt := 0
	connectedBefore := false
	for {
		wait := c.schedule[min(attempt, len(c.schedule)-1)]
		if wait > 0 {
			c.log.Info("reconnecting", zap.Duration("in", wait), zap.Int("attempt", attempt))
			select {
			case <-ctx.Done():
				c.setState(Disconnected)
				return ctx.Err()
			case <-time.After(wait):
			}
		}

		c.setState(Connecting)
		ws, _, err := websocket.Dial(ctx, c.url, nil)
		if err != nil {
			if ctx.Err() != nil {
				c.setState(Disconnected)
				return ctx.Err()
			}
			c.log.Warn("dial failed", zap.Error(err))
			c.setState(Disconnected)
			attempt++
			continue
		}

		since := time.Now()
		err = c.serve(ctx, ws, connectedBefore)
		connectedBefore = true
		c.setState(Disconnected)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		// a socket dropped right after the dial keeps backing off
		if time.Since(since) >= c.stableAfter {
			attempt = 0
		} else {
			attempt++
		}
		c.log.Warn("connection lost", zap.Error(err), zap.Duration("lasted", time.Since(since)))
	}
}

func (c *Conn) serve(ctx context.Context, ws *websocket.Conn, reconnect bool) error {
	defer ws.Close(websocket.StatusNormalClosure, "bye")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// anything queued for the old socket is stale
	for len(c.out) > 0 {
		<-c.out
	}

	c.mu.Lock()
	codes := make([]string, 0, len(c.lobbies))
	for code := range c.lobbies {
		codes = append(codes, code)
	}
	c.mu.Unlock()
	for _, code := range codes {
		data, err := protocol.Encode(code, "", protocol.JoinLobby{})
		if err != nil {
			return err
		}
		if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
			return fmt.Errorf("rejoin %s: %w", code, err)
		}
	}

	c.setState(Connected)
	c.log.Info("connected", zap.Bool("reconnect", reconnect), zap.Int("lobbies", len(codes)))
	if reconnect {
		c.mu.Lock()
		hooks := append([]func(){}, c.onReconnect...)
		c.mu.Unlock()
		for _, f := range hooks {
			f()
		}
	}

	go c.writeLoop(ctx, ws)
	return c.readLoop(ctx, ws)
}

func (c *Conn) readLoop(ctx context.Context, ws *websocket.Conn) error {
	for {
		_, data, err := ws.Read(ctx)
		if err != nil {
			return err
		}
		env, m, err := protocol.Parse(data)
		if err != nil {
			c.log.Warn("bad frame", zap.String("type", string(env.Type)), zap.Error(err))
			continue
		}
		if e, ok := m.(protocol.Error); ok {
			c.log.Warn("relay error", zap.String("lobby", env.Lobby), zap.String("error", e.Error))
		}
		select {
		case c.in <- Inbound{Lobby: env.Lobby, From: env.From, Msg: m}:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (c *Conn) writeLoop(ctx context.Context, ws *websocket.Conn) {
	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.out:
			wctx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := ws.Write(wctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				c.log.Warn("write failed", zap.Error(err))
				ws.Close(websocket.StatusInternalError, "write failed")
				return
			}
		}
	}
}

func (c *Conn) setState(s State) {
	if State(c.state.Swap(int32(s))) == s {
		return
	}
	c.mu.Lock()
	hooks := append([]func(State){}, c.onState...)
	c.mu.Unlock()
	for _, f := range hooks {
		f(s)
	}
}
