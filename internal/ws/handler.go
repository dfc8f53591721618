package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/DoyleJ11/echowords/internal/hub"
	"github.com/DoyleJ11/echowords/internal/lobby"
	"github.com/DoyleJ11/echowords/pkg/protocol"
)

type Config struct {
	// OriginPatterns loosens the same-origin check, e.g. "localhost:*" in dev.
	OriginPatterns []string
	WriteTimeout   time.Duration
	PingInterval   time.Duration
	OutboxSize     int
}

func (c Config) withDefaults() Config {
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 3 * time.Second
	}
	if c.PingInterval <= 0 {
		c.PingInterval = 15 * time.Second
	}
	if c.OutboxSize <= 0 {
		c.OutboxSize = 32
	}
	return c
}

type membership struct {
	lb     *lobby.Lobby
	out    chan protocol.Envelope
	cancel context.CancelFunc
}

// Handler serves one websocket per client. A connection can be in several
// lobbies at once; each membership gets its own outbox and writer goroutine.
func Handler(h *hub.Hub, cfg Config, log *zap.Logger) http.HandlerFunc {
	cfg = cfg.withDefaults()
	if log == nil {
		log = zap.NewNop()
	}

	return func(w http.ResponseWriter, r *http.Request) {
		clientID := r.URL.Query().Get("client")
		if clientID == "" {
			clientID = uuid.NewString()
		}

		conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{
			OriginPatterns: cfg.OriginPatterns,
		})
		if err != nil {
			log.Debug("accept failed", zap.Error(err))
			return
		}
		defer conn.Close(websocket.StatusNormalClosure, "bye")

		log := log.With(zap.String("client", clientID))
		log.Debug("connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		c := &client{id: clientID, conn: conn, cfg: cfg, hub: h, log: log, lobbies: map[string]*membership{}}
		defer c.leaveAll()

		go c.keepAlive(ctx)
		c.readLoop(ctx)
	}
}

type client struct {
	id      string
	conn    *websocket.Conn
	cfg     Config
	hub     *hub.Hub
	log     *zap.Logger
	lobbies map[string]*membership // reader goroutine only
}

func (c *client) readLoop(ctx context.Context) {
	for {
		_, data, err := c.conn.Read(ctx)
		if err != nil {
			switch websocket.CloseStatus(err) {
			case websocket.StatusNormalClosure, websocket.StatusGoingAway:
				c.log.Debug("closed by peer")
			default:
				if !errors.Is(err, context.Canceled) {
					c.log.Debug("read failed", zap.Error(err))
				}
			}
			return
		}

		env, msg, err := protocol.Parse(data)
		if err != nil {
			c.writeError(ctx, env.Lobby, err.Error())
			continue
		}

		switch msg.(type) {
		case protocol.JoinLobby:
			c.join(ctx, env.Lobby)
		case protocol.LeaveLobby:
			c.leave(env.Lobby)
		default:
			m, ok := c.lobbies[env.Lobby]
			if !ok {
				c.writeError(ctx, env.Lobby, "not in lobby")
				continue
			}
			if !m.lb.Send(lobby.FromClient{ClientID: c.id, Msg: msg}) {
				c.drop(env.Lobby)
				c.writeError(ctx, env.Lobby, "lobby closed")
			}
		}
	}
}

func (c *client) join(ctx context.Context, code string) {
	if code == "" {
		c.writeError(ctx, "", "missing lobby")
		return
	}
	if m, ok := c.lobbies[code]; ok {
		// already a member: treat as a catch-up request
		m.lb.Send(lobby.FromClient{ClientID: c.id, Msg: protocol.RequestSnapshot{}})
		return
	}

	lb, err := c.hub.Ensure(ctx, code)
	if err != nil || lb == nil {
		c.writeError(ctx, code, "lobby unavailable")
		return
	}

	out := make(chan protocol.Envelope, c.cfg.OutboxSize)
	pumpCtx, cancel := context.WithCancel(ctx)
	if !lb.Send(lobby.Join{ClientID: c.id, Outbox: out}) {
		cancel()
		c.writeError(ctx, code, "lobby closed")
		return
	}
	c.lobbies[code] = &membership{lb: lb, out: out, cancel: cancel}
	c.log.Info("joined lobby", zap.String("lobby", code))

	go c.pump(pumpCtx, code, out)
}

// pump writes one lobby's frames. If the lobby closes the outbox (we were too
// slow, or it shut down) the whole connection goes so the peer reconnects and
// asks for a snapshot.
func (c *client) pump(ctx context.Context, code string, out <-chan protocol.Envelope) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-out:
			if !ok {
				if ctx.Err() == nil {
					c.log.Warn("lobby dropped connection", zap.String("lobby", code))
					c.conn.Close(websocket.StatusTryAgainLater, "dropped by lobby")
				}
				return
			}
			if err := c.write(ctx, env); err != nil {
				c.log.Debug("write failed", zap.String("lobby", code), zap.Error(err))
				return
			}
		}
	}
}

func (c *client) leave(code string) {
	m, ok := c.lobbies[code]
	if !ok {
		return
	}
	m.lb.Send(lobby.Leave{ClientID: c.id, Outbox: m.out})
	c.drop(code)
	c.log.Info("left lobby", zap.String("lobby", code))
}

func (c *client) drop(code string) {
	if m, ok := c.lobbies[code]; ok {
		m.cancel()
		delete(c.lobbies, code)
	}
}

func (c *client) leaveAll() {
	for code := range c.lobbies {
		c.leave(code)
	}
}

func (c *client) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			pctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
			err := c.conn.Ping(pctx)
			cancel()
			if err != nil {
				c.log.Debug("ping failed", zap.Error(err))
				return
			}
		}
	}
}

func (c *client) write(ctx context.Context, env protocol.Envelope) error {
	payload, err := json.Marshal(env)
	if err != nil {
		return err
	}
	wctx, cancel := context.WithTimeout(ctx, c.cfg.WriteTimeout)
	defer cancel()
	return c.conn.Write(wctx, websocket.MessageText, payload)
}

func (c *client) writeError(ctx context.Context, code, msg string) {
	env, err := protocol.Wrap(code, "", protocol.Error{Error: msg})
	if err != nil {
		return
	}
	_ = c.write(ctx, env)
}
