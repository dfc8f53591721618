package hub

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/echowords/internal/lobby"
)

const (
	CodeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	CodeLength   = 4

	maxCodeAttempts = 64
)

var ErrNoFreeCode = errors.New("could not find a free lobby code")
var ErrClosed = errors.New("hub closed")

type HubMsg interface{ isHubMsg() }

// CreateLobby picks a fresh code and opens a relay group for it. The collision
// check and the insert happen in the same loop turn.
type CreateLobby struct {
	Reply chan Created
}

type Created struct {
	Code  string
	Lobby *lobby.Lobby
	Err   error
}

type GetLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

// EnsureLobby returns the group for Code, opening it if needed. Groups exist
// for any code a client joins, the same as the relay has always behaved.
type EnsureLobby struct {
	Code  string
	Reply chan *lobby.Lobby
}

type RemoveLobby struct {
	Code string
}

type ListLobbies struct {
	Reply chan []string
}

// Sweep shuts down every lobby idle for longer than MaxIdle.
type Sweep struct {
	Now     time.Time
	MaxIdle time.Duration
	Reply   chan []string // may be nil
}

type ShutdownHub struct{}

func (CreateLobby) isHubMsg() {}
func (GetLobby) isHubMsg()    {}
func (EnsureLobby) isHubMsg() {}
func (RemoveLobby) isHubMsg() {}
func (ListLobbies) isHubMsg() {}
func (Sweep) isHubMsg()       {}
func (ShutdownHub) isHubMsg() {}

type Hub struct {
	inbox   chan HubMsg
	lobbies map[string]*lobby.Lobby
	newCode func() (string, error)
	log     *zap.Logger
	ctx     context.Context
	cancel  context.CancelFunc
}

type Option func(*Hub)

func WithLogger(l *zap.Logger) Option {
	return func(h *Hub) { h.log = l }
}

// WithCodeGenerator replaces the random code source.
func WithCodeGenerator(gen func() (string, error)) Option {
	return func(h *Hub) { h.newCode = gen }
}

func NewHub(parent context.Context, opts ...Option) *Hub {
	ctx, cancel := context.WithCancel(parent)
	h := &Hub{
		inbox:   make(chan HubMsg, 64),
		lobbies: make(map[string]*lobby.Lobby),
		newCode: GenerateCode,
		log:     zap.NewNop(),
		ctx:     ctx,
		cancel:  cancel,
	}
	for _, o := range opts {
		o(h)
	}
	go h.loop()
	return h
}

func (h *Hub) Inbox() chan<- HubMsg { return h.inbox }

func (h *Hub) Done() <-chan struct{} { return h.ctx.Done() }

func (h *Hub) loop() {
	for {
		select {
		case <-h.ctx.Done():
			h.shutdown()
			return

		case m := <-h.inbox:
			switch msg := m.(type) {
			case CreateLobby:
				msg.Reply <- h.create()

			case GetLobby:
				msg.Reply <- h.live(msg.Code) // May be nil

			case EnsureLobby:
				if lb := h.live(msg.Code); lb != nil {
					msg.Reply <- lb
					break
				}
				msg.Reply <- h.open(msg.Code)

			case RemoveLobby:
				if lb := h.lobbies[msg.Code]; lb != nil {
					lb.Send(lobby.Shutdown{})
					delete(h.lobbies, msg.Code)
				}

			case ListLobbies:
				codes := make([]string, 0, len(h.lobbies))
				for code := range h.lobbies {
					codes = append(codes, code)
				}
				sort.Strings(codes)
				msg.Reply <- codes

			case Sweep:
				removed := h.sweep(msg.Now, msg.MaxIdle)
				if msg.Reply != nil {
					msg.Reply <- removed
				}

			case ShutdownHub:
				h.shutdown()
				h.cancel()
				return
			}
		}
	}
}

func (h *Hub) create() Created {
	for i := 0; i < maxCodeAttempts; i++ {
		code, err := h.newCode()
		if err != nil {
			return Created{Err: err}
		}
		if h.live(code) != nil {
			h.log.Debug("collision on code, regenerating", zap.String("code", code))
			continue
		}
		return Created{Code: code, Lobby: h.open(code)}
	}
	return Created{Err: ErrNoFreeCode}
}

func (h *Hub) open(code string) *lobby.Lobby {
	lb := lobby.NewLobby(h.ctx, code, h.log.Named("lobby"))
	h.lobbies[code] = lb
	h.log.Info("lobby opened", zap.String("lobby", code))
	return lb
}

// live returns the lobby for code, forgetting it if its loop already exited.
func (h *Hub) live(code string) *lobby.Lobby {
	lb := h.lobbies[code]
	if lb == nil {
		return nil
	}
	select {
	case <-lb.Done():
		delete(h.lobbies, code)
		return nil
	default:
		return lb
	}
}

func (h *Hub) sweep(now time.Time, maxIdle time.Duration) []string {
	var removed []string
	cutoff := now.Add(-maxIdle)
	for code, lb := range h.lobbies {
		if lb.LastActive().Before(cutoff) {
			lb.Send(lobby.Shutdown{})
			delete(h.lobbies, code)
			removed = append(removed, code)
		}
	}
	sort.Strings(removed)
	if len(removed) > 0 {
		h.log.Info("reclaimed idle lobbies", zap.Strings("lobbies", removed))
	}
	return removed
}

func (h *Hub) shutdown() {
	for _, lb := range h.lobbies {
		lb.Send(lobby.Shutdown{})
	}
	clear(h.lobbies)
}

// GenerateCode draws CodeLength symbols from CodeAlphabet.
func GenerateCode() (string, error) {
	code := make([]byte, CodeLength)
	for i := range code {
		num, err := rand.Int(rand.Reader, big.NewInt(int64(len(CodeAlphabet))))
		if err != nil {
			return "", err
		}
		code[i] = CodeAlphabet[num.Int64()]
	}
	return string(code), nil
}
