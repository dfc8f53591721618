package lobby

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/DoyleJ11/echowords/internal/engine"
	"github.com/DoyleJ11/echowords/pkg/protocol"
)

type Msg interface{ isLobbyMsg() }

// FromClient is a decoded frame from one member. The lobby stamps ClientID as
// the envelope sender, so peers cannot speak for each other.
type FromClient struct {
	ClientID string
	Msg      protocol.Message
}

func (FromClient) isLobbyMsg() {}

// Publish is a server-originated message for the whole group (PlayerJoined).
type Publish struct {
	Msg protocol.Message
}

func (Publish) isLobbyMsg() {}

type Join struct {
	ClientID string
	Outbox   chan protocol.Envelope // where this client wants to receive frames
}

func (Join) isLobbyMsg() {}

// Leave removes a member. With Outbox set it only removes that connection's
// membership, so a late Leave from a dead socket can't evict its replacement.
type Leave struct {
	ClientID string
	Outbox   chan protocol.Envelope
}

func (Leave) isLobbyMsg() {}

type Shutdown struct{}

func (Shutdown) isLobbyMsg() {}

type GetState struct {
	Reply chan View
}

func (GetState) isLobbyMsg() {}

type View struct {
	Code        string
	NumClients  int
	Members     []string
	HasSnapshot bool
	Snapshot    engine.GameState
	Difficulty  engine.Difficulty
}

// Lobby is one relay group. It never interprets game messages beyond keeping
// the newest GameState around for late joiners and RequestSnapshot.
type Lobby struct {
	code    string
	inbox   chan Msg
	clients map[string]chan protocol.Envelope
	order   []string
	log     *zap.Logger

	snapshot    engine.GameState
	hasSnapshot bool
	difficulty  engine.Difficulty

	lastActive atomic.Int64
	ctx        context.Context
	cancel     context.CancelFunc
}

func NewLobby(parent context.Context, code string, log *zap.Logger) *Lobby {
	ctx, cancel := context.WithCancel(parent)
	if log == nil {
		log = zap.NewNop()
	}

	l := &Lobby{
		code:    code,
		inbox:   make(chan Msg, 64), // Small buffer
		clients: make(map[string]chan protocol.Envelope),
		log:     log.With(zap.String("lobby", code)),
		ctx:     ctx,
		cancel:  cancel,
	}
	l.touch()

	go l.loop()
	return l
}

func (l *Lobby) loop() {
	for {
		select {
		case <-l.ctx.Done():
			l.shutdown()
			return

		case m := <-l.inbox:
			l.touch()
			switch msg := m.(type) {
			case Join:
				if old, ok := l.clients[msg.ClientID]; ok && old != msg.Outbox {
					// same client, new connection
					close(old)
				} else if !ok {
					l.order = append(l.order, msg.ClientID)
				}
				l.clients[msg.ClientID] = msg.Outbox
				l.log.Debug("client joined", zap.String("client", msg.ClientID), zap.Int("clients", len(l.clients)))

				if l.difficulty != "" {
					l.sendTo(msg.ClientID, "", protocol.ReceiveDifficultyUpdate{Difficulty: l.difficulty})
				}
				if l.hasSnapshot {
					l.sendTo(msg.ClientID, "", protocol.ReceiveGameState(l.snapshot.Clone()))
				}

			case Leave:
				if cur, ok := l.clients[msg.ClientID]; ok && (msg.Outbox == nil || msg.Outbox == cur) {
					l.remove(msg.ClientID)
				}

			case FromClient:
				l.relay(msg.ClientID, msg.Msg)

			case Publish:
				l.broadcast("", "", msg.Msg)

			case GetState:
				// test/ops: reflect internal state without data races
				msg.Reply <- View{
					Code:        l.code,
					NumClients:  len(l.clients),
					Members:     append([]string(nil), l.order...),
					HasSnapshot: l.hasSnapshot,
					Snapshot:    l.snapshot.Clone(),
					Difficulty:  l.difficulty,
				}

			case Shutdown:
				l.shutdown()
				return
			}
		}
	}
}

func (l *Lobby) relay(from string, m protocol.Message) {
	switch v := m.(type) {
	case protocol.RequestSnapshot:
		if l.hasSnapshot {
			l.sendTo(from, "", protocol.ReceiveGameState(l.snapshot.Clone()))
		}
		return
	case protocol.BroadcastGameState:
		gs := engine.GameState(v)
		if !l.hasSnapshot || gs.Newer(l.snapshot) {
			l.snapshot = gs.Clone()
			l.hasSnapshot = true
		}
	case protocol.BroadcastDifficulty:
		l.difficulty = v.Difficulty
	case protocol.StartGame:
		// rematch: the old board is no longer a useful catch-up
		l.hasSnapshot = false
		l.snapshot = engine.GameState{}
		if v.Difficulty != "" {
			l.difficulty = v.Difficulty
		}
	}

	out, to, ok := protocol.Mirror(m)
	if !ok {
		l.sendTo(from, "", protocol.Error{Error: "not relayable: " + string(m.Type())})
		return
	}

	except := ""
	if to == protocol.AudienceOthers {
		except = from
	}
	l.broadcast(from, except, out)
}

func (l *Lobby) broadcast(from, except string, m protocol.Message) {
	env, err := protocol.Wrap(l.code, from, m)
	if err != nil {
		l.log.Error("encode failed", zap.String("type", string(m.Type())), zap.Error(err))
		return
	}
	for _, id := range append([]string(nil), l.order...) {
		if id == except {
			continue
		}
		l.deliver(id, env)
	}
}

func (l *Lobby) sendTo(id, from string, m protocol.Message) {
	env, err := protocol.Wrap(l.code, from, m)
	if err != nil {
		l.log.Error("encode failed", zap.String("type", string(m.Type())), zap.Error(err))
		return
	}
	l.deliver(id, env)
}

func (l *Lobby) deliver(id string, env protocol.Envelope) {
	ch, ok := l.clients[id]
	if !ok {
		return
	}
	select {
	case ch <- env:
		//ok
	default:
		// Client is slow/full - drop them.
		l.log.Warn("dropping slow client", zap.String("client", id))
		close(ch)
		l.remove(id)
	}
}

func (l *Lobby) remove(id string) {
	if _, ok := l.clients[id]; !ok {
		return
	}
	delete(l.clients, id)
	for i, o := range l.order {
		if o == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
}

func (l *Lobby) shutdown() {
	for id, ch := range l.clients {
		close(ch) // Tell client no more frames
		delete(l.clients, id)
	}
	l.order = nil
	l.cancel()
}

func (l *Lobby) touch() { l.lastActive.Store(time.Now().UnixNano()) }

func (l *Lobby) Code() string { return l.code }

// LastActive is the time of the last message the lobby handled.
func (l *Lobby) LastActive() time.Time { return time.Unix(0, l.lastActive.Load()) }

func (l *Lobby) Done() <-chan struct{} { return l.ctx.Done() }

// Send delivers m unless the lobby has already shut down.
func (l *Lobby) Send(m Msg) bool {
	select {
	case l.inbox <- m:
		return true
	case <-l.ctx.Done():
		return false
	}
}

// Expose the inbox so tests or WS layer can send messages.
func (l *Lobby) Inbox() chan<- Msg { return l.inbox }
