package hub

import (
	"context"
	"time"

	"github.com/DoyleJ11/echowords/internal/lobby"
)

// ask sends msg and waits for its reply, giving up when ctx or the hub ends.
func ask[T any](ctx context.Context, h *Hub, msg HubMsg, reply chan T) (T, error) {
	var zero T
	select {
	case h.inbox <- msg:
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.ctx.Done():
		return zero, ErrClosed
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	case <-h.ctx.Done():
		return zero, ErrClosed
	}
}

func (h *Hub) Create(ctx context.Context) (string, *lobby.Lobby, error) {
	reply := make(chan Created, 1)
	res, err := ask(ctx, h, CreateLobby{Reply: reply}, reply)
	if err != nil {
		return "", nil, err
	}
	return res.Code, res.Lobby, res.Err
}

// Get returns nil when no live lobby has that code.
func (h *Hub) Get(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return ask(ctx, h, GetLobby{Code: code, Reply: reply}, reply)
}

func (h *Hub) Ensure(ctx context.Context, code string) (*lobby.Lobby, error) {
	reply := make(chan *lobby.Lobby, 1)
	return ask(ctx, h, EnsureLobby{Code: code, Reply: reply}, reply)
}

func (h *Hub) List(ctx context.Context) ([]string, error) {
	reply := make(chan []string, 1)
	return ask(ctx, h, ListLobbies{Reply: reply}, reply)
}

// Publish sends a server-originated message to a lobby if it exists.
func (h *Hub) Publish(ctx context.Context, code string, msg lobby.Msg) (bool, error) {
	lb, err := h.Get(ctx, code)
	if err != nil || lb == nil {
		return false, err
	}
	return lb.Send(msg), nil
}

// RunReaper sweeps idle lobbies every interval until ctx ends.
func (h *Hub) RunReaper(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-h.ctx.Done():
			return
		case now := <-ticker.C:
			select {
			case h.inbox <- Sweep{Now: now, MaxIdle: maxIdle}:
			case <-ctx.Done():
				return
			case <-h.ctx.Done():
				return
			}
		}
	}
}

func (h *Hub) Shutdown() {
	select {
	case h.inbox <- ShutdownHub{}:
	case <-h.ctx.Done():
	}
}
