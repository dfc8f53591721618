package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// memory keeps everything in maps guarded by one RWMutex. State is lost on
// restart; used for development and handler tests.
type memory struct {
	mu      sync.RWMutex
	nextID  uint
	players []Player
	words   []PlayerWord
	dict    map[string]struct{}
	results []PlayerMatchResult
}

func NewMemoryStore() Store {
	m := &memory{dict: make(map[string]struct{})}
	for _, w := range SeedWords {
		m.dict[w] = struct{}{}
	}
	return m
}

func (m *memory) id() uint {
	m.nextID++
	return m.nextID
}

func (m *memory) AddWord(ctx context.Context, word, clientID string) error {
	if clientID == "" {
		return ErrMissingClient
	}
	word = normalize(word)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.words = append(m.words, PlayerWord{ID: m.id(), WordInput: word, ClientID: clientID, CreatedAt: time.Now()})
	m.dict[word] = struct{}{}
	return nil
}

func (m *memory) AddPlayer(ctx context.Context, username, clientID, lobbyID string) (Player, error) {
	if clientID == "" {
		return Player{}, ErrMissingClient
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p := Player{
		ID:         m.id(),
		Username:   normalize(username),
		ClientID:   clientID,
		LobbyID:    lobbyOrNone(lobbyID),
		AvatarSeed: uuid.NewString(),
		JoinedAt:   time.Now(),
	}
	m.players = append(m.players, p)
	return p, nil
}

func (m *memory) JoinLobby(ctx context.Context, lobbyID, clientID string) (Player, error) {
	if clientID == "" {
		return Player{}, ErrMissingClient
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	p := Player{ID: m.id(), Username: DefaultUsername, ClientID: clientID, LobbyID: lobbyID, JoinedAt: time.Now()}
	for i := len(m.players) - 1; i >= 0; i-- {
		if m.players[i].ClientID == clientID {
			p.Username = m.players[i].Username
			p.AvatarSeed = m.players[i].AvatarSeed
			break
		}
	}
	if p.AvatarSeed == "" {
		p.AvatarSeed = uuid.NewString()
	}
	m.players = append(m.players, p)
	return p, nil
}

func (m *memory) PlayersByLobby(ctx context.Context, lobbyID string) ([]Player, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []Player{}
	for _, p := range m.players {
		if p.LobbyID == lobbyID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memory) SubmitResults(ctx context.Context, lobbyID string, results []PlayerResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range results {
		name := normalize(r.Username)
		for i := len(m.players) - 1; i >= 0; i-- {
			p := m.players[i]
			if p.LobbyID == lobbyID && p.Username == name {
				m.results = append(m.results, PlayerMatchResult{
					ID:             m.id(),
					PlayerID:       p.ID,
					Score:          r.Score,
					WordsSubmitted: r.WordsSubmitted,
					Accuracy:       r.Accuracy,
					CreatedAt:      time.Now(),
				})
				break
			}
		}
	}
	return nil
}

func (m *memory) MatchResults(ctx context.Context, lobbyID string) (MatchResults, error) {
	players, _ := m.PlayersByLobby(ctx, lobbyID)

	m.mu.RLock()
	defer m.mu.RUnlock()
	return collectResults(players, append([]PlayerMatchResult(nil), m.results...)), nil
}

func (m *memory) Dictionary(ctx context.Context, prefix string) ([]string, error) {
	prefix = normalize(prefix)

	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []string{}
	for w := range m.dict {
		if strings.HasPrefix(w, prefix) {
			out = append(out, w)
		}
	}
	sort.Strings(out)
	return out, nil
}

func (m *memory) Close() error { return nil }
