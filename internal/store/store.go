package store

import (
	"context"
	"errors"
	"strings"
	"time"
)

var ErrNotFound = errors.New("not found")
var ErrMissingClient = errors.New("client id is required")

// DefaultUsername is used when a client joins a lobby before ever naming itself.
const DefaultUsername = "DefaultPlayer"

// MatchDuration is reported with every result set; the client never sent a
// real duration.
const MatchDuration = 300

// Player is one join record. A client that joins several lobbies, or the same
// lobby twice, has several records; the newest one carries its current name.
type Player struct {
	ID         uint      `gorm:"primaryKey" json:"id"`
	Username   string    `gorm:"size:50;not null" json:"username"`
	ClientID   string    `gorm:"size:100;index" json:"clientId"`
	LobbyID    string    `gorm:"size:10;index" json:"lobbyId"`
	AvatarSeed string    `gorm:"size:100" json:"avatarSeed"`
	JoinedAt   time.Time `gorm:"autoCreateTime" json:"joinedAt"`
}

// PlayerWord is the telemetry row written for every accepted word.
type PlayerWord struct {
	ID        uint      `gorm:"primaryKey"`
	WordInput string    `gorm:"size:50;not null"`
	ClientID  string    `gorm:"size:100;index"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

// Word is the shared dictionary. Seeded on migrate and grown by accepted words.
type Word struct {
	ID        uint      `gorm:"primaryKey"`
	Word      string    `gorm:"size:50;not null;uniqueIndex"`
	CreatedAt time.Time `gorm:"autoCreateTime"`
}

type PlayerMatchResult struct {
	ID             uint `gorm:"primaryKey"`
	PlayerID       uint `gorm:"index"`
	Player         Player
	Score          int
	WordsSubmitted int
	Accuracy       int
	CreatedAt      time.Time `gorm:"autoCreateTime"`
}

type PlayerResult struct {
	Username       string `json:"username"`
	Score          int    `json:"score"`
	WordsSubmitted int    `json:"wordsSubmitted"`
	Accuracy       int    `json:"accuracy"`
}

type MatchResults struct {
	Players      []PlayerResult `json:"players"`
	TotalWords   int            `json:"totalWords"`
	GameDuration int            `json:"gameDuration"`
}

// Store is the best-effort persistence behind the REST endpoints. Nothing in
// live play waits on it.
type Store interface {
	AddWord(ctx context.Context, word, clientID string) error
	// AddPlayer inserts a new record. lobbyID may be empty.
	AddPlayer(ctx context.Context, username, clientID, lobbyID string) (Player, error)
	// JoinLobby inserts a new record for clientID in lobbyID, copying the
	// newest name and avatar that client used.
	JoinLobby(ctx context.Context, lobbyID, clientID string) (Player, error)
	PlayersByLobby(ctx context.Context, lobbyID string) ([]Player, error)
	SubmitResults(ctx context.Context, lobbyID string, results []PlayerResult) error
	MatchResults(ctx context.Context, lobbyID string) (MatchResults, error)
	Dictionary(ctx context.Context, prefix string) ([]string, error)
	Close() error
}

// SeedWords fill an empty dictionary.
var SeedWords = []string{
	"apple", "banana", "carrot", "dog", "elephant", "fish", "giraffe",
	"house", "igloo", "jacket", "kite", "lemon", "monkey", "notebook",
	"orange", "penguin", "queen", "rabbit", "snake", "tiger", "umbrella",
	"violin", "watermelon", "xylophone", "yacht", "zebra",
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
