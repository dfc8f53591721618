package store

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"
)

type GormStore struct {
	db  *gorm.DB
	log *zap.Logger
}

// Open picks a driver from the DSN: postgres:// and key=value strings go to
// postgres, sqlite:<path>, file: and :memory: go to sqlite.
func Open(ctx context.Context, dsn string, log *zap.Logger) (*GormStore, error) {
	if log == nil {
		log = zap.NewNop()
	}

	dialector, err := dialectorFor(dsn)
	if err != nil {
		return nil, err
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	s := &GormStore{db: db, log: log}
	if err := s.Migrate(ctx); err != nil {
		return nil, multierr.Append(err, s.Close())
	}
	return s, nil
}

func dialectorFor(dsn string) (gorm.Dialector, error) {
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"), strings.Contains(dsn, "host="):
		return postgres.Open(dsn), nil
	case strings.HasPrefix(dsn, "sqlite:"):
		return sqlite.Open(strings.TrimPrefix(dsn, "sqlite:")), nil
	case strings.HasPrefix(dsn, "file:"), dsn == ":memory:":
		return sqlite.Open(dsn), nil
	}
	return nil, fmt.Errorf("unsupported dsn %q", dsn)
}

// Migrate creates the tables and seeds the dictionary when it is empty.
func (s *GormStore) Migrate(ctx context.Context) error {
	db := s.db.WithContext(ctx)
	if err := db.AutoMigrate(&Player{}, &PlayerWord{}, &Word{}, &PlayerMatchResult{}); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	var n int64
	if err := db.Model(&Word{}).Count(&n).Error; err != nil {
		return fmt.Errorf("count words: %w", err)
	}
	if n > 0 {
		return nil
	}

	seed := make([]Word, 0, len(SeedWords))
	for _, w := range SeedWords {
		seed = append(seed, Word{Word: w})
	}
	if err := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&seed).Error; err != nil {
		return fmt.Errorf("seed words: %w", err)
	}
	s.log.Info("seeded dictionary", zap.Int("words", len(seed)))
	return nil
}

func (s *GormStore) AddWord(ctx context.Context, word, clientID string) error {
	if clientID == "" {
		return ErrMissingClient
	}
	word = normalize(word)

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&PlayerWord{WordInput: word, ClientID: clientID}).Error; err != nil {
			return fmt.Errorf("insert player word: %w", err)
		}
		// grow the dictionary; a word we already know is fine. The nested
		// transaction is a savepoint so postgres keeps the outer one usable.
		err := tx.Transaction(func(sp *gorm.DB) error {
			return sp.Create(&Word{Word: word}).Error
		})
		if err != nil && !isUniqueViolation(err) {
			return fmt.Errorf("insert word: %w", err)
		}
		return nil
	})
}

func (s *GormStore) AddPlayer(ctx context.Context, username, clientID, lobbyID string) (Player, error) {
	if clientID == "" {
		return Player{}, ErrMissingClient
	}
	p := Player{
		Username:   normalize(username),
		ClientID:   clientID,
		LobbyID:    lobbyOrNone(lobbyID),
		AvatarSeed: uuid.NewString(),
	}
	if err := s.db.WithContext(ctx).Create(&p).Error; err != nil {
		return Player{}, fmt.Errorf("insert player: %w", err)
	}
	return p, nil
}

func (s *GormStore) JoinLobby(ctx context.Context, lobbyID, clientID string) (Player, error) {
	if clientID == "" {
		return Player{}, ErrMissingClient
	}
	db := s.db.WithContext(ctx)

	p := Player{Username: DefaultUsername, ClientID: clientID, LobbyID: lobbyID}

	var latest Player
	err := db.Where("client_id = ?", clientID).Order("joined_at DESC, id DESC").Take(&latest).Error
	switch {
	case err == nil:
		p.Username = latest.Username
		p.AvatarSeed = latest.AvatarSeed
	case errors.Is(err, gorm.ErrRecordNotFound):
	default:
		return Player{}, fmt.Errorf("latest player: %w", err)
	}
	if p.AvatarSeed == "" {
		p.AvatarSeed = uuid.NewString()
	}

	if err := db.Create(&p).Error; err != nil {
		return Player{}, fmt.Errorf("insert player: %w", err)
	}
	return p, nil
}

func (s *GormStore) PlayersByLobby(ctx context.Context, lobbyID string) ([]Player, error) {
	var out []Player
	err := s.db.WithContext(ctx).Where("lobby_id = ?", lobbyID).Order("joined_at, id").Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("players by lobby: %w", err)
	}
	return out, nil
}

// SubmitResults stores one row per result against the newest record with that
// username in the lobby. Unknown usernames are skipped.
func (s *GormStore) SubmitResults(ctx context.Context, lobbyID string, results []PlayerResult) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, r := range results {
			var p Player
			err := tx.Where("lobby_id = ? AND username = ?", lobbyID, normalize(r.Username)).
				Order("joined_at DESC, id DESC").Take(&p).Error
			if errors.Is(err, gorm.ErrRecordNotFound) {
				s.log.Warn("result for unknown player", zap.String("lobby", lobbyID), zap.String("username", r.Username))
				continue
			}
			if err != nil {
				return fmt.Errorf("find player: %w", err)
			}

			row := PlayerMatchResult{PlayerID: p.ID, Score: r.Score, WordsSubmitted: r.WordsSubmitted, Accuracy: r.Accuracy}
			if err := tx.Omit(clause.Associations).Create(&row).Error; err != nil {
				return fmt.Errorf("insert result: %w", err)
			}
		}
		return nil
	})
}

func (s *GormStore) MatchResults(ctx context.Context, lobbyID string) (MatchResults, error) {
	players, err := s.PlayersByLobby(ctx, lobbyID)
	if err != nil {
		return MatchResults{}, err
	}
	if len(players) == 0 {
		return collectResults(nil, nil), nil
	}

	ids := make([]uint, 0, len(players))
	for _, p := range players {
		ids = append(ids, p.ID)
	}

	var rows []PlayerMatchResult
	if err := s.db.WithContext(ctx).Where("player_id IN ?", ids).Order("id").Find(&rows).Error; err != nil {
		return MatchResults{}, fmt.Errorf("match results: %w", err)
	}
	return collectResults(players, rows), nil
}

func (s *GormStore) Dictionary(ctx context.Context, prefix string) ([]string, error) {
	var words []string
	q := s.db.WithContext(ctx).Model(&Word{}).Order("word")
	if prefix = normalize(prefix); prefix != "" {
		q = q.Where("word LIKE ?", prefix+"%")
	}
	if err := q.Pluck("word", &words).Error; err != nil {
		return nil, fmt.Errorf("dictionary: %w", err)
	}
	return words, nil
}

func (s *GormStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// collectResults reports one line per client in the lobby, in join order. A
// client with several join records is reported through its newest record that
// holds a result, or zeros when none does.
func collectResults(players []Player, rows []PlayerMatchResult) MatchResults {
	byPlayer := map[uint]PlayerMatchResult{}
	for _, r := range rows {
		byPlayer[r.PlayerID] = r
	}

	pick := map[string]Player{}
	var order []string
	for _, p := range players {
		key := p.ClientID
		if key == "" {
			key = p.Username
		}
		cur, seen := pick[key]
		if !seen {
			order = append(order, key)
		}
		_, curHas := byPlayer[cur.ID]
		_, has := byPlayer[p.ID]
		if !seen || has || !curHas {
			pick[key] = p
		}
	}

	out := MatchResults{Players: []PlayerResult{}, GameDuration: MatchDuration}
	for _, key := range order {
		p := pick[key]
		r := byPlayer[p.ID]
		out.Players = append(out.Players, PlayerResult{
			Username:       p.Username,
			Score:          r.Score,
			WordsSubmitted: r.WordsSubmitted,
			Accuracy:       r.Accuracy,
		})
		out.TotalWords += r.WordsSubmitted
	}
	return out
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	// sqlite builds without a translator
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}

func lobbyOrNone(id string) string {
	if id == "" {
		return "NONE"
	}
	return id
}
