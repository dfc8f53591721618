package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/DoyleJ11/echowords/internal/engine"
)

const EnvPrefix = "ECHOWORDS"

type Server struct {
	Addr           string
	DSN            string
	LogLevel       string
	Dev            bool
	LobbyIdle      time.Duration
	ReaperInterval time.Duration
	Origins        []string
	PublicURL      string
}

type Player struct {
	ServerURL  string
	ClientID   string
	Name       string
	Lobby      string
	Difficulty string
	Bot        bool
	BotDelay   time.Duration
	LogLevel   string
}

func (c *Server) Validate() error {
	if c.Addr == "" {
		return errors.New("--addr must not be empty")
	}
	if c.DSN == "" {
		return errors.New("--dsn must not be empty (use \"memory\" for no database)")
	}
	if c.LobbyIdle <= 0 || c.ReaperInterval <= 0 {
		return fmt.Errorf("--lobby-idle and --reaper-interval must be positive: %s, %s", c.LobbyIdle, c.ReaperInterval)
	}
	return nil
}

func (c *Player) Validate() error {
	u, err := url.Parse(c.ServerURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid --server %q", c.ServerURL)
	}
	if strings.TrimSpace(c.Name) == "" {
		return errors.New("--name must not be empty")
	}
	c.Difficulty = string(engine.ParseDifficulty(c.Difficulty))
	return nil
}

func BindServer(fs *pflag.FlagSet, c *Server) {
	fs.StringVarP(&c.Addr, "addr", "a", ":8080", "address to listen on (env: ECHOWORDS_ADDR)")
	fs.StringVar(&c.DSN, "dsn", "sqlite:echowords.db", "postgres://..., sqlite:<path> or memory (env: ECHOWORDS_DSN)")
	fs.StringVar(&c.LogLevel, "log-level", "info", "debug, info, warn or error (env: ECHOWORDS_LOG_LEVEL)")
	fs.BoolVar(&c.Dev, "dev", false, "human readable logs (env: ECHOWORDS_DEV)")
	fs.DurationVar(&c.LobbyIdle, "lobby-idle", 30*time.Minute, "reclaim lobbies idle this long (env: ECHOWORDS_LOBBY_IDLE)")
	fs.DurationVar(&c.ReaperInterval, "reaper-interval", time.Minute, "how often to look for idle lobbies (env: ECHOWORDS_REAPER_INTERVAL)")
	fs.StringSliceVar(&c.Origins, "origins", nil, "extra websocket origin patterns, e.g. localhost:* (env: ECHOWORDS_ORIGINS)")
	fs.StringVar(&c.PublicURL, "public-url", "", "game URL used in invite QR codes (env: ECHOWORDS_PUBLIC_URL)")
}

func BindPlayer(fs *pflag.FlagSet, c *Player) {
	fs.StringVarP(&c.ServerURL, "server", "s", "http://localhost:8080", "relay server (env: ECHOWORDS_SERVER)")
	fs.StringVar(&c.ClientID, "client-id", "", "stable identity across runs; random when empty (env: ECHOWORDS_CLIENT_ID)")
	fs.StringVarP(&c.Name, "name", "n", "", "display name (env: ECHOWORDS_NAME)")
	fs.StringVarP(&c.Lobby, "lobby", "l", "", "lobby code to join; empty creates one (env: ECHOWORDS_LOBBY)")
	fs.StringVarP(&c.Difficulty, "difficulty", "d", string(engine.DifficultyMedium), "easy, medium, hard or extreme (env: ECHOWORDS_DIFFICULTY)")
	fs.BoolVar(&c.Bot, "bot", false, "play automatically from the server dictionary (env: ECHOWORDS_BOT)")
	fs.DurationVar(&c.BotDelay, "bot-delay", 400*time.Millisecond, "pause between bot keystrokes (env: ECHOWORDS_BOT_DELAY)")
	fs.StringVar(&c.LogLevel, "log-level", "warn", "debug, info, warn or error (env: ECHOWORDS_LOG_LEVEL)")
}

// ApplyEnv fills every flag the user did not set from ECHOWORDS_* variables.
// A .env file in the working directory is read first; real environment
// variables win over it.
func ApplyEnv(fs *pflag.FlagSet) error {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if f.Changed || !v.IsSet(f.Name) {
			return
		}
		val := v.GetString(f.Name)
		if _, ok := f.Value.(pflag.SliceValue); ok {
			val = strings.Join(v.GetStringSlice(f.Name), ",")
		}
		if e := fs.Set(f.Name, val); e != nil && err == nil {
			err = fmt.Errorf("env %s_%s: %w", EnvPrefix, strings.ToUpper(strings.ReplaceAll(f.Name, "-", "_")), e)
		}
	})
	return err
}

// NewLogger builds the process logger. dev switches to the console encoder.
func NewLogger(level string, dev bool) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}

	cfg := zap.NewProductionConfig()
	if dev {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	return cfg.Build()
}
