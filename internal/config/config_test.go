package config

import (
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestApplyEnv_FillsUnsetFlags(t *testing.T) {
	t.Setenv("ECHOWORDS_DSN", "memory")
	t.Setenv("ECHOWORDS_LOBBY_IDLE", "5m")
	t.Setenv("ECHOWORDS_ORIGINS", "localhost:*,example.com")
	t.Setenv("ECHOWORDS_ADDR", ":9999")

	var c Server
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	BindServer(fs, &c)
	require.NoError(t, fs.Parse([]string{"--addr", ":7000"}))
	require.NoError(t, ApplyEnv(fs))

	assert.Equal(t, ":7000", c.Addr, "flag beats env")
	assert.Equal(t, "memory", c.DSN)
	assert.Equal(t, 5*time.Minute, c.LobbyIdle)
	assert.Equal(t, []string{"localhost:*", "example.com"}, c.Origins)
	assert.Equal(t, time.Minute, c.ReaperInterval)
	assert.NoError(t, c.Validate())
}

func TestApplyEnv_BadValue(t *testing.T) {
	t.Setenv("ECHOWORDS_LOBBY_IDLE", "soon")

	var c Server
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	BindServer(fs, &c)
	require.NoError(t, fs.Parse(nil))
	assert.ErrorContains(t, ApplyEnv(fs), "ECHOWORDS_LOBBY_IDLE")
}

func TestPlayer_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Player
		wantErr bool
		wantDif string
	}{
		{"ok", Player{ServerURL: "http://localhost:8080", Name: "ann", Difficulty: "HARD"}, false, "hard"},
		{"unknown difficulty", Player{ServerURL: "https://x.io", Name: "ann", Difficulty: "nightmare"}, false, "medium"},
		{"no name", Player{ServerURL: "http://localhost:8080"}, true, ""},
		{"ws scheme", Player{ServerURL: "ws://localhost:8080", Name: "ann"}, true, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantDif, tt.cfg.Difficulty)
		})
	}
}

func TestNewLogger(t *testing.T) {
	log, err := NewLogger("debug", true)
	require.NoError(t, err)
	assert.NotNil(t, log)

	_, err = NewLogger("loud", false)
	assert.Error(t, err)
}
