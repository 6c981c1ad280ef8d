package config

import (
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault_IsValid(t *testing.T) {
	require.NoError(t, Default().Validate())
}

func TestDecode_OverridesOnlyPresentFields(t *testing.T) {
	cfg := Default()
	err := Decode(strings.NewReader(`
endpoint: wss://events.example.com/api/v2/events
redial_interval: 3s
chunk:
  max_size: 50
  max_time: 250ms
`), &cfg)
	require.NoError(t, err)

	assert.Equal(t, "wss://events.example.com/api/v2/events", cfg.Endpoint)
	assert.Equal(t, 3*time.Second, cfg.RedialInterval)
	assert.Equal(t, 500*time.Millisecond, cfg.OverloadRetryDelay)
	assert.Equal(t, Chunk{MaxSize: 50, MaxTime: 250 * time.Millisecond}, cfg.Chunk)
	assert.Equal(t, "com.example.evsync", cfg.AppID)
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	cfg := Default()
	err := Decode(strings.NewReader("endpont: ws://typo\n"), &cfg)
	assert.Error(t, err)
}

func TestDecode_EmptyDocument(t *testing.T) {
	cfg := Default()
	require.NoError(t, Decode(strings.NewReader(""), &cfg))
	assert.Equal(t, Default(), cfg)
}

func TestApplyEnv(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, map[string]string{
		"EVSYNC_ENDPOINT":        "ws://10.0.0.1:4454/api/v2/events",
		"EVSYNC_SERVER_ASSISTED": "true",
		"EVSYNC_CHUNK_MAX_SIZE":  "7",
		"EVSYNC_REDIAL_INTERVAL": "2s",
		"ENDPOINT":               "ws://ignored",
	})
	require.NoError(t, err)

	assert.Equal(t, "ws://10.0.0.1:4454/api/v2/events", cfg.Endpoint)
	assert.True(t, cfg.ServerAssisted)
	assert.Equal(t, 7, cfg.Chunk.MaxSize)
	assert.Equal(t, 2*time.Second, cfg.RedialInterval)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestApplyEnv_BadValue(t *testing.T) {
	cfg := Default()
	err := ApplyEnv(&cfg, map[string]string{"EVSYNC_CHUNK_MAX_SIZE": "many"})
	assert.Error(t, err)
}

func TestValidate_Violations(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"http endpoint", func(c *Config) { c.Endpoint = "http://localhost:4454" }},
		{"empty app id", func(c *Config) { c.AppID = "" }},
		{"zero redial interval", func(c *Config) { c.RedialInterval = 0 }},
		{"negative chunk size", func(c *Config) { c.Chunk.MaxSize = -1 }},
		{"unknown log level", func(c *Config) { c.LogLevel = "chatty" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(&cfg)

			err := cfg.Validate()
			require.Error(t, err)
			var verr *ValidationError
			assert.True(t, errors.As(err, &verr), "expected ValidationError, got %T", err)
		})
	}
}

func TestLoad_FileThenEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "evsync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("app_id: com.example.file\nlog_level: debug\n"), 0o644))
	t.Setenv("EVSYNC_APP_ID", "com.example.env")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "com.example.env", cfg.AppID)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestLevel_FallsBackToInfo(t *testing.T) {
	cfg := Default()
	cfg.LogLevel = "warn"
	assert.Equal(t, slog.LevelWarn, cfg.Level())

	cfg.LogLevel = "nonsense"
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}
