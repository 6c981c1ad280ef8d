// Package config loads client configuration from a YAML file overlaid by
// EVSYNC_* environment variables, and validates it against an embedded
// CUE schema.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable.
const EnvPrefix = "EVSYNC_"

// Config is the client configuration.
type Config struct {
	// Endpoint is the websocket URL of the event service.
	Endpoint string `yaml:"endpoint" json:"endpoint" env:"ENDPOINT"`

	// Token is sent as bearer authorization when set.
	Token string `yaml:"token" json:"token,omitempty" env:"TOKEN"`

	// AppID is stamped on published events.
	AppID string `yaml:"app_id" json:"app_id" env:"APP_ID"`

	RedialInterval     time.Duration `yaml:"redial_interval" json:"redial_interval" env:"REDIAL_INTERVAL"`
	OverloadRetryDelay time.Duration `yaml:"overload_retry_delay" json:"overload_retry_delay" env:"OVERLOAD_RETRY_DELAY"`

	// SnapshotDB is the SQLite path of the snapshot cache. Empty disables
	// snapshots.
	SnapshotDB string `yaml:"snapshot_db" json:"snapshot_db,omitempty" env:"SNAPSHOT_DB"`

	// ServerAssisted prefers store-side monotonic subscriptions.
	ServerAssisted bool `yaml:"server_assisted" json:"server_assisted" env:"SERVER_ASSISTED"`

	Chunk Chunk `yaml:"chunk" json:"chunk" envPrefix:"CHUNK_"`

	LogLevel    string `yaml:"log_level" json:"log_level" env:"LOG_LEVEL"`
	MetricsAddr string `yaml:"metrics_addr" json:"metrics_addr,omitempty" env:"METRICS_ADDR"`
}

// Chunk bounds the chunks of buffered subscriptions.
type Chunk struct {
	MaxSize int           `yaml:"max_size" json:"max_size" env:"MAX_SIZE"`
	MaxTime time.Duration `yaml:"max_time" json:"max_time" env:"MAX_TIME"`
}

// Default returns the configuration used when nothing is set.
func Default() Config {
	return Config{
		Endpoint:           "ws://localhost:4454/api/v2/events",
		AppID:              "com.example.evsync",
		RedialInterval:     time.Second,
		OverloadRetryDelay: 500 * time.Millisecond,
		Chunk:              Chunk{MaxSize: 1000},
		LogLevel:           "info",
	}
}

// Load reads path (optional), overlays the process environment and
// validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
		if err := Decode(bytes.NewReader(data), &cfg); err != nil {
			return Config{}, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := ApplyEnv(&cfg, nil); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Decode reads YAML into cfg. Fields absent from the document keep their
// current values; unknown fields are rejected.
func Decode(r io.Reader, cfg *Config) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("decode config: %w", err)
	}
	return nil
}

// ApplyEnv overlays EVSYNC_* variables. A nil environ reads the process
// environment.
func ApplyEnv(cfg *Config, environ map[string]string) error {
	opts := env.Options{Prefix: EnvPrefix}
	if environ != nil {
		opts.Environment = environ
	}
	if err := env.ParseWithOptions(cfg, opts); err != nil {
		return fmt.Errorf("parse env: %w", err)
	}
	return nil
}

// Level returns the slog level for LogLevel.
func (c Config) Level() slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return slog.LevelInfo
	}
	return l
}
