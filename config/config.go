package config

import (
	"fmt"
	"time"
)

// Config is the full docroomd configuration.
type Config struct {
	// Addr is the listen address for the HTTP + websocket server.
	Addr string `json:"addr" mapstructure:"addr"`

	// SnapshotStoreURL is a gocloud docstore URL for the snapshot
	// collection, e.g. "mem://snapshots/id".
	SnapshotStoreURL string `json:"snapshot_store_url" mapstructure:"snapshot_store_url"`

	// MetaDBPath is the sqlite file holding users and document metadata.
	MetaDBPath string `json:"meta_db_path" mapstructure:"meta_db_path"`

	Auth    AuthConfig    `json:"auth" mapstructure:"auth"`
	Session SessionConfig `json:"session" mapstructure:"session"`
	Limits  LimitsConfig  `json:"limits" mapstructure:"limits"`
	Logging LoggingConfig `json:"logging" mapstructure:"logging"`
}

// AuthConfig holds token issuance settings.
type AuthConfig struct {
	Secret          string `json:"secret" mapstructure:"secret"`
	TokenTTLMinutes int    `json:"token_ttl_minutes" mapstructure:"token_ttl_minutes"`
}

// SessionConfig controls in-memory session residency.
type SessionConfig struct {
	// IdleTTLMinutes is how long an unlocked, memberless session stays
	// resident before the janitor flushes and drops it.
	IdleTTLMinutes int `json:"idle_ttl_minutes" mapstructure:"idle_ttl_minutes"`

	JanitorIntervalSeconds int `json:"janitor_interval_seconds" mapstructure:"janitor_interval_seconds"`
}

// LimitsConfig bounds per-connection inbound message rates.
type LimitsConfig struct {
	MessagesPerSecond float64 `json:"messages_per_second" mapstructure:"messages_per_second"`
	Burst             int     `json:"burst" mapstructure:"burst"`
}

// LoggingConfig configures zerolog output.
type LoggingConfig struct {
	Level  string `json:"level" mapstructure:"level"`
	Pretty bool   `json:"pretty" mapstructure:"pretty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Addr:             ":4000",
		SnapshotStoreURL: "mem://snapshots/id",
		MetaDBPath:       "docroom.db",
		Auth: AuthConfig{
			TokenTTLMinutes: 30,
		},
		Session: SessionConfig{
			IdleTTLMinutes:         30,
			JanitorIntervalSeconds: 60,
		},
		Limits: LimitsConfig{
			MessagesPerSecond: 50,
			Burst:             100,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Pretty: false,
		},
	}
}

// Validate checks the fields the daemon cannot run without.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("addr is required")
	}
	if c.SnapshotStoreURL == "" {
		return fmt.Errorf("snapshot_store_url is required")
	}
	if c.MetaDBPath == "" {
		return fmt.Errorf("meta_db_path is required")
	}
	if c.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required")
	}
	if c.Auth.TokenTTLMinutes <= 0 {
		return fmt.Errorf("auth.token_ttl_minutes must be positive")
	}
	return nil
}

// IdleTTL returns the session idle TTL as a duration.
func (c *Config) IdleTTL() time.Duration {
	return time.Duration(c.Session.IdleTTLMinutes) * time.Minute
}

// JanitorInterval returns the eviction sweep interval as a duration.
func (c *Config) JanitorInterval() time.Duration {
	return time.Duration(c.Session.JanitorIntervalSeconds) * time.Second
}

// TokenTTL returns the access token lifetime as a duration.
func (c *Config) TokenTTL() time.Duration {
	return time.Duration(c.Auth.TokenTTLMinutes) * time.Minute
}
