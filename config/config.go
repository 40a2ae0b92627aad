// Package config loads the synchronizer's runtime configuration from a
// TOML file via BurntSushi/toml, the same configuration library present
// in the teacher's own go.mod and used for its node/CLI config files.
package config

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// Config is the synchronizer's external configuration surface: where the
// remote node lives, how aggressively to poll it, and where the local
// database lives. The CLI/process bootstrap that produces a Config is
// out of this module's scope (spec.md §1); only the loader is provided.
type Config struct {
	Node     NodeConfig     `toml:"node"`
	Sync     SyncConfig     `toml:"sync"`
	Database DatabaseConfig `toml:"database"`
}

// NodeConfig describes how to reach the remote L2 node.
type NodeConfig struct {
	URL string `toml:"url"`
}

// SyncConfig tunes the synchronizer's control loop.
type SyncConfig struct {
	// Limit is the maximum number of blocks fetched per tick/catch-up
	// iteration.
	Limit uint64 `toml:"limit"`
	// RetryIntervalMS is how long a tick sleeps after making no
	// progress, in milliseconds.
	RetryIntervalMS uint64 `toml:"retry_interval_ms"`
}

// DatabaseConfig points at the on-disk store.
type DatabaseConfig struct {
	Path string `toml:"path"`
}

// RetryInterval returns Sync.RetryIntervalMS as a time.Duration.
func (c Config) RetryInterval() time.Duration {
	return time.Duration(c.Sync.RetryIntervalMS) * time.Millisecond
}

// Default returns the configuration spec.md §6 documents as defaults:
// limit=1, retryInterval=1000ms.
func Default() Config {
	return Config{
		Sync: SyncConfig{Limit: 1, RetryIntervalMS: 1000},
	}
}

// Load parses a TOML configuration file at path, starting from Default()
// so unset fields keep their documented defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}
