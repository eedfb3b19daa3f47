// Package config loads application configuration from a TOML file with
// environment overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	// WebhookURL is the remote endpoint; ws:// and wss:// select the
	// websocket transport, http(s):// the webhook.
	WebhookURL string `toml:"webhook_url"`

	// DBPath is the SQLite file backing the transactional tier.
	DBPath string `toml:"db_path"`

	// FastTierPath is the file holding the session identity slot.
	FastTierPath string `toml:"fast_tier_path"`

	// LogDir receives application, trace and metric logs.
	LogDir string `toml:"log_dir"`

	Debug bool `toml:"debug"`
}

// Default returns the configuration used when no file or environment
// says otherwise. Paths live under a per-user data directory.
func Default() Config {
	dataDir := "."
	if dir, err := os.UserConfigDir(); err == nil {
		dataDir = filepath.Join(dir, "monachat")
	}
	return Config{
		DBPath:       filepath.Join(dataDir, "monachat.db"),
		FastTierPath: filepath.Join(dataDir, "session_id"),
		LogDir:       "logs",
	}
}

// Load reads the optional TOML file at path and applies environment
// overrides. A missing file is not an error; a malformed one is.
func Load(path string) (Config, error) {
	// Best effort: a .env in the working directory seeds the process
	// environment, matching local development setups.
	_ = godotenv.Load()

	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("failed to parse config %s: %w", path, err)
			}
		}
	}

	if v := os.Getenv("MONACHAT_WEBHOOK_URL"); v != "" {
		cfg.WebhookURL = v
	}
	if v := os.Getenv("MONACHAT_DB_PATH"); v != "" {
		cfg.DBPath = v
	}
	if v := os.Getenv("MONACHAT_FAST_TIER_PATH"); v != "" {
		cfg.FastTierPath = v
	}
	if v := os.Getenv("MONACHAT_LOG_DIR"); v != "" {
		cfg.LogDir = v
	}
	if os.Getenv("MONACHAT_DEBUG") == "1" {
		cfg.Debug = true
	}
	return cfg, nil
}
