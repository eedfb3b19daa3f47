package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"MonaChat/internal/config"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := config.Load(filepath.Join(t.TempDir(), "nope.toml"))
	if err != nil {
		t.Fatalf("missing config file must not fail: %v", err)
	}
	if cfg.DBPath == "" || cfg.FastTierPath == "" || cfg.LogDir == "" {
		t.Fatalf("defaults not applied: %+v", cfg)
	}
}

func TestLoadParsesTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monachat.toml")
	content := `
webhook_url = "https://hooks.example.com/chat"
db_path = "/tmp/custom.db"
debug = true
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WebhookURL != "https://hooks.example.com/chat" {
		t.Fatalf("webhook_url not parsed: %q", cfg.WebhookURL)
	}
	if cfg.DBPath != "/tmp/custom.db" || !cfg.Debug {
		t.Fatalf("unexpected config: %+v", cfg)
	}
}

func TestEnvironmentOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monachat.toml")
	if err := os.WriteFile(path, []byte(`webhook_url = "https://file.example.com"`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("MONACHAT_WEBHOOK_URL", "wss://env.example.com/chat")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WebhookURL != "wss://env.example.com/chat" {
		t.Fatalf("env override lost: %q", cfg.WebhookURL)
	}
}

func TestMalformedTOMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monachat.toml")
	if err := os.WriteFile(path, []byte(`webhook_url = [broken`), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := config.Load(path); err == nil {
		t.Fatal("expected parse error for malformed config")
	}
}
