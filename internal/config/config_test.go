package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: https://api.example.com/v1\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}

	if cfg.Chat.MaxTokens != 256 {
		t.Errorf("MaxTokens = %d, want 256", cfg.Chat.MaxTokens)
	}
	if cfg.Chat.PollInterval != 2*time.Second {
		t.Errorf("PollInterval = %v, want 2s", cfg.Chat.PollInterval)
	}
	if cfg.Chat.PollTimeout != 2*time.Minute {
		t.Errorf("PollTimeout = %v, want 2m", cfg.Chat.PollTimeout)
	}
	if cfg.Storage.Type != "file" {
		t.Errorf("Storage.Type = %q, want file", cfg.Storage.Type)
	}
}

func TestLoadConfigTrimsTrailingSlash(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: https://api.example.com/v1/\n")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig error: %v", err)
	}
	if cfg.API.BaseURL != "https://api.example.com/v1" {
		t.Errorf("BaseURL = %q, want trailing slash trimmed", cfg.API.BaseURL)
	}
}

func TestLoadConfigRequiresBaseURL(t *testing.T) {
	path := writeConfig(t, "chat:\n  max_tokens: 128\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error without api.base_url")
	}
}

func TestLoadConfigRejectsUnknownStorage(t *testing.T) {
	path := writeConfig(t, "api:\n  base_url: https://api.example.com\nstorage:\n  type: cassandra\n")

	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected error for unsupported storage type")
	}
}
