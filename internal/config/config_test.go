package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	raw := `
server:
  port: "9090"
session:
  duration: 15m
  disallowedKeys: ["ctrl+c", "f12"]
submit:
  mode: http
  baseUrl: http://results.local
  maxAttempts: 4
  retryDelay: 2s
log:
  level: debug
`
	if err := os.WriteFile(path, []byte(raw), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != "9090" || cfg.Submit.Mode != "http" || cfg.Submit.MaxAttempts != 4 {
		t.Fatalf("unexpected config %+v", cfg)
	}
	if len(cfg.Session.DisallowedKeys) != 2 || cfg.Log.Level != "debug" {
		t.Fatalf("unexpected session/log config %+v", cfg)
	}
	if d := TTLDuration(cfg.Session.Duration, time.Minute); d != 15*time.Minute {
		t.Fatalf("unexpected duration %v", d)
	}
}

func TestTTLDurationFallback(t *testing.T) {
	if d := TTLDuration("", 5*time.Second); d != 5*time.Second {
		t.Fatalf("expected fallback for empty, got %v", d)
	}
	if d := TTLDuration("soon", 5*time.Second); d != 5*time.Second {
		t.Fatalf("expected fallback for garbage, got %v", d)
	}
}
