package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadDefaultsWithNoFileOrEnv(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WS.Port != 8080 {
		t.Fatalf("expected default ws port 8080, got %d", cfg.WS.Port)
	}
	if cfg.STUN.Port != 3478 {
		t.Fatalf("expected default stun port 3478, got %d", cfg.STUN.Port)
	}
	if cfg.TURN.TTL.Hours() != 24 {
		t.Fatalf("expected default turn ttl 24h, got %s", cfg.TURN.TTL)
	}
}

func TestLoadRejectsTurnServerWithoutSecret(t *testing.T) {
	t.Setenv("TURN_SERVER", "turn.example.com")
	t.Setenv("TURN_PASSWORD", "")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for turn.server without turn.password")
	}
}

func TestLoadRejectsSIPEnabledWithoutDomain(t *testing.T) {
	t.Setenv("SIP_ENABLED", "true")
	t.Setenv("SIP_DOMAIN", "")

	if _, err := Load(""); err == nil {
		t.Fatal("expected validation error for sip.enabled without sip.domain")
	}
}

func TestEnvOverridesWinOverFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("ws:\n  port: 7000\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv("WS_PORT", "9999")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.WS.Port != 9999 {
		t.Fatalf("expected env override to win, got %d", cfg.WS.Port)
	}
}
