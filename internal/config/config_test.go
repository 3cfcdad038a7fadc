package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 18791 {
		t.Errorf("port = %d, want default 18791", cfg.Gateway.Port)
	}
	if cfg.Store.Backend != "memory" || cfg.Facts.Backend != "sqlite" {
		t.Errorf("backends = %s/%s, want memory/sqlite", cfg.Store.Backend, cfg.Facts.Backend)
	}
}

func TestLoad_JSON5File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{
		// comments are fine
		orchestrator: { typing_ttl: "8s", max_typing: 4 },
		gateway: { port: 9000 },
	}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Port != 9000 {
		t.Errorf("port = %d, want 9000", cfg.Gateway.Port)
	}

	opts := cfg.Orchestrator.StateOptions()
	if opts.TypingTTL != 8*time.Second {
		t.Errorf("typing TTL = %s, want 8s", opts.TypingTTL)
	}
	if opts.MaxTyping != 4 {
		t.Errorf("max typing = %d, want 4", opts.MaxTyping)
	}
	// Unset fields keep defaults.
	if opts.CooldownTTL != 5*time.Second {
		t.Errorf("cooldown TTL = %s, want default 5s", opts.CooldownTTL)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("CHORUS_GATEWAY_TOKEN", "sekret")
	t.Setenv("CHORUS_PORT", "7777")
	t.Setenv("CHORUS_REDIS_URL", "redis://localhost:6379/0")

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Token != "sekret" {
		t.Errorf("token = %q, want env value", cfg.Gateway.Token)
	}
	if cfg.Gateway.Port != 7777 {
		t.Errorf("port = %d, want 7777", cfg.Gateway.Port)
	}
	// Redis credentials flip the default backend.
	if cfg.Store.Backend != "redis" {
		t.Errorf("store backend = %s, want redis when CHORUS_REDIS_URL is set", cfg.Store.Backend)
	}
}

func TestLoad_SecretsNeverFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	body := `{ gateway: { token: "from-file" } }`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Gateway.Token != "" {
		t.Errorf("token = %q, want empty: secrets are env-only", cfg.Gateway.Token)
	}
}

func TestOrchestratorConfig_BadDurationFallsBack(t *testing.T) {
	c := OrchestratorConfig{TypingTTL: "not-a-duration"}
	if got := c.StateOptions().TypingTTL; got != 5*time.Second {
		t.Errorf("typing TTL = %s, want default on parse failure", got)
	}
}
