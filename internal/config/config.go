package config

import (
	"time"

	"github.com/nextlevelbuilder/chorus/internal/disposition"
	"github.com/nextlevelbuilder/chorus/internal/orchestrator"
	"github.com/nextlevelbuilder/chorus/internal/state"
)

// Config is the root configuration for the chorus orchestrator.
type Config struct {
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Store        StoreConfig        `json:"store"`
	Facts        FactsConfig        `json:"facts"`
	Gateway      GatewayConfig      `json:"gateway"`
	Telemetry    TelemetryConfig    `json:"telemetry,omitempty"`
}

// OrchestratorConfig holds the state machine, gate, scorer, and selector
// tunables. Durations are Go duration strings ("5s", "10m").
type OrchestratorConfig struct {
	TypingTTL     string  `json:"typing_ttl,omitempty"`      // default "5s"
	CooldownTTL   string  `json:"cooldown_ttl,omitempty"`    // default "5s"
	RecordTTL     string  `json:"record_ttl,omitempty"`      // default "60s"
	MaxTyping     int     `json:"max_typing,omitempty"`      // default 2
	MaxResponders int     `json:"max_responders,omitempty"`  // default 3
	NearTieMargin float64 `json:"near_tie_margin,omitempty"` // default 5
	RecentWindow  string  `json:"recent_window,omitempty"`   // default "10m"
	LookupTimeout string  `json:"lookup_timeout,omitempty"`  // default "2s"
	RespondBudget string  `json:"respond_budget,omitempty"`  // default "60s"
}

// StoreConfig selects the expiring-store backend.
// RedisURL is NEVER read from the config file (secret) — env CHORUS_REDIS_URL only.
type StoreConfig struct {
	Backend  string `json:"backend,omitempty"` // "redis" (with memory failover) or "memory"
	RedisURL string `json:"-"`                 // from env CHORUS_REDIS_URL only
}

// FactsConfig selects the external-facts backend.
// PostgresDSN is env-only (CHORUS_POSTGRES_DSN), like all secrets.
type FactsConfig struct {
	Backend     string `json:"backend,omitempty"`     // "postgres" or "sqlite"
	SQLitePath  string `json:"sqlite_path,omitempty"` // default "~/.chorus/facts.db"
	PostgresDSN string `json:"-"`                     // from env CHORUS_POSTGRES_DSN only
}

// GatewayConfig configures the HTTP/WebSocket surface.
type GatewayConfig struct {
	Host           string   `json:"host,omitempty"`
	Port           int      `json:"port,omitempty"`
	Token          string   `json:"-"` // from env CHORUS_GATEWAY_TOKEN only
	RateLimitRPM   int      `json:"rate_limit_rpm,omitempty"` // 0 = disabled
	AllowedOrigins []string `json:"allowed_origins,omitempty"`
}

// TelemetryConfig configures OTLP trace export. Disabled by default.
type TelemetryConfig struct {
	Enabled     bool              `json:"enabled,omitempty"`
	Endpoint    string            `json:"endpoint,omitempty"`     // e.g. "localhost:4317"
	Protocol    string            `json:"protocol,omitempty"`     // "grpc" (default) or "http"
	Insecure    bool              `json:"insecure,omitempty"`     // skip TLS (local dev)
	ServiceName string            `json:"service_name,omitempty"` // default "chorus"
	Headers     map[string]string `json:"headers,omitempty"`
}

// Default returns a Config with sensible defaults.
func Default() *Config {
	return &Config{
		Orchestrator: OrchestratorConfig{
			TypingTTL:     "5s",
			CooldownTTL:   "5s",
			RecordTTL:     "60s",
			MaxTyping:     2,
			MaxResponders: 3,
			NearTieMargin: 5,
			RecentWindow:  "10m",
			LookupTimeout: "2s",
		},
		Store: StoreConfig{Backend: "memory"},
		Facts: FactsConfig{
			Backend:    "sqlite",
			SQLitePath: "~/.chorus/facts.db",
		},
		Gateway: GatewayConfig{
			Host:         "0.0.0.0",
			Port:         18791,
			RateLimitRPM: 60,
		},
	}
}

func parseDur(s string, def time.Duration) time.Duration {
	if s == "" {
		return def
	}
	if d, err := time.ParseDuration(s); err == nil && d > 0 {
		return d
	}
	return def
}

// StateOptions converts the config into state.Options with defaults applied.
func (c *OrchestratorConfig) StateOptions() state.Options {
	d := state.DefaultOptions()
	return state.Options{
		TypingTTL:   parseDur(c.TypingTTL, d.TypingTTL),
		CooldownTTL: parseDur(c.CooldownTTL, d.CooldownTTL),
		RecordTTL:   parseDur(c.RecordTTL, d.RecordTTL),
		MaxTyping:   c.MaxTyping,
	}
}

// ScorerOptions converts the config into disposition.ScorerOptions.
func (c *OrchestratorConfig) ScorerOptions() disposition.ScorerOptions {
	return disposition.ScorerOptions{
		RecentWindow:  parseDur(c.RecentWindow, 10*time.Minute),
		LookupTimeout: parseDur(c.LookupTimeout, 2*time.Second),
	}
}

// SelectorOptions converts the config into disposition.SelectorOptions.
func (c *OrchestratorConfig) SelectorOptions() disposition.SelectorOptions {
	return disposition.SelectorOptions{
		MaxResponders: c.MaxResponders,
		NearTieMargin: c.NearTieMargin,
	}
}

// OrchestratorOptions converts the config into orchestrator.Options.
func (c *OrchestratorConfig) OrchestratorOptions() orchestrator.Options {
	return orchestrator.Options{
		RespondBudget: parseDur(c.RespondBudget, 60*time.Second),
	}
}
