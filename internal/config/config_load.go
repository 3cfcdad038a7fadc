package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/titanous/json5"
)

// Load reads config from a JSON5 file, then overlays env vars. A missing
// file is not an error — defaults plus env apply.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}

	if err := json5.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides overlays env vars onto the config.
// Env vars take precedence over file values; secrets are env-only.
func (c *Config) applyEnvOverrides() {
	envStr := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	// Secrets
	envStr("CHORUS_REDIS_URL", &c.Store.RedisURL)
	envStr("CHORUS_POSTGRES_DSN", &c.Facts.PostgresDSN)
	envStr("CHORUS_GATEWAY_TOKEN", &c.Gateway.Token)

	// Backend selection follows provided credentials unless pinned in file.
	if c.Store.RedisURL != "" && c.Store.Backend == "memory" {
		c.Store.Backend = "redis"
	}
	if c.Facts.PostgresDSN != "" && c.Facts.Backend == "sqlite" {
		c.Facts.Backend = "postgres"
	}

	envStr("CHORUS_STORE_BACKEND", &c.Store.Backend)
	envStr("CHORUS_FACTS_BACKEND", &c.Facts.Backend)
	envStr("CHORUS_SQLITE_PATH", &c.Facts.SQLitePath)

	// Gateway
	envStr("CHORUS_HOST", &c.Gateway.Host)
	if v := os.Getenv("CHORUS_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil && port > 0 {
			c.Gateway.Port = port
		}
	}

	// Telemetry
	envStr("CHORUS_TELEMETRY_ENDPOINT", &c.Telemetry.Endpoint)
	envStr("CHORUS_TELEMETRY_PROTOCOL", &c.Telemetry.Protocol)
	envStr("CHORUS_TELEMETRY_SERVICE_NAME", &c.Telemetry.ServiceName)
	if v := os.Getenv("CHORUS_TELEMETRY_ENABLED"); v != "" {
		c.Telemetry.Enabled = v == "true" || v == "1"
	}
	if v := os.Getenv("CHORUS_TELEMETRY_INSECURE"); v != "" {
		c.Telemetry.Insecure = v == "true" || v == "1"
	}
}

// ExpandPath resolves a leading ~ against the user home directory.
func ExpandPath(path string) string {
	if len(path) > 1 && path[0] == '~' && path[1] == '/' {
		if home, err := os.UserHomeDir(); err == nil {
			return filepath.Join(home, path[2:])
		}
	}
	return path
}
