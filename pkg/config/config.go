// Package config loads and validates the service configuration from
// nyanclaw.yaml plus environment variables, merging user settings over
// built-in defaults.
package config

import (
	"time"
)

// Config is the resolved, validated service configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Providers  ProvidersConfig  `yaml:"providers"`
	Search     SearchConfig     `yaml:"search"`
	Protocol   ProtocolConfig   `yaml:"protocol"`
	Retention  RetentionConfig  `yaml:"retention"`
	Watchtower WatchtowerConfig `yaml:"watchtower"`
	RateLimit  RateLimitConfig  `yaml:"rate_limit"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	AllowedOrigins  []string      `yaml:"allowed_origins"`
	// TenantSalt feeds the tenant-key hash; rotate to invalidate all
	// existing tenant windows at once.
	TenantSalt string `yaml:"tenant_salt"`
}

// ProvidersConfig tunes the LLM provider chain. API keys come from the
// environment, never from YAML.
type ProvidersConfig struct {
	// Order overrides the discovered chain order when non-empty. Entries
	// must name known providers.
	Order []string `yaml:"order"`
	// OllamaURL points at a local model server; empty disables the probe.
	OllamaURL string `yaml:"ollama_url"`
}

// SearchConfig holds the external search settings. The Brave key env var
// is named here so deployments can rotate keys without config changes.
type SearchConfig struct {
	BraveKeyEnv string `yaml:"brave_key_env"`
	// DailyCapacity caps Brave calls per client per day.
	DailyCapacity int `yaml:"daily_capacity"`
}

// ProtocolConfig points at the persona protocol texts injected into the
// system context.
type ProtocolConfig struct {
	// Path and CompressedPath are files loaded at startup; when empty the
	// inline Text fields are used directly.
	Path           string `yaml:"path"`
	CompressedPath string `yaml:"compressed_path"`
	Text           string `yaml:"text"`
	CompressedText string `yaml:"compressed_text"`
}

// RetentionConfig tunes the periodic sweeps over the in-memory stores.
type RetentionConfig struct {
	SweepInterval time.Duration `yaml:"sweep_interval"`
}

// WatchtowerConfig tunes sandboxed command execution.
type WatchtowerConfig struct {
	WorkspaceRoot     string        `yaml:"workspace_root"`
	ForegroundTimeout time.Duration `yaml:"foreground_timeout"`
	BackgroundTimeout time.Duration `yaml:"background_timeout"`
}

// RateLimitConfig tunes per-client request limiting on the API surface.
type RateLimitConfig struct {
	RequestsPerMinute int `yaml:"requests_per_minute"`
	Burst             int `yaml:"burst"`
}

// DefaultConfig returns the built-in defaults; user YAML merges on top.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8000,
			ShutdownTimeout: 10 * time.Second,
			AllowedOrigins:  []string{"*"},
			TenantSalt:      "nyanclaw",
		},
		Search: SearchConfig{
			BraveKeyEnv:   "BRAVE_API_KEY",
			DailyCapacity: 2000,
		},
		Retention: RetentionConfig{
			SweepInterval: time.Minute,
		},
		Watchtower: WatchtowerConfig{
			WorkspaceRoot:     "/tmp/nyanclaw",
			ForegroundTimeout: 30 * time.Second,
			BackgroundTimeout: 120 * time.Second,
		},
		RateLimit: RateLimitConfig{
			RequestsPerMinute: 60,
			Burst:             10,
		},
	}
}
