package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"dario.cat/mergo"
	"gopkg.in/yaml.v3"
)

// Loading and validation errors.
var (
	ErrInvalidYAML  = errors.New("invalid YAML syntax")
	ErrInvalidValue = errors.New("invalid field value")
)

// Initialize loads, merges, and validates the configuration. path names
// the YAML file; a missing file yields pure defaults, which is the normal
// development setup.
func Initialize(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		user, err := loadYAML(path)
		if err != nil {
			return nil, err
		}
		if user != nil {
			if err := mergo.Merge(cfg, user, mergo.WithOverride); err != nil {
				return nil, fmt.Errorf("merge config: %w", err)
			}
		}
	}

	if err := cfg.loadProtocolFiles(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	slog.Info("Configuration initialized",
		"port", cfg.Server.Port,
		"sweep_interval", cfg.Retention.SweepInterval,
		"workspace_root", cfg.Watchtower.WorkspaceRoot)
	return cfg, nil
}

// loadYAML reads one config file, expanding ${ENV_VAR} references before
// parsing. A missing file is not an error.
func loadYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			slog.Info("Config file not found, using defaults", "path", path)
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	data = ExpandEnv(data)

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidYAML, path, err)
	}
	return &cfg, nil
}

// loadProtocolFiles resolves file-based protocol texts into the inline
// fields. Inline text wins when both are set.
func (c *Config) loadProtocolFiles() error {
	if c.Protocol.Text == "" && c.Protocol.Path != "" {
		data, err := os.ReadFile(c.Protocol.Path)
		if err != nil {
			return fmt.Errorf("read protocol file: %w", err)
		}
		c.Protocol.Text = string(data)
	}
	if c.Protocol.CompressedText == "" && c.Protocol.CompressedPath != "" {
		data, err := os.ReadFile(c.Protocol.CompressedPath)
		if err != nil {
			return fmt.Errorf("read compressed protocol file: %w", err)
		}
		c.Protocol.CompressedText = string(data)
	}
	return nil
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server.port %d", ErrInvalidValue, c.Server.Port)
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("%w: server.shutdown_timeout must be positive", ErrInvalidValue)
	}
	if c.Retention.SweepInterval <= 0 {
		return fmt.Errorf("%w: retention.sweep_interval must be positive", ErrInvalidValue)
	}
	if c.Watchtower.ForegroundTimeout <= 0 || c.Watchtower.BackgroundTimeout <= 0 {
		return fmt.Errorf("%w: watchtower timeouts must be positive", ErrInvalidValue)
	}
	if c.RateLimit.RequestsPerMinute <= 0 || c.RateLimit.Burst <= 0 {
		return fmt.Errorf("%w: rate_limit values must be positive", ErrInvalidValue)
	}
	return nil
}
