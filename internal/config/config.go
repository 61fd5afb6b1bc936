// Package config holds all ContextCache configuration. Values come from a
// YAML file, then environment variables override individual keys. Env is
// read exactly once at load time; hot paths never touch the environment.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds all ContextCache configuration.
type Config struct {
	// Core settings
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// HTTP server
	Server ServerConfig `yaml:"server"`

	// SQLite store
	Database DatabaseConfig `yaml:"database"`

	// Embedding engine
	Embedding EmbeddingConfig `yaml:"embedding"`

	// Space-filling-curve prefilter index
	Hilbert HilbertConfig `yaml:"hilbert"`

	// Hybrid recall
	Recall RecallConfig `yaml:"recall"`

	// CAG cache
	Cache CacheConfig `yaml:"cache"`

	// Rate limits and daily quotas
	Limits LimitsConfig `yaml:"limits"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`
}

// DatabaseConfig configures the SQLite store.
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:      "contextcache",
		Version:   "1.0.0",
		Server:    DefaultServerConfig(),
		Database:  DatabaseConfig{Path: "data/contextcache.db"},
		Embedding: DefaultEmbeddingConfig(),
		Hilbert:   DefaultHilbertConfig(),
		Recall:    DefaultRecallConfig(),
		Cache:     DefaultCacheConfig(),
		Limits:    DefaultLimitsConfig(),
		Logging:   LoggingConfig{Level: "info", JSON: true},
	}
}

// Load reads configuration from path (optional), applies env overrides,
// and validates the result. An empty path loads defaults plus env.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks cross-field constraints that would otherwise surface as
// runtime misbehavior deep in the recall path.
func (c *Config) Validate() error {
	if c.Embedding.Dims <= 0 {
		return fmt.Errorf("embedding.dims must be positive, got %d", c.Embedding.Dims)
	}
	if err := c.Hilbert.Validate(); err != nil {
		return err
	}
	if err := c.Recall.Validate(); err != nil {
		return err
	}
	if err := c.Cache.Validate(); err != nil {
		return err
	}
	return nil
}
