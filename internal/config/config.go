// Package config loads the Kaizen server configuration.
//
// Values come from DefaultConfig, then an optional YAML file, then
// KAIZEN_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/project-kaizen/kaizen/internal/knowledge"
	"gopkg.in/yaml.v3"
)

// Transports accepted by Server.Transport.
const (
	TransportStdio = "stdio"
	TransportHTTP  = "http"
)

// Config is the complete server configuration.
type Config struct {
	DataDir string       `yaml:"data_dir"`
	Server  ServerConfig `yaml:"server"`
	Search  SearchConfig `yaml:"search"`
	Log     LogConfig    `yaml:"log"`
}

// ServerConfig selects the MCP transport.
type ServerConfig struct {
	Transport string `yaml:"transport"`
	HTTPAddr  string `yaml:"http_addr"`
}

// SearchConfig holds the defaults seeded into the settings table.
type SearchConfig struct {
	MaxResults    int     `yaml:"max_results"`
	ContentWeight float64 `yaml:"content_weight"`
	ContextWeight float64 `yaml:"context_weight"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level       string `yaml:"level"`
	Development bool   `yaml:"development"`
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	k := knowledge.DefaultConfig()
	return &Config{
		DataDir: k.DataDir,
		Server: ServerConfig{
			Transport: TransportStdio,
			HTTPAddr:  "127.0.0.1:8765",
		},
		Search: SearchConfig{
			MaxResults:    k.MaxSearchResults,
			ContentWeight: k.ContentWeight,
			ContextWeight: k.ContextWeight,
		},
		Log: LogConfig{Level: "info"},
	}
}

// DefaultPath is the config file read when no path is given.
func DefaultPath() string {
	return filepath.Join(DefaultConfig().DataDir, "config.yaml")
}

// Load reads path over the defaults. A missing file is not an error.
// Environment overrides apply in both cases.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("KAIZEN_DATA_DIR"); v != "" {
		c.DataDir = v
	}
	if v := os.Getenv("KAIZEN_TRANSPORT"); v != "" {
		c.Server.Transport = v
	}
	if v := os.Getenv("KAIZEN_HTTP_ADDR"); v != "" {
		c.Server.HTTPAddr = v
	}
	if v := os.Getenv("KAIZEN_LOG_LEVEL"); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv("KAIZEN_MAX_RESULTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("KAIZEN_MAX_RESULTS: %w", err)
		}
		c.Search.MaxResults = n
	}
	return nil
}

// Validate checks values the store and server cannot recover from.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data_dir must be set")
	}
	switch c.Server.Transport {
	case TransportStdio:
	case TransportHTTP:
		if c.Server.HTTPAddr == "" {
			return fmt.Errorf("server.http_addr is required for the http transport")
		}
	default:
		return fmt.Errorf("server.transport %q must be stdio or http", c.Server.Transport)
	}
	if c.Search.MaxResults < 1 || c.Search.MaxResults > 1000 {
		return fmt.Errorf("search.max_results must be between 1 and 1000, got %d", c.Search.MaxResults)
	}
	if c.Search.ContentWeight < 0 || c.Search.ContextWeight < 0 {
		return fmt.Errorf("search weights must not be negative")
	}
	return nil
}

// Knowledge converts the configuration for knowledge.New.
func (c *Config) Knowledge() knowledge.Config {
	return knowledge.Config{
		DataDir:          c.DataDir,
		MaxSearchResults: c.Search.MaxResults,
		ContentWeight:    c.Search.ContentWeight,
		ContextWeight:    c.Search.ContextWeight,
	}
}
