// Package main provides the Roadwatch server CLI.
package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the server configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Readings   ReadingsConfig   `yaml:"readings"`
	Topology   TopologyConfig   `yaml:"topology"`
	Detection  DetectionConfig  `yaml:"detection"`
	Enrichment EnrichmentConfig `yaml:"enrichment"`
	Redis      RedisConfig      `yaml:"redis"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Verbose    bool             `yaml:"-"` // set via CLI flag
}

// ServerConfig contains HTTP API settings.
type ServerConfig struct {
	Address        string `yaml:"address"`           // HTTP listen address (default: :8080)
	QueryTimeout   string `yaml:"query_timeout"`     // Timeout for storage-backed calls (default: 10s)
	RateLimitPerIP int    `yaml:"rate_limit_per_ip"` // Ingestion requests per minute per IP
}

// DatabaseConfig contains primary database settings.
type DatabaseConfig struct {
	Path string `yaml:"path"` // SQLite database path
}

// ReadingsConfig selects the reading storage backend.
type ReadingsConfig struct {
	// Backend is "sqlite" (default) or "clickhouse".
	Backend string `yaml:"backend"`
	// Retention is how long SQLite keeps readings before the sweep
	// deletes them (default: 720h). ClickHouse uses its table TTL
	// instead.
	Retention  string           `yaml:"retention"`
	ClickHouse ClickHouseConfig `yaml:"clickhouse"`
}

// ClickHouseConfig contains ClickHouse connection settings.
type ClickHouseConfig struct {
	Addresses     []string `yaml:"addresses"`
	Database      string   `yaml:"database"`
	Username      string   `yaml:"username"`
	Password      string   `yaml:"password"`
	RetentionDays int      `yaml:"retention_days"`
}

// TopologyConfig points at the road topology seed file.
type TopologyConfig struct {
	Path string `yaml:"path"` // YAML file with segments and sensors
}

// DetectionConfig contains detection tuning settings.
type DetectionConfig struct {
	// TuningPath is an optional YAML file with rule thresholds,
	// hot-reloaded on change. Defaults apply when empty.
	TuningPath string `yaml:"tuning_path"`
}

// EnrichmentConfig contains AI enrichment settings.
type EnrichmentConfig struct {
	Enabled       bool    `yaml:"enabled"`
	BaseURL       string  `yaml:"base_url"`
	Model         string  `yaml:"model"`
	MaxConcurrent int64   `yaml:"max_concurrent"`
	CallTimeout   string  `yaml:"call_timeout"`
	RateLimit     float64 `yaml:"rate_limit"` // calls per second (0 = none)
}

// RedisConfig contains incident event publishing settings.
type RedisConfig struct {
	URL     string `yaml:"url"` // empty disables publishing
	Channel string `yaml:"channel"`
}

// MQTTConfig contains the optional MQTT reading source settings.
type MQTTConfig struct {
	Enabled   bool   `yaml:"enabled"`
	BrokerURL string `yaml:"broker_url"`
	Topic     string `yaml:"topic"`
	ClientID  string `yaml:"client_id"`
	QoS       byte   `yaml:"qos"`
}

// MetricsConfig contains Prometheus metrics settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address"` // default: :9090
}

// LoadConfig loads configuration from a YAML file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.setDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.setDefaults()
	return cfg
}

// setDefaults sets default values for missing config fields.
func (c *Config) setDefaults() {
	if c.Server.Address == "" {
		c.Server.Address = ":8080"
	}
	if c.Server.QueryTimeout == "" {
		c.Server.QueryTimeout = "10s"
	}
	if c.Database.Path == "" {
		c.Database.Path = "data/roadwatch.db"
	}
	if c.Readings.Backend == "" {
		c.Readings.Backend = "sqlite"
	}
	if c.Readings.Retention == "" {
		c.Readings.Retention = "720h"
	}
	if c.Enrichment.Model == "" {
		c.Enrichment.Model = "gpt-4o-mini"
	}
	if c.Enrichment.CallTimeout == "" {
		c.Enrichment.CallTimeout = "20s"
	}
	if c.Metrics.Address == "" {
		c.Metrics.Address = ":9090"
	}
	if c.MQTT.Topic == "" {
		c.MQTT.Topic = "roadwatch/readings"
	}
}

// QueryTimeoutDuration returns the parsed query timeout.
func (c *Config) QueryTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.Server.QueryTimeout)
	if err != nil {
		return 10 * time.Second
	}
	return d
}

// ReadingRetention returns the parsed reading retention period.
func (c *Config) ReadingRetention() time.Duration {
	d, err := time.ParseDuration(c.Readings.Retention)
	if err != nil {
		return 720 * time.Hour
	}
	return d
}

// EnrichmentCallTimeout returns the parsed enrichment call timeout.
func (c *Config) EnrichmentCallTimeout() time.Duration {
	d, err := time.ParseDuration(c.Enrichment.CallTimeout)
	if err != nil {
		return 20 * time.Second
	}
	return d
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	if c.Server.Address == "" {
		return fmt.Errorf("server.address is required")
	}
	if _, err := time.ParseDuration(c.Server.QueryTimeout); err != nil {
		return fmt.Errorf("server.query_timeout is not a valid duration: %w", err)
	}
	if _, err := time.ParseDuration(c.Readings.Retention); err != nil {
		return fmt.Errorf("readings.retention is not a valid duration: %w", err)
	}
	switch c.Readings.Backend {
	case "sqlite":
	case "clickhouse":
		if len(c.Readings.ClickHouse.Addresses) == 0 {
			return fmt.Errorf("readings.clickhouse.addresses is required when backend is clickhouse")
		}
		if c.Readings.ClickHouse.Database == "" {
			return fmt.Errorf("readings.clickhouse.database is required when backend is clickhouse")
		}
	default:
		return fmt.Errorf("readings.backend must be sqlite or clickhouse, got %q", c.Readings.Backend)
	}
	if c.Enrichment.Enabled {
		if _, err := time.ParseDuration(c.Enrichment.CallTimeout); err != nil {
			return fmt.Errorf("enrichment.call_timeout is not a valid duration: %w", err)
		}
	}
	if c.MQTT.Enabled && c.MQTT.BrokerURL == "" {
		return fmt.Errorf("mqtt.broker_url is required when mqtt is enabled")
	}
	return nil
}
