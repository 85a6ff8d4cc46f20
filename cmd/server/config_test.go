package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Server.Address != ":8080" {
		t.Errorf("expected default address :8080, got %s", cfg.Server.Address)
	}
	if cfg.Readings.Backend != "sqlite" {
		t.Errorf("expected default readings backend sqlite, got %s", cfg.Readings.Backend)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestConfigValidate_RejectsUnknownReadingsBackend(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Readings.Backend = "postgres"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for unknown readings backend")
	}
}

func TestConfigValidate_ClickHouseRequiresAddresses(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Readings.Backend = "clickhouse"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when clickhouse addresses are missing")
	}

	cfg.Readings.ClickHouse.Addresses = []string{"localhost:9000"}
	cfg.Readings.ClickHouse.Database = "roadwatch"
	if err := cfg.Validate(); err != nil {
		t.Fatalf("validate config: %v", err)
	}
}

func TestConfigValidate_RejectsInvalidQueryTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Server.QueryTimeout = "not-a-duration"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid server.query_timeout")
	}
}

func TestConfigValidate_RejectsInvalidRetention(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Readings.Retention = "30 days"

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error for invalid readings.retention")
	}
}

func TestReadingRetentionDefault(t *testing.T) {
	cfg := DefaultConfig()
	if got := cfg.ReadingRetention(); got != 720*time.Hour {
		t.Errorf("default retention = %v, want 720h", got)
	}
}

func TestConfigValidate_MQTTRequiresBrokerURL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MQTT.Enabled = true

	if err := cfg.Validate(); err == nil {
		t.Fatal("expected validation error when mqtt broker url is missing")
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
server:
  address: ":9091"
  query_timeout: 5s
database:
  path: /tmp/roadwatch-test.db
redis:
  url: redis://localhost:6379/0
mqtt:
  enabled: true
  broker_url: tcp://localhost:1883
`
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	if cfg.Server.Address != ":9091" {
		t.Errorf("expected address :9091, got %s", cfg.Server.Address)
	}
	if cfg.QueryTimeoutDuration().Seconds() != 5 {
		t.Errorf("expected 5s query timeout, got %v", cfg.QueryTimeoutDuration())
	}
	if cfg.Readings.Backend != "sqlite" {
		t.Errorf("expected backend default sqlite, got %s", cfg.Readings.Backend)
	}
	if cfg.MQTT.Topic != "roadwatch/readings" {
		t.Errorf("expected default mqtt topic, got %s", cfg.MQTT.Topic)
	}
}
