package storage

import (
	"database/sql"
	"fmt"
	"time"
)

// Migration represents a database migration.
type Migration struct {
	Version int
	Name    string
	Up      string
}

// migrations holds all database migrations in order.
var migrations = []Migration{
	{
		Version: 1,
		Name:    "initial_schema",
		Up: `
			-- Road segments table
			CREATE TABLE IF NOT EXISTS road_segments (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				code TEXT UNIQUE NOT NULL,
				direction TEXT NOT NULL,
				latitude REAL,
				longitude REAL
			);

			-- Sensors table
			CREATE TABLE IF NOT EXISTS sensors (
				id INTEGER PRIMARY KEY,
				name TEXT NOT NULL,
				type TEXT NOT NULL,
				road_segment_id INTEGER NOT NULL,
				latitude REAL,
				longitude REAL,
				active INTEGER NOT NULL DEFAULT 1,
				FOREIGN KEY (road_segment_id) REFERENCES road_segments(id) ON DELETE CASCADE
			);

			-- Sensor readings table (append-only)
			CREATE TABLE IF NOT EXISTS sensor_readings (
				id TEXT PRIMARY KEY,
				sensor_id INTEGER NOT NULL,
				road_segment_id INTEGER NOT NULL,
				sensor_type TEXT NOT NULL,
				timestamp DATETIME NOT NULL,
				vehicles_per_minute REAL,
				avg_speed_kmh REAL,
				stopped_count INTEGER,
				lane_blocked INTEGER,
				FOREIGN KEY (sensor_id) REFERENCES sensors(id) ON DELETE CASCADE
			);

			-- Incidents table
			CREATE TABLE IF NOT EXISTS incidents (
				id TEXT PRIMARY KEY,
				road_segment_id INTEGER NOT NULL,
				type TEXT NOT NULL,
				rule_triggered TEXT NOT NULL,
				severity TEXT NOT NULL,
				status TEXT NOT NULL DEFAULT 'OPEN',
				created_at DATETIME NOT NULL,
				updated_at DATETIME NOT NULL,
				ai_summary TEXT,
				ai_cause TEXT,
				ai_recommendation TEXT,
				resolution_note TEXT,
				FOREIGN KEY (road_segment_id) REFERENCES road_segments(id) ON DELETE CASCADE
			);

			-- Indexes
			CREATE INDEX IF NOT EXISTS idx_sensors_segment ON sensors(road_segment_id);
			CREATE INDEX IF NOT EXISTS idx_readings_segment_type_ts
				ON sensor_readings(road_segment_id, sensor_type, timestamp);
			CREATE INDEX IF NOT EXISTS idx_readings_sensor_ts
				ON sensor_readings(sensor_id, timestamp);
			CREATE INDEX IF NOT EXISTS idx_incidents_segment ON incidents(road_segment_id);
			CREATE INDEX IF NOT EXISTS idx_incidents_status ON incidents(status);
			CREATE INDEX IF NOT EXISTS idx_incidents_created ON incidents(created_at);

			-- Backstop for the dedup invariant: at most one OPEN
			-- incident per (segment, type) key. The ledger serializes
			-- per-key so this should never fire in practice.
			CREATE UNIQUE INDEX IF NOT EXISTS idx_incidents_open_key
				ON incidents(road_segment_id, type) WHERE status = 'OPEN';
		`,
	},
}

// runMigrations applies all pending migrations.
func runMigrations(db *sql.DB) error {
	// Create migrations table if not exists
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS schema_migrations (
			version INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			applied_at DATETIME NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("create migrations table: %w", err)
	}

	// Get current version
	var currentVersion int
	err = db.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_migrations").Scan(&currentVersion)
	if err != nil {
		return fmt.Errorf("get current version: %w", err)
	}

	// Apply pending migrations
	for _, m := range migrations {
		if m.Version <= currentVersion {
			continue
		}

		// Run migration in transaction
		tx, err := db.Begin()
		if err != nil {
			return fmt.Errorf("begin transaction for migration %d: %w", m.Version, err)
		}

		_, err = tx.Exec(m.Up)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("execute migration %d (%s): %w", m.Version, m.Name, err)
		}

		_, err = tx.Exec(
			"INSERT INTO schema_migrations (version, name, applied_at) VALUES (?, ?, ?)",
			m.Version, m.Name, time.Now(),
		)
		if err != nil {
			tx.Rollback()
			return fmt.Errorf("record migration %d: %w", m.Version, err)
		}

		if err := tx.Commit(); err != nil {
			return fmt.Errorf("commit migration %d: %w", m.Version, err)
		}
	}

	return nil
}
