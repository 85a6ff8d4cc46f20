package storage

import (
	"context"
	"database/sql"
	"fmt"

	// Pure-Go SQLite driver.
	_ "modernc.org/sqlite"
)

// SQLiteStorage implements Storage using SQLite.
type SQLiteStorage struct {
	path string
	db   *sql.DB

	segments  *sqliteSegmentRepo
	sensors   *sqliteSensorRepo
	incidents *sqliteIncidentRepo
	readings  *sqliteReadingRepo
}

// NewSQLiteStorage creates a new SQLite storage.
func NewSQLiteStorage(path string) *SQLiteStorage {
	return &SQLiteStorage{path: path}
}

// Open initializes the database connection.
func (s *SQLiteStorage) Open() error {
	ctx := context.Background()

	db, err := sql.Open("sqlite", "file:"+s.path)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(1) // SQLite is single-writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0) // Keep connection alive

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return fmt.Errorf("ping database: %w", err)
	}

	// Enable foreign keys and WAL mode
	pragmas := []string{
		"PRAGMA foreign_keys = ON",
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return fmt.Errorf("execute %s: %w", pragma, err)
		}
	}

	s.db = db

	// Initialize repositories
	s.segments = &sqliteSegmentRepo{db: db}
	s.sensors = &sqliteSensorRepo{db: db}
	s.incidents = &sqliteIncidentRepo{db: db}
	s.readings = &sqliteReadingRepo{db: db}

	return nil
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// DB returns the underlying database connection for health checks.
func (s *SQLiteStorage) DB() *sql.DB {
	return s.db
}

// Migrate runs database migrations.
func (s *SQLiteStorage) Migrate() error {
	return runMigrations(s.db)
}

// Segments returns the road segment repository.
func (s *SQLiteStorage) Segments() SegmentRepository {
	return s.segments
}

// Sensors returns the sensor repository.
func (s *SQLiteStorage) Sensors() SensorRepository {
	return s.sensors
}

// Incidents returns the incident repository.
func (s *SQLiteStorage) Incidents() IncidentRepository {
	return s.incidents
}

// Readings returns the SQLite-backed reading repository.
func (s *SQLiteStorage) Readings() ReadingRepository {
	return s.readings
}
