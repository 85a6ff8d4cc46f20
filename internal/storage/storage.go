// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"time"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Segments() SegmentRepository
	Sensors() SensorRepository
	Incidents() IncidentRepository
	Readings() ReadingRepository
}

// SegmentRepository defines operations for road segment topology.
type SegmentRepository interface {
	Upsert(ctx context.Context, segment *models.RoadSegment) error
	GetByID(ctx context.Context, id int64) (*models.RoadSegment, error)
	List(ctx context.Context) ([]*models.RoadSegment, error)
}

// SensorRepository defines operations for sensor topology.
type SensorRepository interface {
	Upsert(ctx context.Context, sensor *models.Sensor) error
	GetByID(ctx context.Context, id int64) (*models.Sensor, error)
	List(ctx context.Context) ([]*models.Sensor, error)
	ListBySegment(ctx context.Context, segmentID int64) ([]*models.Sensor, error)
}

// IncidentFilter defines query parameters for incident listing.
type IncidentFilter struct {
	// Status restricts results to one lifecycle state when set.
	Status models.IncidentStatus
	// Limit caps the number of returned incidents (newest first).
	Limit int
}

// IncidentRepository defines operations for incident persistence.
// Lifecycle decisions (create vs refresh vs resolve) belong to the
// incident ledger; the repository only executes them.
type IncidentRepository interface {
	Create(ctx context.Context, incident *models.Incident) error
	GetByID(ctx context.Context, id string) (*models.Incident, error)
	// GetOpenByKey returns the OPEN incident for a dedup key, or nil.
	GetOpenByKey(ctx context.Context, segmentID int64, typ models.IncidentType) (*models.Incident, error)
	// Touch refreshes updated_at without any other change.
	Touch(ctx context.Context, id string, at time.Time) error
	// MarkResolved transitions an incident to RESOLVED with a note.
	MarkResolved(ctx context.Context, id string, note string, at time.Time) error
	// SetAnalysis writes the AI fields, leaving status and severity
	// untouched.
	SetAnalysis(ctx context.Context, id string, summary, cause, recommendation string) error
	List(ctx context.Context, filter IncidentFilter) ([]*models.Incident, error)
	Count(ctx context.Context) (int64, error)
	CountOpen(ctx context.Context) (int64, error)
	LastCreatedAt(ctx context.Context) (*time.Time, error)
}

// ReadingRepository defines sensor reading persistence. Readings have
// different access patterns from the topology tables (high-volume
// appends, time-window queries), so the repository can be backed by
// either the primary SQLite database or a dedicated ClickHouse store.
type ReadingRepository interface {
	// InsertBatch appends multiple readings in a single batch.
	InsertBatch(ctx context.Context, readings []*models.SensorReading) error

	// RecentBySegment returns readings of one sensor type for a
	// segment within the trailing window, ascending by timestamp.
	// Re-querying the same window is idempotent.
	RecentBySegment(ctx context.Context, segmentID int64, typ models.SensorType, window time.Duration, now time.Time) ([]*models.SensorReading, error)

	// Counters for the system status endpoint.
	Count(ctx context.Context) (int64, error)
	CountSince(ctx context.Context, since time.Time) (int64, error)
	LastTimestamp(ctx context.Context) (*time.Time, error)

	// DeleteBefore removes readings older than the given time.
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// ReadingStorage is a standalone reading store with its own lifecycle,
// used when readings are kept outside the primary database.
type ReadingStorage interface {
	// Open initializes the reading storage connection.
	Open() error
	// Close closes the reading storage connection.
	Close() error
	// Migrate creates or updates the reading storage schema.
	Migrate() error
	// Ping checks the connection health.
	Ping(ctx context.Context) error

	// Readings returns the reading repository.
	Readings() ReadingRepository
}
