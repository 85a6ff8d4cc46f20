package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

// ClickHouseConfig holds ClickHouse connection settings.
type ClickHouseConfig struct {
	// Addresses are the ClickHouse server addresses (host:port).
	Addresses []string

	// Database is the ClickHouse database name.
	Database string

	// Username for authentication.
	Username string

	// Password for authentication.
	Password string

	// MaxOpenConns is the maximum number of open connections.
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections.
	MaxIdleConns int

	// DialTimeout is the connection timeout.
	DialTimeout time.Duration

	// Compression enables LZ4 compression.
	Compression bool

	// RetentionDays is the TTL in days for reading retention.
	RetentionDays int
}

// ClickHouseStorage implements ReadingStorage for ClickHouse. It is
// used in deployments where reading volume outgrows the primary
// SQLite database; the topology and incident tables stay in SQLite.
type ClickHouseStorage struct {
	config   *ClickHouseConfig
	db       *sql.DB
	readings *clickhouseReadingRepo
}

// NewClickHouseStorage creates a new ClickHouse reading storage.
func NewClickHouseStorage(config *ClickHouseConfig) *ClickHouseStorage {
	// Apply defaults
	if config.MaxOpenConns == 0 {
		config.MaxOpenConns = 5
	}
	if config.MaxIdleConns == 0 {
		config.MaxIdleConns = 5
	}
	if config.DialTimeout == 0 {
		config.DialTimeout = 5 * time.Second
	}
	if config.RetentionDays == 0 {
		config.RetentionDays = 30
	}

	return &ClickHouseStorage{config: config}
}

// Open initializes the ClickHouse connection.
func (s *ClickHouseStorage) Open() error {
	opts := &clickhouse.Options{
		Addr: s.config.Addresses,
		Auth: clickhouse.Auth{
			Database: s.config.Database,
			Username: s.config.Username,
			Password: s.config.Password,
		},
		DialTimeout:  s.config.DialTimeout,
		MaxOpenConns: s.config.MaxOpenConns,
		MaxIdleConns: s.config.MaxIdleConns,
	}

	if s.config.Compression {
		opts.Compression = &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		}
	}

	db := clickhouse.OpenDB(opts)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), s.config.DialTimeout)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping clickhouse: %w", err)
	}

	s.db = db
	s.readings = &clickhouseReadingRepo{db: db}
	return nil
}

// Close closes the database connection.
func (s *ClickHouseStorage) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Ping checks the connection health.
func (s *ClickHouseStorage) Ping(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("clickhouse not open")
	}
	return s.db.PingContext(ctx)
}

// Migrate creates the readings table if it doesn't exist.
func (s *ClickHouseStorage) Migrate() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	createTable := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS sensor_readings (
			id UUID,
			sensor_id Int64,
			road_segment_id Int64,
			sensor_type LowCardinality(String),
			timestamp DateTime64(3, 'UTC'),
			vehicles_per_minute Nullable(Float64),
			avg_speed_kmh Nullable(Float64),
			stopped_count Nullable(Int32),
			lane_blocked Nullable(UInt8),
			_date Date DEFAULT toDate(timestamp)
		)
		ENGINE = MergeTree()
		PARTITION BY toYYYYMM(_date)
		ORDER BY (road_segment_id, sensor_type, timestamp, id)
		TTL _date + INTERVAL %d DAY DELETE
		SETTINGS index_granularity = 8192
	`, s.config.RetentionDays)

	if _, err := s.db.ExecContext(ctx, createTable); err != nil {
		return fmt.Errorf("create readings table: %w", err)
	}
	return nil
}

// Readings returns the reading repository.
func (s *ClickHouseStorage) Readings() ReadingRepository {
	return s.readings
}

type clickhouseReadingRepo struct {
	db *sql.DB
}

func (r *clickhouseReadingRepo) InsertBatch(ctx context.Context, readings []*models.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin readings batch: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO sensor_readings (id, sensor_id, road_segment_id, sensor_type, timestamp,
			vehicles_per_minute, avg_speed_kmh, stopped_count, lane_blocked)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("prepare readings insert: %w", err)
	}
	defer stmt.Close()

	for _, reading := range readings {
		var blocked *uint8
		if reading.Payload.LaneBlocked != nil {
			v := uint8(boolToInt(*reading.Payload.LaneBlocked))
			blocked = &v
		}
		var stopped *int32
		if reading.Payload.StoppedCount != nil {
			v := int32(*reading.Payload.StoppedCount)
			stopped = &v
		}

		_, err := stmt.ExecContext(ctx,
			reading.ID, reading.SensorID, reading.RoadSegmentID, string(reading.SensorType),
			reading.Timestamp.UTC(),
			reading.Payload.VehiclesPerMinute, reading.Payload.AvgSpeedKMH,
			stopped, blocked,
		)
		if err != nil {
			return fmt.Errorf("insert reading: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit readings batch: %w", err)
	}
	return nil
}

func (r *clickhouseReadingRepo) RecentBySegment(ctx context.Context, segmentID int64, typ models.SensorType, window time.Duration, now time.Time) ([]*models.SensorReading, error) {
	since := now.Add(-window).UTC()
	query := `
		SELECT toString(id), sensor_id, road_segment_id, sensor_type, timestamp,
			vehicles_per_minute, avg_speed_kmh, stopped_count, lane_blocked
		FROM sensor_readings
		WHERE road_segment_id = ? AND sensor_type = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC
	`
	rows, err := r.db.QueryContext(ctx, query, segmentID, string(typ), since, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []*models.SensorReading
	for rows.Next() {
		reading := &models.SensorReading{}
		var sensorType string
		var flow, speed *float64
		var stopped *int32
		var blocked *uint8

		if err := rows.Scan(
			&reading.ID, &reading.SensorID, &reading.RoadSegmentID, &sensorType,
			&reading.Timestamp, &flow, &speed, &stopped, &blocked,
		); err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}

		reading.SensorType = models.SensorType(sensorType)
		reading.Payload.VehiclesPerMinute = flow
		reading.Payload.AvgSpeedKMH = speed
		if stopped != nil {
			v := int(*stopped)
			reading.Payload.StoppedCount = &v
		}
		if blocked != nil {
			v := *blocked != 0
			reading.Payload.LaneBlocked = &v
		}
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}

func (r *clickhouseReadingRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sensor_readings").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return count, nil
}

func (r *clickhouseReadingRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sensor_readings WHERE timestamp >= ?", since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent readings: %w", err)
	}
	return count, nil
}

func (r *clickhouseReadingRepo) LastTimestamp(ctx context.Context) (*time.Time, error) {
	var at sql.NullTime
	err := r.db.QueryRowContext(ctx,
		"SELECT MAX(timestamp) FROM sensor_readings").Scan(&at)
	if err != nil {
		return nil, fmt.Errorf("last reading time: %w", err)
	}
	if !at.Valid {
		return nil, nil
	}
	t := at.Time
	return &t, nil
}

func (r *clickhouseReadingRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	// ClickHouse mutations are async; TTL handles retention, this is
	// only used by operational cleanup.
	_, err := r.db.ExecContext(ctx,
		"ALTER TABLE sensor_readings DELETE WHERE timestamp < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete readings: %w", err)
	}
	return 0, nil
}
