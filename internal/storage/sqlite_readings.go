package storage

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"time"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

type sqliteReadingRepo struct {
	db *sql.DB
}

const readingColumns = `id, sensor_id, road_segment_id, sensor_type, timestamp,
	vehicles_per_minute, avg_speed_kmh, stopped_count, lane_blocked`

func (r *sqliteReadingRepo) InsertBatch(ctx context.Context, readings []*models.SensorReading) error {
	if len(readings) == 0 {
		return nil
	}

	// Insert in timestamp order inside one transaction so a reader
	// never observes a later reading from a sensor without its
	// earlier ones.
	sorted := make([]*models.SensorReading, len(readings))
	copy(sorted, readings)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Timestamp.Before(sorted[j].Timestamp)
	})

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

	for _, reading := range sorted {
		var blocked sql.NullInt64
		if reading.Payload.LaneBlocked != nil {
			blocked = sql.NullInt64{Int64: int64(boolToInt(*reading.Payload.LaneBlocked)), Valid: true}
		}
		var stopped sql.NullInt64
		if reading.Payload.StoppedCount != nil {
			stopped = sql.NullInt64{Int64: int64(*reading.Payload.StoppedCount), Valid: true}
		}

		_, err := stmt.ExecContext(ctx,
			reading.ID, reading.SensorID, reading.RoadSegmentID, string(reading.SensorType),
			reading.Timestamp.UTC(),
			nullFloat(reading.Payload.VehiclesPerMinute),
			nullFloat(reading.Payload.AvgSpeedKMH),
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

func (r *sqliteReadingRepo) RecentBySegment(ctx context.Context, segmentID int64, typ models.SensorType, window time.Duration, now time.Time) ([]*models.SensorReading, error) {
	since := now.Add(-window).UTC()
	query := "SELECT " + readingColumns + ` FROM sensor_readings
		WHERE road_segment_id = ? AND sensor_type = ? AND timestamp >= ? AND timestamp <= ?
		ORDER BY timestamp ASC`

	rows, err := r.db.QueryContext(ctx, query, segmentID, string(typ), since, now.UTC())
	if err != nil {
		return nil, fmt.Errorf("query readings: %w", err)
	}
	defer rows.Close()

	var readings []*models.SensorReading
	for rows.Next() {
		reading, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, reading)
	}
	return readings, rows.Err()
}

func (r *sqliteReadingRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM sensor_readings").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count readings: %w", err)
	}
	return count, nil
}

func (r *sqliteReadingRepo) CountSince(ctx context.Context, since time.Time) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sensor_readings WHERE timestamp >= ?", since.UTC()).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count recent readings: %w", err)
	}
	return count, nil
}

func (r *sqliteReadingRepo) LastTimestamp(ctx context.Context) (*time.Time, error) {
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

func (r *sqliteReadingRepo) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx,
		"DELETE FROM sensor_readings WHERE timestamp < ?", before.UTC())
	if err != nil {
		return 0, fmt.Errorf("delete readings: %w", err)
	}
	return result.RowsAffected()
}

func scanReading(row scanner) (*models.SensorReading, error) {
	reading := &models.SensorReading{}
	var typ string
	var flow, speed sql.NullFloat64
	var stopped, blocked sql.NullInt64

	err := row.Scan(
		&reading.ID, &reading.SensorID, &reading.RoadSegmentID, &typ, &reading.Timestamp,
		&flow, &speed, &stopped, &blocked,
	)
	if err != nil {
		return nil, err
	}

	reading.SensorType = models.SensorType(typ)
	reading.Payload.VehiclesPerMinute = floatPtr(flow)
	reading.Payload.AvgSpeedKMH = floatPtr(speed)
	if stopped.Valid {
		v := int(stopped.Int64)
		reading.Payload.StoppedCount = &v
	}
	if blocked.Valid {
		v := blocked.Int64 != 0
		reading.Payload.LaneBlocked = &v
	}
	return reading, nil
}
