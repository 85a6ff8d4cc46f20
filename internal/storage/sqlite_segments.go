package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

type sqliteSegmentRepo struct {
	db *sql.DB
}

func (r *sqliteSegmentRepo) Upsert(ctx context.Context, segment *models.RoadSegment) error {
	query := `
		INSERT INTO road_segments (id, name, code, direction, latitude, longitude)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			code = excluded.code,
			direction = excluded.direction,
			latitude = excluded.latitude,
			longitude = excluded.longitude
	`
	_, err := r.db.ExecContext(ctx, query,
		segment.ID, segment.Name, segment.Code, segment.Direction,
		nullFloat(segment.Latitude), nullFloat(segment.Longitude),
	)
	if err != nil {
		return fmt.Errorf("upsert segment: %w", err)
	}
	return nil
}

func (r *sqliteSegmentRepo) GetByID(ctx context.Context, id int64) (*models.RoadSegment, error) {
	query := `
		SELECT id, name, code, direction, latitude, longitude
		FROM road_segments WHERE id = ?
	`
	segment := &models.RoadSegment{}
	var lat, lng sql.NullFloat64

	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&segment.ID, &segment.Name, &segment.Code, &segment.Direction, &lat, &lng,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan segment: %w", err)
	}

	segment.Latitude = floatPtr(lat)
	segment.Longitude = floatPtr(lng)
	return segment, nil
}

func (r *sqliteSegmentRepo) List(ctx context.Context) ([]*models.RoadSegment, error) {
	query := `
		SELECT id, name, code, direction, latitude, longitude
		FROM road_segments ORDER BY id
	`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query segments: %w", err)
	}
	defer rows.Close()

	var segments []*models.RoadSegment
	for rows.Next() {
		segment := &models.RoadSegment{}
		var lat, lng sql.NullFloat64
		if err := rows.Scan(
			&segment.ID, &segment.Name, &segment.Code, &segment.Direction, &lat, &lng,
		); err != nil {
			return nil, fmt.Errorf("scan segment: %w", err)
		}
		segment.Latitude = floatPtr(lat)
		segment.Longitude = floatPtr(lng)
		segments = append(segments, segment)
	}
	return segments, rows.Err()
}

// Helper functions

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}

func floatPtr(f sql.NullFloat64) *float64 {
	if !f.Valid {
		return nil
	}
	v := f.Float64
	return &v
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
