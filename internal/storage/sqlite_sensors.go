package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

type sqliteSensorRepo struct {
	db *sql.DB
}

const sensorColumns = "id, name, type, road_segment_id, latitude, longitude, active"

func (r *sqliteSensorRepo) Upsert(ctx context.Context, sensor *models.Sensor) error {
	query := `
		INSERT INTO sensors (id, name, type, road_segment_id, latitude, longitude, active)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			type = excluded.type,
			road_segment_id = excluded.road_segment_id,
			latitude = excluded.latitude,
			longitude = excluded.longitude,
			active = excluded.active
	`
	_, err := r.db.ExecContext(ctx, query,
		sensor.ID, sensor.Name, string(sensor.Type), sensor.RoadSegmentID,
		nullFloat(sensor.Latitude), nullFloat(sensor.Longitude), boolToInt(sensor.Active),
	)
	if err != nil {
		return fmt.Errorf("upsert sensor: %w", err)
	}
	return nil
}

func (r *sqliteSensorRepo) GetByID(ctx context.Context, id int64) (*models.Sensor, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+sensorColumns+" FROM sensors WHERE id = ?", id)

	sensor, err := scanSensor(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan sensor: %w", err)
	}
	return sensor, nil
}

func (r *sqliteSensorRepo) List(ctx context.Context) ([]*models.Sensor, error) {
	return r.query(ctx, "SELECT "+sensorColumns+" FROM sensors ORDER BY id")
}

func (r *sqliteSensorRepo) ListBySegment(ctx context.Context, segmentID int64) ([]*models.Sensor, error) {
	return r.query(ctx,
		"SELECT "+sensorColumns+" FROM sensors WHERE road_segment_id = ? ORDER BY id", segmentID)
}

func (r *sqliteSensorRepo) query(ctx context.Context, query string, args ...any) ([]*models.Sensor, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query sensors: %w", err)
	}
	defer rows.Close()

	var sensors []*models.Sensor
	for rows.Next() {
		sensor, err := scanSensor(rows)
		if err != nil {
			return nil, fmt.Errorf("scan sensor: %w", err)
		}
		sensors = append(sensors, sensor)
	}
	return sensors, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSensor(row scanner) (*models.Sensor, error) {
	sensor := &models.Sensor{}
	var typ string
	var lat, lng sql.NullFloat64
	var active int

	err := row.Scan(
		&sensor.ID, &sensor.Name, &typ, &sensor.RoadSegmentID, &lat, &lng, &active,
	)
	if err != nil {
		return nil, err
	}

	sensor.Type = models.SensorType(typ)
	sensor.Latitude = floatPtr(lat)
	sensor.Longitude = floatPtr(lng)
	sensor.Active = active != 0
	return sensor, nil
}
