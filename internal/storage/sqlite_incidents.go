package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

type sqliteIncidentRepo struct {
	db *sql.DB
}

const incidentColumns = `id, road_segment_id, type, rule_triggered, severity, status,
	created_at, updated_at, ai_summary, ai_cause, ai_recommendation, resolution_note`

func (r *sqliteIncidentRepo) Create(ctx context.Context, incident *models.Incident) error {
	query := `
		INSERT INTO incidents (id, road_segment_id, type, rule_triggered, severity, status,
			created_at, updated_at, ai_summary, ai_cause, ai_recommendation, resolution_note)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		incident.ID, incident.RoadSegmentID, string(incident.Type), incident.RuleTriggered,
		string(incident.Severity), string(incident.Status),
		incident.CreatedAt, incident.UpdatedAt,
		nullString(incident.AISummary), nullString(incident.AICause),
		nullString(incident.AIRecommendation), nullString(incident.ResolutionNote),
	)
	if err != nil {
		return fmt.Errorf("insert incident: %w", err)
	}
	return nil
}

func (r *sqliteIncidentRepo) GetByID(ctx context.Context, id string) (*models.Incident, error) {
	row := r.db.QueryRowContext(ctx,
		"SELECT "+incidentColumns+" FROM incidents WHERE id = ?", id)

	incident, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	return incident, nil
}

func (r *sqliteIncidentRepo) GetOpenByKey(ctx context.Context, segmentID int64, typ models.IncidentType) (*models.Incident, error) {
	query := "SELECT " + incidentColumns + ` FROM incidents
		WHERE road_segment_id = ? AND type = ? AND status = 'OPEN'
		ORDER BY created_at DESC LIMIT 1`
	row := r.db.QueryRowContext(ctx, query, segmentID, string(typ))

	incident, err := scanIncident(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan incident: %w", err)
	}
	return incident, nil
}

func (r *sqliteIncidentRepo) Touch(ctx context.Context, id string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE incidents SET updated_at = ? WHERE id = ?", at, id)
	if err != nil {
		return fmt.Errorf("touch incident: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("incident not found: %s", id)
	}
	return nil
}

func (r *sqliteIncidentRepo) MarkResolved(ctx context.Context, id string, note string, at time.Time) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE incidents SET status = 'RESOLVED', resolution_note = ?, updated_at = ? WHERE id = ?",
		nullString(note), at, id)
	if err != nil {
		return fmt.Errorf("resolve incident: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("incident not found: %s", id)
	}
	return nil
}

func (r *sqliteIncidentRepo) SetAnalysis(ctx context.Context, id string, summary, cause, recommendation string) error {
	result, err := r.db.ExecContext(ctx,
		"UPDATE incidents SET ai_summary = ?, ai_cause = ?, ai_recommendation = ? WHERE id = ?",
		summary, cause, recommendation, id)
	if err != nil {
		return fmt.Errorf("set incident analysis: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("incident not found: %s", id)
	}
	return nil
}

func (r *sqliteIncidentRepo) List(ctx context.Context, filter IncidentFilter) ([]*models.Incident, error) {
	query := "SELECT " + incidentColumns + " FROM incidents"
	var args []any

	if filter.Status != "" {
		query += " WHERE status = ?"
		args = append(args, string(filter.Status))
	}
	query += " ORDER BY created_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query incidents: %w", err)
	}
	defer rows.Close()

	var incidents []*models.Incident
	for rows.Next() {
		incident, err := scanIncident(rows)
		if err != nil {
			return nil, fmt.Errorf("scan incident: %w", err)
		}
		incidents = append(incidents, incident)
	}
	return incidents, rows.Err()
}

func (r *sqliteIncidentRepo) Count(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM incidents").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count incidents: %w", err)
	}
	return count, nil
}

func (r *sqliteIncidentRepo) CountOpen(ctx context.Context) (int64, error) {
	var count int64
	err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM incidents WHERE status = 'OPEN'").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count open incidents: %w", err)
	}
	return count, nil
}

func (r *sqliteIncidentRepo) LastCreatedAt(ctx context.Context) (*time.Time, error) {
	var at sql.NullTime
	err := r.db.QueryRowContext(ctx,
		"SELECT MAX(created_at) FROM incidents").Scan(&at)
	if err != nil {
		return nil, fmt.Errorf("last incident time: %w", err)
	}
	if !at.Valid {
		return nil, nil
	}
	t := at.Time
	return &t, nil
}

func scanIncident(row scanner) (*models.Incident, error) {
	incident := &models.Incident{}
	var typ, severity, status string
	var summary, cause, recommendation, note sql.NullString

	err := row.Scan(
		&incident.ID, &incident.RoadSegmentID, &typ, &incident.RuleTriggered,
		&severity, &status, &incident.CreatedAt, &incident.UpdatedAt,
		&summary, &cause, &recommendation, &note,
	)
	if err != nil {
		return nil, err
	}

	incident.Type = models.IncidentType(typ)
	incident.Severity = models.Severity(severity)
	incident.Status = models.IncidentStatus(status)
	incident.AISummary = summary.String
	incident.AICause = cause.String
	incident.AIRecommendation = recommendation.String
	incident.ResolutionNote = note.String
	return incident, nil
}
