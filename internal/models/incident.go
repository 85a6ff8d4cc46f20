package models

import (
	"time"

	"github.com/google/uuid"
)

// IncidentType classifies what kind of traffic event an incident
// describes. Together with the road segment it forms the dedup key:
// at most one OPEN incident may exist per (segment, type) pair.
type IncidentType string

const (
	IncidentTypeCongestion     IncidentType = "CONGESTION"
	IncidentTypeStoppedVehicle IncidentType = "STOPPED_VEHICLE"
)

// IncidentStatus is the lifecycle state of an incident.
type IncidentStatus string

const (
	IncidentStatusOpen     IncidentStatus = "OPEN"
	IncidentStatusResolved IncidentStatus = "RESOLVED"
)

// Severity is the incident severity scale.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// Incident is a detected anomaly affecting a road segment.
//
// Incidents are created by the ledger when a detection rule fires,
// refreshed (updated_at only) while the condition persists, and
// resolved only by an explicit operator action. The AI fields are
// filled in asynchronously by the enrichment coordinator and never
// affect status or severity.
type Incident struct {
	ID            string         `json:"id"`
	RoadSegmentID int64          `json:"road_segment_id"`
	Type          IncidentType   `json:"type"`
	RuleTriggered string         `json:"rule_triggered"`
	Severity      Severity       `json:"severity"`
	Status        IncidentStatus `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`

	AISummary        string `json:"ai_summary,omitempty"`
	AICause          string `json:"ai_cause,omitempty"`
	AIRecommendation string `json:"ai_recommendation,omitempty"`

	ResolutionNote string `json:"resolution_note,omitempty"`
}

// NewIncident creates an OPEN incident for the given dedup key.
func NewIncident(segmentID int64, typ IncidentType, rule string, severity Severity, now time.Time) *Incident {
	return &Incident{
		ID:            uuid.New().String(),
		RoadSegmentID: segmentID,
		Type:          typ,
		RuleTriggered: rule,
		Severity:      severity,
		Status:        IncidentStatusOpen,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Resolved reports whether the incident has been resolved.
func (i *Incident) Resolved() bool {
	return i.Status == IncidentStatusResolved
}
