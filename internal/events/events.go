// Package events publishes incident lifecycle events for live
// consumers (dashboards, reroute planners). Publishing is optional
// and strictly best-effort: a failed publish is logged, never
// propagated to the detection path.
package events

import (
	"context"
	"time"

	"github.com/good-yellow-bee/roadwatch/internal/models"
)

// Event is the wire shape of a published incident event.
type Event struct {
	Kind     string           `json:"kind"` // "created" or "resolved"
	At       time.Time        `json:"at"`
	Incident *models.Incident `json:"incident"`
}

// Publisher is the interface for incident event sinks.
type Publisher interface {
	// Name returns the publisher name (e.g. "redis").
	Name() string
	// PublishCreated announces a newly opened incident.
	PublishCreated(ctx context.Context, incident *models.Incident) error
	// PublishResolved announces an operator resolution.
	PublishResolved(ctx context.Context, incident *models.Incident) error
	// Close releases any resources.
	Close() error
}
