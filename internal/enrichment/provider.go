// Package enrichment asynchronously augments incidents with natural-
// language analysis. Enrichment is strictly best-effort: it never
// blocks ingestion, and provider failures degrade to deterministic
// fallback text rather than leaving incidents half-populated.
package enrichment

import (
	"context"

	"github.com/good-yellow-bee/roadwatch/internal/detection"
	"github.com/good-yellow-bee/roadwatch/internal/models"
)

// Analysis is the free-text output written back onto an incident.
type Analysis struct {
	Summary        string
	Cause          string
	Recommendation string
}

// Request carries the context handed to the provider: the incident,
// its segment, and the recent readings that triggered detection.
type Request struct {
	Incident *models.Incident
	Segment  *models.RoadSegment
	Readings detection.SegmentReadings
}

// Provider is the external text-generation boundary.
type Provider interface {
	// Name returns the provider name (e.g. "openai").
	Name() string
	// Analyze produces an analysis for the request. Implementations
	// must honor ctx cancellation and deadlines.
	Analyze(ctx context.Context, req Request) (Analysis, error)
}
