// Package system serves the operational status endpoint.
package system

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/good-yellow-bee/roadwatch/internal/enrichment"
	"github.com/good-yellow-bee/roadwatch/internal/events"
	"github.com/good-yellow-bee/roadwatch/internal/incident"
	"github.com/good-yellow-bee/roadwatch/internal/storage"
)

// Sources bundles the components the status endpoint reports on.
// Enricher and Publisher may be nil.
type Sources struct {
	Storage   storage.Storage
	Readings  storage.ReadingRepository
	Ledger    *incident.Ledger
	Enricher  *enrichment.Coordinator
	Publisher events.Publisher
	StartedAt time.Time
}

type Handler struct {
	sources Sources
}

func NewHandler(sources Sources) *Handler {
	return &Handler{sources: sources}
}

// StatusResponse is the operational snapshot of the service.
type StatusResponse struct {
	Status        string             `json:"status"`
	UptimeSeconds int64              `json:"uptime_seconds"`
	Readings      ReadingsStatus     `json:"readings"`
	Incidents     IncidentsStatus    `json:"incidents"`
	Enrichment    *EnrichmentStatus  `json:"enrichment,omitempty"`
	Events        *EventStreamStatus `json:"events,omitempty"`
}

type ReadingsStatus struct {
	Total         int64      `json:"total"`
	LastMinute    int64      `json:"last_minute"`
	LastHour      int64      `json:"last_hour"`
	LastTimestamp *time.Time `json:"last_timestamp,omitempty"`
}

type IncidentsStatus struct {
	Total         int64      `json:"total"`
	Open          int64      `json:"open"`
	LastCreatedAt *time.Time `json:"last_created_at,omitempty"`
	Created       int64      `json:"created"`
	Refreshed     int64      `json:"refreshed"`
	Resolved      int64      `json:"resolved"`
}

type EnrichmentStatus struct {
	Provider  string `json:"provider"`
	Online    bool   `json:"online"`
	Submitted int64  `json:"submitted"`
	Succeeded int64  `json:"succeeded"`
	Retried   int64  `json:"retried"`
	Fallbacks int64  `json:"fallbacks"`
}

type EventStreamStatus struct {
	Publisher string `json:"publisher"`
}

// Status returns the service status snapshot.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	resp := StatusResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.sources.StartedAt).Seconds()),
	}

	var err error
	incidents := h.sources.Storage.Incidents()

	if resp.Readings.Total, err = h.sources.Readings.Count(ctx); err != nil {
		h.fail(w, "reading count", err)
		return
	}
	now := time.Now().UTC()
	if resp.Readings.LastMinute, err = h.sources.Readings.CountSince(ctx, now.Add(-time.Minute)); err != nil {
		h.fail(w, "reading count last minute", err)
		return
	}
	if resp.Readings.LastHour, err = h.sources.Readings.CountSince(ctx, now.Add(-time.Hour)); err != nil {
		h.fail(w, "reading count last hour", err)
		return
	}
	if resp.Readings.LastTimestamp, err = h.sources.Readings.LastTimestamp(ctx); err != nil {
		h.fail(w, "last reading timestamp", err)
		return
	}

	if resp.Incidents.Total, err = incidents.Count(ctx); err != nil {
		h.fail(w, "incident count", err)
		return
	}
	if resp.Incidents.Open, err = incidents.CountOpen(ctx); err != nil {
		h.fail(w, "open incident count", err)
		return
	}
	if resp.Incidents.LastCreatedAt, err = incidents.LastCreatedAt(ctx); err != nil {
		h.fail(w, "last incident timestamp", err)
		return
	}

	stats := h.sources.Ledger.Stats()
	resp.Incidents.Created = stats.Created.Load()
	resp.Incidents.Refreshed = stats.Refreshed.Load()
	resp.Incidents.Resolved = stats.Resolved.Load()

	if h.sources.Enricher != nil {
		es := h.sources.Enricher.Stats()
		resp.Enrichment = &EnrichmentStatus{
			Provider:  h.sources.Enricher.ProviderName(),
			Online:    h.sources.Enricher.Online(),
			Submitted: es.Submitted.Load(),
			Succeeded: es.Succeeded.Load(),
			Retried:   es.Retried.Load(),
			Fallbacks: es.Fallbacks.Load(),
		}
	}

	if h.sources.Publisher != nil {
		resp.Events = &EventStreamStatus{Publisher: h.sources.Publisher.Name()}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]any{"data": resp})
}

func (h *Handler) fail(w http.ResponseWriter, what string, err error) {
	log.Printf("system status: %s error: %v", what, err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusInternalServerError)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]string{
			"code":    "INTERNAL_ERROR",
			"message": "internal server error",
		},
	})
}
