// Package incidents handles incident queries and lifecycle operations.
package incidents

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/roadwatch/internal/detection"
	"github.com/good-yellow-bee/roadwatch/internal/events"
	"github.com/good-yellow-bee/roadwatch/internal/incident"
	"github.com/good-yellow-bee/roadwatch/internal/metrics"
	"github.com/good-yellow-bee/roadwatch/internal/models"
	"github.com/good-yellow-bee/roadwatch/internal/storage"
)

type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeNotFound         = "NOT_FOUND"
	errCodeInvalidState     = "INVALID_STATE"
	errCodeInternalError    = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}})
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

const (
	defaultListLimit = 100
	maxListLimit     = 1000
)

type Handler struct {
	storage      storage.Storage
	readings     storage.ReadingRepository
	ledger       *incident.Ledger
	publisher    events.Publisher
	metrics      *metrics.Collector
	queryTimeout time.Duration
}

func NewHandler(store storage.Storage, readings storage.ReadingRepository, ledger *incident.Ledger, publisher events.Publisher, mc *metrics.Collector, queryTimeout time.Duration) *Handler {
	return &Handler{
		storage:      store,
		readings:     readings,
		ledger:       ledger,
		publisher:    publisher,
		metrics:      mc,
		queryTimeout: queryTimeout,
	}
}

// ResolveRequest carries the operator's resolution note.
type ResolveRequest struct {
	ResolutionNote string `json:"resolution_note"`
}

// List returns incidents, newest first. Query params: status
// (OPEN or RESOLVED), limit.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter := storage.IncidentFilter{Limit: defaultListLimit}

	if raw := r.URL.Query().Get("status"); raw != "" {
		status := models.IncidentStatus(raw)
		if status != models.IncidentStatusOpen && status != models.IncidentStatusResolved {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "status must be OPEN or RESOLVED")
			return
		}
		filter.Status = status
	}
	if raw := r.URL.Query().Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit <= 0 || limit > maxListLimit {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid limit")
			return
		}
		filter.Limit = limit
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	list, err := h.storage.Incidents().List(ctx, filter)
	if err != nil {
		log.Printf("list incidents error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, list)
}

// Detail is an incident joined with its segment and the recent
// readings around it.
type Detail struct {
	*models.Incident
	Segment        *models.RoadSegment     `json:"segment,omitempty"`
	RecentReadings []*models.SensorReading `json:"recent_readings,omitempty"`
}

const (
	detailReadingsWindow = 10 * time.Minute
	detailReadingsCap    = 50
)

// GetByID returns a single incident with its segment and recent
// readings joined in.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	inc, err := h.storage.Incidents().GetByID(ctx, id)
	if err != nil {
		log.Printf("get incident error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if inc == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "incident not found")
		return
	}

	detail := Detail{Incident: inc}

	detail.Segment, err = h.storage.Segments().GetByID(ctx, inc.RoadSegmentID)
	if err != nil {
		log.Printf("get incident segment error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	now := time.Now().UTC()
	var bundle detection.SegmentReadings
	if bundle.Flow, err = h.readings.RecentBySegment(ctx, inc.RoadSegmentID, models.SensorTypeFlow, detailReadingsWindow, now); err == nil {
		if bundle.Speed, err = h.readings.RecentBySegment(ctx, inc.RoadSegmentID, models.SensorTypeSpeed, detailReadingsWindow, now); err == nil {
			bundle.Stopped, err = h.readings.RecentBySegment(ctx, inc.RoadSegmentID, models.SensorTypeStoppedVehicle, detailReadingsWindow, now)
		}
	}
	if err != nil {
		log.Printf("get incident readings error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	detail.RecentReadings = bundle.Merged(detailReadingsCap)

	jsonOK(w, detail)
}

// Resolve transitions an OPEN incident to RESOLVED.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req ResolveRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
			return
		}
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	inc, err := h.ledger.Resolve(ctx, id, req.ResolutionNote, time.Now().UTC())
	if err != nil {
		switch {
		case errors.Is(err, incident.ErrNotFound):
			jsonError(w, http.StatusNotFound, errCodeNotFound, "incident not found")
		case errors.Is(err, incident.ErrAlreadyResolved):
			jsonError(w, http.StatusConflict, errCodeInvalidState, "incident is already resolved")
		default:
			log.Printf("resolve incident error: %v", err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		}
		return
	}

	if h.metrics != nil {
		h.metrics.IncidentsResolved.Inc()
	}
	if h.publisher != nil {
		if err := h.publisher.PublishResolved(ctx, inc); err != nil {
			log.Printf("publishing incident resolved event: %v", err)
		}
	}

	jsonOK(w, inc)
}
