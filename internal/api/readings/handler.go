// Package readings handles sensor reading ingestion and queries.
package readings

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/good-yellow-bee/roadwatch/internal/ingest"
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

func jsonCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(dataResponse{Data: data})
}

// maxBatchSize caps a single submitted batch.
const maxBatchSize = 5000

// defaultQueryWindow is the reading window returned when the client
// does not pass one.
const defaultQueryWindow = 15 * time.Minute

type Handler struct {
	pipeline     *ingest.Pipeline
	readings     storage.ReadingRepository
	queryTimeout time.Duration
}

func NewHandler(pipeline *ingest.Pipeline, readings storage.ReadingRepository, queryTimeout time.Duration) *Handler {
	return &Handler{pipeline: pipeline, readings: readings, queryTimeout: queryTimeout}
}

// BatchRequest is a batch of sensor readings to ingest.
type BatchRequest struct {
	Readings []ingest.ReadingInput `json:"readings"`
}

// SubmitBatch ingests a reading batch. The batch is atomic: any
// invalid reading rejects the whole batch.
func (h *Handler) SubmitBatch(w http.ResponseWriter, r *http.Request) {
	var req BatchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if len(req.Readings) == 0 {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "readings must not be empty")
		return
	}
	if len(req.Readings) > maxBatchSize {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "batch exceeds maximum size")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	result, err := h.pipeline.Submit(ctx, req.Readings)
	if err != nil {
		var verr *models.ValidationError
		if errors.As(err, &verr) {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, verr.Error())
			return
		}
		log.Printf("submit batch error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonCreated(w, result)
}

// ListBySegment returns recent readings for one segment, grouped by
// sensor type. Query params: window (duration, default 15m).
func (h *Handler) ListBySegment(w http.ResponseWriter, r *http.Request) {
	segmentID, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid segment id")
		return
	}

	window := defaultQueryWindow
	if raw := r.URL.Query().Get("window"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid window duration")
			return
		}
		window = d
	}

	ctx, cancel := context.WithTimeout(r.Context(), h.queryTimeout)
	defer cancel()

	now := time.Now().UTC()
	out := make(map[string][]*models.SensorReading, 3)
	for _, typ := range []models.SensorType{models.SensorTypeFlow, models.SensorTypeSpeed, models.SensorTypeStoppedVehicle} {
		rows, err := h.readings.RecentBySegment(ctx, segmentID, typ, window, now)
		if err != nil {
			log.Printf("list readings error: %v", err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
		out[string(typ)] = rows
	}

	jsonOK(w, out)
}
