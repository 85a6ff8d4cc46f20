// Package segments handles road topology queries.
package segments

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

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
	errCodeBadRequest    = "BAD_REQUEST"
	errCodeNotFound      = "NOT_FOUND"
	errCodeInternalError = "INTERNAL_ERROR"
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

type Handler struct {
	storage storage.Storage
}

func NewHandler(store storage.Storage) *Handler {
	return &Handler{storage: store}
}

// List returns all road segments.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.storage.Segments().List(r.Context())
	if err != nil {
		log.Printf("list segments error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, list)
}

// GetByID returns a single road segment.
func (h *Handler) GetByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid segment id")
		return
	}

	segment, err := h.storage.Segments().GetByID(r.Context(), id)
	if err != nil {
		log.Printf("get segment error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if segment == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "segment not found")
		return
	}

	jsonOK(w, segment)
}

// ListAllSensors returns every registered sensor.
func (h *Handler) ListAllSensors(w http.ResponseWriter, r *http.Request) {
	sensors, err := h.storage.Sensors().List(r.Context())
	if err != nil {
		log.Printf("list sensors error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, sensors)
}

// ListSensors returns the sensors attached to a segment.
func (h *Handler) ListSensors(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid segment id")
		return
	}

	segment, err := h.storage.Segments().GetByID(r.Context(), id)
	if err != nil {
		log.Printf("get segment error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if segment == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "segment not found")
		return
	}

	sensors, err := h.storage.Sensors().ListBySegment(r.Context(), id)
	if err != nil {
		log.Printf("list sensors error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, sensors)
}
