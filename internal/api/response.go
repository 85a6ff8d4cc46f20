package api

import (
	"encoding/json"
	"net/http"
)

// Response is the envelope every endpoint writes. Exactly one of
// Data or Error is set.
type Response struct {
	Data  any    `json:"data,omitempty"`
	Error *Error `json:"error,omitempty"`
}

// JSONError writes a JSON error response with the error's status.
func JSONError(w http.ResponseWriter, err *Error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(err.Status)
	json.NewEncoder(w).Encode(Response{Error: err})
}
