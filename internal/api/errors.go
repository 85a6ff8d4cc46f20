package api

import "net/http"

// Error represents an API error response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"-"`
}

func (e *Error) Error() string {
	return e.Message
}

// Router-level errors. Handler packages render their own envelopes;
// these cover requests that never reach a handler.
var (
	ErrRouteNotFound = &Error{
		Code:    "NOT_FOUND",
		Message: "route not found",
		Status:  http.StatusNotFound,
	}

	ErrMethodNotAllowed = &Error{
		Code:    "METHOD_NOT_ALLOWED",
		Message: "method not allowed",
		Status:  http.StatusMethodNotAllowed,
	}
)
