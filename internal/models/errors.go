package models

import "fmt"

// ValidationError marks a malformed reading or batch. Callers at the
// API boundary map it to a 4xx response instead of a server error.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string {
	return e.msg
}

// Validationf builds a ValidationError with a formatted message.
func Validationf(format string, args ...any) *ValidationError {
	return &ValidationError{msg: fmt.Sprintf(format, args...)}
}
