package client

import (
	"errors"
	"fmt"
	"net/http"

	"memorymap/internal/memory"
)

var (
	// ErrServer is a 5xx answer: the operator has to act, retrying won't help.
	ErrServer = errors.New("server error")

	// ErrTransient is a network failure or throttling.
	ErrTransient = errors.New("temporary network error")
)

// APIError is a non-2xx answer. It unwraps to the memory error taxonomy
// (ErrValidation, ErrUnauthorized, ErrForbidden) or to ErrServer/ErrTransient.
type APIError struct {
	Status  int
	Message string
	kind    error
}

func NewAPIError(status int, message string) *APIError {
	return &APIError{Status: status, Message: message, kind: kindForStatus(status)}
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%d: %v", e.Status, e.kind)
	}
	return fmt.Sprintf("%d: %s", e.Status, e.Message)
}

func (e *APIError) Unwrap() error { return e.kind }

func kindForStatus(status int) error {
	switch status {
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge:
		return memory.ErrValidation
	case http.StatusUnauthorized:
		return memory.ErrUnauthorized
	case http.StatusForbidden:
		return memory.ErrForbidden
	case http.StatusNotFound:
		return memory.ErrNotFound
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusGatewayTimeout:
		return ErrTransient
	default:
		return ErrServer
	}
}
