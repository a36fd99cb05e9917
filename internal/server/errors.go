package server

import (
	"errors"
	"net/http"

	"github.com/teemow/workspace-agent/internal/availability"
	"github.com/teemow/workspace-agent/internal/session"
	"github.com/teemow/workspace-agent/internal/slots"
)

// Error messages returned to clients.
const (
	msgAuthRequired   = "Authentication required"
	msgInvalidRequest = "Invalid request"
	msgUpstream       = "Failed to process calendar request"
	msgInternal       = "Internal server error"
)

// errorResponse is the JSON body of every error.
type errorResponse struct {
	Error string `json:"error"`
}

// HTTPError pairs a status code with the message a client sees.
type HTTPError struct {
	Status  int
	Message string
}

// classifyError maps a handler error to its HTTP form. Messages of
// validation errors are passed through; everything from upstream is
// reduced to a generic message.
func classifyError(err error) HTTPError {
	switch {
	case errors.Is(err, availability.ErrInvalidRequest),
		errors.Is(err, slots.ErrInvalidConfiguration):
		return HTTPError{Status: http.StatusBadRequest, Message: err.Error()}
	case errors.Is(err, session.ErrNeedsReauth):
		return HTTPError{Status: http.StatusUnauthorized, Message: session.ReconnectMessage}
	case errors.Is(err, session.ErrSessionNotFound),
		errors.Is(err, session.ErrInvalidSession):
		return HTTPError{Status: http.StatusUnauthorized, Message: msgAuthRequired}
	default:
		return HTTPError{Status: http.StatusBadGateway, Message: msgUpstream}
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
