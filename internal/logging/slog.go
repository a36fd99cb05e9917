package logging

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"strings"
)

// Common log attribute keys for consistent naming across the codebase.
const (
	KeyOperation   = "operation"
	KeyService     = "service"
	KeySessionHash = "session_hash"
	KeyRequestID   = "request_id"
	KeyDuration    = "duration"
	KeyStatus      = "status"
	KeyError       = "error"
	KeyTool        = "tool"
)

// Status values for consistent logging.
// Duplicated from the instrumentation package, which imports logging.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Format selects the slog handler used by New.
type Format string

const (
	FormatText Format = "text"
	FormatJSON Format = "json"
)

// New builds a logger writing to w. Debug enables debug level.
func New(w io.Writer, format Format, debug bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: slog.LevelInfo}
	if debug {
		opts.Level = slog.LevelDebug
	}
	if format == FormatJSON {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// WithOperation returns a logger with the operation attribute set.
func WithOperation(logger *slog.Logger, operation string) *slog.Logger {
	return logger.With(slog.String(KeyOperation, operation))
}

// WithService returns a logger with the service attribute set.
func WithService(logger *slog.Logger, service string) *slog.Logger {
	return logger.With(slog.String(KeyService, service))
}

// WithRequestID returns a logger carrying the request id.
func WithRequestID(logger *slog.Logger, requestID string) *slog.Logger {
	return logger.With(slog.String(KeyRequestID, requestID))
}

// Operation returns a slog attribute for the operation name.
func Operation(op string) slog.Attr {
	return slog.String(KeyOperation, op)
}

// Service returns a slog attribute for the service name.
func Service(svc string) slog.Attr {
	return slog.String(KeyService, svc)
}

// Tool returns a slog attribute for the tool name.
func Tool(tool string) slog.Attr {
	return slog.String(KeyTool, tool)
}

// Status returns a slog attribute for the status.
func Status(status string) slog.Attr {
	return slog.String(KeyStatus, status)
}

// RequestID returns a slog attribute for the request id.
func RequestID(id string) slog.Attr {
	return slog.String(KeyRequestID, id)
}

// Err returns a slog attribute for an error.
// If err is nil, returns an empty Group attribute that will be omitted from output.
//
// Usage:
//
//	logger.Info("operation", logging.Err(err))  // Safe even if err is nil
func Err(err error) slog.Attr {
	if err == nil {
		return slog.Group("")
	}
	return slog.String(KeyError, err.Error())
}

// AnonymizeSession returns a hashed representation of a session id.
// Session ids are bearer secrets and must never appear in logs verbatim.
func AnonymizeSession(sessionID string) string {
	if sessionID == "" {
		return ""
	}
	hash := sha256.Sum256([]byte(sessionID))
	return "session:" + hex.EncodeToString(hash[:8])
}

// SessionHash returns a slog attribute with the anonymized session id.
//
// Usage:
//
//	logger.Info("slots found", logging.SessionHash(sessionID))
func SessionHash(sessionID string) slog.Attr {
	return slog.String(KeySessionHash, AnonymizeSession(sessionID))
}

// SanitizeToken returns a masked version of a token for logging.
// Only the length is kept.
func SanitizeToken(token string) string {
	if token == "" {
		return "<empty>"
	}
	return fmt.Sprintf("[token:%d chars]", len(token))
}

// ExtractHost returns the host of an origin URL, or "" when it does not parse.
// Hosts keep redirect logging low-cardinality without paths or queries.
func ExtractHost(origin string) string {
	if origin == "" {
		return ""
	}
	u, err := url.Parse(origin)
	if err != nil || u.Host == "" {
		return ""
	}
	return strings.ToLower(u.Host)
}

// Origin returns a slog attribute for the host of a redirect origin.
func Origin(origin string) slog.Attr {
	return slog.String("origin_host", ExtractHost(origin))
}
