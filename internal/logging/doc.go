// Package logging provides structured logging utilities for workspace-agent.
//
// This package centralizes logging patterns to ensure consistent, structured logging
// throughout the codebase using the standard library's slog package.
//
// # Usage Patterns
//
// Create a logger with standard attributes:
//
//	logger := logging.WithOperation(slog.Default(), "calendar.freebusy")
//	logger.Info("busy intervals fetched",
//	    logging.Status("success"))
//
// Sanitize sensitive data before logging:
//
//	logger.Info("session refreshed",
//	    logging.SessionHash(sessionID))
//
// # Security Considerations
//
//   - Session ids are hashed; they act as bearer credentials for the HTTP API
//   - Tokens are never logged directly, only their length
package logging
