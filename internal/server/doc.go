// Package server provides the HTTP API of the workspace agent and its
// Prometheus metrics server.
//
// # Routes
//
//   - POST /auth/google/url: returns the Google consent URL for an origin
//   - GET /auth/google/callback: exchanges the code and redirects back with
//     userId and auth=success, or auth=failed
//   - POST /calendar/find-slots: proposes free slots as JSON, or as
//     iCalendar with ?format=ics
//   - GET /healthz, /readyz, /healthz/detailed: Kubernetes health checks
//
// The caller's session id travels in the X-User-ID header or the userId
// body field. Errors are JSON objects with a single error field.
//
// # Middleware
//
// Every request gets a request id, an access log line and HTTP metrics.
// Responses carry security headers and CORS headers for the allowed
// origins. API routes are rate limited per client IP; health endpoints are
// not.
package server
