package instrumentation

import "strings"

// Cardinality management helpers for metrics.
//
// Request paths are user-controlled. Recording them verbatim lets any
// client create unbounded label values, so HTTP metrics use RouteLabel.

// routes are the paths served by the HTTP API, the MCP HTTP transport and
// the metrics server.
var routes = map[string]struct{}{
	"/auth/google/url":      {},
	"/auth/google/callback": {},
	"/calendar/find-slots":  {},
	"/healthz":              {},
	"/healthz/detailed":     {},
	"/readyz":               {},
	"/metrics":              {},
	"/mcp":                  {},
}

// RouteOther is the label for paths that are not served routes.
const RouteOther = "other"

// RouteLabel maps a request path to a low-cardinality route label.
//
// Example:
//
//	RouteLabel("/calendar/find-slots")   // "/calendar/find-slots"
//	RouteLabel("/calendar/find-slots/")  // "/calendar/find-slots"
//	RouteLabel("/wp-login.php")          // "other"
func RouteLabel(path string) string {
	if path != "/" {
		path = strings.TrimSuffix(path, "/")
	}
	if _, ok := routes[path]; ok {
		return path
	}
	return RouteOther
}

// Operation types for Google API metrics.
// Status, OAuth, and Service constants are defined in config.go.
const (
	OperationFreeBusy      = "freebusy"
	OperationTokenExchange = "token_exchange"
	OperationTokenRefresh  = "token_refresh"
)
