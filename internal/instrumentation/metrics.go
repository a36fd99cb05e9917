package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys.
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
	attrSource    = "source"
)

// Metrics records the service's OpenTelemetry metrics.
// The zero value is a no-op recorder.
type Metrics struct {
	// HTTP metrics
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram
	rateLimitedTotal    metric.Int64Counter

	// Google API metrics
	googleAPIOperationsTotal   metric.Int64Counter
	googleAPIOperationDuration metric.Float64Histogram

	// Session and OAuth metrics
	sessionsCreatedTotal   metric.Int64Counter
	oauthAuthTotal         metric.Int64Counter
	oauthTokenRefreshTotal metric.Int64Counter
	reauthRequiredTotal    metric.Int64Counter

	// Slot finder metrics
	slotSearchesTotal metric.Int64Counter
	slotsReturned     metric.Int64Histogram

	// MCP tool metrics
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	detailedLabels bool
}

// NewMetrics creates all instruments on meter.
// detailedLabels keeps raw request paths instead of route templates.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	var err error
	secondsBuckets := metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0)

	if m.httpRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_requests_total counter: %w", err)
	}

	if m.httpRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.01, 0.1, 0.5, 1.0, 2.5, 5.0, 10.0),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_request_duration_seconds histogram: %w", err)
	}

	if m.rateLimitedTotal, err = meter.Int64Counter(
		"http_rate_limited_total",
		metric.WithDescription("Total number of HTTP requests rejected by the rate limiter"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create http_rate_limited_total counter: %w", err)
	}

	if m.googleAPIOperationsTotal, err = meter.Int64Counter(
		"google_api_operations_total",
		metric.WithDescription("Total number of Google API operations"),
		metric.WithUnit("{operation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create google_api_operations_total counter: %w", err)
	}

	if m.googleAPIOperationDuration, err = meter.Float64Histogram(
		"google_api_operation_duration_seconds",
		metric.WithDescription("Google API operation duration in seconds"),
		metric.WithUnit("s"),
		secondsBuckets,
	); err != nil {
		return nil, fmt.Errorf("failed to create google_api_operation_duration_seconds histogram: %w", err)
	}

	if m.sessionsCreatedTotal, err = meter.Int64Counter(
		"sessions_created_total",
		metric.WithDescription("Total number of sessions created by the OAuth callback"),
		metric.WithUnit("{session}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create sessions_created_total counter: %w", err)
	}

	if m.oauthAuthTotal, err = meter.Int64Counter(
		"oauth_auth_total",
		metric.WithDescription("Total number of OAuth authentication attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create oauth_auth_total counter: %w", err)
	}

	if m.oauthTokenRefreshTotal, err = meter.Int64Counter(
		"oauth_token_refresh_total",
		metric.WithDescription("Total number of OAuth token refresh attempts"),
		metric.WithUnit("{attempt}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create oauth_token_refresh_total counter: %w", err)
	}

	if m.reauthRequiredTotal, err = meter.Int64Counter(
		"session_reauth_required_total",
		metric.WithDescription("Total number of requests that required the user to reconnect"),
		metric.WithUnit("{request}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create session_reauth_required_total counter: %w", err)
	}

	if m.slotSearchesTotal, err = meter.Int64Counter(
		"slot_searches_total",
		metric.WithDescription("Total number of availability searches"),
		metric.WithUnit("{search}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create slot_searches_total counter: %w", err)
	}

	if m.slotsReturned, err = meter.Int64Histogram(
		"slots_returned",
		metric.WithDescription("Number of slots returned per availability search"),
		metric.WithUnit("{slot}"),
		metric.WithExplicitBucketBoundaries(0, 1, 2, 4, 6, 8, 10, 12),
	); err != nil {
		return nil, fmt.Errorf("failed to create slots_returned histogram: %w", err)
	}

	if m.toolInvocationsTotal, err = meter.Int64Counter(
		"mcp_tool_invocations_total",
		metric.WithDescription("Total number of MCP tool invocations"),
		metric.WithUnit("{invocation}"),
	); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_invocations_total counter: %w", err)
	}

	if m.toolDuration, err = meter.Float64Histogram(
		"mcp_tool_duration_seconds",
		metric.WithDescription("MCP tool execution duration in seconds"),
		metric.WithUnit("s"),
		secondsBuckets,
	); err != nil {
		return nil, fmt.Errorf("failed to create mcp_tool_duration_seconds histogram: %w", err)
	}

	return m, nil
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
// Unless detailed labels are enabled, path is reduced to a known route.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil || m.httpRequestDuration == nil {
		return
	}
	if !m.detailedLabels {
		path = RouteLabel(path)
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordRateLimited records a request rejected by the rate limiter.
func (m *Metrics) RecordRateLimited(ctx context.Context, path string) {
	if m == nil || m.rateLimitedTotal == nil {
		return
	}
	m.rateLimitedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrPath, RouteLabel(path))))
}

// RecordGoogleAPIOperation records a Google API operation with service,
// operation, status, and duration.
func (m *Metrics) RecordGoogleAPIOperation(ctx context.Context, service, operation, status string, duration time.Duration) {
	if m == nil || m.googleAPIOperationsTotal == nil || m.googleAPIOperationDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, status),
	)
	m.googleAPIOperationsTotal.Add(ctx, 1, attrs)
	m.googleAPIOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSessionCreated counts a new session.
func (m *Metrics) RecordSessionCreated(ctx context.Context) {
	if m == nil || m.sessionsCreatedTotal == nil {
		return
	}
	m.sessionsCreatedTotal.Add(ctx, 1)
}

// RecordOAuthAuth records an OAuth callback outcome.
// Result should be one of: "success", "failure"
func (m *Metrics) RecordOAuthAuth(ctx context.Context, result string) {
	if m == nil || m.oauthAuthTotal == nil {
		return
	}
	m.oauthAuthTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordOAuthTokenRefresh records an OAuth token refresh attempt with result.
// Result should be one of: "success", "failure", "expired"
func (m *Metrics) RecordOAuthTokenRefresh(ctx context.Context, result string) {
	if m == nil || m.oauthTokenRefreshTotal == nil {
		return
	}
	m.oauthTokenRefreshTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordReauthRequired counts a request that ended with the user having to reconnect.
func (m *Metrics) RecordReauthRequired(ctx context.Context) {
	if m == nil || m.reauthRequiredTotal == nil {
		return
	}
	m.reauthRequiredTotal.Add(ctx, 1)
}

// RecordSlotSearch records an availability search. source is "http" or "mcp".
func (m *Metrics) RecordSlotSearch(ctx context.Context, source, status string, slotCount int) {
	if m == nil || m.slotSearchesTotal == nil || m.slotsReturned == nil {
		return
	}

	m.slotSearchesTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrSource, source),
		attribute.String(attrStatus, status),
	))
	if status == StatusSuccess {
		m.slotsReturned.Record(ctx, int64(slotCount), metric.WithAttributes(attribute.String(attrSource, source)))
	}
}

// RecordToolInvocation records an MCP tool invocation with tool name, status, and duration.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil || m.toolDuration == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	)
	m.toolInvocationsTotal.Add(ctx, 1, attrs)
	m.toolDuration.Record(ctx, duration.Seconds(), attrs)
}
