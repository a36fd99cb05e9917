// Package instrumentation provides OpenTelemetry metrics, tracing and
// session audit logging for the workspace-agent service.
//
// # Metrics
//
// HTTP:
//   - http_requests_total: requests by method, route and status
//   - http_request_duration_seconds: request latency
//   - http_rate_limited_total: requests rejected by the per-client limiter
//
// Google API:
//   - google_api_operations_total: calls by service, operation and status
//   - google_api_operation_duration_seconds: call latency
//
// Sessions and OAuth:
//   - sessions_created_total
//   - oauth_auth_total: handshake results
//   - oauth_token_refresh_total: refresh attempts by result
//   - session_reauth_required_total: sessions that must reconnect
//
// Slot finder:
//   - slot_searches_total: searches by source (http, mcp) and status
//   - slots_returned: number of slots per search
//
// MCP tools:
//   - mcp_tool_invocations_total
//   - mcp_tool_duration_seconds
//
// Request paths are collapsed to known routes (see RouteLabel) unless
// detailed labels are enabled.
//
// # Tracing
//
// Spans are created for slot searches, MCP tool invocations (tool.<name>)
// and Google API calls (google.<service>.<operation>). Session ids are only
// ever attached as hashes.
//
// # Configuration
//
// DefaultConfig reads:
//   - INSTRUMENTATION_ENABLED (default: true)
//   - METRICS_EXPORTER: prometheus, otlp or stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout or none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT, OTEL_EXPORTER_OTLP_INSECURE
//   - OTEL_TRACES_SAMPLER_ARG (default: 0.1)
//   - OTEL_SERVICE_NAME (default: workspace-agent)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_CLIENT_IP
//
// # Example
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	provider.Metrics().RecordSlotSearch(ctx, "http", instrumentation.StatusSuccess, len(found))
package instrumentation
