package instrumentation

import (
	"context"
	"log/slog"
	"time"
)

// SessionEventType names an auditable change in a session's life.
type SessionEventType string

const (
	SessionCreated        SessionEventType = "session_created"
	SessionAuthFailed     SessionEventType = "session_auth_failed"
	SessionTokenRefreshed SessionEventType = "session_token_refreshed"
	SessionReauthRequired SessionEventType = "session_reauth_required"
)

// SessionEvent is one audit record. SessionHash must already be anonymized.
type SessionEvent struct {
	Type        SessionEventType
	SessionHash string
	OriginHost  string
	ClientIP    string
	Reason      string
	Time        time.Time

	TraceID string
	SpanID  string
}

// NewSessionEvent creates an event stamped with the current time and the
// trace context of ctx.
func NewSessionEvent(ctx context.Context, eventType SessionEventType, sessionHash string) *SessionEvent {
	return &SessionEvent{
		Type:        eventType,
		SessionHash: sessionHash,
		Time:        time.Now(),
		TraceID:     GetTraceID(ctx),
		SpanID:      GetSpanID(ctx),
	}
}

// WithOrigin sets the host the user is redirected back to.
func (e *SessionEvent) WithOrigin(host string) *SessionEvent {
	e.OriginHost = host
	return e
}

// WithClientIP sets the caller's address.
func (e *SessionEvent) WithClientIP(ip string) *SessionEvent {
	e.ClientIP = ip
	return e
}

// WithReason sets a failure reason.
func (e *SessionEvent) WithReason(reason string) *SessionEvent {
	e.Reason = reason
	return e
}

// Failed reports whether the event describes a failure.
func (e *SessionEvent) Failed() bool {
	return e.Type == SessionAuthFailed || e.Type == SessionReauthRequired
}

// LogAttrs returns the slog attributes of the event. The client IP is only
// included when includeClientIP is set.
func (e *SessionEvent) LogAttrs(includeClientIP bool) []slog.Attr {
	attrs := []slog.Attr{
		slog.String("event", string(e.Type)),
		slog.Time("at", e.Time),
	}
	if e.SessionHash != "" {
		attrs = append(attrs, slog.String("session_hash", e.SessionHash))
	}
	if e.OriginHost != "" {
		attrs = append(attrs, slog.String("origin_host", e.OriginHost))
	}
	if includeClientIP && e.ClientIP != "" {
		attrs = append(attrs, slog.String("client_ip", e.ClientIP))
	}
	if e.Reason != "" {
		attrs = append(attrs, slog.String("reason", e.Reason))
	}
	if e.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", e.TraceID))
	}
	if e.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", e.SpanID))
	}
	return attrs
}

// AuditLogger writes session events to a dedicated slog logger so they can
// be routed to secure storage.
type AuditLogger struct {
	logger          *slog.Logger
	includeClientIP bool
	enabled         bool
}

// NewAuditLogger creates an AuditLogger. A nil logger means slog.Default().
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:          logger.With(slog.String("log_type", "audit")),
		includeClientIP: config.IncludeClientIP,
		enabled:         config.Enabled,
	}
}

// LogSessionEvent writes e. Failures are logged at warn level.
// A nil AuditLogger discards events.
func (al *AuditLogger) LogSessionEvent(ctx context.Context, e *SessionEvent) {
	if al == nil || !al.enabled || e == nil {
		return
	}

	level := slog.LevelInfo
	if e.Failed() {
		level = slog.LevelWarn
	}
	al.logger.LogAttrs(ctx, level, "session_audit", e.LogAttrs(al.includeClientIP)...)
}
