package instrumentation

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"
)

const (
	testSessionHash = "session:0123456789abcdef"
	testOriginHost  = "app.example.com"
	testClientIP    = "203.0.113.7"
)

func newTestAuditLogger(t *testing.T, config AuditLoggingConfig) (*AuditLogger, *bytes.Buffer) {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewAuditLogger(logger, config), &buf
}

func decodeAuditLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("failed to decode audit line %q: %v", buf.String(), err)
	}
	return entry
}

func TestNewSessionEvent(t *testing.T) {
	e := NewSessionEvent(context.Background(), SessionCreated, testSessionHash)

	if e.Type != SessionCreated {
		t.Errorf("Type = %q, want %q", e.Type, SessionCreated)
	}
	if e.SessionHash != testSessionHash {
		t.Errorf("SessionHash = %q, want %q", e.SessionHash, testSessionHash)
	}
	if e.Time.IsZero() {
		t.Error("Time should not be zero")
	}
	if e.TraceID != "" {
		t.Errorf("TraceID = %q, want empty without a span", e.TraceID)
	}
}

func TestSessionEvent_Failed(t *testing.T) {
	tests := []struct {
		eventType SessionEventType
		want      bool
	}{
		{SessionCreated, false},
		{SessionTokenRefreshed, false},
		{SessionAuthFailed, true},
		{SessionReauthRequired, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.eventType), func(t *testing.T) {
			e := NewSessionEvent(context.Background(), tt.eventType, "")
			if got := e.Failed(); got != tt.want {
				t.Errorf("Failed() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuditLogger_LogSessionEvent(t *testing.T) {
	al, buf := newTestAuditLogger(t, AuditLoggingConfig{Enabled: true})

	e := NewSessionEvent(context.Background(), SessionCreated, testSessionHash).
		WithOrigin(testOriginHost).
		WithClientIP(testClientIP)
	al.LogSessionEvent(context.Background(), e)

	entry := decodeAuditLine(t, buf)
	if entry["msg"] != "session_audit" {
		t.Errorf("msg = %v, want session_audit", entry["msg"])
	}
	if entry["log_type"] != "audit" {
		t.Errorf("log_type = %v, want audit", entry["log_type"])
	}
	if entry["level"] != "INFO" {
		t.Errorf("level = %v, want INFO", entry["level"])
	}
	if entry["event"] != string(SessionCreated) {
		t.Errorf("event = %v, want %s", entry["event"], SessionCreated)
	}
	if entry["session_hash"] != testSessionHash {
		t.Errorf("session_hash = %v, want %s", entry["session_hash"], testSessionHash)
	}
	if entry["origin_host"] != testOriginHost {
		t.Errorf("origin_host = %v, want %s", entry["origin_host"], testOriginHost)
	}
	if _, ok := entry["client_ip"]; ok {
		t.Error("client_ip should be omitted unless IncludeClientIP is set")
	}
}

func TestAuditLogger_IncludeClientIP(t *testing.T) {
	al, buf := newTestAuditLogger(t, AuditLoggingConfig{Enabled: true, IncludeClientIP: true})

	e := NewSessionEvent(context.Background(), SessionAuthFailed, "").
		WithClientIP(testClientIP).
		WithReason("invalid_state")
	al.LogSessionEvent(context.Background(), e)

	entry := decodeAuditLine(t, buf)
	if entry["client_ip"] != testClientIP {
		t.Errorf("client_ip = %v, want %s", entry["client_ip"], testClientIP)
	}
	if entry["reason"] != "invalid_state" {
		t.Errorf("reason = %v, want invalid_state", entry["reason"])
	}
	if entry["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", entry["level"])
	}
	if _, ok := entry["session_hash"]; ok {
		t.Error("empty session_hash should be omitted")
	}
}

func TestAuditLogger_Disabled(t *testing.T) {
	al, buf := newTestAuditLogger(t, AuditLoggingConfig{Enabled: false})

	al.LogSessionEvent(context.Background(), NewSessionEvent(context.Background(), SessionCreated, testSessionHash))

	if buf.Len() != 0 {
		t.Errorf("expected no output when disabled, got %q", buf.String())
	}
}

func TestAuditLogger_NilSafe(t *testing.T) {
	var al *AuditLogger
	al.LogSessionEvent(context.Background(), NewSessionEvent(context.Background(), SessionCreated, testSessionHash))

	enabled, _ := newTestAuditLogger(t, AuditLoggingConfig{Enabled: true})
	enabled.LogSessionEvent(context.Background(), nil)
}

func TestNewAuditLogger_DefaultLogger(t *testing.T) {
	al := NewAuditLogger(nil, AuditLoggingConfig{Enabled: true})
	if al.logger == nil {
		t.Fatal("logger should default to slog.Default()")
	}
}
