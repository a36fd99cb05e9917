package server

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/teemow/workspace-agent/internal/instrumentation"
	"github.com/teemow/workspace-agent/internal/logging"
)

// RequestIDHeader carries the request id in both directions.
const RequestIDHeader = "X-Request-ID"

type contextKey int

const requestIDKey contextKey = iota

// RequestIDFromContext returns the id assigned by requestIDMiddleware.
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

// requestIDMiddleware reuses a well-formed incoming request id or assigns
// a new one, and echoes it in the response.
func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// accessLogMiddleware logs every request and records HTTP metrics.
// Status and size are captured by gorilla's logging handler.
func accessLogMiddleware(logger *slog.Logger, metrics *instrumentation.Metrics, next http.Handler) http.Handler {
	return handlers.CustomLoggingHandler(io.Discard, next, func(_ io.Writer, params handlers.LogFormatterParams) {
		duration := time.Since(params.TimeStamp)
		route := instrumentation.RouteLabel(params.URL.Path)
		ctx := params.Request.Context()

		metrics.RecordHTTPRequest(ctx, params.Request.Method, route, params.StatusCode, duration)

		level := slog.LevelInfo
		switch {
		case params.StatusCode >= http.StatusInternalServerError:
			level = slog.LevelError
		case params.StatusCode >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		// Paths are logged as route labels; the callback query holds codes.
		logger.LogAttrs(ctx, level, "HTTP request",
			logging.RequestID(RequestIDFromContext(ctx)),
			slog.String("method", params.Request.Method),
			slog.String("route", route),
			slog.Int("status", params.StatusCode),
			slog.Int("size", params.Size),
			slog.Duration("duration", duration))
	})
}

// securityHeadersMiddleware sets headers that keep API responses out of
// frames and stop content sniffing.
func securityHeadersMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		h.Set("Referrer-Policy", "no-referrer")
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware allows browser calls from origins. An empty list allows
// any origin, since the API authenticates with a session id rather than
// cookies.
func corsMiddleware(origins []string) func(http.Handler) http.Handler {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return handlers.CORS(
		handlers.AllowedOrigins(origins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Content-Type", "Authorization", "X-User-ID", RequestIDHeader}),
		handlers.ExposedHeaders([]string{RequestIDHeader}),
		handlers.MaxAge(600),
	)
}

// recoveryMiddleware turns a panic into a 500 and logs it.
func recoveryMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return handlers.RecoveryHandler(
		handlers.RecoveryLogger(slog.NewLogLogger(logger.Handler(), slog.LevelError)),
		handlers.PrintRecoveryStack(true),
	)
}

// observe wraps h with panic recovery, access logging, a server span and
// a request id, in that order from the inside out.
func observe(h http.Handler, logger *slog.Logger, metrics *instrumentation.Metrics) http.Handler {
	h = recoveryMiddleware(logger)(h)
	h = accessLogMiddleware(logger, metrics, h)
	h = otelhttp.NewHandler(h, "workspace-agent",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return r.Method + " " + instrumentation.RouteLabel(r.URL.Path)
		}))
	return requestIDMiddleware(h)
}
