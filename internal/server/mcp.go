package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"

	"github.com/gorilla/mux"

	"github.com/teemow/workspace-agent/internal/instrumentation"
)

const (
	// DefaultMCPAddr is the default address of the MCP HTTP transport.
	DefaultMCPAddr = ":8081"

	// MCPEndpointPath is where the streamable HTTP transport is mounted.
	MCPEndpointPath = "/mcp"
)

// MCPServerConfig configures an MCPServer.
type MCPServerConfig struct {
	Addr string

	// Handler serves the MCP protocol at MCPEndpointPath.
	Handler http.Handler

	RateLimit RateLimitConfig

	Health  *HealthChecker
	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

// MCPServer serves an MCP handler over HTTP with the same request ids,
// access logs, spans, panic recovery and per-IP rate limiting as the API.
type MCPServer struct {
	addr    string
	handler http.Handler
	limiter *RateLimiter
	health  *HealthChecker
	logger  *slog.Logger

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// NewMCPServer creates an MCPServer.
func NewMCPServer(config MCPServerConfig) (*MCPServer, error) {
	if config.Handler == nil {
		return nil, errors.New("mcp handler is required")
	}
	if config.Addr == "" {
		config.Addr = DefaultMCPAddr
	}
	if config.Health == nil {
		config.Health = NewHealthChecker("")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &MCPServer{
		addr:   config.Addr,
		health: config.Health,
		logger: config.Logger,
	}
	if config.RateLimit.RequestsPerSecond > 0 {
		s.limiter = NewRateLimiter(config.RateLimit, config.Metrics)
	}

	r := mux.NewRouter()
	s.health.RegisterHealthEndpoints(r)
	api := r.NewRoute().Subrouter()
	if s.limiter != nil {
		api.Use(s.limiter.Middleware)
	}
	api.Handle(MCPEndpointPath, config.Handler)
	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})

	s.handler = observe(r, s.logger, config.Metrics)
	return s, nil
}

// Handler returns the root handler with all middleware applied.
func (s *MCPServer) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address, marks the server ready and
// serves until Shutdown.
func (s *MCPServer) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	// Streams stay open, so there is no write timeout.
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	s.mu.Lock()
	s.listener = ln
	s.httpServer = srv
	s.mu.Unlock()

	s.health.SetReady(true)
	s.logger.Info("MCP server listening", slog.String("addr", ln.Addr().String()))

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *MCPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown stops the rate limiter and the HTTP server, waiting for
// in-flight requests until ctx is done.
func (s *MCPServer) Shutdown(ctx context.Context) error {
	s.health.SetShuttingDown()
	s.health.SetReady(false)
	if s.limiter != nil {
		s.limiter.Stop()
	}

	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
