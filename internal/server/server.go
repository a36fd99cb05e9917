package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"golang.org/x/oauth2"

	"github.com/teemow/workspace-agent/internal/instrumentation"
	"github.com/teemow/workspace-agent/internal/session"
)

const (
	// DefaultAddr is the default address of the API server.
	DefaultAddr = ":8080"

	// DefaultMaxBodyBytes bounds request bodies.
	DefaultMaxBodyBytes = 64 << 10

	defaultReadHeaderTimeout = 10 * time.Second
	defaultWriteTimeout      = 60 * time.Second
	defaultIdleTimeout       = 120 * time.Second
)

// Config configures a Server.
type Config struct {
	Addr string

	// OAuth builds the consent URL. Its RedirectURL must point at
	// /auth/google/callback of this server.
	OAuth *oauth2.Config

	Sessions Exchanger
	Finder   SlotFinder
	States   *session.StateStore

	// AllowedOrigins lists the frontend origins (scheme://host[:port])
	// allowed for CORS and as OAuth return targets. Empty allows any.
	AllowedOrigins []string

	// FrontendURL, when set, replaces the origin from the OAuth state as
	// the callback redirect target.
	FrontendURL string

	RateLimit    RateLimitConfig
	MaxBodyBytes int64

	Health  *HealthChecker
	Metrics *instrumentation.Metrics
	Audit   *instrumentation.AuditLogger
	Logger  *slog.Logger
}

// Server is the HTTP API of the agent.
type Server struct {
	addr         string
	oauth        *oauth2.Config
	sessions     Exchanger
	finder       SlotFinder
	states       *session.StateStore
	allowedHosts []string
	origins      []string
	frontendURL  string
	trustProxy   bool
	maxBodyBytes int64

	limiter *RateLimiter
	health  *HealthChecker
	metrics *instrumentation.Metrics
	audit   *instrumentation.AuditLogger
	logger  *slog.Logger
	now     func() time.Time

	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	listener   net.Listener
}

// New creates a Server and builds its routes.
func New(config Config) (*Server, error) {
	if config.OAuth == nil {
		return nil, errors.New("oauth config is required")
	}
	if config.Sessions == nil {
		return nil, errors.New("session exchanger is required")
	}
	if config.Finder == nil {
		return nil, errors.New("slot finder is required")
	}
	if config.States == nil {
		return nil, errors.New("state store is required")
	}

	hosts, err := originHosts(config.AllowedOrigins)
	if err != nil {
		return nil, err
	}
	if config.FrontendURL != "" {
		if err := session.ValidateOrigin(config.FrontendURL, nil); err != nil {
			return nil, fmt.Errorf("invalid frontend URL: %w", err)
		}
	}

	if config.Addr == "" {
		config.Addr = DefaultAddr
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if config.Health == nil {
		config.Health = NewHealthChecker("")
	}
	if config.Logger == nil {
		config.Logger = slog.Default()
	}

	s := &Server{
		addr:         config.Addr,
		oauth:        config.OAuth,
		sessions:     config.Sessions,
		finder:       config.Finder,
		states:       config.States,
		allowedHosts: hosts,
		origins:      config.AllowedOrigins,
		frontendURL:  config.FrontendURL,
		trustProxy:   config.RateLimit.TrustProxy,
		maxBodyBytes: config.MaxBodyBytes,
		health:       config.Health,
		metrics:      config.Metrics,
		audit:        config.Audit,
		logger:       config.Logger,
		now:          time.Now,
	}
	if config.RateLimit.RequestsPerSecond > 0 {
		s.limiter = NewRateLimiter(config.RateLimit, config.Metrics)
	}
	s.handler = s.routes()
	return s, nil
}

// originHosts returns the lowercased hosts of origins.
func originHosts(origins []string) ([]string, error) {
	hosts := make([]string, 0, len(origins))
	for _, origin := range origins {
		u, err := url.Parse(origin)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid allowed origin %q", origin)
		}
		hosts = append(hosts, strings.ToLower(u.Host))
	}
	return hosts, nil
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	s.health.RegisterHealthEndpoints(r)

	api := r.NewRoute().Subrouter()
	if s.limiter != nil {
		api.Use(s.limiter.Middleware)
	}
	api.HandleFunc("/auth/google/url", s.handleAuthURL).Methods(http.MethodPost)
	api.HandleFunc("/auth/google/callback", s.handleAuthCallback).Methods(http.MethodGet)
	api.HandleFunc("/calendar/find-slots", s.handleFindSlots).Methods(http.MethodPost)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusNotFound, "Not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	var h http.Handler = r
	h = securityHeadersMiddleware(h)
	h = corsMiddleware(s.origins)(h)
	return observe(h, s.logger, s.metrics)
}

// Handler returns the root handler with all middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start listens on the configured address, marks the server ready and
// serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}

	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: defaultReadHeaderTimeout,
		WriteTimeout:      defaultWriteTimeout,
		IdleTimeout:       defaultIdleTimeout,
	}
	s.mu.Lock()
	s.listener = ln
	s.httpServer = srv
	s.mu.Unlock()

	s.health.SetReady(true)
	s.logger.Info("HTTP server listening", slog.String("addr", ln.Addr().String()))

	if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Addr returns the bound address once started, else the configured one.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Shutdown marks the server as draining, stops accepting requests and
// waits for in-flight ones until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
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
