package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/workspace-agent/internal/availability"
	"github.com/teemow/workspace-agent/internal/google"
	"github.com/teemow/workspace-agent/internal/instrumentation"
	"github.com/teemow/workspace-agent/internal/server"
	"github.com/teemow/workspace-agent/internal/session"
)

// callbackPath is where Google sends the browser after consent.
const callbackPath = "/auth/google/callback"

// MetricsConfig holds configuration for the metrics server
type MetricsConfig struct {
	// Enabled determines whether to start the metrics server (default: true)
	Enabled bool

	// Addr is the address for the metrics server (e.g., ":9090")
	Addr string
}

// serveOptions holds every flag of the serve command.
type serveOptions struct {
	Log     LogConfig
	Google  GoogleConfig
	Storage SessionStorageConfig
	Metrics MetricsConfig

	HTTPAddr       string
	BaseURL        string
	FrontendURL    string
	AllowedOrigins []string

	RateLimit      float64
	RateLimitBurst int
	TrustProxy     bool
}

func newServeCmd() *cobra.Command {
	return (&serveOptions{}).command()
}

func (o *serveOptions) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		Long: `Start the HTTP API used by the dashboard frontend.

Endpoints:
  POST /auth/google/url         Google consent URL for an origin
  GET  /auth/google/callback    OAuth callback, redirects back with userId
  POST /calendar/find-slots     Free meeting slots (JSON, or ?format=ics)
  GET  /healthz, /readyz        Kubernetes health checks

OAuth Configuration:
  --google-client-id and --google-client-secret flags
  OR GOOGLE_CLIENT_ID and GOOGLE_CLIENT_SECRET env vars (required)

  The redirect URI registered with Google must be <base-url>/auth/google/callback.
  Base URL: --base-url https://your-domain.com OR BASE_URL env var
  (defaults to http://localhost:<port> for development)

Session Storage:
  memory (default): sessions are lost on restart and not shared by replicas
  valkey: --valkey-url OR VALKEY_URL, encrypt with SESSION_ENCRYPTION_KEY`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := o.loadEnv(cmd); err != nil {
				return err
			}
			return runServe(o)
		},
	}

	addLogFlags(cmd, &o.Log)
	addGoogleFlags(cmd, &o.Google)
	addSessionStorageFlags(cmd, &o.Storage)

	cmd.Flags().StringVar(&o.HTTPAddr, "http-addr", server.DefaultAddr, "HTTP server address. Can also use HTTP_ADDR env var.")
	cmd.Flags().StringVar(&o.BaseURL, "base-url", "", "Public base URL of this server, used for the OAuth redirect URI. Can also use BASE_URL env var. Example: https://agent.example.com")
	cmd.Flags().StringVar(&o.FrontendURL, "frontend-url", "", "Redirect target after sign-in, overriding the origin the flow started from. Can also use FRONTEND_URL env var.")
	cmd.Flags().StringSliceVar(&o.AllowedOrigins, "allowed-origins", nil, "Frontend origins allowed for CORS and as sign-in return targets (comma-separated). Empty allows any. Can also use ALLOWED_ORIGINS env var.")

	cmd.Flags().Float64Var(&o.RateLimit, "rate-limit", server.DefaultRateLimit, "Requests per second per client IP on API routes (0 disables). Can also use RATE_LIMIT_RPS env var.")
	cmd.Flags().IntVar(&o.RateLimitBurst, "rate-limit-burst", server.DefaultRateLimitBurst, "Burst size per client IP. Can also use RATE_LIMIT_BURST env var.")
	cmd.Flags().BoolVar(&o.TrustProxy, "trust-proxy", false, "Use X-Forwarded-For and X-Real-IP for client IPs. Enable only behind a proxy. Can also use TRUST_PROXY env var.")

	cmd.Flags().BoolVar(&o.Metrics.Enabled, "metrics-enabled", true, "Enable the metrics server on a dedicated port. Can also use METRICS_ENABLED env var.")
	cmd.Flags().StringVar(&o.Metrics.Addr, "metrics-addr", server.DefaultMetricsAddr, "Metrics server address. Can also use METRICS_ADDR env var.")

	return cmd
}

// loadEnv applies environment variables to every flag not set explicitly.
func (o *serveOptions) loadEnv(cmd *cobra.Command) error {
	if err := loadLogEnvVars(cmd, &o.Log); err != nil {
		return err
	}
	loadGoogleEnvVars(cmd, &o.Google)
	if err := loadSessionStorageEnvVars(cmd, &o.Storage); err != nil {
		return err
	}

	envString(cmd, "http-addr", "HTTP_ADDR", &o.HTTPAddr)
	envString(cmd, "base-url", "BASE_URL", &o.BaseURL)
	envString(cmd, "frontend-url", "FRONTEND_URL", &o.FrontendURL)
	envList(cmd, "allowed-origins", "ALLOWED_ORIGINS", &o.AllowedOrigins)
	envString(cmd, "metrics-addr", "METRICS_ADDR", &o.Metrics.Addr)

	for _, err := range []error{
		envFloat(cmd, "rate-limit", "RATE_LIMIT_RPS", &o.RateLimit),
		envInt(cmd, "rate-limit-burst", "RATE_LIMIT_BURST", &o.RateLimitBurst),
		envBool(cmd, "trust-proxy", "TRUST_PROXY", &o.TrustProxy),
		envBool(cmd, "metrics-enabled", "METRICS_ENABLED", &o.Metrics.Enabled),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// redirectURL returns the OAuth redirect URI for the configured base URL,
// falling back to localhost on the listen port.
func (o *serveOptions) redirectURL() (string, error) {
	base := strings.TrimSuffix(o.BaseURL, "/")
	if base == "" {
		_, port, err := net.SplitHostPort(o.HTTPAddr)
		if err != nil {
			return "", fmt.Errorf("invalid http address %q: %w", o.HTTPAddr, err)
		}
		base = "http://localhost:" + port
	}

	u, err := url.Parse(base)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return "", fmt.Errorf("invalid base URL %q: must be an absolute http(s) URL", o.BaseURL)
	}
	return base + callbackPath, nil
}

func runServe(o *serveOptions) error {
	logger, err := newLogger(os.Stderr, o.Log)
	if err != nil {
		return err
	}

	if o.Google.ClientID == "" || o.Google.ClientSecret == "" {
		return errors.New("google client id and secret are required (--google-client-id/--google-client-secret or GOOGLE_CLIENT_ID/GOOGLE_CLIENT_SECRET)")
	}
	redirectURL, err := o.redirectURL()
	if err != nil {
		return err
	}

	// Setup graceful shutdown
	shutdownCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Initialize instrumentation provider
	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	if err := instrConfig.Validate(); err != nil {
		return fmt.Errorf("invalid instrumentation config: %w", err)
	}
	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		if err := provider.Shutdown(ctx); err != nil {
			logger.Error("Error during instrumentation shutdown", slog.Any("error", err))
		}
	}()
	metrics := provider.Metrics()
	audit := instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging)

	metricsServer, err := startMetricsServer(o.Metrics, provider, logger)
	if err != nil {
		return err
	}

	store, err := newSessionStore(o.Storage, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	oauthConfig := google.OAuthConfig(o.Google.ClientID, o.Google.ClientSecret, redirectURL)
	sessions, err := session.NewProvider(session.ProviderConfig{
		OAuth:      oauthConfig,
		Store:      store,
		HTTPClient: google.NewTracedHTTPClient(google.DefaultHTTPTimeout),
		Metrics:    metrics,
		Audit:      audit,
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	finder, err := availability.NewService(availability.Config{
		Credentials: sessions,
		Metrics:     metrics,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	states := newStateStore(store, logger)
	defer states.Stop()

	health := server.NewHealthChecker(version)
	if p, ok := store.(pinger); ok {
		health.AddCheck("session_store", p.Ping)
	}

	srv, err := server.New(server.Config{
		Addr:           o.HTTPAddr,
		OAuth:          oauthConfig,
		Sessions:       sessions,
		Finder:         finder,
		States:         states,
		AllowedOrigins: o.AllowedOrigins,
		FrontendURL:    o.FrontendURL,
		RateLimit: server.RateLimitConfig{
			RequestsPerSecond: o.RateLimit,
			Burst:             o.RateLimitBurst,
			TrustProxy:        o.TrustProxy,
		},
		Health:  health,
		Metrics: metrics,
		Audit:   audit,
		Logger:  logger,
	})
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()
	logger.Info("workspace-agent started",
		slog.String("version", version),
		slog.String("addr", o.HTTPAddr),
		slog.String("redirect_url", redirectURL))

	select {
	case <-shutdownCtx.Done():
		logger.Info("Shutdown signal received")
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("HTTP server failed: %w", err)
		}
		return nil
	}

	ctx, cancelShutdown := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancelShutdown()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("HTTP server shutdown failed", slog.Any("error", err))
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(ctx); err != nil {
			logger.Error("Metrics server shutdown failed", slog.Any("error", err))
		}
	}
	logger.Info("HTTP server gracefully stopped")
	return nil
}

// startMetricsServer starts the metrics server when it is enabled and the
// provider exports to Prometheus. It returns nil when nothing was started.
func startMetricsServer(config MetricsConfig, provider *instrumentation.Provider, logger *slog.Logger) (*server.MetricsServer, error) {
	if !config.Enabled || !provider.Enabled() {
		return nil, nil
	}
	if !provider.ServesPrometheus() {
		logger.Info("Metrics are pushed by the configured exporter; not starting the metrics server")
		return nil, nil
	}

	metricsServer, err := server.NewMetricsServer(server.MetricsServerConfig{
		Addr:                    config.Addr,
		InstrumentationProvider: provider,
		Logger:                  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create metrics server: %w", err)
	}

	// Use ready channel to confirm metrics server started successfully
	metricsErr := make(chan error, 1)
	go func() {
		metricsErr <- metricsServer.Start()
	}()

	select {
	case <-metricsServer.Ready():
		logger.Info("Metrics server started", slog.String("addr", metricsServer.Addr()))
		return metricsServer, nil
	case err := <-metricsErr:
		return nil, fmt.Errorf("metrics server failed to start: %w", err)
	case <-time.After(5 * time.Second):
		return nil, errors.New("metrics server startup timed out")
	}
}

// newStateStore keeps OAuth state nonces next to the sessions when that
// store is shared, so the callback may land on any replica.
func newStateStore(store session.Store, logger *slog.Logger) *session.StateStore {
	if nonces, ok := store.(session.NonceStore); ok {
		return session.NewSharedStateStore(session.DefaultStateTTL, nonces)
	}
	return session.NewStateStore(session.DefaultStateTTL, logger)
}
