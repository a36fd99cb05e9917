package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/teemow/workspace-agent/internal/availability"
	"github.com/teemow/workspace-agent/internal/google"
	"github.com/teemow/workspace-agent/internal/instrumentation"
	"github.com/teemow/workspace-agent/internal/server"
	"github.com/teemow/workspace-agent/internal/session"
	"github.com/teemow/workspace-agent/internal/tools/slot_tools"
)

// Supported MCP transports.
const (
	transportStdio          = "stdio"
	transportStreamableHTTP = "streamable-http"
)

// mcpOptions holds every flag of the mcp command.
type mcpOptions struct {
	Log     LogConfig
	Google  GoogleConfig
	Storage SessionStorageConfig

	Transport string
	HTTPAddr  string

	RateLimit      float64
	RateLimitBurst int
	TrustProxy     bool
}

func newMCPCmd() *cobra.Command {
	return (&mcpOptions{}).command()
}

func (o *mcpOptions) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Start the MCP server",
		Long: `Start the Model Context Protocol (MCP) server with the slot tools.

Tools:
  compute_slots          Slots from busy intervals passed in (always available)
  find_available_slots   Slots from the primary calendar of a session created
                         by the serve command. Requires Google credentials and
                         the same session storage as serve (valkey).

Supports multiple transport types:
  - stdio: Standard input/output (default)
  - streamable-http: Streamable HTTP transport`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadLogEnvVars(cmd, &o.Log); err != nil {
				return err
			}
			loadGoogleEnvVars(cmd, &o.Google)
			if err := loadSessionStorageEnvVars(cmd, &o.Storage); err != nil {
				return err
			}
			if err := o.loadEnv(cmd); err != nil {
				return err
			}
			return runMCP(o)
		},
	}

	addLogFlags(cmd, &o.Log)
	addGoogleFlags(cmd, &o.Google)
	addSessionStorageFlags(cmd, &o.Storage)
	cmd.Flags().StringVar(&o.Transport, "transport", transportStdio, "Transport type: stdio or streamable-http. Can also use MCP_TRANSPORT env var.")
	cmd.Flags().StringVar(&o.HTTPAddr, "http-addr", server.DefaultMCPAddr, "HTTP server address (for streamable-http transport). Can also use MCP_HTTP_ADDR env var.")
	cmd.Flags().Float64Var(&o.RateLimit, "rate-limit", server.DefaultRateLimit, "Requests per second per client IP on /mcp (0 disables). Can also use RATE_LIMIT_RPS env var.")
	cmd.Flags().IntVar(&o.RateLimitBurst, "rate-limit-burst", server.DefaultRateLimitBurst, "Burst size per client IP. Can also use RATE_LIMIT_BURST env var.")
	cmd.Flags().BoolVar(&o.TrustProxy, "trust-proxy", false, "Use X-Forwarded-For and X-Real-IP for client IPs. Enable only behind a proxy. Can also use TRUST_PROXY env var.")

	return cmd
}

// loadEnv applies the transport environment variables to every flag not
// set explicitly.
func (o *mcpOptions) loadEnv(cmd *cobra.Command) error {
	envString(cmd, "transport", "MCP_TRANSPORT", &o.Transport)
	envString(cmd, "http-addr", "MCP_HTTP_ADDR", &o.HTTPAddr)
	for _, err := range []error{
		envFloat(cmd, "rate-limit", "RATE_LIMIT_RPS", &o.RateLimit),
		envInt(cmd, "rate-limit-burst", "RATE_LIMIT_BURST", &o.RateLimitBurst),
		envBool(cmd, "trust-proxy", "TRUST_PROXY", &o.TrustProxy),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

func runMCP(o *mcpOptions) error {
	// stdout carries the protocol in stdio mode, so logs always go to stderr.
	logger, err := newLogger(os.Stderr, o.Log)
	if err != nil {
		return err
	}
	if o.Transport != transportStdio && o.Transport != transportStreamableHTTP {
		return fmt.Errorf("unsupported transport type: %s (supported: stdio, streamable-http)", o.Transport)
	}

	shutdownCtx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	instrConfig := instrumentation.DefaultConfig()
	instrConfig.ServiceVersion = version
	provider, err := instrumentation.NewProvider(shutdownCtx, instrConfig)
	if err != nil {
		return fmt.Errorf("failed to create instrumentation provider: %w", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
		defer cancel()
		_ = provider.Shutdown(ctx)
	}()

	toolsConfig := slot_tools.Config{
		Metrics: provider.Metrics(),
		Logger:  logger,
	}

	if o.Google.ClientID != "" && o.Google.ClientSecret != "" {
		store, err := newSessionStore(o.Storage, logger)
		if err != nil {
			return err
		}
		defer store.Close()

		sessions, err := session.NewProvider(session.ProviderConfig{
			// Refresh never uses the redirect URL.
			OAuth:      google.OAuthConfig(o.Google.ClientID, o.Google.ClientSecret, ""),
			Store:      store,
			HTTPClient: google.NewTracedHTTPClient(google.DefaultHTTPTimeout),
			Metrics:    provider.Metrics(),
			Audit:      instrumentation.NewAuditLogger(logger, instrConfig.AuditLogging),
			Logger:     logger,
		})
		if err != nil {
			return err
		}
		finder, err := availability.NewService(availability.Config{
			Credentials: sessions,
			Metrics:     provider.Metrics(),
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		toolsConfig.Finder = finder
	} else {
		logger.Info("Google credentials not configured; only compute_slots is available")
	}

	mcpSrv := mcpserver.NewMCPServer("workspace-agent", version,
		mcpserver.WithToolCapabilities(true),
	)
	if err := slot_tools.RegisterSlotTools(mcpSrv, toolsConfig); err != nil {
		return fmt.Errorf("failed to register slot tools: %w", err)
	}

	switch o.Transport {
	case transportStreamableHTTP:
		return runStreamableHTTPServer(shutdownCtx, mcpSrv, server.MCPServerConfig{
			Addr: o.HTTPAddr,
			RateLimit: server.RateLimitConfig{
				RequestsPerSecond: o.RateLimit,
				Burst:             o.RateLimitBurst,
				TrustProxy:        o.TrustProxy,
			},
			Health:  server.NewHealthChecker(version),
			Metrics: provider.Metrics(),
			Logger:  logger,
		})
	default:
		return runStdioServer(mcpSrv)
	}
}

func runStdioServer(mcpSrv *mcpserver.MCPServer) error {
	if err := mcpserver.ServeStdio(mcpSrv); err != nil {
		return fmt.Errorf("server stopped with error: %w", err)
	}
	return nil
}

func runStreamableHTTPServer(ctx context.Context, mcpSrv *mcpserver.MCPServer, config server.MCPServerConfig) error {
	config.Handler = mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath(server.MCPEndpointPath),
	)
	httpSrv, err := server.NewMCPServer(config)
	if err != nil {
		return err
	}

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- httpSrv.Start()
	}()

	select {
	case <-ctx.Done():
	case err := <-serverErr:
		if err != nil {
			return fmt.Errorf("MCP server failed: %w", err)
		}
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), server.DefaultShutdownTimeout)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("MCP server shutdown failed: %w", err)
	}
	config.Logger.Info("MCP server gracefully stopped")
	return nil
}
