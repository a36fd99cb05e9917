package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/workspace-agent/internal/server"
)

func parseMCPFlags(t *testing.T, args ...string) *mcpOptions {
	t.Helper()
	opts := &mcpOptions{}
	cmd := opts.command()
	require.NoError(t, cmd.ParseFlags(args))
	require.NoError(t, opts.loadEnv(cmd))
	return opts
}

func TestMCPOptions_Defaults(t *testing.T) {
	opts := parseMCPFlags(t)

	assert.Equal(t, transportStdio, opts.Transport)
	assert.Equal(t, server.DefaultMCPAddr, opts.HTTPAddr)
	assert.Equal(t, server.DefaultRateLimit, opts.RateLimit)
	assert.Equal(t, server.DefaultRateLimitBurst, opts.RateLimitBurst)
	assert.False(t, opts.TrustProxy)
}

func TestMCPOptions_EnvFallback(t *testing.T) {
	t.Setenv("MCP_TRANSPORT", transportStreamableHTTP)
	t.Setenv("MCP_HTTP_ADDR", ":9100")
	t.Setenv("RATE_LIMIT_RPS", "1.5")
	t.Setenv("RATE_LIMIT_BURST", "4")
	t.Setenv("TRUST_PROXY", "true")

	opts := parseMCPFlags(t, "--rate-limit-burst", "9")

	assert.Equal(t, transportStreamableHTTP, opts.Transport)
	assert.Equal(t, ":9100", opts.HTTPAddr)
	assert.Equal(t, 1.5, opts.RateLimit)
	assert.Equal(t, 9, opts.RateLimitBurst)
	assert.True(t, opts.TrustProxy)
}

func TestMCPOptions_InvalidEnv(t *testing.T) {
	t.Setenv("RATE_LIMIT_RPS", "fast")

	opts := &mcpOptions{}
	cmd := opts.command()
	require.NoError(t, cmd.ParseFlags(nil))

	err := opts.loadEnv(cmd)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT_RPS")
}
