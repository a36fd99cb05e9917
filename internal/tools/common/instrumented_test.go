package common

import (
	"context"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/teemow/workspace-agent/internal/instrumentation"
)

func testMetrics(t *testing.T) *instrumentation.Metrics {
	t.Helper()
	m, err := instrumentation.NewMetrics(noop.NewMeterProvider().Meter("test"), false)
	require.NoError(t, err)
	return m
}

func TestInstrumentedToolHandler_Success(t *testing.T) {
	called := false
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		called = true
		return mcp.NewToolResultText("success"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", testMetrics(t), nil, handler)
	result, err := wrapped(context.Background(), mcp.CallToolRequest{})

	require.NoError(t, err)
	assert.True(t, called)
	require.NotNil(t, result)
	assert.False(t, result.IsError)
}

func TestInstrumentedToolHandler_Error(t *testing.T) {
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return nil, errors.New("boom")
	}

	wrapped := InstrumentedToolHandler("test_tool", testMetrics(t), nil, handler)
	result, err := wrapped(context.Background(), mcp.CallToolRequest{})

	assert.EqualError(t, err, "boom")
	assert.Nil(t, result)
}

func TestInstrumentedToolHandler_ToolError(t *testing.T) {
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultError("bad input"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", testMetrics(t), nil, handler)
	result, err := wrapped(context.Background(), mcp.CallToolRequest{})

	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.IsError)
}

func TestInstrumentedToolHandler_NilMetrics(t *testing.T) {
	handler := func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		return mcp.NewToolResultText("ok"), nil
	}

	wrapped := InstrumentedToolHandler("test_tool", nil, nil, handler)
	result, err := wrapped(context.Background(), mcp.CallToolRequest{})

	require.NoError(t, err)
	assert.NotNil(t, result)
}
