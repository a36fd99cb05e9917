package common

import (
	"context"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/workspace-agent/internal/instrumentation"
	"github.com/teemow/workspace-agent/internal/logging"
)

// InstrumentedToolHandler wraps a tool handler with a span, invocation
// metrics and a debug log line. metrics and logger may be nil.
//
// Usage:
//
//	s.AddTool(myTool, common.InstrumentedToolHandler("my_tool", metrics, logger, handler))
func InstrumentedToolHandler(
	toolName string,
	metrics *instrumentation.Metrics,
	logger *slog.Logger,
	handler mcpserver.ToolHandlerFunc,
) mcpserver.ToolHandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}

	return func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		ctx, span := instrumentation.StartToolSpan(ctx, toolName)
		defer span.End()

		start := time.Now()
		result, err := handler(ctx, request)
		duration := time.Since(start)

		status := instrumentation.StatusSuccess
		switch {
		case err != nil:
			status = instrumentation.StatusError
			instrumentation.SetSpanError(span, err)
		case result != nil && result.IsError:
			status = instrumentation.StatusError
		default:
			instrumentation.SetSpanSuccess(span)
		}

		metrics.RecordToolInvocation(ctx, toolName, status, duration)
		logger.Debug("Tool invoked",
			logging.Tool(toolName),
			logging.Status(status),
			slog.Duration("duration", duration),
			logging.Err(err))

		return result, err
	}
}
