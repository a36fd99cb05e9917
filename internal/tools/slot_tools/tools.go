package slot_tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/workspace-agent/internal/availability"
	"github.com/teemow/workspace-agent/internal/instrumentation"
	"github.com/teemow/workspace-agent/internal/session"
	"github.com/teemow/workspace-agent/internal/slots"
	"github.com/teemow/workspace-agent/internal/tools/common"
)

// Tool names.
const (
	FindAvailableSlotsTool = "find_available_slots"
	ComputeSlotsTool       = "compute_slots"
)

// SlotFinder runs a slot search for a session.
// availability.Service implements it.
type SlotFinder interface {
	FindSlots(ctx context.Context, sessionID string, req availability.Request, source string) (*availability.Result, error)
}

// Config configures the slot tools.
type Config struct {
	// Finder backs find_available_slots. Without it only compute_slots
	// is registered.
	Finder SlotFinder

	Metrics *instrumentation.Metrics
	Logger  *slog.Logger
}

type slotTools struct {
	finder SlotFinder
}

type slotJSON struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type slotsResult struct {
	WindowStart    string     `json:"windowStart,omitempty"`
	WindowEnd      string     `json:"windowEnd,omitempty"`
	BusyCount      int        `json:"busyCount"`
	AvailableSlots []slotJSON `json:"availableSlots"`
}

// RegisterSlotTools registers the slot tools with the MCP server.
func RegisterSlotTools(s *mcpserver.MCPServer, config Config) error {
	if s == nil {
		return errors.New("mcp server is required")
	}
	t := &slotTools{finder: config.Finder}

	if config.Finder != nil {
		findTool := mcp.NewTool(FindAvailableSlotsTool,
			mcp.WithDescription("Find free meeting slots in the primary Google Calendar of a connected session. Returns at most 12 slots in ascending order."),
			mcp.WithString("session_id",
				mcp.Required(),
				mcp.Description("Session id returned by the Google sign-in flow (session_...)"),
			),
			withBandArgs(),
			mcp.WithNumber("days",
				mcp.Description(fmt.Sprintf("Number of days to search from now (default: %d, max: %d)", availability.DefaultDays, availability.MaxDays)),
			),
		)
		s.AddTool(findTool, common.InstrumentedToolHandler(FindAvailableSlotsTool, config.Metrics, config.Logger, t.handleFindAvailableSlots))
	}

	computeTool := mcp.NewTool(ComputeSlotsTool,
		mcp.WithDescription("Compute free meeting slots from busy intervals without calling any calendar. Returns at most 12 slots in ascending order."),
		mcp.WithString("busy",
			mcp.Description(`JSON array of busy intervals, e.g. [{"start":"2024-01-01T09:00:00Z","end":"2024-01-01T10:00:00Z"}] (default: none)`),
		),
		mcp.WithString("window_start",
			mcp.Required(),
			mcp.Description("Start of the search window (RFC 3339)"),
		),
		mcp.WithString("window_end",
			mcp.Required(),
			mcp.Description(fmt.Sprintf("End of the search window (RFC 3339, at most %d days after window_start)", availability.MaxDays)),
		),
		withBandArgs(),
	)
	s.AddTool(computeTool, common.InstrumentedToolHandler(ComputeSlotsTool, config.Metrics, config.Logger, t.handleComputeSlots))

	return nil
}

// withBandArgs adds the duration and working-hour arguments.
func withBandArgs() mcp.ToolOption {
	return func(tool *mcp.Tool) {
		for _, opt := range []mcp.ToolOption{
			mcp.WithNumber("duration",
				mcp.Description(fmt.Sprintf("Meeting length in minutes (default: %d)", availability.DefaultDurationMinutes)),
			),
			mcp.WithNumber("start_hour",
				mcp.Description(fmt.Sprintf("First local hour a slot may start, 0-23 (default: %d)", availability.DefaultStartHour)),
			),
			mcp.WithNumber("end_hour",
				mcp.Description(fmt.Sprintf("Local hour by which a slot must end, 0-23 (default: %d)", availability.DefaultEndHour)),
			),
			mcp.WithNumber("tz_offset_minutes",
				mcp.Description("Minutes local time is behind UTC, as returned by JavaScript getTimezoneOffset (e.g. 300 for UTC-5, -60 for UTC+1; default: 0)"),
			),
		} {
			opt(tool)
		}
	}
}

// requestFromArgs reads the search arguments, applying defaults.
func requestFromArgs(args map[string]any) (availability.Request, error) {
	req := availability.DefaultRequest()
	fields := []struct {
		name string
		dst  *int
	}{
		{"duration", &req.DurationMinutes},
		{"days", &req.Days},
		{"start_hour", &req.StartHour},
		{"end_hour", &req.EndHour},
		{"tz_offset_minutes", &req.TZOffsetMinutes},
	}
	for _, f := range fields {
		v, err := common.IntArg(args, f.name, *f.dst)
		if err != nil {
			return availability.Request{}, err
		}
		*f.dst = v
	}
	return req, nil
}

func (t *slotTools) handleFindAvailableSlots(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	sessionID := common.StringArg(args, "session_id")
	if sessionID == "" {
		return mcp.NewToolResultError("session_id is required"), nil
	}
	req, err := requestFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	result, err := t.finder.FindSlots(ctx, sessionID, req, availability.SourceMCP)
	if err != nil {
		return mcp.NewToolResultError(describeError(err)), nil
	}

	return jsonResult(slotsResult{
		WindowStart:    formatTime(result.WindowStart),
		WindowEnd:      formatTime(result.WindowEnd),
		BusyCount:      result.BusyCount,
		AvailableSlots: toJSON(result.Slots),
	})
}

func (t *slotTools) handleComputeSlots(_ context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args := request.GetArguments()

	windowStart, err := common.TimeArg(args, "window_start")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	windowEnd, err := common.TimeArg(args, "window_end")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	busy, err := busyFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	req, err := requestFromArgs(args)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	for _, validate := range []func() error{
		req.ValidateBand,
		func() error { return availability.ValidateWindow(windowStart, windowEnd) },
		func() error { return availability.ValidateBusy(busy) },
	} {
		if err := validate(); err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
	}

	found, err := slots.FindAvailableSlots(slots.MergeBusy(busy), windowStart, windowEnd, req.Duration(), req.WorkingHours())
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	return jsonResult(slotsResult{
		WindowStart:    formatTime(windowStart),
		WindowEnd:      formatTime(windowEnd),
		BusyCount:      len(busy),
		AvailableSlots: toJSON(found),
	})
}

// busyFromArgs accepts busy as a JSON string or as an inline array.
func busyFromArgs(args map[string]any) ([]slots.Interval, error) {
	var raw []byte
	switch v := args["busy"].(type) {
	case nil:
		return nil, nil
	case string:
		if v == "" {
			return nil, nil
		}
		raw = []byte(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("invalid busy: %w", err)
		}
		raw = b
	}

	var busy []slots.Interval
	if err := json.Unmarshal(raw, &busy); err != nil {
		return nil, fmt.Errorf("invalid busy (want a JSON array of {start, end}): %w", err)
	}
	return busy, nil
}

// describeError turns a search error into the text shown to the model.
func describeError(err error) string {
	switch {
	case errors.Is(err, availability.ErrInvalidRequest), errors.Is(err, slots.ErrInvalidConfiguration):
		return err.Error()
	case errors.Is(err, session.ErrNeedsReauth):
		return session.ReconnectMessage
	case errors.Is(err, session.ErrSessionNotFound), errors.Is(err, session.ErrInvalidSession):
		return "Authentication required: unknown session_id. Sign in with Google to get a new one."
	default:
		return fmt.Sprintf("Failed to query calendar: %v", err)
	}
}

func toJSON(found []slots.Slot) []slotJSON {
	out := make([]slotJSON, 0, len(found))
	for _, s := range found {
		out = append(out, slotJSON{Start: formatTime(s.Start), End: formatTime(s.End)})
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to encode result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(b)), nil
}
