package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/teemow/workspace-agent/internal/availability"
	"github.com/teemow/workspace-agent/internal/slots"
)

// Output formats of the slots command.
const (
	formatJSON = "json"
	formatICS  = "ics"
)

// slotsOptions holds every flag of the slots command.
type slotsOptions struct {
	BusyFile        string
	From            string
	To              string
	Days            int
	DurationMinutes int
	StartHour       int
	EndHour         int
	TZOffsetMinutes int
	Format          string

	now func() time.Time
}

func newSlotsCmd() *cobra.Command {
	return (&slotsOptions{now: time.Now}).command()
}

func (o *slotsOptions) command() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "slots",
		Short: "Find free slots in exported busy times",
		Long: `Find free meeting slots without talking to Google.

Busy times are read from --busy, either an iCalendar file (.ics) or a JSON
array of {"start": "...", "end": "..."} objects with RFC 3339 timestamps.
Without --busy the whole window is treated as free.

The search window starts at --from (default: now) and ends at --to, or
--days after the start when --to is not given.

Examples:
  workspace-agent slots --busy calendar.ics --duration 30
  workspace-agent slots --busy busy.json --from 2024-01-01T00:00:00Z --days 2 --format ics`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.run(cmd.OutOrStdout())
		},
	}

	defaults := availability.DefaultRequest()
	cmd.Flags().StringVar(&o.BusyFile, "busy", "", "Busy times file (.ics or JSON)")
	cmd.Flags().StringVar(&o.From, "from", "", "Window start (RFC 3339, default: now)")
	cmd.Flags().StringVar(&o.To, "to", "", "Window end (RFC 3339, overrides --days)")
	cmd.Flags().IntVar(&o.Days, "days", defaults.Days, "Window length in days")
	cmd.Flags().IntVar(&o.DurationMinutes, "duration", defaults.DurationMinutes, "Meeting length in minutes")
	cmd.Flags().IntVar(&o.StartHour, "start-hour", defaults.StartHour, "First local hour a meeting may start (0-23)")
	cmd.Flags().IntVar(&o.EndHour, "end-hour", defaults.EndHour, "Local hour meetings must end by (0-23)")
	cmd.Flags().IntVar(&o.TZOffsetMinutes, "tz-offset", 0, "Minutes local time is behind UTC (300 for UTC-5, -60 for UTC+1)")
	cmd.Flags().StringVar(&o.Format, "format", formatJSON, "Output format: json or ics")

	return cmd
}

func (o *slotsOptions) run(out io.Writer) error {
	if o.Format != formatJSON && o.Format != formatICS {
		return fmt.Errorf("unsupported format: %s (supported: json, ics)", o.Format)
	}

	req := availability.Request{
		DurationMinutes: o.DurationMinutes,
		Days:            o.Days,
		StartHour:       o.StartHour,
		EndHour:         o.EndHour,
		TZOffsetMinutes: o.TZOffsetMinutes,
	}
	windowStart, windowEnd, err := o.window(req)
	if err != nil {
		return err
	}
	validate := req.Validate
	if o.To != "" {
		validate = req.ValidateBand
	}
	if err := validate(); err != nil {
		return err
	}
	if err := availability.ValidateWindow(windowStart, windowEnd); err != nil {
		return err
	}

	busy, err := readBusyFile(o.BusyFile)
	if err != nil {
		return err
	}

	found, err := slots.FindAvailableSlots(slots.MergeBusy(busy), windowStart, windowEnd, req.Duration(), req.WorkingHours())
	if err != nil {
		return err
	}

	if o.Format == formatICS {
		return slots.WriteICS(out, found, slots.ICSOptions{})
	}

	result := struct {
		AvailableSlots []slots.Slot `json:"availableSlots"`
	}{AvailableSlots: make([]slots.Slot, 0, len(found))}
	for _, s := range found {
		result.AvailableSlots = append(result.AvailableSlots, slots.Slot{Start: s.Start.UTC(), End: s.End.UTC()})
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// window resolves the search window from --from, --to and --days.
func (o *slotsOptions) window(req availability.Request) (time.Time, time.Time, error) {
	start := o.now()
	if o.From != "" {
		parsed, err := time.Parse(time.RFC3339, o.From)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("invalid --from value %q: %w", o.From, err)
		}
		start = parsed
	}

	if o.To == "" {
		_, end := req.Window(start)
		return start, end, nil
	}
	end, err := time.Parse(time.RFC3339, o.To)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid --to value %q: %w", o.To, err)
	}
	return start, end, nil
}

// readBusyFile loads busy intervals from an .ics or JSON file. An empty
// path means no busy time.
func readBusyFile(path string) ([]slots.Interval, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path) // #nosec G304 -- path is a CLI argument
	if err != nil {
		return nil, fmt.Errorf("failed to open busy file: %w", err)
	}
	defer f.Close()

	if strings.EqualFold(filepath.Ext(path), ".ics") {
		return slots.ReadBusyICS(f)
	}

	var busy []slots.Interval
	if err := json.NewDecoder(f).Decode(&busy); err != nil {
		return nil, fmt.Errorf("failed to parse busy file %s: %w", path, err)
	}
	for i, b := range busy {
		if !b.End.After(b.Start) {
			return nil, fmt.Errorf("busy interval %d: end must be after start", i)
		}
	}
	return busy, nil
}
