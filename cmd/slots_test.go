package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/workspace-agent/internal/slots"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runSlots(t *testing.T, args ...string) (string, error) {
	t.Helper()
	opts := &slotsOptions{now: func() time.Time {
		return time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	}}
	cmd := opts.command()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decodeSlots(t *testing.T, out string) []slots.Slot {
	t.Helper()
	var result struct {
		AvailableSlots []slots.Slot `json:"availableSlots"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &result))
	return result.AvailableSlots
}

func TestSlotsCmd_JSONBusyFile(t *testing.T) {
	busy := writeTempFile(t, "busy.json", `[{"start": "2024-01-01T09:00:00Z", "end": "2024-01-01T10:00:00Z"}]`)

	out, err := runSlots(t,
		"--busy", busy,
		"--to", "2024-01-01T11:00:00Z",
		"--start-hour", "9",
		"--end-hour", "17",
	)
	require.NoError(t, err)

	found := decodeSlots(t, out)
	require.Len(t, found, 1)
	assert.Equal(t, time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC), found[0].Start)
	assert.Equal(t, time.Date(2024, 1, 1, 11, 0, 0, 0, time.UTC), found[0].End)
}

func TestSlotsCmd_NoBusyFile(t *testing.T) {
	out, err := runSlots(t,
		"--from", "2024-01-01T09:00:00Z",
		"--to", "2024-01-01T11:00:00Z",
		"--start-hour", "9",
		"--end-hour", "17",
	)
	require.NoError(t, err)

	found := decodeSlots(t, out)
	require.Len(t, found, 3)
	assert.Equal(t, "2024-01-01T09:30:00Z", found[1].Start.Format(time.RFC3339))
}

func TestSlotsCmd_ICSBusyFile(t *testing.T) {
	var cal bytes.Buffer
	require.NoError(t, slots.WriteICS(&cal, []slots.Slot{{
		Start: time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
		End:   time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC),
	}}, slots.ICSOptions{}))
	busy := writeTempFile(t, "calendar.ics", cal.String())

	out, err := runSlots(t,
		"--busy", busy,
		"--to", "2024-01-01T11:00:00Z",
		"--start-hour", "9",
		"--end-hour", "17",
	)
	require.NoError(t, err)
	assert.Len(t, decodeSlots(t, out), 1)
}

func TestSlotsCmd_ICSOutput(t *testing.T) {
	out, err := runSlots(t,
		"--to", "2024-01-01T11:00:00Z",
		"--start-hour", "9",
		"--end-hour", "17",
		"--format", "ics",
	)
	require.NoError(t, err)

	assert.Contains(t, out, "BEGIN:VCALENDAR")
	assert.Equal(t, 3, strings.Count(out, "BEGIN:VEVENT"))
}

func TestSlotsCmd_DaysWindowIsCapped(t *testing.T) {
	out, err := runSlots(t, "--days", "3", "--duration", "30")
	require.NoError(t, err)
	assert.Len(t, decodeSlots(t, out), slots.MaxSlots)
}

func TestSlotsCmd_Errors(t *testing.T) {
	badJSON := writeTempFile(t, "busy.json", `{"start": "nope"}`)
	inverted := writeTempFile(t, "inverted.json", `[{"start": "2024-01-01T10:00:00Z", "end": "2024-01-01T09:00:00Z"}]`)

	tests := []struct {
		name    string
		args    []string
		wantErr string
	}{
		{"unknown format", []string{"--format", "xml"}, "unsupported format"},
		{"bad from", []string{"--from", "yesterday"}, "invalid --from"},
		{"bad to", []string{"--to", "tomorrow"}, "invalid --to"},
		{"inverted band", []string{"--start-hour", "17", "--end-hour", "9"}, "start hour 17 must be before end hour 9"},
		{"zero duration", []string{"--duration", "0"}, "duration must be between"},
		{"missing file", []string{"--busy", filepath.Join(t.TempDir(), "missing.json")}, "failed to open busy file"},
		{"malformed file", []string{"--busy", badJSON}, "failed to parse busy file"},
		{"inverted interval", []string{"--busy", inverted}, "end must be after start"},
		{"positional args", []string{"extra"}, "unknown command"},
		{"window too long", []string{"--to", "2024-03-01T00:00:00Z"}, "window must not exceed 31 days"},
		{"too many days", []string{"--days", "32"}, "days must be between 1 and 31"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := runSlots(t, tt.args...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestVersionCmd(t *testing.T) {
	cmd := newVersionCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{})

	require.NoError(t, cmd.Execute())
	assert.Equal(t, "workspace-agent version "+version+"\n", out.String())
}
