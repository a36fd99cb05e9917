package slots

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func mustTime(t *testing.T, value string) time.Time {
	t.Helper()
	ts, err := time.Parse(time.RFC3339, value)
	require.NoError(t, err)
	return ts
}

func nineToFive() WorkingHours {
	return WorkingHours{StartHour: 9, EndHour: 17}
}

func TestFindAvailableSlots_EmptyCalendarMorning(t *testing.T) {
	start := mustTime(t, "2024-01-01T09:00:00Z")
	end := mustTime(t, "2024-01-01T11:00:00Z")

	found, err := FindAvailableSlots(nil, start, end, time.Hour, nineToFive())
	require.NoError(t, err)

	want := []Slot{
		{Start: mustTime(t, "2024-01-01T09:00:00Z"), End: mustTime(t, "2024-01-01T10:00:00Z")},
		{Start: mustTime(t, "2024-01-01T09:30:00Z"), End: mustTime(t, "2024-01-01T10:30:00Z")},
		{Start: mustTime(t, "2024-01-01T10:00:00Z"), End: mustTime(t, "2024-01-01T11:00:00Z")},
	}
	assert.Equal(t, want, found)
}

func TestFindAvailableSlots_BusyFirstHour(t *testing.T) {
	start := mustTime(t, "2024-01-01T09:00:00Z")
	end := mustTime(t, "2024-01-01T11:00:00Z")
	busy := []Interval{{Start: start, End: mustTime(t, "2024-01-01T10:00:00Z")}}

	found, err := FindAvailableSlots(busy, start, end, time.Hour, nineToFive())
	require.NoError(t, err)

	require.Len(t, found, 1)
	assert.Equal(t, mustTime(t, "2024-01-01T10:00:00Z"), found[0].Start)
	assert.Equal(t, mustTime(t, "2024-01-01T11:00:00Z"), found[0].End)
}

func TestFindAvailableSlots_SingleSlotWindow(t *testing.T) {
	start := mustTime(t, "2024-01-01T09:00:00Z")
	end := mustTime(t, "2024-01-01T10:00:00Z")

	found, err := FindAvailableSlots(nil, start, end, time.Hour, nineToFive())
	require.NoError(t, err)
	assert.Equal(t, []Slot{{Start: start, End: end}}, found)
}

func TestFindAvailableSlots_FullyBusy(t *testing.T) {
	start := mustTime(t, "2024-01-01T09:00:00Z")
	end := mustTime(t, "2024-01-01T17:00:00Z")
	busy := []Interval{{Start: start, End: end}}

	found, err := FindAvailableSlots(busy, start, end, time.Hour, nineToFive())
	require.NoError(t, err)
	assert.Empty(t, found)
	assert.NotNil(t, found)
}

func TestFindAvailableSlots_Cap(t *testing.T) {
	start := mustTime(t, "2024-01-01T00:00:00Z")
	end := start.Add(7 * 24 * time.Hour)

	found, err := FindAvailableSlots(nil, start, end, 30*time.Minute, WorkingHours{StartHour: 0, EndHour: 23})
	require.NoError(t, err)
	assert.Len(t, found, MaxSlots)
	assert.Equal(t, start, found[0].Start)
	assert.Equal(t, start.Add(11*Step), found[MaxSlots-1].Start)
}

func TestFindAvailableSlots_ClosingHour(t *testing.T) {
	start := mustTime(t, "2024-01-01T15:00:00Z")
	end := mustTime(t, "2024-01-01T19:00:00Z")

	found, err := FindAvailableSlots(nil, start, end, time.Hour, nineToFive())
	require.NoError(t, err)

	var starts []string
	for _, s := range found {
		starts = append(starts, s.Start.Format("15:04"))
	}
	assert.Equal(t, []string{"15:00", "15:30", "16:00"}, starts)
}

func TestFindAvailableSlots_DurationLongerThanBand(t *testing.T) {
	start := mustTime(t, "2024-01-01T00:00:00Z")
	end := start.Add(3 * 24 * time.Hour)

	found, err := FindAvailableSlots(nil, start, end, 90*time.Minute, WorkingHours{StartHour: 9, EndHour: 10})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindAvailableSlots_NoMidnightWrap(t *testing.T) {
	start := mustTime(t, "2024-01-01T22:00:00Z")
	end := mustTime(t, "2024-01-02T03:00:00Z")

	found, err := FindAvailableSlots(nil, start, end, 90*time.Minute, WorkingHours{StartHour: 22, EndHour: 23})
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindAvailableSlots_TouchingBusy(t *testing.T) {
	start := mustTime(t, "2024-01-01T09:00:00Z")
	end := mustTime(t, "2024-01-01T10:00:00Z")
	busy := []Interval{
		{Start: mustTime(t, "2024-01-01T08:00:00Z"), End: start},
		{Start: end, End: mustTime(t, "2024-01-01T11:00:00Z")},
	}

	found, err := FindAvailableSlots(busy, start, end, time.Hour, nineToFive())
	require.NoError(t, err)
	assert.Equal(t, []Slot{{Start: start, End: end}}, found)
}

func TestFindAvailableSlots_TruncatesWindowStart(t *testing.T) {
	start := mustTime(t, "2024-01-01T09:17:42Z")
	end := mustTime(t, "2024-01-01T10:30:00Z")

	found, err := FindAvailableSlots(nil, start, end, time.Hour, nineToFive())
	require.NoError(t, err)
	require.NotEmpty(t, found)
	assert.Equal(t, mustTime(t, "2024-01-01T09:00:00Z"), found[0].Start)
	assert.Len(t, found, 2)
}

func TestFindAvailableSlots_TimezoneOffset(t *testing.T) {
	tests := []struct {
		name      string
		offset    int
		start     string
		end       string
		wantFirst string
		wantCount int
	}{
		{
			name:      "west of UTC",
			offset:    300,
			start:     "2024-01-01T00:00:00Z",
			end:       "2024-01-02T00:00:00Z",
			wantFirst: "2024-01-01T14:00:00Z",
			wantCount: MaxSlots,
		},
		{
			name:      "east of UTC",
			offset:    -540,
			start:     "2024-01-01T00:00:00Z",
			end:       "2024-01-01T04:00:00Z",
			wantFirst: "2024-01-01T00:00:00Z",
			wantCount: 7,
		},
		{
			name:      "band in previous UTC day",
			offset:    -600,
			start:     "2023-12-31T22:00:00Z",
			end:       "2024-01-01T02:00:00Z",
			wantFirst: "2023-12-31T23:00:00Z",
			wantCount: 5,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			hours := nineToFive()
			hours.TZOffsetMinutes = tt.offset

			found, err := FindAvailableSlots(nil, mustTime(t, tt.start), mustTime(t, tt.end), time.Hour, hours)
			require.NoError(t, err)
			require.Len(t, found, tt.wantCount)
			assert.Equal(t, mustTime(t, tt.wantFirst), found[0].Start)

			loc := hours.Location()
			for _, s := range found {
				assert.GreaterOrEqual(t, s.Start.In(loc).Hour(), 9)
				assert.Less(t, s.Start.In(loc).Hour(), 17)
			}
		})
	}
}

func TestFindAvailableSlots_InvalidConfiguration(t *testing.T) {
	start := mustTime(t, "2024-01-01T09:00:00Z")
	end := mustTime(t, "2024-01-01T17:00:00Z")

	tests := []struct {
		name     string
		duration time.Duration
		hours    WorkingHours
	}{
		{name: "zero duration", duration: 0, hours: nineToFive()},
		{name: "negative duration", duration: -time.Hour, hours: nineToFive()},
		{name: "start after end", duration: time.Hour, hours: WorkingHours{StartHour: 17, EndHour: 9}},
		{name: "empty band", duration: time.Hour, hours: WorkingHours{StartHour: 9, EndHour: 9}},
		{name: "negative hour", duration: time.Hour, hours: WorkingHours{StartHour: -1, EndHour: 9}},
		{name: "hour past 23", duration: time.Hour, hours: WorkingHours{StartHour: 9, EndHour: 24}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			found, err := FindAvailableSlots(nil, start, end, tt.duration, tt.hours)
			assert.ErrorIs(t, err, ErrInvalidConfiguration)
			assert.Nil(t, found)
		})
	}
}

func TestFindAvailableSlots_InvertedWindow(t *testing.T) {
	start := mustTime(t, "2024-01-01T11:00:00Z")
	end := mustTime(t, "2024-01-01T09:00:00Z")

	found, err := FindAvailableSlots(nil, start, end, time.Hour, nineToFive())
	require.NoError(t, err)
	assert.Empty(t, found)

	found, err = FindAvailableSlots(nil, start, start, time.Hour, nineToFive())
	require.NoError(t, err)
	assert.Empty(t, found)
}

func TestFindAvailableSlots_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	base := mustTime(t, "2024-03-04T00:00:00Z")

	for i := 0; i < 200; i++ {
		var busy []Interval
		for n := rng.Intn(20); n > 0; n-- {
			s := base.Add(time.Duration(rng.Intn(7*24*60)) * time.Minute)
			busy = append(busy, Interval{Start: s, End: s.Add(time.Duration(15+rng.Intn(240)) * time.Minute)})
		}
		startHour := rng.Intn(20)
		hours := WorkingHours{
			StartHour:       startHour,
			EndHour:         startHour + 1 + rng.Intn(23-startHour),
			TZOffsetMinutes: (rng.Intn(27) - 14) * 60,
		}
		duration := time.Duration(15*(1+rng.Intn(8))) * time.Minute
		windowStart := base.Add(time.Duration(rng.Intn(24*60)) * time.Minute)
		windowEnd := windowStart.Add(time.Duration(1+rng.Intn(7)) * 24 * time.Hour)

		found, err := FindAvailableSlots(busy, windowStart, windowEnd, duration, hours)
		require.NoError(t, err)
		require.LessOrEqual(t, len(found), MaxSlots)

		loc := hours.Location()
		for j, s := range found {
			assert.Equal(t, duration, s.End.Sub(s.Start))
			for _, b := range busy {
				assert.False(t, b.Overlaps(s.Start, s.End), "slot %v overlaps busy %v", s, b)
			}

			localStart, localEnd := s.Start.In(loc), s.End.In(loc)
			assert.GreaterOrEqual(t, localStart.Hour(), hours.StartHour)
			assert.Less(t, localStart.Hour(), hours.EndHour)
			assert.LessOrEqual(t, localEnd.Hour(), hours.EndHour)
			assert.Equal(t, localStart.YearDay(), localEnd.Add(-time.Nanosecond).YearDay())
			assert.False(t, s.End.After(windowEnd))

			if j > 0 {
				assert.True(t, found[j-1].Start.Before(s.Start), "slots out of order")
			}
		}
	}
}
