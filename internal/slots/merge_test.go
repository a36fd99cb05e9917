package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMergeBusy(t *testing.T) {
	at := func(hhmm string) time.Time {
		ts, _ := time.Parse("2006-01-02T15:04", "2024-01-01T"+hhmm)
		return ts
	}

	tests := []struct {
		name  string
		input []Interval
		want  []Interval
	}{
		{
			name:  "empty",
			input: nil,
			want:  []Interval{},
		},
		{
			name: "unsorted disjoint",
			input: []Interval{
				{Start: at("13:00"), End: at("14:00")},
				{Start: at("09:00"), End: at("10:00")},
			},
			want: []Interval{
				{Start: at("09:00"), End: at("10:00")},
				{Start: at("13:00"), End: at("14:00")},
			},
		},
		{
			name: "overlapping and touching",
			input: []Interval{
				{Start: at("09:00"), End: at("10:00")},
				{Start: at("09:30"), End: at("11:00")},
				{Start: at("11:00"), End: at("11:30")},
			},
			want: []Interval{
				{Start: at("09:00"), End: at("11:30")},
			},
		},
		{
			name: "contained interval",
			input: []Interval{
				{Start: at("09:00"), End: at("12:00")},
				{Start: at("10:00"), End: at("10:30")},
			},
			want: []Interval{
				{Start: at("09:00"), End: at("12:00")},
			},
		},
		{
			name: "drops inverted and empty",
			input: []Interval{
				{Start: at("10:00"), End: at("09:00")},
				{Start: at("10:00"), End: at("10:00")},
			},
			want: []Interval{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, MergeBusy(tt.input))
		})
	}
}

func TestMergeBusy_DoesNotAffectFinder(t *testing.T) {
	start := mustTime(t, "2024-01-01T09:00:00Z")
	end := mustTime(t, "2024-01-01T17:00:00Z")
	busy := []Interval{
		{Start: mustTime(t, "2024-01-01T12:00:00Z"), End: mustTime(t, "2024-01-01T13:00:00Z")},
		{Start: mustTime(t, "2024-01-01T09:30:00Z"), End: mustTime(t, "2024-01-01T10:00:00Z")},
		{Start: mustTime(t, "2024-01-01T09:45:00Z"), End: mustTime(t, "2024-01-01T11:00:00Z")},
	}

	raw, err := FindAvailableSlots(busy, start, end, time.Hour, nineToFive())
	assert.NoError(t, err)
	merged, err := FindAvailableSlots(MergeBusy(busy), start, end, time.Hour, nineToFive())
	assert.NoError(t, err)
	assert.Equal(t, raw, merged)
}
