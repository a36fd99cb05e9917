package slots

import (
	"fmt"
	"time"
)

// FindAvailableSlots returns up to MaxSlots free slots of the given duration
// between windowStart and windowEnd, ascending by start.
//
// Candidates start on 30-minute boundaries. A candidate is kept when its
// local start hour lies in [StartHour, EndHour), it ends no later than
// EndHour:00 on the same local day and no later than windowEnd, and it does
// not overlap any busy interval. Busy intervals may be unsorted and may
// overlap each other. An empty or inverted window yields an empty result.
func FindAvailableSlots(busy []Interval, windowStart, windowEnd time.Time, duration time.Duration, hours WorkingHours) ([]Slot, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("%w: duration must be positive, got %s", ErrInvalidConfiguration, duration)
	}
	if err := hours.Validate(); err != nil {
		return nil, err
	}

	found := make([]Slot, 0, MaxSlots)
	if !windowStart.Before(windowEnd) {
		return found, nil
	}

	loc := hours.Location()
	for cursor := windowStart.UTC().Truncate(Step); cursor.Before(windowEnd) && len(found) < MaxSlots; cursor = cursor.Add(Step) {
		end := cursor.Add(duration)
		if end.After(windowEnd) {
			// Later candidates end even later.
			break
		}
		if !hours.contains(cursor.In(loc), end.In(loc)) {
			continue
		}
		if overlapsAny(busy, cursor, end) {
			continue
		}
		found = append(found, Slot{Start: cursor, End: end})
	}

	return found, nil
}

// contains reports whether a local [start, end) range sits inside the band
// of the start's day.
func (w WorkingHours) contains(start, end time.Time) bool {
	if h := start.Hour(); h < w.StartHour || h >= w.EndHour {
		return false
	}
	y, m, d := start.Date()
	closing := time.Date(y, m, d, w.EndHour, 0, 0, 0, start.Location())
	return !end.After(closing)
}

func overlapsAny(busy []Interval, start, end time.Time) bool {
	for _, b := range busy {
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}
