package slots

import (
	"errors"
	"fmt"
	"time"
)

const (
	// Step is the distance between two candidate start times.
	Step = 30 * time.Minute

	// MaxSlots caps the number of slots a single search returns.
	MaxSlots = 12
)

// ErrInvalidConfiguration is returned for a non-positive duration or a
// working-hour band that is out of range or empty.
var ErrInvalidConfiguration = errors.New("invalid slot configuration")

// Interval is a half-open busy range [Start, End) in absolute time.
type Interval struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Overlaps reports whether [start, end) intersects the interval.
// Touching ranges do not overlap.
func (i Interval) Overlaps(start, end time.Time) bool {
	return start.Before(i.End) && end.After(i.Start)
}

// WorkingHours is the local band in which slots may be proposed.
type WorkingHours struct {
	StartHour int
	EndHour   int

	// TZOffsetMinutes is the number of minutes local time is behind UTC.
	TZOffsetMinutes int
}

// Validate checks the band and returns ErrInvalidConfiguration when it
// cannot produce a slot.
func (w WorkingHours) Validate() error {
	if w.StartHour < 0 || w.StartHour > 23 || w.EndHour < 0 || w.EndHour > 23 {
		return fmt.Errorf("%w: hours must be between 0 and 23 (start=%d, end=%d)",
			ErrInvalidConfiguration, w.StartHour, w.EndHour)
	}
	if w.StartHour >= w.EndHour {
		return fmt.Errorf("%w: start hour %d must be before end hour %d",
			ErrInvalidConfiguration, w.StartHour, w.EndHour)
	}
	return nil
}

// Location returns the fixed zone described by TZOffsetMinutes.
func (w WorkingHours) Location() *time.Location {
	return time.FixedZone("", -w.TZOffsetMinutes*60)
}

// Slot is a free range of the requested duration.
type Slot struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}
