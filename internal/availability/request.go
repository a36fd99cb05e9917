package availability

import (
	"errors"
	"fmt"
	"time"

	"github.com/teemow/workspace-agent/internal/slots"
)

// Request defaults.
const (
	DefaultDurationMinutes = 60
	DefaultDays            = 7
	DefaultStartHour       = 4
	DefaultEndHour         = 21
)

// Request limits.
const (
	// MaxDays bounds the search window and the freebusy query.
	MaxDays = 31

	// MaxDurationMinutes is one full day.
	MaxDurationMinutes = 24 * 60

	// MaxTZOffsetMinutes covers every real zone, UTC-12 to UTC+14.
	MaxTZOffsetMinutes = 14 * 60

	// MaxWindow bounds an explicit search window.
	MaxWindow = MaxDays * 24 * time.Hour

	// MaxBusyIntervals bounds the busy intervals a caller may pass in.
	MaxBusyIntervals = 2000
)

// ErrInvalidRequest is returned for a request outside the accepted ranges.
var ErrInvalidRequest = errors.New("invalid availability request")

// Request describes a slot search. Its JSON form is the body of the
// find-slots endpoint.
type Request struct {
	DurationMinutes int `json:"duration"`
	Days            int `json:"days"`
	StartHour       int `json:"startHour"`
	EndHour         int `json:"endHour"`

	// TZOffsetMinutes uses the browser convention: minutes local time is
	// behind UTC.
	TZOffsetMinutes int `json:"tzOffsetMinutes"`
}

// DefaultRequest returns a Request with every field at its default.
// Decoding JSON into it keeps the default of every absent field.
func DefaultRequest() Request {
	return Request{
		DurationMinutes: DefaultDurationMinutes,
		Days:            DefaultDays,
		StartHour:       DefaultStartHour,
		EndHour:         DefaultEndHour,
	}
}

// Validate checks the request. Range errors wrap ErrInvalidRequest; an
// unusable working-hour band wraps slots.ErrInvalidConfiguration.
func (r Request) Validate() error {
	if r.Days < 1 || r.Days > MaxDays {
		return fmt.Errorf("%w: days must be between 1 and %d, got %d", ErrInvalidRequest, MaxDays, r.Days)
	}
	return r.ValidateBand()
}

// ValidateBand checks everything but Days, for searches over an explicit
// window. See ValidateWindow.
func (r Request) ValidateBand() error {
	if r.DurationMinutes <= 0 || r.DurationMinutes > MaxDurationMinutes {
		return fmt.Errorf("%w: duration must be between 1 and %d minutes, got %d", ErrInvalidRequest, MaxDurationMinutes, r.DurationMinutes)
	}
	if r.TZOffsetMinutes < -MaxTZOffsetMinutes || r.TZOffsetMinutes > MaxTZOffsetMinutes {
		return fmt.Errorf("%w: timezone offset must be between -%d and %d minutes, got %d", ErrInvalidRequest, MaxTZOffsetMinutes, MaxTZOffsetMinutes, r.TZOffsetMinutes)
	}
	return r.WorkingHours().Validate()
}

// Duration returns the requested meeting length.
func (r Request) Duration() time.Duration {
	return time.Duration(r.DurationMinutes) * time.Minute
}

// WorkingHours returns the band of the request.
func (r Request) WorkingHours() slots.WorkingHours {
	return slots.WorkingHours{
		StartHour:       r.StartHour,
		EndHour:         r.EndHour,
		TZOffsetMinutes: r.TZOffsetMinutes,
	}
}

// Window returns the search window of the request starting at now.
func (r Request) Window(now time.Time) (time.Time, time.Time) {
	return now, now.AddDate(0, 0, r.Days)
}

// ValidateWindow checks an explicit search window. An inverted window is
// allowed and yields no slots.
func ValidateWindow(start, end time.Time) error {
	if end.Sub(start) > MaxWindow {
		return fmt.Errorf("%w: window must not exceed %d days, got %s", ErrInvalidRequest, MaxDays, end.Sub(start))
	}
	return nil
}

// ValidateBusy checks the busy intervals supplied by a caller.
func ValidateBusy(busy []slots.Interval) error {
	if len(busy) > MaxBusyIntervals {
		return fmt.Errorf("%w: at most %d busy intervals are accepted, got %d", ErrInvalidRequest, MaxBusyIntervals, len(busy))
	}
	for i, b := range busy {
		if !b.End.After(b.Start) {
			return fmt.Errorf("%w: busy interval %d ends before it starts", ErrInvalidRequest, i)
		}
	}
	return nil
}
