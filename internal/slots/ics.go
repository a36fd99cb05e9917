package slots

import (
	"fmt"
	"io"
	"strings"
	"time"

	ical "github.com/arran4/golang-ical"
)

// ICSOptions controls how WriteICS renders slots.
type ICSOptions struct {
	// ProductID is written to PRODID.
	ProductID string
	// Summary is the title of every proposed event.
	Summary string
	// Now is the DTSTAMP value. Zero means time.Now.
	Now time.Time
}

// WriteICS renders slots as a VCALENDAR with one tentative VEVENT per slot.
func WriteICS(w io.Writer, found []Slot, opts ICSOptions) error {
	if opts.ProductID == "" {
		opts.ProductID = "-//workspace-agent//slots//EN"
	}
	if opts.Summary == "" {
		opts.Summary = "Available"
	}
	stamp := opts.Now
	if stamp.IsZero() {
		stamp = time.Now()
	}

	cal := ical.NewCalendar()
	cal.SetMethod(ical.MethodPublish)
	cal.SetProductId(opts.ProductID)

	for _, s := range found {
		ev := cal.AddEvent(fmt.Sprintf("slot-%d-%d@workspace-agent", s.Start.Unix(), s.End.Unix()))
		ev.SetDtStampTime(stamp.UTC())
		ev.SetStartAt(s.Start.UTC())
		ev.SetEndAt(s.End.UTC())
		ev.SetSummary(opts.Summary)
		ev.SetProperty(ical.ComponentPropertyStatus, "TENTATIVE")
	}

	if _, err := io.WriteString(w, cal.Serialize()); err != nil {
		return fmt.Errorf("failed to write calendar: %w", err)
	}
	return nil
}

// ReadBusyICS reads the VEVENTs of an iCalendar stream as busy intervals.
// Events marked TRANSPARENT or CANCELLED do not block time.
func ReadBusyICS(r io.Reader) ([]Interval, error) {
	cal, err := ical.ParseCalendar(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse calendar: %w", err)
	}

	var busy []Interval
	for _, ev := range cal.Events() {
		if p := ev.GetProperty(ical.ComponentPropertyTransp); p != nil && strings.EqualFold(p.Value, "TRANSPARENT") {
			continue
		}
		if p := ev.GetProperty(ical.ComponentPropertyStatus); p != nil && strings.EqualFold(p.Value, "CANCELLED") {
			continue
		}

		start, err := ev.GetStartAt()
		if err != nil {
			return nil, fmt.Errorf("event %s: invalid start: %w", eventID(ev), err)
		}
		end, err := ev.GetEndAt()
		if err != nil {
			return nil, fmt.Errorf("event %s: invalid end: %w", eventID(ev), err)
		}
		busy = append(busy, Interval{Start: start.UTC(), End: end.UTC()})
	}
	return busy, nil
}

func eventID(ev *ical.VEvent) string {
	if p := ev.GetProperty(ical.ComponentPropertyUniqueId); p != nil {
		return p.Value
	}
	return "<no uid>"
}
