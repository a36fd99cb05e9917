package calendar

import (
	"fmt"
	"strings"

	"github.com/teemow/workspace-agent/internal/slots"
)

// PrimaryCalendar is the id Google resolves to the user's main calendar.
const PrimaryCalendar = "primary"

// FreeBusyInfo is the busy data of one calendar.
type FreeBusyInfo struct {
	Calendar string
	Busy     []slots.Interval

	// Errors holds the reasons Google reported for this calendar,
	// e.g. "notFound" or "tooManyCalendarsRequested".
	Errors []string
}

// CalendarError is returned when Google could not report busy times for a
// calendar. Treating such a calendar as free would propose taken slots.
type CalendarError struct {
	Calendar string
	Reasons  []string
}

func (e *CalendarError) Error() string {
	return fmt.Sprintf("freebusy unavailable for calendar %s: %s", e.Calendar, strings.Join(e.Reasons, ", "))
}
