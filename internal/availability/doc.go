// Package availability answers "when am I free?" for a session: it loads
// the session's busy intervals from Google Calendar and runs the slot
// finder over the next few days.
package availability
