// Package slots turns busy calendar intervals into proposed meeting slots.
//
// The finder scans a search window in 30-minute steps and keeps candidates
// that lie inside a local working-hour band and do not overlap any busy
// interval. Local time is derived from a fixed offset in minutes using the
// browser convention: local = UTC - offset, so the offset is positive west
// of UTC (for example 300 for UTC-5).
//
// Usage:
//
//	found, err := slots.FindAvailableSlots(busy, start, end, time.Hour, slots.WorkingHours{
//		StartHour: 9,
//		EndHour:   17,
//	})
//
// The package also reads busy intervals from and renders slots to
// iCalendar data, see ReadBusyICS and WriteICS.
package slots
