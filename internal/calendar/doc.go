// Package calendar reads busy times from Google Calendar.
//
// Only the freeBusy endpoint is used. Rate limiting (429) and server errors
// are retried with exponential backoff; every other error is returned as is
// so that authorization failures reach the caller unchanged.
package calendar
