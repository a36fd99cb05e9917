package session

import "errors"

var (
	// ErrSessionNotFound is returned when no credential is stored for a session.
	ErrSessionNotFound = errors.New("session not found")

	// ErrInvalidSession is returned for ids that were not issued by NewID.
	ErrInvalidSession = errors.New("invalid session id")

	// ErrNeedsReauth is returned when a session's credential can no longer be
	// refreshed and the user must go through the consent flow again.
	ErrNeedsReauth = errors.New("session needs reauthorization")

	// ErrInvalidState is returned for unknown, expired or malformed OAuth state.
	ErrInvalidState = errors.New("invalid oauth state")
)

// ReconnectMessage is the user-facing text for ErrNeedsReauth.
const ReconnectMessage = "Session expired. Please reconnect."
