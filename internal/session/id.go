package session

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"regexp"
)

const idPrefix = "session_"

var idPattern = regexp.MustCompile(`^session_[0-9a-f]{64}$`)

// NewID returns a new session id built from 32 random bytes.
func NewID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate session id: %w", err)
	}
	return idPrefix + hex.EncodeToString(b), nil
}

// ValidateID returns ErrInvalidSession unless id has the shape of an id
// returned by NewID.
func ValidateID(id string) error {
	if !idPattern.MatchString(id) {
		return ErrInvalidSession
	}
	return nil
}
