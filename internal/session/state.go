package session

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"strings"
	"sync"
	"time"
)

// DefaultStateTTL bounds the time between issuing a consent URL and the
// callback.
const DefaultStateTTL = 10 * time.Minute

// State is carried through the consent flow in the OAuth state parameter.
type State struct {
	// Origin is where the callback redirects the browser.
	Origin string `json:"origin"`
	Nonce  string `json:"nonce"`
}

// Encode returns the URL-safe form of s.
func (s State) Encode() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", fmt.Errorf("failed to marshal state: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(data), nil
}

// DecodeState parses a value produced by State.Encode.
func DecodeState(raw string) (State, error) {
	var s State

	data, err := base64.RawURLEncoding.DecodeString(raw)
	if err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("%w: %v", ErrInvalidState, err)
	}
	if s.Nonce == "" || s.Origin == "" {
		return s, fmt.Errorf("%w: missing origin or nonce", ErrInvalidState)
	}
	return s, nil
}

// ValidateOrigin checks that origin is an absolute http(s) URL and, when
// allowed is not empty, that its host is listed there.
func ValidateOrigin(origin string, allowed []string) error {
	u, err := url.Parse(origin)
	if err != nil {
		return fmt.Errorf("invalid origin: %w", err)
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("invalid origin %q: scheme must be http or https", origin)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid origin %q: missing host", origin)
	}
	if len(allowed) > 0 && !slices.Contains(allowed, strings.ToLower(u.Host)) {
		return fmt.Errorf("origin host %q is not allowed", u.Host)
	}
	return nil
}

// NonceStore remembers issued state nonces until they are taken or
// expire. A store shared by all replicas lets the callback reach any of
// them.
type NonceStore interface {
	// PutNonce records nonce for ttl.
	PutNonce(ctx context.Context, nonce string, ttl time.Duration) error

	// TakeNonce removes nonce and reports whether it was live.
	TakeNonce(ctx context.Context, nonce string) (bool, error)
}

// StateStore issues single-use states and remembers their nonces until
// they are consumed or expire.
type StateStore struct {
	nonces NonceStore
	ttl    time.Duration
}

// NewStateStore creates a StateStore that keeps nonces in process memory
// and starts their cleanup loop. Call Stop to end it.
func NewStateStore(ttl time.Duration, logger *slog.Logger) *StateStore {
	return NewSharedStateStore(ttl, newMemoryNonces(logger))
}

// NewSharedStateStore creates a StateStore over nonces, typically the
// ValkeyStore that also holds the sessions.
func NewSharedStateStore(ttl time.Duration, nonces NonceStore) *StateStore {
	if ttl <= 0 {
		ttl = DefaultStateTTL
	}
	return &StateStore{nonces: nonces, ttl: ttl}
}

// Issue records a new nonce and returns the encoded state for origin.
func (s *StateStore) Issue(ctx context.Context, origin string) (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate state nonce: %w", err)
	}
	state := State{Origin: origin, Nonce: hex.EncodeToString(b)}

	encoded, err := state.Encode()
	if err != nil {
		return "", err
	}
	if err := s.nonces.PutNonce(ctx, state.Nonce, s.ttl); err != nil {
		return "", fmt.Errorf("failed to store state nonce: %w", err)
	}
	return encoded, nil
}

// Consume decodes raw and removes its nonce. A state can be consumed once.
func (s *StateStore) Consume(ctx context.Context, raw string) (State, error) {
	state, err := DecodeState(raw)
	if err != nil {
		return State{}, err
	}

	ok, err := s.nonces.TakeNonce(ctx, state.Nonce)
	if err != nil {
		return State{}, fmt.Errorf("failed to check state nonce: %w", err)
	}
	if !ok {
		return State{}, fmt.Errorf("%w: unknown, expired or already used", ErrInvalidState)
	}
	return state, nil
}

// Stop ends the cleanup loop of an in-memory nonce store.
func (s *StateStore) Stop() {
	if stopper, ok := s.nonces.(interface{ Stop() }); ok {
		stopper.Stop()
	}
}

// memoryNonces is the single-replica NonceStore.
type memoryNonces struct {
	mu      sync.Mutex
	expires map[string]time.Time
	now     func() time.Time
	logger  *slog.Logger

	stop     chan struct{}
	stopOnce sync.Once
}

func newMemoryNonces(logger *slog.Logger) *memoryNonces {
	if logger == nil {
		logger = slog.Default()
	}
	m := &memoryNonces{
		expires: make(map[string]time.Time),
		now:     time.Now,
		logger:  logger,
		stop:    make(chan struct{}),
	}
	go m.cleanup()
	return m
}

func (m *memoryNonces) PutNonce(_ context.Context, nonce string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.expires[nonce] = m.now().Add(ttl)
	return nil
}

func (m *memoryNonces) TakeNonce(_ context.Context, nonce string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	expiresAt, ok := m.expires[nonce]
	if !ok {
		return false, nil
	}
	delete(m.expires, nonce)
	return !m.now().After(expiresAt), nil
}

func (m *memoryNonces) Stop() {
	m.stopOnce.Do(func() { close(m.stop) })
}

func (m *memoryNonces) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.cleanupExpired()
		case <-m.stop:
			return
		}
	}
}

func (m *memoryNonces) cleanupExpired() {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	deleted := 0
	for nonce, expiresAt := range m.expires {
		if now.After(expiresAt) {
			delete(m.expires, nonce)
			deleted++
		}
	}

	if deleted > 0 {
		m.logger.Debug("Cleaned up expired OAuth states", "states_deleted", deleted)
	}
}
