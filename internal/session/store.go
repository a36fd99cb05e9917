package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/giantswarm/mcp-oauth/storage/memory"
	"golang.org/x/oauth2"
)

// StorageType selects a TokenStore backend.
type StorageType string

const (
	StorageTypeMemory StorageType = "memory"
	StorageTypeValkey StorageType = "valkey"
)

// DefaultSessionTTL is how long an unused session is kept by stores that
// expire entries. It matches the lifetime of an unused Google refresh token
// for apps in testing mode.
const DefaultSessionTTL = 7 * 24 * time.Hour

// TokenStore persists the Google token of each session.
type TokenStore interface {
	GetToken(ctx context.Context, sessionID string) (*oauth2.Token, error)
	SaveToken(ctx context.Context, sessionID string, token *oauth2.Token) error
}

// Store is a TokenStore that holds resources.
type Store interface {
	TokenStore
	Close() error
}

// StoreConfig configures NewStore.
type StoreConfig struct {
	// Type is the backend (default: memory).
	Type StorageType

	// Valkey is used when Type is StorageTypeValkey.
	Valkey ValkeyConfig

	// EncryptionKey encrypts tokens at rest in Valkey. Empty disables it.
	EncryptionKey []byte
}

// NewStore creates the backend described by config.
func NewStore(config StoreConfig) (Store, error) {
	switch config.Type {
	case StorageTypeMemory, "":
		return NewMemoryStore(), nil
	case StorageTypeValkey:
		enc, err := NewTokenEncryption(config.EncryptionKey)
		if err != nil {
			return nil, err
		}
		return NewValkeyStore(config.Valkey, enc)
	default:
		return nil, fmt.Errorf("unsupported session storage type %q, must be one of: memory, valkey", config.Type)
	}
}

type memoryBackend interface {
	TokenStore
	Stop()
}

// MemoryStore keeps tokens in process memory. Sessions do not survive a
// restart and are not shared between replicas.
type MemoryStore struct {
	backend memoryBackend
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{backend: memory.New()}
}

// GetToken returns the token of sessionID or ErrSessionNotFound.
func (s *MemoryStore) GetToken(ctx context.Context, sessionID string) (*oauth2.Token, error) {
	token, err := s.backend.GetToken(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSessionNotFound, err)
	}
	return token, nil
}

// SaveToken stores token for sessionID.
func (s *MemoryStore) SaveToken(ctx context.Context, sessionID string, token *oauth2.Token) error {
	if token == nil {
		return errors.New("token cannot be nil")
	}
	return s.backend.SaveToken(ctx, sessionID, token)
}

// Close stops the backend's cleanup loop.
func (s *MemoryStore) Close() error {
	s.backend.Stop()
	return nil
}

// encodeToken serializes token for an external store.
func encodeToken(token *oauth2.Token, enc *TokenEncryption) (string, error) {
	data, err := json.Marshal(token)
	if err != nil {
		return "", fmt.Errorf("failed to marshal token: %w", err)
	}
	return enc.Encrypt(data)
}

func decodeToken(raw string, enc *TokenEncryption) (*oauth2.Token, error) {
	data, err := enc.Decrypt(raw)
	if err != nil {
		return nil, err
	}

	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to unmarshal token: %w", err)
	}
	return &token, nil
}
