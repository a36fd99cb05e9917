package session

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"time"

	"github.com/valkey-io/valkey-go"
	"golang.org/x/oauth2"
)

// DefaultKeyPrefix namespaces session keys in a shared Valkey.
const DefaultKeyPrefix = "workspace-agent:session:"

// ValkeyConfig holds the Valkey connection settings.
type ValkeyConfig struct {
	// URL is the server address, e.g. "valkey.namespace.svc:6379".
	URL string

	Password   string
	TLSEnabled bool
	DB         int

	// KeyPrefix is prepended to every key (default: DefaultKeyPrefix).
	KeyPrefix string

	// TTL expires sessions that were not saved for this long
	// (default: DefaultSessionTTL).
	TTL time.Duration
}

// ValkeyStore keeps tokens in Valkey so sessions are shared by all replicas.
// Every save resets the key's TTL. It also holds the OAuth state nonces, so
// a consent flow may start and finish on different replicas.
type ValkeyStore struct {
	client valkey.Client
	prefix string
	ttl    time.Duration
	enc    *TokenEncryption
}

// NewValkeyStore connects to the server in config.
func NewValkeyStore(config ValkeyConfig, enc *TokenEncryption) (*ValkeyStore, error) {
	if config.URL == "" {
		return nil, errors.New("valkey URL is required when using valkey storage")
	}

	opt := valkey.ClientOption{
		InitAddress: []string{config.URL},
		Password:    config.Password,
		SelectDB:    config.DB,
	}
	if config.TLSEnabled {
		opt.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}

	client, err := valkey.NewClient(opt)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to valkey at %s: %w", config.URL, err)
	}
	return newValkeyStore(client, config, enc), nil
}

func newValkeyStore(client valkey.Client, config ValkeyConfig, enc *TokenEncryption) *ValkeyStore {
	prefix := config.KeyPrefix
	if prefix == "" {
		prefix = DefaultKeyPrefix
	}
	ttl := config.TTL
	if ttl <= 0 {
		ttl = DefaultSessionTTL
	}
	return &ValkeyStore{client: client, prefix: prefix, ttl: ttl, enc: enc}
}

func (s *ValkeyStore) key(sessionID string) string {
	return s.prefix + sessionID
}

// GetToken returns the token of sessionID or ErrSessionNotFound.
func (s *ValkeyStore) GetToken(ctx context.Context, sessionID string) (*oauth2.Token, error) {
	raw, err := s.client.Do(ctx, s.client.B().Get().Key(s.key(sessionID)).Build()).ToString()
	if valkey.IsValkeyNil(err) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read session from valkey: %w", err)
	}

	token, err := decodeToken(raw, s.enc)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stored session: %w", err)
	}
	return token, nil
}

// SaveToken stores token for sessionID and resets its TTL.
func (s *ValkeyStore) SaveToken(ctx context.Context, sessionID string, token *oauth2.Token) error {
	if token == nil {
		return errors.New("token cannot be nil")
	}

	raw, err := encodeToken(token, s.enc)
	if err != nil {
		return err
	}

	cmd := s.client.B().Set().Key(s.key(sessionID)).Value(raw).Ex(s.ttl).Build()
	if err := s.client.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("failed to write session to valkey: %w", err)
	}
	return nil
}

var _ NonceStore = (*ValkeyStore)(nil)

func (s *ValkeyStore) nonceKey(nonce string) string {
	return s.prefix + "state:" + nonce
}

// PutNonce records an OAuth state nonce for ttl. Nonces are random, so an
// existing key means a collision and is an error.
func (s *ValkeyStore) PutNonce(ctx context.Context, nonce string, ttl time.Duration) error {
	cmd := s.client.B().Set().Key(s.nonceKey(nonce)).Value("1").Nx().Ex(ttl).Build()
	err := s.client.Do(ctx, cmd).Error()
	if valkey.IsValkeyNil(err) {
		return errors.New("state nonce already exists")
	}
	if err != nil {
		return fmt.Errorf("failed to write state nonce to valkey: %w", err)
	}
	return nil
}

// TakeNonce deletes an OAuth state nonce and reports whether it existed.
// Valkey expires nonces, so an existing key is live.
func (s *ValkeyStore) TakeNonce(ctx context.Context, nonce string) (bool, error) {
	n, err := s.client.Do(ctx, s.client.B().Del().Key(s.nonceKey(nonce)).Build()).AsInt64()
	if err != nil {
		return false, fmt.Errorf("failed to read state nonce from valkey: %w", err)
	}
	return n == 1, nil
}

// Ping checks that the server answers.
func (s *ValkeyStore) Ping(ctx context.Context) error {
	return s.client.Do(ctx, s.client.B().Ping().Build()).Error()
}

// Close closes the Valkey client.
func (s *ValkeyStore) Close() error {
	s.client.Close()
	return nil
}
