package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	defer func() { _ = store.Close() }()

	ctx := context.Background()
	id, err := NewID()
	require.NoError(t, err)

	_, err = store.GetToken(ctx, id)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	token := &oauth2.Token{
		AccessToken:  "access",
		RefreshToken: "refresh",
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
	require.NoError(t, store.SaveToken(ctx, id, token))

	got, err := store.GetToken(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "access", got.AccessToken)
	assert.Equal(t, "refresh", got.RefreshToken)

	assert.Error(t, store.SaveToken(ctx, id, nil))
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(StoreConfig{})
	require.NoError(t, err)
	assert.IsType(t, &MemoryStore{}, store)
	_ = store.Close()

	_, err = NewStore(StoreConfig{Type: "redis"})
	assert.Error(t, err)

	_, err = NewStore(StoreConfig{Type: StorageTypeValkey})
	assert.Error(t, err, "valkey requires a URL")

	_, err = NewStore(StoreConfig{
		Type:          StorageTypeValkey,
		Valkey:        ValkeyConfig{URL: "localhost:6379"},
		EncryptionKey: []byte("bad-key"),
	})
	assert.Error(t, err, "invalid encryption key")
}

func TestEncodeDecodeToken(t *testing.T) {
	key, err := GenerateKey()
	require.NoError(t, err)
	enc, err := NewTokenEncryption(key)
	require.NoError(t, err)

	expiry := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	token := &oauth2.Token{AccessToken: "ya29.a", RefreshToken: "1//r", TokenType: "Bearer", Expiry: expiry}

	raw, err := encodeToken(token, enc)
	require.NoError(t, err)
	assert.NotContains(t, raw, "ya29")

	got, err := decodeToken(raw, enc)
	require.NoError(t, err)
	assert.Equal(t, token.AccessToken, got.AccessToken)
	assert.Equal(t, token.RefreshToken, got.RefreshToken)
	assert.True(t, got.Expiry.Equal(expiry))

	_, err = decodeToken("garbage", enc)
	assert.Error(t, err)
}

func TestNewValkeyStoreDefaults(t *testing.T) {
	s := newValkeyStore(nil, ValkeyConfig{}, nil)
	assert.Equal(t, DefaultKeyPrefix, s.prefix)
	assert.Equal(t, DefaultSessionTTL, s.ttl)
	assert.Equal(t, DefaultKeyPrefix+"session_x", s.key("session_x"))

	s = newValkeyStore(nil, ValkeyConfig{KeyPrefix: "wa:", TTL: time.Hour}, nil)
	assert.Equal(t, "wa:", s.prefix)
	assert.Equal(t, time.Hour, s.ttl)
}
