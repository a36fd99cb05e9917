package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// KeySize is the AES-256 key length in bytes.
const KeySize = 32

// TokenEncryption encrypts stored tokens with AES-256-GCM.
// Output is base64(nonce || ciphertext || tag). A TokenEncryption created
// without a key passes data through unchanged.
type TokenEncryption struct {
	aead cipher.AEAD
}

// NewTokenEncryption creates a TokenEncryption for key. An empty key
// disables encryption.
func NewTokenEncryption(key []byte) (*TokenEncryption, error) {
	if len(key) == 0 {
		return &TokenEncryption{}, nil
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be exactly %d bytes, got %d bytes", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &TokenEncryption{aead: aead}, nil
}

// Enabled reports whether data is encrypted.
func (e *TokenEncryption) Enabled() bool {
	return e != nil && e.aead != nil
}

// Encrypt seals plaintext. Each call uses a fresh random nonce.
func (e *TokenEncryption) Encrypt(plaintext []byte) (string, error) {
	if !e.Enabled() {
		return string(plaintext), nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, plaintext, nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens data produced by Encrypt and verifies its tag.
func (e *TokenEncryption) Decrypt(encoded string) ([]byte, error) {
	if !e.Enabled() {
		return []byte(encoded), nil
	}

	sealed, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("failed to decode base64: %w", err)
	}

	nonceSize := e.aead.NonceSize()
	if len(sealed) < nonceSize {
		return nil, errors.New("ciphertext too short")
	}

	plaintext, err := e.aead.Open(nil, sealed[:nonceSize], sealed[nonceSize:], nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt: %w", err)
	}
	return plaintext, nil
}

// GenerateKey returns a random AES-256 key. The key must be persisted;
// tokens encrypted with a lost key cannot be read.
func GenerateKey() ([]byte, error) {
	key := make([]byte, KeySize)
	if _, err := io.ReadFull(rand.Reader, key); err != nil {
		return nil, fmt.Errorf("failed to generate encryption key: %w", err)
	}
	return key, nil
}

// KeyFromBase64 decodes a base64 key, as read from SESSION_ENCRYPTION_KEY.
// An empty string yields a nil key.
func KeyFromBase64(encoded string) ([]byte, error) {
	if encoded == "" {
		return nil, nil
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("invalid base64 key: %w", err)
	}
	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d bytes", KeySize, len(key))
	}
	return key, nil
}
