package util

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrSealedValueInvalid is returned when a sealed value cannot be opened
// (truncated, corrupted, or sealed with a different key).
var ErrSealedValueInvalid = errors.New("sealed value invalid")

// Sealer encrypts secrets (client secrets, access/refresh tokens) before
// they reach the database, using XChaCha20-Poly1305 with a random nonce per
// value. The key is derived from the configured seal secret via SHA-256.
type Sealer struct {
	key []byte
}

// NewSealer derives an AEAD key from the given secret. The secret may be any
// non-empty string; it is hashed down to the 32-byte key the cipher needs.
func NewSealer(secret string) (*Sealer, error) {
	if secret == "" {
		return nil, errors.New("seal secret must not be empty")
	}
	sum := sha256.Sum256([]byte(secret))
	return &Sealer{key: sum[:]}, nil
}

// Seal encrypts plaintext and returns a base64 string safe for a text column.
func (s *Sealer) Seal(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (s *Sealer) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrSealedValueInvalid
	}

	aead, err := chacha20poly1305.NewX(s.key)
	if err != nil {
		return "", fmt.Errorf("failed to create cipher: %w", err)
	}

	if len(raw) < aead.NonceSize() {
		return "", ErrSealedValueInvalid
	}

	nonce, ciphertext := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", ErrSealedValueInvalid
	}
	return string(plaintext), nil
}
