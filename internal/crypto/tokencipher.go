// Package crypto seals GitHub OAuth tokens before they are written to the database.
// Tokens are encrypted with AES-256-GCM under a key derived from the configured passphrase.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	keyLength         = 32
	minSaltLength     = 16
	defaultIterations = 100000
)

var (
	// ErrKeyLength is returned when a key is not 32 bytes long.
	ErrKeyLength = errors.New("crypto: key must be exactly 32 bytes")
	// ErrSaltTooShort is returned when a derivation salt is shorter than 16 bytes.
	ErrSaltTooShort = errors.New("crypto: salt must be at least 16 bytes")
	// ErrCorrupted is returned when sealed data cannot be decoded or authenticated.
	ErrCorrupted = errors.New("crypto: sealed token is corrupted or was sealed with another key")
)

// TokenCipher seals and opens token strings.
type TokenCipher struct {
	aead cipher.AEAD
}

// NewTokenCipher creates a cipher from a raw 32-byte key.
func NewTokenCipher(key []byte) (*TokenCipher, error) {
	if len(key) != keyLength {
		return nil, ErrKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &TokenCipher{aead: aead}, nil
}

// DeriveTokenCipher creates a cipher whose key is derived from passphrase with pbkdf2-sha256.
func DeriveTokenCipher(passphrase string, salt []byte) (*TokenCipher, error) {
	if len(salt) < minSaltLength {
		return nil, ErrSaltTooShort
	}
	key := pbkdf2.Key([]byte(passphrase), salt, defaultIterations, keyLength, sha256.New)
	return NewTokenCipher(key)
}

// Seal encrypts plaintext. The empty string seals to the empty string.
func (tc *TokenCipher) Seal(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}
	nonce := make([]byte, tc.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", err
	}
	sealed := tc.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (tc *TokenCipher) Open(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}
	raw, err := base64.URLEncoding.DecodeString(sealed)
	if err != nil {
		return "", ErrCorrupted
	}
	n := tc.aead.NonceSize()
	if len(raw) < n {
		return "", ErrCorrupted
	}
	plaintext, err := tc.aead.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", ErrCorrupted
	}
	return string(plaintext), nil
}
