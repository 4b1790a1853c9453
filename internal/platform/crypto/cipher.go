// Package crypto seals OAuth token fields before they reach the database.
// Every stored value carries the "enc:v1:" version prefix; a value without it
// is rejected on open, never passed through.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/hkdf"
)

const sealedPrefix = "enc:v1:"

// hkdfSalt binds derived keys to this application.
var hkdfSalt = []byte("streambot-token-vault")

// ErrNotSealed is returned when Open receives a value without the version
// prefix. The token store never holds plaintext; such a value means a write
// bypassed the vault or the row was tampered with.
var ErrNotSealed = errors.New("crypto: stored value is not sealed")

// Cipher seals and opens string fields with AES-256-GCM. The key is derived
// from the master secret via HKDF; the purpose string keeps keys for
// different field kinds independent. Safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New derives the AES-256 key for the given purpose and returns a ready
// Cipher.
func New(masterSecret []byte, purpose string) (*Cipher, error) {
	key := make([]byte, 32)
	kdf := hkdf.New(sha256.New, masterSecret, hkdfSalt, []byte(purpose))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("crypto: key derivation: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext into the prefixed storage form. The nonce is random
// per call, so sealing the same plaintext twice yields different outputs.
func (c *Cipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("crypto: nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. Unprefixed values fail with
// ErrNotSealed.
func (c *Cipher) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, sealedPrefix) {
		return "", ErrNotSealed
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, sealedPrefix))
	if err != nil {
		return "", fmt.Errorf("crypto: invalid base64: %w", err)
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize {
		return "", errors.New("crypto: sealed value too short")
	}
	plaintext, err := c.aead.Open(nil, raw[:nonceSize], raw[nonceSize:], nil)
	if err != nil {
		return "", fmt.Errorf("crypto: open failed: %w", err)
	}
	return string(plaintext), nil
}

// Sealed reports whether the stored value carries the version prefix.
func Sealed(stored string) bool {
	return strings.HasPrefix(stored, sealedPrefix)
}
