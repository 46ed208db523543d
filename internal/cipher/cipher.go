// Package cipher provides passphrase-derived authenticated encryption of
// individual text fields. Keys come from PBKDF2-HMAC-SHA256 over a per-store
// salt; each value is sealed with AES-256-GCM under a fresh random nonce.
package cipher

import (
	"crypto/aes"
	gocipher "crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// Iterations is the PBKDF2 work factor.
	Iterations = 100_000
	// KeySize is the derived key length (AES-256).
	KeySize = 32
	// SaltSize is the length of a generated salt.
	SaltSize = 16
)

var (
	ErrDecryptionFailed = errors.New("decryption failed")
	ErrInvalidFormat    = fmt.Errorf("%w: invalid ciphertext format", ErrDecryptionFailed)
)

// NewSalt returns a fresh random salt.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	return salt, nil
}

// DeriveKey stretches passphrase into a KeySize key.
func DeriveKey(passphrase string, salt []byte) []byte {
	return pbkdf2.Key([]byte(passphrase), salt, Iterations, KeySize, sha256.New)
}

// FieldCipher seals and opens text fields with a fixed key.
type FieldCipher struct {
	aead gocipher.AEAD
}

// New creates a FieldCipher for a KeySize key.
func New(key []byte) (*FieldCipher, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key must be %d bytes, got %d", KeySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := gocipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	return &FieldCipher{aead: gcm}, nil
}

// FromPassphrase derives a key and builds the cipher in one step.
func FromPassphrase(passphrase string, salt []byte) (*FieldCipher, error) {
	return New(DeriveKey(passphrase, salt))
}

// Encrypt returns base64(nonce || ciphertext || tag).
func (c *FieldCipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a blob produced by Encrypt. A wrong key or tampered blob
// yields ErrDecryptionFailed, never garbage plaintext.
func (c *FieldCipher) Decrypt(blob string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(blob)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidFormat, err)
	}
	nonceSize := c.aead.NonceSize()
	if len(raw) < nonceSize+c.aead.Overhead() {
		return "", ErrInvalidFormat
	}
	nonce, ct := raw[:nonceSize], raw[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plaintext), nil
}
