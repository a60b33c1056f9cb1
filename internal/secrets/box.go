// Package secrets seals provider credentials at rest and opens them at dispatch time.
package secrets

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

// KeyEnv names the environment variable holding the base64-encoded sealing key.
const KeyEnv = "CREDENTIAL_KEY"

// Error is returned when a key or sealed value cannot be used.
// It never carries plaintext.
type Error struct {
	Message string
	Cause   error
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("secrets: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("secrets: %s", e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Box seals and opens credentials with XChaCha20-Poly1305.
// Sealed values are base64(nonce || ciphertext).
type Box struct {
	aead cipher.AEAD
}

// NewBox creates a Box from a 32-byte key.
func NewBox(key []byte) (*Box, error) {
	if len(key) != chacha20poly1305.KeySize {
		return nil, &Error{Message: fmt.Sprintf("key must be %d bytes, got %d", chacha20poly1305.KeySize, len(key))}
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, &Error{Message: "failed to initialise cipher", Cause: err}
	}
	return &Box{aead: aead}, nil
}

// NewBoxFromEncodedKey creates a Box from a base64-encoded key.
func NewBoxFromEncodedKey(encoded string) (*Box, error) {
	key, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, &Error{Message: "key is not valid base64", Cause: err}
	}
	return NewBox(key)
}

// NewBoxFromEnv reads the key from CREDENTIAL_KEY.
func NewBoxFromEnv() (*Box, error) {
	encoded := os.Getenv(KeyEnv)
	if encoded == "" {
		return nil, &Error{Message: KeyEnv + " is required but not set"}
	}
	return NewBoxFromEncodedKey(encoded)
}

// GenerateKey returns a fresh base64-encoded key suitable for CREDENTIAL_KEY.
func GenerateKey() (string, error) {
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", &Error{Message: "failed to generate key", Cause: err}
	}
	return base64.StdEncoding.EncodeToString(key), nil
}

// Seal encrypts plaintext with a random nonce.
func (b *Box) Seal(plaintext string) (string, error) {
	nonce := make([]byte, b.aead.NonceSize(), b.aead.NonceSize()+len(plaintext)+b.aead.Overhead())
	if _, err := rand.Read(nonce); err != nil {
		return "", &Error{Message: "failed to generate nonce", Cause: err}
	}
	sealed := b.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal.
func (b *Box) Open(sealed string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(sealed))
	if err != nil {
		return "", &Error{Message: "sealed value is not valid base64", Cause: err}
	}
	if len(raw) < b.aead.NonceSize()+b.aead.Overhead() {
		return "", &Error{Message: "sealed value is too short"}
	}
	nonce, ciphertext := raw[:b.aead.NonceSize()], raw[b.aead.NonceSize():]
	plaintext, err := b.aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", &Error{Message: "failed to open sealed value", Cause: err}
	}
	return string(plaintext), nil
}
