// Package crypto implements the symmetric message cipher used for chat bodies.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// ErrUndecryptable is returned when a token is malformed or was sealed
// with a different key. Callers drop or flag the message; the error is
// never rendered as message content.
var ErrUndecryptable = errors.New("undecryptable")

// Cipher seals and opens message bodies with a key derived from a
// pre-shared secret. One static secret covers the whole session --
// there is no per-conversation key negotiation in this design.
type Cipher struct {
	key []byte
}

// New derives the cipher key as SHA-256 of the shared secret.
func New(sharedSecret string) *Cipher {
	key := sha256.Sum256([]byte(sharedSecret))
	return &Cipher{key: key[:]}
}

// Encrypt seals plaintext with XChaCha20-Poly1305 under a random nonce
// and returns nonce||ciphertext as a base64 token. Identical plaintexts
// produce distinct tokens.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("init aead: %w", err)
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}
	out := make([]byte, 0, len(nonce)+len(plaintext)+aead.Overhead())
	out = append(out, nonce...)
	out = append(out, aead.Seal(nil, nonce, []byte(plaintext), nil)...)
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// Decrypt opens a token produced by Encrypt. Malformed tokens and
// wrong-key tokens return ("", ErrUndecryptable).
func (c *Cipher) Decrypt(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrUndecryptable
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", ErrUndecryptable
	}
	aead, err := chacha20poly1305.NewX(c.key)
	if err != nil {
		return "", fmt.Errorf("init aead: %w", err)
	}
	nonce := raw[:chacha20poly1305.NonceSizeX]
	ct := raw[chacha20poly1305.NonceSizeX:]
	plaintext, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", ErrUndecryptable
	}
	return string(plaintext), nil
}
