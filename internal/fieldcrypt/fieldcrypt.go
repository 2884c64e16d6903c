// Package fieldcrypt encrypts individual sensitive fields, such as an email
// address carried inside a bearer token.
package fieldcrypt

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"
)

// KeySize is the only accepted key length (AES-256).
const KeySize = 32

var (
	ErrKeySize = fmt.Errorf("fieldcrypt: key must be exactly %d bytes", KeySize)
	ErrDecrypt = errors.New("fieldcrypt: cannot decrypt field")
)

// Cipher is safe for concurrent use.
type Cipher struct {
	aead cipher.AEAD
}

// New builds a cipher from a raw 32-byte key.
func New(key []byte) (*Cipher, error) {
	if len(key) != KeySize {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("fieldcrypt: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Encrypt returns hex(nonce) ":" hex(ciphertext). Every call draws a fresh nonce.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("fieldcrypt: nonce: %w", err)
	}
	ct := c.aead.Seal(nil, nonce, []byte(plaintext), nil)
	return hex.EncodeToString(nonce) + ":" + hex.EncodeToString(ct), nil
}

// Decrypt reverses Encrypt. Any malformed, tampered or foreign blob yields ErrDecrypt.
func (c *Cipher) Decrypt(blob string) (string, error) {
	nonceHex, ctHex, ok := strings.Cut(blob, ":")
	if !ok {
		return "", ErrDecrypt
	}
	nonce, ok := decodeHex(nonceHex)
	if !ok || len(nonce) != c.aead.NonceSize() {
		return "", ErrDecrypt
	}
	ct, ok := decodeHex(ctHex)
	if !ok || len(ct) < c.aead.Overhead() {
		return "", ErrDecrypt
	}
	pt, err := c.aead.Open(nil, nonce, ct, nil)
	if err != nil || !utf8.Valid(pt) {
		return "", ErrDecrypt
	}
	return string(pt), nil
}

// decodeHex accepts only the lowercase form Encrypt produces, so that every
// change to the blob text is a change to the decoded bytes.
func decodeHex(s string) ([]byte, bool) {
	b, err := hex.DecodeString(s)
	if err != nil || hex.EncodeToString(b) != s {
		return nil, false
	}
	return b, true
}
