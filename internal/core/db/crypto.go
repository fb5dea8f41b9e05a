package db

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/crypto/scrypt"
)

// encPrefix marks encrypted message content at rest. The lexical and vector
// projections are derived before sealing, so search keeps working; only the
// raw conversation text is protected.
const encPrefix = "enc1:"

// scryptSalt is fixed: the passphrase protects a single local database, not
// a credential store, and a stable salt keeps the key derivable on reopen.
var scryptSalt = []byte("mnemo.message.store.v1")

// Cipher encrypts message content with AES-GCM under a scrypt-derived key.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a content cipher from a passphrase.
func NewCipher(passphrase string) (*Cipher, error) {
	if passphrase == "" {
		return nil, errors.New("empty passphrase")
	}
	key, err := scrypt.Key([]byte(passphrase), scryptSalt, 1<<15, 8, 1, 32)
	if err != nil {
		return nil, fmt.Errorf("derive key: %w", err)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init gcm: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

// Seal encrypts plaintext into the stored representation.
func (c *Cipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return encPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a stored representation produced by Seal. Values without
// the encryption prefix predate encryption and pass through unchanged.
func (c *Cipher) Open(stored string) (string, error) {
	if !strings.HasPrefix(stored, encPrefix) {
		return stored, nil
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(stored, encPrefix))
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(raw) < c.aead.NonceSize() {
		return "", errors.New("ciphertext too short")
	}
	plaintext, err := c.aead.Open(nil, raw[:c.aead.NonceSize()], raw[c.aead.NonceSize():], nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// sealContent encrypts message content when encryption is enabled.
func (db *DB) sealContent(content string) (string, error) {
	if db.cipher == nil {
		return content, nil
	}
	return db.cipher.Seal(content)
}

// openContent reverses sealContent. Plaintext rows written before
// encryption was enabled pass through untouched.
func (db *DB) openContent(stored string) (string, error) {
	if db.cipher == nil || !strings.HasPrefix(stored, encPrefix) {
		return stored, nil
	}
	return db.cipher.Open(stored)
}
