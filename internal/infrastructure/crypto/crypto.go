// Package crypto encrypts integration secrets at rest with AES-256-GCM.
//
// Ciphertexts are base64url (unpadded) of version || nonce || sealed, where
// sealed carries the GCM tag.
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

	"github.com/crewdesk/backend/internal/infrastructure/config"
	"golang.org/x/crypto/hkdf"
)

const (
	keySize   = 32
	nonceSize = 12
	version1  = byte(1)
	hkdfInfo  = "crewdesk secrets v1"
)

var (
	ErrMalformed   = errors.New("crypto: malformed ciphertext")
	ErrUnsupported = errors.New("crypto: unsupported ciphertext version")
	ErrDecrypt     = errors.New("crypto: decryption failed")
)

// Cipher seals and opens secrets
type Cipher struct {
	aead cipher.AEAD
	rand io.Reader
}

// New creates a cipher from a 32 byte key
func New(key []byte) (*Cipher, error) {
	if len(key) != keySize {
		return nil, fmt.Errorf("crypto: key must be %d bytes, got %d", keySize, len(key))
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Cipher{aead: aead, rand: rand.Reader}, nil
}

// DeriveKey stretches a passphrase into a 32 byte key with HKDF-SHA256
func DeriveKey(passphrase, salt string) ([]byte, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: empty passphrase")
	}
	key := make([]byte, keySize)
	r := hkdf.New(sha256.New, []byte(passphrase), []byte(salt), []byte(hkdfInfo))
	if _, err := io.ReadFull(r, key); err != nil {
		return nil, fmt.Errorf("crypto: derive key: %w", err)
	}
	return key, nil
}

// FromConfig builds a cipher from a base64 key, falling back to a passphrase
func FromConfig(cfg config.CryptoConfig) (*Cipher, error) {
	if cfg.Key != "" {
		key, err := base64.StdEncoding.DecodeString(cfg.Key)
		if err != nil {
			return nil, fmt.Errorf("crypto: key is not valid base64: %w", err)
		}
		return New(key)
	}
	key, err := DeriveKey(cfg.Passphrase, cfg.Salt)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// Encrypt seals plaintext with a fresh random nonce
func (c *Cipher) Encrypt(plaintext []byte) (string, error) {
	out := make([]byte, 1+nonceSize, 1+nonceSize+len(plaintext)+c.aead.Overhead())
	out[0] = version1
	if _, err := io.ReadFull(c.rand, out[1:]); err != nil {
		return "", fmt.Errorf("crypto: nonce: %w", err)
	}
	out = c.aead.Seal(out, out[1:1+nonceSize], plaintext, []byte{version1})
	return base64.RawURLEncoding.EncodeToString(out), nil
}

// EncryptString is Encrypt for string secrets
func (c *Cipher) EncryptString(plaintext string) (string, error) {
	return c.Encrypt([]byte(plaintext))
}

// Decrypt opens a value produced by Encrypt
func (c *Cipher) Decrypt(encoded string) ([]byte, error) {
	raw, err := base64.RawURLEncoding.DecodeString(encoded)
	if err != nil {
		return nil, ErrMalformed
	}
	if len(raw) < 1+nonceSize+c.aead.Overhead() {
		return nil, ErrMalformed
	}
	if raw[0] != version1 {
		return nil, ErrUnsupported
	}
	nonce := raw[1 : 1+nonceSize]
	plain, err := c.aead.Open(nil, nonce, raw[1+nonceSize:], raw[:1])
	if err != nil {
		return nil, ErrDecrypt
	}
	return plain, nil
}

// DecryptString is Decrypt for string secrets
func (c *Cipher) DecryptString(encoded string) (string, error) {
	b, err := c.Decrypt(encoded)
	return string(b), err
}
