// Package crypto seals small secrets, such as the persisted session token,
// before they are written to the local database.
package crypto

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/chacha20poly1305"
)

// KeySize is the length of a raw key in bytes.
const KeySize = chacha20poly1305.KeySize

// passphraseSalt keys the argon2 derivation of passphrase secrets. It is
// fixed so the same passphrase opens tokens sealed by an earlier run.
var passphraseSalt = []byte("bibliotheek/session-token/v1")

var (
	ErrInvalidKeySize     = fmt.Errorf("key must be %d bytes", KeySize)
	ErrCiphertextTooShort = errors.New("sealed value shorter than its nonce")
	ErrDecryptionFailed   = errors.New("sealed value failed authentication")
)

// Encryptor seals values with XChaCha20-Poly1305. Output is
// base64(nonce || ciphertext || tag).
type Encryptor struct {
	aead cipher.AEAD
}

func NewEncryptor(key []byte) (*Encryptor, error) {
	if len(key) != KeySize {
		return nil, ErrInvalidKeySize
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, err
	}
	return &Encryptor{aead: aead}, nil
}

func NewEncryptorFromBase64(encodedKey string) (*Encryptor, error) {
	key, err := base64.StdEncoding.DecodeString(encodedKey)
	if err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return NewEncryptor(key)
}

// NewEncryptorFromSecret accepts either a base64-encoded key or an arbitrary
// passphrase, which is stretched with argon2id.
func NewEncryptorFromSecret(secret string) (*Encryptor, error) {
	if secret == "" {
		return nil, ErrInvalidKeySize
	}
	if key, err := base64.StdEncoding.DecodeString(secret); err == nil && len(key) == KeySize {
		return NewEncryptor(key)
	}
	return NewEncryptor(argon2.IDKey([]byte(secret), passphraseSalt, 1, 64*1024, 4, KeySize))
}

// Encrypt seals plaintext under a fresh random nonce. Empty input stays empty.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	ns := e.aead.NonceSize()
	buf := make([]byte, ns, ns+len(plaintext)+e.aead.Overhead())
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("read nonce: %w", err)
	}
	return base64.StdEncoding.EncodeToString(e.aead.Seal(buf, buf, []byte(plaintext), nil)), nil
}

// Decrypt opens a value produced by Encrypt.
func (e *Encryptor) Decrypt(sealed string) (string, error) {
	if sealed == "" {
		return "", nil
	}

	raw, err := base64.StdEncoding.DecodeString(sealed)
	if err != nil {
		return "", fmt.Errorf("decode sealed value: %w", err)
	}
	ns := e.aead.NonceSize()
	if len(raw) < ns {
		return "", ErrCiphertextTooShort
	}

	plain, err := e.aead.Open(nil, raw[:ns], raw[ns:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}
	return string(plain), nil
}

// GenerateKey returns a random base64-encoded key.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return base64.StdEncoding.EncodeToString(key), nil
}
