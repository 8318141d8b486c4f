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

	"golang.org/x/crypto/hkdf"
)

// ErrCorruptToken is returned when a ciphertext cannot be decrypted.
// Callers must treat it the same as "not authenticated": a cookie that
// fails decryption carries no usable session.
var ErrCorruptToken = errors.New("corrupt token")

// Encryptor seals short secrets (access tokens) for client-side storage.
// The client only ever sees the opaque ciphertext, so a stolen cookie
// cannot be replayed against the provider directly.
type Encryptor interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
}

type aesgcmEncryptor struct {
	aead cipher.AEAD
}

// NewEncryptor creates an AES-256-GCM encryptor whose key is derived from
// the given secret through HKDF-SHA256. The secret is typically the OAuth
// client secret, which only the filter knows.
func NewEncryptor(secret []byte) (Encryptor, error) {
	if len(secret) == 0 {
		return nil, errors.New("encryption secret must not be empty")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, secret, nil, []byte("session-token-v1")), key); err != nil {
		return nil, fmt.Errorf("deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}

	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}

	return &aesgcmEncryptor{aead: aead}, nil
}

// Encrypt seals the plaintext and returns a base64 URL-encoded ciphertext
// with the nonce prefixed, suitable for cookie transport.
func (e *aesgcmEncryptor) Encrypt(plaintext string) (string, error) {
	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generating nonce: %w", err)
	}

	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.URLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Malformed encoding, truncated input, a failed
// AEAD open, and an empty recovered plaintext all report ErrCorruptToken;
// the distinction is not useful to callers.
func (e *aesgcmEncryptor) Decrypt(ciphertext string) (string, error) {
	data, err := base64.URLEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: invalid encoding", ErrCorruptToken)
	}

	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return "", fmt.Errorf("%w: ciphertext too short", ErrCorruptToken)
	}

	nonce, sealed := data[:nonceSize], data[nonceSize:]
	plaintext, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: decryption failed", ErrCorruptToken)
	}

	if len(plaintext) == 0 {
		return "", fmt.Errorf("%w: empty token", ErrCorruptToken)
	}

	return string(plaintext), nil
}
