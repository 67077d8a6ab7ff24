package security

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"sync"

	"go.uber.org/zap"
)

const (
	encryptionKeyLength = 32 // AES-256
	nonceLength         = 12 // recommended for GCM
	encryptionPrefix    = "enc:"
)

// Encryptor provides AES-256-GCM encryption for data at rest, namely
// provider API keys. A value without the "enc:" prefix is treated as
// already-plaintext for backward compatibility with unencrypted rows.
type Encryptor struct {
	mu     sync.RWMutex
	key    []byte
	logger *zap.Logger
}

// NewEncryptor builds an Encryptor from a base64url-encoded 32-byte key. An
// empty keyB64 generates a random key for the process lifetime only — never
// use this in production, since previously encrypted data becomes
// unreadable on restart.
func NewEncryptor(keyB64 string, logger *zap.Logger) (*Encryptor, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	if keyB64 == "" {
		key := make([]byte, encryptionKeyLength)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generate encryption key: %w", err)
		}
		logger.Warn("ENCRYPTION_KEY not set; generated a temporary key for this process",
			zap.String("generated_key_b64", base64.URLEncoding.EncodeToString(key)),
		)
		return &Encryptor{key: key, logger: logger}, nil
	}

	key, err := base64.URLEncoding.DecodeString(keyB64)
	if err != nil {
		return nil, fmt.Errorf("decode ENCRYPTION_KEY: %w", err)
	}
	if len(key) != encryptionKeyLength {
		return nil, fmt.Errorf("ENCRYPTION_KEY must decode to %d bytes, got %d", encryptionKeyLength, len(key))
	}
	return &Encryptor{key: key, logger: logger}, nil
}

func (e *Encryptor) aead() (cipher.AEAD, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	block, err := aes.NewCipher(e.key)
	if err != nil {
		return nil, err
	}
	return cipher.NewGCM(block)
}

// Encrypt returns plaintext unchanged if empty, otherwise an "enc:"-prefixed
// base64url string of nonce||ciphertext.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return plaintext, nil
	}

	gcm, err := e.aead()
	if err != nil {
		return "", fmt.Errorf("build cipher: %w", err)
	}

	nonce := make([]byte, nonceLength)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("generate nonce: %w", err)
	}

	combined := gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return encryptionPrefix + base64.URLEncoding.EncodeToString(combined), nil
}

// Decrypt reverses Encrypt. A value without the "enc:" prefix is returned
// as-is.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" || !e.IsEncrypted(ciphertext) {
		return ciphertext, nil
	}

	combined, err := base64.URLEncoding.DecodeString(ciphertext[len(encryptionPrefix):])
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}
	if len(combined) < nonceLength {
		return "", fmt.Errorf("ciphertext too short")
	}

	gcm, err := e.aead()
	if err != nil {
		return "", fmt.Errorf("build cipher: %w", err)
	}

	nonce, actual := combined[:nonceLength], combined[nonceLength:]
	plaintext, err := gcm.Open(nil, nonce, actual, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: invalid or corrupted ciphertext: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value carries the encrypted-value marker.
func (e *Encryptor) IsEncrypted(value string) bool {
	return len(value) >= len(encryptionPrefix) && value[:len(encryptionPrefix)] == encryptionPrefix
}
