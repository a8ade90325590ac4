// Package crypto decrypts provider API keys stored at rest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"strings"
)

// EncryptedPrefix marks a configuration value as an encrypted secret.
const EncryptedPrefix = "enc:"

var (
	// ErrInvalidKeySize 密钥长度无效
	ErrInvalidKeySize = errors.New("encryption key must be 32 bytes (256 bits)")
	// ErrInvalidCiphertext 密文格式无效
	ErrInvalidCiphertext = errors.New("invalid ciphertext: too short or malformed")
	// ErrDecryptionFailed 解密失败
	ErrDecryptionFailed = errors.New("decryption failed: authentication failed")
	// ErrNoKey 配置了加密值但没有提供密钥
	ErrNoKey = errors.New("encrypted secret present but no encryption key configured")
)

// Cipher seals and opens secrets with AES-256-GCM.
// Ciphertext layout: base64(nonce(12) + ciphertext + tag(16)).
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher builds a Cipher from a key given as 32 raw bytes,
// 64 hex characters, or standard base64 of 32 bytes.
func NewCipher(key string) (*Cipher, error) {
	raw, err := parseKey(key)
	if err != nil {
		return nil, err
	}

	block, err := aes.NewCipher(raw)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return &Cipher{aead: aead}, nil
}

func parseKey(key string) ([]byte, error) {
	switch {
	case len(key) == 32:
		return []byte(key), nil
	case len(key) == 64:
		if b, err := hex.DecodeString(key); err == nil {
			return b, nil
		}
	}
	if b, err := base64.StdEncoding.DecodeString(key); err == nil && len(b) == 32 {
		return b, nil
	}
	return nil, fmt.Errorf("%w: got %d characters", ErrInvalidKeySize, len(key))
}

// Seal encrypts plaintext and returns it with EncryptedPrefix.
func (c *Cipher) Seal(plaintext string) (string, error) {
	nonce := make([]byte, c.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := c.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return EncryptedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Open decrypts a value produced by Seal. The prefix is optional.
func (c *Cipher) Open(value string) (string, error) {
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, EncryptedPrefix))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidCiphertext, err)
	}

	nonceSize := c.aead.NonceSize()
	if len(decoded) < nonceSize+c.aead.Overhead() {
		return "", ErrInvalidCiphertext
	}

	nonce, encrypted := decoded[:nonceSize], decoded[nonceSize:]
	plaintext, err := c.aead.Open(nil, nonce, encrypted, nil)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether value carries EncryptedPrefix.
func IsEncrypted(value string) bool {
	return strings.HasPrefix(value, EncryptedPrefix)
}

// ResolveSecret returns plaintext values unchanged and decrypts "enc:" values.
// c may be nil when no encrypted values are configured.
func ResolveSecret(value string, c *Cipher) (string, error) {
	if !IsEncrypted(value) {
		return value, nil
	}
	if c == nil {
		return "", ErrNoKey
	}
	return c.Open(value)
}
