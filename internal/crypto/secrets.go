// Package crypto seals provider secrets and configuration stored with webhook triggers.
// Values are encrypted with AES-256-GCM under a key derived with PBKDF2; every seal uses
// a fresh random nonce, so equal inputs produce different outputs.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"io"
	"strings"

	"trigger-engine/internal/common/errors"

	"golang.org/x/crypto/pbkdf2"
)

// sealedPrefix marks values produced by SealMap so plaintext rows written before
// encryption was enabled stay readable
const sealedPrefix = "enc:v1:"

// Encryptor encrypts and decrypts values. It is safe for concurrent use.
type Encryptor struct {
	aead cipher.AEAD
}

// NewEncryptor derives an AES-256 key from key and returns an Encryptor
func NewEncryptor(key string) (*Encryptor, error) {
	if key == "" {
		return nil, errors.ValidationError("encryption key cannot be empty")
	}

	derived := pbkdf2.Key([]byte(key), []byte("trigger-engine-webhook-config"), 10000, 32, sha256.New)
	block, err := aes.NewCipher(derived)
	if err != nil {
		return nil, errors.InternalError("failed to create cipher", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.InternalError("failed to create GCM", err)
	}
	return &Encryptor{aead: aead}, nil
}

// Encrypt returns base64(nonce || ciphertext). Empty input stays empty.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", errors.InternalError("failed to create nonce", err)
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt. Tampered input or a wrong key yields an error.
func (e *Encryptor) Decrypt(ciphertext string) (string, error) {
	if ciphertext == "" {
		return "", nil
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", errors.InternalError("failed to decode ciphertext", err)
	}
	nonceSize := e.aead.NonceSize()
	if len(data) < nonceSize {
		return "", errors.ValidationError("ciphertext too short")
	}

	plaintext, err := e.aead.Open(nil, data[:nonceSize], data[nonceSize:], nil)
	if err != nil {
		return "", errors.InternalError("failed to decrypt", err)
	}
	return string(plaintext), nil
}

// SealMap serializes m as JSON and, when e is non-nil, encrypts it.
// A nil or empty map serializes to "".
func (e *Encryptor) SealMap(m map[string]interface{}) (string, error) {
	if len(m) == 0 {
		return "", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "", errors.InternalError("failed to marshal config", err)
	}
	if e == nil {
		return string(data), nil
	}
	sealed, err := e.Encrypt(string(data))
	if err != nil {
		return "", err
	}
	return sealedPrefix + sealed, nil
}

// OpenMap reverses SealMap. Plain JSON is accepted with or without a key; sealed
// values require one.
func (e *Encryptor) OpenMap(stored string) (map[string]interface{}, error) {
	if stored == "" {
		return nil, nil
	}

	payload := stored
	if strings.HasPrefix(stored, sealedPrefix) {
		if e == nil {
			return nil, errors.ConfigError("webhook config is encrypted but CONFIG_ENCRYPTION_KEY is not set")
		}
		plain, err := e.Decrypt(strings.TrimPrefix(stored, sealedPrefix))
		if err != nil {
			return nil, err
		}
		payload = plain
	}

	var m map[string]interface{}
	if err := json.Unmarshal([]byte(payload), &m); err != nil {
		return nil, errors.InternalError("failed to unmarshal config", err)
	}
	return m, nil
}
