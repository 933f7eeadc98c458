// Package crypto seals gitstore blobs with AES-256-GCM.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
)

const (
	// NonceSize is the size of the nonce for AES-GCM (12 bytes).
	NonceSize = 12
	// KeySize is the size of the AES-256 key (32 bytes).
	KeySize = 32
)

var (
	// ErrInvalidKey is returned when the encryption key is invalid.
	ErrInvalidKey = errors.New("invalid encryption key: must be 32 bytes (64 hex characters)")
	// ErrDecryptionFailed is returned when decryption fails.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or key")
	// ErrCiphertextTooShort is returned when the ciphertext is too short.
	ErrCiphertextTooShort = errors.New("ciphertext too short")
)

// Subkey labels. The master key is never used directly.
const (
	labelSeal  = "capsule blob seal"
	labelNonce = "capsule blob nonce"
)

// Sealer encrypts blobs deterministically: the nonce is an HMAC of the
// plaintext, so an unchanged blob keeps its hash across commits and git
// deduplicates it. Equal plaintexts produce equal ciphertexts.
type Sealer struct {
	aead     cipher.AEAD
	nonceKey []byte
}

// NewSealer creates a Sealer from a hex-encoded 32-byte key.
func NewSealer(hexKey string) (*Sealer, error) {
	key, err := hex.DecodeString(hexKey)
	if err != nil || len(key) != KeySize {
		return nil, ErrInvalidKey
	}

	block, err := aes.NewCipher(derive(key, labelSeal))
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return &Sealer{aead: aead, nonceKey: derive(key, labelNonce)}, nil
}

// GenerateKey returns a random key in the format NewSealer accepts.
func GenerateKey() (string, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", fmt.Errorf("generate key: %w", err)
	}
	return hex.EncodeToString(key), nil
}

// ValidKey reports whether hexKey is accepted by NewSealer.
func ValidKey(hexKey string) bool {
	key, err := hex.DecodeString(hexKey)
	return err == nil && len(key) == KeySize
}

func derive(key []byte, label string) []byte {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(label))
	return mac.Sum(nil)
}

// Seal encrypts plaintext.
// Returns: nonce (12 bytes) + ciphertext + auth tag
func (s *Sealer) Seal(plaintext []byte) ([]byte, error) {
	mac := hmac.New(sha256.New, s.nonceKey)
	mac.Write(plaintext)
	nonce := mac.Sum(nil)[:NonceSize]

	out := make([]byte, NonceSize, NonceSize+len(plaintext)+s.aead.Overhead())
	copy(out, nonce)
	return s.aead.Seal(out, nonce, plaintext, nil), nil
}

// Open decrypts the output of Seal.
func (s *Sealer) Open(sealed []byte) ([]byte, error) {
	if len(sealed) < NonceSize+s.aead.Overhead() {
		return nil, ErrCiphertextTooShort
	}
	plaintext, err := s.aead.Open(nil, sealed[:NonceSize], sealed[NonceSize:], nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}
