// Package crypto provides the cipher core for passvault.
//
// Keys are derived from a passphrase with PBKDF2-HMAC-SHA256 and all
// persisted payloads are sealed with AES-256-GCM under a fresh random
// 12-byte nonce. A failed GCM authentication is the only signal that a
// passphrase is wrong; corruption and a wrong key are indistinguishable.
//
// # Example Usage
//
//	salt, _ := crypto.NewSalt()
//	key := crypto.DeriveKey([]byte("passphrase"), salt, crypto.DefaultIterations)
//	rec, err := crypto.SealJSON(key, doc)
//	err = crypto.OpenJSON(key, rec, &doc)
//	crypto.SecureWipe(key)
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"runtime"

	"golang.org/x/crypto/pbkdf2"
)

// Key derivation parameters.
const (
	// KDFAlgorithm names the derivation function recorded in vault metadata.
	KDFAlgorithm = "PBKDF2-SHA256"

	// DefaultIterations is the PBKDF2 work factor for new vaults.
	DefaultIterations = 310000

	// MinIterations is the lowest work factor accepted from metadata.
	MinIterations = 100000

	// SaltLength is the length of KDF salts in bytes.
	SaltLength = 16

	// KeyLength is the length of encryption keys in bytes (256 bits).
	KeyLength = 32

	// NonceLength is the length of GCM nonces in bytes (96 bits).
	NonceLength = 12
)

// Sentinel errors returned by crypto functions.
var (
	// ErrInvalidKeyLength indicates the key is not 32 bytes.
	ErrInvalidKeyLength = errors.New("crypto: invalid key length, must be 32 bytes")

	// ErrInvalidNonceLength indicates the nonce is not 12 bytes.
	ErrInvalidNonceLength = errors.New("crypto: invalid nonce length, must be 12 bytes")

	// ErrDecryptionFailed indicates authentication tag verification failed.
	ErrDecryptionFailed = errors.New("crypto: decryption failed, authentication tag verification failed")

	// ErrCiphertextTooShort indicates the ciphertext is shorter than the GCM tag.
	ErrCiphertextTooShort = errors.New("crypto: ciphertext too short")

	// ErrWeakParameters indicates KDF parameters below the accepted floor.
	ErrWeakParameters = errors.New("crypto: key derivation parameters below minimum")
)

// DeriveKey derives a 256-bit key from a passphrase with PBKDF2-HMAC-SHA256.
// Same passphrase, salt and iterations always yield the same key.
func DeriveKey(passphrase, salt []byte, iterations int) []byte {
	return pbkdf2.Key(passphrase, salt, iterations, KeyLength, sha256.New)
}

// ValidateParams checks salt and iteration count read from vault metadata.
func ValidateParams(salt []byte, iterations int) error {
	if len(salt) != SaltLength {
		return fmt.Errorf("%w: salt must be %d bytes, got %d", ErrWeakParameters, SaltLength, len(salt))
	}
	if iterations < MinIterations {
		return fmt.Errorf("%w: %d iterations, need at least %d", ErrWeakParameters, iterations, MinIterations)
	}
	return nil
}

// NewSalt returns SaltLength bytes from crypto/rand.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltLength)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto: failed to generate salt: %w", err)
	}
	return salt, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeyLength {
		return nil, ErrInvalidKeyLength
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to create GCM: %w", err)
	}
	return gcm, nil
}

// Encrypt seals plaintext with AES-256-GCM under a fresh random nonce.
// The authentication tag is appended to the returned ciphertext.
func Encrypt(key, plaintext []byte) (ciphertext []byte, nonce []byte, err error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, nil, err
	}

	nonce = make([]byte, NonceLength)
	if _, err := rand.Read(nonce); err != nil {
		return nil, nil, fmt.Errorf("crypto: failed to generate nonce: %w", err)
	}

	return gcm.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Decrypt opens ciphertext produced by Encrypt. Any tag mismatch, whether
// from a wrong key or tampered bytes, returns ErrDecryptionFailed.
func Decrypt(key, ciphertext, nonce []byte) (plaintext []byte, err error) {
	if len(nonce) != NonceLength {
		return nil, ErrInvalidNonceLength
	}
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(ciphertext) < gcm.Overhead() {
		return nil, ErrCiphertextTooShort
	}

	plaintext, err = gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// SecureWipe overwrites a byte slice with zeros in a way that prevents
// compiler optimization from removing the operation.
func SecureWipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
	runtime.KeepAlive(b)
}
