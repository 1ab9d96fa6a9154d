package crypto

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Record envelope constants.
const (
	RecordVersion   = 1
	RecordAlgorithm = "AES-256-GCM"
)

// ErrUnsupportedRecord indicates an envelope with an unknown version or algorithm.
var ErrUnsupportedRecord = errors.New("crypto: unsupported record version or algorithm")

// Record is the self-describing envelope persisted for every sealed payload.
// []byte fields encode as base64 in JSON.
type Record struct {
	Version    int    `json:"v"`
	Algorithm  string `json:"alg"`
	Nonce      []byte `json:"nonce"`
	Ciphertext []byte `json:"ct"`
}

// Seal encrypts plaintext into a Record.
func Seal(key, plaintext []byte) (*Record, error) {
	ct, nonce, err := Encrypt(key, plaintext)
	if err != nil {
		return nil, err
	}
	return &Record{
		Version:    RecordVersion,
		Algorithm:  RecordAlgorithm,
		Nonce:      nonce,
		Ciphertext: ct,
	}, nil
}

// Open decrypts a Record after checking its envelope fields.
func Open(key []byte, rec *Record) ([]byte, error) {
	if rec == nil {
		return nil, ErrDecryptionFailed
	}
	if rec.Version != RecordVersion || rec.Algorithm != RecordAlgorithm {
		return nil, fmt.Errorf("%w: v=%d alg=%q", ErrUnsupportedRecord, rec.Version, rec.Algorithm)
	}
	return Decrypt(key, rec.Ciphertext, rec.Nonce)
}

// SealJSON serializes v and seals it into a Record.
func SealJSON(key []byte, v any) (*Record, error) {
	plaintext, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("crypto: failed to serialize payload: %w", err)
	}
	defer SecureWipe(plaintext)
	return Seal(key, plaintext)
}

// OpenJSON opens rec and deserializes the plaintext into v.
func OpenJSON(key []byte, rec *Record, v any) error {
	plaintext, err := Open(key, rec)
	if err != nil {
		return err
	}
	defer SecureWipe(plaintext)
	if err := json.Unmarshal(plaintext, v); err != nil {
		// authenticated bytes that are not the expected shape
		return ErrDecryptionFailed
	}
	return nil
}

// MarshalRecord encodes a Record for storage.
func MarshalRecord(rec *Record) ([]byte, error) {
	return json.Marshal(rec)
}

// UnmarshalRecord decodes a stored Record.
func UnmarshalRecord(data []byte) (*Record, error) {
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: malformed envelope: %v", ErrUnsupportedRecord, err)
	}
	return &rec, nil
}
