package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

// low work factor keeps tests fast; DeriveKey does not enforce the floor
const testIterations = 1000

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeyLength)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("failed to generate key: %v", err)
	}
	return key
}

func TestDeriveKey(t *testing.T) {
	passphrase := []byte("test-password-123")
	salt, err := NewSalt()
	if err != nil {
		t.Fatalf("NewSalt failed: %v", err)
	}

	key := DeriveKey(passphrase, salt, testIterations)
	if len(key) != KeyLength {
		t.Errorf("DeriveKey() returned key of length %d, want %d", len(key), KeyLength)
	}

	if !bytes.Equal(key, DeriveKey(passphrase, salt, testIterations)) {
		t.Error("DeriveKey() with same inputs should produce identical keys")
	}

	if bytes.Equal(key, DeriveKey([]byte("different-password"), salt, testIterations)) {
		t.Error("DeriveKey() with different passphrase should produce different key")
	}

	otherSalt, _ := NewSalt()
	if bytes.Equal(key, DeriveKey(passphrase, otherSalt, testIterations)) {
		t.Error("DeriveKey() with different salt should produce different key")
	}

	if bytes.Equal(key, DeriveKey(passphrase, salt, testIterations+1)) {
		t.Error("DeriveKey() with different iterations should produce different key")
	}
}

func TestValidateParams(t *testing.T) {
	salt := make([]byte, SaltLength)
	tests := []struct {
		name       string
		salt       []byte
		iterations int
		wantErr    bool
	}{
		{"default", salt, DefaultIterations, false},
		{"minimum", salt, MinIterations, false},
		{"below minimum", salt, MinIterations - 1, true},
		{"short salt", salt[:8], DefaultIterations, true},
		{"empty salt", nil, DefaultIterations, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateParams(tt.salt, tt.iterations)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ValidateParams() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrWeakParameters) {
				t.Errorf("ValidateParams() error = %v, want ErrWeakParameters", err)
			}
		})
	}
}

func TestEncryptDecrypt(t *testing.T) {
	key := testKey(t)
	plaintext := []byte("secret data to encrypt")

	ciphertext, nonce, err := Encrypt(key, plaintext)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	if len(nonce) != NonceLength {
		t.Errorf("Encrypt() nonce length = %d, want %d", len(nonce), NonceLength)
	}
	if len(ciphertext) != len(plaintext)+16 {
		t.Errorf("Encrypt() ciphertext length = %d, want %d", len(ciphertext), len(plaintext)+16)
	}

	got, err := Decrypt(key, ciphertext, nonce)
	if err != nil {
		t.Fatalf("Decrypt() error = %v", err)
	}
	if !bytes.Equal(got, plaintext) {
		t.Errorf("Decrypt() = %q, want %q", got, plaintext)
	}
}

func TestEncryptFreshNonce(t *testing.T) {
	key := testKey(t)
	_, n1, _ := Encrypt(key, []byte("x"))
	_, n2, _ := Encrypt(key, []byte("x"))
	if bytes.Equal(n1, n2) {
		t.Error("Encrypt() reused a nonce")
	}
}

func TestEncryptInvalidKeyLength(t *testing.T) {
	for _, n := range []int{0, 16, 24, 48} {
		_, _, err := Encrypt(make([]byte, n), []byte("data"))
		if err != ErrInvalidKeyLength {
			t.Errorf("Encrypt() with %d-byte key error = %v, want %v", n, err, ErrInvalidKeyLength)
		}
	}
}

func TestDecryptFailures(t *testing.T) {
	key := testKey(t)
	ciphertext, nonce, err := Encrypt(key, []byte("payload"))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	tampered := append([]byte(nil), ciphertext...)
	tampered[0] ^= 0xff

	tests := []struct {
		name    string
		key     []byte
		ct      []byte
		nonce   []byte
		wantErr error
	}{
		{"wrong key", testKey(t), ciphertext, nonce, ErrDecryptionFailed},
		{"tampered ciphertext", key, tampered, nonce, ErrDecryptionFailed},
		{"short nonce", key, ciphertext, nonce[:8], ErrInvalidNonceLength},
		{"short ciphertext", key, ciphertext[:4], nonce, ErrCiphertextTooShort},
		{"short key", key[:16], ciphertext, nonce, ErrInvalidKeyLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decrypt(tt.key, tt.ct, tt.nonce)
			if err != tt.wantErr {
				t.Errorf("Decrypt() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSecureWipe(t *testing.T) {
	b := []byte("sensitive")
	SecureWipe(b)
	for i, c := range b {
		if c != 0 {
			t.Fatalf("byte %d not wiped", i)
		}
	}
	SecureWipe(nil)
}

func TestNonceUniqueness(t *testing.T) {
	key := testKey(t)
	seen := make(map[string]struct{}, 10000)
	for i := 0; i < 10000; i++ {
		_, nonce, err := Encrypt(key, []byte("x"))
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}
		if _, dup := seen[string(nonce)]; dup {
			t.Fatalf("nonce repeated after %d encryptions", i)
		}
		seen[string(nonce)] = struct{}{}
	}
}

func TestRoundTripWithDerivedKey(t *testing.T) {
	salt, _ := NewSalt()
	key := DeriveKey([]byte("master"), salt, testIterations)
	rec, err := SealJSON(key, map[string]string{"k": "v"})
	if err != nil {
		t.Fatalf("SealJSON failed: %v", err)
	}
	var out map[string]string
	if err := OpenJSON(DeriveKey([]byte("master"), salt, testIterations), rec, &out); err != nil {
		t.Fatalf("OpenJSON failed: %v", err)
	}
	if out["k"] != "v" {
		t.Errorf("round trip = %v", out)
	}
	if err := OpenJSON(DeriveKey([]byte("other"), salt, testIterations), rec, &out); err != ErrDecryptionFailed {
		t.Errorf("OpenJSON with other passphrase error = %v", err)
	}
}
