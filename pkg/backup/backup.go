package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/forest6511/passvault/pkg/crypto"
	"github.com/forest6511/passvault/pkg/store"
)

// BackupOptions configures the backup operation.
type BackupOptions struct {
	// Output is the destination writer for the backup.
	Output io.Writer
	// Password for encryption.
	Password []byte
	// KeyFile path for encryption key (overrides Password).
	KeyFile string
	// Iterations is the PBKDF2 work factor in password mode; zero uses
	// crypto.DefaultIterations.
	Iterations int
	// CredentialCount is recorded in the header for display only.
	CredentialCount int
	// Now defaults to time.Now.
	Now func() time.Time
}

// RestoreOptions configures the restore operation.
type RestoreOptions struct {
	// Overwrite replaces a vault already present in the target store.
	Overwrite bool
	// DryRun verifies and decrypts without writing.
	DryRun bool
	// Password for decryption.
	Password []byte
	// KeyFile path for decryption key (overrides Password).
	KeyFile string
}

// RestoreResult describes a restored (or, with DryRun, restorable) backup.
type RestoreResult struct {
	CreatedAt       time.Time
	CredentialCount int
	DryRun          bool
}

// VerifyResult contains the result of a verify operation.
type VerifyResult struct {
	// Valid indicates the backup passed all integrity checks.
	Valid bool
	// Version is the backup format version.
	Version int
	// CreatedAt is when the backup was created.
	CreatedAt time.Time
	// CredentialCount is the number of credentials at backup time.
	CredentialCount int
	// Error is set if verification failed.
	Error string
}

// Backup writes an encrypted copy of the vault records in st.
func Backup(ctx context.Context, st store.Store, opts BackupOptions) error {
	if opts.Output == nil {
		return errors.New("backup: output writer is required")
	}
	now := opts.Now
	if now == nil {
		now = time.Now
	}

	payload, err := collectVaultData(ctx, st)
	if err != nil {
		return err
	}

	header := &Header{
		Version:         FormatVersion,
		CreatedAt:       now().UTC(),
		CredentialCount: opts.CredentialCount,
		ChecksumAlgo:    "sha256",
	}

	var encKey, macKey []byte
	if opts.KeyFile != "" {
		fileKey, err := ReadKeyFile(opts.KeyFile)
		if err != nil {
			return err
		}
		encKey, macKey, err = splitKey(fileKey)
		crypto.SecureWipe(fileKey)
		if err != nil {
			return err
		}
		header.EncryptionMode = EncryptionModeKey
	} else {
		if len(opts.Password) == 0 {
			return ErrEmptyPassword
		}
		iterations := opts.Iterations
		if iterations == 0 {
			iterations = crypto.DefaultIterations
		}
		salt, err := crypto.NewSalt()
		if err != nil {
			return err
		}
		encKey, macKey, err = DeriveBackupKeys(opts.Password, salt, iterations)
		if err != nil {
			return err
		}
		header.EncryptionMode = EncryptionModePassword
		header.KDFParams = &KDFParams{Salt: salt, Iterations: iterations}
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	payloadBytes, err := EncodePayload(payload)
	if err != nil {
		return err
	}
	defer crypto.SecureWipe(payloadBytes)

	ciphertext, err := EncryptPayload(payloadBytes, encKey)
	if err != nil {
		return fmt.Errorf("failed to encrypt payload: %w", err)
	}

	// Write to buffer first (for HMAC calculation)
	var buf bytes.Buffer
	if err := WriteHeader(&buf, header); err != nil {
		return err
	}
	if err := writeUint32(&buf, uint32(len(ciphertext))); err != nil {
		return err
	}
	buf.Write(ciphertext)

	// HMAC over header + ciphertext
	mac := ComputeHMAC(buf.Bytes(), macKey)

	if _, err := opts.Output.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to write backup: %w", err)
	}
	if _, err := opts.Output.Write(mac); err != nil {
		return fmt.Errorf("failed to write HMAC: %w", err)
	}
	return nil
}

// Restore decrypts data and writes its records into st.
func Restore(ctx context.Context, st store.Store, data []byte, opts RestoreOptions) (*RestoreResult, error) {
	header, payload, err := verifyAndDecrypt(data, opts.Password, opts.KeyFile)
	if err != nil {
		return nil, err
	}

	result := &RestoreResult{
		CreatedAt:       header.CreatedAt,
		CredentialCount: header.CredentialCount,
		DryRun:          opts.DryRun,
	}

	if !opts.Overwrite {
		_, err := st.Get(ctx, store.KeyMeta)
		switch {
		case err == nil:
			return nil, ErrConflict
		case !errors.Is(err, store.ErrNotFound):
			return nil, err
		}
	}
	if opts.DryRun {
		return result, nil
	}

	// Both records carry the same salt, so they are replaced together or
	// not at all.
	err = st.PutAll(ctx,
		store.Entry{Key: store.KeyVault, Value: payload.Vault},
		store.Entry{Key: store.KeyMeta, Value: payload.Meta},
	)
	if err != nil {
		return nil, fmt.Errorf("backup: restore failed, existing vault left unchanged: %w", err)
	}
	return result, nil
}

// Verify checks backup integrity without restoring.
func Verify(data []byte, password []byte, keyFile string) *VerifyResult {
	header, _, err := verifyAndDecrypt(data, password, keyFile)
	if err != nil {
		return &VerifyResult{Valid: false, Error: err.Error()}
	}
	return &VerifyResult{
		Valid:           true,
		Version:         header.Version,
		CreatedAt:       header.CreatedAt,
		CredentialCount: header.CredentialCount,
	}
}

// ReadHeaderFrom returns the unauthenticated header of a backup, so a
// caller can tell which credentials to ask for.
func ReadHeaderFrom(data []byte) (*Header, error) {
	return ReadHeader(bytes.NewReader(data))
}

// collectVaultData reads both records from st.
func collectVaultData(ctx context.Context, st store.Store) (*Payload, error) {
	meta, err := st.Get(ctx, store.KeyMeta)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrVaultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vault metadata: %w", err)
	}
	vaultRec, err := st.Get(ctx, store.KeyVault)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrVaultNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read vault record: %w", err)
	}
	return &Payload{Meta: meta, Vault: vaultRec}, nil
}

// verifyAndDecrypt verifies the backup integrity and decrypts the payload.
func verifyAndDecrypt(data []byte, password []byte, keyFile string) (*Header, *Payload, error) {
	if len(data) < len(MagicNumber)+4+HMACLength {
		return nil, nil, ErrInvalidMagic
	}

	reader := bytes.NewReader(data)
	header, err := ReadHeader(reader)
	if err != nil {
		return nil, nil, err
	}
	headerEnd := len(data) - reader.Len()

	var ciphertextLen uint32
	if err := readUint32(reader, &ciphertextLen); err != nil {
		return nil, nil, fmt.Errorf("failed to read ciphertext length: %w", err)
	}
	if reader.Len() != int(ciphertextLen)+HMACLength {
		return nil, nil, errors.New("backup: file truncated or has trailing data")
	}

	signedEnd := headerEnd + 4 + int(ciphertextLen)
	ciphertext := data[headerEnd+4 : signedEnd]
	storedMAC := data[signedEnd:]

	var encKey, macKey []byte
	switch {
	case keyFile != "":
		fileKey, err := ReadKeyFile(keyFile)
		if err != nil {
			return nil, nil, err
		}
		encKey, macKey, err = splitKey(fileKey)
		crypto.SecureWipe(fileKey)
		if err != nil {
			return nil, nil, err
		}
	case header.EncryptionMode == EncryptionModePassword && header.KDFParams != nil:
		if len(password) == 0 {
			return nil, nil, ErrEmptyPassword
		}
		encKey, macKey, err = DeriveBackupKeys(password, header.KDFParams.Salt, header.KDFParams.Iterations)
		if err != nil {
			return nil, nil, err
		}
	default:
		return nil, nil, errors.New("backup: cannot determine decryption key")
	}
	defer crypto.SecureWipe(encKey)
	defer crypto.SecureWipe(macKey)

	if !VerifyHMAC(data[:signedEnd], storedMAC, macKey) {
		return nil, nil, ErrIntegrityFailed
	}

	plaintext, err := DecryptPayload(ciphertext, encKey)
	if err != nil {
		return nil, nil, err
	}
	defer crypto.SecureWipe(plaintext)

	payload, err := DecodePayload(plaintext)
	if err != nil {
		return nil, nil, err
	}
	if len(payload.Meta) == 0 || len(payload.Vault) == 0 {
		return nil, nil, ErrInvalidPayload
	}
	if _, err := crypto.UnmarshalRecord(payload.Vault); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	return header, payload, nil
}
