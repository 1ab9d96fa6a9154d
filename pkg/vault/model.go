package vault

import (
	"errors"
	"time"

	"github.com/forest6511/passvault/pkg/crypto"
)

// Limits.
const (
	// MinAutolock is the shortest accepted auto-lock duration.
	MinAutolock = time.Minute

	// MaxAutolock is the longest accepted auto-lock duration.
	MaxAutolock = 24 * time.Hour

	// DefaultAutolock applies to new vaults.
	DefaultAutolock = 5 * time.Minute

	MaxNotesSize    = 10 * 1024
	MaxUsernameSize = 1024
	MaxPasswordSize = 4096
	MaxURLLength    = 2048
	MaxOrigins      = 64
)

// Errors
var (
	// ErrInvalidPassphrase covers a wrong passphrase and a corrupted or
	// tampered vault record alike; the two cannot be told apart.
	ErrInvalidPassphrase = errors.New("vault: invalid master passphrase")
	ErrVaultLocked       = errors.New("vault: vault is locked")
	ErrInvalidConfig     = errors.New("vault: invalid configuration")
	ErrInvalidCredential = errors.New("vault: invalid credential")
	ErrCrypto            = errors.New("vault: cryptographic failure")
	ErrMetadataCorrupted = errors.New("vault: metadata is corrupted")
)

// State is the controller's lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateLocked
	StateUnlocked
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLocked:
		return "locked"
	case StateUnlocked:
		return "unlocked"
	default:
		return "unknown"
	}
}

// Metadata is the plaintext record describing how the vault key is derived.
// Salt and Iterations never change after creation.
type Metadata struct {
	KDFAlgorithm string    `json:"kdfAlgorithm"`
	Iterations   int       `json:"iterations"`
	Salt         []byte    `json:"salt"`
	AutolockMs   int64     `json:"autolockDurationMs"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// autolock returns the stored duration. Values below the floor fall back
// to the default and values above the cap are clamped, which also keeps
// the conversion from overflowing.
func (m *Metadata) autolock() time.Duration {
	switch {
	case m.AutolockMs < MinAutolock.Milliseconds():
		return DefaultAutolock
	case m.AutolockMs > MaxAutolock.Milliseconds():
		return MaxAutolock
	}
	return time.Duration(m.AutolockMs) * time.Millisecond
}

func (m *Metadata) validate() error {
	if m.KDFAlgorithm != crypto.KDFAlgorithm {
		return ErrMetadataCorrupted
	}
	if err := crypto.ValidateParams(m.Salt, m.Iterations); err != nil {
		return errors.Join(ErrMetadataCorrupted, err)
	}
	return nil
}

// Credential is one stored login.
type Credential struct {
	ID       string   `json:"id"`
	Origins  []string `json:"origins"`
	Username string   `json:"username"`
	Password string   `json:"password"`
	Notes    string   `json:"notes,omitempty"`
}

// HasOrigin reports exact membership of origin in c.Origins.
func (c *Credential) HasOrigin(origin string) bool {
	for _, o := range c.Origins {
		if o == origin {
			return true
		}
	}
	return false
}

// Document is the decrypted vault payload.
type Document struct {
	Credentials []Credential `json:"credentials"`
}

func (d *Document) upsert(c Credential) {
	for i := range d.Credentials {
		if d.Credentials[i].ID == c.ID {
			d.Credentials[i] = c
			return
		}
	}
	d.Credentials = append(d.Credentials, c)
}

func (d *Document) remove(id string) bool {
	for i := range d.Credentials {
		if d.Credentials[i].ID == id {
			d.Credentials = append(d.Credentials[:i], d.Credentials[i+1:]...)
			return true
		}
	}
	return false
}
