// Package vault implements the session controller for the credential vault.
//
// The Controller owns the only in-memory copy of the vault key and moves
// between three states: Uninitialized (no metadata persisted), Locked
// (metadata but no key) and Unlocked (key held, auto-lock armed). Every
// credential operation first attempts to resume from the volatile key
// export, then runs one decrypt-mutate-encrypt-persist cycle under the
// controller mutex, then slides the auto-lock deadline.
package vault

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/awnumar/memguard"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/forest6511/passvault/internal/logging"
	"github.com/forest6511/passvault/pkg/audit"
	"github.com/forest6511/passvault/pkg/crypto"
	"github.com/forest6511/passvault/pkg/keycache"
	"github.com/forest6511/passvault/pkg/store"
)

// Options configures a Controller. Store is required.
type Options struct {
	Store     store.Store
	KeyCache  keycache.Cache // nil disables resume
	Audit     *audit.Logger  // nil disables audit
	Logger    zerolog.Logger
	Scheduler Scheduler
	Now       func() time.Time

	// Iterations is the PBKDF2 work factor used when creating metadata.
	Iterations int
}

// Controller serializes all access to the vault key and record.
type Controller struct {
	store      store.Store
	cache      keycache.Cache
	audit      *audit.Logger
	log        zerolog.Logger
	sched      Scheduler
	now        func() time.Time
	iterations int

	mu       sync.Mutex
	key      *memguard.Enclave
	autolock time.Duration
	expiry   time.Time // zero when no deadline is enforced
	timer    Timer
	gen      uint64
}

// New creates a controller. No storage is touched until the first call.
func New(opts Options) *Controller {
	c := &Controller{
		store:      opts.Store,
		cache:      opts.KeyCache,
		audit:      opts.Audit,
		log:        opts.Logger,
		sched:      opts.Scheduler,
		now:        opts.Now,
		iterations: opts.Iterations,
		autolock:   DefaultAutolock,
	}
	if c.sched == nil {
		c.sched = clockScheduler{}
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.iterations == 0 {
		c.iterations = crypto.DefaultIterations
	}
	return c
}

// Init persists fresh metadata if none exists and returns the current
// metadata. It never creates the vault record.
func (c *Controller) Init(ctx context.Context) (*Metadata, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.initLocked(ctx)
}

func (c *Controller) initLocked(ctx context.Context) (*Metadata, error) {
	meta, err := c.loadMeta(ctx)
	if err == nil {
		return meta, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return nil, err
	}

	if c.iterations < crypto.MinIterations {
		return nil, fmt.Errorf("%w: iterations %d below %d", ErrInvalidConfig, c.iterations, crypto.MinIterations)
	}
	salt, err := crypto.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	now := c.now().UTC()
	meta = &Metadata{
		KDFAlgorithm: crypto.KDFAlgorithm,
		Iterations:   c.iterations,
		Salt:         salt,
		AutolockMs:   DefaultAutolock.Milliseconds(),
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := c.saveMeta(ctx, meta); err != nil {
		return nil, err
	}
	c.autolock = meta.autolock()
	c.logAudit(ctx, audit.OpVaultInit, "", nil)
	return meta, nil
}

// State reports the lifecycle state without attempting a resume.
func (c *Controller) State(ctx context.Context) (State, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.expireIfDue(ctx)
	if c.key != nil {
		return StateUnlocked, nil
	}
	if _, err := c.loadMeta(ctx); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return StateUninitialized, nil
		}
		return StateLocked, err
	}
	return StateLocked, nil
}

// Status reports whether a usable key is available, resuming if possible.
func (c *Controller) Status(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.requireKey(ctx) == nil
}

// Unlock derives the key from passphrase and proves it by decrypting the
// vault record. With no record yet, an empty document is sealed under the
// new key, which fixes the passphrase for this installation.
func (c *Controller) Unlock(ctx context.Context, passphrase string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, err := c.initLocked(ctx)
	if err != nil {
		return err
	}
	if err := meta.validate(); err != nil {
		return err
	}

	key := crypto.DeriveKey([]byte(passphrase), meta.Salt, meta.Iterations)

	raw, err := c.store.Get(ctx, store.KeyVault)
	switch {
	case errors.Is(err, store.ErrNotFound):
		if err := c.writeDocument(ctx, key, &Document{Credentials: []Credential{}}); err != nil {
			crypto.SecureWipe(key)
			return err
		}
	case err != nil:
		crypto.SecureWipe(key)
		return err
	default:
		var doc Document
		if err := openDocument(key, raw, &doc); err != nil {
			crypto.SecureWipe(key)
			c.logAudit(ctx, audit.OpVaultUnlockFailed, "", err)
			return err
		}
	}

	c.autolock = meta.autolock()
	c.install(ctx, key)
	c.logAudit(ctx, audit.OpVaultUnlock, "", nil)
	return nil
}

// Lock discards the key and its volatile export. It never fails.
func (c *Controller) Lock(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lockLocked(ctx, audit.OpVaultLock)
}

// Touch slides the auto-lock deadline.
func (c *Controller) Touch(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.requireKey(ctx); err != nil {
		return err
	}
	c.arm(ctx)
	return nil
}

// ListCredentials returns every stored credential.
func (c *Controller) ListCredentials(ctx context.Context) ([]Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.readDocument(ctx)
	if err != nil {
		return nil, err
	}
	c.arm(ctx)
	c.logAudit(ctx, audit.OpCredentialList, "", nil)
	return doc.Credentials, nil
}

// CredentialsForOrigin returns credentials whose origins contain origin
// exactly.
func (c *Controller) CredentialsForOrigin(ctx context.Context, origin string) ([]Credential, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	doc, err := c.readDocument(ctx)
	if err != nil {
		return nil, err
	}
	matches := []Credential{}
	for _, cred := range doc.Credentials {
		if cred.HasOrigin(origin) {
			matches = append(matches, cred)
		}
	}
	c.arm(ctx)
	c.logAudit(ctx, audit.OpCredentialLookup, "", nil)
	c.log.Debug().Str("origin", logging.Redact(origin)).Int("matches", len(matches)).Msg("origin lookup")
	return matches, nil
}

// SaveCredential upserts cred by id, assigning a new id when empty, and
// returns the stored value.
func (c *Controller) SaveCredential(ctx context.Context, cred Credential) (Credential, error) {
	cred.Origins = append([]string(nil), cred.Origins...)
	if err := validateCredential(&cred); err != nil {
		return Credential{}, err
	}
	if cred.ID == "" {
		cred.ID = uuid.NewString()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	err := c.mutate(ctx, func(doc *Document) bool {
		doc.upsert(cred)
		return true
	})
	c.logAudit(ctx, audit.OpCredentialSave, cred.ID, err)
	if err != nil {
		return Credential{}, err
	}
	c.log.Debug().Str("id", logging.Redact(cred.ID)).Msg("credential saved")
	return cred, nil
}

// DeleteCredential removes id. Deleting an absent id is not an error.
func (c *Controller) DeleteCredential(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := false
	err := c.mutate(ctx, func(doc *Document) bool {
		removed = doc.remove(id)
		return removed
	})
	c.logAudit(ctx, audit.OpCredentialDelete, id, err)
	if err == nil {
		c.log.Debug().Str("id", logging.Redact(id)).Bool("removed", removed).Msg("credential delete")
	}
	return err
}

// AutolockDuration returns the configured idle timeout.
func (c *Controller) AutolockDuration(ctx context.Context) (time.Duration, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	meta, err := c.loadMeta(ctx)
	if errors.Is(err, store.ErrNotFound) {
		return DefaultAutolock, nil
	}
	if err != nil {
		return 0, err
	}
	return meta.autolock(), nil
}

// SetAutolockDuration stores a new idle timeout in milliseconds and, when
// unlocked, re-arms the timer with it.
func (c *Controller) SetAutolockDuration(ctx context.Context, ms int64) error {
	if ms < MinAutolock.Milliseconds() {
		return fmt.Errorf("%w: auto-lock must be at least %d ms, got %d", ErrInvalidConfig, MinAutolock.Milliseconds(), ms)
	}
	if ms > MaxAutolock.Milliseconds() {
		return fmt.Errorf("%w: auto-lock must be at most %d ms, got %d", ErrInvalidConfig, MaxAutolock.Milliseconds(), ms)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	meta, err := c.initLocked(ctx)
	if err != nil {
		return err
	}
	meta.AutolockMs = ms
	meta.UpdatedAt = c.now().UTC()
	if err := c.saveMeta(ctx, meta); err != nil {
		return err
	}
	c.autolock = meta.autolock()

	c.expireIfDue(ctx)
	if c.key != nil {
		c.arm(ctx)
	}
	c.logAudit(ctx, audit.OpConfigAutolock, "", nil)
	return nil
}

// requireKey makes sure a key is held, resuming from the export if
// needed. Caller holds c.mu.
func (c *Controller) requireKey(ctx context.Context) error {
	c.expireIfDue(ctx)
	if c.key == nil {
		c.resume(ctx)
	}
	if c.key == nil {
		return ErrVaultLocked
	}
	return nil
}

func (c *Controller) resume(ctx context.Context) {
	if c.cache == nil {
		return
	}
	key, err := c.cache.Get(ctx)
	if err != nil {
		if !errors.Is(err, keycache.ErrNotFound) {
			c.log.Debug().Err(err).Msg("key export unavailable")
		}
		return
	}

	if err := c.checkExport(ctx, key); err != nil {
		c.log.Debug().Err(err).Msg("discarding unusable key export")
		crypto.SecureWipe(key)
		if err := c.cache.Delete(ctx); err != nil {
			c.log.Debug().Err(err).Msg("failed to delete key export")
		}
		return
	}

	meta, err := c.loadMeta(ctx)
	if err != nil {
		crypto.SecureWipe(key)
		return
	}
	c.autolock = meta.autolock()
	c.install(ctx, key)
	c.logAudit(ctx, audit.OpVaultResume, "", nil)
}

// checkExport accepts an exported key only if it opens the current record.
func (c *Controller) checkExport(ctx context.Context, key []byte) error {
	if len(key) != crypto.KeyLength {
		return crypto.ErrInvalidKeyLength
	}
	raw, err := c.store.Get(ctx, store.KeyVault)
	if err != nil {
		return err
	}
	var doc Document
	return openDocument(key, raw, &doc)
}

// install takes ownership of key: exports it, seeds the audit chain,
// seals it in an enclave (which wipes the slice) and arms the timer.
func (c *Controller) install(ctx context.Context, key []byte) {
	if c.cache != nil {
		if err := c.cache.Put(ctx, key, c.autolock); err != nil {
			c.log.Debug().Err(err).Msg("failed to export key")
		}
	}
	if c.audit != nil {
		if err := c.audit.SetKey(key); err != nil {
			c.log.Debug().Err(err).Msg("failed to initialize audit log")
		}
	}
	c.key = memguard.NewEnclave(key)
	c.arm(ctx)
}

func (c *Controller) lockLocked(ctx context.Context, op string) {
	held := c.key != nil
	c.key = nil
	c.gen++
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.expiry = time.Time{}

	if c.cache != nil {
		if err := c.cache.Delete(ctx); err != nil {
			c.log.Debug().Err(err).Msg("failed to clear key export")
		}
	}
	if held {
		c.logAudit(ctx, op, "", nil)
		c.log.Debug().Str("op", op).Msg("vault locked")
	}
	if c.audit != nil {
		c.audit.ClearKey()
	}
}

// arm cancels any pending timer and schedules a new deadline.
func (c *Controller) arm(ctx context.Context) {
	c.gen++
	gen := c.gen
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}

	d := c.autolock
	timer, err := c.sched.AfterFunc(d, func() { c.fire(gen) })
	if err != nil {
		c.log.Debug().Err(err).Msg("failed to schedule auto-lock")
		c.expiry = time.Time{}
	} else {
		c.timer = timer
		c.expiry = c.now().Add(d)
	}

	if c.cache != nil {
		if err := c.cache.Touch(ctx, d); err != nil {
			c.log.Debug().Err(err).Msg("failed to refresh key export")
		}
	}
}

func (c *Controller) fire(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen || c.key == nil {
		return
	}
	ctx := audit.WithSource(context.Background(), audit.SourceTimer)
	c.lockLocked(ctx, audit.OpVaultAutolock)
}

func (c *Controller) expireIfDue(ctx context.Context) {
	if c.key != nil && !c.expiry.IsZero() && !c.now().Before(c.expiry) {
		c.lockLocked(ctx, audit.OpVaultAutolock)
	}
}

func (c *Controller) withKey(fn func(key []byte) error) error {
	buf, err := c.key.Open()
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	defer buf.Destroy()
	return fn(buf.Bytes())
}

func (c *Controller) readDocument(ctx context.Context) (*Document, error) {
	if err := c.requireKey(ctx); err != nil {
		return nil, err
	}
	raw, err := c.store.Get(ctx, store.KeyVault)
	if errors.Is(err, store.ErrNotFound) {
		return &Document{Credentials: []Credential{}}, nil
	}
	if err != nil {
		return nil, err
	}
	doc := &Document{}
	err = c.withKey(func(key []byte) error {
		return openDocument(key, raw, doc)
	})
	if err != nil {
		return nil, err
	}
	if doc.Credentials == nil {
		doc.Credentials = []Credential{}
	}
	return doc, nil
}

// mutate runs one read-modify-write cycle. fn reports whether the
// document changed; unchanged documents are not rewritten.
func (c *Controller) mutate(ctx context.Context, fn func(*Document) bool) error {
	doc, err := c.readDocument(ctx)
	if err != nil {
		return err
	}
	if fn(doc) {
		err = c.withKey(func(key []byte) error {
			return c.writeDocument(ctx, key, doc)
		})
		if err != nil {
			return err
		}
	}
	c.arm(ctx)
	return nil
}

func (c *Controller) writeDocument(ctx context.Context, key []byte, doc *Document) error {
	rec, err := crypto.SealJSON(key, doc)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	data, err := crypto.MarshalRecord(rec)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return c.store.Put(ctx, store.KeyVault, data)
}

func openDocument(key, raw []byte, doc *Document) error {
	rec, err := crypto.UnmarshalRecord(raw)
	if err != nil {
		return ErrInvalidPassphrase
	}
	if err := crypto.OpenJSON(key, rec, doc); err != nil {
		if errors.Is(err, crypto.ErrDecryptionFailed) || errors.Is(err, crypto.ErrUnsupportedRecord) ||
			errors.Is(err, crypto.ErrInvalidNonceLength) || errors.Is(err, crypto.ErrCiphertextTooShort) {
			return ErrInvalidPassphrase
		}
		return fmt.Errorf("%w: %v", ErrCrypto, err)
	}
	return nil
}

func (c *Controller) loadMeta(ctx context.Context) (*Metadata, error) {
	raw, err := c.store.Get(ctx, store.KeyMeta)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMetadataCorrupted, err)
	}
	return &meta, nil
}

func (c *Controller) saveMeta(ctx context.Context, meta *Metadata) error {
	data, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("vault: failed to marshal metadata: %w", err)
	}
	return c.store.Put(ctx, store.KeyMeta, data)
}

func (c *Controller) logAudit(ctx context.Context, op, subject string, opErr error) {
	if c.audit == nil {
		return
	}
	if err := c.audit.Log(ctx, op, subject, opErr, nil); err != nil {
		c.log.Debug().Err(err).Str("op", op).Msg("audit write failed")
	}
}
