// Package audit records vault operations in an HMAC-chained JSONL log.
//
// Each event carries the HMAC of its predecessor, so deleting, reordering
// or editing a line breaks verification. The chain key is derived with
// HKDF from the vault key; events raised while no key is available
// (failed unlocks) are queued and chained on the next SetKey.
package audit

import (
	"bufio"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/hkdf"
)

// Operation types.
const (
	OpVaultInit         = "vault.init"
	OpVaultUnlock       = "vault.unlock"
	OpVaultUnlockFailed = "vault.unlock_failed"
	OpVaultLock         = "vault.lock"
	OpVaultAutolock     = "vault.autolock"
	OpVaultResume       = "vault.resume"

	OpCredentialList   = "credential.list"
	OpCredentialLookup = "credential.lookup"
	OpCredentialSave   = "credential.save"
	OpCredentialDelete = "credential.delete"

	OpConfigAutolock = "config.autolock"

	OpAuditDropped = "audit.dropped"
)

// Sources identify the surface that issued an operation.
const (
	SourceCLI    = "cli"
	SourceMCP    = "mcp"
	SourceNative = "native"
	SourcePage   = "page"
	SourceTimer  = "timer"
)

// Results.
const (
	ResultSuccess = "success"
	ResultError   = "error"
)

const (
	genesis        = "genesis"
	metaFileName   = "audit.meta"
	anchorFileName = "audit.anchor"
	hkdfInfo       = "passvault-audit-v1"

	// maxPending bounds the events queued while no key is set.
	maxPending = 256
)

// ErrKeyNotSet is returned by Verify before SetKey.
var ErrKeyNotSet = errors.New("audit: HMAC key not set")

// Event is one audit record.
type Event struct {
	Version   int            `json:"v"`
	ID        string         `json:"id"`
	Timestamp string         `json:"ts"`
	Operation string         `json:"op"`
	Subject   string         `json:"subject,omitempty"` // HMAC of credential id
	Source    string         `json:"source"`
	SessionID string         `json:"session"`
	Result    string         `json:"result"`
	Error     string         `json:"error,omitempty"`
	Context   map[string]any `json:"ctx,omitempty"`
	Chain     Chain          `json:"chain"`

	subject string
}

// Chain links an event to its predecessor.
type Chain struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
	HMAC     string `json:"hmac"`
}

type chainState struct {
	Sequence int64  `json:"seq"`
	PrevHash string `json:"prev"`
}

// Logger appends events to monthly files under a directory.
type Logger struct {
	path      string
	now       func() time.Time
	sessionID string

	mu       sync.Mutex
	hmacKey  []byte
	sequence int64
	prevHash string
	pending  []Event
	dropped  int
}

// NewLogger creates a logger writing under path.
func NewLogger(path string) *Logger {
	return &Logger{
		path:      path,
		now:       time.Now,
		sessionID: uuid.NewString(),
		prevHash:  genesis,
	}
}

// Path returns the log directory.
func (l *Logger) Path() string { return l.path }

// SetKey derives the chain key from the vault key, loads chain state and
// flushes queued events.
func (l *Logger) SetKey(vaultKey []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, vaultKey, nil, []byte(hkdfInfo)), key); err != nil {
		return fmt.Errorf("audit: failed to derive HMAC key: %w", err)
	}
	l.hmacKey = key

	if err := l.loadChainState(); err != nil {
		l.sequence = 0
		l.prevHash = genesis
	}

	pending, dropped := l.pending, l.dropped
	l.pending, l.dropped = nil, 0
	for i := range pending {
		if err := l.append(&pending[i]); err != nil {
			return err
		}
	}
	if dropped > 0 {
		event := l.newEvent(context.Background(), OpAuditDropped, "", nil, map[string]any{"count": dropped})
		return l.append(&event)
	}
	return nil
}

// ClearKey forgets the chain key. Later events are queued.
func (l *Logger) ClearKey() {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.hmacKey {
		l.hmacKey[i] = 0
	}
	l.hmacKey = nil
}

// Log records an event. subject is a credential id or empty.
func (l *Logger) Log(ctx context.Context, op, subject string, opErr error, extra map[string]any) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	event := l.newEvent(ctx, op, subject, opErr, extra)
	if l.hmacKey == nil {
		// Keep the first events; the overflow is counted and reported on SetKey.
		if len(l.pending) >= maxPending {
			l.dropped++
			return nil
		}
		l.pending = append(l.pending, event)
		return nil
	}
	return l.append(&event)
}

func (l *Logger) newEvent(ctx context.Context, op, subject string, opErr error, extra map[string]any) Event {
	event := Event{
		Version:   1,
		ID:        uuid.NewString(),
		Timestamp: l.now().UTC().Format(time.RFC3339Nano),
		Operation: op,
		Source:    SourceFrom(ctx),
		SessionID: l.sessionID,
		Result:    ResultSuccess,
		Context:   extra,
		subject:   subject,
	}
	if opErr != nil {
		event.Result = ResultError
		event.Error = opErr.Error()
	}
	return event
}

func (l *Logger) append(event *Event) error {
	if event.subject != "" {
		event.Subject = "h:" + l.mac([]byte(event.subject))
	}

	l.sequence++
	event.Chain = Chain{Sequence: l.sequence, PrevHash: l.prevHash}
	event.Chain.HMAC = l.mac(recordData(event))

	if err := os.MkdirAll(l.path, 0700); err != nil {
		return fmt.Errorf("audit: failed to create directory: %w", err)
	}
	if err := l.writeEvent(event); err != nil {
		l.sequence--
		return err
	}
	l.prevHash = event.Chain.HMAC
	return l.saveChainState()
}

func (l *Logger) mac(data []byte) string {
	m := hmac.New(sha256.New, l.hmacKey)
	m.Write(data)
	return hex.EncodeToString(m.Sum(nil))
}

// recordData is the canonical byte form covered by the chain HMAC.
func recordData(e *Event) []byte {
	keys := make([]string, 0, len(e.Context))
	for k := range e.Context {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var ctx strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&ctx, "%s=%v|", k, e.Context[k])
	}
	return []byte(fmt.Sprintf("%d|%s|%s|%s|%s|%s|%s|%s|%s|%s|%d|%s",
		e.Version, e.ID, e.Timestamp, e.Operation, e.Subject, e.Source,
		e.SessionID, e.Result, e.Error, ctx.String(), e.Chain.Sequence, e.Chain.PrevHash))
}

func (l *Logger) writeEvent(event *Event) error {
	name := filepath.Join(l.path, l.now().UTC().Format("2006-01")+".jsonl")
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("audit: failed to open log file: %w", err)
	}
	defer f.Close()

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("audit: failed to marshal event: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("audit: failed to write event: %w", err)
	}
	return nil
}

func (l *Logger) loadChainState() error {
	data, err := os.ReadFile(filepath.Join(l.path, metaFileName))
	if err != nil {
		return err
	}
	var st chainState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	l.sequence = st.Sequence
	l.prevHash = st.PrevHash
	return nil
}

func (l *Logger) saveChainState() error {
	data, err := json.Marshal(chainState{Sequence: l.sequence, PrevHash: l.prevHash})
	if err != nil {
		return fmt.Errorf("audit: failed to marshal chain state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(l.path, metaFileName), data, 0600); err != nil {
		return fmt.Errorf("audit: failed to save chain state: %w", err)
	}
	return nil
}

// VerifyResult reports the outcome of chain verification.
type VerifyResult struct {
	Valid        bool     `json:"valid"`
	RecordsTotal int      `json:"records_total"`
	Errors       []string `json:"errors,omitempty"`
}

// Verify walks every log file in order and checks sequence, links and HMACs.
func (l *Logger) Verify() (*VerifyResult, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.hmacKey == nil {
		return nil, ErrKeyNotSet
	}

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}

	result := &VerifyResult{Valid: true}
	prev := genesis
	var seq int64 = 1
	if data, err := os.ReadFile(filepath.Join(l.path, anchorFileName)); err == nil {
		var anchor chainState
		if err := json.Unmarshal(data, &anchor); err == nil {
			seq, prev = anchor.Sequence+1, anchor.PrevHash
		}
	}
	for i := range events {
		e := &events[i]
		result.RecordsTotal++
		if e.Chain.Sequence != seq {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("sequence gap at record %s: expected %d, got %d", e.ID, seq, e.Chain.Sequence))
		}
		if e.Chain.PrevHash != prev {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("chain broken at record %s", e.ID))
		}
		want := e.Chain.HMAC
		if !hmac.Equal([]byte(want), []byte(l.mac(recordData(e)))) {
			result.Valid = false
			result.Errors = append(result.Errors, fmt.Sprintf("HMAC mismatch at record %s: possible tampering", e.ID))
		}
		prev = want
		seq++
	}
	return result, nil
}

// ListEvents returns up to limit most recent events after since.
// Zero values disable the filters.
func (l *Logger) ListEvents(limit int, since time.Time) ([]Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	events, err := l.readAll()
	if err != nil {
		return nil, err
	}
	if !since.IsZero() {
		filtered := events[:0]
		for _, e := range events {
			if ts, err := time.Parse(time.RFC3339Nano, e.Timestamp); err == nil && ts.After(since) {
				filtered = append(filtered, e)
			}
		}
		events = filtered
	}
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	return events, nil
}

// Prune removes whole monthly files whose events are all older than
// olderThan and returns how many events were dropped. Files that still
// hold a recent event are kept intact so the chain stays verifiable.
func (l *Logger) Prune(olderThan time.Duration) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-olderThan)
	files, err := l.files()
	if err != nil {
		return 0, err
	}

	removed := 0
	var last *Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return removed, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		allOld := len(events) > 0
		for _, e := range events {
			ts, err := time.Parse(time.RFC3339Nano, e.Timestamp)
			if err != nil || ts.After(cutoff) {
				allOld = false
				break
			}
		}
		if !allOld {
			// later files chain onto this one
			break
		}
		if err := os.Remove(file); err != nil {
			return removed, fmt.Errorf("audit: failed to delete %s: %w", file, err)
		}
		removed += len(events)
		last = &events[len(events)-1]
	}

	if last != nil {
		data, _ := json.Marshal(chainState{Sequence: last.Chain.Sequence, PrevHash: last.Chain.HMAC})
		if err := os.WriteFile(filepath.Join(l.path, anchorFileName), data, 0600); err != nil {
			return removed, fmt.Errorf("audit: failed to save anchor: %w", err)
		}
	}
	return removed, nil
}

func (l *Logger) files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(l.path, "*.jsonl"))
	if err != nil {
		return nil, fmt.Errorf("audit: failed to list log files: %w", err)
	}
	sort.Strings(files)
	return files, nil
}

func (l *Logger) readAll() ([]Event, error) {
	files, err := l.files()
	if err != nil {
		return nil, err
	}
	var all []Event
	for _, file := range files {
		events, err := readLogFile(file)
		if err != nil {
			return nil, fmt.Errorf("audit: failed to read %s: %w", file, err)
		}
		all = append(all, events...)
	}
	return all, nil
}

func readLogFile(path string) ([]Event, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var events []Event
	sc := bufio.NewScanner(f)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := sc.Bytes()
		if len(line) == 0 {
			continue
		}
		var e Event
		if err := json.Unmarshal(line, &e); err != nil {
			return nil, fmt.Errorf("failed to parse line: %w", err)
		}
		events = append(events, e)
	}
	return events, sc.Err()
}
