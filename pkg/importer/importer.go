// Package importer reads login exports from other password managers and
// turns them into vault credentials.
// Supports 1Password CSV, Bitwarden JSON, and LastPass CSV formats.
package importer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"html"
	"strings"
	"unicode"

	"github.com/google/uuid"
	"golang.org/x/text/unicode/norm"

	"github.com/forest6511/passvault/pkg/vault"
)

// Source represents the source password manager format.
type Source string

const (
	Source1Password Source = "1password"
	SourceBitwarden Source = "bitwarden"
	SourceLastPass  Source = "lastpass"
)

// idNamespace scopes the deterministic ids given to imported entries, so
// importing the same export twice updates instead of duplicating.
var idNamespace = uuid.MustParse("5b0a1e52-7d4c-4c53-9a57-0f0d1e7c2a61")

// Entry is one importable login.
type Entry struct {
	// Name is the item title in the source export.
	Name string

	Credential vault.Credential
}

// Result contains the results of an import operation.
type Result struct {
	// Entries are the successfully parsed logins.
	Entries []Entry

	// Warnings are non-fatal issues encountered during parsing.
	Warnings []string

	// Skipped are items that were skipped with reasons.
	Skipped []SkippedItem
}

// SkippedItem represents an item that was skipped during import.
type SkippedItem struct {
	OriginalName string
	Reason       string
}

// Parser is the interface for competitor format parsers.
type Parser interface {
	// Parse parses the input data.
	Parse(data []byte) (*Result, error)

	// Source returns the source type for this parser.
	Source() Source
}

// Saver stores a credential; *vault.Controller satisfies it.
type Saver interface {
	SaveCredential(ctx context.Context, cred vault.Credential) (vault.Credential, error)
}

// GetParser returns a parser for the given source.
func GetParser(source Source) (Parser, error) {
	switch source {
	case Source1Password:
		return &OnePasswordParser{}, nil
	case SourceBitwarden:
		return &BitwardenParser{}, nil
	case SourceLastPass:
		return &LastPassParser{}, nil
	default:
		return nil, fmt.Errorf("unsupported import source: %s", source)
	}
}

// ValidSources returns a list of valid source names.
func ValidSources() []string {
	return []string{
		string(Source1Password),
		string(SourceBitwarden),
		string(SourceLastPass),
	}
}

// Save writes every entry through s. It stops at the first error unless
// the error only rejects that one credential.
func Save(ctx context.Context, s Saver, entries []Entry) (saved int, rejected []SkippedItem, err error) {
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return saved, rejected, err
		}
		if _, err := s.SaveCredential(ctx, e.Credential); err != nil {
			if errors.Is(err, vault.ErrInvalidCredential) {
				rejected = append(rejected, SkippedItem{OriginalName: e.Name, Reason: err.Error()})
				continue
			}
			return saved, rejected, fmt.Errorf("failed to save %q: %w", e.Name, err)
		}
		saved++
	}
	return saved, rejected, nil
}

// entryBuilder collects the fields shared by every format and turns them
// into an Entry.
type entryBuilder struct {
	source   Source
	name     string
	urls     []string
	username string
	password string
	notes    string
}

// build validates and normalizes the collected fields. A nil Entry comes
// back with the reason it was skipped.
func (b *entryBuilder) build() (*Entry, string) {
	if IsEmptyOrWhitespace(b.password) {
		return nil, "no password"
	}
	origins, bad := NormalizeOrigins(b.urls)
	if len(origins) == 0 {
		if len(bad) > 0 {
			return nil, fmt.Sprintf("no usable website (%s)", strings.Join(bad, ", "))
		}
		return nil, "no website"
	}

	username := NormalizeValue(b.username)
	cred := vault.Credential{
		ID:       entryID(b.source, origins[0], username, b.name),
		Origins:  origins,
		Username: username,
		Password: b.password,
		Notes:    strings.TrimSpace(b.notes),
	}
	return &Entry{Name: NormalizeValue(b.name), Credential: cred}, ""
}

func entryID(source Source, origin, username, name string) string {
	key := strings.Join([]string{string(source), origin, username, NormalizeValue(name)}, "\x00")
	return uuid.NewSHA1(idNamespace, []byte(key)).String()
}

// NormalizeOrigins maps export URLs to distinct vault origins in their
// original order. URLs that do not name a web origin are returned in bad.
func NormalizeOrigins(urls []string) (origins, bad []string) {
	seen := make(map[string]bool)
	for _, raw := range urls {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		if strings.Contains(raw, "://") {
			scheme := strings.ToLower(raw[:strings.Index(raw, "://")])
			if scheme != "http" && scheme != "https" {
				bad = append(bad, raw)
				continue
			}
		}
		o, err := vault.NormalizeOrigin(raw)
		if err != nil {
			bad = append(bad, raw)
			continue
		}
		if !seen[o] {
			seen[o] = true
			origins = append(origins, o)
		}
	}
	return origins, bad
}

// Deduplicate drops entries whose id was already seen. The first entry
// wins; later ones are reported as skipped.
func Deduplicate(r *Result) {
	seen := make(map[string]string)
	kept := r.Entries[:0]
	for _, e := range r.Entries {
		if first, ok := seen[e.Credential.ID]; ok {
			r.Skipped = append(r.Skipped, SkippedItem{
				OriginalName: e.Name,
				Reason:       fmt.Sprintf("duplicate of %q", first),
			})
			continue
		}
		seen[e.Credential.ID] = e.Name
		kept = append(kept, e)
	}
	r.Entries = kept
}

// DecodeHTMLEntities decodes HTML entities found in LastPass exports.
func DecodeHTMLEntities(s string) string {
	return html.UnescapeString(s)
}

// NormalizeValue trims whitespace and normalizes Unicode to NFC.
func NormalizeValue(s string) string {
	s = strings.TrimSpace(s)
	s = norm.NFC.String(s)
	return s
}

// IsEmptyOrWhitespace checks if a string is empty or contains only whitespace.
func IsEmptyOrWhitespace(s string) bool {
	for _, r := range s {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

func stripBOM(data []byte) []byte {
	return bytes.TrimPrefix(data, []byte{0xEF, 0xBB, 0xBF})
}

func newResult() *Result {
	return &Result{
		Entries:  make([]Entry, 0),
		Warnings: make([]string, 0),
		Skipped:  make([]SkippedItem, 0),
	}
}
