package importer

import (
	"encoding/json"
	"fmt"
)

// BitwardenParser parses Bitwarden JSON export files. Only login items
// carry credentials; other item types are reported as skipped.
type BitwardenParser struct{}

// Bitwarden item types.
const (
	bitwardenTypeLogin      = 1
	bitwardenTypeSecureNote = 2
	bitwardenTypeCard       = 3
	bitwardenTypeIdentity   = 4
)

type bitwardenExport struct {
	Encrypted bool            `json:"encrypted"`
	Items     []bitwardenItem `json:"items"`
}

type bitwardenItem struct {
	Type  int             `json:"type"`
	Name  string          `json:"name"`
	Notes string          `json:"notes"`
	Login *bitwardenLogin `json:"login"`
}

type bitwardenLogin struct {
	URIs     []bitwardenURI `json:"uris"`
	Username string         `json:"username"`
	Password string         `json:"password"`
	TOTP     string         `json:"totp"`
}

type bitwardenURI struct {
	URI string `json:"uri"`
}

// Source returns the source type for this parser.
func (p *BitwardenParser) Source() Source {
	return SourceBitwarden
}

// Parse parses Bitwarden JSON data.
func (p *BitwardenParser) Parse(data []byte) (*Result, error) {
	var export bitwardenExport
	if err := json.Unmarshal(stripBOM(data), &export); err != nil {
		return nil, fmt.Errorf("failed to parse Bitwarden JSON: %w", err)
	}
	if export.Encrypted {
		return nil, fmt.Errorf("encrypted Bitwarden exports are not supported")
	}

	res := newResult()
	for i := range export.Items {
		item := &export.Items[i]
		if item.Type != bitwardenTypeLogin {
			res.Skipped = append(res.Skipped, SkippedItem{
				OriginalName: item.Name,
				Reason:       bitwardenTypeName(item.Type),
			})
			continue
		}
		if item.Login == nil {
			res.Skipped = append(res.Skipped, SkippedItem{OriginalName: item.Name, Reason: "no login data"})
			continue
		}

		b := entryBuilder{
			source:   SourceBitwarden,
			name:     item.Name,
			username: item.Login.Username,
			password: item.Login.Password,
			notes:    item.Notes,
		}
		for _, u := range item.Login.URIs {
			b.urls = append(b.urls, u.URI)
		}
		entry, reason := b.build()
		if entry == nil {
			res.Skipped = append(res.Skipped, SkippedItem{OriginalName: item.Name, Reason: reason})
			continue
		}
		if item.Login.TOTP != "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("item %d (%s): TOTP seed not imported", i+1, item.Name))
		}
		res.Entries = append(res.Entries, *entry)
	}

	Deduplicate(res)
	return res, nil
}

func bitwardenTypeName(t int) string {
	switch t {
	case bitwardenTypeSecureNote:
		return "secure note"
	case bitwardenTypeCard:
		return "card"
	case bitwardenTypeIdentity:
		return "identity"
	default:
		return fmt.Sprintf("unsupported item type: %d", t)
	}
}
