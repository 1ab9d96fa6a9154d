package importer

import (
	"fmt"
	"strings"
)

// LastPassParser parses LastPass CSV export files:
// url,username,password,totp,extra,name,grouping,fav
type LastPassParser struct{}

// LastPass CSV column names.
const (
	lpColURL      = "url"
	lpColUsername = "username"
	lpColPassword = "password"
	lpColTOTP     = "totp"
	lpColExtra    = "extra"
	lpColName     = "name"
)

// lpSecureNoteURL marks secure notes in LastPass exports.
const lpSecureNoteURL = "http://sn"

// Source returns the source type for this parser.
func (p *LastPassParser) Source() Source {
	return SourceLastPass
}

// Parse parses LastPass CSV data. Values may be HTML-encoded.
func (p *LastPassParser) Parse(data []byte) (*Result, error) {
	res := newResult()
	err := readCSV(data, strings.ToLower, lpColName, res, func(rowNum int, r csvRow) {
		get := func(col string) string { return DecodeHTMLEntities(r.get(col)) }

		name := get(lpColName)
		url := get(lpColURL)
		if url == lpSecureNoteURL {
			res.Skipped = append(res.Skipped, SkippedItem{OriginalName: name, Reason: "secure note"})
			return
		}

		b := entryBuilder{
			source:   SourceLastPass,
			name:     name,
			urls:     []string{url},
			username: get(lpColUsername),
			password: get(lpColPassword),
			notes:    get(lpColExtra),
		}
		entry, reason := b.build()
		if entry == nil {
			res.Skipped = append(res.Skipped, SkippedItem{OriginalName: name, Reason: reason})
			return
		}
		if get(lpColTOTP) != "" {
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: TOTP seed not imported", rowNum))
		}
		res.Entries = append(res.Entries, *entry)
	})
	if err != nil {
		return nil, err
	}

	Deduplicate(res)
	return res, nil
}
