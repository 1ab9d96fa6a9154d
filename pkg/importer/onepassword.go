package importer

import (
	"fmt"
	"strings"
)

// OnePasswordParser parses 1Password CSV export files:
// Title,Website,Username,Password,OTPAuth,Favorite,Archived,Tags,Notes
type OnePasswordParser struct{}

// 1Password CSV column names.
const (
	op1ColTitle    = "Title"
	op1ColWebsite  = "Website"
	op1ColUsername = "Username"
	op1ColPassword = "Password"
	op1ColOTPAuth  = "OTPAuth"
	op1ColArchived = "Archived"
	op1ColNotes    = "Notes"
)

// Source returns the source type for this parser.
func (p *OnePasswordParser) Source() Source {
	return Source1Password
}

// Parse parses 1Password CSV data. Archived items are skipped.
func (p *OnePasswordParser) Parse(data []byte) (*Result, error) {
	res := newResult()
	err := readCSV(data, strings.TrimSpace, op1ColTitle, res, func(rowNum int, r csvRow) {
		title := r.get(op1ColTitle)
		if isTrue(r.get(op1ColArchived)) {
			res.Skipped = append(res.Skipped, SkippedItem{OriginalName: title, Reason: "archived"})
			return
		}

		b := entryBuilder{
			source:   Source1Password,
			name:     title,
			urls:     strings.Split(r.get(op1ColWebsite), ","),
			username: r.get(op1ColUsername),
			password: r.get(op1ColPassword),
			notes:    r.get(op1ColNotes),
		}
		entry, reason := b.build()
		if entry == nil {
			res.Skipped = append(res.Skipped, SkippedItem{OriginalName: title, Reason: reason})
			return
		}
		if r.get(op1ColOTPAuth) != "" {
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

func isTrue(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}
