package importer

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
)

// csvRow gives header-keyed access to one record.
type csvRow struct {
	cols map[string]int
	row  []string
}

func (r csvRow) get(col string) string {
	idx, ok := r.cols[col]
	if !ok || idx >= len(r.row) {
		return ""
	}
	return strings.TrimSpace(r.row[idx])
}

// readCSV walks a header-based CSV export. key maps a header cell to the
// lookup name; required must be present. Rows with the wrong column count
// produce warnings and are not passed to fn.
func readCSV(data []byte, key func(string) string, required string, res *Result, fn func(rowNum int, r csvRow)) error {
	reader := csv.NewReader(bytes.NewReader(stripBOM(data)))
	reader.LazyQuotes = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		return fmt.Errorf("failed to read CSV header: %w", err)
	}
	cols := make(map[string]int, len(header))
	for i, col := range header {
		cols[key(col)] = i
	}
	if _, ok := cols[required]; !ok {
		return fmt.Errorf("missing required column: %s", required)
	}

	rowNum := 1
	for {
		rowNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("row %d: failed to parse: %v", rowNum, err))
			continue
		}
		if len(row) != len(header) {
			res.Warnings = append(res.Warnings,
				fmt.Sprintf("row %d: column count mismatch (expected %d, got %d)", rowNum, len(header), len(row)))
			continue
		}
		fn(rowNum, csvRow{cols: cols, row: row})
	}
	return nil
}
