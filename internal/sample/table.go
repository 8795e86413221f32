package sample

import (
	"fmt"
	"strings"
)

// Column names the sampler depends on. The upstream spreadsheets are produced
// by an external system, so these are contract, not convention.
const (
	ServiceColumn = "service_number"
	StatusColumn  = "state"
	TNOColumn     = "tno"
)

// Table is a rectangular slice of an uploaded spreadsheet: one header row and
// zero or more data rows, all cells as text. Cell text is whatever the
// spreadsheet decoder rendered, so numeric columns compare through
// statusMatches rather than string equality.
type Table struct {
	Header []string
	Rows   [][]string
}

// MissingColumnError reports a required input column that is absent.
type MissingColumnError struct {
	Column string
}

func (e *MissingColumnError) Error() string {
	return fmt.Sprintf("required column %q is missing from input", e.Column)
}

// ColumnIndex returns the position of the named column, matching
// case-insensitively on the trimmed header cell.
func (t *Table) ColumnIndex(name string) (int, bool) {
	for i, h := range t.Header {
		if strings.EqualFold(strings.TrimSpace(h), name) {
			return i, true
		}
	}
	return 0, false
}

// RequireColumn is ColumnIndex with a typed failure.
func (t *Table) RequireColumn(name string) (int, error) {
	idx, ok := t.ColumnIndex(name)
	if !ok {
		return 0, &MissingColumnError{Column: name}
	}
	return idx, nil
}

// Cell returns the trimmed cell text at (row, col), tolerating ragged rows
// shorter than the header.
func (t *Table) Cell(row, col int) string {
	if col >= len(t.Rows[row]) {
		return ""
	}
	return strings.TrimSpace(t.Rows[row][col])
}

// dropColumns returns a copy of the table without the named columns. Absent
// columns are ignored.
func dropColumns(t *Table, names []string) *Table {
	drop := make(map[int]bool)
	for _, name := range names {
		if idx, ok := t.ColumnIndex(name); ok {
			drop[idx] = true
		}
	}

	out := &Table{}
	for i, h := range t.Header {
		if !drop[i] {
			out.Header = append(out.Header, h)
		}
	}
	for _, row := range t.Rows {
		kept := make([]string, 0, len(out.Header))
		for i := range t.Header {
			if drop[i] {
				continue
			}
			if i < len(row) {
				kept = append(kept, row[i])
			} else {
				kept = append(kept, "")
			}
		}
		out.Rows = append(out.Rows, kept)
	}
	return out
}

// deduplicate removes rows that are exact duplicates (all columns equal) of an
// earlier row, keeping the first occurrence.
func deduplicate(t *Table) *Table {
	seen := make(map[string]bool, len(t.Rows))
	out := &Table{Header: t.Header}
	for _, row := range t.Rows {
		key := strings.Join(row, "\x1f")
		if seen[key] {
			continue
		}
		seen[key] = true
		out.Rows = append(out.Rows, row)
	}
	return out
}
