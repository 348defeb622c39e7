package fetcher

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
)

// Table is a parsed spreadsheet: a header row plus data rows. Rows may have
// fewer cells than the header; callers index defensively.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadCSV parses CSV data into a Table. The first row is the header. Fields
// are trimmed and rows with no non-empty cells are dropped.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	records, err := reader.ReadAll()
	if err != nil {
		return nil, eris.Wrap(err, "csv: read")
	}
	if len(records) == 0 {
		return nil, eris.New("csv: empty file")
	}
	return buildTable(records), nil
}

// ReadXLSX parses the first sheet of an XLSX file into a Table. The first
// row is the header.
func ReadXLSX(r io.Reader) (*Table, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: read")
	}
	f, err := xlsx.OpenBinary(data)
	if err != nil {
		return nil, eris.Wrap(err, "xlsx: open")
	}
	if len(f.Sheets) == 0 {
		return nil, eris.New("xlsx: no sheets")
	}

	var records [][]string
	for _, row := range f.Sheets[0].Rows {
		cells := make([]string, len(row.Cells))
		for j, cell := range row.Cells {
			cells[j] = cell.String()
		}
		records = append(records, cells)
	}
	if len(records) == 0 {
		return nil, eris.New("xlsx: empty sheet")
	}
	return buildTable(records), nil
}

func buildTable(records [][]string) *Table {
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
	}

	t := &Table{Header: header}
	for _, rec := range records[1:] {
		empty := true
		for i, field := range rec {
			rec[i] = strings.TrimSpace(field)
			if rec[i] != "" {
				empty = false
			}
		}
		if !empty {
			t.Rows = append(t.Rows, rec)
		}
	}
	return t
}

// Column returns the index of the first header cell whose folded name
// matches any of the given candidates, or -1. Matching ignores case,
// spaces and underscores, so "Post URL", "post_url" and "posturl" are the
// same column.
func (t *Table) Column(candidates ...string) int {
	for i, h := range t.Header {
		folded := foldHeader(h)
		for _, c := range candidates {
			if folded == foldHeader(c) {
				return i
			}
		}
	}
	return -1
}

// Cell returns row[idx] or "" when the row is short or idx is -1.
func Cell(row []string, idx int) string {
	if idx < 0 || idx >= len(row) {
		return ""
	}
	return row[idx]
}

func foldHeader(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.ReplaceAll(s, "_", "")
	return s
}
