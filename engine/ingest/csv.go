package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/chunkforge/chunkforge/engine/chunking"
	"github.com/chunkforge/chunkforge/engine/domain"
)

// contentColumn is the CSV column holding chunk text; every other
// column becomes metadata.
const contentColumn = "chunk"

// RowsFromCSV parses CSV input into rows. Header names are matched
// case-insensitively; the "chunk" column supplies content and all other
// columns are carried as key-value metadata.
func RowsFromCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1

	header, err := cr.Read()
	if err == io.EOF {
		return nil, domain.NewValidationError("file", "empty CSV")
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}

	cols := make([]string, len(header))
	hasContent := false
	for i, h := range header {
		cols[i] = strings.ToLower(strings.TrimSpace(h))
		if cols[i] == contentColumn {
			hasContent = true
		}
	}
	if !hasContent {
		return nil, domain.NewValidationError("file", `CSV is missing a "chunk" column`)
	}

	var rows []Row
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV row: %w", err)
		}
		row := Row{Metadata: map[string]string{}}
		for i, v := range record {
			if i >= len(cols) {
				break
			}
			if cols[i] == contentColumn {
				row.Content = v
				continue
			}
			row.Metadata[cols[i]] = v
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// RowsFromPieces adapts chunking output into writer rows.
func RowsFromPieces(pieces []chunking.Piece) []Row {
	rows := make([]Row, len(pieces))
	for i, p := range pieces {
		rows[i] = Row{Content: p.Content, Metadata: p.Metadata}
	}
	return rows
}
