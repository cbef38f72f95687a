package sources

import (
	"encoding/csv"
	"errors"
	"io"
	"regexp"
	"strings"

	"signalroom/internal/core/normalize"
)

var tableUnsafe = regexp.MustCompile(`[^a-z0-9_]+`)

// TableName turns a prefix or sheet title into a resource name:
// orders-create/ -> orders_create
func TableName(s string) string {
	s = strings.ToLower(strings.NewReplacer("-", "_", "/", "_", " ", "_").Replace(s))
	s = tableUnsafe.ReplaceAllString(s, "")
	return strings.Trim(s, "_")
}

// ReadCSV reads every record of r, tolerating ragged rows and a leading BOM
func ReadCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	var out [][]string
	for {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		if len(out) == 0 && len(rec) > 0 {
			rec[0] = strings.TrimPrefix(rec[0], "\ufeff")
		}
		out = append(out, rec)
	}
}

// Records maps a header row plus data rows to raw rows. Blank header cells
// are dropped and short rows padded with ""; rowID receives the data index
func Records(records [][]string, rowID string) []normalize.RawRow {
	if len(records) == 0 {
		return nil
	}
	header := records[0]
	out := make([]normalize.RawRow, 0, len(records)-1)
	for i, rec := range records[1:] {
		row := make(normalize.RawRow, len(header)+1)
		for c, h := range header {
			if h = strings.TrimSpace(h); h == "" {
				continue
			}
			if c < len(rec) {
				row[h] = rec[c]
			} else {
				row[h] = ""
			}
		}
		if rowID != "" {
			row[rowID] = i
		}
		out = append(out, row)
	}
	return out
}
