// Package records handles the delimited row I/O around a crawl: reading
// input records and persisting results with a full rewrite per record.
package records

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
)

// Record maps field names to string values for one input row. Records are
// treated as immutable once read.
type Record map[string]string

// ParseColumns validates an explicit column-name list for headerless input.
func ParseColumns(names []string) ([]string, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("column list must not be empty")
	}
	seen := make(map[string]struct{}, len(names))
	for _, name := range names {
		if name == "" {
			return nil, fmt.Errorf("column names must not be empty")
		}
		if _, dup := seen[name]; dup {
			return nil, fmt.Errorf("duplicate column name %q", name)
		}
		seen[name] = struct{}{}
	}
	return names, nil
}

// ReadAll reads delimited rows from r. With a nil columns slice the first
// row is taken as the header; otherwise the input is headerless and columns
// names the fields. The returned column order matches the input.
func ReadAll(r io.Reader, delimiter rune, columns []string) ([]string, []Record, error) {
	cr := csv.NewReader(r)
	cr.Comma = delimiter
	cr.TrimLeadingSpace = true

	if columns == nil {
		header, err := cr.Read()
		if err == io.EOF {
			return nil, nil, fmt.Errorf("input is empty, expected a header row")
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read header: %w", err)
		}
		if columns, err = ParseColumns(header); err != nil {
			return nil, nil, fmt.Errorf("header row: %w", err)
		}
	} else {
		var err error
		if columns, err = ParseColumns(columns); err != nil {
			return nil, nil, err
		}
		cr.FieldsPerRecord = len(columns)
	}

	var out []Record
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read row %d: %w", len(out)+1, err)
		}
		rec := make(Record, len(columns))
		for i, name := range columns {
			rec[name] = row[i]
		}
		out = append(out, rec)
	}
	return columns, out, nil
}

// ReadFile reads an input file; see ReadAll for the columns semantics.
func ReadFile(path string, delimiter rune, columns []string) ([]string, []Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open input: %w", err)
	}
	defer f.Close()
	cols, recs, err := ReadAll(f, delimiter, columns)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return cols, recs, nil
}
