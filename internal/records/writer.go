package records

import (
	"encoding/csv"
	"fmt"
	"os"
	"sync"
)

// ResultColumns are appended after the input columns in the output.
var ResultColumns = []string{"Website", "Phone", "Email"}

// Writer persists crawl results as delimited rows. Every completed record
// triggers a full rewrite of the output file, header plus all rows completed
// so far, so a crash never leaves a half-written row and the file is always
// readable mid-run. Rows appear in input order regardless of which worker
// finishes first. Writer is safe for concurrent use.
type Writer struct {
	mu        sync.Mutex
	path      string
	delimiter rune
	columns   []string
	records   []Record
	rows      [][]string
	done      []bool
}

// NewWriter prepares an output writer for the given input records. columns
// is the input column order; the result columns are appended to it.
func NewWriter(path string, delimiter rune, columns []string, records []Record) *Writer {
	return &Writer{
		path:      path,
		delimiter: delimiter,
		columns:   columns,
		records:   records,
		rows:      make([][]string, len(records)),
		done:      make([]bool, len(records)),
	}
}

// SetResult completes the record at index with its discovery columns and
// rewrites the output file. Blank values are legitimate: a skipped or failed
// record still gets its row.
func (w *Writer) SetResult(index int, website, phone, email string) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if index < 0 || index >= len(w.records) {
		return fmt.Errorf("result index %d out of range", index)
	}
	row := make([]string, 0, len(w.columns)+len(ResultColumns))
	for _, name := range w.columns {
		row = append(row, w.records[index][name])
	}
	row = append(row, website, phone, email)
	w.rows[index] = row
	w.done[index] = true
	return w.save()
}

// Flush rewrites the output file with the rows completed so far.
func (w *Writer) Flush() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.save()
}

// Done reports whether the record at index already has its row.
func (w *Writer) Done(index int) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return index >= 0 && index < len(w.done) && w.done[index]
}

// Complete reports how many records have a finished row.
func (w *Writer) Complete() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	n := 0
	for _, d := range w.done {
		if d {
			n++
		}
	}
	return n
}

func (w *Writer) save() error {
	f, err := os.Create(w.path)
	if err != nil {
		return fmt.Errorf("open output: %w", err)
	}
	cw := csv.NewWriter(f)
	cw.Comma = w.delimiter

	header := make([]string, 0, len(w.columns)+len(ResultColumns))
	header = append(header, w.columns...)
	header = append(header, ResultColumns...)
	if err := cw.Write(header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for i, row := range w.rows {
		if !w.done[i] {
			continue
		}
		if err := cw.Write(row); err != nil {
			f.Close()
			return fmt.Errorf("write row %d: %w", i+1, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush output: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close output: %w", err)
	}
	return nil
}
