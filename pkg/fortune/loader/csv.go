// Package loader builds fortune records from delimited text sources.
package loader

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/example/fortune/pkg/fortune/record"
)

// ErrMissingField indicates a row without text or attribution.
var ErrMissingField = errors.New("loader: required field missing")

// ErrTooManyFields indicates a row with more columns than a record holds.
var ErrTooManyFields = errors.New("loader: too many fields")

const maxFields = 4

// Options tunes parsing of a source.
type Options struct {
	// HasHeader skips the first non-comment row.
	HasHeader bool
	// Comment marks rows to ignore when an unquoted first field starts with
	// it. Empty disables comment handling.
	Comment string
	// Delimiter defaults to ','.
	Delimiter rune
}

// RowError reports which row of the source was rejected.
type RowError struct {
	Line  int
	Field string
	Err   error
}

func (e *RowError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("line %d: %s: %v", e.Line, e.Field, e.Err)
	}
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// Parse reads rows of text, attribution, work and character from r.
func Parse(r io.Reader, opts Options) ([]record.Record, error) {
	src, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("loader: read: %w", err)
	}
	lines := bytes.Split(src, []byte("\n"))

	reader := csv.NewReader(bytes.NewReader(src))
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}

	var (
		records    []record.Record
		headerSeen bool
	)
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("loader: read: %w", err)
		}
		line, col := reader.FieldPos(0)

		fields := trimAll(row)
		if blank(fields) {
			continue
		}
		if opts.Comment != "" && !quotedAt(lines, line, col) && strings.HasPrefix(fields[0], opts.Comment) {
			continue
		}
		if opts.HasHeader && !headerSeen {
			headerSeen = true
			continue
		}

		rec, err := toRecord(fields)
		if err != nil {
			var rowErr *RowError
			if errors.As(err, &rowErr) {
				rowErr.Line = line
			}
			return nil, err
		}
		records = append(records, rec)
	}
	return records, nil
}

// LoadFile parses the file at path.
func LoadFile(path string, opts Options) ([]record.Record, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("loader: open %q: %w", path, err)
	}
	defer f.Close()

	records, err := Parse(f, opts)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return records, nil
}

func toRecord(fields []string) (record.Record, error) {
	if len(fields) > maxFields {
		return record.Record{}, &RowError{Err: fmt.Errorf("%w: got %d, want at most %d", ErrTooManyFields, len(fields), maxFields)}
	}
	get := func(i int) string {
		if i < len(fields) {
			return fields[i]
		}
		return ""
	}
	rec := record.Record{
		Text:        get(0),
		Attribution: get(1),
		Work:        get(2),
		Character:   get(3),
	}
	if rec.Text == "" {
		return record.Record{}, &RowError{Field: "text", Err: ErrMissingField}
	}
	if rec.Attribution == "" {
		return record.Record{}, &RowError{Field: "attribution", Err: ErrMissingField}
	}
	return rec, nil
}

// quotedAt reports whether the field starting at line:col opens with a quote.
func quotedAt(lines [][]byte, line, col int) bool {
	if line < 1 || line > len(lines) {
		return false
	}
	raw := lines[line-1]
	return col >= 1 && col <= len(raw) && raw[col-1] == '"'
}

func trimAll(row []string) []string {
	out := make([]string, len(row))
	for i, f := range row {
		out[i] = strings.TrimSpace(f)
	}
	return out
}

func blank(fields []string) bool {
	for _, f := range fields {
		if f != "" {
			return false
		}
	}
	return true
}
