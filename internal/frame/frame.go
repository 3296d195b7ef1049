// Package frame loads CSV documents into an in-memory table with named
// columns and inferred column kinds, and answers simple row queries over it.
package frame

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Kind is the inferred type of a column.
type Kind string

const (
	KindNumeric     Kind = "numeric"
	KindDatetime    Kind = "datetime"
	KindBoolean     Kind = "boolean"
	KindCategorical Kind = "categorical"
	KindText        Kind = "text"
	KindEmpty       Kind = "empty"
)

// ErrEmpty is returned when the input has no header row.
var ErrEmpty = errors.New("no columns to parse from file")

// Options controls how a CSV stream is read.
type Options struct {
	// Delimiter for fields. If 0, ',' is used.
	Delimiter rune
	// MaxRows limits rows kept in memory; 0 means unlimited.
	MaxRows int
}

// DefaultOptions returns comma-delimited, unlimited loading.
func DefaultOptions() Options {
	return Options{Delimiter: ','}
}

// Column describes one column of a Frame.
type Column struct {
	Name string
	// Unit parsed from the header, e.g. "Weight (kg)" -> "kg".
	Unit string
	Kind Kind
}

// Frame is a table parsed from CSV. Cells keep their raw text; typed access
// goes through Float and the inferred Kind.
type Frame struct {
	Name    string
	Columns []Column
	Rows    [][]string
	// Truncated is set when MaxRows stopped the load early.
	Truncated bool
}

// Load parses r as CSV with the first record as header. Every record must
// have the same number of fields as the header.
func Load(name string, r io.Reader, opt Options) (*Frame, error) {
	cr := csv.NewReader(r)
	cr.Comma = opt.Delimiter
	if cr.Comma == 0 {
		cr.Comma = ','
	}
	cr.FieldsPerRecord = 0
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, ErrEmpty
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) == 1 && strings.TrimSpace(header[0]) == "" {
		return nil, ErrEmpty
	}
	header[0] = strings.TrimPrefix(header[0], "\ufeff")

	f := &Frame{Name: name, Columns: make([]Column, len(header))}
	for i, n := range uniqueNames(header) {
		_, unit := splitUnits(n)
		f.Columns[i] = Column{Name: n, Unit: unit}
	}

	for {
		rec, err := cr.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("read row %d: %w", len(f.Rows)+1, err)
		}
		if opt.MaxRows > 0 && len(f.Rows) >= opt.MaxRows {
			f.Truncated = true
			break
		}
		row := make([]string, len(rec))
		for j, v := range rec {
			row[j] = strings.TrimSpace(v)
		}
		f.Rows = append(f.Rows, row)
	}

	for j := range f.Columns {
		f.Columns[j].Kind = inferKind(f.columnValues(j))
	}
	return f, nil
}

// uniqueNames fills blank header cells and de-duplicates repeated names
// ("a", "a" -> "a", "a.1").
func uniqueNames(header []string) []string {
	out := make([]string, len(header))
	// next suffix to try per name
	seen := make(map[string]int, len(header))
	for i, h := range header {
		n := strings.TrimSpace(h)
		if n == "" {
			n = fmt.Sprintf("Unnamed: %d", i)
		}
		base := n
		if k, dup := seen[base]; dup {
			for {
				n = fmt.Sprintf("%s.%d", base, k)
				k++
				if _, taken := seen[n]; !taken {
					break
				}
			}
			seen[base] = k
		}
		seen[n] = 1
		out[i] = n
	}
	return out
}

// NumRows returns the number of data rows.
func (f *Frame) NumRows() int { return len(f.Rows) }

// NumCols returns the number of columns.
func (f *Frame) NumCols() int { return len(f.Columns) }

// ColumnNames returns the column names in header order.
func (f *Frame) ColumnNames() []string {
	out := make([]string, len(f.Columns))
	for i, c := range f.Columns {
		out[i] = c.Name
	}
	return out
}

// ColumnIndex finds a column by name, ignoring case and surrounding space.
func (f *Frame) ColumnIndex(name string) (int, bool) {
	want := strings.TrimSpace(name)
	for i, c := range f.Columns {
		if c.Name == want {
			return i, true
		}
	}
	for i, c := range f.Columns {
		if strings.EqualFold(c.Name, want) {
			return i, true
		}
	}
	return -1, false
}

// Float returns the numeric value of a cell.
func (f *Frame) Float(row, col int) (float64, bool) {
	if row < 0 || row >= len(f.Rows) || col < 0 || col >= len(f.Columns) {
		return 0, false
	}
	v := f.Rows[row][col]
	if isMissing(v) {
		return 0, false
	}
	return parseNumeric(v)
}

func (f *Frame) columnValues(j int) []string {
	vals := make([]string, len(f.Rows))
	for i, r := range f.Rows {
		vals[i] = r[j]
	}
	return vals
}

// inferKind picks the narrowest kind every non-empty value satisfies.
func inferKind(vals []string) Kind {
	var nonNull, num, dt, boolean int
	distinct := map[string]struct{}{}
	longest := 0
	for _, v := range vals {
		if isMissing(v) {
			continue
		}
		nonNull++
		if _, ok := parseNumeric(v); ok {
			num++
		}
		if _, ok := parseTimeMaybe(v); ok {
			dt++
		}
		if _, ok := parseBool(v); ok {
			boolean++
		}
		distinct[v] = struct{}{}
		if len(v) > longest {
			longest = len(v)
		}
	}
	switch {
	case nonNull == 0:
		return KindEmpty
	case num == nonNull:
		return KindNumeric
	case boolean == nonNull:
		return KindBoolean
	case dt == nonNull:
		return KindDatetime
	}
	if longest <= 64 && (len(distinct) <= 20 || len(distinct)*2 <= nonNull) {
		return KindCategorical
	}
	return KindText
}
