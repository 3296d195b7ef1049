package frame

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
)

// AggOp names an aggregate over one column.
type AggOp string

const (
	OpCount   AggOp = "count"
	OpSum     AggOp = "sum"
	OpMean    AggOp = "mean"
	OpMin     AggOp = "min"
	OpMax     AggOp = "max"
	OpMedian  AggOp = "median"
	OpNUnique AggOp = "nunique"
)

var (
	ErrUnknownColumn = errors.New("unknown column")
	ErrUnknownOp     = errors.New("unknown operation")
	ErrNoNumeric     = errors.New("no numeric values")
)

// ParseAggOp maps common spellings ("avg", "average", "distinct") to an AggOp.
func ParseAggOp(s string) (AggOp, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "count", "len", "size":
		return OpCount, nil
	case "sum", "total":
		return OpSum, nil
	case "mean", "avg", "average":
		return OpMean, nil
	case "min", "minimum":
		return OpMin, nil
	case "max", "maximum":
		return OpMax, nil
	case "median":
		return OpMedian, nil
	case "nunique", "distinct", "unique":
		return OpNUnique, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOp, s)
}

// Condition compares a column against a value. Op is one of
// = != > >= < <= contains. Numeric comparison is used when both sides parse
// as numbers, otherwise case-insensitive text comparison.
type Condition struct {
	Column string `json:"column"`
	Op     string `json:"op"`
	Value  string `json:"value"`
}

// AllRows returns the indexes of every row.
func (f *Frame) AllRows() []int {
	out := make([]int, len(f.Rows))
	for i := range out {
		out[i] = i
	}
	return out
}

// Filter returns the indexes of rows matching every condition.
func (f *Frame) Filter(conds []Condition) ([]int, error) {
	type bound struct {
		col int
		Condition
	}
	bs := make([]bound, 0, len(conds))
	for _, c := range conds {
		j, ok := f.ColumnIndex(c.Column)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, c.Column)
		}
		if c.Op == "" {
			c.Op = "="
		}
		switch c.Op {
		case "=", "==", "!=", ">", ">=", "<", "<=", "contains":
		default:
			return nil, fmt.Errorf("%w: %q", ErrUnknownOp, c.Op)
		}
		bs = append(bs, bound{col: j, Condition: c})
	}
	var out []int
rows:
	for i, r := range f.Rows {
		for _, b := range bs {
			if !match(r[b.col], b.Op, b.Value) {
				continue rows
			}
		}
		out = append(out, i)
	}
	return out, nil
}

func match(cell, op, want string) bool {
	if op == "contains" {
		return strings.Contains(strings.ToLower(cell), strings.ToLower(want))
	}
	x, okx := parseNumeric(cell)
	y, oky := parseNumeric(want)
	var cmp int
	if okx && oky && !isMissing(cell) {
		switch {
		case x < y:
			cmp = -1
		case x > y:
			cmp = 1
		}
	} else {
		cmp = strings.Compare(strings.ToLower(strings.TrimSpace(cell)), strings.ToLower(strings.TrimSpace(want)))
	}
	switch op {
	case "=", "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case ">":
		return cmp > 0
	case ">=":
		return cmp >= 0
	case "<":
		return cmp < 0
	case "<=":
		return cmp <= 0
	}
	return false
}

// Aggregate computes op over column for the given rows. OpCount with an empty
// column counts rows; with a column it counts non-missing cells.
func (f *Frame) Aggregate(op AggOp, column string, rows []int) (float64, error) {
	if op == OpCount && strings.TrimSpace(column) == "" {
		return float64(len(rows)), nil
	}
	j, ok := f.ColumnIndex(column)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	switch op {
	case OpCount:
		n := 0
		for _, i := range rows {
			if !isMissing(f.Rows[i][j]) {
				n++
			}
		}
		return float64(n), nil
	case OpNUnique:
		seen := map[string]struct{}{}
		for _, i := range rows {
			if v := f.Rows[i][j]; !isMissing(v) {
				seen[v] = struct{}{}
			}
		}
		return float64(len(seen)), nil
	}

	vals := make([]float64, 0, len(rows))
	for _, i := range rows {
		if x, ok := f.Float(i, j); ok {
			vals = append(vals, x)
		}
	}
	if len(vals) == 0 {
		return 0, fmt.Errorf("%w in column %q", ErrNoNumeric, f.Columns[j].Name)
	}
	switch op {
	case OpSum, OpMean:
		var sum float64
		for _, v := range vals {
			sum += v
		}
		if op == OpMean {
			return sum / float64(len(vals)), nil
		}
		return sum, nil
	case OpMin:
		m := math.Inf(1)
		for _, v := range vals {
			m = math.Min(m, v)
		}
		return m, nil
	case OpMax:
		m := math.Inf(-1)
		for _, v := range vals {
			m = math.Max(m, v)
		}
		return m, nil
	case OpMedian:
		sort.Float64s(vals)
		return quantile(vals, 0.5), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownOp, op)
}

// ValueCount is one distinct value and how often it occurs.
type ValueCount struct {
	Value string
	Count int
}

// Distinct returns value counts for column over rows, most frequent first.
func (f *Frame) Distinct(column string, rows []int) ([]ValueCount, error) {
	j, ok := f.ColumnIndex(column)
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownColumn, column)
	}
	counts := map[string]int{}
	for _, i := range rows {
		if v := f.Rows[i][j]; !isMissing(v) {
			counts[v]++
		}
	}
	return sortedCounts(counts), nil
}

func sortedCounts(m map[string]int) []ValueCount {
	out := make([]ValueCount, 0, len(m))
	for k, v := range m {
		out = append(out, ValueCount{Value: k, Count: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count == out[j].Count {
			return out[i].Value < out[j].Value
		}
		return out[i].Count > out[j].Count
	})
	return out
}

// CSV renders the header plus the given rows (at most limit when limit > 0).
func (f *Frame) CSV(rows []int, limit int) string {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	_ = w.Write(f.ColumnNames())
	for n, i := range rows {
		if limit > 0 && n >= limit {
			break
		}
		_ = w.Write(f.Rows[i])
	}
	w.Flush()
	return buf.String()
}

func quantile(sorted []float64, q float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if q <= 0 {
		return sorted[0]
	}
	if q >= 1 {
		return sorted[len(sorted)-1]
	}
	pos := q * float64(len(sorted)-1)
	lo := int(math.Floor(pos))
	hi := int(math.Ceil(pos))
	if lo == hi {
		return sorted[lo]
	}
	w := pos - float64(lo)
	return sorted[lo]*(1-w) + sorted[hi]*w
}
