package frame

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"time"
)

// Summary is a compact description of a Frame, used both as agent context
// and by `csvbot analyze`.
type Summary struct {
	Name      string
	Rows      int
	Truncated bool
	Cols      []ColumnSummary
	Samples   [][]string
}

// ColumnSummary captures the inferred kind and statistics for one column.
type ColumnSummary struct {
	Name    string
	Kind    Kind
	Unit    string
	NonNull int
	Missing int
	Unique  int
	// Numeric stats
	Min, Max, Mean, Std float64
	// Robust outliers (|z| via MAD above OutlierThreshold)
	OutliersCount    int
	OutlierThreshold float64
	// Datetime range
	Earliest, Latest time.Time
	// Categorical top values
	TopValues    []ValueCount
	ExampleTexts []string
}

const defaultOutlierThreshold = 3.5

// Describe computes a Summary with up to sampleRows example rows.
func Describe(f *Frame, sampleRows int) *Summary {
	s := &Summary{Name: f.Name, Rows: f.NumRows(), Truncated: f.Truncated}
	if sampleRows <= 0 {
		sampleRows = 5
	}
	for i := 0; i < len(f.Rows) && i < sampleRows; i++ {
		s.Samples = append(s.Samples, f.Rows[i])
	}
	for j, c := range f.Columns {
		s.Cols = append(s.Cols, describeColumn(f, j, c))
	}
	return s
}

func describeColumn(f *Frame, j int, c Column) ColumnSummary {
	cs := ColumnSummary{Name: c.Name, Kind: c.Kind, Unit: c.Unit}
	counts := map[string]int{}
	var nums []float64
	// Welford
	var n int
	var mean, m2 float64
	min, max := math.Inf(1), math.Inf(-1)
	for i, r := range f.Rows {
		v := r[j]
		if isMissing(v) {
			cs.Missing++
			continue
		}
		cs.NonNull++
		counts[v]++
		switch c.Kind {
		case KindNumeric:
			x, ok := f.Float(i, j)
			if !ok {
				continue
			}
			n++
			delta := x - mean
			mean += delta / float64(n)
			m2 += delta * (x - mean)
			min = math.Min(min, x)
			max = math.Max(max, x)
			nums = append(nums, x)
		case KindDatetime:
			if t, ok := parseTimeMaybe(v); ok {
				if cs.Earliest.IsZero() || t.Before(cs.Earliest) {
					cs.Earliest = t
				}
				if t.After(cs.Latest) {
					cs.Latest = t
				}
			}
		case KindText:
			if len(cs.ExampleTexts) < 3 {
				cs.ExampleTexts = append(cs.ExampleTexts, v)
			}
		}
	}
	cs.Unique = len(counts)
	switch c.Kind {
	case KindNumeric:
		if n > 0 {
			cs.Min, cs.Max, cs.Mean = min, max, mean
		}
		if n > 1 {
			cs.Std = math.Sqrt(m2 / float64(n-1))
		}
		if len(nums) >= 8 {
			median, mad := medianMAD(nums)
			cs.OutlierThreshold = defaultOutlierThreshold
			if mad > 0 {
				for _, v := range nums {
					if math.Abs(0.6745*(v-median)/mad) > cs.OutlierThreshold {
						cs.OutliersCount++
					}
				}
			}
		}
	case KindCategorical, KindBoolean:
		tops := sortedCounts(counts)
		if len(tops) > 8 {
			tops = tops[:8]
		}
		cs.TopValues = tops
	}
	return cs
}

// Markdown renders a compact report suitable for prompts or standalone docs.
func (s *Summary) Markdown() string {
	var b strings.Builder
	b.WriteString("[DATASET SUMMARY]\n")
	if s.Name != "" {
		b.WriteString(fmt.Sprintf("File: %s\n", s.Name))
	}
	if s.Truncated {
		b.WriteString(fmt.Sprintf("Rows: %d (truncated)\n", s.Rows))
	} else {
		b.WriteString(fmt.Sprintf("Rows: %d\n", s.Rows))
	}
	b.WriteString(fmt.Sprintf("Columns: %d\n\n", len(s.Cols)))

	b.WriteString("[SCHEMA]\n")
	for _, c := range s.Cols {
		total := c.NonNull + c.Missing
		missPct := 0.0
		if total > 0 {
			missPct = float64(c.Missing) * 100.0 / float64(total)
		}
		name := safeVal(c.Name)
		if c.Unit != "" {
			name = fmt.Sprintf("%s [%s]", name, c.Unit)
		}
		b.WriteString(fmt.Sprintf("- %s: %s (non-null %d, missing %.1f%%)", name, c.Kind, c.NonNull, missPct))
		switch c.Kind {
		case KindNumeric:
			b.WriteString(fmt.Sprintf(" — min %.4g, max %.4g, mean %.4g, std %.4g", c.Min, c.Max, c.Mean, c.Std))
			if c.OutliersCount > 0 {
				b.WriteString(fmt.Sprintf("; outliers: %d above |z|>%.1f", c.OutliersCount, c.OutlierThreshold))
			}
		case KindDatetime:
			if !c.Earliest.IsZero() {
				b.WriteString(fmt.Sprintf(" — from %s to %s", c.Earliest.Format("2006-01-02"), c.Latest.Format("2006-01-02")))
			}
		case KindCategorical, KindBoolean:
			if len(c.TopValues) > 0 {
				b.WriteString(" — top: ")
				for i, kv := range c.TopValues {
					if i > 0 {
						b.WriteString(", ")
					}
					b.WriteString(fmt.Sprintf("%s(%d)", safeVal(kv.Value), kv.Count))
				}
				if c.Unique > len(c.TopValues) {
					b.WriteString(fmt.Sprintf("; unique=%d", c.Unique))
				}
			}
		case KindText:
			if len(c.ExampleTexts) > 0 {
				b.WriteString(" — e.g., ")
				for i, ex := range c.ExampleTexts {
					if i > 0 {
						b.WriteString(" | ")
					}
					b.WriteString(safeVal(ex))
				}
			}
		}
		b.WriteString("\n")
	}
	if len(s.Samples) > 0 {
		b.WriteString("\n[SAMPLE ROWS]\n")
		names := make([]string, len(s.Cols))
		for i, c := range s.Cols {
			names[i] = safeVal(c.Name)
		}
		b.WriteString("| " + strings.Join(names, " | ") + " |\n")
		b.WriteString("|" + strings.Repeat(" --- |", len(names)) + "\n")
		for _, r := range s.Samples {
			cells := make([]string, len(r))
			for i, v := range r {
				cells[i] = safeVal(v)
			}
			b.WriteString("| " + strings.Join(cells, " | ") + " |\n")
		}
	}
	return b.String()
}

func safeVal(s string) string { return strings.ReplaceAll(strings.ReplaceAll(s, "\n", " "), "|", "/") }

// medianMAD computes median and MAD (median absolute deviation) of values.
func medianMAD(vals []float64) (median, mad float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	cp := make([]float64, len(vals))
	copy(cp, vals)
	sort.Float64s(cp)
	median = quantile(cp, 0.5)
	dev := make([]float64, len(cp))
	for i, v := range cp {
		dev[i] = math.Abs(v - median)
	}
	sort.Float64s(dev)
	mad = quantile(dev, 0.5)
	return
}
