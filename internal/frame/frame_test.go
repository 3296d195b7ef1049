package frame

import (
	"encoding/csv"
	"errors"
	"math"
	"strings"
	"testing"
)

func load(t *testing.T, content string) *Frame {
	t.Helper()
	f, err := Load("test.csv", strings.NewReader(content), DefaultOptions())
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	return f
}

func TestLoadTwoByTwo(t *testing.T) {
	f := load(t, "a,b\n1,2\n3,4\n")
	if f.NumCols() != 2 || f.NumRows() != 2 {
		t.Fatalf("want 2x2, got %d cols x %d rows", f.NumCols(), f.NumRows())
	}
	if got := f.ColumnNames(); got[0] != "a" || got[1] != "b" {
		t.Fatalf("unexpected columns %v", got)
	}
	for _, c := range f.Columns {
		if c.Kind != KindNumeric {
			t.Fatalf("column %s: want numeric, got %s", c.Name, c.Kind)
		}
	}
	if x, ok := f.Float(1, 1); !ok || x != 4 {
		t.Fatalf("Float(1,1) = %v,%v", x, ok)
	}
}

func TestLoadMismatchedFieldCount(t *testing.T) {
	_, err := Load("bad.csv", strings.NewReader("a,b\n1,2\n3,4,5\n"), DefaultOptions())
	if err == nil {
		t.Fatalf("expected error for ragged row")
	}
	if !errors.Is(err, csv.ErrFieldCount) {
		t.Fatalf("expected csv.ErrFieldCount, got %v", err)
	}
}

func TestLoadEmpty(t *testing.T) {
	for _, in := range []string{"", "\n\n"} {
		if _, err := Load("empty.csv", strings.NewReader(in), DefaultOptions()); !errors.Is(err, ErrEmpty) {
			t.Fatalf("input %q: expected ErrEmpty, got %v", in, err)
		}
	}
}

func TestLoadBareQuote(t *testing.T) {
	_, err := Load("q.csv", strings.NewReader("a,b\n\"x,1\n"), DefaultOptions())
	if err == nil {
		t.Fatalf("expected parse error for unterminated quote")
	}
}

func TestLoadHeaderOnly(t *testing.T) {
	f := load(t, "name,age\n")
	if f.NumRows() != 0 || f.NumCols() != 2 {
		t.Fatalf("unexpected shape %dx%d", f.NumRows(), f.NumCols())
	}
	if f.Columns[0].Kind != KindEmpty {
		t.Fatalf("want empty kind, got %s", f.Columns[0].Kind)
	}
}

func TestLoadHeaderCleanup(t *testing.T) {
	f := load(t, "\ufeffid,,id,Weight (kg)\n1,x,2,3\n")
	want := []string{"id", "Unnamed: 1", "id.1", "Weight (kg)"}
	got := f.ColumnNames()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("column %d: want %q, got %q", i, want[i], got[i])
		}
	}
	if f.Columns[3].Unit != "kg" {
		t.Fatalf("expected unit kg, got %q", f.Columns[3].Unit)
	}
}

func TestLoadMaxRows(t *testing.T) {
	f, err := Load("big.csv", strings.NewReader("n\n1\n2\n3\n"), Options{MaxRows: 2})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.NumRows() != 2 || !f.Truncated {
		t.Fatalf("want 2 rows truncated, got %d truncated=%v", f.NumRows(), f.Truncated)
	}
}

func TestLoadSemicolon(t *testing.T) {
	f, err := Load("eu.csv", strings.NewReader("a;b\n1;2\n"), Options{Delimiter: ';'})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if f.NumCols() != 2 {
		t.Fatalf("want 2 cols, got %d", f.NumCols())
	}
}

func TestInferKinds(t *testing.T) {
	content := "date,price,active,city,comment,blank\n" +
		"2024-08-10,\"1,200.50\",yes,Paris,the first long free-form remark here,\n" +
		"2024-08-12,12%,no,Paris,another entirely different comment,NA\n" +
		"2024-08-15,$7,yes,Lyon,yet one more unique piece of prose,\n"
	f := load(t, content)
	want := map[string]Kind{
		"date":    KindDatetime,
		"price":   KindNumeric,
		"active":  KindBoolean,
		"city":    KindCategorical,
		"comment": KindCategorical, // few rows: distinct <= 20
		"blank":   KindEmpty,
	}
	for _, c := range f.Columns {
		if c.Kind != want[c.Name] {
			t.Errorf("%s: want %s, got %s", c.Name, want[c.Name], c.Kind)
		}
	}
	if x, ok := f.Float(0, 1); !ok || x != 1200.5 {
		t.Fatalf("thousands parse: got %v,%v", x, ok)
	}
}

func TestInferTextForManyDistinct(t *testing.T) {
	var b strings.Builder
	b.WriteString("note\n")
	for i := 0; i < 30; i++ {
		b.WriteString("remark number ")
		b.WriteString(strings.Repeat("x", i))
		b.WriteString("\n")
	}
	f := load(t, b.String())
	if f.Columns[0].Kind != KindText {
		t.Fatalf("want text, got %s", f.Columns[0].Kind)
	}
}

func TestMixedColumnIsNotNumeric(t *testing.T) {
	f := load(t, "v\n1\n2\nthree\n")
	if f.Columns[0].Kind == KindNumeric {
		t.Fatalf("column with a non-numeric value must not be numeric")
	}
}

func TestParseNumeric(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"42", 42, true},
		{"-3.5e2", -350, true},
		{"1,234", 1234, true},
		{"12 345.5", 12345.5, true},
		{"15%", 15, true},
		{"€9.99", 9.99, true},
		{"1,2", 0, false},
		{"abc", 0, false},
		{"", 0, false},
	}
	for _, c := range cases {
		got, ok := parseNumeric(c.in)
		if ok != c.ok || (ok && math.Abs(got-c.want) > 1e-9) {
			t.Errorf("parseNumeric(%q) = %v,%v; want %v,%v", c.in, got, ok, c.want, c.ok)
		}
	}
}

func TestColumnIndexCaseInsensitive(t *testing.T) {
	f := load(t, "Name,Age\nAlice,30\n")
	if j, ok := f.ColumnIndex(" age "); !ok || j != 1 {
		t.Fatalf("ColumnIndex(age) = %d,%v", j, ok)
	}
	if _, ok := f.ColumnIndex("height"); ok {
		t.Fatalf("unexpected match for missing column")
	}
}
