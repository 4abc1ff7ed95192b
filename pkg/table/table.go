// Package table defines the source-agnostic tabular representation that the
// whole pipeline operates on: ordered string column labels plus rectangular
// rows. Every ingestion path must produce one of these so that join keys
// built from different source types compare equal.
package table

import (
	"fmt"
	"strconv"
	"strings"
)

// Cell is a single table value. Null cells are distinct from empty strings:
// a padded short row holds nulls, a blank spreadsheet cell holds "".
type Cell struct {
	Val  string
	Null bool
}

// S returns a non-null cell holding s.
func S(s string) Cell { return Cell{Val: s} }

// Null is the canonical null cell.
func Null() Cell { return Cell{Null: true} }

// Table is an ordered list of column labels plus rows. After Pad, every row
// has exactly len(Columns) cells.
type Table struct {
	Columns []string
	Rows    [][]Cell
}

// Stringify converts a header or cell value of any JSON- or sheet-origin
// type into its canonical string form. Integral floats lose the trailing
// ".0" so a numeric header 1 and the string header "1" produce the same
// join key.
func Stringify(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case bool:
		return strconv.FormatBool(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(t), 'f', -1, 32)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	default:
		// Composite headers arrive as arbitrary fmt-able values.
		return strings.TrimSpace(fmt.Sprintf("%v", t))
	}
}

// Pad right-pads short rows with null cells and truncates rows longer than
// the header, so every row length equals len(t.Columns).
func (t *Table) Pad() {
	width := len(t.Columns)
	for i, row := range t.Rows {
		switch {
		case len(row) < width:
			padded := make([]Cell, width)
			copy(padded, row)
			for j := len(row); j < width; j++ {
				padded[j] = Null()
			}
			t.Rows[i] = padded
		case len(row) > width:
			t.Rows[i] = row[:width]
		}
	}
}

// ColumnIndex returns the position of label in t.Columns, or -1.
func (t *Table) ColumnIndex(label string) int {
	for i, c := range t.Columns {
		if c == label {
			return i
		}
	}
	return -1
}

// Column returns the ordered cell values of the named column. Missing
// columns return nil.
func (t *Table) Column(label string) []Cell {
	idx := t.ColumnIndex(label)
	if idx < 0 {
		return nil
	}
	out := make([]Cell, 0, len(t.Rows))
	for _, row := range t.Rows {
		out = append(out, row[idx])
	}
	return out
}
