// Package compute derives the final output table from a joined table per a
// declarative per-column specification. Cell-level problems (bad math
// operands, divide by zero) degrade to null cells with warnings; they never
// abort a run.
package compute

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/sheetmerge/sheetmerge/pkg/table"
)

// Ref names a column of one input slot inside the joined table.
type Ref struct {
	Slot   string
	Column string
}

func (r Ref) qualified() string { return r.Slot + "." + r.Column }

// ColumnSpec is a sealed set of output-column variants. Output order follows
// the spec slice order. Specs may only reference joined source columns,
// never other output columns; Validate enforces that shape up front so
// Compute has no dependency ordering to resolve.
type ColumnSpec interface {
	// Name is the output column's label.
	Name() string

	isColumnSpec()
}

// Direct copies one source column through unchanged.
type Direct struct {
	Label string
	From  Ref
}

// Part is one piece of a Concat column: either a literal or a column ref.
type Part struct {
	Literal string
	Ref     *Ref // nil for literal parts
}

// Concat renders parts to text and joins them with Separator. Null column
// values render as empty strings, never a placeholder word.
type Concat struct {
	Label     string
	Parts     []Part
	Separator string
}

type Op string

const (
	Add Op = "add"
	Sub Op = "subtract"
	Mul Op = "multiply"
	Div Op = "divide"
)

// Operand is one math input: a literal number or a column ref.
type Operand struct {
	Literal float64
	Ref     *Ref // nil for literal operands
}

// Math folds the operator across the operands left to right.
type Math struct {
	Label    string
	Op       Op
	Operands []Operand
}

// Custom repeats one constant value on every row.
type Custom struct {
	Label string
	Value string
}

func (d Direct) Name() string { return d.Label }
func (c Concat) Name() string { return c.Label }
func (m Math) Name() string   { return m.Label }
func (c Custom) Name() string { return c.Label }

func (Direct) isColumnSpec() {}
func (Concat) isColumnSpec() {}
func (Math) isColumnSpec()   {}
func (Custom) isColumnSpec() {}

// Validate checks every column reference against the joined table and
// returns all problems, not just the first.
func Validate(joined *table.Table, specs []ColumnSpec) []string {
	var problems []string
	check := func(label string, r Ref) {
		if joined.ColumnIndex(r.qualified()) < 0 {
			problems = append(problems, fmt.Sprintf(
				"output column %q references missing column %q of input %q", label, r.Column, r.Slot))
		}
	}
	for _, spec := range specs {
		switch s := spec.(type) {
		case Direct:
			check(s.Label, s.From)
		case Concat:
			for _, p := range s.Parts {
				if p.Ref != nil {
					check(s.Label, *p.Ref)
				}
			}
		case Math:
			for _, o := range s.Operands {
				if o.Ref != nil {
					check(s.Label, *o.Ref)
				}
			}
		case Custom:
		default:
			problems = append(problems, fmt.Sprintf("unknown output column spec %T", spec))
		}
	}
	return problems
}

// Compute builds the output table, one declared column at a time over every
// joined row. Callers should Validate first; an unresolved reference here
// yields null cells rather than an error.
func Compute(joined *table.Table, specs []ColumnSpec) (*table.Table, []string) {
	out := &table.Table{}
	var warnings []string
	for _, spec := range specs {
		out.Columns = append(out.Columns, spec.Name())
	}
	for rowIdx := range joined.Rows {
		row := make([]table.Cell, 0, len(specs))
		for _, spec := range specs {
			cell, warn := computeCell(joined, rowIdx, spec)
			if warn != "" {
				warnings = append(warnings, warn)
			}
			row = append(row, cell)
		}
		out.Rows = append(out.Rows, row)
	}
	return out, warnings
}

func computeCell(joined *table.Table, rowIdx int, spec ColumnSpec) (table.Cell, string) {
	switch s := spec.(type) {
	case Direct:
		return lookup(joined, rowIdx, s.From), ""
	case Concat:
		parts := make([]string, 0, len(s.Parts))
		for _, p := range s.Parts {
			if p.Ref == nil {
				parts = append(parts, p.Literal)
				continue
			}
			cell := lookup(joined, rowIdx, *p.Ref)
			if cell.Null {
				parts = append(parts, "")
			} else {
				parts = append(parts, cell.Val)
			}
		}
		return table.S(strings.Join(parts, s.Separator)), ""
	case Math:
		return mathCell(joined, rowIdx, s)
	case Custom:
		return table.S(s.Value), ""
	default:
		return table.Null(), fmt.Sprintf("row %d: unknown output column spec %T", rowIdx+1, spec)
	}
}

func mathCell(joined *table.Table, rowIdx int, s Math) (table.Cell, string) {
	if len(s.Operands) == 0 {
		return table.Null(), fmt.Sprintf("column %q row %d: no operands", s.Label, rowIdx+1)
	}
	acc := 0.0
	for i, o := range s.Operands {
		val := o.Literal
		if o.Ref != nil {
			cell := lookup(joined, rowIdx, *o.Ref)
			if cell.Null || strings.TrimSpace(cell.Val) == "" {
				return table.Null(), fmt.Sprintf(
					"column %q row %d: %s.%s has no numeric value", s.Label, rowIdx+1, o.Ref.Slot, o.Ref.Column)
			}
			parsed, err := strconv.ParseFloat(strings.TrimSpace(cell.Val), 64)
			if err != nil {
				return table.Null(), fmt.Sprintf(
					"column %q row %d: %s.%s value %q is not numeric", s.Label, rowIdx+1, o.Ref.Slot, o.Ref.Column, cell.Val)
			}
			val = parsed
		}
		if i == 0 {
			acc = val
			continue
		}
		switch s.Op {
		case Add:
			acc += val
		case Sub:
			acc -= val
		case Mul:
			acc *= val
		case Div:
			if val == 0 {
				return table.Null(), fmt.Sprintf("column %q row %d: division by zero", s.Label, rowIdx+1)
			}
			acc /= val
		default:
			return table.Null(), fmt.Sprintf("column %q row %d: unknown operator %q", s.Label, rowIdx+1, s.Op)
		}
	}
	return table.S(strconv.FormatFloat(acc, 'f', -1, 64)), ""
}

func lookup(joined *table.Table, rowIdx int, r Ref) table.Cell {
	idx := joined.ColumnIndex(r.qualified())
	if idx < 0 {
		return table.Null()
	}
	return joined.Rows[rowIdx][idx]
}
