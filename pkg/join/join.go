// Package join merges normalized tables into one by matching key-column
// values. Row order of the result is fully determined by the inputs, so a
// re-run over identical data produces an identical table.
package join

import (
	"fmt"

	"github.com/sheetmerge/sheetmerge/pkg/table"
)

type Type string

const (
	Inner Type = "inner"
	Left  Type = "left"
	Right Type = "right"
	Full  Type = "full"
)

// Spec configures a join: one key column per input slot, the join type, and
// for left/right joins the anchor slot whose key set is preserved verbatim.
type Spec struct {
	Type   Type
	Keys   map[string]string // slot id -> key column label
	Anchor string            // required for left/right
}

// Input pairs a slot id with its resolved table.
type Input struct {
	Slot  string
	Table *table.Table
}

// Join merges the inputs per the spec. Output column labels are qualified
// "<slot>.<column>" so downstream column references stay unambiguous.
// Warnings cover non-fatal data conditions: duplicate keys inside one input
// (first row wins) and an inner join matching nothing.
func Join(inputs []Input, spec Spec) (*table.Table, []string, error) {
	if err := validate(inputs, spec); err != nil {
		return nil, nil, err
	}

	var warnings []string

	// Per input: ordered distinct keys plus first-match row index per key.
	byID := make([]keyedInput, len(inputs))
	for i, in := range inputs {
		col := in.Table.ColumnIndex(spec.Keys[in.Slot])
		k := keyedInput{first: make(map[string]int)}
		dupes := 0
		for rowIdx, row := range in.Table.Rows {
			key := cellKey(row[col])
			if _, seen := k.first[key]; seen {
				dupes++
				continue
			}
			k.first[key] = rowIdx
			k.order = append(k.order, key)
		}
		byID[i] = k
		if dupes > 0 {
			warnings = append(warnings, fmt.Sprintf(
				"input %q has %d duplicate value(s) in key column %q; only the first matching row is used",
				in.Slot, dupes, spec.Keys[in.Slot]))
		}
	}

	universe := keyUniverse(inputs, byID, spec)
	if spec.Type == Inner && len(universe) == 0 {
		warnings = append(warnings, "inner join matched no keys across the inputs; the output table is empty")
	}

	out := &table.Table{}
	for _, in := range inputs {
		for _, col := range in.Table.Columns {
			out.Columns = append(out.Columns, in.Slot+"."+col)
		}
	}
	for _, key := range universe {
		var row []table.Cell
		for i, in := range inputs {
			if rowIdx, ok := byID[i].first[key]; ok {
				row = append(row, in.Table.Rows[rowIdx]...)
			} else {
				for range in.Table.Columns {
					row = append(row, table.Null())
				}
			}
		}
		out.Rows = append(out.Rows, row)
	}
	return out, warnings, nil
}

// validate fails fast, before any matching work, when the spec references a
// missing slot mapping or key column.
func validate(inputs []Input, spec Spec) error {
	if len(inputs) == 0 {
		return fmt.Errorf("join requires at least one input")
	}
	for _, in := range inputs {
		keyCol, ok := spec.Keys[in.Slot]
		if !ok {
			return fmt.Errorf("no key column mapped for input %q", in.Slot)
		}
		if in.Table.ColumnIndex(keyCol) < 0 {
			return fmt.Errorf("input %q has no column %q", in.Slot, keyCol)
		}
	}
	switch spec.Type {
	case Inner, Full:
	case Left, Right:
		if anchorIndex(inputs, spec) < 0 {
			return fmt.Errorf("%s join requires an anchor matching one of the inputs", spec.Type)
		}
	default:
		return fmt.Errorf("unknown join type %q", spec.Type)
	}
	return nil
}

func anchorIndex(inputs []Input, spec Spec) int {
	anchor := spec.Anchor
	if anchor == "" && spec.Type == Right {
		// Unanchored right joins anchor on the last input.
		return len(inputs) - 1
	}
	for i, in := range inputs {
		if in.Slot == anchor {
			return i
		}
	}
	return -1
}

type keyedInput struct {
	order []string
	first map[string]int
}

func keyUniverse(inputs []Input, byID []keyedInput, spec Spec) []string {
	switch spec.Type {
	case Inner:
		// Intersection, ordered by the first input's row order.
		var keys []string
		for _, key := range byID[0].order {
			inAll := true
			for i := 1; i < len(byID); i++ {
				if _, ok := byID[i].first[key]; !ok {
					inAll = false
					break
				}
			}
			if inAll {
				keys = append(keys, key)
			}
		}
		return keys
	case Left, Right:
		return byID[anchorIndex(inputs, spec)].order
	case Full:
		// Union in order of first appearance across inputs.
		seen := make(map[string]bool)
		var keys []string
		for _, k := range byID {
			for _, key := range k.order {
				if !seen[key] {
					seen[key] = true
					keys = append(keys, key)
				}
			}
		}
		return keys
	}
	return nil
}

// cellKey is the exact-string-equality match key. Null cells join among
// themselves; case is source-preserving, not folded.
func cellKey(c table.Cell) string {
	if c.Null {
		return "\x00null"
	}
	return c.Val
}
