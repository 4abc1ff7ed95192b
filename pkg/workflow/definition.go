package workflow

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sheetmerge/sheetmerge/pkg/compute"
	"github.com/sheetmerge/sheetmerge/pkg/join"
	"github.com/sheetmerge/sheetmerge/pkg/source"
)

// Definition is one executable workflow: the configured inputs, the join
// spec, and the output column specs. The surrounding product stores these
// externally; this package only consumes them (YAML interchange).
type Definition struct {
	Sources []source.Descriptor
	Join    join.Spec
	Output  []compute.ColumnSpec

	// Export, when set, writes the output to a new native spreadsheet
	// titled accordingly and records its URL as the run's output handle.
	Export struct {
		SheetTitle string
	}
}

type defFile struct {
	Sources []defSource `yaml:"sources"`
	Join    struct {
		Type   string            `yaml:"type"`
		Anchor string            `yaml:"anchor"`
		Keys   map[string]string `yaml:"keys"`
	} `yaml:"join"`
	Output []defColumn `yaml:"output"`
	Export struct {
		SheetTitle string `yaml:"sheet_title"`
	} `yaml:"export"`
}

type defSource struct {
	Slot      string `yaml:"slot"`
	Type      string `yaml:"type"` // local | remote_file | remote_sheet
	Path      string `yaml:"path"`
	Tab       string `yaml:"tab"`
	HeaderRow int    `yaml:"header_row"`

	FileID        string `yaml:"file_id"`
	MimeType      string `yaml:"mime_type"`
	SpreadsheetID string `yaml:"spreadsheet_id"`
}

type defColumn struct {
	Name      string    `yaml:"name"`
	Type      string    `yaml:"type"` // direct | concat | math | custom
	Slot      string    `yaml:"slot"`
	Column    string    `yaml:"column"`
	Separator string    `yaml:"separator"`
	Parts     []defPart `yaml:"parts"`
	Op        string    `yaml:"op"`
	Operands  []defPart `yaml:"operands"`
	Value     string    `yaml:"value"`
}

// defPart doubles as concat part and math operand: either a literal or a
// slot/column reference.
type defPart struct {
	Literal *string  `yaml:"literal"`
	Number  *float64 `yaml:"number"`
	Slot    string   `yaml:"slot"`
	Column  string   `yaml:"column"`
}

// ParseDefinition decodes a workflow YAML document. Local source paths are
// read eagerly so the resulting definition is self-contained.
func ParseDefinition(data []byte) (*Definition, error) {
	var df defFile
	if err := yaml.Unmarshal(data, &df); err != nil {
		return nil, fmt.Errorf("parsing workflow definition: %w", err)
	}

	def := &Definition{}
	def.Export.SheetTitle = df.Export.SheetTitle

	for _, s := range df.Sources {
		headerRow := s.HeaderRow
		if headerRow == 0 {
			headerRow = 1
		}
		switch s.Type {
		case "local":
			raw, err := os.ReadFile(s.Path)
			if err != nil {
				return nil, fmt.Errorf("reading local source %q: %w", s.Slot, err)
			}
			def.Sources = append(def.Sources, source.Local{
				SlotID: s.Slot, Filename: s.Path, Data: raw, Tab: s.Tab, HeaderRow: headerRow,
			})
		case "remote_file":
			def.Sources = append(def.Sources, source.RemoteFile{
				SlotID: s.Slot, FileID: s.FileID, MimeType: s.MimeType, HeaderRow: headerRow,
			})
		case "remote_sheet":
			def.Sources = append(def.Sources, source.RemoteSheet{
				SlotID: s.Slot, SpreadsheetID: s.SpreadsheetID, Tab: s.Tab,
			})
		default:
			return nil, fmt.Errorf("source %q has unknown type %q", s.Slot, s.Type)
		}
	}

	def.Join = join.Spec{Type: join.Type(df.Join.Type), Anchor: df.Join.Anchor, Keys: df.Join.Keys}

	for _, c := range df.Output {
		col, err := parseColumn(c)
		if err != nil {
			return nil, err
		}
		def.Output = append(def.Output, col)
	}
	return def, nil
}

func parseColumn(c defColumn) (compute.ColumnSpec, error) {
	switch c.Type {
	case "direct":
		return compute.Direct{Label: c.Name, From: compute.Ref{Slot: c.Slot, Column: c.Column}}, nil
	case "concat":
		spec := compute.Concat{Label: c.Name, Separator: c.Separator}
		for _, p := range c.Parts {
			if p.Literal != nil {
				spec.Parts = append(spec.Parts, compute.Part{Literal: *p.Literal})
			} else {
				spec.Parts = append(spec.Parts, compute.Part{Ref: &compute.Ref{Slot: p.Slot, Column: p.Column}})
			}
		}
		return spec, nil
	case "math":
		spec := compute.Math{Label: c.Name, Op: compute.Op(c.Op)}
		for _, p := range c.Operands {
			if p.Number != nil {
				spec.Operands = append(spec.Operands, compute.Operand{Literal: *p.Number})
			} else {
				spec.Operands = append(spec.Operands, compute.Operand{Ref: &compute.Ref{Slot: p.Slot, Column: p.Column}})
			}
		}
		return spec, nil
	case "custom":
		return compute.Custom{Label: c.Name, Value: c.Value}, nil
	default:
		return nil, fmt.Errorf("output column %q has unknown type %q", c.Name, c.Type)
	}
}
