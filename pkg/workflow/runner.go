// Package workflow orchestrates one run: resolve every source, validate the
// configuration as a whole, join, compute, and persist the run record.
package workflow

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/sheetmerge/sheetmerge/pkg/compute"
	"github.com/sheetmerge/sheetmerge/pkg/join"
	"github.com/sheetmerge/sheetmerge/pkg/source"
	"github.com/sheetmerge/sheetmerge/pkg/storage"
	"github.com/sheetmerge/sheetmerge/pkg/table"
)

// Logger abstracts logging so callers can use logrus, stdlib log, or any
// other logger that satisfies this interface.
type Logger interface {
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Debugf(format string, args ...interface{})
}

type nopLogger struct{}

func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Debugf(string, ...interface{}) {}

// ConfigError aggregates every structural problem found in a workflow
// definition, so the user can fix them all in one pass.
type ConfigError struct {
	Problems []string
}

func (e *ConfigError) Error() string {
	return "invalid workflow configuration: " + strings.Join(e.Problems, "; ")
}

// SheetWriter is the slice of the remote client the export step needs.
type SheetWriter interface {
	CreateSpreadsheet(ctx context.Context, title string, t *table.Table) (id, viewURL string, err error)
}

type Runner struct {
	Resolver *source.Resolver
	DB       *storage.DB // optional; nil skips run-record persistence
	Exporter SheetWriter // optional; required only for definitions that export
	Log      Logger      // optional
	Preview  int         // preview row count, default 10
}

// Result is what the caller gets back from a completed run.
type Result struct {
	RunID    string
	Columns  []string
	RowCount int
	Preview  [][]table.Cell
	Warnings []string
	Handle   string // output spreadsheet URL when the definition exports
	Output   *table.Table
}

// Run executes a workflow definition. Unrecoverable errors (reauth, remote
// permission/not-found, configuration problems) abort atomically: the run
// record transitions to failed and no partial output is exposed. Cell-level
// problems surface as warnings on a completed run.
func (r *Runner) Run(ctx context.Context, def *Definition) (*Result, error) {
	log := r.Log
	if log == nil {
		log = nopLogger{}
	}

	runID := uuid.NewString()
	audits := make([]string, 0, len(def.Sources))
	for _, d := range def.Sources {
		audits = append(audits, d.Audit())
	}
	if r.DB != nil {
		if err := r.DB.CreateRun(ctx, runID, audits); err != nil {
			return nil, fmt.Errorf("creating run record: %w", err)
		}
	}
	fail := func(err error) (*Result, error) {
		if r.DB != nil {
			if ferr := r.DB.FailRun(ctx, runID, err); ferr != nil {
				log.Warnf("could not mark run %s failed: %v", runID, ferr)
			}
		}
		return nil, err
	}

	// Sources resolve one at a time: the remote API's rate limits are
	// per-user and tight, so fanning out would only add burst pressure.
	inputs := make([]join.Input, 0, len(def.Sources))
	for _, d := range def.Sources {
		log.Debugf("resolving source %q (%s)", d.Slot(), d.Audit())
		t, err := r.Resolver.Resolve(ctx, d)
		if err != nil {
			return fail(fmt.Errorf("resolving source %q: %w", d.Slot(), err))
		}
		inputs = append(inputs, join.Input{Slot: d.Slot(), Table: t})
	}

	if problems := r.validate(inputs, def); len(problems) > 0 {
		return fail(&ConfigError{Problems: problems})
	}

	joined, warnings, err := join.Join(inputs, def.Join)
	if err != nil {
		return fail(err)
	}
	out, computeWarnings := compute.Compute(joined, def.Output)
	warnings = append(warnings, computeWarnings...)
	for _, w := range warnings {
		log.Warnf("%s", w)
	}

	handle := ""
	if def.Export.SheetTitle != "" {
		if r.Exporter == nil {
			return fail(fmt.Errorf("definition exports to a spreadsheet but no remote client is configured"))
		}
		_, viewURL, err := r.Exporter.CreateSpreadsheet(ctx, def.Export.SheetTitle, out)
		if err != nil {
			return fail(fmt.Errorf("exporting output: %w", err))
		}
		handle = viewURL
	}

	if r.DB != nil {
		if err := r.DB.CompleteRun(ctx, runID, handle, warnings); err != nil {
			return nil, fmt.Errorf("finalizing run record: %w", err)
		}
	}

	previewN := r.Preview
	if previewN <= 0 {
		previewN = 10
	}
	if previewN > len(out.Rows) {
		previewN = len(out.Rows)
	}
	log.Infof("run %s completed: %d rows, %d columns, %d warning(s)", runID, len(out.Rows), len(out.Columns), len(warnings))
	return &Result{
		RunID:    runID,
		Columns:  out.Columns,
		RowCount: len(out.Rows),
		Preview:  out.Rows[:previewN],
		Warnings: warnings,
		Handle:   handle,
		Output:   out,
	}, nil
}

// validate collects every structural problem across all inputs before the
// join starts, so one failed run reports the whole fix list.
func (r *Runner) validate(inputs []join.Input, def *Definition) []string {
	var problems []string
	seen := make(map[string]bool)
	for _, in := range inputs {
		if seen[in.Slot] {
			problems = append(problems, fmt.Sprintf("slot id %q is used by more than one source", in.Slot))
		}
		seen[in.Slot] = true
		keyCol, ok := def.Join.Keys[in.Slot]
		if !ok {
			problems = append(problems, fmt.Sprintf("no key column mapped for input %q", in.Slot))
			continue
		}
		if in.Table.ColumnIndex(keyCol) < 0 {
			problems = append(problems, fmt.Sprintf("input %q has no column %q", in.Slot, keyCol))
		}
	}
	switch def.Join.Type {
	case join.Inner, join.Full:
	case join.Left, join.Right:
		found := def.Join.Anchor == "" && def.Join.Type == join.Right
		for _, in := range inputs {
			if in.Slot == def.Join.Anchor {
				found = true
			}
		}
		if !found {
			problems = append(problems, fmt.Sprintf("%s join requires an anchor matching one of the inputs", def.Join.Type))
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown join type %q", def.Join.Type))
	}

	// Output references are checked against the joined table's shape, which
	// is fully known before joining. Duplicate slots are rejected above, so
	// every qualified label here is unique.
	shape := &table.Table{}
	for _, in := range inputs {
		for _, col := range in.Table.Columns {
			shape.Columns = append(shape.Columns, in.Slot+"."+col)
		}
	}
	problems = append(problems, compute.Validate(shape, def.Output)...)
	return problems
}
