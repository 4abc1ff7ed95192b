package workflow

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/sheetmerge/sheetmerge/pkg/compute"
	"github.com/sheetmerge/sheetmerge/pkg/join"
	"github.com/sheetmerge/sheetmerge/pkg/source"
	"github.com/sheetmerge/sheetmerge/pkg/storage"
	"github.com/sheetmerge/sheetmerge/pkg/table"
)

func xlsxBytes(t *testing.T, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow("Sheet1", cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func testRunner(t *testing.T) (*Runner, *storage.DB) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "runs.sqlite3"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return &Runner{Resolver: &source.Resolver{}, DB: db}, db
}

func twoLocalSources(t *testing.T) []source.Descriptor {
	left := xlsxBytes(t, [][]interface{}{{"id", "name"}, {1, "alice"}, {2, "bob"}})
	right := xlsxBytes(t, [][]interface{}{{"id", "amount"}, {2, 10}, {3, 20}})
	return []source.Descriptor{
		source.Local{SlotID: "people", Filename: "people.xlsx", Data: left, HeaderRow: 1},
		source.Local{SlotID: "orders", Filename: "orders.xlsx", Data: right, HeaderRow: 1},
	}
}

func TestRunInnerJoinEndToEnd(t *testing.T) {
	runner, db := testRunner(t)
	def := &Definition{
		Sources: twoLocalSources(t),
		Join:    join.Spec{Type: join.Inner, Keys: map[string]string{"people": "id", "orders": "id"}},
		Output: []compute.ColumnSpec{
			compute.Direct{Label: "ID", From: compute.Ref{Slot: "people", Column: "id"}},
			compute.Direct{Label: "Name", From: compute.Ref{Slot: "people", Column: "name"}},
			compute.Direct{Label: "OrderID", From: compute.Ref{Slot: "orders", Column: "id"}},
			compute.Direct{Label: "Amount", From: compute.Ref{Slot: "orders", Column: "amount"}},
		},
	}

	res, err := runner.Run(context.Background(), def)
	if err != nil {
		t.Fatal(err)
	}
	// Keys {1,2} and {2,3} intersect at exactly {2}.
	if res.RowCount != 1 {
		t.Fatalf("row count = %d, want 1", res.RowCount)
	}
	for i, want := range []string{"2", "bob", "2", "10"} {
		if res.Output.Rows[0][i].Val != want {
			t.Errorf("cell %d = %q, want %q", i, res.Output.Rows[0][i].Val, want)
		}
	}

	run, err := db.GetRun(context.Background(), res.RunID)
	if err != nil || run == nil {
		t.Fatal(err)
	}
	if run.Status != storage.RunCompleted {
		t.Errorf("run status = %q", run.Status)
	}
	if len(run.Sources) != 2 || run.Sources[0] != "people.xlsx" {
		t.Errorf("audit sources = %v", run.Sources)
	}
}

func TestRunLeftJoinFillsNulls(t *testing.T) {
	runner, _ := testRunner(t)
	anchor := xlsxBytes(t, [][]interface{}{{"id"}, {1}, {2}, {3}})
	other := xlsxBytes(t, [][]interface{}{{"id", "v"}, {2, "x"}})
	def := &Definition{
		Sources: []source.Descriptor{
			source.Local{SlotID: "a", Filename: "a.xlsx", Data: anchor, HeaderRow: 1},
			source.Local{SlotID: "b", Filename: "b.xlsx", Data: other, HeaderRow: 1},
		},
		Join: join.Spec{Type: join.Left, Anchor: "a", Keys: map[string]string{"a": "id", "b": "id"}},
		Output: []compute.ColumnSpec{
			compute.Direct{Label: "ID", From: compute.Ref{Slot: "a", Column: "id"}},
			compute.Direct{Label: "V", From: compute.Ref{Slot: "b", Column: "v"}},
		},
	}

	res, err := runner.Run(context.Background(), def)
	if err != nil {
		t.Fatal(err)
	}
	if res.RowCount != 3 {
		t.Fatalf("row count = %d, want 3", res.RowCount)
	}
	if !res.Output.Rows[0][1].Null || !res.Output.Rows[2][1].Null {
		t.Error("non-matching anchor rows should have null second-table cells")
	}
	if res.Output.Rows[1][1].Val != "x" {
		t.Errorf("matched row V = %q", res.Output.Rows[1][1].Val)
	}
}

func TestRunConcatNullRendersEmpty(t *testing.T) {
	runner, _ := testRunner(t)
	anchor := xlsxBytes(t, [][]interface{}{{"id"}, {42}, {7}})
	other := xlsxBytes(t, [][]interface{}{{"id", "a"}, {42, 42}})
	def := &Definition{
		Sources: []source.Descriptor{
			source.Local{SlotID: "x", Filename: "x.xlsx", Data: anchor, HeaderRow: 1},
			source.Local{SlotID: "y", Filename: "y.xlsx", Data: other, HeaderRow: 1},
		},
		Join: join.Spec{Type: join.Left, Anchor: "x", Keys: map[string]string{"x": "id", "y": "id"}},
		Output: []compute.ColumnSpec{
			compute.Concat{Label: "Tag", Parts: []compute.Part{
				{Literal: "ID-"},
				{Ref: &compute.Ref{Slot: "y", Column: "a"}},
			}},
		},
	}

	res, err := runner.Run(context.Background(), def)
	if err != nil {
		t.Fatal(err)
	}
	if res.Output.Rows[0][0].Val != "ID-42" {
		t.Errorf(`concat = %q, want "ID-42"`, res.Output.Rows[0][0].Val)
	}
	if res.Output.Rows[1][0].Val != "ID-" {
		t.Errorf(`concat over null = %q, want "ID-"`, res.Output.Rows[1][0].Val)
	}
}

func TestRunAggregatesAllConfigProblems(t *testing.T) {
	runner, db := testRunner(t)
	def := &Definition{
		Sources: twoLocalSources(t),
		Join:    join.Spec{Type: join.Inner, Keys: map[string]string{"people": "missing_key"}},
		Output: []compute.ColumnSpec{
			compute.Direct{Label: "X", From: compute.Ref{Slot: "people", Column: "ghost"}},
		},
	}

	_, err := runner.Run(context.Background(), def)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	// All three problems in one error: bad key column, unmapped input,
	// missing output reference.
	if len(cfgErr.Problems) != 3 {
		t.Fatalf("problems = %v", cfgErr.Problems)
	}

	runs, err := db.ListRuns(context.Background(), 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(runs) != 1 || runs[0].Status != storage.RunFailed {
		t.Errorf("failed run not recorded: %+v", runs)
	}
	if !strings.Contains(runs[0].Error, "invalid workflow configuration") {
		t.Errorf("run error = %q", runs[0].Error)
	}
}

func TestRunRejectsDuplicateSlotIDs(t *testing.T) {
	runner, _ := testRunner(t)
	data := xlsxBytes(t, [][]interface{}{{"id"}, {1}})
	def := &Definition{
		Sources: []source.Descriptor{
			source.Local{SlotID: "s", Filename: "a.xlsx", Data: data, HeaderRow: 1},
			source.Local{SlotID: "s", Filename: "b.xlsx", Data: data, HeaderRow: 1},
		},
		Join: join.Spec{Type: join.Inner, Keys: map[string]string{"s": "id"}},
		Output: []compute.ColumnSpec{
			compute.Direct{Label: "ID", From: compute.Ref{Slot: "s", Column: "id"}},
		},
	}

	_, err := runner.Run(context.Background(), def)
	var cfgErr *ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}
	found := false
	for _, p := range cfgErr.Problems {
		if strings.Contains(p, "more than one source") {
			found = true
		}
	}
	if !found {
		t.Errorf("no duplicate-slot problem reported: %v", cfgErr.Problems)
	}
}

func TestRunMathWarningsDoNotFailRun(t *testing.T) {
	runner, db := testRunner(t)
	data := xlsxBytes(t, [][]interface{}{{"id", "qty"}, {1, "oops"}})
	def := &Definition{
		Sources: []source.Descriptor{
			source.Local{SlotID: "s", Filename: "s.xlsx", Data: data, HeaderRow: 1},
		},
		Join: join.Spec{Type: join.Full, Keys: map[string]string{"s": "id"}},
		Output: []compute.ColumnSpec{
			compute.Math{Label: "Doubled", Op: compute.Mul, Operands: []compute.Operand{
				{Ref: &compute.Ref{Slot: "s", Column: "qty"}},
				{Literal: 2},
			}},
		},
	}

	res, err := runner.Run(context.Background(), def)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Warnings) != 1 {
		t.Fatalf("warnings = %v", res.Warnings)
	}
	if !res.Output.Rows[0][0].Null {
		t.Error("bad operand should yield null cell")
	}
	run, err := db.GetRun(context.Background(), res.RunID)
	if err != nil || run == nil {
		t.Fatal(err)
	}
	if run.Status != storage.RunCompleted || len(run.Warnings) != 1 {
		t.Errorf("run = %+v", run)
	}
}

type fakeExporter struct {
	title string
	rows  int
}

func (f *fakeExporter) CreateSpreadsheet(ctx context.Context, title string, tbl *table.Table) (string, string, error) {
	f.title = title
	f.rows = len(tbl.Rows)
	return "ss-new", "https://example.com/ss-new", nil
}

func TestRunExportRecordsHandle(t *testing.T) {
	runner, db := testRunner(t)
	exporter := &fakeExporter{}
	runner.Exporter = exporter

	def := &Definition{
		Sources: twoLocalSources(t),
		Join:    join.Spec{Type: join.Inner, Keys: map[string]string{"people": "id", "orders": "id"}},
		Output: []compute.ColumnSpec{
			compute.Direct{Label: "ID", From: compute.Ref{Slot: "people", Column: "id"}},
		},
	}
	def.Export.SheetTitle = "Merged output"

	res, err := runner.Run(context.Background(), def)
	if err != nil {
		t.Fatal(err)
	}
	if exporter.title != "Merged output" || exporter.rows != 1 {
		t.Errorf("exporter got %q / %d rows", exporter.title, exporter.rows)
	}
	if res.Handle != "https://example.com/ss-new" {
		t.Errorf("handle = %q", res.Handle)
	}
	run, _ := db.GetRun(context.Background(), res.RunID)
	if run == nil || run.OutputHandle != "https://example.com/ss-new" {
		t.Errorf("run output handle not recorded: %+v", run)
	}
}
