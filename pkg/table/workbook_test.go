package table

import (
	"bytes"
	"testing"

	"github.com/xuri/excelize/v2"
)

func workbookBytes(t *testing.T, sheet string, rows [][]interface{}) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	if sheet != "Sheet1" {
		f.SetSheetName("Sheet1", sheet)
	}
	for i, row := range rows {
		cell, _ := excelize.CoordinatesToCellName(1, i+1)
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

func TestFromWorkbook(t *testing.T) {
	data := workbookBytes(t, "Data", [][]interface{}{
		{"id", "name"},
		{1, "alice"},
		{2, "bob"},
	})

	tbl, err := FromWorkbook(data, "Data", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Columns) != 2 || tbl.Columns[0] != "id" {
		t.Fatalf("unexpected columns: %v", tbl.Columns)
	}
	if len(tbl.Rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(tbl.Rows))
	}
	if tbl.Rows[0][0].Val != "1" {
		t.Errorf("numeric cell should stringify to 1, got %q", tbl.Rows[0][0].Val)
	}
}

func TestFromWorkbookNumericHeaders(t *testing.T) {
	data := workbookBytes(t, "Sheet1", [][]interface{}{
		{1, 2.5, "name"},
		{"a", "b", "c"},
	})
	tbl, err := FromWorkbook(data, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if tbl.Columns[0] != "1" || tbl.Columns[1] != "2.5" {
		t.Errorf("numeric headers not stringified uniformly: %v", tbl.Columns)
	}
}

func TestFromWorkbookDefaultsToFirstTab(t *testing.T) {
	data := workbookBytes(t, "Only", [][]interface{}{{"x"}, {"1"}})
	tbl, err := FromWorkbook(data, "", 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Columns) != 1 || tbl.Columns[0] != "x" {
		t.Fatalf("first tab not used: %v", tbl.Columns)
	}
}
