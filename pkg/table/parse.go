package table

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// FromWorkbook parses xlsx bytes into a Table using the given tab (first tab
// when empty) and 1-based header row. Header labels go through Stringify so
// a workbook and a sheets-API read of the same data yield identical labels.
func FromWorkbook(data []byte, tab string, headerRow int) (*Table, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("opening workbook: %w", err)
	}
	defer f.Close()

	if tab == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return &Table{}, nil
		}
		tab = sheets[0]
	}
	rows, err := f.GetRows(tab)
	if err != nil {
		return nil, fmt.Errorf("reading tab %q: %w", tab, err)
	}
	return fromStringRows(rows, headerRow), nil
}

// FromCSV parses delimited-text bytes, treating the 1-based headerRow as the
// label row. Ragged records are allowed and padded afterwards.
func FromCSV(data []byte, headerRow int) (*Table, error) {
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	var rows [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing csv: %w", err)
		}
		rows = append(rows, rec)
	}
	return fromStringRows(rows, headerRow), nil
}

func fromStringRows(rows [][]string, headerRow int) *Table {
	if headerRow < 1 {
		headerRow = 1
	}
	if len(rows) < headerRow {
		return &Table{}
	}
	t := &Table{}
	for _, h := range rows[headerRow-1] {
		t.Columns = append(t.Columns, Stringify(h))
	}
	for _, row := range rows[headerRow:] {
		cells := make([]Cell, 0, len(row))
		for _, v := range row {
			cells = append(cells, S(v))
		}
		t.Rows = append(t.Rows, cells)
	}
	t.Pad()
	return t
}
