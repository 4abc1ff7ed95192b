package source

import (
	"bytes"
	"context"
	"testing"

	"github.com/xuri/excelize/v2"

	"github.com/sheetmerge/sheetmerge/pkg/remote"
	"github.com/sheetmerge/sheetmerge/pkg/table"
)

type fakeRemote struct {
	downloaded   string
	downloadMime string
	readSheet    string
	readTab      string
	metaLookups  int
}

func (f *fakeRemote) DownloadTable(ctx context.Context, fileID, mimeType string, headerRow int) (*table.Table, error) {
	f.downloaded = fileID
	f.downloadMime = mimeType
	return &table.Table{Columns: []string{"id"}}, nil
}

func (f *fakeRemote) FileMetadata(ctx context.Context, fileID string) (*remote.Metadata, error) {
	f.metaLookups++
	return &remote.Metadata{ID: fileID, MimeType: "text/csv"}, nil
}

func (f *fakeRemote) ReadSheet(ctx context.Context, spreadsheetID, tab string) (*table.Table, error) {
	f.readSheet = spreadsheetID
	f.readTab = tab
	return &table.Table{Columns: []string{"id"}}, nil
}

func localXLSX(t *testing.T) []byte {
	t.Helper()
	f := excelize.NewFile()
	defer f.Close()
	rows := [][]interface{}{{"id", "name"}, {1, "alice"}}
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

func TestResolveLocal(t *testing.T) {
	r := &Resolver{}
	tbl, err := r.Resolve(context.Background(), Local{
		SlotID: "a", Filename: "upload.xlsx", Data: localXLSX(t), HeaderRow: 1,
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(tbl.Columns) != 2 || tbl.Columns[0] != "id" {
		t.Fatalf("columns = %v", tbl.Columns)
	}
	if tbl.Rows[0][0].Val != "1" {
		t.Errorf("numeric cell = %q, want stringified 1", tbl.Rows[0][0].Val)
	}
}

func TestResolveDispatch(t *testing.T) {
	fake := &fakeRemote{}
	r := &Resolver{Remote: fake}
	ctx := context.Background()

	if _, err := r.Resolve(ctx, RemoteFile{SlotID: "a", FileID: "f1", MimeType: "text/csv"}); err != nil {
		t.Fatal(err)
	}
	if fake.downloaded != "f1" {
		t.Error("remote file did not dispatch to DownloadTable")
	}

	if _, err := r.Resolve(ctx, RemoteSheet{SlotID: "b", SpreadsheetID: "ss1", Tab: "Data"}); err != nil {
		t.Fatal(err)
	}
	if fake.readSheet != "ss1" || fake.readTab != "Data" {
		t.Error("remote sheet did not dispatch to ReadSheet")
	}
}

func TestResolveRemoteFileLooksUpMimeType(t *testing.T) {
	fake := &fakeRemote{}
	r := &Resolver{Remote: fake}

	if _, err := r.Resolve(context.Background(), RemoteFile{SlotID: "a", FileID: "f2"}); err != nil {
		t.Fatal(err)
	}
	if fake.metaLookups != 1 {
		t.Errorf("metadata lookups = %d, want 1", fake.metaLookups)
	}
	if fake.downloadMime != "text/csv" {
		t.Errorf("download mime = %q, want metadata mime", fake.downloadMime)
	}

	fake2 := &fakeRemote{}
	r2 := &Resolver{Remote: fake2}
	if _, err := r2.Resolve(context.Background(), RemoteFile{SlotID: "a", FileID: "f3", MimeType: "text/csv"}); err != nil {
		t.Fatal(err)
	}
	if fake2.metaLookups != 0 {
		t.Error("explicit mime type should skip the metadata lookup")
	}
}

func TestAuditStrings(t *testing.T) {
	cases := []struct {
		d    Descriptor
		want string
	}{
		{Local{SlotID: "a", Filename: "report.xlsx"}, "report.xlsx"},
		{RemoteFile{SlotID: "b", FileID: "f-123"}, "remote:f-123"},
		{RemoteSheet{SlotID: "c", SpreadsheetID: "ss-9"}, "remote:ss-9"},
	}
	for _, c := range cases {
		if got := c.d.Audit(); got != c.want {
			t.Errorf("Audit() = %q, want %q", got, c.want)
		}
	}
}
