// Package source turns heterogeneous input descriptors (uploaded workbook
// bytes, remote tabular files, native spreadsheet tabs) into the one
// normalized table representation the rest of the pipeline consumes.
package source

import (
	"context"
	"fmt"

	"github.com/sheetmerge/sheetmerge/pkg/remote"
	"github.com/sheetmerge/sheetmerge/pkg/table"
)

// Descriptor is a sealed set of input-source variants. Slot is the workflow
// slot id used by join-key mappings and output-column references.
type Descriptor interface {
	// Slot returns the input slot id this descriptor fills.
	Slot() string
	// Audit returns the string recorded on the run record for this input.
	Audit() string

	isDescriptor()
}

// Local is an uploaded workbook held in memory.
type Local struct {
	SlotID    string
	Filename  string
	Data      []byte
	Tab       string // empty = first tab
	HeaderRow int    // 1-based
}

// RemoteFile is a cloud-stored binary tabular file.
type RemoteFile struct {
	SlotID    string
	FileID    string
	MimeType  string
	HeaderRow int // 1-based
}

// RemoteSheet is a tab of a native cloud spreadsheet document.
type RemoteSheet struct {
	SlotID        string
	SpreadsheetID string
	Tab           string // empty = first tab
}

func (l Local) Slot() string       { return l.SlotID }
func (r RemoteFile) Slot() string  { return r.SlotID }
func (r RemoteSheet) Slot() string { return r.SlotID }

func (l Local) Audit() string       { return l.Filename }
func (r RemoteFile) Audit() string  { return "remote:" + r.FileID }
func (r RemoteSheet) Audit() string { return "remote:" + r.SpreadsheetID }

func (Local) isDescriptor()       {}
func (RemoteFile) isDescriptor()  {}
func (RemoteSheet) isDescriptor() {}

// SheetReader is the slice of the remote client the resolver needs.
type SheetReader interface {
	DownloadTable(ctx context.Context, fileID, mimeType string, headerRow int) (*table.Table, error)
	ReadSheet(ctx context.Context, spreadsheetID, tab string) (*table.Table, error)
	FileMetadata(ctx context.Context, fileID string) (*remote.Metadata, error)
}

type Resolver struct {
	Remote SheetReader
}

// Resolve normalizes one descriptor into a table. All three variants funnel
// through the same label-stringification path, so identical data produces
// identical join keys regardless of where it came from.
func (r *Resolver) Resolve(ctx context.Context, d Descriptor) (*table.Table, error) {
	switch s := d.(type) {
	case Local:
		return table.FromWorkbook(s.Data, s.Tab, s.HeaderRow)
	case RemoteFile:
		mime := s.MimeType
		if mime == "" {
			meta, err := r.Remote.FileMetadata(ctx, s.FileID)
			if err != nil {
				return nil, err
			}
			mime = meta.MimeType
		}
		return r.Remote.DownloadTable(ctx, s.FileID, mime, s.HeaderRow)
	case RemoteSheet:
		return r.Remote.ReadSheet(ctx, s.SpreadsheetID, s.Tab)
	default:
		return nil, fmt.Errorf("unknown source descriptor %T", d)
	}
}

// Ensure the remote client keeps satisfying the resolver's view of it.
var _ SheetReader = (*remote.Client)(nil)
