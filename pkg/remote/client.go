// Package remote is a resilient client for the Drive/Sheets REST surface.
// Every call authenticates with a bearer token from the vault, retries
// transient outcomes with exponential backoff, and maps terminal outcomes
// to a small typed error taxonomy.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"
	"github.com/tidwall/gjson"

	"github.com/sheetmerge/sheetmerge/pkg/table"
	"github.com/sheetmerge/sheetmerge/pkg/vault"
)

const (
	defaultDriveBaseURL  = "https://www.googleapis.com/drive/v3"
	defaultSheetsBaseURL = "https://sheets.googleapis.com/v4"

	// 5 attempts total, 2s..60s exponential backoff.
	retryMax     = 4
	retryWaitMin = 2 * time.Second
	retryWaitMax = 60 * time.Second

	MimeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	MimeCSV  = "text/csv"
)

// TokenSource yields a currently-valid access token for a user. Satisfied by
// *vault.Vault.
type TokenSource interface {
	AccessToken(ctx context.Context, userID string) (string, error)
}

type Client struct {
	http   *retryablehttp.Client
	tokens TokenSource
	userID string

	// Overridable in tests.
	DriveBaseURL  string
	SheetsBaseURL string
}

func NewClient(tokens TokenSource, userID string) *Client {
	rc := retryablehttp.NewClient()
	rc.RetryMax = retryMax
	rc.RetryWaitMin = retryWaitMin
	rc.RetryWaitMax = retryWaitMax
	rc.Logger = nil
	rc.CheckRetry = checkRetry
	// Hand back the final response so status codes can be mapped to the
	// error taxonomy instead of retryablehttp's generic give-up error.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return &Client{
		http:          rc,
		tokens:        tokens,
		userID:        userID,
		DriveBaseURL:  defaultDriveBaseURL,
		SheetsBaseURL: defaultSheetsBaseURL,
	}
}

// checkRetry retries transport failures, rate limits and server-side errors.
// Permission and not-found outcomes are terminal and fail immediately.
func checkRetry(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err != nil {
		return true, nil
	}
	if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
		return true, nil
	}
	return false, nil
}

func (c *Client) do(ctx context.Context, method, rawURL, resource string, body []byte) ([]byte, error) {
	token, err := c.tokens.AccessToken(ctx, c.userID)
	if err != nil {
		return nil, err
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, rawURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+token)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &APIError{Kind: ErrRemoteUnavailable, Resource: resource, Message: err.Error()}
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode >= 400 {
		return nil, mapStatus(resp.StatusCode, resource, data)
	}
	return data, nil
}

func mapStatus(status int, resource string, body []byte) error {
	msg := gjson.GetBytes(body, "error.message").Str
	if msg == "" {
		msg = http.StatusText(status)
	}
	apiErr := &APIError{Resource: resource, Message: msg, Status: status}
	switch {
	case status == http.StatusUnauthorized:
		apiErr.Kind = vault.ErrReauthRequired
	case status == http.StatusForbidden:
		apiErr.Kind = ErrPermissionDenied
	case status == http.StatusNotFound:
		apiErr.Kind = ErrNotFound
	case status == http.StatusTooManyRequests:
		apiErr.Kind = ErrRateLimited
	default:
		apiErr.Kind = ErrRemoteUnavailable
	}
	return apiErr
}

// Metadata describes a remote file.
type Metadata struct {
	ID       string
	Name     string
	MimeType string
	Modified time.Time
	Owner    string
	ViewLink string
}

func (c *Client) FileMetadata(ctx context.Context, fileID string) (*Metadata, error) {
	u := fmt.Sprintf("%s/files/%s?fields=id,name,mimeType,modifiedTime,owners,webViewLink&supportsAllDrives=true",
		c.DriveBaseURL, url.PathEscape(fileID))
	body, err := c.do(ctx, http.MethodGet, u, "file "+fileID, nil)
	if err != nil {
		return nil, err
	}
	m := &Metadata{
		ID:       gjson.GetBytes(body, "id").Str,
		Name:     gjson.GetBytes(body, "name").Str,
		MimeType: gjson.GetBytes(body, "mimeType").Str,
		Owner:    gjson.GetBytes(body, "owners.0.emailAddress").Str,
		ViewLink: gjson.GetBytes(body, "webViewLink").Str,
	}
	if ts := gjson.GetBytes(body, "modifiedTime").Str; ts != "" {
		m.Modified, _ = time.Parse(time.RFC3339, ts)
	}
	return m, nil
}

// DownloadTable fetches a binary file and parses it as the given tabular
// mime type. Column labels are stringified uniformly so join keys match
// across source types.
func (c *Client) DownloadTable(ctx context.Context, fileID, mimeType string, headerRow int) (*table.Table, error) {
	u := fmt.Sprintf("%s/files/%s?alt=media&supportsAllDrives=true", c.DriveBaseURL, url.PathEscape(fileID))
	data, err := c.do(ctx, http.MethodGet, u, "file "+fileID, nil)
	if err != nil {
		return nil, err
	}
	switch mimeType {
	case MimeXLSX:
		return table.FromWorkbook(data, "", headerRow)
	case MimeCSV:
		return table.FromCSV(data, headerRow)
	default:
		return nil, fmt.Errorf("unsupported tabular format %q for file %s", mimeType, fileID)
	}
}

// ReadSheet reads a native spreadsheet tab as a cell grid. The first row is
// the header; short rows are right-padded with nulls. An empty grid yields
// zero columns and zero rows; a header-only grid yields columns and no rows.
func (c *Client) ReadSheet(ctx context.Context, spreadsheetID, tab string) (*table.Table, error) {
	if tab == "" {
		tabs, err := c.ListTabs(ctx, spreadsheetID)
		if err != nil {
			return nil, err
		}
		if len(tabs) == 0 {
			return &table.Table{}, nil
		}
		tab = tabs[0].Title
	}
	u := fmt.Sprintf("%s/spreadsheets/%s/values/%s?valueRenderOption=UNFORMATTED_VALUE",
		c.SheetsBaseURL, url.PathEscape(spreadsheetID), url.PathEscape(tab))
	body, err := c.do(ctx, http.MethodGet, u, "spreadsheet "+spreadsheetID, nil)
	if err != nil {
		return nil, err
	}

	values := gjson.GetBytes(body, "values").Array()
	if len(values) == 0 {
		return &table.Table{}, nil
	}
	t := &table.Table{}
	for _, h := range values[0].Array() {
		t.Columns = append(t.Columns, table.Stringify(h.Value()))
	}
	for _, row := range values[1:] {
		var cells []table.Cell
		for _, v := range row.Array() {
			if v.Type == gjson.Null {
				cells = append(cells, table.Null())
			} else {
				cells = append(cells, table.S(table.Stringify(v.Value())))
			}
		}
		t.Rows = append(t.Rows, cells)
	}
	t.Pad()
	return t, nil
}

// Tab describes one sheet tab within a spreadsheet.
type Tab struct {
	Title   string
	Index   int64
	SheetID int64
}

// ListTabs returns the spreadsheet's tabs in display order.
func (c *Client) ListTabs(ctx context.Context, spreadsheetID string) ([]Tab, error) {
	u := fmt.Sprintf("%s/spreadsheets/%s?fields=sheets(properties(sheetId,title,index))",
		c.SheetsBaseURL, url.PathEscape(spreadsheetID))
	body, err := c.do(ctx, http.MethodGet, u, "spreadsheet "+spreadsheetID, nil)
	if err != nil {
		return nil, err
	}
	var tabs []Tab
	for _, s := range gjson.GetBytes(body, "sheets").Array() {
		tabs = append(tabs, Tab{
			Title:   s.Get("properties.title").Str,
			Index:   s.Get("properties.index").Int(),
			SheetID: s.Get("properties.sheetId").Int(),
		})
	}
	return tabs, nil
}

// CreateSpreadsheet creates a new native spreadsheet holding the table and
// returns its id and view URL.
func (c *Client) CreateSpreadsheet(ctx context.Context, title string, t *table.Table) (id, viewURL string, err error) {
	payload, err := json.Marshal(map[string]interface{}{
		"properties": map[string]string{"title": title},
	})
	if err != nil {
		return "", "", err
	}
	body, err := c.do(ctx, http.MethodPost, c.SheetsBaseURL+"/spreadsheets", "spreadsheet "+title, payload)
	if err != nil {
		return "", "", err
	}
	id = gjson.GetBytes(body, "spreadsheetId").Str
	viewURL = gjson.GetBytes(body, "spreadsheetUrl").Str
	if err := c.OverwriteSheet(ctx, id, t); err != nil {
		return "", "", err
	}
	return id, viewURL, nil
}

// OverwriteSheet replaces the sheet's contents with the table in a single
// values-update call. USER_ENTERED input makes numeric- and date-looking
// strings typed values instead of literal text. The write covers exactly the
// table's extent: cells outside it survive, so a sheet that previously held
// a larger table keeps its stale tail. Export always targets a freshly
// created spreadsheet, where that cannot happen.
func (c *Client) OverwriteSheet(ctx context.Context, spreadsheetID string, t *table.Table) error {
	values := make([][]interface{}, 0, len(t.Rows)+1)
	header := make([]interface{}, len(t.Columns))
	for i, col := range t.Columns {
		header[i] = col
	}
	values = append(values, header)
	for _, row := range t.Rows {
		cells := make([]interface{}, len(row))
		for i, cell := range row {
			if cell.Null {
				cells[i] = nil
			} else {
				cells[i] = cell.Val
			}
		}
		values = append(values, cells)
	}
	payload, err := json.Marshal(map[string]interface{}{"values": values})
	if err != nil {
		return err
	}
	u := fmt.Sprintf("%s/spreadsheets/%s/values/A1?valueInputOption=USER_ENTERED",
		c.SheetsBaseURL, url.PathEscape(spreadsheetID))
	_, err = c.do(ctx, http.MethodPut, u, "spreadsheet "+spreadsheetID, payload)
	return err
}
