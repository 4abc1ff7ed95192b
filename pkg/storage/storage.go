// Package storage persists credentials and run records in a local sqlite
// database. It owns the schema; callers go through typed methods only.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so lexicographic ordering of stored timestamps
// matches chronological ordering.
const timeLayout = "2006-01-02 15:04:05.000000000Z07:00"

type DB struct {
	sql *sql.DB
}

func Open(path string) (*DB, error) {
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	// Ensure schema exists for convenience.
	if _, err := db.Exec(`
CREATE TABLE IF NOT EXISTS credentials (
  user_id           TEXT PRIMARY KEY,
  access_token_enc  TEXT NOT NULL,
  refresh_token_enc TEXT,
  expiry            DATETIME NOT NULL,
  scopes            TEXT NOT NULL DEFAULT '',
  updated_at        DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE TABLE IF NOT EXISTS runs (
  id            TEXT PRIMARY KEY,
  status        TEXT NOT NULL CHECK (status IN ('running','completed','failed')),
  created_at    DATETIME NOT NULL,
  completed_at  DATETIME,
  output_handle TEXT,
  error         TEXT,
  warnings      TEXT NOT NULL DEFAULT '[]',
  sources       TEXT NOT NULL DEFAULT '[]'
);
CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
    `); err != nil {
		return nil, err
	}
	return &DB{sql: db}, nil
}

func (d *DB) Close() error {
	if d == nil || d.sql == nil {
		return nil
	}
	return d.sql.Close()
}

// UpsertCredential replaces the stored credential for a user. Refreshes and
// re-consents both land here; last writer wins, which is safe because every
// stored token set is independently valid.
func (d *DB) UpsertCredential(ctx context.Context, c Credential) error {
	_, err := d.sql.ExecContext(ctx, `
INSERT INTO credentials(user_id, access_token_enc, refresh_token_enc, expiry, scopes, updated_at)
VALUES(?,?,?,?,?,CURRENT_TIMESTAMP)
ON CONFLICT(user_id) DO UPDATE SET
  access_token_enc = excluded.access_token_enc,
  refresh_token_enc = excluded.refresh_token_enc,
  expiry = excluded.expiry,
  scopes = excluded.scopes,
  updated_at = CURRENT_TIMESTAMP`,
		c.UserID, c.AccessTokenEnc, nullIfEmpty(c.RefreshTokenEnc), c.Expiry.UTC().Format(timeLayout), strings.Join(c.Scopes, " "))
	return err
}

// GetCredential returns the stored credential, or (nil, nil) when the user
// has never connected.
func (d *DB) GetCredential(ctx context.Context, userID string) (*Credential, error) {
	row := d.sql.QueryRowContext(ctx,
		"SELECT user_id, access_token_enc, refresh_token_enc, expiry, scopes, updated_at FROM credentials WHERE user_id = ?",
		userID)
	var c Credential
	var refreshNS sql.NullString
	var scopes, expiryStr, updatedStr string
	if err := row.Scan(&c.UserID, &c.AccessTokenEnc, &refreshNS, &expiryStr, &scopes, &updatedStr); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	c.RefreshTokenEnc = refreshNS.String
	c.Expiry = parseSQLiteTime(expiryStr)
	c.UpdatedAt = parseSQLiteTime(updatedStr)
	if scopes != "" {
		c.Scopes = strings.Split(scopes, " ")
	}
	return &c, nil
}

// CreateRun inserts a new run in the running state.
func (d *DB) CreateRun(ctx context.Context, id string, sources []string) error {
	srcJSON, err := json.Marshal(sources)
	if err != nil {
		return err
	}
	_, err = d.sql.ExecContext(ctx,
		"INSERT INTO runs(id, status, created_at, warnings, sources) VALUES(?,?,?,?,?)",
		id, RunRunning, time.Now().UTC().Format(timeLayout), "[]", string(srcJSON))
	return err
}

// CompleteRun finalizes a run as completed with its warnings and output handle.
func (d *DB) CompleteRun(ctx context.Context, id, outputHandle string, warnings []string) error {
	return d.finishRun(ctx, id, RunCompleted, outputHandle, "", warnings)
}

// FailRun finalizes a run as failed, recording the failure reason.
func (d *DB) FailRun(ctx context.Context, id string, runErr error) error {
	msg := ""
	if runErr != nil {
		msg = runErr.Error()
	}
	return d.finishRun(ctx, id, RunFailed, "", msg, nil)
}

func (d *DB) finishRun(ctx context.Context, id, status, outputHandle, errMsg string, warnings []string) error {
	if warnings == nil {
		warnings = []string{}
	}
	warnJSON, err := json.Marshal(warnings)
	if err != nil {
		return err
	}
	res, err := d.sql.ExecContext(ctx, `
UPDATE runs SET status = ?, completed_at = ?, output_handle = ?, error = ?, warnings = ?
WHERE id = ? AND status = ?`,
		status, time.Now().UTC().Format(timeLayout), nullIfEmpty(outputHandle), nullIfEmpty(errMsg), string(warnJSON), id, RunRunning)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("run %s is not in the running state", id)
	}
	return nil
}

// GetRun returns a single run by id, or (nil, nil) when absent.
func (d *DB) GetRun(ctx context.Context, id string) (*Run, error) {
	runs, err := d.queryRuns(ctx, "WHERE id = ?", 1, id)
	if err != nil || len(runs) == 0 {
		return nil, err
	}
	return &runs[0], nil
}

// ListRuns returns the most recent runs, newest first.
func (d *DB) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	return d.queryRuns(ctx, "", limit)
}

func (d *DB) queryRuns(ctx context.Context, where string, limit int, args ...interface{}) ([]Run, error) {
	q := "SELECT id, status, created_at, completed_at, output_handle, error, warnings, sources FROM runs " +
		where + " ORDER BY created_at DESC LIMIT ?"
	args = append(args, limit)
	rows, err := d.sql.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var r Run
		var createdStr string
		var completedNS, handle, errMsg sql.NullString
		var warnJSON, srcJSON string
		if err := rows.Scan(&r.ID, &r.Status, &createdStr, &completedNS, &handle, &errMsg, &warnJSON, &srcJSON); err != nil {
			return nil, err
		}
		r.CreatedAt = parseSQLiteTime(createdStr)
		if completedNS.Valid {
			r.CompletedAt = parseSQLiteTime(completedNS.String)
		}
		r.OutputHandle = handle.String
		r.Error = errMsg.String
		if err := json.Unmarshal([]byte(warnJSON), &r.Warnings); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(srcJSON), &r.Sources); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// parseSQLiteTime handles our fixed-width layout plus the CURRENT_TIMESTAMP
// format sqlite writes for defaulted columns.
func parseSQLiteTime(s string) time.Time {
	for _, layout := range []string{timeLayout, "2006-01-02 15:04:05", time.RFC3339Nano} {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

func nullIfEmpty(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}
