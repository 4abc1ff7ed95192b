package storage

import "time"

// Credential is the persisted, encrypted form of a user's OAuth token set.
// Token fields hold ciphertext blobs; decryption is the vault's job.
type Credential struct {
	UserID          string
	AccessTokenEnc  string
	RefreshTokenEnc string // empty when the provider never issued one
	Expiry          time.Time
	Scopes          []string
	UpdatedAt       time.Time
}

// Run statuses. A run transitions running -> completed or running -> failed
// exactly once and is never mutated afterwards.
const (
	RunRunning   = "running"
	RunCompleted = "completed"
	RunFailed    = "failed"
)

// Run is one workflow execution record.
type Run struct {
	ID           string
	Status       string
	CreatedAt    time.Time
	CompletedAt  time.Time // zero while running
	OutputHandle string
	Error        string
	Warnings     []string
	Sources      []string // audit strings: filename or "remote:<file-id>"
}
