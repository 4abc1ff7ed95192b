// Package vault stores per-user OAuth token sets encrypted at rest and hands
// out valid access tokens, refreshing transparently when one is close to
// expiry. Decrypted tokens only ever live on the call stack.
package vault

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/oauth2"

	"github.com/sheetmerge/sheetmerge/pkg/storage"
)

// Tokens expiring within this window are refreshed before use, so a token
// handed to a caller is valid for at least the buffer duration.
const refreshBuffer = 5 * time.Minute

// ErrReauthRequired means the grant behind the stored credential was revoked
// (or no refresh token exists). Not retryable: the user must reconnect their
// account through the login flow.
var ErrReauthRequired = errors.New("authorization revoked, user must reconnect their account")

// ErrNoCredential means the user never connected an account.
var ErrNoCredential = errors.New("no stored credential for user")

// TokenSet is a decrypted OAuth token bundle as handed over by the login
// flow or the provider's refresh endpoint.
type TokenSet struct {
	AccessToken  string
	RefreshToken string // empty except at first consent
	Expiry       time.Time
	Scopes       []string
}

type Vault struct {
	db     *storage.DB
	secret string
	conf   *oauth2.Config

	now func() time.Time // stubbed in tests
}

func New(db *storage.DB, secret string, conf *oauth2.Config) *Vault {
	return &Vault{db: db, secret: secret, conf: conf, now: time.Now}
}

// Store encrypts and persists a token set for a user. When the provider
// omitted the refresh token (it issues one only at first consent) the
// previously stored refresh token is kept.
func (v *Vault) Store(ctx context.Context, userID string, ts TokenSet) error {
	accEnc, err := encrypt(v.secret, ts.AccessToken)
	if err != nil {
		return fmt.Errorf("encrypting access token: %w", err)
	}
	refEnc := ""
	if ts.RefreshToken != "" {
		if refEnc, err = encrypt(v.secret, ts.RefreshToken); err != nil {
			return fmt.Errorf("encrypting refresh token: %w", err)
		}
	} else if prev, err := v.db.GetCredential(ctx, userID); err == nil && prev != nil {
		refEnc = prev.RefreshTokenEnc
	}
	return v.db.UpsertCredential(ctx, storage.Credential{
		UserID:          userID,
		AccessTokenEnc:  accEnc,
		RefreshTokenEnc: refEnc,
		Expiry:          ts.Expiry,
		Scopes:          ts.Scopes,
	})
}

// AccessToken returns a decrypted access token valid for at least
// refreshBuffer, refreshing through the provider first when needed.
// Concurrent refreshes for the same user are allowed; each one persists an
// independently valid token set, so the race only costs a provider call.
func (v *Vault) AccessToken(ctx context.Context, userID string) (string, error) {
	cred, err := v.db.GetCredential(ctx, userID)
	if err != nil {
		return "", err
	}
	if cred == nil {
		return "", fmt.Errorf("user %s: %w", userID, ErrNoCredential)
	}

	if cred.Expiry.After(v.now().Add(refreshBuffer)) {
		return decrypt(v.secret, cred.AccessTokenEnc)
	}
	return v.refresh(ctx, cred)
}

func (v *Vault) refresh(ctx context.Context, cred *storage.Credential) (string, error) {
	if cred.RefreshTokenEnc == "" {
		return "", fmt.Errorf("user %s has no refresh token: %w", cred.UserID, ErrReauthRequired)
	}
	refreshToken, err := decrypt(v.secret, cred.RefreshTokenEnc)
	if err != nil {
		return "", fmt.Errorf("decrypting refresh token: %w", err)
	}

	tok, err := v.conf.TokenSource(ctx, &oauth2.Token{RefreshToken: refreshToken}).Token()
	if err != nil {
		var rerr *oauth2.RetrieveError
		if errors.As(err, &rerr) && rerr.ErrorCode == "invalid_grant" {
			return "", fmt.Errorf("user %s: %w", cred.UserID, ErrReauthRequired)
		}
		return "", fmt.Errorf("refreshing token for user %s: %w", cred.UserID, err)
	}

	// Providers return the refresh token only at first consent; keep the
	// stored one when the refresh response omits it.
	newRefresh := tok.RefreshToken
	if newRefresh == "" {
		newRefresh = refreshToken
	}
	if err := v.Store(ctx, cred.UserID, TokenSet{
		AccessToken:  tok.AccessToken,
		RefreshToken: newRefresh,
		Expiry:       tok.Expiry,
		Scopes:       cred.Scopes,
	}); err != nil {
		return "", fmt.Errorf("persisting refreshed token: %w", err)
	}
	return tok.AccessToken, nil
}
