// Package auth persists backend-issued credentials and exposes them as an
// oauth2.TokenSource so API and socket clients never touch storage directly.
package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/oauth2"
)

// ErrNotLoggedIn is returned when no credential has been stored yet.
var ErrNotLoggedIn = errors.New("auth: not logged in (run `pf login`)")

// Store reads and writes the token file.
type Store struct {
	path string
}

// NewStore creates a Store backed by the given file path.
func NewStore(path string) *Store {
	return &Store{path: path}
}

// DefaultPath returns the per-user token file location.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "pfchat-token.json"
	}
	return filepath.Join(home, ".config", "pfchat", "token.json")
}

// storedToken is the on-disk token format.
type storedToken struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
	Email        string    `json:"email,omitempty"`
	IsAdmin      bool      `json:"is_admin,omitempty"`
}

// Credentials pairs an oauth2 token with account metadata.
type Credentials struct {
	Token   *oauth2.Token
	Email   string
	IsAdmin bool
}

// Save writes credentials to disk with user-only permissions.
func (s *Store) Save(creds Credentials) error {
	if creds.Token == nil || creds.Token.AccessToken == "" {
		return fmt.Errorf("auth: refusing to save empty token")
	}
	st := storedToken{
		AccessToken:  creds.Token.AccessToken,
		RefreshToken: creds.Token.RefreshToken,
		Expiry:       creds.Token.Expiry,
		Email:        creds.Email,
		IsAdmin:      creds.IsAdmin,
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("auth: marshal token: %w", err)
	}
	if dir := filepath.Dir(s.path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("auth: create token dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o600); err != nil {
		return fmt.Errorf("auth: write token file: %w", err)
	}
	return nil
}

// Load reads credentials from disk. Returns ErrNotLoggedIn if no token file exists.
func (s *Store) Load() (Credentials, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return Credentials{}, ErrNotLoggedIn
		}
		return Credentials{}, fmt.Errorf("auth: read token file: %w", err)
	}
	var st storedToken
	if err := json.Unmarshal(data, &st); err != nil {
		return Credentials{}, fmt.Errorf("auth: parse token file: %w", err)
	}
	if st.AccessToken == "" {
		return Credentials{}, ErrNotLoggedIn
	}
	return Credentials{
		Token: &oauth2.Token{
			AccessToken:  st.AccessToken,
			RefreshToken: st.RefreshToken,
			Expiry:       st.Expiry,
			TokenType:    "Bearer",
		},
		Email:   st.Email,
		IsAdmin: st.IsAdmin,
	}, nil
}

// Clear deletes the stored token. Clearing an absent token is not an error.
func (s *Store) Clear() error {
	if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("auth: remove token file: %w", err)
	}
	return nil
}

// TokenSource returns an oauth2.TokenSource that re-reads the store on each
// call, so a token refreshed by another process is picked up.
func (s *Store) TokenSource() oauth2.TokenSource {
	return storeSource{store: s}
}

type storeSource struct {
	store *Store
}

func (ss storeSource) Token() (*oauth2.Token, error) {
	creds, err := ss.store.Load()
	if err != nil {
		return nil, err
	}
	return creds.Token, nil
}
