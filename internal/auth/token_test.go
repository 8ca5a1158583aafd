package auth

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "nested", "token.json"))
}

func TestStore_SaveAndLoad(t *testing.T) {
	s := newTestStore(t)

	creds := Credentials{
		Token: &oauth2.Token{
			AccessToken:  "at-123",
			RefreshToken: "rt-456",
			Expiry:       time.Now().Add(time.Hour).Truncate(time.Second),
		},
		Email:   "alice@example.com",
		IsAdmin: true,
	}
	if err := s.Save(creds); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := s.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if got.Token.AccessToken != "at-123" {
		t.Errorf("AccessToken = %q, want at-123", got.Token.AccessToken)
	}
	if got.Token.RefreshToken != "rt-456" {
		t.Errorf("RefreshToken = %q, want rt-456", got.Token.RefreshToken)
	}
	if got.Email != "alice@example.com" {
		t.Errorf("Email = %q", got.Email)
	}
	if !got.IsAdmin {
		t.Error("IsAdmin = false, want true")
	}
}

func TestStore_LoadMissingFile(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load()
	if !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("err = %v, want ErrNotLoggedIn", err)
	}
}

func TestStore_SaveRejectsEmptyToken(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(Credentials{Token: &oauth2.Token{}}); err == nil {
		t.Fatal("expected error for empty access token")
	}
	if err := s.Save(Credentials{}); err == nil {
		t.Fatal("expected error for nil token")
	}
}

func TestStore_Clear(t *testing.T) {
	s := newTestStore(t)
	creds := Credentials{Token: &oauth2.Token{AccessToken: "at"}}
	if err := s.Save(creds); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := s.Clear(); err != nil {
		t.Fatalf("clear: %v", err)
	}
	if _, err := s.Load(); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("after clear, err = %v, want ErrNotLoggedIn", err)
	}
	// Clearing twice is fine.
	if err := s.Clear(); err != nil {
		t.Errorf("second clear: %v", err)
	}
}

func TestStore_FilePermissions(t *testing.T) {
	s := newTestStore(t)
	if err := s.Save(Credentials{Token: &oauth2.Token{AccessToken: "at"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	info, err := os.Stat(s.path)
	if err != nil {
		t.Fatalf("stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Errorf("token file mode = %o, want 600", perm)
	}
}

func TestTokenSource_ReflectsStoreState(t *testing.T) {
	s := newTestStore(t)
	src := s.TokenSource()

	if _, err := src.Token(); !errors.Is(err, ErrNotLoggedIn) {
		t.Errorf("empty store: err = %v, want ErrNotLoggedIn", err)
	}

	if err := s.Save(Credentials{Token: &oauth2.Token{AccessToken: "fresh"}}); err != nil {
		t.Fatalf("save: %v", err)
	}
	tok, err := src.Token()
	if err != nil {
		t.Fatalf("token: %v", err)
	}
	if tok.AccessToken != "fresh" {
		t.Errorf("AccessToken = %q, want fresh", tok.AccessToken)
	}
}
