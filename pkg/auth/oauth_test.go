package auth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const installedCredentials = `{
  "installed": {
    "client_id": "id.apps.googleusercontent.com",
    "client_secret": "secret",
    "auth_uri": "https://accounts.google.com/o/oauth2/auth",
    "token_uri": "https://oauth2.googleapis.com/token",
    "redirect_uris": ["%s"]
  }
}`

func writeCredentials(t *testing.T, dir, redirect string) {
	t.Helper()
	body := []byte(strings.Replace(installedCredentials, "%s", redirect, 1))
	if err := os.WriteFile(filepath.Join(dir, ClientSecretsFile), body, 0600); err != nil {
		t.Fatal(err)
	}
}

func TestGetConfigRedirects(t *testing.T) {
	tests := []struct {
		redirect string
		want     string
	}{
		{"http://localhost", "http://localhost:6789"},
		{"http://localhost:8080/cb", "http://localhost:6789/cb"},
		{"http://127.0.0.1:6789/cb", "http://127.0.0.1:6789/cb"},
		{"urn:ietf:wg:oauth:2.0:oob", "http://localhost:6789/oauth2callback"},
		{"https://example.com/cb", "https://example.com/cb"},
	}
	for _, tt := range tests {
		dir := t.TempDir()
		writeCredentials(t, dir, tt.redirect)

		cfg, err := GetConfig(Options{Dir: dir}, Scopes)
		if err != nil {
			t.Fatalf("GetConfig(%s) failed: %v", tt.redirect, err)
		}
		if cfg.RedirectURL != tt.want {
			t.Errorf("redirect %s: got %s, want %s", tt.redirect, cfg.RedirectURL, tt.want)
		}
		if cfg.ClientID != "id.apps.googleusercontent.com" {
			t.Errorf("Unexpected client id %s", cfg.ClientID)
		}
	}
}

func TestGetConfigFromClientID(t *testing.T) {
	dir := t.TempDir()
	cfg, err := GetConfig(Options{Dir: dir, ClientID: "env-id", ClientSecret: "env-secret"}, Scopes)
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}
	if cfg.ClientID != "env-id" || cfg.ClientSecret != "env-secret" {
		t.Errorf("Unexpected client %s/%s", cfg.ClientID, cfg.ClientSecret)
	}
	if cfg.RedirectURL != "http://localhost:6789/oauth2callback" {
		t.Errorf("Unexpected redirect %s", cfg.RedirectURL)
	}

	if _, err := GetConfig(Options{Dir: dir}, Scopes); !errors.Is(err, ErrNoCredentials) {
		t.Errorf("Expected ErrNoCredentials, got %v", err)
	}
}

func TestTokenCache(t *testing.T) {
	o := Options{Dir: filepath.Join(t.TempDir(), "jarvis")}
	tok := &oauth2.Token{AccessToken: "access", RefreshToken: "refresh", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}

	if err := saveToken(o.TokenPath(), tok); err != nil {
		t.Fatalf("saveToken failed: %v", err)
	}
	info, err := os.Stat(o.TokenPath())
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("Expected 0600 token file, got %v", info.Mode().Perm())
	}

	got, err := tokenFromFile(o.TokenPath())
	if err != nil {
		t.Fatalf("tokenFromFile failed: %v", err)
	}
	if got.AccessToken != "access" || got.RefreshToken != "refresh" || !got.Expiry.Equal(tok.Expiry) {
		t.Errorf("Unexpected token %+v", got)
	}

	if err := Reset(o); err != nil {
		t.Fatalf("Reset failed: %v", err)
	}
	if err := Reset(o); err != nil {
		t.Errorf("Reset of a missing token should succeed, got %v", err)
	}
	if _, err := tokenFromFile(o.TokenPath()); err == nil {
		t.Error("Expected the token to be gone")
	}
}

type staticSource struct{ tok *oauth2.Token }

func (s staticSource) Token() (*oauth2.Token, error) { return s.tok, nil }

func TestSavingSourcePersistsRefresh(t *testing.T) {
	path := filepath.Join(t.TempDir(), TokenFile)
	old := &oauth2.Token{AccessToken: "old", RefreshToken: "r"}
	fresh := &oauth2.Token{AccessToken: "new", RefreshToken: "r"}

	src := &savingSource{base: staticSource{fresh}, last: old, path: path, log: Options{}.logger()}
	if _, err := src.Token(); err != nil {
		t.Fatal(err)
	}
	got, err := tokenFromFile(path)
	if err != nil {
		t.Fatalf("Expected the refreshed token to be saved: %v", err)
	}
	if got.AccessToken != "new" {
		t.Errorf("Expected saved access token 'new', got %s", got.AccessToken)
	}
}
