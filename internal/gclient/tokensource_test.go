package gclient

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeCredsFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "oauth_creds.json")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write creds file: %v", err)
	}
	return path
}

func TestNewFileTokenSourceRejectsMissingRefreshToken(t *testing.T) {
	path := writeCredsFile(t, `{"client_id":"id","client_secret":"secret"}`)

	_, err := NewFileTokenSource(path)
	if err == nil {
		t.Fatal("expected an error for a credentials file with no refresh_token")
	}
}

func TestFileTokenSourceReturnsCachedAccessTokenWithoutARefresh(t *testing.T) {
	calls := 0
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Write([]byte(`{"access_token":"should-not-be-used","token_type":"Bearer"}`))
	}))
	defer tokenServer.Close()

	path := writeCredsFile(t, `{
		"client_id": "id",
		"client_secret": "secret",
		"refresh_token": "refresh-1",
		"access_token": "preloaded-access-token",
		"token_uri": "`+tokenServer.URL+`"
	}`)

	source, err := NewFileTokenSource(path)
	if err != nil {
		t.Fatalf("NewFileTokenSource: %v", err)
	}

	token, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "preloaded-access-token" {
		t.Fatalf("token = %q", token)
	}
	if calls != 0 {
		t.Fatalf("expected no refresh-grant calls, got %d", calls)
	}
}

func TestFileTokenSourceRefreshesWhenNoAccessTokenIsCached(t *testing.T) {
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := readAll(r)
		if !strings.Contains(body, "refresh-1") {
			t.Errorf("refresh request missing refresh token: %s", body)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"fresh-access-token","token_type":"Bearer"}`))
	}))
	defer tokenServer.Close()

	path := writeCredsFile(t, `{
		"client_id": "id",
		"client_secret": "secret",
		"refresh_token": "refresh-1",
		"token_uri": "`+tokenServer.URL+`"
	}`)

	source, err := NewFileTokenSource(path)
	if err != nil {
		t.Fatalf("NewFileTokenSource: %v", err)
	}

	token, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("Token: %v", err)
	}
	if token != "fresh-access-token" {
		t.Fatalf("token = %q", token)
	}
}

func TestFileTokenSourceInvalidateForcesRefreshOnNextToken(t *testing.T) {
	calls := 0
	tokenServer := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"access_token":"renewed-token","token_type":"Bearer"}`))
	}))
	defer tokenServer.Close()

	path := writeCredsFile(t, `{
		"client_id": "id",
		"client_secret": "secret",
		"refresh_token": "refresh-1",
		"access_token": "stale-token",
		"token_uri": "`+tokenServer.URL+`"
	}`)

	source, err := NewFileTokenSource(path)
	if err != nil {
		t.Fatalf("NewFileTokenSource: %v", err)
	}

	if _, err := source.Token(context.Background()); err != nil {
		t.Fatalf("Token: %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected the preloaded token to be used first, got %d refresh calls", calls)
	}

	source.Invalidate()

	token, err := source.Token(context.Background())
	if err != nil {
		t.Fatalf("Token after Invalidate: %v", err)
	}
	if token != "renewed-token" {
		t.Fatalf("token = %q", token)
	}
	if calls != 1 {
		t.Fatalf("expected exactly one refresh call after Invalidate, got %d", calls)
	}
}

func readAll(r *http.Request) (string, error) {
	b, err := io.ReadAll(r.Body)
	return string(b), err
}
