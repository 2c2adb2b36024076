package gclient

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"golang.org/x/oauth2"
)

// storedCredentials is the on-disk shape of ~/.gemini/oauth_creds.json,
// owned and written by a separate interactive auth flow. Acquisition
// (the interactive consent flow) is out of scope here; this type only
// describes the file format so refresh can be driven through the
// standard oauth2 token-refresh machinery.
type storedCredentials struct {
	ClientID     string `json:"client_id"`
	ClientSecret string `json:"client_secret"`
	RefreshToken string `json:"refresh_token"`
	AccessToken  string `json:"access_token,omitempty"`
	TokenURI     string `json:"token_uri,omitempty"`
}

// FileTokenSource implements TokenSource by loading a refresh token from
// disk and driving oauth2's refresh-grant exchange, caching the live
// access token itself so Invalidate can force a renewal independent of
// the cached token's apparent expiry (the oauth2 package's own
// ReuseTokenSource wrapper offers no external invalidation hook).
type FileTokenSource struct {
	mu           sync.Mutex
	cfg          *oauth2.Config
	refreshToken string
	cached       *oauth2.Token
}

// NewFileTokenSource reads path (the credentials file) and builds a
// TokenSource around its refresh token.
func NewFileTokenSource(path string) (*FileTokenSource, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("gclient: read credentials file %s: %w", path, err)
	}

	var creds storedCredentials
	if err := json.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("gclient: parse credentials file %s: %w", path, err)
	}
	if creds.RefreshToken == "" {
		return nil, fmt.Errorf("gclient: credentials file %s has no refresh_token", path)
	}

	tokenURL := creds.TokenURI
	if tokenURL == "" {
		tokenURL = "https://oauth2.googleapis.com/token"
	}

	return &FileTokenSource{
		cfg: &oauth2.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			Endpoint:     oauth2.Endpoint{TokenURL: tokenURL},
		},
		refreshToken: creds.RefreshToken,
		cached:       &oauth2.Token{AccessToken: creds.AccessToken, RefreshToken: creds.RefreshToken},
	}, nil
}

// Token returns a current bearer token, refreshing it if the cached one
// is missing or expired.
func (f *FileTokenSource) Token(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.cached.Valid() {
		return f.cached.AccessToken, nil
	}

	tok, err := f.cfg.TokenSource(ctx, &oauth2.Token{RefreshToken: f.refreshToken}).Token()
	if err != nil {
		return "", fmt.Errorf("gclient: refresh token: %w", err)
	}
	f.cached = tok
	return tok.AccessToken, nil
}

// Invalidate drops the cached access token, forcing the next Token call
// to refresh regardless of its apparent expiry. Called by the client's
// 401 handshake retry.
func (f *FileTokenSource) Invalidate() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cached = &oauth2.Token{RefreshToken: f.refreshToken}
}
