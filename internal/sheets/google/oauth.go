package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/oauth2"
	googleoauth "golang.org/x/oauth2/google"
	gsheet "google.golang.org/api/sheets/v4"
)

// OAuth user credentials are an alternative to a service account for
// spreadsheets the service account cannot be shared into.

// oauthConfigured reports whether a user token is available.
func oauthConfigured() bool {
	return strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_JSON")) != "" ||
		strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")) != ""
}

// OAuthConfigFromEnv builds the OAuth client config from
// GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE.
func OAuthConfigFromEnv() (*oauth2.Config, error) {
	b, err := readEnvOrFile("GOOGLE_OAUTH_CLIENT_JSON", "GOOGLE_OAUTH_CLIENT_FILE")
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}
	cfg, err := googleoauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, nil
}

// oauthTokenSource returns a refreshing token source for the saved user token.
func oauthTokenSource(ctx context.Context) (oauth2.TokenSource, error) {
	cfg, err := OAuthConfigFromEnv()
	if err != nil {
		return nil, err
	}
	b, err := readEnvOrFile("GOOGLE_OAUTH_TOKEN_JSON", "GOOGLE_OAUTH_TOKEN_FILE")
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("missing oauth token (set GOOGLE_OAUTH_TOKEN_JSON or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("parse oauth token: %w", err)
	}
	return cfg.TokenSource(ctx, &tok), nil
}

// SaveToken writes tok to path readable only by the owner.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	defer f.Close()
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		return fmt.Errorf("write token: %w", err)
	}
	return nil
}

// readEnvOrFile returns the inline value of jsonVar, else the contents of
// the file named by fileVar, else nil.
func readEnvOrFile(jsonVar, fileVar string) ([]byte, error) {
	if v := strings.TrimSpace(os.Getenv(jsonVar)); v != "" {
		return []byte(v), nil
	}
	path := strings.TrimSpace(os.Getenv(fileVar))
	if path == "" {
		return nil, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", fileVar, err)
	}
	return b, nil
}
