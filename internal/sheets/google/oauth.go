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

const defaultTokenFile = "token.json"

// OAuthConfigFromEnv loads the OAuth client from GOOGLE_OAUTH_CLIENT_JSON or
// GOOGLE_OAUTH_CLIENT_FILE. ok is false when neither is set.
func OAuthConfigFromEnv() (cfg *oauth2.Config, ok bool, err error) {
	clientJSON := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_JSON"))
	clientFile := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_CLIENT_FILE"))

	var b []byte
	switch {
	case clientJSON != "":
		b = []byte(clientJSON)
	case clientFile != "":
		b, err = os.ReadFile(clientFile)
		if err != nil {
			return nil, true, fmt.Errorf("read oauth client file: %w", err)
		}
	default:
		return nil, false, nil
	}

	cfg, err = googleoauth.ConfigFromJSON(b, gsheet.SpreadsheetsScope)
	if err != nil {
		return nil, true, fmt.Errorf("oauth config: %w", err)
	}
	return cfg, true, nil
}

// TokenFile returns GOOGLE_OAUTH_TOKEN_FILE or token.json.
func TokenFile() string {
	if f := strings.TrimSpace(os.Getenv("GOOGLE_OAUTH_TOKEN_FILE")); f != "" {
		return f
	}
	return defaultTokenFile
}

// ReadToken loads a token saved by SaveToken.
func ReadToken(path string) (*oauth2.Token, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read token: %w", err)
	}
	var tok oauth2.Token
	if err := json.Unmarshal(b, &tok); err != nil {
		return nil, fmt.Errorf("decode token %s: %w", path, err)
	}
	if tok.RefreshToken == "" && tok.AccessToken == "" {
		return nil, errors.New("token file holds no credentials")
	}
	return &tok, nil
}

// SaveToken writes tok with owner-only permissions.
func SaveToken(path string, tok *oauth2.Token) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open token file: %w", err)
	}
	if err := json.NewEncoder(f).Encode(tok); err != nil {
		f.Close()
		return fmt.Errorf("write token: %w", err)
	}
	return f.Close()
}

// oauthTokenSource returns a refreshing token source when both an OAuth client
// and a saved token are available.
func oauthTokenSource(ctx context.Context) (oauth2.TokenSource, bool, error) {
	cfg, ok, err := OAuthConfigFromEnv()
	if !ok || err != nil {
		return nil, ok, err
	}
	tok, err := ReadToken(TokenFile())
	if err != nil {
		return nil, true, err
	}
	return cfg.TokenSource(ctx, tok), true, nil
}
