package google

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/oauth2"
)

const testOAuthClient = `{"installed":{"client_id":"id.apps.googleusercontent.com","client_secret":"secret","auth_uri":"https://accounts.google.com/o/oauth2/auth","token_uri":"https://oauth2.googleapis.com/token","redirect_uris":["http://localhost"]}}`

func TestOAuthConfigFromEnv_Unset(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_FILE", "")

	cfg, ok, err := OAuthConfigFromEnv()
	if ok || err != nil || cfg != nil {
		t.Fatalf("expected no config, got %v %v %v", cfg, ok, err)
	}
}

func TestOAuthConfigFromEnv_JSON(t *testing.T) {
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", testOAuthClient)

	cfg, ok, err := OAuthConfigFromEnv()
	if err != nil || !ok {
		t.Fatalf("unexpected %v %v", ok, err)
	}
	if cfg.ClientID != "id.apps.googleusercontent.com" {
		t.Fatalf("unexpected client id %q", cfg.ClientID)
	}
}

func TestTokenRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "token.json")
	tok := &oauth2.Token{AccessToken: "a", RefreshToken: "r", Expiry: time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)}

	if err := SaveToken(path, tok); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := ReadToken(path)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if got.RefreshToken != "r" || !got.Expiry.Equal(tok.Expiry) {
		t.Fatalf("unexpected token %+v", got)
	}
}

func TestNewSheetsService_OAuthWithoutToken(t *testing.T) {
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_JSON", "")
	t.Setenv("GOOGLE_SERVICE_ACCOUNT_FILE", "")
	t.Setenv("GOOGLE_APPLICATION_CREDENTIALS", "")
	t.Setenv("GOOGLE_OAUTH_CLIENT_JSON", testOAuthClient)
	t.Setenv("GOOGLE_OAUTH_TOKEN_FILE", filepath.Join(t.TempDir(), "missing.json"))

	_, err := newSheetsService(context.Background())
	if err == nil || !strings.Contains(err.Error(), "read token") {
		t.Fatalf("unexpected error: %v", err)
	}
}
