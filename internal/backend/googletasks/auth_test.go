package googletasks

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"offtask/internal/config"
)

const testClientJSON = `{"installed":{"client_id":"id","client_secret":"secret","redirect_uris":["http://localhost"]}}`

func TestSaveLoadToken(t *testing.T) {
	cfg := &config.Config{Dir: t.TempDir()}
	require.NoError(t, SaveToken(cfg.TokenPath(), &oauth2.Token{AccessToken: "a", RefreshToken: "r"}))

	info, err := os.Stat(cfg.TokenPath())
	require.NoError(t, err)
	require.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	tok, err := LoadToken(cfg.TokenPath())
	require.NoError(t, err)
	require.Equal(t, "r", tok.RefreshToken)
}

func TestOAuthConfig_Errors(t *testing.T) {
	cfg := &config.Config{Dir: t.TempDir()}
	_, err := OAuthConfig(cfg)
	require.ErrorContains(t, err, "failed to read oauth_client.json")

	require.NoError(t, os.WriteFile(cfg.OAuthClientPath(), []byte("{}"), 0o600))
	_, err = OAuthConfig(cfg)
	require.ErrorContains(t, err, "invalid oauth_client.json")
}

func TestTokenUsable(t *testing.T) {
	cfg := &config.Config{Dir: t.TempDir()}
	require.False(t, TokenUsable(context.Background(), cfg), "no files")

	require.NoError(t, os.WriteFile(cfg.OAuthClientPath(), []byte(testClientJSON), 0o600))
	require.NoError(t, SaveToken(cfg.TokenPath(), &oauth2.Token{AccessToken: "a"}))
	require.False(t, TokenUsable(context.Background(), cfg), "missing refresh token")

	// An access token without expiry is valid without contacting the server.
	require.NoError(t, SaveToken(cfg.TokenPath(), &oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	require.True(t, TokenUsable(context.Background(), cfg))
}

func TestNew_RequiresLogin(t *testing.T) {
	cfg := &config.Config{Dir: t.TempDir()}
	require.NoError(t, os.WriteFile(cfg.OAuthClientPath(), []byte(testClientJSON), 0o600))

	_, err := New(context.Background(), cfg)
	require.ErrorContains(t, err, "failed to read token.json")

	require.NoError(t, SaveToken(cfg.TokenPath(), &oauth2.Token{AccessToken: "a", RefreshToken: "r"}))
	c, err := New(context.Background(), cfg)
	require.NoError(t, err)
	require.Equal(t, DefaultListID, c.listID)
}
