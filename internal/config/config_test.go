package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromViper_DefaultsAndRequired(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://backend.example")
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")

	cfg, err := FromViper(viper.New())
	require.NoError(t, err)
	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, 30*time.Second, cfg.BackendTimeout)
	assert.Equal(t, 720*time.Hour, cfg.SessionTTL)
	assert.Equal(t, "gemini-2.5-flash", cfg.GeminiModel)
	assert.False(t, cfg.OAuthConfigured())
}

func TestFromViper_RejectsShortSecret(t *testing.T) {
	t.Setenv("BACKEND_URL", "https://backend.example")
	t.Setenv("SESSION_SECRET", "short")

	_, err := FromViper(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "SESSION_SECRET")
}

func TestFromViper_RequiresBackend(t *testing.T) {
	t.Setenv("BACKEND_URL", "")
	t.Setenv("SESSION_SECRET", "0123456789abcdef0123456789abcdef")

	_, err := FromViper(viper.New())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BACKEND_URL")
}

func TestOAuthConfigured(t *testing.T) {
	cfg := Config{
		OAuthClientID:    "id",
		OAuthAuthURL:     "https://idp/authorize",
		OAuthTokenURL:    "https://idp/token",
		OAuthRedirectURL: "https://app/auth/callback",
	}
	assert.True(t, cfg.OAuthConfigured())
	cfg.OAuthTokenURL = ""
	assert.False(t, cfg.OAuthConfigured())
}
