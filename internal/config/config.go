package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds all configuration for the web front.
type Config struct {
	Port      string `mapstructure:"PORT"`
	AppMode   string `mapstructure:"APP_MODE"`
	StaticDir string `mapstructure:"STATIC_DIR"`
	SiteURL   string `mapstructure:"SITE_URL"`

	// CatalogFile, when set, serves the course catalog from a JSON file
	// instead of the backend.
	CatalogFile string `mapstructure:"CATALOG_FILE"`

	// Upstream learning backend.
	BackendURL     string        `mapstructure:"BACKEND_URL"`
	BackendTimeout time.Duration `mapstructure:"BACKEND_TIMEOUT"`

	// Visitor sessions.
	SessionSecret string        `mapstructure:"SESSION_SECRET"`
	SessionTTL    time.Duration `mapstructure:"SESSION_TTL"`
	DatabaseURL   string        `mapstructure:"DATABASE_URL"`

	// Identity provider (authorization code flow).
	OAuthClientID     string `mapstructure:"OAUTH_CLIENT_ID"`
	OAuthClientSecret string `mapstructure:"OAUTH_CLIENT_SECRET"`
	OAuthAuthURL      string `mapstructure:"OAUTH_AUTH_URL"`
	OAuthTokenURL     string `mapstructure:"OAUTH_TOKEN_URL"`
	OAuthRedirectURL  string `mapstructure:"OAUTH_REDIRECT_URL"`

	// Gemini.
	GeminiAPIKey     string `mapstructure:"GEMINI_API_KEY"`
	GeminiModel      string `mapstructure:"GEMINI_MODEL"`
	GeminiImageModel string `mapstructure:"GEMINI_IMAGE_MODEL"`
}

var keys = []string{
	"PORT", "APP_MODE", "STATIC_DIR", "SITE_URL", "CATALOG_FILE",
	"BACKEND_URL", "BACKEND_TIMEOUT",
	"SESSION_SECRET", "SESSION_TTL", "DATABASE_URL",
	"OAUTH_CLIENT_ID", "OAUTH_CLIENT_SECRET", "OAUTH_AUTH_URL", "OAUTH_TOKEN_URL", "OAUTH_REDIRECT_URL",
	"GEMINI_API_KEY", "GEMINI_MODEL", "GEMINI_IMAGE_MODEL",
}

// Load reads .env (if present) and the process environment.
func Load() (*Config, error) {
	// .env is optional in containers where the environment is injected directly.
	_ = godotenv.Load()
	return FromViper(viper.New())
}

// FromViper binds the known keys on v and validates the result.
func FromViper(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("PORT", "8080")
	v.SetDefault("APP_MODE", "dev")
	v.SetDefault("STATIC_DIR", "./web/static")
	v.SetDefault("BACKEND_TIMEOUT", "30s")
	v.SetDefault("SESSION_TTL", "720h")
	v.SetDefault("GEMINI_MODEL", "gemini-2.5-flash")
	v.SetDefault("GEMINI_IMAGE_MODEL", "gemini-2.5-flash-image")

	for _, k := range keys {
		if err := v.BindEnv(k); err != nil {
			return nil, fmt.Errorf("bind %s: %w", k, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.BackendURL) == "" {
		return errors.New("BACKEND_URL is required")
	}
	if len(c.SessionSecret) < 32 {
		return errors.New("SESSION_SECRET is required and must be at least 32 bytes")
	}
	if c.BackendTimeout <= 0 {
		return errors.New("BACKEND_TIMEOUT must be positive")
	}
	return nil
}

// SecureCookies is true outside dev mode.
func (c *Config) SecureCookies() bool {
	return !strings.EqualFold(c.AppMode, "dev")
}

// OAuthConfigured reports whether every identity provider setting is present.
func (c *Config) OAuthConfigured() bool {
	return c.OAuthClientID != "" && c.OAuthAuthURL != "" && c.OAuthTokenURL != "" && c.OAuthRedirectURL != ""
}
