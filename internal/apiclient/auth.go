package apiclient

import (
	"context"
	"fmt"
	"net/http"

	"sprint-academy/internal/models"
)

// SessionTokens are the identity provider tokens handed to the backend.
type SessionTokens struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Credentials is the email/password pair.
type Credentials struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
	Name     string `json:"name,omitempty"`
}

// SaveSession stores the exchanged provider session on the backend, which
// answers with the session cookies.
func (c *Client) SaveSession(ctx context.Context, tokens SessionTokens) error {
	return c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/auth/session", Body: tokens, NoRetry: true}, nil)
}

// Refresh renews the backend session cookie.
func (c *Client) Refresh(ctx context.Context) error {
	return c.refresh(ctx)
}

// Login signs in with email and password.
func (c *Client) Login(ctx context.Context, creds Credentials) error {
	if err := c.validate.Struct(creds); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}
	return c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/auth/login", Body: creds, NoRetry: true}, nil)
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, creds Credentials) error {
	if err := c.validate.Struct(creds); err != nil {
		return fmt.Errorf("invalid credentials: %w", err)
	}
	return c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/auth/register", Body: creds, NoRetry: true}, nil)
}

// Logout ends the backend session.
func (c *Client) Logout(ctx context.Context) error {
	return c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/auth/logout", NoRetry: true}, nil)
}

// Me loads and validates the signed-in profile.
func (c *Client) Me(ctx context.Context) (models.Profile, error) {
	var p models.Profile
	if err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/api/me"}, &p); err != nil {
		return models.Profile{}, err
	}
	if err := c.validate.Struct(p); err != nil {
		return models.Profile{}, fmt.Errorf("invalid profile payload: %w", err)
	}
	return p, nil
}

// AcceptConsent records accepted documents and returns the updated profile.
func (c *Client) AcceptConsent(ctx context.Context, consent models.Consent) (models.Profile, error) {
	body := map[string]bool{"terms": consent.Terms, "privacy": consent.Privacy}
	var p models.Profile
	if err := c.Call(ctx, Request{Method: http.MethodPost, Path: "/api/me/consent", Body: body}, &p); err != nil {
		return models.Profile{}, err
	}
	if err := c.validate.Struct(p); err != nil {
		return models.Profile{}, fmt.Errorf("invalid profile payload: %w", err)
	}
	return p, nil
}
