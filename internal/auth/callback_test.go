package auth

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprint-academy/internal/apiclient"
	"sprint-academy/internal/models"
)

type providerFunc func(ctx context.Context, code, verifier string) (*Session, error)

func (f providerFunc) Exchange(ctx context.Context, code, verifier string) (*Session, error) {
	return f(ctx, code, verifier)
}

type fakeBackend struct {
	saved   []apiclient.SessionTokens
	saveErr error
	profile models.Profile
	meErr   error
}

func (b *fakeBackend) SaveSession(ctx context.Context, tokens apiclient.SessionTokens) error {
	b.saved = append(b.saved, tokens)
	return b.saveErr
}

func (b *fakeBackend) Me(ctx context.Context) (models.Profile, error) {
	return b.profile, b.meErr
}

type fakeNav struct {
	mu   sync.Mutex
	path string
}

func (n *fakeNav) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *fakeNav) Navigate(p string) {
	n.mu.Lock()
	n.path = p
	n.mu.Unlock()
}

func okProvider(calls *int) providerFunc {
	return func(ctx context.Context, code, verifier string) (*Session, error) {
		*calls++
		return &Session{AccessToken: "at-" + code, RefreshToken: "rt"}, nil
	}
}

func mustURL(t *testing.T, raw string) *url.URL {
	t.Helper()
	u, err := url.Parse(raw)
	require.NoError(t, err)
	return u
}

// immediate runs the grace callback synchronously.
func immediate(cb *Callback) *Callback {
	cb.afterFunc = func(_ time.Duration, f func()) { f() }
	return cb
}

func TestRun_Success(t *testing.T) {
	calls := 0
	backend := &fakeBackend{profile: models.Profile{ID: "u1", Email: "a@b.c", Name: "Ann", TermsAccepted: true}}
	nav := &fakeNav{path: DefaultCallbackPath}
	var authenticated models.User
	cb := immediate(NewCallback(okProvider(&calls), backend, nav, Options{
		OnAuthenticated: func(u models.User) { authenticated = u },
	}))

	user, err := cb.Run(context.Background(), mustURL(t, "https://app/auth/callback?code=abc"), "verifier")
	require.NoError(t, err)
	assert.Equal(t, "u1", user.ID)
	assert.Equal(t, user, authenticated)
	assert.Equal(t, []apiclient.SessionTokens{{AccessToken: "at-abc", RefreshToken: "rt"}}, backend.saved)
	assert.Equal(t, DefaultProfilePath, nav.CurrentPath())
	assert.Equal(t, StageDone, cb.Stage())
}

func TestRun_GraceDoesNotOverrideClientNavigation(t *testing.T) {
	calls := 0
	backend := &fakeBackend{profile: models.Profile{ID: "u1", Email: "a@b.c"}}
	nav := &fakeNav{path: DefaultCallbackPath}
	cb := NewCallback(okProvider(&calls), backend, nav, Options{
		OnAuthenticated: func(models.User) { nav.Navigate("/courses") },
	})
	var scheduled func()
	var delay time.Duration
	cb.afterFunc = func(d time.Duration, f func()) { delay, scheduled = d, f }

	_, err := cb.Run(context.Background(), mustURL(t, "https://app/auth/callback?code=abc"), "")
	require.NoError(t, err)
	assert.Equal(t, StageRedirecting, cb.Stage())
	assert.Equal(t, time.Second, delay)

	scheduled()
	assert.Equal(t, "/courses", nav.CurrentPath())
	assert.Equal(t, StageDone, cb.Stage())
}

func TestRun_MissingCodeNeverExchanges(t *testing.T) {
	calls := 0
	backend := &fakeBackend{}
	cb := NewCallback(okProvider(&calls), backend, &fakeNav{}, Options{})

	_, err := cb.Run(context.Background(), mustURL(t, "https://app/auth/callback?state=x"), "")
	require.Error(t, err)
	assert.Equal(t, CodeMissingCode, CodeOf(err))
	assert.Contains(t, cb.Err().Message(), "missing its OAuth code")
	assert.Equal(t, 0, calls)
	assert.Empty(t, backend.saved)
	assert.Equal(t, StageFailed, cb.Stage())
}

func TestRun_MissingConfig(t *testing.T) {
	cb := NewCallback(nil, &fakeBackend{}, &fakeNav{}, Options{})
	_, err := cb.Run(context.Background(), mustURL(t, "https://app/auth/callback?code=abc"), "")
	assert.Equal(t, CodeMissingConfig, CodeOf(err))
}

func TestRun_ExchangeTimeout(t *testing.T) {
	block := make(chan struct{})
	defer close(block)
	provider := providerFunc(func(ctx context.Context, code, verifier string) (*Session, error) {
		<-block
		return &Session{AccessToken: "late"}, nil
	})
	backend := &fakeBackend{}
	cb := NewCallback(provider, backend, &fakeNav{}, Options{ExchangeTimeout: 20 * time.Millisecond})

	_, err := cb.Run(context.Background(), mustURL(t, "https://app/auth/callback?code=abc"), "")
	assert.Equal(t, CodeExchangeTimeout, CodeOf(err))
	assert.Empty(t, backend.saved)
}

func TestRun_MissingSession(t *testing.T) {
	provider := providerFunc(func(ctx context.Context, code, verifier string) (*Session, error) {
		return nil, nil
	})
	cb := NewCallback(provider, &fakeBackend{}, &fakeNav{}, Options{})
	_, err := cb.Run(context.Background(), mustURL(t, "https://app/auth/callback?code=abc"), "")
	assert.Equal(t, CodeMissingSession, CodeOf(err))
}

func TestRun_SaveSessionFailures(t *testing.T) {
	calls := 0
	unauthorized := &fakeBackend{saveErr: &apiclient.APIError{Status: http.StatusUnauthorized, Message: "bad token"}}
	cb := NewCallback(okProvider(&calls), unauthorized, &fakeNav{}, Options{})
	_, err := cb.Run(context.Background(), mustURL(t, "https://app/auth/callback?code=abc"), "")
	assert.Equal(t, CodeSessionUnauthorized, CodeOf(err))

	broken := &fakeBackend{saveErr: errors.New("connection refused")}
	cb = NewCallback(okProvider(&calls), broken, &fakeNav{}, Options{})
	_, err = cb.Run(context.Background(), mustURL(t, "https://app/auth/callback?code=abc"), "")
	assert.Equal(t, CodeSessionSaveFailed, CodeOf(err))
}

func TestRun_ProfileFailure(t *testing.T) {
	calls := 0
	backend := &fakeBackend{meErr: errors.New("boom")}
	cb := NewCallback(okProvider(&calls), backend, &fakeNav{}, Options{})
	_, err := cb.Run(context.Background(), mustURL(t, "https://app/auth/callback?code=abc"), "")
	assert.Equal(t, CodeProfileFailed, CodeOf(err))
	assert.Len(t, backend.saved, 1)
}

func TestRun_RejectsReentry(t *testing.T) {
	calls := 0
	backend := &fakeBackend{profile: models.Profile{ID: "u1", Email: "a@b.c"}}
	cb := immediate(NewCallback(okProvider(&calls), backend, &fakeNav{}, Options{}))
	u := mustURL(t, "https://app/auth/callback?code=abc")

	_, err := cb.Run(context.Background(), u, "")
	require.NoError(t, err)
	_, err = cb.Run(context.Background(), u, "")
	assert.ErrorIs(t, err, ErrAlreadyStarted)
	assert.Equal(t, 1, calls)
	assert.Len(t, backend.saved, 1)
}
