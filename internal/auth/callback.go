package auth

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"sprint-academy/internal/apiclient"
	"sprint-academy/internal/logger"
	"sprint-academy/internal/models"
)

// Stage is the callback's position in the sign-in flow.
type Stage string

const (
	StageIdle           Stage = "idle"
	StageExchanging     Stage = "exchanging"
	StageSaving         Stage = "saving"
	StageLoadingProfile Stage = "loading_profile"
	StageRedirecting    Stage = "redirecting"
	StageDone           Stage = "done"
	StageFailed         Stage = "failed"
)

const (
	DefaultExchangeTimeout = 10 * time.Second
	DefaultGrace           = time.Second
	DefaultCallbackPath    = "/auth/callback"
	DefaultProfilePath     = "/profile"
)

// Session is what the identity provider hands back for a code.
type Session struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
}

// IdentityProvider exchanges an authorization code for a session. A nil
// session with a nil error means the provider answered without one.
type IdentityProvider interface {
	Exchange(ctx context.Context, code, verifier string) (*Session, error)
}

// Backend persists the session and loads the profile.
type Backend interface {
	SaveSession(ctx context.Context, tokens apiclient.SessionTokens) error
	Me(ctx context.Context) (models.Profile, error)
}

// Navigator reports and changes the visitor's current route.
type Navigator interface {
	CurrentPath() string
	Navigate(path string)
}

// Options configure a Callback.
type Options struct {
	ExchangeTimeout time.Duration
	Grace           time.Duration
	CallbackPath    string
	ProfilePath     string
	// OnAuthenticated runs once the profile is loaded.
	OnAuthenticated func(models.User)
	Logger          *logger.Logger
}

// Callback drives one OAuth callback: exchange, save, load profile, then
// redirect. It runs at most once; the stage guard rejects re-entry.
type Callback struct {
	provider IdentityProvider
	backend  Backend
	nav      Navigator
	opts     Options
	log      *logger.Logger

	afterFunc func(time.Duration, func())

	mu    sync.Mutex
	stage Stage
	err   *Error
	user  models.User
}

// NewCallback creates an idle callback. provider may be nil when the
// identity provider is not configured; Run then fails with missing_config.
func NewCallback(provider IdentityProvider, backend Backend, nav Navigator, opts Options) *Callback {
	if opts.ExchangeTimeout <= 0 {
		opts.ExchangeTimeout = DefaultExchangeTimeout
	}
	if opts.Grace <= 0 {
		opts.Grace = DefaultGrace
	}
	if opts.CallbackPath == "" {
		opts.CallbackPath = DefaultCallbackPath
	}
	if opts.ProfilePath == "" {
		opts.ProfilePath = DefaultProfilePath
	}
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &Callback{
		provider: provider,
		backend:  backend,
		nav:      nav,
		opts:     opts,
		log:      log.With("component", "auth_callback"),
		afterFunc: func(d time.Duration, f func()) {
			time.AfterFunc(d, f)
		},
		stage: StageIdle,
	}
}

// Stage returns the current stage.
func (c *Callback) Stage() Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Err returns the terminal error, if any.
func (c *Callback) Err() *Error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Callback) advance(s Stage) {
	c.mu.Lock()
	c.stage = s
	c.mu.Unlock()
}

func (c *Callback) fail(code ErrorCode, err error) error {
	e := &Error{Code: code, Err: err}
	c.mu.Lock()
	c.stage = StageFailed
	c.err = e
	c.mu.Unlock()
	c.log.Warn("sign-in callback failed", "code", code, "error", err)
	return e
}

// Run processes the callback URL. verifier is the PKCE verifier stored when
// the flow started (may be empty).
func (c *Callback) Run(ctx context.Context, callbackURL *url.URL, verifier string) (models.User, error) {
	c.mu.Lock()
	if c.stage != StageIdle {
		c.mu.Unlock()
		return models.User{}, ErrAlreadyStarted
	}
	c.stage = StageExchanging
	c.mu.Unlock()

	if c.provider == nil || c.backend == nil {
		return models.User{}, c.fail(CodeMissingConfig, nil)
	}
	q := callbackURL.Query()
	code := strings.TrimSpace(q.Get("code"))
	if code == "" {
		var cause error
		if desc := q.Get("error_description"); desc != "" {
			cause = errors.New(desc)
		} else if e := q.Get("error"); e != "" {
			cause = errors.New(e)
		}
		return models.User{}, c.fail(CodeMissingCode, cause)
	}

	session, err := c.exchange(ctx, code, verifier)
	if err != nil {
		return models.User{}, err
	}

	c.advance(StageSaving)
	tokens := apiclient.SessionTokens{AccessToken: session.AccessToken, RefreshToken: session.RefreshToken}
	if err := c.backend.SaveSession(ctx, tokens); err != nil {
		if apiclient.IsUnauthorized(err) {
			return models.User{}, c.fail(CodeSessionUnauthorized, err)
		}
		return models.User{}, c.fail(CodeSessionSaveFailed, err)
	}

	c.advance(StageLoadingProfile)
	profile, err := c.backend.Me(ctx)
	if err != nil {
		return models.User{}, c.fail(CodeProfileFailed, err)
	}
	user := models.UserFromProfile(profile)

	c.mu.Lock()
	c.stage = StageRedirecting
	c.user = user
	c.mu.Unlock()

	if c.opts.OnAuthenticated != nil {
		c.opts.OnAuthenticated(user)
	}
	c.afterFunc(c.opts.Grace, c.finish)
	return user, nil
}

// exchange races the provider call against the exchange timeout so a
// provider that ignores its context still cannot hang the callback.
func (c *Callback) exchange(ctx context.Context, code, verifier string) (*Session, error) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ExchangeTimeout)
	defer cancel()

	type result struct {
		session *Session
		err     error
	}
	ch := make(chan result, 1)
	go func() {
		s, err := c.provider.Exchange(ctx, code, verifier)
		ch <- result{s, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return nil, c.fail(CodeExchangeTimeout, r.err)
			}
			return nil, c.fail(CodeMissingSession, r.err)
		}
		if r.session == nil || r.session.AccessToken == "" {
			return nil, c.fail(CodeMissingSession, nil)
		}
		return r.session, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, c.fail(CodeExchangeTimeout, ctx.Err())
		}
		return nil, c.fail(CodeMissingSession, ctx.Err())
	}
}

// finish force-navigates to the profile if nothing has left the callback
// route during the grace period.
func (c *Callback) finish() {
	if c.nav != nil && c.nav.CurrentPath() == c.opts.CallbackPath {
		c.nav.Navigate(c.opts.ProfilePath)
	}
	c.advance(StageDone)
}
