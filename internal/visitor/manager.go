package visitor

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"sprint-academy/internal/ai"
	"sprint-academy/internal/apiclient"
	"sprint-academy/internal/content"
	"sprint-academy/internal/courses"
	"sprint-academy/internal/database"
	"sprint-academy/internal/logger"
	"sprint-academy/internal/models"
	"sprint-academy/internal/payments"
	"sprint-academy/internal/sandbox"
)

// CookieName is the BFF's own session cookie.
const CookieName = "sa_session"

type contextKey string

// ContextVisitorKey stores the resolved *Visitor in the request context.
const ContextVisitorKey contextKey = "visitor"

// Options configures a Manager.
type Options struct {
	BackendURL     string
	BackendTimeout time.Duration
	SecureCookies  bool
	// Catalog, when set, replaces the backend catalog for every visitor.
	Catalog   courses.Catalog
	Assistant sandbox.Assistant
	// HTTPClient overrides the transport of per-visitor API clients.
	HTTPClient func() *http.Client
	Logger     *logger.Logger
}

// Manager creates, restores and persists visitors.
type Manager struct {
	store  database.SessionStore
	tokens *Tokens
	opts   Options
	log    *logger.Logger
	now    func() time.Time

	mu   sync.Mutex
	live map[string]*Visitor
}

func NewManager(store database.SessionStore, tokens *Tokens, opts Options) *Manager {
	log := opts.Logger
	if log == nil {
		log = logger.Nop()
	}
	if opts.Assistant == nil {
		opts.Assistant = ai.Disabled{}
	}
	return &Manager{
		store:  store,
		tokens: tokens,
		opts:   opts,
		log:    log.With("component", "visitor"),
		now:    time.Now,
		live:   make(map[string]*Visitor),
	}
}

func (m *Manager) build(id string, createdAt, expiresAt time.Time) (*Visitor, error) {
	clientOpts := []apiclient.Option{apiclient.WithLogger(m.log)}
	if m.opts.HTTPClient != nil {
		clientOpts = append(clientOpts, apiclient.WithHTTPClient(m.opts.HTTPClient()))
	}
	if m.opts.BackendTimeout > 0 {
		clientOpts = append(clientOpts, apiclient.WithTimeout(m.opts.BackendTimeout))
	}
	api, err := apiclient.New(m.opts.BackendURL, clientOpts...)
	if err != nil {
		return nil, err
	}

	var catalog courses.Catalog = courses.NewRemoteCatalog(api)
	if m.opts.Catalog != nil {
		catalog = m.opts.Catalog
	}
	return &Visitor{
		ID:        id,
		API:       api,
		Content:   content.New(api, m.log),
		Sandboxes: sandbox.NewRegistry(m.opts.Assistant, m.log),
		Courses:   courses.NewService(catalog, api, m.log),
		Payments:  payments.NewService(api, m.log),
		createdAt: createdAt,
		expiresAt: expiresAt,
	}, nil
}

// Lookup resolves the visitor named by the request cookie without creating
// one.
func (m *Manager) Lookup(r *http.Request) (*Visitor, bool) {
	c, err := r.Cookie(CookieName)
	if err != nil {
		return nil, false
	}
	id, err := m.tokens.Parse(c.Value)
	if err != nil {
		return nil, false
	}
	v, err := m.restore(r.Context(), id)
	if err != nil {
		return nil, false
	}
	return v, true
}

func (m *Manager) restore(ctx context.Context, id string) (*Visitor, error) {
	m.mu.Lock()
	v, ok := m.live[id]
	m.mu.Unlock()
	if ok {
		return v, nil
	}

	stored, err := m.store.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	v, err = m.build(id, stored.CreatedAt, stored.ExpiresAt)
	if err != nil {
		return nil, err
	}
	v.API.SetCookies(stored.Cookies)
	v.user = stored.User
	v.fingerprint = fingerprint(v)

	m.mu.Lock()
	if existing, ok := m.live[id]; ok {
		v = existing
	} else {
		m.live[id] = v
	}
	m.mu.Unlock()
	return v, nil
}

// Resolve returns the request's visitor, starting a new session and setting
// the cookie when there is none.
func (m *Manager) Resolve(w http.ResponseWriter, r *http.Request) (*Visitor, error) {
	if v, ok := m.Lookup(r); ok {
		return v, nil
	}

	id := uuid.NewString()
	now := m.now()
	token, expiresAt, err := m.tokens.Issue(id, now)
	if err != nil {
		return nil, err
	}
	v, err := m.build(id, now, expiresAt)
	if err != nil {
		return nil, err
	}
	if err := m.store.Save(r.Context(), m.record(v)); err != nil {
		return nil, err
	}
	v.fingerprint = fingerprint(v)

	m.mu.Lock()
	m.live[id] = v
	m.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    token,
		Path:     "/",
		Expires:  expiresAt,
		HttpOnly: true,
		Secure:   m.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	m.log.Debug("visitor session started", "session_id", id)
	return v, nil
}

func (m *Manager) record(v *Visitor) *database.VisitorSession {
	v.mu.Lock()
	defer v.mu.Unlock()
	var user *models.User
	if v.user != nil {
		u := *v.user
		user = &u
	}
	return &database.VisitorSession{
		ID:        v.ID,
		Cookies:   v.API.Cookies(),
		User:      user,
		CreatedAt: v.createdAt,
		ExpiresAt: v.expiresAt,
	}
}

// Persist saves the visitor if its backend cookies or user changed.
func (m *Manager) Persist(ctx context.Context, v *Visitor) error {
	fp := fingerprint(v)
	v.mu.Lock()
	skip := v.ended || fp == v.fingerprint
	v.mu.Unlock()
	if skip {
		return nil
	}
	if err := m.store.Save(ctx, m.record(v)); err != nil {
		return err
	}
	v.mu.Lock()
	v.fingerprint = fp
	v.mu.Unlock()
	return nil
}

// End drops the visitor everywhere and expires the cookie.
func (m *Manager) End(ctx context.Context, w http.ResponseWriter, v *Visitor) error {
	v.mu.Lock()
	v.ended = true
	v.mu.Unlock()
	m.mu.Lock()
	delete(m.live, v.ID)
	m.mu.Unlock()
	http.SetCookie(w, &http.Cookie{
		Name:     CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   m.opts.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	return m.store.Delete(ctx, v.ID)
}

// Sweep drops expired visitors from memory and storage.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	now := m.now()
	m.mu.Lock()
	for id, v := range m.live {
		if !v.expiresAt.After(now) {
			delete(m.live, id)
		}
	}
	m.mu.Unlock()
	return m.store.Purge(ctx, now)
}

// Middleware attaches the visitor to the request context and persists it
// once the handler returns.
func (m *Manager) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		v, err := m.Resolve(w, r)
		if err != nil {
			m.log.Error("resolve visitor", "error", err)
			http.Error(w, `{"error":"Session unavailable"}`, http.StatusServiceUnavailable)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ContextVisitorKey, v)))
		if err := m.Persist(context.WithoutCancel(r.Context()), v); err != nil {
			m.log.Warn("persist visitor", "session_id", v.ID, "error", err)
		}
	})
}

// FromContext returns the visitor attached by Middleware.
func FromContext(ctx context.Context) (*Visitor, bool) {
	v, ok := ctx.Value(ContextVisitorKey).(*Visitor)
	return v, ok
}

func fingerprint(v *Visitor) string {
	cookies := v.API.Cookies()
	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, c.Name+"="+c.Value)
	}
	sort.Strings(parts)
	v.mu.Lock()
	user, _ := json.Marshal(v.user)
	v.mu.Unlock()
	return strings.Join(parts, ";") + "|" + string(user)
}
