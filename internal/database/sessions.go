package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"sprint-academy/internal/models"
)

// ErrSessionNotFound is returned for unknown or expired visitor sessions.
var ErrSessionNotFound = errors.New("database: visitor session not found")

// VisitorSession is the durable part of a visitor: the backend cookies the
// BFF holds on their behalf and the last known user.
type VisitorSession struct {
	ID        string
	Cookies   []*http.Cookie
	User      *models.User
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// SessionStore persists visitor sessions.
type SessionStore interface {
	Load(ctx context.Context, id string) (*VisitorSession, error)
	Save(ctx context.Context, s *VisitorSession) error
	Delete(ctx context.Context, id string) error
	Purge(ctx context.Context, now time.Time) (int64, error)
}

const schema = `
CREATE TABLE IF NOT EXISTS visitor_sessions (
	id         TEXT PRIMARY KEY,
	cookies    TEXT NOT NULL,
	user_json  TEXT,
	created_at BIGINT NOT NULL,
	updated_at BIGINT NOT NULL,
	expires_at BIGINT NOT NULL
)`

// Migrate creates the tables the BFF needs.
func Migrate(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate visitor_sessions: %w", err)
	}
	return nil
}

// SQLSessionStore keeps sessions in visitor_sessions. The SQL runs on both
// Postgres and SQLite.
type SQLSessionStore struct {
	db *sql.DB
}

func NewSQLSessionStore(db *sql.DB) *SQLSessionStore {
	return &SQLSessionStore{db: db}
}

func (s *SQLSessionStore) Load(ctx context.Context, id string) (*VisitorSession, error) {
	var (
		cookies                string
		userJSON               sql.NullString
		created, updated, exps int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT cookies, user_json, created_at, updated_at, expires_at FROM visitor_sessions WHERE id = $1`,
		id,
	).Scan(&cookies, &userJSON, &created, &updated, &exps)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load visitor session: %w", err)
	}

	vs := &VisitorSession{
		ID:        id,
		CreatedAt: time.Unix(created, 0),
		UpdatedAt: time.Unix(updated, 0),
		ExpiresAt: time.Unix(exps, 0),
	}
	if !vs.ExpiresAt.After(time.Now()) {
		return nil, ErrSessionNotFound
	}
	if err := json.Unmarshal([]byte(cookies), &vs.Cookies); err != nil {
		return nil, fmt.Errorf("decode session cookies: %w", err)
	}
	if userJSON.Valid && userJSON.String != "" {
		var u models.User
		if err := json.Unmarshal([]byte(userJSON.String), &u); err != nil {
			return nil, fmt.Errorf("decode session user: %w", err)
		}
		vs.User = &u
	}
	return vs, nil
}

func (s *SQLSessionStore) Save(ctx context.Context, vs *VisitorSession) error {
	cookies, err := json.Marshal(nonNilCookies(vs.Cookies))
	if err != nil {
		return fmt.Errorf("encode session cookies: %w", err)
	}
	var userJSON sql.NullString
	if vs.User != nil {
		b, err := json.Marshal(vs.User)
		if err != nil {
			return fmt.Errorf("encode session user: %w", err)
		}
		userJSON = sql.NullString{String: string(b), Valid: true}
	}
	now := time.Now()
	if vs.CreatedAt.IsZero() {
		vs.CreatedAt = now
	}
	vs.UpdatedAt = now

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO visitor_sessions (id, cookies, user_json, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (id)
		DO UPDATE SET
			cookies = EXCLUDED.cookies,
			user_json = EXCLUDED.user_json,
			updated_at = EXCLUDED.updated_at,
			expires_at = EXCLUDED.expires_at`,
		vs.ID, string(cookies), userJSON, vs.CreatedAt.Unix(), vs.UpdatedAt.Unix(), vs.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("save visitor session: %w", err)
	}
	return nil
}

func (s *SQLSessionStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM visitor_sessions WHERE id = $1`, id); err != nil {
		return fmt.Errorf("delete visitor session: %w", err)
	}
	return nil
}

// Purge removes sessions that expired before now.
func (s *SQLSessionStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM visitor_sessions WHERE expires_at <= $1`, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("purge visitor sessions: %w", err)
	}
	return res.RowsAffected()
}

func nonNilCookies(c []*http.Cookie) []*http.Cookie {
	if c == nil {
		return []*http.Cookie{}
	}
	return c
}

// MemorySessionStore is used when no DATABASE_URL is configured.
type MemorySessionStore struct {
	mu       sync.Mutex
	sessions map[string]VisitorSession
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{sessions: make(map[string]VisitorSession)}
}

func (m *MemorySessionStore) Load(ctx context.Context, id string) (*VisitorSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	vs, ok := m.sessions[id]
	if !ok || !vs.ExpiresAt.After(time.Now()) {
		return nil, ErrSessionNotFound
	}
	return &vs, nil
}

func (m *MemorySessionStore) Save(ctx context.Context, vs *VisitorSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	if vs.CreatedAt.IsZero() {
		vs.CreatedAt = now
	}
	vs.UpdatedAt = now
	m.sessions[vs.ID] = *vs
	return nil
}

func (m *MemorySessionStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

func (m *MemorySessionStore) Purge(ctx context.Context, now time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for id, vs := range m.sessions {
		if !vs.ExpiresAt.After(now) {
			delete(m.sessions, id)
			n++
		}
	}
	return n, nil
}
