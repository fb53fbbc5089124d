package main

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprint-academy/internal/database"
	"sprint-academy/internal/logger"
	"sprint-academy/internal/models"
	"sprint-academy/internal/visitor"
)

func TestIsAppPage(t *testing.T) {
	assert.True(t, isAppPage("/app"))
	assert.True(t, isAppPage("/courses/web/lessons/1"))
	assert.True(t, isAppPage("/profile"))
	assert.False(t, isAppPage("/app/api/me"))
	assert.False(t, isAppPage("/css/site.css"))
	assert.False(t, isAppPage("/applications"))
}

func TestMountPages_Gating(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "landing.html"), []byte("landing"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "index.html"), []byte("app"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sitemap.xml"), []byte("<urlset/>"), 0o644))

	visitors := visitor.NewManager(database.NewMemorySessionStore(), visitor.NewTokens([]byte("0123456789abcdef0123456789abcdef"), time.Hour), visitor.Options{BackendURL: "http://backend.test"})
	r := mux.NewRouter()
	mountPages(r, visitors, dir, logger.Nop())

	get := func(path string, cookie *http.Cookie) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if cookie != nil {
			req.AddCookie(cookie)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	rec := get("/", nil)
	assert.Equal(t, "landing", rec.Body.String())
	rec = get("/app", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	rec = get("/sitemap.xml", nil)
	assert.Equal(t, "<urlset/>", rec.Body.String())

	// Sign a visitor in directly through the manager.
	rec = httptest.NewRecorder()
	v, err := visitors.Resolve(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	v.SetUser(models.User{ID: "u1"})
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == visitor.CookieName {
			cookie = c
		}
	}
	require.NotNil(t, cookie)

	rec = get("/", cookie)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/app", rec.Header().Get("Location"))
	rec = get("/app", cookie)
	assert.Equal(t, "app", rec.Body.String())
}
