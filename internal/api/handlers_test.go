package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"sprint-academy/internal/ai"
	"sprint-academy/internal/auth"
	"sprint-academy/internal/courses"
	"sprint-academy/internal/database"
	"sprint-academy/internal/logger"
	"sprint-academy/internal/models"
	"sprint-academy/internal/sandbox"
	"sprint-academy/internal/visitor"
)

type fakeOAuth struct{}

func (fakeOAuth) AuthCodeURL(state, verifier string) string {
	return "https://idp.test/authorize?state=" + url.QueryEscape(state)
}

func (fakeOAuth) Exchange(ctx context.Context, code, verifier string) (*auth.Session, error) {
	if verifier == "" {
		return nil, errors.New("missing verifier")
	}
	return &auth.Session{AccessToken: "at-" + code, RefreshToken: "rt"}, nil
}

type fakeImages struct{}

func (fakeImages) AnalyzeImage(ctx context.Context, image []byte, mimeType, prompt string) (string, error) {
	return "a red square", nil
}

func (fakeImages) EditImage(ctx context.Context, image []byte, mimeType, instruction string) (ai.Image, error) {
	return ai.Image{Data: image, MIMEType: mimeType}, nil
}

type testEnv struct {
	t         *testing.T
	router    *mux.Router
	handler   *ApiHandler
	initCalls int32
	initFail  bool
	purchased bool
}

func writeJSON(w http.ResponseWriter, code int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestEnv(t *testing.T, oauth OAuth) *testEnv {
	t.Helper()
	env := &testEnv{t: t}

	backend := http.NewServeMux()
	profile := map[string]interface{}{"id": "u1", "email": "ann@example.com", "name": "Ann", "terms_accepted": true}
	backend.HandleFunc("/api/auth/login", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sb-access", Value: "tok", Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	})
	backend.HandleFunc("/api/auth/session", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "sb-access", Value: "tok", Path: "/"})
		w.WriteHeader(http.StatusNoContent)
	})
	backend.HandleFunc("/api/auth/logout", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	backend.HandleFunc("/api/me", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("sb-access"); err != nil {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "no session"})
			return
		}
		writeJSON(w, http.StatusOK, profile)
	})
	backend.HandleFunc("/api/lessons/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("ETag", `"v1"`)
		rule := "always"
		if strings.Contains(r.URL.Path, "/paid-") {
			rule = "paid"
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"blocks":      []map[string]string{{"type": "text", "text": "Hello"}},
			"settings":    map[string]interface{}{},
			"unlock_rule": map[string]string{"type": rule},
		})
	})
	backend.HandleFunc("/api/courses/web/progress", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"course_id": "web",
			"lessons":   map[string]interface{}{"play": map[string]string{"status": "completed"}},
		})
	})
	backend.HandleFunc("/api/purchases/courses", func(w http.ResponseWriter, r *http.Request) {
		list := []map[string]string{}
		if env.purchased {
			list = append(list, map[string]string{"course_id": "web"})
		}
		writeJSON(w, http.StatusOK, list)
	})
	backend.HandleFunc("/api/payments/tbank/init", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&env.initCalls, 1)
		if env.initFail {
			writeJSON(w, http.StatusBadGateway, map[string]string{"error": "terminal unavailable"})
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"paymentUrl": "https://pay.test/p/1", "orderId": "ord-1"})
	})
	srv := httptest.NewServer(backend)
	t.Cleanup(srv.Close)

	catalog := courses.NewStaticCatalog([]models.Course{{
		ID: "web", Title: "Web", Access: models.AccessPaid,
		Lessons: []models.Lesson{
			{ID: "intro", Title: "Intro", Position: 1, Type: models.LessonVideoText},
			{ID: "paid-lesson", Title: "Deep dive", Position: 2, Type: models.LessonVideoText},
			{ID: "play", Title: "Playground", Position: 3, Type: models.LessonCodeGeneration, InitialCode: "<h1>Start</h1>"},
			{ID: "paid-play", Title: "Paid playground", Position: 4, Type: models.LessonCodeGeneration, InitialCode: "<h1>Paid starter</h1>"},
			{ID: "paid-photo", Title: "Photo critique", Position: 5, Type: models.LessonInteractiveAnalyze},
		},
	}})
	manager := visitor.NewManager(database.NewMemorySessionStore(), visitor.NewTokens([]byte("0123456789abcdef0123456789abcdef"), time.Hour), visitor.Options{
		BackendURL: srv.URL,
		Catalog:    catalog,
	})

	env.handler = NewApiHandler(manager, oauth, nil, nil)
	env.handler.callbackOpts.Grace = time.Millisecond
	env.router = mux.NewRouter()
	env.handler.Mount(env.router)
	return env
}

func (e *testEnv) do(method, target string, body string, cookie *http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func sessionCookie(rec *httptest.ResponseRecorder) *http.Cookie {
	for _, c := range rec.Result().Cookies() {
		if c.Name == visitor.CookieName {
			return c
		}
	}
	return nil
}

func (e *testEnv) login() *http.Cookie {
	e.t.Helper()
	rec := e.do(http.MethodPost, "/app/api/auth/login", `{"email":"ann@example.com","password":"secret1"}`, nil)
	require.Equal(e.t, http.StatusOK, rec.Code, rec.Body.String())
	c := sessionCookie(rec)
	require.NotNil(e.t, c)
	return c
}

func TestLogin_ThenMe(t *testing.T) {
	env := newTestEnv(t, nil)

	rec := env.do(http.MethodGet, "/app/api/me", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	cookie := env.login()
	rec = env.do(http.MethodGet, "/app/api/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, "Ann", user.Name)
	assert.Equal(t, "free", user.Plan)
}

func TestLogin_InvalidCredentials(t *testing.T) {
	env := newTestEnv(t, nil)
	rec := env.do(http.MethodPost, "/app/api/auth/login", `{"email":"not-an-email","password":"x"}`, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLogout_ForgetsVisitor(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login()

	rec := env.do(http.MethodPost, "/app/api/auth/logout", "", cookie)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = env.do(http.MethodGet, "/app/api/me", "", cookie)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestOAuth_StartAndCallback(t *testing.T) {
	env := newTestEnv(t, fakeOAuth{})

	rec := env.do(http.MethodGet, "/auth/login", "", nil)
	require.Equal(t, http.StatusFound, rec.Code)
	loc, err := url.Parse(rec.Header().Get("Location"))
	require.NoError(t, err)
	state := loc.Query().Get("state")
	require.NotEmpty(t, state)
	cookie := sessionCookie(rec)
	require.NotNil(t, cookie)

	rec = env.do(http.MethodGet, "/auth/callback?code=abc&state="+url.QueryEscape(state), "", cookie)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/profile", rec.Header().Get("Location"))

	rec = env.do(http.MethodGet, "/app/api/me", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestOAuth_CallbackFailures(t *testing.T) {
	env := newTestEnv(t, fakeOAuth{})
	rec := env.do(http.MethodGet, "/auth/callback?error=access_denied", "", nil)
	require.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/?auth_error=missing_code", rec.Header().Get("Location"))

	rec = env.do(http.MethodGet, "/auth/callback?code=abc&state=forged", "", nil)
	assert.Equal(t, "/?auth_error=missing_session", rec.Header().Get("Location"))

	unconfigured := newTestEnv(t, nil)
	rec = unconfigured.do(http.MethodGet, "/auth/callback?code=abc", "", nil)
	assert.Equal(t, "/?auth_error=missing_config", rec.Header().Get("Location"))
	rec = unconfigured.do(http.MethodGet, "/auth/login", "", nil)
	assert.Equal(t, "/?auth_error=missing_config", rec.Header().Get("Location"))
}

func TestLessonContent_UnlockRules(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login()

	rec := env.do(http.MethodGet, "/app/api/courses/web/lessons/intro/content", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `"v1"`, rec.Header().Get("ETag"))

	rec = env.do(http.MethodGet, "/app/api/courses/web/lessons/paid-lesson/content", "", cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.purchased = true
	rec = env.do(http.MethodGet, "/app/api/courses/web/lessons/paid-lesson/content?fresh=1", "", cookie)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/app/api/courses/web/lessons/ghost/content", "", cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSandbox_CodeAndPreview(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login()
	base := "/app/api/courses/web/lessons/play/sandbox"

	rec := env.do(http.MethodGet, base, "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var st sandbox.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "<h1>Start</h1>", st.Code)

	code := "<p id=\"x\">hi</p><script>document.title='t'</script>"
	req := httptest.NewRequest(http.MethodPut, base+"/code", bytes.NewBufferString(code))
	req.AddCookie(cookie)
	rec = httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, base+"/preview", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, code, rec.Body.String())
	assert.Equal(t, sandbox.SandboxPolicy, rec.Header().Get("Content-Security-Policy"))

	rec = env.do(http.MethodPost, base+"/ask", `{"question":"why?"}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	require.Len(t, st.Transcript, 2)
	assert.Equal(t, sandbox.FallbackReply, st.Transcript[1].Text)

	rec = env.do(http.MethodPost, base+"/reset", "", cookie)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "<h1>Start</h1>", st.Code)
	assert.Empty(t, st.Transcript)

	rec = env.do(http.MethodGet, "/app/api/courses/web/lessons/intro/sandbox", "", cookie)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSandbox_PaidLessonStaysLocked(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login()
	base := "/app/api/courses/web/lessons/paid-play/sandbox"

	rec := env.do(http.MethodGet, base, "", cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.NotContains(t, rec.Body.String(), "Paid starter")

	rec = env.do(http.MethodPost, base+"/ask", `{"question":"why?"}`, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	rec = env.do(http.MethodGet, base+"/preview", "", cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.purchased = true
	rec = env.do(http.MethodGet, base, "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var st sandbox.State
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.Equal(t, "<h1>Paid starter</h1>", st.Code)
}

func (e *testEnv) uploadImage(target string, cookie *http.Cookie) *httptest.ResponseRecorder {
	e.t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("image", "square.png")
	require.NoError(e.t, err)
	_, err = part.Write([]byte("\x89PNG\r\n\x1a\n0000"))
	require.NoError(e.t, err)
	require.NoError(e.t, mw.WriteField("prompt", "what is it?"))
	require.NoError(e.t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, target, &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.AddCookie(cookie)
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

func TestImage_PaidLessonStaysLocked(t *testing.T) {
	env := newTestEnv(t, nil)
	env.handler.Images = fakeImages{}
	cookie := env.login()
	target := "/app/api/courses/web/lessons/paid-photo/image/analyze"

	rec := env.uploadImage(target, cookie)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	env.purchased = true
	rec = env.uploadImage(target, cookie)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "a red square")
}

func TestMe_KeepsLoadedProgress(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login()

	rec := env.do(http.MethodGet, "/app/api/courses/web/progress", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = env.do(http.MethodGet, "/app/api/me", "", cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var user models.User
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &user))
	assert.Equal(t, models.StatusCompleted, user.Progress["web"]["play"])
}

func TestPaymentSync_BlankOrder(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login()
	rec := env.do(http.MethodPost, "/app/api/payments/sync", `{"orderId":" "}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Order is required")
}

func TestPayments(t *testing.T) {
	env := newTestEnv(t, nil)
	cookie := env.login()

	rec := env.do(http.MethodPost, "/app/api/payments", `{"courseId":"web","offerAccepted":false}`, cookie)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Zero(t, atomic.LoadInt32(&env.initCalls))

	rec = env.do(http.MethodPost, "/app/api/payments", `{"courseId":"web","offerAccepted":true}`, cookie)
	require.Equal(t, http.StatusOK, rec.Code)
	var init models.PaymentInit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &init))
	assert.Equal(t, "https://pay.test/p/1", init.PaymentURL)

	env.initFail = true
	rec = env.do(http.MethodPost, "/app/api/payments", `{"courseId":"web","offerAccepted":true}`, cookie)
	assert.Equal(t, http.StatusBadGateway, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please try again")
}

func TestRecovery(t *testing.T) {
	h := Recovery(logger.Nop())(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
