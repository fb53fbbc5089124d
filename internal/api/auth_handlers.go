package api

import (
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"

	"sprint-academy/internal/apiclient"
	"sprint-academy/internal/auth"
	"sprint-academy/internal/models"
	"sprint-academy/internal/visitor"
)

// pathNavigator tracks where the browser is headed during a callback.
type pathNavigator struct {
	mu   sync.Mutex
	path string
}

func (n *pathNavigator) CurrentPath() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.path
}

func (n *pathNavigator) Navigate(p string) {
	n.mu.Lock()
	n.path = p
	n.mu.Unlock()
}

func authErrorURL(code auth.ErrorCode) string {
	return "/?auth_error=" + url.QueryEscape(string(code))
}

// OAuthStart sends the visitor to the identity provider.
func (h *ApiHandler) OAuthStart(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	if h.OAuth == nil {
		http.Redirect(w, r, authErrorURL(auth.CodeMissingConfig), http.StatusSeeOther)
		return
	}
	state := uuid.NewString()
	verifier := auth.NewVerifier()
	v.BeginOAuth(state, verifier)
	http.Redirect(w, r, h.OAuth.AuthCodeURL(state, verifier), http.StatusFound)
}

// OAuthCallback finishes the sign-in and lands on the profile page.
func (h *ApiHandler) OAuthCallback(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}

	var provider auth.IdentityProvider
	if h.OAuth != nil {
		provider = h.OAuth
	}
	verifier, stateOK := v.TakeOAuth(r.URL.Query().Get("state"))
	if provider != nil && r.URL.Query().Get("code") != "" && !stateOK {
		h.Log.Warn("oauth state mismatch", "session_id", v.ID)
		http.Redirect(w, r, authErrorURL(auth.CodeMissingSession), http.StatusSeeOther)
		return
	}

	opts := h.callbackOpts
	opts.Logger = h.Log
	opts.OnAuthenticated = func(u models.User) { v.RefreshUser(u) }
	nav := &pathNavigator{path: r.URL.Path}
	cb := auth.NewCallback(provider, v.API, nav, opts)

	if _, err := cb.Run(r.Context(), r.URL, verifier); err != nil {
		http.Redirect(w, r, authErrorURL(auth.CodeOf(err)), http.StatusSeeOther)
		return
	}
	target := opts.ProfilePath
	if target == "" {
		target = auth.DefaultProfilePath
	}
	nav.Navigate(target)
	http.Redirect(w, r, target, http.StatusSeeOther)
}

func (h *ApiHandler) signIn(w http.ResponseWriter, r *http.Request, v *visitor.Visitor) {
	profile, err := v.API.Me(r.Context())
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, v.RefreshUser(models.UserFromProfile(profile)))
}

func (h *ApiHandler) Login(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	var creds apiclient.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}
	if err := v.API.Login(r.Context(), creds); err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	h.signIn(w, r, v)
}

func (h *ApiHandler) Register(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	var creds apiclient.Credentials
	if !decodeJSON(w, r, &creds) {
		return
	}
	if err := v.API.Register(r.Context(), creds); err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	h.signIn(w, r, v)
}

// Logout ends the backend session and forgets the visitor.
func (h *ApiHandler) Logout(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	if err := v.API.Logout(r.Context()); err != nil && !apiclient.IsUnauthorized(err) {
		h.Log.Warn("backend logout failed", "session_id", v.ID, "error", err)
	}
	v.ClearUser()
	if err := h.Visitors.End(r.Context(), w, v); err != nil {
		h.Log.Warn("drop visitor session", "session_id", v.ID, "error", err)
	}
	w.WriteHeader(http.StatusNoContent)
}

// Me reloads the profile from the backend.
func (h *ApiHandler) Me(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	h.signIn(w, r, v)
}

func (h *ApiHandler) AcceptConsent(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	var consent models.Consent
	if !decodeJSON(w, r, &consent) {
		return
	}
	profile, err := v.API.AcceptConsent(r.Context(), consent)
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	updated := models.UserFromProfile(profile)
	v.UpdateUser(func(u *models.User) {
		u.Consent = updated.Consent
	})
	user, _ := v.User()
	respondWithJSON(w, http.StatusOK, user)
}
