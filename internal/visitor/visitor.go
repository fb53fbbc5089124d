package visitor

import (
	"sync"
	"time"

	"sprint-academy/internal/apiclient"
	"sprint-academy/internal/content"
	"sprint-academy/internal/courses"
	"sprint-academy/internal/models"
	"sprint-academy/internal/payments"
	"sprint-academy/internal/sandbox"
)

// Visitor is everything the BFF holds for one browser.
type Visitor struct {
	ID        string
	API       *apiclient.Client
	Content   *content.Cache
	Sandboxes *sandbox.Registry
	Courses   *courses.Service
	Payments  *payments.Service

	mu          sync.Mutex
	user        *models.User
	createdAt   time.Time
	expiresAt   time.Time
	oauthState  string
	verifier    string
	fingerprint string
	ended       bool
}

// User returns a copy of the signed-in user.
func (v *Visitor) User() (models.User, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.user == nil {
		return models.User{}, false
	}
	return snapshot(v.user), true
}

// RefreshUser stores a freshly loaded profile. Course progress collected
// for the same account is kept; a different account starts empty.
func (v *Visitor) RefreshUser(fresh models.User) models.User {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.user != nil && v.user.ID == fresh.ID && len(v.user.Progress) > 0 {
		fresh.Progress = v.user.Progress
	}
	v.user = &fresh
	return snapshot(v.user)
}

// snapshot copies u deep enough that callers can read it without v.mu.
func snapshot(u *models.User) models.User {
	out := *u
	out.Progress = make(map[string]map[string]models.LessonStatus, len(u.Progress))
	for course, lessons := range u.Progress {
		m := make(map[string]models.LessonStatus, len(lessons))
		for id, st := range lessons {
			m[id] = st
		}
		out.Progress[course] = m
	}
	return out
}

// SetUser records the signed-in user.
func (v *Visitor) SetUser(u models.User) {
	v.mu.Lock()
	v.user = &u
	v.mu.Unlock()
}

// UpdateUser mutates the stored user if there is one.
func (v *Visitor) UpdateUser(fn func(u *models.User)) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.user == nil {
		return false
	}
	fn(v.user)
	return true
}

// ClearUser forgets the user after logout.
func (v *Visitor) ClearUser() {
	v.mu.Lock()
	v.user = nil
	v.mu.Unlock()
}

// SignedIn reports whether a user is attached.
func (v *Visitor) SignedIn() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.user != nil
}

// BeginOAuth remembers the state and PKCE verifier of a pending sign-in.
func (v *Visitor) BeginOAuth(state, verifier string) {
	v.mu.Lock()
	v.oauthState, v.verifier = state, verifier
	v.mu.Unlock()
}

// TakeOAuth returns the pending verifier if state matches. It can be taken
// once.
func (v *Visitor) TakeOAuth(state string) (string, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.oauthState == "" || v.oauthState != state {
		return "", false
	}
	verifier := v.verifier
	v.oauthState, v.verifier = "", ""
	return verifier, true
}
