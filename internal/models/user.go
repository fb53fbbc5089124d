package models

import "time"

// Profile is the backend's /api/me payload.
type Profile struct {
	ID              string     `json:"id" validate:"required"`
	Email           string     `json:"email" validate:"required,email"`
	Name            string     `json:"name"`
	AvatarURL       string     `json:"avatar_url"`
	Plan            string     `json:"plan"`
	DailyLimit      int        `json:"daily_limit" validate:"gte=0"`
	DailyUsed       int        `json:"daily_used" validate:"gte=0"`
	DailyResetAt    *time.Time `json:"daily_reset_at"`
	TermsAccepted   bool       `json:"terms_accepted"`
	PrivacyAccepted bool       `json:"privacy_accepted"`
}

// Usage holds the daily AI request counters.
type Usage struct {
	DailyLimit int        `json:"daily_limit"`
	DailyUsed  int        `json:"daily_used"`
	ResetAt    *time.Time `json:"reset_at,omitempty"`
}

// Remaining returns how many requests are left today.
func (u Usage) Remaining() int {
	if u.DailyUsed >= u.DailyLimit {
		return 0
	}
	return u.DailyLimit - u.DailyUsed
}

// Consent records accepted legal documents.
type Consent struct {
	Terms   bool `json:"terms"`
	Privacy bool `json:"privacy"`
}

// Complete reports whether both documents are accepted.
func (c Consent) Complete() bool { return c.Terms && c.Privacy }

// User is the application's view of the signed-in person.
type User struct {
	ID        string  `json:"id"`
	Email     string  `json:"email"`
	Name      string  `json:"name"`
	AvatarURL string  `json:"avatar_url,omitempty"`
	Plan      string  `json:"plan"`
	Usage     Usage   `json:"usage"`
	Consent   Consent `json:"consent"`
	// Progress maps course id to lesson id to status.
	Progress map[string]map[string]LessonStatus `json:"progress"`
}

// UserFromProfile maps the backend profile onto a User.
func UserFromProfile(p Profile) User {
	name := p.Name
	if name == "" {
		name = p.Email
	}
	plan := p.Plan
	if plan == "" {
		plan = "free"
	}
	return User{
		ID:        p.ID,
		Email:     p.Email,
		Name:      name,
		AvatarURL: p.AvatarURL,
		Plan:      plan,
		Usage: Usage{
			DailyLimit: p.DailyLimit,
			DailyUsed:  p.DailyUsed,
			ResetAt:    p.DailyResetAt,
		},
		Consent: Consent{
			Terms:   p.TermsAccepted,
			Privacy: p.PrivacyAccepted,
		},
		Progress: map[string]map[string]LessonStatus{},
	}
}

// ApplyProgress replaces the lesson status map for one course.
func (u *User) ApplyProgress(p CourseProgress) {
	if u.Progress == nil {
		u.Progress = map[string]map[string]LessonStatus{}
	}
	statuses := make(map[string]LessonStatus, len(p.Lessons))
	for id, lp := range p.Lessons {
		statuses[id] = lp.Status
	}
	u.Progress[p.CourseID] = statuses
}
