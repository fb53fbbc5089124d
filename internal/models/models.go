package models

import (
	"encoding/json"
	"strings"
)

// AccessTier describes who may open a course.
type AccessTier string

const (
	AccessFree         AccessTier = "free"
	AccessPaid         AccessTier = "paid"
	AccessSubscription AccessTier = "subscription"
)

// CourseStatus is the publication state of a catalog entry.
type CourseStatus string

const (
	CourseDraft     CourseStatus = "draft"
	CoursePublished CourseStatus = "published"
)

// Course is one catalog entry with its ordered lessons.
type Course struct {
	ID          string       `json:"id" validate:"required"`
	Title       string       `json:"title" validate:"required"`
	Description string       `json:"description"`
	Price       int          `json:"price" validate:"gte=0"`
	Currency    string       `json:"currency"`
	Access      AccessTier   `json:"access" validate:"omitempty,oneof=free paid subscription"`
	Status      CourseStatus `json:"status" validate:"omitempty,oneof=draft published"`
	Labels      Labels       `json:"labels"`
	Lessons     []Lesson     `json:"lessons,omitempty" validate:"dive"`
}

// Published reports whether the course is visible in the catalog.
func (c Course) Published() bool {
	return c.Status == "" || c.Status == CoursePublished
}

// LessonType selects the interactive panel rendered next to a lesson.
type LessonType string

const (
	LessonVideoText          LessonType = "video_text"
	LessonInteractiveAnalyze LessonType = "interactive_analyze"
	LessonInteractiveEdit    LessonType = "interactive_edit"
	LessonCodeGeneration     LessonType = "code_generation"
)

// Lesson is the shell of a lesson; its content is fetched separately.
type Lesson struct {
	ID          string     `json:"id" validate:"required"`
	CourseID    string     `json:"course_id"`
	Position    int        `json:"position"`
	Title       string     `json:"title" validate:"required"`
	Type        LessonType `json:"type" validate:"omitempty,oneof=video_text interactive_analyze interactive_edit code_generation"`
	VideoURL    string     `json:"video_url,omitempty"`
	InitialCode string     `json:"initial_code,omitempty"`
}

// HasSandbox reports whether the lesson opens the code sandbox.
func (l Lesson) HasSandbox() bool {
	return l.Type == LessonCodeGeneration
}

// Block is one renderable piece of lesson content.
type Block struct {
	ID   string          `json:"id,omitempty"`
	Type string          `json:"type"`
	Text string          `json:"text,omitempty"`
	URL  string          `json:"url,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
}

// UnlockKind names the rule that opens a lesson.
type UnlockKind string

const (
	UnlockAlways        UnlockKind = "always"
	UnlockAfterPrevious UnlockKind = "after_previous"
	UnlockPaid          UnlockKind = "paid"
)

// UnlockRule decides when a lesson becomes available.
type UnlockRule struct {
	Kind UnlockKind `json:"type"`
}

// LessonContent is the lazily fetched body of a lesson.
type LessonContent struct {
	Blocks     []Block        `json:"blocks"`
	Settings   map[string]any `json:"settings"`
	UnlockRule *UnlockRule    `json:"unlock_rule"`
}

// EmptyContent is returned for blank lesson ids.
func EmptyContent() LessonContent {
	return LessonContent{Blocks: []Block{}, Settings: map[string]any{}}
}

// Labels is a normalized list of tags. The backend ships them as a JSON
// array, a JSON-encoded array inside a string, or a comma separated string.
type Labels []string

func (l *Labels) UnmarshalJSON(data []byte) error {
	var list []string
	if err := json.Unmarshal(data, &list); err == nil {
		*l = normalizeLabels(list)
		return nil
	}
	var s *string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	if s == nil {
		*l = Labels{}
		return nil
	}
	raw := strings.TrimSpace(*s)
	if strings.HasPrefix(raw, "[") {
		if err := json.Unmarshal([]byte(raw), &list); err == nil {
			*l = normalizeLabels(list)
			return nil
		}
	}
	*l = normalizeLabels(strings.Split(raw, ","))
	return nil
}

func normalizeLabels(in []string) Labels {
	out := Labels{}
	seen := make(map[string]struct{}, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}
