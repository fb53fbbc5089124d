package courses

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"sprint-academy/internal/models"
)

// Catalog lists courses and their lessons.
type Catalog interface {
	Courses(ctx context.Context) ([]models.Course, error)
	Lessons(ctx context.Context, courseID string) ([]models.Lesson, error)
}

// StaticCatalog serves a catalog bundled with the application.
type StaticCatalog struct {
	courses []models.Course
}

// NewStaticCatalog sorts every course's lessons by position.
func NewStaticCatalog(courses []models.Course) *StaticCatalog {
	out := make([]models.Course, len(courses))
	for i, c := range courses {
		lessons := append([]models.Lesson(nil), c.Lessons...)
		sort.SliceStable(lessons, func(a, b int) bool { return lessons[a].Position < lessons[b].Position })
		for j := range lessons {
			lessons[j].CourseID = c.ID
		}
		c.Lessons = lessons
		out[i] = c
	}
	return &StaticCatalog{courses: out}
}

// LoadStaticCatalog decodes a JSON array of courses.
func LoadStaticCatalog(r io.Reader) (*StaticCatalog, error) {
	var courses []models.Course
	if err := json.NewDecoder(r).Decode(&courses); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}
	return NewStaticCatalog(courses), nil
}

func (s *StaticCatalog) Courses(ctx context.Context) ([]models.Course, error) {
	return s.courses, nil
}

func (s *StaticCatalog) Lessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	for _, c := range s.courses {
		if c.ID == courseID {
			return c.Lessons, nil
		}
	}
	return nil, ErrCourseNotFound
}
