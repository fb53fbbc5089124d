package courses

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"

	"sprint-academy/internal/flight"
	"sprint-academy/internal/logger"
	"sprint-academy/internal/models"
)

// ErrCourseNotFound is returned for unknown course ids.
var ErrCourseNotFound = errors.New("courses: course not found")

// Backend is the progress side of the learning backend.
type Backend interface {
	Progress(ctx context.Context, courseID string) (models.CourseProgress, error)
	PutProgress(ctx context.Context, p models.CourseProgress) (models.CourseProgress, error)
	PatchProgress(ctx context.Context, courseID string, ops []models.ProgressOp) (models.CourseProgress, error)
	Resume(ctx context.Context, courseID string) (models.Resume, error)
	ProgressBatch(ctx context.Context, courseIDs []string) (map[string]models.CourseProgress, error)
	Quota(ctx context.Context, courseID string) (models.Quota, error)
	PurchasedCourses(ctx context.Context) ([]models.PurchasedCourse, error)
}

// Service combines the catalog with server-side progress. Progress is
// never computed locally: every mutation stores what the server answered.
type Service struct {
	catalog Catalog
	backend Backend
	log     *logger.Logger

	mu       sync.RWMutex
	progress map[string]models.CourseProgress

	batches singleflight.Group
}

// NewService wires a catalog and a backend.
func NewService(catalog Catalog, backend Backend, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		catalog:  catalog,
		backend:  backend,
		log:      log.With("component", "courses"),
		progress: make(map[string]models.CourseProgress),
	}
}

// Catalog lists published courses.
func (s *Service) Catalog(ctx context.Context) ([]models.Course, error) {
	all, err := s.catalog.Courses(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]models.Course, 0, len(all))
	for _, c := range all {
		if c.Published() {
			out = append(out, c)
		}
	}
	return out, nil
}

// Course returns one course with its lessons.
func (s *Service) Course(ctx context.Context, courseID string) (models.Course, error) {
	all, err := s.catalog.Courses(ctx)
	if err != nil {
		return models.Course{}, err
	}
	for _, c := range all {
		if c.ID != courseID {
			continue
		}
		lessons, err := s.catalog.Lessons(ctx, courseID)
		if err != nil {
			return models.Course{}, err
		}
		c.Lessons = lessons
		return c, nil
	}
	return models.Course{}, ErrCourseNotFound
}

func (s *Service) remember(p models.CourseProgress) models.CourseProgress {
	s.mu.Lock()
	s.progress[p.CourseID] = p
	s.mu.Unlock()
	return p
}

// Cached returns the last progress the server reported for a course.
func (s *Service) Cached(courseID string) (models.CourseProgress, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.progress[courseID]
	return p, ok
}

// Progress reloads one course's progress from the server.
func (s *Service) Progress(ctx context.Context, courseID string) (models.CourseProgress, error) {
	p, err := s.backend.Progress(ctx, courseID)
	if err != nil {
		return models.CourseProgress{}, err
	}
	return s.remember(p), nil
}

// ProgressFor loads several courses at once. Identical concurrent requests
// share one backend call regardless of id order.
func (s *Service) ProgressFor(ctx context.Context, courseIDs []string) (map[string]models.CourseProgress, error) {
	ids := make([]string, 0, len(courseIDs))
	seen := map[string]struct{}{}
	for _, id := range courseIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return map[string]models.CourseProgress{}, nil
	}
	sort.Strings(ids)
	key := strings.Join(ids, ",")

	return flight.Do(ctx, &s.batches, key, flight.DefaultTimeout, func(ctx context.Context) (map[string]models.CourseProgress, error) {
		got, err := s.backend.ProgressBatch(ctx, ids)
		if err != nil {
			return nil, err
		}
		for _, p := range got {
			s.remember(p)
		}
		return got, nil
	})
}

// Replace overwrites a course's progress.
func (s *Service) Replace(ctx context.Context, p models.CourseProgress) (models.CourseProgress, error) {
	out, err := s.backend.PutProgress(ctx, p)
	if err != nil {
		return models.CourseProgress{}, err
	}
	return s.remember(out), nil
}

// Patch sends operations and stores the server's answer.
func (s *Service) Patch(ctx context.Context, courseID string, ops ...models.ProgressOp) (models.CourseProgress, error) {
	out, err := s.backend.PatchProgress(ctx, courseID, ops)
	if err != nil {
		return models.CourseProgress{}, err
	}
	return s.remember(out), nil
}

// AnswerQuiz records a quiz answer.
func (s *Service) AnswerQuiz(ctx context.Context, courseID, lessonID, questionID, answer string) (models.CourseProgress, error) {
	return s.Patch(ctx, courseID, models.ProgressOp{Op: models.OpQuizAnswer, LessonID: lessonID, QuestionID: questionID, Answer: answer})
}

// SetStatus changes a lesson's status.
func (s *Service) SetStatus(ctx context.Context, courseID, lessonID string, status models.LessonStatus) (models.CourseProgress, error) {
	return s.Patch(ctx, courseID, models.ProgressOp{Op: models.OpStatus, LessonID: lessonID, Status: status})
}

// SetResume moves the resume pointer.
func (s *Service) SetResume(ctx context.Context, courseID, lessonID string) (models.CourseProgress, error) {
	return s.Patch(ctx, courseID, models.ProgressOp{Op: models.OpResume, LessonID: lessonID})
}

// Cursor builds a cursor for a course positioned at the resume point.
func (s *Service) Cursor(ctx context.Context, courseID string) (*Cursor, error) {
	lessons, err := s.catalog.Lessons(ctx, courseID)
	if err != nil {
		return nil, err
	}
	cur := NewCursor(lessons)
	p, err := s.Progress(ctx, courseID)
	if err != nil {
		return nil, err
	}
	if p.ResumeLessonID == "" {
		if r, err := s.backend.Resume(ctx, courseID); err == nil {
			p.ResumeLessonID = r.LessonID
		} else {
			s.log.Debug("resume pointer unavailable", "course_id", courseID, "error", err)
		}
	}
	cur.Resume(p)
	return cur, nil
}

// Purchased reports whether the visitor bought the course.
func (s *Service) Purchased(ctx context.Context, courseID string) (bool, error) {
	list, err := s.backend.PurchasedCourses(ctx)
	if err != nil {
		return false, err
	}
	for _, p := range list {
		if p.CourseID == courseID {
			return true, nil
		}
	}
	return false, nil
}

// Unlocked evaluates a lesson's rule for the visitor.
func (s *Service) Unlocked(ctx context.Context, course models.Course, lessonID string, rule *models.UnlockRule) (bool, error) {
	idx := -1
	for i, l := range course.Lessons {
		if l.ID == lessonID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, ErrCourseNotFound
	}
	purchased := course.Access == models.AccessFree
	if rule != nil && rule.Kind == models.UnlockPaid && !purchased {
		var err error
		if purchased, err = s.Purchased(ctx, course.ID); err != nil {
			return false, err
		}
	}
	var progress models.CourseProgress
	if rule != nil && rule.Kind == models.UnlockAfterPrevious {
		var err error
		if progress, err = s.Progress(ctx, course.ID); err != nil {
			return false, err
		}
	}
	return IsUnlocked(rule, idx, course.Lessons, progress, purchased), nil
}

// Quota returns the AI allowance for a course.
func (s *Service) Quota(ctx context.Context, courseID string) (models.Quota, error) {
	return s.backend.Quota(ctx, courseID)
}
