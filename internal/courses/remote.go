package courses

import (
	"context"

	"sprint-academy/internal/models"
)

// RemoteBackend is the backend's catalog endpoints.
type RemoteBackend interface {
	Courses(ctx context.Context) ([]models.Course, error)
	Lessons(ctx context.Context, courseID string) ([]models.Lesson, error)
}

// RemoteCatalog fetches the catalog from the backend on every call.
type RemoteCatalog struct {
	backend RemoteBackend
}

func NewRemoteCatalog(b RemoteBackend) *RemoteCatalog { return &RemoteCatalog{backend: b} }

func (r *RemoteCatalog) Courses(ctx context.Context) ([]models.Course, error) {
	return r.backend.Courses(ctx)
}

func (r *RemoteCatalog) Lessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	return r.backend.Lessons(ctx, courseID)
}
