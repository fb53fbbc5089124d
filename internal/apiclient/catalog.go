package apiclient

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"sprint-academy/internal/models"
)

// Courses lists the catalog.
func (c *Client) Courses(ctx context.Context) ([]models.Course, error) {
	var out []models.Course
	if err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/api/rest/v1/courses"}, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if err := c.validate.Struct(out[i]); err != nil {
			return nil, fmt.Errorf("invalid course payload: %w", err)
		}
	}
	return out, nil
}

// Lessons lists a course's lessons ordered by position.
func (c *Client) Lessons(ctx context.Context, courseID string) ([]models.Lesson, error) {
	q := url.Values{}
	q.Set("course_id", "eq."+courseID)
	var out []models.Lesson
	if err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/api/rest/v1/lessons", Query: q}, &out); err != nil {
		return nil, err
	}
	for i := range out {
		if err := c.validate.Struct(out[i]); err != nil {
			return nil, fmt.Errorf("invalid lesson payload: %w", err)
		}
		if out[i].CourseID == "" {
			out[i].CourseID = courseID
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func progressPath(courseID string) string {
	return "/api/courses/" + url.PathEscape(courseID) + "/progress"
}

// Progress loads a course's progress.
func (c *Client) Progress(ctx context.Context, courseID string) (models.CourseProgress, error) {
	var p models.CourseProgress
	err := c.Call(ctx, Request{Method: http.MethodGet, Path: progressPath(courseID)}, &p)
	return withCourse(p, courseID), err
}

// PutProgress replaces a course's progress.
func (c *Client) PutProgress(ctx context.Context, p models.CourseProgress) (models.CourseProgress, error) {
	var out models.CourseProgress
	err := c.Call(ctx, Request{Method: http.MethodPut, Path: progressPath(p.CourseID), Body: p}, &out)
	return withCourse(out, p.CourseID), err
}

// PatchProgress applies operations and returns the server's progress.
func (c *Client) PatchProgress(ctx context.Context, courseID string, ops []models.ProgressOp) (models.CourseProgress, error) {
	for _, op := range ops {
		if err := c.validate.Struct(op); err != nil {
			return models.CourseProgress{}, fmt.Errorf("invalid progress op: %w", err)
		}
	}
	var out models.CourseProgress
	body := map[string]any{"ops": ops}
	err := c.Call(ctx, Request{Method: http.MethodPatch, Path: progressPath(courseID), Body: body}, &out)
	return withCourse(out, courseID), err
}

// Resume returns the lesson to continue from.
func (c *Client) Resume(ctx context.Context, courseID string) (models.Resume, error) {
	var r models.Resume
	err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/api/courses/" + url.PathEscape(courseID) + "/resume"}, &r)
	if r.CourseID == "" {
		r.CourseID = courseID
	}
	return r, err
}

// ProgressBatch loads progress for several courses at once.
func (c *Client) ProgressBatch(ctx context.Context, courseIDs []string) (map[string]models.CourseProgress, error) {
	ids := append([]string(nil), courseIDs...)
	sort.Strings(ids)
	q := url.Values{}
	q.Set("courseIds", strings.Join(ids, ","))
	var list []models.CourseProgress
	if err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/api/progress", Query: q}, &list); err != nil {
		return nil, err
	}
	out := make(map[string]models.CourseProgress, len(list))
	for _, p := range list {
		out[p.CourseID] = p
	}
	return out, nil
}

// Quota returns the AI allowance for a course.
func (c *Client) Quota(ctx context.Context, courseID string) (models.Quota, error) {
	var q models.Quota
	err := c.Call(ctx, Request{Method: http.MethodGet, Path: "/api/courses/" + url.PathEscape(courseID) + "/quota"}, &q)
	if q.CourseID == "" {
		q.CourseID = courseID
	}
	return q, err
}

func withCourse(p models.CourseProgress, courseID string) models.CourseProgress {
	if p.CourseID == "" {
		p.CourseID = courseID
	}
	if p.Lessons == nil {
		p.Lessons = map[string]models.LessonProgress{}
	}
	return p
}
