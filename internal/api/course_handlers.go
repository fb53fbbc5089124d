package api

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"sprint-academy/internal/content"
	"sprint-academy/internal/courses"
	"sprint-academy/internal/models"
	"sprint-academy/internal/visitor"
)

func (h *ApiHandler) GetCourses(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	list, err := v.Courses.Catalog(r.Context())
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, list)
}

func (h *ApiHandler) GetCourse(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	course, err := v.Courses.Course(r.Context(), mux.Vars(r)["course_id"])
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, course)
}

func (h *ApiHandler) GetLessons(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	course, err := v.Courses.Course(r.Context(), mux.Vars(r)["course_id"])
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	lessons := course.Lessons
	if lessons == nil {
		lessons = []models.Lesson{}
	}
	respondWithJSON(w, http.StatusOK, lessons)
}

// openLesson loads a lesson with its content and answers 403 when the
// lesson's unlock rule keeps it closed for the visitor.
func (h *ApiHandler) openLesson(w http.ResponseWriter, r *http.Request, v *visitor.Visitor, opts content.Options) (models.Lesson, models.LessonContent, bool) {
	vars := mux.Vars(r)
	course, err := v.Courses.Course(r.Context(), vars["course_id"])
	if err != nil {
		h.respondWithFailure(w, r, err)
		return models.Lesson{}, models.LessonContent{}, false
	}
	var lesson models.Lesson
	found := false
	for _, l := range course.Lessons {
		if l.ID == vars["lesson_id"] {
			lesson, found = l, true
			break
		}
	}
	if !found {
		h.respondWithFailure(w, r, courses.ErrCourseNotFound)
		return models.Lesson{}, models.LessonContent{}, false
	}

	body, err := v.Content.Fetch(r.Context(), lesson.ID, opts)
	if err != nil {
		h.respondWithFailure(w, r, err)
		return models.Lesson{}, models.LessonContent{}, false
	}
	unlocked, err := v.Courses.Unlocked(r.Context(), course, lesson.ID, body.UnlockRule)
	if err != nil {
		h.respondWithFailure(w, r, err)
		return models.Lesson{}, models.LessonContent{}, false
	}
	if !unlocked {
		respondWithError(w, http.StatusForbidden, "This lesson is locked")
		return models.Lesson{}, models.LessonContent{}, false
	}
	return lesson, body, true
}

// GetLessonContent returns the lesson body if its unlock rule allows it.
// ?fresh=1 bypasses the ETag cache.
func (h *ApiHandler) GetLessonContent(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	fresh := r.URL.Query().Get("fresh") == "1"
	lesson, body, ok := h.openLesson(w, r, v, content.Options{BypassCache: fresh})
	if !ok {
		return
	}
	if etag := v.Content.ETag(lesson.ID); etag != "" {
		w.Header().Set("ETag", etag)
	}
	respondWithJSON(w, http.StatusOK, body)
}

func (h *ApiHandler) GetProgress(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	p, err := v.Courses.Progress(r.Context(), mux.Vars(r)["course_id"])
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	v.UpdateUser(func(u *models.User) { u.ApplyProgress(p) })
	respondWithJSON(w, http.StatusOK, p)
}

func (h *ApiHandler) PutProgress(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	var p models.CourseProgress
	if !decodeJSON(w, r, &p) {
		return
	}
	p.CourseID = mux.Vars(r)["course_id"]
	out, err := v.Courses.Replace(r.Context(), p)
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	v.UpdateUser(func(u *models.User) { u.ApplyProgress(out) })
	respondWithJSON(w, http.StatusOK, out)
}

type patchProgressRequest struct {
	Ops []models.ProgressOp `json:"ops"`
}

func (h *ApiHandler) PatchProgress(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	var req patchProgressRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if len(req.Ops) == 0 {
		respondWithError(w, http.StatusBadRequest, "No progress operations")
		return
	}
	out, err := v.Courses.Patch(r.Context(), mux.Vars(r)["course_id"], req.Ops...)
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	v.UpdateUser(func(u *models.User) { u.ApplyProgress(out) })
	respondWithJSON(w, http.StatusOK, out)
}

type resumeResponse struct {
	CourseID string         `json:"course_id"`
	Lesson   *models.Lesson `json:"lesson"`
	Index    int            `json:"index"`
	Total    int            `json:"total"`
	HasPrev  bool           `json:"has_prev"`
	HasNext  bool           `json:"has_next"`
}

// GetResume tells the viewer which lesson to open.
func (h *ApiHandler) GetResume(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	courseID := mux.Vars(r)["course_id"]
	cur, err := v.Courses.Cursor(r.Context(), courseID)
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	if id := r.URL.Query().Get("lesson"); id != "" {
		cur.Seek(id)
	}
	resp := resumeResponse{CourseID: courseID, Index: cur.Index(), Total: cur.Len(), HasPrev: cur.HasPrev(), HasNext: cur.HasNext()}
	if l, ok := cur.Current(); ok {
		resp.Lesson = &l
	}
	respondWithJSON(w, http.StatusOK, resp)
}

// GetProgressBatch loads progress for ?courseIds=a,b.
func (h *ApiHandler) GetProgressBatch(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	ids := strings.Split(r.URL.Query().Get("courseIds"), ",")
	out, err := v.Courses.ProgressFor(r.Context(), ids)
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	v.UpdateUser(func(u *models.User) {
		for _, p := range out {
			u.ApplyProgress(p)
		}
	})
	respondWithJSON(w, http.StatusOK, out)
}

func (h *ApiHandler) GetQuota(w http.ResponseWriter, r *http.Request) {
	v, ok := h.current(w, r)
	if !ok {
		return
	}
	q, err := v.Courses.Quota(r.Context(), mux.Vars(r)["course_id"])
	if err != nil {
		h.respondWithFailure(w, r, err)
		return
	}
	respondWithJSON(w, http.StatusOK, q)
}
