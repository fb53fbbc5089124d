package models

// LessonStatus is the per-lesson progress state.
type LessonStatus string

const (
	StatusNotStarted LessonStatus = "not_started"
	StatusInProgress LessonStatus = "in_progress"
	StatusCompleted  LessonStatus = "completed"
)

// LessonProgress is the server's record for one lesson.
type LessonProgress struct {
	Status  LessonStatus      `json:"status"`
	Answers map[string]string `json:"answers,omitempty"`
}

// CourseProgress is the server's record for one course.
type CourseProgress struct {
	CourseID       string                    `json:"course_id"`
	Lessons        map[string]LessonProgress `json:"lessons"`
	ResumeLessonID string                    `json:"resume_lesson_id,omitempty"`
}

// StatusOf returns the lesson's status, defaulting to not started.
func (p CourseProgress) StatusOf(lessonID string) LessonStatus {
	if lp, ok := p.Lessons[lessonID]; ok && lp.Status != "" {
		return lp.Status
	}
	return StatusNotStarted
}

// Completed counts completed lessons.
func (p CourseProgress) Completed() int {
	n := 0
	for _, lp := range p.Lessons {
		if lp.Status == StatusCompleted {
			n++
		}
	}
	return n
}

// ProgressOpKind names a patch operation.
type ProgressOpKind string

const (
	OpQuizAnswer ProgressOpKind = "quiz_answer"
	OpStatus     ProgressOpKind = "status"
	OpResume     ProgressOpKind = "resume"
)

// ProgressOp is one patch operation sent to the backend.
type ProgressOp struct {
	Op         ProgressOpKind `json:"op" validate:"required,oneof=quiz_answer status resume"`
	LessonID   string         `json:"lesson_id" validate:"required"`
	Status     LessonStatus   `json:"status,omitempty" validate:"required_if=Op status"`
	QuestionID string         `json:"question_id,omitempty" validate:"required_if=Op quiz_answer"`
	Answer     string         `json:"answer,omitempty"`
}

// Resume is the backend's resume pointer for a course.
type Resume struct {
	CourseID string `json:"course_id"`
	LessonID string `json:"lesson_id"`
}

// Quota is the AI request allowance for a course.
type Quota struct {
	CourseID  string `json:"course_id"`
	Limit     int    `json:"limit"`
	Used      int    `json:"used"`
	Remaining int    `json:"remaining"`
}
