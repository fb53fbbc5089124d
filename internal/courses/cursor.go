package courses

import "sprint-academy/internal/models"

// Cursor walks a course's lessons in order. It never moves past either end.
type Cursor struct {
	lessons []models.Lesson
	idx     int
}

// NewCursor starts at the first lesson.
func NewCursor(lessons []models.Lesson) *Cursor {
	return &Cursor{lessons: lessons}
}

// Len is the number of lessons.
func (c *Cursor) Len() int { return len(c.lessons) }

// Index is the current position.
func (c *Cursor) Index() int { return c.idx }

// Current returns the lesson under the cursor.
func (c *Cursor) Current() (models.Lesson, bool) {
	if c.idx < 0 || c.idx >= len(c.lessons) {
		return models.Lesson{}, false
	}
	return c.lessons[c.idx], true
}

func (c *Cursor) HasNext() bool { return c.idx+1 < len(c.lessons) }
func (c *Cursor) HasPrev() bool { return c.idx > 0 }

// Next advances one lesson.
func (c *Cursor) Next() bool {
	if !c.HasNext() {
		return false
	}
	c.idx++
	return true
}

// Prev steps back one lesson.
func (c *Cursor) Prev() bool {
	if !c.HasPrev() {
		return false
	}
	c.idx--
	return true
}

// Seek moves to the lesson with the given id.
func (c *Cursor) Seek(lessonID string) bool {
	for i, l := range c.lessons {
		if l.ID == lessonID {
			c.idx = i
			return true
		}
	}
	return false
}

// Resume positions the cursor from server progress: the resume pointer if
// it names a lesson, else the first lesson not completed, else the last one.
func (c *Cursor) Resume(p models.CourseProgress) {
	if p.ResumeLessonID != "" && c.Seek(p.ResumeLessonID) {
		return
	}
	for i, l := range c.lessons {
		if p.StatusOf(l.ID) != models.StatusCompleted {
			c.idx = i
			return
		}
	}
	if len(c.lessons) > 0 {
		c.idx = len(c.lessons) - 1
	}
}

// Lessons returns the ordered lessons.
func (c *Cursor) Lessons() []models.Lesson { return c.lessons }
