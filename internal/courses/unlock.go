package courses

import "sprint-academy/internal/models"

// IsUnlocked evaluates a lesson's unlock rule. Unknown rules stay locked.
func IsUnlocked(rule *models.UnlockRule, idx int, lessons []models.Lesson, progress models.CourseProgress, purchased bool) bool {
	if rule == nil {
		return true
	}
	switch rule.Kind {
	case "", models.UnlockAlways:
		return true
	case models.UnlockAfterPrevious:
		if idx <= 0 {
			return true
		}
		if idx > len(lessons) {
			return false
		}
		return progress.StatusOf(lessons[idx-1].ID) == models.StatusCompleted
	case models.UnlockPaid:
		return purchased
	default:
		return false
	}
}
