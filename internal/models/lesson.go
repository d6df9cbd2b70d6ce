package models

import "time"

// LessonType categorises a lesson session.
type LessonType string

const (
	LessonTypeLecture LessonType = "LECTURE"
	LessonTypeLab     LessonType = "LAB"
	LessonTypeSeminar LessonType = "SEMINAR"
	LessonTypeExam    LessonType = "EXAM"
	LessonTypeReview  LessonType = "REVIEW"
)

// Valid returns true when the lesson type is a supported value.
func (t LessonType) Valid() bool {
	switch t {
	case LessonTypeLecture, LessonTypeLab, LessonTypeSeminar, LessonTypeExam, LessonTypeReview:
		return true
	default:
		return false
	}
}

// Lesson is an individual session belonging to exactly one class.
type Lesson struct {
	ID              string     `db:"id" json:"id"`
	ClassID         string     `db:"class_id" json:"class_id"`
	Title           string     `db:"title" json:"title"`
	Description     string     `db:"description" json:"description"`
	ScheduledAt     time.Time  `db:"scheduled_at" json:"scheduled_at"`
	DurationMinutes int        `db:"duration_minutes" json:"duration_minutes"`
	LessonType      LessonType `db:"lesson_type" json:"lesson_type"`
	Cancelled       bool       `db:"cancelled" json:"cancelled"`
}
