package models

import "time"

// Class represents a scheduled section of a course taught by one teacher.
type Class struct {
	ID        string    `db:"id" json:"id"`
	CourseID  string    `db:"course_id" json:"course_id"`
	TeacherID string    `db:"teacher_id" json:"teacher_id"`
	Name      string    `db:"name" json:"name"`
	Semester  string    `db:"semester" json:"semester"`
	Room      string    `db:"room" json:"room"`
	MaxSeats  int       `db:"max_seats" json:"max_seats"`
	Active    bool      `db:"active" json:"active"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ClassDetail extends Class with course metadata and live seat figures.
// EnrolledCount is always computed by counting ACTIVE enrollments at read
// time; it is never stored or decremented.
type ClassDetail struct {
	Class
	CourseName     string `db:"course_name" json:"course_name"`
	CourseCode     string `db:"course_code" json:"course_code"`
	EnrolledCount  int    `db:"enrolled_count" json:"enrolled_count"`
	AvailableSeats int    `db:"available_seats" json:"available_seats"`
}

// SeatAvailability reports the live capacity view of one class.
type SeatAvailability struct {
	ClassID        string `json:"class_id"`
	MaxSeats       int    `json:"max_seats"`
	EnrolledCount  int    `json:"enrolled_count"`
	AvailableSeats int    `json:"available_seats"`
}

// ClassFilter defines filter criteria for listing classes.
type ClassFilter struct {
	CourseID  string
	TeacherID string
	Semester  string
	Search    string
	Active    *bool
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
