package models

import "time"

// EnrollmentStatus represents the lifecycle of an enrollment.
type EnrollmentStatus string

// At most one ACTIVE enrollment may exist per (student, class) pair.
// Unenrolling flips the row to INACTIVE; re-enrolling reactivates the same
// row with a fresh enrolled_at, so the pair is unique across all statuses.
const (
	EnrollmentStatusActive   EnrollmentStatus = "ACTIVE"
	EnrollmentStatusInactive EnrollmentStatus = "INACTIVE"
)

// Enrollment captures a student's registration to a class.
type Enrollment struct {
	ID         string           `db:"id" json:"id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	ClassID    string           `db:"class_id" json:"class_id"`
	Status     EnrollmentStatus `db:"status" json:"status"`
	EnrolledAt time.Time        `db:"enrolled_at" json:"enrolled_at"`
	LeftAt     *time.Time       `db:"left_at" json:"left_at,omitempty"`
	Grade      *string          `db:"grade" json:"grade,omitempty"`
}

// EnrollmentDetail enriches Enrollment with student and class info.
type EnrollmentDetail struct {
	Enrollment
	StudentName   string `db:"student_name" json:"student_name"`
	StudentNumber string `db:"student_number" json:"student_number"`
	ClassName     string `db:"class_name" json:"class_name"`
}

// RosterEntry is one active member of a class roster.
type RosterEntry struct {
	EnrollmentID  string    `db:"enrollment_id" json:"enrollment_id"`
	StudentID     string    `db:"student_id" json:"student_id"`
	StudentName   string    `db:"student_name" json:"student_name"`
	StudentNumber string    `db:"student_number" json:"student_number"`
	EnrolledAt    time.Time `db:"enrolled_at" json:"enrolled_at"`
}

// EnrollmentFilter provides filters for listing enrollments.
type EnrollmentFilter struct {
	StudentID string
	ClassID   string
	Status    EnrollmentStatus
	Page      int
	PageSize  int
	SortBy    string
	SortOrder string
}
