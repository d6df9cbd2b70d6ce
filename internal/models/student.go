package models

import "time"

// Student represents the student profile linked to a user account.
type Student struct {
	ID             string    `db:"id" json:"id"`
	UserID         string    `db:"user_id" json:"user_id"`
	FullName       string    `db:"full_name" json:"full_name"`
	StudentNumber  string    `db:"student_number" json:"student_number"`
	Active         bool      `db:"active" json:"active"`
	EnrollmentYear int       `db:"enrollment_year" json:"enrollment_year"`
	CreatedAt      time.Time `db:"created_at" json:"created_at"`
}
