package models

// Course represents a subject offering such as "MATH101 - Mathematics".
type Course struct {
	ID          string `db:"id" json:"id"`
	Name        string `db:"name" json:"name"`
	Code        string `db:"code" json:"code"`
	Description string `db:"description" json:"description"`
	Credits     int    `db:"credits" json:"credits"`
}

// CourseFilter defines filter criteria for listing courses.
type CourseFilter struct {
	Search   string
	Page     int
	PageSize int
}
