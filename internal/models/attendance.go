package models

import "time"

// AttendanceStatus represents the status for attendance records.
type AttendanceStatus string

const (
	AttendanceStatusPresent AttendanceStatus = "PRESENT"
	AttendanceStatusAbsent  AttendanceStatus = "ABSENT"
	AttendanceStatusLate    AttendanceStatus = "LATE"
	AttendanceStatusExcused AttendanceStatus = "EXCUSED"
)

// Valid returns true when the status is a supported value.
func (s AttendanceStatus) Valid() bool {
	switch s {
	case AttendanceStatusPresent, AttendanceStatusAbsent, AttendanceStatusLate, AttendanceStatusExcused:
		return true
	default:
		return false
	}
}

// AttendanceRecord is one student's attendance for one lesson. The
// (lesson_id, student_id) pair is unique; repeat submissions overwrite
// status, notes and recorded_at instead of creating a second row.
type AttendanceRecord struct {
	ID         string           `db:"id" json:"id"`
	LessonID   string           `db:"lesson_id" json:"lesson_id"`
	StudentID  string           `db:"student_id" json:"student_id"`
	Status     AttendanceStatus `db:"status" json:"status"`
	Notes      *string          `db:"notes" json:"notes,omitempty"`
	RecordedAt time.Time        `db:"recorded_at" json:"recorded_at"`
	RecordedBy string           `db:"recorded_by" json:"recorded_by"`
}

// AttendanceDetail extends the record with student metadata for listings.
type AttendanceDetail struct {
	AttendanceRecord
	StudentName   string `db:"student_name" json:"student_name"`
	StudentNumber string `db:"student_number" json:"student_number"`
}

// RejectionReason explains why one batch row was not applied.
type RejectionReason string

const (
	RejectionUnknownStudent     RejectionReason = "UNKNOWN_STUDENT"
	RejectionInvalidStatus      RejectionReason = "INVALID_STATUS"
	RejectionStudentNotEnrolled RejectionReason = "STUDENT_NOT_ENROLLED"
)

// AttendanceRejection reports one rejected row from a batch submission.
type AttendanceRejection struct {
	StudentID string          `json:"student_id"`
	Reason    RejectionReason `json:"reason"`
}

// BatchResult summarises a bulk attendance submission. Applied counts the
// rows upserted; Rejected lists the rows skipped with a per-row reason.
type BatchResult struct {
	Applied  int                   `json:"applied"`
	Rejected []AttendanceRejection `json:"rejected,omitempty"`
}
