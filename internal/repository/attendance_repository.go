package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/novandi/sis-core-api/internal/models"
)

// AttendanceRepository handles persistence for per-lesson attendance.
type AttendanceRepository struct {
	db *sqlx.DB
}

// NewAttendanceRepository constructs the repository.
func NewAttendanceRepository(db *sqlx.DB) *AttendanceRepository {
	return &AttendanceRepository{db: db}
}

const upsertAttendanceQuery = `INSERT INTO attendance_records (id, lesson_id, student_id, status, notes, recorded_at, recorded_by)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (lesson_id, student_id)
DO UPDATE SET status = EXCLUDED.status, notes = EXCLUDED.notes, recorded_at = EXCLUDED.recorded_at, recorded_by = EXCLUDED.recorded_by
RETURNING id, lesson_id, student_id, status, notes, recorded_at, recorded_by`

// Upsert inserts or overwrites the attendance record for one
// (lesson, student) pair.
func (r *AttendanceRepository) Upsert(ctx context.Context, record *models.AttendanceRecord) (*models.AttendanceRecord, error) {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now().UTC()
	}
	var stored models.AttendanceRecord
	if err := r.db.GetContext(ctx, &stored, upsertAttendanceQuery,
		record.ID, record.LessonID, record.StudentID, record.Status, record.Notes, record.RecordedAt, record.RecordedBy); err != nil {
		return nil, fmt.Errorf("upsert attendance: %w", err)
	}
	return &stored, nil
}

// UpsertBatch applies all records in one transaction. Rows inside a batch
// carry no ordering guarantee; a concurrent reader observes either the
// previous committed state or the whole batch, and overlapping batches for
// the same student resolve last-writer-wins by commit order.
func (r *AttendanceRepository) UpsertBatch(ctx context.Context, records []models.AttendanceRecord) (int, error) {
	if len(records) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin attendance batch: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].RecordedAt.IsZero() {
			records[i].RecordedAt = now
		}
		if _, err := tx.ExecContext(ctx, upsertAttendanceQuery,
			records[i].ID, records[i].LessonID, records[i].StudentID, records[i].Status,
			records[i].Notes, records[i].RecordedAt, records[i].RecordedBy); err != nil {
			return 0, fmt.Errorf("apply attendance row %s: %w", records[i].StudentID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit attendance batch: %w", err)
	}
	committed = true
	return len(records), nil
}

// ListByLesson returns the lesson's attendance with student metadata.
func (r *AttendanceRepository) ListByLesson(ctx context.Context, lessonID string) ([]models.AttendanceDetail, error) {
	const query = `SELECT a.id, a.lesson_id, a.student_id, a.status, a.notes, a.recorded_at, a.recorded_by,
        s.full_name AS student_name, s.student_number
        FROM attendance_records a
        JOIN students s ON s.id = a.student_id
        WHERE a.lesson_id = $1
        ORDER BY s.full_name ASC`
	var records []models.AttendanceDetail
	if err := r.db.SelectContext(ctx, &records, query, lessonID); err != nil {
		return nil, fmt.Errorf("list lesson attendance: %w", err)
	}
	return records, nil
}

// CountByLesson returns the number of attendance rows stored for a lesson.
func (r *AttendanceRepository) CountByLesson(ctx context.Context, lessonID string) (int, error) {
	var total int
	if err := r.db.GetContext(ctx, &total, `SELECT COUNT(*) FROM attendance_records WHERE lesson_id = $1`, lessonID); err != nil {
		return 0, fmt.Errorf("count lesson attendance: %w", err)
	}
	return total, nil
}
