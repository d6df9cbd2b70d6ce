package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/novandi/sis-core-api/internal/models"
)

// EnrollmentRepository handles persistence of enrollments. Enroll runs the
// capacity check and the enrollment write as one transaction so a stale
// seat count can never admit more students than a class holds.
type EnrollmentRepository struct {
	db *sqlx.DB
}

// NewEnrollmentRepository constructs the repository.
func NewEnrollmentRepository(db *sqlx.DB) *EnrollmentRepository {
	return &EnrollmentRepository{db: db}
}

type lockedClass struct {
	ID       string `db:"id"`
	MaxSeats int    `db:"max_seats"`
	Active   bool   `db:"active"`
}

// Enroll admits a student into a class inside a single transaction:
// the class row is locked, the ACTIVE enrollment count is re-read under
// that lock, and only then is the enrollment row inserted or reactivated.
// Returns ErrClassNotFound, ErrClassInactive, ErrClassFull,
// ErrAlreadyEnrolled, ErrStudentNotFound, or ErrSerialization (retryable).
func (r *EnrollmentRepository) Enroll(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin enroll: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	var cls lockedClass
	if err := tx.GetContext(ctx, &cls, `SELECT id, max_seats, active FROM classes WHERE id = $1 FOR UPDATE`, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrClassNotFound
		}
		return nil, translateEnrollError(err)
	}
	if !cls.Active {
		return nil, ErrClassInactive
	}

	var existing models.Enrollment
	err = tx.GetContext(ctx, &existing,
		`SELECT id, student_id, class_id, status, enrolled_at, left_at, grade FROM enrollments WHERE student_id = $1 AND class_id = $2`,
		studentID, classID)
	if err != nil && err != sql.ErrNoRows {
		return nil, translateEnrollError(err)
	}
	if err == nil && existing.Status == models.EnrollmentStatusActive {
		return nil, ErrAlreadyEnrolled
	}
	reactivate := err == nil

	var active int
	if err := tx.GetContext(ctx, &active,
		`SELECT COUNT(*) FROM enrollments WHERE class_id = $1 AND status = $2`,
		classID, models.EnrollmentStatusActive); err != nil {
		return nil, translateEnrollError(err)
	}
	if active >= cls.MaxSeats {
		return nil, ErrClassFull
	}

	now := time.Now().UTC()
	var enrollment models.Enrollment
	if reactivate {
		err = tx.GetContext(ctx, &enrollment,
			`UPDATE enrollments SET status = $2, enrolled_at = $3, left_at = NULL
             WHERE id = $1
             RETURNING id, student_id, class_id, status, enrolled_at, left_at, grade`,
			existing.ID, models.EnrollmentStatusActive, now)
	} else {
		err = tx.GetContext(ctx, &enrollment,
			`INSERT INTO enrollments (id, student_id, class_id, status, enrolled_at)
             VALUES ($1, $2, $3, $4, $5)
             RETURNING id, student_id, class_id, status, enrolled_at, left_at, grade`,
			uuid.NewString(), studentID, classID, models.EnrollmentStatusActive, now)
	}
	if err != nil {
		return nil, translateEnrollError(err)
	}

	if err := tx.Commit(); err != nil {
		return nil, translateEnrollError(err)
	}
	committed = true
	return &enrollment, nil
}

// Unenroll flips the pair's ACTIVE enrollment to INACTIVE. The seat is
// freed implicitly: the next Enroll recounts live rows under the class
// lock, so no counter is decremented anywhere. Returns ErrNotEnrolled
// when the pair has no ACTIVE row.
func (r *EnrollmentRepository) Unenroll(ctx context.Context, studentID, classID string) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE enrollments SET status = $3, left_at = $4
         WHERE student_id = $1 AND class_id = $2 AND status = $5`,
		studentID, classID, models.EnrollmentStatusInactive, time.Now().UTC(), models.EnrollmentStatusActive)
	if err != nil {
		return fmt.Errorf("unenroll: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("unenroll rows affected: %w", err)
	}
	if affected == 0 {
		return ErrNotEnrolled
	}
	return nil
}

// SeatAvailability computes the live capacity view for a class.
func (r *EnrollmentRepository) SeatAvailability(ctx context.Context, classID string) (*models.SeatAvailability, error) {
	const query = `SELECT c.id AS class_id, c.max_seats,
        COUNT(e.id) FILTER (WHERE e.status = 'ACTIVE') AS enrolled_count
        FROM classes c
        LEFT JOIN enrollments e ON e.class_id = c.id
        WHERE c.id = $1
        GROUP BY c.id, c.max_seats`
	var row struct {
		ClassID       string `db:"class_id"`
		MaxSeats      int    `db:"max_seats"`
		EnrolledCount int    `db:"enrolled_count"`
	}
	if err := r.db.GetContext(ctx, &row, query, classID); err != nil {
		if err == sql.ErrNoRows {
			return nil, ErrClassNotFound
		}
		return nil, fmt.Errorf("seat availability: %w", err)
	}
	available := row.MaxSeats - row.EnrolledCount
	if available < 0 {
		available = 0
	}
	return &models.SeatAvailability{
		ClassID:        row.ClassID,
		MaxSeats:       row.MaxSeats,
		EnrolledCount:  row.EnrolledCount,
		AvailableSeats: available,
	}, nil
}

// FindDetail returns the enrollment for a pair enriched with student and
// class names, used to build enroll responses.
func (r *EnrollmentRepository) FindDetail(ctx context.Context, studentID, classID string) (*models.EnrollmentDetail, error) {
	const query = `SELECT e.id, e.student_id, e.class_id, e.status, e.enrolled_at, e.left_at, e.grade,
        s.full_name AS student_name, s.student_number, c.name AS class_name
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        JOIN classes c ON c.id = e.class_id
        WHERE e.student_id = $1 AND e.class_id = $2`
	var detail models.EnrollmentDetail
	if err := r.db.GetContext(ctx, &detail, query, studentID, classID); err != nil {
		return nil, err
	}
	return &detail, nil
}

// FindActiveByPair returns the ACTIVE enrollment for a pair, if any.
func (r *EnrollmentRepository) FindActiveByPair(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	const query = `SELECT id, student_id, class_id, status, enrolled_at, left_at, grade
        FROM enrollments WHERE student_id = $1 AND class_id = $2 AND status = $3`
	var enrollment models.Enrollment
	if err := r.db.GetContext(ctx, &enrollment, query, studentID, classID, models.EnrollmentStatusActive); err != nil {
		return nil, err
	}
	return &enrollment, nil
}

// Roster returns the active members of a class ordered by student name.
func (r *EnrollmentRepository) Roster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	const query = `SELECT e.id AS enrollment_id, e.student_id, s.full_name AS student_name,
        s.student_number, e.enrolled_at
        FROM enrollments e
        JOIN students s ON s.id = e.student_id
        WHERE e.class_id = $1 AND e.status = $2
        ORDER BY s.full_name ASC`
	var roster []models.RosterEntry
	if err := r.db.SelectContext(ctx, &roster, query, classID, models.EnrollmentStatusActive); err != nil {
		return nil, fmt.Errorf("class roster: %w", err)
	}
	return roster, nil
}

// EnrolledStudents reports which of the given students have an enrollment
// row (any status) in the class. Attendance validation accepts students
// who left the class after the lesson took place, so history counts.
func (r *EnrollmentRepository) EnrolledStudents(ctx context.Context, classID string, studentIDs []string) (map[string]bool, error) {
	if len(studentIDs) == 0 {
		return map[string]bool{}, nil
	}
	const chunkSize = 100
	enrolled := make(map[string]bool, len(studentIDs))
	for start := 0; start < len(studentIDs); start += chunkSize {
		end := start + chunkSize
		if end > len(studentIDs) {
			end = len(studentIDs)
		}
		chunk := studentIDs[start:end]
		placeholders := make([]string, len(chunk))
		args := make([]interface{}, 0, len(chunk)+1)
		args = append(args, classID)
		for i, id := range chunk {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			args = append(args, id)
		}
		query := fmt.Sprintf("SELECT student_id FROM enrollments WHERE class_id = $1 AND student_id IN (%s)", strings.Join(placeholders, ","))
		rows, err := r.db.QueryxContext(ctx, query, args...)
		if err != nil {
			return nil, fmt.Errorf("check enrolled students: %w", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return nil, fmt.Errorf("scan student id: %w", err)
			}
			enrolled[id] = true
		}
		rows.Close()
	}
	return enrolled, nil
}

// List returns enrollments filtered by the provided criteria.
func (r *EnrollmentRepository) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	base := `FROM enrollments e
JOIN students s ON s.id = e.student_id
JOIN classes c ON c.id = e.class_id`
	var conditions []string
	var args []interface{}

	if filter.StudentID != "" {
		conditions = append(conditions, fmt.Sprintf("e.student_id = $%d", len(args)+1))
		args = append(args, filter.StudentID)
	}
	if filter.ClassID != "" {
		conditions = append(conditions, fmt.Sprintf("e.class_id = $%d", len(args)+1))
		args = append(args, filter.ClassID)
	}
	if filter.Status != "" {
		conditions = append(conditions, fmt.Sprintf("e.status = $%d", len(args)+1))
		args = append(args, filter.Status)
	}

	clause := ""
	if len(conditions) > 0 {
		clause = " WHERE " + strings.Join(conditions, " AND ")
	}

	allowedSorts := map[string]string{
		"enrolled_at":  "e.enrolled_at",
		"student_name": "s.full_name",
		"class_name":   "c.name",
	}
	orderBy := allowedSorts[filter.SortBy]
	if orderBy == "" {
		orderBy = "e.enrolled_at"
	}
	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT e.id, e.student_id, e.class_id, e.status, e.enrolled_at, e.left_at, e.grade,
        s.full_name AS student_name, s.student_number, c.name AS class_name
        %s ORDER BY %s %s LIMIT %d OFFSET %d`, base+clause, orderBy, order, size, offset)

	var enrollments []models.EnrollmentDetail
	if err := r.db.SelectContext(ctx, &enrollments, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list enrollments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base+clause)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count enrollments: %w", err)
	}
	return enrollments, total, nil
}
