package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/novandi/sis-core-api/internal/models"
)

func newEnrollmentRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

const (
	lockClassPattern  = `SELECT id, max_seats, active FROM classes WHERE id = \$1 FOR UPDATE`
	pairQueryPattern  = `SELECT id, student_id, class_id, status, enrolled_at, left_at, grade FROM enrollments WHERE student_id = \$1 AND class_id = \$2`
	countQueryPattern = `SELECT COUNT\(\*\) FROM enrollments WHERE class_id = \$1 AND status = \$2`
)

func lockedClassRows(maxSeats int, active bool) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "max_seats", "active"}).AddRow("class-1", maxSeats, active)
}

func enrollmentRows(id string) *sqlmock.Rows {
	return sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "enrolled_at", "left_at", "grade"}).
		AddRow(id, "stu-1", "class-1", models.EnrollmentStatusActive, time.Now(), nil, nil)
}

func TestEnrollmentRepositoryEnrollInsertsNewRow(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockClassPattern).WithArgs("class-1").WillReturnRows(lockedClassRows(30, true))
	mock.ExpectQuery(pairQueryPattern).WithArgs("stu-1", "class-1").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(countQueryPattern).WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`INSERT INTO enrollments`).WillReturnRows(enrollmentRows("enr-1"))
	mock.ExpectCommit()

	enrollment, err := repo.Enroll(context.Background(), "stu-1", "class-1")
	require.NoError(t, err)
	require.Equal(t, "enr-1", enrollment.ID)
	require.Equal(t, models.EnrollmentStatusActive, enrollment.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollReactivatesInactiveRow(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	left := time.Now().Add(-time.Hour)
	existing := sqlmock.NewRows([]string{"id", "student_id", "class_id", "status", "enrolled_at", "left_at", "grade"}).
		AddRow("enr-1", "stu-1", "class-1", models.EnrollmentStatusInactive, time.Now().Add(-2*time.Hour), left, nil)

	mock.ExpectBegin()
	mock.ExpectQuery(lockClassPattern).WithArgs("class-1").WillReturnRows(lockedClassRows(30, true))
	mock.ExpectQuery(pairQueryPattern).WithArgs("stu-1", "class-1").WillReturnRows(existing)
	mock.ExpectQuery(countQueryPattern).WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(12))
	mock.ExpectQuery(`UPDATE enrollments SET status = \$2, enrolled_at = \$3, left_at = NULL`).
		WillReturnRows(enrollmentRows("enr-1"))
	mock.ExpectCommit()

	enrollment, err := repo.Enroll(context.Background(), "stu-1", "class-1")
	require.NoError(t, err)
	require.Equal(t, "enr-1", enrollment.ID)
	require.Nil(t, enrollment.LeftAt)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollClassFull(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockClassPattern).WithArgs("class-1").WillReturnRows(lockedClassRows(30, true))
	mock.ExpectQuery(pairQueryPattern).WithArgs("stu-1", "class-1").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(countQueryPattern).WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(30))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "class-1")
	require.ErrorIs(t, err, ErrClassFull)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollAlreadyActive(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockClassPattern).WithArgs("class-1").WillReturnRows(lockedClassRows(30, true))
	mock.ExpectQuery(pairQueryPattern).WithArgs("stu-1", "class-1").WillReturnRows(enrollmentRows("enr-1"))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "class-1")
	require.ErrorIs(t, err, ErrAlreadyEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollInactiveClass(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockClassPattern).WithArgs("class-1").WillReturnRows(lockedClassRows(30, false))
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "class-1")
	require.ErrorIs(t, err, ErrClassInactive)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollMissingClass(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockClassPattern).WithArgs("missing").WillReturnError(sql.ErrNoRows)
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "missing")
	require.ErrorIs(t, err, ErrClassNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollTranslatesUniqueViolation(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockClassPattern).WithArgs("class-1").WillReturnRows(lockedClassRows(30, true))
	mock.ExpectQuery(pairQueryPattern).WithArgs("stu-1", "class-1").WillReturnError(sql.ErrNoRows)
	mock.ExpectQuery(countQueryPattern).WithArgs("class-1", models.EnrollmentStatusActive).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(10))
	mock.ExpectQuery(`INSERT INTO enrollments`).WillReturnError(&pq.Error{Code: "23505"})
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "class-1")
	require.ErrorIs(t, err, ErrAlreadyEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrollTranslatesDeadlock(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectBegin()
	mock.ExpectQuery(lockClassPattern).WithArgs("class-1").WillReturnError(&pq.Error{Code: "40P01"})
	mock.ExpectRollback()

	_, err := repo.Enroll(context.Background(), "stu-1", "class-1")
	require.ErrorIs(t, err, ErrSerialization)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUnenrollNoActiveRow(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(`UPDATE enrollments SET status = \$3, left_at = \$4`).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Unenroll(context.Background(), "stu-1", "class-1")
	require.ErrorIs(t, err, ErrNotEnrolled)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryUnenrollFlipsRow(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	mock.ExpectExec(`UPDATE enrollments SET status = \$3, left_at = \$4`).
		WillReturnResult(sqlmock.NewResult(0, 1))

	err := repo.Unenroll(context.Background(), "stu-1", "class-1")
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositorySeatAvailabilityClampsAtZero(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"class_id", "max_seats", "enrolled_count"}).
		AddRow("class-1", 20, 23)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT c.id AS class_id, c.max_seats,`)).
		WithArgs("class-1").WillReturnRows(rows)

	seats, err := repo.SeatAvailability(context.Background(), "class-1")
	require.NoError(t, err)
	require.Equal(t, 0, seats.AvailableSeats)
	require.Equal(t, 23, seats.EnrolledCount)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestEnrollmentRepositoryEnrolledStudents(t *testing.T) {
	db, mock, cleanup := newEnrollmentRepoMock(t)
	defer cleanup()
	repo := NewEnrollmentRepository(db)

	rows := sqlmock.NewRows([]string{"student_id"}).AddRow("stu-1").AddRow("stu-3")
	mock.ExpectQuery(`SELECT student_id FROM enrollments WHERE class_id = \$1 AND student_id IN`).
		WillReturnRows(rows)

	enrolled, err := repo.EnrolledStudents(context.Background(), "class-1", []string{"stu-1", "stu-2", "stu-3"})
	require.NoError(t, err)
	require.True(t, enrolled["stu-1"])
	require.False(t, enrolled["stu-2"])
	require.True(t, enrolled["stu-3"])
	require.NoError(t, mock.ExpectationsWereMet())
}
