// Package repository persists academic records in PostgreSQL. Sentinel
// errors defined here let services distinguish expected outcomes (a full
// class, a duplicate enrollment) from genuine storage failures without
// inspecting driver error codes themselves.
package repository

import (
	"errors"

	"github.com/lib/pq"
)

// ErrClassNotFound is returned when the referenced class does not exist.
var ErrClassNotFound = errors.New("class not found")

// ErrClassInactive is returned when enrolling into a deactivated class.
var ErrClassInactive = errors.New("class inactive")

// ErrClassFull is returned when a class has no available seats left at the
// moment the reservation transaction recounts active enrollments.
var ErrClassFull = errors.New("class full")

// ErrAlreadyEnrolled is returned when an ACTIVE enrollment already exists
// for the (student, class) pair, either observed directly or reported by
// the partial unique index on concurrent inserts.
var ErrAlreadyEnrolled = errors.New("already enrolled")

// ErrNotEnrolled is returned by unenroll when no ACTIVE enrollment exists
// for the pair. It is a reportable no-op, not a failure.
var ErrNotEnrolled = errors.New("not enrolled")

// ErrStudentNotFound is returned when the student reference is unknown.
var ErrStudentNotFound = errors.New("student not found")

// ErrSerialization is returned for transaction conflicts that are safe to
// retry: serialization failures, deadlocks.
var ErrSerialization = errors.New("transaction conflict")

const (
	pqUniqueViolation     = "23505"
	pqForeignKeyViolation = "23503"
	pqSerializationFail   = "40001"
	pqDeadlockDetected    = "40P01"
)

// translateEnrollError converts driver-level conflicts raised during the
// enrollment write into sentinel errors. The unique violation comes from
// the partial index on (student_id, class_id) WHERE status = 'ACTIVE',
// which backstops the row lock when two inserts race.
func translateEnrollError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return err
	}
	switch pqErr.Code {
	case pqUniqueViolation:
		return ErrAlreadyEnrolled
	case pqForeignKeyViolation:
		return ErrStudentNotFound
	case pqSerializationFail, pqDeadlockDetected:
		return ErrSerialization
	}
	return err
}
