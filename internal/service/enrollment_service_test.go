package service

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/novandi/sis-core-api/internal/models"
	"github.com/novandi/sis-core-api/internal/repository"
	appErrors "github.com/novandi/sis-core-api/pkg/errors"
)

// fakeEnrollmentStore mimics the transactional capacity guard in memory.
// The mutex stands in for the class row lock: checks and writes happen
// atomically, which is exactly the guarantee the real store provides.
type fakeEnrollmentStore struct {
	mu       sync.Mutex
	maxSeats int
	inactive bool
	rows     map[string]*models.Enrollment
	queued   []error
}

func newFakeEnrollmentStore(maxSeats int) *fakeEnrollmentStore {
	return &fakeEnrollmentStore{maxSeats: maxSeats, rows: make(map[string]*models.Enrollment)}
}

func pairKey(studentID, classID string) string { return studentID + "|" + classID }

func (f *fakeEnrollmentStore) Enroll(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if len(f.queued) > 0 {
		err := f.queued[0]
		f.queued = f.queued[1:]
		if err != nil {
			return nil, err
		}
	}
	if f.inactive {
		return nil, repository.ErrClassInactive
	}

	key := pairKey(studentID, classID)
	existing := f.rows[key]
	if existing != nil && existing.Status == models.EnrollmentStatusActive {
		return nil, repository.ErrAlreadyEnrolled
	}

	active := 0
	for _, row := range f.rows {
		if row.ClassID == classID && row.Status == models.EnrollmentStatusActive {
			active++
		}
	}
	if active >= f.maxSeats {
		return nil, repository.ErrClassFull
	}

	if existing != nil {
		existing.Status = models.EnrollmentStatusActive
		existing.EnrolledAt = time.Now()
		existing.LeftAt = nil
		return existing, nil
	}
	row := &models.Enrollment{
		ID:         "enr-" + key,
		StudentID:  studentID,
		ClassID:    classID,
		Status:     models.EnrollmentStatusActive,
		EnrolledAt: time.Now(),
	}
	f.rows[key] = row
	return row, nil
}

func (f *fakeEnrollmentStore) Unenroll(ctx context.Context, studentID, classID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[pairKey(studentID, classID)]
	if row == nil || row.Status != models.EnrollmentStatusActive {
		return repository.ErrNotEnrolled
	}
	now := time.Now()
	row.Status = models.EnrollmentStatusInactive
	row.LeftAt = &now
	return nil
}

func (f *fakeEnrollmentStore) SeatAvailability(ctx context.Context, classID string) (*models.SeatAvailability, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	active := 0
	for _, row := range f.rows {
		if row.ClassID == classID && row.Status == models.EnrollmentStatusActive {
			active++
		}
	}
	available := f.maxSeats - active
	if available < 0 {
		available = 0
	}
	return &models.SeatAvailability{ClassID: classID, MaxSeats: f.maxSeats, EnrolledCount: active, AvailableSeats: available}, nil
}

func (f *fakeEnrollmentStore) FindDetail(ctx context.Context, studentID, classID string) (*models.EnrollmentDetail, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	row := f.rows[pairKey(studentID, classID)]
	if row == nil {
		return nil, sql.ErrNoRows
	}
	return &models.EnrollmentDetail{Enrollment: *row}, nil
}

func (f *fakeEnrollmentStore) Roster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var roster []models.RosterEntry
	for _, row := range f.rows {
		if row.ClassID == classID && row.Status == models.EnrollmentStatusActive {
			roster = append(roster, models.RosterEntry{EnrollmentID: row.ID, StudentID: row.StudentID, EnrolledAt: row.EnrolledAt})
		}
	}
	return roster, nil
}

func (f *fakeEnrollmentStore) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

type fakeStudentReader struct {
	students map[string]*models.Student
}

func (f *fakeStudentReader) FindByID(ctx context.Context, id string) (*models.Student, error) {
	if s, ok := f.students[id]; ok {
		return s, nil
	}
	return nil, sql.ErrNoRows
}

func activeStudents(ids ...string) *fakeStudentReader {
	m := make(map[string]*models.Student, len(ids))
	for _, id := range ids {
		m[id] = &models.Student{ID: id, Active: true}
	}
	return &fakeStudentReader{students: m}
}

func newTestEnrollmentService(store *fakeEnrollmentStore, students *fakeStudentReader) *EnrollmentService {
	return NewEnrollmentService(store, students, nil, nil, validator.New(), zap.NewNop(), 3, 0)
}

func errCode(t *testing.T, err error) string {
	t.Helper()
	require.Error(t, err)
	return appErrors.FromError(err).Code
}

func TestEnrollmentServiceEnroll(t *testing.T) {
	store := newFakeEnrollmentStore(30)
	svc := newTestEnrollmentService(store, activeStudents("s1"))

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", ClassID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)
	assert.Equal(t, "s1", detail.StudentID)
}

func TestEnrollmentServiceRepeatEnrollIsRejected(t *testing.T) {
	store := newFakeEnrollmentStore(30)
	svc := newTestEnrollmentService(store, activeStudents("s1"))

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", ClassID: "c1"})
	require.NoError(t, err)

	_, err = svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", ClassID: "c1"})
	assert.Equal(t, appErrors.ErrAlreadyEnrolled.Code, errCode(t, err))

	seats, err := svc.AvailableSeats(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, seats.EnrolledCount)
}

func TestEnrollmentServiceEnrollUnenrollCycle(t *testing.T) {
	store := newFakeEnrollmentStore(1)
	svc := newTestEnrollmentService(store, activeStudents("s1"))
	req := EnrollRequest{StudentID: "s1", ClassID: "c1"}

	_, err := svc.Enroll(context.Background(), req)
	require.NoError(t, err)
	require.NoError(t, svc.Unenroll(context.Background(), req))

	// The freed seat is visible immediately and the pair can re-enroll.
	seats, err := svc.AvailableSeats(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, seats.AvailableSeats)

	detail, err := svc.Enroll(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)
	assert.Nil(t, detail.LeftAt)
}

func TestEnrollmentServiceUnenrollWithoutEnrollment(t *testing.T) {
	store := newFakeEnrollmentStore(30)
	svc := newTestEnrollmentService(store, activeStudents("s1"))

	err := svc.Unenroll(context.Background(), EnrollRequest{StudentID: "s1", ClassID: "c1"})
	assert.Equal(t, appErrors.ErrNotEnrolled.Code, errCode(t, err))
}

func TestEnrollmentServiceCapacityNeverExceeded(t *testing.T) {
	const seats = 3
	const contenders = 10

	ids := make([]string, contenders)
	for i := range ids {
		ids[i] = string(rune('a' + i))
	}
	store := newFakeEnrollmentStore(seats)
	svc := newTestEnrollmentService(store, activeStudents(ids...))

	var wg sync.WaitGroup
	results := make([]error, contenders)
	for i := 0; i < contenders; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.Enroll(context.Background(), EnrollRequest{StudentID: ids[i], ClassID: "c1"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.Equal(t, appErrors.ErrClassFull.Code, appErrors.FromError(err).Code)
	}
	assert.Equal(t, seats, succeeded)

	availability, err := svc.AvailableSeats(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, seats, availability.EnrolledCount)
	assert.Equal(t, 0, availability.AvailableSeats)
}

func TestEnrollmentServiceRetriesTransientConflicts(t *testing.T) {
	store := newFakeEnrollmentStore(30)
	store.queued = []error{repository.ErrSerialization, repository.ErrSerialization}
	svc := newTestEnrollmentService(store, activeStudents("s1"))

	detail, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", ClassID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, models.EnrollmentStatusActive, detail.Status)
}

func TestEnrollmentServiceRetriesExhausted(t *testing.T) {
	store := newFakeEnrollmentStore(30)
	store.queued = []error{repository.ErrSerialization, repository.ErrSerialization, repository.ErrSerialization, repository.ErrSerialization}
	svc := newTestEnrollmentService(store, activeStudents("s1"))

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", ClassID: "c1"})
	assert.Equal(t, appErrors.ErrUnavailable.Code, errCode(t, err))
}

func TestEnrollmentServiceInactiveClass(t *testing.T) {
	store := newFakeEnrollmentStore(30)
	store.inactive = true
	svc := newTestEnrollmentService(store, activeStudents("s1"))

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", ClassID: "c1"})
	assert.Equal(t, appErrors.ErrClassInactive.Code, errCode(t, err))
}

func TestEnrollmentServiceInactiveStudent(t *testing.T) {
	store := newFakeEnrollmentStore(30)
	students := &fakeStudentReader{students: map[string]*models.Student{"s1": {ID: "s1", Active: false}}}
	svc := newTestEnrollmentService(store, students)

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "s1", ClassID: "c1"})
	assert.Equal(t, appErrors.ErrPreconditionFailed.Code, errCode(t, err))
}

func TestEnrollmentServiceUnknownStudent(t *testing.T) {
	store := newFakeEnrollmentStore(30)
	svc := newTestEnrollmentService(store, activeStudents())

	_, err := svc.Enroll(context.Background(), EnrollRequest{StudentID: "ghost", ClassID: "c1"})
	assert.Equal(t, appErrors.ErrNotFound.Code, errCode(t, err))
}
