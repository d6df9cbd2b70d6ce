package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/novandi/sis-core-api/internal/models"
	"github.com/novandi/sis-core-api/internal/repository"
	appErrors "github.com/novandi/sis-core-api/pkg/errors"
)

type enrollmentStore interface {
	Enroll(ctx context.Context, studentID, classID string) (*models.Enrollment, error)
	Unenroll(ctx context.Context, studentID, classID string) error
	SeatAvailability(ctx context.Context, classID string) (*models.SeatAvailability, error)
	FindDetail(ctx context.Context, studentID, classID string) (*models.EnrollmentDetail, error)
	Roster(ctx context.Context, classID string) ([]models.RosterEntry, error)
	List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error)
}

type studentReader interface {
	FindByID(ctx context.Context, id string) (*models.Student, error)
}

type enrollmentCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	DeleteByPattern(ctx context.Context, pattern string) error
}

type enrollMetrics interface {
	ObserveEnrollAttempt(outcome string)
	ObserveDBQuery(operation string, duration time.Duration)
}

// EnrollRequest describes an enrollment mutation payload.
type EnrollRequest struct {
	StudentID string `json:"student_id" validate:"required"`
	ClassID   string `json:"class_id" validate:"required"`
}

// EnrollmentService guards class capacity and drives the enrollment
// lifecycle. The store runs the capacity check and the write atomically;
// this layer validates inputs, retries transaction conflicts a bounded
// number of times, and maps store outcomes to typed errors.
type EnrollmentService struct {
	store      enrollmentStore
	students   studentReader
	cache      enrollmentCache
	metrics    enrollMetrics
	validator  *validator.Validate
	logger     *zap.Logger
	maxRetries int
	rosterTTL  time.Duration
}

// NewEnrollmentService constructs EnrollmentService. cache and metrics may
// be nil.
func NewEnrollmentService(store enrollmentStore, students studentReader, cache enrollmentCache, metrics enrollMetrics, validate *validator.Validate, logger *zap.Logger, maxRetries int, rosterTTL time.Duration) *EnrollmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries <= 0 {
		maxRetries = 3
	}
	return &EnrollmentService{
		store:      store,
		students:   students,
		cache:      cache,
		metrics:    metrics,
		validator:  validate,
		logger:     logger,
		maxRetries: maxRetries,
		rosterTTL:  rosterTTL,
	}
}

// Enroll admits a student into a class subject to live capacity. Exactly
// one of two racing calls for the last seat succeeds; the other observes
// CLASS_FULL. A repeat call without an intervening unenroll reports
// ALREADY_ENROLLED and writes nothing.
func (s *EnrollmentService) Enroll(ctx context.Context, req EnrollRequest) (*models.EnrollmentDetail, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid enrollment payload")
	}

	student, err := s.students.FindByID(ctx, req.StudentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "student not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load student")
	}
	if !student.Active {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "student inactive")
	}

	var enrollment *models.Enrollment
	for attempt := 1; ; attempt++ {
		started := time.Now()
		enrollment, err = s.store.Enroll(ctx, req.StudentID, req.ClassID)
		if s.metrics != nil {
			s.metrics.ObserveDBQuery("enroll", time.Since(started))
		}
		if err == nil || !errors.Is(err, repository.ErrSerialization) {
			break
		}
		if attempt >= s.maxRetries {
			s.observe("unavailable")
			s.logger.Warn("enroll retries exhausted",
				zap.String("student_id", req.StudentID),
				zap.String("class_id", req.ClassID),
				zap.Int("attempts", attempt))
			return nil, appErrors.Wrap(err, appErrors.ErrUnavailable.Code, appErrors.ErrUnavailable.Status, appErrors.ErrUnavailable.Message)
		}
		s.logger.Debug("retrying enroll after conflict",
			zap.String("class_id", req.ClassID), zap.Int("attempt", attempt))
	}
	if err != nil {
		return nil, s.mapEnrollError(err)
	}

	s.observe("enrolled")
	s.invalidateClass(ctx, req.ClassID)

	detail, err := s.store.FindDetail(ctx, enrollment.StudentID, enrollment.ClassID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load enrollment detail")
	}
	return detail, nil
}

// Unenroll ends the pair's active enrollment. The freed seat becomes
// visible to the next enroll through the live recount; nothing is
// decremented. NOT_ENROLLED is a reportable no-op, not a failure.
func (s *EnrollmentService) Unenroll(ctx context.Context, req EnrollRequest) error {
	if err := s.validator.Struct(req); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid unenrollment payload")
	}
	if err := s.store.Unenroll(ctx, req.StudentID, req.ClassID); err != nil {
		if errors.Is(err, repository.ErrNotEnrolled) {
			return appErrors.Clone(appErrors.ErrNotEnrolled, "")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to unenroll")
	}
	s.invalidateClass(ctx, req.ClassID)
	return nil
}

// AvailableSeats reports the live seat availability of a class.
func (s *EnrollmentService) AvailableSeats(ctx context.Context, classID string) (*models.SeatAvailability, error) {
	seats, err := s.store.SeatAvailability(ctx, classID)
	if err != nil {
		if errors.Is(err, repository.ErrClassNotFound) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to compute seat availability")
	}
	return seats, nil
}

// Roster returns the class's active members, served from cache when warm.
func (s *EnrollmentService) Roster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	key := rosterCacheKey(classID)
	if s.cache != nil {
		var cached []models.RosterEntry
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return cached, nil
		}
	}

	roster, err := s.store.Roster(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class roster")
	}

	if s.cache != nil && s.rosterTTL > 0 {
		if err := s.cache.Set(ctx, key, roster, s.rosterTTL); err != nil {
			s.logger.Warn("failed to cache roster", zap.Error(err), zap.String("class_id", classID))
		}
	}
	return roster, nil
}

// List returns enrollments with pagination metadata.
func (s *EnrollmentService) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, *models.Pagination, error) {
	enrollments, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list enrollments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: total}
	return enrollments, pagination, nil
}

func (s *EnrollmentService) mapEnrollError(err error) error {
	switch {
	case errors.Is(err, repository.ErrClassNotFound):
		s.observe("not_found")
		return appErrors.Clone(appErrors.ErrNotFound, "class not found")
	case errors.Is(err, repository.ErrClassInactive):
		s.observe("class_inactive")
		return appErrors.Clone(appErrors.ErrClassInactive, "")
	case errors.Is(err, repository.ErrClassFull):
		s.observe("class_full")
		return appErrors.Clone(appErrors.ErrClassFull, "")
	case errors.Is(err, repository.ErrAlreadyEnrolled):
		s.observe("already_enrolled")
		return appErrors.Clone(appErrors.ErrAlreadyEnrolled, "")
	case errors.Is(err, repository.ErrStudentNotFound):
		s.observe("not_found")
		return appErrors.Clone(appErrors.ErrNotFound, "student not found")
	default:
		s.observe("error")
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to enroll")
	}
}

func (s *EnrollmentService) observe(outcome string) {
	if s.metrics != nil {
		s.metrics.ObserveEnrollAttempt(outcome)
	}
}

func (s *EnrollmentService) invalidateClass(ctx context.Context, classID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, classCachePattern(classID)); err != nil {
		s.logger.Warn("failed to invalidate class cache", zap.Error(err), zap.String("class_id", classID))
	}
}

func rosterCacheKey(classID string) string {
	return fmt.Sprintf("class:%s:roster", classID)
}

func classCachePattern(classID string) string {
	return fmt.Sprintf("class:%s:*", classID)
}
