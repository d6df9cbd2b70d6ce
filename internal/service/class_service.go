package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/novandi/sis-core-api/internal/models"
	appErrors "github.com/novandi/sis-core-api/pkg/errors"
)

type classStore interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
	FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error)
	List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error)
	Create(ctx context.Context, class *models.Class) error
	Update(ctx context.Context, class *models.Class) error
	SetActive(ctx context.Context, id string, active bool) error
}

type courseReader interface {
	FindByID(ctx context.Context, id string) (*models.Course, error)
}

// CreateClassRequest carries the fields to open a new class section.
type CreateClassRequest struct {
	CourseID  string `json:"course_id" validate:"required"`
	TeacherID string `json:"teacher_id" validate:"required"`
	Name      string `json:"name" validate:"required,min=2,max=120"`
	Semester  string `json:"semester" validate:"required"`
	Room      string `json:"room"`
	MaxSeats  int    `json:"max_seats" validate:"required,min=1,max=500"`
}

// UpdateClassRequest carries mutable class fields. MaxSeats may shrink
// below the current enrolled count; existing enrollments stay valid and
// the class simply reports zero available seats.
type UpdateClassRequest struct {
	Name     string `json:"name" validate:"required,min=2,max=120"`
	Semester string `json:"semester" validate:"required"`
	Room     string `json:"room"`
	MaxSeats int    `json:"max_seats" validate:"required,min=1,max=500"`
}

// ClassService manages class sections. Detail reads go through the cache;
// any mutation drops the class's cached entries so capacity figures never
// serve stale.
type ClassService struct {
	store     classStore
	courses   courseReader
	cache     enrollmentCache
	validator *validator.Validate
	logger    *zap.Logger
	detailTTL time.Duration
}

// NewClassService constructs ClassService. cache may be nil.
func NewClassService(store classStore, courses courseReader, cache enrollmentCache, validate *validator.Validate, logger *zap.Logger, detailTTL time.Duration) *ClassService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClassService{
		store:     store,
		courses:   courses,
		cache:     cache,
		validator: validate,
		logger:    logger,
		detailTTL: detailTTL,
	}
}

// GetDetail returns one class with course metadata and live seat figures.
func (s *ClassService) GetDetail(ctx context.Context, id string) (*models.ClassDetail, error) {
	key := classDetailCacheKey(id)
	if s.cache != nil {
		var cached models.ClassDetail
		if err := s.cache.Get(ctx, key, &cached); err == nil {
			return &cached, nil
		}
	}

	detail, err := s.store.FindDetailByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	if s.cache != nil && s.detailTTL > 0 {
		if err := s.cache.Set(ctx, key, detail, s.detailTTL); err != nil {
			s.logger.Warn("failed to cache class detail", zap.Error(err), zap.String("class_id", id))
		}
	}
	return detail, nil
}

// List returns classes matching the filter with pagination metadata.
func (s *ClassService) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, *models.Pagination, error) {
	classes, total, err := s.store.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list classes")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return classes, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Create opens a new class section under an existing course.
func (s *ClassService) Create(ctx context.Context, req CreateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	if _, err := s.courses.FindByID(ctx, req.CourseID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "course not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load course")
	}

	class := &models.Class{
		ID:        uuid.NewString(),
		CourseID:  req.CourseID,
		TeacherID: req.TeacherID,
		Name:      req.Name,
		Semester:  req.Semester,
		Room:      req.Room,
		MaxSeats:  req.MaxSeats,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Create(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create class")
	}
	s.logger.Info("class created", zap.String("class_id", class.ID), zap.String("course_id", class.CourseID))
	return class, nil
}

// Update modifies a class's mutable fields and invalidates its cache.
func (s *ClassService) Update(ctx context.Context, id string, req UpdateClassRequest) (*models.Class, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid class payload")
	}
	class, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	class.Name = req.Name
	class.Semester = req.Semester
	class.Room = req.Room
	class.MaxSeats = req.MaxSeats
	if err := s.store.Update(ctx, class); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class")
	}
	s.invalidate(ctx, id)
	return class, nil
}

// SetActive toggles whether the class accepts new enrollments. Deactivating
// never touches existing enrollments.
func (s *ClassService) SetActive(ctx context.Context, id string, active bool) error {
	if _, err := s.store.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	if err := s.store.SetActive(ctx, id, active); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update class status")
	}
	s.invalidate(ctx, id)
	s.logger.Info("class status changed", zap.String("class_id", id), zap.Bool("active", active))
	return nil
}

func (s *ClassService) invalidate(ctx context.Context, classID string) {
	if s.cache == nil {
		return
	}
	if err := s.cache.DeleteByPattern(ctx, classCachePattern(classID)); err != nil {
		s.logger.Warn("failed to invalidate class cache", zap.Error(err), zap.String("class_id", classID))
	}
}

func classDetailCacheKey(classID string) string {
	return fmt.Sprintf("class:%s:detail", classID)
}
