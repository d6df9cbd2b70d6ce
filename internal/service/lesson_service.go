package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/novandi/sis-core-api/internal/models"
	appErrors "github.com/novandi/sis-core-api/pkg/errors"
)

type lessonStore interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
	ListByClass(ctx context.Context, classID string) ([]models.Lesson, error)
	Create(ctx context.Context, lesson *models.Lesson) error
	Update(ctx context.Context, lesson *models.Lesson) error
	SetCancelled(ctx context.Context, id string, cancelled bool) error
}

type classExistenceReader interface {
	FindByID(ctx context.Context, id string) (*models.Class, error)
}

// CreateLessonRequest carries the fields to schedule a lesson.
type CreateLessonRequest struct {
	ClassID         string    `json:"class_id" validate:"required"`
	Title           string    `json:"title" validate:"required,min=2,max=200"`
	Description     string    `json:"description"`
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=5,max=480"`
	LessonType      string    `json:"lesson_type" validate:"required"`
}

// UpdateLessonRequest carries mutable lesson fields.
type UpdateLessonRequest struct {
	Title           string    `json:"title" validate:"required,min=2,max=200"`
	Description     string    `json:"description"`
	ScheduledAt     time.Time `json:"scheduled_at" validate:"required"`
	DurationMinutes int       `json:"duration_minutes" validate:"required,min=5,max=480"`
	LessonType      string    `json:"lesson_type" validate:"required"`
}

// LessonService manages lesson sessions within a class.
type LessonService struct {
	store     lessonStore
	classes   classExistenceReader
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLessonService constructs LessonService.
func NewLessonService(store lessonStore, classes classExistenceReader, validate *validator.Validate, logger *zap.Logger) *LessonService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LessonService{store: store, classes: classes, validator: validate, logger: logger}
}

// GetByID returns one lesson.
func (s *LessonService) GetByID(ctx context.Context, id string) (*models.Lesson, error) {
	lesson, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	return lesson, nil
}

// ListByClass returns a class's lessons ordered by schedule.
func (s *LessonService) ListByClass(ctx context.Context, classID string) ([]models.Lesson, error) {
	if _, err := s.classes.FindByID(ctx, classID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}
	lessons, err := s.store.ListByClass(ctx, classID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list lessons")
	}
	return lessons, nil
}

// Create schedules a lesson under an existing class.
func (s *LessonService) Create(ctx context.Context, req CreateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	lessonType := models.LessonType(req.LessonType)
	if !lessonType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid lesson type")
	}
	if _, err := s.classes.FindByID(ctx, req.ClassID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "class not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load class")
	}

	lesson := &models.Lesson{
		ID:              uuid.NewString(),
		ClassID:         req.ClassID,
		Title:           req.Title,
		Description:     req.Description,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		LessonType:      lessonType,
	}
	if err := s.store.Create(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create lesson")
	}
	s.logger.Info("lesson created", zap.String("lesson_id", lesson.ID), zap.String("class_id", lesson.ClassID))
	return lesson, nil
}

// Update modifies a lesson's mutable fields.
func (s *LessonService) Update(ctx context.Context, id string, req UpdateLessonRequest) (*models.Lesson, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid lesson payload")
	}
	lessonType := models.LessonType(req.LessonType)
	if !lessonType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "invalid lesson type")
	}
	lesson, err := s.store.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}

	lesson.Title = req.Title
	lesson.Description = req.Description
	lesson.ScheduledAt = req.ScheduledAt
	lesson.DurationMinutes = req.DurationMinutes
	lesson.LessonType = lessonType
	if err := s.store.Update(ctx, lesson); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson")
	}
	return lesson, nil
}

// SetCancelled toggles a lesson's cancelled flag. Cancelled lessons reject
// attendance submissions but keep any rows recorded before cancellation.
func (s *LessonService) SetCancelled(ctx context.Context, id string, cancelled bool) error {
	if _, err := s.store.FindByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if err := s.store.SetCancelled(ctx, id, cancelled); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update lesson status")
	}
	s.logger.Info("lesson status changed", zap.String("lesson_id", id), zap.Bool("cancelled", cancelled))
	return nil
}
