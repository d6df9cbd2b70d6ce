package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/novandi/sis-core-api/internal/models"
)

// LessonRepository handles persistence of lessons.
type LessonRepository struct {
	db *sqlx.DB
}

// NewLessonRepository constructs the repository.
func NewLessonRepository(db *sqlx.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// FindByID returns a lesson by its ID.
func (r *LessonRepository) FindByID(ctx context.Context, id string) (*models.Lesson, error) {
	const query = `SELECT id, class_id, title, description, scheduled_at, duration_minutes, lesson_type, cancelled FROM lessons WHERE id = $1`
	var lesson models.Lesson
	if err := r.db.GetContext(ctx, &lesson, query, id); err != nil {
		return nil, err
	}
	return &lesson, nil
}

// ListByClass returns the class's lessons ordered by schedule.
func (r *LessonRepository) ListByClass(ctx context.Context, classID string) ([]models.Lesson, error) {
	const query = `SELECT id, class_id, title, description, scheduled_at, duration_minutes, lesson_type, cancelled
        FROM lessons WHERE class_id = $1 ORDER BY scheduled_at ASC`
	var lessons []models.Lesson
	if err := r.db.SelectContext(ctx, &lessons, query, classID); err != nil {
		return nil, fmt.Errorf("list lessons: %w", err)
	}
	return lessons, nil
}

// Create persists a new lesson.
func (r *LessonRepository) Create(ctx context.Context, lesson *models.Lesson) error {
	if lesson.ID == "" {
		lesson.ID = uuid.NewString()
	}
	const query = `INSERT INTO lessons (id, class_id, title, description, scheduled_at, duration_minutes, lesson_type, cancelled)
        VALUES (:id, :class_id, :title, :description, :scheduled_at, :duration_minutes, :lesson_type, :cancelled)`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("create lesson: %w", err)
	}
	return nil
}

// Update rewrites the mutable fields of a lesson.
func (r *LessonRepository) Update(ctx context.Context, lesson *models.Lesson) error {
	const query = `UPDATE lessons SET title = :title, description = :description, scheduled_at = :scheduled_at,
        duration_minutes = :duration_minutes, lesson_type = :lesson_type WHERE id = :id`
	if _, err := r.db.NamedExecContext(ctx, query, lesson); err != nil {
		return fmt.Errorf("update lesson: %w", err)
	}
	return nil
}

// SetCancelled toggles the lesson cancelled flag.
func (r *LessonRepository) SetCancelled(ctx context.Context, id string, cancelled bool) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE lessons SET cancelled = $2 WHERE id = $1`, id, cancelled); err != nil {
		return fmt.Errorf("set lesson cancelled: %w", err)
	}
	return nil
}
