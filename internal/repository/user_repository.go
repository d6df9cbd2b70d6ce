package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/novandi/sis-core-api/internal/models"
)

// UserRepository handles persistence of user accounts.
type UserRepository struct {
	db *sqlx.DB
}

// NewUserRepository constructs the repository.
func NewUserRepository(db *sqlx.DB) *UserRepository {
	return &UserRepository{db: db}
}

// FindByEmail returns a user by email address.
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at FROM users WHERE email = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, email); err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByID returns a user by its ID.
func (r *UserRepository) FindByID(ctx context.Context, id string) (*models.User, error) {
	const query = `SELECT id, email, password_hash, full_name, role, active, last_login, created_at, updated_at FROM users WHERE id = $1`
	var user models.User
	if err := r.db.GetContext(ctx, &user, query, id); err != nil {
		return nil, err
	}
	return &user, nil
}

// ProfileID resolves the role-specific profile for a user, if one exists.
// Students and teachers have profile rows; admins and parents may not.
func (r *UserRepository) ProfileID(ctx context.Context, userID string, role models.UserRole) (string, error) {
	var table string
	switch role {
	case models.RoleStudent:
		table = "students"
	case models.RoleTeacher:
		table = "teachers"
	default:
		return "", nil
	}
	var id string
	query := fmt.Sprintf("SELECT id FROM %s WHERE user_id = $1", table)
	if err := r.db.GetContext(ctx, &id, query, userID); err != nil {
		return "", err
	}
	return id, nil
}

// UpdateLastLogin records the time of a successful login.
func (r *UserRepository) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if _, err := r.db.ExecContext(ctx, `UPDATE users SET last_login = $2 WHERE id = $1`, id, ts); err != nil {
		return fmt.Errorf("update last login: %w", err)
	}
	return nil
}
