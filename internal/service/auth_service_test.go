package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/novandi/sis-core-api/internal/models"
	appErrors "github.com/novandi/sis-core-api/pkg/errors"
)

type fakeUserRepo struct {
	users     map[string]*models.User
	profiles  map[string]string
	lastLogin map[string]time.Time
}

func (f *fakeUserRepo) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range f.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) FindByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := f.users[id]; ok {
		return u, nil
	}
	return nil, sql.ErrNoRows
}

func (f *fakeUserRepo) ProfileID(ctx context.Context, userID string, role models.UserRole) (string, error) {
	if p, ok := f.profiles[userID]; ok {
		return p, nil
	}
	return "", sql.ErrNoRows
}

func (f *fakeUserRepo) UpdateLastLogin(ctx context.Context, id string, ts time.Time) error {
	if f.lastLogin == nil {
		f.lastLogin = make(map[string]time.Time)
	}
	f.lastLogin[id] = ts
	return nil
}

func newAuthFixture(t *testing.T, role models.UserRole, active bool) (*AuthService, *fakeUserRepo) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte("secret123"), bcrypt.MinCost)
	require.NoError(t, err)
	repo := &fakeUserRepo{
		users: map[string]*models.User{
			"u1": {ID: "u1", Email: "alex@school.test", PasswordHash: string(hash), FullName: "Alex", Role: role, Active: active},
		},
		profiles: map[string]string{"u1": "prof-1"},
	}
	svc := NewAuthService(repo, validator.New(), zap.NewNop(), AuthConfig{
		Secret:     "test-secret",
		Expiration: time.Hour,
		Issuer:     "sis-core",
	})
	return svc, repo
}

func TestAuthServiceLoginIssuesToken(t *testing.T) {
	svc, repo := newAuthFixture(t, models.RoleStudent, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@school.test", Password: "secret123"})
	require.NoError(t, err)
	assert.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, int64(3600), resp.ExpiresIn)
	assert.Contains(t, repo.lastLogin, "u1")

	claims, err := svc.ValidateToken(resp.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, models.RoleStudent, claims.Role)
	assert.Equal(t, "prof-1", claims.ProfileID)
}

func TestAuthServiceLoginWrongPassword(t *testing.T) {
	svc, _ := newAuthFixture(t, models.RoleStudent, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@school.test", Password: "wrong"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, errCode(t, err))
}

func TestAuthServiceLoginUnknownEmail(t *testing.T) {
	svc, _ := newAuthFixture(t, models.RoleStudent, true)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "nobody@school.test", Password: "secret123"})
	assert.Equal(t, appErrors.ErrInvalidCredentials.Code, errCode(t, err))
}

func TestAuthServiceLoginInactiveAccount(t *testing.T) {
	svc, _ := newAuthFixture(t, models.RoleStudent, false)

	_, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@school.test", Password: "secret123"})
	assert.Equal(t, appErrors.ErrInactiveAccount.Code, errCode(t, err))
}

func TestAuthServiceValidateTokenRejectsTampering(t *testing.T) {
	svc, _ := newAuthFixture(t, models.RoleAdmin, true)

	resp, err := svc.Login(context.Background(), models.LoginRequest{Email: "alex@school.test", Password: "secret123"})
	require.NoError(t, err)

	_, err = svc.ValidateToken(resp.AccessToken + "x")
	assert.Equal(t, appErrors.ErrUnauthorized.Code, errCode(t, err))
}
