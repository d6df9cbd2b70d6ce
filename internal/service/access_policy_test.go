package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/novandi/sis-core-api/internal/models"
)

type fakePairReader struct {
	active map[string]bool
}

func (f *fakePairReader) FindActiveByPair(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	if f.active[studentID+"|"+classID] {
		return &models.Enrollment{StudentID: studentID, ClassID: classID, Status: models.EnrollmentStatusActive}, nil
	}
	return nil, sql.ErrNoRows
}

func claimsFor(role models.UserRole, profileID string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "usr-1", Role: role, ProfileID: profileID}
}

func TestAccessPolicyCanEnrollSelf(t *testing.T) {
	policy := NewAccessPolicy(&fakePairReader{})

	assert.True(t, policy.CanEnrollSelf(claimsFor(models.RoleAdmin, ""), "s1"))
	assert.True(t, policy.CanEnrollSelf(claimsFor(models.RoleStudent, "s1"), "s1"))
	assert.False(t, policy.CanEnrollSelf(claimsFor(models.RoleStudent, "s1"), "s2"))
	assert.False(t, policy.CanEnrollSelf(claimsFor(models.RoleStudent, ""), ""))
	assert.False(t, policy.CanEnrollSelf(claimsFor(models.RoleTeacher, "t1"), "s1"))
	assert.False(t, policy.CanEnrollSelf(nil, "s1"))
}

func TestAccessPolicyCanManageClass(t *testing.T) {
	policy := NewAccessPolicy(&fakePairReader{})
	class := &models.Class{ID: "c1", TeacherID: "t1"}

	assert.True(t, policy.CanManageClass(claimsFor(models.RoleAdmin, ""), class))
	assert.True(t, policy.CanManageClass(claimsFor(models.RoleTeacher, "t1"), class))
	assert.False(t, policy.CanManageClass(claimsFor(models.RoleTeacher, "t2"), class))
	assert.False(t, policy.CanManageClass(claimsFor(models.RoleStudent, "s1"), class))
	assert.False(t, policy.CanManageClass(claimsFor(models.RoleAdmin, ""), nil))
}

func TestAccessPolicyCanViewRoster(t *testing.T) {
	pairs := &fakePairReader{active: map[string]bool{"s1|c1": true}}
	policy := NewAccessPolicy(pairs)
	class := &models.Class{ID: "c1", TeacherID: "t1"}
	ctx := context.Background()

	assert.True(t, policy.CanViewRoster(ctx, claimsFor(models.RoleAdmin, ""), class))
	assert.True(t, policy.CanViewRoster(ctx, claimsFor(models.RoleTeacher, "t1"), class))
	assert.True(t, policy.CanViewRoster(ctx, claimsFor(models.RoleStudent, "s1"), class))
	assert.False(t, policy.CanViewRoster(ctx, claimsFor(models.RoleStudent, "s2"), class))
	assert.False(t, policy.CanViewRoster(ctx, claimsFor(models.RoleParent, "p1"), class))
}
