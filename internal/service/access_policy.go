package service

import (
	"context"
	"database/sql"

	"github.com/novandi/sis-core-api/internal/models"
)

type enrollmentPairReader interface {
	FindActiveByPair(ctx context.Context, studentID, classID string) (*models.Enrollment, error)
}

// AccessPolicy resolves a caller's claims to per-operation permissions.
// The core services consume only boolean decisions; role resolution happens
// once per request when the JWT is validated, never by probing profiles.
type AccessPolicy struct {
	enrollments enrollmentPairReader
}

// NewAccessPolicy constructs the policy.
func NewAccessPolicy(enrollments enrollmentPairReader) *AccessPolicy {
	return &AccessPolicy{enrollments: enrollments}
}

// CanEnrollSelf reports whether the caller may enroll or unenroll the given
// student. Students act only on their own profile; admins act on anyone.
func (p *AccessPolicy) CanEnrollSelf(claims *models.JWTClaims, studentID string) bool {
	if claims == nil {
		return false
	}
	switch claims.Role {
	case models.RoleAdmin:
		return true
	case models.RoleStudent:
		return claims.ProfileID != "" && claims.ProfileID == studentID
	default:
		return false
	}
}

// CanManageClass reports whether the caller may mutate the class or its
// lessons: the owning teacher or an admin.
func (p *AccessPolicy) CanManageClass(claims *models.JWTClaims, class *models.Class) bool {
	if claims == nil || class == nil {
		return false
	}
	switch claims.Role {
	case models.RoleAdmin:
		return true
	case models.RoleTeacher:
		return claims.ProfileID != "" && claims.ProfileID == class.TeacherID
	default:
		return false
	}
}

// CanRecordAttendance reports whether the caller may record attendance for
// lessons of the class. Same rule as class management.
func (p *AccessPolicy) CanRecordAttendance(claims *models.JWTClaims, class *models.Class) bool {
	return p.CanManageClass(claims, class)
}

// CanViewRoster reports whether the caller may read the class roster:
// the owning teacher, an admin, or an actively enrolled student.
func (p *AccessPolicy) CanViewRoster(ctx context.Context, claims *models.JWTClaims, class *models.Class) bool {
	if p.CanManageClass(claims, class) {
		return true
	}
	if claims == nil || class == nil || claims.Role != models.RoleStudent || claims.ProfileID == "" {
		return false
	}
	enrollment, err := p.enrollments.FindActiveByPair(ctx, claims.ProfileID, class.ID)
	if err != nil {
		if err == sql.ErrNoRows {
			return false
		}
		return false
	}
	return enrollment != nil
}
