package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/novandi/sis-core-api/internal/models"
	"github.com/novandi/sis-core-api/internal/service"
	appErrors "github.com/novandi/sis-core-api/pkg/errors"
	"github.com/novandi/sis-core-api/pkg/response"
)

// EnrollmentHandler exposes enrollment and roster endpoints.
type EnrollmentHandler struct {
	enrollments *service.EnrollmentService
	classes     *service.ClassService
	policy      *service.AccessPolicy
}

// NewEnrollmentHandler constructs handler.
func NewEnrollmentHandler(enrollments *service.EnrollmentService, classes *service.ClassService, policy *service.AccessPolicy) *EnrollmentHandler {
	return &EnrollmentHandler{enrollments: enrollments, classes: classes, policy: policy}
}

type enrollPayload struct {
	StudentID string `json:"student_id"`
}

// resolveStudent picks the target student: the payload's student_id when
// given, otherwise the caller's own student profile.
func resolveStudent(claims *models.JWTClaims, payload enrollPayload) string {
	if payload.StudentID != "" {
		return payload.StudentID
	}
	return claims.ProfileID
}

// Enroll admits a student into the class. Students may only enroll
// themselves; admins may enroll anyone.
func (h *EnrollmentHandler) Enroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload enrollPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	studentID := resolveStudent(claims, payload)
	if !h.policy.CanEnrollSelf(claims, studentID) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	detail, err := h.enrollments.Enroll(c.Request.Context(), service.EnrollRequest{
		StudentID: studentID,
		ClassID:   c.Param("id"),
	})
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, detail)
}

// Unenroll ends the student's active enrollment in the class. A student
// may leave a class themself; the owning teacher or an admin may remove
// any student.
func (h *EnrollmentHandler) Unenroll(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var payload enrollPayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&payload); err != nil {
			response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
			return
		}
	}

	classID := c.Param("id")
	studentID := resolveStudent(claims, payload)
	if !h.policy.CanEnrollSelf(claims, studentID) {
		detail, err := h.classes.GetDetail(c.Request.Context(), classID)
		if err != nil {
			response.Error(c, err)
			return
		}
		if !h.policy.CanManageClass(claims, &detail.Class) {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
	}

	if err := h.enrollments.Unenroll(c.Request.Context(), service.EnrollRequest{
		StudentID: studentID,
		ClassID:   classID,
	}); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Seats reports the class's live seat availability.
func (h *EnrollmentHandler) Seats(c *gin.Context) {
	seats, err := h.enrollments.AvailableSeats(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, seats, nil)
}

// Roster lists the class's active members. Visible to admins, the owning
// teacher and the class's own enrolled students.
func (h *EnrollmentHandler) Roster(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	classID := c.Param("id")
	detail, err := h.classes.GetDetail(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !h.policy.CanViewRoster(c.Request.Context(), claims, &detail.Class) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	roster, err := h.enrollments.Roster(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, roster, nil)
}

// List returns enrollments matching query filters. Students only ever see
// their own; teachers must scope the query to a class they own.
func (h *EnrollmentHandler) List(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	filter := models.EnrollmentFilter{
		StudentID: c.Query("studentId"),
		ClassID:   c.Query("classId"),
		Status:    models.EnrollmentStatus(c.Query("status")),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	switch claims.Role {
	case models.RoleAdmin:
	case models.RoleStudent:
		filter.StudentID = claims.ProfileID
	case models.RoleTeacher:
		if filter.ClassID == "" {
			response.Error(c, appErrors.Clone(appErrors.ErrForbidden, "class scope required"))
			return
		}
		detail, err := h.classes.GetDetail(c.Request.Context(), filter.ClassID)
		if err != nil {
			response.Error(c, err)
			return
		}
		if !h.policy.CanManageClass(claims, &detail.Class) {
			response.Error(c, appErrors.ErrForbidden)
			return
		}
	default:
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	enrollments, pagination, err := h.enrollments.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, enrollments, pagination)
}
