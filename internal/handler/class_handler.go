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

// ClassHandler exposes class section endpoints.
type ClassHandler struct {
	classes *service.ClassService
	policy  *service.AccessPolicy
}

// NewClassHandler constructs handler.
func NewClassHandler(classes *service.ClassService, policy *service.AccessPolicy) *ClassHandler {
	return &ClassHandler{classes: classes, policy: policy}
}

// List returns classes matching query filters.
func (h *ClassHandler) List(c *gin.Context) {
	filter := models.ClassFilter{
		CourseID:  c.Query("courseId"),
		TeacherID: c.Query("teacherId"),
		Semester:  c.Query("semester"),
		Search:    c.Query("search"),
		SortBy:    c.Query("sortBy"),
		SortOrder: c.Query("sortOrder"),
	}
	if raw := c.Query("active"); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid active filter"))
			return
		}
		filter.Active = &active
	}
	filter.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	filter.PageSize, _ = strconv.Atoi(c.DefaultQuery("pageSize", "20"))

	classes, pagination, err := h.classes.List(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, classes, pagination)
}

// Get returns one class with live seat figures.
func (h *ClassHandler) Get(c *gin.Context) {
	detail, err := h.classes.GetDetail(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, detail, nil)
}

// Create opens a new class section.
func (h *ClassHandler) Create(c *gin.Context) {
	var req service.CreateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	class, err := h.classes.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, class)
}

// Update modifies a class. Only the owning teacher or an admin may update.
func (h *ClassHandler) Update(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	id := c.Param("id")
	detail, err := h.classes.GetDetail(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !h.policy.CanManageClass(claims, &detail.Class) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	var req service.UpdateClassRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	class, err := h.classes.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, class, nil)
}

type setActivePayload struct {
	Active *bool `json:"active" binding:"required"`
}

// SetActive opens or closes the class for new enrollments.
func (h *ClassHandler) SetActive(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	id := c.Param("id")
	detail, err := h.classes.GetDetail(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !h.policy.CanManageClass(claims, &detail.Class) {
		response.Error(c, appErrors.ErrForbidden)
		return
	}

	var payload setActivePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.classes.SetActive(c.Request.Context(), id, *payload.Active); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
