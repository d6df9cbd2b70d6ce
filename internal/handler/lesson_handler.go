package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/novandi/sis-core-api/internal/service"
	appErrors "github.com/novandi/sis-core-api/pkg/errors"
	"github.com/novandi/sis-core-api/pkg/response"
)

// LessonHandler exposes lesson endpoints.
type LessonHandler struct {
	lessons *service.LessonService
	classes *service.ClassService
	policy  *service.AccessPolicy
}

// NewLessonHandler constructs handler.
func NewLessonHandler(lessons *service.LessonService, classes *service.ClassService, policy *service.AccessPolicy) *LessonHandler {
	return &LessonHandler{lessons: lessons, classes: classes, policy: policy}
}

// canManage checks the caller may manage the given class's lessons.
func (h *LessonHandler) canManage(c *gin.Context, classID string) bool {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return false
	}
	detail, err := h.classes.GetDetail(c.Request.Context(), classID)
	if err != nil {
		response.Error(c, err)
		return false
	}
	if !h.policy.CanManageClass(claims, &detail.Class) {
		response.Error(c, appErrors.ErrForbidden)
		return false
	}
	return true
}

// Get returns one lesson.
func (h *LessonHandler) Get(c *gin.Context) {
	lesson, err := h.lessons.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lesson, nil)
}

// ListByClass returns a class's lessons.
func (h *LessonHandler) ListByClass(c *gin.Context) {
	lessons, err := h.lessons.ListByClass(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, lessons, nil)
}

// Create schedules a lesson under a class.
func (h *LessonHandler) Create(c *gin.Context) {
	var req service.CreateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if req.ClassID == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "class_id is required"))
		return
	}
	if !h.canManage(c, req.ClassID) {
		return
	}
	lesson, err := h.lessons.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, lesson)
}

// Update modifies a lesson.
func (h *LessonHandler) Update(c *gin.Context) {
	id := c.Param("id")
	lesson, err := h.lessons.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !h.canManage(c, lesson.ClassID) {
		return
	}

	var req service.UpdateLessonRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	updated, err := h.lessons.Update(c.Request.Context(), id, req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, updated, nil)
}

type setCancelledPayload struct {
	Cancelled *bool `json:"cancelled" binding:"required"`
}

// SetCancelled cancels or restores a lesson.
func (h *LessonHandler) SetCancelled(c *gin.Context) {
	id := c.Param("id")
	lesson, err := h.lessons.GetByID(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !h.canManage(c, lesson.ClassID) {
		return
	}

	var payload setCancelledPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	if err := h.lessons.SetCancelled(c.Request.Context(), id, *payload.Cancelled); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
