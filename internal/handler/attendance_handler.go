package handler

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/novandi/sis-core-api/internal/service"
	appErrors "github.com/novandi/sis-core-api/pkg/errors"
	"github.com/novandi/sis-core-api/pkg/response"
)

// AttendanceHandler exposes per-lesson attendance endpoints.
type AttendanceHandler struct {
	attendance *service.AttendanceService
	lessons    *service.LessonService
	classes    *service.ClassService
	policy     *service.AccessPolicy
}

// NewAttendanceHandler constructs handler.
func NewAttendanceHandler(attendance *service.AttendanceService, lessons *service.LessonService, classes *service.ClassService, policy *service.AccessPolicy) *AttendanceHandler {
	return &AttendanceHandler{attendance: attendance, lessons: lessons, classes: classes, policy: policy}
}

// canRecord loads the lesson's class and checks the caller may record
// attendance for it.
func (h *AttendanceHandler) canRecord(c *gin.Context, lessonID string) bool {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return false
	}
	lesson, err := h.lessons.GetByID(c.Request.Context(), lessonID)
	if err != nil {
		response.Error(c, err)
		return false
	}
	detail, err := h.classes.GetDetail(c.Request.Context(), lesson.ClassID)
	if err != nil {
		response.Error(c, err)
		return false
	}
	if !h.policy.CanRecordAttendance(claims, &detail.Class) {
		response.Error(c, appErrors.ErrForbidden)
		return false
	}
	return true
}

// Record applies a batch attendance submission for a lesson. Returns 200
// with applied and rejected counts even when some rows were rejected.
func (h *AttendanceHandler) Record(c *gin.Context) {
	lessonID := c.Param("id")
	if !h.canRecord(c, lessonID) {
		return
	}

	var req service.RecordBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, "invalid payload"))
		return
	}
	req.LessonID = lessonID
	req.RecordedBy = claimsFromContext(c).UserID

	result, err := h.attendance.RecordBatch(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List returns the lesson's recorded attendance.
func (h *AttendanceHandler) List(c *gin.Context) {
	lessonID := c.Param("id")
	if !h.canRecord(c, lessonID) {
		return
	}
	records, err := h.attendance.ListByLesson(c.Request.Context(), lessonID)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, nil)
}

// Export streams the lesson's attendance sheet as CSV or PDF.
func (h *AttendanceHandler) Export(c *gin.Context) {
	lessonID := c.Param("id")
	if !h.canRecord(c, lessonID) {
		return
	}
	format := c.DefaultQuery("format", "csv")
	data, contentType, err := h.attendance.ExportSheet(c.Request.Context(), lessonID, format)
	if err != nil {
		response.Error(c, err)
		return
	}

	ext := "csv"
	if contentType == "application/pdf" {
		ext = "pdf"
	}
	filename := fmt.Sprintf("attendance-%s.%s", lessonID, ext)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	c.Data(http.StatusOK, contentType, data)
}
