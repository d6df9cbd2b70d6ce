package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/novandi/sis-core-api/internal/models"
	appErrors "github.com/novandi/sis-core-api/pkg/errors"
	"github.com/novandi/sis-core-api/pkg/export"
)

type attendanceStore interface {
	UpsertBatch(ctx context.Context, records []models.AttendanceRecord) (int, error)
	ListByLesson(ctx context.Context, lessonID string) ([]models.AttendanceDetail, error)
}

type lessonReader interface {
	FindByID(ctx context.Context, id string) (*models.Lesson, error)
}

type studentIDChecker interface {
	ExistingIDs(ctx context.Context, studentIDs []string) (map[string]bool, error)
}

type enrollmentChecker interface {
	EnrolledStudents(ctx context.Context, classID string, studentIDs []string) (map[string]bool, error)
}

type attendanceMetrics interface {
	ObserveAttendanceRows(applied, rejected int)
}

// AttendanceRow is one student's entry in a batch submission.
type AttendanceRow struct {
	StudentID string  `json:"student_id" validate:"required"`
	Status    string  `json:"status" validate:"required"`
	Notes     *string `json:"notes,omitempty"`
}

// RecordBatchRequest carries one lesson's attendance submission.
type RecordBatchRequest struct {
	LessonID   string          `json:"-" validate:"required"`
	RecordedBy string          `json:"-" validate:"required"`
	Rows       []AttendanceRow `json:"records" validate:"required,min=1,dive"`
}

// AttendanceService validates and applies per-lesson attendance batches.
// A batch is tolerant of bad rows: valid rows commit together while
// invalid ones are reported back row by row, so one typo does not void a
// teacher's whole submission.
type AttendanceService struct {
	store       attendanceStore
	lessons     lessonReader
	students    studentIDChecker
	enrollments enrollmentChecker
	metrics     attendanceMetrics
	csv         *export.CSVExporter
	pdf         *export.PDFExporter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewAttendanceService constructs AttendanceService. metrics may be nil.
func NewAttendanceService(store attendanceStore, lessons lessonReader, students studentIDChecker, enrollments enrollmentChecker, metrics attendanceMetrics, validate *validator.Validate, logger *zap.Logger) *AttendanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AttendanceService{
		store:       store,
		lessons:     lessons,
		students:    students,
		enrollments: enrollments,
		metrics:     metrics,
		csv:         export.NewCSVExporter(),
		pdf:         export.NewPDFExporter(),
		validator:   validate,
		logger:      logger,
	}
}

// RecordBatch applies an attendance submission for one lesson. Each row is
// screened independently: a malformed status, an unknown student id, and a
// student with no enrollment history in the lesson's class are each
// rejected with a reason while the remaining rows commit in a single
// transaction. When the same student appears twice the later row wins.
// Resubmitting overwrites existing rows for the same (lesson, student)
// pairs; the lesson never accumulates duplicates.
func (s *AttendanceService) RecordBatch(ctx context.Context, req RecordBatchRequest) (*models.BatchResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid attendance payload")
	}

	lesson, err := s.lessons.FindByID(ctx, req.LessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	if lesson.Cancelled {
		return nil, appErrors.Clone(appErrors.ErrPreconditionFailed, "lesson is cancelled")
	}

	// Later rows replace earlier ones for the same student before any
	// existence checks run.
	deduped := make([]AttendanceRow, 0, len(req.Rows))
	position := make(map[string]int, len(req.Rows))
	for _, row := range req.Rows {
		if idx, seen := position[row.StudentID]; seen {
			deduped[idx] = row
			continue
		}
		position[row.StudentID] = len(deduped)
		deduped = append(deduped, row)
	}

	ids := make([]string, 0, len(deduped))
	for _, row := range deduped {
		ids = append(ids, row.StudentID)
	}
	known, err := s.students.ExistingIDs(ctx, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify students")
	}
	enrolled, err := s.enrollments.EnrolledStudents(ctx, lesson.ClassID, ids)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to verify enrollments")
	}

	result := &models.BatchResult{}
	now := time.Now().UTC()
	accepted := make([]models.AttendanceRecord, 0, len(deduped))
	for _, row := range deduped {
		status := models.AttendanceStatus(strings.ToUpper(row.Status))
		switch {
		case !status.Valid():
			result.Rejected = append(result.Rejected, models.AttendanceRejection{StudentID: row.StudentID, Reason: models.RejectionInvalidStatus})
		case !known[row.StudentID]:
			result.Rejected = append(result.Rejected, models.AttendanceRejection{StudentID: row.StudentID, Reason: models.RejectionUnknownStudent})
		case !enrolled[row.StudentID]:
			result.Rejected = append(result.Rejected, models.AttendanceRejection{StudentID: row.StudentID, Reason: models.RejectionStudentNotEnrolled})
		default:
			accepted = append(accepted, models.AttendanceRecord{
				LessonID:   req.LessonID,
				StudentID:  row.StudentID,
				Status:     status,
				Notes:      row.Notes,
				RecordedAt: now,
				RecordedBy: req.RecordedBy,
			})
		}
	}

	applied, err := s.store.UpsertBatch(ctx, accepted)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply attendance batch")
	}
	result.Applied = applied

	if s.metrics != nil {
		s.metrics.ObserveAttendanceRows(result.Applied, len(result.Rejected))
	}
	if len(result.Rejected) > 0 {
		s.logger.Info("attendance batch applied with rejections",
			zap.String("lesson_id", req.LessonID),
			zap.Int("applied", result.Applied),
			zap.Int("rejected", len(result.Rejected)))
	}
	return result, nil
}

// ListByLesson returns the lesson's recorded attendance.
func (s *AttendanceService) ListByLesson(ctx context.Context, lessonID string) ([]models.AttendanceDetail, error) {
	if _, err := s.lessons.FindByID(ctx, lessonID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	records, err := s.store.ListByLesson(ctx, lessonID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}
	return records, nil
}

// ExportSheet renders the lesson's attendance as CSV or PDF bytes for
// download. Format accepts "csv" and "pdf".
func (s *AttendanceService) ExportSheet(ctx context.Context, lessonID, format string) ([]byte, string, error) {
	lesson, err := s.lessons.FindByID(ctx, lessonID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, "", appErrors.Clone(appErrors.ErrNotFound, "lesson not found")
		}
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load lesson")
	}
	records, err := s.store.ListByLesson(ctx, lessonID)
	if err != nil {
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list attendance")
	}

	sheet := export.Sheet{
		Title:   fmt.Sprintf("Attendance - %s", lesson.Title),
		Columns: []string{"Student Number", "Student Name", "Status", "Notes", "Recorded At"},
		Rows:    make([][]string, 0, len(records)),
	}
	counts := make(map[models.AttendanceStatus]int, 4)
	for _, rec := range records {
		notes := ""
		if rec.Notes != nil {
			notes = *rec.Notes
		}
		sheet.Rows = append(sheet.Rows, []string{
			rec.StudentNumber,
			rec.StudentName,
			string(rec.Status),
			notes,
			rec.RecordedAt.Format(time.RFC3339),
		})
		counts[rec.Status]++
	}
	sheet.Summary = fmt.Sprintf("%d recorded: %d present, %d absent, %d late, %d excused",
		len(records),
		counts[models.AttendanceStatusPresent],
		counts[models.AttendanceStatusAbsent],
		counts[models.AttendanceStatusLate],
		counts[models.AttendanceStatusExcused])

	switch strings.ToLower(format) {
	case "csv", "":
		data, err := s.csv.Render(sheet)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv")
		}
		return data, "text/csv", nil
	case "pdf":
		data, err := s.pdf.Render(sheet)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf")
		}
		return data, "application/pdf", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, "unsupported export format")
	}
}
