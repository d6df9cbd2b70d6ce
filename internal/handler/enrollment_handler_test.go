package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/novandi/sis-core-api/internal/middleware"
	"github.com/novandi/sis-core-api/internal/models"
	"github.com/novandi/sis-core-api/internal/repository"
	"github.com/novandi/sis-core-api/internal/service"
)

type enrollStoreMock struct {
	enrollErr   error
	enrolled    *models.Enrollment
	unenrollErr error
	seats       *models.SeatAvailability
	roster      []models.RosterEntry
}

func (m *enrollStoreMock) Enroll(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	if m.enrollErr != nil {
		return nil, m.enrollErr
	}
	if m.enrolled != nil {
		return m.enrolled, nil
	}
	return &models.Enrollment{ID: "enr-1", StudentID: studentID, ClassID: classID, Status: models.EnrollmentStatusActive}, nil
}

func (m *enrollStoreMock) Unenroll(ctx context.Context, studentID, classID string) error {
	return m.unenrollErr
}

func (m *enrollStoreMock) SeatAvailability(ctx context.Context, classID string) (*models.SeatAvailability, error) {
	if m.seats != nil {
		return m.seats, nil
	}
	return nil, repository.ErrClassNotFound
}

func (m *enrollStoreMock) FindDetail(ctx context.Context, studentID, classID string) (*models.EnrollmentDetail, error) {
	return &models.EnrollmentDetail{Enrollment: models.Enrollment{ID: "enr-1", StudentID: studentID, ClassID: classID, Status: models.EnrollmentStatusActive}}, nil
}

func (m *enrollStoreMock) FindActiveByPair(ctx context.Context, studentID, classID string) (*models.Enrollment, error) {
	return nil, sql.ErrNoRows
}

func (m *enrollStoreMock) Roster(ctx context.Context, classID string) ([]models.RosterEntry, error) {
	return m.roster, nil
}

func (m *enrollStoreMock) List(ctx context.Context, filter models.EnrollmentFilter) ([]models.EnrollmentDetail, int, error) {
	return nil, 0, nil
}

type studentReaderMock struct{}

func (m *studentReaderMock) FindByID(ctx context.Context, id string) (*models.Student, error) {
	return &models.Student{ID: id, Active: true}, nil
}

type classStoreMock struct {
	class *models.Class
}

func (m *classStoreMock) FindByID(ctx context.Context, id string) (*models.Class, error) {
	if m.class == nil {
		return nil, sql.ErrNoRows
	}
	return m.class, nil
}

func (m *classStoreMock) FindDetailByID(ctx context.Context, id string) (*models.ClassDetail, error) {
	if m.class == nil {
		return nil, sql.ErrNoRows
	}
	return &models.ClassDetail{Class: *m.class}, nil
}

func (m *classStoreMock) List(ctx context.Context, filter models.ClassFilter) ([]models.ClassDetail, int, error) {
	return nil, 0, nil
}

func (m *classStoreMock) Create(ctx context.Context, class *models.Class) error { return nil }
func (m *classStoreMock) Update(ctx context.Context, class *models.Class) error { return nil }
func (m *classStoreMock) SetActive(ctx context.Context, id string, active bool) error {
	return nil
}

type courseReaderMock struct{}

func (m *courseReaderMock) FindByID(ctx context.Context, id string) (*models.Course, error) {
	return &models.Course{ID: id}, nil
}

func newEnrollmentHandlerFixture(store *enrollStoreMock, class *models.Class) *EnrollmentHandler {
	validate := validator.New()
	logger := zap.NewNop()
	enrollSvc := service.NewEnrollmentService(store, &studentReaderMock{}, nil, nil, validate, logger, 3, 0)
	classSvc := service.NewClassService(&classStoreMock{class: class}, &courseReaderMock{}, nil, validate, logger, 0)
	policy := service.NewAccessPolicy(store)
	return NewEnrollmentHandler(enrollSvc, classSvc, policy)
}

func testContext(t *testing.T, method, target string, body []byte, claims *models.JWTClaims, classID string) (*gin.Context, *httptest.ResponseRecorder) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	var req *http.Request
	if body != nil {
		req = httptest.NewRequest(method, target, bytes.NewBuffer(body))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	c.Request = req
	if classID != "" {
		c.Params = gin.Params{{Key: "id", Value: classID}}
	}
	if claims != nil {
		c.Set(middleware.ContextUserKey, claims)
	}
	return c, w
}

func errorCode(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var envelope struct {
		Error *struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.NotNil(t, envelope.Error)
	return envelope.Error.Code
}

func TestEnrollmentHandlerEnrollSelf(t *testing.T) {
	handler := newEnrollmentHandlerFixture(&enrollStoreMock{}, &models.Class{ID: "c1", TeacherID: "t1", Active: true})

	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent, ProfileID: "s1"}
	c, w := testContext(t, http.MethodPost, "/classes/c1/enroll", nil, claims, "c1")

	handler.Enroll(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data models.EnrollmentDetail `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, "s1", envelope.Data.StudentID)
	assert.Equal(t, models.EnrollmentStatusActive, envelope.Data.Status)
}

func TestEnrollmentHandlerEnrollOtherStudentForbidden(t *testing.T) {
	handler := newEnrollmentHandlerFixture(&enrollStoreMock{}, &models.Class{ID: "c1", Active: true})

	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent, ProfileID: "s1"}
	body := []byte(`{"student_id":"s2"}`)
	c, w := testContext(t, http.MethodPost, "/classes/c1/enroll", body, claims, "c1")

	handler.Enroll(c)
	require.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "FORBIDDEN", errorCode(t, w))
}

func TestEnrollmentHandlerEnrollAdminForAnyStudent(t *testing.T) {
	handler := newEnrollmentHandlerFixture(&enrollStoreMock{}, &models.Class{ID: "c1", Active: true})

	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleAdmin}
	body := []byte(`{"student_id":"s7"}`)
	c, w := testContext(t, http.MethodPost, "/classes/c1/enroll", body, claims, "c1")

	handler.Enroll(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestEnrollmentHandlerEnrollClassFull(t *testing.T) {
	handler := newEnrollmentHandlerFixture(&enrollStoreMock{enrollErr: repository.ErrClassFull}, &models.Class{ID: "c1", Active: true})

	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent, ProfileID: "s1"}
	c, w := testContext(t, http.MethodPost, "/classes/c1/enroll", nil, claims, "c1")

	handler.Enroll(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "CLASS_FULL", errorCode(t, w))
}

func TestEnrollmentHandlerUnenrollNotEnrolled(t *testing.T) {
	handler := newEnrollmentHandlerFixture(&enrollStoreMock{unenrollErr: repository.ErrNotEnrolled}, &models.Class{ID: "c1", Active: true})

	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent, ProfileID: "s1"}
	c, w := testContext(t, http.MethodPost, "/classes/c1/unenroll", nil, claims, "c1")

	handler.Unenroll(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "NOT_ENROLLED", errorCode(t, w))
}

func TestEnrollmentHandlerSeats(t *testing.T) {
	store := &enrollStoreMock{seats: &models.SeatAvailability{ClassID: "c1", MaxSeats: 30, EnrolledCount: 12, AvailableSeats: 18}}
	handler := newEnrollmentHandlerFixture(store, &models.Class{ID: "c1", Active: true})

	c, w := testContext(t, http.MethodGet, "/classes/c1/seats", nil, nil, "c1")

	handler.Seats(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.SeatAvailability `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.Equal(t, 18, envelope.Data.AvailableSeats)
}

func TestEnrollmentHandlerSeatsUnknownClass(t *testing.T) {
	handler := newEnrollmentHandlerFixture(&enrollStoreMock{}, nil)

	c, w := testContext(t, http.MethodGet, "/classes/ghost/seats", nil, nil, "ghost")

	handler.Seats(c)
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "NOT_FOUND", errorCode(t, w))
}

func TestEnrollmentHandlerRosterForbiddenForOutsider(t *testing.T) {
	handler := newEnrollmentHandlerFixture(&enrollStoreMock{}, &models.Class{ID: "c1", TeacherID: "t1", Active: true})

	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleStudent, ProfileID: "s9"}
	c, w := testContext(t, http.MethodGet, "/classes/c1/roster", nil, claims, "c1")

	handler.Roster(c)
	require.Equal(t, http.StatusForbidden, w.Code)
}

func TestEnrollmentHandlerRosterOwningTeacher(t *testing.T) {
	store := &enrollStoreMock{roster: []models.RosterEntry{{EnrollmentID: "enr-1", StudentID: "s1"}}}
	handler := newEnrollmentHandlerFixture(store, &models.Class{ID: "c1", TeacherID: "t1", Active: true})

	claims := &models.JWTClaims{UserID: "u1", Role: models.RoleTeacher, ProfileID: "t1"}
	c, w := testContext(t, http.MethodGet, "/classes/c1/roster", nil, claims, "c1")

	handler.Roster(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data []models.RosterEntry `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	assert.Equal(t, "s1", envelope.Data[0].StudentID)
}
