package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizhall/quizhall-api/internal/middleware"
	"github.com/quizhall/quizhall-api/internal/models"
	"github.com/quizhall/quizhall-api/internal/repository"
	"github.com/quizhall/quizhall-api/internal/service"
)

type gradingSessionRepoMock struct {
	session *models.ExamSession
}

func (m *gradingSessionRepoMock) FindByID(ctx context.Context, id string) (*models.ExamSession, error) {
	return m.session, nil
}

func (m *gradingSessionRepoMock) ListPendingGrading(ctx context.Context) ([]models.GradingWorkItem, error) {
	return nil, nil
}

type gradingQuestionRepoMock struct {
	question *models.Question
}

func (m *gradingQuestionRepoMock) FindByID(ctx context.Context, id string) (*models.Question, error) {
	return m.question, nil
}

type gradingAnswerRepoMock struct {
	answer *models.Answer
}

func (m *gradingAnswerRepoMock) GetCurrent(ctx context.Context, sessionID, questionID string) (*models.Answer, error) {
	return m.answer, nil
}

type gradeEditStoreMock struct {
	outcome *repository.EditOutcome
}

func (m *gradeEditStoreMock) ApplyEdit(ctx context.Context, p repository.ApplyEditParams) (*repository.EditOutcome, error) {
	return m.outcome, nil
}

func (m *gradeEditStoreMock) HistoryForSession(ctx context.Context, sessionID string) ([]models.GradeEditHistory, error) {
	return []models.GradeEditHistory{}, nil
}

func newGradingHandlerForTest() *GradingHandler {
	points := 4.0
	svc := service.NewGradingService(
		&gradingSessionRepoMock{session: &models.ExamSession{ID: "sess-1", Status: models.SessionCompleted, TotalScore: 9}},
		&gradingQuestionRepoMock{question: &models.Question{ID: "q-essay", QuestionType: models.QuestionEssay, MaxPoints: 10}},
		&gradingAnswerRepoMock{answer: &models.Answer{ID: "ans-1", SessionID: "sess-1", QuestionID: "q-essay", PointsEarned: &points}},
		&gradeEditStoreMock{outcome: &repository.EditOutcome{NewTotalScore: 12, EditCount: 1, HistoryID: "hist-1"}},
		nil, nil, nil,
		service.GradingConfig{},
	)
	return NewGradingHandler(svc, nil, service.NewMetricsService())
}

func TestGradingHandlerEditGradeUnauthorized(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewGradingHandler(nil, nil, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/grading/sessions/sess-1/edits", bytes.NewReader([]byte(`{}`)))
	c.Request = req

	h.EditGrade(c)
	require.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestGradingHandlerEditGradeInvalidBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewGradingHandler(nil, nil, nil)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodPost, "/grading/sessions/sess-1/edits", bytes.NewReader([]byte(`invalid`)))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "expert-1", Role: models.RoleExpert})

	h.EditGrade(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGradingHandlerEditGradeSuccess(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newGradingHandlerForTest()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	body, _ := json.Marshal(models.EditGradeRequest{QuestionID: "q-essay", NewPoints: 7})
	req, _ := http.NewRequest(http.MethodPost, "/grading/sessions/sess-1/edits", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "expert-1", Role: models.RoleExpert})

	h.EditGrade(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data models.EditResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	assert.True(t, envelope.Data.Changed)
	assert.Equal(t, 7.0, envelope.Data.NewPoints)
	assert.Equal(t, 12.0, envelope.Data.TotalScore)
}

func TestGradingHandlerHistory(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := newGradingHandlerForTest()
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(http.MethodGet, "/grading/sessions/sess-1/history", nil)
	c.Request = req
	c.Params = gin.Params{{Key: "id", Value: "sess-1"}}

	h.History(c)
	assert.Equal(t, http.StatusOK, w.Code)
}
