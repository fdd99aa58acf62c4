package service

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizhall/quizhall-api/internal/models"
	"github.com/quizhall/quizhall-api/pkg/storage"
)

type mockFileStorage struct {
	files map[string][]byte
}

func (m *mockFileStorage) Save(filename string, data []byte) (string, error) {
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	m.files[filename] = data
	return filename, nil
}

func (m *mockFileStorage) Open(filename string) (*os.File, error) {
	return nil, os.ErrNotExist
}

func (m *mockFileStorage) Delete(filename string) error {
	delete(m.files, filename)
	return nil
}

func (m *mockFileStorage) CleanupOlderThan(ttl time.Duration) ([]string, error) {
	return nil, nil
}

type mockHistoryReader struct {
	history []models.GradeEditHistory
}

func (m *mockHistoryReader) HistoryForSession(ctx context.Context, sessionID string) ([]models.GradeEditHistory, error) {
	return m.history, nil
}

type mockUserReader struct {
	users map[string]*models.User
}

func (m *mockUserReader) FindByID(ctx context.Context, id string) (*models.User, error) {
	return m.users[id], nil
}

func newExportFixture(t *testing.T) (*ExportService, *mockFileStorage) {
	t.Helper()
	submitted := time.Date(2026, 2, 10, 14, 0, 0, 0, time.UTC)
	sessions := &mockSessionRepo{sessions: map[string]*models.ExamSession{
		"sess-1": {
			ID:          "sess-1",
			UserID:      "user-1",
			ExamID:      "exam-1",
			Status:      models.SessionCompleted,
			SubmittedAt: &submitted,
			TotalScore:  13,
			EditCount:   1,
		},
	}}
	answers := &mockAttemptAnswerRepo{saved: map[string]*models.Answer{
		answerKey("sess-1", "q-single"): {ID: "a-1", SessionID: "sess-1", QuestionID: "q-single", AnswerText: "B", PointsEarned: ptrFloat(2)},
		answerKey("sess-1", "q-essay"):  {ID: "a-2", SessionID: "sess-1", QuestionID: "q-essay", AnswerText: "long answer", PointsEarned: ptrFloat(8)},
		answerKey("sess-1", "q-short"):  {ID: "a-3", SessionID: "sess-1", QuestionID: "q-short", AnswerText: "pending"},
	}}
	questions := &mockQuestionLister{questions: []models.Question{
		{ID: "q-single", ExamID: "exam-1", QuestionText: "2 + 2 = ?", QuestionType: models.QuestionSingleChoice, MaxPoints: 2},
		{ID: "q-essay", ExamID: "exam-1", QuestionText: "Explain.", QuestionType: models.QuestionEssay, MaxPoints: 10},
		{ID: "q-short", ExamID: "exam-1", QuestionText: "Define.", QuestionType: models.QuestionShortAnswer, MaxPoints: 3},
	}}
	exams := &mockExamReader{exams: map[string]*models.Exam{
		"exam-1": {ID: "exam-1", Title: "Algebra Final", Active: true},
	}}
	users := &mockUserReader{users: map[string]*models.User{
		"user-1": {ID: "user-1", FullName: "Jordan Examinee"},
	}}
	history := &mockHistoryReader{history: []models.GradeEditHistory{
		{ID: "hist-1", SessionID: "sess-1", QuestionID: "q-essay", OldPoints: 6, NewPoints: 8},
	}}
	store := &mockFileStorage{}
	signer := storage.NewSignedURLSigner("export-secret", time.Hour)
	svc := NewExportService(sessions, answers, questions, exams, users, history, store, signer, ExportConfig{APIPrefix: "/api/v1"}, nil)
	return svc, store
}

func TestGenerateCSVExport(t *testing.T) {
	svc, store := newExportFixture(t)

	result, err := svc.Generate(context.Background(), &models.ReportJob{
		ID:        "job-1",
		SessionID: "sess-1",
		Format:    models.ReportFormatCSV,
	})
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(result.URL, "/api/v1/reports/download/"))
	assert.Equal(t, models.ReportFormatCSV, result.Format)

	require.Len(t, store.files, 1)
	var content string
	for name, data := range store.files {
		assert.True(t, strings.HasPrefix(name, "session_sess-1_"))
		assert.True(t, strings.HasSuffix(name, ".csv"))
		content = string(data)
	}
	assert.Contains(t, content, "2 + 2 = ?")
	assert.Contains(t, content, "ungraded", "unscored manual answers are flagged, not zeroed")
	assert.Contains(t, content, "8.00")
	assert.Contains(t, content, "TOTAL")
	assert.Contains(t, content, "13.00")

	// The signed token round-trips to the stored file path.
	jobID, relPath, _, err := svc.ParseToken(result.Token, false)
	require.NoError(t, err)
	assert.Equal(t, "job-1", jobID)
	assert.Equal(t, result.RelativePath, relPath)
}

func TestGenerateRejectsUnknownFormat(t *testing.T) {
	svc, _ := newExportFixture(t)

	_, err := svc.Generate(context.Background(), &models.ReportJob{
		ID:        "job-1",
		SessionID: "sess-1",
		Format:    "xlsx",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported format")
}

func TestGeneratePDFExport(t *testing.T) {
	svc, store := newExportFixture(t)

	result, err := svc.Generate(context.Background(), &models.ReportJob{
		ID:        "job-2",
		SessionID: "sess-1",
		Format:    models.ReportFormatPDF,
	})
	require.NoError(t, err)
	assert.Equal(t, models.ReportFormatPDF, result.Format)

	require.Len(t, store.files, 1)
	for name, data := range store.files {
		assert.True(t, strings.HasSuffix(name, ".pdf"))
		assert.True(t, strings.HasPrefix(string(data), "%PDF"))
	}
}
