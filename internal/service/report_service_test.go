package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizhall/quizhall-api/internal/models"
	"github.com/quizhall/quizhall-api/internal/repository"
	appErrors "github.com/quizhall/quizhall-api/pkg/errors"
	"github.com/quizhall/quizhall-api/pkg/jobs"
)

type mockReportRepo struct {
	jobs    map[string]*models.ReportJob
	nextID  int
	updates []repository.UpdateReportJobParams
}

func (m *mockReportRepo) Create(ctx context.Context, job *models.ReportJob) error {
	if m.jobs == nil {
		m.jobs = make(map[string]*models.ReportJob)
	}
	m.nextID++
	job.ID = fmt.Sprintf("job-%d", m.nextID)
	job.CreatedAt = time.Now().UTC()
	m.jobs[job.ID] = job
	return nil
}

func (m *mockReportRepo) GetByID(ctx context.Context, id string) (*models.ReportJob, error) {
	if j, ok := m.jobs[id]; ok {
		copied := *j
		return &copied, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockReportRepo) Update(ctx context.Context, id string, params repository.UpdateReportJobParams) error {
	m.updates = append(m.updates, params)
	job, ok := m.jobs[id]
	if !ok {
		return sql.ErrNoRows
	}
	if params.Status != nil {
		job.Status = *params.Status
	}
	if params.Progress != nil {
		job.Progress = *params.Progress
	}
	if params.ResultURL != nil {
		job.ResultURL = params.ResultURL
	}
	if params.ErrorMessage != nil {
		job.ErrorMessage = params.ErrorMessage
	}
	if params.FinishedAt != nil {
		job.FinishedAt = params.FinishedAt
	}
	return nil
}

func (m *mockReportRepo) ListQueued(ctx context.Context, limit int) ([]models.ReportJob, error) {
	var out []models.ReportJob
	for _, j := range m.jobs {
		if j.Status == models.ReportStatusQueued {
			out = append(out, *j)
		}
	}
	return out, nil
}

func (m *mockReportRepo) ListFinishedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.ReportJob, error) {
	return nil, nil
}

type mockDispatcher struct {
	enqueued []jobs.Job
	err      error
}

func (m *mockDispatcher) Enqueue(job jobs.Job) error {
	if m.err != nil {
		return m.err
	}
	m.enqueued = append(m.enqueued, job)
	return nil
}

type mockExporter struct {
	result *ExportResult
	err    error
	calls  int
}

func (m *mockExporter) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return m.result, nil
}

func newReportFixture(t *testing.T) (*ReportService, *mockReportRepo, *mockDispatcher) {
	t.Helper()
	repo := &mockReportRepo{}
	sessions := &mockSessionRepo{sessions: map[string]*models.ExamSession{
		"sess-1":    {ID: "sess-1", UserID: "user-1", Status: models.SessionCompleted},
		"sess-open": {ID: "sess-open", UserID: "user-1", Status: models.SessionInProgress},
	}}
	queue := &mockDispatcher{}
	svc := NewReportService(repo, sessions, queue, nil, nil, ReportServiceConfig{})
	return svc, repo, queue
}

func TestCreateJobEnqueues(t *testing.T) {
	svc, repo, queue := newReportFixture(t)

	resp, err := svc.CreateJob(context.Background(), models.CreateReportRequest{
		SessionID: "sess-1",
		Format:    models.ReportFormatCSV,
	}, "user-1", models.RoleExaminee)
	require.NoError(t, err)

	assert.Equal(t, models.ReportStatusQueued, resp.Status)
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, resp.ID, queue.enqueued[0].ID)
	assert.Equal(t, "session_report", queue.enqueued[0].Type)
	assert.Equal(t, "user-1", repo.jobs[resp.ID].CreatedBy)
}

func TestCreateJobRejectsUnknownFormat(t *testing.T) {
	svc, _, _ := newReportFixture(t)

	_, err := svc.CreateJob(context.Background(), models.CreateReportRequest{
		SessionID: "sess-1",
		Format:    "xlsx",
	}, "user-1", models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
}

func TestCreateJobExamineeOwnershipAndState(t *testing.T) {
	svc, _, _ := newReportFixture(t)

	_, err := svc.CreateJob(context.Background(), models.CreateReportRequest{
		SessionID: "sess-1",
		Format:    models.ReportFormatPDF,
	}, "user-2", models.RoleExaminee)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.CreateJob(context.Background(), models.CreateReportRequest{
		SessionID: "sess-open",
		Format:    models.ReportFormatPDF,
	}, "user-1", models.RoleExaminee)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestCreateJobEnqueueFailureMarksFailed(t *testing.T) {
	svc, repo, queue := newReportFixture(t)
	queue.err = errors.New("queue full")

	_, err := svc.CreateJob(context.Background(), models.CreateReportRequest{
		SessionID: "sess-1",
		Format:    models.ReportFormatCSV,
	}, "admin-1", models.RoleAdmin)
	require.Error(t, err)

	require.Len(t, repo.jobs, 1)
	for _, job := range repo.jobs {
		assert.Equal(t, models.ReportStatusFailed, job.Status)
		require.NotNil(t, job.ErrorMessage)
		assert.NotNil(t, job.FinishedAt)
	}
}

func TestGetStatusOwnership(t *testing.T) {
	svc, repo, _ := newReportFixture(t)
	url := "/api/v1/reports/download/tok-1"
	repo.jobs = map[string]*models.ReportJob{
		"job-1": {
			ID:        "job-1",
			Status:    models.ReportStatusFinished,
			Progress:  100,
			ResultURL: &url,
			CreatedBy: "user-1",
		},
	}

	status, err := svc.GetStatus(context.Background(), "job-1", "user-1", models.RoleExaminee)
	require.NoError(t, err)
	assert.Equal(t, models.ReportStatusFinished, status.Status)
	require.NotNil(t, status.ResultURL)
	assert.Equal(t, url, *status.ResultURL)

	_, err = svc.GetStatus(context.Background(), "job-1", "user-2", models.RoleExaminee)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)

	_, err = svc.GetStatus(context.Background(), "job-ghost", "user-1", models.RoleAdmin)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}

func TestWorkerHandleFinishesJob(t *testing.T) {
	repo := &mockReportRepo{jobs: map[string]*models.ReportJob{
		"job-1": {ID: "job-1", SessionID: "sess-1", Format: models.ReportFormatCSV, Status: models.ReportStatusQueued},
	}}
	exporter := &mockExporter{result: &ExportResult{URL: "/api/v1/reports/download/tok-9"}}
	worker := NewReportWorker(repo, exporter, 3, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Type: "session_report", Attempt: 1})
	require.NoError(t, err)

	job := repo.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFinished, job.Status)
	assert.Equal(t, 100, job.Progress)
	require.NotNil(t, job.ResultURL)
	assert.Equal(t, "/api/v1/reports/download/tok-9", *job.ResultURL)
	assert.NotNil(t, job.FinishedAt)
}

func TestWorkerHandleRequeuesUntilMaxRetries(t *testing.T) {
	repo := &mockReportRepo{jobs: map[string]*models.ReportJob{
		"job-1": {ID: "job-1", SessionID: "sess-1", Format: models.ReportFormatCSV, Status: models.ReportStatusQueued},
	}}
	exporter := &mockExporter{err: errors.New("render failed")}
	worker := NewReportWorker(repo, exporter, 3, nil)

	err := worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 1})
	require.Error(t, err)
	assert.Equal(t, models.ReportStatusQueued, repo.jobs["job-1"].Status)

	err = worker.Handle(context.Background(), jobs.Job{ID: "job-1", Attempt: 3})
	require.Error(t, err)
	job := repo.jobs["job-1"]
	assert.Equal(t, models.ReportStatusFailed, job.Status)
	require.NotNil(t, job.ErrorMessage)
	assert.Equal(t, "render failed", *job.ErrorMessage)
	assert.NotNil(t, job.FinishedAt)
}

func TestRecoverPendingJobs(t *testing.T) {
	svc, repo, queue := newReportFixture(t)
	repo.jobs = map[string]*models.ReportJob{
		"job-1": {ID: "job-1", Status: models.ReportStatusQueued},
		"job-2": {ID: "job-2", Status: models.ReportStatusFinished},
	}

	svc.RecoverPendingJobs(context.Background())
	require.Len(t, queue.enqueued, 1)
	assert.Equal(t, "job-1", queue.enqueued[0].ID)
}
