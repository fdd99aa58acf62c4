package service

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/quizhall/quizhall-api/internal/models"
	"github.com/quizhall/quizhall-api/pkg/export"
	"github.com/quizhall/quizhall-api/pkg/storage"
)

type exportSessionRepo interface {
	FindByID(ctx context.Context, id string) (*models.ExamSession, error)
}

type exportAnswerRepo interface {
	ListForSession(ctx context.Context, sessionID string) ([]models.Answer, error)
}

type exportQuestionRepo interface {
	ListByExam(ctx context.Context, examID string) ([]models.Question, error)
}

type exportExamRepo interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
}

type exportUserRepo interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type exportHistoryRepo interface {
	HistoryForSession(ctx context.Context, sessionID string) ([]models.GradeEditHistory, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix string
	ResultTTL time.Duration
}

// ExportResult captures successful generation metadata.
type ExportResult struct {
	RelativePath string
	Token        string
	URL          string
	Format       models.ReportFormat
	ExpiresAt    time.Time
}

// ExportService builds session report datasets and persists rendered files.
type ExportService struct {
	sessions  exportSessionRepo
	answers   exportAnswerRepo
	questions exportQuestionRepo
	exams     exportExamRepo
	users     exportUserRepo
	history   exportHistoryRepo
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService.
func NewExportService(sessions exportSessionRepo, answers exportAnswerRepo, questions exportQuestionRepo, exams exportExamRepo, users exportUserRepo, history exportHistoryRepo, store fileStorage, signer *storage.SignedURLSigner, cfg ExportConfig, logger *zap.Logger) *ExportService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = 24 * time.Hour
	}
	return &ExportService{
		sessions:  sessions,
		answers:   answers,
		questions: questions,
		exams:     exams,
		users:     users,
		history:   history,
		storage:   store,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		signer:    signer,
		logger:    logger,
		cfg:       cfg,
	}
}

// Generate builds the session report and stores the rendered export.
func (s *ExportService) Generate(ctx context.Context, job *models.ReportJob) (*ExportResult, error) {
	if job == nil {
		return nil, fmt.Errorf("job nil")
	}
	dataset, title, err := s.buildSessionDataset(ctx, job.SessionID)
	if err != nil {
		return nil, err
	}

	var payload []byte
	switch job.Format {
	case models.ReportFormatCSV:
		payload, err = s.csv.Render(dataset)
	case models.ReportFormatPDF:
		payload, err = s.pdf.Render(dataset, title)
	default:
		err = fmt.Errorf("unsupported format %s", job.Format)
	}
	if err != nil {
		return nil, err
	}

	filename := s.buildFilename(job)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, err
	}

	token, expiresAt, err := s.signer.Generate(job.ID, relPath)
	if err != nil {
		return nil, err
	}
	signedURL := strings.TrimRight(s.cfg.APIPrefix, "/")
	if signedURL == "" {
		signedURL = "/api/v1"
	}
	signedURL = fmt.Sprintf("%s/reports/download/%s", signedURL, token)

	return &ExportResult{
		RelativePath: relPath,
		Token:        token,
		URL:          signedURL,
		Format:       job.Format,
		ExpiresAt:    expiresAt,
	}, nil
}

// ParseToken validates download token metadata.
func (s *ExportService) ParseToken(token string, allowExpired bool) (jobID, relPath string, expiresAt time.Time, err error) {
	return s.signer.Parse(token, allowExpired)
}

// Open returns a handle to the stored file.
func (s *ExportService) Open(relPath string) (*os.File, error) {
	return s.storage.Open(relPath)
}

// Delete removes a stored export file.
func (s *ExportService) Delete(relPath string) error {
	return s.storage.Delete(relPath)
}

// Cleanup removes files older than ttl (defaults to configured ResultTTL when ttl <= 0).
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

func (s *ExportService) buildFilename(job *models.ReportJob) string {
	timestamp := time.Now().UTC().Format("20060102_150405")
	sessionPart := sanitizeFilename(job.SessionID)
	return fmt.Sprintf("session_%s_%s.%s", sessionPart, timestamp, job.Format)
}

func sanitizeFilename(raw string) string {
	if raw == "" {
		return "na"
	}
	replacer := strings.NewReplacer(" ", "_", "/", "-", "\\", "-", ":", "-", "..", ".", "__", "_")
	result := replacer.Replace(raw)
	if len(result) > 100 {
		return result[:100]
	}
	return result
}

// buildSessionDataset assembles per-question scores followed by the grade
// edit trail, so a single export answers both "what did they score" and
// "who changed it".
func (s *ExportService) buildSessionDataset(ctx context.Context, sessionID string) (export.Dataset, string, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load session: %w", err)
	}
	exam, err := s.exams.FindByID(ctx, session.ExamID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load exam: %w", err)
	}
	examinee, err := s.users.FindByID(ctx, session.UserID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load examinee: %w", err)
	}
	questions, err := s.questions.ListByExam(ctx, session.ExamID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load questions: %w", err)
	}
	answers, err := s.answers.ListForSession(ctx, sessionID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load answers: %w", err)
	}
	edits, err := s.history.HistoryForSession(ctx, sessionID)
	if err != nil {
		return export.Dataset{}, "", fmt.Errorf("load edit history: %w", err)
	}

	answersByQuestion := make(map[string]models.Answer, len(answers))
	for _, a := range answers {
		answersByQuestion[a.QuestionID] = a
	}
	editCounts := make(map[string]int, len(edits))
	for _, e := range edits {
		editCounts[e.QuestionID]++
	}

	rows := make([]map[string]string, 0, len(questions)+1)
	for _, q := range questions {
		row := map[string]string{
			"Question":   q.QuestionText,
			"Type":       string(q.QuestionType),
			"Answer":     "",
			"Points":     "",
			"Max Points": fmt.Sprintf("%.2f", q.MaxPoints),
			"Edits":      fmt.Sprintf("%d", editCounts[q.ID]),
		}
		if a, ok := answersByQuestion[q.ID]; ok {
			row["Answer"] = a.AnswerText
			if a.PointsEarned != nil {
				row["Points"] = fmt.Sprintf("%.2f", *a.PointsEarned)
			} else {
				row["Points"] = "ungraded"
			}
		}
		rows = append(rows, row)
	}
	rows = append(rows, map[string]string{
		"Question":   "TOTAL",
		"Type":       "",
		"Answer":     "",
		"Points":     fmt.Sprintf("%.2f", session.TotalScore),
		"Max Points": "",
		"Edits":      fmt.Sprintf("%d", session.EditCount),
	})

	dataset := export.Dataset{
		Headers: []string{"Question", "Type", "Answer", "Points", "Max Points", "Edits"},
		Rows:    rows,
	}
	title := fmt.Sprintf("Session Report %s - %s", exam.Title, examinee.FullName)
	return dataset, title, nil
}
