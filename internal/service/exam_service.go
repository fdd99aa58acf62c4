package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/quizhall/quizhall-api/internal/models"
	appErrors "github.com/quizhall/quizhall-api/pkg/errors"
)

type examRepo interface {
	Create(ctx context.Context, exam *models.Exam) error
	FindByID(ctx context.Context, id string) (*models.Exam, error)
	List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, error)
}

type examQuestionRepo interface {
	Create(ctx context.Context, question *models.Question) error
	ListByExam(ctx context.Context, examID string) ([]models.Question, error)
}

// ExamDetail bundles an exam with its ordered questions.
type ExamDetail struct {
	Exam      models.Exam       `json:"exam"`
	Questions []models.Question `json:"questions"`
}

// CreateExamRequest is the payload for authoring an exam.
type CreateExamRequest struct {
	Title           string  `json:"title" validate:"required"`
	Description     *string `json:"description,omitempty"`
	DurationMinutes int     `json:"duration_minutes" validate:"gt=0"`
	PassingScore    float64 `json:"passing_score" validate:"gte=0"`
}

// AddQuestionRequest is the payload for adding a question to an exam.
type AddQuestionRequest struct {
	QuestionText  string              `json:"question_text" validate:"required"`
	QuestionType  models.QuestionType `json:"question_type" validate:"required"`
	CorrectAnswer *string             `json:"correct_answer,omitempty"`
	MaxPoints     float64             `json:"max_points" validate:"gt=0"`
	OrderIndex    int                 `json:"order_index" validate:"gte=0"`
}

// ExamService manages exam authoring and retrieval.
type ExamService struct {
	exams     examRepo
	questions examQuestionRepo
	validator *validator.Validate
	logger    *zap.Logger
}

// NewExamService constructs an ExamService.
func NewExamService(exams examRepo, questions examQuestionRepo, validate *validator.Validate, logger *zap.Logger) *ExamService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExamService{exams: exams, questions: questions, validator: validate, logger: logger}
}

// Create authors a new exam.
func (s *ExamService) Create(ctx context.Context, req CreateExamRequest, creatorID string) (*models.Exam, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid exam payload")
	}
	exam := &models.Exam{
		Title:           req.Title,
		Description:     req.Description,
		DurationMinutes: req.DurationMinutes,
		PassingScore:    req.PassingScore,
		Active:          true,
		CreatedBy:       creatorID,
	}
	if err := s.exams.Create(ctx, exam); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create exam")
	}
	s.logger.Info("exam created", zap.String("exam_id", exam.ID), zap.String("created_by", creatorID))
	return exam, nil
}

// AddQuestion appends a question to an exam. Auto-graded types must carry an
// answer key; manual types must not, since their score comes from a grader.
func (s *ExamService) AddQuestion(ctx context.Context, examID string, req AddQuestionRequest) (*models.Question, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid question payload")
	}
	if !req.QuestionType.Valid() {
		return nil, appErrors.Clone(appErrors.ErrValidation, "unknown question type")
	}
	if !req.QuestionType.ManuallyGraded() && (req.CorrectAnswer == nil || *req.CorrectAnswer == "") {
		return nil, appErrors.Clone(appErrors.ErrValidation, "auto-graded questions require a correct answer")
	}
	if _, err := s.exams.FindByID(ctx, examID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	question := &models.Question{
		ExamID:        examID,
		QuestionText:  req.QuestionText,
		QuestionType:  req.QuestionType,
		CorrectAnswer: req.CorrectAnswer,
		MaxPoints:     req.MaxPoints,
		OrderIndex:    req.OrderIndex,
		Active:        true,
	}
	if err := s.questions.Create(ctx, question); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create question")
	}
	return question, nil
}

// List returns exams matching the filter.
func (s *ExamService) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, error) {
	exams, err := s.exams.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list exams")
	}
	return exams, nil
}

// Get returns an exam with its questions. The answer key is stripped for
// examinees.
func (s *ExamService) Get(ctx context.Context, examID string, role models.UserRole) (*ExamDetail, error) {
	exam, err := s.exams.FindByID(ctx, examID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	questions, err := s.questions.ListByExam(ctx, examID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	if role == models.RoleExaminee {
		for i := range questions {
			questions[i].CorrectAnswer = nil
		}
	}
	return &ExamDetail{Exam: *exam, Questions: questions}, nil
}
