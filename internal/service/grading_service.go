package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/quizhall/quizhall-api/internal/models"
	"github.com/quizhall/quizhall-api/internal/repository"
	appErrors "github.com/quizhall/quizhall-api/pkg/errors"
)

const worklistCacheKey = "grading:worklist"

type gradingSessionRepo interface {
	FindByID(ctx context.Context, id string) (*models.ExamSession, error)
	ListPendingGrading(ctx context.Context) ([]models.GradingWorkItem, error)
}

type gradingQuestionRepo interface {
	FindByID(ctx context.Context, id string) (*models.Question, error)
}

type gradingAnswerRepo interface {
	GetCurrent(ctx context.Context, sessionID, questionID string) (*models.Answer, error)
}

type gradeEditStore interface {
	ApplyEdit(ctx context.Context, p repository.ApplyEditParams) (*repository.EditOutcome, error)
	HistoryForSession(ctx context.Context, sessionID string) ([]models.GradeEditHistory, error)
}

type worklistCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string)
}

// GradingConfig tunes worklist caching.
type GradingConfig struct {
	WorklistCacheEnabled bool
	WorklistCacheTTL     time.Duration
}

// GradingService is the only sanctioned path for changing a manually-graded
// answer's score after initial grading.
type GradingService struct {
	sessions  gradingSessionRepo
	questions gradingQuestionRepo
	answers   gradingAnswerRepo
	edits     gradeEditStore
	cache     worklistCache
	validator *validator.Validate
	logger    *zap.Logger
	cfg       GradingConfig
	now       func() time.Time
}

// NewGradingService constructs a GradingService.
func NewGradingService(sessions gradingSessionRepo, questions gradingQuestionRepo, answers gradingAnswerRepo, edits gradeEditStore, cache worklistCache, validate *validator.Validate, logger *zap.Logger, cfg GradingConfig) *GradingService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.WorklistCacheTTL <= 0 {
		cfg.WorklistCacheTTL = 2 * time.Minute
	}
	return &GradingService{
		sessions:  sessions,
		questions: questions,
		answers:   answers,
		edits:     edits,
		cache:     cache,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// EditGrade revises one manually-graded answer's points. Preconditions are
// checked in order and the first failure wins, so every rejection names the
// specific policy violated. A call with the current value is a silent no-op:
// idempotent edits produce no audit record.
func (s *GradingService) EditGrade(ctx context.Context, req models.EditGradeRequest, editorID string) (*models.EditResult, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid edit payload")
	}

	session, err := s.sessions.FindByID(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.Status != models.SessionCompleted {
		return nil, appErrors.ErrSessionNotEditable
	}

	question, err := s.questions.FindByID(ctx, req.QuestionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrQuestionNotEditable, "question not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load question")
	}
	if !question.QuestionType.ManuallyGraded() {
		return nil, appErrors.ErrQuestionNotEditable
	}

	if req.NewPoints < 0 || req.NewPoints > question.MaxPoints {
		return nil, appErrors.ErrPointsOutOfRange
	}

	answer, err := s.answers.GetCurrent(ctx, req.SessionID, req.QuestionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrAnswerNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answer")
	}

	oldPoints := 0.0
	if answer.PointsEarned != nil {
		oldPoints = *answer.PointsEarned
	}
	if answer.PointsEarned != nil && req.NewPoints == oldPoints {
		return &models.EditResult{
			Changed:    false,
			OldPoints:  oldPoints,
			NewPoints:  req.NewPoints,
			TotalScore: session.TotalScore,
			EditCount:  session.EditCount,
		}, nil
	}

	outcome, err := s.edits.ApplyEdit(ctx, repository.ApplyEditParams{
		SessionID:     req.SessionID,
		QuestionID:    req.QuestionID,
		AnswerID:      answer.ID,
		OldPoints:     oldPoints,
		NewPoints:     req.NewPoints,
		OldTotalScore: session.TotalScore,
		EditedBy:      editorID,
		Reason:        req.Reason,
		EditedAt:      s.now(),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to apply grade edit")
	}

	if s.cache != nil {
		s.cache.Delete(ctx, worklistCacheKey)
	}

	s.logger.Info("grade edited",
		zap.String("session_id", req.SessionID),
		zap.String("question_id", req.QuestionID),
		zap.String("editor_id", editorID),
		zap.Float64("old_points", oldPoints),
		zap.Float64("new_points", req.NewPoints),
		zap.Float64("new_total", outcome.NewTotalScore),
	)

	return &models.EditResult{
		Changed:    true,
		OldPoints:  oldPoints,
		NewPoints:  req.NewPoints,
		TotalScore: outcome.NewTotalScore,
		EditCount:  outcome.EditCount,
	}, nil
}

// HistoryForSession returns the chronological audit trail for a session.
func (s *GradingService) HistoryForSession(ctx context.Context, sessionID string) ([]models.GradeEditHistory, error) {
	if _, err := s.sessions.FindByID(ctx, sessionID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	records, err := s.edits.HistoryForSession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load edit history")
	}
	return records, nil
}

// Worklist returns completed sessions with ungraded manual answers, served
// from cache when enabled.
func (s *GradingService) Worklist(ctx context.Context) ([]models.GradingWorkItem, error) {
	if s.cfg.WorklistCacheEnabled && s.cache != nil {
		var cached []models.GradingWorkItem
		if err := s.cache.Get(ctx, worklistCacheKey, &cached); err == nil {
			return cached, nil
		}
	}
	items, err := s.sessions.ListPendingGrading(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list pending grading")
	}
	if s.cfg.WorklistCacheEnabled && s.cache != nil {
		if err := s.cache.Set(ctx, worklistCacheKey, items, s.cfg.WorklistCacheTTL); err != nil {
			s.logger.Sugar().Warnw("failed to cache grading worklist", "error", err)
		}
	}
	return items, nil
}
