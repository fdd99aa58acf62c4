package service

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/quizhall/quizhall-api/internal/models"
	"github.com/quizhall/quizhall-api/internal/repository"
	appErrors "github.com/quizhall/quizhall-api/pkg/errors"
)

type sessionRepo interface {
	Create(ctx context.Context, session *models.ExamSession) error
	FindByID(ctx context.Context, id string) (*models.ExamSession, error)
	ListByUser(ctx context.Context, userID string) ([]models.ExamSession, error)
	MarkSubmitted(ctx context.Context, id string, total float64, submittedAt time.Time) error
}

type sessionAnswerRepo interface {
	Upsert(ctx context.Context, answer *models.Answer) error
	ListForSession(ctx context.Context, sessionID string) ([]models.Answer, error)
	UpdatePoints(ctx context.Context, answerID string, points float64) error
	SumPointsForSession(ctx context.Context, sessionID string) (float64, error)
}

type sessionExamRepo interface {
	FindByID(ctx context.Context, id string) (*models.Exam, error)
}

type sessionQuestionRepo interface {
	ListByExam(ctx context.Context, examID string) ([]models.Question, error)
}

// SessionService manages the examinee-facing attempt lifecycle: start,
// answer, submit.
type SessionService struct {
	sessions  sessionRepo
	answers   sessionAnswerRepo
	exams     sessionExamRepo
	questions sessionQuestionRepo
	validator *validator.Validate
	logger    *zap.Logger
	now       func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(sessions sessionRepo, answers sessionAnswerRepo, exams sessionExamRepo, questions sessionQuestionRepo, validate *validator.Validate, logger *zap.Logger) *SessionService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SessionService{
		sessions:  sessions,
		answers:   answers,
		exams:     exams,
		questions: questions,
		validator: validate,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// Start opens a new in-progress session for the given examinee.
func (s *SessionService) Start(ctx context.Context, req models.StartSessionRequest, userID string) (*models.ExamSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid session payload")
	}
	exam, err := s.exams.FindByID(ctx, req.ExamID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "exam not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load exam")
	}
	if !exam.Active {
		return nil, appErrors.Clone(appErrors.ErrConflict, "exam is not active")
	}
	session := &models.ExamSession{
		UserID:    userID,
		ExamID:    exam.ID,
		Status:    models.SessionInProgress,
		StartedAt: s.now(),
	}
	if err := s.sessions.Create(ctx, session); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session")
	}
	s.logger.Info("session started",
		zap.String("session_id", session.ID),
		zap.String("exam_id", exam.ID),
		zap.String("user_id", userID),
	)
	return session, nil
}

// SaveAnswer records or replaces the answer for one question within a
// session. Saving twice for the same question overwrites in place: the
// last write wins and the session never holds two answers for one question.
func (s *SessionService) SaveAnswer(ctx context.Context, req models.SaveAnswerRequest, userID string) (*models.Answer, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid answer payload")
	}
	session, err := s.sessions.FindByID(ctx, req.SessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidReference
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.UserID != userID {
		return nil, appErrors.ErrForbidden
	}
	if session.Status != models.SessionInProgress {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session is no longer accepting answers")
	}
	answer := &models.Answer{
		SessionID:        req.SessionID,
		QuestionID:       req.QuestionID,
		AnswerText:       req.AnswerText,
		TimeSpentSeconds: req.TimeSpentSeconds,
		AnsweredAt:       s.now(),
	}
	if err := s.answers.Upsert(ctx, answer); err != nil {
		if repository.IsForeignKeyViolation(err) {
			return nil, appErrors.ErrInvalidReference
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save answer")
	}
	return answer, nil
}

// Submit closes an in-progress session: auto-gradable answers are scored
// against the answer key, manual answers stay ungraded, and the session is
// marked completed with a total recomputed from the stored answers.
func (s *SessionService) Submit(ctx context.Context, sessionID, userID string) (*models.ExamSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if session.UserID != userID {
		return nil, appErrors.ErrForbidden
	}
	if session.Status != models.SessionInProgress {
		return nil, appErrors.Clone(appErrors.ErrConflict, "session has already been submitted")
	}

	questions, err := s.questions.ListByExam(ctx, session.ExamID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load questions")
	}
	byID := make(map[string]models.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	answers, err := s.answers.ListForSession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load answers")
	}

	for _, answer := range answers {
		question, ok := byID[answer.QuestionID]
		if !ok {
			continue
		}
		if question.QuestionType.ManuallyGraded() {
			continue
		}
		points := autoGrade(question, answer.AnswerText)
		if err := s.answers.UpdatePoints(ctx, answer.ID, points); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to grade answer")
		}
	}

	// The stored total is always derived from the stored answers, the same
	// aggregation the recompute path runs.
	total, err := s.answers.SumPointsForSession(ctx, sessionID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to total session")
	}

	submittedAt := s.now()
	if err := s.sessions.MarkSubmitted(ctx, sessionID, total, submittedAt); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to submit session")
	}

	session.Status = models.SessionCompleted
	session.SubmittedAt = &submittedAt
	session.TotalScore = total

	s.logger.Info("session submitted",
		zap.String("session_id", sessionID),
		zap.Float64("total_score", total),
	)
	return session, nil
}

// Get returns a session, enforcing that examinees may only view their own.
func (s *SessionService) Get(ctx context.Context, sessionID, requesterID string, requesterRole models.UserRole) (*models.ExamSession, error) {
	session, err := s.sessions.FindByID(ctx, sessionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrSessionNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load session")
	}
	if requesterRole == models.RoleExaminee && session.UserID != requesterID {
		return nil, appErrors.ErrForbidden
	}
	return session, nil
}

// ListForUser returns the given user's sessions, most recent first.
func (s *SessionService) ListForUser(ctx context.Context, userID string) ([]models.ExamSession, error) {
	sessions, err := s.sessions.ListByUser(ctx, userID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sessions")
	}
	return sessions, nil
}

// autoGrade scores one auto-gradable answer against the question's answer
// key. Single choice and true/false compare case-insensitively; multiple
// choice requires the exact option set, so order of selection is ignored
// but a partial match earns nothing.
func autoGrade(question models.Question, answerText string) float64 {
	if question.CorrectAnswer == nil {
		return 0
	}
	switch question.QuestionType {
	case models.QuestionSingleChoice, models.QuestionTrueFalse:
		if strings.EqualFold(strings.TrimSpace(answerText), strings.TrimSpace(*question.CorrectAnswer)) {
			return question.MaxPoints
		}
	case models.QuestionMultipleChoice:
		if sameOptionSet(answerText, *question.CorrectAnswer) {
			return question.MaxPoints
		}
	}
	return 0
}

func sameOptionSet(got, want string) bool {
	gotSet := splitOptions(got)
	wantSet := splitOptions(want)
	if len(gotSet) != len(wantSet) {
		return false
	}
	for i := range gotSet {
		if gotSet[i] != wantSet[i] {
			return false
		}
	}
	return true
}

func splitOptions(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.ToLower(strings.TrimSpace(p))
		if p != "" {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}
