package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quizhall/quizhall-api/internal/models"
)

// SessionRepository handles exam session persistence.
type SessionRepository struct {
	db *sqlx.DB
}

// NewSessionRepository creates a new session repository.
func NewSessionRepository(db *sqlx.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

// Create inserts a new in-progress session.
func (r *SessionRepository) Create(ctx context.Context, session *models.ExamSession) error {
	if session.ID == "" {
		session.ID = uuid.NewString()
	}
	if session.StartedAt.IsZero() {
		session.StartedAt = time.Now().UTC()
	}
	if session.Status == "" {
		session.Status = models.SessionInProgress
	}
	const query = `INSERT INTO exam_sessions (id, user_id, exam_id, status, started_at, total_score, edit_count)
        VALUES (:id, :user_id, :exam_id, :status, :started_at, :total_score, :edit_count)`
	if _, err := r.db.NamedExecContext(ctx, query, session); err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	return nil
}

// FindByID returns a session by ID, or sql.ErrNoRows.
func (r *SessionRepository) FindByID(ctx context.Context, id string) (*models.ExamSession, error) {
	const query = `SELECT id, user_id, exam_id, status, started_at, submitted_at, total_score, last_edited_by, last_edited_at, edit_count
        FROM exam_sessions WHERE id = $1`
	var session models.ExamSession
	if err := r.db.GetContext(ctx, &session, query, id); err != nil {
		return nil, err
	}
	return &session, nil
}

// ListByUser returns a user's sessions, most recent first.
func (r *SessionRepository) ListByUser(ctx context.Context, userID string) ([]models.ExamSession, error) {
	const query = `SELECT id, user_id, exam_id, status, started_at, submitted_at, total_score, last_edited_by, last_edited_at, edit_count
        FROM exam_sessions WHERE user_id = $1 ORDER BY started_at DESC`
	var sessions []models.ExamSession
	if err := r.db.SelectContext(ctx, &sessions, query, userID); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return sessions, nil
}

// UpdateTotal writes a recomputed total score. This is the only sanctioned
// writer of total_score outside the grade edit transaction.
func (r *SessionRepository) UpdateTotal(ctx context.Context, id string, total float64) error {
	const query = `UPDATE exam_sessions SET total_score = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id, total)
	if err != nil {
		return fmt.Errorf("update session total: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update session total: session %s not found", id)
	}
	return nil
}

// MarkSubmitted completes a session with its initially scored total.
func (r *SessionRepository) MarkSubmitted(ctx context.Context, id string, total float64, submittedAt time.Time) error {
	const query = `UPDATE exam_sessions SET status = $2, submitted_at = $3, total_score = $4 WHERE id = $1 AND status = $5`
	result, err := r.db.ExecContext(ctx, query, id, models.SessionCompleted, submittedAt, total, models.SessionInProgress)
	if err != nil {
		return fmt.Errorf("mark session submitted: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("mark session submitted: session %s not in progress", id)
	}
	return nil
}

// ListPendingGrading returns completed sessions that still have at least one
// ungraded answer to a manually-graded question.
func (r *SessionRepository) ListPendingGrading(ctx context.Context) ([]models.GradingWorkItem, error) {
	const query = `SELECT es.id AS session_id, es.exam_id, e.title AS exam_title,
            es.user_id AS examinee_id, u.full_name AS examinee_name,
            es.submitted_at, COUNT(ua.id) AS ungraded_count
        FROM exam_sessions es
        JOIN exams e ON e.id = es.exam_id
        JOIN users u ON u.id = es.user_id
        JOIN user_answers ua ON ua.session_id = es.id
        JOIN questions q ON q.id = ua.question_id
        WHERE es.status = $1
          AND q.question_type IN ($2, $3)
          AND ua.points_earned IS NULL
        GROUP BY es.id, es.exam_id, e.title, es.user_id, u.full_name, es.submitted_at
        ORDER BY es.submitted_at`
	var items []models.GradingWorkItem
	if err := r.db.SelectContext(ctx, &items, query, models.SessionCompleted, models.QuestionShortAnswer, models.QuestionEssay); err != nil {
		return nil, fmt.Errorf("list pending grading: %w", err)
	}
	return items, nil
}
