package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/quizhall/quizhall-api/internal/models"
)

// AnswerRepository persists the current answer per (session, question).
//
// The user_answers table carries UNIQUE (session_id, question_id); the
// constraint, not application logic, is what guarantees a single surviving
// row when concurrent saves race. Content is whichever write commits last.
type AnswerRepository struct {
	db *sqlx.DB
}

// NewAnswerRepository creates a new answer repository.
func NewAnswerRepository(db *sqlx.DB) *AnswerRepository {
	return &AnswerRepository{db: db}
}

// Upsert inserts the answer or replaces the existing row for the same
// (session_id, question_id) pair. answered_at is set to the write time.
func (r *AnswerRepository) Upsert(ctx context.Context, answer *models.Answer) error {
	if answer.ID == "" {
		answer.ID = uuid.NewString()
	}
	answer.AnsweredAt = time.Now().UTC()
	const query = `INSERT INTO user_answers (id, session_id, question_id, answer_text, time_spent_seconds, answered_at)
        VALUES (:id, :session_id, :question_id, :answer_text, :time_spent_seconds, :answered_at)
        ON CONFLICT (session_id, question_id)
        DO UPDATE SET answer_text = EXCLUDED.answer_text, time_spent_seconds = EXCLUDED.time_spent_seconds, answered_at = EXCLUDED.answered_at`
	if _, err := r.db.NamedExecContext(ctx, query, answer); err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

// GetCurrent returns the current answer for the pair, or sql.ErrNoRows.
func (r *AnswerRepository) GetCurrent(ctx context.Context, sessionID, questionID string) (*models.Answer, error) {
	const query = `SELECT id, session_id, question_id, answer_text, points_earned, time_spent_seconds, answered_at
        FROM user_answers WHERE session_id = $1 AND question_id = $2`
	var answer models.Answer
	if err := r.db.GetContext(ctx, &answer, query, sessionID, questionID); err != nil {
		return nil, err
	}
	return &answer, nil
}

// ListForSession returns one answer per answered question, ordered by question.
func (r *AnswerRepository) ListForSession(ctx context.Context, sessionID string) ([]models.Answer, error) {
	const query = `SELECT id, session_id, question_id, answer_text, points_earned, time_spent_seconds, answered_at
        FROM user_answers WHERE session_id = $1 ORDER BY question_id`
	var answers []models.Answer
	if err := r.db.SelectContext(ctx, &answers, query, sessionID); err != nil {
		return nil, fmt.Errorf("list answers: %w", err)
	}
	return answers, nil
}

// UpdatePoints sets points_earned on a single answer. answered_at is left
// untouched: grading is not a re-submission.
func (r *AnswerRepository) UpdatePoints(ctx context.Context, answerID string, points float64) error {
	const query = `UPDATE user_answers SET points_earned = $2 WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, answerID, points)
	if err != nil {
		return fmt.Errorf("update answer points: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return fmt.Errorf("update answer points: answer %s not found", answerID)
	}
	return nil
}

// SumPointsForSession computes the authoritative session total: the sum of
// points_earned over all current answers, ungraded counted as zero.
func (r *AnswerRepository) SumPointsForSession(ctx context.Context, sessionID string) (float64, error) {
	const query = `SELECT COALESCE(SUM(COALESCE(points_earned, 0)), 0) FROM user_answers WHERE session_id = $1`
	var total float64
	if err := r.db.GetContext(ctx, &total, query, sessionID); err != nil {
		return 0, fmt.Errorf("sum session points: %w", err)
	}
	return total, nil
}

// IsForeignKeyViolation reports whether the error is a Postgres foreign key
// violation, i.e. an upsert referencing a session or question that does not
// exist.
func IsForeignKeyViolation(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23503"
	}
	return false
}
