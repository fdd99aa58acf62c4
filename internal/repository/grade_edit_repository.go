package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quizhall/quizhall-api/internal/models"
)

// ApplyEditParams carries one validated grade revision into the store.
type ApplyEditParams struct {
	SessionID     string
	QuestionID    string
	AnswerID      string
	OldPoints     float64
	NewPoints     float64
	OldTotalScore float64
	EditedBy      string
	Reason        *string
	EditedAt      time.Time
}

// EditOutcome reports the committed state after a grade edit.
type EditOutcome struct {
	NewTotalScore float64
	EditCount     int
	HistoryID     string
}

// GradeEditRepository owns the append-only grade_edit_history log and the
// atomic edit transaction. History rows are insert-only: the repository
// exposes no update or delete path.
type GradeEditRepository struct {
	db *sqlx.DB
}

// NewGradeEditRepository creates a new grade edit repository.
func NewGradeEditRepository(db *sqlx.DB) *GradeEditRepository {
	return &GradeEditRepository{db: db}
}

// ApplyEdit performs the full grade revision as one transaction: the answer
// update, the total recompute, the session metadata bump and the history
// insert commit together or not at all. A failure partway leaves the
// session in its pre-edit state.
//
// answered_at on the answer is deliberately untouched: editing is a grading
// action, not a re-submission.
func (r *GradeEditRepository) ApplyEdit(ctx context.Context, p ApplyEditParams) (*EditOutcome, error) {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin edit: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	const updateAnswer = `UPDATE user_answers SET points_earned = $2 WHERE id = $1`
	result, err := tx.ExecContext(ctx, updateAnswer, p.AnswerID, p.NewPoints)
	if err != nil {
		return nil, fmt.Errorf("update answer points: %w", err)
	}
	if affected, err := result.RowsAffected(); err == nil && affected == 0 {
		return nil, fmt.Errorf("update answer points: answer %s not found", p.AnswerID)
	}

	// Same aggregation expression as AnswerRepository.SumPointsForSession;
	// executed inside the transaction so the recorded totals bracket the
	// actual change.
	const sumPoints = `SELECT COALESCE(SUM(COALESCE(points_earned, 0)), 0) FROM user_answers WHERE session_id = $1`
	var newTotal float64
	if err := tx.GetContext(ctx, &newTotal, sumPoints, p.SessionID); err != nil {
		return nil, fmt.Errorf("recompute session total: %w", err)
	}

	const updateSession = `UPDATE exam_sessions
        SET total_score = $2, last_edited_by = $3, last_edited_at = $4, edit_count = edit_count + 1
        WHERE id = $1
        RETURNING edit_count`
	var editCount int
	if err := tx.GetContext(ctx, &editCount, updateSession, p.SessionID, newTotal, p.EditedBy, p.EditedAt); err != nil {
		return nil, fmt.Errorf("update session audit fields: %w", err)
	}

	history := models.GradeEditHistory{
		ID:            uuid.NewString(),
		SessionID:     p.SessionID,
		QuestionID:    p.QuestionID,
		AnswerID:      p.AnswerID,
		OldPoints:     p.OldPoints,
		NewPoints:     p.NewPoints,
		OldTotalScore: p.OldTotalScore,
		NewTotalScore: newTotal,
		EditedBy:      p.EditedBy,
		Reason:        p.Reason,
		EditedAt:      p.EditedAt,
	}
	const insertHistory = `INSERT INTO grade_edit_history
        (id, session_id, question_id, answer_id, old_points, new_points, old_total_score, new_total_score, edited_by, reason, edited_at)
        VALUES (:id, :session_id, :question_id, :answer_id, :old_points, :new_points, :old_total_score, :new_total_score, :edited_by, :reason, :edited_at)`
	if _, err := tx.NamedExecContext(ctx, insertHistory, history); err != nil {
		return nil, fmt.Errorf("insert edit history: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit edit: %w", err)
	}
	return &EditOutcome{NewTotalScore: newTotal, EditCount: editCount, HistoryID: history.ID}, nil
}

// HistoryForSession returns the session's edit records in chronological order.
func (r *GradeEditRepository) HistoryForSession(ctx context.Context, sessionID string) ([]models.GradeEditHistory, error) {
	const query = `SELECT id, session_id, question_id, answer_id, old_points, new_points, old_total_score, new_total_score, edited_by, reason, edited_at
        FROM grade_edit_history WHERE session_id = $1 ORDER BY edited_at, id`
	var records []models.GradeEditHistory
	if err := r.db.SelectContext(ctx, &records, query, sessionID); err != nil {
		return nil, fmt.Errorf("list edit history: %w", err)
	}
	return records, nil
}
