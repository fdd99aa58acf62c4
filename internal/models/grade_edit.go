package models

import "time"

// GradeEditHistory is one append-only audit record for a manual score
// revision. Rows are written exclusively by the grade edit transaction;
// no update or delete path exists.
type GradeEditHistory struct {
	ID            string    `db:"id" json:"id"`
	SessionID     string    `db:"session_id" json:"session_id"`
	QuestionID    string    `db:"question_id" json:"question_id"`
	AnswerID      string    `db:"answer_id" json:"answer_id"`
	OldPoints     float64   `db:"old_points" json:"old_points"`
	NewPoints     float64   `db:"new_points" json:"new_points"`
	OldTotalScore float64   `db:"old_total_score" json:"old_total_score"`
	NewTotalScore float64   `db:"new_total_score" json:"new_total_score"`
	EditedBy      string    `db:"edited_by" json:"edited_by"`
	Reason        *string   `db:"reason" json:"reason,omitempty"`
	EditedAt      time.Time `db:"edited_at" json:"edited_at"`
}

// EditGradeRequest is the payload for revising a manually-graded answer.
type EditGradeRequest struct {
	SessionID  string  `json:"session_id" validate:"required"`
	QuestionID string  `json:"question_id" validate:"required"`
	NewPoints  float64 `json:"new_points"`
	Reason     *string `json:"reason,omitempty"`
}

// EditResult reports the outcome of a grade edit.
type EditResult struct {
	Changed    bool    `json:"changed"`
	OldPoints  float64 `json:"old_points"`
	NewPoints  float64 `json:"new_points"`
	TotalScore float64 `json:"total_score"`
	EditCount  int     `json:"edit_count"`
}
