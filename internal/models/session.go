package models

import "time"

// SessionStatus tracks the lifecycle of an exam attempt.
type SessionStatus string

const (
	// SessionInProgress accepts answer saves.
	SessionInProgress SessionStatus = "IN_PROGRESS"
	// SessionCompleted has been submitted and scored; grades may be edited.
	SessionCompleted SessionStatus = "COMPLETED"
)

// ExamSession represents one examinee's attempt at one exam.
//
// TotalScore is a derived cache: it always equals the sum of points_earned
// over the session's answers and is written only by the score recompute
// path, never adjusted directly.
type ExamSession struct {
	ID           string        `db:"id" json:"id"`
	UserID       string        `db:"user_id" json:"user_id"`
	ExamID       string        `db:"exam_id" json:"exam_id"`
	Status       SessionStatus `db:"status" json:"status"`
	StartedAt    time.Time     `db:"started_at" json:"started_at"`
	SubmittedAt  *time.Time    `db:"submitted_at" json:"submitted_at,omitempty"`
	TotalScore   float64       `db:"total_score" json:"total_score"`
	LastEditedBy *string       `db:"last_edited_by" json:"last_edited_by,omitempty"`
	LastEditedAt *time.Time    `db:"last_edited_at" json:"last_edited_at,omitempty"`
	EditCount    int           `db:"edit_count" json:"edit_count"`
}

// Edited reports whether any grade on this session has been revised.
func (s *ExamSession) Edited() bool {
	return s.EditCount > 0
}

// StartSessionRequest is the payload for opening a new exam attempt.
type StartSessionRequest struct {
	ExamID string `json:"exam_id" validate:"required"`
}

// SaveAnswerRequest is the payload for recording or replacing an answer.
type SaveAnswerRequest struct {
	SessionID        string `json:"session_id" validate:"required"`
	QuestionID       string `json:"question_id" validate:"required"`
	AnswerText       string `json:"answer_text"`
	TimeSpentSeconds int    `json:"time_spent_seconds" validate:"gte=0"`
}

// GradingWorkItem summarises a completed session awaiting manual grading.
type GradingWorkItem struct {
	SessionID     string     `db:"session_id" json:"session_id"`
	ExamID        string     `db:"exam_id" json:"exam_id"`
	ExamTitle     string     `db:"exam_title" json:"exam_title"`
	ExamineeID    string     `db:"examinee_id" json:"examinee_id"`
	ExamineeName  string     `db:"examinee_name" json:"examinee_name"`
	SubmittedAt   *time.Time `db:"submitted_at" json:"submitted_at,omitempty"`
	UngradedCount int        `db:"ungraded_count" json:"ungraded_count"`
}
