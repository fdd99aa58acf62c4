package models

import "time"

// Answer is the current recorded response for one question within one
// session. The (session_id, question_id) pair is unique at the storage
// layer: saves replace the row in place, they never append.
type Answer struct {
	ID               string    `db:"id" json:"id"`
	SessionID        string    `db:"session_id" json:"session_id"`
	QuestionID       string    `db:"question_id" json:"question_id"`
	AnswerText       string    `db:"answer_text" json:"answer_text"`
	PointsEarned     *float64  `db:"points_earned" json:"points_earned,omitempty"`
	TimeSpentSeconds int       `db:"time_spent_seconds" json:"time_spent_seconds"`
	AnsweredAt       time.Time `db:"answered_at" json:"answered_at"`
}

// Graded reports whether points have been assigned to this answer.
func (a *Answer) Graded() bool {
	return a.PointsEarned != nil
}
