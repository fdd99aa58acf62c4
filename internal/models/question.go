package models

import "time"

// QuestionType enumerates how a question is answered and graded.
type QuestionType string

const (
	// QuestionSingleChoice is auto-graded against a single correct option.
	QuestionSingleChoice QuestionType = "SINGLE_CHOICE"
	// QuestionMultipleChoice is auto-graded against the full correct option set.
	QuestionMultipleChoice QuestionType = "MULTIPLE_CHOICE"
	// QuestionTrueFalse is auto-graded against a boolean answer.
	QuestionTrueFalse QuestionType = "TRUE_FALSE"
	// QuestionShortAnswer requires human judgment to grade.
	QuestionShortAnswer QuestionType = "SHORT_ANSWER"
	// QuestionEssay requires human judgment to grade.
	QuestionEssay QuestionType = "ESSAY"
)

// ManuallyGraded reports whether a human must assign points for this type.
// Auto-graded types are never editable through the grade editor: a wrong
// answer key is fixed on the question and the exam re-graded, not patched
// per student.
func (t QuestionType) ManuallyGraded() bool {
	return t == QuestionShortAnswer || t == QuestionEssay
}

// Valid reports whether the type is one of the known enumeration values.
func (t QuestionType) Valid() bool {
	switch t {
	case QuestionSingleChoice, QuestionMultipleChoice, QuestionTrueFalse, QuestionShortAnswer, QuestionEssay:
		return true
	}
	return false
}

// Question represents a single exam question.
type Question struct {
	ID            string       `db:"id" json:"id"`
	ExamID        string       `db:"exam_id" json:"exam_id"`
	QuestionText  string       `db:"question_text" json:"question_text"`
	QuestionType  QuestionType `db:"question_type" json:"question_type"`
	CorrectAnswer *string      `db:"correct_answer" json:"correct_answer,omitempty"`
	MaxPoints     float64      `db:"max_points" json:"max_points"`
	OrderIndex    int          `db:"order_index" json:"order_index"`
	Active        bool         `db:"active" json:"active"`
	CreatedAt     time.Time    `db:"created_at" json:"created_at"`
}
