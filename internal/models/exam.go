package models

import "time"

// Exam represents an authored examination.
type Exam struct {
	ID              string    `db:"id" json:"id"`
	Title           string    `db:"title" json:"title"`
	Description     *string   `db:"description" json:"description,omitempty"`
	DurationMinutes int       `db:"duration_minutes" json:"duration_minutes"`
	PassingScore    float64   `db:"passing_score" json:"passing_score"`
	Active          bool      `db:"active" json:"active"`
	CreatedBy       string    `db:"created_by" json:"created_by"`
	CreatedAt       time.Time `db:"created_at" json:"created_at"`
	UpdatedAt       time.Time `db:"updated_at" json:"updated_at"`
}

// ExamFilter narrows exam listings.
type ExamFilter struct {
	Active *bool
	Search string
}
