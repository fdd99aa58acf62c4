package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quizhall/quizhall-api/internal/models"
)

// ExamRepository handles exam persistence.
type ExamRepository struct {
	db *sqlx.DB
}

// NewExamRepository creates a new exam repository.
func NewExamRepository(db *sqlx.DB) *ExamRepository {
	return &ExamRepository{db: db}
}

// Create inserts a new exam.
func (r *ExamRepository) Create(ctx context.Context, exam *models.Exam) error {
	if exam.ID == "" {
		exam.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if exam.CreatedAt.IsZero() {
		exam.CreatedAt = now
	}
	exam.UpdatedAt = now
	const query = `INSERT INTO exams (id, title, description, duration_minutes, passing_score, active, created_by, created_at, updated_at)
        VALUES (:id, :title, :description, :duration_minutes, :passing_score, :active, :created_by, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, exam); err != nil {
		return fmt.Errorf("create exam: %w", err)
	}
	return nil
}

// FindByID returns an exam by ID, or sql.ErrNoRows.
func (r *ExamRepository) FindByID(ctx context.Context, id string) (*models.Exam, error) {
	const query = `SELECT id, title, description, duration_minutes, passing_score, active, created_by, created_at, updated_at
        FROM exams WHERE id = $1`
	var exam models.Exam
	if err := r.db.GetContext(ctx, &exam, query, id); err != nil {
		return nil, err
	}
	return &exam, nil
}

// List returns exams matching the filter, newest first.
func (r *ExamRepository) List(ctx context.Context, filter models.ExamFilter) ([]models.Exam, error) {
	query := `SELECT id, title, description, duration_minutes, passing_score, active, created_by, created_at, updated_at
        FROM exams WHERE 1=1`
	var args []interface{}
	if filter.Active != nil {
		query += fmt.Sprintf(" AND active = $%d", len(args)+1)
		args = append(args, *filter.Active)
	}
	if filter.Search != "" {
		query += fmt.Sprintf(" AND title ILIKE $%d", len(args)+1)
		args = append(args, "%"+filter.Search+"%")
	}
	query += " ORDER BY created_at DESC"
	var exams []models.Exam
	if err := r.db.SelectContext(ctx, &exams, query, args...); err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return exams, nil
}
