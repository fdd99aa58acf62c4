package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/quizhall/quizhall-api/internal/models"
)

// QuestionRepository handles question persistence.
type QuestionRepository struct {
	db *sqlx.DB
}

// NewQuestionRepository creates a new question repository.
func NewQuestionRepository(db *sqlx.DB) *QuestionRepository {
	return &QuestionRepository{db: db}
}

// Create inserts a new question.
func (r *QuestionRepository) Create(ctx context.Context, question *models.Question) error {
	if question.ID == "" {
		question.ID = uuid.NewString()
	}
	if question.CreatedAt.IsZero() {
		question.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO questions (id, exam_id, question_text, question_type, correct_answer, max_points, order_index, active, created_at)
        VALUES (:id, :exam_id, :question_text, :question_type, :correct_answer, :max_points, :order_index, :active, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, question); err != nil {
		return fmt.Errorf("create question: %w", err)
	}
	return nil
}

// FindByID returns a question by ID, or sql.ErrNoRows.
func (r *QuestionRepository) FindByID(ctx context.Context, id string) (*models.Question, error) {
	const query = `SELECT id, exam_id, question_text, question_type, correct_answer, max_points, order_index, active, created_at
        FROM questions WHERE id = $1`
	var question models.Question
	if err := r.db.GetContext(ctx, &question, query, id); err != nil {
		return nil, err
	}
	return &question, nil
}

// ListByExam returns the active questions of an exam in presentation order.
func (r *QuestionRepository) ListByExam(ctx context.Context, examID string) ([]models.Question, error) {
	const query = `SELECT id, exam_id, question_text, question_type, correct_answer, max_points, order_index, active, created_at
        FROM questions WHERE exam_id = $1 AND active = TRUE ORDER BY order_index, id`
	var questions []models.Question
	if err := r.db.SelectContext(ctx, &questions, query, examID); err != nil {
		return nil, fmt.Errorf("list questions: %w", err)
	}
	return questions, nil
}
