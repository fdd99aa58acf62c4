package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
)

func newGradeEditRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func editParams() ApplyEditParams {
	reason := "partial credit for method"
	return ApplyEditParams{
		SessionID:     "sess-1",
		QuestionID:    "q-1",
		AnswerID:      "ans-1",
		OldPoints:     6,
		NewPoints:     8,
		OldTotalScore: 11,
		EditedBy:      "expert-1",
		Reason:        &reason,
		EditedAt:      time.Date(2026, 3, 10, 9, 30, 0, 0, time.UTC),
	}
}

func TestGradeEditRepositoryApplyEditCommitsAllWrites(t *testing.T) {
	db, mock, cleanup := newGradeEditRepoMock(t)
	defer cleanup()
	repo := NewGradeEditRepository(db)
	p := editParams()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_answers SET points_earned = $2 WHERE id = $1")).
		WithArgs(p.AnswerID, p.NewPoints).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(COALESCE(points_earned, 0)), 0) FROM user_answers WHERE session_id = $1")).
		WithArgs(p.SessionID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(13.0))
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING edit_count")).
		WithArgs(p.SessionID, 13.0, p.EditedBy, p.EditedAt).
		WillReturnRows(sqlmock.NewRows([]string{"edit_count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grade_edit_history")).
		WithArgs(sqlmock.AnyArg(), p.SessionID, p.QuestionID, p.AnswerID, p.OldPoints, p.NewPoints, p.OldTotalScore, 13.0, p.EditedBy, p.Reason, p.EditedAt).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	outcome, err := repo.ApplyEdit(context.Background(), p)
	require.NoError(t, err)
	require.Equal(t, 13.0, outcome.NewTotalScore)
	require.Equal(t, 1, outcome.EditCount)
	require.NotEmpty(t, outcome.HistoryID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeEditRepositoryApplyEditRollsBackOnHistoryFailure(t *testing.T) {
	db, mock, cleanup := newGradeEditRepoMock(t)
	defer cleanup()
	repo := NewGradeEditRepository(db)
	p := editParams()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_answers SET points_earned = $2 WHERE id = $1")).
		WithArgs(p.AnswerID, p.NewPoints).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(SUM(COALESCE(points_earned, 0)), 0) FROM user_answers WHERE session_id = $1")).
		WithArgs(p.SessionID).
		WillReturnRows(sqlmock.NewRows([]string{"coalesce"}).AddRow(13.0))
	mock.ExpectQuery(regexp.QuoteMeta("RETURNING edit_count")).
		WithArgs(p.SessionID, 13.0, p.EditedBy, p.EditedAt).
		WillReturnRows(sqlmock.NewRows([]string{"edit_count"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO grade_edit_history")).
		WillReturnError(context.DeadlineExceeded)
	mock.ExpectRollback()

	_, err := repo.ApplyEdit(context.Background(), p)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeEditRepositoryApplyEditRollsBackOnMissingAnswer(t *testing.T) {
	db, mock, cleanup := newGradeEditRepoMock(t)
	defer cleanup()
	repo := NewGradeEditRepository(db)
	p := editParams()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE user_answers SET points_earned = $2 WHERE id = $1")).
		WithArgs(p.AnswerID, p.NewPoints).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	_, err := repo.ApplyEdit(context.Background(), p)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestGradeEditRepositoryHistoryForSession(t *testing.T) {
	db, mock, cleanup := newGradeEditRepoMock(t)
	defer cleanup()
	repo := NewGradeEditRepository(db)

	rows := sqlmock.NewRows([]string{"id", "session_id", "question_id", "answer_id", "old_points", "new_points", "old_total_score", "new_total_score", "edited_by", "reason", "edited_at"}).
		AddRow("h-1", "sess-1", "q-1", "ans-1", 6.0, 8.0, 11.0, 13.0, "expert-1", nil, time.Now().Add(-time.Hour)).
		AddRow("h-2", "sess-1", "q-1", "ans-1", 8.0, 7.0, 13.0, 12.0, "admin-1", "second review", time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("FROM grade_edit_history WHERE session_id = $1 ORDER BY edited_at, id")).
		WithArgs("sess-1").
		WillReturnRows(rows)

	records, err := repo.HistoryForSession(context.Background(), "sess-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	require.Equal(t, "h-1", records[0].ID)
	require.Equal(t, 13.0, records[0].NewTotalScore)
	require.NoError(t, mock.ExpectationsWereMet())
}
