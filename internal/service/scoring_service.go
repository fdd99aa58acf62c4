package service

import (
	"context"

	"go.uber.org/zap"

	appErrors "github.com/quizhall/quizhall-api/pkg/errors"
)

type scoringAnswerRepo interface {
	SumPointsForSession(ctx context.Context, sessionID string) (float64, error)
}

type scoringSessionRepo interface {
	UpdateTotal(ctx context.Context, id string, total float64) error
}

// ScoringService recomputes a session's cached total from its answers.
// Recompute is idempotent: running it twice without intervening edits
// yields the same total.
type ScoringService struct {
	answers  scoringAnswerRepo
	sessions scoringSessionRepo
	logger   *zap.Logger
}

// NewScoringService constructs a ScoringService.
func NewScoringService(answers scoringAnswerRepo, sessions scoringSessionRepo, logger *zap.Logger) *ScoringService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScoringService{answers: answers, sessions: sessions, logger: logger}
}

// Recompute sums points_earned over the session's answers, treating ungraded
// answers as zero, and writes the result back to the session.
func (s *ScoringService) Recompute(ctx context.Context, sessionID string) (float64, error) {
	total, err := s.answers.SumPointsForSession(ctx, sessionID)
	if err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sum session points")
	}
	if err := s.sessions.UpdateTotal(ctx, sessionID, total); err != nil {
		return 0, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update session total")
	}
	s.logger.Debug("session total recomputed",
		zap.String("session_id", sessionID),
		zap.Float64("total", total),
	)
	return total, nil
}
