package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/quizhall/quizhall-api/pkg/errors"
)

type mockScoreSummer struct {
	totals map[string]float64
	err    error
}

func (m *mockScoreSummer) SumPointsForSession(ctx context.Context, sessionID string) (float64, error) {
	if m.err != nil {
		return 0, m.err
	}
	return m.totals[sessionID], nil
}

type mockTotalWriter struct {
	written map[string]float64
	calls   int
	err     error
}

func (m *mockTotalWriter) UpdateTotal(ctx context.Context, id string, total float64) error {
	if m.err != nil {
		return m.err
	}
	if m.written == nil {
		m.written = make(map[string]float64)
	}
	m.written[id] = total
	m.calls++
	return nil
}

func TestRecompute(t *testing.T) {
	summer := &mockScoreSummer{totals: map[string]float64{"sess-1": 13}}
	writer := &mockTotalWriter{}
	svc := NewScoringService(summer, writer, nil)

	total, err := svc.Recompute(context.Background(), "sess-1")
	require.NoError(t, err)
	assert.Equal(t, 13.0, total)
	assert.Equal(t, 13.0, writer.written["sess-1"])
}

func TestRecomputeIsIdempotent(t *testing.T) {
	summer := &mockScoreSummer{totals: map[string]float64{"sess-1": 13}}
	writer := &mockTotalWriter{}
	svc := NewScoringService(summer, writer, nil)

	first, err := svc.Recompute(context.Background(), "sess-1")
	require.NoError(t, err)
	second, err := svc.Recompute(context.Background(), "sess-1")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 2, writer.calls)
	assert.Equal(t, 13.0, writer.written["sess-1"])
}

func TestRecomputeSessionWithoutAnswers(t *testing.T) {
	summer := &mockScoreSummer{totals: map[string]float64{}}
	writer := &mockTotalWriter{}
	svc := NewScoringService(summer, writer, nil)

	total, err := svc.Recompute(context.Background(), "sess-empty")
	require.NoError(t, err)
	assert.Equal(t, 0.0, total)
	assert.Equal(t, 0.0, writer.written["sess-empty"])
}

func TestRecomputeSumFailure(t *testing.T) {
	summer := &mockScoreSummer{err: errors.New("db down")}
	writer := &mockTotalWriter{}
	svc := NewScoringService(summer, writer, nil)

	_, err := svc.Recompute(context.Background(), "sess-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInternal.Code, appErrors.FromError(err).Code)
	assert.Zero(t, writer.calls)
}
