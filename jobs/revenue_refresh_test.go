package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/brickrent/brickrent/internal/revenue"
)

type fakeRefresher struct {
	year  int
	actor int64
	err   error
}

func (f *fakeRefresher) RefreshYear(ctx context.Context, year int, actor int64) (revenue.RefreshResult, error) {
	f.year = year
	f.actor = actor
	if f.err != nil {
		return revenue.RefreshResult{}, f.err
	}
	return revenue.RefreshResult{Year: year, Entries: 12}, nil
}

func TestRevenueRefreshHandler(t *testing.T) {
	svc := &fakeRefresher{}
	handler := NewRevenueRefreshHandler(svc, nil)

	task, err := NewRevenueRefreshTask(RevenueRefreshPayload{Year: 2026, Actor: 7})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, 2026, svc.year)
	require.Equal(t, int64(7), svc.actor)
}

func TestRevenueRefreshHandlerDefaultsToCurrentYear(t *testing.T) {
	svc := &fakeRefresher{}
	handler := NewRevenueRefreshHandler(svc, nil)

	task, err := NewRevenueRefreshTask(RevenueRefreshPayload{})
	require.NoError(t, err)

	require.NoError(t, handler(context.Background(), task))
	require.Equal(t, time.Now().UTC().Year(), svc.year)
	require.Zero(t, svc.actor)
}

func TestRevenueRefreshHandlerSkipsConfigurationErrors(t *testing.T) {
	svc := &fakeRefresher{err: revenue.ErrNoLinkedUnits}
	handler := NewRevenueRefreshHandler(svc, nil)

	task, err := NewRevenueRefreshTask(RevenueRefreshPayload{Year: 2026})
	require.NoError(t, err)

	err = handler(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}

func TestRevenueRefreshHandlerRetriesProviderErrors(t *testing.T) {
	svc := &fakeRefresher{err: errors.New("upstream timeout")}
	handler := NewRevenueRefreshHandler(svc, nil)

	task, err := NewRevenueRefreshTask(RevenueRefreshPayload{Year: 2026})
	require.NoError(t, err)

	err = handler(context.Background(), task)
	require.Error(t, err)
	require.NotErrorIs(t, err, asynq.SkipRetry)
}
