package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/brickrent/brickrent/internal/revenue"
)

// RevenueRefresher is the slice of the revenue service the job needs.
type RevenueRefresher interface {
	RefreshYear(ctx context.Context, year int, actor int64) (revenue.RefreshResult, error)
}

// NewRevenueRefreshHandler adapts the revenue service to an Asynq handler.
// A payload year of zero means the current UTC year, which is what the
// nightly cron enqueues.
func NewRevenueRefreshHandler(svc RevenueRefresher, logger *slog.Logger) asynq.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(ctx context.Context, t *asynq.Task) error {
		var payload RevenueRefreshPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			logger.Error("revenue refresh payload", slog.Any("error", err))
			return asynq.SkipRetry
		}
		year := payload.Year
		if year == 0 {
			year = time.Now().UTC().Year()
		}

		result, err := svc.RefreshYear(ctx, year, payload.Actor)
		if err != nil {
			// A year with no linked units is a configuration state, not a
			// transient fault, so retrying cannot help.
			if errors.Is(err, revenue.ErrNoLinkedUnits) || errors.Is(err, revenue.ErrInvalidYear) {
				logger.Warn("revenue refresh skipped", slog.Int("year", year), slog.Any("error", err))
				return asynq.SkipRetry
			}
			return err
		}
		logger.Info("revenue refresh job done",
			slog.Int("year", result.Year),
			slog.Int("bookings", result.BookingCount),
			slog.Int("entries", result.Entries))
		return nil
	}
}
