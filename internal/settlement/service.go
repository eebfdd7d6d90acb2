package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"github.com/brickrent/brickrent/internal/ownership"
	"github.com/brickrent/brickrent/internal/revenue"
	"github.com/brickrent/brickrent/internal/shared"
)

// RevenuePort exposes the read side of the revenue cache.
type RevenuePort interface {
	QuarterRevenue(ctx context.Context, unitID int64, year, quarter int) (decimal.Decimal, error)
	GetMeta(ctx context.Context, year int) (revenue.CacheMeta, error)
}

// OwnershipPort resolves the approved owner shares of a unit.
type OwnershipPort interface {
	SharesForUnit(ctx context.Context, unitID int64) ([]ownership.OwnerShare, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort abstracts settlement counters.
type MetricsPort interface {
	ObserveSettlementCreated()
	ObservePayoutPaid(n int)
}

// Terms carries the platform-wide deduction parameters applied to every
// settlement and projection.
type Terms struct {
	FixedExpensePerQuarter decimal.Decimal
	ManagementFeePercent   decimal.Decimal
}

// Service implements settlement creation, payout lifecycle and the earnings
// projection read model.
type Service struct {
	repo       Repository
	rev        RevenuePort
	owners     OwnershipPort
	audit      AuditPort
	metrics    MetricsPort
	cache      *Cache
	terms      Terms
	logger     *slog.Logger
	now        func() time.Time
	earnFlight singleflight.Group
}

// NewService constructs the settlement service.
func NewService(repo Repository, rev RevenuePort, owners OwnershipPort, audit AuditPort, metrics MetricsPort, cache *Cache, terms Terms, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		rev:     rev,
		owners:  owners,
		audit:   audit,
		metrics: metrics,
		cache:   cache,
		terms:   terms,
		logger:  logger,
		now:     time.Now,
	}
}

// CreateSettlement freezes one quarter of a unit into an immutable settlement
// and fans the net pool out into one payout per approved owner. Settlement
// and payouts are written in a single transaction, so a settlement without
// its payout rows can never be observed.
func (s *Service) CreateSettlement(ctx context.Context, input CreateSettlementInput) (SettlementWithPayouts, error) {
	if input.Quarter < 1 || input.Quarter > 4 {
		return SettlementWithPayouts{}, fmt.Errorf("%w: got %d", ErrInvalidQuarter, input.Quarter)
	}
	if input.AdditionalExpense.IsNegative() {
		return SettlementWithPayouts{}, fmt.Errorf("%w: got %s", ErrNegativeExpense, input.AdditionalExpense)
	}

	gross, err := s.rev.QuarterRevenue(ctx, input.UnitID, input.Year, input.Quarter)
	if err != nil {
		return SettlementWithPayouts{}, fmt.Errorf("settlement: quarter revenue: %w", err)
	}
	shares, err := s.owners.SharesForUnit(ctx, input.UnitID)
	if err != nil {
		return SettlementWithPayouts{}, fmt.Errorf("settlement: owner shares: %w", err)
	}
	if len(shares) == 0 {
		return SettlementWithPayouts{}, fmt.Errorf("%w: unit %d", ErrNoOwners, input.UnitID)
	}

	w := ComputeWaterfall(gross, s.terms.FixedExpensePerQuarter, input.AdditionalExpense, s.terms.ManagementFeePercent)

	var result SettlementWithPayouts
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		created, err := tx.InsertSettlement(ctx, input, w, s.terms.FixedExpensePerQuarter)
		if err != nil {
			return err
		}
		result = SettlementWithPayouts{Settlement: created}
		for _, share := range shares {
			payout := OwnerPayout{
				SettlementID: created.ID,
				UserID:       share.UserID,
				BasisPoints:  share.BasisPoints,
				Amount:       OwnerShareAmount(w.NetPool, share.BasisPoints),
			}
			id, err := tx.InsertPayout(ctx, payout)
			if err != nil {
				return err
			}
			payout.ID = id
			result.Payouts = append(result.Payouts, payout)
		}
		return nil
	})
	if err != nil {
		return SettlementWithPayouts{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveSettlementCreated()
	}
	s.invalidate(ctx)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  input.CreatedBy,
			Action:   "settlement.create",
			Entity:   "quarterly_settlement",
			EntityID: strconv.FormatInt(result.ID, 10),
			Meta: map[string]any{
				"unit_id":  input.UnitID,
				"year":     input.Year,
				"quarter":  input.Quarter,
				"net_pool": w.NetPool.String(),
				"payouts":  len(result.Payouts),
			},
		})
	}
	s.logger.Info("settlement created",
		slog.Int64("settlement_id", result.ID),
		slog.Int64("unit_id", input.UnitID),
		slog.Int("year", input.Year),
		slog.Int("quarter", input.Quarter),
		slog.String("net_pool", w.NetPool.String()))
	return result, nil
}

// DeleteSettlement removes a settlement and, through the foreign key cascade,
// all of its payouts. It refuses once any payout is paid since money already
// moved against those records.
func (s *Service) DeleteSettlement(ctx context.Context, id, actor int64) error {
	existing, err := s.repo.GetSettlement(ctx, id)
	if err != nil {
		return err
	}

	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		paid, err := tx.CountPaidPayouts(ctx, id)
		if err != nil {
			return err
		}
		if paid > 0 {
			return fmt.Errorf("%w: settlement %d has %d paid payouts", ErrHasPaidPayouts, id, paid)
		}
		return tx.DeleteSettlement(ctx, id)
	})
	if err != nil {
		return err
	}

	s.invalidate(ctx)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor,
			Action:   "settlement.delete",
			Entity:   "quarterly_settlement",
			EntityID: strconv.FormatInt(id, 10),
			Meta: map[string]any{
				"unit_id": existing.UnitID,
				"year":    existing.Year,
				"quarter": existing.Quarter,
			},
		})
	}
	s.logger.Info("settlement deleted",
		slog.Int64("settlement_id", id),
		slog.Int64("unit_id", existing.UnitID))
	return nil
}

// GetSettlement loads one settlement with its payouts.
func (s *Service) GetSettlement(ctx context.Context, id int64) (SettlementWithPayouts, error) {
	settled, err := s.repo.GetSettlement(ctx, id)
	if err != nil {
		return SettlementWithPayouts{}, err
	}
	payouts, err := s.repo.ListPayouts(ctx, id)
	if err != nil {
		return SettlementWithPayouts{}, err
	}
	return SettlementWithPayouts{Settlement: settled, Payouts: payouts}, nil
}

// MarkPayoutPaid marks a single payout as paid. Marking an already paid
// payout fails with ErrAlreadyPaid; the stored paid_at and paid_by of the
// first marking are never overwritten.
func (s *Service) MarkPayoutPaid(ctx context.Context, payoutID, actor int64, notes string) (OwnerPayout, error) {
	payout, err := s.repo.GetPayout(ctx, payoutID)
	if err != nil {
		return OwnerPayout{}, err
	}
	if payout.IsPaid {
		return OwnerPayout{}, fmt.Errorf("%w: payout %d", ErrAlreadyPaid, payoutID)
	}

	paidAt := s.now().UTC()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		return tx.MarkPayoutPaid(ctx, payoutID, actor, paidAt, notes)
	})
	if err != nil {
		if errors.Is(err, ErrAlreadyPaid) {
			return OwnerPayout{}, fmt.Errorf("%w: payout %d", ErrAlreadyPaid, payoutID)
		}
		return OwnerPayout{}, err
	}

	payout.IsPaid = true
	payout.PaidAt = &paidAt
	payout.PaidBy = &actor
	if notes != "" {
		payout.Notes = notes
	}

	if s.metrics != nil {
		s.metrics.ObservePayoutPaid(1)
	}
	s.invalidate(ctx)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor,
			Action:   "payout.pay",
			Entity:   "owner_payout",
			EntityID: strconv.FormatInt(payoutID, 10),
			Meta: map[string]any{
				"settlement_id": payout.SettlementID,
				"user_id":       payout.UserID,
				"amount":        payout.Amount.String(),
			},
		})
	}
	s.logger.Info("payout marked paid",
		slog.Int64("payout_id", payoutID),
		slog.Int64("settlement_id", payout.SettlementID))
	return payout, nil
}

// MarkAllUnpaidPaid marks every still unpaid payout of a settlement as paid
// in one transaction. Already paid payouts are skipped, which makes the call
// idempotent: repeating it is a no-op returning zero.
func (s *Service) MarkAllUnpaidPaid(ctx context.Context, settlementID, actor int64, notes string) (int, error) {
	if _, err := s.repo.GetSettlement(ctx, settlementID); err != nil {
		return 0, err
	}

	paidAt := s.now().UTC()
	var marked int
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		n, err := tx.MarkUnpaidPayoutsPaid(ctx, settlementID, actor, paidAt, notes)
		if err != nil {
			return err
		}
		marked = n
		return nil
	})
	if err != nil {
		return 0, err
	}
	if marked == 0 {
		return 0, nil
	}

	if s.metrics != nil {
		s.metrics.ObservePayoutPaid(marked)
	}
	s.invalidate(ctx)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor,
			Action:   "payout.pay_all",
			Entity:   "quarterly_settlement",
			EntityID: strconv.FormatInt(settlementID, 10),
			Meta:     map[string]any{"marked": marked},
		})
	}
	s.logger.Info("unpaid payouts marked paid",
		slog.Int64("settlement_id", settlementID),
		slog.Int("marked", marked))
	return marked, nil
}

// ProjectQuarter computes the provisional earnings of one quarter from the
// revenue cache using the same waterfall a settlement would apply, with an
// additional expense of zero since one-off costs are only known at
// settlement time.
func (s *Service) ProjectQuarter(ctx context.Context, unitID int64, year, quarter int) (EstimatedQuarter, error) {
	if quarter < 1 || quarter > 4 {
		return EstimatedQuarter{}, fmt.Errorf("%w: got %d", ErrInvalidQuarter, quarter)
	}
	gross, err := s.rev.QuarterRevenue(ctx, unitID, year, quarter)
	if err != nil {
		return EstimatedQuarter{}, fmt.Errorf("settlement: quarter revenue: %w", err)
	}
	shares, err := s.owners.SharesForUnit(ctx, unitID)
	if err != nil {
		return EstimatedQuarter{}, fmt.Errorf("settlement: owner shares: %w", err)
	}

	w := ComputeWaterfall(gross, s.terms.FixedExpensePerQuarter, decimal.Zero, s.terms.ManagementFeePercent)
	estimate := EstimatedQuarter{
		UnitID:        unitID,
		Year:          year,
		Quarter:       quarter,
		GrossRevenue:  w.GrossRevenue,
		FixedExpense:  s.terms.FixedExpensePerQuarter,
		ManagementFee: w.ManagementFee,
		NetPool:       w.NetPool,
	}
	for _, share := range shares {
		estimate.Shares = append(estimate.Shares, EstimatedShare{
			UserID:      share.UserID,
			BasisPoints: share.BasisPoints,
			Amount:      OwnerShareAmount(w.NetPool, share.BasisPoints),
		})
	}
	return estimate, nil
}

// GetYearEarnings returns the yearly earnings view of a unit: each quarter
// either as its frozen settlement or as a live projection, plus the revenue
// cache freshness. The view is cached in Redis under the current cache
// version and concurrent builds of the same view are collapsed.
func (s *Service) GetYearEarnings(ctx context.Context, unitID int64, year int) (YearEarnings, error) {
	key, err := s.cache.BuildKey(ctx, "earnings", strconv.FormatInt(unitID, 10), strconv.Itoa(year))
	if err != nil {
		s.logger.Warn("earnings cache key", slog.String("error", err.Error()))
		return s.buildYearEarnings(ctx, unitID, year)
	}

	var view YearEarnings
	err = s.cache.FetchJSON(ctx, key, &view, func(ctx context.Context) (any, error) {
		built, err, _ := s.earnFlight.Do(key, func() (any, error) {
			return s.buildYearEarnings(ctx, unitID, year)
		})
		if err != nil {
			return nil, err
		}
		return built, nil
	})
	if err != nil {
		return YearEarnings{}, err
	}
	return view, nil
}

func (s *Service) buildYearEarnings(ctx context.Context, unitID int64, year int) (YearEarnings, error) {
	view := YearEarnings{UnitID: unitID, Year: year}

	settled, err := s.repo.ListSettlementsForYear(ctx, unitID, year)
	if err != nil {
		return YearEarnings{}, err
	}
	byQuarter := make(map[int]Settlement, len(settled))
	for _, st := range settled {
		byQuarter[st.Quarter] = st
	}

	for q := 1; q <= 4; q++ {
		entry := QuarterEarnings{Quarter: q}
		if st, ok := byQuarter[q]; ok {
			payouts, err := s.repo.ListPayouts(ctx, st.ID)
			if err != nil {
				return YearEarnings{}, err
			}
			entry.IsSettled = true
			entry.Settlement = &SettlementWithPayouts{Settlement: st, Payouts: payouts}
		} else {
			estimate, err := s.ProjectQuarter(ctx, unitID, year, q)
			if err != nil {
				return YearEarnings{}, err
			}
			entry.Estimate = &estimate
		}
		view.Quarters = append(view.Quarters, entry)
	}

	meta, err := s.rev.GetMeta(ctx, year)
	switch {
	case errors.Is(err, revenue.ErrMetaNotFound):
		// Year never refreshed; the projection is built from an empty cache.
	case err != nil:
		return YearEarnings{}, err
	default:
		refreshedAt := meta.LastRefreshedAt
		view.CacheRefreshedAt = &refreshedAt
		view.CacheError = meta.Error
	}
	return view, nil
}

func (s *Service) invalidate(ctx context.Context) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("earnings cache invalidation", slog.String("error", err.Error()))
	}
}
