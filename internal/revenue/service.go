package revenue

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/brickrent/brickrent/internal/provider"
	"github.com/brickrent/brickrent/internal/shared"
)

// RepositoryPort abstracts cache persistence.
type RepositoryPort interface {
	ListLinkedUnits(ctx context.Context) ([]LinkedUnit, error)
	ReplaceYear(ctx context.Context, year int, entries []CacheEntry, meta CacheMeta) error
	RecordRefreshFailure(ctx context.Context, meta CacheMeta) error
	GetMeta(ctx context.Context, year int) (CacheMeta, error)
	ListYearEntries(ctx context.Context, year int) ([]CacheEntry, error)
}

// ProviderPort abstracts the booking provider client.
type ProviderPort interface {
	ListReservations(ctx context.Context, apartmentIDs []int64, from, to time.Time) ([]provider.Reservation, error)
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// MetricsPort abstracts refresh counters.
type MetricsPort interface {
	ObserveRefresh(outcome string)
}

// Invalidator is notified after a successful refresh so derived read caches
// can drop stale earnings views.
type Invalidator interface {
	Bump(ctx context.Context) error
}

// Service implements the revenue cache refresh contract.
type Service struct {
	repo        RepositoryPort
	provider    ProviderPort
	audit       AuditPort
	metrics     MetricsPort
	invalidator Invalidator
	logger      *slog.Logger
	now         func() time.Time
}

// NewService constructs the revenue service.
func NewService(repo RepositoryPort, prov ProviderPort, audit AuditPort, metrics MetricsPort, invalidator Invalidator, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:        repo,
		provider:    prov,
		audit:       audit,
		metrics:     metrics,
		invalidator: invalidator,
		logger:      logger,
		now:         time.Now,
	}
}

// RefreshYear rebuilds the revenue cache for one calendar year from the
// provider. The whole year is replaced in a single transaction; on provider
// failure the existing cache rows are left untouched and only the meta row
// records the error.
func (s *Service) RefreshYear(ctx context.Context, year int, actor int64) (RefreshResult, error) {
	if year < 2000 || year > 2100 {
		return RefreshResult{}, fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}

	units, err := s.repo.ListLinkedUnits(ctx)
	if err != nil {
		return RefreshResult{}, err
	}
	if len(units) == 0 {
		return RefreshResult{}, ErrNoLinkedUnits
	}

	apartmentIDs := make([]int64, len(units))
	unitByApartment := make(map[int64]int64, len(units))
	for i, u := range units {
		apartmentIDs[i] = u.ApartmentID
		unitByApartment[u.ApartmentID] = u.UnitID
	}

	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	to := time.Date(year, time.December, 31, 0, 0, 0, 0, time.UTC)

	reservations, err := s.provider.ListReservations(ctx, apartmentIDs, from, to)
	if err != nil {
		return RefreshResult{}, s.recordFailure(ctx, year, actor, err)
	}

	entries, bookings, err := s.aggregate(year, reservations, unitByApartment, units)
	if err != nil {
		return RefreshResult{}, s.recordFailure(ctx, year, actor, err)
	}

	meta := CacheMeta{Year: year, LastRefreshedAt: s.now(), RefreshedBy: actor}
	if err := s.repo.ReplaceYear(ctx, year, entries, meta); err != nil {
		return RefreshResult{}, err
	}

	if s.metrics != nil {
		s.metrics.ObserveRefresh("success")
	}
	if s.invalidator != nil {
		if err := s.invalidator.Bump(ctx); err != nil {
			s.logger.Warn("bump earnings cache", slog.Any("error", err))
		}
	}
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actor,
			Action:   "revenue.refresh",
			Entity:   "revenue_cache",
			EntityID: strconv.Itoa(year),
			Meta:     map[string]any{"bookings": bookings, "entries": len(entries)},
		})
	}

	s.logger.Info("revenue cache refreshed",
		slog.Int("year", year),
		slog.Int("bookings", bookings),
		slog.Int("entries", len(entries)))

	return RefreshResult{Year: year, BookingCount: bookings, Entries: len(entries)}, nil
}

// recordFailure stamps the meta row with the provider error and reports the
// failure to the caller. The prior cache rows survive; retry is an explicit
// re-invocation.
func (s *Service) recordFailure(ctx context.Context, year int, actor int64, cause error) error {
	if s.metrics != nil {
		s.metrics.ObserveRefresh("failure")
	}
	msg := cause.Error()
	meta := CacheMeta{Year: year, LastRefreshedAt: s.now(), RefreshedBy: actor, Error: &msg}
	if err := s.repo.RecordRefreshFailure(ctx, meta); err != nil {
		s.logger.Error("record refresh failure", slog.Int("year", year), slog.Any("error", err))
	}
	s.logger.Error("revenue refresh failed", slog.Int("year", year), slog.Any("error", cause))
	return fmt.Errorf("%w for year %d: %s", ErrProvider, year, msg)
}

// aggregate buckets revenue records into (unit, month) cells and fills the
// full unit x month grid with explicit zero rows so downstream readers never
// special-case missing months.
func (s *Service) aggregate(year int, reservations []provider.Reservation, unitByApartment map[int64]int64, units []LinkedUnit) ([]CacheEntry, int, error) {
	type cell struct {
		revenue decimal.Decimal
		count   int
	}
	cells := make(map[int64]map[int]*cell, len(units))
	for _, u := range units {
		months := make(map[int]*cell, 12)
		for m := 1; m <= 12; m++ {
			months[m] = &cell{revenue: decimal.Zero}
		}
		cells[u.UnitID] = months
	}

	bookings := 0
	for _, res := range reservations {
		if !res.CountsAsRevenue() {
			continue
		}
		unitID, linked := unitByApartment[res.Apartment.ID]
		if !linked {
			continue
		}
		arrival, err := res.ArrivalDate()
		if err != nil {
			return nil, 0, err
		}
		if arrival.Year() != year {
			continue
		}
		c := cells[unitID][int(arrival.Month())]
		c.revenue = c.revenue.Add(res.Price)
		c.count++
		bookings++
	}

	entries := make([]CacheEntry, 0, len(units)*12)
	for _, u := range units {
		for m := 1; m <= 12; m++ {
			c := cells[u.UnitID][m]
			entries = append(entries, CacheEntry{
				Year:         year,
				UnitID:       u.UnitID,
				Month:        m,
				Revenue:      c.revenue.Round(2),
				BookingCount: c.count,
			})
		}
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].UnitID != entries[j].UnitID {
			return entries[i].UnitID < entries[j].UnitID
		}
		return entries[i].Month < entries[j].Month
	})
	return entries, bookings, nil
}

// Meta exposes refresh staleness for a year.
func (s *Service) Meta(ctx context.Context, year int) (CacheMeta, error) {
	return s.repo.GetMeta(ctx, year)
}

// YearEntries lists the cached rows for a year.
func (s *Service) YearEntries(ctx context.Context, year int) ([]CacheEntry, error) {
	return s.repo.ListYearEntries(ctx, year)
}
