package revenue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brickrent/brickrent/internal/platform/db"
)

// ErrMetaNotFound indicates the year has never been refreshed.
var ErrMetaNotFound = errors.New("revenue: cache meta not found")

// Repository provides PostgreSQL backed persistence for the revenue cache.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListLinkedUnits returns every unit with a provider apartment linkage.
func (r *Repository) ListLinkedUnits(ctx context.Context) ([]LinkedUnit, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, provider_apartment_id FROM units WHERE provider_apartment_id IS NOT NULL ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("revenue: list linked units: %w", err)
	}
	defer rows.Close()

	var units []LinkedUnit
	for rows.Next() {
		var u LinkedUnit
		if err := rows.Scan(&u.UnitID, &u.ApartmentID); err != nil {
			return nil, fmt.Errorf("revenue: scan linked unit: %w", err)
		}
		units = append(units, u)
	}
	return units, rows.Err()
}

// ReplaceYear swaps the whole year of cache rows for the given entries and
// stamps the meta row, all in one transaction. Partial refreshes are never
// written; a crash mid-operation leaves the previous year intact.
func (r *Repository) ReplaceYear(ctx context.Context, year int, entries []CacheEntry, meta CacheMeta) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `DELETE FROM revenue_cache_entries WHERE year = $1`, year); err != nil {
			return fmt.Errorf("revenue: delete year %d: %w", year, err)
		}
		for _, e := range entries {
			if _, err := tx.Exec(ctx,
				`INSERT INTO revenue_cache_entries (year, unit_id, month, revenue, booking_count)
				 VALUES ($1, $2, $3, $4, $5)`,
				e.Year, e.UnitID, e.Month, e.Revenue, e.BookingCount); err != nil {
				return fmt.Errorf("revenue: insert entry unit %d month %d: %w", e.UnitID, e.Month, err)
			}
		}
		return upsertMeta(ctx, tx, meta)
	})
}

// RecordRefreshFailure upserts the meta row with the failure without touching
// cache rows. Stale-but-present beats empty.
func (r *Repository) RecordRefreshFailure(ctx context.Context, meta CacheMeta) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return upsertMeta(ctx, tx, meta)
	})
}

func upsertMeta(ctx context.Context, tx pgx.Tx, meta CacheMeta) error {
	at := meta.LastRefreshedAt
	if at.IsZero() {
		at = time.Now()
	}
	_, err := tx.Exec(ctx,
		`INSERT INTO revenue_cache_meta (year, last_refreshed_at, refreshed_by, error)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (year) DO UPDATE
		 SET last_refreshed_at = EXCLUDED.last_refreshed_at,
		     refreshed_by = EXCLUDED.refreshed_by,
		     error = EXCLUDED.error`,
		meta.Year, at, meta.RefreshedBy, meta.Error)
	if err != nil {
		return fmt.Errorf("revenue: upsert meta year %d: %w", meta.Year, err)
	}
	return nil
}

// GetMeta returns the refresh meta for a year.
func (r *Repository) GetMeta(ctx context.Context, year int) (CacheMeta, error) {
	var meta CacheMeta
	err := r.pool.QueryRow(ctx,
		`SELECT year, last_refreshed_at, refreshed_by, error FROM revenue_cache_meta WHERE year = $1`, year).
		Scan(&meta.Year, &meta.LastRefreshedAt, &meta.RefreshedBy, &meta.Error)
	if errors.Is(err, pgx.ErrNoRows) {
		return CacheMeta{}, ErrMetaNotFound
	}
	if err != nil {
		return CacheMeta{}, fmt.Errorf("revenue: get meta year %d: %w", year, err)
	}
	return meta, nil
}

// ListYearEntries returns all cache rows for a year ordered by unit and month.
func (r *Repository) ListYearEntries(ctx context.Context, year int) ([]CacheEntry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT year, unit_id, month, revenue, booking_count
		 FROM revenue_cache_entries WHERE year = $1 ORDER BY unit_id, month`, year)
	if err != nil {
		return nil, fmt.Errorf("revenue: list year %d: %w", year, err)
	}
	defer rows.Close()

	var entries []CacheEntry
	for rows.Next() {
		var e CacheEntry
		if err := rows.Scan(&e.Year, &e.UnitID, &e.Month, &e.Revenue, &e.BookingCount); err != nil {
			return nil, fmt.Errorf("revenue: scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// QuarterRevenue sums the three monthly cache entries of a quarter. Missing
// rows contribute zero; settlement never blocks on a prior refresh.
func (r *Repository) QuarterRevenue(ctx context.Context, unitID int64, year, quarter int) (decimal.Decimal, error) {
	firstMonth := (quarter-1)*3 + 1
	var sum decimal.Decimal
	err := r.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(revenue), 0) FROM revenue_cache_entries
		 WHERE unit_id = $1 AND year = $2 AND month BETWEEN $3 AND $4`,
		unitID, year, firstMonth, firstMonth+2).Scan(&sum)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("revenue: quarter revenue unit %d %d-Q%d: %w", unitID, year, quarter, err)
	}
	return sum, nil
}
