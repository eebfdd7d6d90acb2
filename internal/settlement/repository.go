package settlement

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/brickrent/brickrent/internal/platform/db"
)

// Repository defines settlement data access.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error

	GetSettlement(ctx context.Context, id int64) (Settlement, error)
	GetSettlementForQuarter(ctx context.Context, unitID int64, year, quarter int) (Settlement, error)
	ListSettlementsForYear(ctx context.Context, unitID int64, year int) ([]Settlement, error)
	ListPayouts(ctx context.Context, settlementID int64) ([]OwnerPayout, error)
	GetPayout(ctx context.Context, id int64) (OwnerPayout, error)
}

// TxRepository defines operations within a transaction.
type TxRepository interface {
	InsertSettlement(ctx context.Context, input CreateSettlementInput, w Waterfall, fixed decimal.Decimal) (Settlement, error)
	InsertPayout(ctx context.Context, payout OwnerPayout) (int64, error)
	CountPaidPayouts(ctx context.Context, settlementID int64) (int, error)
	DeleteSettlement(ctx context.Context, id int64) error
	MarkPayoutPaid(ctx context.Context, payoutID, paidBy int64, paidAt time.Time, notes string) error
	MarkUnpaidPayoutsPaid(ctx context.Context, settlementID, paidBy int64, paidAt time.Time, notes string) (int, error)
}

var _ Repository = (*pgRepository)(nil)
var _ TxRepository = (*pgTxRepository)(nil)

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &pgTxRepository{tx: tx})
	})
}

const settlementColumns = `id, unit_id, year, quarter, gross_revenue, fixed_expense,
	additional_expense, management_fee, net_pool, notes, created_by, created_at`

func scanSettlement(row pgx.Row) (Settlement, error) {
	var s Settlement
	err := row.Scan(&s.ID, &s.UnitID, &s.Year, &s.Quarter, &s.GrossRevenue, &s.FixedExpense,
		&s.AdditionalExpense, &s.ManagementFee, &s.NetPool, &s.Notes, &s.CreatedBy, &s.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Settlement{}, ErrSettlementNotFound
	}
	if err != nil {
		return Settlement{}, fmt.Errorf("settlement: scan: %w", err)
	}
	return s, nil
}

func (r *pgRepository) GetSettlement(ctx context.Context, id int64) (Settlement, error) {
	return scanSettlement(r.pool.QueryRow(ctx,
		`SELECT `+settlementColumns+` FROM quarterly_settlements WHERE id = $1`, id))
}

func (r *pgRepository) GetSettlementForQuarter(ctx context.Context, unitID int64, year, quarter int) (Settlement, error) {
	return scanSettlement(r.pool.QueryRow(ctx,
		`SELECT `+settlementColumns+` FROM quarterly_settlements
		 WHERE unit_id = $1 AND year = $2 AND quarter = $3`, unitID, year, quarter))
}

func (r *pgRepository) ListSettlementsForYear(ctx context.Context, unitID int64, year int) ([]Settlement, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+settlementColumns+` FROM quarterly_settlements
		 WHERE unit_id = $1 AND year = $2 ORDER BY quarter`, unitID, year)
	if err != nil {
		return nil, fmt.Errorf("settlement: list for unit %d year %d: %w", unitID, year, err)
	}
	defer rows.Close()

	var settlements []Settlement
	for rows.Next() {
		s, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		settlements = append(settlements, s)
	}
	return settlements, rows.Err()
}

func (r *pgRepository) ListPayouts(ctx context.Context, settlementID int64) ([]OwnerPayout, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, settlement_id, user_id, percentage_bp, amount, is_paid, paid_at, paid_by, notes
		 FROM owner_payouts WHERE settlement_id = $1 ORDER BY user_id`, settlementID)
	if err != nil {
		return nil, fmt.Errorf("settlement: list payouts for %d: %w", settlementID, err)
	}
	defer rows.Close()

	var payouts []OwnerPayout
	for rows.Next() {
		var p OwnerPayout
		if err := rows.Scan(&p.ID, &p.SettlementID, &p.UserID, &p.BasisPoints, &p.Amount,
			&p.IsPaid, &p.PaidAt, &p.PaidBy, &p.Notes); err != nil {
			return nil, fmt.Errorf("settlement: scan payout: %w", err)
		}
		payouts = append(payouts, p)
	}
	return payouts, rows.Err()
}

func (r *pgRepository) GetPayout(ctx context.Context, id int64) (OwnerPayout, error) {
	var p OwnerPayout
	err := r.pool.QueryRow(ctx,
		`SELECT id, settlement_id, user_id, percentage_bp, amount, is_paid, paid_at, paid_by, notes
		 FROM owner_payouts WHERE id = $1`, id).
		Scan(&p.ID, &p.SettlementID, &p.UserID, &p.BasisPoints, &p.Amount,
			&p.IsPaid, &p.PaidAt, &p.PaidBy, &p.Notes)
	if errors.Is(err, pgx.ErrNoRows) {
		return OwnerPayout{}, ErrPayoutNotFound
	}
	if err != nil {
		return OwnerPayout{}, fmt.Errorf("settlement: get payout %d: %w", id, err)
	}
	return p, nil
}

// Transaction repository implementation.

type pgTxRepository struct {
	tx pgx.Tx
}

func (r *pgTxRepository) InsertSettlement(ctx context.Context, input CreateSettlementInput, w Waterfall, fixed decimal.Decimal) (Settlement, error) {
	row := r.tx.QueryRow(ctx,
		`INSERT INTO quarterly_settlements (
			unit_id, year, quarter, gross_revenue, fixed_expense,
			additional_expense, management_fee, net_pool, notes, created_by, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, NOW())
		RETURNING `+settlementColumns,
		input.UnitID, input.Year, input.Quarter, w.GrossRevenue, fixed,
		input.AdditionalExpense, w.ManagementFee, w.NetPool, input.Notes, input.CreatedBy)

	s, err := scanSettlement(row)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return Settlement{}, fmt.Errorf("%w: unit %d %d-Q%d",
				ErrDuplicateSettlement, input.UnitID, input.Year, input.Quarter)
		}
		return Settlement{}, err
	}
	return s, nil
}

func (r *pgTxRepository) InsertPayout(ctx context.Context, payout OwnerPayout) (int64, error) {
	var id int64
	err := r.tx.QueryRow(ctx,
		`INSERT INTO owner_payouts (settlement_id, user_id, percentage_bp, amount, is_paid, notes)
		 VALUES ($1, $2, $3, $4, FALSE, $5) RETURNING id`,
		payout.SettlementID, payout.UserID, payout.BasisPoints, payout.Amount, payout.Notes).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("settlement: insert payout for owner %d: %w", payout.UserID, err)
	}
	return id, nil
}

func (r *pgTxRepository) CountPaidPayouts(ctx context.Context, settlementID int64) (int, error) {
	var count int
	err := r.tx.QueryRow(ctx,
		`SELECT COUNT(*) FROM owner_payouts WHERE settlement_id = $1 AND is_paid`, settlementID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("settlement: count paid payouts for %d: %w", settlementID, err)
	}
	return count, nil
}

func (r *pgTxRepository) DeleteSettlement(ctx context.Context, id int64) error {
	// Payout rows cascade via the FK.
	tag, err := r.tx.Exec(ctx, `DELETE FROM quarterly_settlements WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("settlement: delete %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSettlementNotFound
	}
	return nil
}

func (r *pgTxRepository) MarkPayoutPaid(ctx context.Context, payoutID, paidBy int64, paidAt time.Time, notes string) error {
	tag, err := r.tx.Exec(ctx,
		`UPDATE owner_payouts
		 SET is_paid = TRUE, paid_at = $2, paid_by = $3,
		     notes = COALESCE(NULLIF($4, ''), notes)
		 WHERE id = $1 AND NOT is_paid`,
		payoutID, paidAt, paidBy, notes)
	if err != nil {
		return fmt.Errorf("settlement: mark payout %d paid: %w", payoutID, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAlreadyPaid
	}
	return nil
}

func (r *pgTxRepository) MarkUnpaidPayoutsPaid(ctx context.Context, settlementID, paidBy int64, paidAt time.Time, notes string) (int, error) {
	tag, err := r.tx.Exec(ctx,
		`UPDATE owner_payouts
		 SET is_paid = TRUE, paid_at = $2, paid_by = $3,
		     notes = COALESCE(NULLIF($4, ''), notes)
		 WHERE settlement_id = $1 AND NOT is_paid`,
		settlementID, paidAt, paidBy, notes)
	if err != nil {
		return 0, fmt.Errorf("settlement: mark all payouts for %d paid: %w", settlementID, err)
	}
	return int(tag.RowsAffected()), nil
}
