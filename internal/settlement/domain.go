// Package settlement freezes quarterly revenue into immutable settlement
// records and tracks the per-owner payouts allocated from them.
package settlement

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrDuplicateSettlement rejects settling an already-settled quarter.
	ErrDuplicateSettlement = errors.New("quarter is already settled")
	// ErrSettlementNotFound indicates an unknown settlement id.
	ErrSettlementNotFound = errors.New("settlement not found")
	// ErrPayoutNotFound indicates an unknown payout id.
	ErrPayoutNotFound = errors.New("payout not found")
	// ErrHasPaidPayouts blocks deletion once capital has moved. There is no
	// override path; the audit trail outlives administrator intent.
	ErrHasPaidPayouts = errors.New("settlement has paid payouts")
	// ErrAlreadyPaid rejects single-payout pay marking of a paid row. It
	// usually indicates a UI race, so it is surfaced rather than ignored.
	ErrAlreadyPaid = errors.New("payout is already paid")
	// ErrNoOwners indicates the unit has no approved owners to allocate to.
	ErrNoOwners = errors.New("unit has no approved owners")
	// ErrInvalidQuarter indicates a quarter outside 1..4.
	ErrInvalidQuarter = errors.New("quarter must be between 1 and 4")
	// ErrNegativeExpense rejects a negative additional expense.
	ErrNegativeExpense = errors.New("additional expense must not be negative")
)

// Settlement is the immutable ledger of record for one unit and one calendar
// quarter. After creation the only permitted mutation is deletion, and only
// while no child payout is paid.
type Settlement struct {
	ID                int64           `json:"id"`
	UnitID            int64           `json:"unit_id"`
	Year              int             `json:"year"`
	Quarter           int             `json:"quarter"`
	GrossRevenue      decimal.Decimal `json:"gross_revenue"`
	FixedExpense      decimal.Decimal `json:"fixed_expense"`
	AdditionalExpense decimal.Decimal `json:"additional_expense"`
	ManagementFee     decimal.Decimal `json:"management_fee"`
	NetPool           decimal.Decimal `json:"net_pool"`
	Notes             string          `json:"notes"`
	CreatedBy         int64           `json:"created_by"`
	CreatedAt         time.Time       `json:"created_at"`
}

// OwnerPayout is one owner's pro-rata share of a settlement's net pool. The
// percentage is a basis-point snapshot taken at settlement time; later
// ownership changes never touch it.
type OwnerPayout struct {
	ID           int64           `json:"id"`
	SettlementID int64           `json:"settlement_id"`
	UserID       int64           `json:"user_id"`
	BasisPoints  int64           `json:"percentage_bp"`
	Amount       decimal.Decimal `json:"amount"`
	IsPaid       bool            `json:"is_paid"`
	PaidAt       *time.Time      `json:"paid_at,omitempty"`
	PaidBy       *int64          `json:"paid_by,omitempty"`
	Notes        string          `json:"notes"`
}

// SettlementWithPayouts bundles a settlement with its payout rows.
type SettlementWithPayouts struct {
	Settlement
	Payouts []OwnerPayout `json:"payouts"`
}

// EstimatedShare is one owner's provisional share of an unsettled quarter.
type EstimatedShare struct {
	UserID      int64           `json:"user_id"`
	BasisPoints int64           `json:"percentage_bp"`
	Amount      decimal.Decimal `json:"amount"`
}

// EstimatedQuarter is a read-only projection of an unsettled quarter. It is
// recomputed from live cache data on every call and assumes no additional
// expenses yet.
type EstimatedQuarter struct {
	UnitID        int64            `json:"unit_id"`
	Year          int              `json:"year"`
	Quarter       int              `json:"quarter"`
	IsSettled     bool             `json:"is_settled"`
	GrossRevenue  decimal.Decimal  `json:"gross_revenue"`
	FixedExpense  decimal.Decimal  `json:"fixed_expense"`
	ManagementFee decimal.Decimal  `json:"management_fee"`
	NetPool       decimal.Decimal  `json:"net_pool"`
	Shares        []EstimatedShare `json:"shares"`
}

// QuarterEarnings is one quarter of the yearly earnings view: either the
// frozen settlement or a live projection, tagged by IsSettled.
type QuarterEarnings struct {
	Quarter    int                    `json:"quarter"`
	IsSettled  bool                   `json:"is_settled"`
	Settlement *SettlementWithPayouts `json:"settlement,omitempty"`
	Estimate   *EstimatedQuarter      `json:"estimate,omitempty"`
}

// YearEarnings is the full yearly earnings view for a unit, including cache
// staleness so callers can judge how fresh the provisional numbers are.
type YearEarnings struct {
	UnitID           int64             `json:"unit_id"`
	Year             int               `json:"year"`
	Quarters         []QuarterEarnings `json:"quarters"`
	CacheRefreshedAt *time.Time        `json:"cache_refreshed_at,omitempty"`
	CacheError       *string           `json:"cache_error,omitempty"`
}

// CreateSettlementInput carries the parameters of a settlement creation.
type CreateSettlementInput struct {
	UnitID            int64
	Year              int
	Quarter           int
	AdditionalExpense decimal.Decimal
	Notes             string
	CreatedBy         int64
}
