// Package revenue maintains the local cache of booking revenue. The cache is
// a derived table rebuilt wholesale per year from the provider; it is the only
// source of gross revenue for settlement math.
package revenue

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var (
	// ErrProvider wraps failures of the external booking provider. The prior
	// cache is always retained when this is returned.
	ErrProvider = errors.New("revenue provider failure")
	// ErrNoLinkedUnits indicates no unit is linked to the provider.
	ErrNoLinkedUnits = errors.New("no units linked to booking provider")
	// ErrInvalidYear indicates an implausible calendar year.
	ErrInvalidYear = errors.New("invalid year")
)

// CacheEntry is the aggregated revenue of one unit for one month. A full
// year of entries always carries explicit zero rows for inactive months.
type CacheEntry struct {
	Year         int             `json:"year"`
	UnitID       int64           `json:"unit_id"`
	Month        int             `json:"month"`
	Revenue      decimal.Decimal `json:"revenue"`
	BookingCount int             `json:"booking_count"`
}

// CacheMeta records the outcome of the latest refresh attempt for a year,
// successful or not, so both staleness and failure are observable.
type CacheMeta struct {
	Year            int       `json:"year"`
	LastRefreshedAt time.Time `json:"last_refreshed_at"`
	RefreshedBy     int64     `json:"refreshed_by"`
	Error           *string   `json:"error,omitempty"`
}

// LinkedUnit pairs a unit with its provider-side apartment id.
type LinkedUnit struct {
	UnitID      int64
	ApartmentID int64
}

// RefreshResult summarises a successful refresh.
type RefreshResult struct {
	Year         int
	BookingCount int
	Entries      int
}
