package ownership

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository provides read-only PostgreSQL access to ownership records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SharesForUnit returns the current approved stake per distinct owner of the
// unit, ordered by owner id for deterministic payout fan-out.
func (r *Repository) SharesForUnit(ctx context.Context, unitID int64) ([]OwnerShare, error) {
	query := `
		SELECT user_id, SUM(percentage_bp)::bigint
		FROM ownerships
		WHERE unit_id = $1
		  AND (status IS NULL OR status = $2)
		GROUP BY user_id
		ORDER BY user_id`

	rows, err := r.pool.Query(ctx, query, unitID, StatusApproved)
	if err != nil {
		return nil, fmt.Errorf("ownership: shares for unit %d: %w", unitID, err)
	}
	defer rows.Close()

	var shares []OwnerShare
	for rows.Next() {
		var s OwnerShare
		if err := rows.Scan(&s.UserID, &s.BasisPoints); err != nil {
			return nil, fmt.Errorf("ownership: scan share: %w", err)
		}
		shares = append(shares, s)
	}
	return shares, rows.Err()
}
