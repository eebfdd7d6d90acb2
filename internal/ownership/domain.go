// Package ownership reads the ownership ledger. The ledger is owned by the
// listings service; settlement only consumes it and snapshots percentages at
// settlement time.
package ownership

// StatusApproved marks ownership records that participate in payouts.
// Records with no status predate the approval workflow and count as approved.
const StatusApproved = "APPROVED"

// OwnerShare is one owner's aggregated stake in a unit, in basis points out
// of 10000. Multiple approved records per (unit, owner) are summed.
type OwnerShare struct {
	UserID      int64
	BasisPoints int64
}
