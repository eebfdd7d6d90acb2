package settlement

import "github.com/shopspring/decimal"

// basisPointScale encodes percentages as integer basis points: 10000 bp = 100%.
var basisPointScale = decimal.NewFromInt(10000)

// Waterfall is the deduction result shared by projections and frozen
// settlements. Both paths go through ComputeWaterfall so estimate and actual
// can never drift apart.
type Waterfall struct {
	GrossRevenue  decimal.Decimal
	AfterExpense  decimal.Decimal
	ManagementFee decimal.Decimal
	NetPool       decimal.Decimal
}

// ComputeWaterfall applies the deduction waterfall:
//
//	afterExpense  = max(0, gross - fixed - additional)
//	managementFee = afterExpense * feePercent
//	netPool       = afterExpense - managementFee
//
// Rounding discipline: every step is rounded to 2 decimals before the next
// one, so stored settlements always consist of exact cent amounts.
func ComputeWaterfall(gross, fixed, additional, feePercent decimal.Decimal) Waterfall {
	gross = gross.Round(2)
	afterExpense := gross.Sub(fixed).Sub(additional).Round(2)
	if afterExpense.IsNegative() {
		afterExpense = decimal.Zero
	}
	fee := afterExpense.Mul(feePercent).Round(2)
	netPool := afterExpense.Sub(fee).Round(2)
	return Waterfall{
		GrossRevenue:  gross,
		AfterExpense:  afterExpense,
		ManagementFee: fee,
		NetPool:       netPool,
	}
}

// OwnerShareAmount computes one owner's share of the net pool, rounded to 2
// decimals independently per owner. The sum over all owners may drift from
// the pool by at most one cent per owner.
func OwnerShareAmount(netPool decimal.Decimal, basisPoints int64) decimal.Decimal {
	return netPool.Mul(decimal.NewFromInt(basisPoints)).Div(basisPointScale).Round(2)
}
