package settlement

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func d(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	v, err := decimal.NewFromString(s)
	require.NoError(t, err)
	return v
}

func TestComputeWaterfall(t *testing.T) {
	w := ComputeWaterfall(d(t, "10000"), d(t, "2000"), decimal.Zero, d(t, "0.08"))

	require.True(t, w.GrossRevenue.Equal(d(t, "10000")))
	require.True(t, w.AfterExpense.Equal(d(t, "8000")))
	require.True(t, w.ManagementFee.Equal(d(t, "640")))
	require.True(t, w.NetPool.Equal(d(t, "7360")))
}

func TestComputeWaterfallAdditionalExpense(t *testing.T) {
	w := ComputeWaterfall(d(t, "10000"), d(t, "2000"), d(t, "500.50"), d(t, "0.08"))

	require.True(t, w.AfterExpense.Equal(d(t, "7499.50")))
	require.True(t, w.ManagementFee.Equal(d(t, "599.96")))
	require.True(t, w.NetPool.Equal(d(t, "6899.54")))
}

func TestComputeWaterfallClampsNegative(t *testing.T) {
	w := ComputeWaterfall(d(t, "1000"), d(t, "2000"), decimal.Zero, d(t, "0.08"))

	require.True(t, w.GrossRevenue.Equal(d(t, "1000")))
	require.True(t, w.AfterExpense.IsZero())
	require.True(t, w.ManagementFee.IsZero())
	require.True(t, w.NetPool.IsZero())
}

func TestComputeWaterfallRoundsEachStep(t *testing.T) {
	w := ComputeWaterfall(d(t, "3333.333"), d(t, "2000"), decimal.Zero, d(t, "0.08"))

	// Gross rounds to 3333.33 before the expense step.
	require.True(t, w.GrossRevenue.Equal(d(t, "3333.33")))
	require.True(t, w.AfterExpense.Equal(d(t, "1333.33")))
	// 1333.33 * 0.08 = 106.6664 rounds to 106.67.
	require.True(t, w.ManagementFee.Equal(d(t, "106.67")))
	require.True(t, w.NetPool.Equal(d(t, "1226.66")))
}

func TestOwnerShareAmount(t *testing.T) {
	pool := d(t, "7360")

	require.True(t, OwnerShareAmount(pool, 6000).Equal(d(t, "4416")))
	require.True(t, OwnerShareAmount(pool, 4000).Equal(d(t, "2944")))
	require.True(t, OwnerShareAmount(pool, 10000).Equal(pool))
	require.True(t, OwnerShareAmount(pool, 0).IsZero())
}

func TestOwnerShareConservation(t *testing.T) {
	// Independent per-owner rounding may drift from the pool by at most one
	// cent per owner.
	pool := d(t, "1000.01")
	shares := []int64{3333, 3333, 3334}

	sum := decimal.Zero
	for _, bp := range shares {
		sum = sum.Add(OwnerShareAmount(pool, bp))
	}

	tolerance := d(t, "0.01").Mul(decimal.NewFromInt(int64(len(shares))))
	require.True(t, pool.Sub(sum).Abs().LessThanOrEqual(tolerance),
		"pool %s vs sum %s", pool, sum)
}
