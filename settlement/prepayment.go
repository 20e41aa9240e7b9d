/*
prepayment.go - Next-period prepayment recommendation

PURPOSE:
  Projects the monthly prepayment for the next settlement period from this
  period's total costs, padded with a safety buffer and rounded to a
  tenant-friendly step:

    monthly = totalCosts × (1 + bufferRate) / 12
    rounded = nearest multiple of 5, half rounds up (72.50 -> 75)
    annual  = rounded × 12

  Non-positive total costs recommend 0; the engine never proposes a
  negative or nonsensical prepayment.
*/
package settlement

import "github.com/shopspring/decimal"

// DefaultBufferRate is the safety margin applied on top of this period's
// costs when projecting next period's prepayment.
var DefaultBufferRate = decimal.New(1, -1) // 0.10

var (
	roundingStep = decimal.NewFromInt(5)
	twelve       = decimal.NewFromInt(12)
	one          = decimal.NewFromInt(1)
)

// RoundToNearest5 rounds to the nearest multiple of 5 currency units.
// A value exactly between two multiples rounds to the higher one.
func RoundToNearest5(v decimal.Decimal) decimal.Decimal {
	// Round(0) rounds half away from zero, which is half-up for the
	// non-negative values this is called with.
	return v.Div(roundingStep).Round(0).Mul(roundingStep)
}

// Recommendation is the projected prepayment for the next period.
type Recommendation struct {
	Monthly decimal.Decimal
	Annual  decimal.Decimal
}

// RecommendPrepayment projects the next-period prepayment from total costs.
// bufferRate is a fraction (0.10 = 10%).
func RecommendPrepayment(totalCosts, bufferRate decimal.Decimal) Recommendation {
	if !totalCosts.IsPositive() {
		return Recommendation{Monthly: decimal.Zero, Annual: decimal.Zero}
	}

	monthly := totalCosts.Mul(one.Add(bufferRate)).Div(twelve)
	rounded := RoundToNearest5(monthly)
	return Recommendation{
		Monthly: rounded,
		Annual:  rounded.Mul(twelve),
	}
}
