/*
occupancy.go - Tenancy/billing-period overlap

PURPOSE:
  Converts a tenant's move-in/move-out dates and a billing period into an
  occupancy fraction. Day granularity throughout: a tenant moving in on
  June 15 is charged for the exact days occupied, never a rounded-up half
  month.

INVARIANTS:
  0 <= DaysOccupied <= DaysInPeriod, so the fraction is in [0, 1] and the
  percentage in [0, 100] by construction.
*/
package settlement

import "github.com/shopspring/decimal"

// =============================================================================
// OCCUPANCY - Overlap of tenancy and billing period
// =============================================================================

// Occupancy is the result of intersecting a tenancy with a period.
type Occupancy struct {
	DaysOccupied int
	DaysInPeriod int
	Fraction     decimal.Decimal // DaysOccupied / DaysInPeriod
}

// Percentage returns the occupancy as 0..100.
func (o Occupancy) Percentage() decimal.Decimal {
	return o.Fraction.Mul(decimal.NewFromInt(100))
}

// IsVacant reports zero overlap; vacant tenants are excluded from
// allocation for the period.
func (o Occupancy) IsVacant() bool {
	return o.DaysOccupied == 0
}

// CalculateOccupancy intersects the tenant's tenancy with the billing
// period. Day counts are inclusive on both ends. A tenancy with no overlap
// yields DaysOccupied = 0, not an error.
func CalculateOccupancy(tenant Tenant, period Period) Occupancy {
	total := period.Days()
	occ := Occupancy{DaysInPeriod: total, Fraction: decimal.Zero}

	tenancy := tenant.Tenancy(period.End)
	overlap, ok := tenancy.Overlap(period)
	if !ok {
		return occ
	}

	occ.DaysOccupied = overlap.Days()
	occ.Fraction = decimal.NewFromInt(int64(occ.DaysOccupied)).
		Div(decimal.NewFromInt(int64(total)))
	return occ
}
