/*
allocate.go - Shared operating-cost allocation

PURPOSE:
  Splits each cost line item across the tenants active during the item's
  period, weighted by an allocation key:

    KeyAreaOccupancy: weight = apartment size × occupancy fraction
    KeyOccupancy:     weight = occupancy fraction

  Each tenant's share of an item is

    item.Amount × (tenant weight / Σ weights of active tenants)

ROUNDING:
  Shares accumulate unrounded. Currency rounding happens exactly once per
  tenant, on the aggregated total. This bounds cumulative drift: the sum of
  all rounded tenant totals can exceed the sum of unrounded item amounts by
  at most tenants × half a minor unit. Crossing that bound is a defect and
  surfaces as AllocationDriftError; it is never silently absorbed.

EDGE CASES:
  - A tenant with no overlap for an item is excluded from that item, not
    an error.
  - An item whose period no tenant overlaps allocates to nobody; its amount
    does not enter the reconciliation sum.
  - Consumption-keyed items (water) are not handled here; see water.go.
*/
package settlement

import "github.com/shopspring/decimal"

// driftTolerancePerTenant is half a currency minor unit. The reconciliation
// bound is tenants × this value.
var driftTolerancePerTenant = decimal.New(5, -3) // 0.005

// AllocateOperatingCosts distributes all area/occupancy-keyed items across
// the given tenants. The result maps only tenants that received a share.
func AllocateOperatingCosts(
	items []CostLineItem,
	tenants []Tenant,
	apartments map[ApartmentID]Apartment,
) (map[TenantID]OperatingCosts, error) {

	totals := make(map[TenantID]decimal.Decimal)
	byCategory := make(map[TenantID]map[CostCategory]decimal.Decimal)
	expected := decimal.Zero // unrounded sum of allocated item amounts

	for _, item := range items {
		if item.Key == KeyConsumption {
			continue // water is billed by metered consumption, see water.go
		}

		weights := make(map[TenantID]decimal.Decimal)
		sumWeights := decimal.Zero

		for _, tenant := range tenants {
			occ := CalculateOccupancy(tenant, item.Period)
			if occ.IsVacant() {
				continue
			}

			weight := occ.Fraction
			if item.Key == KeyAreaOccupancy {
				apt, ok := apartments[tenant.ApartmentID]
				if !ok {
					return nil, &UnknownApartmentError{
						TenantID:    tenant.ID,
						ApartmentID: tenant.ApartmentID,
					}
				}
				weight = weight.Mul(apt.Size)
			}
			if weight.IsZero() {
				continue
			}

			weights[tenant.ID] = weight
			sumWeights = sumWeights.Add(weight)
		}

		if sumWeights.IsZero() {
			continue // nobody active during this item's period
		}

		expected = expected.Add(item.Amount)
		for tenantID, weight := range weights {
			share := item.Amount.Mul(weight).Div(sumWeights)
			totals[tenantID] = totals[tenantID].Add(share)
			if byCategory[tenantID] == nil {
				byCategory[tenantID] = make(map[CostCategory]decimal.Decimal)
			}
			byCategory[tenantID][item.Category] = byCategory[tenantID][item.Category].Add(share)
		}
	}

	results := make(map[TenantID]OperatingCosts, len(totals))
	sumRounded := decimal.Zero

	for tenantID, total := range totals {
		var shares []OperatingCostShare
		for category, amount := range byCategory[tenantID] {
			shares = append(shares, OperatingCostShare{
				Category: category,
				Amount:   RoundCurrency(amount),
			})
		}
		sortShares(shares)

		rounded := RoundCurrency(total)
		sumRounded = sumRounded.Add(rounded)
		results[tenantID] = OperatingCosts{Items: shares, TotalCost: rounded}
	}

	// Reconcile residual cents: rounded totals may not exceed the unrounded
	// item sum by more than tenants × half a minor unit.
	if n := len(totals); n > 0 {
		tolerance := driftTolerancePerTenant.Mul(decimal.NewFromInt(int64(n)))
		if sumRounded.Sub(expected).GreaterThan(tolerance) {
			return nil, &AllocationDriftError{
				Allocated: sumRounded,
				Expected:  expected,
				Tolerance: tolerance,
				Tenants:   n,
			}
		}
	}

	return results, nil
}
