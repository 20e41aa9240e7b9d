/*
water.go - Metered water-cost allocation

PURPOSE:
  Water is the one cost billed by actual consumption instead of an
  occupancy weight. The building-wide water spend and building-wide
  consumption give a per-cubic-meter price; each tenant pays for the
  consumption of their apartment's meters. When several tenants share
  an apartment across the period (turnover, co-tenancy), the apartment's
  consumption splits between them by occupancy weight, so no cubic
  meter is billed twice.

CONSUMPTION:
  Meters report cumulative values. Consumption for a period is the delta
  between the readings bracketing it: the latest reading at or before the
  period start and the earliest reading at or after the period end. The
  delta is never assumed; a meter without both bracket readings contributes
  zero, and a negative delta (meter replacement) is coerced to zero.

ROUNDING:
  Tenant shares accumulate unrounded; currency rounding happens once per
  tenant. As in allocate.go, the rounded tenant costs may not exceed the
  unrounded billed sum by more than tenants × half a minor unit, or the
  run fails with AllocationDriftError.

EDGE CASES:
  - Building consumption of zero yields a price of zero, not a division
    error, and therefore zero tenant water cost.
  - An apartment with consumption but no active tenant bills nobody; the
    owner absorbs it.
*/
package settlement

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONSUMPTION - Meter deltas bracketing the period
// =============================================================================

// ConsumptionByApartment derives per-apartment water consumption for the
// period from cumulative meter readings. Apartments can carry several
// meters (kitchen, bath); their deltas sum.
func ConsumptionByApartment(readings []WaterMeterReading, period Period) map[ApartmentID]decimal.Decimal {
	byMeter := make(map[MeterID][]WaterMeterReading)
	apartmentOf := make(map[MeterID]ApartmentID)
	for _, r := range readings {
		byMeter[r.MeterID] = append(byMeter[r.MeterID], r)
		apartmentOf[r.MeterID] = r.ApartmentID
	}

	consumption := make(map[ApartmentID]decimal.Decimal)
	for meterID, series := range byMeter {
		sort.Slice(series, func(i, j int) bool {
			return series[i].ReadAt.Before(series[j].ReadAt)
		})

		delta, ok := bracketDelta(series, period)
		if !ok {
			continue
		}
		aptID := apartmentOf[meterID]
		consumption[aptID] = consumption[aptID].Add(delta)
	}
	return consumption
}

// bracketDelta finds the reading pair bracketing the period in a series
// sorted by date. Returns false when either bracket is missing.
func bracketDelta(series []WaterMeterReading, period Period) (decimal.Decimal, bool) {
	var start, end *WaterMeterReading

	for i := range series {
		r := &series[i]
		if r.ReadAt.BeforeOrEqual(period.Start) {
			start = r // latest at or before the start
		}
		if end == nil && r.ReadAt.AfterOrEqual(period.End) {
			end = r // earliest at or after the end
		}
	}
	if start == nil || end == nil {
		return decimal.Zero, false
	}

	delta := end.Value.Sub(start.Value)
	if delta.IsNegative() {
		return decimal.Zero, true // meter swap mid-period
	}
	return delta, true
}

// =============================================================================
// ALLOCATION - Price per m³ × tenant consumption
// =============================================================================

// AllocateWaterCosts bills each tenant by the metered consumption of their
// apartment. totalBuildingCost is the sum of consumption-keyed cost items
// for the period. An apartment shared by several tenants over the period
// splits its consumption between them by occupancy weight, so the shares
// of one apartment always sum to that apartment's metered delta.
func AllocateWaterCosts(
	totalBuildingCost decimal.Decimal,
	readings []WaterMeterReading,
	tenants []Tenant,
	period Period,
) (map[TenantID]WaterCosts, error) {

	consumption := ConsumptionByApartment(readings, period)

	totalConsumption := decimal.Zero
	for _, c := range consumption {
		totalConsumption = totalConsumption.Add(c)
	}

	// Division by zero yields a zero price, and so zero tenant cost.
	price := decimal.Zero
	if totalConsumption.IsPositive() {
		price = totalBuildingCost.Div(totalConsumption)
	}

	weights := make(map[TenantID]decimal.Decimal)
	weightSums := make(map[ApartmentID]decimal.Decimal)
	for _, tenant := range tenants {
		occ := CalculateOccupancy(tenant, period)
		if occ.IsVacant() {
			continue
		}
		weights[tenant.ID] = occ.Fraction
		weightSums[tenant.ApartmentID] = weightSums[tenant.ApartmentID].Add(occ.Fraction)
	}

	results := make(map[TenantID]WaterCosts, len(weights))
	expected := decimal.Zero // unrounded sum of billed tenant costs
	sumRounded := decimal.Zero

	for _, tenant := range tenants {
		weight, ok := weights[tenant.ID]
		if !ok {
			continue
		}

		tenantConsumption := decimal.Zero
		if apt := consumption[tenant.ApartmentID]; apt.IsPositive() {
			tenantConsumption = apt.Mul(weight).Div(weightSums[tenant.ApartmentID])
		}
		cost := tenantConsumption.Mul(price)
		rounded := RoundCurrency(cost)

		expected = expected.Add(cost)
		sumRounded = sumRounded.Add(rounded)

		results[tenant.ID] = WaterCosts{
			TotalBuildingCost:        totalBuildingCost,
			TotalBuildingConsumption: totalConsumption,
			PricePerCubicMeter:       price,
			TenantConsumption:        tenantConsumption,
			TotalCost:                rounded,
		}
	}

	// Same reconciliation bound as the occupancy-keyed allocator.
	if n := len(results); n > 0 {
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
