/*
engine.go - The settlement pipeline

PURPOSE:
  Composes the calculators into one pipeline:

    tenant + cost + meter + payment data
      -> per-tenant TenantCalculationResult
      -> aggregate report

  The engine is pure and stateless: it holds configuration only, retains
  nothing between runs, and re-running on an identical snapshot yields
  bit-identical results. Inputs are treated as an immutable snapshot;
  fetch once, then calculate.

CONCURRENCY:
  All calculators are synchronous pure functions over the snapshot. Once
  the per-item allocation maps are built there is no cross-tenant
  dependency, so callers may run many buildings or periods in parallel
  without locks.

SETTLEMENT:
  FinalSettlement = TotalCosts - TotalPrepayments, exactly. Both inputs
  are already at currency precision when they meet; no independent
  rounding is applied to the difference.
*/
package settlement

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// Config carries the tunable constants of a settlement run. A zero
// BufferRate means exactly that: no safety margin on the recommendation.
// Callers wanting the standard margin start from DefaultConfig.
type Config struct {
	// BufferRate is the safety margin for the prepayment recommendation.
	BufferRate decimal.Decimal
}

func DefaultConfig() Config {
	return Config{BufferRate: DefaultBufferRate}
}

// =============================================================================
// SNAPSHOT - Immutable input set for one run
// =============================================================================

// Snapshot is everything a settlement run reads. Callers fetch it once and
// must not mutate it while the run executes.
type Snapshot struct {
	Period Period

	// AsOf bounds the payment-history walk (settlement date). Zero value
	// defaults to the period end.
	AsOf Date

	Tenants       []Tenant
	Apartments    []Apartment
	CostItems     []CostLineItem
	MeterReadings []WaterMeterReading
	Payments      []PaymentRecord
	Charges       []ExpectedCharge
}

// =============================================================================
// REPORT - Aggregate output for one run
// =============================================================================

// Report aggregates a run's per-tenant results.
type Report struct {
	Period           Period
	Results          []TenantCalculationResult
	TotalCosts       decimal.Decimal
	TotalPrepayments decimal.Decimal
	TotalSettlement  decimal.Decimal
}

// =============================================================================
// ENGINE
// =============================================================================

// Engine runs settlements. Safe for concurrent use; it carries only
// configuration.
type Engine struct {
	cfg Config
}

func NewEngine(cfg Config) *Engine {
	return &Engine{cfg: cfg}
}

// Run produces one TenantCalculationResult per tenant active in the
// period, sorted by tenant ID. Tenants with no occupancy overlap are
// excluded, not errors.
func (e *Engine) Run(snap Snapshot) (*Report, error) {
	if !snap.Period.IsValid() {
		return nil, ErrInvalidPeriod
	}
	asOf := snap.AsOf
	if asOf.IsZero() {
		asOf = snap.Period.End
	}

	apartments := make(map[ApartmentID]Apartment, len(snap.Apartments))
	for _, apt := range snap.Apartments {
		apartments[apt.ID] = apt
	}

	operating, err := AllocateOperatingCosts(snap.CostItems, snap.Tenants, apartments)
	if err != nil {
		return nil, err
	}

	waterBudget := decimal.Zero
	for _, item := range snap.CostItems {
		if item.Key == KeyConsumption {
			waterBudget = waterBudget.Add(item.Amount)
		}
	}
	water, err := AllocateWaterCosts(waterBudget, snap.MeterReadings, snap.Tenants, snap.Period)
	if err != nil {
		return nil, err
	}

	report := &Report{
		Period:           snap.Period,
		TotalCosts:       decimal.Zero,
		TotalPrepayments: decimal.Zero,
		TotalSettlement:  decimal.Zero,
	}

	for _, tenant := range snap.Tenants {
		occ := CalculateOccupancy(tenant, snap.Period)
		if occ.IsVacant() {
			continue
		}

		apt, ok := apartments[tenant.ApartmentID]
		if !ok {
			return nil, &UnknownApartmentError{
				TenantID:    tenant.ID,
				ApartmentID: tenant.ApartmentID,
			}
		}

		result := e.calculateTenant(tenant, apt, occ, operating[tenant.ID], water[tenant.ID], snap, asOf)
		report.Results = append(report.Results, result)

		report.TotalCosts = report.TotalCosts.Add(result.TotalCosts)
		report.TotalPrepayments = report.TotalPrepayments.Add(result.Prepayments.TotalPrepayments)
		report.TotalSettlement = report.TotalSettlement.Add(result.FinalSettlement)
	}

	sort.Slice(report.Results, func(i, j int) bool {
		return report.Results[i].TenantID < report.Results[j].TenantID
	})
	return report, nil
}

// calculateTenant assembles one tenant's result from the pre-computed
// allocation maps.
func (e *Engine) calculateTenant(
	tenant Tenant,
	apt Apartment,
	occ Occupancy,
	operating OperatingCosts,
	water WaterCosts,
	snap Snapshot,
	asOf Date,
) TenantCalculationResult {

	prepayments := collectPrepayments(snap.Payments, tenant.ID, snap.Period, asOf)

	totalCosts := operating.TotalCost.Add(water.TotalCost)
	final := totalCosts.Sub(prepayments.TotalPrepayments)
	rec := RecommendPrepayment(totalCosts, e.cfg.BufferRate)

	return TenantCalculationResult{
		TenantID:            tenant.ID,
		ApartmentSize:       apt.Size,
		OccupancyPercentage: occ.Percentage(),
		DaysOccupied:        occ.DaysOccupied,
		DaysInPeriod:        occ.DaysInPeriod,

		OperatingCosts: operating,
		WaterCosts:     water,
		TotalCosts:     totalCosts,

		Prepayments: prepayments,

		FinalSettlement: final,

		RecommendedMonthlyPrepayment: rec.Monthly,
		RecommendedAnnualPrepayment:  rec.Annual,
	}
}

// collectPrepayments sums the tenant's operating-cost prepayments per
// calendar month of the billing period, up to the settlement date. Months
// without a recorded payment do not appear in the list; the average is
// over recorded months.
func collectPrepayments(ledger []PaymentRecord, tenantID TenantID, period Period, asOf Date) Prepayments {
	pre := Prepayments{
		TotalPrepayments:      decimal.Zero,
		AverageMonthlyPayment: decimal.Zero,
	}

	months := MonthsBetween(MonthOf(period.Start), MonthOf(period.End.Min(asOf)))
	for _, month := range months {
		paid := paidInMonth(ledger, tenantID, PaymentOperating, month)
		if paid.IsZero() {
			continue
		}
		pre.MonthlyPayments = append(pre.MonthlyPayments, MonthlyPayment{
			Month:  month,
			Amount: paid,
		})
		pre.TotalPrepayments = pre.TotalPrepayments.Add(paid)
	}

	if n := len(pre.MonthlyPayments); n > 0 {
		pre.AverageMonthlyPayment = RoundCurrency(
			pre.TotalPrepayments.Div(decimal.NewFromInt(int64(n))))
	}
	return pre
}
