/*
Package settlement implements the operating-cost allocation and settlement
engine for a property-management platform.

PURPOSE:
  Once a year the actual shared building costs (heating, water, maintenance)
  must be reconciled against the monthly prepayments each tenant made toward
  them. This package turns a snapshot of tenants, cost line items, water
  meter readings and the payment ledger into one TenantCalculationResult per
  tenant: allocated costs, collected prepayments, the final settlement
  (arrears or refund) and a recommended prepayment for the next period.

KEY CONCEPTS IN THIS FILE (types.go):
  - Money values: decimal.Decimal everywhere, rounded to 2 decimals only at
    component totals, never per intermediate step
  - MoneyValue / DateValue: explicit optional fields for the loosely-typed
    external inputs (missing or unparsable values are a modeled state, not
    an implicit coercion)
  - Tenant / Apartment / CostLineItem / WaterMeterReading / PaymentRecord:
    the read-only input contracts
  - TenantCalculationResult: the engine's output value object

DESIGN PRINCIPLES:
  1. Purity: every calculator is a stateless function of its inputs;
     re-running on the same snapshot is bit-identical
  2. Precision: decimal.Decimal avoids floating-point drift in currency
  3. Tolerance: malformed amounts and dates degrade to conservative zeros
     instead of failing an entire settlement run
  4. Auditability: per-category cost items and per-month payment rows are
     carried through to the result

SEE ALSO:
  - occupancy.go: tenancy/billing-period overlap
  - allocate.go:  shared cost allocation with rounding reconciliation
  - water.go:     metered water allocation
  - payments.go:  month-by-month missed payment analysis
  - prepayment.go: next-period prepayment recommendation
  - engine.go:    the full pipeline
*/
package settlement

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type TenantID string
type ApartmentID string
type BuildingID string
type MeterID string

// =============================================================================
// MONEY - Currency with explicit 2-decimal precision
// =============================================================================

// CurrencyPlaces is the minor-unit precision of all monetary outputs.
const CurrencyPlaces int32 = 2

// RoundCurrency rounds to currency precision, half away from zero.
// Applied exactly once per component total; intermediate allocation math
// stays unrounded.
func RoundCurrency(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// MoneyValue is an optionally-present monetary amount. External ledgers
// deliver amounts as free-form strings; a missing or unparsable amount is
// Valid=false and coerces to zero wherever a number is needed.
type MoneyValue struct {
	Value decimal.Decimal
	Valid bool
}

func NewMoney(value decimal.Decimal) MoneyValue {
	return MoneyValue{Value: value, Valid: true}
}

// ParseMoney parses a raw amount string. Empty or non-numeric input yields
// an invalid MoneyValue, never an error: the engine favors a conservative
// result over failing the run.
func ParseMoney(raw string) MoneyValue {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return MoneyValue{}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return MoneyValue{}
	}
	return MoneyValue{Value: d, Valid: true}
}

// OrZero returns the value, or zero when missing/unparsable.
func (mv MoneyValue) OrZero() decimal.Decimal {
	if !mv.Valid {
		return decimal.Zero
	}
	return mv.Value
}

// IsPositive reports whether the value is present and strictly positive.
// Only positive values participate in "latest charge" selection.
func (mv MoneyValue) IsPositive() bool {
	return mv.Valid && mv.Value.IsPositive()
}

// DateValue is an optionally-present date. Records with missing or
// unparsable dates stay in the dataset; comparators order them explicitly
// instead of dropping them.
type DateValue struct {
	Date  Date
	Valid bool
}

func NewDateValue(d Date) DateValue {
	return DateValue{Date: d, Valid: true}
}

// =============================================================================
// BUILDING STRUCTURE
// =============================================================================

// Apartment belongs to one building; its size in square meters is the
// weight basis for area-keyed cost allocation.
type Apartment struct {
	ID         ApartmentID
	BuildingID BuildingID
	Size       decimal.Decimal // m²
}

// Tenant occupies one apartment. MoveOut == nil means still occupying;
// the tenancy is clipped to the billing period on calculation.
type Tenant struct {
	ID          TenantID
	ApartmentID ApartmentID
	Name        string
	MoveIn      Date
	MoveOut     *Date
}

// Tenancy returns the tenant's occupancy interval clipped to the given
// billing period end (open tenancies run through the period end).
func (t Tenant) Tenancy(periodEnd Date) Period {
	end := periodEnd
	if t.MoveOut != nil {
		end = *t.MoveOut
	}
	return Period{Start: t.MoveIn, End: end}
}

// =============================================================================
// COST LINE ITEMS
// =============================================================================

type CostCategory string

// AllocationKey determines how a cost line item is split across tenants.
type AllocationKey string

const (
	// KeyAreaOccupancy weights by apartment size × occupancy fraction.
	KeyAreaOccupancy AllocationKey = "area_occupancy"
	// KeyOccupancy weights by occupancy fraction only.
	KeyOccupancy AllocationKey = "occupancy"
	// KeyConsumption bills by metered consumption (water).
	KeyConsumption AllocationKey = "consumption"
)

// CostLineItem is one shared cost for a period. Immutable once handed to a
// settlement run.
type CostLineItem struct {
	Category CostCategory
	Key      AllocationKey
	Amount   decimal.Decimal // currency, 2-decimal precision
	Period   Period
}

// =============================================================================
// WATER METERING
// =============================================================================

// WaterMeterReading is a cumulative meter value at a date. Consumption for
// a period is always a delta of readings bracketing the period, never
// assumed.
type WaterMeterReading struct {
	MeterID     MeterID
	ApartmentID ApartmentID
	ReadAt      Date
	Value       decimal.Decimal // m³, cumulative
}

// =============================================================================
// PAYMENT LEDGER (read-only input)
// =============================================================================

type PaymentCategory string

const (
	PaymentRent      PaymentCategory = "rent"
	PaymentOperating PaymentCategory = "operating" // operating-cost prepayment
)

// PaymentRecord is one entry of the append-only payment ledger. Date and
// Amount arrive from external systems and may be malformed; both are
// explicit optionals.
type PaymentRecord struct {
	TenantID TenantID
	Category PaymentCategory
	Date     DateValue
	Amount   MoneyValue
}

// ExpectedCharge is a historical "what this tenant should pay monthly"
// entry (rent or prepayment). Amounts change over a tenancy; the analyzer
// selects the latest applicable entry per month.
type ExpectedCharge struct {
	TenantID      TenantID
	Category      PaymentCategory
	EffectiveFrom DateValue
	Amount        MoneyValue
}

// =============================================================================
// CALCULATION RESULT - The engine's output value object
// =============================================================================

// OperatingCostShare is one tenant's share of a single cost category,
// rounded for presentation. Component totals are rounded from the unrounded
// running sum, not from these.
type OperatingCostShare struct {
	Category CostCategory
	Amount   decimal.Decimal
}

type OperatingCosts struct {
	Items     []OperatingCostShare
	TotalCost decimal.Decimal
}

type WaterCosts struct {
	TotalBuildingCost        decimal.Decimal
	TotalBuildingConsumption decimal.Decimal // m³
	PricePerCubicMeter       decimal.Decimal
	TenantConsumption        decimal.Decimal // m³
	TotalCost                decimal.Decimal
}

// MonthlyPayment is the ledger sum for one calendar month of the billing
// period.
type MonthlyPayment struct {
	Month  YearMonth
	Amount decimal.Decimal
}

type Prepayments struct {
	MonthlyPayments       []MonthlyPayment
	TotalPrepayments      decimal.Decimal
	AverageMonthlyPayment decimal.Decimal
}

// TenantCalculationResult is produced fresh per run and never mutated.
type TenantCalculationResult struct {
	TenantID      TenantID
	ApartmentSize decimal.Decimal

	OccupancyPercentage decimal.Decimal // 0..100
	DaysOccupied        int
	DaysInPeriod        int

	OperatingCosts OperatingCosts
	WaterCosts     WaterCosts
	TotalCosts     decimal.Decimal

	Prepayments Prepayments

	// FinalSettlement = TotalCosts - TotalPrepayments, exactly.
	// Positive: tenant owes. Negative: refund due.
	FinalSettlement decimal.Decimal

	// Next-period recommendation.
	RecommendedMonthlyPrepayment decimal.Decimal
	RecommendedAnnualPrepayment  decimal.Decimal
}

// sortShares orders cost shares by category for deterministic output.
func sortShares(shares []OperatingCostShare) {
	sort.Slice(shares, func(i, j int) bool {
		return shares[i].Category < shares[j].Category
	})
}
