/*
payments.go - Month-by-month missed-payment analysis

PURPOSE:
  Walks a tenant's full tenancy month by month, comparing actual ledger
  payments against the expected monthly amount for each category (rent,
  operating-cost prepayment). Expected amounts change over a tenancy, so
  each month uses the latest historical charge entry applicable to it.

LATEST-VALUE SELECTION:
  Charge entries are filtered to positive amounts, then ordered by
  CompareChargeDates: valid dates sort newest-first, entries without a
  parsable date sort after every dated entry (treated as oldest), and two
  undated entries rank equal. The first entry under that order wins. This
  is a total order over every valid/invalid combination, not an ad hoc
  comparison chain.

EDGE CASES:
  - Missing or unparsable amounts coerce to zero and never win the
    latest-value selection.
  - A tenant with no positive rent charge produces zero missed-rent months.
  - Prepayment checks only run for months where a positive expected amount
    exists.
  - Ledger entries without a parsable date cannot be placed in a month and
    are excluded from the monthly actual sum.

ALLOCATION:
  Per-month detail rows are opt-in (CollectDetails) so bulk dunning scans
  do not allocate detail slices they will not read.
*/
package settlement

import (
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CHARGE ORDERING - "latest value, undated sorts last"
// =============================================================================

// CompareChargeDates defines the total order used for latest-value
// selection. It returns a negative number when a sorts before b
// (i.e. a is the more recent, preferred entry), positive when after,
// zero when equal.
func CompareChargeDates(a, b DateValue) int {
	switch {
	case a.Valid && b.Valid:
		if a.Date.After(b.Date) {
			return -1
		}
		if a.Date.Before(b.Date) {
			return 1
		}
		return 0
	case a.Valid:
		return -1 // dated entries beat undated ones
	case b.Valid:
		return 1
	default:
		return 0 // both undated: equal, order among them is stable
	}
}

// LatestChargeAmount returns the expected monthly amount for a category as
// of the given month: the most recent positive charge entry effective at or
// before the month's end. Undated entries are treated as oldest and only
// win when no dated entry applies. Zero when no entry qualifies.
func LatestChargeAmount(charges []ExpectedCharge, category PaymentCategory, month YearMonth) decimal.Decimal {
	monthEnd := month.End()

	var candidates []ExpectedCharge
	for _, c := range charges {
		if c.Category != category {
			continue
		}
		if !c.Amount.IsPositive() {
			continue // zero-coerced amounts never define an expectation
		}
		if c.EffectiveFrom.Valid && c.EffectiveFrom.Date.After(monthEnd) {
			continue
		}
		candidates = append(candidates, c)
	}
	if len(candidates) == 0 {
		return decimal.Zero
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return CompareChargeDates(candidates[i].EffectiveFrom, candidates[j].EffectiveFrom) < 0
	})
	return candidates[0].Amount.Value
}

// =============================================================================
// MISSED-PAYMENT ANALYSIS
// =============================================================================

// MissedPaymentDetail is one shortfall month. Only populated when
// AnalyzerOptions.CollectDetails is set.
type MissedPaymentDetail struct {
	Month    YearMonth
	Category PaymentCategory
	Amount   decimal.Decimal // shortfall = expected - actual
}

// MissedPaymentReport summarizes a tenant's payment history.
type MissedPaymentReport struct {
	TenantID              TenantID
	MissedRentMonths      int
	MissedOperatingMonths int
	TotalMissedAmount     decimal.Decimal
	Details               []MissedPaymentDetail
}

// AnalyzerOptions controls optional behavior of the analyzer.
type AnalyzerOptions struct {
	// CollectDetails appends a per-month detail record for every shortfall.
	CollectDetails bool
}

// AnalyzeMissedPayments walks every calendar month from the tenant's
// move-in through asOf (typically the settlement date) and accumulates
// shortfalls per category.
func AnalyzeMissedPayments(
	tenant Tenant,
	charges []ExpectedCharge,
	ledger []PaymentRecord,
	asOf Date,
	opts AnalyzerOptions,
) MissedPaymentReport {

	report := MissedPaymentReport{
		TenantID:          tenant.ID,
		TotalMissedAmount: decimal.Zero,
	}
	if tenant.MoveIn.IsZero() || asOf.Before(tenant.MoveIn) {
		return report
	}

	months := MonthsBetween(MonthOf(tenant.MoveIn), MonthOf(asOf))
	for _, month := range months {
		for _, category := range []PaymentCategory{PaymentRent, PaymentOperating} {
			expected := LatestChargeAmount(charges, category, month)
			if !expected.IsPositive() {
				continue // no configured expectation, nothing to miss
			}

			actual := paidInMonth(ledger, tenant.ID, category, month)
			if actual.GreaterThanOrEqual(expected) {
				continue
			}

			shortfall := expected.Sub(actual)
			report.TotalMissedAmount = report.TotalMissedAmount.Add(shortfall)
			switch category {
			case PaymentRent:
				report.MissedRentMonths++
			case PaymentOperating:
				report.MissedOperatingMonths++
			}

			if opts.CollectDetails {
				report.Details = append(report.Details, MissedPaymentDetail{
					Month:    month,
					Category: category,
					Amount:   shortfall,
				})
			}
		}
	}
	return report
}

// paidInMonth sums ledger entries for the tenant+category dated within the
// month. Entries with unparsable dates cannot be attributed to a month;
// entries with unparsable amounts count as zero.
func paidInMonth(ledger []PaymentRecord, tenantID TenantID, category PaymentCategory, month YearMonth) decimal.Decimal {
	sum := decimal.Zero
	for _, p := range ledger {
		if p.TenantID != tenantID || p.Category != category {
			continue
		}
		if !p.Date.Valid || !month.Contains(p.Date.Date) {
			continue
		}
		sum = sum.Add(p.Amount.OrZero())
	}
	return sum
}
