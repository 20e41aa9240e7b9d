package settlement_test

import (
	"testing"
	"time"

	"github.com/hauskit/settlement-engine/settlement"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func charge(tenantID string, category settlement.PaymentCategory, from settlement.DateValue, amount string) settlement.ExpectedCharge {
	return settlement.ExpectedCharge{
		TenantID:      settlement.TenantID(tenantID),
		Category:      category,
		EffectiveFrom: from,
		Amount:        settlement.ParseMoney(amount),
	}
}

func payment(tenantID string, category settlement.PaymentCategory, at settlement.Date, amount string) settlement.PaymentRecord {
	return settlement.PaymentRecord{
		TenantID: settlement.TenantID(tenantID),
		Category: category,
		Date:     settlement.NewDateValue(at),
		Amount:   settlement.ParseMoney(amount),
	}
}

func validDate(year int, month time.Month, day int) settlement.DateValue {
	return settlement.NewDateValue(date(year, month, day))
}

// =============================================================================
// CHARGE ORDERING TESTS
// =============================================================================

func TestCompareChargeDates_TotalOrder(t *testing.T) {
	// GIVEN: Every valid/invalid date combination
	// THEN: The comparator defines an order for all of them

	newer := validDate(2023, time.May, 1)
	older := validDate(2022, time.February, 1)
	undated := settlement.DateValue{}

	cases := []struct {
		name string
		a, b settlement.DateValue
		want int
	}{
		{"newer sorts first", newer, older, -1},
		{"older sorts after", older, newer, 1},
		{"equal dates", newer, newer, 0},
		{"dated beats undated", older, undated, -1},
		{"undated after dated", undated, newer, 1},
		{"undated vs undated equal", undated, undated, 0},
	}

	for _, tc := range cases {
		got := settlement.CompareChargeDates(tc.a, tc.b)
		if (tc.want < 0 && got >= 0) || (tc.want > 0 && got <= 0) || (tc.want == 0 && got != 0) {
			t.Errorf("%s: expected sign %d, got %d", tc.name, tc.want, got)
		}
	}
}

func TestLatestChargeAmount_TimeVaryingRent(t *testing.T) {
	// GIVEN: Rent raised from 500 to 600 effective March 2023
	// WHEN: Resolving the expectation per month
	// THEN: February uses 500, March onwards 600

	charges := []settlement.ExpectedCharge{
		charge("t-1", settlement.PaymentRent, validDate(2022, time.January, 1), "500"),
		charge("t-1", settlement.PaymentRent, validDate(2023, time.March, 1), "600"),
	}

	feb := settlement.LatestChargeAmount(charges, settlement.PaymentRent, settlement.YearMonth{Year: 2023, Month: time.February})
	if !feb.Equal(dec("500")) {
		t.Errorf("February: expected 500, got %s", feb)
	}

	mar := settlement.LatestChargeAmount(charges, settlement.PaymentRent, settlement.YearMonth{Year: 2023, Month: time.March})
	if !mar.Equal(dec("600")) {
		t.Errorf("March: expected 600, got %s", mar)
	}
}

func TestLatestChargeAmount_UndatedEntryIsOldest(t *testing.T) {
	// GIVEN: An undated charge and a dated one
	// WHEN: Resolving
	// THEN: The dated entry wins; the undated one only applies when no
	//       dated entry exists

	month := settlement.YearMonth{Year: 2023, Month: time.June}

	both := []settlement.ExpectedCharge{
		charge("t-1", settlement.PaymentRent, settlement.DateValue{}, "450"),
		charge("t-1", settlement.PaymentRent, validDate(2023, time.January, 1), "520"),
	}
	if got := settlement.LatestChargeAmount(both, settlement.PaymentRent, month); !got.Equal(dec("520")) {
		t.Errorf("expected dated entry 520 to win, got %s", got)
	}

	undatedOnly := []settlement.ExpectedCharge{
		charge("t-1", settlement.PaymentRent, settlement.DateValue{}, "450"),
	}
	if got := settlement.LatestChargeAmount(undatedOnly, settlement.PaymentRent, month); !got.Equal(dec("450")) {
		t.Errorf("expected undated fallback 450, got %s", got)
	}
}

func TestLatestChargeAmount_InvalidAmountsExcluded(t *testing.T) {
	// GIVEN: The newest charge has an unparsable amount
	// WHEN: Resolving
	// THEN: It is coerced to zero and excluded; the older valid entry wins

	charges := []settlement.ExpectedCharge{
		charge("t-1", settlement.PaymentRent, validDate(2022, time.January, 1), "500"),
		charge("t-1", settlement.PaymentRent, validDate(2023, time.March, 1), "not-a-number"),
	}

	got := settlement.LatestChargeAmount(charges, settlement.PaymentRent, settlement.YearMonth{Year: 2023, Month: time.June})
	if !got.Equal(dec("500")) {
		t.Errorf("expected 500 from the last valid entry, got %s", got)
	}
}

// =============================================================================
// MISSED-PAYMENT ANALYSIS TESTS
// =============================================================================

func TestAnalyze_ThreeUnpaidMonths(t *testing.T) {
	// GIVEN: Tenant moved in 2023-01-01, rent 500, nothing paid Jan-Mar
	// WHEN: Analyzing as of end of March
	// THEN: 3 missed rent months, total 1500

	ten := tenant("t-1", "apt-1", date(2023, time.January, 1), nil)
	charges := []settlement.ExpectedCharge{
		charge("t-1", settlement.PaymentRent, validDate(2023, time.January, 1), "500"),
	}

	report := settlement.AnalyzeMissedPayments(ten, charges, nil, date(2023, time.March, 31), settlement.AnalyzerOptions{})

	if report.MissedRentMonths != 3 {
		t.Fatalf("expected 3 missed rent months, got %d", report.MissedRentMonths)
	}
	if !report.TotalMissedAmount.Equal(dec("1500")) {
		t.Errorf("expected 1500 total shortfall, got %s", report.TotalMissedAmount)
	}
}

func TestAnalyze_PartialPayment_CountsShortfall(t *testing.T) {
	// GIVEN: Rent 500, tenant paid 300 in January
	// WHEN: Analyzing January only
	// THEN: One missed month with a 200 shortfall

	ten := tenant("t-1", "apt-1", date(2023, time.January, 1), nil)
	charges := []settlement.ExpectedCharge{
		charge("t-1", settlement.PaymentRent, validDate(2023, time.January, 1), "500"),
	}
	ledger := []settlement.PaymentRecord{
		payment("t-1", settlement.PaymentRent, date(2023, time.January, 5), "300"),
	}

	report := settlement.AnalyzeMissedPayments(ten, charges, ledger, date(2023, time.January, 31), settlement.AnalyzerOptions{})

	if report.MissedRentMonths != 1 {
		t.Fatalf("expected 1 missed month, got %d", report.MissedRentMonths)
	}
	if !report.TotalMissedAmount.Equal(dec("200")) {
		t.Errorf("expected 200 shortfall, got %s", report.TotalMissedAmount)
	}
}

func TestAnalyze_NoRentConfigured_NoMissedRent(t *testing.T) {
	// GIVEN: A tenant with no positive rent charge
	// WHEN: Analyzing a year of tenancy
	// THEN: Zero missed rent months

	ten := tenant("t-1", "apt-1", date(2023, time.January, 1), nil)

	report := settlement.AnalyzeMissedPayments(ten, nil, nil, date(2023, time.December, 31), settlement.AnalyzerOptions{})

	if report.MissedRentMonths != 0 || !report.TotalMissedAmount.IsZero() {
		t.Errorf("expected empty report, got %+v", report)
	}
}

func TestAnalyze_OperatingCheckedOnlyWithExpectation(t *testing.T) {
	// GIVEN: Rent configured but no operating-cost prepayment charge
	// WHEN: Analyzing
	// THEN: Only rent months are counted

	ten := tenant("t-1", "apt-1", date(2023, time.January, 1), nil)
	charges := []settlement.ExpectedCharge{
		charge("t-1", settlement.PaymentRent, validDate(2023, time.January, 1), "500"),
	}

	report := settlement.AnalyzeMissedPayments(ten, charges, nil, date(2023, time.February, 28), settlement.AnalyzerOptions{})

	if report.MissedOperatingMonths != 0 {
		t.Errorf("expected 0 missed operating months, got %d", report.MissedOperatingMonths)
	}
	if report.MissedRentMonths != 2 {
		t.Errorf("expected 2 missed rent months, got %d", report.MissedRentMonths)
	}
}

func TestAnalyze_BothCategories_Accumulate(t *testing.T) {
	// GIVEN: Rent 500 and prepayment 150, one month, nothing paid
	// WHEN: Analyzing
	// THEN: Both categories miss; shortfall 650

	ten := tenant("t-1", "apt-1", date(2023, time.January, 1), nil)
	charges := []settlement.ExpectedCharge{
		charge("t-1", settlement.PaymentRent, validDate(2023, time.January, 1), "500"),
		charge("t-1", settlement.PaymentOperating, validDate(2023, time.January, 1), "150"),
	}

	report := settlement.AnalyzeMissedPayments(ten, charges, nil, date(2023, time.January, 31), settlement.AnalyzerOptions{})

	if report.MissedRentMonths != 1 || report.MissedOperatingMonths != 1 {
		t.Fatalf("expected 1 miss per category, got rent=%d operating=%d",
			report.MissedRentMonths, report.MissedOperatingMonths)
	}
	if !report.TotalMissedAmount.Equal(dec("650")) {
		t.Errorf("expected 650 total, got %s", report.TotalMissedAmount)
	}
}

func TestAnalyze_UndatedPaymentNotAttributed(t *testing.T) {
	// GIVEN: A ledger entry without a parsable date
	// WHEN: Analyzing a month it might have covered
	// THEN: The entry cannot be placed in a month and the month stays missed

	ten := tenant("t-1", "apt-1", date(2023, time.January, 1), nil)
	charges := []settlement.ExpectedCharge{
		charge("t-1", settlement.PaymentRent, validDate(2023, time.January, 1), "500"),
	}
	ledger := []settlement.PaymentRecord{
		{
			TenantID: "t-1",
			Category: settlement.PaymentRent,
			Date:     settlement.ParseDate("not-a-date"),
			Amount:   settlement.ParseMoney("500"),
		},
	}

	report := settlement.AnalyzeMissedPayments(ten, charges, ledger, date(2023, time.January, 31), settlement.AnalyzerOptions{})

	if report.MissedRentMonths != 1 {
		t.Errorf("expected the undated payment to be ignored, got %d missed months", report.MissedRentMonths)
	}
}

func TestAnalyze_DetailCollection_OptIn(t *testing.T) {
	// GIVEN: Two missed months
	// WHEN: Analyzing with and without CollectDetails
	// THEN: Details only allocate when requested

	ten := tenant("t-1", "apt-1", date(2023, time.January, 1), nil)
	charges := []settlement.ExpectedCharge{
		charge("t-1", settlement.PaymentRent, validDate(2023, time.January, 1), "500"),
	}
	asOf := date(2023, time.February, 28)

	plain := settlement.AnalyzeMissedPayments(ten, charges, nil, asOf, settlement.AnalyzerOptions{})
	if plain.Details != nil {
		t.Errorf("expected no details without opt-in, got %d", len(plain.Details))
	}

	detailed := settlement.AnalyzeMissedPayments(ten, charges, nil, asOf, settlement.AnalyzerOptions{CollectDetails: true})
	if len(detailed.Details) != 2 {
		t.Fatalf("expected 2 detail rows, got %d", len(detailed.Details))
	}
	first := detailed.Details[0]
	if first.Month != (settlement.YearMonth{Year: 2023, Month: time.January}) ||
		first.Category != settlement.PaymentRent || !first.Amount.Equal(dec("500")) {
		t.Errorf("unexpected first detail row: %+v", first)
	}
}

func TestAnalyze_TenancyAcrossYearBoundary(t *testing.T) {
	// GIVEN: Move-in November 2022, analysis through February 2023
	// WHEN: Walking months
	// THEN: Four months are checked (Nov, Dec, Jan, Feb)

	ten := tenant("t-1", "apt-1", date(2022, time.November, 1), nil)
	charges := []settlement.ExpectedCharge{
		charge("t-1", settlement.PaymentRent, validDate(2022, time.November, 1), "400"),
	}

	report := settlement.AnalyzeMissedPayments(ten, charges, nil, date(2023, time.February, 15), settlement.AnalyzerOptions{})

	if report.MissedRentMonths != 4 {
		t.Errorf("expected 4 missed months across the year boundary, got %d", report.MissedRentMonths)
	}
	if !report.TotalMissedAmount.Equal(dec("1600")) {
		t.Errorf("expected 1600 shortfall, got %s", report.TotalMissedAmount)
	}
}

func TestAnalyze_AsOfBeforeMoveIn_EmptyReport(t *testing.T) {
	ten := tenant("t-1", "apt-1", date(2024, time.June, 1), nil)
	report := settlement.AnalyzeMissedPayments(ten, nil, nil, date(2023, time.December, 31), settlement.AnalyzerOptions{})
	if report.MissedRentMonths != 0 || len(report.Details) != 0 {
		t.Errorf("expected empty report before move-in, got %+v", report)
	}
}
