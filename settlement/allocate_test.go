package settlement_test

import (
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hauskit/settlement-engine/settlement"
)

// =============================================================================
// TEST FIXTURES
// =============================================================================

func apartments(sizes map[string]string) map[settlement.ApartmentID]settlement.Apartment {
	apts := make(map[settlement.ApartmentID]settlement.Apartment, len(sizes))
	for id, size := range sizes {
		apts[settlement.ApartmentID(id)] = settlement.Apartment{
			ID:         settlement.ApartmentID(id),
			BuildingID: "bld-1",
			Size:       dec(size),
		}
	}
	return apts
}

func areaItem(category string, amount string, period settlement.Period) settlement.CostLineItem {
	return settlement.CostLineItem{
		Category: settlement.CostCategory(category),
		Key:      settlement.KeyAreaOccupancy,
		Amount:   dec(amount),
		Period:   period,
	}
}

// =============================================================================
// ALLOCATION TESTS
// =============================================================================

func TestAllocate_SizeWeighted_FullYearTenants(t *testing.T) {
	// GIVEN: Heating cost of 1000 and two full-year tenants (60m², 40m²)
	// WHEN: Allocating
	// THEN: Shares split 600 / 400 by size

	period := settlement.CalendarYear(2023)
	tenants := []settlement.Tenant{
		tenant("t-1", "apt-1", date(2020, time.January, 1), nil),
		tenant("t-2", "apt-2", date(2021, time.January, 1), nil),
	}
	apts := apartments(map[string]string{"apt-1": "60", "apt-2": "40"})
	items := []settlement.CostLineItem{areaItem("heating", "1000.00", period)}

	result, err := settlement.AllocateOperatingCosts(items, tenants, apts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result["t-1"].TotalCost.Equal(dec("600.00")) {
		t.Errorf("tenant 1: expected 600.00, got %s", result["t-1"].TotalCost)
	}
	if !result["t-2"].TotalCost.Equal(dec("400.00")) {
		t.Errorf("tenant 2: expected 400.00, got %s", result["t-2"].TotalCost)
	}
}

func TestAllocate_OccupancyOnly_IgnoresSize(t *testing.T) {
	// GIVEN: An occupancy-keyed item and two full-year tenants with very
	//        different apartment sizes
	// WHEN: Allocating
	// THEN: Equal shares

	period := settlement.CalendarYear(2023)
	tenants := []settlement.Tenant{
		tenant("t-1", "apt-1", date(2020, time.January, 1), nil),
		tenant("t-2", "apt-2", date(2021, time.January, 1), nil),
	}
	apts := apartments(map[string]string{"apt-1": "120", "apt-2": "30"})
	items := []settlement.CostLineItem{{
		Category: "elevator",
		Key:      settlement.KeyOccupancy,
		Amount:   dec("300.00"),
		Period:   period,
	}}

	result, err := settlement.AllocateOperatingCosts(items, tenants, apts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !result["t-1"].TotalCost.Equal(dec("150.00")) || !result["t-2"].TotalCost.Equal(dec("150.00")) {
		t.Errorf("expected 150.00 each, got %s / %s", result["t-1"].TotalCost, result["t-2"].TotalCost)
	}
}

func TestAllocate_PartialOccupancy_Prorated(t *testing.T) {
	// GIVEN: Two tenants of equal-size apartments, one present only part
	//        of the item period
	// WHEN: Allocating 1000
	// THEN: The partial tenant pays proportionally less and the shares sum
	//       back to the item amount within a cent

	period := settlement.CalendarYear(2023)
	tenants := []settlement.Tenant{
		tenant("t-full", "apt-1", date(2020, time.January, 1), nil),
		tenant("t-half", "apt-2", date(2023, time.July, 1), nil),
	}
	apts := apartments(map[string]string{"apt-1": "50", "apt-2": "50"})
	items := []settlement.CostLineItem{areaItem("maintenance", "1000.00", period)}

	result, err := settlement.AllocateOperatingCosts(items, tenants, apts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	full := result["t-full"].TotalCost
	half := result["t-half"].TotalCost

	if !full.GreaterThan(half) {
		t.Errorf("full-year tenant should pay more: %s vs %s", full, half)
	}

	sum := full.Add(half)
	drift := sum.Sub(dec("1000.00")).Abs()
	if drift.GreaterThan(dec("0.01")) {
		t.Errorf("shares drift from item amount by %s", drift)
	}
}

func TestAllocate_ResidualCents_Conservation(t *testing.T) {
	// GIVEN: 100.00 split across three identical tenants (33.333...)
	// WHEN: Allocating
	// THEN: Rounded totals sum within tenants × half a minor unit of the
	//       item amount, and never silently exceed it

	period := settlement.CalendarYear(2023)
	tenants := []settlement.Tenant{
		tenant("t-1", "apt-1", date(2020, time.January, 1), nil),
		tenant("t-2", "apt-2", date(2020, time.January, 1), nil),
		tenant("t-3", "apt-3", date(2020, time.January, 1), nil),
	}
	apts := apartments(map[string]string{"apt-1": "50", "apt-2": "50", "apt-3": "50"})
	items := []settlement.CostLineItem{areaItem("insurance", "100.00", period)}

	result, err := settlement.AllocateOperatingCosts(items, tenants, apts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	sum := decimal.Zero
	for _, oc := range result {
		sum = sum.Add(oc.TotalCost)
	}
	tolerance := dec("0.005").Mul(decimal.NewFromInt(3))
	if sum.Sub(dec("100.00")).GreaterThan(tolerance) {
		t.Errorf("rounded sum %s exceeds amount beyond tolerance %s", sum, tolerance)
	}
}

func TestAllocate_NoActiveTenants_ItemSkipped(t *testing.T) {
	// GIVEN: A cost item for a period nobody occupied
	// WHEN: Allocating
	// THEN: No shares, no error

	tenants := []settlement.Tenant{
		tenant("t-1", "apt-1", date(2023, time.June, 1), nil),
	}
	apts := apartments(map[string]string{"apt-1": "50"})
	items := []settlement.CostLineItem{
		areaItem("heating", "500.00", settlement.Period{
			Start: date(2022, time.January, 1),
			End:   date(2022, time.December, 31),
		}),
	}

	result, err := settlement.AllocateOperatingCosts(items, tenants, apts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected no allocations, got %d", len(result))
	}
}

func TestAllocate_UnknownApartment_Error(t *testing.T) {
	// GIVEN: A tenant referencing a missing apartment on a size-weighted item
	// WHEN: Allocating
	// THEN: UnknownApartmentError surfaces

	period := settlement.CalendarYear(2023)
	tenants := []settlement.Tenant{
		tenant("t-1", "apt-missing", date(2020, time.January, 1), nil),
	}
	items := []settlement.CostLineItem{areaItem("heating", "500.00", period)}

	_, err := settlement.AllocateOperatingCosts(items, tenants, apartments(nil))
	if !errors.Is(err, settlement.ErrUnknownApartment) {
		t.Fatalf("expected ErrUnknownApartment, got %v", err)
	}
}

func TestAllocate_ConsumptionItems_NotAllocatedHere(t *testing.T) {
	// GIVEN: Only a consumption-keyed (water) item
	// WHEN: Allocating operating costs
	// THEN: Nothing is allocated; water billing is metered separately

	period := settlement.CalendarYear(2023)
	tenants := []settlement.Tenant{
		tenant("t-1", "apt-1", date(2020, time.January, 1), nil),
	}
	apts := apartments(map[string]string{"apt-1": "50"})
	items := []settlement.CostLineItem{{
		Category: "water",
		Key:      settlement.KeyConsumption,
		Amount:   dec("800.00"),
		Period:   period,
	}}

	result, err := settlement.AllocateOperatingCosts(items, tenants, apts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("expected no operating allocation for water, got %d", len(result))
	}
}

func TestAllocate_MultipleItems_PerCategoryBreakdown(t *testing.T) {
	// GIVEN: Two items of different categories for one tenant
	// WHEN: Allocating
	// THEN: The breakdown lists both categories, sorted, and the total is
	//       the rounded sum

	period := settlement.CalendarYear(2023)
	tenants := []settlement.Tenant{
		tenant("t-1", "apt-1", date(2020, time.January, 1), nil),
	}
	apts := apartments(map[string]string{"apt-1": "50"})
	items := []settlement.CostLineItem{
		areaItem("heating", "700.00", period),
		areaItem("cleaning", "120.50", period),
	}

	result, err := settlement.AllocateOperatingCosts(items, tenants, apts)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	oc := result["t-1"]
	if len(oc.Items) != 2 {
		t.Fatalf("expected 2 categories, got %d", len(oc.Items))
	}
	if oc.Items[0].Category != "cleaning" || oc.Items[1].Category != "heating" {
		t.Errorf("expected sorted categories, got %v", oc.Items)
	}
	if !oc.TotalCost.Equal(dec("820.50")) {
		t.Errorf("expected total 820.50, got %s", oc.TotalCost)
	}
}
