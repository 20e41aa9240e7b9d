package sqlite_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hauskit/settlement-engine/settlement"
	"github.com/hauskit/settlement-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *sqlite.Store {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func testReading(meter string, apt string, date settlement.Date, value string) settlement.WaterMeterReading {
	return settlement.WaterMeterReading{
		MeterID:     settlement.MeterID(meter),
		ApartmentID: settlement.ApartmentID(apt),
		ReadAt:      date,
		Value:       decimal.RequireFromString(value),
	}
}

// =============================================================================
// ROSTER ROUND-TRIPS
// =============================================================================

func TestSaveTenant_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	moveOut := settlement.NewDate(2023, 6, 30)
	tenant := settlement.Tenant{
		ID:          "t-anna",
		ApartmentID: "apt-1",
		Name:        "Anna",
		MoveIn:      settlement.NewDate(2022, 1, 1),
		MoveOut:     &moveOut,
	}
	require.NoError(t, store.SaveTenant(ctx, tenant))

	got, err := store.GetTenant(ctx, "t-anna")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tenant.Name, got.Name)
	assert.True(t, got.MoveIn.Equal(tenant.MoveIn))
	require.NotNil(t, got.MoveOut)
	assert.True(t, got.MoveOut.Equal(moveOut))
}

func TestSaveTenant_OpenTenancyHasNilMoveOut(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveTenant(ctx, settlement.Tenant{
		ID:          "t-bruno",
		ApartmentID: "apt-2",
		Name:        "Bruno",
		MoveIn:      settlement.NewDate(2023, 7, 1),
	}))

	got, err := store.GetTenant(ctx, "t-bruno")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Nil(t, got.MoveOut)
}

func TestGetTenant_MissingReturnsNil(t *testing.T) {
	store := newTestStore(t)

	got, err := store.GetTenant(context.Background(), "t-nobody")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestSaveApartment_UpsertReplacesSize(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	apt := settlement.Apartment{ID: "apt-1", BuildingID: "bldg-1", Size: decimal.NewFromInt(60)}
	require.NoError(t, store.SaveApartment(ctx, apt))

	apt.Size = decimal.NewFromInt(65)
	require.NoError(t, store.SaveApartment(ctx, apt))

	apartments, err := store.ListApartments(ctx)
	require.NoError(t, err)
	require.Len(t, apartments, 1)
	assert.True(t, apartments[0].Size.Equal(decimal.NewFromInt(65)))
}

// =============================================================================
// COST ITEMS - Period overlap filter
// =============================================================================

func TestListCostItems_FiltersByPeriodOverlap(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// GIVEN: One item inside 2023, one entirely in 2022
	_, err := store.SaveCostItem(ctx, settlement.CostLineItem{
		Category: "heating",
		Key:      settlement.KeyAreaOccupancy,
		Amount:   decimal.NewFromInt(1200),
		Period:   settlement.CalendarYear(2023),
	})
	require.NoError(t, err)
	_, err = store.SaveCostItem(ctx, settlement.CostLineItem{
		Category: "heating",
		Key:      settlement.KeyAreaOccupancy,
		Amount:   decimal.NewFromInt(1100),
		Period:   settlement.CalendarYear(2022),
	})
	require.NoError(t, err)

	// WHEN: Listing for 2023
	items, err := store.ListCostItems(ctx, settlement.CalendarYear(2023))
	require.NoError(t, err)

	// THEN: Only the overlapping item comes back
	require.Len(t, items, 1)
	assert.True(t, items[0].Amount.Equal(decimal.NewFromInt(1200)))
}

// =============================================================================
// METER READINGS - Batch writes and idempotency
// =============================================================================

func TestSaveReadingsBatch_ResubmissionIsNoOp(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	batch := []settlement.WaterMeterReading{
		testReading("m-1", "apt-1", settlement.NewDate(2023, 1, 1), "100"),
		testReading("m-1", "apt-1", settlement.NewDate(2023, 12, 31), "160"),
	}

	require.NoError(t, store.SaveReadingsBatch(ctx, batch))
	// Simulates a retried import after a lost response.
	require.NoError(t, store.SaveReadingsBatch(ctx, batch))

	readings, err := store.ListReadings(ctx)
	require.NoError(t, err)
	assert.Len(t, readings, 2)
}

func TestSaveReadingsBatch_LargerThanOneChunk(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// 53 readings forces three chunks
	var batch []settlement.WaterMeterReading
	for i := 0; i < 53; i++ {
		batch = append(batch, testReading(
			fmt.Sprintf("m-%d", i), "apt-1", settlement.NewDate(2023, 6, 1), "100"))
	}

	require.NoError(t, store.SaveReadingsBatch(ctx, batch))

	readings, err := store.ListReadings(ctx)
	require.NoError(t, err)
	assert.Len(t, readings, 53)
}

func TestSaveReadingsBatch_CustomChunkSize(t *testing.T) {
	store, err := sqlite.NewWithOptions(":memory:", sqlite.Options{BatchChunkSize: 2})
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	ctx := context.Background()

	var batch []settlement.WaterMeterReading
	for i := 0; i < 5; i++ {
		batch = append(batch, testReading(
			fmt.Sprintf("m-%d", i), "apt-1", settlement.NewDate(2023, 6, 1), "100"))
	}

	require.NoError(t, store.SaveReadingsBatch(ctx, batch))

	readings, err := store.ListReadings(ctx)
	require.NoError(t, err)
	assert.Len(t, readings, 5)
}

func TestListReadings_SortedByMeterThenDate(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveReadingsBatch(ctx, []settlement.WaterMeterReading{
		testReading("m-1", "apt-1", settlement.NewDate(2023, 12, 31), "160"),
		testReading("m-1", "apt-1", settlement.NewDate(2023, 1, 1), "100"),
	}))

	readings, err := store.ListReadings(ctx)
	require.NoError(t, err)
	require.Len(t, readings, 2)
	assert.True(t, readings[0].ReadAt.Before(readings[1].ReadAt))
}

// =============================================================================
// PAYMENT LEDGER - Append-only, raw values preserved
// =============================================================================

func TestAppendPayment_MalformedValuesSurviveAsInvalid(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.AppendPayment(ctx, "t-anna", settlement.PaymentRent, "2023-02-31", "abc"))
	require.NoError(t, store.AppendPayment(ctx, "t-anna", settlement.PaymentRent, "2023-03-01", "500"))

	payments, err := store.ListPayments(ctx)
	require.NoError(t, err)
	require.Len(t, payments, 2)

	// The malformed row parses to invalid optionals, not an error
	assert.False(t, payments[0].Date.Valid)
	assert.False(t, payments[0].Amount.Valid)
	assert.True(t, payments[1].Date.Valid)
	assert.True(t, payments[1].Amount.Value.Equal(decimal.NewFromInt(500)))
}

func TestAppendPayment_DuplicatesAreKept(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	// Two identical rows are two real payments; the ledger never dedupes.
	require.NoError(t, store.AppendPayment(ctx, "t-anna", settlement.PaymentOperating, "2023-03-01", "80"))
	require.NoError(t, store.AppendPayment(ctx, "t-anna", settlement.PaymentOperating, "2023-03-01", "80"))

	payments, err := store.ListPayments(ctx)
	require.NoError(t, err)
	assert.Len(t, payments, 2)
}

// =============================================================================
// CHARGES
// =============================================================================

func TestSaveCharge_UndatedChargeRoundTrips(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveCharge(ctx, "t-anna", settlement.PaymentRent, "", "500"))

	charges, err := store.ListCharges(ctx)
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.False(t, charges[0].EffectiveFrom.Valid)
	assert.True(t, charges[0].Amount.Value.Equal(decimal.NewFromInt(500)))
}

// =============================================================================
// SETTLEMENT RUNS
// =============================================================================

func TestSaveRun_RoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	report := &settlement.Report{
		Period:     settlement.CalendarYear(2023),
		TotalCosts: decimal.RequireFromString("892.20"),
	}

	id, err := store.SaveRun(ctx, report)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	runs, err := store.ListRuns(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, id, runs[0].ID)
	assert.Equal(t, "2023-01-01", runs[0].PeriodStart)
	require.NotNil(t, runs[0].Report)
	assert.True(t, runs[0].Report.TotalCosts.Equal(report.TotalCosts))
	assert.True(t, runs[0].Report.Period.Start.Equal(report.Period.Start))
}

// =============================================================================
// SNAPSHOT LOADER
// =============================================================================

func TestLoadSnapshot_AssemblesAllInputs(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SaveApartment(ctx, settlement.Apartment{
		ID: "apt-1", BuildingID: "bldg-1", Size: decimal.NewFromInt(60),
	}))
	require.NoError(t, store.SaveTenant(ctx, settlement.Tenant{
		ID: "t-anna", ApartmentID: "apt-1", Name: "Anna",
		MoveIn: settlement.NewDate(2022, 1, 1),
	}))
	_, err := store.SaveCostItem(ctx, settlement.CostLineItem{
		Category: "heating", Key: settlement.KeyAreaOccupancy,
		Amount: decimal.NewFromInt(1200), Period: settlement.CalendarYear(2023),
	})
	require.NoError(t, err)
	require.NoError(t, store.SaveReading(ctx,
		testReading("m-1", "apt-1", settlement.NewDate(2023, 1, 1), "100")))
	require.NoError(t, store.AppendPayment(ctx, "t-anna", settlement.PaymentOperating, "2023-03-01", "80"))
	require.NoError(t, store.SaveCharge(ctx, "t-anna", settlement.PaymentRent, "2023-01-01", "500"))

	snap, err := store.LoadSnapshot(ctx, settlement.CalendarYear(2023))
	require.NoError(t, err)

	assert.Len(t, snap.Tenants, 1)
	assert.Len(t, snap.Apartments, 1)
	assert.Len(t, snap.CostItems, 1)
	assert.Len(t, snap.MeterReadings, 1)
	assert.Len(t, snap.Payments, 1)
	assert.Len(t, snap.Charges, 1)
	assert.True(t, snap.Period.Start.Equal(settlement.NewDate(2023, 1, 1)))
}
