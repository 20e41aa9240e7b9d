/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for testing and demos. Each scenario creates apartments, tenants,
	cost items, meter readings, charges, and ledger entries that
	demonstrate specific engine features.

AVAILABLE SCENARIOS:

	two-tenant-building: Full-year tenant plus mid-year move-in, all three
	                     allocation keys, clean ledger
	vacancy-gap:         Apartment vacant between tenancies; the vacancy
	                     share of costs stays unallocated
	messy-ledger:        Malformed ledger dates/amounts and undated
	                     charges; shows zero-coercion and fallback order

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Register apartments and tenants
 3. Record cost items for the billing year
 4. Import meter readings
 5. Record expected charges and ledger entries

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "two-tenant-building"}

NOTE:

	Scenarios reset the database. Only use in development/demo
	environments.

SEE ALSO:
  - handlers.go: Shares the Handler context
  - settlement/engine.go: What the seeded data feeds
*/
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/shopspring/decimal"

	"github.com/hauskit/settlement-engine/settlement"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "two-tenant-building",
		Name:        "Two-Tenant Building",
		Description: "Full-year tenant plus mid-year move-in; heating by area, cleaning by occupancy, water by consumption",
	},
	{
		ID:          "vacancy-gap",
		Name:        "Vacancy Gap",
		Description: "Apartment vacant between tenancies; vacancy share of costs stays with the landlord",
	},
	{
		ID:          "messy-ledger",
		Name:        "Messy Ledger",
		Description: "Malformed payment dates and amounts, undated base charges; demonstrates zero-coercion",
	},
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	if h.currentScenario == "" {
		writeJSON(w, http.StatusOK, nil)
		return
	}
	for _, s := range scenarios {
		if s.ID == h.currentScenario {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and seeds the selected scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req LoadScenarioRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var loader func(context.Context, *Handler) error
	switch req.ScenarioID {
	case "two-tenant-building":
		loader = loadTwoTenantBuilding
	case "vacancy-gap":
		loader = loadVacancyGap
	case "messy-ledger":
		loader = loadMessyLedger
	default:
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown scenario %q", req.ScenarioID), nil)
		return
	}

	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	if err := loader(ctx, h); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load scenario", err)
		return
	}

	h.currentScenario = req.ScenarioID
	writeJSON(w, http.StatusOK, map[string]string{"loaded": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

// loadTwoTenantBuilding seeds the canonical demo: Anna occupies apt-1
// (60 m²) all of 2023, Bruno moves into apt-2 (40 m²) on July 1. Heating
// splits by heated area, cleaning by occupancy, water by metered
// consumption. Both pay 80/month operating prepayments while present.
func loadTwoTenantBuilding(ctx context.Context, h *Handler) error {
	if err := seedBuilding(ctx, h); err != nil {
		return err
	}

	if err := h.Store.SaveTenant(ctx, settlement.Tenant{
		ID: "t-anna", ApartmentID: "apt-1", Name: "Anna Keller",
		MoveIn: settlement.NewDate(2022, 1, 1),
	}); err != nil {
		return err
	}
	if err := h.Store.SaveTenant(ctx, settlement.Tenant{
		ID: "t-bruno", ApartmentID: "apt-2", Name: "Bruno Weiss",
		MoveIn: settlement.NewDate(2023, 7, 1),
	}); err != nil {
		return err
	}

	if err := seedCostItems(ctx, h); err != nil {
		return err
	}
	if err := seedReadings(ctx, h); err != nil {
		return err
	}

	// Expected charges: rent and operating per tenant
	for _, c := range []struct {
		tenant, category, from, amount string
	}{
		{"t-anna", "rent", "2022-01-01", "650"},
		{"t-anna", "operating", "2022-01-01", "80"},
		{"t-bruno", "rent", "2023-07-01", "520"},
		{"t-bruno", "operating", "2023-07-01", "80"},
	} {
		if err := h.Store.SaveCharge(ctx, settlement.TenantID(c.tenant),
			settlement.PaymentCategory(c.category), c.from, c.amount); err != nil {
			return err
		}
	}

	// Clean ledger: every month paid in full
	if err := seedMonthlyPayments(ctx, h, "t-anna", 2023, 1, 12, "650", "80"); err != nil {
		return err
	}
	return seedMonthlyPayments(ctx, h, "t-bruno", 2023, 7, 12, "520", "80")
}

// loadVacancyGap seeds apt-2 with a move-out on June 30 and a successor
// starting September 1. July and August cost shares for apt-2 stay
// unallocated.
func loadVacancyGap(ctx context.Context, h *Handler) error {
	if err := seedBuilding(ctx, h); err != nil {
		return err
	}

	if err := h.Store.SaveTenant(ctx, settlement.Tenant{
		ID: "t-anna", ApartmentID: "apt-1", Name: "Anna Keller",
		MoveIn: settlement.NewDate(2022, 1, 1),
	}); err != nil {
		return err
	}
	moveOut := settlement.NewDate(2023, 6, 30)
	if err := h.Store.SaveTenant(ctx, settlement.Tenant{
		ID: "t-carla", ApartmentID: "apt-2", Name: "Carla Brandt",
		MoveIn: settlement.NewDate(2021, 5, 1), MoveOut: &moveOut,
	}); err != nil {
		return err
	}
	if err := h.Store.SaveTenant(ctx, settlement.Tenant{
		ID: "t-dario", ApartmentID: "apt-2", Name: "Dario Lange",
		MoveIn: settlement.NewDate(2023, 9, 1),
	}); err != nil {
		return err
	}

	if err := seedCostItems(ctx, h); err != nil {
		return err
	}
	if err := seedReadings(ctx, h); err != nil {
		return err
	}

	if err := seedMonthlyPayments(ctx, h, "t-anna", 2023, 1, 12, "650", "80"); err != nil {
		return err
	}
	if err := seedMonthlyPayments(ctx, h, "t-carla", 2023, 1, 6, "500", "75"); err != nil {
		return err
	}
	return seedMonthlyPayments(ctx, h, "t-dario", 2023, 9, 12, "540", "85")
}

// loadMessyLedger seeds deliberately bad data: an impossible payment
// date, a non-numeric amount, and an undated base rent charge that a
// later dated charge supersedes.
func loadMessyLedger(ctx context.Context, h *Handler) error {
	if err := seedBuilding(ctx, h); err != nil {
		return err
	}

	if err := h.Store.SaveTenant(ctx, settlement.Tenant{
		ID: "t-anna", ApartmentID: "apt-1", Name: "Anna Keller",
		MoveIn: settlement.NewDate(2023, 1, 1),
	}); err != nil {
		return err
	}

	if err := seedCostItems(ctx, h); err != nil {
		return err
	}
	if err := seedReadings(ctx, h); err != nil {
		return err
	}

	// Undated base charge superseded by a dated raise in March
	if err := h.Store.SaveCharge(ctx, "t-anna", settlement.PaymentRent, "", "600"); err != nil {
		return err
	}
	if err := h.Store.SaveCharge(ctx, "t-anna", settlement.PaymentRent, "2023-03-01", "650"); err != nil {
		return err
	}
	if err := h.Store.SaveCharge(ctx, "t-anna", settlement.PaymentOperating, "", "80"); err != nil {
		return err
	}

	// Ledger rows with upstream data-quality problems
	for _, p := range []struct {
		category, date, amount string
	}{
		{"rent", "2023-01-15", "600"},
		{"rent", "2023-02-31", "600"}, // impossible date, never attributed
		{"rent", "2023-03-15", "n/a"}, // unparseable amount, counts as zero
		{"rent", "2023-04-15", "650"},
		{"operating", "2023-01-15", "80"},
		{"operating", "", "80"}, // undated, never attributed
	} {
		if err := h.Store.AppendPayment(ctx, "t-anna",
			settlement.PaymentCategory(p.category), p.date, p.amount); err != nil {
			return err
		}
	}
	return nil
}

// =============================================================================
// SHARED SEED HELPERS
// =============================================================================

func seedBuilding(ctx context.Context, h *Handler) error {
	if err := h.Store.SaveApartment(ctx, settlement.Apartment{
		ID: "apt-1", BuildingID: "bldg-1", Size: decimal.NewFromInt(60),
	}); err != nil {
		return err
	}
	return h.Store.SaveApartment(ctx, settlement.Apartment{
		ID: "apt-2", BuildingID: "bldg-1", Size: decimal.NewFromInt(40),
	})
}

func seedCostItems(ctx context.Context, h *Handler) error {
	year := settlement.CalendarYear(2023)
	items := []settlement.CostLineItem{
		{Category: "heating", Key: settlement.KeyAreaOccupancy,
			Amount: decimal.NewFromInt(1200), Period: year},
		{Category: "cleaning", Key: settlement.KeyOccupancy,
			Amount: decimal.NewFromInt(360), Period: year},
		{Category: "water", Key: settlement.KeyConsumption,
			Amount: decimal.NewFromInt(500), Period: year},
	}
	for _, item := range items {
		if _, err := h.Store.SaveCostItem(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func seedReadings(ctx context.Context, h *Handler) error {
	readings := []settlement.WaterMeterReading{
		{MeterID: "m-1", ApartmentID: "apt-1",
			ReadAt: settlement.NewDate(2023, 1, 1), Value: decimal.NewFromInt(100)},
		{MeterID: "m-1", ApartmentID: "apt-1",
			ReadAt: settlement.NewDate(2023, 12, 31), Value: decimal.NewFromInt(160)},
		{MeterID: "m-2", ApartmentID: "apt-2",
			ReadAt: settlement.NewDate(2023, 1, 1), Value: decimal.NewFromInt(200)},
		{MeterID: "m-2", ApartmentID: "apt-2",
			ReadAt: settlement.NewDate(2023, 12, 31), Value: decimal.NewFromInt(240)},
	}
	return h.Store.SaveReadingsBatch(ctx, readings)
}

// seedMonthlyPayments appends one rent and one operating payment on the
// 15th of each month in [fromMonth, toMonth] of the given year.
func seedMonthlyPayments(ctx context.Context, h *Handler, tenant string, year, fromMonth, toMonth int, rent, operating string) error {
	for m := fromMonth; m <= toMonth; m++ {
		date := fmt.Sprintf("%04d-%02d-15", year, m)
		if err := h.Store.AppendPayment(ctx, settlement.TenantID(tenant),
			settlement.PaymentRent, date, rent); err != nil {
			return err
		}
		if err := h.Store.AppendPayment(ctx, settlement.TenantID(tenant),
			settlement.PaymentOperating, date, operating); err != nil {
			return err
		}
	}
	return nil
}
