/*
handlers.go - HTTP API handlers for the settlement engine

PURPOSE:
  Exposes the settlement engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Roster:
    GET    /api/apartments                  List apartments
    POST   /api/apartments                  Register apartment
    GET    /api/tenants                     List tenants
    POST   /api/tenants                     Register tenant
    GET    /api/tenants/{id}                Get tenant details
    GET    /api/tenants/{id}/missed-payments Payment-history analysis

  Billing data:
    GET    /api/cost-items?year=YYYY        List cost items for a year
    POST   /api/cost-items                  Record cost item
    POST   /api/meter-readings              Record one reading
    POST   /api/meter-readings/batch        Chunked idempotent import
    GET    /api/payments?tenant_id=...      List ledger entries
    POST   /api/payments                    Append ledger entry
    GET    /api/charges                     List expected charges
    POST   /api/charges                     Record expected charge

  Settlements:
    POST   /api/settlements/run             Run and persist a settlement
    GET    /api/settlements/runs            List persisted runs

  Scenarios:
    GET    /api/scenarios                   List demo scenarios
    POST   /api/scenarios/load              Load a demo scenario

ARCHITECTURE:
  Handler struct holds all dependencies:
  - Store: Database access
  - Profile: Billing profile (buffer rate, category -> allocation key)

REQUEST FLOW:
  1. Parse HTTP request
  2. Validate input
  3. Call domain logic (engine, analyzer)
  4. Serialize response
  5. Handle errors

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 404: Resource not found
  - 500: Internal errors (including allocation drift, which means the
         engine produced inconsistent numbers and must not be masked)

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/hauskit/settlement-engine/factory"
	"github.com/hauskit/settlement-engine/settlement"
	"github.com/hauskit/settlement-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store   *sqlite.Store
	Profile *factory.Profile

	// Track currently loaded scenario
	currentScenario string
}

// NewHandler creates a new handler with the given store and billing
// profile. A nil profile falls back to the standard preset.
func NewHandler(store *sqlite.Store, profile *factory.Profile) *Handler {
	if profile == nil {
		p, err := factory.NewProfileFactory().ParseProfile(
			factory.StandardProfileJSON("profile-standard", "Standard operating-cost profile", 0.10))
		if err != nil {
			panic(fmt.Sprintf("standard billing profile does not parse: %v", err))
		}
		profile = p
	}
	return &Handler{Store: store, Profile: profile}
}

// =============================================================================
// APARTMENT HANDLERS
// =============================================================================

// ListApartments returns all apartments.
func (h *Handler) ListApartments(w http.ResponseWriter, r *http.Request) {
	apartments, err := h.Store.ListApartments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list apartments", err)
		return
	}

	dtos := make([]ApartmentDTO, len(apartments))
	for i, a := range apartments {
		dtos[i] = toApartmentDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateApartment registers an apartment.
func (h *Handler) CreateApartment(w http.ResponseWriter, r *http.Request) {
	var req CreateApartmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "Apartment ID is required", nil)
		return
	}
	size := settlement.ParseMoney(req.Size)
	if !size.IsPositive() {
		writeError(w, http.StatusBadRequest, "Apartment size must be a positive number", nil)
		return
	}

	apt := settlement.Apartment{
		ID:         settlement.ApartmentID(req.ID),
		BuildingID: settlement.BuildingID(req.BuildingID),
		Size:       size.Value,
	}
	if err := h.Store.SaveApartment(r.Context(), apt); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save apartment", err)
		return
	}
	writeJSON(w, http.StatusCreated, toApartmentDTO(apt))
}

// =============================================================================
// TENANT HANDLERS
// =============================================================================

// ListTenants returns all tenants.
func (h *Handler) ListTenants(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.Store.ListTenants(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list tenants", err)
		return
	}

	dtos := make([]TenantDTO, len(tenants))
	for i, t := range tenants {
		dtos[i] = toTenantDTO(t)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateTenant registers a tenant.
func (h *Handler) CreateTenant(w http.ResponseWriter, r *http.Request) {
	var req CreateTenantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.ApartmentID == "" {
		writeError(w, http.StatusBadRequest, "Tenant ID and apartment ID are required", nil)
		return
	}
	moveIn := settlement.ParseDate(req.MoveIn)
	if !moveIn.Valid {
		writeError(w, http.StatusBadRequest, "move_in must be a valid YYYY-MM-DD date", nil)
		return
	}

	tenant := settlement.Tenant{
		ID:          settlement.TenantID(req.ID),
		ApartmentID: settlement.ApartmentID(req.ApartmentID),
		Name:        req.Name,
		MoveIn:      moveIn.Date,
	}
	if req.MoveOut != "" {
		moveOut := settlement.ParseDate(req.MoveOut)
		if !moveOut.Valid {
			writeError(w, http.StatusBadRequest, "move_out must be a valid YYYY-MM-DD date", nil)
			return
		}
		if moveOut.Date.Before(moveIn.Date) {
			writeError(w, http.StatusBadRequest, "move_out must not precede move_in", nil)
			return
		}
		d := moveOut.Date
		tenant.MoveOut = &d
	}

	if err := h.Store.SaveTenant(r.Context(), tenant); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save tenant", err)
		return
	}
	writeJSON(w, http.StatusCreated, toTenantDTO(tenant))
}

// GetTenant returns one tenant.
func (h *Handler) GetTenant(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	tenant, err := h.Store.GetTenant(r.Context(), settlement.TenantID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get tenant", err)
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "Tenant not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toTenantDTO(*tenant))
}

// GetMissedPayments runs the payment-history analysis for one tenant.
// GET /api/tenants/{id}/missed-payments?as_of=YYYY-MM-DD&details=true
func (h *Handler) GetMissedPayments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	tenant, err := h.Store.GetTenant(ctx, settlement.TenantID(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to get tenant", err)
		return
	}
	if tenant == nil {
		writeError(w, http.StatusNotFound, "Tenant not found", nil)
		return
	}

	asOf := settlement.Today()
	if raw := r.URL.Query().Get("as_of"); raw != "" {
		dv := settlement.ParseDate(raw)
		if !dv.Valid {
			writeError(w, http.StatusBadRequest, "as_of must be a valid YYYY-MM-DD date", nil)
			return
		}
		asOf = dv.Date
	}
	opts := settlement.AnalyzerOptions{
		CollectDetails: r.URL.Query().Get("details") == "true",
	}

	charges, err := h.Store.ListCharges(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list charges", err)
		return
	}
	ledger, err := h.Store.ListPayments(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	report := settlement.AnalyzeMissedPayments(*tenant, charges, ledger, asOf, opts)
	writeJSON(w, http.StatusOK, toMissedPaymentsDTO(report))
}

// =============================================================================
// COST ITEM HANDLERS
// =============================================================================

// ListCostItems returns cost items overlapping a calendar year.
// GET /api/cost-items?year=2023
func (h *Handler) ListCostItems(w http.ResponseWriter, r *http.Request) {
	year := settlement.Today().Year()
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "year must be an integer", err)
			return
		}
		year = parsed
	}

	items, err := h.Store.ListCostItems(r.Context(), settlement.CalendarYear(year))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list cost items", err)
		return
	}

	dtos := make([]CostItemDTO, len(items))
	for i, item := range items {
		dtos[i] = toCostItemDTO(item)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCostItem records a cost line item. When allocation_key is
// omitted the billing profile decides from the category.
func (h *Handler) CreateCostItem(w http.ResponseWriter, r *http.Request) {
	var req CreateCostItemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Category == "" {
		writeError(w, http.StatusBadRequest, "Category is required", nil)
		return
	}
	amount := settlement.ParseMoney(req.Amount)
	if !amount.Valid {
		writeError(w, http.StatusBadRequest, "amount must be a decimal number", nil)
		return
	}
	start := settlement.ParseDate(req.PeriodStart)
	end := settlement.ParseDate(req.PeriodEnd)
	if !start.Valid || !end.Valid {
		writeError(w, http.StatusBadRequest, "period_start and period_end must be valid YYYY-MM-DD dates", nil)
		return
	}
	period := settlement.Period{Start: start.Date, End: end.Date}
	if !period.IsValid() {
		writeError(w, http.StatusBadRequest, "period_end must not precede period_start", nil)
		return
	}

	key := h.Profile.KeyFor(settlement.CostCategory(req.Category))
	if req.AllocationKey != "" {
		switch settlement.AllocationKey(req.AllocationKey) {
		case settlement.KeyAreaOccupancy, settlement.KeyOccupancy, settlement.KeyConsumption:
			key = settlement.AllocationKey(req.AllocationKey)
		default:
			writeError(w, http.StatusBadRequest, "Unknown allocation key", nil)
			return
		}
	}

	item := settlement.CostLineItem{
		Category: settlement.CostCategory(req.Category),
		Key:      key,
		Amount:   amount.Value,
		Period:   period,
	}
	if _, err := h.Store.SaveCostItem(r.Context(), item); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save cost item", err)
		return
	}
	writeJSON(w, http.StatusCreated, toCostItemDTO(item))
}

// =============================================================================
// METER READING HANDLERS
// =============================================================================

// CreateReading records one water meter reading.
func (h *Handler) CreateReading(w http.ResponseWriter, r *http.Request) {
	var req MeterReadingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	reading, err := parseReading(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	if err := h.Store.SaveReading(r.Context(), reading); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save reading", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ImportReadings imports a batch of readings. Safe to resubmit: rows
// already written are skipped by their idempotency key.
func (h *Handler) ImportReadings(w http.ResponseWriter, r *http.Request) {
	var req BatchReadingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if len(req.Readings) == 0 {
		writeError(w, http.StatusBadRequest, "readings must not be empty", nil)
		return
	}

	readings := make([]settlement.WaterMeterReading, len(req.Readings))
	for i, rr := range req.Readings {
		reading, err := parseReading(rr)
		if err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
		readings[i] = reading
	}

	if err := h.Store.SaveReadingsBatch(r.Context(), readings); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to import readings", err)
		return
	}
	writeJSON(w, http.StatusOK, BatchReadingsResponse{Accepted: len(readings)})
}

func parseReading(req MeterReadingRequest) (settlement.WaterMeterReading, error) {
	if req.MeterID == "" || req.ApartmentID == "" {
		return settlement.WaterMeterReading{}, fmt.Errorf("meter_id and apartment_id are required")
	}
	readAt := settlement.ParseDate(req.ReadAt)
	if !readAt.Valid {
		return settlement.WaterMeterReading{}, fmt.Errorf("read_at must be a valid YYYY-MM-DD date")
	}
	value := settlement.ParseMoney(req.Value)
	if !value.Valid || value.Value.IsNegative() {
		return settlement.WaterMeterReading{}, fmt.Errorf("value must be a non-negative decimal")
	}
	return settlement.WaterMeterReading{
		MeterID:     settlement.MeterID(req.MeterID),
		ApartmentID: settlement.ApartmentID(req.ApartmentID),
		ReadAt:      readAt.Date,
		Value:       value.Value,
	}, nil
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// AppendPayment appends one ledger entry. Raw date/amount strings are
// accepted as-is; data quality is resolved at calculation time.
func (h *Handler) AppendPayment(w http.ResponseWriter, r *http.Request) {
	var req AppendPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}
	category, err := parsePaymentCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.Store.AppendPayment(r.Context(),
		settlement.TenantID(req.TenantID), category, req.Date, req.Amount); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to append payment", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListPayments returns ledger entries, optionally filtered by tenant.
// GET /api/payments?tenant_id=t-anna
func (h *Handler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Store.ListPayments(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list payments", err)
		return
	}

	tenantFilter := r.URL.Query().Get("tenant_id")
	dtos := []PaymentDTO{}
	for _, p := range payments {
		if tenantFilter != "" && string(p.TenantID) != tenantFilter {
			continue
		}
		dtos = append(dtos, toPaymentDTO(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCharge records an expected monthly charge.
func (h *Handler) CreateCharge(w http.ResponseWriter, r *http.Request) {
	var req CreateChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.TenantID == "" {
		writeError(w, http.StatusBadRequest, "tenant_id is required", nil)
		return
	}
	category, err := parsePaymentCategory(req.Category)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	if err := h.Store.SaveCharge(r.Context(),
		settlement.TenantID(req.TenantID), category, req.EffectiveFrom, req.Amount); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save charge", err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// ListCharges returns all expected charges.
func (h *Handler) ListCharges(w http.ResponseWriter, r *http.Request) {
	charges, err := h.Store.ListCharges(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list charges", err)
		return
	}

	dtos := []CreateChargeRequest{}
	for _, c := range charges {
		dto := CreateChargeRequest{
			TenantID: string(c.TenantID),
			Category: string(c.Category),
		}
		if c.EffectiveFrom.Valid {
			dto.EffectiveFrom = c.EffectiveFrom.Date.String()
		}
		if c.Amount.Valid {
			dto.Amount = c.Amount.Value.String()
		}
		dtos = append(dtos, dto)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// SETTLEMENT HANDLERS
// =============================================================================

// RunSettlement loads a snapshot, runs the engine, persists the report
// and returns it.
func (h *Handler) RunSettlement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req RunSettlementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var period settlement.Period
	switch {
	case req.Year != 0:
		period = settlement.CalendarYear(req.Year)
	case req.PeriodStart != "" && req.PeriodEnd != "":
		start := settlement.ParseDate(req.PeriodStart)
		end := settlement.ParseDate(req.PeriodEnd)
		if !start.Valid || !end.Valid {
			writeError(w, http.StatusBadRequest, "period_start and period_end must be valid YYYY-MM-DD dates", nil)
			return
		}
		period = settlement.Period{Start: start.Date, End: end.Date}
	default:
		writeError(w, http.StatusBadRequest, "Either year or an explicit period is required", nil)
		return
	}

	snap, err := h.Store.LoadSnapshot(ctx, period)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load snapshot", err)
		return
	}
	if req.AsOf != "" {
		asOf := settlement.ParseDate(req.AsOf)
		if !asOf.Valid {
			writeError(w, http.StatusBadRequest, "as_of must be a valid YYYY-MM-DD date", nil)
			return
		}
		snap.AsOf = asOf.Date
	}

	engine := settlement.NewEngine(h.Profile.Config)
	report, err := engine.Run(snap)
	if err != nil {
		if settlement.IsClientError(err) {
			writeError(w, http.StatusBadRequest, "Settlement rejected", err)
			return
		}
		writeError(w, http.StatusInternalServerError, "Settlement failed", err)
		return
	}

	runID, err := h.Store.SaveRun(ctx, report)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to persist settlement run", err)
		return
	}
	writeJSON(w, http.StatusOK, toReportDTO(runID, report))
}

// ListRuns returns persisted settlement runs, newest first.
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.Store.ListRuns(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list settlement runs", err)
		return
	}

	dtos := []RunDTO{}
	for _, run := range runs {
		dtos = append(dtos, RunDTO{
			ID:          run.ID,
			PeriodStart: run.PeriodStart,
			PeriodEnd:   run.PeriodEnd,
			CreatedAt:   run.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func parsePaymentCategory(raw string) (settlement.PaymentCategory, error) {
	switch settlement.PaymentCategory(raw) {
	case settlement.PaymentRent, settlement.PaymentOperating:
		return settlement.PaymentCategory(raw), nil
	default:
		return "", fmt.Errorf("category must be \"rent\" or \"operating\"")
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
