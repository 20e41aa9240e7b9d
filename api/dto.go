/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY AND DATES:
  Amounts cross the wire as strings ("123.45") so clients never touch
  binary floats. Dates are "YYYY-MM-DD". Ledger requests carry raw
  strings end to end: a malformed upstream date is stored as delivered
  and zero-coerced at calculation time, never rejected at import.

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data
  carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - settlement/types.go: Domain model these map from
*/
package api

import (
	"github.com/hauskit/settlement-engine/settlement"
)

// =============================================================================
// ROSTER TYPES
// =============================================================================

// ApartmentDTO represents an apartment in API responses.
type ApartmentDTO struct {
	ID         string `json:"id"`
	BuildingID string `json:"building_id"`
	Size       string `json:"size"` // m²
}

// CreateApartmentRequest is the request to register an apartment.
type CreateApartmentRequest struct {
	ID         string `json:"id"`
	BuildingID string `json:"building_id"`
	Size       string `json:"size"`
}

// TenantDTO represents a tenant in API responses.
type TenantDTO struct {
	ID          string `json:"id"`
	ApartmentID string `json:"apartment_id"`
	Name        string `json:"name"`
	MoveIn      string `json:"move_in"`
	MoveOut     string `json:"move_out,omitempty"`
}

// CreateTenantRequest is the request to register a tenant.
type CreateTenantRequest struct {
	ID          string `json:"id"`
	ApartmentID string `json:"apartment_id"`
	Name        string `json:"name"`
	MoveIn      string `json:"move_in"`
	MoveOut     string `json:"move_out,omitempty"`
}

// =============================================================================
// COST ITEMS AND READINGS
// =============================================================================

// CostItemDTO represents a cost line item in API responses.
type CostItemDTO struct {
	Category      string `json:"category"`
	AllocationKey string `json:"allocation_key"`
	Amount        string `json:"amount"`
	PeriodStart   string `json:"period_start"`
	PeriodEnd     string `json:"period_end"`
}

// CreateCostItemRequest is the request to record a cost line item.
// AllocationKey may be omitted; the billing profile then decides from
// the category.
type CreateCostItemRequest struct {
	Category      string `json:"category"`
	AllocationKey string `json:"allocation_key,omitempty"`
	Amount        string `json:"amount"`
	PeriodStart   string `json:"period_start"`
	PeriodEnd     string `json:"period_end"`
}

// MeterReadingRequest is one water meter reading.
type MeterReadingRequest struct {
	MeterID     string `json:"meter_id"`
	ApartmentID string `json:"apartment_id"`
	ReadAt      string `json:"read_at"`
	Value       string `json:"value"` // m³, cumulative counter
}

// BatchReadingsRequest imports many readings at once. The import is
// chunked and idempotent server-side, so clients may safely resubmit
// the whole batch after a timeout.
type BatchReadingsRequest struct {
	Readings []MeterReadingRequest `json:"readings"`
}

// BatchReadingsResponse reports how many readings were accepted.
type BatchReadingsResponse struct {
	Accepted int `json:"accepted"`
}

// =============================================================================
// LEDGER TYPES
// =============================================================================

// AppendPaymentRequest appends one ledger entry. Date and Amount are
// raw strings, stored exactly as delivered.
type AppendPaymentRequest struct {
	TenantID string `json:"tenant_id"`
	Category string `json:"category"` // rent, operating
	Date     string `json:"date,omitempty"`
	Amount   string `json:"amount,omitempty"`
}

// PaymentDTO represents a ledger entry in API responses. Invalid raw
// values surface as empty strings plus the *_valid flags.
type PaymentDTO struct {
	TenantID    string `json:"tenant_id"`
	Category    string `json:"category"`
	Date        string `json:"date,omitempty"`
	DateValid   bool   `json:"date_valid"`
	Amount      string `json:"amount,omitempty"`
	AmountValid bool   `json:"amount_valid"`
}

// CreateChargeRequest records an expected monthly charge.
type CreateChargeRequest struct {
	TenantID      string `json:"tenant_id"`
	Category      string `json:"category"`
	EffectiveFrom string `json:"effective_from,omitempty"` // empty = base entry
	Amount        string `json:"amount"`
}

// MissedPaymentDetailDTO is one shortfall month.
type MissedPaymentDetailDTO struct {
	Month    string `json:"month"` // YYYY-MM
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

// MissedPaymentsDTO summarizes a tenant's payment history.
type MissedPaymentsDTO struct {
	TenantID              string                   `json:"tenant_id"`
	MissedRentMonths      int                      `json:"missed_rent_months"`
	MissedOperatingMonths int                      `json:"missed_operating_months"`
	TotalMissedAmount     string                   `json:"total_missed_amount"`
	Details               []MissedPaymentDetailDTO `json:"details,omitempty"`
}

// =============================================================================
// SETTLEMENT TYPES
// =============================================================================

// RunSettlementRequest triggers a settlement run. Either Year or the
// explicit period bounds must be given.
type RunSettlementRequest struct {
	Year        int    `json:"year,omitempty"`
	PeriodStart string `json:"period_start,omitempty"`
	PeriodEnd   string `json:"period_end,omitempty"`
	AsOf        string `json:"as_of,omitempty"` // default: period end
}

// OperatingCostShareDTO is one category share.
type OperatingCostShareDTO struct {
	Category string `json:"category"`
	Amount   string `json:"amount"`
}

// OperatingCostsDTO is the operating-cost component of one result.
type OperatingCostsDTO struct {
	Items     []OperatingCostShareDTO `json:"items"`
	TotalCost string                  `json:"total_cost"`
}

// WaterCostsDTO is the water component of one result.
type WaterCostsDTO struct {
	TotalBuildingCost        string `json:"total_building_cost"`
	TotalBuildingConsumption string `json:"total_building_consumption"`
	PricePerCubicMeter       string `json:"price_per_cubic_meter"`
	TenantConsumption        string `json:"tenant_consumption"`
	TotalCost                string `json:"total_cost"`
}

// MonthlyPaymentDTO is one month's ledger sum.
type MonthlyPaymentDTO struct {
	Month  string `json:"month"` // YYYY-MM
	Amount string `json:"amount"`
}

// PrepaymentsDTO is the prepayment component of one result.
type PrepaymentsDTO struct {
	MonthlyPayments       []MonthlyPaymentDTO `json:"monthly_payments"`
	TotalPrepayments      string              `json:"total_prepayments"`
	AverageMonthlyPayment string              `json:"average_monthly_payment"`
}

// TenantResultDTO is one tenant's settlement result.
type TenantResultDTO struct {
	TenantID            string `json:"tenant_id"`
	ApartmentSize       string `json:"apartment_size"`
	OccupancyPercentage string `json:"occupancy_percentage"`
	DaysOccupied        int    `json:"days_occupied"`
	DaysInPeriod        int    `json:"days_in_period"`

	OperatingCosts OperatingCostsDTO `json:"operating_costs"`
	WaterCosts     WaterCostsDTO     `json:"water_costs"`
	TotalCosts     string            `json:"total_costs"`

	Prepayments PrepaymentsDTO `json:"prepayments"`

	FinalSettlement string `json:"final_settlement"`

	RecommendedMonthlyPrepayment string `json:"recommended_monthly_prepayment"`
	RecommendedAnnualPrepayment  string `json:"recommended_annual_prepayment"`
}

// ReportDTO is the aggregate output of one run.
type ReportDTO struct {
	RunID            string            `json:"run_id,omitempty"`
	PeriodStart      string            `json:"period_start"`
	PeriodEnd        string            `json:"period_end"`
	Results          []TenantResultDTO `json:"results"`
	TotalCosts       string            `json:"total_costs"`
	TotalPrepayments string            `json:"total_prepayments"`
	TotalSettlement  string            `json:"total_settlement"`
}

// RunDTO describes one persisted run.
type RunDTO struct {
	ID          string `json:"id"`
	PeriodStart string `json:"period_start"`
	PeriodEnd   string `json:"period_end"`
	CreatedAt   string `json:"created_at"`
}

// =============================================================================
// SCENARIOS AND ERRORS
// =============================================================================

// ScenarioDTO describes a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

// LoadScenarioRequest selects a scenario to load.
type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id"`
}

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// DOMAIN -> DTO MAPPING
// =============================================================================

func toTenantDTO(t settlement.Tenant) TenantDTO {
	dto := TenantDTO{
		ID:          string(t.ID),
		ApartmentID: string(t.ApartmentID),
		Name:        t.Name,
		MoveIn:      t.MoveIn.String(),
	}
	if t.MoveOut != nil {
		dto.MoveOut = t.MoveOut.String()
	}
	return dto
}

func toApartmentDTO(a settlement.Apartment) ApartmentDTO {
	return ApartmentDTO{
		ID:         string(a.ID),
		BuildingID: string(a.BuildingID),
		Size:       a.Size.String(),
	}
}

func toCostItemDTO(item settlement.CostLineItem) CostItemDTO {
	return CostItemDTO{
		Category:      string(item.Category),
		AllocationKey: string(item.Key),
		Amount:        item.Amount.String(),
		PeriodStart:   item.Period.Start.String(),
		PeriodEnd:     item.Period.End.String(),
	}
}

func toPaymentDTO(p settlement.PaymentRecord) PaymentDTO {
	dto := PaymentDTO{
		TenantID:    string(p.TenantID),
		Category:    string(p.Category),
		DateValid:   p.Date.Valid,
		AmountValid: p.Amount.Valid,
	}
	if p.Date.Valid {
		dto.Date = p.Date.Date.String()
	}
	if p.Amount.Valid {
		dto.Amount = p.Amount.Value.String()
	}
	return dto
}

func toMissedPaymentsDTO(report settlement.MissedPaymentReport) MissedPaymentsDTO {
	dto := MissedPaymentsDTO{
		TenantID:              string(report.TenantID),
		MissedRentMonths:      report.MissedRentMonths,
		MissedOperatingMonths: report.MissedOperatingMonths,
		TotalMissedAmount:     report.TotalMissedAmount.String(),
	}
	for _, d := range report.Details {
		dto.Details = append(dto.Details, MissedPaymentDetailDTO{
			Month:    d.Month.String(),
			Category: string(d.Category),
			Amount:   d.Amount.String(),
		})
	}
	return dto
}

func toTenantResultDTO(res settlement.TenantCalculationResult) TenantResultDTO {
	operating := OperatingCostsDTO{
		Items:     []OperatingCostShareDTO{},
		TotalCost: res.OperatingCosts.TotalCost.String(),
	}
	for _, item := range res.OperatingCosts.Items {
		operating.Items = append(operating.Items, OperatingCostShareDTO{
			Category: string(item.Category),
			Amount:   item.Amount.String(),
		})
	}

	prepayments := PrepaymentsDTO{
		MonthlyPayments:       []MonthlyPaymentDTO{},
		TotalPrepayments:      res.Prepayments.TotalPrepayments.String(),
		AverageMonthlyPayment: res.Prepayments.AverageMonthlyPayment.String(),
	}
	for _, mp := range res.Prepayments.MonthlyPayments {
		prepayments.MonthlyPayments = append(prepayments.MonthlyPayments, MonthlyPaymentDTO{
			Month:  mp.Month.String(),
			Amount: mp.Amount.String(),
		})
	}

	return TenantResultDTO{
		TenantID:            string(res.TenantID),
		ApartmentSize:       res.ApartmentSize.String(),
		OccupancyPercentage: res.OccupancyPercentage.String(),
		DaysOccupied:        res.DaysOccupied,
		DaysInPeriod:        res.DaysInPeriod,
		OperatingCosts:      operating,
		WaterCosts: WaterCostsDTO{
			TotalBuildingCost:        res.WaterCosts.TotalBuildingCost.String(),
			TotalBuildingConsumption: res.WaterCosts.TotalBuildingConsumption.String(),
			PricePerCubicMeter:       res.WaterCosts.PricePerCubicMeter.String(),
			TenantConsumption:        res.WaterCosts.TenantConsumption.String(),
			TotalCost:                res.WaterCosts.TotalCost.String(),
		},
		TotalCosts:                   res.TotalCosts.String(),
		Prepayments:                  prepayments,
		FinalSettlement:              res.FinalSettlement.String(),
		RecommendedMonthlyPrepayment: res.RecommendedMonthlyPrepayment.String(),
		RecommendedAnnualPrepayment:  res.RecommendedAnnualPrepayment.String(),
	}
}

func toReportDTO(runID string, report *settlement.Report) ReportDTO {
	dto := ReportDTO{
		RunID:            runID,
		PeriodStart:      report.Period.Start.String(),
		PeriodEnd:        report.Period.End.String(),
		Results:          []TenantResultDTO{},
		TotalCosts:       report.TotalCosts.String(),
		TotalPrepayments: report.TotalPrepayments.String(),
		TotalSettlement:  report.TotalSettlement.String(),
	}
	for _, res := range report.Results {
		dto.Results = append(dto.Results, toTenantResultDTO(res))
	}
	return dto
}
