/*
errors.go - Centralized error types for the settlement engine

PURPOSE:
  All error types in one place. The engine is deliberately tolerant of
  malformed data (zero-coercion, see types.go), so the errors here mark
  genuine defects: a broken billing period, a missing apartment link, or an
  allocation whose rounded totals drift past the reconciliation tolerance.

USAGE:
  Callers classify with errors.Is:

    if errors.Is(err, settlement.ErrAllocationDrift) {
        // the run is defective, do not persist its results
    }

SEE ALSO:
  - allocate.go: raises AllocationDriftError
  - engine.go:   validates the snapshot before calculating
*/
package settlement

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidPeriod is returned when a billing period is malformed
	// (zero bounds or end before start).
	ErrInvalidPeriod = errors.New("invalid period: end before start")

	// ErrUnknownApartment is returned when a tenant references an apartment
	// missing from the snapshot.
	ErrUnknownApartment = errors.New("tenant references unknown apartment")

	// ErrAllocationDrift is returned when the sum of rounded per-tenant
	// totals exceeds the sum of unrounded item amounts beyond the rounding
	// tolerance. This corrupts the settlement invariant and must surface to
	// the caller, never be absorbed.
	ErrAllocationDrift = errors.New("allocation drift exceeds rounding tolerance")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// AllocationDriftError reports how far the rounded allocation drifted from
// the unrounded item total.
type AllocationDriftError struct {
	Allocated decimal.Decimal // sum of rounded per-tenant totals
	Expected  decimal.Decimal // sum of unrounded item amounts
	Tolerance decimal.Decimal // permitted drift for this tenant count
	Tenants   int
}

func (e *AllocationDriftError) Error() string {
	return fmt.Sprintf("allocation drift: allocated %s vs expected %s (tolerance %s for %d tenants)",
		e.Allocated, e.Expected, e.Tolerance, e.Tenants)
}

func (e *AllocationDriftError) Unwrap() error {
	return ErrAllocationDrift
}

// UnknownApartmentError identifies the offending tenant.
type UnknownApartmentError struct {
	TenantID    TenantID
	ApartmentID ApartmentID
}

func (e *UnknownApartmentError) Error() string {
	return fmt.Sprintf("tenant %s references unknown apartment %s", e.TenantID, e.ApartmentID)
}

func (e *UnknownApartmentError) Unwrap() error {
	return ErrUnknownApartment
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid input rather
// than an engine defect.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidPeriod) ||
		errors.Is(err, ErrUnknownApartment)
}

// IsDefect returns true if the error indicates a corrupted settlement
// invariant. Defective runs must not be persisted.
func IsDefect(err error) bool {
	return errors.Is(err, ErrAllocationDrift)
}
