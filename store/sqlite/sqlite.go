/*
Package sqlite provides SQLite-backed persistence for the settlement
engine's collaborator data.

PURPOSE:
  The engine itself is pure; this package owns everything around it: the
  tenant roster, apartments, cost line items, water meter readings, the
  append-only payment ledger, expected-charge history, and persisted
  settlement runs. In production the same patterns apply to PostgreSQL -
  only minor SQL dialect differences.

APPEND-ONLY LEDGER:
  The payments table has no UPDATE or DELETE path. The engine only ever
  reads it; corrections happen upstream in the billing system that feeds
  it.

BATCH WRITES:
  Meter-reading imports arrive hundreds at a time but the hosting
  environment caps request time, so SaveReadingsBatch writes in chunks
  (20 rows by default, tunable via Options). Each reading carries a
  derived idempotency key and inserts
  with ON CONFLICT DO NOTHING, so a failed chunk can be retried with
  backoff and resubmitting an already-written row is a no-op.

WAL MODE:
  SQLite is opened with WAL for better concurrency: readers don't block,
  single writer at a time, better crash recovery.

RAW VALUES:
  Ledger dates and amounts are stored as the raw strings the upstream
  systems delivered. Parsing (and zero-coercion of malformed values)
  happens in the settlement package, so a settlement run sees exactly the
  data quality the ledger has.

SEE ALSO:
  - settlement: the pure engine these records feed
  - api:        HTTP surface writing through this store
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/hauskit/settlement-engine/settlement"
)

// Options tunes the batch import behavior. Zero fields take defaults.
type Options struct {
	// BatchChunkSize is the number of readings written per transaction.
	BatchChunkSize int
	// BatchMaxAttempts bounds retries of a failed chunk.
	BatchMaxAttempts int
	// BatchBackoffBase is the first retry delay; it doubles per attempt.
	BatchBackoffBase time.Duration
}

// Defaults: chunk size sits inside the observed 5-25 band; retries are
// bounded and, thanks to the idempotency keys, safe to repeat.
func (o Options) withDefaults() Options {
	if o.BatchChunkSize <= 0 {
		o.BatchChunkSize = 20
	}
	if o.BatchMaxAttempts <= 0 {
		o.BatchMaxAttempts = 3
	}
	if o.BatchBackoffBase <= 0 {
		o.BatchBackoffBase = 50 * time.Millisecond
	}
	return o
}

// Store implements persistence for all engine collaborator data.
type Store struct {
	db   *sql.DB
	opts Options
	mu   sync.RWMutex
}

// New creates a SQLite store at the given path with default options.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	return NewWithOptions(dbPath, Options{})
}

// NewWithOptions creates a SQLite store with explicit batch tuning.
func NewWithOptions(dbPath string, opts Options) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db, opts: opts.withDefaults()}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS apartments (
		id TEXT PRIMARY KEY,
		building_id TEXT NOT NULL,
		size TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_apartments_building
		ON apartments(building_id);

	CREATE TABLE IF NOT EXISTS tenants (
		id TEXT PRIMARY KEY,
		apartment_id TEXT NOT NULL,
		name TEXT NOT NULL,
		move_in TEXT NOT NULL,
		move_out TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tenants_apartment
		ON tenants(apartment_id);

	CREATE TABLE IF NOT EXISTS cost_items (
		id TEXT PRIMARY KEY,
		category TEXT NOT NULL,
		allocation_key TEXT NOT NULL,
		amount TEXT NOT NULL,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_cost_items_period
		ON cost_items(period_start, period_end);

	CREATE TABLE IF NOT EXISTS meter_readings (
		id TEXT PRIMARY KEY,
		meter_id TEXT NOT NULL,
		apartment_id TEXT NOT NULL,
		read_at TEXT NOT NULL,
		value TEXT NOT NULL,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_readings_meter_date
		ON meter_readings(meter_id, read_at);

	-- Append-only payment ledger. No UPDATE, no DELETE.
	-- paid_at and amount are raw upstream strings; the settlement package
	-- parses and zero-coerces them.
	CREATE TABLE IF NOT EXISTS payments (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		category TEXT NOT NULL,
		paid_at TEXT,
		amount TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_payments_tenant
		ON payments(tenant_id, category, paid_at);

	CREATE TABLE IF NOT EXISTS charges (
		id TEXT PRIMARY KEY,
		tenant_id TEXT NOT NULL,
		category TEXT NOT NULL,
		effective_from TEXT,
		amount TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_charges_tenant
		ON charges(tenant_id, category);

	CREATE TABLE IF NOT EXISTS settlement_runs (
		id TEXT PRIMARY KEY,
		period_start TEXT NOT NULL,
		period_end TEXT NOT NULL,
		results_json TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_runs_period
		ON settlement_runs(period_start, period_end);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// APARTMENTS
// =============================================================================

func (s *Store) SaveApartment(ctx context.Context, apt settlement.Apartment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO apartments (id, building_id, size, created_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET building_id = excluded.building_id, size = excluded.size`,
		apt.ID, apt.BuildingID, apt.Size.String(), now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save apartment: %w", err)
	}
	return nil
}

func (s *Store) ListApartments(ctx context.Context) ([]settlement.Apartment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, building_id, size FROM apartments ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query apartments: %w", err)
	}
	defer rows.Close()

	var apartments []settlement.Apartment
	for rows.Next() {
		var apt settlement.Apartment
		var size string
		if err := rows.Scan(&apt.ID, &apt.BuildingID, &size); err != nil {
			return nil, err
		}
		apt.Size = settlement.ParseMoney(size).OrZero()
		apartments = append(apartments, apt)
	}
	return apartments, rows.Err()
}

// =============================================================================
// TENANTS
// =============================================================================

func (s *Store) SaveTenant(ctx context.Context, tenant settlement.Tenant) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var moveOut any
	if tenant.MoveOut != nil {
		moveOut = tenant.MoveOut.String()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tenants (id, apartment_id, name, move_in, move_out, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			apartment_id = excluded.apartment_id,
			name = excluded.name,
			move_in = excluded.move_in,
			move_out = excluded.move_out`,
		tenant.ID, tenant.ApartmentID, tenant.Name, tenant.MoveIn.String(), moveOut, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save tenant: %w", err)
	}
	return nil
}

func (s *Store) GetTenant(ctx context.Context, id settlement.TenantID) (*settlement.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		`SELECT id, apartment_id, name, move_in, move_out FROM tenants WHERE id = ?`, id)

	tenant, err := scanTenant(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tenant, nil
}

func (s *Store) ListTenants(ctx context.Context) ([]settlement.Tenant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, apartment_id, name, move_in, move_out FROM tenants ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query tenants: %w", err)
	}
	defer rows.Close()

	var tenants []settlement.Tenant
	for rows.Next() {
		tenant, err := scanTenant(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, *tenant)
	}
	return tenants, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTenant(row rowScanner) (*settlement.Tenant, error) {
	var tenant settlement.Tenant
	var moveIn string
	var moveOut sql.NullString

	if err := row.Scan(&tenant.ID, &tenant.ApartmentID, &tenant.Name, &moveIn, &moveOut); err != nil {
		return nil, err
	}

	if dv := settlement.ParseDate(moveIn); dv.Valid {
		tenant.MoveIn = dv.Date
	}
	if moveOut.Valid {
		if dv := settlement.ParseDate(moveOut.String); dv.Valid {
			d := dv.Date
			tenant.MoveOut = &d
		}
	}
	return &tenant, nil
}

// =============================================================================
// COST LINE ITEMS
// =============================================================================

func (s *Store) SaveCostItem(ctx context.Context, item settlement.CostLineItem) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO cost_items (id, category, allocation_key, amount, period_start, period_end, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		id, item.Category, item.Key, item.Amount.String(),
		item.Period.Start.String(), item.Period.End.String(), now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save cost item: %w", err)
	}
	return id, nil
}

// ListCostItems returns items whose period overlaps the given one.
func (s *Store) ListCostItems(ctx context.Context, period settlement.Period) ([]settlement.CostLineItem, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT category, allocation_key, amount, period_start, period_end
		FROM cost_items
		WHERE period_start <= ? AND period_end >= ?
		ORDER BY category, period_start`,
		period.End.String(), period.Start.String(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query cost items: %w", err)
	}
	defer rows.Close()

	var items []settlement.CostLineItem
	for rows.Next() {
		var item settlement.CostLineItem
		var amount, start, end string
		if err := rows.Scan(&item.Category, &item.Key, &amount, &start, &end); err != nil {
			return nil, err
		}
		item.Amount = settlement.ParseMoney(amount).OrZero()
		if dv := settlement.ParseDate(start); dv.Valid {
			item.Period.Start = dv.Date
		}
		if dv := settlement.ParseDate(end); dv.Valid {
			item.Period.End = dv.Date
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// =============================================================================
// METER READINGS - Chunked, idempotent batch writes
// =============================================================================

// SaveReading persists a single meter reading.
func (s *Store) SaveReading(ctx context.Context, r settlement.WaterMeterReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return insertReadings(ctx, s.db, []settlement.WaterMeterReading{r})
}

// SaveReadingsBatch persists many readings in chunks. Each chunk is written
// atomically; failed chunks are retried with backoff up to a bounded
// attempt count. Retries are idempotent: a reading's derived key makes
// resubmitting an already-written row a no-op.
func (s *Store) SaveReadingsBatch(ctx context.Context, readings []settlement.WaterMeterReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for start := 0; start < len(readings); start += s.opts.BatchChunkSize {
		end := start + s.opts.BatchChunkSize
		if end > len(readings) {
			end = len(readings)
		}
		chunk := readings[start:end]

		var err error
		for attempt := 1; attempt <= s.opts.BatchMaxAttempts; attempt++ {
			if err = s.insertReadingsTx(ctx, chunk); err == nil {
				break
			}
			if attempt < s.opts.BatchMaxAttempts {
				backoff := s.opts.BatchBackoffBase << (attempt - 1)
				select {
				case <-time.After(backoff):
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		if err != nil {
			return fmt.Errorf("failed to save reading chunk after %d attempts: %w", s.opts.BatchMaxAttempts, err)
		}
	}
	return nil
}

func (s *Store) insertReadingsTx(ctx context.Context, chunk []settlement.WaterMeterReading) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := insertReadings(ctx, tx, chunk); err != nil {
		return err
	}
	return tx.Commit()
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func insertReadings(ctx context.Context, db execer, readings []settlement.WaterMeterReading) error {
	for _, r := range readings {
		_, err := db.ExecContext(ctx, `
			INSERT INTO meter_readings (id, meter_id, apartment_id, read_at, value, idempotency_key, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(idempotency_key) DO NOTHING`,
			uuid.NewString(), r.MeterID, r.ApartmentID, r.ReadAt.String(), r.Value.String(),
			readingKey(r), now(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert reading: %w", err)
		}
	}
	return nil
}

// readingKey derives the idempotency key: one row per meter per day.
func readingKey(r settlement.WaterMeterReading) string {
	return strings.Join([]string{string(r.MeterID), r.ReadAt.String()}, "|")
}

func (s *Store) ListReadings(ctx context.Context) ([]settlement.WaterMeterReading, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT meter_id, apartment_id, read_at, value
		FROM meter_readings ORDER BY meter_id, read_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query readings: %w", err)
	}
	defer rows.Close()

	var readings []settlement.WaterMeterReading
	for rows.Next() {
		var r settlement.WaterMeterReading
		var readAt, value string
		if err := rows.Scan(&r.MeterID, &r.ApartmentID, &readAt, &value); err != nil {
			return nil, err
		}
		if dv := settlement.ParseDate(readAt); dv.Valid {
			r.ReadAt = dv.Date
		}
		r.Value = settlement.ParseMoney(value).OrZero()
		readings = append(readings, r)
	}
	return readings, rows.Err()
}

// =============================================================================
// PAYMENT LEDGER - Append-only
// =============================================================================

// AppendPayment adds a ledger entry. Raw date/amount strings are stored as
// delivered; there is no update or delete path.
func (s *Store) AppendPayment(ctx context.Context, tenantID settlement.TenantID, category settlement.PaymentCategory, rawDate, rawAmount string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO payments (id, tenant_id, category, paid_at, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), tenantID, category, rawDate, rawAmount, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to append payment: %w", err)
	}
	return nil
}

// ListPayments returns the full ledger, parsed into engine inputs.
// Malformed raw values surface as invalid optionals, exactly as stored.
func (s *Store) ListPayments(ctx context.Context) ([]settlement.PaymentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, category, paid_at, amount
		FROM payments ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query payments: %w", err)
	}
	defer rows.Close()

	var payments []settlement.PaymentRecord
	for rows.Next() {
		var p settlement.PaymentRecord
		var paidAt, amount sql.NullString
		if err := rows.Scan(&p.TenantID, &p.Category, &paidAt, &amount); err != nil {
			return nil, err
		}
		p.Date = settlement.ParseDate(paidAt.String)
		p.Amount = settlement.ParseMoney(amount.String)
		payments = append(payments, p)
	}
	return payments, rows.Err()
}

// =============================================================================
// EXPECTED CHARGES
// =============================================================================

func (s *Store) SaveCharge(ctx context.Context, tenantID settlement.TenantID, category settlement.PaymentCategory, rawEffectiveFrom, rawAmount string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO charges (id, tenant_id, category, effective_from, amount, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		uuid.NewString(), tenantID, category, rawEffectiveFrom, rawAmount, now(),
	)
	if err != nil {
		return fmt.Errorf("failed to save charge: %w", err)
	}
	return nil
}

func (s *Store) ListCharges(ctx context.Context) ([]settlement.ExpectedCharge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT tenant_id, category, effective_from, amount
		FROM charges ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("failed to query charges: %w", err)
	}
	defer rows.Close()

	var charges []settlement.ExpectedCharge
	for rows.Next() {
		var c settlement.ExpectedCharge
		var effectiveFrom, amount sql.NullString
		if err := rows.Scan(&c.TenantID, &c.Category, &effectiveFrom, &amount); err != nil {
			return nil, err
		}
		c.EffectiveFrom = settlement.ParseDate(effectiveFrom.String)
		c.Amount = settlement.ParseMoney(amount.String)
		charges = append(charges, c)
	}
	return charges, rows.Err()
}

// =============================================================================
// SETTLEMENT RUNS
// =============================================================================

// SettlementRun is one persisted engine run.
type SettlementRun struct {
	ID          string
	PeriodStart string
	PeriodEnd   string
	Report      *settlement.Report
	CreatedAt   string
}

// SaveRun persists a completed run's report as JSON. Returns the run ID.
func (s *Store) SaveRun(ctx context.Context, report *settlement.Report) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	resultsJSON, err := json.Marshal(report)
	if err != nil {
		return "", fmt.Errorf("failed to marshal report: %w", err)
	}

	id := uuid.NewString()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO settlement_runs (id, period_start, period_end, results_json, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		id, report.Period.Start.String(), report.Period.End.String(), string(resultsJSON), now(),
	)
	if err != nil {
		return "", fmt.Errorf("failed to save settlement run: %w", err)
	}
	return id, nil
}

// ListRuns returns persisted runs, newest first.
func (s *Store) ListRuns(ctx context.Context) ([]SettlementRun, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, period_start, period_end, results_json, created_at
		FROM settlement_runs ORDER BY created_at DESC, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query settlement runs: %w", err)
	}
	defer rows.Close()

	var runs []SettlementRun
	for rows.Next() {
		var run SettlementRun
		var resultsJSON string
		if err := rows.Scan(&run.ID, &run.PeriodStart, &run.PeriodEnd, &resultsJSON, &run.CreatedAt); err != nil {
			return nil, err
		}
		var report settlement.Report
		if err := json.Unmarshal([]byte(resultsJSON), &report); err == nil {
			run.Report = &report
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// =============================================================================
// SNAPSHOT LOADER
// =============================================================================

// LoadSnapshot assembles the immutable input set for one settlement run.
// Everything is fetched up front; the engine never re-reads mid-calculation,
// so concurrent ledger writes cannot be observed inside a run.
func (s *Store) LoadSnapshot(ctx context.Context, period settlement.Period) (settlement.Snapshot, error) {
	snap := settlement.Snapshot{Period: period}

	tenants, err := s.ListTenants(ctx)
	if err != nil {
		return snap, err
	}
	apartments, err := s.ListApartments(ctx)
	if err != nil {
		return snap, err
	}
	items, err := s.ListCostItems(ctx, period)
	if err != nil {
		return snap, err
	}
	readings, err := s.ListReadings(ctx)
	if err != nil {
		return snap, err
	}
	payments, err := s.ListPayments(ctx)
	if err != nil {
		return snap, err
	}
	charges, err := s.ListCharges(ctx)
	if err != nil {
		return snap, err
	}

	snap.Tenants = tenants
	snap.Apartments = apartments
	snap.CostItems = items
	snap.MeterReadings = readings
	snap.Payments = payments
	snap.Charges = charges
	return snap, nil
}

// Reset clears all data. Demo/dev only; the scenario loader calls this
// before seeding.
func (s *Store) Reset(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tables := []string{
		"apartments", "tenants", "cost_items",
		"meter_readings", "payments", "charges", "settlement_runs",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return fmt.Errorf("failed to reset %s: %w", table, err)
		}
	}
	return nil
}

func now() string {
	return time.Now().UTC().Format(time.RFC3339)
}
