/*
Package sqlite provides a SQLite-backed implementation of the storage
interfaces. In production, the same patterns apply to PostgreSQL - only
minor SQL dialect differences.

INTERFACES IMPLEMENTED:
  ledger.Store         balance records + append-only audit entries
  leave.RequestStore   leave requests with optimistic versioning
  approval.ChainStore  approval chains (levels stored as JSON)
  accrual.GrantStore   processed accrual grants (idempotency records)
  compoff.WorkLogStore / compoff.RequestStore
  directory.Directory  employee identity reads

APPEND-ONLY ENFORCEMENT:
  The entries table never sees UPDATE or DELETE. Corrections happen via new
  entries of the opposite kind. A unique index on idempotency_key makes
  replayed mutations detectable at the database level.

OPTIMISTIC VERSIONING:
  Balance records, requests, chains, and work logs carry a version column.
  Updates match on (key, version) and bump the version; zero rows affected
  means a concurrent writer won and the caller gets the owning package's
  version-conflict sentinel.

TRANSACTIONS:
  WithTx opens one *sql.Tx and threads it through the context. Every store
  method resolves its executor from the context, so a single transaction
  spans balance, request, and chain writes. Nested WithTx calls flatten
  into the outer transaction.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block, a single writer at a time, better crash
  recovery. A store-level mutex keeps writers from hitting SQLITE_BUSY.

MIGRATION:
  Schema is auto-migrated on New(). For production, use a proper migration
  tool (golang-migrate, goose) with versioned migrations.

SEE ALSO:
  - store/memory: in-memory implementation for tests
  - ledger/store.go: the contract this file honors
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

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/compoff"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
)

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.Mutex
}

// New creates a new SQLite store with the given database path.
// Use ":memory:" for an in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
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

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Balance records, one row per (employee, leave_type, year)
	CREATE TABLE IF NOT EXISTS balances (
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		total_entitlement TEXT NOT NULL,
		used TEXT NOT NULL,
		carry_forward TEXT NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, leave_type, year)
	);

	-- Audit entries (append-only ledger)
	CREATE TABLE IF NOT EXISTS entries (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		year INTEGER NOT NULL,
		kind TEXT NOT NULL,
		amount TEXT NOT NULL,
		reason TEXT,
		reference_id TEXT,
		idempotency_key TEXT UNIQUE,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_entries_tuple
		ON entries(employee_id, leave_type, year);
	CREATE INDEX IF NOT EXISTS idx_entries_reference
		ON entries(reference_id) WHERE reference_id IS NOT NULL;

	-- Leave requests
	CREATE TABLE IF NOT EXISTS requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		leave_type TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		total_days TEXT NOT NULL,
		is_half_day BOOLEAN NOT NULL DEFAULT FALSE,
		reason TEXT,
		status TEXT NOT NULL DEFAULT 'pending',
		required_documentation BOOLEAN NOT NULL DEFAULT FALSE,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_requests_employee
		ON requests(employee_id);
	-- Hot path: overlap validation scans an employee's requests by date range
	CREATE INDEX IF NOT EXISTS idx_requests_employee_dates
		ON requests(employee_id, start_date, end_date);
	CREATE INDEX IF NOT EXISTS idx_requests_status
		ON requests(status);

	-- Approval chains, one per leave request; levels as JSON
	CREATE TABLE IF NOT EXISTS chains (
		leave_request_id TEXT PRIMARY KEY,
		levels_json TEXT NOT NULL,
		current_level INTEGER NOT NULL,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	-- Processed accrual grants (idempotency records)
	CREATE TABLE IF NOT EXISTS grants (
		employee_id TEXT NOT NULL,
		year INTEGER NOT NULL,
		month INTEGER NOT NULL,
		leave_type TEXT NOT NULL,
		amount TEXT NOT NULL,
		pro_rated BOOLEAN NOT NULL DEFAULT FALSE,
		reason TEXT,
		created_at TEXT NOT NULL,
		PRIMARY KEY (employee_id, year, month, leave_type)
	);

	-- Compensatory work logs
	CREATE TABLE IF NOT EXISTS work_logs (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		work_date TEXT NOT NULL,
		hours_worked TEXT NOT NULL,
		work_type TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		redeemed_hours TEXT NOT NULL,
		verified_by TEXT,
		verified_at TEXT,
		expires_at TEXT,
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_work_logs_employee
		ON work_logs(employee_id);
	-- Expiry sweep scans verified logs by expiry date
	CREATE INDEX IF NOT EXISTS idx_work_logs_expiry
		ON work_logs(status, expires_at);

	-- Comp-off redemption requests
	CREATE TABLE IF NOT EXISTS compoff_requests (
		id TEXT PRIMARY KEY,
		employee_id TEXT NOT NULL,
		work_log_id TEXT NOT NULL,
		leave_request_id TEXT NOT NULL,
		hours_to_redeem TEXT NOT NULL,
		start_date TEXT NOT NULL,
		end_date TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'pending',
		version INTEGER NOT NULL DEFAULT 1,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_compoff_requests_employee
		ON compoff_requests(employee_id);
	-- Terminal-decision reconciliation looks up the redemption by its leave request
	CREATE UNIQUE INDEX IF NOT EXISTS idx_compoff_requests_leave_request
		ON compoff_requests(leave_request_id);

	-- Employees (identity reads)
	CREATE TABLE IF NOT EXISTS employees (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		joining_date TEXT NOT NULL,
		department TEXT,
		designation TEXT,
		gender TEXT,
		marital_status TEXT,
		region TEXT,
		status TEXT NOT NULL DEFAULT 'active',
		reporting_manager_id TEXT,
		hr_region TEXT NOT NULL DEFAULT ''
	);

	CREATE INDEX IF NOT EXISTS idx_employees_status
		ON employees(status);
	CREATE INDEX IF NOT EXISTS idx_employees_hr_region
		ON employees(hr_region) WHERE hr_region != '';

	-- Company holidays
	CREATE TABLE IF NOT EXISTS holidays (
		id TEXT PRIMARY KEY,
		date TEXT NOT NULL,
		name TEXT NOT NULL,
		recurring BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TEXT NOT NULL
	);

	CREATE UNIQUE INDEX IF NOT EXISTS idx_holidays_unique
		ON holidays(date, name);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// TRANSACTOR (ledger.Transactor interface)
// =============================================================================

type txKey struct{}

// executor is satisfied by both *sql.DB and *sql.Tx.
type executor interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// h resolves the executor for a context: the ambient transaction when one is
// open, the raw connection otherwise.
func (s *Store) h(ctx context.Context) executor {
	if tx, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return tx
	}
	return s.db
}

// WithTx executes fn within a database transaction threaded through the
// context. Nested calls join the outer transaction.
func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if _, ok := ctx.Value(txKey{}).(*sql.Tx); ok {
		return fn(ctx)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(context.WithValue(ctx, txKey{}, sqlTx)); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// BALANCE STORE (ledger.Store interface)
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, key ledger.BalanceKey) (*ledger.BalanceRecord, error) {
	row := s.h(ctx).QueryRowContext(ctx, `
		SELECT employee_id, leave_type, year, total_entitlement, used, carry_forward,
		       version, created_at, updated_at
		FROM balances
		WHERE employee_id = ? AND leave_type = ? AND year = ?`,
		key.EmployeeID, string(key.LeaveType), key.Year,
	)
	return scanBalance(row)
}

func (s *Store) CreateBalance(ctx context.Context, rec *ledger.BalanceRecord) error {
	now := time.Now().UTC().Format(time.RFC3339)
	rec.Version = 1
	_, err := s.h(ctx).ExecContext(ctx, `
		INSERT INTO balances
		(employee_id, leave_type, year, total_entitlement, used, carry_forward, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		rec.EmployeeID, string(rec.LeaveType), rec.Year,
		rec.TotalEntitlement.String(), rec.Used.String(), rec.CarryForward.String(),
		now, now,
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrVersionConflict
		}
		return fmt.Errorf("failed to create balance: %w", err)
	}
	return nil
}

func (s *Store) UpdateBalance(ctx context.Context, rec *ledger.BalanceRecord) error {
	res, err := s.h(ctx).ExecContext(ctx, `
		UPDATE balances
		SET total_entitlement = ?, used = ?, carry_forward = ?,
		    version = version + 1, updated_at = ?
		WHERE employee_id = ? AND leave_type = ? AND year = ? AND version = ?`,
		rec.TotalEntitlement.String(), rec.Used.String(), rec.CarryForward.String(),
		time.Now().UTC().Format(time.RFC3339),
		rec.EmployeeID, string(rec.LeaveType), rec.Year, rec.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update balance: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetBalance(ctx, rec.Key()); err != nil {
			return err
		}
		return ledger.ErrVersionConflict
	}
	rec.Version++
	return nil
}

func (s *Store) BalancesForYear(ctx context.Context, employeeID string, year int) ([]*ledger.BalanceRecord, error) {
	rows, err := s.h(ctx).QueryContext(ctx, `
		SELECT employee_id, leave_type, year, total_entitlement, used, carry_forward,
		       version, created_at, updated_at
		FROM balances
		WHERE employee_id = ? AND year = ?
		ORDER BY leave_type`,
		employeeID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query balances: %w", err)
	}
	defer rows.Close()

	var out []*ledger.BalanceRecord
	for rows.Next() {
		rec, err := scanBalance(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBalance(row rowScanner) (*ledger.BalanceRecord, error) {
	var (
		rec                      ledger.BalanceRecord
		leaveType                string
		entitlement, used, carry string
		createdAt, updatedAt     string
	)
	err := row.Scan(&rec.EmployeeID, &leaveType, &rec.Year,
		&entitlement, &used, &carry, &rec.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, ledger.ErrBalanceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan balance: %w", err)
	}
	rec.LeaveType = leave.Type(leaveType)
	rec.TotalEntitlement = mustDecimal(entitlement)
	rec.Used = mustDecimal(used)
	rec.CarryForward = mustDecimal(carry)
	rec.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	rec.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &rec, nil
}

// =============================================================================
// ENTRY STORE (append-only)
// =============================================================================

func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) error {
	_, err := s.h(ctx).ExecContext(ctx, `
		INSERT INTO entries
		(id, employee_id, leave_type, year, kind, amount, reason, reference_id, idempotency_key, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.EmployeeID, string(e.LeaveType), e.Year, string(e.Kind),
		e.Amount.String(), e.Reason, e.ReferenceID,
		nullString(e.IdempotencyKey),
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		if isUniqueConstraintError(err) {
			return ledger.ErrVersionConflict
		}
		return fmt.Errorf("failed to append entry: %w", err)
	}
	return nil
}

func (s *Store) EntryExists(ctx context.Context, idempotencyKey string) (bool, error) {
	var count int
	err := s.h(ctx).QueryRowContext(ctx,
		"SELECT COUNT(*) FROM entries WHERE idempotency_key = ?",
		idempotencyKey,
	).Scan(&count)
	return count > 0, err
}

func (s *Store) Entries(ctx context.Context, key ledger.BalanceKey) ([]ledger.Entry, error) {
	rows, err := s.h(ctx).QueryContext(ctx, `
		SELECT id, employee_id, leave_type, year, kind, amount, reason, reference_id,
		       idempotency_key, created_at
		FROM entries
		WHERE employee_id = ? AND leave_type = ? AND year = ?
		ORDER BY created_at ASC, id ASC`,
		key.EmployeeID, string(key.LeaveType), key.Year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	var out []ledger.Entry
	for rows.Next() {
		var (
			e                           ledger.Entry
			leaveType, kind, amount     string
			reason, refID, idemKey      sql.NullString
			createdAt                   string
		)
		if err := rows.Scan(&e.ID, &e.EmployeeID, &leaveType, &e.Year, &kind,
			&amount, &reason, &refID, &idemKey, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan entry: %w", err)
		}
		e.LeaveType = leave.Type(leaveType)
		e.Kind = ledger.EntryKind(kind)
		e.Amount = mustDecimal(amount)
		e.Reason = reason.String
		e.ReferenceID = refID.String
		e.IdempotencyKey = idemKey.String
		e.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		out = append(out, e)
	}
	return out, rows.Err()
}

// =============================================================================
// LEAVE REQUEST STORE (leave.RequestStore interface)
// =============================================================================

func (s *Store) SaveRequest(ctx context.Context, r *leave.Request) error {
	r.Version = 1
	_, err := s.h(ctx).ExecContext(ctx, `
		INSERT INTO requests
		(id, employee_id, leave_type, start_date, end_date, total_days, is_half_day,
		 reason, status, required_documentation, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)`,
		r.ID, r.EmployeeID, string(r.LeaveType),
		r.StartDate.String(), r.EndDate.String(), r.TotalDays.String(), r.IsHalfDay,
		r.Reason, string(r.Status), r.RequiredDocumentation,
		r.CreatedAt.UTC().Format(time.RFC3339), r.UpdatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save request: %w", err)
	}
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	row := s.h(ctx).QueryRowContext(ctx, requestSelect+" WHERE id = ?", id)
	r, err := scanRequest(row)
	if err == sql.ErrNoRows {
		return nil, leave.ErrRequestNotFound
	}
	return r, err
}

func (s *Store) UpdateRequest(ctx context.Context, r *leave.Request) error {
	res, err := s.h(ctx).ExecContext(ctx, `
		UPDATE requests
		SET start_date = ?, end_date = ?, total_days = ?, status = ?,
		    required_documentation = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?`,
		r.StartDate.String(), r.EndDate.String(), r.TotalDays.String(), string(r.Status),
		r.RequiredDocumentation, time.Now().UTC().Format(time.RFC3339),
		r.ID, r.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetRequest(ctx, r.ID); err != nil {
			return err
		}
		return leave.ErrVersionConflict
	}
	r.Version++
	return nil
}

func (s *Store) RequestsByEmployee(ctx context.Context, employeeID string) ([]*leave.Request, error) {
	return s.queryRequests(ctx,
		requestSelect+" WHERE employee_id = ? ORDER BY created_at DESC", employeeID)
}

func (s *Store) RequestsInRange(ctx context.Context, employeeID string, from, to calendar.Date) ([]*leave.Request, error) {
	// Inclusive overlap: request.start <= to AND from <= request.end
	return s.queryRequests(ctx,
		requestSelect+` WHERE employee_id = ? AND start_date <= ? AND end_date >= ?
		ORDER BY start_date ASC`,
		employeeID, to.String(), from.String())
}

const requestSelect = `
	SELECT id, employee_id, leave_type, start_date, end_date, total_days, is_half_day,
	       reason, status, required_documentation, version, created_at, updated_at
	FROM requests`

func (s *Store) queryRequests(ctx context.Context, query string, args ...any) ([]*leave.Request, error) {
	rows, err := s.h(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query requests: %w", err)
	}
	defer rows.Close()

	var out []*leave.Request
	for rows.Next() {
		r, err := scanRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanRequest(row rowScanner) (*leave.Request, error) {
	var (
		r                              leave.Request
		leaveType, start, end, days    string
		status                         string
		reason                         sql.NullString
		createdAt, updatedAt           string
	)
	err := row.Scan(&r.ID, &r.EmployeeID, &leaveType, &start, &end, &days,
		&r.IsHalfDay, &reason, &status, &r.RequiredDocumentation,
		&r.Version, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	r.LeaveType = leave.Type(leaveType)
	r.StartDate, _ = calendar.ParseDate(start)
	r.EndDate, _ = calendar.ParseDate(end)
	r.TotalDays = mustDecimal(days)
	r.Reason = reason.String
	r.Status = leave.RequestStatus(status)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	r.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &r, nil
}

// =============================================================================
// APPROVAL CHAIN STORE (approval.ChainStore interface)
// =============================================================================

func (s *Store) SaveChain(ctx context.Context, c *approval.Chain) error {
	levelsJSON, err := json.Marshal(c.Levels)
	if err != nil {
		return fmt.Errorf("failed to encode chain levels: %w", err)
	}
	c.Version = 1
	now := time.Now().UTC().Format(time.RFC3339)
	_, err = s.h(ctx).ExecContext(ctx, `
		INSERT INTO chains (leave_request_id, levels_json, current_level, version, created_at, updated_at)
		VALUES (?, ?, ?, 1, ?, ?)`,
		c.LeaveRequestID, string(levelsJSON), c.CurrentLevel, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to save chain: %w", err)
	}
	return nil
}

func (s *Store) GetChain(ctx context.Context, leaveRequestID string) (*approval.Chain, error) {
	var (
		c                    approval.Chain
		levelsJSON           string
		createdAt, updatedAt string
	)
	err := s.h(ctx).QueryRowContext(ctx, `
		SELECT leave_request_id, levels_json, current_level, version, created_at, updated_at
		FROM chains WHERE leave_request_id = ?`,
		leaveRequestID,
	).Scan(&c.LeaveRequestID, &levelsJSON, &c.CurrentLevel, &c.Version, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, approval.ErrChainNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan chain: %w", err)
	}
	if err := json.Unmarshal([]byte(levelsJSON), &c.Levels); err != nil {
		return nil, fmt.Errorf("failed to decode chain levels: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	c.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
	return &c, nil
}

func (s *Store) UpdateChain(ctx context.Context, c *approval.Chain) error {
	levelsJSON, err := json.Marshal(c.Levels)
	if err != nil {
		return fmt.Errorf("failed to encode chain levels: %w", err)
	}
	res, err := s.h(ctx).ExecContext(ctx, `
		UPDATE chains
		SET levels_json = ?, current_level = ?, version = version + 1, updated_at = ?
		WHERE leave_request_id = ? AND version = ?`,
		string(levelsJSON), c.CurrentLevel, time.Now().UTC().Format(time.RFC3339),
		c.LeaveRequestID, c.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update chain: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetChain(ctx, c.LeaveRequestID); err != nil {
			return err
		}
		return leave.ErrVersionConflict
	}
	c.Version++
	return nil
}

func (s *Store) PendingForApprover(ctx context.Context, approverID string) ([]*approval.Chain, error) {
	// Level state lives in JSON, so filter in code. Chains are few and
	// short-lived; a dedicated levels table would pay off only at scale.
	rows, err := s.h(ctx).QueryContext(ctx, `
		SELECT leave_request_id FROM chains ORDER BY created_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query chains: %w", err)
	}
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, err
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	var out []*approval.Chain
	for _, id := range ids {
		c, err := s.GetChain(ctx, id)
		if err != nil {
			return nil, err
		}
		if cur := c.Current(); cur != nil && cur.ApproverID == approverID {
			out = append(out, c)
		}
	}
	return out, nil
}

// =============================================================================
// ACCRUAL GRANT STORE (accrual.GrantStore interface)
// =============================================================================

func (s *Store) SaveGrant(ctx context.Context, g *accrual.Grant) error {
	_, err := s.h(ctx).ExecContext(ctx, `
		INSERT INTO grants (employee_id, year, month, leave_type, amount, pro_rated, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(employee_id, year, month, leave_type) DO NOTHING`,
		g.EmployeeID, g.Year, int(g.Month), string(g.LeaveType),
		g.Amount.String(), g.ProRated, g.Reason,
		time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save grant: %w", err)
	}
	return nil
}

func (s *Store) GetGrant(ctx context.Context, key accrual.GrantKey) (*accrual.Grant, error) {
	row := s.h(ctx).QueryRowContext(ctx, `
		SELECT employee_id, year, month, leave_type, amount, pro_rated, reason, created_at
		FROM grants
		WHERE employee_id = ? AND year = ? AND month = ? AND leave_type = ?`,
		key.EmployeeID, key.Year, int(key.Month), string(key.LeaveType),
	)
	g, err := scanGrant(row)
	if err == sql.ErrNoRows {
		return nil, accrual.ErrGrantNotFound
	}
	return g, err
}

func (s *Store) GrantsForEmployee(ctx context.Context, employeeID string, year int) ([]*accrual.Grant, error) {
	rows, err := s.h(ctx).QueryContext(ctx, `
		SELECT employee_id, year, month, leave_type, amount, pro_rated, reason, created_at
		FROM grants
		WHERE employee_id = ? AND year = ?
		ORDER BY month ASC, leave_type`,
		employeeID, year,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query grants: %w", err)
	}
	defer rows.Close()

	var out []*accrual.Grant
	for rows.Next() {
		g, err := scanGrant(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func scanGrant(row rowScanner) (*accrual.Grant, error) {
	var (
		g                 accrual.Grant
		month             int
		leaveType, amount string
		reason            sql.NullString
		createdAt         string
	)
	err := row.Scan(&g.EmployeeID, &g.Year, &month, &leaveType, &amount,
		&g.ProRated, &reason, &createdAt)
	if err != nil {
		return nil, err
	}
	g.Month = time.Month(month)
	g.LeaveType = leave.Type(leaveType)
	g.Amount = mustDecimal(amount)
	g.Reason = reason.String
	g.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &g, nil
}

// =============================================================================
// COMP-OFF STORES (compoff.WorkLogStore / compoff.RequestStore interfaces)
// =============================================================================

func (s *Store) SaveWorkLog(ctx context.Context, w *compoff.WorkLogEntry) error {
	w.Version = 1
	_, err := s.h(ctx).ExecContext(ctx, `
		INSERT INTO work_logs
		(id, employee_id, work_date, hours_worked, work_type, status, redeemed_hours,
		 verified_by, verified_at, expires_at, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`,
		w.ID, w.EmployeeID, w.WorkDate.String(), w.HoursWorked.String(),
		string(w.WorkType), string(w.Status), w.RedeemedHours.String(),
		nullString(w.VerifiedBy), nullTime(w.VerifiedAt), nullDate(w.ExpiresAt),
		w.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save work log: %w", err)
	}
	return nil
}

func (s *Store) GetWorkLog(ctx context.Context, id string) (*compoff.WorkLogEntry, error) {
	row := s.h(ctx).QueryRowContext(ctx, workLogSelect+" WHERE id = ?", id)
	w, err := scanWorkLog(row)
	if err == sql.ErrNoRows {
		return nil, compoff.ErrWorkLogNotFound
	}
	return w, err
}

func (s *Store) UpdateWorkLog(ctx context.Context, w *compoff.WorkLogEntry) error {
	res, err := s.h(ctx).ExecContext(ctx, `
		UPDATE work_logs
		SET status = ?, redeemed_hours = ?, verified_by = ?, verified_at = ?, expires_at = ?,
		    version = version + 1
		WHERE id = ? AND version = ?`,
		string(w.Status), w.RedeemedHours.String(),
		nullString(w.VerifiedBy), nullTime(w.VerifiedAt), nullDate(w.ExpiresAt),
		w.ID, w.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update work log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetWorkLog(ctx, w.ID); err != nil {
			return err
		}
		return leave.ErrVersionConflict
	}
	w.Version++
	return nil
}

func (s *Store) WorkLogsByEmployee(ctx context.Context, employeeID string) ([]*compoff.WorkLogEntry, error) {
	return s.queryWorkLogs(ctx,
		workLogSelect+" WHERE employee_id = ? ORDER BY work_date ASC", employeeID)
}

func (s *Store) ExpiredVerified(ctx context.Context, asOf calendar.Date) ([]*compoff.WorkLogEntry, error) {
	logs, err := s.queryWorkLogs(ctx,
		workLogSelect+` WHERE status = ? AND expires_at IS NOT NULL AND expires_at <= ?
		ORDER BY expires_at ASC`,
		string(compoff.LogVerified), asOf.String())
	if err != nil {
		return nil, err
	}
	var out []*compoff.WorkLogEntry
	for _, w := range logs {
		if w.Remaining().IsPositive() {
			out = append(out, w)
		}
	}
	return out, nil
}

const workLogSelect = `
	SELECT id, employee_id, work_date, hours_worked, work_type, status, redeemed_hours,
	       verified_by, verified_at, expires_at, version, created_at
	FROM work_logs`

func (s *Store) queryWorkLogs(ctx context.Context, query string, args ...any) ([]*compoff.WorkLogEntry, error) {
	rows, err := s.h(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query work logs: %w", err)
	}
	defer rows.Close()

	var out []*compoff.WorkLogEntry
	for rows.Next() {
		w, err := scanWorkLog(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, rows.Err()
}

func scanWorkLog(row rowScanner) (*compoff.WorkLogEntry, error) {
	var (
		w                            compoff.WorkLogEntry
		workDate, hours, redeemed    string
		workType, status             string
		verifiedBy, verifiedAt       sql.NullString
		expiresAt                    sql.NullString
		createdAt                    string
	)
	err := row.Scan(&w.ID, &w.EmployeeID, &workDate, &hours, &workType, &status,
		&redeemed, &verifiedBy, &verifiedAt, &expiresAt, &w.Version, &createdAt)
	if err != nil {
		return nil, err
	}
	w.WorkDate, _ = calendar.ParseDate(workDate)
	w.HoursWorked = mustDecimal(hours)
	w.WorkType = compoff.WorkType(workType)
	w.Status = compoff.LogStatus(status)
	w.RedeemedHours = mustDecimal(redeemed)
	w.VerifiedBy = verifiedBy.String
	if verifiedAt.Valid {
		t, _ := time.Parse(time.RFC3339, verifiedAt.String)
		w.VerifiedAt = &t
	}
	if expiresAt.Valid {
		w.ExpiresAt, _ = calendar.ParseDate(expiresAt.String)
	}
	w.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &w, nil
}

func (s *Store) SaveCompOffRequest(ctx context.Context, r *compoff.Request) error {
	r.Version = 1
	_, err := s.h(ctx).ExecContext(ctx, `
		INSERT INTO compoff_requests
		(id, employee_id, work_log_id, leave_request_id, hours_to_redeem, start_date, end_date, status, version, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.EmployeeID, r.WorkLogID, r.LeaveRequestID,
		r.HoursToRedeem.String(), r.StartDate.String(), r.EndDate.String(),
		string(r.Status), r.Version, r.CreatedAt.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save comp-off request: %w", err)
	}
	return nil
}

func (s *Store) UpdateCompOffRequest(ctx context.Context, r *compoff.Request) error {
	res, err := s.h(ctx).ExecContext(ctx, `
		UPDATE compoff_requests
		SET status = ?, version = version + 1
		WHERE id = ? AND version = ?`,
		string(r.Status), r.ID, r.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update comp-off request: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.GetCompOffRequest(ctx, r.ID); err != nil {
			return err
		}
		return leave.ErrVersionConflict
	}
	r.Version++
	return nil
}

func (s *Store) GetCompOffRequest(ctx context.Context, id string) (*compoff.Request, error) {
	row := s.h(ctx).QueryRowContext(ctx, `
		SELECT id, employee_id, work_log_id, leave_request_id, hours_to_redeem,
		       start_date, end_date, status, version, created_at
		FROM compoff_requests WHERE id = ?`, id)
	r, err := scanCompOffRequest(row)
	if err == sql.ErrNoRows {
		return nil, compoff.ErrCompOffRequestNotFound
	}
	return r, err
}

func (s *Store) CompOffRequestByLeaveRequest(ctx context.Context, leaveRequestID string) (*compoff.Request, error) {
	row := s.h(ctx).QueryRowContext(ctx, `
		SELECT id, employee_id, work_log_id, leave_request_id, hours_to_redeem,
		       start_date, end_date, status, version, created_at
		FROM compoff_requests WHERE leave_request_id = ?`, leaveRequestID)
	r, err := scanCompOffRequest(row)
	if err == sql.ErrNoRows {
		return nil, compoff.ErrCompOffRequestNotFound
	}
	return r, err
}

func (s *Store) CompOffRequestsByEmployee(ctx context.Context, employeeID string) ([]*compoff.Request, error) {
	rows, err := s.h(ctx).QueryContext(ctx, `
		SELECT id, employee_id, work_log_id, leave_request_id, hours_to_redeem,
		       start_date, end_date, status, version, created_at
		FROM compoff_requests
		WHERE employee_id = ?
		ORDER BY created_at DESC`, employeeID)
	if err != nil {
		return nil, fmt.Errorf("failed to query comp-off requests: %w", err)
	}
	defer rows.Close()

	var out []*compoff.Request
	for rows.Next() {
		r, err := scanCompOffRequest(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func scanCompOffRequest(row rowScanner) (*compoff.Request, error) {
	var (
		r                 compoff.Request
		hours, start, end string
		status, createdAt string
	)
	err := row.Scan(&r.ID, &r.EmployeeID, &r.WorkLogID, &r.LeaveRequestID,
		&hours, &start, &end, &status, &r.Version, &createdAt)
	if err != nil {
		return nil, err
	}
	r.HoursToRedeem = mustDecimal(hours)
	r.StartDate, _ = calendar.ParseDate(start)
	r.EndDate, _ = calendar.ParseDate(end)
	r.Status = leave.RequestStatus(status)
	r.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	return &r, nil
}

// =============================================================================
// EMPLOYEE DIRECTORY (directory.Directory interface)
// =============================================================================

// SaveEmployee upserts an employee record.
func (s *Store) SaveEmployee(ctx context.Context, e *directory.Employee) error {
	_, err := s.h(ctx).ExecContext(ctx, `
		INSERT INTO employees
		(id, name, joining_date, department, designation, gender, marital_status,
		 region, status, reporting_manager_id)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			joining_date = excluded.joining_date,
			department = excluded.department,
			designation = excluded.designation,
			gender = excluded.gender,
			marital_status = excluded.marital_status,
			region = excluded.region,
			status = excluded.status,
			reporting_manager_id = excluded.reporting_manager_id`,
		e.ID, e.Name, e.JoiningDate.String(), e.Department, e.Designation,
		e.Gender, e.MaritalStatus, e.Region, string(e.Status), e.ReportingManagerID,
	)
	if err != nil {
		return fmt.Errorf("failed to save employee: %w", err)
	}
	return nil
}

// SetHRApprover designates an employee as the HR approver for a region.
func (s *Store) SetHRApprover(ctx context.Context, region, employeeID string) error {
	_, err := s.h(ctx).ExecContext(ctx,
		"UPDATE employees SET hr_region = '' WHERE hr_region = ?", region)
	if err != nil {
		return err
	}
	res, err := s.h(ctx).ExecContext(ctx,
		"UPDATE employees SET hr_region = ? WHERE id = ?", region, employeeID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("employee %s: %w", employeeID, directory.ErrEmployeeNotFound)
	}
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (*directory.Employee, error) {
	row := s.h(ctx).QueryRowContext(ctx, employeeSelect+" WHERE id = ?", id)
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("employee %s: %w", id, directory.ErrEmployeeNotFound)
	}
	return e, err
}

func (s *Store) ListActive(ctx context.Context) ([]*directory.Employee, error) {
	rows, err := s.h(ctx).QueryContext(ctx,
		employeeSelect+" WHERE status = ? ORDER BY id", string(directory.StatusActive))
	if err != nil {
		return nil, fmt.Errorf("failed to query employees: %w", err)
	}
	defer rows.Close()

	var out []*directory.Employee
	for rows.Next() {
		e, err := scanEmployee(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Store) HRApprover(ctx context.Context, region string) (*directory.Employee, error) {
	row := s.h(ctx).QueryRowContext(ctx, employeeSelect+" WHERE hr_region = ?", region)
	e, err := scanEmployee(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no HR approver for region %s: %w", region, directory.ErrEmployeeNotFound)
	}
	return e, err
}

const employeeSelect = `
	SELECT id, name, joining_date, department, designation, gender, marital_status,
	       region, status, reporting_manager_id
	FROM employees`

func scanEmployee(row rowScanner) (*directory.Employee, error) {
	var (
		e           directory.Employee
		joiningDate string
		status      string
		dept, desig, gender, marital, region, manager sql.NullString
	)
	err := row.Scan(&e.ID, &e.Name, &joiningDate, &dept, &desig, &gender,
		&marital, &region, &status, &manager)
	if err != nil {
		return nil, err
	}
	e.JoiningDate, _ = calendar.ParseDate(joiningDate)
	e.Department = dept.String
	e.Designation = desig.String
	e.Gender = gender.String
	e.MaritalStatus = marital.String
	e.Region = region.String
	e.Status = directory.EmployeeStatus(status)
	e.ReportingManagerID = manager.String
	return &e, nil
}

// =============================================================================
// HOLIDAYS
// =============================================================================

// SaveHoliday upserts a company holiday.
func (s *Store) SaveHoliday(ctx context.Context, id string, h calendar.Holiday) error {
	_, err := s.h(ctx).ExecContext(ctx, `
		INSERT INTO holidays (id, date, name, recurring, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(date, name) DO UPDATE SET recurring = excluded.recurring`,
		id, h.Date.String(), h.Name, h.Recurring,
		time.Now().UTC().Format(time.RFC3339),
	)
	return err
}

// Holidays loads every stored holiday, for building a calendar.FixedCalendar.
func (s *Store) Holidays(ctx context.Context) ([]calendar.Holiday, error) {
	rows, err := s.h(ctx).QueryContext(ctx,
		"SELECT date, name, recurring FROM holidays ORDER BY date ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query holidays: %w", err)
	}
	defer rows.Close()

	var out []calendar.Holiday
	for rows.Next() {
		var (
			h       calendar.Holiday
			dateStr string
		)
		if err := rows.Scan(&dateStr, &h.Name, &h.Recurring); err != nil {
			return nil, err
		}
		h.Date, _ = calendar.ParseDate(dateStr)
		out = append(out, h)
	}
	return out, rows.Err()
}

// =============================================================================
// UTILITIES
// =============================================================================

// Reset clears all data (for testing/demo).
func (s *Store) Reset(ctx context.Context) error {
	tables := []string{
		"entries", "balances", "chains", "requests", "grants",
		"work_logs", "compoff_requests", "employees", "holidays",
	}
	for _, table := range tables {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM "+table); err != nil {
			return err
		}
	}
	return nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.UTC().Format(time.RFC3339), Valid: true}
}

func nullDate(d calendar.Date) sql.NullString {
	if d.IsZero() {
		return sql.NullString{}
	}
	return sql.NullString{String: d.String(), Valid: true}
}

func mustDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func isUniqueConstraintError(err error) bool {
	return err != nil && (strings.Contains(err.Error(), "UNIQUE constraint failed") ||
		strings.Contains(err.Error(), "duplicate key"))
}
