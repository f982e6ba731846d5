package ledger

import "context"

// =============================================================================
// TRANSACTOR - Atomic execution boundary
// =============================================================================

// Transactor runs fn atomically: every store call made with the context fn
// receives commits together or not at all. Implementations propagate the
// transaction through the context, so one Transactor can span balance,
// request, and approval-chain writes when the same backing store holds them.
//
// Nested calls are flattened: if ctx already carries a transaction, WithTx
// runs fn inside it.
type Transactor interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// =============================================================================
// STORE - Persistence collaborator for balance records and audit entries
// =============================================================================

// Store persists balance records and audit entries. The engine requires only
// two things of an implementation:
//   - single-record updates are atomic
//   - UpdateBalance is update-if-version-matches (returns ErrVersionConflict
//     when the stored version differs from the one on the passed record)
//
// Entries are APPEND-ONLY: no update, no delete. Implementations must reject
// duplicate idempotency keys so replayed mutations are detectable.
type Store interface {
	Transactor

	// GetBalance returns the record for the tuple, or ErrBalanceNotFound.
	GetBalance(ctx context.Context, key BalanceKey) (*BalanceRecord, error)

	// CreateBalance inserts a new record with Version 1. Returns
	// ErrVersionConflict if the tuple already exists (a concurrent creator
	// won; the caller's retry will load it).
	CreateBalance(ctx context.Context, rec *BalanceRecord) error

	// UpdateBalance writes the record if and only if the stored Version
	// matches rec.Version, then increments it.
	UpdateBalance(ctx context.Context, rec *BalanceRecord) error

	// BalancesForYear returns all of an employee's records for a year.
	BalancesForYear(ctx context.Context, employeeID string, year int) ([]*BalanceRecord, error)

	// AppendEntry records an audit entry. Append-only.
	AppendEntry(ctx context.Context, e Entry) error

	// EntryExists reports whether an idempotency key has been used.
	EntryExists(ctx context.Context, idempotencyKey string) (bool, error)

	// Entries returns the audit trail for a tuple, oldest first.
	Entries(ctx context.Context, key BalanceKey) ([]Entry, error)
}
