/*
Package ledger implements the Balance Ledger: per-employee, per-leave-type,
per-year running totals, the single shared mutable resource of the engine.

PURPOSE:
  Every other component reads from here; only the Accrual Engine (credits)
  and the Approval Workflow (debits, cancellation credit-backs) write.

KEY CONCEPTS IN THIS FILE (types.go):
  - BalanceRecord: the bucketed totals with a derived Available()
  - Entry: an immutable audit record of every credit/debit
  - Kinds: why a mutation happened (accrual, carry-forward, consumption, ...)

CRITICAL INVARIANTS:
  1. Available == TotalEntitlement + CarryForward - Used, always. Available
     is derived, never stored, so it cannot drift.
  2. Used >= 0. Negative Available is permitted only when the caller passes
     the policy's negative-balance option, down to a configured floor.
  3. Records are never deleted, only year-rolled.
  4. Every mutation appends an Entry atomically with the record update.

CONCURRENCY:
  One writer at a time per (employee, leaveType, year): BalanceRecord carries
  a Version and the store implements update-if-version-matches. The Ledger
  retries on conflict, so callers see strict serialization.

SEE ALSO:
  - ledger.go: Credit / Debit / Snapshot operations
  - store.go: persistence collaborator interface
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// BALANCE RECORD
// =============================================================================

// BalanceRecord holds the running totals for one (employee, leaveType, year).
type BalanceRecord struct {
	EmployeeID string
	LeaveType  leave.Type
	Year       int

	TotalEntitlement decimal.Decimal
	Used             decimal.Decimal
	CarryForward     decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version drives update-if-version-matches writes.
	Version int
}

// Available is derived, never stored: entitlement + carry-forward - used.
func (b *BalanceRecord) Available() decimal.Decimal {
	return b.TotalEntitlement.Add(b.CarryForward).Sub(b.Used)
}

// Key identifies the record's serialization tuple.
func (b *BalanceRecord) Key() BalanceKey {
	return BalanceKey{EmployeeID: b.EmployeeID, LeaveType: b.LeaveType, Year: b.Year}
}

type BalanceKey struct {
	EmployeeID string
	LeaveType  leave.Type
	Year       int
}

// Snapshot is the read-only view handed to validation. Validation snapshots
// may be stale; the final-approval debit always re-checks the live record.
type Snapshot struct {
	EmployeeID       string
	LeaveType        leave.Type
	Year             int
	TotalEntitlement decimal.Decimal
	Used             decimal.Decimal
	CarryForward     decimal.Decimal
	Available        decimal.Decimal
	AsOf             time.Time
}

func (b *BalanceRecord) Snapshot() Snapshot {
	return Snapshot{
		EmployeeID:       b.EmployeeID,
		LeaveType:        b.LeaveType,
		Year:             b.Year,
		TotalEntitlement: b.TotalEntitlement,
		Used:             b.Used,
		CarryForward:     b.CarryForward,
		Available:        b.Available(),
		AsOf:             b.UpdatedAt,
	}
}

// =============================================================================
// ENTRY - Append-only audit record
// =============================================================================

// EntryKind records why a balance moved.
type EntryKind string

const (
	KindAccrual      EntryKind = "accrual"       // periodic grant (credit)
	KindCarryForward EntryKind = "carry_forward" // year-end rollover (credit)
	KindCompOffGrant EntryKind = "comp_off_grant" // verified work log credit
	KindConsumption  EntryKind = "consumption"   // approved request (debit)
	KindRefund       EntryKind = "refund"        // cancellation/modification credit-back
	KindExpiry       EntryKind = "expiry"        // year-end or comp-off expiry (debit)
)

// Credit kinds add to entitlement (or carry-forward); debit kinds add to Used.
func (k EntryKind) IsCredit() bool {
	switch k {
	case KindAccrual, KindCarryForward, KindCompOffGrant, KindRefund:
		return true
	}
	return false
}

// Entry is an immutable audit record of one mutation. Entries are append-only:
// no update, no delete. Corrections happen via new entries of opposite kind.
type Entry struct {
	ID         string
	EmployeeID string
	LeaveType  leave.Type
	Year       int
	Kind       EntryKind
	Amount     decimal.Decimal // always positive; Kind gives the sign

	Reason      string
	ReferenceID string // request id, grant key, sweep id

	// IdempotencyKey makes retried mutations no-ops. Empty = not idempotent.
	IdempotencyKey string

	CreatedAt time.Time
}
