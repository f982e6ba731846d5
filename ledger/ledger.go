/*
ledger.go - Credit / Debit / Snapshot operations

PURPOSE:
  The Ledger serializes all balance mutations for a tuple. Credits come from
  the accrual engine and comp-off subsystem; debits come from the approval
  workflow and the expiry sweeps. Each mutation:

    1. loads the record (creating it on first touch)
    2. applies the delta and re-checks business rules against LIVE state
    3. appends an audit Entry and writes the record, atomically
    4. retries the whole step on version conflict

  Step 2 is what closes the TOCTOU race: a debit decided against a stale
  validation snapshot is re-validated here against the current record.

IDEMPOTENCY:
  A mutation carrying an IdempotencyKey that has already been applied is a
  no-op returning the current record, not a double credit/debit. This is the
  mechanism that makes batch-job retries safe.
*/
package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// casRetries bounds the optimistic-concurrency retry loop.
const casRetries = 5

type Ledger struct {
	store Store
}

func NewLedger(store Store) *Ledger {
	return &Ledger{store: store}
}

// =============================================================================
// INPUTS
// =============================================================================

type CreditInput struct {
	EmployeeID     string
	LeaveType      leave.Type
	Year           int
	Amount         decimal.Decimal
	Kind           EntryKind // must be a credit kind
	Reason         string
	ReferenceID    string
	IdempotencyKey string
}

// DebitOptions carry the policy flags the ledger needs; the ledger itself is
// policy-agnostic.
type DebitOptions struct {
	AllowNegative bool
	// Floor is the lowest permitted Available after the debit ( <= 0 ).
	// Ignored unless AllowNegative is set.
	Floor decimal.Decimal
}

type DebitInput struct {
	EmployeeID     string
	LeaveType      leave.Type
	Year           int
	Amount         decimal.Decimal
	Kind           EntryKind // KindConsumption or KindExpiry
	Reason         string
	ReferenceID    string
	IdempotencyKey string
	Options        DebitOptions
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Credit adds entitlement (or carry-forward) to a tuple, creating the record
// on first touch. Replays with the same idempotency key are no-ops.
func (l *Ledger) Credit(ctx context.Context, in CreditInput) (*BalanceRecord, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("credit %s: %w", in.Amount, ErrInvalidAmount)
	}
	if !in.Kind.IsCredit() {
		return nil, fmt.Errorf("credit with debit kind %q", in.Kind)
	}
	return l.mutate(ctx, BalanceKey{in.EmployeeID, in.LeaveType, in.Year}, in.IdempotencyKey,
		func(rec *BalanceRecord) error {
			if in.Kind == KindCarryForward {
				rec.CarryForward = rec.CarryForward.Add(in.Amount)
			} else {
				rec.TotalEntitlement = rec.TotalEntitlement.Add(in.Amount)
			}
			return nil
		},
		Entry{
			EmployeeID: in.EmployeeID, LeaveType: in.LeaveType, Year: in.Year,
			Kind: in.Kind, Amount: in.Amount,
			Reason: in.Reason, ReferenceID: in.ReferenceID, IdempotencyKey: in.IdempotencyKey,
		})
}

// Debit consumes balance. It always re-checks sufficiency against the record
// it is about to write, never against a caller-supplied snapshot.
func (l *Ledger) Debit(ctx context.Context, in DebitInput) (*BalanceRecord, error) {
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("debit %s: %w", in.Amount, ErrInvalidAmount)
	}
	if in.Kind.IsCredit() {
		return nil, fmt.Errorf("debit with credit kind %q", in.Kind)
	}
	return l.mutate(ctx, BalanceKey{in.EmployeeID, in.LeaveType, in.Year}, in.IdempotencyKey,
		func(rec *BalanceRecord) error {
			wouldBe := rec.Available().Sub(in.Amount)
			if wouldBe.IsNegative() {
				if !in.Options.AllowNegative {
					return &InsufficientBalanceError{
						EmployeeID: in.EmployeeID, LeaveType: in.LeaveType, Year: in.Year,
						Available: rec.Available(), Requested: in.Amount,
					}
				}
				if wouldBe.LessThan(in.Options.Floor) {
					return &NegativeLimitError{
						EmployeeID: in.EmployeeID, LeaveType: in.LeaveType, Year: in.Year,
						Floor: in.Options.Floor, WouldBe: wouldBe,
					}
				}
			}
			rec.Used = rec.Used.Add(in.Amount)
			return nil
		},
		Entry{
			EmployeeID: in.EmployeeID, LeaveType: in.LeaveType, Year: in.Year,
			Kind: in.Kind, Amount: in.Amount,
			Reason: in.Reason, ReferenceID: in.ReferenceID, IdempotencyKey: in.IdempotencyKey,
		})
}

// Snapshot returns the read-only view for a tuple. A tuple that has never
// been touched reads as an all-zero balance, not an error: records are
// created lazily on first accrual or first request.
func (l *Ledger) Snapshot(ctx context.Context, employeeID string, leaveType leave.Type, year int) (Snapshot, error) {
	rec, err := l.store.GetBalance(ctx, BalanceKey{employeeID, leaveType, year})
	if errors.Is(err, ErrBalanceNotFound) {
		return Snapshot{EmployeeID: employeeID, LeaveType: leaveType, Year: year}, nil
	}
	if err != nil {
		return Snapshot{}, err
	}
	return rec.Snapshot(), nil
}

// Balances returns every balance record for an employee year.
func (l *Ledger) Balances(ctx context.Context, employeeID string, year int) ([]*BalanceRecord, error) {
	return l.store.BalancesForYear(ctx, employeeID, year)
}

// History returns the audit trail for a tuple, oldest first.
func (l *Ledger) History(ctx context.Context, employeeID string, leaveType leave.Type, year int) ([]Entry, error) {
	return l.store.Entries(ctx, BalanceKey{employeeID, leaveType, year})
}

// Applied reports whether an idempotency key has already been consumed.
func (l *Ledger) Applied(ctx context.Context, idempotencyKey string) (bool, error) {
	if idempotencyKey == "" {
		return false, nil
	}
	return l.store.EntryExists(ctx, idempotencyKey)
}

// WithTx exposes the store's atomic primitive so callers (the approval
// workflow) can commit a debit together with other state transitions held by
// the same backing store.
func (l *Ledger) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return l.store.WithTx(ctx, fn)
}

// =============================================================================
// MUTATION CORE
// =============================================================================

// mutate runs load-apply-write with idempotency, audit entry, and CAS retry.
func (l *Ledger) mutate(ctx context.Context, key BalanceKey, idemKey string, apply func(*BalanceRecord) error, entry Entry) (*BalanceRecord, error) {
	if idemKey != "" {
		seen, err := l.store.EntryExists(ctx, idemKey)
		if err != nil {
			return nil, err
		}
		if seen {
			// Already applied: return current state untouched.
			rec, err := l.store.GetBalance(ctx, key)
			if errors.Is(err, ErrBalanceNotFound) {
				return &BalanceRecord{EmployeeID: key.EmployeeID, LeaveType: key.LeaveType, Year: key.Year}, nil
			}
			return rec, err
		}
	}

	var result *BalanceRecord
	var lastErr error
	for attempt := 0; attempt < casRetries; attempt++ {
		err := l.store.WithTx(ctx, func(txCtx context.Context) error {
			rec, err := l.store.GetBalance(txCtx, key)
			created := false
			if errors.Is(err, ErrBalanceNotFound) {
				now := time.Now()
				rec = &BalanceRecord{
					EmployeeID: key.EmployeeID, LeaveType: key.LeaveType, Year: key.Year,
					CreatedAt: now, UpdatedAt: now,
				}
				created = true
			} else if err != nil {
				return err
			}

			if err := apply(rec); err != nil {
				return err
			}
			if rec.Used.IsNegative() {
				return fmt.Errorf("mutation would drive used negative: %w", ErrInvalidAmount)
			}
			rec.UpdatedAt = time.Now()

			if created {
				if err := l.store.CreateBalance(txCtx, rec); err != nil {
					return err
				}
			} else if err := l.store.UpdateBalance(txCtx, rec); err != nil {
				return err
			}

			e := entry
			e.ID = uuid.NewString()
			e.CreatedAt = rec.UpdatedAt
			if err := l.store.AppendEntry(txCtx, e); err != nil {
				return err
			}
			result = rec
			return nil
		})
		if err == nil {
			return result, nil
		}
		if !IsRetryable(err) {
			return nil, err
		}
		lastErr = err
	}
	return nil, fmt.Errorf("balance mutation for %s/%s/%d did not converge: %w",
		key.EmployeeID, key.LeaveType, key.Year, lastErr)
}
