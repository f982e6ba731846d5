/*
Package accrual implements the Accrual Engine: periodic entitlement grants
and the year-end carry-forward/expiry transition.

PURPOSE:
  Two grant shapes exist, selected by policy AccrualMode:
  - Monthly pro-rated grants: a fixed rate per month, with the joining month
    pro-rated (full credit when joining on or before the 15th, half after).
  - Annual lump allocation: a designation-stepped amount granted upfront,
    pro-rated by remaining months for mid-year joiners.

  At the year boundary each leave type either expires outright or carries
  forward min(available, policy max) into the new year.

IDEMPOTENCY:
  Every grant is keyed by (employee, year, month, leaveType). Re-invoking a
  processed grant returns the previously recorded result and performs no
  ledger mutation. Year-end transitions are keyed the same way, so re-runs
  after a partial batch failure are safe.

BATCH SEMANTICS:
  Batch runs iterate active employees only. A single employee's failure is
  recorded and skipped, never aborting the batch. Only systemic failures
  (store unavailable) abort.

SEE ALSO:
  - ledger: the only thing the accrual engine ever writes to (credits)
  - policy: accrual mode, rates, steps, year-end rules
*/
package accrual

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// GRANT - Recorded accrual result (the idempotency anchor)
// =============================================================================

// Grant records one processed accrual. Month is 0 for annual lump grants and
// for carry-forward credits.
type Grant struct {
	EmployeeID string
	Year       int
	Month      time.Month
	LeaveType  leave.Type

	Amount   decimal.Decimal
	ProRated bool
	Reason   string

	CreatedAt time.Time
}

// Key is the grant's idempotency identity.
func (g *Grant) Key() GrantKey {
	return GrantKey{EmployeeID: g.EmployeeID, Year: g.Year, Month: g.Month, LeaveType: g.LeaveType}
}

type GrantKey struct {
	EmployeeID string
	Year       int
	Month      time.Month
	LeaveType  leave.Type
}

// LedgerKey derives the idempotency key used on the ledger entry, so the
// grant record and the balance credit share one identity.
func (k GrantKey) LedgerKey() string {
	return fmt.Sprintf("accrual:%s:%d:%02d:%s", k.EmployeeID, k.Year, int(k.Month), k.LeaveType)
}

// ErrGrantNotFound is returned when no grant exists for a key.
var ErrGrantNotFound = errors.New("accrual grant not found")

// GrantStore persists processed grants.
type GrantStore interface {
	SaveGrant(ctx context.Context, g *Grant) error
	GetGrant(ctx context.Context, key GrantKey) (*Grant, error)
	GrantsForEmployee(ctx context.Context, employeeID string, year int) ([]*Grant, error)
}

// =============================================================================
// BATCH RESULTS
// =============================================================================

// EmployeeResult is the per-employee outcome of a batch run.
type EmployeeResult struct {
	EmployeeID string
	Grants     []*Grant
	Err        error
}

func (r EmployeeResult) Failed() bool { return r.Err != nil }

// BatchResult aggregates a batch run: per-employee results plus counts.
type BatchResult struct {
	Processed int
	Succeeded int
	Failed    int
	Results   []EmployeeResult
}

func (b *BatchResult) add(r EmployeeResult) {
	b.Processed++
	if r.Failed() {
		b.Failed++
	} else {
		b.Succeeded++
	}
	b.Results = append(b.Results, r)
}
