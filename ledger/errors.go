/*
errors.go - Centralized error types for the balance ledger

ERROR CATEGORIES:
  1. Business-rule blocks - insufficient balance, negative floor exceeded
  2. Concurrency guards   - version conflicts (retryable)
  3. Data errors          - missing records

Callers match with errors.Is; structured types carry the numeric detail the
spec requires surfaced to users (exact shortfall, floor).
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInsufficientBalance is returned when a debit exceeds Available and
	// the leave type does not permit negative balances.
	ErrInsufficientBalance = errors.New("insufficient balance")

	// ErrNegativeBalanceLimitExceeded is returned when a negative-permitted
	// debit would drive Available below the policy floor.
	ErrNegativeBalanceLimitExceeded = errors.New("negative balance limit exceeded")

	// ErrVersionConflict is returned when an optimistic update loses to a
	// concurrent writer. The ledger retries internally; persistent conflicts
	// surface to the caller.
	ErrVersionConflict = errors.New("balance version conflict")

	// ErrBalanceNotFound is returned when no record exists for the tuple.
	ErrBalanceNotFound = errors.New("balance record not found")

	// ErrInvalidAmount is returned for zero or negative mutation amounts.
	ErrInvalidAmount = errors.New("amount must be positive")
)

// =============================================================================
// STRUCTURED ERRORS - Carry numeric detail
// =============================================================================

// InsufficientBalanceError reports the exact shortfall so callers can show
// actionable detail, never an opaque message.
type InsufficientBalanceError struct {
	EmployeeID string
	LeaveType  leave.Type
	Year       int
	Available  decimal.Decimal
	Requested  decimal.Decimal
}

func (e *InsufficientBalanceError) Shortfall() decimal.Decimal {
	return e.Requested.Sub(e.Available)
}

func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient %s balance for %s/%d: available %s, requested %s, short %s",
		e.LeaveType, e.EmployeeID, e.Year, e.Available, e.Requested, e.Shortfall())
}

func (e *InsufficientBalanceError) Unwrap() error { return ErrInsufficientBalance }

// NegativeLimitError reports a debit that would breach the negative floor.
type NegativeLimitError struct {
	EmployeeID string
	LeaveType  leave.Type
	Year       int
	Floor      decimal.Decimal // lowest permitted Available
	WouldBe    decimal.Decimal // Available after the rejected debit
}

func (e *NegativeLimitError) Error() string {
	return fmt.Sprintf("%s debit for %s/%d would drive balance to %s, below floor %s",
		e.LeaveType, e.EmployeeID, e.Year, e.WouldBe, e.Floor)
}

func (e *NegativeLimitError) Unwrap() error { return ErrNegativeBalanceLimitExceeded }

// IsRetryable reports whether the error might succeed on retry.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}
