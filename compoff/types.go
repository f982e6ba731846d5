/*
Package compoff implements the compensatory-time subsystem: verified
extra-work log entries become redeemable time-off credit with its own
expiry horizon.

WORK LOG STATE MACHINE:
  PENDING --(manager verify, approve)--> VERIFIED
  PENDING --(manager verify, reject)---> REJECTED
  VERIFIED --(fully redeemed)----------> CONSUMED
  VERIFIED --(expiry sweep)------------> EXPIRED

  A manager cannot verify their own log entry. Verification credits the
  comp-off balance; the credit expires after the policy horizon if never
  redeemed.

REDEMPTION:
  applyForCompOff redeems hours from exactly one VERIFIED log, bounded by
  policy (e.g. 5-12 hours) and by the log's remaining unredeemed hours. The
  resulting request enters the generic approval workflow under the comp-off
  chain (manager -> manager's manager -> HR).

SEE ALSO:
  - ledger: comp-off credits/debits land on the comp_off leave type
  - approval: redemption requests flow through the same workflow
*/
package compoff

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// WORK LOG ENTRY
// =============================================================================

type WorkType string

const (
	WorkWeekend  WorkType = "weekend"
	WorkHoliday  WorkType = "holiday"
	WorkOvertime WorkType = "overtime"
)

type LogStatus string

const (
	LogPending  LogStatus = "pending"
	LogVerified LogStatus = "verified"
	LogRejected LogStatus = "rejected"
	LogConsumed LogStatus = "consumed"
	LogExpired  LogStatus = "expired"
)

// WorkLogEntry is one claim of extra work. RedeemedHours tracks partial
// redemption; the entry is CONSUMED only when fully redeemed.
type WorkLogEntry struct {
	ID          string
	EmployeeID  string
	WorkDate    calendar.Date
	HoursWorked decimal.Decimal
	WorkType    WorkType
	Status      LogStatus

	RedeemedHours decimal.Decimal

	VerifiedBy string
	VerifiedAt *time.Time

	// ExpiresAt is set at verification: work date + policy horizon.
	// Unredeemed hours past this date are swept out of the pool.
	ExpiresAt calendar.Date

	CreatedAt time.Time
	Version   int
}

// Remaining returns the unredeemed hours still available on this log.
func (w *WorkLogEntry) Remaining() decimal.Decimal {
	return w.HoursWorked.Sub(w.RedeemedHours)
}

// Redeemable reports whether hours can still be drawn from this log.
func (w *WorkLogEntry) Redeemable(asOf calendar.Date) bool {
	return w.Status == LogVerified && w.Remaining().IsPositive() && asOf.BeforeOrEqual(w.ExpiresAt)
}

// =============================================================================
// COMP-OFF REQUEST
// =============================================================================

// Request redeems hours from exactly one work log into time off. Status
// mirrors the linked leave request's terminal outcome: the workflow reports
// the transition back through the resolution hook, which also returns the
// redeemed hours to the work log on rejection or cancellation.
type Request struct {
	ID             string
	EmployeeID     string
	WorkLogID      string
	LeaveRequestID string

	HoursToRedeem decimal.Decimal
	StartDate     calendar.Date
	EndDate       calendar.Date
	Status        leave.RequestStatus

	CreatedAt time.Time
	Version   int
}

// =============================================================================
// STORES
// =============================================================================

var ErrWorkLogNotFound = errors.New("work log entry not found")

var ErrCompOffRequestNotFound = errors.New("comp-off request not found")

type WorkLogStore interface {
	SaveWorkLog(ctx context.Context, w *WorkLogEntry) error
	GetWorkLog(ctx context.Context, id string) (*WorkLogEntry, error)
	// UpdateWorkLog is update-if-version-matches, returning
	// leave.ErrVersionConflict on loss.
	UpdateWorkLog(ctx context.Context, w *WorkLogEntry) error
	WorkLogsByEmployee(ctx context.Context, employeeID string) ([]*WorkLogEntry, error)
	// ExpiredVerified returns VERIFIED logs with remaining hours whose
	// expiry date is on or before asOf.
	ExpiredVerified(ctx context.Context, asOf calendar.Date) ([]*WorkLogEntry, error)
}

type RequestStore interface {
	SaveCompOffRequest(ctx context.Context, r *Request) error
	GetCompOffRequest(ctx context.Context, id string) (*Request, error)
	// UpdateCompOffRequest is update-if-version-matches, returning
	// leave.ErrVersionConflict on loss.
	UpdateCompOffRequest(ctx context.Context, r *Request) error
	CompOffRequestsByEmployee(ctx context.Context, employeeID string) ([]*Request, error)
	CompOffRequestByLeaveRequest(ctx context.Context, leaveRequestID string) (*Request, error)
}

// =============================================================================
// ERRORS
// =============================================================================

var (
	// ErrSelfVerificationNotAllowed guards the verify transition: the
	// work-logger cannot verify their own entry.
	ErrSelfVerificationNotAllowed = errors.New("cannot verify own work log")

	// ErrInvalidTransition is returned for verify/redeem against a log in
	// the wrong state.
	ErrInvalidTransition = errors.New("invalid work log state transition")

	// ErrRedemptionBounds is returned when hoursToRedeem falls outside the
	// policy window or exceeds the log's remaining hours.
	ErrRedemptionBounds = errors.New("redemption hours out of bounds")
)

// RedemptionBoundsError carries the exact numbers for the caller.
type RedemptionBoundsError struct {
	WorkLogID string
	Requested decimal.Decimal
	Min       decimal.Decimal
	Max       decimal.Decimal
	Remaining decimal.Decimal
}

func (e *RedemptionBoundsError) Error() string {
	return fmt.Sprintf("cannot redeem %s hours from log %s: policy window [%s, %s], remaining %s",
		e.Requested, e.WorkLogID, e.Min, e.Max, e.Remaining)
}

func (e *RedemptionBoundsError) Unwrap() error { return ErrRedemptionBounds }
