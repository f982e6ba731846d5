/*
service.go - Work log verification, redemption, and the expiry sweep

CREDIT CONVERSION:
  Hours convert to balance units at 8 hours per day, rounded half-up to the
  nearest 0.5. The credit lands on the comp_off leave type at verification
  time; redemption debits it through the normal approval workflow.

EXPIRY SWEEP:
  Idempotent: each sweep action is keyed by the log id, so a re-run after a
  partial failure credits nothing twice and re-expires nothing.
*/
package compoff

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/policy"
	"github.com/warp/leave-engine/validation"
)

var (
	hoursPerDay = decimal.NewFromInt(8)
	two         = decimal.NewFromInt(2)
)

// hoursToDays converts worked hours to balance units, half-up to 0.5 steps.
func hoursToDays(hours decimal.Decimal) decimal.Decimal {
	return hours.Div(hoursPerDay).Mul(two).Round(0).Div(two)
}

type Service struct {
	Ledger    *ledger.Ledger
	WorkLogs  WorkLogStore
	Requests  RequestStore
	Approvals *approval.Service
	Policies  policy.Store
	Dir       directory.Directory
	Notify    notify.Sink
	Log       zerolog.Logger

	// mu serializes redemption and verification per service. Volume here is
	// human-scale; a keyed lock would be over-engineering.
	mu sync.Mutex
}

func NewService(l *ledger.Ledger, logs WorkLogStore, reqs RequestStore,
	approvals *approval.Service, policies policy.Store, dir directory.Directory,
	sink notify.Sink, log zerolog.Logger) *Service {
	return &Service{
		Ledger: l, WorkLogs: logs, Requests: reqs, Approvals: approvals,
		Policies: policies, Dir: dir, Notify: sink, Log: log,
	}
}

// =============================================================================
// LOGGING AND VERIFICATION
// =============================================================================

// LogWork files a PENDING work log entry.
func (s *Service) LogWork(ctx context.Context, employeeID string, workDate calendar.Date, hours decimal.Decimal, workType WorkType) (*WorkLogEntry, error) {
	if !hours.IsPositive() {
		return nil, fmt.Errorf("hours %s: %w", hours, ledger.ErrInvalidAmount)
	}
	if _, err := directory.GetActive(ctx, s.Dir, employeeID); err != nil {
		return nil, err
	}

	entry := &WorkLogEntry{
		ID:          uuid.NewString(),
		EmployeeID:  employeeID,
		WorkDate:    workDate,
		HoursWorked: hours,
		WorkType:    workType,
		Status:      LogPending,
		CreatedAt:   time.Now(),
	}
	if err := s.WorkLogs.SaveWorkLog(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Verify decides a PENDING log. Approval credits the comp-off balance and
// starts the expiry clock; rejection is terminal. The work-logger cannot
// verify their own entry.
func (s *Service) Verify(ctx context.Context, workLogID, verifierID string, approve bool) (*WorkLogEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.WorkLogs.GetWorkLog(ctx, workLogID)
	if err != nil {
		return nil, err
	}
	if entry.Status != LogPending {
		return nil, fmt.Errorf("log %s is %s: %w", workLogID, entry.Status, ErrInvalidTransition)
	}
	if entry.EmployeeID == verifierID {
		return nil, fmt.Errorf("log %s: %w", workLogID, ErrSelfVerificationNotAllowed)
	}

	emp, err := s.Dir.Get(ctx, entry.EmployeeID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	entry.VerifiedBy = verifierID
	entry.VerifiedAt = &now

	if !approve {
		entry.Status = LogRejected
		if err := s.WorkLogs.UpdateWorkLog(ctx, entry); err != nil {
			return nil, err
		}
		return entry, nil
	}

	pol, err := s.Policies.Get(ctx, leave.TypeCompOff, emp.Region)
	if err != nil {
		return nil, err
	}

	expiryMonths := pol.CompOffExpiryMonths
	if expiryMonths <= 0 {
		expiryMonths = 3
	}
	entry.Status = LogVerified
	entry.ExpiresAt = entry.WorkDate.AddMonths(expiryMonths)

	// Credit and status flip commit together.
	err = s.Ledger.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.Ledger.Credit(txCtx, ledger.CreditInput{
			EmployeeID: entry.EmployeeID, LeaveType: leave.TypeCompOff, Year: entry.WorkDate.Year(),
			Amount: hoursToDays(entry.HoursWorked), Kind: ledger.KindCompOffGrant,
			Reason:      fmt.Sprintf("%s hours %s work on %s", entry.HoursWorked, entry.WorkType, entry.WorkDate),
			ReferenceID: entry.ID, IdempotencyKey: "compoff-grant:" + entry.ID,
		}); err != nil {
			return err
		}
		return s.WorkLogs.UpdateWorkLog(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}

	s.Notify.Emit(ctx, notify.Event{
		Type: notify.EventWorkLogVerified, EmployeeID: entry.EmployeeID,
		RequestID: entry.ID, ActorID: verifierID,
	})
	return entry, nil
}

// =============================================================================
// REDEMPTION
// =============================================================================

// ApplyOutcome mirrors the submission outcome plus the comp-off linkage.
type ApplyOutcome struct {
	Request  *Request
	Submit   *approval.SubmitOutcome
}

// ApplyForCompOff redeems hours from a verified work log into a time-off
// request, which enters the approval workflow under the comp-off chain. A
// validation-rejected submission leaves the work log untouched.
func (s *Service) ApplyForCompOff(ctx context.Context, employeeID, workLogID string, hoursToRedeem decimal.Decimal, start, end calendar.Date) (*ApplyOutcome, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.WorkLogs.GetWorkLog(ctx, workLogID)
	if err != nil {
		return nil, err
	}
	if entry.EmployeeID != employeeID {
		return nil, fmt.Errorf("log %s belongs to %s: %w", workLogID, entry.EmployeeID, ErrWorkLogNotFound)
	}
	if !entry.Redeemable(calendar.Today()) {
		return nil, fmt.Errorf("log %s is %s: %w", workLogID, entry.Status, ErrInvalidTransition)
	}

	emp, err := directory.GetActive(ctx, s.Dir, employeeID)
	if err != nil {
		return nil, err
	}
	pol, err := s.Policies.Get(ctx, leave.TypeCompOff, emp.Region)
	if err != nil {
		return nil, err
	}

	if hoursToRedeem.LessThan(pol.CompOffMinHours) ||
		hoursToRedeem.GreaterThan(pol.CompOffMaxHours) ||
		hoursToRedeem.GreaterThan(entry.Remaining()) {
		return nil, &RedemptionBoundsError{
			WorkLogID: workLogID, Requested: hoursToRedeem,
			Min: pol.CompOffMinHours, Max: pol.CompOffMaxHours,
			Remaining: entry.Remaining(),
		}
	}

	outcome, err := s.Approvals.Submit(ctx, validation.Candidate{
		EmployeeID: employeeID,
		LeaveType:  leave.TypeCompOff,
		StartDate:  start,
		EndDate:    end,
		Reason:     fmt.Sprintf("comp-off redemption of %s hours from %s", hoursToRedeem, entry.WorkDate),
	})
	if err != nil {
		return nil, err
	}
	if outcome.Request == nil {
		// Validation verdict rejected it; the work log stays as it was.
		return &ApplyOutcome{Submit: outcome}, nil
	}

	req := &Request{
		ID:             uuid.NewString(),
		EmployeeID:     employeeID,
		WorkLogID:      workLogID,
		LeaveRequestID: outcome.Request.ID,
		HoursToRedeem:  hoursToRedeem,
		StartDate:      start,
		EndDate:        end,
		// Auto-approved submissions are already terminal here.
		Status:    outcome.Request.Status,
		CreatedAt: time.Now(),
	}

	entry.RedeemedHours = entry.RedeemedHours.Add(hoursToRedeem)
	if !entry.Remaining().IsPositive() {
		entry.Status = LogConsumed
	}

	err = s.Ledger.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.Requests.SaveCompOffRequest(txCtx, req); err != nil {
			return err
		}
		return s.WorkLogs.UpdateWorkLog(txCtx, entry)
	})
	if err != nil {
		return nil, err
	}
	return &ApplyOutcome{Request: req, Submit: outcome}, nil
}

// RequestResolved reconciles a redemption when its linked leave request
// reaches a terminal state. Rejection and cancellation hand the redeemed
// hours back to the work log, reopening it for redemption; approval just
// records the outcome. The workflow invokes this inside the transaction
// that commits the request transition, so both sides move together.
//
// No service mutex here: the workflow already serializes per request, and
// taking s.mu under an open store transaction would invert the lock order
// against ApplyForCompOff.
func (s *Service) RequestResolved(ctx context.Context, req *leave.Request) error {
	if req.LeaveType != leave.TypeCompOff {
		return nil
	}
	cr, err := s.Requests.CompOffRequestByLeaveRequest(ctx, req.ID)
	if errors.Is(err, ErrCompOffRequestNotFound) {
		// A comp-off leave request without a linked redemption record
		// (seeded or migrated data); nothing to reconcile.
		return nil
	}
	if err != nil {
		return err
	}
	if !cr.Status.Active() {
		return nil
	}

	switch req.Status {
	case leave.StatusApproved:
		cr.Status = leave.StatusApproved
		return s.Requests.UpdateCompOffRequest(ctx, cr)

	case leave.StatusRejected, leave.StatusCancelled:
		entry, err := s.WorkLogs.GetWorkLog(ctx, cr.WorkLogID)
		if err != nil {
			return err
		}
		entry.RedeemedHours = entry.RedeemedHours.Sub(cr.HoursToRedeem)
		if entry.Status == LogConsumed {
			entry.Status = LogVerified
		}
		if err := s.WorkLogs.UpdateWorkLog(ctx, entry); err != nil {
			return err
		}
		cr.Status = req.Status
		if err := s.Requests.UpdateCompOffRequest(ctx, cr); err != nil {
			return err
		}
		s.Log.Info().Str("work_log", entry.ID).Str("comp_off_request", cr.ID).
			Stringer("hours", cr.HoursToRedeem).Msg("redemption returned to work log")
		return nil
	}
	return nil
}

// =============================================================================
// EXPIRY SWEEP
// =============================================================================

// SweepResult reports one expiry run.
type SweepResult struct {
	Examined int
	Expired  int
	Failed   int
}

// RunExpiry sweeps unredeemed VERIFIED hours past their horizon out of the
// redeemable pool and decrements the comp-off balance accordingly. Safe to
// re-run: every action is idempotency-keyed by log id.
func (s *Service) RunExpiry(ctx context.Context, asOf calendar.Date) (*SweepResult, error) {
	logs, err := s.WorkLogs.ExpiredVerified(ctx, asOf)
	if err != nil {
		return nil, err
	}

	result := &SweepResult{}
	for _, entry := range logs {
		result.Examined++
		if err := s.expireOne(ctx, entry); err != nil {
			result.Failed++
			s.Log.Warn().Err(err).Str("work_log", entry.ID).Msg("comp-off expiry failed, skipping")
			continue
		}
		result.Expired++
	}

	s.Log.Info().Int("examined", result.Examined).Int("expired", result.Expired).
		Int("failed", result.Failed).Msg("comp-off expiry sweep complete")
	return result, nil
}

func (s *Service) expireOne(ctx context.Context, entry *WorkLogEntry) error {
	remaining := entry.Remaining()
	entry.Status = LogExpired

	err := s.Ledger.WithTx(ctx, func(txCtx context.Context) error {
		if _, err := s.Ledger.Debit(txCtx, ledger.DebitInput{
			EmployeeID: entry.EmployeeID, LeaveType: leave.TypeCompOff, Year: entry.WorkDate.Year(),
			Amount: hoursToDays(remaining), Kind: ledger.KindExpiry,
			Reason:      fmt.Sprintf("unredeemed comp-off expired after %s", entry.ExpiresAt),
			ReferenceID: entry.ID, IdempotencyKey: "compoff-expire:" + entry.ID,
		}); err != nil {
			return err
		}
		return s.WorkLogs.UpdateWorkLog(txCtx, entry)
	})
	if err != nil {
		return err
	}

	s.Notify.Emit(ctx, notify.Event{
		Type: notify.EventCompOffExpired, EmployeeID: entry.EmployeeID,
		RequestID: entry.ID, ActorID: "system",
	})
	return nil
}
