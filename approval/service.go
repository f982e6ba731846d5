/*
service.go - Request lifecycle orchestration

Submit ties the engine together: validate the candidate, then either
auto-approve (policy-whitelisted types, no errors raised) or instantiate the
approval chain. Cancel and Modify are the explicit flows that adjust an
already-committed balance: cancellation credits the debit back in full,
modification adjusts by the delta.
*/
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/validation"
)

// ErrUnknownLeaveType is returned for unregistered leave types.
var ErrUnknownLeaveType = errors.New("unknown leave type")

// Service orchestrates submission, cancellation, and modification.
type Service struct {
	Workflow *Workflow
	Builder  *Builder
	Holidays calendar.HolidayCalendar
}

func NewService(w *Workflow, holidays calendar.HolidayCalendar) *Service {
	if holidays == nil {
		holidays = calendar.NoHolidays{}
	}
	return &Service{Workflow: w, Builder: &Builder{Dir: w.Dir}, Holidays: holidays}
}

// SubmitOutcome is what the caller gets back: either a rejected-by-validation
// verdict (Request nil) or the created request plus its verdict.
type SubmitOutcome struct {
	Request *leave.Request
	Verdict validation.Verdict

	// AutoApproved is true when the request skipped the chain entirely.
	AutoApproved bool
}

// evaluate runs the read phase: loads the employee, policy, balance snapshot,
// and neighboring requests, then applies the rule set.
func (s *Service) evaluate(ctx context.Context, cand validation.Candidate) (validation.Verdict, *directory.Employee, error) {
	w := s.Workflow

	if !leave.IsRegistered(cand.LeaveType) {
		return validation.Verdict{}, nil, fmt.Errorf("%q: %w", cand.LeaveType, ErrUnknownLeaveType)
	}

	emp, err := directory.GetActive(ctx, w.Dir, cand.EmployeeID)
	if err != nil {
		return validation.Verdict{}, nil, err
	}

	pol, err := w.Policies.Get(ctx, cand.LeaveType, emp.Region)
	if err != nil {
		return validation.Verdict{}, nil, err
	}

	snap, err := w.Ledger.Snapshot(ctx, cand.EmployeeID, cand.LeaveType, cand.StartDate.Year())
	if err != nil {
		return validation.Verdict{}, nil, err
	}

	// Widen the overlap window by the gap rule so spacing checks see the
	// neighboring requests too.
	pad := pol.MinGapDays + 1
	existing, err := w.Requests.RequestsInRange(ctx, cand.EmployeeID,
		cand.StartDate.AddDays(-pad), cand.EndDate.AddDays(pad))
	if err != nil {
		return validation.Verdict{}, nil, err
	}

	verdict := validation.Evaluate(validation.Input{
		Candidate: cand,
		Employee:  emp,
		Policy:    pol,
		Balance:   snap,
		Existing:  existing,
		Holidays:  s.Holidays,
		Today:     calendar.Today(),
	})
	return verdict, emp, nil
}

// Validate is the dry-run entry point: full rule evaluation, nothing
// persisted.
func (s *Service) Validate(ctx context.Context, cand validation.Candidate) (validation.Verdict, error) {
	verdict, _, err := s.evaluate(ctx, cand)
	return verdict, err
}

// Submit validates and files a leave request. Business-rule violations are
// returned in the verdict, never as an error; errors are reserved for
// data-integrity problems (missing employee, missing policy, broken chain).
func (s *Service) Submit(ctx context.Context, cand validation.Candidate) (*SubmitOutcome, error) {
	w := s.Workflow

	verdict, emp, err := s.evaluate(ctx, cand)
	if err != nil {
		return nil, err
	}
	if !verdict.IsValid {
		return &SubmitOutcome{Verdict: verdict}, nil
	}

	now := time.Now()
	req := &leave.Request{
		ID:         uuid.NewString(),
		EmployeeID: cand.EmployeeID,
		LeaveType:  cand.LeaveType,
		StartDate:  cand.StartDate,
		EndDate:    cand.EndDate,
		TotalDays:  verdict.Duration,
		IsHalfDay:  cand.IsHalfDay,
		Reason:     cand.Reason,
		Status:     leave.StatusPending,

		RequiredDocumentation: verdict.RequiredDocumentation,
		CreatedAt:             now,
		UpdatedAt:             now,
	}

	if verdict.AutoApprovalEligible {
		// Debit and approve in one transaction; no chain is built.
		err := w.Ledger.WithTx(ctx, func(txCtx context.Context) error {
			req.Status = leave.StatusApproved
			if err := w.Requests.SaveRequest(txCtx, req); err != nil {
				return err
			}
			return w.debitForRequest(txCtx, req)
		})
		if err != nil {
			return nil, err
		}
		w.Notify.Emit(ctx, notify.Event{
			Type: notify.EventRequestApproved, EmployeeID: req.EmployeeID,
			RequestID: req.ID, ActorID: "system", Detail: "auto-approved",
		})
		return &SubmitOutcome{Request: req, Verdict: verdict, AutoApproved: true}, nil
	}

	// Build first: a broken hierarchy must fail before anything persists.
	chain, err := s.Builder.Build(ctx, req.ID, emp, verdict.ChainSpec)
	if err != nil {
		return nil, err
	}

	err = w.Ledger.WithTx(ctx, func(txCtx context.Context) error {
		if err := w.Requests.SaveRequest(txCtx, req); err != nil {
			return err
		}
		return w.Chains.SaveChain(txCtx, chain)
	})
	if err != nil {
		return nil, err
	}

	w.Notify.Emit(ctx, notify.Event{
		Type: notify.EventRequestSubmitted, EmployeeID: req.EmployeeID,
		RequestID: req.ID, ActorID: req.EmployeeID, Level: 1,
	})
	return &SubmitOutcome{Request: req, Verdict: verdict}, nil
}

// Cancel withdraws a request. A pending request simply flips status; an
// approved one also credits its debit back in full.
func (s *Service) Cancel(ctx context.Context, requestID, actorID string) (*leave.Request, error) {
	w := s.Workflow
	unlock := w.locks.lock(requestID)
	defer unlock()

	var req *leave.Request
	err := w.Ledger.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = w.Requests.GetRequest(txCtx, requestID)
		if err != nil {
			return err
		}

		switch req.Status {
		case leave.StatusPending:
			// No balance was touched; nothing to credit back.
		case leave.StatusApproved:
			if _, err := w.Ledger.Credit(txCtx, ledger.CreditInput{
				EmployeeID: req.EmployeeID, LeaveType: req.LeaveType, Year: req.StartDate.Year(),
				Amount: req.TotalDays, Kind: ledger.KindRefund,
				Reason: "cancellation credit-back", ReferenceID: req.ID,
				IdempotencyKey: "refund:" + req.ID,
			}); err != nil {
				return err
			}
		default:
			return fmt.Errorf("request %s is %s: %w", requestID, req.Status, ErrRequestNotPending)
		}

		req.Status = leave.StatusCancelled
		req.UpdatedAt = time.Now()
		if err := w.Requests.UpdateRequest(txCtx, req); err != nil {
			return err
		}
		return w.resolved(txCtx, req)
	})
	if err != nil {
		return nil, err
	}

	w.Notify.Emit(ctx, notify.Event{
		Type: notify.EventRequestCancelled, EmployeeID: req.EmployeeID,
		RequestID: req.ID, ActorID: actorID,
	})
	return req, nil
}

// Modify changes the dates of an approved request and settles the balance by
// the delta: a longer request debits the difference, a shorter one refunds
// it. TotalDays is immutable outside this flow.
func (s *Service) Modify(ctx context.Context, requestID string, start, end calendar.Date, isHalfDay bool) (*leave.Request, error) {
	w := s.Workflow
	unlock := w.locks.lock(requestID)
	defer unlock()

	var req *leave.Request
	err := w.Ledger.WithTx(ctx, func(txCtx context.Context) error {
		var err error
		req, err = w.Requests.GetRequest(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.Status != leave.StatusApproved {
			return fmt.Errorf("request %s is %s: %w", requestID, req.Status, ErrRequestNotPending)
		}

		emp, err := w.Dir.Get(txCtx, req.EmployeeID)
		if err != nil {
			return err
		}
		pol, err := w.Policies.Get(txCtx, req.LeaveType, emp.Region)
		if err != nil {
			return err
		}

		newDays := leave.Duration(start, end, isHalfDay, s.Holidays)
		delta := newDays.Sub(req.TotalDays)

		switch {
		case delta.IsPositive():
			if _, err := w.Ledger.Debit(txCtx, ledger.DebitInput{
				EmployeeID: req.EmployeeID, LeaveType: req.LeaveType, Year: req.StartDate.Year(),
				Amount: delta, Kind: ledger.KindConsumption,
				Reason: "modification extension", ReferenceID: req.ID,
				Options: ledger.DebitOptions{AllowNegative: pol.AllowNegativeBalance, Floor: pol.NegativeFloor()},
			}); err != nil {
				return err
			}
		case delta.IsNegative():
			if _, err := w.Ledger.Credit(txCtx, ledger.CreditInput{
				EmployeeID: req.EmployeeID, LeaveType: req.LeaveType, Year: req.StartDate.Year(),
				Amount: delta.Neg(), Kind: ledger.KindRefund,
				Reason: "modification reduction", ReferenceID: req.ID,
			}); err != nil {
				return err
			}
		}

		req.StartDate = start
		req.EndDate = end
		req.IsHalfDay = isHalfDay
		req.TotalDays = newDays
		req.UpdatedAt = time.Now()
		return w.Requests.UpdateRequest(txCtx, req)
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}
