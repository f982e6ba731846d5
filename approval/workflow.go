/*
workflow.go - Decision processing

SERIALIZATION:
  Concurrent decisions against the same request serialize on two layers:
  a per-request mutex inside the process, and update-if-version-matches on
  the chain across processes. Exactly one decision wins; the loser gets
  AlreadyProcessed and should re-fetch.

TOCTOU:
  Validation checked balance against a snapshot that may be stale by the
  time the final approver clicks. The debit here goes through the ledger,
  which re-checks sufficiency against the live record inside the same
  transaction that flips the request to APPROVED. Both commit or neither.
*/
package approval

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/policy"
)

type Workflow struct {
	Chains   ChainStore
	Requests leave.RequestStore
	Ledger   *ledger.Ledger
	Policies policy.Store
	Dir      directory.Directory
	Notify   notify.Sink
	Log      zerolog.Logger

	locks keyedMutex
	hooks []ResolutionHook
}

// ResolutionHook observes terminal request transitions from inside the
// transaction that commits them, so linked records move atomically with the
// request. The comp-off service registers one to reconcile redemptions.
type ResolutionHook interface {
	RequestResolved(ctx context.Context, req *leave.Request) error
}

// AddResolutionHook registers a hook. Not safe for concurrent use; wire
// hooks at startup, before the workflow serves decisions.
func (w *Workflow) AddResolutionHook(h ResolutionHook) {
	w.hooks = append(w.hooks, h)
}

func (w *Workflow) resolved(ctx context.Context, req *leave.Request) error {
	for _, h := range w.hooks {
		if err := h.RequestResolved(ctx, req); err != nil {
			return err
		}
	}
	return nil
}

func NewWorkflow(chains ChainStore, requests leave.RequestStore, l *ledger.Ledger,
	policies policy.Store, dir directory.Directory, sink notify.Sink, log zerolog.Logger) *Workflow {
	return &Workflow{
		Chains: chains, Requests: requests, Ledger: l,
		Policies: policies, Dir: dir, Notify: sink, Log: log,
	}
}

// =============================================================================
// PROCESS APPROVAL
// =============================================================================

// ProcessApproval records one approver decision and advances or terminates
// the chain. See package doc for the terminal-approval atomicity contract.
func (w *Workflow) ProcessApproval(ctx context.Context, requestID, approverID string, decision Decision, comments string) (*Result, error) {
	unlock := w.locks.lock(requestID)
	defer unlock()

	var (
		result *Result
		events []notify.Event
	)
	err := w.Ledger.WithTx(ctx, func(txCtx context.Context) error {
		chain, err := w.Chains.GetChain(txCtx, requestID)
		if err != nil {
			return err
		}

		cur := chain.Current()
		if cur == nil {
			return fmt.Errorf("request %s chain is %s: %w", requestID, chain.OverallStatus(), ErrAlreadyProcessed)
		}
		if cur.ApproverID != approverID {
			return fmt.Errorf("approver %s at level %d: %w", approverID, cur.Level, ErrNotAuthorizedApprover)
		}

		req, err := w.Requests.GetRequest(txCtx, requestID)
		if err != nil {
			return err
		}
		if req.Status != leave.StatusPending {
			return fmt.Errorf("request %s is %s: %w", requestID, req.Status, ErrRequestNotPending)
		}

		now := time.Now()
		cur.Comments = comments
		cur.DecidedAt = &now
		chain.UpdatedAt = now

		switch decision {
		case DecisionReject:
			// Short-circuit: later levels stay untouched, balance unchanged.
			cur.Status = LevelRejected
			req.Status = leave.StatusRejected
			req.UpdatedAt = now
			if err := w.commit(txCtx, chain, req); err != nil {
				return err
			}
			if err := w.resolved(txCtx, req); err != nil {
				return err
			}
			result = &Result{RequestID: requestID, Decision: decision, Level: cur.Level,
				Completed: true, Overall: ChainRejected}
			events = append(events, notify.Event{
				Type: notify.EventRequestRejected, EmployeeID: req.EmployeeID,
				RequestID: requestID, ActorID: approverID, Level: cur.Level, Detail: comments,
			})
			return nil

		case DecisionApprove:
			cur.Status = LevelApproved
			if !chain.IsFinalLevel() {
				chain.CurrentLevel++
				if err := w.Chains.UpdateChain(txCtx, chain); err != nil {
					return mapConflict(err)
				}
				result = &Result{RequestID: requestID, Decision: decision, Level: cur.Level,
					Completed: false, NextLevel: chain.CurrentLevel, Overall: ChainPending}
				events = append(events, notify.Event{
					Type: notify.EventLevelAdvanced, EmployeeID: req.EmployeeID,
					RequestID: requestID, ActorID: approverID, Level: chain.CurrentLevel,
				})
				return nil
			}

			// Final level: exactly one debit, atomic with the status flip.
			if err := w.debitForRequest(txCtx, req); err != nil {
				return err
			}
			req.Status = leave.StatusApproved
			req.UpdatedAt = now
			if err := w.commit(txCtx, chain, req); err != nil {
				return err
			}
			if err := w.resolved(txCtx, req); err != nil {
				return err
			}
			result = &Result{RequestID: requestID, Decision: decision, Level: cur.Level,
				Completed: true, Overall: ChainApproved}
			events = append(events, notify.Event{
				Type: notify.EventRequestApproved, EmployeeID: req.EmployeeID,
				RequestID: requestID, ActorID: approverID, Level: cur.Level,
			})
			return nil

		default:
			return fmt.Errorf("unknown decision %q", decision)
		}
	})
	if err != nil {
		return nil, err
	}

	// Fire-and-forget, after commit: a failed notification never rolls back
	// a decision.
	for _, ev := range events {
		w.Notify.Emit(ctx, ev)
	}
	return result, nil
}

func (w *Workflow) commit(ctx context.Context, chain *Chain, req *leave.Request) error {
	if err := w.Chains.UpdateChain(ctx, chain); err != nil {
		return mapConflict(err)
	}
	if err := w.Requests.UpdateRequest(ctx, req); err != nil {
		return mapConflict(err)
	}
	return nil
}

// debitForRequest commits the request's computed duration against the live
// balance, honoring the type's negative-balance policy.
func (w *Workflow) debitForRequest(ctx context.Context, req *leave.Request) error {
	emp, err := w.Dir.Get(ctx, req.EmployeeID)
	if err != nil {
		return err
	}
	pol, err := w.Policies.Get(ctx, req.LeaveType, emp.Region)
	if err != nil {
		return err
	}

	_, err = w.Ledger.Debit(ctx, ledger.DebitInput{
		EmployeeID: req.EmployeeID, LeaveType: req.LeaveType, Year: req.StartDate.Year(),
		Amount: req.TotalDays, Kind: ledger.KindConsumption,
		Reason:      fmt.Sprintf("leave %s to %s", req.StartDate, req.EndDate),
		ReferenceID: req.ID, IdempotencyKey: "consume:" + req.ID,
		Options: ledger.DebitOptions{
			AllowNegative: pol.AllowNegativeBalance,
			Floor:         pol.NegativeFloor(),
		},
	})
	return err
}

// mapConflict turns a version-conflict loss into the caller-facing guard.
func mapConflict(err error) error {
	if errors.Is(err, leave.ErrVersionConflict) {
		return fmt.Errorf("lost concurrent decision: %w", ErrAlreadyProcessed)
	}
	return err
}

// =============================================================================
// KEYED MUTEX - Per-request critical section
// =============================================================================

type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*entry
}

type entry struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*entry)
	}
	e, ok := k.locks[key]
	if !ok {
		e = &entry{}
		k.locks[key] = e
	}
	e.refs++
	k.mu.Unlock()

	e.mu.Lock()
	return func() {
		e.mu.Unlock()
		k.mu.Lock()
		e.refs--
		if e.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
