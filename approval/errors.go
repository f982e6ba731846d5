/*
errors.go - Approval workflow error taxonomy

CATEGORIES:
  - Configuration/data errors: IncompleteApprovalChain (fatal for the
    request, nothing partially commits)
  - Concurrency/authorization guards: NotAuthorizedApprover,
    AlreadyProcessed (recoverable; caller re-fetches current state)
*/
package approval

import (
	"errors"
	"fmt"

	"github.com/warp/leave-engine/policy"
)

var (
	// ErrNotAuthorizedApprover is returned when the actor does not match the
	// approver of the chain's current pending level.
	ErrNotAuthorizedApprover = errors.New("not the authorized approver for the current level")

	// ErrAlreadyProcessed is returned when the targeted level has already
	// been decided, including by a concurrent winner.
	ErrAlreadyProcessed = errors.New("approval level already processed")

	// ErrIncompleteApprovalChain is returned at construction time when a
	// required role cannot be resolved in the hierarchy.
	ErrIncompleteApprovalChain = errors.New("incomplete approval chain")

	// ErrChainNotFound is returned when no chain exists for the request.
	ErrChainNotFound = errors.New("approval chain not found")

	// ErrRequestNotPending is returned when a decision targets a request
	// that is no longer pending.
	ErrRequestNotPending = errors.New("leave request is not pending")
)

// IncompleteChainError names the missing role so callers can surface
// actionable configuration detail.
type IncompleteChainError struct {
	EmployeeID string
	Role       policy.Role
}

func (e *IncompleteChainError) Error() string {
	return fmt.Sprintf("cannot build approval chain for %s: no %s configured in hierarchy",
		e.EmployeeID, e.Role)
}

func (e *IncompleteChainError) Unwrap() error { return ErrIncompleteApprovalChain }
