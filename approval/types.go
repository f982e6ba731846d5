/*
Package approval implements the multi-level, sequential approval workflow.

PURPOSE:
  Given a validated leave request, it builds an ordered chain of approver
  roles from the leave type, records per-level decisions, advances or
  terminates the chain, and on terminal approval commits the balance debit
  exactly once, atomically with the request's status transition.

CHAIN SHAPES (by leave type, from policy ApprovalRoles):
  standard leave -> {direct manager}
  comp-off       -> {direct manager, that manager's manager, HR}
  LWP            -> {direct manager, HR}

INVARIANTS:
  - Levels are strictly ordered 1..N with no gaps.
  - At most one level is PENDING and all earlier levels are APPROVED.
  - OverallStatus is derived, never stored: REJECTED if any level rejected,
    APPROVED only when every level approved, otherwise PENDING.
  - A REJECT at any level short-circuits: later levels stay untouched and
    the balance is never mutated.
  - The final APPROVE performs exactly one debit, re-checked against the
    live balance, in the same transaction as the status flip.

SEE ALSO:
  - chain.go: role resolution against the employee directory
  - workflow.go: decision processing and the serialized critical section
  - service.go: submission orchestration (validate -> chain -> auto-approve)
*/
package approval

import (
	"context"
	"time"

	"github.com/warp/leave-engine/policy"
)

// =============================================================================
// CHAIN
// =============================================================================

type LevelStatus string

const (
	LevelPending  LevelStatus = "pending"
	LevelApproved LevelStatus = "approved"
	LevelRejected LevelStatus = "rejected"
)

// Level is one approver position in the chain. Terminal per level: once
// decided it never changes.
type Level struct {
	Level        int // 1-based, strictly ordered, no gaps
	ApproverID   string
	ApproverRole policy.Role
	Status       LevelStatus
	Comments     string
	DecidedAt    *time.Time
}

type ChainStatus string

const (
	ChainPending  ChainStatus = "pending"
	ChainApproved ChainStatus = "approved"
	ChainRejected ChainStatus = "rejected"
)

// Chain is the approval state for one leave request.
type Chain struct {
	LeaveRequestID string
	Levels         []Level

	// CurrentLevel is the 1-based level awaiting a decision. Meaningless
	// once the chain is terminal.
	CurrentLevel int

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version drives update-if-version-matches in the persistence layer;
	// the loser of a concurrent decision sees AlreadyProcessed.
	Version int
}

// OverallStatus is derived from level states, never set directly.
func (c *Chain) OverallStatus() ChainStatus {
	approved := 0
	for _, lv := range c.Levels {
		switch lv.Status {
		case LevelRejected:
			return ChainRejected
		case LevelApproved:
			approved++
		}
	}
	if approved == len(c.Levels) {
		return ChainApproved
	}
	return ChainPending
}

// Current returns the level awaiting a decision, or nil when terminal.
func (c *Chain) Current() *Level {
	if c.OverallStatus() != ChainPending {
		return nil
	}
	if c.CurrentLevel < 1 || c.CurrentLevel > len(c.Levels) {
		return nil
	}
	return &c.Levels[c.CurrentLevel-1]
}

// IsFinalLevel reports whether the current level is the last one.
func (c *Chain) IsFinalLevel() bool {
	return c.CurrentLevel == len(c.Levels)
}

// =============================================================================
// DECISIONS
// =============================================================================

type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionReject  Decision = "reject"
)

// Result is the structured outcome of processing one decision.
type Result struct {
	RequestID string
	Decision  Decision
	Level     int

	// Completed is true when the chain reached a terminal state.
	Completed bool
	// NextLevel is set when the chain advanced (Completed false).
	NextLevel int

	Overall ChainStatus
}

// =============================================================================
// CHAIN STORE
// =============================================================================

// ChainStore persists approval chains, one per leave request. UpdateChain is
// update-if-version-matches, returning leave.ErrVersionConflict on loss.
type ChainStore interface {
	SaveChain(ctx context.Context, c *Chain) error
	GetChain(ctx context.Context, leaveRequestID string) (*Chain, error)
	UpdateChain(ctx context.Context, c *Chain) error

	// PendingForApprover returns chains whose current level awaits the given
	// approver.
	PendingForApprover(ctx context.Context, approverID string) ([]*Chain, error)
}
