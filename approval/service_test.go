package approval_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
	"github.com/warp/leave-engine/validation"
)

// =============================================================================
// SUBMISSION
// =============================================================================

func TestSubmit_Valid_CreatesPendingRequestAndChain(t *testing.T) {
	// GIVEN: sufficient balance and a manager-only policy
	// WHEN: submitting a 2-day request
	// THEN: a PENDING request and a level-1 chain exist; no balance touched

	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(1))
	require.NotNil(t, outcome.Request)
	assert.True(t, outcome.Verdict.IsValid)
	assert.False(t, outcome.AutoApproved)
	assert.True(t, outcome.Request.TotalDays.Equal(d(2)))

	chain, err := e.store.GetChain(context.Background(), outcome.Request.ID)
	require.NoError(t, err)
	require.Len(t, chain.Levels, 1)
	assert.Equal(t, "mgr-1", chain.Levels[0].ApproverID)
	assert.Equal(t, 1, chain.CurrentLevel)

	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(10)),
		"submission alone never debits")
}

func TestSubmit_ValidationFails_NoRequestPersisted(t *testing.T) {
	// GIVEN: only 1 day available
	// WHEN: submitting a 3-day request
	// THEN: the verdict carries the violation; nothing is persisted

	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 1)

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(2))
	assert.Nil(t, outcome.Request)
	assert.False(t, outcome.Verdict.IsValid)
	require.NotEmpty(t, outcome.Verdict.Errors)
	assert.Equal(t, validation.CodeInsufficientBal, outcome.Verdict.Errors[0].Code)

	requests, err := e.store.RequestsByEmployee(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Empty(t, requests)
}

func TestSubmit_UnknownLeaveType_Error(t *testing.T) {
	e := newEnv(t)
	_, err := e.service.Submit(context.Background(), validation.Candidate{
		EmployeeID: "emp-1", LeaveType: "sabbatical",
		StartDate: nextMonday(30), EndDate: nextMonday(30),
	})
	assert.ErrorIs(t, err, approval.ErrUnknownLeaveType)
}

func TestSubmit_InactiveEmployee_Error(t *testing.T) {
	e := newEnv(t)
	e.policies.Put(testPolicy())
	e.dir.Put(&directory.Employee{
		ID: "emp-gone", Region: "IN", Status: directory.StatusTerminated,
	})

	_, err := e.service.Submit(context.Background(), validation.Candidate{
		EmployeeID: "emp-gone", LeaveType: leave.TypeEarned,
		StartDate: nextMonday(30), EndDate: nextMonday(30),
	})
	assert.ErrorIs(t, err, directory.ErrInactiveEmployee)
}

func TestSubmit_BrokenHierarchy_FailsBeforePersisting(t *testing.T) {
	// GIVEN: the policy requires a manager but none is configured
	// THEN: submission fails with an incomplete-chain error, nothing saved

	e := newEnv(t)
	e.policies.Put(testPolicy())
	e.dir.Put(&directory.Employee{
		ID: "emp-orphan", JoiningDate: nextMonday(0).AddYears(-3),
		Region: "IN", Status: directory.StatusActive,
	})
	start := nextMonday(30)
	e.seed(t, "emp-orphan", leave.TypeEarned, start.Year(), 10)

	_, err := e.service.Submit(context.Background(), validation.Candidate{
		EmployeeID: "emp-orphan", LeaveType: leave.TypeEarned,
		StartDate: start, EndDate: start,
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, approval.ErrIncompleteApprovalChain)

	requests, err := e.store.RequestsByEmployee(context.Background(), "emp-orphan")
	require.NoError(t, err)
	assert.Empty(t, requests)
}

func TestSubmit_HalfDay_ConsumesHalfUnit(t *testing.T) {
	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)

	outcome, err := e.service.Submit(context.Background(), validation.Candidate{
		EmployeeID: "emp-1", LeaveType: leave.TypeEarned,
		StartDate: start, EndDate: start, IsHalfDay: true,
	})
	require.NoError(t, err)
	require.NotNil(t, outcome.Request)
	assert.True(t, outcome.Request.TotalDays.Equal(d(0.5)))

	_, err = e.workflow.ProcessApproval(context.Background(),
		outcome.Request.ID, "mgr-1", approval.DecisionApprove, "")
	require.NoError(t, err)
	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(9.5)))
}

// =============================================================================
// OVERLAP - inclusive boundaries
// =============================================================================

func TestSubmit_OverlappingDates_Rejected(t *testing.T) {
	// GIVEN: an active request Mon..Wed
	// WHEN: submitting Wed..Thu (shares Wed) and Thu..Fri (no shared day)
	// THEN: the first is rejected for overlap, the second accepted

	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 20)

	first := e.submit(t, leave.TypeEarned, start, start.AddDays(2)) // Mon..Wed
	require.NotNil(t, first.Request)

	overlapping := e.submit(t, leave.TypeEarned, start.AddDays(2), start.AddDays(3)) // Wed..Thu
	assert.Nil(t, overlapping.Request, "a single shared day is an overlap")
	require.NotEmpty(t, overlapping.Verdict.Errors)
	assert.Equal(t, validation.CodeOverlap, overlapping.Verdict.Errors[0].Code)

	adjacent := e.submit(t, leave.TypeEarned, start.AddDays(3), start.AddDays(4)) // Thu..Fri
	assert.NotNil(t, adjacent.Request, "touching ranges without a shared day do not overlap")
}

func TestSubmit_OverlapWithCancelledRequest_Allowed(t *testing.T) {
	// Cancelled requests release their dates.
	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 20)
	ctx := context.Background()

	first := e.submit(t, leave.TypeEarned, start, start.AddDays(2))
	require.NotNil(t, first.Request)

	_, err := e.service.Cancel(ctx, first.Request.ID, "emp-1")
	require.NoError(t, err)

	second := e.submit(t, leave.TypeEarned, start, start.AddDays(2))
	assert.NotNil(t, second.Request)
}

// =============================================================================
// AUTO-APPROVAL
// =============================================================================

func TestSubmit_AutoApprove_ShortSickLeave(t *testing.T) {
	// GIVEN: sick leave auto-approves up to 2 days
	// WHEN: submitting a 2-day sick request
	// THEN: approved immediately, debited, no chain built

	e := newEnv(t)
	e.policies.Put(policy.SickLeavePolicy("IN", 1))
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeSick, start.Year(), 6)
	ctx := context.Background()

	outcome := e.submit(t, leave.TypeSick, start, start.AddDays(1))
	require.NotNil(t, outcome.Request)
	assert.True(t, outcome.AutoApproved)
	assert.Equal(t, leave.StatusApproved, outcome.Request.Status)
	assert.True(t, e.available(t, "emp-1", leave.TypeSick, start.Year()).Equal(d(4)))

	_, err := e.store.GetChain(ctx, outcome.Request.ID)
	assert.ErrorIs(t, err, approval.ErrChainNotFound, "auto-approval skips the chain entirely")
}

func TestSubmit_AutoApproveThresholdExceeded_GoesThroughChain(t *testing.T) {
	// A 3-day sick request is over the 2-day auto-approve cap.
	e := newEnv(t)
	e.policies.Put(policy.SickLeavePolicy("IN", 1))
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeSick, start.Year(), 6)

	outcome := e.submit(t, leave.TypeSick, start, start.AddDays(2))
	require.NotNil(t, outcome.Request)
	assert.False(t, outcome.AutoApproved)
	assert.Equal(t, leave.StatusPending, outcome.Request.Status)
}

// =============================================================================
// DRY-RUN VALIDATION
// =============================================================================

func TestValidate_PersistsNothing(t *testing.T) {
	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)

	verdict, err := e.service.Validate(context.Background(), validation.Candidate{
		EmployeeID: "emp-1", LeaveType: leave.TypeEarned,
		StartDate: start, EndDate: start.AddDays(1),
	})
	require.NoError(t, err)
	assert.True(t, verdict.IsValid)
	assert.True(t, verdict.Duration.Equal(d(2)))

	requests, err := e.store.RequestsByEmployee(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Empty(t, requests)
}

// =============================================================================
// CANCELLATION
// =============================================================================

func TestCancel_PendingRequest_NoBalanceTouch(t *testing.T) {
	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)
	ctx := context.Background()

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(1))
	req, err := e.service.Cancel(ctx, outcome.Request.ID, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, req.Status)
	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(10)))
}

func TestCancel_ApprovedRequest_RefundsInFull(t *testing.T) {
	// GIVEN: an approved 2-day request (balance at 8)
	// WHEN: cancelling
	// THEN: the 2 days come back as a refund entry

	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)
	ctx := context.Background()

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(1))
	_, err := e.workflow.ProcessApproval(ctx, outcome.Request.ID, "mgr-1", approval.DecisionApprove, "")
	require.NoError(t, err)
	require.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(8)))

	req, err := e.service.Cancel(ctx, outcome.Request.ID, "emp-1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusCancelled, req.Status)
	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(10)))

	entries, err := e.ledger.History(ctx, "emp-1", leave.TypeEarned, start.Year())
	require.NoError(t, err)
	last := entries[len(entries)-1]
	assert.Equal(t, ledger.KindRefund, last.Kind)
	assert.True(t, last.Amount.Equal(d(2)))
}

func TestCancel_AlreadyCancelled_Rejected(t *testing.T) {
	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)
	ctx := context.Background()

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(1))
	_, err := e.service.Cancel(ctx, outcome.Request.ID, "emp-1")
	require.NoError(t, err)

	_, err = e.service.Cancel(ctx, outcome.Request.ID, "emp-1")
	assert.ErrorIs(t, err, approval.ErrRequestNotPending)
}

// =============================================================================
// MODIFICATION
// =============================================================================

func TestModify_Extension_DebitsTheDelta(t *testing.T) {
	// GIVEN: an approved 2-day request
	// WHEN: extending it to 4 days
	// THEN: the extra 2 days are debited; TotalDays updates

	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)
	ctx := context.Background()

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(1))
	_, err := e.workflow.ProcessApproval(ctx, outcome.Request.ID, "mgr-1", approval.DecisionApprove, "")
	require.NoError(t, err)

	req, err := e.service.Modify(ctx, outcome.Request.ID, start, start.AddDays(3), false)
	require.NoError(t, err)
	assert.True(t, req.TotalDays.Equal(d(4)))
	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(6)))
}

func TestModify_Reduction_RefundsTheDelta(t *testing.T) {
	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)
	ctx := context.Background()

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(3))
	_, err := e.workflow.ProcessApproval(ctx, outcome.Request.ID, "mgr-1", approval.DecisionApprove, "")
	require.NoError(t, err)
	require.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(6)))

	req, err := e.service.Modify(ctx, outcome.Request.ID, start, start.AddDays(1), false)
	require.NoError(t, err)
	assert.True(t, req.TotalDays.Equal(d(2)))
	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(8)))
}

func TestModify_PendingRequest_Rejected(t *testing.T) {
	// Only approved requests can be modified; pending ones are cancelled and
	// resubmitted instead.
	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(1))
	_, err := e.service.Modify(context.Background(), outcome.Request.ID, start, start.AddDays(2), false)
	assert.ErrorIs(t, err, approval.ErrRequestNotPending)
}
