package approval_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/notify"
	"github.com/warp/leave-engine/policy"
	"github.com/warp/leave-engine/store/memory"
	"github.com/warp/leave-engine/validation"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type env struct {
	store    *memory.Store
	ledger   *ledger.Ledger
	dir      *directory.MemoryDirectory
	policies *policy.MemoryStore
	service  *approval.Service
	workflow *approval.Workflow
}

// newEnv wires the engine against in-memory collaborators with a small
// reporting hierarchy: emp-1 -> mgr-1 -> dir-1, and hr-1 as regional HR.
func newEnv(t *testing.T) *env {
	t.Helper()

	store := memory.New()
	l := ledger.NewLedger(store)
	dir := directory.NewMemoryDirectory()
	policies := policy.NewMemoryStore()

	joined := calendar.NewDate(2020, time.January, 1)
	dir.Put(&directory.Employee{
		ID: "emp-1", Name: "Asha", JoiningDate: joined, Region: "IN",
		Status: directory.StatusActive, ReportingManagerID: "mgr-1",
	})
	dir.Put(&directory.Employee{
		ID: "mgr-1", Name: "Ravi", JoiningDate: joined, Region: "IN",
		Status: directory.StatusActive, ReportingManagerID: "dir-1",
	})
	dir.Put(&directory.Employee{
		ID: "dir-1", Name: "Meera", JoiningDate: joined, Region: "IN",
		Status: directory.StatusActive,
	})
	dir.Put(&directory.Employee{
		ID: "hr-1", Name: "Kiran", JoiningDate: joined, Region: "IN",
		Status: directory.StatusActive,
	})
	dir.SetHR("IN", "hr-1")

	workflow := approval.NewWorkflow(store, store, l, policies, dir, notify.Discard{}, zerolog.Nop())
	service := approval.NewService(workflow, nil)

	return &env{
		store: store, ledger: l, dir: dir, policies: policies,
		service: service, workflow: workflow,
	}
}

// testPolicy is an earned-leave shape with every bound disabled, so tests
// control exactly which rule is under exercise.
func testPolicy(roles ...policy.Role) *policy.LeavePolicy {
	if len(roles) == 0 {
		roles = []policy.Role{policy.RoleManager}
	}
	return &policy.LeavePolicy{
		LeaveType: leave.TypeEarned, Region: "IN", Name: "Earned Leave",
		AccrualMode: policy.AccrualMonthly, MonthlyRate: d(1),
		YearEnd: policy.YearEndCarryForward, MaxCarryForward: d(5),
		ApprovalRoles: roles,
	}
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

// nextMonday returns the first Monday at least n days in the future, keeping
// test requests clear of notice and backdating rules.
func nextMonday(n int) calendar.Date {
	day := calendar.Today().AddDays(n)
	for day.Weekday() != time.Monday {
		day = day.AddDays(1)
	}
	return day
}

func (e *env) seed(t *testing.T, emp string, lt leave.Type, year int, amount float64) {
	t.Helper()
	_, err := e.ledger.Credit(context.Background(), ledger.CreditInput{
		EmployeeID: emp, LeaveType: lt, Year: year,
		Amount: d(amount), Kind: ledger.KindAccrual,
		Reason: "seed", IdempotencyKey: "seed:" + emp + ":" + string(lt),
	})
	require.NoError(t, err)
}

func (e *env) submit(t *testing.T, lt leave.Type, start, end calendar.Date) *approval.SubmitOutcome {
	t.Helper()
	outcome, err := e.service.Submit(context.Background(), validation.Candidate{
		EmployeeID: "emp-1", LeaveType: lt,
		StartDate: start, EndDate: end, Reason: "trip",
	})
	require.NoError(t, err)
	return outcome
}

func (e *env) available(t *testing.T, emp string, lt leave.Type, year int) decimal.Decimal {
	t.Helper()
	snap, err := e.ledger.Snapshot(context.Background(), emp, lt, year)
	require.NoError(t, err)
	return snap.Available
}

// =============================================================================
// SINGLE-LEVEL CHAIN
// =============================================================================

func TestProcessApproval_SingleLevel_Approve_DebitsOnce(t *testing.T) {
	// GIVEN: a pending 3-day request with a manager-only chain
	// WHEN: the manager approves
	// THEN: request flips to APPROVED with exactly one consumption debit

	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(2))
	require.NotNil(t, outcome.Request)
	require.Equal(t, leave.StatusPending, outcome.Request.Status)

	result, err := e.workflow.ProcessApproval(context.Background(),
		outcome.Request.ID, "mgr-1", approval.DecisionApprove, "ok")
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.Equal(t, approval.ChainApproved, result.Overall)

	req, err := e.store.GetRequest(context.Background(), outcome.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, req.Status)
	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(7)))

	entries, err := e.ledger.History(context.Background(), "emp-1", leave.TypeEarned, start.Year())
	require.NoError(t, err)
	consumptions := 0
	for _, entry := range entries {
		if entry.Kind == ledger.KindConsumption {
			consumptions++
		}
	}
	assert.Equal(t, 1, consumptions, "terminal approval debits exactly once")
}

func TestProcessApproval_SingleLevel_Reject_NoDebit(t *testing.T) {
	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(2))
	require.NotNil(t, outcome.Request)

	result, err := e.workflow.ProcessApproval(context.Background(),
		outcome.Request.ID, "mgr-1", approval.DecisionReject, "coverage gap")
	require.NoError(t, err)

	assert.True(t, result.Completed)
	assert.Equal(t, approval.ChainRejected, result.Overall)

	req, err := e.store.GetRequest(context.Background(), outcome.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusRejected, req.Status)
	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(10)),
		"rejection must never touch the balance")
}

// =============================================================================
// MULTI-LEVEL CHAIN
// =============================================================================

func TestProcessApproval_ThreeLevels_SequentialCompletion(t *testing.T) {
	// GIVEN: a three-level chain (manager, senior manager, HR)
	// WHEN: each level approves in order
	// THEN: the debit happens only at the terminal approval

	e := newEnv(t)
	e.policies.Put(testPolicy(policy.RoleManager, policy.RoleSeniorManager, policy.RoleHR))
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)
	ctx := context.Background()

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(2))
	require.NotNil(t, outcome.Request)
	id := outcome.Request.ID

	r1, err := e.workflow.ProcessApproval(ctx, id, "mgr-1", approval.DecisionApprove, "")
	require.NoError(t, err)
	assert.False(t, r1.Completed)
	assert.Equal(t, 2, r1.NextLevel)
	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(10)),
		"intermediate approvals must not debit")

	r2, err := e.workflow.ProcessApproval(ctx, id, "dir-1", approval.DecisionApprove, "")
	require.NoError(t, err)
	assert.False(t, r2.Completed)
	assert.Equal(t, 3, r2.NextLevel)

	r3, err := e.workflow.ProcessApproval(ctx, id, "hr-1", approval.DecisionApprove, "")
	require.NoError(t, err)
	assert.True(t, r3.Completed)
	assert.Equal(t, approval.ChainApproved, r3.Overall)
	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(7)))
}

func TestProcessApproval_RejectAtLevelTwo_ShortCircuits(t *testing.T) {
	// GIVEN: level 1 approved, level 2 rejects
	// THEN: chain terminal REJECTED, level 3 untouched, zero ledger mutation

	e := newEnv(t)
	e.policies.Put(testPolicy(policy.RoleManager, policy.RoleSeniorManager, policy.RoleHR))
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)
	ctx := context.Background()

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(2))
	id := outcome.Request.ID

	_, err := e.workflow.ProcessApproval(ctx, id, "mgr-1", approval.DecisionApprove, "")
	require.NoError(t, err)

	r2, err := e.workflow.ProcessApproval(ctx, id, "dir-1", approval.DecisionReject, "blackout week")
	require.NoError(t, err)
	assert.True(t, r2.Completed)
	assert.Equal(t, approval.ChainRejected, r2.Overall)

	chain, err := e.store.GetChain(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, approval.LevelApproved, chain.Levels[0].Status)
	assert.Equal(t, approval.LevelRejected, chain.Levels[1].Status)
	assert.Equal(t, approval.LevelPending, chain.Levels[2].Status, "later levels stay untouched")
	assert.Nil(t, chain.Levels[2].DecidedAt)

	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(10)))

	// HR cannot decide a terminal chain.
	_, err = e.workflow.ProcessApproval(ctx, id, "hr-1", approval.DecisionApprove, "")
	assert.ErrorIs(t, err, approval.ErrAlreadyProcessed)
}

// =============================================================================
// AUTHORIZATION AND DOUBLE DECISIONS
// =============================================================================

func TestProcessApproval_WrongApprover_Rejected(t *testing.T) {
	// Only the current level's designated approver may decide it.
	e := newEnv(t)
	e.policies.Put(testPolicy(policy.RoleManager, policy.RoleSeniorManager))
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)
	ctx := context.Background()

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(1))
	id := outcome.Request.ID

	// dir-1 is level 2; level 1 is still pending.
	_, err := e.workflow.ProcessApproval(ctx, id, "dir-1", approval.DecisionApprove, "")
	assert.ErrorIs(t, err, approval.ErrNotAuthorizedApprover)

	// Complete strangers are rejected the same way.
	_, err = e.workflow.ProcessApproval(ctx, id, "hr-1", approval.DecisionApprove, "")
	assert.ErrorIs(t, err, approval.ErrNotAuthorizedApprover)
}

func TestProcessApproval_TerminalChain_AlreadyProcessed(t *testing.T) {
	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)
	ctx := context.Background()

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(1))
	id := outcome.Request.ID

	_, err := e.workflow.ProcessApproval(ctx, id, "mgr-1", approval.DecisionApprove, "")
	require.NoError(t, err)

	_, err = e.workflow.ProcessApproval(ctx, id, "mgr-1", approval.DecisionApprove, "")
	assert.ErrorIs(t, err, approval.ErrAlreadyProcessed)

	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(8)),
		"the repeated decision must not debit again")
}

func TestProcessApproval_ConcurrentDecisions_ExactlyOneWins(t *testing.T) {
	// GIVEN: a pending manager-only request
	// WHEN: two goroutines decide the same level at once
	// THEN: exactly one decision lands; the loser gets AlreadyProcessed and
	//       the balance shows a single debit

	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(2))
	require.NotNil(t, outcome.Request)

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.workflow.ProcessApproval(context.Background(),
				outcome.Request.ID, "mgr-1", approval.DecisionApprove, "ok")
		}(i)
	}
	wg.Wait()

	var wins, losses int
	for _, err := range errs {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, approval.ErrAlreadyProcessed):
			losses++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, wins)
	assert.Equal(t, 1, losses)

	req, err := e.store.GetRequest(context.Background(), outcome.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, req.Status)
	assert.True(t, e.available(t, "emp-1", leave.TypeEarned, start.Year()).Equal(d(7)))

	entries, err := e.ledger.History(context.Background(), "emp-1", leave.TypeEarned, start.Year())
	require.NoError(t, err)
	consumptions := 0
	for _, entry := range entries {
		if entry.Kind == ledger.KindConsumption {
			consumptions++
		}
	}
	assert.Equal(t, 1, consumptions, "the losing decision must not debit")
}

func TestProcessApproval_UnknownRequest_NotFound(t *testing.T) {
	e := newEnv(t)
	_, err := e.workflow.ProcessApproval(context.Background(),
		"nope", "mgr-1", approval.DecisionApprove, "")
	assert.ErrorIs(t, err, approval.ErrChainNotFound)
}

// =============================================================================
// TOCTOU - the final debit re-checks the live balance
// =============================================================================

func TestProcessApproval_BalanceDrainedAfterValidation_ApprovalFails(t *testing.T) {
	// GIVEN: a request validated against a 3-day balance
	// WHEN: the balance is drained before the final approval
	// THEN: the approval fails and the request stays pending

	e := newEnv(t)
	e.policies.Put(testPolicy())
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 3)
	ctx := context.Background()

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(2))
	require.NotNil(t, outcome.Request)

	// Drain the balance out from under the pending request.
	_, err := e.ledger.Debit(ctx, ledger.DebitInput{
		EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: start.Year(),
		Amount: d(2), Kind: ledger.KindConsumption, Reason: "drain", IdempotencyKey: "drain",
	})
	require.NoError(t, err)

	_, err = e.workflow.ProcessApproval(ctx, outcome.Request.ID, "mgr-1", approval.DecisionApprove, "")
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	req, err := e.store.GetRequest(ctx, outcome.Request.ID)
	require.NoError(t, err)
	assert.Equal(t, leave.StatusPending, req.Status,
		"a failed debit must not flip the request")
}

// =============================================================================
// PENDING QUEUE
// =============================================================================

func TestPendingForApprover_TracksCurrentLevelOnly(t *testing.T) {
	e := newEnv(t)
	e.policies.Put(testPolicy(policy.RoleManager, policy.RoleSeniorManager))
	start := nextMonday(30)
	e.seed(t, "emp-1", leave.TypeEarned, start.Year(), 10)
	ctx := context.Background()

	outcome := e.submit(t, leave.TypeEarned, start, start.AddDays(1))
	id := outcome.Request.ID

	pending, err := e.store.PendingForApprover(ctx, "mgr-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	pending, err = e.store.PendingForApprover(ctx, "dir-1")
	require.NoError(t, err)
	assert.Empty(t, pending, "level 2 is not pending until level 1 approves")

	_, err = e.workflow.ProcessApproval(ctx, id, "mgr-1", approval.DecisionApprove, "")
	require.NoError(t, err)

	pending, err = e.store.PendingForApprover(ctx, "mgr-1")
	require.NoError(t, err)
	assert.Empty(t, pending)

	pending, err = e.store.PendingForApprover(ctx, "dir-1")
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}
