package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/store/memory"
)

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func balance(total float64) *ledger.BalanceRecord {
	return &ledger.BalanceRecord{
		EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025,
		TotalEntitlement: d(total),
	}
}

func request(id string, start, end calendar.Date) *leave.Request {
	return &leave.Request{
		ID: id, EmployeeID: "emp-1", LeaveType: leave.TypeEarned,
		StartDate: start, EndDate: end, Status: leave.StatusPending,
		CreatedAt: time.Now(),
	}
}

// =============================================================================
// TRANSACTION SEMANTICS
// =============================================================================

func TestWithTx_ErrorRestoresEverything(t *testing.T) {
	// GIVEN: writes across several record families inside one transaction
	// WHEN: the closure returns an error
	// THEN: none of the writes survive

	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.CreateBalance(ctx, balance(10)))

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(txCtx context.Context) error {
		rec, err := s.GetBalance(txCtx, ledger.BalanceKey{EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025})
		if err != nil {
			return err
		}
		rec.Used = d(4)
		if err := s.UpdateBalance(txCtx, rec); err != nil {
			return err
		}
		if err := s.AppendEntry(txCtx, ledger.Entry{
			ID: "e1", EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025,
			Kind: ledger.KindConsumption, Amount: d(4), IdempotencyKey: "k1",
		}); err != nil {
			return err
		}
		if err := s.SaveRequest(txCtx, request("r1", calendar.NewDate(2025, time.June, 2), calendar.NewDate(2025, time.June, 4))); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rec, err := s.GetBalance(ctx, ledger.BalanceKey{EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025})
	require.NoError(t, err)
	assert.True(t, rec.Used.IsZero(), "balance write must roll back")
	assert.Equal(t, 1, rec.Version, "version bump must roll back")

	_, err = s.GetRequest(ctx, "r1")
	assert.ErrorIs(t, err, leave.ErrRequestNotFound)

	// The idempotency key is free again after the rollback.
	exists, err := s.EntryExists(ctx, "k1")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestWithTx_SuccessCommits(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	err := s.WithTx(ctx, func(txCtx context.Context) error {
		return s.CreateBalance(txCtx, balance(12))
	})
	require.NoError(t, err)

	rec, err := s.GetBalance(ctx, ledger.BalanceKey{EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025})
	require.NoError(t, err)
	assert.True(t, rec.TotalEntitlement.Equal(d(12)))
}

func TestWithTx_NestedFlattensIntoOuter(t *testing.T) {
	// An inner WithTx joins the outer transaction, so an outer failure
	// rolls back inner writes too.
	s := memory.New()
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(outer context.Context) error {
		if err := s.WithTx(outer, func(inner context.Context) error {
			return s.CreateBalance(inner, balance(10))
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetBalance(ctx, ledger.BalanceKey{EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025})
	assert.ErrorIs(t, err, ledger.ErrBalanceNotFound)
}

// =============================================================================
// OPTIMISTIC VERSIONING
// =============================================================================

func TestUpdateBalance_StaleVersion_Conflict(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	key := ledger.BalanceKey{EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025}

	require.NoError(t, s.CreateBalance(ctx, balance(10)))

	first, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	second, err := s.GetBalance(ctx, key)
	require.NoError(t, err)

	first.Used = d(2)
	require.NoError(t, s.UpdateBalance(ctx, first))
	assert.Equal(t, 2, first.Version, "winner's copy carries the new version")

	second.Used = d(5)
	err = s.UpdateBalance(ctx, second)
	assert.ErrorIs(t, err, ledger.ErrVersionConflict)

	rec, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, rec.Used.Equal(d(2)), "loser's write must not land")
}

func TestCreateBalance_DuplicateKey_Conflict(t *testing.T) {
	s := memory.New()
	ctx := context.Background()

	require.NoError(t, s.CreateBalance(ctx, balance(10)))
	err := s.CreateBalance(ctx, balance(99))
	assert.ErrorIs(t, err, ledger.ErrVersionConflict)
}

func TestUpdateRequest_StaleVersion_Conflict(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	start := calendar.NewDate(2025, time.June, 2)

	require.NoError(t, s.SaveRequest(ctx, request("r1", start, start.AddDays(2))))

	first, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	second, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)

	first.Status = leave.StatusApproved
	require.NoError(t, s.UpdateRequest(ctx, first))

	second.Status = leave.StatusCancelled
	err = s.UpdateRequest(ctx, second)
	assert.ErrorIs(t, err, leave.ErrVersionConflict)

	got, err := s.GetRequest(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, leave.StatusApproved, got.Status)
}

// =============================================================================
// ENTRY APPEND
// =============================================================================

func TestAppendEntry_DuplicateIdempotencyKey_Rejected(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	entry := ledger.Entry{
		ID: "e1", EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025,
		Kind: ledger.KindAccrual, Amount: d(1.5), IdempotencyKey: "accrual:emp-1:2025:06:earned",
	}

	require.NoError(t, s.AppendEntry(ctx, entry))
	entry.ID = "e2"
	err := s.AppendEntry(ctx, entry)
	assert.ErrorIs(t, err, ledger.ErrVersionConflict)

	entries, err := s.Entries(ctx, ledger.BalanceKey{EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025})
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestAppendEntry_EmptyKey_NeverDeduped(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	entry := ledger.Entry{
		ID: "e1", EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025,
		Kind: ledger.KindRefund, Amount: d(1),
	}

	require.NoError(t, s.AppendEntry(ctx, entry))
	entry.ID = "e2"
	require.NoError(t, s.AppendEntry(ctx, entry))

	entries, err := s.Entries(ctx, ledger.BalanceKey{EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025})
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

// =============================================================================
// QUERIES
// =============================================================================

func TestRequestsInRange_InclusiveOverlap(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	day := func(n int) calendar.Date { return calendar.NewDate(2025, time.June, n) }

	require.NoError(t, s.SaveRequest(ctx, request("before", day(2), day(4))))
	require.NoError(t, s.SaveRequest(ctx, request("touching", day(4), day(6))))
	require.NoError(t, s.SaveRequest(ctx, request("inside", day(10), day(11))))
	require.NoError(t, s.SaveRequest(ctx, request("after", day(20), day(22))))

	got, err := s.RequestsInRange(ctx, "emp-1", day(5), day(12))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "touching", got[0].ID, "sorted by start date; boundary day counts")
	assert.Equal(t, "inside", got[1].ID)
}

func TestBalancesForYear_FiltersAndSorts(t *testing.T) {
	s := memory.New()
	ctx := context.Background()
	put := func(emp string, lt leave.Type, year int) {
		require.NoError(t, s.CreateBalance(ctx, &ledger.BalanceRecord{
			EmployeeID: emp, LeaveType: lt, Year: year, TotalEntitlement: d(1),
		}))
	}
	put("emp-1", leave.TypeSick, 2025)
	put("emp-1", leave.TypeCasual, 2025)
	put("emp-1", leave.TypeEarned, 2024)
	put("emp-2", leave.TypeEarned, 2025)

	got, err := s.BalancesForYear(ctx, "emp-1", 2025)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, leave.TypeCasual, got[0].LeaveType)
	assert.Equal(t, leave.TypeSick, got[1].LeaveType)
}

func TestGetBalance_ReturnsACopy(t *testing.T) {
	// Mutating a returned record must not leak into the store without an
	// explicit Update.
	s := memory.New()
	ctx := context.Background()
	key := ledger.BalanceKey{EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025}

	require.NoError(t, s.CreateBalance(ctx, balance(10)))

	rec, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	rec.Used = d(7)

	again, err := s.GetBalance(ctx, key)
	require.NoError(t, err)
	assert.True(t, again.Used.IsZero())
}
