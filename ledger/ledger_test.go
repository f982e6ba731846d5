package ledger_test

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/store/memory"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestLedger() *ledger.Ledger {
	return ledger.NewLedger(memory.New())
}

func d(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }

func credit(amount float64, key string) ledger.CreditInput {
	return ledger.CreditInput{
		EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025,
		Amount: d(amount), Kind: ledger.KindAccrual,
		Reason: "test accrual", IdempotencyKey: key,
	}
}

func debit(amount float64, key string) ledger.DebitInput {
	return ledger.DebitInput{
		EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025,
		Amount: d(amount), Kind: ledger.KindConsumption,
		Reason: "test consumption", IdempotencyKey: key,
	}
}

// =============================================================================
// BALANCE INVARIANT
// =============================================================================

func TestLedger_Available_DerivedFromComponents(t *testing.T) {
	// GIVEN: credits of 10 entitlement and 3 carry-forward, debit of 4
	// THEN: Available is always entitlement + carry-forward - used

	l := newTestLedger()
	ctx := context.Background()

	_, err := l.Credit(ctx, credit(10, "c1"))
	require.NoError(t, err)

	_, err = l.Credit(ctx, ledger.CreditInput{
		EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025,
		Amount: d(3), Kind: ledger.KindCarryForward,
		Reason: "carry", IdempotencyKey: "cf1",
	})
	require.NoError(t, err)

	rec, err := l.Debit(ctx, debit(4, "d1"))
	require.NoError(t, err)

	assert.True(t, rec.TotalEntitlement.Equal(d(10)))
	assert.True(t, rec.CarryForward.Equal(d(3)))
	assert.True(t, rec.Used.Equal(d(4)))
	assert.True(t, rec.Available().Equal(d(9)),
		"available should be 10 + 3 - 4 = 9, got %s", rec.Available())
}

func TestLedger_Snapshot_UntouchedTupleReadsZero(t *testing.T) {
	// GIVEN: a tuple that has never been credited or debited
	// THEN: Snapshot reads as all-zero, not an error

	l := newTestLedger()

	snap, err := l.Snapshot(context.Background(), "emp-new", leave.TypeSick, 2025)
	require.NoError(t, err)
	assert.True(t, snap.Available.IsZero())
	assert.True(t, snap.TotalEntitlement.IsZero())
}

// =============================================================================
// SUFFICIENCY AND THE NEGATIVE FLOOR
// =============================================================================

func TestLedger_Debit_InsufficientBalance_Rejected(t *testing.T) {
	// GIVEN: 2 days available
	// WHEN: debiting 3 without the negative option
	// THEN: InsufficientBalanceError, balance untouched

	l := newTestLedger()
	ctx := context.Background()

	_, err := l.Credit(ctx, credit(2, "c1"))
	require.NoError(t, err)

	_, err = l.Debit(ctx, debit(3, "d1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrInsufficientBalance)

	var insuff *ledger.InsufficientBalanceError
	require.ErrorAs(t, err, &insuff)
	assert.True(t, insuff.Available.Equal(d(2)))
	assert.True(t, insuff.Requested.Equal(d(3)))

	snap, err := l.Snapshot(ctx, "emp-1", leave.TypeEarned, 2025)
	require.NoError(t, err)
	assert.True(t, snap.Available.Equal(d(2)), "failed debit must not move the balance")
}

func TestLedger_Debit_NegativeAllowed_DownToFloor(t *testing.T) {
	// GIVEN: 1 day available, negative permitted down to -5
	// WHEN: debiting 4
	// THEN: balance goes to -3

	l := newTestLedger()
	ctx := context.Background()

	_, err := l.Credit(ctx, credit(1, "c1"))
	require.NoError(t, err)

	in := debit(4, "d1")
	in.Options = ledger.DebitOptions{AllowNegative: true, Floor: d(-5)}
	rec, err := l.Debit(ctx, in)
	require.NoError(t, err)
	assert.True(t, rec.Available().Equal(d(-3)))
}

func TestLedger_Debit_NegativeBeyondFloor_Rejected(t *testing.T) {
	// GIVEN: 1 day available, floor at -2
	// WHEN: debiting 4 (would land on -3)
	// THEN: NegativeLimitError

	l := newTestLedger()
	ctx := context.Background()

	_, err := l.Credit(ctx, credit(1, "c1"))
	require.NoError(t, err)

	in := debit(4, "d1")
	in.Options = ledger.DebitOptions{AllowNegative: true, Floor: d(-2)}
	_, err = l.Debit(ctx, in)
	require.Error(t, err)
	assert.ErrorIs(t, err, ledger.ErrNegativeBalanceLimitExceeded)
}

// =============================================================================
// IDEMPOTENCY
// =============================================================================

func TestLedger_Credit_ReplaySameKey_NoOp(t *testing.T) {
	// GIVEN: a credit already applied under an idempotency key
	// WHEN: the identical mutation is replayed
	// THEN: no double credit; the current record comes back untouched

	l := newTestLedger()
	ctx := context.Background()

	_, err := l.Credit(ctx, credit(5, "accrual:emp-1:2025:06:earned"))
	require.NoError(t, err)

	rec, err := l.Credit(ctx, credit(5, "accrual:emp-1:2025:06:earned"))
	require.NoError(t, err)
	assert.True(t, rec.TotalEntitlement.Equal(d(5)), "replay must not double credit")

	entries, err := l.History(ctx, "emp-1", leave.TypeEarned, 2025)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "replay must not append a second entry")
}

func TestLedger_Debit_ReplaySameKey_NoOp(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.Credit(ctx, credit(10, "c1"))
	require.NoError(t, err)

	_, err = l.Debit(ctx, debit(3, "consume:req-1"))
	require.NoError(t, err)

	rec, err := l.Debit(ctx, debit(3, "consume:req-1"))
	require.NoError(t, err)
	assert.True(t, rec.Used.Equal(d(3)), "replay must not double debit")
}

func TestLedger_Applied_ReportsConsumedKeys(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	seen, err := l.Applied(ctx, "c1")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = l.Credit(ctx, credit(1, "c1"))
	require.NoError(t, err)

	seen, err = l.Applied(ctx, "c1")
	require.NoError(t, err)
	assert.True(t, seen)
}

// =============================================================================
// AUDIT TRAIL
// =============================================================================

func TestLedger_History_EveryMutationAppendsOneEntry(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.Credit(ctx, credit(10, "c1"))
	require.NoError(t, err)
	_, err = l.Debit(ctx, debit(2, "d1"))
	require.NoError(t, err)
	_, err = l.Credit(ctx, ledger.CreditInput{
		EmployeeID: "emp-1", LeaveType: leave.TypeEarned, Year: 2025,
		Amount: d(2), Kind: ledger.KindRefund, Reason: "credit-back", IdempotencyKey: "r1",
	})
	require.NoError(t, err)

	entries, err := l.History(ctx, "emp-1", leave.TypeEarned, 2025)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Equal(t, ledger.KindAccrual, entries[0].Kind)
	assert.Equal(t, ledger.KindConsumption, entries[1].Kind)
	assert.Equal(t, ledger.KindRefund, entries[2].Kind)
	for _, e := range entries {
		assert.True(t, e.Amount.IsPositive(), "entry amounts are always positive, kind gives the sign")
	}
}

// =============================================================================
// INPUT VALIDATION
// =============================================================================

func TestLedger_Mutations_RejectNonPositiveAmounts(t *testing.T) {
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.Credit(ctx, credit(0, "c1"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = l.Credit(ctx, credit(-1, "c2"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, err = l.Debit(ctx, debit(0, "d1"))
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)
}

func TestLedger_Credit_WithDebitKind_Rejected(t *testing.T) {
	l := newTestLedger()

	in := credit(1, "c1")
	in.Kind = ledger.KindConsumption
	_, err := l.Credit(context.Background(), in)
	assert.Error(t, err)
}

func TestLedger_TuplesAreIndependent(t *testing.T) {
	// Different leave types and years never share a balance.
	l := newTestLedger()
	ctx := context.Background()

	_, err := l.Credit(ctx, credit(5, "c1"))
	require.NoError(t, err)

	snap, err := l.Snapshot(ctx, "emp-1", leave.TypeSick, 2025)
	require.NoError(t, err)
	assert.True(t, snap.Available.IsZero())

	snap, err = l.Snapshot(ctx, "emp-1", leave.TypeEarned, 2026)
	require.NoError(t, err)
	assert.True(t, snap.Available.IsZero())
}
