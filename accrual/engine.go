/*
engine.go - Grant computation and batch processing

GRANT RULES (monthly, pro-rated):
  For a target (year, month) and a policy with AccrualMonthly:
  - months strictly before the joining month are never granted
  - the joining month grants full rate when joining day <= 15, half after
  - every later month grants the full rate

GRANT RULES (annual lump):
  Entitlement is a step function of designation. Mid-year joiners receive
  annual * remainingMonths/12 (joining month counted), rounded half-up to
  the nearest 0.5.

YEAR-END:
  Per policy, either the full remaining balance expires, or
  min(available, MaxCarryForward) is credited to the new year as
  carry-forward and the old year is closed out. Both paths are idempotent
  under re-run via ledger entry keys.
*/
package accrual

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
)

// proRateJoinDayCutoff: joining on or before this day of the month earns the
// full month's accrual; after it, half.
const proRateJoinDayCutoff = 15

var (
	two    = decimal.NewFromInt(2)
	twelve = decimal.NewFromInt(12)
)

type Engine struct {
	Ledger   *ledger.Ledger
	Policies policy.Store
	Dir      directory.Directory
	Grants   GrantStore
	Log      zerolog.Logger
}

func NewEngine(l *ledger.Ledger, policies policy.Store, dir directory.Directory, grants GrantStore, log zerolog.Logger) *Engine {
	return &Engine{Ledger: l, Policies: policies, Dir: dir, Grants: grants, Log: log}
}

// =============================================================================
// MONTHLY GRANT
// =============================================================================

// GrantMonthly processes the monthly grant for one employee across every
// monthly-accruing leave type in their region. Already-processed grants are
// returned as-is with no further ledger mutation.
func (e *Engine) GrantMonthly(ctx context.Context, employeeID string, year int, month time.Month) ([]*Grant, error) {
	emp, err := directory.GetActive(ctx, e.Dir, employeeID)
	if err != nil {
		return nil, err
	}

	policies, err := e.Policies.ForRegion(ctx, emp.Region)
	if err != nil {
		return nil, err
	}

	var grants []*Grant
	for _, p := range policies {
		if p.AccrualMode != policy.AccrualMonthly {
			continue
		}
		g, err := e.grantMonthlyOne(ctx, emp, p, year, month)
		if err != nil {
			return grants, fmt.Errorf("grant %s for %s: %w", p.LeaveType, employeeID, err)
		}
		if g != nil {
			grants = append(grants, g)
		}
	}
	return grants, nil
}

func (e *Engine) grantMonthlyOne(ctx context.Context, emp *directory.Employee, p *policy.LeavePolicy, year int, month time.Month) (*Grant, error) {
	target := calendarMonth(year, month)
	joined := calendarMonth(emp.JoiningDate.Year(), emp.JoiningDate.Month())

	// Never grant for months before the joining month.
	if target < joined {
		return nil, nil
	}

	key := GrantKey{EmployeeID: emp.ID, Year: year, Month: month, LeaveType: p.LeaveType}
	if prior, err := e.Grants.GetGrant(ctx, key); err == nil {
		return prior, nil
	} else if !errors.Is(err, ErrGrantNotFound) {
		return nil, err
	}

	amount := p.MonthlyRate
	proRated := false
	reason := "monthly accrual"
	if target == joined && emp.JoiningDate.Day() > proRateJoinDayCutoff {
		amount = amount.Div(two)
		proRated = true
		reason = "monthly accrual (pro-rated joining month)"
	}

	return e.record(ctx, key, amount, proRated, reason)
}

// =============================================================================
// ANNUAL LUMP ALLOCATION
// =============================================================================

// GrantAnnual processes the annual lump allocation for one employee across
// every annual-accruing leave type in their region. Allocation is stepped by
// designation and pro-rated by remaining months for mid-year joiners.
func (e *Engine) GrantAnnual(ctx context.Context, employeeID string, year int) ([]*Grant, error) {
	emp, err := directory.GetActive(ctx, e.Dir, employeeID)
	if err != nil {
		return nil, err
	}

	policies, err := e.Policies.ForRegion(ctx, emp.Region)
	if err != nil {
		return nil, err
	}

	var grants []*Grant
	for _, p := range policies {
		if p.AccrualMode != policy.AccrualAnnual {
			continue
		}
		g, err := e.grantAnnualOne(ctx, emp, p, year)
		if err != nil {
			return grants, fmt.Errorf("grant %s for %s: %w", p.LeaveType, employeeID, err)
		}
		if g != nil {
			grants = append(grants, g)
		}
	}
	return grants, nil
}

func (e *Engine) grantAnnualOne(ctx context.Context, emp *directory.Employee, p *policy.LeavePolicy, year int) (*Grant, error) {
	if emp.JoiningDate.Year() > year {
		return nil, nil
	}

	// Month 0 marks the annual lump in the grant key.
	key := GrantKey{EmployeeID: emp.ID, Year: year, Month: 0, LeaveType: p.LeaveType}
	if prior, err := e.Grants.GetGrant(ctx, key); err == nil {
		return prior, nil
	} else if !errors.Is(err, ErrGrantNotFound) {
		return nil, err
	}

	annual := p.AnnualDaysFor(emp.Designation)
	amount := annual
	proRated := false
	reason := "annual allocation"

	if emp.JoiningDate.Year() == year && emp.JoiningDate.Month() > time.January {
		remaining := 12 - int(emp.JoiningDate.Month()) + 1 // joining month counts
		amount = roundToHalf(annual.Mul(decimal.NewFromInt(int64(remaining))).Div(twelve))
		proRated = true
		reason = fmt.Sprintf("annual allocation (pro-rated, %d/12 months)", remaining)
	}

	if !amount.IsPositive() {
		return nil, nil
	}
	return e.record(ctx, key, amount, proRated, reason)
}

// roundToHalf rounds half-up to the nearest 0.5 step.
func roundToHalf(d decimal.Decimal) decimal.Decimal {
	return d.Mul(two).Round(0).Div(two)
}

// record persists the grant and credits the ledger under one shared
// idempotency key, so a crash between the two is healed on re-run.
func (e *Engine) record(ctx context.Context, key GrantKey, amount decimal.Decimal, proRated bool, reason string) (*Grant, error) {
	g := &Grant{
		EmployeeID: key.EmployeeID, Year: key.Year, Month: key.Month, LeaveType: key.LeaveType,
		Amount: amount, ProRated: proRated, Reason: reason, CreatedAt: time.Now(),
	}

	if _, err := e.Ledger.Credit(ctx, ledger.CreditInput{
		EmployeeID: key.EmployeeID, LeaveType: key.LeaveType, Year: key.Year,
		Amount: amount, Kind: ledger.KindAccrual,
		Reason: reason, ReferenceID: key.LedgerKey(), IdempotencyKey: key.LedgerKey(),
	}); err != nil {
		return nil, err
	}

	if err := e.Grants.SaveGrant(ctx, g); err != nil {
		return nil, err
	}

	e.Log.Debug().
		Str("employee", key.EmployeeID).
		Str("leave_type", string(key.LeaveType)).
		Str("amount", amount.String()).
		Bool("pro_rated", proRated).
		Msg("accrual granted")
	return g, nil
}

// =============================================================================
// YEAR-END TRANSITION
// =============================================================================

// TransitionYearEnd rolls one employee's balances from year into year+1.
// Carry-forward types credit min(available, max) into the new year; every
// type closes the old year to zero. Idempotent under re-run.
func (e *Engine) TransitionYearEnd(ctx context.Context, employeeID string, year int) error {
	emp, err := directory.GetActive(ctx, e.Dir, employeeID)
	if err != nil {
		return err
	}

	policies, err := e.Policies.ForRegion(ctx, emp.Region)
	if err != nil {
		return err
	}

	for _, p := range policies {
		if err := e.transitionOne(ctx, emp, p, year); err != nil {
			return fmt.Errorf("year-end %s for %s: %w", p.LeaveType, employeeID, err)
		}
	}
	return nil
}

func (e *Engine) transitionOne(ctx context.Context, emp *directory.Employee, p *policy.LeavePolicy, year int) error {
	closeKey := fmt.Sprintf("yearend:%s:%d:%s:close", emp.ID, year, p.LeaveType)
	carryKey := fmt.Sprintf("yearend:%s:%d:%s:carry", emp.ID, year, p.LeaveType)

	// Re-run guard: the close entry is written last, so its presence means
	// the whole transition committed.
	done, err := e.Ledger.Applied(ctx, closeKey)
	if err != nil || done {
		return err
	}

	snap, err := e.Ledger.Snapshot(ctx, emp.ID, p.LeaveType, year)
	if err != nil {
		return err
	}
	if !snap.Available.IsPositive() {
		return nil
	}

	if p.YearEnd == policy.YearEndCarryForward && p.MaxCarryForward.IsPositive() {
		carry := decimal.Min(snap.Available, p.MaxCarryForward)
		if _, err := e.Ledger.Credit(ctx, ledger.CreditInput{
			EmployeeID: emp.ID, LeaveType: p.LeaveType, Year: year + 1,
			Amount: carry, Kind: ledger.KindCarryForward,
			Reason: fmt.Sprintf("carry-forward from %d", year),
			ReferenceID: carryKey, IdempotencyKey: carryKey,
		}); err != nil {
			return err
		}
	}

	// Close out the ending year entirely; whatever was not carried is
	// forfeited.
	_, err = e.Ledger.Debit(ctx, ledger.DebitInput{
		EmployeeID: emp.ID, LeaveType: p.LeaveType, Year: year,
		Amount: snap.Available, Kind: ledger.KindExpiry,
		Reason: fmt.Sprintf("year-end close of %d", year),
		ReferenceID: closeKey, IdempotencyKey: closeKey,
	})
	return err
}

// =============================================================================
// BATCH ENTRY POINTS (scheduler / admin triggered)
// =============================================================================

// RunMonthlyAccrual grants the month for every active employee. Individual
// failures are recorded and skipped, never aborting the batch.
func (e *Engine) RunMonthlyAccrual(ctx context.Context, year int, month time.Month) (*BatchResult, error) {
	return e.runBatch(ctx, "monthly accrual", func(ctx context.Context, employeeID string) ([]*Grant, error) {
		return e.GrantMonthly(ctx, employeeID, year, month)
	})
}

// RunAnnualAllocation grants the annual lump for every active employee.
func (e *Engine) RunAnnualAllocation(ctx context.Context, year int) (*BatchResult, error) {
	return e.runBatch(ctx, "annual allocation", func(ctx context.Context, employeeID string) ([]*Grant, error) {
		return e.GrantAnnual(ctx, employeeID, year)
	})
}

// RunYearEndCarryForward transitions every active employee across the
// year/year+1 boundary.
func (e *Engine) RunYearEndCarryForward(ctx context.Context, year int) (*BatchResult, error) {
	return e.runBatch(ctx, "year-end carry-forward", func(ctx context.Context, employeeID string) ([]*Grant, error) {
		return nil, e.TransitionYearEnd(ctx, employeeID, year)
	})
}

func (e *Engine) runBatch(ctx context.Context, name string, fn func(context.Context, string) ([]*Grant, error)) (*BatchResult, error) {
	employees, err := e.Dir.ListActive(ctx)
	if err != nil {
		// Systemic failure: nothing to iterate, abort.
		return nil, fmt.Errorf("%s: listing employees: %w", name, err)
	}

	result := &BatchResult{}
	for _, emp := range employees {
		grants, err := fn(ctx, emp.ID)
		if err != nil {
			e.Log.Warn().Err(err).Str("employee", emp.ID).Str("batch", name).Msg("batch item failed, skipping")
		}
		result.add(EmployeeResult{EmployeeID: emp.ID, Grants: grants, Err: err})
	}

	e.Log.Info().
		Str("batch", name).
		Int("processed", result.Processed).
		Int("succeeded", result.Succeeded).
		Int("failed", result.Failed).
		Msg("batch run complete")
	return result, nil
}

// calendarMonth flattens (year, month) for ordering comparisons.
func calendarMonth(year int, month time.Month) int {
	return year*12 + int(month) - 1
}
