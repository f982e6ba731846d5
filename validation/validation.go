/*
Package validation implements the Policy Validation Engine: pure evaluation
of a candidate leave request against policy, balance, and calendar state.

PURPOSE:
  Evaluate never mutates anything and never returns an error for a business
  rule violation. Every violated rule becomes an itemized RuleError in the
  verdict; callers always get the full list, not just the first failure.

EVALUATION ORDER (all steps run, all failures collected):
  1. Date sanity: ordering, advance-booking horizon, backdating limit
  2. Eligibility: gender / marital status / tenure / designation filters
  3. Overlap: any shared date with an existing active request
  4. Consecutive-day and minimum-gap rules
  5. Balance sufficiency against the supplied snapshot (the snapshot may be
     stale; the approval workflow re-checks at debit time)
  6. Documentation threshold (annotates, never blocks)

OUTPUT:
  Verdict{IsValid, Errors, Warnings, RequiredDocumentation,
  AutoApprovalEligible, ChainSpec, Duration}. AutoApprovalEligible is true
  only for policy-whitelisted types with no errors raised.

SEE ALSO:
  - approval: consumes the verdict's ChainSpec to instantiate the workflow
  - leave: business-day duration calculation
*/
package validation

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
)

// =============================================================================
// INPUT / OUTPUT SHAPES
// =============================================================================

// Candidate is the proposed request under evaluation.
type Candidate struct {
	EmployeeID string
	LeaveType  leave.Type
	StartDate  calendar.Date
	EndDate    calendar.Date
	IsHalfDay  bool
	Reason     string
}

// Input bundles everything Evaluate needs. All reads happen before the call;
// Evaluate itself touches nothing.
type Input struct {
	Candidate Candidate
	Employee  *directory.Employee
	Policy    *policy.LeavePolicy
	Balance   ledger.Snapshot

	// Existing holds the employee's requests that might overlap the
	// candidate range. Cancelled/rejected entries are ignored here.
	Existing []*leave.Request

	Holidays calendar.HolidayCalendar
	Today    calendar.Date
}

// RuleError is one itemized violation.
type RuleError struct {
	Code    string
	Field   string
	Message string
}

func (e RuleError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

// Rule error codes.
const (
	CodeDateOrder         = "date_order"
	CodeAdvanceHorizon    = "advance_horizon"
	CodeBackdateLimit     = "backdate_limit"
	CodeGender            = "eligibility_gender"
	CodeMaritalStatus     = "eligibility_marital_status"
	CodeTenure            = "eligibility_tenure"
	CodeDesignation       = "eligibility_designation"
	CodeOverlap           = "overlap"
	CodeMaxConsecutive    = "max_consecutive_days"
	CodeMinGap            = "min_gap"
	CodeAdvanceNotice     = "advance_notice"
	CodeInsufficientBal   = "insufficient_balance"
	CodeNegativeFloor     = "negative_balance_limit"
	CodeNegativeBalance   = "negative_balance"
	CodeZeroDuration      = "zero_duration"
)

// Verdict is the structured evaluation result.
type Verdict struct {
	IsValid  bool
	Errors   []RuleError
	Warnings []RuleError

	RequiredDocumentation bool
	AutoApprovalEligible  bool

	// ChainSpec is the ordered approver-role chain the workflow must build
	// when the request is not auto-approved.
	ChainSpec []policy.Role

	// Duration is the business-day size of the request (0.5 for half days).
	Duration decimal.Decimal
}

func (v *Verdict) fail(code, field, format string, args ...any) {
	v.Errors = append(v.Errors, RuleError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
}

func (v *Verdict) warn(code, field, format string, args ...any) {
	v.Warnings = append(v.Warnings, RuleError{Code: code, Field: field, Message: fmt.Sprintf(format, args...)})
}

// =============================================================================
// EVALUATION
// =============================================================================

// Evaluate runs the full rule set. Pure: no side effects, no I/O.
func Evaluate(in Input) Verdict {
	v := Verdict{ChainSpec: in.Policy.ApprovalRoles}

	c := in.Candidate
	p := in.Policy

	v.Duration = leave.Duration(c.StartDate, c.EndDate, c.IsHalfDay, in.Holidays)

	checkDates(&v, in)
	checkEligibility(&v, in)
	checkOverlap(&v, in)
	checkSpacing(&v, in)
	checkBalance(&v, in)

	// Documentation threshold annotates, never blocks.
	if p.DocumentationThreshold.IsPositive() && v.Duration.GreaterThanOrEqual(p.DocumentationThreshold) {
		v.RequiredDocumentation = true
	}

	v.IsValid = len(v.Errors) == 0
	v.AutoApprovalEligible = v.IsValid &&
		p.AutoApprove &&
		(p.AutoApproveMaxDays.IsZero() || v.Duration.LessThanOrEqual(p.AutoApproveMaxDays))
	return v
}

func checkDates(v *Verdict, in Input) {
	c, p := in.Candidate, in.Policy

	if c.EndDate.Before(c.StartDate) {
		v.fail(CodeDateOrder, "endDate", "end date %s is before start date %s", c.EndDate, c.StartDate)
		return
	}

	if v.Duration.IsZero() && !c.IsHalfDay {
		v.fail(CodeZeroDuration, "startDate", "request contains no working days")
	}

	if p.MaxAdvanceBookingDays > 0 {
		horizon := in.Today.AddDays(p.MaxAdvanceBookingDays)
		if c.StartDate.After(horizon) {
			v.fail(CodeAdvanceHorizon, "startDate",
				"start date %s exceeds the %d-day booking horizon", c.StartDate, p.MaxAdvanceBookingDays)
		}
	}

	if c.StartDate.Before(in.Today) {
		pastDays := calendar.DaysBetween(c.StartDate, in.Today)
		if pastDays > p.BackdateLimitDays {
			v.fail(CodeBackdateLimit, "startDate",
				"start date %s is %d days in the past, limit is %d", c.StartDate, pastDays, p.BackdateLimitDays)
		}
	} else if p.MinAdvanceNoticeDays > 0 {
		notice := calendar.DaysBetween(in.Today, c.StartDate)
		if notice < p.MinAdvanceNoticeDays {
			// Short notice is surfaced, not blocked: approvers decide.
			v.warn(CodeAdvanceNotice, "startDate",
				"only %d days notice given, policy asks for %d", notice, p.MinAdvanceNoticeDays)
		}
	}
}

func checkEligibility(v *Verdict, in Input) {
	emp, elig := in.Employee, in.Policy.Eligibility

	if len(elig.Genders) > 0 && !contains(elig.Genders, emp.Gender) {
		v.fail(CodeGender, "employee", "%s leave is restricted by gender", in.Policy.Name)
	}
	if len(elig.MaritalStatuses) > 0 && !contains(elig.MaritalStatuses, emp.MaritalStatus) {
		v.fail(CodeMaritalStatus, "employee", "%s leave is restricted by marital status", in.Policy.Name)
	}
	if elig.MinTenureMonths > 0 {
		tenure := emp.TenureMonths(in.Today)
		if tenure < elig.MinTenureMonths {
			v.fail(CodeTenure, "employee",
				"requires %d months of service, employee has %d", elig.MinTenureMonths, tenure)
		}
	}
	if len(elig.Designations) > 0 && !contains(elig.Designations, emp.Designation) {
		v.fail(CodeDesignation, "employee", "%s leave is restricted by designation", in.Policy.Name)
	}
}

func checkOverlap(v *Verdict, in Input) {
	c := in.Candidate
	for _, existing := range in.Existing {
		if !existing.Status.Active() {
			continue
		}
		if existing.Overlaps(c.StartDate, c.EndDate) {
			v.fail(CodeOverlap, "startDate",
				"overlaps existing %s request %s (%s to %s)",
				existing.Status, existing.ID, existing.StartDate, existing.EndDate)
		}
	}
}

func checkSpacing(v *Verdict, in Input) {
	c, p := in.Candidate, in.Policy

	if p.MaxConsecutiveDays > 0 {
		span := leave.CalendarSpan(c.StartDate, c.EndDate)
		if span > p.MaxConsecutiveDays {
			v.fail(CodeMaxConsecutive, "endDate",
				"%d consecutive days requested, policy allows %d", span, p.MaxConsecutiveDays)
		}
	}

	if p.MinGapDays > 0 {
		for _, existing := range in.Existing {
			if !existing.Status.Active() || existing.LeaveType != c.LeaveType {
				continue
			}
			gapStart := existing.EndDate
			gapEnd := existing.StartDate
			// Gap applies on both sides of the existing request.
			if c.StartDate.After(gapStart) && calendar.DaysBetween(gapStart, c.StartDate) <= p.MinGapDays {
				v.fail(CodeMinGap, "startDate",
					"starts within %d days of request %s ending %s", p.MinGapDays, existing.ID, existing.EndDate)
			} else if c.EndDate.Before(gapEnd) && calendar.DaysBetween(c.EndDate, gapEnd) <= p.MinGapDays {
				v.fail(CodeMinGap, "endDate",
					"ends within %d days of request %s starting %s", p.MinGapDays, existing.ID, existing.StartDate)
			}
		}
	}
}

func checkBalance(v *Verdict, in Input) {
	p := in.Policy
	available := in.Balance.Available

	if v.Duration.LessThanOrEqual(available) {
		return
	}

	if !p.AllowNegativeBalance {
		short := v.Duration.Sub(available)
		v.fail(CodeInsufficientBal, "totalDays",
			"requested %s days, available %s, short %s", v.Duration, available, short)
		return
	}

	wouldBe := available.Sub(v.Duration)
	if wouldBe.LessThan(p.NegativeFloor()) {
		v.fail(CodeNegativeFloor, "totalDays",
			"balance would fall to %s, floor is %s", wouldBe, p.NegativeFloor())
		return
	}
	v.warn(CodeNegativeBalance, "totalDays", "balance will go negative (%s)", wouldBe)
}

func contains(haystack []string, needle string) bool {
	for _, s := range haystack {
		if s == needle {
			return true
		}
	}
	return false
}
