/*
Package policy defines the per-leave-type, per-region rule set the engine
validates requests against.

PURPOSE:
  A LeavePolicy is the contract between the organization and an employee for
  one leave type in one region: how much is granted, how it accrues, what may
  be carried forward, who is eligible, and how requests are bounded.

KEY CONCEPTS:
  - LeavePolicy: the complete rule set for (leave type, region)
  - AccrualMode: monthly pro-rated vs annual lump allocation by designation
  - YearEndRule: bounded carry-forward vs full expiry
  - Eligibility: gender / marital-status / tenure / designation filters
  - ApprovalRoles: ordered approver chain the workflow instantiates

OWNERSHIP:
  Policies are owned by an external configuration store and are read-only
  inputs here. The Store interface is read-mostly and hot-reloadable; the
  engine never caches policies beyond a single operation.

SEE ALSO:
  - factory: JSON -> LeavePolicy parsing for config-store payloads
  - validation: consumes policies to produce verdicts
  - accrual: consumes accrual and year-end rules
*/
package policy

import (
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

// =============================================================================
// ACCRUAL CONFIGURATION
// =============================================================================

// AccrualMode determines how entitlement is granted over the year.
type AccrualMode string

const (
	// AccrualMonthly grants a fixed amount each month, pro-rated for the
	// joining month (full credit when joining on or before the 15th).
	AccrualMonthly AccrualMode = "monthly"

	// AccrualAnnual grants the full year's entitlement upfront, stepped by
	// designation and pro-rated by remaining months for mid-year joiners.
	AccrualAnnual AccrualMode = "annual"

	// AccrualNone is for types with no periodic grant (comp-off, LWP).
	AccrualNone AccrualMode = "none"
)

// AllocationStep maps a designation to its annual entitlement. Steps are
// matched exactly; DefaultAnnualDays applies when no step matches.
type AllocationStep struct {
	Designation string
	AnnualDays  decimal.Decimal
}

// =============================================================================
// YEAR-END CONFIGURATION
// =============================================================================

// YearEndRule determines what happens to unused balance at the year boundary.
type YearEndRule string

const (
	// YearEndCarryForward moves min(available, MaxCarryForward) into the new
	// year; the remainder is forfeited.
	YearEndCarryForward YearEndRule = "carry_forward"

	// YearEndExpire forfeits the entire unused balance.
	YearEndExpire YearEndRule = "expire"
)

// =============================================================================
// ELIGIBILITY
// =============================================================================

// Eligibility filters who may request this leave type. Zero-valued fields
// mean "no restriction".
type Eligibility struct {
	Genders         []string // e.g. ["female"] for maternity
	MaritalStatuses []string
	MinTenureMonths int
	Designations    []string
}

// =============================================================================
// LEAVE POLICY
// =============================================================================

// LeavePolicy is the complete rule set for one (leave type, region) pair.
type LeavePolicy struct {
	LeaveType leave.Type
	Region    string
	Name      string

	// Accrual
	AccrualMode       AccrualMode
	MonthlyRate       decimal.Decimal // units granted per month (AccrualMonthly)
	DefaultAnnualDays decimal.Decimal
	AllocationSteps   []AllocationStep // designation step table (AccrualAnnual)

	// Year-end transition
	YearEnd         YearEndRule
	MaxCarryForward decimal.Decimal

	// Request bounds
	MaxConsecutiveDays     int // calendar days; 0 = unlimited
	MinAdvanceNoticeDays   int
	MaxAdvanceBookingDays  int // booking horizon; 0 = unlimited
	BackdateLimitDays      int // how far in the past a request may start
	MinGapDays             int // minimum gap after a previous leave of this type
	DocumentationThreshold decimal.Decimal // duration at/above which docs are required; 0 = never

	// Balance behavior
	AllowNegativeBalance bool
	NegativeBalanceLimit decimal.Decimal // floor, expressed as a positive magnitude

	// Auto-approval
	AutoApprove        bool
	AutoApproveMaxDays decimal.Decimal

	// Approval chain roles, in order. Resolved against the directory at
	// chain-construction time.
	ApprovalRoles []Role

	// Eligibility filters
	Eligibility Eligibility

	// Comp-off specific bounds (only meaningful for leave.TypeCompOff)
	CompOffMinHours     decimal.Decimal
	CompOffMaxHours     decimal.Decimal
	CompOffExpiryMonths int
}

// Role names an approver position resolvable through the employee directory.
type Role string

const (
	RoleManager       Role = "manager"
	RoleSeniorManager Role = "senior_manager" // the manager's manager
	RoleHR            Role = "hr"
)

// AnnualDaysFor returns the annual allocation for a designation using the
// step table, falling back to DefaultAnnualDays.
func (p *LeavePolicy) AnnualDaysFor(designation string) decimal.Decimal {
	for _, step := range p.AllocationSteps {
		if step.Designation == designation {
			return step.AnnualDays
		}
	}
	return p.DefaultAnnualDays
}

// NegativeFloor returns the lowest balance a debit may drive Available to.
// Zero when negative balances are not allowed.
func (p *LeavePolicy) NegativeFloor() decimal.Decimal {
	if !p.AllowNegativeBalance {
		return decimal.Zero
	}
	return p.NegativeBalanceLimit.Neg()
}
