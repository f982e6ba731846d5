/*
presets.go - Pre-built leave policy configurations

PURPOSE:
  Ready-to-use policies for common leave types, following typical HR
  patterns. These are starting points; real deployments load policies from
  the configuration store via the factory package.

AVAILABLE PRESETS:
  EarnedLeavePolicy:  monthly accrual, bounded carry-forward
  SickLeavePolicy:    monthly accrual, expires at year end, auto-approval
                      for short requests
  CasualLeavePolicy:  annual lump grant, expires at year end
  MaternityPolicy:    eligibility-filtered block grant
  CompOffPolicy:      no accrual; credited from verified extra work
  LWPPolicy:          no balance tracking, negative always permitted

SEE ALSO:
  - factory: JSON-based policy creation
*/
package policy

import (
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
)

func days(n float64) decimal.Decimal { return decimal.NewFromFloat(n) }

// EarnedLeavePolicy returns a typical earned-leave policy: 1 day accrued per
// month, up to maxCarryForward days carried into the next year.
func EarnedLeavePolicy(region string, monthlyRate, maxCarryForward float64) *LeavePolicy {
	return &LeavePolicy{
		LeaveType:       leave.TypeEarned,
		Region:          region,
		Name:            "Earned Leave",
		AccrualMode:     AccrualMonthly,
		MonthlyRate:     days(monthlyRate),
		YearEnd:         YearEndCarryForward,
		MaxCarryForward: days(maxCarryForward),

		MaxConsecutiveDays:     15,
		MinAdvanceNoticeDays:   3,
		MaxAdvanceBookingDays:  180,
		DocumentationThreshold: days(5),

		ApprovalRoles: []Role{RoleManager},
	}
}

// SickLeavePolicy returns a sick-leave policy with monthly accrual, full
// expiry at year end, backdating allowed, and auto-approval for short
// requests.
func SickLeavePolicy(region string, monthlyRate float64) *LeavePolicy {
	return &LeavePolicy{
		LeaveType:   leave.TypeSick,
		Region:      region,
		Name:        "Sick Leave",
		AccrualMode: AccrualMonthly,
		MonthlyRate: days(monthlyRate),
		YearEnd:     YearEndExpire,

		BackdateLimitDays:      7,
		DocumentationThreshold: days(3),

		AutoApprove:        true,
		AutoApproveMaxDays: days(2),

		ApprovalRoles: []Role{RoleManager},
	}
}

// CasualLeavePolicy returns an annual-lump casual leave policy stepped by
// designation.
func CasualLeavePolicy(region string, defaultAnnual float64, steps []AllocationStep) *LeavePolicy {
	return &LeavePolicy{
		LeaveType:         leave.TypeCasual,
		Region:            region,
		Name:              "Casual Leave",
		AccrualMode:       AccrualAnnual,
		DefaultAnnualDays: days(defaultAnnual),
		AllocationSteps:   steps,
		YearEnd:           YearEndExpire,

		MaxConsecutiveDays:   5,
		MinAdvanceNoticeDays: 1,

		ApprovalRoles: []Role{RoleManager},
	}
}

// MaternityPolicy returns a maternity-leave policy with eligibility filters.
func MaternityPolicy(region string, blockDays float64) *LeavePolicy {
	return &LeavePolicy{
		LeaveType:         leave.TypeMaternity,
		Region:            region,
		Name:              "Maternity Leave",
		AccrualMode:       AccrualAnnual,
		DefaultAnnualDays: days(blockDays),
		YearEnd:           YearEndExpire,

		Eligibility: Eligibility{
			Genders:         []string{"female"},
			MaritalStatuses: []string{"married"},
			MinTenureMonths: 6,
		},

		ApprovalRoles: []Role{RoleManager, RoleHR},
	}
}

// CompOffPolicy returns the compensatory-time policy: no periodic accrual,
// credit comes from verified work logs, redemption bounded per request, and
// unredeemed credit expires after expiryMonths.
func CompOffPolicy(region string, minHours, maxHours float64, expiryMonths int) *LeavePolicy {
	return &LeavePolicy{
		LeaveType:   leave.TypeCompOff,
		Region:      region,
		Name:        "Compensatory Off",
		AccrualMode: AccrualNone,
		YearEnd:     YearEndExpire,

		CompOffMinHours:     decimal.NewFromFloat(minHours),
		CompOffMaxHours:     decimal.NewFromFloat(maxHours),
		CompOffExpiryMonths: expiryMonths,

		ApprovalRoles: []Role{RoleManager, RoleSeniorManager, RoleHR},
	}
}

// LWPPolicy returns the leave-without-pay policy. LWP has no entitlement;
// the balance is permitted to go arbitrarily negative and the debit only
// records consumption.
func LWPPolicy(region string) *LeavePolicy {
	return &LeavePolicy{
		LeaveType:   leave.TypeLWP,
		Region:      region,
		Name:        "Leave Without Pay",
		AccrualMode: AccrualNone,
		YearEnd:     YearEndExpire,

		AllowNegativeBalance: true,
		NegativeBalanceLimit: days(365),

		ApprovalRoles: []Role{RoleManager, RoleHR},
	}
}

// DefaultSet installs the standard policy set for a region into a store.
func DefaultSet(store *MemoryStore, region string) {
	store.Put(EarnedLeavePolicy(region, 1.0, 5))
	store.Put(SickLeavePolicy(region, 1.0))
	store.Put(CasualLeavePolicy(region, 7, []AllocationStep{
		{Designation: "senior_manager", AnnualDays: days(10)},
		{Designation: "director", AnnualDays: days(12)},
	}))
	store.Put(MaternityPolicy(region, 182))
	store.Put(CompOffPolicy(region, 5, 12, 3))
	store.Put(LWPPolicy(region))
}
