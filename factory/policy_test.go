package factory_test

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/policy"
)

const earnedJSON = `{
	"leave_type": "earned",
	"region": "IN",
	"name": "Earned Leave",
	"accrual": {"mode": "monthly", "monthly_rate": 1.5},
	"year_end": {"rule": "carry_forward", "max_carry_forward": 5},
	"bounds": {
		"max_consecutive_days": 15,
		"min_advance_notice_days": 3,
		"min_gap_days": 2,
		"documentation_threshold": 3
	},
	"auto_approve": {"enabled": true, "max_days": 2},
	"approval_roles": ["manager", "senior_manager", "hr"]
}`

func TestParsePolicy_FullDefinition(t *testing.T) {
	f := factory.NewPolicyFactory()

	pol, err := f.ParsePolicy(earnedJSON)
	require.NoError(t, err)

	assert.Equal(t, leave.TypeEarned, pol.LeaveType)
	assert.Equal(t, "IN", pol.Region)
	assert.Equal(t, policy.AccrualMonthly, pol.AccrualMode)
	assert.True(t, pol.MonthlyRate.Equal(decimalFrom(1.5)))
	assert.Equal(t, policy.YearEndCarryForward, pol.YearEnd)
	assert.True(t, pol.MaxCarryForward.Equal(decimalFrom(5)))
	assert.Equal(t, 15, pol.MaxConsecutiveDays)
	assert.Equal(t, 3, pol.MinAdvanceNoticeDays)
	assert.Equal(t, 2, pol.MinGapDays)
	assert.True(t, pol.DocumentationThreshold.Equal(decimalFrom(3)))
	assert.True(t, pol.AutoApprove)
	assert.True(t, pol.AutoApproveMaxDays.Equal(decimalFrom(2)))
	assert.Equal(t, []policy.Role{policy.RoleManager, policy.RoleSeniorManager, policy.RoleHR}, pol.ApprovalRoles)
}

func TestParsePolicy_Defaults(t *testing.T) {
	// The sparse form: no accrual, no year-end rule, no chain. Defaults are
	// no periodic grant, expire at year end, manager-only approval.
	f := factory.NewPolicyFactory()

	pol, err := f.ParsePolicy(`{"leave_type": "casual", "region": "US"}`)
	require.NoError(t, err)

	assert.Equal(t, policy.AccrualNone, pol.AccrualMode)
	assert.Equal(t, policy.YearEndExpire, pol.YearEnd)
	assert.Equal(t, []policy.Role{policy.RoleManager}, pol.ApprovalRoles)
	assert.False(t, pol.AutoApprove)
	assert.False(t, pol.AllowNegativeBalance)
}

func TestParsePolicy_AnnualStepsAndEligibility(t *testing.T) {
	f := factory.NewPolicyFactory()

	pol, err := f.ParsePolicy(`{
		"leave_type": "casual",
		"region": "IN",
		"accrual": {
			"mode": "annual",
			"default_annual_days": 7,
			"steps": [
				{"designation": "director", "annual_days": 12},
				{"designation": "manager", "annual_days": 10}
			]
		},
		"eligibility": {"min_tenure_months": 6, "designations": ["director", "manager"]}
	}`)
	require.NoError(t, err)

	assert.Equal(t, policy.AccrualAnnual, pol.AccrualMode)
	assert.True(t, pol.DefaultAnnualDays.Equal(decimalFrom(7)))
	require.Len(t, pol.AllocationSteps, 2)
	assert.Equal(t, "director", pol.AllocationSteps[0].Designation)
	assert.True(t, pol.AllocationSteps[0].AnnualDays.Equal(decimalFrom(12)))
	assert.Equal(t, 6, pol.Eligibility.MinTenureMonths)
}

func TestParsePolicy_CompOffBounds(t *testing.T) {
	f := factory.NewPolicyFactory()

	pol, err := f.ParsePolicy(`{
		"leave_type": "comp_off",
		"region": "IN",
		"comp_off": {"min_hours": 5, "max_hours": 12, "expiry_months": 3}
	}`)
	require.NoError(t, err)

	assert.True(t, pol.CompOffMinHours.Equal(decimalFrom(5)))
	assert.True(t, pol.CompOffMaxHours.Equal(decimalFrom(12)))
	assert.Equal(t, 3, pol.CompOffExpiryMonths)
}

// =============================================================================
// REJECTION CASES
// =============================================================================

func TestParsePolicy_Rejections(t *testing.T) {
	f := factory.NewPolicyFactory()

	cases := map[string]string{
		"unknown leave type": `{"leave_type": "sabbatical", "region": "IN"}`,
		"missing region":     `{"leave_type": "earned"}`,
		"bad accrual mode":   `{"leave_type": "earned", "region": "IN", "accrual": {"mode": "weekly"}}`,
		"bad year-end rule":  `{"leave_type": "earned", "region": "IN", "year_end": {"rule": "rollover"}}`,
		"bad approver role":  `{"leave_type": "earned", "region": "IN", "approval_roles": ["ceo"]}`,
		"malformed JSON":     `{"leave_type": `,
	}
	for name, input := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := f.ParsePolicy(input)
			assert.Error(t, err)
		})
	}
}

// =============================================================================
// ROUND TRIP
// =============================================================================

func TestToJSON_RoundTripPreservesPolicy(t *testing.T) {
	f := factory.NewPolicyFactory()

	original, err := f.ParsePolicy(earnedJSON)
	require.NoError(t, err)

	back, err := f.FromJSON(f.ToJSON(original))
	require.NoError(t, err)

	assert.Equal(t, original.LeaveType, back.LeaveType)
	assert.Equal(t, original.AccrualMode, back.AccrualMode)
	assert.True(t, original.MonthlyRate.Equal(back.MonthlyRate))
	assert.Equal(t, original.YearEnd, back.YearEnd)
	assert.True(t, original.MaxCarryForward.Equal(back.MaxCarryForward))
	assert.Equal(t, original.MaxConsecutiveDays, back.MaxConsecutiveDays)
	assert.Equal(t, original.ApprovalRoles, back.ApprovalRoles)
	assert.Equal(t, original.AutoApprove, back.AutoApprove)
}

func TestToJSON_PresetRoundTrip(t *testing.T) {
	// The Go presets must survive an admin read-modify-write cycle.
	f := factory.NewPolicyFactory()
	original := policy.CompOffPolicy("IN", 5, 12, 3)

	back, err := f.FromJSON(f.ToJSON(original))
	require.NoError(t, err)

	assert.Equal(t, leave.TypeCompOff, back.LeaveType)
	assert.True(t, original.CompOffMinHours.Equal(back.CompOffMinHours))
	assert.True(t, original.CompOffMaxHours.Equal(back.CompOffMaxHours))
	assert.Equal(t, original.CompOffExpiryMonths, back.CompOffExpiryMonths)
	assert.Equal(t, original.ApprovalRoles, back.ApprovalRoles)
}

func decimalFrom(f float64) decimal.Decimal { return decimal.NewFromFloat(f) }
