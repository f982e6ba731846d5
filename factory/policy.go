/*
Package factory provides JSON to Go policy conversion.

PURPOSE:
  Converts JSON policy definitions into policy.LeavePolicy values. This
  enables policy configuration without code changes - HR can define leave
  rules in JSON, and the factory creates the proper Go structs.

WHY JSON?
  - Non-developers can modify policies
  - Easy integration with admin UI
  - Version control for policy definitions
  - Database storage of policy configs

JSON SCHEMA:
  {
    "leave_type": "earned",
    "region": "IN",
    "name": "Earned Leave",
    "accrual": {"mode": "monthly", "monthly_rate": 1.5},
    "year_end": {"rule": "carry_forward", "max_carry_forward": 5},
    "bounds": {
      "max_consecutive_days": 15,
      "min_advance_notice_days": 3,
      "documentation_threshold": 3
    },
    "approval_roles": ["manager"]
  }

KEY FEATURES:
  - Validates leave type against the registry
  - Sets sensible defaults (year-end expiry, manager-only chain)
  - Round-trips via ToJSON for admin reads

USAGE:
  f := factory.NewPolicyFactory()
  pol, err := f.ParsePolicy(jsonString)

SEE ALSO:
  - policy/policy.go: LeavePolicy type definition
  - policy/presets.go: Go-based policy configurations
*/
package factory

import (
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/policy"
)

// =============================================================================
// JSON SCHEMA TYPES
// =============================================================================

// PolicyJSON is the JSON representation of a leave policy.
type PolicyJSON struct {
	LeaveType string `json:"leave_type"`
	Region    string `json:"region"`
	Name      string `json:"name"`

	Accrual       *AccrualJSON     `json:"accrual,omitempty"`
	YearEnd       *YearEndJSON     `json:"year_end,omitempty"`
	Bounds        *BoundsJSON      `json:"bounds,omitempty"`
	Balance       *BalanceJSON     `json:"balance,omitempty"`
	AutoApprove   *AutoApproveJSON `json:"auto_approve,omitempty"`
	ApprovalRoles []string         `json:"approval_roles,omitempty"`
	Eligibility   *EligibilityJSON `json:"eligibility,omitempty"`
	CompOff       *CompOffJSON     `json:"comp_off,omitempty"`
}

// AccrualJSON represents accrual configuration.
type AccrualJSON struct {
	Mode              string           `json:"mode"` // monthly, annual, none
	MonthlyRate       float64          `json:"monthly_rate,omitempty"`
	DefaultAnnualDays float64          `json:"default_annual_days,omitempty"`
	Steps             []AllocationJSON `json:"steps,omitempty"`
}

// AllocationJSON maps a designation to its annual entitlement.
type AllocationJSON struct {
	Designation string  `json:"designation"`
	AnnualDays  float64 `json:"annual_days"`
}

// YearEndJSON represents the year-boundary rule.
type YearEndJSON struct {
	Rule            string  `json:"rule"` // carry_forward, expire
	MaxCarryForward float64 `json:"max_carry_forward,omitempty"`
}

// BoundsJSON represents request bounds.
type BoundsJSON struct {
	MaxConsecutiveDays     int     `json:"max_consecutive_days,omitempty"`
	MinAdvanceNoticeDays   int     `json:"min_advance_notice_days,omitempty"`
	MaxAdvanceBookingDays  int     `json:"max_advance_booking_days,omitempty"`
	BackdateLimitDays      int     `json:"backdate_limit_days,omitempty"`
	MinGapDays             int     `json:"min_gap_days,omitempty"`
	DocumentationThreshold float64 `json:"documentation_threshold,omitempty"`
}

// BalanceJSON represents negative-balance behavior.
type BalanceJSON struct {
	AllowNegative bool    `json:"allow_negative,omitempty"`
	NegativeLimit float64 `json:"negative_limit,omitempty"`
}

// AutoApproveJSON represents the auto-approval rule.
type AutoApproveJSON struct {
	Enabled bool    `json:"enabled"`
	MaxDays float64 `json:"max_days,omitempty"`
}

// EligibilityJSON represents eligibility filters.
type EligibilityJSON struct {
	Genders         []string `json:"genders,omitempty"`
	MaritalStatuses []string `json:"marital_statuses,omitempty"`
	MinTenureMonths int      `json:"min_tenure_months,omitempty"`
	Designations    []string `json:"designations,omitempty"`
}

// CompOffJSON represents compensatory-time bounds.
type CompOffJSON struct {
	MinHours     float64 `json:"min_hours"`
	MaxHours     float64 `json:"max_hours"`
	ExpiryMonths int     `json:"expiry_months"`
}

// =============================================================================
// POLICY FACTORY
// =============================================================================

// PolicyFactory converts JSON policies to Go structs.
type PolicyFactory struct{}

// NewPolicyFactory creates a new policy factory.
func NewPolicyFactory() *PolicyFactory {
	return &PolicyFactory{}
}

// ParsePolicy parses a JSON string into a LeavePolicy.
func (f *PolicyFactory) ParsePolicy(jsonStr string) (*policy.LeavePolicy, error) {
	var pj PolicyJSON
	if err := json.Unmarshal([]byte(jsonStr), &pj); err != nil {
		return nil, fmt.Errorf("failed to parse policy JSON: %w", err)
	}
	return f.FromJSON(pj)
}

// FromJSON converts PolicyJSON to a LeavePolicy.
func (f *PolicyFactory) FromJSON(pj PolicyJSON) (*policy.LeavePolicy, error) {
	lt := leave.Type(pj.LeaveType)
	if !leave.IsRegistered(lt) {
		return nil, fmt.Errorf("unknown leave type: %s", pj.LeaveType)
	}
	if pj.Region == "" {
		return nil, fmt.Errorf("policy for %s: region is required", pj.LeaveType)
	}

	pol := &policy.LeavePolicy{
		LeaveType: lt,
		Region:    pj.Region,
		Name:      pj.Name,

		AccrualMode: policy.AccrualNone,
		YearEnd:     policy.YearEndExpire,
	}

	if pj.Accrual != nil {
		mode, err := parseAccrualMode(pj.Accrual.Mode)
		if err != nil {
			return nil, fmt.Errorf("policy for %s: %w", pj.LeaveType, err)
		}
		pol.AccrualMode = mode
		pol.MonthlyRate = dec(pj.Accrual.MonthlyRate)
		pol.DefaultAnnualDays = dec(pj.Accrual.DefaultAnnualDays)
		for _, step := range pj.Accrual.Steps {
			pol.AllocationSteps = append(pol.AllocationSteps, policy.AllocationStep{
				Designation: step.Designation,
				AnnualDays:  dec(step.AnnualDays),
			})
		}
	}

	if pj.YearEnd != nil {
		rule, err := parseYearEndRule(pj.YearEnd.Rule)
		if err != nil {
			return nil, fmt.Errorf("policy for %s: %w", pj.LeaveType, err)
		}
		pol.YearEnd = rule
		pol.MaxCarryForward = dec(pj.YearEnd.MaxCarryForward)
	}

	if pj.Bounds != nil {
		pol.MaxConsecutiveDays = pj.Bounds.MaxConsecutiveDays
		pol.MinAdvanceNoticeDays = pj.Bounds.MinAdvanceNoticeDays
		pol.MaxAdvanceBookingDays = pj.Bounds.MaxAdvanceBookingDays
		pol.BackdateLimitDays = pj.Bounds.BackdateLimitDays
		pol.MinGapDays = pj.Bounds.MinGapDays
		pol.DocumentationThreshold = dec(pj.Bounds.DocumentationThreshold)
	}

	if pj.Balance != nil {
		pol.AllowNegativeBalance = pj.Balance.AllowNegative
		pol.NegativeBalanceLimit = dec(pj.Balance.NegativeLimit)
	}

	if pj.AutoApprove != nil {
		pol.AutoApprove = pj.AutoApprove.Enabled
		pol.AutoApproveMaxDays = dec(pj.AutoApprove.MaxDays)
	}

	if len(pj.ApprovalRoles) == 0 {
		pol.ApprovalRoles = []policy.Role{policy.RoleManager}
	} else {
		for _, r := range pj.ApprovalRoles {
			role, err := parseRole(r)
			if err != nil {
				return nil, fmt.Errorf("policy for %s: %w", pj.LeaveType, err)
			}
			pol.ApprovalRoles = append(pol.ApprovalRoles, role)
		}
	}

	if pj.Eligibility != nil {
		pol.Eligibility = policy.Eligibility{
			Genders:         pj.Eligibility.Genders,
			MaritalStatuses: pj.Eligibility.MaritalStatuses,
			MinTenureMonths: pj.Eligibility.MinTenureMonths,
			Designations:    pj.Eligibility.Designations,
		}
	}

	if pj.CompOff != nil {
		pol.CompOffMinHours = dec(pj.CompOff.MinHours)
		pol.CompOffMaxHours = dec(pj.CompOff.MaxHours)
		pol.CompOffExpiryMonths = pj.CompOff.ExpiryMonths
	}

	return pol, nil
}

// ToJSON converts a LeavePolicy to its JSON representation.
func (f *PolicyFactory) ToJSON(pol *policy.LeavePolicy) PolicyJSON {
	pj := PolicyJSON{
		LeaveType: string(pol.LeaveType),
		Region:    pol.Region,
		Name:      pol.Name,
	}

	if pol.AccrualMode != policy.AccrualNone {
		pj.Accrual = &AccrualJSON{
			Mode:              string(pol.AccrualMode),
			MonthlyRate:       f64(pol.MonthlyRate),
			DefaultAnnualDays: f64(pol.DefaultAnnualDays),
		}
		for _, step := range pol.AllocationSteps {
			pj.Accrual.Steps = append(pj.Accrual.Steps, AllocationJSON{
				Designation: step.Designation,
				AnnualDays:  f64(step.AnnualDays),
			})
		}
	}

	pj.YearEnd = &YearEndJSON{
		Rule:            string(pol.YearEnd),
		MaxCarryForward: f64(pol.MaxCarryForward),
	}

	pj.Bounds = &BoundsJSON{
		MaxConsecutiveDays:     pol.MaxConsecutiveDays,
		MinAdvanceNoticeDays:   pol.MinAdvanceNoticeDays,
		MaxAdvanceBookingDays:  pol.MaxAdvanceBookingDays,
		BackdateLimitDays:      pol.BackdateLimitDays,
		MinGapDays:             pol.MinGapDays,
		DocumentationThreshold: f64(pol.DocumentationThreshold),
	}

	if pol.AllowNegativeBalance {
		pj.Balance = &BalanceJSON{
			AllowNegative: true,
			NegativeLimit: f64(pol.NegativeBalanceLimit),
		}
	}

	if pol.AutoApprove {
		pj.AutoApprove = &AutoApproveJSON{Enabled: true, MaxDays: f64(pol.AutoApproveMaxDays)}
	}

	for _, r := range pol.ApprovalRoles {
		pj.ApprovalRoles = append(pj.ApprovalRoles, string(r))
	}

	e := pol.Eligibility
	if len(e.Genders) > 0 || len(e.MaritalStatuses) > 0 || e.MinTenureMonths > 0 || len(e.Designations) > 0 {
		pj.Eligibility = &EligibilityJSON{
			Genders:         e.Genders,
			MaritalStatuses: e.MaritalStatuses,
			MinTenureMonths: e.MinTenureMonths,
			Designations:    e.Designations,
		}
	}

	if pol.LeaveType == leave.TypeCompOff {
		pj.CompOff = &CompOffJSON{
			MinHours:     f64(pol.CompOffMinHours),
			MaxHours:     f64(pol.CompOffMaxHours),
			ExpiryMonths: pol.CompOffExpiryMonths,
		}
	}

	return pj
}

// =============================================================================
// PARSING HELPERS
// =============================================================================

func parseAccrualMode(s string) (policy.AccrualMode, error) {
	switch s {
	case "monthly":
		return policy.AccrualMonthly, nil
	case "annual":
		return policy.AccrualAnnual, nil
	case "none", "":
		return policy.AccrualNone, nil
	default:
		return "", fmt.Errorf("unknown accrual mode: %s", s)
	}
}

func parseYearEndRule(s string) (policy.YearEndRule, error) {
	switch s {
	case "carry_forward":
		return policy.YearEndCarryForward, nil
	case "expire", "":
		return policy.YearEndExpire, nil
	default:
		return "", fmt.Errorf("unknown year-end rule: %s", s)
	}
}

func parseRole(s string) (policy.Role, error) {
	switch s {
	case "manager":
		return policy.RoleManager, nil
	case "senior_manager":
		return policy.RoleSeniorManager, nil
	case "hr":
		return policy.RoleHR, nil
	default:
		return "", fmt.Errorf("unknown approver role: %s", s)
	}
}

func dec(v float64) decimal.Decimal { return decimal.NewFromFloat(v) }

func f64(d decimal.Decimal) float64 {
	v, _ := d.Float64()
	return v
}
