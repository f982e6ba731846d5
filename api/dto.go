/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

VALIDATION:
  Structural validation (parseable dates, known leave types) happens in
  handlers; business-rule validation is the validation package's job and
  comes back as a VerdictDTO, never as an HTTP error.

SEE ALSO:
  - handlers.go: Uses these types
  - factory/policy.go: PolicyJSON type
*/
package api

import (
	"time"

	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/compoff"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/validation"
)

// =============================================================================
// EMPLOYEES
// =============================================================================

// EmployeeDTO represents an employee in API responses.
type EmployeeDTO struct {
	ID                 string `json:"id"`
	Name               string `json:"name"`
	JoiningDate        string `json:"joining_date"`
	Department         string `json:"department,omitempty"`
	Designation        string `json:"designation,omitempty"`
	Region             string `json:"region"`
	Status             string `json:"status"`
	ReportingManagerID string `json:"reporting_manager_id,omitempty"`
}

func toEmployeeDTO(e *directory.Employee) EmployeeDTO {
	return EmployeeDTO{
		ID:                 e.ID,
		Name:               e.Name,
		JoiningDate:        e.JoiningDate.String(),
		Department:         e.Department,
		Designation:        e.Designation,
		Region:             e.Region,
		Status:             string(e.Status),
		ReportingManagerID: e.ReportingManagerID,
	}
}

// =============================================================================
// LEAVE REQUESTS
// =============================================================================

// SubmitLeaveRequest is the request body for submission and validation.
type SubmitLeaveRequest struct {
	EmployeeID string `json:"employee_id"`
	LeaveType  string `json:"leave_type"`
	StartDate  string `json:"start_date"`
	EndDate    string `json:"end_date"`
	IsHalfDay  bool   `json:"is_half_day,omitempty"`
	Reason     string `json:"reason,omitempty"`
}

// RequestDTO represents a leave request in API responses.
type RequestDTO struct {
	ID                    string `json:"id"`
	EmployeeID            string `json:"employee_id"`
	LeaveType             string `json:"leave_type"`
	StartDate             string `json:"start_date"`
	EndDate               string `json:"end_date"`
	TotalDays             string `json:"total_days"`
	IsHalfDay             bool   `json:"is_half_day"`
	Reason                string `json:"reason,omitempty"`
	Status                string `json:"status"`
	RequiredDocumentation bool   `json:"required_documentation,omitempty"`
	CreatedAt             string `json:"created_at"`
	UpdatedAt             string `json:"updated_at"`
}

func toRequestDTO(r *leave.Request) RequestDTO {
	return RequestDTO{
		ID:                    r.ID,
		EmployeeID:            r.EmployeeID,
		LeaveType:             string(r.LeaveType),
		StartDate:             r.StartDate.String(),
		EndDate:               r.EndDate.String(),
		TotalDays:             r.TotalDays.String(),
		IsHalfDay:             r.IsHalfDay,
		Reason:                r.Reason,
		Status:                string(r.Status),
		RequiredDocumentation: r.RequiredDocumentation,
		CreatedAt:             r.CreatedAt.Format(time.RFC3339),
		UpdatedAt:             r.UpdatedAt.Format(time.RFC3339),
	}
}

// ModifyRequestRequest changes the dates of an approved request.
type ModifyRequestRequest struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsHalfDay bool   `json:"is_half_day,omitempty"`
}

// =============================================================================
// VALIDATION VERDICTS
// =============================================================================

// RuleErrorDTO is one itemized rule violation or warning.
type RuleErrorDTO struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
}

// VerdictDTO is the structured validation outcome.
type VerdictDTO struct {
	IsValid               bool           `json:"is_valid"`
	Errors                []RuleErrorDTO `json:"errors,omitempty"`
	Warnings              []RuleErrorDTO `json:"warnings,omitempty"`
	RequiredDocumentation bool           `json:"required_documentation,omitempty"`
	AutoApprovalEligible  bool           `json:"auto_approval_eligible,omitempty"`
	Duration              string         `json:"duration"`
}

func toVerdictDTO(v validation.Verdict) VerdictDTO {
	dto := VerdictDTO{
		IsValid:               v.IsValid,
		RequiredDocumentation: v.RequiredDocumentation,
		AutoApprovalEligible:  v.AutoApprovalEligible,
		Duration:              v.Duration.String(),
	}
	for _, e := range v.Errors {
		dto.Errors = append(dto.Errors, RuleErrorDTO{Code: e.Code, Field: e.Field, Message: e.Message})
	}
	for _, w := range v.Warnings {
		dto.Warnings = append(dto.Warnings, RuleErrorDTO{Code: w.Code, Field: w.Field, Message: w.Message})
	}
	return dto
}

// SubmitOutcomeDTO wraps a submission result.
type SubmitOutcomeDTO struct {
	Request      *RequestDTO `json:"request,omitempty"`
	Verdict      VerdictDTO  `json:"verdict"`
	AutoApproved bool        `json:"auto_approved,omitempty"`
}

// =============================================================================
// APPROVALS
// =============================================================================

// DecisionRequest records one approver decision.
type DecisionRequest struct {
	ApproverID string `json:"approver_id"`
	Decision   string `json:"decision"` // approve, reject
	Comments   string `json:"comments,omitempty"`
}

// LevelDTO is one approver position in a chain.
type LevelDTO struct {
	Level        int    `json:"level"`
	ApproverID   string `json:"approver_id"`
	ApproverRole string `json:"approver_role"`
	Status       string `json:"status"`
	Comments     string `json:"comments,omitempty"`
	DecidedAt    string `json:"decided_at,omitempty"`
}

// ChainDTO represents an approval chain.
type ChainDTO struct {
	LeaveRequestID string     `json:"leave_request_id"`
	Levels         []LevelDTO `json:"levels"`
	CurrentLevel   int        `json:"current_level"`
	OverallStatus  string     `json:"overall_status"`
}

func toChainDTO(c *approval.Chain) ChainDTO {
	dto := ChainDTO{
		LeaveRequestID: c.LeaveRequestID,
		CurrentLevel:   c.CurrentLevel,
		OverallStatus:  string(c.OverallStatus()),
	}
	for _, lv := range c.Levels {
		l := LevelDTO{
			Level:        lv.Level,
			ApproverID:   lv.ApproverID,
			ApproverRole: string(lv.ApproverRole),
			Status:       string(lv.Status),
			Comments:     lv.Comments,
		}
		if lv.DecidedAt != nil {
			l.DecidedAt = lv.DecidedAt.Format(time.RFC3339)
		}
		dto.Levels = append(dto.Levels, l)
	}
	return dto
}

// DecisionResultDTO is the outcome of processing a decision.
type DecisionResultDTO struct {
	RequestID string `json:"request_id"`
	Decision  string `json:"decision"`
	Level     int    `json:"level"`
	Completed bool   `json:"completed"`
	NextLevel int    `json:"next_level,omitempty"`
	Overall   string `json:"overall_status"`
}

// =============================================================================
// BALANCES
// =============================================================================

// BalanceDTO is the per-leave-type balance view.
type BalanceDTO struct {
	LeaveType        string `json:"leave_type"`
	Year             int    `json:"year"`
	TotalEntitlement string `json:"total_entitlement"`
	Used             string `json:"used"`
	CarryForward     string `json:"carry_forward"`
	Available        string `json:"available"`
}

func toBalanceDTO(b *ledger.BalanceRecord) BalanceDTO {
	return BalanceDTO{
		LeaveType:        string(b.LeaveType),
		Year:             b.Year,
		TotalEntitlement: b.TotalEntitlement.String(),
		Used:             b.Used.String(),
		CarryForward:     b.CarryForward.String(),
		Available:        b.Available().String(),
	}
}

// EntryDTO is one audit-trail entry.
type EntryDTO struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	Amount      string `json:"amount"`
	Reason      string `json:"reason,omitempty"`
	ReferenceID string `json:"reference_id,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:          e.ID,
		Kind:        string(e.Kind),
		Amount:      e.Amount.String(),
		Reason:      e.Reason,
		ReferenceID: e.ReferenceID,
		CreatedAt:   e.CreatedAt.Format(time.RFC3339),
	}
}

// =============================================================================
// COMPENSATORY TIME
// =============================================================================

// LogWorkRequest files extra-hours work for comp-off credit.
type LogWorkRequest struct {
	EmployeeID string  `json:"employee_id"`
	WorkDate   string  `json:"work_date"`
	Hours      float64 `json:"hours"`
	WorkType   string  `json:"work_type"` // weekend, holiday, overtime
}

// VerifyWorkLogRequest is the manager's verification decision.
type VerifyWorkLogRequest struct {
	VerifierID string `json:"verifier_id"`
	Approve    bool   `json:"approve"`
}

// RedeemCompOffRequest converts verified hours into a leave request.
type RedeemCompOffRequest struct {
	EmployeeID string  `json:"employee_id"`
	WorkLogID  string  `json:"work_log_id"`
	Hours      float64 `json:"hours"`
	StartDate  string  `json:"start_date"`
	EndDate    string  `json:"end_date"`
}

// WorkLogDTO represents a work log entry.
type WorkLogDTO struct {
	ID            string `json:"id"`
	EmployeeID    string `json:"employee_id"`
	WorkDate      string `json:"work_date"`
	HoursWorked   string `json:"hours_worked"`
	WorkType      string `json:"work_type"`
	Status        string `json:"status"`
	RedeemedHours string `json:"redeemed_hours"`
	VerifiedBy    string `json:"verified_by,omitempty"`
	ExpiresAt     string `json:"expires_at,omitempty"`
}

func toWorkLogDTO(w *compoff.WorkLogEntry) WorkLogDTO {
	dto := WorkLogDTO{
		ID:            w.ID,
		EmployeeID:    w.EmployeeID,
		WorkDate:      w.WorkDate.String(),
		HoursWorked:   w.HoursWorked.String(),
		WorkType:      string(w.WorkType),
		Status:        string(w.Status),
		RedeemedHours: w.RedeemedHours.String(),
		VerifiedBy:    w.VerifiedBy,
	}
	if !w.ExpiresAt.IsZero() {
		dto.ExpiresAt = w.ExpiresAt.String()
	}
	return dto
}

// =============================================================================
// BATCH RUNS
// =============================================================================

// BatchRunRequest triggers a scheduled job manually.
type BatchRunRequest struct {
	Year  int `json:"year"`
	Month int `json:"month,omitempty"`
}

// BatchResultDTO summarizes a batch run.
type BatchResultDTO struct {
	Processed int              `json:"processed"`
	Succeeded int              `json:"succeeded"`
	Failed    int              `json:"failed"`
	Failures  []BatchFailureDTO `json:"failures,omitempty"`
}

// BatchFailureDTO names one skipped employee.
type BatchFailureDTO struct {
	EmployeeID string `json:"employee_id"`
	Error      string `json:"error"`
}

// =============================================================================
// ERRORS
// =============================================================================

// ErrorResponse is the JSON body for error statuses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}
