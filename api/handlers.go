/*
handlers.go - HTTP API handlers for the leave engine

PURPOSE:
  Exposes the leave engine via REST API. Handles HTTP request/response,
  JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Requests:
    POST   /api/requests                   Submit a leave request
    POST   /api/requests/validate          Dry-run validation
    GET    /api/requests/{id}              Request with its approval chain
    POST   /api/requests/{id}/decisions    Record an approver decision
    POST   /api/requests/{id}/cancel       Cancel (refunds if approved)
    POST   /api/requests/{id}/modify       Change dates of an approved request

  Employees:
    GET    /api/employees/{id}             Employee details
    GET    /api/employees/{id}/balances    Per-type balances for a year
    GET    /api/employees/{id}/history     Audit trail for one leave type
    GET    /api/employees/{id}/requests    Request history
    GET    /api/employees/{id}/work-logs   Comp-off work logs

  Approvals:
    GET    /api/approvals/pending          Chains awaiting an approver

  Comp-off:
    POST   /api/comp-off/work-logs              File extra-hours work
    POST   /api/comp-off/work-logs/{id}/verify  Manager verification
    POST   /api/comp-off/redeem                 Redeem hours into leave

  Policies:
    GET    /api/policies                   Policies for a region
    POST   /api/policies                   Upsert a policy from JSON

  Admin:
    POST   /api/admin/accrual/run          Monthly accrual batch
    POST   /api/admin/allocation/run       Annual lump allocation batch
    POST   /api/admin/year-end/run         Carry-forward/expiry transition
    POST   /api/admin/comp-off-expiry/run  Comp-off expiry sweep

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Invalid input, impossible transitions
  - 403: Wrong approver, self-verification
  - 404: Resource not found
  - 409: Concurrent decision lost, version conflict
  - 500: Internal errors
  Business-rule violations are NOT errors: they come back as a 200 with
  the verdict listing every failed rule.

SECURITY NOTE:
  Currently NO authentication or authorization. Approver identity is taken
  from the request body and trusted.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/compoff"
	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/factory"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
	"github.com/warp/leave-engine/policy"
	"github.com/warp/leave-engine/validation"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Ledger    *ledger.Ledger
	Approvals *approval.Service
	Accruals  *accrual.Engine
	CompOff   *compoff.Service
	Policies  *policy.MemoryStore
	Dir       directory.Directory
	Chains    approval.ChainStore
	Requests  leave.RequestStore
	WorkLogs  compoff.WorkLogStore
	Factory   *factory.PolicyFactory
	Log       zerolog.Logger
}

// =============================================================================
// LEAVE REQUEST HANDLERS
// =============================================================================

// SubmitRequest files a leave request.
// POST /api/requests
func (h *Handler) SubmitRequest(w http.ResponseWriter, r *http.Request) {
	cand, ok := h.decodeCandidate(w, r)
	if !ok {
		return
	}

	outcome, err := h.Approvals.Submit(r.Context(), cand)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dto := SubmitOutcomeDTO{
		Verdict:      toVerdictDTO(outcome.Verdict),
		AutoApproved: outcome.AutoApproved,
	}
	status := http.StatusOK
	if outcome.Request != nil {
		rd := toRequestDTO(outcome.Request)
		dto.Request = &rd
		status = http.StatusCreated
	}
	writeJSON(w, status, dto)
}

// ValidateRequest runs the rule set without persisting anything.
// POST /api/requests/validate
func (h *Handler) ValidateRequest(w http.ResponseWriter, r *http.Request) {
	cand, ok := h.decodeCandidate(w, r)
	if !ok {
		return
	}

	verdict, err := h.Approvals.Validate(r.Context(), cand)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toVerdictDTO(verdict))
}

func (h *Handler) decodeCandidate(w http.ResponseWriter, r *http.Request) (validation.Candidate, bool) {
	var req SubmitLeaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return validation.Candidate{}, false
	}

	start, err := calendar.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return validation.Candidate{}, false
	}
	end, err := calendar.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return validation.Candidate{}, false
	}

	return validation.Candidate{
		EmployeeID: req.EmployeeID,
		LeaveType:  leave.Type(req.LeaveType),
		StartDate:  start,
		EndDate:    end,
		IsHalfDay:  req.IsHalfDay,
		Reason:     req.Reason,
	}, true
}

// GetRequest returns a request and, when one exists, its approval chain.
// GET /api/requests/{id}
func (h *Handler) GetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	ctx := r.Context()

	req, err := h.Requests.GetRequest(ctx, id)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	resp := struct {
		Request RequestDTO `json:"request"`
		Chain   *ChainDTO  `json:"chain,omitempty"`
	}{Request: toRequestDTO(req)}

	chain, err := h.Chains.GetChain(ctx, id)
	if err == nil {
		c := toChainDTO(chain)
		resp.Chain = &c
	} else if !errors.Is(err, approval.ErrChainNotFound) {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// DecideRequest records one approver decision on a pending request.
// POST /api/requests/{id}/decisions
func (h *Handler) DecideRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req DecisionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var decision approval.Decision
	switch req.Decision {
	case "approve":
		decision = approval.DecisionApprove
	case "reject":
		decision = approval.DecisionReject
	default:
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("Unknown decision %q (use approve or reject)", req.Decision), nil)
		return
	}

	result, err := h.Approvals.Workflow.ProcessApproval(r.Context(), id, req.ApproverID, decision, req.Comments)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, DecisionResultDTO{
		RequestID: result.RequestID,
		Decision:  string(result.Decision),
		Level:     result.Level,
		Completed: result.Completed,
		NextLevel: result.NextLevel,
		Overall:   string(result.Overall),
	})
}

// CancelRequest withdraws a request, crediting back an approved debit.
// POST /api/requests/{id}/cancel
func (h *Handler) CancelRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body struct {
		ActorID string `json:"actor_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	req, err := h.Approvals.Cancel(r.Context(), id, body.ActorID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// ModifyRequest changes the dates of an approved request; the balance is
// settled by the delta.
// POST /api/requests/{id}/modify
func (h *Handler) ModifyRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var body ModifyRequestRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := calendar.ParseDate(body.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := calendar.ParseDate(body.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	req, err := h.Approvals.Modify(r.Context(), id, start, end, body.IsHalfDay)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toRequestDTO(req))
}

// =============================================================================
// EMPLOYEE HANDLERS
// =============================================================================

// GetEmployee returns a single employee.
// GET /api/employees/{id}
func (h *Handler) GetEmployee(w http.ResponseWriter, r *http.Request) {
	emp, err := h.Dir.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEmployeeDTO(emp))
}

// GetBalances returns all of an employee's balances for a year.
// GET /api/employees/{id}/balances?year=2025
func (h *Handler) GetBalances(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	year := yearParam(r)

	records, err := h.Ledger.Balances(r.Context(), id, year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]BalanceDTO, 0, len(records))
	for _, rec := range records {
		dtos = append(dtos, toBalanceDTO(rec))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"employee_id": id,
		"year":        year,
		"balances":    dtos,
	})
}

// GetHistory returns the audit trail for one leave type.
// GET /api/employees/{id}/history?leave_type=earned&year=2025
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	lt := leave.Type(r.URL.Query().Get("leave_type"))
	if !leave.IsRegistered(lt) {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("Unknown leave type %q", lt), nil)
		return
	}
	year := yearParam(r)

	entries, err := h.Ledger.History(r.Context(), id, lt, year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]EntryDTO, 0, len(entries))
	for _, e := range entries {
		dtos = append(dtos, toEntryDTO(e))
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": dtos})
}

// ListEmployeeRequests returns an employee's request history, newest first.
// GET /api/employees/{id}/requests
func (h *Handler) ListEmployeeRequests(w http.ResponseWriter, r *http.Request) {
	requests, err := h.Requests.RequestsByEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]RequestDTO, 0, len(requests))
	for _, req := range requests {
		dtos = append(dtos, toRequestDTO(req))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListWorkLogs returns an employee's comp-off work logs.
// GET /api/employees/{id}/work-logs
func (h *Handler) ListWorkLogs(w http.ResponseWriter, r *http.Request) {
	logs, err := h.WorkLogs.WorkLogsByEmployee(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]WorkLogDTO, 0, len(logs))
	for _, l := range logs {
		dtos = append(dtos, toWorkLogDTO(l))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// APPROVAL HANDLERS
// =============================================================================

// PendingApprovals lists chains whose current level awaits the approver.
// GET /api/approvals/pending?approver_id=mgr-1
func (h *Handler) PendingApprovals(w http.ResponseWriter, r *http.Request) {
	approverID := r.URL.Query().Get("approver_id")
	if approverID == "" {
		writeError(w, http.StatusBadRequest, "approver_id is required", nil)
		return
	}

	chains, err := h.Chains.PendingForApprover(r.Context(), approverID)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]ChainDTO, 0, len(chains))
	for _, c := range chains {
		dtos = append(dtos, toChainDTO(c))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// COMP-OFF HANDLERS
// =============================================================================

// LogWork files a PENDING work log.
// POST /api/comp-off/work-logs
func (h *Handler) LogWork(w http.ResponseWriter, r *http.Request) {
	var req LogWorkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	workDate, err := calendar.ParseDate(req.WorkDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid work_date format (use YYYY-MM-DD)", err)
		return
	}

	entry, err := h.CompOff.LogWork(r.Context(), req.EmployeeID, workDate,
		decimal.NewFromFloat(req.Hours), compoff.WorkType(req.WorkType))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toWorkLogDTO(entry))
}

// VerifyWorkLog records the manager's verification decision.
// POST /api/comp-off/work-logs/{id}/verify
func (h *Handler) VerifyWorkLog(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req VerifyWorkLogRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	entry, err := h.CompOff.Verify(r.Context(), id, req.VerifierID, req.Approve)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toWorkLogDTO(entry))
}

// RedeemCompOff converts verified hours into a leave request.
// POST /api/comp-off/redeem
func (h *Handler) RedeemCompOff(w http.ResponseWriter, r *http.Request) {
	var req RedeemCompOffRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	start, err := calendar.ParseDate(req.StartDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid start_date format (use YYYY-MM-DD)", err)
		return
	}
	end, err := calendar.ParseDate(req.EndDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid end_date format (use YYYY-MM-DD)", err)
		return
	}

	outcome, err := h.CompOff.ApplyForCompOff(r.Context(), req.EmployeeID, req.WorkLogID,
		decimal.NewFromFloat(req.Hours), start, end)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dto := SubmitOutcomeDTO{
		Verdict:      toVerdictDTO(outcome.Submit.Verdict),
		AutoApproved: outcome.Submit.AutoApproved,
	}
	status := http.StatusOK
	if outcome.Submit.Request != nil {
		rd := toRequestDTO(outcome.Submit.Request)
		dto.Request = &rd
		status = http.StatusCreated
	}
	writeJSON(w, status, dto)
}

// =============================================================================
// POLICY HANDLERS
// =============================================================================

// ListPolicies returns the policies configured for a region.
// GET /api/policies?region=IN
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	region := r.URL.Query().Get("region")
	if region == "" {
		writeError(w, http.StatusBadRequest, "region is required", nil)
		return
	}

	policies, err := h.Policies.ForRegion(r.Context(), region)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}

	dtos := make([]factory.PolicyJSON, 0, len(policies))
	for _, p := range policies {
		dtos = append(dtos, h.Factory.ToJSON(p))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreatePolicy upserts a policy from its JSON definition. The store is
// hot-reloadable: the new rules take effect on the next validation.
// POST /api/policies
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	var pj factory.PolicyJSON
	if err := json.NewDecoder(r.Body).Decode(&pj); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	pol, err := h.Factory.FromJSON(pj)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid policy definition", err)
		return
	}

	h.Policies.Put(pol)
	h.Log.Info().Str("leave_type", string(pol.LeaveType)).Str("region", pol.Region).
		Msg("policy upserted")
	writeJSON(w, http.StatusCreated, h.Factory.ToJSON(pol))
}

// =============================================================================
// ADMIN HANDLERS - manual batch triggers
// =============================================================================

// RunAccrual triggers the monthly accrual batch.
// POST /api/admin/accrual/run {"year": 2025, "month": 6}
func (h *Handler) RunAccrual(w http.ResponseWriter, r *http.Request) {
	var req BatchRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Month < 1 || req.Month > 12 {
		writeError(w, http.StatusBadRequest, "month must be 1-12", nil)
		return
	}

	result, err := h.Accruals.RunMonthlyAccrual(r.Context(), req.Year, time.Month(req.Month))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(result))
}

// RunAllocation triggers the annual lump allocation batch.
// POST /api/admin/allocation/run {"year": 2025}
func (h *Handler) RunAllocation(w http.ResponseWriter, r *http.Request) {
	var req BatchRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Accruals.RunAnnualAllocation(r.Context(), req.Year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(result))
}

// RunYearEnd triggers the carry-forward/expiry transition out of a year.
// POST /api/admin/year-end/run {"year": 2024}
func (h *Handler) RunYearEnd(w http.ResponseWriter, r *http.Request) {
	var req BatchRunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	result, err := h.Accruals.RunYearEndCarryForward(r.Context(), req.Year)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBatchResultDTO(result))
}

// RunCompOffExpiry triggers the comp-off expiry sweep.
// POST /api/admin/comp-off-expiry/run
func (h *Handler) RunCompOffExpiry(w http.ResponseWriter, r *http.Request) {
	result, err := h.CompOff.RunExpiry(r.Context(), calendar.Today())
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"examined": result.Examined,
		"expired":  result.Expired,
		"failed":   result.Failed,
	})
}

func toBatchResultDTO(b *accrual.BatchResult) BatchResultDTO {
	dto := BatchResultDTO{
		Processed: b.Processed,
		Succeeded: b.Succeeded,
		Failed:    b.Failed,
	}
	for _, res := range b.Results {
		if res.Failed() {
			dto.Failures = append(dto.Failures, BatchFailureDTO{
				EmployeeID: res.EmployeeID,
				Error:      res.Err.Error(),
			})
		}
	}
	return dto
}

// =============================================================================
// HELPERS
// =============================================================================

func yearParam(r *http.Request) int {
	if y, err := strconv.Atoi(r.URL.Query().Get("year")); err == nil && y > 0 {
		return y
	}
	return calendar.Today().Year()
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps domain sentinels to HTTP statuses.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, directory.ErrEmployeeNotFound),
		errors.Is(err, leave.ErrRequestNotFound),
		errors.Is(err, approval.ErrChainNotFound),
		errors.Is(err, policy.ErrPolicyNotFound),
		errors.Is(err, compoff.ErrWorkLogNotFound),
		errors.Is(err, compoff.ErrCompOffRequestNotFound),
		errors.Is(err, ledger.ErrBalanceNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)

	case errors.Is(err, approval.ErrNotAuthorizedApprover),
		errors.Is(err, compoff.ErrSelfVerificationNotAllowed):
		writeError(w, http.StatusForbidden, "Not allowed", err)

	case errors.Is(err, approval.ErrAlreadyProcessed),
		errors.Is(err, leave.ErrVersionConflict),
		errors.Is(err, ledger.ErrVersionConflict):
		writeError(w, http.StatusConflict, "Already processed", err)

	case errors.Is(err, approval.ErrRequestNotPending),
		errors.Is(err, approval.ErrUnknownLeaveType),
		errors.Is(err, approval.ErrIncompleteApprovalChain),
		errors.Is(err, directory.ErrInactiveEmployee),
		errors.Is(err, compoff.ErrInvalidTransition),
		errors.Is(err, compoff.ErrRedemptionBounds),
		errors.Is(err, ledger.ErrInsufficientBalance),
		errors.Is(err, ledger.ErrNegativeBalanceLimitExceeded),
		errors.Is(err, ledger.ErrInvalidAmount):
		writeError(w, http.StatusBadRequest, "Cannot process", err)

	default:
		h.Log.Error().Err(err).Msg("internal error")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}
