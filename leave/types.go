// Package leave defines the core leave-request entities shared by the
// accounting and approval engines: leave types, request records, and the
// duration calculation that sizes a request in business days.
package leave

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/leave-engine/calendar"
)

// =============================================================================
// LEAVE TYPE
// =============================================================================

// Type identifies a category of leave. Balances, policies, and approval
// chains are all keyed by Type.
type Type string

const (
	TypeEarned    Type = "earned"
	TypeSick      Type = "sick"
	TypeCasual    Type = "casual"
	TypeMaternity Type = "maternity"
	TypePaternity Type = "paternity"
	TypeCompOff   Type = "comp_off"
	TypeLWP       Type = "lwp" // leave without pay
)

var registered = map[Type]bool{}

// Register records a leave type as known to the engine. Unknown types are
// rejected at request submission.
func Register(t Type) { registered[t] = true }

// IsRegistered reports whether the type has been registered.
func IsRegistered(t Type) bool { return registered[t] }

func init() {
	for _, t := range []Type{
		TypeEarned, TypeSick, TypeCasual, TypeMaternity,
		TypePaternity, TypeCompOff, TypeLWP,
	} {
		Register(t)
	}
}

// =============================================================================
// LEAVE REQUEST
// =============================================================================

type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusApproved  RequestStatus = "approved"
	StatusRejected  RequestStatus = "rejected"
	StatusCancelled RequestStatus = "cancelled"
)

// Active reports whether the request still occupies its dates. Cancelled and
// rejected requests release their dates for new bookings.
func (s RequestStatus) Active() bool {
	return s == StatusPending || s == StatusApproved
}

// Request is a leave request. TotalDays is computed once at creation and is
// immutable afterwards except through the explicit modification flow, which
// also adjusts the balance ledger by the delta.
type Request struct {
	ID         string
	EmployeeID string
	LeaveType  Type

	StartDate calendar.Date
	EndDate   calendar.Date
	TotalDays decimal.Decimal
	IsHalfDay bool

	Reason string
	Status RequestStatus

	// RequiredDocumentation is set by validation when the duration crosses
	// the policy's documentation threshold. Annotation only, never blocking.
	RequiredDocumentation bool

	CreatedAt time.Time
	UpdatedAt time.Time

	// Version drives update-if-version-matches in the persistence layer.
	Version int
}

// Overlaps reports whether this request shares any date with [start, end].
// Boundaries are inclusive on both sides.
func (r *Request) Overlaps(start, end calendar.Date) bool {
	return calendar.Overlaps(r.StartDate, r.EndDate, start, end)
}
