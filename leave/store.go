package leave

import (
	"context"
	"errors"

	"github.com/warp/leave-engine/calendar"
)

// =============================================================================
// REQUEST STORE - Persistence collaborator for leave requests
// =============================================================================

var (
	// ErrRequestNotFound is returned when a request id does not exist.
	ErrRequestNotFound = errors.New("leave request not found")

	// ErrVersionConflict is returned when an update-if-version-matches write
	// loses to a concurrent writer. Callers should re-fetch and retry.
	ErrVersionConflict = errors.New("leave request version conflict")
)

// RequestStore persists leave requests. Updates are optimistic: the write
// succeeds only if the stored Version matches the Version on the passed
// record, and the store increments Version on success.
type RequestStore interface {
	SaveRequest(ctx context.Context, r *Request) error
	GetRequest(ctx context.Context, id string) (*Request, error)
	UpdateRequest(ctx context.Context, r *Request) error

	// RequestsByEmployee returns all requests for an employee, newest first.
	RequestsByEmployee(ctx context.Context, employeeID string) ([]*Request, error)

	// RequestsInRange returns the employee's requests that share at least one
	// date with [from, to]. Used by overlap validation.
	RequestsInRange(ctx context.Context, employeeID string, from, to calendar.Date) ([]*Request, error)
}
