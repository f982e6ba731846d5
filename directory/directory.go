// Package directory defines the employee-directory collaborator consumed by
// the engine. Identity data is owned elsewhere; the engine only reads it.
package directory

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/warp/leave-engine/calendar"
)

// =============================================================================
// EMPLOYEE
// =============================================================================

type EmployeeStatus string

const (
	StatusActive     EmployeeStatus = "active"
	StatusInactive   EmployeeStatus = "inactive"
	StatusTerminated EmployeeStatus = "terminated"
)

type Employee struct {
	ID            string
	Name          string
	JoiningDate   calendar.Date
	Department    string
	Designation   string
	Gender        string
	MaritalStatus string
	Region        string
	Status        EmployeeStatus

	// ReportingManagerID is empty for employees with no configured manager
	// (e.g. the CEO). Approval-chain construction treats that as a
	// configuration error for chains that require a manager.
	ReportingManagerID string
}

func (e *Employee) IsActive() bool { return e.Status == StatusActive }

// TenureMonths returns whole months of service as of a date.
func (e *Employee) TenureMonths(asOf calendar.Date) int {
	return calendar.WholeMonthsBetween(e.JoiningDate, asOf)
}

// =============================================================================
// DIRECTORY - Read-only identity collaborator
// =============================================================================

var ErrEmployeeNotFound = errors.New("employee not found")

// ErrInactiveEmployee wraps a lookup that found the employee but in a
// non-active status.
var ErrInactiveEmployee = errors.New("employee not active")

// Directory is the identity collaborator. Lookups never fall back to
// defaults: a missing record is an explicit EmployeeNotFound error.
type Directory interface {
	Get(ctx context.Context, id string) (*Employee, error)

	// ListActive returns every active employee. Batch accrual iterates this;
	// inactive employees are excluded at the source.
	ListActive(ctx context.Context) ([]*Employee, error)

	// HRApprover returns the employee acting as HR approver for a region.
	HRApprover(ctx context.Context, region string) (*Employee, error)
}

// GetActive fetches an employee and enforces active status.
func GetActive(ctx context.Context, dir Directory, id string) (*Employee, error) {
	emp, err := dir.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !emp.IsActive() {
		return nil, fmt.Errorf("employee %s: %w", id, ErrInactiveEmployee)
	}
	return emp, nil
}

// =============================================================================
// MEMORY DIRECTORY - In-memory implementation (tests, dev)
// =============================================================================

type MemoryDirectory struct {
	mu         sync.RWMutex
	employees  map[string]*Employee
	hrByRegion map[string]string
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{
		employees:  make(map[string]*Employee),
		hrByRegion: make(map[string]string),
	}
}

func (d *MemoryDirectory) Put(e *Employee) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.employees[e.ID] = e
}

// SetHR designates an employee as the HR approver for a region.
func (d *MemoryDirectory) SetHR(region, employeeID string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hrByRegion[region] = employeeID
}

func (d *MemoryDirectory) Get(_ context.Context, id string) (*Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.employees[id]
	if !ok {
		return nil, fmt.Errorf("employee %s: %w", id, ErrEmployeeNotFound)
	}
	return e, nil
}

func (d *MemoryDirectory) ListActive(_ context.Context) ([]*Employee, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []*Employee
	for _, e := range d.employees {
		if e.IsActive() {
			out = append(out, e)
		}
	}
	return out, nil
}

func (d *MemoryDirectory) HRApprover(ctx context.Context, region string) (*Employee, error) {
	d.mu.RLock()
	id, ok := d.hrByRegion[region]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no HR approver for region %s: %w", region, ErrEmployeeNotFound)
	}
	return d.Get(ctx, id)
}
