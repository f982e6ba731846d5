/*
chain.go - Approval chain construction

Resolves the policy's ordered role list against the employee directory:
  manager         -> the requester's reporting manager
  senior_manager  -> that manager's manager
  hr              -> the region's HR approver

A role that cannot be resolved (no manager configured, no HR for the region)
is a construction-time IncompleteChainError, never silently skipped.
*/
package approval

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/warp/leave-engine/directory"
	"github.com/warp/leave-engine/policy"
)

// Builder constructs approval chains from role specs.
type Builder struct {
	Dir directory.Directory
}

// Build resolves each role for the requesting employee and returns the
// ordered chain. Duplicate approvers are kept: the same person approving at
// two levels still decides twice.
func (b *Builder) Build(ctx context.Context, requestID string, emp *directory.Employee, roles []policy.Role) (*Chain, error) {
	if len(roles) == 0 {
		return nil, fmt.Errorf("no approval roles configured: %w", ErrIncompleteApprovalChain)
	}

	now := time.Now()
	chain := &Chain{
		LeaveRequestID: requestID,
		CurrentLevel:   1,
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for i, role := range roles {
		approver, err := b.resolve(ctx, emp, role)
		if err != nil {
			return nil, err
		}
		chain.Levels = append(chain.Levels, Level{
			Level:        i + 1,
			ApproverID:   approver.ID,
			ApproverRole: role,
			Status:       LevelPending,
		})
	}
	return chain, nil
}

func (b *Builder) resolve(ctx context.Context, emp *directory.Employee, role policy.Role) (*directory.Employee, error) {
	switch role {
	case policy.RoleManager:
		return b.manager(ctx, emp, role)

	case policy.RoleSeniorManager:
		mgr, err := b.manager(ctx, emp, role)
		if err != nil {
			return nil, err
		}
		return b.manager(ctx, mgr, role)

	case policy.RoleHR:
		hr, err := b.Dir.HRApprover(ctx, emp.Region)
		if err != nil {
			if errors.Is(err, directory.ErrEmployeeNotFound) {
				return nil, &IncompleteChainError{EmployeeID: emp.ID, Role: role}
			}
			return nil, err
		}
		return hr, nil

	default:
		return nil, fmt.Errorf("unknown approver role %q: %w", role, ErrIncompleteApprovalChain)
	}
}

func (b *Builder) manager(ctx context.Context, of *directory.Employee, role policy.Role) (*directory.Employee, error) {
	if of.ReportingManagerID == "" {
		return nil, &IncompleteChainError{EmployeeID: of.ID, Role: role}
	}
	mgr, err := b.Dir.Get(ctx, of.ReportingManagerID)
	if err != nil {
		if errors.Is(err, directory.ErrEmployeeNotFound) {
			return nil, &IncompleteChainError{EmployeeID: of.ID, Role: role}
		}
		return nil, err
	}
	return mgr, nil
}
