package policy

import (
	"context"
	"errors"
	"sync"

	"github.com/warp/leave-engine/leave"
)

// ErrPolicyNotFound is returned when no policy exists for (leaveType, region).
var ErrPolicyNotFound = errors.New("policy not found")

// Store is the read-mostly policy configuration collaborator. Implementations
// are expected to be hot-reloadable; callers fetch per operation and never
// hold policies across operations.
type Store interface {
	// Get returns the policy for (leaveType, region).
	Get(ctx context.Context, leaveType leave.Type, region string) (*LeavePolicy, error)

	// ForRegion returns every policy configured for a region. Used by batch
	// accrual to discover which leave types accrue.
	ForRegion(ctx context.Context, region string) ([]*LeavePolicy, error)
}

// =============================================================================
// MEMORY STORE - In-memory implementation (tests, dev, hot reload target)
// =============================================================================

type MemoryStore struct {
	mu       sync.RWMutex
	policies map[storeKey]*LeavePolicy
}

type storeKey struct {
	LeaveType leave.Type
	Region    string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{policies: make(map[storeKey]*LeavePolicy)}
}

// Put installs or replaces a policy. Safe to call at runtime: this is the
// hot-reload entry point.
func (s *MemoryStore) Put(p *LeavePolicy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policies[storeKey{LeaveType: p.LeaveType, Region: p.Region}] = p
}

func (s *MemoryStore) Get(_ context.Context, leaveType leave.Type, region string) (*LeavePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.policies[storeKey{LeaveType: leaveType, Region: region}]
	if !ok {
		return nil, ErrPolicyNotFound
	}
	return p, nil
}

func (s *MemoryStore) ForRegion(_ context.Context, region string) ([]*LeavePolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*LeavePolicy
	for k, p := range s.policies {
		if k.Region == region {
			out = append(out, p)
		}
	}
	return out, nil
}
