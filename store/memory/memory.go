/*
Package memory provides an in-memory implementation of every persistence
interface the engine consumes. Used by tests and local development.

TRANSACTION SEMANTICS:
  WithTx takes the store-wide lock, snapshots the state, and marks the
  context. Calls made with the marked context operate without re-locking;
  when fn fails the snapshot is restored, so the effect is all-or-nothing.
  Nested WithTx calls flatten into the outer transaction.

VERSIONING:
  Update methods are update-if-version-matches. The stored copy's version is
  compared to the passed record's; a mismatch returns the owning package's
  version-conflict sentinel, and a match increments the version on both the
  stored copy and the caller's record.
*/
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-engine/accrual"
	"github.com/warp/leave-engine/approval"
	"github.com/warp/leave-engine/calendar"
	"github.com/warp/leave-engine/compoff"
	"github.com/warp/leave-engine/leave"
	"github.com/warp/leave-engine/ledger"
)

type Store struct {
	mu sync.Mutex
	st state
}

type state struct {
	balances  map[ledger.BalanceKey]*ledger.BalanceRecord
	entries   []ledger.Entry
	entryKeys map[string]bool

	requests map[string]*leave.Request
	chains   map[string]*approval.Chain
	grants   map[accrual.GrantKey]*accrual.Grant
	workLogs map[string]*compoff.WorkLogEntry
	compOffs map[string]*compoff.Request
}

func New() *Store {
	return &Store{st: state{
		balances:  make(map[ledger.BalanceKey]*ledger.BalanceRecord),
		entryKeys: make(map[string]bool),
		requests:  make(map[string]*leave.Request),
		chains:    make(map[string]*approval.Chain),
		grants:    make(map[accrual.GrantKey]*accrual.Grant),
		workLogs:  make(map[string]*compoff.WorkLogEntry),
		compOffs:  make(map[string]*compoff.Request),
	}}
}

// =============================================================================
// TRANSACTOR
// =============================================================================

type txMarker struct{}

func inTx(ctx context.Context) bool { return ctx.Value(txMarker{}) != nil }

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st.clone()
	err := fn(context.WithValue(ctx, txMarker{}, true))
	if err != nil {
		s.st = snapshot
	}
	return err
}

// lock acquires the store lock unless already inside a transaction.
func (s *Store) lock(ctx context.Context) (unlock func()) {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (st state) clone() state {
	out := state{
		balances:  make(map[ledger.BalanceKey]*ledger.BalanceRecord, len(st.balances)),
		entries:   append([]ledger.Entry(nil), st.entries...),
		entryKeys: make(map[string]bool, len(st.entryKeys)),
		requests:  make(map[string]*leave.Request, len(st.requests)),
		chains:    make(map[string]*approval.Chain, len(st.chains)),
		grants:    make(map[accrual.GrantKey]*accrual.Grant, len(st.grants)),
		workLogs:  make(map[string]*compoff.WorkLogEntry, len(st.workLogs)),
		compOffs:  make(map[string]*compoff.Request, len(st.compOffs)),
	}
	for k, v := range st.balances {
		out.balances[k] = copyBalance(v)
	}
	for k := range st.entryKeys {
		out.entryKeys[k] = true
	}
	for k, v := range st.requests {
		out.requests[k] = copyRequest(v)
	}
	for k, v := range st.chains {
		out.chains[k] = copyChain(v)
	}
	for k, v := range st.grants {
		g := *v
		out.grants[k] = &g
	}
	for k, v := range st.workLogs {
		w := *v
		out.workLogs[k] = &w
	}
	for k, v := range st.compOffs {
		r := *v
		out.compOffs[k] = &r
	}
	return out
}

func copyBalance(b *ledger.BalanceRecord) *ledger.BalanceRecord { c := *b; return &c }
func copyRequest(r *leave.Request) *leave.Request               { c := *r; return &c }

func copyChain(c *approval.Chain) *approval.Chain {
	out := *c
	out.Levels = append([]approval.Level(nil), c.Levels...)
	return &out
}

// =============================================================================
// LEDGER STORE
// =============================================================================

func (s *Store) GetBalance(ctx context.Context, key ledger.BalanceKey) (*ledger.BalanceRecord, error) {
	defer s.lock(ctx)()
	rec, ok := s.st.balances[key]
	if !ok {
		return nil, ledger.ErrBalanceNotFound
	}
	return copyBalance(rec), nil
}

func (s *Store) CreateBalance(ctx context.Context, rec *ledger.BalanceRecord) error {
	defer s.lock(ctx)()
	key := rec.Key()
	if _, exists := s.st.balances[key]; exists {
		return ledger.ErrVersionConflict
	}
	rec.Version = 1
	s.st.balances[key] = copyBalance(rec)
	return nil
}

func (s *Store) UpdateBalance(ctx context.Context, rec *ledger.BalanceRecord) error {
	defer s.lock(ctx)()
	stored, ok := s.st.balances[rec.Key()]
	if !ok {
		return ledger.ErrBalanceNotFound
	}
	if stored.Version != rec.Version {
		return ledger.ErrVersionConflict
	}
	rec.Version++
	s.st.balances[rec.Key()] = copyBalance(rec)
	return nil
}

func (s *Store) BalancesForYear(ctx context.Context, employeeID string, year int) ([]*ledger.BalanceRecord, error) {
	defer s.lock(ctx)()
	var out []*ledger.BalanceRecord
	for key, rec := range s.st.balances {
		if key.EmployeeID == employeeID && key.Year == year {
			out = append(out, copyBalance(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LeaveType < out[j].LeaveType })
	return out, nil
}

func (s *Store) AppendEntry(ctx context.Context, e ledger.Entry) error {
	defer s.lock(ctx)()
	if e.IdempotencyKey != "" {
		if s.st.entryKeys[e.IdempotencyKey] {
			return ledger.ErrVersionConflict
		}
		s.st.entryKeys[e.IdempotencyKey] = true
	}
	s.st.entries = append(s.st.entries, e)
	return nil
}

func (s *Store) EntryExists(ctx context.Context, idempotencyKey string) (bool, error) {
	defer s.lock(ctx)()
	return s.st.entryKeys[idempotencyKey], nil
}

func (s *Store) Entries(ctx context.Context, key ledger.BalanceKey) ([]ledger.Entry, error) {
	defer s.lock(ctx)()
	var out []ledger.Entry
	for _, e := range s.st.entries {
		if e.EmployeeID == key.EmployeeID && e.LeaveType == key.LeaveType && e.Year == key.Year {
			out = append(out, e)
		}
	}
	return out, nil
}

// =============================================================================
// LEAVE REQUEST STORE
// =============================================================================

func (s *Store) SaveRequest(ctx context.Context, r *leave.Request) error {
	defer s.lock(ctx)()
	r.Version = 1
	s.st.requests[r.ID] = copyRequest(r)
	return nil
}

func (s *Store) GetRequest(ctx context.Context, id string) (*leave.Request, error) {
	defer s.lock(ctx)()
	r, ok := s.st.requests[id]
	if !ok {
		return nil, leave.ErrRequestNotFound
	}
	return copyRequest(r), nil
}

func (s *Store) UpdateRequest(ctx context.Context, r *leave.Request) error {
	defer s.lock(ctx)()
	stored, ok := s.st.requests[r.ID]
	if !ok {
		return leave.ErrRequestNotFound
	}
	if stored.Version != r.Version {
		return leave.ErrVersionConflict
	}
	r.Version++
	s.st.requests[r.ID] = copyRequest(r)
	return nil
}

func (s *Store) RequestsByEmployee(ctx context.Context, employeeID string) ([]*leave.Request, error) {
	defer s.lock(ctx)()
	var out []*leave.Request
	for _, r := range s.st.requests {
		if r.EmployeeID == employeeID {
			out = append(out, copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (s *Store) RequestsInRange(ctx context.Context, employeeID string, from, to calendar.Date) ([]*leave.Request, error) {
	defer s.lock(ctx)()
	var out []*leave.Request
	for _, r := range s.st.requests {
		if r.EmployeeID == employeeID && r.Overlaps(from, to) {
			out = append(out, copyRequest(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartDate.Before(out[j].StartDate) })
	return out, nil
}

// =============================================================================
// APPROVAL CHAIN STORE
// =============================================================================

func (s *Store) SaveChain(ctx context.Context, c *approval.Chain) error {
	defer s.lock(ctx)()
	c.Version = 1
	s.st.chains[c.LeaveRequestID] = copyChain(c)
	return nil
}

func (s *Store) GetChain(ctx context.Context, leaveRequestID string) (*approval.Chain, error) {
	defer s.lock(ctx)()
	c, ok := s.st.chains[leaveRequestID]
	if !ok {
		return nil, approval.ErrChainNotFound
	}
	return copyChain(c), nil
}

func (s *Store) UpdateChain(ctx context.Context, c *approval.Chain) error {
	defer s.lock(ctx)()
	stored, ok := s.st.chains[c.LeaveRequestID]
	if !ok {
		return approval.ErrChainNotFound
	}
	if stored.Version != c.Version {
		return leave.ErrVersionConflict
	}
	c.Version++
	s.st.chains[c.LeaveRequestID] = copyChain(c)
	return nil
}

func (s *Store) PendingForApprover(ctx context.Context, approverID string) ([]*approval.Chain, error) {
	defer s.lock(ctx)()
	var out []*approval.Chain
	for _, c := range s.st.chains {
		if cur := c.Current(); cur != nil && cur.ApproverID == approverID {
			out = append(out, copyChain(c))
		}
	}
	return out, nil
}

// =============================================================================
// ACCRUAL GRANT STORE
// =============================================================================

func (s *Store) SaveGrant(ctx context.Context, g *accrual.Grant) error {
	defer s.lock(ctx)()
	cp := *g
	s.st.grants[g.Key()] = &cp
	return nil
}

func (s *Store) GetGrant(ctx context.Context, key accrual.GrantKey) (*accrual.Grant, error) {
	defer s.lock(ctx)()
	g, ok := s.st.grants[key]
	if !ok {
		return nil, accrual.ErrGrantNotFound
	}
	cp := *g
	return &cp, nil
}

func (s *Store) GrantsForEmployee(ctx context.Context, employeeID string, year int) ([]*accrual.Grant, error) {
	defer s.lock(ctx)()
	var out []*accrual.Grant
	for key, g := range s.st.grants {
		if key.EmployeeID == employeeID && key.Year == year {
			cp := *g
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// =============================================================================
// COMP-OFF STORES
// =============================================================================

func (s *Store) SaveWorkLog(ctx context.Context, w *compoff.WorkLogEntry) error {
	defer s.lock(ctx)()
	w.Version = 1
	cp := *w
	s.st.workLogs[w.ID] = &cp
	return nil
}

func (s *Store) GetWorkLog(ctx context.Context, id string) (*compoff.WorkLogEntry, error) {
	defer s.lock(ctx)()
	w, ok := s.st.workLogs[id]
	if !ok {
		return nil, compoff.ErrWorkLogNotFound
	}
	cp := *w
	return &cp, nil
}

func (s *Store) UpdateWorkLog(ctx context.Context, w *compoff.WorkLogEntry) error {
	defer s.lock(ctx)()
	stored, ok := s.st.workLogs[w.ID]
	if !ok {
		return compoff.ErrWorkLogNotFound
	}
	if stored.Version != w.Version {
		return leave.ErrVersionConflict
	}
	w.Version++
	cp := *w
	s.st.workLogs[w.ID] = &cp
	return nil
}

func (s *Store) WorkLogsByEmployee(ctx context.Context, employeeID string) ([]*compoff.WorkLogEntry, error) {
	defer s.lock(ctx)()
	var out []*compoff.WorkLogEntry
	for _, w := range s.st.workLogs {
		if w.EmployeeID == employeeID {
			cp := *w
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].WorkDate.Before(out[j].WorkDate) })
	return out, nil
}

func (s *Store) ExpiredVerified(ctx context.Context, asOf calendar.Date) ([]*compoff.WorkLogEntry, error) {
	defer s.lock(ctx)()
	var out []*compoff.WorkLogEntry
	for _, w := range s.st.workLogs {
		if w.Status == compoff.LogVerified && w.Remaining().IsPositive() && w.ExpiresAt.BeforeOrEqual(asOf) {
			cp := *w
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (s *Store) SaveCompOffRequest(ctx context.Context, r *compoff.Request) error {
	defer s.lock(ctx)()
	r.Version = 1
	cp := *r
	s.st.compOffs[r.ID] = &cp
	return nil
}

func (s *Store) UpdateCompOffRequest(ctx context.Context, r *compoff.Request) error {
	defer s.lock(ctx)()
	stored, ok := s.st.compOffs[r.ID]
	if !ok {
		return compoff.ErrCompOffRequestNotFound
	}
	if stored.Version != r.Version {
		return leave.ErrVersionConflict
	}
	r.Version++
	cp := *r
	s.st.compOffs[r.ID] = &cp
	return nil
}

func (s *Store) GetCompOffRequest(ctx context.Context, id string) (*compoff.Request, error) {
	defer s.lock(ctx)()
	r, ok := s.st.compOffs[id]
	if !ok {
		return nil, compoff.ErrCompOffRequestNotFound
	}
	cp := *r
	return &cp, nil
}

func (s *Store) CompOffRequestByLeaveRequest(ctx context.Context, leaveRequestID string) (*compoff.Request, error) {
	defer s.lock(ctx)()
	for _, r := range s.st.compOffs {
		if r.LeaveRequestID == leaveRequestID {
			cp := *r
			return &cp, nil
		}
	}
	return nil, compoff.ErrCompOffRequestNotFound
}

func (s *Store) CompOffRequestsByEmployee(ctx context.Context, employeeID string) ([]*compoff.Request, error) {
	defer s.lock(ctx)()
	var out []*compoff.Request
	for _, r := range s.st.compOffs {
		if r.EmployeeID == employeeID {
			cp := *r
			out = append(out, &cp)
		}
	}
	return out, nil
}
