package service

import (
	"context"
	"errors"
	"sync"

	"billing/internal/reconcile"
)

// ErrStaleSelection is returned when a prefill fetch resolves after the
// session has already moved on to a different customer. The stale result is
// discarded; the caller simply drops it.
var ErrStaleSelection = errors.New("customer selection changed while loading previous entries")

// AllocationSession owns the state of one editing session: the current
// customer selection and its reconciliation prefill. A generation counter is
// bumped on every selection and re-checked when fetch results are applied, so
// a slow fetch for a previously selected customer can never overwrite state
// belonging to the current one.
type AllocationSession struct {
	reconciler *reconcile.Reconciler

	mu         sync.Mutex
	generation uint64
	branch     string
	customer   string
	prefill    *reconcile.Prefill
}

func NewAllocationSession(reconciler *reconcile.Reconciler) *AllocationSession {
	return &AllocationSession{reconciler: reconciler}
}

// SelectCustomer replaces the session's selection and fetches that customer's
// history. The previous prefill is invalidated immediately, before the fetch,
// so a failed or superseded fetch leaves the session unassisted rather than
// showing another customer's data.
func (s *AllocationSession) SelectCustomer(ctx context.Context, branch, customer string) (*reconcile.Prefill, error) {
	s.mu.Lock()
	s.generation++
	gen := s.generation
	s.branch = branch
	s.customer = customer
	s.prefill = nil
	s.mu.Unlock()

	prefill, err := s.reconciler.Prefill(ctx, branch, customer)

	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.generation {
		return nil, ErrStaleSelection
	}
	if err != nil {
		return nil, err
	}
	s.prefill = prefill
	return prefill, nil
}

// Current returns the session's selection and its applied prefill, which is
// nil while a fetch is outstanding or after one failed.
func (s *AllocationSession) Current() (branch, customer string, prefill *reconcile.Prefill) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.branch, s.customer, s.prefill
}

// sessionRegistry hands out one AllocationSession per caller-supplied session
// id so concurrent editing sessions stay isolated.
type sessionRegistry struct {
	reconciler *reconcile.Reconciler
	mu         sync.Mutex
	sessions   map[string]*AllocationSession
}

func newSessionRegistry(reconciler *reconcile.Reconciler) *sessionRegistry {
	return &sessionRegistry{
		reconciler: reconciler,
		sessions:   make(map[string]*AllocationSession),
	}
}

func (r *sessionRegistry) get(id string) *AllocationSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session, ok := r.sessions[id]; ok {
		return session
	}
	session := NewAllocationSession(r.reconciler)
	r.sessions[id] = session
	return session
}
