// Package memory implements the record store in process. It backs tests and
// the dev mode of cmd/api; production deployments use store/pg.
package memory

import (
	"context"
	"sync"

	"leaveflow.org/internal/leave"
)

// Store is an in-memory record store with in-process concurrency safety.
type Store struct {
	mu       sync.RWMutex
	users    map[string]leave.User
	requests map[string]leave.LeaveRequest
}

var _ leave.Store = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	return &Store{
		users:    make(map[string]leave.User),
		requests: make(map[string]leave.LeaveRequest),
	}
}

// PutUser provisions a user record. Users are created out of band; this
// exists for seeding dev and test fixtures only.
func (s *Store) PutUser(u leave.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.UserID] = u
}

func (s *Store) GetUser(ctx context.Context, userID string) (leave.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	u, ok := s.users[userID]
	if !ok {
		return leave.User{}, leave.ErrNotFound
	}
	return u, nil
}

func (s *Store) GetRequest(ctx context.Context, leaveRequestID string) (leave.LeaveRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.requests[leaveRequestID]
	if !ok {
		return leave.LeaveRequest{}, leave.ErrNotFound
	}
	return r, nil
}

func (s *Store) CreateRequest(ctx context.Context, request leave.LeaveRequest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests[request.LeaveRequestID] = request
	return nil
}

// UpdateStatus performs the conditional terminal transition. Only a Pending
// request may move; a second terminal write fails ErrAlreadyResolved.
func (s *Store) UpdateStatus(ctx context.Context, leaveRequestID string, status leave.Status) error {
	if !status.Terminal() {
		return leave.ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[leaveRequestID]
	if !ok {
		return leave.ErrNotFound
	}
	if r.Status != leave.StatusPending {
		return leave.ErrAlreadyResolved
	}
	r.Status = status
	s.requests[leaveRequestID] = r
	return nil
}
