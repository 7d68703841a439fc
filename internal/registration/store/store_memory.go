package store

import (
	"context"
	"sort"
	"sync"

	"regdesk/internal/registration/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
)

// InMemory keeps registration requests in process. Records are cloned on the
// way in and out.
type InMemory struct {
	mu       sync.RWMutex
	requests map[id.RequestID]*models.Request
	order    []id.RequestID
}

func NewInMemory() *InMemory {
	return &InMemory{requests: make(map[id.RequestID]*models.Request)}
}

func (s *InMemory) Create(_ context.Context, req *models.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.requests[req.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	s.requests[req.ID] = req.Clone()
	s.order = append(s.order, req.ID)
	return nil
}

// FindByID returns the request whatever its status.
func (s *InMemory) FindByID(_ context.Context, requestID id.RequestID) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	req, ok := s.requests[requestID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return req.Clone(), nil
}

// FindByIDForUpdate is FindByID; the in-memory unit of work already holds
// the write lock for the whole transaction.
func (s *InMemory) FindByIDForUpdate(ctx context.Context, requestID id.RequestID) (*models.Request, error) {
	return s.FindByID(ctx, requestID)
}

// FindByUsername returns the oldest pending request for username.
func (s *InMemory) FindByUsername(_ context.Context, username string) (*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var found *models.Request
	for _, reqID := range s.order {
		req := s.requests[reqID]
		if req.Username != username || !req.IsPending() {
			continue
		}
		if found == nil || req.CreatedAt.Before(found.CreatedAt) {
			found = req
		}
	}
	if found == nil {
		return nil, sentinel.ErrNotFound
	}
	return found.Clone(), nil
}

// ListPending returns pending requests, oldest first.
func (s *InMemory) ListPending(_ context.Context) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var pending []*models.Request
	for _, reqID := range s.order {
		if req := s.requests[reqID]; req.IsPending() {
			pending = append(pending, req.Clone())
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})
	return pending, nil
}

// ListAll returns one page of every request, newest first.
func (s *InMemory) ListAll(_ context.Context, offset, limit int) ([]*models.Request, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*models.Request, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		all = append(all, s.requests[s.order[i]])
	}
	sort.SliceStable(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})

	if offset >= len(all) {
		return []*models.Request{}, nil
	}
	end := min(offset+limit, len(all))
	page := make([]*models.Request, 0, end-offset)
	for _, req := range all[offset:end] {
		page = append(page, req.Clone())
	}
	return page, nil
}

// Resolve persists the decision on req only if the stored record is still
// pending.
func (s *InMemory) Resolve(_ context.Context, req *models.Request) error {
	if req.Decision == nil || !req.Status.IsTerminal() {
		return sentinel.ErrInvalidState
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	stored, ok := s.requests[req.ID]
	if !ok {
		return sentinel.ErrNotFound
	}
	if !stored.IsPending() {
		return sentinel.ErrInvalidState
	}
	resolved := stored.Clone()
	resolved.Status = req.Status
	resolved.Decision = req.Clone().Decision
	s.requests[req.ID] = resolved
	return nil
}

// Snapshot captures the current contents and returns a function that
// restores them.
func (s *InMemory) Snapshot() (restore func()) {
	s.mu.RLock()
	requests := make(map[id.RequestID]*models.Request, len(s.requests))
	for k, v := range s.requests {
		requests[k] = v
	}
	order := append([]id.RequestID(nil), s.order...)
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.requests = requests
		s.order = order
	}
}
