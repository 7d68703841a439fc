package store

import (
	"context"
	"sync"

	"regdesk/internal/account/models"
	id "regdesk/pkg/domain"
	"regdesk/pkg/platform/sentinel"
)

// InMemory keeps accounts in process with a unique username index.
type InMemory struct {
	mu         sync.RWMutex
	accounts   map[id.UserID]*models.Account
	byUsername map[string]id.UserID
}

func NewInMemory() *InMemory {
	return &InMemory{
		accounts:   make(map[id.UserID]*models.Account),
		byUsername: make(map[string]id.UserID),
	}
}

// Create inserts account, failing with sentinel.ErrAlreadyUsed when the id
// or username is taken.
func (s *InMemory) Create(_ context.Context, account *models.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.accounts[account.ID]; exists {
		return sentinel.ErrAlreadyUsed
	}
	if _, taken := s.byUsername[account.Username]; taken {
		return sentinel.ErrAlreadyUsed
	}
	stored := *account
	s.accounts[account.ID] = &stored
	s.byUsername[account.Username] = account.ID
	return nil
}

func (s *InMemory) FindByID(_ context.Context, userID id.UserID) (*models.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	account, ok := s.accounts[userID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	found := *account
	return &found, nil
}

func (s *InMemory) FindByUsername(ctx context.Context, username string) (*models.Account, error) {
	s.mu.RLock()
	userID, ok := s.byUsername[username]
	s.mu.RUnlock()
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.FindByID(ctx, userID)
}

// Count returns the number of accounts.
func (s *InMemory) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.accounts), nil
}

// Snapshot captures the current contents and returns a function that
// restores them.
func (s *InMemory) Snapshot() (restore func()) {
	s.mu.RLock()
	accounts := make(map[id.UserID]*models.Account, len(s.accounts))
	for k, v := range s.accounts {
		accounts[k] = v
	}
	byUsername := make(map[string]id.UserID, len(s.byUsername))
	for k, v := range s.byUsername {
		byUsername[k] = v
	}
	s.mu.RUnlock()

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.accounts = accounts
		s.byUsername = byUsername
	}
}
