package identity

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for development and tests.
type MemoryStore struct {
	mu         sync.Mutex
	users      map[string]*LocalUser
	byExternal map[string]*ExternalAccount
	byUser     map[string]*ExternalAccount
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:      make(map[string]*LocalUser),
		byExternal: make(map[string]*ExternalAccount),
		byUser:     make(map[string]*ExternalAccount),
	}
}

func (s *MemoryStore) GetUser(_ context.Context, userID string) (*LocalUser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *u
	return &cp, nil
}

// PutUser seeds a user. Used by tests and by the dev bootstrap.
func (s *MemoryStore) PutUser(_ context.Context, u *LocalUser) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *u
	s.users[u.ID] = &cp
	return nil
}

func (s *MemoryStore) FindByExternalID(_ context.Context, externalID string) (*ExternalAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byExternal[externalID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) FindByUserID(_ context.Context, userID string) (*ExternalAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.byUser[userID]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *MemoryStore) LinkAccount(_ context.Context, acct *ExternalAccount) (*ExternalAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.link(acct)
}

func (s *MemoryStore) CreateUserWithAccount(_ context.Context, user *LocalUser, acct *ExternalAccount) (*ExternalAccount, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// When the identity is already claimed the provisional user is
	// discarded, mirroring the transactional rollback in the pg store.
	if winner, ok := s.byExternal[acct.ExternalID]; ok {
		cp := *winner
		return &cp, nil
	}

	ucp := *user
	s.users[user.ID] = &ucp
	return s.link(acct)
}

func (s *MemoryStore) link(acct *ExternalAccount) (*ExternalAccount, error) {
	if winner, ok := s.byExternal[acct.ExternalID]; ok {
		cp := *winner
		return &cp, nil
	}
	if _, taken := s.byUser[acct.UserID]; taken {
		return nil, ErrAlreadyLinked
	}

	now := time.Now()
	cp := *acct
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.byExternal[cp.ExternalID] = &cp
	s.byUser[cp.UserID] = &cp

	out := cp
	return &out, nil
}
