package ledger

import (
	"context"
	"sort"
	"sync"
)

// AccountStore persists research accounts
type AccountStore interface {
	GetAccount(ctx context.Context, address string) (ResearchAccount, error)
	SaveAccount(ctx context.Context, account ResearchAccount) error
	ListAccounts(ctx context.Context) ([]ResearchAccount, error)
}

// MemoryStore is an AccountStore backed by a map
type MemoryStore struct {
	mu       sync.RWMutex
	accounts map[string]ResearchAccount
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{accounts: make(map[string]ResearchAccount)}
}

func (s *MemoryStore) GetAccount(ctx context.Context, address string) (ResearchAccount, error) {
	if err := ctx.Err(); err != nil {
		return ResearchAccount{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	acct, ok := s.accounts[address]
	if !ok {
		return ResearchAccount{}, ErrAccountNotFound
	}
	return cloneAccount(acct), nil
}

func (s *MemoryStore) SaveAccount(ctx context.Context, account ResearchAccount) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.accounts[account.Address] = cloneAccount(account)
	return nil
}

// ListAccounts returns all accounts ordered by creation time
func (s *MemoryStore) ListAccounts(ctx context.Context) ([]ResearchAccount, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]ResearchAccount, 0, len(s.accounts))
	for _, a := range s.accounts {
		out = append(out, cloneAccount(a))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Address < out[j].Address
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func cloneAccount(a ResearchAccount) ResearchAccount {
	if a.Authors != nil {
		a.Authors = append([]string(nil), a.Authors...)
	}
	return a
}
