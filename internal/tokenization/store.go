package tokenization

import (
	"context"
	"sort"
	"sync"

	"github.com/ZanzyTHEbar/research-token/internal/ledger"
	"github.com/ZanzyTHEbar/research-token/internal/types"
)

// FundingStore records which account backs a publication and every funding it
// received.
type FundingStore interface {
	AccountForPublication(ctx context.Context, publicationID string) (string, error)
	LinkPublication(ctx context.Context, publicationID, address string) error
	RecordFunding(ctx context.Context, f types.Funding) error
	HasPaymentRef(ctx context.Context, ref string) (bool, error)
	FundingsForPublication(ctx context.Context, publicationID string, limit int) ([]types.Funding, error)
	FundingTotals(ctx context.Context) ([]types.FundingTotal, error)
}

// MemoryFundingStore is a FundingStore for tests and database-less runs
type MemoryFundingStore struct {
	mu       sync.RWMutex
	links    map[string]string
	fundings []types.Funding
}

// NewMemoryFundingStore creates an empty store
func NewMemoryFundingStore() *MemoryFundingStore {
	return &MemoryFundingStore{links: make(map[string]string)}
}

func (s *MemoryFundingStore) AccountForPublication(ctx context.Context, publicationID string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	address, ok := s.links[publicationID]
	if !ok {
		return "", ledger.ErrAccountNotFound
	}
	return address, nil
}

func (s *MemoryFundingStore) LinkPublication(ctx context.Context, publicationID, address string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.links[publicationID] = address
	return nil
}

func (s *MemoryFundingStore) RecordFunding(ctx context.Context, f types.Funding) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if f.PaymentRef != "" {
		for _, existing := range s.fundings {
			if existing.PaymentRef == f.PaymentRef {
				return types.ErrDuplicatePayment
			}
		}
	}
	s.fundings = append(s.fundings, f)
	return nil
}

func (s *MemoryFundingStore) HasPaymentRef(ctx context.Context, ref string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, f := range s.fundings {
		if f.PaymentRef == ref {
			return true, nil
		}
	}
	return false, nil
}

// FundingsForPublication returns the newest fundings first
func (s *MemoryFundingStore) FundingsForPublication(ctx context.Context, publicationID string, limit int) ([]types.Funding, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []types.Funding{}
	for i := len(s.fundings) - 1; i >= 0; i-- {
		if s.fundings[i].PublicationID == publicationID {
			out = append(out, s.fundings[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// FundingTotals sums fundings per publication, largest total first
func (s *MemoryFundingStore) FundingTotals(ctx context.Context) ([]types.FundingTotal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byID := make(map[string]*types.FundingTotal)
	for _, f := range s.fundings {
		t, ok := byID[f.PublicationID]
		if !ok {
			t = &types.FundingTotal{PublicationID: f.PublicationID}
			byID[f.PublicationID] = t
		}
		t.TotalAmount += f.Amount
		t.TotalTokens += f.TokenAmount
		t.Fundings++
	}

	out := make([]types.FundingTotal, 0, len(byID))
	for _, t := range byID {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].TotalAmount != out[j].TotalAmount {
			return out[i].TotalAmount > out[j].TotalAmount
		}
		return out[i].PublicationID < out[j].PublicationID
	})
	return out, nil
}
