package ledger

import (
	"context"
	"fmt"
	"io"
	"math/bits"
	"sync"
	"time"
)

// Program applies research-token instructions to an AccountStore. Each
// read-modify-write runs under the program lock.
type Program struct {
	mu    sync.Mutex
	store AccountStore
	keys  io.Reader
	now   func() time.Time
}

// NewProgram creates a program over store. keys seeds new account addresses;
// nil uses crypto/rand.
func NewProgram(store AccountStore, keys io.Reader) *Program {
	return &Program{
		store: store,
		keys:  keys,
		now:   time.Now,
	}
}

// InitializeResearch creates an active account with zero supply and funding
func (p *Program) InitializeResearch(ctx context.Context, params InitializeParams) (ResearchAccount, error) {
	if err := params.Validate(); err != nil {
		return ResearchAccount{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	address, err := NewAddress(p.keys)
	if err != nil {
		return ResearchAccount{}, err
	}

	now := p.now().UTC()
	acct := ResearchAccount{
		Address:     address,
		Authority:   params.Authority,
		Title:       params.Title,
		Authors:     append([]string(nil), params.Authors...),
		DOI:         params.DOI,
		ImpactScore: params.ImpactScore,
		FundingGoal: params.FundingGoal,
		IsActive:    true,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := p.store.SaveAccount(ctx, acct); err != nil {
		return ResearchAccount{}, fmt.Errorf("failed to save account: %w", err)
	}
	return acct, nil
}

// FundResearch adds lamports to the account's current funding
func (p *Program) FundResearch(ctx context.Context, address string, lamports uint64) (ResearchAccount, error) {
	return p.mutate(ctx, address, func(acct *ResearchAccount) error {
		if !acct.IsActive {
			return ErrNotActive
		}
		sum, err := checkedAdd(acct.CurrentFunding, lamports)
		if err != nil {
			return err
		}
		acct.CurrentFunding = sum
		return nil
	})
}

// MintTokens adds base units to the account's token supply
func (p *Program) MintTokens(ctx context.Context, address string, units uint64) (ResearchAccount, error) {
	return p.mutate(ctx, address, func(acct *ResearchAccount) error {
		if !acct.IsActive {
			return ErrNotActive
		}
		sum, err := checkedAdd(acct.TokenSupply, units)
		if err != nil {
			return err
		}
		acct.TokenSupply = sum
		return nil
	})
}

// UpdateResearchStatus toggles the active flag. Only the account authority
// may sign it.
func (p *Program) UpdateResearchStatus(ctx context.Context, address, signer string, active bool) (ResearchAccount, error) {
	return p.mutate(ctx, address, func(acct *ResearchAccount) error {
		if signer == "" || acct.Authority != signer {
			return ErrInvalidAuthority
		}
		acct.IsActive = active
		return nil
	})
}

// Account reads an account without locking the program
func (p *Program) Account(ctx context.Context, address string) (ResearchAccount, error) {
	return p.store.GetAccount(ctx, address)
}

// Execute dispatches an instruction to the matching operation
func (p *Program) Execute(ctx context.Context, ins Instruction) (ResearchAccount, error) {
	switch ins.Kind {
	case InstructionInitialize:
		return p.InitializeResearch(ctx, ins.Init)
	case InstructionFund:
		return p.FundResearch(ctx, ins.Account, ins.Amount)
	case InstructionMint:
		return p.MintTokens(ctx, ins.Account, ins.Amount)
	case InstructionUpdateStatus:
		return p.UpdateResearchStatus(ctx, ins.Account, ins.Signer, ins.Active)
	default:
		return ResearchAccount{}, fmt.Errorf("unknown instruction %q", ins.Kind)
	}
}

func (p *Program) mutate(ctx context.Context, address string, fn func(*ResearchAccount) error) (ResearchAccount, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	acct, err := p.store.GetAccount(ctx, address)
	if err != nil {
		return ResearchAccount{}, err
	}
	if err := fn(&acct); err != nil {
		return ResearchAccount{}, err
	}
	acct.UpdatedAt = p.now().UTC()

	if err := p.store.SaveAccount(ctx, acct); err != nil {
		return ResearchAccount{}, fmt.Errorf("failed to save account: %w", err)
	}
	return acct, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, ErrOverflow
	}
	return sum, nil
}
