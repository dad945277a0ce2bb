package ledger

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"
)

// InstructionKind names a program instruction
type InstructionKind string

const (
	InstructionInitialize   InstructionKind = "initialize_research"
	InstructionFund         InstructionKind = "fund_research"
	InstructionMint         InstructionKind = "mint_tokens"
	InstructionUpdateStatus InstructionKind = "update_research_status"
)

// Instruction is one call into the program
type Instruction struct {
	Kind      InstructionKind  `json:"kind"`
	Account   string           `json:"account,omitempty"`
	Signer    string           `json:"signer,omitempty"`
	Recipient string           `json:"recipient,omitempty"`
	Amount    uint64           `json:"amount,omitempty"`
	Active    bool             `json:"active,omitempty"`
	Init      InitializeParams `json:"init"`
}

// Receipt is a confirmed instruction
type Receipt struct {
	Signature string          `json:"signature"`
	Slot      uint64          `json:"slot"`
	Account   ResearchAccount `json:"account"`
}

// Cluster is the boundary to the chain. Submit blocks until the instruction
// is confirmed or fails.
type Cluster interface {
	Submit(ctx context.Context, ins Instruction) (Receipt, error)
	Account(ctx context.Context, address string) (ResearchAccount, error)
	Name() string
}

// DefaultConfirmationDelay mimics devnet confirmation latency
const DefaultConfirmationDelay = 2 * time.Second

// SignatureLength is the hex length of a simulated transaction signature
const SignatureLength = 64

// Option configures a Simulator
type Option func(*Simulator)

// WithDelay sets the confirmation delay. Zero confirms immediately.
func WithDelay(d time.Duration) Option {
	return func(s *Simulator) { s.delay = d }
}

// WithRandom sets the source of signature bytes
func WithRandom(r io.Reader) Option {
	return func(s *Simulator) { s.random = r }
}

// WithClusterName sets the cluster reported by Name
func WithClusterName(name string) Option {
	return func(s *Simulator) { s.name = name }
}

// WithFault installs a hook that can fail an instruction before it is
// applied.
func WithFault(fn func(Instruction) error) Option {
	return func(s *Simulator) { s.fault = fn }
}

// Simulator is an in-process Cluster over a Program
type Simulator struct {
	program *Program
	delay   time.Duration
	name    string
	fault   func(Instruction) error

	randMu sync.Mutex
	random io.Reader

	slot atomic.Uint64
}

// NewSimulator creates a simulated cluster
func NewSimulator(program *Program, opts ...Option) *Simulator {
	s := &Simulator{
		program: program,
		delay:   DefaultConfirmationDelay,
		name:    DefaultCluster,
		random:  rand.Reader,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Submit waits for the confirmation delay, applies the instruction and
// returns its signature. Failed instructions leave no state change.
func (s *Simulator) Submit(ctx context.Context, ins Instruction) (Receipt, error) {
	if s.delay > 0 {
		timer := time.NewTimer(s.delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return Receipt{}, ctx.Err()
		case <-timer.C:
		}
	} else if err := ctx.Err(); err != nil {
		return Receipt{}, err
	}

	if s.fault != nil {
		if err := s.fault(ins); err != nil {
			return Receipt{}, err
		}
	}

	acct, err := s.program.Execute(ctx, ins)
	if err != nil {
		return Receipt{}, err
	}

	sig, err := s.signature()
	if err != nil {
		return Receipt{}, err
	}

	return Receipt{
		Signature: sig,
		Slot:      s.slot.Add(1),
		Account:   acct,
	}, nil
}

// Account reads confirmed account state
func (s *Simulator) Account(ctx context.Context, address string) (ResearchAccount, error) {
	return s.program.Account(ctx, address)
}

// Name returns the cluster name used in explorer links
func (s *Simulator) Name() string {
	return s.name
}

func (s *Simulator) signature() (string, error) {
	buf := make([]byte, SignatureLength/2)

	s.randMu.Lock()
	_, err := io.ReadFull(s.random, buf)
	s.randMu.Unlock()

	if err != nil {
		return "", fmt.Errorf("failed to generate signature: %w", err)
	}
	return hex.EncodeToString(buf), nil
}
