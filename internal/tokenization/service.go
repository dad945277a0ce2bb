// Package tokenization turns a funding into reward tokens: it scores the
// publication, funds its research account on the cluster and mints tokens
// proportional to the impact score.
package tokenization

import (
	"context"
	stderrors "errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/ZanzyTHEbar/research-token/internal/catalog"
	"github.com/ZanzyTHEbar/research-token/internal/errors"
	"github.com/ZanzyTHEbar/research-token/internal/ledger"
	"github.com/ZanzyTHEbar/research-token/internal/monitoring"
	"github.com/ZanzyTHEbar/research-token/internal/resilience"
	"github.com/ZanzyTHEbar/research-token/internal/scoring"
	"github.com/ZanzyTHEbar/research-token/internal/types"
)

// DefaultFundingGoalSOL is the goal written to new research accounts
const DefaultFundingGoalSOL = 100

// Options configures a Service. Zero values pick defaults.
type Options struct {
	// Authority signs initialize and status instructions. A fresh address is
	// generated when empty.
	Authority      string
	FundingGoalSOL float64
	Guard          *resilience.Guard
	Metrics        *monitoring.Metrics
	Logger         *monitoring.Logger
}

// Estimate is the token amount a funding would earn
type Estimate struct {
	PublicationID string              `json:"publication_id"`
	FundingAmount float64             `json:"funding_amount"`
	Impact        scoring.ImpactScore `json:"impact"`
	TokenAmount   float64             `json:"token_amount"`
}

// Service processes fundings
type Service struct {
	catalog   catalog.Index
	cluster   ledger.Cluster
	fundings  FundingStore
	guard     *resilience.Guard
	metrics   *monitoring.Metrics
	logger    *monitoring.Logger
	authority string
	goal      uint64

	// serializes account creation so a publication gets one account
	initMu sync.Mutex
}

// NewService creates a tokenization service
func NewService(idx catalog.Index, cluster ledger.Cluster, fundings FundingStore, opts Options) (*Service, error) {
	if opts.Metrics == nil {
		opts.Metrics = monitoring.NewMetrics()
	}
	if opts.Logger == nil {
		opts.Logger = monitoring.NewNopLogger()
	}
	if opts.Authority == "" {
		authority, err := ledger.NewAddress(nil)
		if err != nil {
			return nil, err
		}
		opts.Authority = authority
	}
	if opts.FundingGoalSOL <= 0 {
		opts.FundingGoalSOL = DefaultFundingGoalSOL
	}
	goal, err := ledger.SOLToLamports(opts.FundingGoalSOL)
	if err != nil {
		return nil, fmt.Errorf("invalid funding goal: %w", err)
	}

	metrics := opts.Metrics
	if opts.Guard == nil {
		opts.Guard = resilience.NewGuard("cluster", resilience.LedgerRetryPolicy, resilience.CircuitBreakerConfig{
			FailureThreshold: 5,
			RecoveryTimeout:  30 * time.Second,
			SuccessThreshold: 1,
			OnStateChange: func(from, to resilience.CircuitBreakerState) {
				if to == resilience.StateOpen {
					metrics.IncrementCircuitBreakerOpen()
				}
			},
		})
	}

	return &Service{
		catalog:   idx,
		cluster:   cluster,
		fundings:  fundings,
		guard:     opts.Guard,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		authority: opts.Authority,
		goal:      goal,
	}, nil
}

// Authority returns the address that signs program instructions
func (s *Service) Authority() string {
	return s.authority
}

// Breaker exposes the cluster circuit breaker
func (s *Service) Breaker() *resilience.CircuitBreaker {
	return s.guard.Breaker
}

// Tokenize funds a publication and mints reward tokens. An ineligible
// publication yields an unsuccessful result and no error.
func (s *Service) Tokenize(ctx context.Context, req types.FundRequest) (types.TokenizationResult, error) {
	start := time.Now()
	if req.PaymentMethod == "" {
		req.PaymentMethod = types.PaymentCrypto
	}

	result, err := s.tokenize(ctx, req)

	outcome := monitoring.FundingSuccess
	switch {
	case err != nil:
		outcome = monitoring.FundingFailed
	case !result.Success:
		outcome = monitoring.FundingRejected
	}
	s.metrics.RecordFunding(string(req.PaymentMethod), outcome, req.FundingAmount)
	s.logger.FundingLogger(req.PublicationID, string(req.PaymentMethod), req.FundingAmount, result.TokenAmount, err == nil && result.Success, time.Since(start))

	return result, err
}

func (s *Service) tokenize(ctx context.Context, req types.FundRequest) (types.TokenizationResult, error) {
	if err := validate(req); err != nil {
		return types.TokenizationResult{}, err
	}

	pub, err := s.catalog.Get(ctx, req.PublicationID)
	if err != nil {
		return types.TokenizationResult{}, err
	}

	impact := s.score(pub)
	if !impact.Eligible {
		return types.TokenizationResult{
			Success: false,
			Message: fmt.Sprintf("Research impact score %.2f is below the tokenization threshold of %.1f",
				impact.Score, scoring.TokenizationThreshold),
		}, nil
	}

	tokens := scoring.ComputeTokenAmount(impact.Score, req.FundingAmount)

	if req.PaymentMethod == types.PaymentFiat {
		return s.recordFiat(ctx, pub, req, impact.Score, tokens)
	}
	return s.fundOnChain(ctx, pub, req, impact.Score, tokens)
}

func validate(req types.FundRequest) error {
	if req.PublicationID == "" {
		return errors.NewValidationError("publication_id is required")
	}
	if math.IsNaN(req.FundingAmount) || math.IsInf(req.FundingAmount, 0) {
		return errors.NewValidationError("Please enter a valid funding amount")
	}
	if req.FundingAmount <= 0 {
		return errors.NewValidationError("Please enter a valid funding amount", "funding_amount must be greater than 0")
	}

	switch req.PaymentMethod {
	case types.PaymentCrypto:
		if req.WalletPublicKey == "" {
			return errors.NewValidationError("Please connect your wallet first")
		}
		if !ledger.ValidAddress(req.WalletPublicKey) {
			return errors.NewValidationError("Invalid wallet public key")
		}
	case types.PaymentFiat:
	default:
		return errors.NewValidationError("Unsupported payment method", string(req.PaymentMethod))
	}
	return nil
}

func (s *Service) score(pub catalog.Publication) scoring.ImpactScore {
	start := time.Now()
	impact := pub.Score()
	s.metrics.RecordScore(impact.Score, impact.Eligible)
	s.logger.ScoreLogger(pub.ID, impact.Score, impact.Eligible, time.Since(start))
	return impact
}

func (s *Service) fundOnChain(ctx context.Context, pub catalog.Publication, req types.FundRequest, score, tokens float64) (types.TokenizationResult, error) {
	lamports, err := ledger.SOLToLamports(req.FundingAmount)
	if err != nil {
		return types.TokenizationResult{}, errors.NewValidationError("Please enter a valid funding amount", err.Error())
	}
	units, err := ledger.TokensToBaseUnits(tokens)
	if err != nil {
		return types.TokenizationResult{}, errors.NewOverflowError(err)
	}

	address, err := s.ensureAccount(ctx, pub, score)
	if err != nil {
		return types.TokenizationResult{}, err
	}

	fund, err := s.submit(ctx, ledger.Instruction{
		Kind:    ledger.InstructionFund,
		Account: address,
		Signer:  req.WalletPublicKey,
		Amount:  lamports,
	})
	if err != nil {
		return types.TokenizationResult{}, err
	}

	funding := types.Funding{
		PublicationID:  pub.ID,
		AccountAddress: address,
		Funder:         req.WalletPublicKey,
		PaymentMethod:  types.PaymentCrypto,
		Amount:         req.FundingAmount,
		TokenAmount:    tokens,
		ImpactScore:    score,
		TxSignature:    fund.Signature,
	}

	_, mintErr := s.submit(ctx, ledger.Instruction{
		Kind:      ledger.InstructionMint,
		Account:   address,
		Signer:    s.authority,
		Recipient: req.WalletPublicKey,
		Amount:    units,
	})
	if mintErr != nil {
		// the funding landed on chain; keep it on record without tokens
		funding.TokenAmount = 0
	}

	if err := s.record(ctx, funding); err != nil {
		return types.TokenizationResult{}, err
	}
	if mintErr != nil {
		return types.TokenizationResult{}, mintErr
	}

	return types.TokenizationResult{
		Success: true,
		Message: fmt.Sprintf("Successfully funded research with %s SOL and received %s RES tokens",
			formatAmount(req.FundingAmount), formatAmount(tokens)),
		TxSignature: fund.Signature,
		ExplorerURL: ledger.ExplorerURL(fund.Signature, s.cluster.Name()),
		TokenAmount: tokens,
		Account:     address,
	}, nil
}

func (s *Service) recordFiat(ctx context.Context, pub catalog.Publication, req types.FundRequest, score, tokens float64) (types.TokenizationResult, error) {
	err := s.record(ctx, types.Funding{
		PublicationID: pub.ID,
		Funder:        req.WalletPublicKey,
		PaymentMethod: types.PaymentFiat,
		Amount:        req.FundingAmount,
		TokenAmount:   tokens,
		ImpactScore:   score,
		PaymentRef:    req.PaymentRef,
	})
	if err != nil {
		return types.TokenizationResult{}, err
	}

	return types.TokenizationResult{
		Success: true,
		Message: fmt.Sprintf("Successfully funded research with %s USD and received %s RES tokens",
			formatAmount(req.FundingAmount), formatAmount(tokens)),
		TokenAmount: tokens,
	}, nil
}

// ensureAccount returns the publication's research account, initializing it
// on first funding.
func (s *Service) ensureAccount(ctx context.Context, pub catalog.Publication, score float64) (string, error) {
	s.initMu.Lock()
	defer s.initMu.Unlock()

	address, err := s.fundings.AccountForPublication(ctx, pub.ID)
	if err == nil {
		return address, nil
	}
	if !stderrors.Is(err, ledger.ErrAccountNotFound) {
		return "", err
	}

	params := ledger.TruncateParams(ledger.InitializeParams{
		Authority:   s.authority,
		Title:       pub.Title,
		Authors:     pub.Authors,
		DOI:         pub.DOI,
		ImpactScore: score,
		FundingGoal: s.goal,
	})

	rcpt, err := s.submit(ctx, ledger.Instruction{
		Kind:   ledger.InstructionInitialize,
		Signer: s.authority,
		Init:   params,
	})
	if err != nil {
		return "", err
	}

	if err := s.fundings.LinkPublication(ctx, pub.ID, rcpt.Account.Address); err != nil {
		return "", err
	}
	return rcpt.Account.Address, nil
}

func (s *Service) record(ctx context.Context, f types.Funding) error {
	if f.ID == "" {
		f.ID = newFundingID()
	}
	if f.CreatedAt.IsZero() {
		f.CreatedAt = time.Now().UTC()
	}
	return s.fundings.RecordFunding(ctx, f)
}

func (s *Service) submit(ctx context.Context, ins ledger.Instruction) (ledger.Receipt, error) {
	start := time.Now()

	var rcpt ledger.Receipt
	err := s.guard.Do(ctx, func(ctx context.Context) error {
		r, err := s.cluster.Submit(ctx, ins)
		if err != nil {
			return err
		}
		rcpt = r
		return nil
	})

	duration := time.Since(start)
	s.metrics.RecordLedgerSubmission(string(ins.Kind), duration, err)
	s.logger.LedgerLogger(string(ins.Kind), rcpt.Account.Address, rcpt.Signature, duration, err)

	return rcpt, err
}

// Estimate computes the tokens a funding of amount would earn
func (s *Service) Estimate(ctx context.Context, publicationID string, amount float64) (Estimate, error) {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return Estimate{}, errors.NewValidationError("Please enter a valid funding amount")
	}

	pub, err := s.catalog.Get(ctx, publicationID)
	if err != nil {
		return Estimate{}, err
	}

	impact := s.score(pub)
	return Estimate{
		PublicationID: pub.ID,
		FundingAmount: amount,
		Impact:        impact,
		TokenAmount:   scoring.ComputeTokenAmount(impact.Score, amount),
	}, nil
}

// Account reads a research account from the cluster
func (s *Service) Account(ctx context.Context, address string) (ledger.ResearchAccount, error) {
	return s.cluster.Account(ctx, address)
}

// UpdateStatus submits an update-status instruction signed by signer. An
// empty signer is rejected with ledger.ErrInvalidAuthority.
func (s *Service) UpdateStatus(ctx context.Context, address, signer string, active bool) (ledger.Receipt, error) {
	if signer == "" {
		return ledger.Receipt{}, ledger.ErrInvalidAuthority
	}
	return s.submit(ctx, ledger.Instruction{
		Kind:    ledger.InstructionUpdateStatus,
		Account: address,
		Signer:  signer,
		Active:  active,
	})
}

// Fundings lists the recent fundings of a publication
func (s *Service) Fundings(ctx context.Context, publicationID string, limit int) ([]types.Funding, error) {
	if _, err := s.catalog.Get(ctx, publicationID); err != nil {
		return nil, err
	}
	return s.fundings.FundingsForPublication(ctx, publicationID, limit)
}

// ExplorerURL links a signature on the configured cluster
func (s *Service) ExplorerURL(signature string) string {
	return ledger.ExplorerURL(signature, s.cluster.Name())
}

func formatAmount(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
