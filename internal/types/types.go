package types

import (
	"errors"
	"time"

	"github.com/ZanzyTHEbar/research-token/internal/scoring"
)

// PaymentMethod selects how a funding is settled
type PaymentMethod string

const (
	PaymentCrypto PaymentMethod = "crypto"
	PaymentFiat   PaymentMethod = "fiat"
)

// YearRange is an inclusive publication-year interval
type YearRange struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// SearchFilters narrows a catalog search. Zero values disable a filter.
type SearchFilters struct {
	Year    int        `json:"year,omitempty"`
	Years   *YearRange `json:"years,omitempty"`
	Journal string     `json:"journal,omitempty"`
	Author  string     `json:"author,omitempty"`
	Topic   string     `json:"topic,omitempty"`
}

// ScoreRequest represents the request structure for the score endpoint
type ScoreRequest struct {
	scoring.PublicationMetrics
}

// EstimateRequest represents the request structure for the token estimate endpoint
type EstimateRequest struct {
	Score         float64 `json:"score"`
	FundingAmount float64 `json:"funding_amount"`
}

// FundRequest asks to fund a publication in exchange for reward tokens
type FundRequest struct {
	PublicationID   string        `json:"publication_id" binding:"required"`
	FundingAmount   float64       `json:"funding_amount"`
	PaymentMethod   PaymentMethod `json:"payment_method"`
	WalletPublicKey string        `json:"wallet_public_key,omitempty"`
	PaymentRef      string        `json:"-"`
}

// TokenizationResult reports the outcome of a funding
type TokenizationResult struct {
	Success     bool    `json:"success"`
	Message     string  `json:"message"`
	TxSignature string  `json:"tx_signature,omitempty"`
	ExplorerURL string  `json:"explorer_url,omitempty"`
	TokenAmount float64 `json:"token_amount,omitempty"`
	Account     string  `json:"account,omitempty"`
}

// Funding is one recorded contribution to a publication
type Funding struct {
	ID             string        `json:"id" db:"id"`
	PublicationID  string        `json:"publication_id" db:"publication_id"`
	AccountAddress string        `json:"account_address,omitempty" db:"account_address"`
	Funder         string        `json:"funder,omitempty" db:"funder"`
	PaymentMethod  PaymentMethod `json:"payment_method" db:"payment_method"`
	Amount         float64       `json:"amount" db:"amount"`
	TokenAmount    float64       `json:"token_amount" db:"token_amount"`
	ImpactScore    float64       `json:"impact_score" db:"impact_score"`
	TxSignature    string        `json:"tx_signature,omitempty" db:"tx_signature"`
	PaymentRef     string        `json:"payment_ref,omitempty" db:"payment_ref"`
	CreatedAt      time.Time     `json:"created_at" db:"created_at"`
}

// FundingTotal aggregates the fundings of one publication
type FundingTotal struct {
	PublicationID string  `json:"publication_id" db:"publication_id"`
	TotalAmount   float64 `json:"total_amount" db:"total_amount"`
	TotalTokens   float64 `json:"total_tokens" db:"total_tokens"`
	Fundings      int     `json:"fundings" db:"fundings"`
}

// ErrDuplicatePayment is returned when a payment reference was already recorded
var ErrDuplicatePayment = errors.New("payment already recorded")
