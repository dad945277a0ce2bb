// Package payments settles fiat fundings through Stripe Checkout. A
// completed checkout session becomes a fiat funding of the publication named
// in its metadata.
package payments

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"math"
	"strconv"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/ZanzyTHEbar/research-token/internal/errors"
	"github.com/ZanzyTHEbar/research-token/internal/monitoring"
	"github.com/ZanzyTHEbar/research-token/internal/types"
)

// MaxWebhookBytes bounds the webhook body read by the HTTP handler
const MaxWebhookBytes = int64(65536)

const (
	metaPublication = "publication_id"
	metaAmount      = "amount_cents"
	metaWallet      = "wallet_public_key"
)

// Config holds the Stripe settings. An empty SecretKey disables payments.
type Config struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	Currency      string
}

// CheckoutRequest asks for a checkout session funding a publication in USD
type CheckoutRequest struct {
	PublicationID   string  `json:"publication_id" binding:"required"`
	Amount          float64 `json:"amount"`
	WalletPublicKey string  `json:"wallet_public_key,omitempty"`
}

// Checkout is a created checkout session
type Checkout struct {
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
}

// SessionCreator creates checkout sessions. *session.Client from the Stripe
// client satisfies it.
type SessionCreator interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
}

// Funder turns a completed payment into a funding
type Funder interface {
	Tokenize(ctx context.Context, req types.FundRequest) (types.TokenizationResult, error)
}

// Service creates checkout sessions and handles Stripe webhooks
type Service struct {
	cfg      Config
	sessions SessionCreator
	funder   Funder
	logger   *monitoring.Logger
}

// NewService creates a payment service
func NewService(cfg Config, funder Funder, logger *monitoring.Logger) *Service {
	if cfg.Currency == "" {
		cfg.Currency = string(stripe.CurrencyUSD)
	}
	if logger == nil {
		logger = monitoring.NewNopLogger()
	}

	s := &Service{cfg: cfg, funder: funder, logger: logger}
	if cfg.SecretKey != "" {
		sc := &client.API{}
		sc.Init(cfg.SecretKey, nil)
		s.sessions = sc.CheckoutSessions
	}
	return s
}

// WithSessions replaces the session creator
func (s *Service) WithSessions(sessions SessionCreator) *Service {
	s.sessions = sessions
	return s
}

// Enabled reports whether Stripe is configured
func (s *Service) Enabled() bool {
	return s.sessions != nil
}

func notConfigured() error {
	return errors.NewConfigurationError("payment system not configured", nil)
}

// CreateCheckout opens a one-time payment session for req
func (s *Service) CreateCheckout(ctx context.Context, req CheckoutRequest) (Checkout, error) {
	if !s.Enabled() {
		return Checkout{}, notConfigured()
	}
	if req.PublicationID == "" {
		return Checkout{}, errors.NewValidationError("publication_id is required")
	}
	if math.IsNaN(req.Amount) || math.IsInf(req.Amount, 0) || req.Amount <= 0 {
		return Checkout{}, errors.NewValidationError("Please enter a valid funding amount")
	}
	cents := int64(math.Round(req.Amount * 100))
	if cents < 1 {
		return Checkout{}, errors.NewValidationError("Please enter a valid funding amount")
	}

	params := &stripe.CheckoutSessionParams{
		PaymentMethodTypes: stripe.StringSlice([]string{"card"}),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{
				PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
					Currency: stripe.String(s.cfg.Currency),
					ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
						Name:        stripe.String("Research funding"),
						Description: stripe.String("Funding for publication " + req.PublicationID),
					},
					UnitAmount: stripe.Int64(cents),
				},
				Quantity: stripe.Int64(1),
			},
		},
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(s.cfg.SuccessURL),
		CancelURL:         stripe.String(s.cfg.CancelURL),
		ClientReferenceID: stripe.String(req.PublicationID),
		Metadata: map[string]string{
			metaPublication: req.PublicationID,
			metaAmount:      strconv.FormatInt(cents, 10),
			metaWallet:      req.WalletPublicKey,
		},
	}
	params.Context = ctx

	start := time.Now()
	sess, err := s.sessions.New(params)
	s.logger.ExternalAPILogger("stripe", "checkout.sessions.create", time.Since(start), err == nil)
	if err != nil {
		return Checkout{}, errors.NewExternalAPIError("stripe", err)
	}
	return Checkout{SessionID: sess.ID, URL: sess.URL}, nil
}

// HandleWebhook verifies and applies a webhook. Events other than a paid
// checkout.session.completed return a nil result. A session that was
// already applied is not funded twice.
func (s *Service) HandleWebhook(ctx context.Context, payload []byte, signature string) (*types.TokenizationResult, error) {
	if !s.Enabled() {
		return nil, notConfigured()
	}

	event, err := webhook.ConstructEvent(payload, signature, s.cfg.WebhookSecret)
	if err != nil {
		s.logger.SecurityLogger("invalid_webhook_signature", "", "", map[string]interface{}{"error": err.Error()})
		return nil, errors.NewValidationError("failed to verify webhook", err.Error())
	}
	if event.Type != stripe.EventTypeCheckoutSessionCompleted {
		return nil, nil
	}

	var sess stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &sess); err != nil {
		return nil, errors.NewValidationError("failed to parse session", err.Error())
	}
	if sess.PaymentStatus != stripe.CheckoutSessionPaymentStatusPaid {
		return nil, nil
	}

	req, err := fundRequest(&sess)
	if err != nil {
		return nil, err
	}

	result, err := s.funder.Tokenize(ctx, req)
	if stderrors.Is(err, types.ErrDuplicatePayment) {
		s.logger.Info("Checkout session already applied", "session_id", sess.ID)
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &result, nil
}

func fundRequest(sess *stripe.CheckoutSession) (types.FundRequest, error) {
	publicationID := sess.Metadata[metaPublication]
	if publicationID == "" {
		return types.FundRequest{}, errors.NewValidationError("checkout session has no publication", sess.ID)
	}

	cents := sess.AmountTotal
	if cents <= 0 {
		parsed, err := strconv.ParseInt(sess.Metadata[metaAmount], 10, 64)
		if err != nil || parsed <= 0 {
			return types.FundRequest{}, errors.NewValidationError("checkout session has no amount", sess.ID)
		}
		cents = parsed
	}

	return types.FundRequest{
		PublicationID:   publicationID,
		FundingAmount:   float64(cents) / 100,
		PaymentMethod:   types.PaymentFiat,
		WalletPublicKey: sess.Metadata[metaWallet],
		PaymentRef:      sess.ID,
	}, nil
}
