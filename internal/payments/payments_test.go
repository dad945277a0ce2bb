package payments

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"

	apperrors "github.com/ZanzyTHEbar/research-token/internal/errors"
	"github.com/ZanzyTHEbar/research-token/internal/types"
)

const testSecret = "whsec_test"

type fakeSessions struct {
	params *stripe.CheckoutSessionParams
	err    error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.params = params
	if f.err != nil {
		return nil, f.err
	}
	return &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}, nil
}

type fakeFunder struct {
	requests []types.FundRequest
	err      error
}

func (f *fakeFunder) Tokenize(ctx context.Context, req types.FundRequest) (types.TokenizationResult, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return types.TokenizationResult{}, f.err
	}
	return types.TokenizationResult{Success: true, TokenAmount: 10}, nil
}

func newTestService(funder Funder) (*Service, *fakeSessions) {
	sessions := &fakeSessions{}
	svc := NewService(Config{WebhookSecret: testSecret, SuccessURL: "https://example.org/ok", CancelURL: "https://example.org/cancel"}, funder, nil)
	return svc.WithSessions(sessions), sessions
}

func signedEvent(t *testing.T, eventType string, object map[string]interface{}) ([]byte, string) {
	t.Helper()
	payload, err := json.Marshal(map[string]interface{}{
		"id":          "evt_test",
		"object":      "event",
		"type":        eventType,
		"api_version": stripe.APIVersion,
		"data":        map[string]interface{}{"object": object},
	})
	require.NoError(t, err)

	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{Payload: payload, Secret: testSecret})
	return signed.Payload, signed.Header
}

func completedSession(id string) map[string]interface{} {
	return map[string]interface{}{
		"id":             id,
		"object":         "checkout.session",
		"amount_total":   2500,
		"payment_status": "paid",
		"metadata": map[string]string{
			metaPublication: "2",
			metaAmount:      "2500",
		},
	}
}

func TestUnconfigured(t *testing.T) {
	svc := NewService(Config{}, &fakeFunder{}, nil)
	assert.False(t, svc.Enabled())

	_, err := svc.CreateCheckout(context.Background(), CheckoutRequest{PublicationID: "2", Amount: 5})
	appErr := apperrors.ToAppError(err)
	require.NotNil(t, appErr)
	assert.Equal(t, http.StatusServiceUnavailable, appErr.HTTPStatus)

	_, err = svc.HandleWebhook(context.Background(), []byte("{}"), "")
	assert.Equal(t, http.StatusServiceUnavailable, apperrors.ToAppError(err).HTTPStatus)
}

func TestCreateCheckout(t *testing.T) {
	svc, sessions := newTestService(&fakeFunder{})

	checkout, err := svc.CreateCheckout(context.Background(), CheckoutRequest{
		PublicationID:   "2",
		Amount:          12.35,
		WalletPublicKey: "wallet",
	})
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", checkout.SessionID)
	assert.NotEmpty(t, checkout.URL)

	p := sessions.params
	require.NotNil(t, p)
	assert.Equal(t, string(stripe.CheckoutSessionModePayment), *p.Mode)
	require.Len(t, p.LineItems, 1)
	assert.Equal(t, int64(1235), *p.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, "usd", *p.LineItems[0].PriceData.Currency)
	assert.Equal(t, "2", p.Metadata[metaPublication])
	assert.Equal(t, "1235", p.Metadata[metaAmount])
	assert.Equal(t, "wallet", p.Metadata[metaWallet])
}

func TestCreateCheckoutValidation(t *testing.T) {
	svc, _ := newTestService(&fakeFunder{})

	for _, req := range []CheckoutRequest{
		{Amount: 5},
		{PublicationID: "2"},
		{PublicationID: "2", Amount: -1},
		{PublicationID: "2", Amount: 0.001},
	} {
		_, err := svc.CreateCheckout(context.Background(), req)
		assert.Equal(t, apperrors.CategoryValidation, apperrors.ToAppError(err).Category, "%+v", req)
	}
}

func TestCreateCheckoutStripeError(t *testing.T) {
	svc, sessions := newTestService(&fakeFunder{})
	sessions.err = errors.New("card declined")

	_, err := svc.CreateCheckout(context.Background(), CheckoutRequest{PublicationID: "2", Amount: 5})
	assert.Equal(t, apperrors.CategoryExternalAPI, apperrors.ToAppError(err).Category)
}

func TestHandleWebhookCompleted(t *testing.T) {
	funder := &fakeFunder{}
	svc, _ := newTestService(funder)

	payload, header := signedEvent(t, "checkout.session.completed", completedSession("cs_paid"))
	result, err := svc.HandleWebhook(context.Background(), payload, header)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.True(t, result.Success)

	require.Len(t, funder.requests, 1)
	assert.Equal(t, types.FundRequest{
		PublicationID: "2",
		FundingAmount: 25,
		PaymentMethod: types.PaymentFiat,
		PaymentRef:    "cs_paid",
	}, funder.requests[0])
}

func TestHandleWebhookDuplicate(t *testing.T) {
	svc, _ := newTestService(&fakeFunder{err: types.ErrDuplicatePayment})

	payload, header := signedEvent(t, "checkout.session.completed", completedSession("cs_dup"))
	result, err := svc.HandleWebhook(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestHandleWebhookIgnored(t *testing.T) {
	funder := &fakeFunder{}
	svc, _ := newTestService(funder)

	unpaid := completedSession("cs_unpaid")
	unpaid["payment_status"] = "unpaid"

	for name, object := range map[string]map[string]interface{}{
		"unpaid": unpaid,
	} {
		payload, header := signedEvent(t, "checkout.session.completed", object)
		result, err := svc.HandleWebhook(context.Background(), payload, header)
		assert.NoError(t, err, name)
		assert.Nil(t, result, name)
	}

	payload, header := signedEvent(t, "payment_intent.created", map[string]interface{}{"id": "pi_1", "object": "payment_intent"})
	result, err := svc.HandleWebhook(context.Background(), payload, header)
	assert.NoError(t, err)
	assert.Nil(t, result)

	assert.Empty(t, funder.requests)
}

func TestHandleWebhookBadSignature(t *testing.T) {
	svc, _ := newTestService(&fakeFunder{})

	payload, _ := signedEvent(t, "checkout.session.completed", completedSession("cs_forged"))
	_, err := svc.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.Equal(t, apperrors.CategoryValidation, apperrors.ToAppError(err).Category)
}

func TestHandleWebhookMissingPublication(t *testing.T) {
	svc, _ := newTestService(&fakeFunder{})

	object := completedSession("cs_nometa")
	object["metadata"] = map[string]string{}
	payload, header := signedEvent(t, "checkout.session.completed", object)

	_, err := svc.HandleWebhook(context.Background(), payload, header)
	assert.Equal(t, apperrors.CategoryValidation, apperrors.ToAppError(err).Category)
}
