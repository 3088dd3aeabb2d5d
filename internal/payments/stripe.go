package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v78"
	"github.com/stripe/stripe-go/v78/client"
)

// GatewayStripe identifies the Stripe adapter.
const GatewayStripe = "stripe"

type stripePaymentIntentAPI interface {
	New(params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
	Get(id string, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

// StripeConfig configures the Stripe adapter.
type StripeConfig struct {
	APIKey   string
	Backends *stripe.Backends
	Logger   Logger
	Clock    func() time.Time
	Intents  stripePaymentIntentAPI
}

// StripeProvider creates PaymentIntents and verifies confirmations against their live state.
// Stripe hands the client no signature, so the authenticated PaymentIntent lookup is the proof.
type StripeProvider struct {
	intents stripePaymentIntentAPI
	clock   func() time.Time
	logger  Logger
}

// NewStripeProvider builds the adapter over stripe-go unless Intents is supplied.
func NewStripeProvider(cfg StripeConfig) (*StripeProvider, error) {
	intents := cfg.Intents
	if intents == nil {
		apiKey := strings.TrimSpace(cfg.APIKey)
		if apiKey == "" {
			return nil, errors.New("stripe: api key is required")
		}
		intents = client.New(apiKey, cfg.Backends).PaymentIntents
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &StripeProvider{
		intents: intents,
		clock:   func() time.Time { return clock().UTC() },
		logger:  logger,
	}, nil
}

// ID implements Provider.
func (p *StripeProvider) ID() string { return GatewayStripe }

// CreateIntent creates a PaymentIntent for the amount in minor units.
func (p *StripeProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if req.Amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	currency := strings.ToLower(defaultString(req.Currency, "usd"))
	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(req.Amount),
		Currency: stripe.String(currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.Context = ctx
	if req.Receipt != "" {
		params.SetIdempotencyKey(req.Receipt)
		params.AddMetadata("receipt", req.Receipt)
	}
	for k, v := range req.Notes {
		params.AddMetadata(k, v)
	}

	pi, err := p.intents.New(params)
	if err != nil {
		return Intent{}, fmt.Errorf("stripe: create payment intent: %w", err)
	}
	intent := Intent{
		ID:           pi.ID,
		Gateway:      GatewayStripe,
		Amount:       pi.Amount,
		Currency:     strings.ToUpper(string(pi.Currency)),
		Receipt:      req.Receipt,
		Status:       stripeStatus(pi.Status),
		ClientSecret: pi.ClientSecret,
		CreatedAt:    p.clock(),
	}
	if pi.Created > 0 {
		intent.CreatedAt = time.Unix(pi.Created, 0).UTC()
	}
	p.logger(ctx, "payments.stripe.intent.created", map[string]any{
		"paymentIntent": pi.ID,
		"amount":        pi.Amount,
		"currency":      intent.Currency,
	})
	return intent, nil
}

// VerifyConfirmation requires the PaymentIntent to have succeeded with the named payment method or
// charge. Any signature on the confirmation is ignored.
func (p *StripeProvider) VerifyConfirmation(ctx context.Context, c Confirmation) (Verification, error) {
	if !strings.HasPrefix(c.TransactionID, "pi_") {
		return Verification{}, ErrVerificationFailed
	}
	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.intents.Get(c.TransactionID, params)
	if err != nil {
		var stripeErr *stripe.Error
		if errors.As(err, &stripeErr) && stripeErr.HTTPStatusCode == 404 {
			return Verification{}, ErrVerificationFailed
		}
		return Verification{}, fmt.Errorf("stripe: lookup payment intent: %w", err)
	}
	if pi.ID != c.TransactionID || pi.Status != stripe.PaymentIntentStatusSucceeded || !stripeReferencesPayment(pi, c.PaymentID) {
		p.logger(ctx, "payments.stripe.intent.unverified", map[string]any{
			"paymentIntent": pi.ID,
			"status":        string(pi.Status),
		})
		return Verification{}, ErrVerificationFailed
	}
	return Verification{
		Gateway:       GatewayStripe,
		TransactionID: pi.ID,
		PaymentID:     c.PaymentID,
		Amount:        pi.AmountReceived,
		Currency:      strings.ToUpper(string(pi.Currency)),
	}, nil
}

func stripeReferencesPayment(pi *stripe.PaymentIntent, paymentID string) bool {
	if pi.LatestCharge != nil && pi.LatestCharge.ID == paymentID {
		return true
	}
	if pi.PaymentMethod != nil && pi.PaymentMethod.ID == paymentID {
		return true
	}
	return false
}

func stripeStatus(status stripe.PaymentIntentStatus) Status {
	switch status {
	case stripe.PaymentIntentStatusSucceeded:
		return StatusSucceeded
	case stripe.PaymentIntentStatusProcessing:
		return StatusPending
	case stripe.PaymentIntentStatusCanceled:
		return StatusFailed
	default:
		return StatusCreated
	}
}
