package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	razorpay "github.com/razorpay/razorpay-go"
)

// GatewayRazorpay identifies the Razorpay adapter.
const GatewayRazorpay = "razorpay"

type razorpayOrderAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Fetch(orderID string, queryParams map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

// RazorpayConfig configures the Razorpay adapter.
type RazorpayConfig struct {
	KeyID     string
	KeySecret string
	Logger    Logger
	Clock     func() time.Time
	Orders    razorpayOrderAPI
}

// RazorpayProvider creates Razorpay orders and checks HMAC confirmations against the stored order.
type RazorpayProvider struct {
	orders razorpayOrderAPI
	secret string
	clock  func() time.Time
	logger Logger
}

// NewRazorpayProvider builds the adapter over razorpay-go unless Orders is supplied.
func NewRazorpayProvider(cfg RazorpayConfig) (*RazorpayProvider, error) {
	secret := strings.TrimSpace(cfg.KeySecret)
	if secret == "" {
		return nil, errors.New("razorpay: key secret is required")
	}
	orders := cfg.Orders
	if orders == nil {
		keyID := strings.TrimSpace(cfg.KeyID)
		if keyID == "" {
			return nil, errors.New("razorpay: key id is required")
		}
		orders = razorpay.NewClient(keyID, secret).Order
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &RazorpayProvider{
		orders: orders,
		secret: secret,
		clock:  func() time.Time { return clock().UTC() },
		logger: logger,
	}, nil
}

// ID implements Provider.
func (p *RazorpayProvider) ID() string { return GatewayRazorpay }

// CreateIntent creates a Razorpay order for the amount in minor units.
func (p *RazorpayProvider) CreateIntent(ctx context.Context, req IntentRequest) (Intent, error) {
	if req.Amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		currency = "INR"
	}
	payload := map[string]interface{}{
		"amount":   req.Amount,
		"currency": currency,
		"receipt":  req.Receipt,
	}
	if len(req.Notes) > 0 {
		notes := make(map[string]interface{}, len(req.Notes))
		for k, v := range req.Notes {
			notes[k] = v
		}
		payload["notes"] = notes
	}
	if err := ctx.Err(); err != nil {
		return Intent{}, err
	}

	body, err := p.orders.Create(payload, nil)
	if err != nil {
		return Intent{}, fmt.Errorf("razorpay: create order: %w", err)
	}
	intent := Intent{
		ID:        stringField(body, "id"),
		Gateway:   GatewayRazorpay,
		Amount:    int64Field(body, "amount", req.Amount),
		Currency:  strings.ToUpper(defaultString(stringField(body, "currency"), currency)),
		Receipt:   defaultString(stringField(body, "receipt"), req.Receipt),
		Status:    razorpayStatus(stringField(body, "status")),
		CreatedAt: p.clock(),
	}
	if intent.ID == "" {
		return Intent{}, errors.New("razorpay: create order: response missing id")
	}
	p.logger(ctx, "payments.razorpay.order.created", map[string]any{
		"orderId":  intent.ID,
		"amount":   intent.Amount,
		"currency": intent.Currency,
	})
	return intent, nil
}

// VerifyConfirmation checks the HMAC Razorpay returns to the client after checkout, then fetches
// the order to learn the amount the payment covered.
func (p *RazorpayProvider) VerifyConfirmation(ctx context.Context, c Confirmation) (Verification, error) {
	if !VerifySignature(p.secret, c.TransactionID, c.PaymentID, c.Signature) {
		p.logger(ctx, "payments.razorpay.signature.mismatch", map[string]any{
			"orderId":   c.TransactionID,
			"paymentId": c.PaymentID,
		})
		return Verification{}, ErrVerificationFailed
	}
	if err := ctx.Err(); err != nil {
		return Verification{}, err
	}

	body, err := p.orders.Fetch(c.TransactionID, nil, nil)
	if err != nil {
		return Verification{}, fmt.Errorf("razorpay: fetch order: %w", err)
	}
	if id := stringField(body, "id"); id != c.TransactionID {
		p.logger(ctx, "payments.razorpay.order.mismatch", map[string]any{"orderId": c.TransactionID, "fetched": id})
		return Verification{}, ErrVerificationFailed
	}
	// amount_paid stays zero until capture; an authorised payment covers the full order amount.
	amount := int64Field(body, "amount_paid", 0)
	if amount <= 0 {
		amount = int64Field(body, "amount", 0)
	}
	return Verification{
		Gateway:       GatewayRazorpay,
		TransactionID: c.TransactionID,
		PaymentID:     c.PaymentID,
		Amount:        amount,
		Currency:      strings.ToUpper(stringField(body, "currency")),
	}, nil
}

func razorpayStatus(s string) Status {
	switch s {
	case "paid":
		return StatusSucceeded
	case "attempted":
		return StatusPending
	default:
		return StatusCreated
	}
}

func stringField(m map[string]interface{}, key string) string {
	if v, ok := m[key].(string); ok {
		return v
	}
	return ""
}

func int64Field(m map[string]interface{}, key string, fallback int64) int64 {
	switch v := m[key].(type) {
	case float64:
		return int64(v)
	case int64:
		return v
	case int:
		return int64(v)
	default:
		return fallback
	}
}

func defaultString(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
