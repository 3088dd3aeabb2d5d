package payments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Status enumerates the normalised intent states shared across gateways.
type Status string

const (
	// StatusCreated indicates the intent exists and awaits customer action.
	StatusCreated Status = "created"
	// StatusPending indicates the gateway is still processing the payment.
	StatusPending Status = "pending"
	// StatusSucceeded indicates the gateway reports the payment as captured.
	StatusSucceeded Status = "succeeded"
	// StatusFailed indicates the gateway reports a failure.
	StatusFailed Status = "failed"
)

var (
	// ErrUnsupportedProvider is returned when the manager cannot locate a gateway.
	ErrUnsupportedProvider = errors.New("payments: unsupported provider")
	// ErrVerificationFailed reports a confirmation whose signature or gateway state does not check out.
	ErrVerificationFailed = errors.New("payments: verification failed")
	// ErrInvalidAmount is returned for non-positive intent amounts.
	ErrInvalidAmount = errors.New("payments: amount must be greater than zero")
)

// Logger receives structured gateway events.
type Logger func(ctx context.Context, event string, fields map[string]any)

// IntentRequest describes a payment intent to create at the gateway. Amount is in minor units.
type IntentRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// Intent is the gateway's view of a created payment intent.
type Intent struct {
	ID           string
	Gateway      string
	Amount       int64
	Currency     string
	Receipt      string
	Status       Status
	ClientSecret string
	CreatedAt    time.Time
}

// Confirmation carries the identifiers and signature the client forwards after paying.
type Confirmation struct {
	TransactionID string
	PaymentID     string
	Signature     string
}

// Verification is returned for a confirmation that passed all gateway checks.
type Verification struct {
	Gateway       string
	TransactionID string
	PaymentID     string
	Amount        int64
	Currency      string
}

// Provider defines the contract for gateway adapters.
type Provider interface {
	ID() string
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	VerifyConfirmation(ctx context.Context, c Confirmation) (Verification, error)
}

// ToMinorUnits converts a major-unit amount into integer minor units, rounding half away from zero.
func ToMinorUnits(amount decimal.Decimal) (int64, error) {
	minor := amount.Shift(2).Round(0)
	if !minor.IsPositive() {
		return 0, ErrInvalidAmount
	}
	return minor.IntPart(), nil
}

// FromMinorUnits converts integer minor units back into a major-unit decimal.
func FromMinorUnits(amount int64) decimal.Decimal {
	return decimal.New(amount, -2)
}

// Manager coordinates gateway selection.
type Manager struct {
	providers       map[string]Provider
	defaultProvider string
}

// ManagerOption configures optional behaviour when building a Manager.
type ManagerOption func(*Manager)

// WithDefaultProvider selects the gateway used when a request names none.
func WithDefaultProvider(provider string) ManagerOption {
	return func(m *Manager) {
		m.defaultProvider = normaliseKey(provider)
	}
}

// NewManager registers the supplied gateways under their IDs.
func NewManager(providers []Provider, opts ...ManagerOption) (*Manager, error) {
	if len(providers) == 0 {
		return nil, errors.New("payments: at least one provider is required")
	}
	registry := make(map[string]Provider, len(providers))
	for _, p := range providers {
		if p == nil {
			return nil, errors.New("payments: nil provider registration")
		}
		key := normaliseKey(p.ID())
		if key == "" {
			return nil, errors.New("payments: provider id is required")
		}
		if _, dup := registry[key]; dup {
			return nil, fmt.Errorf("payments: provider %q registered twice", key)
		}
		registry[key] = p
	}
	m := &Manager{providers: registry}
	if len(providers) == 1 {
		m.defaultProvider = normaliseKey(providers[0].ID())
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.defaultProvider != "" {
		if _, ok := registry[m.defaultProvider]; !ok {
			return nil, fmt.Errorf("payments: default provider %q not registered", m.defaultProvider)
		}
	}
	return m, nil
}

// DefaultProvider returns the ID of the gateway used when none is requested.
func (m *Manager) DefaultProvider() string {
	if m == nil {
		return ""
	}
	return m.defaultProvider
}

// Resolve returns the gateway for the preferred ID, or the default when preferred is blank.
func (m *Manager) Resolve(preferred string) (Provider, error) {
	if m == nil || len(m.providers) == 0 {
		return nil, errors.New("payments: no providers registered")
	}
	key := normaliseKey(preferred)
	if key == "" {
		key = m.defaultProvider
	}
	if p, ok := m.providers[key]; ok {
		return p, nil
	}
	return nil, ErrUnsupportedProvider
}

// CreateIntent delegates to the resolved gateway.
func (m *Manager) CreateIntent(ctx context.Context, preferred string, req IntentRequest) (Intent, error) {
	if req.Amount <= 0 {
		return Intent{}, ErrInvalidAmount
	}
	p, err := m.Resolve(preferred)
	if err != nil {
		return Intent{}, err
	}
	intent, err := p.CreateIntent(ctx, req)
	if err != nil {
		return Intent{}, err
	}
	intent.Gateway = p.ID()
	return intent, nil
}

// VerifyConfirmation delegates to the resolved gateway.
func (m *Manager) VerifyConfirmation(ctx context.Context, preferred string, c Confirmation) (Verification, error) {
	p, err := m.Resolve(preferred)
	if err != nil {
		return Verification{}, err
	}
	v, err := p.VerifyConfirmation(ctx, c)
	if err != nil {
		return Verification{}, err
	}
	v.Gateway = p.ID()
	return v, nil
}

func normaliseKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}
