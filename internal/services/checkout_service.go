package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/payments"
	"github.com/brightcart/api/internal/platform/events"
	"github.com/brightcart/api/internal/repositories"
)

const (
	defaultSweepGracePeriod = 10 * time.Minute
	defaultSweepBatchSize   = 50
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutUnavailable indicates the payment gateway could not be reached.
	ErrCheckoutUnavailable = errors.New("checkout: unavailable")
	// ErrPaymentVerificationFailed indicates the confirmation signature did not match. Callers must
	// not reveal which part of the confirmation was wrong.
	ErrPaymentVerificationFailed = errors.New("checkout: payment verification failed")
	// ErrOrderPersistence indicates the payment verified but the order could not be stored. The
	// capture remains and is retried by the reconciliation sweep.
	ErrOrderPersistence = errors.New("checkout: order could not be stored")
	// ErrCaptureNotFound indicates no capture exists for the given ID.
	ErrCaptureNotFound = errors.New("checkout: capture not found")
	// ErrPaymentAmountMismatch indicates the gateway reported a paid amount other than the order
	// total. The capture is parked for an operator.
	ErrPaymentAmountMismatch = errors.New("checkout: paid amount does not match order total")
)

// checkoutGateway abstracts payments.Manager for easier testing.
type checkoutGateway interface {
	DefaultProvider() string
	CreateIntent(ctx context.Context, preferred string, req payments.IntentRequest) (payments.Intent, error)
	VerifyConfirmation(ctx context.Context, preferred string, c payments.Confirmation) (payments.Verification, error)
}

// orderInserter assigns an order number while persisting the order.
type orderInserter interface {
	Insert(ctx context.Context, order domain.Order) (domain.Order, error)
}

// EventPublisher delivers domain events.
type EventPublisher interface {
	Publish(ctx context.Context, event events.Event) error
}

// CheckoutMetrics records checkout outcomes.
type CheckoutMetrics interface {
	RecordVerificationOutcome(ctx context.Context, gateway, outcome string)
	RecordOrderCreated(ctx context.Context, gateway string)
}

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Payments    checkoutGateway
	Captures    repositories.CaptureRepository
	Orders      repositories.OrderRepository
	Allocator   orderInserter
	Totals      *domain.TotalsCalculator
	Events      EventPublisher
	Metrics     CheckoutMetrics
	Currency    string
	GracePeriod time.Duration
	SweepBatch  int
	Clock       func() time.Time
	Logger      Logger
	IDGenerator func() string
}

type checkoutService struct {
	payments    checkoutGateway
	captures    repositories.CaptureRepository
	orders      repositories.OrderRepository
	allocator   orderInserter
	totals      domain.TotalsCalculator
	events      EventPublisher
	metrics     CheckoutMetrics
	currency    string
	gracePeriod time.Duration
	sweepBatch  int
	now         func() time.Time
	logger      Logger
	newID       func() string
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment manager is required")
	}
	if deps.Captures == nil {
		return nil, errors.New("checkout service: capture repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.Allocator == nil {
		return nil, errors.New("checkout service: order number allocator is required")
	}

	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return ulid.Make().String() }
	}
	var totals domain.TotalsCalculator
	if deps.Totals != nil {
		totals = *deps.Totals
	} else {
		totals, _ = domain.NewTotalsCalculator(domain.DefaultTaxRate)
	}
	grace := deps.GracePeriod
	if grace <= 0 {
		grace = defaultSweepGracePeriod
	}
	batch := deps.SweepBatch
	if batch <= 0 {
		batch = defaultSweepBatchSize
	}

	return &checkoutService{
		payments:    deps.Payments,
		captures:    deps.Captures,
		orders:      deps.Orders,
		allocator:   deps.Allocator,
		totals:      totals,
		events:      deps.Events,
		metrics:     deps.Metrics,
		currency:    strings.ToUpper(strings.TrimSpace(deps.Currency)),
		gracePeriod: grace,
		sweepBatch:  batch,
		now:         func() time.Time { return clock().UTC() },
		logger:      logger,
		newID:       idGen,
	}, nil
}

// CreatePaymentIntent converts the amount to minor units and opens an intent at the gateway.
func (s *checkoutService) CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error) {
	minor, err := payments.ToMinorUnits(cmd.Amount)
	if err != nil {
		return PaymentIntent{}, fmt.Errorf("%w: amount must be greater than zero", ErrCheckoutInvalidInput)
	}

	gateway := strings.ToLower(strings.TrimSpace(cmd.Gateway))
	if gateway == "" {
		gateway = s.payments.DefaultProvider()
	}
	currency := strings.ToUpper(strings.TrimSpace(cmd.Currency))
	if currency == "" {
		currency = s.currency
	}
	if currency == "" {
		currency = defaultCurrency(gateway)
	}

	now := s.now()
	intent, err := s.payments.CreateIntent(ctx, gateway, payments.IntentRequest{
		Amount:   minor,
		Currency: currency,
		Receipt:  "receipt_" + strconv.FormatInt(now.UnixMilli(), 10),
		Notes:    map[string]string{"userId": cmd.UserID},
	})
	if err != nil {
		s.logger(ctx, "checkout.intent.failed", map[string]any{"gateway": gateway, "error": err})
		switch {
		case errors.Is(err, payments.ErrUnsupportedProvider):
			return PaymentIntent{}, fmt.Errorf("%w: unsupported gateway %q", ErrCheckoutInvalidInput, gateway)
		case errors.Is(err, payments.ErrInvalidAmount):
			return PaymentIntent{}, fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
		}
		return PaymentIntent{}, fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}

	s.logger(ctx, "checkout.intent.created", map[string]any{
		"gateway":  intent.Gateway,
		"intentId": intent.ID,
		"amount":   intent.Amount,
		"currency": intent.Currency,
	})
	return PaymentIntent{
		ID:           intent.ID,
		Gateway:      intent.Gateway,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
		Receipt:      intent.Receipt,
		Status:       string(intent.Status),
		ClientSecret: intent.ClientSecret,
	}, nil
}

func defaultCurrency(gateway string) string {
	if gateway == payments.GatewayStripe {
		return "USD"
	}
	return "INR"
}

// VerifyPayment checks the confirmation, records a capture, then creates the order. The capture
// is written before the order so a verified payment is never lost if order creation fails.
func (s *checkoutService) VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error) {
	userID := strings.TrimSpace(cmd.UserID)
	if userID == "" {
		return VerifyPaymentResult{}, fmt.Errorf("%w: user is required", ErrCheckoutInvalidInput)
	}
	confirmation := payments.Confirmation{
		TransactionID: cmd.TransactionID,
		PaymentID:     cmd.PaymentID,
		Signature:     cmd.Signature,
	}
	if confirmation.TransactionID == "" || confirmation.PaymentID == "" {
		return VerifyPaymentResult{}, fmt.Errorf("%w: transactionId and paymentId are required", ErrCheckoutInvalidInput)
	}
	gateway := strings.ToLower(strings.TrimSpace(cmd.Gateway))
	if gateway == "" {
		gateway = s.payments.DefaultProvider()
	}
	// Stripe confirmations are checked against the PaymentIntent itself and carry no signature.
	if confirmation.Signature == "" && gateway != payments.GatewayStripe {
		return VerifyPaymentResult{}, fmt.Errorf("%w: signature is required", ErrCheckoutInvalidInput)
	}
	for _, f := range []struct{ name, value string }{
		{"transactionId", confirmation.TransactionID},
		{"paymentId", confirmation.PaymentID},
		{"signature", confirmation.Signature},
	} {
		if f.value != strings.TrimSpace(f.value) {
			return VerifyPaymentResult{}, fmt.Errorf("%w: %s must not carry surrounding whitespace", ErrCheckoutInvalidInput, f.name)
		}
	}

	verification, err := s.payments.VerifyConfirmation(ctx, gateway, confirmation)
	if err != nil {
		return VerifyPaymentResult{}, s.verificationError(ctx, gateway, err)
	}
	s.recordOutcome(ctx, verification.Gateway, "verified")

	capture := domain.PaymentCapture{
		ID:            domain.CaptureIDFor(verification.Gateway, confirmation.TransactionID, confirmation.PaymentID),
		UserID:        userID,
		Gateway:       verification.Gateway,
		TransactionID: confirmation.TransactionID,
		PaymentID:     confirmation.PaymentID,
		Amount:        verification.Amount,
		Currency:      verification.Currency,
		Details:       cmd.Details,
		State:         domain.CaptureStateCaptured,
	}
	stored, created, err := s.captures.Save(ctx, capture)
	if err != nil {
		s.logger(ctx, "checkout.capture.save_failed", map[string]any{"captureId": capture.ID, "error": err})
		return VerifyPaymentResult{}, fmt.Errorf("%w: %w", ErrOrderPersistence, err)
	}
	if !created {
		if stored.UserID != userID {
			s.recordOutcome(ctx, verification.Gateway, "foreign_replay")
			return VerifyPaymentResult{}, ErrPaymentVerificationFailed
		}
		if stored.State == domain.CaptureStateCompleted {
			return VerifyPaymentResult{
				OrderID:     stored.OrderID,
				OrderNumber: stored.OrderNumber,
				CaptureID:   stored.ID,
				Replayed:    true,
			}, nil
		}
		stored.Details = cmd.Details
	}
	return s.complete(ctx, stored)
}

func (s *checkoutService) verificationError(ctx context.Context, gateway string, err error) error {
	fields := map[string]any{"gateway": gateway, "error": err}
	switch {
	case errors.Is(err, payments.ErrVerificationFailed):
		s.recordOutcome(ctx, gateway, "signature_mismatch")
		s.logger(ctx, "checkout.verify.rejected", fields)
		return ErrPaymentVerificationFailed
	case errors.Is(err, payments.ErrUnsupportedProvider):
		s.recordOutcome(ctx, gateway, "unsupported_gateway")
		return fmt.Errorf("%w: unsupported gateway %q", ErrCheckoutInvalidInput, gateway)
	default:
		s.recordOutcome(ctx, gateway, "gateway_error")
		s.logger(ctx, "checkout.verify.gateway_error", fields)
		return fmt.Errorf("%w: %v", ErrCheckoutUnavailable, err)
	}
}

// complete validates the capture's order details and stores the order under the capture ID.
func (s *checkoutService) complete(ctx context.Context, capture domain.PaymentCapture) (VerifyPaymentResult, error) {
	details := capture.Details.Normalize()
	capture.Details = details
	capture.Attempts++

	if err := details.Validate(); err != nil {
		var incomplete *domain.IncompleteOrderDetailsError
		if errors.As(err, &incomplete) {
			capture.MissingField = incomplete.Field
		}
		return VerifyPaymentResult{}, s.needsAttention(ctx, capture, err, nil)
	}
	capture.MissingField = ""

	order := domain.Order{
		ID:     capture.ID,
		UserID: capture.UserID,
		Customer: domain.Customer{
			Name:  details.CustomerName,
			Email: details.CustomerEmail,
			Phone: details.CustomerPhone,
		},
		Items:           details.Items,
		Status:          domain.OrderStatusPending,
		ShippingAddress: details.ShippingAddress,
		PaymentMethod:   domain.PaymentMethod(capture.Gateway),
		PaymentStatus:   domain.PaymentStatusCompleted,
		Payment: domain.PaymentReference{
			Gateway:       capture.Gateway,
			TransactionID: capture.TransactionID,
			PaymentID:     capture.PaymentID,
			CaptureID:     capture.ID,
		},
	}
	if !order.PaymentMethod.Valid() {
		err := fmt.Errorf("%w: unsupported payment method %q", ErrCheckoutInvalidInput, capture.Gateway)
		return VerifyPaymentResult{}, s.needsAttention(ctx, capture, err, nil)
	}
	totals, err := s.totals.Compute(details.Items, details.ShippingCost)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
		return VerifyPaymentResult{}, s.needsAttention(ctx, capture, err, nil)
	}
	totals.Apply(&order)
	expected, err := payments.ToMinorUnits(order.TotalAmount)
	if err != nil || capture.Amount != expected {
		err := fmt.Errorf("%w: paid %d %s, order total %s", ErrPaymentAmountMismatch, capture.Amount, capture.Currency, order.TotalAmount.StringFixed(2))
		return VerifyPaymentResult{}, s.needsAttention(ctx, capture, err, map[string]any{
			"paidAmount":     capture.Amount,
			"expectedAmount": expected,
			"currency":       capture.Currency,
		})
	}
	if details.ClientTotal != nil && !details.ClientTotal.Equal(order.TotalAmount) {
		s.logger(ctx, "checkout.total.mismatch", map[string]any{
			"captureId":   capture.ID,
			"clientTotal": details.ClientTotal.String(),
			"serverTotal": order.TotalAmount.String(),
		})
	}

	stored, err := s.allocator.Insert(ctx, order)
	if errors.Is(err, repositories.ErrOrderExists) {
		// A previous attempt stored the order but not the capture state.
		stored, err = s.orders.FindByID(ctx, order.ID)
	}
	if err != nil {
		capture.LastError = err.Error()
		s.saveCapture(ctx, capture)
		s.logger(ctx, "checkout.order.persist_failed", map[string]any{"captureId": capture.ID, "error": err})
		return VerifyPaymentResult{}, fmt.Errorf("%w: %w", ErrOrderPersistence, err)
	}

	capture.State = domain.CaptureStateCompleted
	capture.OrderID = stored.ID
	capture.OrderNumber = stored.OrderNumber
	capture.MissingField = ""
	capture.LastError = ""
	s.saveCapture(ctx, capture)

	if s.metrics != nil {
		s.metrics.RecordOrderCreated(ctx, capture.Gateway)
	}
	s.publish(ctx, events.TypeOrderCreated, stored.ID, map[string]any{
		"orderId":     stored.ID,
		"orderNumber": stored.OrderNumber,
		"userId":      stored.UserID,
		"total":       stored.TotalAmount.StringFixed(2),
	})
	s.logger(ctx, "checkout.order.created", map[string]any{
		"orderId":     stored.ID,
		"orderNumber": stored.OrderNumber,
		"gateway":     capture.Gateway,
	})
	return VerifyPaymentResult{OrderID: stored.ID, OrderNumber: stored.OrderNumber, CaptureID: capture.ID}, nil
}

// needsAttention parks the capture for an operator and announces it. The cause is returned so
// callers can pass it on.
func (s *checkoutService) needsAttention(ctx context.Context, capture domain.PaymentCapture, cause error, extra map[string]any) error {
	capture.State = domain.CaptureStateNeedsAttention
	capture.LastError = cause.Error()
	s.saveCapture(ctx, capture)
	data := map[string]any{
		"captureId":    capture.ID,
		"gateway":      capture.Gateway,
		"missingField": capture.MissingField,
		"reason":       capture.LastError,
	}
	for k, v := range extra {
		data[k] = v
	}
	s.publish(ctx, events.TypePaymentReconciliationRequired, capture.ID, data)
	s.logger(ctx, "checkout.capture.needs_attention", map[string]any{"captureId": capture.ID, "error": cause})
	return cause
}

// saveCapture records capture progress. Failures are logged; the order outcome stands on its own.
func (s *checkoutService) saveCapture(ctx context.Context, capture domain.PaymentCapture) {
	if err := s.captures.Update(ctx, capture); err != nil {
		s.logger(ctx, "checkout.capture.update_failed", map[string]any{"captureId": capture.ID, "error": err})
	}
}

func (s *checkoutService) publish(ctx context.Context, eventType, subject string, data map[string]any) {
	if s.events == nil {
		return
	}
	event := events.Event{ID: s.newID(), Type: eventType, Subject: subject, OccurredAt: s.now(), Data: data}
	if err := s.events.Publish(ctx, event); err != nil {
		s.logger(ctx, "checkout.event.publish_failed", map[string]any{"eventType": eventType, "error": err})
	}
}

func (s *checkoutService) recordOutcome(ctx context.Context, gateway, outcome string) {
	if s.metrics != nil {
		s.metrics.RecordVerificationOutcome(ctx, gateway, outcome)
	}
}

// ListCaptures returns captures newest first.
func (s *checkoutService) ListCaptures(ctx context.Context, filter CaptureListFilter) (domain.CursorPage[PaymentCapture], error) {
	for _, state := range filter.States {
		if !state.Valid() {
			return domain.CursorPage[PaymentCapture]{}, fmt.Errorf("%w: unknown capture state %q", ErrCheckoutInvalidInput, state)
		}
	}
	return s.captures.List(ctx, repositories.CaptureListFilter{
		States:     filter.States,
		Pagination: filter.Pagination,
	})
}

// RetryCapture re-runs order creation, replacing the stored order details when amended ones are
// supplied. A completed capture is returned as is.
func (s *checkoutService) RetryCapture(ctx context.Context, cmd RetryCaptureCommand) (VerifyPaymentResult, error) {
	id := strings.TrimSpace(cmd.CaptureID)
	if id == "" {
		return VerifyPaymentResult{}, fmt.Errorf("%w: capture id is required", ErrCheckoutInvalidInput)
	}
	capture, err := s.captures.FindByID(ctx, id)
	if err != nil {
		if repositories.IsNotFound(err) {
			return VerifyPaymentResult{}, ErrCaptureNotFound
		}
		return VerifyPaymentResult{}, err
	}
	if capture.State == domain.CaptureStateCompleted {
		return VerifyPaymentResult{OrderID: capture.OrderID, OrderNumber: capture.OrderNumber, CaptureID: capture.ID, Replayed: true}, nil
	}
	if cmd.Details != nil {
		capture.Details = *cmd.Details
	}
	return s.complete(ctx, capture)
}

// SweepCaptures completes captures still in the captured state after the grace period. Captures
// needing attention are left for an operator.
func (s *checkoutService) SweepCaptures(ctx context.Context) (SweepResult, error) {
	cutoff := s.now().Add(-s.gracePeriod)
	page, err := s.captures.List(ctx, repositories.CaptureListFilter{
		States:        []domain.CaptureState{domain.CaptureStateCaptured},
		CreatedBefore: &cutoff,
		Pagination:    domain.Pagination{PageSize: s.sweepBatch},
	})
	if err != nil {
		return SweepResult{}, err
	}

	var result SweepResult
	for _, capture := range page.Items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Examined++
		_, err := s.complete(ctx, capture)
		var incomplete *domain.IncompleteOrderDetailsError
		switch {
		case err == nil:
			result.Completed++
		case errors.As(err, &incomplete), errors.Is(err, ErrPaymentAmountMismatch), errors.Is(err, ErrCheckoutInvalidInput):
			result.NeedsAttention++
		default:
			result.Failed++
		}
	}
	s.logger(ctx, "checkout.sweep.finished", map[string]any{
		"examined":       result.Examined,
		"completed":      result.Completed,
		"needsAttention": result.NeedsAttention,
		"failed":         result.Failed,
	})
	return result, nil
}
