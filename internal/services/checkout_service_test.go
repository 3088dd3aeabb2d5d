package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/payments"
	"github.com/brightcart/api/internal/platform/events"
	"github.com/brightcart/api/internal/repositories"
	"github.com/brightcart/api/internal/repositories/memory"
)

const (
	testRazorpaySecret = "rzp_test_secret"
	// checkoutTotalMinor is the total of checkoutDetails with 8% tax, in paise.
	checkoutTotalMinor = 6978
)

type fakeRazorpayOrders struct {
	mu      sync.Mutex
	payload map[string]interface{}
	amount  int64
}

func (f *fakeRazorpayOrders) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.payload = data
	if amount, ok := data["amount"].(int64); ok {
		f.amount = amount
	}
	return map[string]interface{}{
		"id":       "order_rzp_1",
		"amount":   data["amount"],
		"currency": data["currency"],
		"receipt":  data["receipt"],
		"status":   "created",
	}, nil
}

// Fetch reports the order as paid in full. Without a prior Create the fixture total is assumed.
func (f *fakeRazorpayOrders) Fetch(orderID string, _ map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	amount := f.amount
	if amount == 0 {
		amount = checkoutTotalMinor
	}
	return map[string]interface{}{
		"id":          orderID,
		"amount":      float64(amount),
		"amount_paid": float64(amount),
		"currency":    "INR",
		"status":      "paid",
	}, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.Event
}

func (p *recordingPublisher) Publish(_ context.Context, event events.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

type recordingMetrics struct {
	mu       sync.Mutex
	outcomes []string
	created  int
}

func (m *recordingMetrics) RecordVerificationOutcome(_ context.Context, _ string, outcome string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes = append(m.outcomes, outcome)
}

func (m *recordingMetrics) RecordOrderCreated(context.Context, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.created++
}

// failingOrderRepository fails inserts while fail is set.
type failingOrderRepository struct {
	repositories.OrderRepository
	mu   sync.Mutex
	fail bool
}

func (r *failingOrderRepository) setFail(v bool) {
	r.mu.Lock()
	r.fail = v
	r.mu.Unlock()
}

func (r *failingOrderRepository) Insert(ctx context.Context, order domain.Order) error {
	r.mu.Lock()
	fail := r.fail
	r.mu.Unlock()
	if fail {
		return repositories.NewStoreError(repositories.ErrorKindUnavailable, "orders offline")
	}
	return r.OrderRepository.Insert(ctx, order)
}

type checkoutFixture struct {
	service   CheckoutService
	orders    *failingOrderRepository
	captures  *memory.CaptureRepository
	rzpOrders *fakeRazorpayOrders
	events    *recordingPublisher
	metrics   *recordingMetrics
	now       time.Time
}

func newCheckoutFixture(t *testing.T) *checkoutFixture {
	t.Helper()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }

	rzpOrders := &fakeRazorpayOrders{}
	rzp, err := payments.NewRazorpayProvider(payments.RazorpayConfig{KeySecret: testRazorpaySecret, Orders: rzpOrders, Clock: clock})
	require.NoError(t, err)
	manager, err := payments.NewManager([]payments.Provider{rzp}, payments.WithDefaultProvider(payments.GatewayRazorpay))
	require.NoError(t, err)

	orders := &failingOrderRepository{OrderRepository: memory.NewOrderRepository()}
	captures := memory.NewCaptureRepository()
	captures.SetClock(clock)
	allocator, err := NewOrderNumberAllocator(OrderNumberAllocatorDeps{
		Orders:   orders,
		Counters: memory.NewCounterRepository(),
		Clock:    clock,
	})
	require.NoError(t, err)

	totals, err := domain.NewTotalsCalculator(decimal.RequireFromString("0.08"))
	require.NoError(t, err)
	publisher := &recordingPublisher{}
	metrics := &recordingMetrics{}

	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Payments:  manager,
		Captures:  captures,
		Orders:    orders,
		Allocator: allocator,
		Totals:    &totals,
		Events:    publisher,
		Metrics:   metrics,
		Clock:     clock,
	})
	require.NoError(t, err)

	return &checkoutFixture{
		service:   svc,
		orders:    orders,
		captures:  captures,
		rzpOrders: rzpOrders,
		events:    publisher,
		metrics:   metrics,
		now:       now,
	}
}

func checkoutDetails() OrderDetails {
	return OrderDetails{
		CustomerName:  "  Asha Rao ",
		CustomerEmail: "Asha@Example.com",
		Items: []OrderItem{{
			ProductID: "prod_1",
			Name:      "Walnut Desk Lamp",
			Price:     decimal.RequireFromString("29.99"),
			Quantity:  2,
			Image:     "/images/lamp.jpg",
		}},
		ShippingAddress: domain.Address{
			Street:  "12 MG Road",
			City:    "Bengaluru",
			State:   "KA",
			ZipCode: "560001",
			Country: "IN",
		},
		ShippingCost: decimal.RequireFromString("5"),
	}
}

func signedCommand(details OrderDetails) VerifyPaymentCommand {
	return VerifyPaymentCommand{
		UserID:        "user_1",
		Gateway:       payments.GatewayRazorpay,
		TransactionID: "order_rzp_1",
		PaymentID:     "pay_1",
		Signature:     payments.SignConfirmation(testRazorpaySecret, "order_rzp_1", "pay_1"),
		Details:       details,
	}
}

func TestCheckoutServiceCreatePaymentIntent(t *testing.T) {
	fx := newCheckoutFixture(t)

	intent, err := fx.service.CreatePaymentIntent(context.Background(), CreatePaymentIntentCommand{
		UserID: "user_1",
		Amount: decimal.RequireFromString("69.78"),
	})
	require.NoError(t, err)

	assert.Equal(t, "order_rzp_1", intent.ID)
	assert.Equal(t, payments.GatewayRazorpay, intent.Gateway)
	assert.Equal(t, int64(6978), intent.Amount)
	assert.Equal(t, "INR", intent.Currency)
	assert.True(t, strings.HasPrefix(intent.Receipt, "receipt_"), intent.Receipt)
	assert.Equal(t, int64(6978), fx.rzpOrders.payload["amount"])
}

func TestCheckoutServiceCreatePaymentIntentRejectsNonPositiveAmount(t *testing.T) {
	fx := newCheckoutFixture(t)

	for _, amount := range []string{"0", "-5", "0.001"} {
		_, err := fx.service.CreatePaymentIntent(context.Background(), CreatePaymentIntentCommand{
			UserID: "user_1",
			Amount: decimal.RequireFromString(amount),
		})
		assert.ErrorIs(t, err, ErrCheckoutInvalidInput, amount)
	}
	assert.Nil(t, fx.rzpOrders.payload)
}

func TestCheckoutServiceVerifyPaymentCreatesOrder(t *testing.T) {
	fx := newCheckoutFixture(t)
	ctx := context.Background()

	result, err := fx.service.VerifyPayment(ctx, signedCommand(checkoutDetails()))
	require.NoError(t, err)
	assert.False(t, result.Replayed)
	assert.Regexp(t, orderNumberFormat, result.OrderNumber)
	assert.True(t, strings.HasPrefix(result.OrderNumber, "ORD20260501"))
	assert.Equal(t, domain.CaptureIDFor(payments.GatewayRazorpay, "order_rzp_1", "pay_1"), result.OrderID)

	order, err := fx.orders.FindByID(ctx, result.OrderID)
	require.NoError(t, err)
	assert.Equal(t, "59.98", order.Subtotal.StringFixed(2))
	assert.Equal(t, "5.00", order.ShippingCost.StringFixed(2))
	assert.Equal(t, "4.80", order.Tax.StringFixed(2))
	assert.Equal(t, "69.78", order.TotalAmount.StringFixed(2))
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, domain.PaymentStatusCompleted, order.PaymentStatus)
	assert.Equal(t, domain.PaymentMethodRazorpay, order.PaymentMethod)
	assert.Equal(t, "Asha Rao", order.Customer.Name)
	assert.Equal(t, "asha@example.com", order.Customer.Email)
	assert.Equal(t, domain.DefaultCustomerPhone, order.Customer.Phone)
	assert.Equal(t, "pay_1", order.Payment.PaymentID)

	capture, err := fx.captures.FindByID(ctx, result.CaptureID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaptureStateCompleted, capture.State)
	assert.Equal(t, result.OrderNumber, capture.OrderNumber)
	assert.Equal(t, int64(checkoutTotalMinor), capture.Amount)
	assert.Equal(t, "INR", capture.Currency)

	assert.Equal(t, []string{events.TypeOrderCreated}, fx.events.types())
	assert.Equal(t, []string{"verified"}, fx.metrics.outcomes)
	assert.Equal(t, 1, fx.metrics.created)
}

func TestCheckoutServiceVerifyPaymentReplayReturnsSameOrder(t *testing.T) {
	fx := newCheckoutFixture(t)
	ctx := context.Background()

	first, err := fx.service.VerifyPayment(ctx, signedCommand(checkoutDetails()))
	require.NoError(t, err)
	second, err := fx.service.VerifyPayment(ctx, signedCommand(checkoutDetails()))
	require.NoError(t, err)

	assert.True(t, second.Replayed)
	assert.Equal(t, first.OrderNumber, second.OrderNumber)
	page, err := fx.orders.List(ctx, repositories.OrderListFilter{})
	require.NoError(t, err)
	assert.Len(t, page.Items, 1)
}

func TestCheckoutServiceVerifyPaymentReplayByAnotherUserFails(t *testing.T) {
	fx := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := fx.service.VerifyPayment(ctx, signedCommand(checkoutDetails()))
	require.NoError(t, err)

	cmd := signedCommand(checkoutDetails())
	cmd.UserID = "user_2"
	_, err = fx.service.VerifyPayment(ctx, cmd)
	assert.ErrorIs(t, err, ErrPaymentVerificationFailed)
}

func TestCheckoutServiceVerifyPaymentRejectsBadSignature(t *testing.T) {
	fx := newCheckoutFixture(t)
	ctx := context.Background()

	cmd := signedCommand(checkoutDetails())
	cmd.Signature = payments.SignConfirmation("wrong", "order_rzp_1", "pay_1")
	_, err := fx.service.VerifyPayment(ctx, cmd)
	require.ErrorIs(t, err, ErrPaymentVerificationFailed)

	orders, err := fx.orders.List(ctx, repositories.OrderListFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders.Items)
	captures, err := fx.captures.List(ctx, repositories.CaptureListFilter{})
	require.NoError(t, err)
	assert.Empty(t, captures.Items)
	assert.Empty(t, fx.events.types())
	assert.Equal(t, []string{"signature_mismatch"}, fx.metrics.outcomes)
}

func TestCheckoutServiceVerifyPaymentRequiresConfirmationFields(t *testing.T) {
	fx := newCheckoutFixture(t)

	for name, mutate := range map[string]func(*VerifyPaymentCommand){
		"blank payment id":  func(c *VerifyPaymentCommand) { c.PaymentID = "" },
		"missing signature": func(c *VerifyPaymentCommand) { c.Signature = "" },
	} {
		cmd := signedCommand(checkoutDetails())
		mutate(&cmd)
		_, err := fx.service.VerifyPayment(context.Background(), cmd)
		assert.ErrorIs(t, err, ErrCheckoutInvalidInput, name)
	}
}

func TestCheckoutServiceVerifyPaymentRejectsPaddedFields(t *testing.T) {
	fx := newCheckoutFixture(t)
	ctx := context.Background()

	for name, mutate := range map[string]func(*VerifyPaymentCommand){
		"transaction id": func(c *VerifyPaymentCommand) { c.TransactionID = " " + c.TransactionID },
		"payment id":     func(c *VerifyPaymentCommand) { c.PaymentID += "\n" },
		"signature":      func(c *VerifyPaymentCommand) { c.Signature += " " },
		"whitespace id":  func(c *VerifyPaymentCommand) { c.PaymentID = " " },
	} {
		cmd := signedCommand(checkoutDetails())
		mutate(&cmd)
		_, err := fx.service.VerifyPayment(ctx, cmd)
		assert.ErrorIs(t, err, ErrCheckoutInvalidInput, name)
	}

	captures, err := fx.captures.List(ctx, repositories.CaptureListFilter{})
	require.NoError(t, err)
	assert.Empty(t, captures.Items)
	assert.Empty(t, fx.metrics.outcomes, "padded confirmations must not reach the gateway")
}

func TestCheckoutServiceUnderpaidIntentNeedsAttention(t *testing.T) {
	fx := newCheckoutFixture(t)
	ctx := context.Background()

	_, err := fx.service.CreatePaymentIntent(ctx, CreatePaymentIntentCommand{UserID: "user_1", Amount: decimal.RequireFromString("0.01")})
	require.NoError(t, err)

	_, err = fx.service.VerifyPayment(ctx, signedCommand(checkoutDetails()))
	require.ErrorIs(t, err, ErrPaymentAmountMismatch)

	orders, err := fx.orders.List(ctx, repositories.OrderListFilter{})
	require.NoError(t, err)
	assert.Empty(t, orders.Items)

	captureID := domain.CaptureIDFor(payments.GatewayRazorpay, "order_rzp_1", "pay_1")
	capture, err := fx.captures.FindByID(ctx, captureID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaptureStateNeedsAttention, capture.State)
	assert.Equal(t, int64(1), capture.Amount)
	assert.Contains(t, capture.LastError, "69.78")
	assert.Empty(t, capture.MissingField)

	require.Len(t, fx.events.events, 1)
	event := fx.events.events[0]
	assert.Equal(t, events.TypePaymentReconciliationRequired, event.Type)
	assert.Equal(t, int64(1), event.Data["paidAmount"])
	assert.Equal(t, int64(checkoutTotalMinor), event.Data["expectedAmount"])

	// the replayed confirmation stays parked rather than creating the order
	_, err = fx.service.VerifyPayment(ctx, signedCommand(checkoutDetails()))
	assert.ErrorIs(t, err, ErrPaymentAmountMismatch)
	assert.Zero(t, fx.metrics.created)
}

func TestCheckoutServiceUnusableCaptureNeedsAttention(t *testing.T) {
	fx := newCheckoutFixture(t)
	ctx := context.Background()
	fx.captures.SetClock(func() time.Time { return fx.now.Add(-time.Hour) })

	captures := []domain.PaymentCapture{
		{
			ID:            "cap_unknown_gateway",
			UserID:        "user_1",
			Gateway:       "bitcoin",
			TransactionID: "txn_1",
			PaymentID:     "pay_1",
			Amount:        checkoutTotalMinor,
			Details:       checkoutDetails(),
			State:         domain.CaptureStateCaptured,
		},
		{
			ID:            "cap_unpriced",
			UserID:        "user_1",
			Gateway:       payments.GatewayRazorpay,
			TransactionID: "order_rzp_9",
			PaymentID:     "pay_9",
			Details:       checkoutDetails(),
			State:         domain.CaptureStateCaptured,
		},
	}
	for _, capture := range captures {
		_, created, err := fx.captures.Save(ctx, capture)
		require.NoError(t, err)
		require.True(t, created)
	}

	result, err := fx.service.SweepCaptures(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Examined: 2, NeedsAttention: 2}, result)

	for _, capture := range captures {
		stored, err := fx.captures.FindByID(ctx, capture.ID)
		require.NoError(t, err)
		assert.Equal(t, domain.CaptureStateNeedsAttention, stored.State, capture.ID)
		assert.NotEmpty(t, stored.LastError, capture.ID)
	}
	assert.Equal(t, []string{events.TypePaymentReconciliationRequired, events.TypePaymentReconciliationRequired}, fx.events.types())

	again, err := fx.service.SweepCaptures(ctx)
	require.NoError(t, err)
	assert.Zero(t, again.Examined, "parked captures are left for an operator")
}

func TestCheckoutServiceIncompleteDetailsNeedAttentionThenRetry(t *testing.T) {
	fx := newCheckoutFixture(t)
	ctx := context.Background()

	details := checkoutDetails()
	details.ShippingAddress.City = " "
	_, err := fx.service.VerifyPayment(ctx, signedCommand(details))

	var incomplete *domain.IncompleteOrderDetailsError
	require.ErrorAs(t, err, &incomplete)
	assert.Equal(t, "shippingAddress.city", incomplete.Field)

	captureID := domain.CaptureIDFor(payments.GatewayRazorpay, "order_rzp_1", "pay_1")
	capture, err := fx.captures.FindByID(ctx, captureID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaptureStateNeedsAttention, capture.State)
	assert.Equal(t, "shippingAddress.city", capture.MissingField)
	assert.Equal(t, []string{events.TypePaymentReconciliationRequired}, fx.events.types())

	listed, err := fx.service.ListCaptures(ctx, CaptureListFilter{States: []CaptureState{domain.CaptureStateNeedsAttention}})
	require.NoError(t, err)
	require.Len(t, listed.Items, 1)

	amended := checkoutDetails()
	result, err := fx.service.RetryCapture(ctx, RetryCaptureCommand{CaptureID: captureID, Details: &amended})
	require.NoError(t, err)
	assert.Equal(t, captureID, result.OrderID)

	capture, err = fx.captures.FindByID(ctx, captureID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaptureStateCompleted, capture.State)
	assert.Empty(t, capture.MissingField)
	assert.Equal(t, 2, capture.Attempts)
}

func TestCheckoutServiceRetryUnknownCapture(t *testing.T) {
	fx := newCheckoutFixture(t)

	_, err := fx.service.RetryCapture(context.Background(), RetryCaptureCommand{CaptureID: "cap_missing"})
	assert.ErrorIs(t, err, ErrCaptureNotFound)
}

func TestCheckoutServicePersistenceFailureKeepsCaptureForSweep(t *testing.T) {
	fx := newCheckoutFixture(t)
	ctx := context.Background()

	fx.orders.setFail(true)
	_, err := fx.service.VerifyPayment(ctx, signedCommand(checkoutDetails()))
	require.ErrorIs(t, err, ErrOrderPersistence)
	assert.True(t, repositories.IsUnavailable(err))

	captureID := domain.CaptureIDFor(payments.GatewayRazorpay, "order_rzp_1", "pay_1")
	capture, err := fx.captures.FindByID(ctx, captureID)
	require.NoError(t, err)
	assert.Equal(t, domain.CaptureStateCaptured, capture.State)
	assert.NotEmpty(t, capture.LastError)

	// still inside the grace period
	result, err := fx.service.SweepCaptures(ctx)
	require.NoError(t, err)
	assert.Zero(t, result.Examined)

	fx.orders.setFail(false)
	fx.captures.SetClock(func() time.Time { return fx.now.Add(-time.Hour) })
	stale := domain.PaymentCapture{
		ID:            domain.CaptureIDFor(payments.GatewayRazorpay, "order_rzp_2", "pay_2"),
		UserID:        "user_1",
		Gateway:       payments.GatewayRazorpay,
		TransactionID: "order_rzp_2",
		PaymentID:     "pay_2",
		Amount:        checkoutTotalMinor,
		Currency:      "INR",
		Details:       checkoutDetails(),
		State:         domain.CaptureStateCaptured,
	}
	_, created, err := fx.captures.Save(ctx, stale)
	require.NoError(t, err)
	require.True(t, created)

	result, err = fx.service.SweepCaptures(ctx)
	require.NoError(t, err)
	assert.Equal(t, SweepResult{Examined: 1, Completed: 1}, result)

	order, err := fx.orders.FindByID(ctx, stale.ID)
	require.NoError(t, err)
	assert.Equal(t, "69.78", order.TotalAmount.StringFixed(2))
}

func TestCheckoutServiceListCapturesRejectsUnknownState(t *testing.T) {
	fx := newCheckoutFixture(t)

	_, err := fx.service.ListCaptures(context.Background(), CaptureListFilter{States: []CaptureState{"lost"}})
	assert.ErrorIs(t, err, ErrCheckoutInvalidInput)
}

func TestNewCheckoutServiceValidatesDeps(t *testing.T) {
	_, err := NewCheckoutService(CheckoutServiceDeps{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "payment manager is required")
}
