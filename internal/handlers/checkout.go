package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/payments"
	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

// CheckoutHandlers exposes payment intent creation and payment verification for signed-in users.
type CheckoutHandlers struct {
	authn       *auth.Authenticator
	checkout    services.CheckoutService
	idempotency func(http.Handler) http.Handler
}

// CheckoutOption customises checkout handlers.
type CheckoutOption func(*CheckoutHandlers)

// WithCheckoutIdempotency guards the mutating checkout routes. The middleware runs after
// authentication so keys are scoped to the caller.
func WithCheckoutIdempotency(mw func(http.Handler) http.Handler) CheckoutOption {
	return func(h *CheckoutHandlers) {
		h.idempotency = mw
	}
}

// NewCheckoutHandlers constructs checkout handlers guarded by bearer authentication.
func NewCheckoutHandlers(authn *auth.Authenticator, checkout services.CheckoutService, opts ...CheckoutOption) *CheckoutHandlers {
	h := &CheckoutHandlers{
		authn:    authn,
		checkout: checkout,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(h)
		}
	}
	return h
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	group := r
	if h.authn != nil {
		group = group.With(h.authn.RequireAuth())
	}
	if h.idempotency != nil {
		group = group.With(h.idempotency)
	}
	group.Post("/create-order", h.createOrder)
	group.Post("/verify-payment", h.verifyPayment)
}

type createOrderRequest struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
	Gateway  string          `json:"gateway"`
}

type paymentIntentResponse struct {
	ID           string `json:"id"`
	Gateway      string `json:"gateway"`
	Amount       int64  `json:"amount"`
	Currency     string `json:"currency"`
	Receipt      string `json:"receipt"`
	Status       string `json:"status"`
	ClientSecret string `json:"clientSecret,omitempty"`
}

type orderDetailsPayload struct {
	CustomerName    string             `json:"customerName"`
	CustomerEmail   string             `json:"customerEmail"`
	CustomerPhone   string             `json:"customerPhone"`
	Items           []orderItemPayload `json:"items"`
	ShippingAddress addressPayload     `json:"shippingAddress"`
	ShippingCost    decimal.Decimal    `json:"shippingCost"`
	TotalAmount     *decimal.Decimal   `json:"totalAmount"`
}

func (p *orderDetailsPayload) toDomain() domain.OrderDetails {
	if p == nil {
		return domain.OrderDetails{}
	}
	items := make([]domain.OrderItem, 0, len(p.Items))
	for _, item := range p.Items {
		items = append(items, domain.OrderItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price,
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}
	return domain.OrderDetails{
		CustomerName:    p.CustomerName,
		CustomerEmail:   p.CustomerEmail,
		CustomerPhone:   p.CustomerPhone,
		Items:           items,
		ShippingAddress: p.ShippingAddress.toDomain(),
		ShippingCost:    p.ShippingCost,
		ClientTotal:     p.TotalAmount,
	}
}

// verifyPaymentRequest accepts the generic field names as well as the names Razorpay Checkout
// hands to the browser.
type verifyPaymentRequest struct {
	TransactionID     string               `json:"transactionId"`
	PaymentID         string               `json:"paymentId"`
	Signature         string               `json:"signature"`
	RazorpayOrderID   string               `json:"razorpay_order_id"`
	RazorpayPaymentID string               `json:"razorpay_payment_id"`
	RazorpaySignature string               `json:"razorpay_signature"`
	Gateway           string               `json:"gateway"`
	OrderDetails      *orderDetailsPayload `json:"orderDetails"`
}

func (req verifyPaymentRequest) command(userID string) services.VerifyPaymentCommand {
	cmd := services.VerifyPaymentCommand{
		UserID:        userID,
		Gateway:       strings.TrimSpace(req.Gateway),
		TransactionID: firstNonEmpty(req.TransactionID, req.RazorpayOrderID),
		PaymentID:     firstNonEmpty(req.PaymentID, req.RazorpayPaymentID),
		Signature:     firstNonEmpty(req.Signature, req.RazorpaySignature),
		Details:       req.OrderDetails.toDomain(),
	}
	if cmd.Gateway == "" && req.RazorpayOrderID != "" {
		cmd.Gateway = payments.GatewayRazorpay
	}
	return cmd
}

type verifyPaymentResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
}

func (h *CheckoutHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req createOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}

	intent, err := h.checkout.CreatePaymentIntent(ctx, services.CreatePaymentIntentCommand{
		UserID:   identity.UID,
		Amount:   req.Amount,
		Currency: req.Currency,
		Gateway:  req.Gateway,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, paymentIntentResponse{
		ID:           intent.ID,
		Gateway:      intent.Gateway,
		Amount:       intent.Amount,
		Currency:     intent.Currency,
		Receipt:      intent.Receipt,
		Status:       intent.Status,
		ClientSecret: intent.ClientSecret,
	})
}

func (h *CheckoutHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req verifyPaymentRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.checkout.VerifyPayment(ctx, req.command(identity.UID))
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, verifyPaymentResponse{
		Success:     true,
		Message:     "Payment verified successfully",
		OrderID:     result.OrderID,
		OrderNumber: result.OrderNumber,
	})
}

// writeCheckoutError maps checkout failures to the {success:false, message} envelope. Signature
// failures stay generic.
func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	failed := map[string]any{"success": false}
	var incomplete *domain.IncompleteOrderDetailsError
	switch {
	case errors.Is(err, services.ErrPaymentVerificationFailed):
		httpx.WriteError(ctx, w, httpx.BadRequest("payment_verification_failed", "Payment verification failed").WithDetails(failed))
	case errors.As(err, &incomplete):
		httpx.WriteError(ctx, w, httpx.BadRequest("incomplete_order_details", "Missing required order field: "+incomplete.Field).
			WithDetails(map[string]any{"success": false, "field": incomplete.Field}))
	case errors.Is(err, services.ErrPaymentAmountMismatch):
		httpx.WriteError(ctx, w, httpx.NewError("payment_amount_mismatch", "Paid amount does not match the order total", http.StatusConflict).
			WithDetails(map[string]any{"success": false, "details": "the payment is recorded and will be reviewed"}))
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()).WithDetails(failed))
	case errors.Is(err, services.ErrCaptureNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("capture_not_found", "payment capture not found", http.StatusNotFound).WithDetails(failed))
	case errors.Is(err, services.ErrGenerationExhausted):
		httpx.WriteError(ctx, w, httpx.NewError("order_number_unavailable", "Could not allocate an order number, please retry", http.StatusServiceUnavailable).
			WithDetails(map[string]any{"success": false, "retryable": true}))
	case errors.Is(err, services.ErrOrderPersistence):
		httpx.WriteError(ctx, w, httpx.NewError("order_persistence_failed", "Payment verified but the order could not be saved", http.StatusInternalServerError).
			WithDetails(map[string]any{"success": false, "details": "the payment is recorded and the order will be completed automatically"}))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "payment gateway unavailable", http.StatusServiceUnavailable).WithDetails(failed))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError).WithDetails(failed))
	}
}

// firstNonEmpty returns the first set value verbatim. Confirmation fields are signed, so they are
// never trimmed here.
func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
