package handlers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

// ReconciliationHandlers lets admins inspect verified payments whose order is not yet stored and
// retry them.
type ReconciliationHandlers struct {
	authn    *auth.Authenticator
	checkout services.CheckoutService
}

// NewReconciliationHandlers constructs reconciliation handlers.
func NewReconciliationHandlers(authn *auth.Authenticator, checkout services.CheckoutService) *ReconciliationHandlers {
	return &ReconciliationHandlers{authn: authn, checkout: checkout}
}

// AdminRoutes registers the /admin/reconciliation endpoints.
func (h *ReconciliationHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	admin := r
	if h.authn != nil {
		admin = r.With(h.authn.RequireAuth(auth.RoleAdmin))
	}
	admin.Get("/reconciliation", h.listCaptures)
	admin.Post("/reconciliation/{captureID}/retry", h.retryCapture)
}

type captureResponse struct {
	ID            string `json:"id"`
	UserID        string `json:"userId"`
	Gateway       string `json:"gateway"`
	TransactionID string `json:"transactionId"`
	PaymentID     string `json:"paymentId"`
	State         string `json:"state"`
	OrderID       string `json:"orderId,omitempty"`
	OrderNumber   string `json:"orderNumber,omitempty"`
	MissingField  string `json:"missingField,omitempty"`
	LastError     string `json:"lastError,omitempty"`
	Attempts      int    `json:"attempts"`
	CreatedAt     string `json:"createdAt"`
	UpdatedAt     string `json:"updatedAt"`
}

func newCaptureResponse(c services.PaymentCapture) captureResponse {
	return captureResponse{
		ID:            c.ID,
		UserID:        c.UserID,
		Gateway:       c.Gateway,
		TransactionID: c.TransactionID,
		PaymentID:     c.PaymentID,
		State:         string(c.State),
		OrderID:       c.OrderID,
		OrderNumber:   c.OrderNumber,
		MissingField:  c.MissingField,
		LastError:     c.LastError,
		Attempts:      c.Attempts,
		CreatedAt:     formatTime(c.CreatedAt),
		UpdatedAt:     formatTime(c.UpdatedAt),
	}
}

type captureListResponse struct {
	Captures      []captureResponse `json:"captures"`
	NextPageToken string            `json:"nextPageToken,omitempty"`
}

type retryCaptureRequest struct {
	OrderDetails *orderDetailsPayload `json:"orderDetails"`
}

type retryCaptureResponse struct {
	Success     bool   `json:"success"`
	CaptureID   string `json:"captureId"`
	OrderID     string `json:"orderId"`
	OrderNumber string `json:"orderNumber"`
	Replayed    bool   `json:"replayed"`
}

func (h *ReconciliationHandlers) listCaptures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()))
		return
	}
	filter := services.CaptureListFilter{Pagination: pager}
	for _, raw := range parseFilterValues(r.URL.Query()["state"]) {
		filter.States = append(filter.States, domain.CaptureState(strings.ToLower(raw)))
	}

	page, err := h.checkout.ListCaptures(ctx, filter)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	resp := captureListResponse{
		Captures:      make([]captureResponse, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, capture := range page.Items {
		resp.Captures = append(resp.Captures, newCaptureResponse(capture))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *ReconciliationHandlers) retryCapture(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	var req retryCaptureRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}
	cmd := services.RetryCaptureCommand{CaptureID: strings.TrimSpace(chi.URLParam(r, "captureID"))}
	if req.OrderDetails != nil {
		details := req.OrderDetails.toDomain()
		cmd.Details = &details
	}

	result, err := h.checkout.RetryCapture(ctx, cmd)
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, retryCaptureResponse{
		Success:     true,
		CaptureID:   result.CaptureID,
		OrderID:     result.OrderID,
		OrderNumber: result.OrderNumber,
		Replayed:    result.Replayed,
	})
}
