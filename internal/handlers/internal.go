package handlers

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

const defaultCleanupLimit = 500

// IdempotencyCleaner removes expired idempotency records; both idempotency stores satisfy it.
type IdempotencyCleaner interface {
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// InternalHandlers serves maintenance endpoints called by Cloud Scheduler. The /internal group is
// expected to carry the OIDC middleware.
type InternalHandlers struct {
	checkout    services.CheckoutService
	idempotency IdempotencyCleaner
	now         func() time.Time
}

// NewInternalHandlers constructs maintenance handlers.
func NewInternalHandlers(checkout services.CheckoutService, idempotency IdempotencyCleaner, clock func() time.Time) *InternalHandlers {
	if clock == nil {
		clock = time.Now
	}
	return &InternalHandlers{
		checkout:    checkout,
		idempotency: idempotency,
		now:         func() time.Time { return clock().UTC() },
	}
}

// Routes registers the /internal endpoints.
func (h *InternalHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/reconciliation/sweep", h.sweepCaptures)
	r.Post("/idempotency/cleanup", h.cleanupIdempotency)
}

type sweepResponse struct {
	Examined       int `json:"examined"`
	Completed      int `json:"completed"`
	NeedsAttention int `json:"needsAttention"`
	Failed         int `json:"failed"`
}

func (h *InternalHandlers) sweepCaptures(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	result, err := h.checkout.SweepCaptures(ctx)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("sweep_failed", "reconciliation sweep failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, sweepResponse{
		Examined:       result.Examined,
		Completed:      result.Completed,
		NeedsAttention: result.NeedsAttention,
		Failed:         result.Failed,
	})
}

func (h *InternalHandlers) cleanupIdempotency(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.idempotency == nil {
		serviceUnavailable(ctx, w, "idempotency")
		return
	}
	limit := defaultCleanupLimit
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "limit must be a positive integer"))
			return
		}
		limit = n
	}
	removed, err := h.idempotency.CleanupExpired(ctx, h.now(), limit)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("cleanup_failed", "idempotency cleanup failed", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]int{"removed": removed})
}
