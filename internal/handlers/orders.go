package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

// OrderHandlers exposes order history for customers and order management for admins.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints. Status updates require the admin role.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	user, admin := r, r
	if h.authn != nil {
		user = r.With(h.authn.RequireAuth())
		admin = r.With(h.authn.RequireAuth(auth.RoleAdmin))
	}
	user.Get("/", h.listOwnOrders)
	user.Get("/{orderID}", h.getOwnOrder)
	admin.Put("/{orderID}/status", h.updateStatus)
}

// AdminRoutes registers the /admin/orders endpoints.
func (h *OrderHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	admin := r
	if h.authn != nil {
		admin = r.With(h.authn.RequireAuth(auth.RoleAdmin))
	}
	admin.Get("/orders", h.adminListOrders)
	admin.Get("/orders/dashboard/stats", h.dashboardStats)
	admin.Get("/orders/{orderID}", h.adminGetOrder)
	admin.Put("/orders/{orderID}/status", h.updateStatus)
}

type orderListResponse struct {
	Orders        []orderResponse `json:"orders"`
	NextPageToken string          `json:"nextPageToken,omitempty"`
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

type updateStatusResponse struct {
	OrderID        string `json:"orderId"`
	OrderNumber    string `json:"orderNumber"`
	Status         string `json:"status"`
	TrackingNumber string `json:"trackingNumber,omitempty"`
}

type recentOrderResponse struct {
	ID          string `json:"id"`
	OrderNumber string `json:"orderNumber"`
	TotalAmount string `json:"totalAmount"`
	Status      string `json:"status"`
	CreatedAt   string `json:"createdAt"`
}

type dashboardStatsResponse struct {
	TotalOrders   int                   `json:"totalOrders"`
	TotalRevenue  string                `json:"totalRevenue"`
	RecentOrders  []recentOrderResponse `json:"recentOrders"`
	TotalUsers    int                   `json:"totalUsers"`
	TotalProducts int                   `json:"totalProducts"`
}

func (h *OrderHandlers) listOwnOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	orders, err := h.orders.ListOwn(ctx, identity.UID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	resp := make([]orderResponse, 0, len(orders))
	for _, order := range orders {
		resp = append(resp, newOrderResponse(order))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) getOwnOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	order, err := h.orders.GetOwn(ctx, identity.UID, strings.TrimSpace(chi.URLParam(r, "orderID")))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderResponse(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}

	var req updateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", "status is required"))
		return
	}

	order, err := h.orders.UpdateStatus(ctx, services.UpdateOrderStatusCommand{
		OrderID: strings.TrimSpace(chi.URLParam(r, "orderID")),
		Status:  req.Status,
		ActorID: identity.UID,
	})
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, updateStatusResponse{
		OrderID:        order.ID,
		OrderNumber:    order.OrderNumber,
		Status:         string(order.Status),
		TrackingNumber: order.TrackingNumber,
	})
}

func (h *OrderHandlers) adminListOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}

	pager, err := parsePagination(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_request", err.Error()))
		return
	}
	filter := services.OrderListFilter{Pagination: pager}
	for _, raw := range parseFilterValues(r.URL.Query()["status"]) {
		filter.Status = append(filter.Status, domain.OrderStatus(raw))
	}

	page, err := h.orders.List(ctx, filter)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	resp := orderListResponse{
		Orders:        make([]orderResponse, 0, len(page.Items)),
		NextPageToken: page.NextPageToken,
	}
	for _, order := range page.Items {
		resp.Orders = append(resp.Orders, newOrderResponse(order))
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func (h *OrderHandlers) adminGetOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	order, err := h.orders.Get(ctx, strings.TrimSpace(chi.URLParam(r, "orderID")))
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newOrderResponse(order))
}

func (h *OrderHandlers) dashboardStats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		serviceUnavailable(ctx, w, "order")
		return
	}
	stats, err := h.orders.DashboardStats(ctx)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}
	resp := dashboardStatsResponse{
		TotalOrders:   stats.TotalOrders,
		TotalRevenue:  stats.TotalRevenue.StringFixed(2),
		RecentOrders:  make([]recentOrderResponse, 0, len(stats.RecentOrders)),
		TotalUsers:    stats.TotalUsers,
		TotalProducts: stats.TotalProducts,
	}
	for _, order := range stats.RecentOrders {
		resp.RecentOrders = append(resp.RecentOrders, recentOrderResponse{
			ID:          order.ID,
			OrderNumber: order.OrderNumber,
			TotalAmount: order.TotalAmount.StringFixed(2),
			Status:      string(order.Status),
			CreatedAt:   formatTime(order.CreatedAt),
		})
	}
	writeJSONResponse(w, http.StatusOK, resp)
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_status", err.Error()))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

// parseFilterValues flattens repeated and comma separated query values.
func parseFilterValues(values []string) []string {
	var out []string
	for _, value := range values {
		for _, part := range strings.Split(value, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
