package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/services"
)

func newOrderRouter(svc services.OrderService) chi.Router {
	h := NewOrderHandlers(nil, svc)
	router := chi.NewRouter()
	router.Route("/orders", h.Routes)
	router.Route("/admin", h.AdminRoutes)
	return router
}

func sampleOrder() services.Order {
	created := time.Date(2026, 3, 4, 10, 0, 0, 0, time.UTC)
	return services.Order{
		ID:          "cap_1",
		OrderNumber: "ORD202603041234",
		UserID:      "usr_1",
		Customer:    domain.Customer{Name: "Ada", Email: "ada@example.com", Phone: "N/A"},
		Items: []domain.OrderItem{{
			ProductID: "prod_1", Name: "Mug", Price: decimal.RequireFromString("29.99"), Quantity: 2,
		}},
		Subtotal:      decimal.RequireFromString("59.98"),
		ShippingCost:  decimal.NewFromInt(5),
		Tax:           decimal.RequireFromString("4.80"),
		TotalAmount:   decimal.RequireFromString("69.78"),
		Status:        domain.OrderStatusPending,
		PaymentMethod: domain.PaymentMethodRazorpay,
		PaymentStatus: domain.PaymentStatusCompleted,
		CreatedAt:     created,
		UpdatedAt:     created,
	}
}

func TestOrderHandlersListOwn(t *testing.T) {
	var gotUser string
	router := newOrderRouter(&stubOrderService{
		listOwnFunc: func(_ context.Context, userID string) ([]services.Order, error) {
			gotUser = userID
			return []services.Order{sampleOrder()}, nil
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(newRequest(http.MethodGet, "/orders", ""), "usr_1"))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp []map[string]any
	decodeResponse(t, rr, &resp)
	require.Len(t, resp, 1)
	assert.Equal(t, "usr_1", gotUser)
	assert.Equal(t, "ORD202603041234", resp[0]["orderNumber"])
	assert.Equal(t, 69.78, resp[0]["totalAmount"])
	assert.Equal(t, "$69.78", resp[0]["formattedTotal"])
	assert.Equal(t, "completed", resp[0]["paymentStatus"])
}

func TestOrderHandlersGetOwnNotFound(t *testing.T) {
	router := newOrderRouter(&stubOrderService{
		getOwnFunc: func(_ context.Context, userID, orderID string) (services.Order, error) {
			assert.Equal(t, "usr_2", userID)
			assert.Equal(t, "cap_1", orderID)
			return services.Order{}, services.ErrOrderNotFound
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asUser(newRequest(http.MethodGet, "/orders/cap_1", ""), "usr_2"))

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestOrderHandlersUpdateStatus(t *testing.T) {
	var captured services.UpdateOrderStatusCommand
	router := newOrderRouter(&stubOrderService{
		updateFunc: func(_ context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
			captured = cmd
			order := sampleOrder()
			order.Status = domain.OrderStatusShipped
			order.TrackingNumber = "TRK12345678"
			return order, nil
		},
	})

	for _, path := range []string{"/orders/cap_1/status", "/admin/orders/cap_1/status"} {
		rr := httptest.NewRecorder()
		router.ServeHTTP(rr, asAdmin(newRequest(http.MethodPut, path, `{"status":"shipped"}`), "usr_admin"))

		require.Equal(t, http.StatusOK, rr.Code, path)
		var resp updateStatusResponse
		decodeResponse(t, rr, &resp)
		assert.Equal(t, "cap_1", resp.OrderID)
		assert.Equal(t, "shipped", resp.Status)
		assert.Equal(t, "TRK12345678", resp.TrackingNumber)
		assert.Equal(t, "usr_admin", captured.ActorID)
	}
}

func TestOrderHandlersUpdateStatusErrors(t *testing.T) {
	cases := []struct {
		name   string
		body   string
		err    error
		status int
	}{
		{"missing status", `{}`, nil, http.StatusBadRequest},
		{"unknown status", `{"status":"lost"}`, fmt.Errorf("%w: unknown status", services.ErrOrderInvalidInput), http.StatusBadRequest},
		{"backwards", `{"status":"pending"}`, fmt.Errorf("%w: delivered to pending", services.ErrOrderInvalidTransition), http.StatusConflict},
		{"missing order", `{"status":"shipped"}`, services.ErrOrderNotFound, http.StatusNotFound},
		{"malformed", `{`, nil, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newOrderRouter(&stubOrderService{
				updateFunc: func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error) {
					return services.Order{}, tc.err
				},
			})
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, asAdmin(newRequest(http.MethodPut, "/orders/cap_1/status", tc.body), "usr_admin"))
			assert.Equal(t, tc.status, rr.Code)
		})
	}
}

func TestOrderHandlersAdminListParsesFilters(t *testing.T) {
	var captured services.OrderListFilter
	router := newOrderRouter(&stubOrderService{
		listFunc: func(_ context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
			captured = filter
			return domain.CursorPage[services.Order]{Items: []services.Order{sampleOrder()}, NextPageToken: "next"}, nil
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asAdmin(newRequest(http.MethodGet, "/admin/orders?status=pending,shipped&page_size=500&page_token=abc", ""), "usr_admin"))

	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, []domain.OrderStatus{domain.OrderStatusPending, domain.OrderStatusShipped}, captured.Status)
	assert.Equal(t, maxPageSize, captured.Pagination.PageSize)
	assert.Equal(t, "abc", captured.Pagination.PageToken)

	var resp orderListResponse
	decodeResponse(t, rr, &resp)
	assert.Len(t, resp.Orders, 1)
	assert.Equal(t, "next", resp.NextPageToken)
}

func TestOrderHandlersAdminListRejectsBadPageSize(t *testing.T) {
	router := newOrderRouter(&stubOrderService{})
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asAdmin(newRequest(http.MethodGet, "/admin/orders?page_size=abc", ""), "usr_admin"))
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestOrderHandlersDashboardStats(t *testing.T) {
	router := newOrderRouter(&stubOrderService{
		statsFunc: func(context.Context) (services.DashboardStats, error) {
			return services.DashboardStats{
				TotalOrders:   3,
				TotalRevenue:  decimal.RequireFromString("139.56"),
				RecentOrders:  []services.Order{sampleOrder()},
				TotalUsers:    2,
				TotalProducts: 7,
			}, nil
		},
	})

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, asAdmin(newRequest(http.MethodGet, "/admin/orders/dashboard/stats", ""), "usr_admin"))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp dashboardStatsResponse
	decodeResponse(t, rr, &resp)
	assert.Equal(t, 3, resp.TotalOrders)
	assert.Equal(t, "139.56", resp.TotalRevenue)
	require.Len(t, resp.RecentOrders, 1)
	assert.Equal(t, "69.78", resp.RecentOrders[0].TotalAmount)
	assert.Equal(t, 7, resp.TotalProducts)
}
