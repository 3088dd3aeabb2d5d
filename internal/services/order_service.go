package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/events"
	"github.com/brightcart/api/internal/repositories"
)

const (
	defaultRecentOrders  = 5
	ownOrdersPageSize    = 100
	maxAdminOrdersPage   = 100
	defaultAdminPageSize = 20
)

var (
	// ErrOrderNotFound is returned when the order does not exist or belongs to another account.
	ErrOrderNotFound = errors.New("order: not found")
	// ErrOrderInvalidInput indicates a malformed order request.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderInvalidTransition indicates a status change the lifecycle forbids.
	ErrOrderInvalidTransition = errors.New("order: invalid status transition")
)

// OrderServiceDeps wires the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Accounts     repositories.AccountRepository
	Products     repositories.ProductRepository
	Events       EventPublisher
	RecentOrders int
	Clock        func() time.Time
	Logger       Logger
	IDGenerator  func() string
}

type orderService struct {
	orders   repositories.OrderRepository
	accounts repositories.AccountRepository
	products repositories.ProductRepository
	events   EventPublisher
	recent   int
	now      func() time.Time
	logger   Logger
	newID    func() string
}

// NewOrderService constructs an OrderService.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
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
	recent := deps.RecentOrders
	if recent <= 0 {
		recent = defaultRecentOrders
	}
	return &orderService{
		orders:   deps.Orders,
		accounts: deps.Accounts,
		products: deps.Products,
		events:   deps.Events,
		recent:   recent,
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
		newID:    idGen,
	}, nil
}

// ListOwn returns every order placed by the user, newest first.
func (s *orderService) ListOwn(ctx context.Context, userID string) ([]Order, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, fmt.Errorf("%w: user is required", ErrOrderInvalidInput)
	}
	var (
		out   []Order
		token string
	)
	for {
		page, err := s.orders.List(ctx, repositories.OrderListFilter{
			UserID:     userID,
			Pagination: domain.Pagination{PageSize: ownOrdersPageSize, PageToken: token},
		})
		if err != nil {
			return nil, err
		}
		out = append(out, page.Items...)
		if page.NextPageToken == "" {
			return out, nil
		}
		token = page.NextPageToken
	}
}

// GetOwn returns the order when it belongs to the user.
func (s *orderService) GetOwn(ctx context.Context, userID, orderID string) (Order, error) {
	order, err := s.Get(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	if order.UserID != strings.TrimSpace(userID) {
		return Order{}, ErrOrderNotFound
	}
	return order, nil
}

// List returns a page of orders across all accounts.
func (s *orderService) List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error) {
	for _, status := range filter.Status {
		if !status.Valid() {
			return domain.CursorPage[Order]{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, status)
		}
	}
	pager := filter.Pagination
	switch {
	case pager.PageSize <= 0:
		pager.PageSize = defaultAdminPageSize
	case pager.PageSize > maxAdminOrdersPage:
		pager.PageSize = maxAdminOrdersPage
	}
	return s.orders.List(ctx, repositories.OrderListFilter{Status: filter.Status, Pagination: pager})
}

// Get returns an order by ID.
func (s *orderService) Get(ctx context.Context, orderID string) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("%w: order id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Order{}, ErrOrderNotFound
		}
		return Order{}, err
	}
	return order, nil
}

// UpdateStatus applies a forward-only status change. Setting the current status again is a no-op.
func (s *orderService) UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error) {
	next, err := domain.ParseOrderStatus(cmd.Status)
	if err != nil {
		return Order{}, fmt.Errorf("%w: unknown status %q", ErrOrderInvalidInput, cmd.Status)
	}
	order, err := s.Get(ctx, cmd.OrderID)
	if err != nil {
		return Order{}, err
	}

	previous := order.Status
	now := s.now()
	changed, err := order.ApplyStatus(next, now)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidTransition) {
			return Order{}, fmt.Errorf("%w: %s to %s", ErrOrderInvalidTransition, previous, next)
		}
		return Order{}, fmt.Errorf("%w: %v", ErrOrderInvalidInput, err)
	}
	if !changed {
		return order, nil
	}

	order.UpdatedAt = now
	if err := s.orders.Update(ctx, order, previous); err != nil {
		if repositories.IsNotFound(err) {
			return Order{}, ErrOrderNotFound
		}
		if errors.Is(err, repositories.ErrOrderStatusChanged) {
			return Order{}, fmt.Errorf("%w: %s changed before %s could be applied", ErrOrderInvalidTransition, previous, next)
		}
		return Order{}, err
	}

	s.logger(ctx, "order.status.changed", map[string]any{
		"orderId": order.ID,
		"from":    string(previous),
		"to":      string(next),
		"actorId": cmd.ActorID,
	})
	if s.events != nil {
		event := events.Event{
			ID:         s.newID(),
			Type:       events.TypeOrderStatusChanged,
			Subject:    order.ID,
			OccurredAt: now,
			Data: map[string]any{
				"orderId":        order.ID,
				"orderNumber":    order.OrderNumber,
				"from":           string(previous),
				"to":             string(next),
				"trackingNumber": order.TrackingNumber,
			},
		}
		if err := s.events.Publish(ctx, event); err != nil {
			s.logger(ctx, "order.event.publish_failed", map[string]any{"orderId": order.ID, "error": err})
		}
	}
	return order, nil
}

// DashboardStats aggregates order, revenue, user and product counts.
func (s *orderService) DashboardStats(ctx context.Context) (DashboardStats, error) {
	summary, err := s.orders.Summarize(ctx, s.recent)
	if err != nil {
		return DashboardStats{}, err
	}
	stats := DashboardStats{
		TotalOrders:  summary.TotalOrders,
		TotalRevenue: summary.TotalRevenue,
		RecentOrders: summary.Recent,
	}
	if s.accounts != nil {
		if stats.TotalUsers, err = s.accounts.Count(ctx); err != nil {
			return DashboardStats{}, err
		}
	}
	if s.products != nil {
		if stats.TotalProducts, err = s.products.Count(ctx); err != nil {
			return DashboardStats{}, err
		}
	}
	return stats, nil
}
