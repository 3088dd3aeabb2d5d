// Package memory provides in-process repository implementations for tests and local runs.
package memory

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/samber/lo"
	"github.com/shopspring/decimal"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/pagination"
	"github.com/brightcart/api/internal/repositories"
)

// OrderRepository keeps orders in a map guarded by a mutex, with a unique order number index.
type OrderRepository struct {
	mu       sync.RWMutex
	orders   map[string]domain.Order
	byNumber map[string]string
	now      func() time.Time
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository returns an empty store.
func NewOrderRepository() *OrderRepository {
	return &OrderRepository{
		orders:   make(map[string]domain.Order),
		byNumber: make(map[string]string),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func (r *OrderRepository) Insert(_ context.Context, order domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.orders[order.ID]; ok {
		return repositories.ErrOrderExists
	}
	if _, ok := r.byNumber[order.OrderNumber]; ok {
		return repositories.ErrDuplicateOrderNumber
	}
	now := r.now()
	if order.CreatedAt.IsZero() {
		order.CreatedAt = now
	}
	order.UpdatedAt = now
	r.orders[order.ID] = cloneOrder(order)
	r.byNumber[order.OrderNumber] = order.ID
	return nil
}

func (r *OrderRepository) FindByOrderNumber(_ context.Context, orderNumber string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byNumber[orderNumber]
	if !ok {
		return domain.Order{}, repositories.NewStoreError(repositories.ErrorKindNotFound, "order number %s not found", orderNumber)
	}
	return cloneOrder(r.orders[id]), nil
}

func (r *OrderRepository) FindByID(_ context.Context, orderID string) (domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	order, ok := r.orders[orderID]
	if !ok {
		return domain.Order{}, repositories.NewStoreError(repositories.ErrorKindNotFound, "order %s not found", orderID)
	}
	return cloneOrder(order), nil
}

// Update persists status, payment status and tracking number of an existing order when its stored
// status still equals expected.
func (r *OrderRepository) Update(_ context.Context, order domain.Order, expected domain.OrderStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.orders[order.ID]
	if !ok {
		return repositories.NewStoreError(repositories.ErrorKindNotFound, "order %s not found", order.ID)
	}
	if stored.Status != expected {
		return repositories.ErrOrderStatusChanged
	}
	stored.Status = order.Status
	stored.PaymentStatus = order.PaymentStatus
	stored.TrackingNumber = order.TrackingNumber
	stored.UpdatedAt = r.now()
	r.orders[order.ID] = stored
	return nil
}

func (r *OrderRepository) List(_ context.Context, filter repositories.OrderListFilter) (domain.CursorPage[domain.Order], error) {
	cursor, err := pagination.DecodeToken(filter.Pagination.PageToken)
	if err != nil {
		return domain.CursorPage[domain.Order]{}, err
	}
	r.mu.RLock()
	matches := lo.Filter(lo.Values(r.orders), func(o domain.Order, _ int) bool {
		if filter.UserID != "" && o.UserID != filter.UserID {
			return false
		}
		return len(filter.Status) == 0 || slices.Contains(filter.Status, o.Status)
	})
	r.mu.RUnlock()

	sortNewestFirst(matches, func(o domain.Order) (time.Time, string) { return o.CreatedAt, o.ID })
	items, next := paginate(matches, cursor, filter.Pagination.PageSize, func(o domain.Order) (time.Time, string) {
		return o.CreatedAt, o.ID
	})
	return domain.CursorPage[domain.Order]{Items: lo.Map(items, func(o domain.Order, _ int) domain.Order { return cloneOrder(o) }), NextPageToken: next}, nil
}

func (r *OrderRepository) Summarize(ctx context.Context, recent int) (repositories.OrderSummary, error) {
	r.mu.RLock()
	summary := repositories.OrderSummary{TotalOrders: len(r.orders), TotalRevenue: decimal.Zero}
	for _, order := range r.orders {
		if order.Status != domain.OrderStatusCancelled {
			summary.TotalRevenue = summary.TotalRevenue.Add(order.TotalAmount)
		}
	}
	r.mu.RUnlock()

	if recent > 0 {
		page, err := r.List(ctx, repositories.OrderListFilter{Pagination: domain.Pagination{PageSize: recent}})
		if err != nil {
			return repositories.OrderSummary{}, err
		}
		summary.Recent = page.Items
	}
	return summary, nil
}

func cloneOrder(o domain.Order) domain.Order {
	o.Items = slices.Clone(o.Items)
	return o
}

func sortNewestFirst[T any](items []T, key func(T) (time.Time, string)) {
	sort.SliceStable(items, func(i, j int) bool {
		ti, idi := key(items[i])
		tj, idj := key(items[j])
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return idi > idj
	})
}

// paginate slices a newest-first list after the cursor and returns the next page token.
func paginate[T any](items []T, cursor pagination.Cursor, size int, key func(T) (time.Time, string)) ([]T, string) {
	if size <= 0 {
		size = pagination.DefaultPageSize
	}
	start := 0
	if !cursor.IsZero() {
		start = len(items)
		for i, item := range items {
			created, id := key(item)
			if created.Before(cursor.CreatedAt) || (created.Equal(cursor.CreatedAt) && id < cursor.ID) {
				start = i
				break
			}
		}
	}
	items = items[start:]
	if len(items) <= size {
		return items, ""
	}
	page := items[:size]
	created, id := key(page[size-1])
	return page, pagination.EncodeToken(pagination.Cursor{CreatedAt: created, ID: id})
}

// SetClock overrides the timestamp source.
func (r *OrderRepository) SetClock(now func() time.Time) {
	r.mu.Lock()
	r.now = now
	r.mu.Unlock()
}
