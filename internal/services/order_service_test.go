package services

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/events"
	"github.com/brightcart/api/internal/repositories"
	"github.com/brightcart/api/internal/repositories/memory"
)

type orderFixture struct {
	service  OrderService
	orders   *memory.OrderRepository
	accounts *memory.AccountRepository
	products *memory.ProductRepository
	events   *recordingPublisher
	now      time.Time
	seq      int
}

func newOrderFixture(t *testing.T) *orderFixture {
	t.Helper()
	return newOrderFixtureWith(t, memory.NewOrderRepository(), nil)
}

// newOrderFixtureWith builds the service over repo while seeding through orders.
func newOrderFixtureWith(t *testing.T, orders *memory.OrderRepository, repo repositories.OrderRepository) *orderFixture {
	t.Helper()
	if repo == nil {
		repo = orders
	}
	now := time.Date(2026, 6, 2, 8, 0, 0, 0, time.UTC)
	accounts := memory.NewAccountRepository()
	products := memory.NewProductRepository()
	publisher := &recordingPublisher{}
	svc, err := NewOrderService(OrderServiceDeps{
		Orders:   repo,
		Accounts: accounts,
		Products: products,
		Events:   publisher,
		Clock:    func() time.Time { return now },
	})
	require.NoError(t, err)
	return &orderFixture{service: svc, orders: orders, accounts: accounts, products: products, events: publisher, now: now}
}

func (fx *orderFixture) seed(t *testing.T, faker *gofakeit.Faker, id, userID, total string, status domain.OrderStatus, at time.Time) domain.Order {
	t.Helper()
	fx.seq++
	order := domain.Order{
		ID:          id,
		OrderNumber: fmt.Sprintf("ORD%s%04d", at.Format("20060102"), 1000+fx.seq),
		UserID:      userID,
		Customer:    domain.Customer{Name: faker.Name(), Email: faker.Email(), Phone: faker.Phone()},
		TotalAmount: decimal.RequireFromString(total),
		Status:      status,
		CreatedAt:   at,
	}
	require.NoError(t, fx.orders.Insert(context.Background(), order))
	return order
}

func orderIDs(orders []Order) []string {
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, o.ID)
	}
	return ids
}

func TestOrderServiceListOwnReturnsOnlyCallerOrdersNewestFirst(t *testing.T) {
	fx := newOrderFixture(t)
	faker := gofakeit.New(7)
	fx.seed(t, faker, "ord_a", "user_1", "10.00", domain.OrderStatusPending, fx.now.Add(-3*time.Hour))
	fx.seed(t, faker, "ord_b", "user_2", "20.00", domain.OrderStatusPending, fx.now.Add(-2*time.Hour))
	fx.seed(t, faker, "ord_c", "user_1", "30.00", domain.OrderStatusPending, fx.now.Add(-time.Hour))

	got, err := fx.service.ListOwn(context.Background(), "user_1")
	require.NoError(t, err)
	if diff := cmp.Diff([]string{"ord_c", "ord_a"}, orderIDs(got)); diff != "" {
		t.Fatalf("unexpected orders (-want +got):\n%s", diff)
	}

	_, err = fx.service.ListOwn(context.Background(), " ")
	assert.ErrorIs(t, err, ErrOrderInvalidInput)
}

func TestOrderServiceGetOwnHidesForeignOrders(t *testing.T) {
	fx := newOrderFixture(t)
	faker := gofakeit.New(11)
	fx.seed(t, faker, "ord_a", "user_1", "10.00", domain.OrderStatusPending, fx.now)

	got, err := fx.service.GetOwn(context.Background(), "user_1", "ord_a")
	require.NoError(t, err)
	assert.Equal(t, "ord_a", got.ID)

	_, err = fx.service.GetOwn(context.Background(), "user_2", "ord_a")
	assert.ErrorIs(t, err, ErrOrderNotFound)
	_, err = fx.service.GetOwn(context.Background(), "user_1", "ord_missing")
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOrderServiceListFiltersByStatus(t *testing.T) {
	fx := newOrderFixture(t)
	faker := gofakeit.New(3)
	fx.seed(t, faker, "ord_a", "user_1", "10.00", domain.OrderStatusPending, fx.now.Add(-2*time.Hour))
	fx.seed(t, faker, "ord_b", "user_2", "20.00", domain.OrderStatusShipped, fx.now.Add(-time.Hour))

	page, err := fx.service.List(context.Background(), OrderListFilter{Status: []OrderStatus{domain.OrderStatusShipped}})
	require.NoError(t, err)
	assert.Equal(t, []string{"ord_b"}, orderIDs(page.Items))

	_, err = fx.service.List(context.Background(), OrderListFilter{Status: []OrderStatus{"lost"}})
	assert.ErrorIs(t, err, ErrOrderInvalidInput)
}

func TestOrderServiceUpdateStatusMovesForwardAndAssignsTracking(t *testing.T) {
	fx := newOrderFixture(t)
	faker := gofakeit.New(5)
	fx.seed(t, faker, "ord_a", "user_1", "10.00", domain.OrderStatusPending, fx.now.Add(-time.Hour))
	ctx := context.Background()

	updated, err := fx.service.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_a", Status: "shipped", ActorID: "admin_1"})
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, updated.Status)
	assert.Equal(t, domain.TrackingNumberAt(fx.now), updated.TrackingNumber)

	stored, err := fx.orders.FindByID(ctx, "ord_a")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusShipped, stored.Status)
	assert.Equal(t, []string{events.TypeOrderStatusChanged}, fx.events.types())

	again, err := fx.service.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_a", Status: "shipped"})
	require.NoError(t, err)
	assert.Equal(t, updated.TrackingNumber, again.TrackingNumber)
	assert.Len(t, fx.events.types(), 1)
}

func TestOrderServiceUpdateStatusRejectsInvalidChanges(t *testing.T) {
	fx := newOrderFixture(t)
	faker := gofakeit.New(9)
	fx.seed(t, faker, "ord_a", "user_1", "10.00", domain.OrderStatusDelivered, fx.now)
	ctx := context.Background()

	_, err := fx.service.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_a", Status: "pending"})
	assert.ErrorIs(t, err, ErrOrderInvalidTransition)
	_, err = fx.service.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_a", Status: "teleported"})
	assert.ErrorIs(t, err, ErrOrderInvalidInput)
	_, err = fx.service.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_a", Status: "SHIPPED"})
	assert.ErrorIs(t, err, ErrOrderInvalidInput)
	_, err = fx.service.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_a", Status: " shipped"})
	assert.ErrorIs(t, err, ErrOrderInvalidInput)
	_, err = fx.service.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_missing", Status: "shipped"})
	assert.ErrorIs(t, err, ErrOrderNotFound)

	stored, err := fx.orders.FindByID(ctx, "ord_a")
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusDelivered, stored.Status)
	assert.Empty(t, fx.events.types())
}

// snapshotBarrier holds every reader until all of them have loaded the order, so concurrent
// status changes start from the same snapshot.
type snapshotBarrier struct {
	*memory.OrderRepository
	readers sync.WaitGroup
}

func (b *snapshotBarrier) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	order, err := b.OrderRepository.FindByID(ctx, orderID)
	b.readers.Done()
	b.readers.Wait()
	return order, err
}

func TestOrderServiceUpdateStatusConcurrentChangesOnlyOneWins(t *testing.T) {
	store := memory.NewOrderRepository()
	barrier := &snapshotBarrier{OrderRepository: store}
	fx := newOrderFixtureWith(t, store, barrier)
	fx.seed(t, gofakeit.New(13), "ord_a", "user_1", "10.00", domain.OrderStatusPending, fx.now)
	ctx := context.Background()

	targets := []string{"cancelled", "shipped"}
	barrier.readers.Add(len(targets))
	errs := make([]error, len(targets))
	var wg sync.WaitGroup
	for i, target := range targets {
		wg.Add(1)
		go func(i int, target string) {
			defer wg.Done()
			_, errs[i] = fx.service.UpdateStatus(ctx, UpdateOrderStatusCommand{OrderID: "ord_a", Status: target})
		}(i, target)
	}
	wg.Wait()

	var won, lost int
	for _, err := range errs {
		switch {
		case err == nil:
			won++
		case errors.Is(err, ErrOrderInvalidTransition):
			lost++
		default:
			t.Fatalf("unexpected error %v", err)
		}
	}
	assert.Equal(t, 1, won)
	assert.Equal(t, 1, lost)
	assert.Len(t, fx.events.types(), 1)

	stored, err := store.FindByID(ctx, "ord_a")
	require.NoError(t, err)
	if errs[0] == nil {
		assert.Equal(t, domain.OrderStatusCancelled, stored.Status)
		assert.Empty(t, stored.TrackingNumber)
	} else {
		assert.Equal(t, domain.OrderStatusShipped, stored.Status)
		assert.NotEmpty(t, stored.TrackingNumber)
	}
}

func TestOrderServiceDashboardStats(t *testing.T) {
	fx := newOrderFixture(t)
	faker := gofakeit.New(13)
	ctx := context.Background()
	for i := 0; i < 7; i++ {
		status := domain.OrderStatusPending
		if i == 0 {
			status = domain.OrderStatusCancelled
		}
		fx.seed(t, faker, fmt.Sprintf("ord_%d", i), "user_1", "10.50", status, fx.now.Add(time.Duration(i)*time.Minute))
	}
	require.NoError(t, fx.accounts.Insert(ctx, domain.Account{ID: "acc_1", Email: faker.Email()}))
	require.NoError(t, fx.products.Insert(ctx, domain.Product{ID: "prod_1", Name: "Lamp", IsActive: true}))
	require.NoError(t, fx.products.Insert(ctx, domain.Product{ID: "prod_2", Name: "Desk"}))

	stats, err := fx.service.DashboardStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, stats.TotalOrders)
	assert.Equal(t, "63.00", stats.TotalRevenue.StringFixed(2))
	assert.Equal(t, 1, stats.TotalUsers)
	assert.Equal(t, 2, stats.TotalProducts)
	assert.Equal(t, []string{"ord_6", "ord_5", "ord_4", "ord_3", "ord_2"}, orderIDs(stats.RecentOrders))
}
