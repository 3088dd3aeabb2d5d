package repositories

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/brightcart/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// OrderRepository persists orders. Insert must reject a second order carrying an existing order
// number with ErrDuplicateOrderNumber, and a second order with an existing ID with ErrOrderExists.
// Update only applies when the stored status still equals expected, and fails with
// ErrOrderStatusChanged otherwise.
type OrderRepository interface {
	Insert(ctx context.Context, order domain.Order) error
	FindByOrderNumber(ctx context.Context, orderNumber string) (domain.Order, error)
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	Update(ctx context.Context, order domain.Order, expected domain.OrderStatus) error
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[domain.Order], error)
	Summarize(ctx context.Context, recent int) (OrderSummary, error)
}

// CaptureRepository persists verified payments awaiting order creation.
type CaptureRepository interface {
	// Save creates the capture, or returns the stored one unchanged when the ID already exists.
	Save(ctx context.Context, capture domain.PaymentCapture) (domain.PaymentCapture, bool, error)
	FindByID(ctx context.Context, captureID string) (domain.PaymentCapture, error)
	Update(ctx context.Context, capture domain.PaymentCapture) error
	List(ctx context.Context, filter CaptureListFilter) (domain.CursorPage[domain.PaymentCapture], error)
}

// ProductRepository persists catalog entries.
type ProductRepository interface {
	Insert(ctx context.Context, product domain.Product) error
	Update(ctx context.Context, product domain.Product) error
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	List(ctx context.Context, filter ProductFilter) ([]domain.Product, error)
	Count(ctx context.Context) (int, error)
}

// AccountRepository persists registered users. Insert fails with ErrDuplicateEmail when the
// normalised email is already registered.
type AccountRepository interface {
	Insert(ctx context.Context, account domain.Account) error
	FindByID(ctx context.Context, accountID string) (domain.Account, error)
	FindByEmail(ctx context.Context, email string) (domain.Account, error)
	Count(ctx context.Context) (int, error)
}

// CartRepository stores one cart per account.
type CartRepository interface {
	Get(ctx context.Context, userID string) (domain.Cart, error)
	Save(ctx context.Context, cart domain.Cart) error
}

// CounterRepository provides transaction-safe sequence numbers.
type CounterRepository interface {
	Next(ctx context.Context, counterID string, step int64) (int64, error)
	Configure(ctx context.Context, counterID string, cfg CounterConfig) error
}

// HealthRepository exposes status of downstream dependencies for health checks.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.HealthReport, error)
}

// OrderListFilter narrows order listings. An empty UserID lists every account's orders.
type OrderListFilter struct {
	UserID     string
	Status     []domain.OrderStatus
	Pagination domain.Pagination
}

// OrderSummary carries the aggregates shown on the admin dashboard. Revenue excludes cancelled
// orders.
type OrderSummary struct {
	TotalOrders  int
	TotalRevenue decimal.Decimal
	Recent       []domain.Order
}

// CaptureListFilter narrows capture listings.
type CaptureListFilter struct {
	States        []domain.CaptureState
	CreatedBefore *time.Time
	Pagination    domain.Pagination
}

// ProductFilter narrows product listings. Category matches case-insensitively.
type ProductFilter struct {
	Category   string
	ActiveOnly bool
}

// CounterConfig customises increment behaviour and bounds for a counter.
type CounterConfig struct {
	Step         int64
	MaxValue     *int64
	InitialValue *int64
}
