package services

import (
	"context"
	"io"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/brightcart/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Order          = domain.Order
	OrderItem      = domain.OrderItem
	OrderStatus    = domain.OrderStatus
	OrderDetails   = domain.OrderDetails
	PaymentCapture = domain.PaymentCapture
	CaptureState   = domain.CaptureState
	Product        = domain.Product
	Account        = domain.Account
	Cart           = domain.Cart
	CartItem       = domain.CartItem
	Pagination     = domain.Pagination
	HealthReport   = domain.HealthReport
	DashboardStats = domain.DashboardStats
)

// Logger receives structured service events.
type Logger func(ctx context.Context, event string, fields map[string]any)

func nopLogger(context.Context, string, map[string]any) {}

// CheckoutService creates gateway intents and turns verified payments into orders.
type CheckoutService interface {
	CreatePaymentIntent(ctx context.Context, cmd CreatePaymentIntentCommand) (PaymentIntent, error)
	VerifyPayment(ctx context.Context, cmd VerifyPaymentCommand) (VerifyPaymentResult, error)
	ListCaptures(ctx context.Context, filter CaptureListFilter) (domain.CursorPage[PaymentCapture], error)
	RetryCapture(ctx context.Context, cmd RetryCaptureCommand) (VerifyPaymentResult, error)
	SweepCaptures(ctx context.Context) (SweepResult, error)
}

// OrderService reads orders and applies admin status changes.
type OrderService interface {
	ListOwn(ctx context.Context, userID string) ([]Order, error)
	GetOwn(ctx context.Context, userID, orderID string) (Order, error)
	List(ctx context.Context, filter OrderListFilter) (domain.CursorPage[Order], error)
	Get(ctx context.Context, orderID string) (Order, error)
	UpdateStatus(ctx context.Context, cmd UpdateOrderStatusCommand) (Order, error)
	DashboardStats(ctx context.Context) (DashboardStats, error)
}

// CatalogService manages products.
type CatalogService interface {
	ListProducts(ctx context.Context, filter ProductListFilter) ([]Product, error)
	Categories(ctx context.Context) ([]string, error)
	GetProduct(ctx context.Context, productID string, includeInactive bool) (Product, error)
	CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error)
	UpdateProduct(ctx context.Context, productID string, cmd UpsertProductCommand) (Product, error)
	DeactivateProduct(ctx context.Context, productID string) error
}

// AccountService registers and authenticates storefront users.
type AccountService interface {
	Register(ctx context.Context, cmd RegisterCommand) (AuthResult, error)
	Login(ctx context.Context, cmd LoginCommand) (AuthResult, error)
	Profile(ctx context.Context, accountID string) (Account, error)
}

// CartService maintains the per-account cart.
type CartService interface {
	Get(ctx context.Context, userID string) (Cart, error)
	AddItem(ctx context.Context, userID, productID string, quantity int) (Cart, error)
	UpdateItem(ctx context.Context, userID, productID string, quantity int) (Cart, error)
	RemoveItem(ctx context.Context, userID, productID string) (Cart, error)
}

// UploadService stores product images.
type UploadService interface {
	UploadImage(ctx context.Context, cmd UploadImageCommand) (UploadedImage, error)
}

// HealthService reports liveness and readiness.
type HealthService interface {
	Liveness(ctx context.Context) HealthReport
	Readiness(ctx context.Context) (HealthReport, error)
}

// CreatePaymentIntentCommand asks the gateway for a payment intent. Amount is in major units.
type CreatePaymentIntentCommand struct {
	UserID   string
	Amount   decimal.Decimal
	Currency string
	Gateway  string
}

// PaymentIntent is returned to the client to complete payment.
type PaymentIntent struct {
	ID           string
	Gateway      string
	Amount       int64
	Currency     string
	Receipt      string
	Status       string
	ClientSecret string
}

// VerifyPaymentCommand carries a gateway confirmation and the order to create from it.
type VerifyPaymentCommand struct {
	UserID        string
	Gateway       string
	TransactionID string
	PaymentID     string
	Signature     string
	Details       OrderDetails
}

// VerifyPaymentResult identifies the order created for a verified payment.
type VerifyPaymentResult struct {
	OrderID     string
	OrderNumber string
	CaptureID   string
	Replayed    bool
}

// CaptureListFilter narrows the reconciliation listing.
type CaptureListFilter struct {
	States     []CaptureState
	Pagination Pagination
}

// RetryCaptureCommand re-runs order creation for a capture, optionally with amended details.
type RetryCaptureCommand struct {
	CaptureID string
	Details   *OrderDetails
}

// SweepResult summarises one reconciliation sweep.
type SweepResult struct {
	Examined       int
	Completed      int
	NeedsAttention int
	Failed         int
}

// OrderListFilter narrows admin order listings.
type OrderListFilter struct {
	Status     []OrderStatus
	Pagination Pagination
}

// UpdateOrderStatusCommand moves an order to a new status.
type UpdateOrderStatusCommand struct {
	OrderID string
	Status  string
	ActorID string
}

// ProductListFilter narrows catalog listings.
type ProductListFilter struct {
	Category        string
	IncludeInactive bool
}

// UpsertProductCommand carries product fields. Pointer fields are optional on update and required
// on create.
type UpsertProductCommand struct {
	Name        *string
	Price       *decimal.Decimal
	Description *string
	Image       *string
	Category    *string
	Stock       *int
	IsActive    *bool
}

// RegisterCommand creates an account.
type RegisterCommand struct {
	Email    string
	Password string
	Name     string
}

// LoginCommand authenticates an account.
type LoginCommand struct {
	Email    string
	Password string
}

// AuthResult pairs the account with a freshly issued session token.
type AuthResult struct {
	Account   Account
	Token     string
	ExpiresAt time.Time
}

// UploadImageCommand carries one uploaded image.
type UploadImageCommand struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

// UploadedImage describes where an image was stored.
type UploadedImage struct {
	FilePath string
	URL      string
	Size     int64
}
