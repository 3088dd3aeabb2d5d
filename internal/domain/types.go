package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Pagination defines standard cursor-based paging inputs for list operations.
type Pagination struct {
	PageSize  int
	PageToken string
}

// CursorPage wraps paginated results with the token for the next page.
type CursorPage[T any] struct {
	Items         []T
	NextPageToken string
}

// PaymentMethod enumerates the gateways an order may be paid through.
type PaymentMethod string

const (
	PaymentMethodCreditCard PaymentMethod = "credit_card"
	PaymentMethodPayPal     PaymentMethod = "paypal"
	PaymentMethodStripe     PaymentMethod = "stripe"
	PaymentMethodRazorpay   PaymentMethod = "razorpay"
)

// Valid reports whether the method is one of the supported payment methods.
func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentMethodCreditCard, PaymentMethodPayPal, PaymentMethodStripe, PaymentMethodRazorpay:
		return true
	}
	return false
}

// PaymentStatus tracks the settlement state of the order payment.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Customer is the contact snapshot captured when the order is placed.
type Customer struct {
	Name  string
	Email string
	Phone string
}

// Address is a shipping destination. Every field is required.
type Address struct {
	Street  string
	City    string
	State   string
	ZipCode string
	Country string
}

// OrderItem is a value snapshot of a purchased product.
type OrderItem struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Quantity  int
	Image     string
}

// LineTotal returns price multiplied by quantity.
func (i OrderItem) LineTotal() decimal.Decimal {
	return i.Price.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

// PaymentReference links an order to the gateway transaction that paid for it.
type PaymentReference struct {
	Gateway       string
	TransactionID string
	PaymentID     string
	CaptureID     string
}

// Order is a completed purchase. Orders are created only after a verified payment.
type Order struct {
	ID              string
	OrderNumber     string
	UserID          string
	Customer        Customer
	Items           []OrderItem
	Subtotal        decimal.Decimal
	ShippingCost    decimal.Decimal
	Tax             decimal.Decimal
	TotalAmount     decimal.Decimal
	Status          OrderStatus
	ShippingAddress Address
	PaymentMethod   PaymentMethod
	PaymentStatus   PaymentStatus
	Payment         PaymentReference
	TrackingNumber  string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// FormattedTotal renders the total as a dollar amount with two decimals.
func (o Order) FormattedTotal() string {
	return "$" + o.TotalAmount.StringFixed(2)
}

// Rating aggregates customer review scores for a product.
type Rating struct {
	Rate  float64
	Count int
}

// Product is a catalog entry. Inactive products are hidden from public listings.
type Product struct {
	ID          string
	Name        string
	Price       decimal.Decimal
	Description string
	Image       string
	Category    string
	Stock       int
	Rating      Rating
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Account is a registered storefront user.
type Account struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	IsAdmin      bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CartItem is a product snapshot held in a shopping cart.
type CartItem struct {
	ProductID string
	Name      string
	Price     decimal.Decimal
	Image     string
	Quantity  int
	AddedAt   time.Time
}

// Cart is the per-account basket persisted between sessions.
type Cart struct {
	UserID    string
	Items     []CartItem
	UpdatedAt time.Time
}

// Subtotal sums the line totals of every item in the cart.
func (c Cart) Subtotal() decimal.Decimal {
	total := decimal.Zero
	for _, item := range c.Items {
		total = total.Add(item.Price.Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	return total
}

// ItemCount returns the total quantity across cart lines.
func (c Cart) ItemCount() int {
	count := 0
	for _, item := range c.Items {
		count += item.Quantity
	}
	return count
}

// DashboardStats summarises store activity for the admin dashboard.
type DashboardStats struct {
	TotalOrders   int
	TotalRevenue  decimal.Decimal
	RecentOrders  []Order
	TotalUsers    int
	TotalProducts int
}

// Health status values reported by readiness checks.
const (
	HealthStatusOK       = "ok"
	HealthStatusDegraded = "degraded"
	HealthStatusError    = "error"
)

// HealthCheck is the outcome of probing one dependency.
type HealthCheck struct {
	Status    string
	Detail    string
	Latency   time.Duration
	CheckedAt time.Time
}

// HealthReport aggregates dependency probes for the readiness endpoint.
type HealthReport struct {
	Status      string
	Checks      map[string]HealthCheck
	Version     string
	Environment string
	Uptime      time.Duration
	GeneratedAt time.Time
}
