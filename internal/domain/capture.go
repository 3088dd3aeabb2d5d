package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/mail"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCustomerPhone is stored when the customer leaves the phone number blank.
const DefaultCustomerPhone = "N/A"

// CaptureState tracks a verified payment on its way to becoming an order.
type CaptureState string

const (
	// CaptureStateCaptured means the signature verified and the order is not yet stored.
	CaptureStateCaptured CaptureState = "captured"
	// CaptureStateCompleted means the order was stored.
	CaptureStateCompleted CaptureState = "completed"
	// CaptureStateNeedsAttention means the order details were rejected and an operator must amend them.
	CaptureStateNeedsAttention CaptureState = "needs_attention"
)

// Valid reports whether the state is known.
func (s CaptureState) Valid() bool {
	switch s {
	case CaptureStateCaptured, CaptureStateCompleted, CaptureStateNeedsAttention:
		return true
	}
	return false
}

// OrderDetails is the client supplied order payload accompanying a payment confirmation.
// Monetary totals sent by the client are advisory and never stored.
type OrderDetails struct {
	CustomerName    string
	CustomerEmail   string
	CustomerPhone   string
	Items           []OrderItem
	ShippingAddress Address
	ShippingCost    decimal.Decimal
	ClientTotal     *decimal.Decimal
}

// IncompleteOrderDetailsError names the first missing or invalid field of an order payload.
type IncompleteOrderDetailsError struct {
	Field string
}

func (e *IncompleteOrderDetailsError) Error() string {
	return fmt.Sprintf("incomplete order details: %s", e.Field)
}

// Normalize trims whitespace and fills defaults.
func (d OrderDetails) Normalize() OrderDetails {
	d.CustomerName = strings.TrimSpace(d.CustomerName)
	d.CustomerEmail = strings.ToLower(strings.TrimSpace(d.CustomerEmail))
	d.CustomerPhone = strings.TrimSpace(d.CustomerPhone)
	if d.CustomerPhone == "" {
		d.CustomerPhone = DefaultCustomerPhone
	}
	addr := d.ShippingAddress
	d.ShippingAddress = Address{
		Street:  strings.TrimSpace(addr.Street),
		City:    strings.TrimSpace(addr.City),
		State:   strings.TrimSpace(addr.State),
		ZipCode: strings.TrimSpace(addr.ZipCode),
		Country: strings.TrimSpace(addr.Country),
	}
	items := make([]OrderItem, len(d.Items))
	for i, item := range d.Items {
		item.ProductID = strings.TrimSpace(item.ProductID)
		item.Name = strings.TrimSpace(item.Name)
		item.Image = strings.TrimSpace(item.Image)
		items[i] = item
	}
	d.Items = items
	return d
}

// Validate returns an *IncompleteOrderDetailsError for the first field that is missing.
// Call Normalize first.
func (d OrderDetails) Validate() error {
	missing := func(field string) error { return &IncompleteOrderDetailsError{Field: field} }

	if d.CustomerName == "" {
		return missing("customerName")
	}
	if d.CustomerEmail == "" {
		return missing("customerEmail")
	}
	if _, err := mail.ParseAddress(d.CustomerEmail); err != nil {
		return missing("customerEmail")
	}
	if len(d.Items) == 0 {
		return missing("items")
	}
	for i, item := range d.Items {
		switch {
		case item.ProductID == "":
			return missing(fmt.Sprintf("items[%d].productId", i))
		case item.Name == "":
			return missing(fmt.Sprintf("items[%d].name", i))
		case item.Price.IsNegative():
			return missing(fmt.Sprintf("items[%d].price", i))
		case item.Quantity < 1:
			return missing(fmt.Sprintf("items[%d].quantity", i))
		case item.Image == "":
			return missing(fmt.Sprintf("items[%d].image", i))
		}
	}
	addr := d.ShippingAddress
	for _, f := range []struct{ name, value string }{
		{"shippingAddress.street", addr.Street},
		{"shippingAddress.city", addr.City},
		{"shippingAddress.state", addr.State},
		{"shippingAddress.zipCode", addr.ZipCode},
		{"shippingAddress.country", addr.Country},
	} {
		if f.value == "" {
			return missing(f.name)
		}
	}
	if d.ShippingCost.IsNegative() {
		return missing("shippingCost")
	}
	return nil
}

// PaymentCapture records a signature verified payment before its order is stored. The capture ID
// doubles as the order ID so completing a capture twice cannot create two orders.
type PaymentCapture struct {
	ID            string
	UserID        string
	Gateway       string
	TransactionID string
	PaymentID     string
	Amount        int64 // paid, in minor units of Currency, as reported by the gateway
	Currency      string
	Details       OrderDetails
	State         CaptureState
	OrderID       string
	OrderNumber   string
	MissingField  string
	LastError     string
	Attempts      int
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// CaptureIDFor derives the capture ID for a gateway confirmation. Replaying the same confirmation
// yields the same ID.
func CaptureIDFor(gateway, transactionID, paymentID string) string {
	sum := sha256.Sum256([]byte(gateway + "|" + transactionID + "|" + paymentID))
	return "cap_" + hex.EncodeToString(sum[:])[:32]
}
