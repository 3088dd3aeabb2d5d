package domain

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// OrderStatus is the fulfilment state of an order.
type OrderStatus string

const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var (
	// ErrInvalidStatus is returned for values outside the known status set.
	ErrInvalidStatus = errors.New("order: invalid status")
	// ErrInvalidTransition is returned when a status change would move an order backwards or out
	// of a terminal state.
	ErrInvalidTransition = errors.New("order: invalid status transition")
)

// trackingDigits is the number of trailing epoch millisecond digits used in tracking numbers.
const trackingDigits = 8

// progression ranks the forward path; cancelled sits outside it.
var progression = map[OrderStatus]int{
	OrderStatusPending:    0,
	OrderStatusProcessing: 1,
	OrderStatusShipped:    2,
	OrderStatusDelivered:  3,
}

// OrderStatuses lists every status in lifecycle order.
func OrderStatuses() []OrderStatus {
	return []OrderStatus{
		OrderStatusPending,
		OrderStatusProcessing,
		OrderStatusShipped,
		OrderStatusDelivered,
		OrderStatusCancelled,
	}
}

// ParseOrderStatus accepts exactly one of the known status values. Case and surrounding whitespace
// are significant.
func ParseOrderStatus(raw string) (OrderStatus, error) {
	status := OrderStatus(raw)
	if !status.Valid() {
		return "", ErrInvalidStatus
	}
	return status, nil
}

// Valid reports whether the status is known.
func (s OrderStatus) Valid() bool {
	if s == OrderStatusCancelled {
		return true
	}
	_, ok := progression[s]
	return ok
}

// Terminal reports whether no further transitions are allowed.
func (s OrderStatus) Terminal() bool {
	return s == OrderStatusDelivered || s == OrderStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is allowed. Orders only move forward,
// may skip ahead, and can be cancelled until they ship. Re-applying the current status is allowed.
func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	if !s.Valid() || !next.Valid() {
		return false
	}
	if s == next {
		return true
	}
	if s.Terminal() {
		return false
	}
	if next == OrderStatusCancelled {
		return s == OrderStatusPending || s == OrderStatusProcessing
	}
	return progression[next] > progression[s]
}

// ApplyStatus moves the order to next. The order is left untouched when an error is returned.
// Entering shipped assigns a tracking number unless one is already present. The returned flag is
// false when the order already had the requested status.
func (o *Order) ApplyStatus(next OrderStatus, now time.Time) (bool, error) {
	if !next.Valid() {
		return false, ErrInvalidStatus
	}
	if o.Status == next {
		return false, nil
	}
	if !o.Status.CanTransitionTo(next) {
		return false, ErrInvalidTransition
	}
	o.Status = next
	if next == OrderStatusShipped && strings.TrimSpace(o.TrackingNumber) == "" {
		o.TrackingNumber = TrackingNumberAt(now)
	}
	return true, nil
}

// TrackingNumberAt builds a tracking number from the trailing epoch millisecond digits of now.
func TrackingNumberAt(now time.Time) string {
	digits := strconv.FormatInt(now.UnixMilli(), 10)
	if len(digits) > trackingDigits {
		digits = digits[len(digits)-trackingDigits:]
	}
	return "TRK" + digits
}
