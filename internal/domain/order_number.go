package domain

import (
	"errors"
	"fmt"
	"regexp"
	"time"
)

const (
	// OrderNumberPrefix starts every human facing order number.
	OrderNumberPrefix = "ORD"
	// OrderNumberMinSuffix is the smallest daily suffix.
	OrderNumberMinSuffix = 1000
	// OrderNumberMaxSuffix is the largest daily suffix.
	OrderNumberMaxSuffix = 9999

	orderNumberDayLayout = "20060102"
)

// ErrOrderNumberSuffix is returned when a suffix falls outside the four digit range.
var ErrOrderNumberSuffix = errors.New("order number: suffix out of range")

var orderNumberPattern = regexp.MustCompile(`^ORD\d{8}\d{4}$`)

// OrderNumberDay returns the UTC date component used in order numbers.
func OrderNumberDay(t time.Time) string {
	return t.UTC().Format(orderNumberDayLayout)
}

// FormatOrderNumber assembles ORD + YYYYMMDD + suffix for the UTC day of t.
func FormatOrderNumber(t time.Time, suffix int) (string, error) {
	if suffix < OrderNumberMinSuffix || suffix > OrderNumberMaxSuffix {
		return "", fmt.Errorf("%w: %d", ErrOrderNumberSuffix, suffix)
	}
	return fmt.Sprintf("%s%s%04d", OrderNumberPrefix, OrderNumberDay(t), suffix), nil
}

// ValidOrderNumber reports whether s has the order number shape.
func ValidOrderNumber(s string) bool {
	return orderNumberPattern.MatchString(s)
}
