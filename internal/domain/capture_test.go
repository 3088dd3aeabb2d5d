package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validDetails() OrderDetails {
	return OrderDetails{
		CustomerName:  " Ada Lovelace ",
		CustomerEmail: "ADA@example.com",
		Items: []OrderItem{
			{ProductID: "p1", Name: "Notebook", Price: dec("29.99"), Quantity: 2, Image: "/images/nb.png"},
		},
		ShippingAddress: Address{Street: "1 Main St", City: "London", State: "LDN", ZipCode: "N1", Country: "UK"},
		ShippingCost:    dec("5.00"),
	}
}

func TestOrderDetailsNormalize(t *testing.T) {
	got := validDetails().Normalize()
	assert.Equal(t, "Ada Lovelace", got.CustomerName)
	assert.Equal(t, "ada@example.com", got.CustomerEmail)
	assert.Equal(t, DefaultCustomerPhone, got.CustomerPhone)
	require.NoError(t, got.Validate())
}

func TestOrderDetailsValidateNamesMissingField(t *testing.T) {
	tests := []struct {
		field  string
		mutate func(*OrderDetails)
	}{
		{"customerName", func(d *OrderDetails) { d.CustomerName = "  " }},
		{"customerEmail", func(d *OrderDetails) { d.CustomerEmail = "" }},
		{"customerEmail", func(d *OrderDetails) { d.CustomerEmail = "not-an-email" }},
		{"items", func(d *OrderDetails) { d.Items = nil }},
		{"items[0].quantity", func(d *OrderDetails) { d.Items[0].Quantity = 0 }},
		{"items[0].image", func(d *OrderDetails) { d.Items[0].Image = "" }},
		{"shippingAddress.city", func(d *OrderDetails) { d.ShippingAddress.City = " " }},
		{"shippingAddress.country", func(d *OrderDetails) { d.ShippingAddress.Country = "" }},
	}
	for _, tc := range tests {
		t.Run(tc.field, func(t *testing.T) {
			details := validDetails()
			tc.mutate(&details)
			err := details.Normalize().Validate()
			var incomplete *IncompleteOrderDetailsError
			require.True(t, errors.As(err, &incomplete))
			assert.Equal(t, tc.field, incomplete.Field)
		})
	}
}

func TestCaptureIDForIsStable(t *testing.T) {
	a := CaptureIDFor("razorpay", "order_1", "pay_1")
	assert.Equal(t, a, CaptureIDFor("razorpay", "order_1", "pay_1"))
	assert.NotEqual(t, a, CaptureIDFor("razorpay", "order_1", "pay_2"))
	assert.Len(t, a, len("cap_")+32)
}
