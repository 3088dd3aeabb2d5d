package firestore

import (
	"fmt"

	"github.com/shopspring/decimal"

	domain "github.com/brightcart/api/internal/domain"
)

// Money is stored as decimal strings so no precision is lost to float64.

func moneyString(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func parseMoney(field, raw string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, nil
	}
	value, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("decode %s: %w", field, err)
	}
	return value, nil
}

type addressDocument struct {
	Street  string `firestore:"street"`
	City    string `firestore:"city"`
	State   string `firestore:"state"`
	ZipCode string `firestore:"zipCode"`
	Country string `firestore:"country"`
}

func encodeAddress(a domain.Address) addressDocument {
	return addressDocument(a)
}

func decodeAddress(doc addressDocument) domain.Address {
	return domain.Address(doc)
}

type itemDocument struct {
	ProductID string `firestore:"productId"`
	Name      string `firestore:"name"`
	Price     string `firestore:"price"`
	Quantity  int    `firestore:"quantity"`
	Image     string `firestore:"image"`
}

func encodeItems(items []domain.OrderItem) []itemDocument {
	out := make([]itemDocument, len(items))
	for i, item := range items {
		out[i] = itemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price.String(),
			Quantity:  item.Quantity,
			Image:     item.Image,
		}
	}
	return out
}

func decodeItems(docs []itemDocument) ([]domain.OrderItem, error) {
	out := make([]domain.OrderItem, len(docs))
	for i, doc := range docs {
		price, err := parseMoney(fmt.Sprintf("items[%d].price", i), doc.Price)
		if err != nil {
			return nil, err
		}
		out[i] = domain.OrderItem{
			ProductID: doc.ProductID,
			Name:      doc.Name,
			Price:     price,
			Quantity:  doc.Quantity,
			Image:     doc.Image,
		}
	}
	return out, nil
}
