package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	domain "github.com/brightcart/api/internal/domain"
	pfirestore "github.com/brightcart/api/internal/platform/firestore"
	"github.com/brightcart/api/internal/repositories"
)

const cartCollection = "carts"

type cartItemDocument struct {
	ProductID string    `firestore:"productId"`
	Name      string    `firestore:"name"`
	Price     string    `firestore:"price"`
	Image     string    `firestore:"image"`
	Quantity  int       `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

// CartRepository persists one cart document per account, keyed by user ID.
type CartRepository struct {
	carts *pfirestore.Collection[cartDocument]
}

var _ repositories.CartRepository = (*CartRepository)(nil)

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	return &CartRepository{carts: pfirestore.NewCollection[cartDocument](provider, cartCollection)}, nil
}

// Get returns the stored cart, or an empty cart when the account has none.
func (r *CartRepository) Get(ctx context.Context, userID string) (domain.Cart, error) {
	doc, err := r.carts.Get(ctx, userID)
	if pfirestore.IsNotFound(err) {
		return domain.Cart{UserID: userID}, nil
	}
	if err != nil {
		return domain.Cart{}, err
	}
	cart := domain.Cart{UserID: userID, UpdatedAt: doc.UpdatedAt}
	for i, item := range doc.Items {
		price, err := parseMoney(fmt.Sprintf("items[%d].price", i), item.Price)
		if err != nil {
			return domain.Cart{}, fmt.Errorf("cart %s: %w", userID, err)
		}
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     price,
			Image:     item.Image,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}
	return cart, nil
}

// Save overwrites the account's cart.
func (r *CartRepository) Save(ctx context.Context, cart domain.Cart) error {
	doc := cartDocument{Items: make([]cartItemDocument, 0, len(cart.Items)), UpdatedAt: cart.UpdatedAt}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     item.Price.String(),
			Image:     item.Image,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}
	return r.carts.Set(ctx, cart.UserID, doc)
}
