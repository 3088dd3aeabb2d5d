package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/brightcart/api/internal/repositories"
)

const maxCartQuantity = 99

var (
	// ErrCartInvalid indicates a malformed cart request.
	ErrCartInvalid = errors.New("cart: invalid input")
	// ErrCartItemNotFound is returned when the product is not in the cart.
	ErrCartItemNotFound = errors.New("cart: item not found")
)

// CartServiceDeps wires the cart service.
type CartServiceDeps struct {
	Carts    repositories.CartRepository
	Products repositories.ProductRepository
	Clock    func() time.Time
}

type cartService struct {
	carts    repositories.CartRepository
	products repositories.ProductRepository
	now      func() time.Time
}

// NewCartService constructs a CartService.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Carts == nil {
		return nil, errors.New("cart service: cart repository is required")
	}
	if deps.Products == nil {
		return nil, errors.New("cart service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	return &cartService{
		carts:    deps.Carts,
		products: deps.Products,
		now:      func() time.Time { return clock().UTC() },
	}, nil
}

func (s *cartService) Get(ctx context.Context, userID string) (Cart, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return Cart{}, fmt.Errorf("%w: user is required", ErrCartInvalid)
	}
	return s.carts.Get(ctx, userID)
}

// AddItem snapshots the active product into the cart, or increases the quantity of an existing line.
func (s *cartService) AddItem(ctx context.Context, userID, productID string, quantity int) (Cart, error) {
	if err := validQuantity(quantity); err != nil {
		return Cart{}, err
	}
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	product, err := s.products.FindByID(ctx, strings.TrimSpace(productID))
	if err != nil {
		if repositories.IsNotFound(err) {
			return Cart{}, ErrProductNotFound
		}
		return Cart{}, err
	}
	if !product.IsActive {
		return Cart{}, ErrProductNotFound
	}

	now := s.now()
	idx := slices.IndexFunc(cart.Items, func(item CartItem) bool { return item.ProductID == product.ID })
	if idx >= 0 {
		next := cart.Items[idx].Quantity + quantity
		if err := validQuantity(next); err != nil {
			return Cart{}, err
		}
		cart.Items[idx].Quantity = next
	} else {
		cart.Items = append(cart.Items, CartItem{
			ProductID: product.ID,
			Name:      product.Name,
			Price:     product.Price,
			Image:     product.Image,
			Quantity:  quantity,
			AddedAt:   now,
		})
	}
	return s.save(ctx, cart, now)
}

// UpdateItem sets the quantity of a line.
func (s *cartService) UpdateItem(ctx context.Context, userID, productID string, quantity int) (Cart, error) {
	if err := validQuantity(quantity); err != nil {
		return Cart{}, err
	}
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	idx := slices.IndexFunc(cart.Items, func(item CartItem) bool { return item.ProductID == strings.TrimSpace(productID) })
	if idx < 0 {
		return Cart{}, ErrCartItemNotFound
	}
	cart.Items[idx].Quantity = quantity
	return s.save(ctx, cart, s.now())
}

func (s *cartService) RemoveItem(ctx context.Context, userID, productID string) (Cart, error) {
	cart, err := s.Get(ctx, userID)
	if err != nil {
		return Cart{}, err
	}
	before := len(cart.Items)
	cart.Items = slices.DeleteFunc(cart.Items, func(item CartItem) bool { return item.ProductID == strings.TrimSpace(productID) })
	if len(cart.Items) == before {
		return Cart{}, ErrCartItemNotFound
	}
	return s.save(ctx, cart, s.now())
}

func (s *cartService) save(ctx context.Context, cart Cart, now time.Time) (Cart, error) {
	cart.UpdatedAt = now
	if err := s.carts.Save(ctx, cart); err != nil {
		return Cart{}, err
	}
	return cart, nil
}

func validQuantity(quantity int) error {
	if quantity < 1 || quantity > maxCartQuantity {
		return fmt.Errorf("%w: quantity must be between 1 and %d", ErrCartInvalid, maxCartQuantity)
	}
	return nil
}
