package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/repositories"
)

// ProductRepository keeps products in memory.
type ProductRepository struct {
	mu       sync.RWMutex
	products map[string]domain.Product
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

func NewProductRepository() *ProductRepository {
	return &ProductRepository{products: make(map[string]domain.Product)}
}

func (r *ProductRepository) Insert(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[product.ID]; ok {
		return repositories.NewStoreError(repositories.ErrorKindConflict, "product %s exists", product.ID)
	}
	r.products[product.ID] = product
	return nil
}

func (r *ProductRepository) Update(_ context.Context, product domain.Product) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.products[product.ID]; !ok {
		return repositories.NewStoreError(repositories.ErrorKindNotFound, "product %s not found", product.ID)
	}
	r.products[product.ID] = product
	return nil
}

func (r *ProductRepository) FindByID(_ context.Context, productID string) (domain.Product, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	product, ok := r.products[productID]
	if !ok {
		return domain.Product{}, repositories.NewStoreError(repositories.ErrorKindNotFound, "product %s not found", productID)
	}
	return product, nil
}

func (r *ProductRepository) List(_ context.Context, filter repositories.ProductFilter) ([]domain.Product, error) {
	key := domain.CategoryKey(filter.Category)
	r.mu.RLock()
	products := lo.Filter(lo.Values(r.products), func(p domain.Product, _ int) bool {
		if filter.ActiveOnly && !p.IsActive {
			return false
		}
		return strings.TrimSpace(filter.Category) == "" || domain.CategoryKey(p.Category) == key
	})
	r.mu.RUnlock()
	sortNewestFirst(products, func(p domain.Product) (time.Time, string) { return p.CreatedAt, p.ID })
	return products, nil
}

func (r *ProductRepository) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.products), nil
}

// AccountRepository keeps accounts in memory with a unique email index.
type AccountRepository struct {
	mu       sync.RWMutex
	accounts map[string]domain.Account
	byEmail  map[string]string
}

var _ repositories.AccountRepository = (*AccountRepository)(nil)

func NewAccountRepository() *AccountRepository {
	return &AccountRepository{accounts: make(map[string]domain.Account), byEmail: make(map[string]string)}
}

func (r *AccountRepository) Insert(_ context.Context, account domain.Account) error {
	email := strings.ToLower(strings.TrimSpace(account.Email))
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byEmail[email]; ok {
		return repositories.ErrDuplicateEmail
	}
	r.accounts[account.ID] = account
	r.byEmail[email] = account.ID
	return nil
}

func (r *AccountRepository) FindByID(_ context.Context, accountID string) (domain.Account, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	account, ok := r.accounts[accountID]
	if !ok {
		return domain.Account{}, repositories.NewStoreError(repositories.ErrorKindNotFound, "account %s not found", accountID)
	}
	return account, nil
}

func (r *AccountRepository) FindByEmail(ctx context.Context, email string) (domain.Account, error) {
	r.mu.RLock()
	id, ok := r.byEmail[strings.ToLower(strings.TrimSpace(email))]
	r.mu.RUnlock()
	if !ok {
		return domain.Account{}, repositories.NewStoreError(repositories.ErrorKindNotFound, "account not found")
	}
	return r.FindByID(ctx, id)
}

func (r *AccountRepository) Count(context.Context) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.accounts), nil
}

// CartRepository keeps one cart per account in memory.
type CartRepository struct {
	mu    sync.RWMutex
	carts map[string]domain.Cart
}

var _ repositories.CartRepository = (*CartRepository)(nil)

func NewCartRepository() *CartRepository {
	return &CartRepository{carts: make(map[string]domain.Cart)}
}

func (r *CartRepository) Get(_ context.Context, userID string) (domain.Cart, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cart, ok := r.carts[userID]
	if !ok {
		return domain.Cart{UserID: userID}, nil
	}
	cart.Items = append([]domain.CartItem(nil), cart.Items...)
	return cart, nil
}

func (r *CartRepository) Save(_ context.Context, cart domain.Cart) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cart.Items = append([]domain.CartItem(nil), cart.Items...)
	r.carts[cart.UserID] = cart
	return nil
}
