package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"github.com/samber/lo"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/repositories"
)

const maxProductNameLength = 200

var (
	// ErrProductNotFound is returned for unknown products and, on public reads, inactive ones.
	ErrProductNotFound = errors.New("catalog: product not found")
	// ErrProductInvalid indicates missing or malformed product fields.
	ErrProductInvalid = errors.New("catalog: invalid product")
)

// CatalogServiceDeps wires the catalog service.
type CatalogServiceDeps struct {
	Products    repositories.ProductRepository
	Clock       func() time.Time
	Logger      Logger
	IDGenerator func() string
}

type catalogService struct {
	products repositories.ProductRepository
	policy   *bluemonday.Policy
	now      func() time.Time
	logger   Logger
	newID    func() string
}

// NewCatalogService constructs a CatalogService.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = nopLogger
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string { return "prod_" + strings.ToLower(ulid.Make().String()) }
	}
	return &catalogService{
		products: deps.Products,
		policy:   bluemonday.StrictPolicy(),
		now:      func() time.Time { return clock().UTC() },
		logger:   logger,
		newID:    idGen,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) ([]Product, error) {
	return s.products.List(ctx, repositories.ProductFilter{
		Category:   strings.TrimSpace(filter.Category),
		ActiveOnly: !filter.IncludeInactive,
	})
}

// Categories returns the distinct categories of active products, compared case-insensitively and
// sorted by folded name. The first spelling seen wins.
func (s *catalogService) Categories(ctx context.Context) ([]string, error) {
	products, err := s.products.List(ctx, repositories.ProductFilter{ActiveOnly: true})
	if err != nil {
		return nil, err
	}
	named := lo.Filter(products, func(p Product, _ int) bool { return strings.TrimSpace(p.Category) != "" })
	unique := lo.UniqBy(named, func(p Product) string { return domain.CategoryKey(p.Category) })
	categories := lo.Map(unique, func(p Product, _ int) string { return strings.TrimSpace(p.Category) })
	sort.SliceStable(categories, func(i, j int) bool {
		return domain.CategoryKey(categories[i]) < domain.CategoryKey(categories[j])
	})
	return categories, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string, includeInactive bool) (Product, error) {
	product, err := s.find(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	if !product.IsActive && !includeInactive {
		return Product{}, ErrProductNotFound
	}
	return product, nil
}

func (s *catalogService) CreateProduct(ctx context.Context, cmd UpsertProductCommand) (Product, error) {
	for _, f := range []struct {
		name    string
		missing bool
	}{
		{"name", cmd.Name == nil},
		{"price", cmd.Price == nil},
		{"description", cmd.Description == nil},
		{"image", cmd.Image == nil},
		{"category", cmd.Category == nil},
	} {
		if f.missing {
			return Product{}, fmt.Errorf("%w: %s is required", ErrProductInvalid, f.name)
		}
	}

	now := s.now()
	product := Product{
		ID:        s.newID(),
		IsActive:  true,
		CreatedAt: now,
	}
	if err := s.apply(&product, cmd); err != nil {
		return Product{}, err
	}
	product.UpdatedAt = now
	if err := s.products.Insert(ctx, product); err != nil {
		return Product{}, err
	}
	s.logger(ctx, "catalog.product.created", map[string]any{"productId": product.ID, "category": product.Category})
	return product, nil
}

func (s *catalogService) UpdateProduct(ctx context.Context, productID string, cmd UpsertProductCommand) (Product, error) {
	product, err := s.find(ctx, productID)
	if err != nil {
		return Product{}, err
	}
	if err := s.apply(&product, cmd); err != nil {
		return Product{}, err
	}
	product.UpdatedAt = s.now()
	if err := s.products.Update(ctx, product); err != nil {
		if repositories.IsNotFound(err) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	s.logger(ctx, "catalog.product.updated", map[string]any{"productId": product.ID})
	return product, nil
}

// DeactivateProduct hides the product from public listings. Orders keep their item snapshots.
func (s *catalogService) DeactivateProduct(ctx context.Context, productID string) error {
	inactive := false
	_, err := s.UpdateProduct(ctx, productID, UpsertProductCommand{IsActive: &inactive})
	return err
}

func (s *catalogService) find(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, ErrProductNotFound
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Product{}, ErrProductNotFound
		}
		return Product{}, err
	}
	return product, nil
}

// clean strips markup and decodes the entities the policy escapes; values are stored as plain text.
func (s *catalogService) clean(value string) string {
	return strings.TrimSpace(html.UnescapeString(s.policy.Sanitize(value)))
}

// apply copies the supplied fields onto product after sanitising free text.
func (s *catalogService) apply(product *Product, cmd UpsertProductCommand) error {
	if cmd.Name != nil {
		name := s.clean(*cmd.Name)
		if name == "" || len(name) > maxProductNameLength {
			return fmt.Errorf("%w: name must be 1-%d characters", ErrProductInvalid, maxProductNameLength)
		}
		product.Name = name
	}
	if cmd.Price != nil {
		if cmd.Price.IsNegative() {
			return fmt.Errorf("%w: price must not be negative", ErrProductInvalid)
		}
		product.Price = cmd.Price.Round(2)
	}
	if cmd.Description != nil {
		description := s.clean(*cmd.Description)
		if description == "" {
			return fmt.Errorf("%w: description is required", ErrProductInvalid)
		}
		product.Description = description
	}
	if cmd.Image != nil {
		image := strings.TrimSpace(*cmd.Image)
		if image == "" {
			return fmt.Errorf("%w: image is required", ErrProductInvalid)
		}
		product.Image = image
	}
	if cmd.Category != nil {
		category := s.clean(*cmd.Category)
		if category == "" {
			return fmt.Errorf("%w: category is required", ErrProductInvalid)
		}
		product.Category = category
	}
	if cmd.Stock != nil {
		if *cmd.Stock < 0 {
			return fmt.Errorf("%w: stock must not be negative", ErrProductInvalid)
		}
		product.Stock = *cmd.Stock
	}
	if cmd.IsActive != nil {
		product.IsActive = *cmd.IsActive
	}
	return nil
}
