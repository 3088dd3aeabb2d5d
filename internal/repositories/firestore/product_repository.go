package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/brightcart/api/internal/domain"
	pfirestore "github.com/brightcart/api/internal/platform/firestore"
	"github.com/brightcart/api/internal/repositories"
)

const productsCollection = "products"

type productDocument struct {
	Name        string    `firestore:"name"`
	Price       string    `firestore:"price"`
	Description string    `firestore:"description"`
	Image       string    `firestore:"image"`
	Category    string    `firestore:"category"`
	CategoryKey string    `firestore:"categoryKey"`
	Stock       int       `firestore:"stock"`
	RatingRate  float64   `firestore:"ratingRate"`
	RatingCount int       `firestore:"ratingCount"`
	IsActive    bool      `firestore:"isActive"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

// ProductRepository stores catalog entries in the products collection.
type ProductRepository struct {
	products *pfirestore.Collection[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{products: pfirestore.NewCollection[productDocument](provider, productsCollection)}, nil
}

func (r *ProductRepository) Insert(ctx context.Context, product domain.Product) error {
	return r.products.Create(ctx, product.ID, encodeProduct(product))
}

func (r *ProductRepository) Update(ctx context.Context, product domain.Product) error {
	if _, err := r.products.Get(ctx, product.ID); err != nil {
		return err
	}
	return r.products.Set(ctx, product.ID, encodeProduct(product))
}

func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	doc, err := r.products.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProduct(productID, doc)
}

// List returns products newest first.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductFilter) ([]domain.Product, error) {
	docs, ids, err := r.products.Query(ctx, func(q firestore.Query) firestore.Query {
		if filter.ActiveOnly {
			q = q.Where("isActive", "==", true)
		}
		if filter.Category != "" {
			q = q.Where("categoryKey", "==", domain.CategoryKey(filter.Category))
		}
		return q.OrderBy("createdAt", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}
	products := make([]domain.Product, 0, len(docs))
	for i, doc := range docs {
		product, err := decodeProduct(ids[i], doc)
		if err != nil {
			return nil, err
		}
		products = append(products, product)
	}
	return products, nil
}

func (r *ProductRepository) Count(ctx context.Context) (int, error) {
	return r.products.Count(ctx, nil)
}

func encodeProduct(p domain.Product) productDocument {
	return productDocument{
		Name:        p.Name,
		Price:       p.Price.String(),
		Description: p.Description,
		Image:       p.Image,
		Category:    p.Category,
		CategoryKey: domain.CategoryKey(p.Category),
		Stock:       p.Stock,
		RatingRate:  p.Rating.Rate,
		RatingCount: p.Rating.Count,
		IsActive:    p.IsActive,
		CreatedAt:   p.CreatedAt,
		UpdatedAt:   p.UpdatedAt,
	}
}

func decodeProduct(id string, doc productDocument) (domain.Product, error) {
	price, err := parseMoney("price", doc.Price)
	if err != nil {
		return domain.Product{}, fmt.Errorf("product %s: %w", id, err)
	}
	return domain.Product{
		ID:          id,
		Name:        doc.Name,
		Price:       price,
		Description: doc.Description,
		Image:       doc.Image,
		Category:    doc.Category,
		Stock:       doc.Stock,
		Rating:      domain.Rating{Rate: doc.RatingRate, Count: doc.RatingCount},
		IsActive:    doc.IsActive,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}, nil
}
