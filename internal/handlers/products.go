package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

// ProductHandlers serves the public catalog and the admin product endpoints.
type ProductHandlers struct {
	authn   *auth.Authenticator
	catalog services.CatalogService
}

// NewProductHandlers constructs product handlers.
func NewProductHandlers(authn *auth.Authenticator, catalog services.CatalogService) *ProductHandlers {
	return &ProductHandlers{authn: authn, catalog: catalog}
}

// Routes registers the public /products endpoints.
func (h *ProductHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/categories", h.listCategories)
	r.Get("/category/{category}", h.listByCategory)
	r.Get("/{productID}", h.getProduct)
}

// AdminRoutes registers the /admin/products endpoints.
func (h *ProductHandlers) AdminRoutes(r chi.Router) {
	if r == nil {
		return
	}
	admin := r
	if h.authn != nil {
		admin = r.With(h.authn.RequireAuth(auth.RoleAdmin))
	}
	admin.Get("/products", h.adminListProducts)
	admin.Post("/products", h.createProduct)
	admin.Get("/products/{productID}", h.adminGetProduct)
	admin.Put("/products/{productID}", h.updateProduct)
	admin.Delete("/products/{productID}", h.deactivateProduct)
}

type productRequest struct {
	Name        *string          `json:"name"`
	Price       *decimal.Decimal `json:"price"`
	Description *string          `json:"description"`
	Image       *string          `json:"image"`
	Category    *string          `json:"category"`
	Stock       *int             `json:"stock"`
	IsActive    *bool            `json:"isActive"`
}

func (req productRequest) command() services.UpsertProductCommand {
	return services.UpsertProductCommand{
		Name:        req.Name,
		Price:       req.Price,
		Description: req.Description,
		Image:       req.Image,
		Category:    req.Category,
		Stock:       req.Stock,
		IsActive:    req.IsActive,
	}
}

func (h *ProductHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	h.writeProducts(w, r, services.ProductListFilter{})
}

func (h *ProductHandlers) listByCategory(w http.ResponseWriter, r *http.Request) {
	category, err := url.PathUnescape(chi.URLParam(r, "category"))
	if err != nil || strings.TrimSpace(category) == "" {
		httpx.WriteError(r.Context(), w, httpx.BadRequest("invalid_request", "category is required"))
		return
	}
	h.writeProducts(w, r, services.ProductListFilter{Category: category})
}

func (h *ProductHandlers) adminListProducts(w http.ResponseWriter, r *http.Request) {
	h.writeProducts(w, r, services.ProductListFilter{
		Category:        strings.TrimSpace(r.URL.Query().Get("category")),
		IncludeInactive: true,
	})
}

func (h *ProductHandlers) writeProducts(w http.ResponseWriter, r *http.Request, filter services.ProductListFilter) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	products, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newProductResponses(products))
}

func (h *ProductHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	categories, err := h.catalog.Categories(ctx)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	if categories == nil {
		categories = []string{}
	}
	writeJSONResponse(w, http.StatusOK, categories)
}

func (h *ProductHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	h.writeProduct(w, r, false)
}

func (h *ProductHandlers) adminGetProduct(w http.ResponseWriter, r *http.Request) {
	h.writeProduct(w, r, true)
}

func (h *ProductHandlers) writeProduct(w http.ResponseWriter, r *http.Request, includeInactive bool) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	product, err := h.catalog.GetProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID")), includeInactive)
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newProductResponse(product))
}

func (h *ProductHandlers) createProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req productRequest
	if !decodeBody(w, r, &req) {
		return
	}
	product, err := h.catalog.CreateProduct(ctx, req.command())
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusCreated, newProductResponse(product))
}

func (h *ProductHandlers) updateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	var req productRequest
	if !decodeBody(w, r, &req) {
		return
	}
	product, err := h.catalog.UpdateProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID")), req.command())
	if err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, newProductResponse(product))
}

func (h *ProductHandlers) deactivateProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		serviceUnavailable(ctx, w, "catalog")
		return
	}
	if err := h.catalog.DeactivateProduct(ctx, strings.TrimSpace(chi.URLParam(r, "productID"))); err != nil {
		writeProductError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]string{"message": "Product deactivated"})
}

func writeProductError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	case errors.Is(err, services.ErrProductInvalid):
		httpx.WriteError(ctx, w, httpx.BadRequest("invalid_product", err.Error()))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process product request", http.StatusInternalServerError))
	}
}
