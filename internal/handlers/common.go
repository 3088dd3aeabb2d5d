package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/services"
)

const (
	maxJSONBody     = 64 * 1024
	maxPageSize     = 100
	defaultPageSize = 20
)

func writeJSONResponse(w http.ResponseWriter, status int, payload any) {
	httpx.WriteJSON(w, status, payload)
}

// decodeBody decodes a JSON request body, writing a 400 or 413 envelope on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	err := httpx.DecodeJSON(r, dst, maxJSONBody)
	if err == nil {
		return true
	}
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httpx.WriteError(r.Context(), w, httpx.NewError("payload_too_large", "request body too large", http.StatusRequestEntityTooLarge))
		return false
	}
	httpx.WriteError(r.Context(), w, httpx.BadRequest("invalid_request", "request body must be valid JSON"))
	return false
}

// requireIdentity returns the authenticated account or writes 401.
func requireIdentity(w http.ResponseWriter, r *http.Request) (*auth.Identity, bool) {
	identity, ok := auth.IdentityFromContext(r.Context())
	if !ok || strings.TrimSpace(identity.UID) == "" {
		httpx.WriteError(r.Context(), w, httpx.NewError("unauthenticated", "authentication required", http.StatusUnauthorized))
		return nil, false
	}
	return identity, true
}

func serviceUnavailable(ctx context.Context, w http.ResponseWriter, name string) {
	httpx.WriteError(ctx, w, httpx.NewError(name+"_unavailable", name+" service unavailable", http.StatusServiceUnavailable))
}

func parsePagination(r *http.Request) (domain.Pagination, error) {
	q := r.URL.Query()
	pager := domain.Pagination{PageSize: defaultPageSize, PageToken: strings.TrimSpace(q.Get("page_token"))}
	if raw := strings.TrimSpace(q.Get("page_size")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return domain.Pagination{}, errors.New("page_size must be a positive integer")
		}
		pager.PageSize = min(size, maxPageSize)
	}
	return pager, nil
}

// money renders a decimal as a JSON number with two places.
func money(d decimal.Decimal) json.Number {
	return json.Number(d.StringFixed(2))
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

type accountResponse struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	Name      string `json:"name"`
	IsAdmin   bool   `json:"isAdmin"`
	CreatedAt string `json:"createdAt,omitempty"`
}

func newAccountResponse(a services.Account) accountResponse {
	return accountResponse{ID: a.ID, Email: a.Email, Name: a.Name, IsAdmin: a.IsAdmin, CreatedAt: formatTime(a.CreatedAt)}
}

type orderItemPayload struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
}

type addressPayload struct {
	Street  string `json:"street"`
	City    string `json:"city"`
	State   string `json:"state"`
	ZipCode string `json:"zipCode"`
	Country string `json:"country"`
}

func (a addressPayload) toDomain() domain.Address {
	return domain.Address{Street: a.Street, City: a.City, State: a.State, ZipCode: a.ZipCode, Country: a.Country}
}

func newAddressPayload(a domain.Address) addressPayload {
	return addressPayload{Street: a.Street, City: a.City, State: a.State, ZipCode: a.ZipCode, Country: a.Country}
}

type orderItemResponse struct {
	ProductID string      `json:"productId"`
	Name      string      `json:"name"`
	Price     json.Number `json:"price"`
	Quantity  int         `json:"quantity"`
	Image     string      `json:"image"`
}

type orderResponse struct {
	ID              string              `json:"id"`
	OrderNumber     string              `json:"orderNumber"`
	UserID          string              `json:"userId"`
	CustomerName    string              `json:"customerName"`
	CustomerEmail   string              `json:"customerEmail"`
	CustomerPhone   string              `json:"customerPhone"`
	Items           []orderItemResponse `json:"items"`
	Subtotal        json.Number         `json:"subtotal"`
	ShippingCost    json.Number         `json:"shippingCost"`
	Tax             json.Number         `json:"tax"`
	TotalAmount     json.Number         `json:"totalAmount"`
	FormattedTotal  string              `json:"formattedTotal"`
	Status          string              `json:"status"`
	ShippingAddress addressPayload      `json:"shippingAddress"`
	PaymentMethod   string              `json:"paymentMethod"`
	PaymentStatus   string              `json:"paymentStatus"`
	PaymentID       string              `json:"paymentId,omitempty"`
	TransactionID   string              `json:"transactionId,omitempty"`
	TrackingNumber  string              `json:"trackingNumber,omitempty"`
	CreatedAt       string              `json:"createdAt"`
	UpdatedAt       string              `json:"updatedAt"`
}

func newOrderResponse(o services.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(o.Items))
	for _, item := range o.Items {
		items = append(items, orderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Price:     money(item.Price),
			Quantity:  item.Quantity,
			Image:     item.Image,
		})
	}
	return orderResponse{
		ID:              o.ID,
		OrderNumber:     o.OrderNumber,
		UserID:          o.UserID,
		CustomerName:    o.Customer.Name,
		CustomerEmail:   o.Customer.Email,
		CustomerPhone:   o.Customer.Phone,
		Items:           items,
		Subtotal:        money(o.Subtotal),
		ShippingCost:    money(o.ShippingCost),
		Tax:             money(o.Tax),
		TotalAmount:     money(o.TotalAmount),
		FormattedTotal:  o.FormattedTotal(),
		Status:          string(o.Status),
		ShippingAddress: newAddressPayload(o.ShippingAddress),
		PaymentMethod:   string(o.PaymentMethod),
		PaymentStatus:   string(o.PaymentStatus),
		PaymentID:       o.Payment.PaymentID,
		TransactionID:   o.Payment.TransactionID,
		TrackingNumber:  o.TrackingNumber,
		CreatedAt:       formatTime(o.CreatedAt),
		UpdatedAt:       formatTime(o.UpdatedAt),
	}
}

type productResponse struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Price       json.Number `json:"price"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Category    string      `json:"category"`
	Stock       int         `json:"stock"`
	Rating      struct {
		Rate  float64 `json:"rate"`
		Count int     `json:"count"`
	} `json:"rating"`
	IsActive  bool   `json:"isActive"`
	CreatedAt string `json:"createdAt,omitempty"`
	UpdatedAt string `json:"updatedAt,omitempty"`
}

func newProductResponse(p services.Product) productResponse {
	resp := productResponse{
		ID:          p.ID,
		Name:        p.Name,
		Price:       money(p.Price),
		Description: p.Description,
		Image:       p.Image,
		Category:    p.Category,
		Stock:       p.Stock,
		IsActive:    p.IsActive,
		CreatedAt:   formatTime(p.CreatedAt),
		UpdatedAt:   formatTime(p.UpdatedAt),
	}
	resp.Rating.Rate = p.Rating.Rate
	resp.Rating.Count = p.Rating.Count
	return resp
}

func newProductResponses(products []services.Product) []productResponse {
	out := make([]productResponse, 0, len(products))
	for _, p := range products {
		out = append(out, newProductResponse(p))
	}
	return out
}
