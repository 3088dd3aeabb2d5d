package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/services"
)

func newRequest(method, target, body string) *http.Request {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func asUser(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: auth.RolesFor(false)}))
}

func asAdmin(req *http.Request, uid string) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), &auth.Identity{UID: uid, Roles: auth.RolesFor(true)}))
}

func decodeResponse(t *testing.T, rr *httptest.ResponseRecorder, dst any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), dst), "body: %s", rr.Body.String())
}

type stubCheckoutService struct {
	createFunc func(context.Context, services.CreatePaymentIntentCommand) (services.PaymentIntent, error)
	verifyFunc func(context.Context, services.VerifyPaymentCommand) (services.VerifyPaymentResult, error)
	listFunc   func(context.Context, services.CaptureListFilter) (domain.CursorPage[services.PaymentCapture], error)
	retryFunc  func(context.Context, services.RetryCaptureCommand) (services.VerifyPaymentResult, error)
	sweepFunc  func(context.Context) (services.SweepResult, error)
}

func (s *stubCheckoutService) CreatePaymentIntent(ctx context.Context, cmd services.CreatePaymentIntentCommand) (services.PaymentIntent, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.PaymentIntent{}, nil
}

func (s *stubCheckoutService) VerifyPayment(ctx context.Context, cmd services.VerifyPaymentCommand) (services.VerifyPaymentResult, error) {
	if s.verifyFunc != nil {
		return s.verifyFunc(ctx, cmd)
	}
	return services.VerifyPaymentResult{}, nil
}

func (s *stubCheckoutService) ListCaptures(ctx context.Context, filter services.CaptureListFilter) (domain.CursorPage[services.PaymentCapture], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[services.PaymentCapture]{}, nil
}

func (s *stubCheckoutService) RetryCapture(ctx context.Context, cmd services.RetryCaptureCommand) (services.VerifyPaymentResult, error) {
	if s.retryFunc != nil {
		return s.retryFunc(ctx, cmd)
	}
	return services.VerifyPaymentResult{}, nil
}

func (s *stubCheckoutService) SweepCaptures(ctx context.Context) (services.SweepResult, error) {
	if s.sweepFunc != nil {
		return s.sweepFunc(ctx)
	}
	return services.SweepResult{}, nil
}

type stubOrderService struct {
	listOwnFunc func(context.Context, string) ([]services.Order, error)
	getOwnFunc  func(context.Context, string, string) (services.Order, error)
	listFunc    func(context.Context, services.OrderListFilter) (domain.CursorPage[services.Order], error)
	getFunc     func(context.Context, string) (services.Order, error)
	updateFunc  func(context.Context, services.UpdateOrderStatusCommand) (services.Order, error)
	statsFunc   func(context.Context) (services.DashboardStats, error)
}

func (s *stubOrderService) ListOwn(ctx context.Context, userID string) ([]services.Order, error) {
	if s.listOwnFunc != nil {
		return s.listOwnFunc(ctx, userID)
	}
	return nil, nil
}

func (s *stubOrderService) GetOwn(ctx context.Context, userID, orderID string) (services.Order, error) {
	if s.getOwnFunc != nil {
		return s.getOwnFunc(ctx, userID, orderID)
	}
	return services.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) List(ctx context.Context, filter services.OrderListFilter) (domain.CursorPage[services.Order], error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return domain.CursorPage[services.Order]{}, nil
}

func (s *stubOrderService) Get(ctx context.Context, orderID string) (services.Order, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, orderID)
	}
	return services.Order{}, services.ErrOrderNotFound
}

func (s *stubOrderService) UpdateStatus(ctx context.Context, cmd services.UpdateOrderStatusCommand) (services.Order, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, cmd)
	}
	return services.Order{}, nil
}

func (s *stubOrderService) DashboardStats(ctx context.Context) (services.DashboardStats, error) {
	if s.statsFunc != nil {
		return s.statsFunc(ctx)
	}
	return services.DashboardStats{}, nil
}

type stubCartService struct {
	getFunc    func(context.Context, string) (services.Cart, error)
	addFunc    func(context.Context, string, string, int) (services.Cart, error)
	updateFunc func(context.Context, string, string, int) (services.Cart, error)
	removeFunc func(context.Context, string, string) (services.Cart, error)
}

func (s *stubCartService) Get(ctx context.Context, userID string) (services.Cart, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, userID)
	}
	return services.Cart{UserID: userID}, nil
}

func (s *stubCartService) AddItem(ctx context.Context, userID, productID string, quantity int) (services.Cart, error) {
	if s.addFunc != nil {
		return s.addFunc(ctx, userID, productID, quantity)
	}
	return services.Cart{UserID: userID}, nil
}

func (s *stubCartService) UpdateItem(ctx context.Context, userID, productID string, quantity int) (services.Cart, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, userID, productID, quantity)
	}
	return services.Cart{UserID: userID}, nil
}

func (s *stubCartService) RemoveItem(ctx context.Context, userID, productID string) (services.Cart, error) {
	if s.removeFunc != nil {
		return s.removeFunc(ctx, userID, productID)
	}
	return services.Cart{UserID: userID}, nil
}

type stubCatalogService struct {
	listFunc       func(context.Context, services.ProductListFilter) ([]services.Product, error)
	categoriesFunc func(context.Context) ([]string, error)
	getFunc        func(context.Context, string, bool) (services.Product, error)
	createFunc     func(context.Context, services.UpsertProductCommand) (services.Product, error)
	updateFunc     func(context.Context, string, services.UpsertProductCommand) (services.Product, error)
	deactivateFunc func(context.Context, string) error
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductListFilter) ([]services.Product, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return nil, nil
}

func (s *stubCatalogService) Categories(ctx context.Context) ([]string, error) {
	if s.categoriesFunc != nil {
		return s.categoriesFunc(ctx)
	}
	return nil, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, productID string, includeInactive bool) (services.Product, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, productID, includeInactive)
	}
	return services.Product{}, services.ErrProductNotFound
}

func (s *stubCatalogService) CreateProduct(ctx context.Context, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) UpdateProduct(ctx context.Context, productID string, cmd services.UpsertProductCommand) (services.Product, error) {
	if s.updateFunc != nil {
		return s.updateFunc(ctx, productID, cmd)
	}
	return services.Product{}, nil
}

func (s *stubCatalogService) DeactivateProduct(ctx context.Context, productID string) error {
	if s.deactivateFunc != nil {
		return s.deactivateFunc(ctx, productID)
	}
	return nil
}

type stubAccountService struct {
	registerFunc func(context.Context, services.RegisterCommand) (services.AuthResult, error)
	loginFunc    func(context.Context, services.LoginCommand) (services.AuthResult, error)
	profileFunc  func(context.Context, string) (services.Account, error)
}

func (s *stubAccountService) Register(ctx context.Context, cmd services.RegisterCommand) (services.AuthResult, error) {
	if s.registerFunc != nil {
		return s.registerFunc(ctx, cmd)
	}
	return services.AuthResult{}, nil
}

func (s *stubAccountService) Login(ctx context.Context, cmd services.LoginCommand) (services.AuthResult, error) {
	if s.loginFunc != nil {
		return s.loginFunc(ctx, cmd)
	}
	return services.AuthResult{}, nil
}

func (s *stubAccountService) Profile(ctx context.Context, accountID string) (services.Account, error) {
	if s.profileFunc != nil {
		return s.profileFunc(ctx, accountID)
	}
	return services.Account{}, services.ErrAccountNotFound
}

type stubUploadService struct {
	uploadFunc func(context.Context, services.UploadImageCommand) (services.UploadedImage, error)
}

func (s *stubUploadService) UploadImage(ctx context.Context, cmd services.UploadImageCommand) (services.UploadedImage, error) {
	if s.uploadFunc != nil {
		return s.uploadFunc(ctx, cmd)
	}
	return services.UploadedImage{}, nil
}

type stubHealthService struct {
	report services.HealthReport
	err    error
}

func (s *stubHealthService) Liveness(context.Context) services.HealthReport {
	return services.HealthReport{Status: domain.HealthStatusOK, Version: s.report.Version, Uptime: time.Minute}
}

func (s *stubHealthService) Readiness(context.Context) (services.HealthReport, error) {
	return s.report, s.err
}
