package di

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	domain "github.com/brightcart/api/internal/domain"
	"github.com/brightcart/api/internal/handlers"
	"github.com/brightcart/api/internal/payments"
	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/config"
	"github.com/brightcart/api/internal/platform/storage"
	"github.com/brightcart/api/internal/repositories"
	"github.com/brightcart/api/internal/services"
)

// Repositories bundles the persistence ports. Production wiring passes the Firestore
// implementations; tests pass the in-memory ones.
type Repositories struct {
	Accounts repositories.AccountRepository
	Products repositories.ProductRepository
	Carts    repositories.CartRepository
	Orders   repositories.OrderRepository
	Captures repositories.CaptureRepository
	Counters repositories.CounterRepository
	Health   repositories.HealthRepository
}

// Infrastructure carries the non-repository collaborators of the services.
type Infrastructure struct {
	Payments  *payments.Manager
	Events    services.EventPublisher
	Metrics   services.CheckoutMetrics
	Images    storage.ImageStore
	Sessions  *auth.Sessions
	Logger    services.Logger
	Clock     func() time.Time
	Version   string
	StartedAt time.Time
}

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Accounts services.AccountService
	Catalog  services.CatalogService
	Cart     services.CartService
	Checkout services.CheckoutService
	Orders   services.OrderService
	Uploads  services.UploadService
	Health   services.HealthService
}

// Container wires repositories and services for runtime use.
type Container struct {
	Config       config.Config
	Repositories Repositories
	Services     Services
}

// NewContainer constructs every service from the supplied repositories and infrastructure.
func NewContainer(cfg config.Config, repos Repositories, infra Infrastructure) (*Container, error) {
	if infra.Payments == nil {
		return nil, errors.New("di: payment manager is required")
	}
	svc, err := buildServices(cfg, repos, infra)
	if err != nil {
		return nil, err
	}
	return &Container{
		Config:       cfg,
		Repositories: repos,
		Services:     svc,
	}, nil
}

func buildServices(cfg config.Config, repos Repositories, infra Infrastructure) (Services, error) {
	var svc Services
	clock := infra.Clock
	if clock == nil {
		clock = time.Now
	}

	var sessions interface {
		Issue(auth.SessionSubject) (auth.IssuedToken, error)
	}
	// A typed nil would read as configured.
	if infra.Sessions != nil {
		sessions = infra.Sessions
	}
	accounts, err := services.NewAccountService(services.AccountServiceDeps{
		Accounts:    repos.Accounts,
		Sessions:    sessions,
		AdminEmails: cfg.Auth.AdminEmails,
		Clock:       clock,
		Logger:      infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build account service: %w", err)
	}
	svc.Accounts = accounts

	catalog, err := services.NewCatalogService(services.CatalogServiceDeps{
		Products: repos.Products,
		Clock:    clock,
		Logger:   infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build catalog service: %w", err)
	}
	svc.Catalog = catalog

	cart, err := services.NewCartService(services.CartServiceDeps{
		Carts:    repos.Carts,
		Products: repos.Products,
		Clock:    clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build cart service: %w", err)
	}
	svc.Cart = cart

	allocator, err := services.NewOrderNumberAllocator(services.OrderNumberAllocatorDeps{
		Orders:   repos.Orders,
		Counters: repos.Counters,
		Clock:    clock,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order number allocator: %w", err)
	}

	totals, err := domain.NewTotalsCalculator(cfg.Payments.TaxRate)
	if err != nil {
		return Services{}, fmt.Errorf("build totals calculator: %w", err)
	}

	checkout, err := services.NewCheckoutService(services.CheckoutServiceDeps{
		Payments:    infra.Payments,
		Captures:    repos.Captures,
		Orders:      repos.Orders,
		Allocator:   allocator,
		Totals:      &totals,
		Events:      infra.Events,
		Metrics:     infra.Metrics,
		Currency:    cfg.Payments.Currency,
		GracePeriod: cfg.Reconciliation.GracePeriod,
		SweepBatch:  cfg.Reconciliation.BatchSize,
		Clock:       clock,
		Logger:      infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build checkout service: %w", err)
	}
	svc.Checkout = checkout

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:   repos.Orders,
		Accounts: repos.Accounts,
		Products: repos.Products,
		Events:   infra.Events,
		Clock:    clock,
		Logger:   infra.Logger,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	if infra.Images != nil {
		uploads, err := services.NewUploadService(services.UploadServiceDeps{
			Store:    infra.Images,
			MaxBytes: cfg.Uploads.MaxBytes,
			Clock:    clock,
			Logger:   infra.Logger,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build upload service: %w", err)
		}
		svc.Uploads = uploads
	}

	if repos.Health != nil {
		health, err := services.NewHealthService(services.HealthServiceDeps{
			Health:      repos.Health,
			Version:     infra.Version,
			Environment: cfg.Environment,
			StartedAt:   infra.StartedAt,
			Clock:       clock,
		})
		if err != nil {
			return Services{}, fmt.Errorf("build health service: %w", err)
		}
		svc.Health = health
	}

	return svc, nil
}

// RouterDeps carries the HTTP-layer collaborators that are not services.
type RouterDeps struct {
	Authenticator *auth.Authenticator
	Idempotency   func(http.Handler) http.Handler
	Cleaner       handlers.IdempotencyCleaner
	Internal      []func(http.Handler) http.Handler
	Middlewares   []func(http.Handler) http.Handler
}

// RouterOptions maps the container's services onto the router's route groups.
func (c *Container) RouterOptions(deps RouterDeps) []handlers.Option {
	authn := deps.Authenticator
	svc := c.Services

	productHandlers := handlers.NewProductHandlers(authn, svc.Catalog)
	orderHandlers := handlers.NewOrderHandlers(authn, svc.Orders)
	reconciliationHandlers := handlers.NewReconciliationHandlers(authn, svc.Checkout)

	opts := []handlers.Option{
		handlers.WithMiddlewares(deps.Middlewares...),
		handlers.WithAuthRoutes(handlers.NewAuthHandlers(authn, svc.Accounts).Routes),
		handlers.WithProductRoutes(productHandlers.Routes),
		handlers.WithCartRoutes(handlers.NewCartHandlers(authn, svc.Cart).Routes),
		handlers.WithCheckoutRoutes(handlers.NewCheckoutHandlers(authn, svc.Checkout,
			handlers.WithCheckoutIdempotency(deps.Idempotency)).Routes),
		handlers.WithOrderRoutes(orderHandlers.Routes),
		handlers.WithAdminRoutes(handlers.Compose(
			productHandlers.AdminRoutes,
			orderHandlers.AdminRoutes,
			reconciliationHandlers.AdminRoutes,
		)),
		handlers.WithInternalRoutes(handlers.NewInternalHandlers(svc.Checkout, deps.Cleaner, nil).Routes),
		handlers.WithInternalMiddlewares(deps.Internal...),
	}
	if svc.Uploads != nil {
		opts = append(opts, handlers.WithUploadRoutes(
			handlers.NewUploadHandlers(authn, svc.Uploads, c.Config.Uploads.MaxBytes).Routes))
	}
	if svc.Health != nil {
		opts = append(opts, handlers.WithHealthHandlers(handlers.NewHealthHandlers(svc.Health)))
	}
	return opts
}
