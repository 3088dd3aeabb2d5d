package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"cloud.google.com/go/pubsub"
	cloudstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"
	"google.golang.org/api/option"

	"github.com/brightcart/api/internal/di"
	"github.com/brightcart/api/internal/handlers"
	"github.com/brightcart/api/internal/payments"
	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/config"
	"github.com/brightcart/api/internal/platform/events"
	pfirestore "github.com/brightcart/api/internal/platform/firestore"
	"github.com/brightcart/api/internal/platform/httpx"
	"github.com/brightcart/api/internal/platform/idempotency"
	"github.com/brightcart/api/internal/platform/observability"
	"github.com/brightcart/api/internal/platform/secrets"
	"github.com/brightcart/api/internal/platform/storage"
	"github.com/brightcart/api/internal/repositories"
	firestoreRepo "github.com/brightcart/api/internal/repositories/firestore"
	"github.com/brightcart/api/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	envValues, err := config.EnvironmentValues()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read environment values: %v\n", err)
		os.Exit(1)
	}

	baseLogger, err := observability.NewLogger(envValues["API_LOG_LEVEL"])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("api")

	fetcher, err := newSecretFetcher(ctx, logger, envValues)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx,
		config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)),
		config.WithRequiredSecrets(requiredSecretNames(envValues)...),
	)
	if err != nil {
		var missing *config.MissingSecretsError
		if errors.As(err, &missing) {
			logger.Fatal("missing required secrets", zap.Strings("secrets", missing.RedactedNames()))
		}
		logger.Fatal("failed to load configuration", zap.Error(err))
	}
	logger = logger.With(zap.String("environment", cfg.Environment))
	eventLogger := observability.EventLogger(logger)

	firestoreProvider := pfirestore.NewProvider(cfg.Firestore)
	if _, err := firestoreProvider.Client(ctx); err != nil {
		logger.Fatal("failed to initialise firestore client", zap.Error(err))
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := firestoreProvider.Close(closeCtx); err != nil {
			logger.Warn("firestore close error", zap.Error(err))
		}
	}()

	repos, err := newFirestoreRepositories(firestoreProvider)
	if err != nil {
		logger.Fatal("failed to initialise repositories", zap.Error(err))
	}
	repos.Health, err = repositories.NewDependencyHealthRepository([]repositories.DependencyCheck{
		{Name: "firestore", Timeout: 1500 * time.Millisecond, Check: firestoreProvider.Ping},
		{Name: "secretManager", Timeout: time.Second, Check: fetcher.Check},
	})
	if err != nil {
		logger.Fatal("failed to initialise health checks", zap.Error(err))
	}

	paymentManager, err := newPaymentManager(cfg, eventLogger)
	if err != nil {
		logger.Fatal("failed to initialise payment gateways", zap.Error(err))
	}

	publisher, stopPublisher, err := newEventPublisher(ctx, cfg, eventLogger)
	if err != nil {
		logger.Fatal("failed to initialise event publisher", zap.Error(err))
	}
	defer stopPublisher()

	images, closeImages, err := newImageStore(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise image store", zap.Error(err))
	}
	defer closeImages()

	metrics, err := observability.NewMetrics()
	if err != nil {
		logger.Warn("metrics disabled", zap.Error(err))
	}

	sessions, authenticator, err := newAuthenticator(ctx, cfg)
	if err != nil {
		logger.Fatal("failed to initialise authentication", zap.Error(err))
	}

	container, err := di.NewContainer(cfg, repos, di.Infrastructure{
		Payments:  paymentManager,
		Events:    publisher,
		Metrics:   metrics,
		Images:    images,
		Sessions:  sessions,
		Logger:    eventLogger,
		Clock:     time.Now,
		Version:   buildVersion(envValues),
		StartedAt: startedAt,
	})
	if err != nil {
		logger.Fatal("failed to build services", zap.Error(err))
	}

	idempotencyLogger := observability.NewPrintfAdapter(logger.Named("idempotency"))
	idempotencyStore := idempotency.NewFirestoreStore(firestoreProvider)
	idempotencyMiddleware := idempotency.Middleware(
		idempotencyStore,
		idempotency.WithHeader(cfg.Idempotency.Header),
		idempotency.WithTTL(cfg.Idempotency.TTL),
		idempotency.WithLogger(idempotencyLogger),
	)

	cleanupCtx, cleanupCancel := context.WithCancel(context.Background())
	var cleanupWG sync.WaitGroup
	cleanupWG.Add(1)
	go func() {
		defer cleanupWG.Done()
		runIdempotencyCleanup(cleanupCtx, logger.Named("idempotency"), idempotencyStore, cfg.Idempotency)
	}()

	opts := container.RouterOptions(di.RouterDeps{
		Authenticator: authenticator,
		Idempotency:   idempotencyMiddleware,
		Cleaner:       idempotencyStore,
		Internal:      internalMiddlewares(logger.Named("auth"), cfg, metrics),
		Middlewares: []func(http.Handler) http.Handler{
			observability.InjectLoggerMiddleware(logger),
			observability.TraceMiddleware(traceProjectID(cfg)),
			observability.RequestLoggerMiddleware(),
			observability.RecoveryMiddleware(),
		},
	})
	router := handlers.NewRouter(opts...)

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("brightcart api listening",
			zap.String("gateway", paymentManager.DefaultProvider()),
			zap.String("authProvider", cfg.Auth.Provider))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	cleanupCancel()
	cleanupWG.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}

func newFirestoreRepositories(provider *pfirestore.Provider) (di.Repositories, error) {
	accounts, err := firestoreRepo.NewAccountRepository(provider)
	if err != nil {
		return di.Repositories{}, fmt.Errorf("account repository: %w", err)
	}
	products, err := firestoreRepo.NewProductRepository(provider)
	if err != nil {
		return di.Repositories{}, fmt.Errorf("product repository: %w", err)
	}
	carts, err := firestoreRepo.NewCartRepository(provider)
	if err != nil {
		return di.Repositories{}, fmt.Errorf("cart repository: %w", err)
	}
	orders, err := firestoreRepo.NewOrderRepository(provider)
	if err != nil {
		return di.Repositories{}, fmt.Errorf("order repository: %w", err)
	}
	captures, err := firestoreRepo.NewCaptureRepository(provider)
	if err != nil {
		return di.Repositories{}, fmt.Errorf("capture repository: %w", err)
	}
	counters, err := firestoreRepo.NewCounterRepository(provider)
	if err != nil {
		return di.Repositories{}, fmt.Errorf("counter repository: %w", err)
	}
	return di.Repositories{
		Accounts: accounts,
		Products: products,
		Carts:    carts,
		Orders:   orders,
		Captures: captures,
		Counters: counters,
	}, nil
}

// newPaymentManager registers every gateway that has credentials; the configured one is the default.
func newPaymentManager(cfg config.Config, logger services.Logger) (*payments.Manager, error) {
	var providers []payments.Provider
	if cfg.Payments.RazorpayKeySecret != "" {
		razorpay, err := payments.NewRazorpayProvider(payments.RazorpayConfig{
			KeyID:     cfg.Payments.RazorpayKeyID,
			KeySecret: cfg.Payments.RazorpayKeySecret,
			Logger:    payments.Logger(logger),
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, razorpay)
	}
	if cfg.Payments.StripeAPIKey != "" {
		stripe, err := payments.NewStripeProvider(payments.StripeConfig{
			APIKey: cfg.Payments.StripeAPIKey,
			Logger: payments.Logger(logger),
		})
		if err != nil {
			return nil, err
		}
		providers = append(providers, stripe)
	}
	return payments.NewManager(providers, payments.WithDefaultProvider(cfg.Payments.Gateway))
}

// newEventPublisher publishes to Pub/Sub when a topic is configured and logs events otherwise.
func newEventPublisher(ctx context.Context, cfg config.Config, logger services.Logger) (services.EventPublisher, func(), error) {
	topicName := strings.TrimSpace(cfg.Events.OrderTopic)
	if topicName == "" {
		return events.LogPublisher{Log: logger}, func() {}, nil
	}
	client, err := pubsub.NewClient(ctx, cfg.Events.ProjectID)
	if err != nil {
		return nil, nil, fmt.Errorf("pubsub client: %w", err)
	}
	publisher, err := events.NewPubSubPublisher(client.Topic(topicName))
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return publisher, func() {
		publisher.Stop()
		_ = client.Close()
	}, nil
}

// newImageStore writes to Cloud Storage when a bucket is configured and to a local directory otherwise.
func newImageStore(ctx context.Context, cfg config.Config) (storage.ImageStore, func(), error) {
	bucket := strings.TrimSpace(cfg.Storage.ImagesBucket)
	if bucket == "" {
		store, err := storage.NewDirStore(cfg.Uploads.LocalDir, cfg.Storage.PublicBaseURL)
		if err != nil {
			return nil, nil, err
		}
		return store, func() {}, nil
	}
	var clientOpts []option.ClientOption
	if file := strings.TrimSpace(cfg.Firebase.CredentialsFile); file != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(file))
	}
	client, err := cloudstorage.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, nil, fmt.Errorf("storage client: %w", err)
	}
	store, err := storage.NewBucketStore(client, bucket, cfg.Storage.PublicBaseURL)
	if err != nil {
		_ = client.Close()
		return nil, nil, err
	}
	return store, func() { _ = client.Close() }, nil
}

// newAuthenticator returns the session issuer for local auth (nil under Firebase) and the bearer
// token authenticator for the configured provider.
func newAuthenticator(ctx context.Context, cfg config.Config) (*auth.Sessions, *auth.Authenticator, error) {
	if cfg.Auth.Provider == config.AuthProviderFirebase {
		verifier, err := auth.NewFirebaseVerifier(ctx, cfg.Firebase, cfg.Auth.AdminEmails)
		if err != nil {
			return nil, nil, err
		}
		return nil, auth.NewAuthenticator(verifier), nil
	}
	sessions, err := auth.NewSessions(cfg.Auth.JWTSecret, cfg.Auth.Issuer, cfg.Auth.TokenTTL)
	if err != nil {
		return nil, nil, err
	}
	return sessions, auth.NewAuthenticator(sessions), nil
}

func runIdempotencyCleanup(ctx context.Context, logger *zap.Logger, store *idempotency.FirestoreStore, cfg config.IdempotencyConfig) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			runCtx, cancel := context.WithTimeout(ctx, time.Minute)
			removed, err := store.CleanupExpired(runCtx, time.Now().UTC(), cfg.CleanupBatchSize)
			cancel()
			if err != nil {
				logger.Error("idempotency cleanup error", zap.Error(err))
				continue
			}
			if removed > 0 {
				logger.Info("idempotency cleanup removed records", zap.Int("count", removed))
			}
		case <-ctx.Done():
			return
		}
	}
}

// internalMiddlewares guards the /internal routes with Google-signed OIDC tokens.
func internalMiddlewares(logger *zap.Logger, cfg config.Config, metrics *observability.Metrics) []func(http.Handler) http.Handler {
	if strings.TrimSpace(cfg.Security.OIDC.JWKSURL) == "" {
		logger.Warn("auth: OIDC JWKS url not configured; internal routes are disabled")
		return []func(http.Handler) http.Handler{denyAll}
	}

	adapter := observability.NewPrintfAdapter(logger)
	cache := auth.NewJWKSCache(cfg.Security.OIDC.JWKSURL, auth.WithJWKSLogger(adapter))
	validator := auth.NewOIDCValidator(cache,
		auth.WithOIDCLogger(adapter),
		auth.WithOIDCMetrics(metrics),
	)

	audience := strings.TrimSpace(cfg.Security.OIDC.Audience)
	if audience == "" {
		logger.Warn("auth: OIDC audience not configured; internal routes will reject requests")
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		logger.Warn("auth: OIDC issuers not configured; internal routes will reject requests")
	}
	return []func(http.Handler) http.Handler{validator.RequireOIDC(audience, cfg.Security.OIDC.Issuers)}
}

func denyAll(http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		httpx.WriteError(r.Context(), w, httpx.NewError("internal_auth_unconfigured", "internal endpoints are not configured", http.StatusServiceUnavailable))
	})
}

func traceProjectID(cfg config.Config) string {
	if id := strings.TrimSpace(cfg.Firebase.ProjectID); id != "" {
		return id
	}
	return strings.TrimSpace(cfg.Firestore.ProjectID)
}

func buildVersion(env map[string]string) string {
	if version := strings.TrimSpace(env["API_BUILD_VERSION"]); version != "" {
		return version
	}
	return "dev"
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger, env map[string]string) (*secrets.Fetcher, error) {
	lookup := func(key string) string {
		return strings.TrimSpace(env[key])
	}

	project := lookup("API_SECRET_PROJECT_ID")
	if project == "" {
		project = lookup("API_FIREBASE_PROJECT_ID")
	}
	fallbackPath := lookup("API_SECRET_FALLBACK_FILE")
	if fallbackPath == "" {
		fallbackPath = ".secrets.local"
	}

	opts := []secrets.Option{
		secrets.WithLogger(logger.Named("secrets")),
		secrets.WithFallbackFile(fallbackPath),
	}
	if project != "" {
		opts = append(opts, secrets.WithProject(project))
	}
	if credentialsFile := lookup("API_FIREBASE_CREDENTIALS_FILE"); credentialsFile != "" {
		opts = append(opts, secrets.WithClientOptions(option.WithCredentialsFile(credentialsFile)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

// requiredSecretNames lists the credentials the selected gateway and auth provider cannot run without.
func requiredSecretNames(env map[string]string) []string {
	var required []string
	if !strings.EqualFold(strings.TrimSpace(env["API_AUTH_PROVIDER"]), config.AuthProviderFirebase) {
		required = append(required, "Auth.JWTSecret")
	}
	switch strings.ToLower(strings.TrimSpace(env["API_PAYMENTS_GATEWAY"])) {
	case config.GatewayStripe:
		required = append(required, "Payments.StripeAPIKey")
	default:
		required = append(required, "Payments.RazorpayKeyID", "Payments.RazorpayKeySecret")
	}
	return required
}
