package config

import (
	"bufio"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"
)

const (
	envPrefix      = "API_"
	defaultEnvFile = ".env"

	// AuthProviderLocal issues and verifies HS256 session tokens.
	AuthProviderLocal = "local"
	// AuthProviderFirebase verifies Firebase ID tokens.
	AuthProviderFirebase = "firebase"

	// GatewayRazorpay selects the Razorpay payment gateway.
	GatewayRazorpay = "razorpay"
	// GatewayStripe selects the Stripe payment gateway.
	GatewayStripe = "stripe"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment    string               `env:"ENVIRONMENT" envDefault:"local"`
	Server         ServerConfig         `envPrefix:"SERVER_"`
	Firebase       FirebaseConfig       `envPrefix:"FIREBASE_"`
	Firestore      FirestoreConfig      `envPrefix:"FIRESTORE_"`
	Storage        StorageConfig        `envPrefix:"STORAGE_"`
	Payments       PaymentsConfig       `envPrefix:"PAYMENTS_"`
	Auth           AuthConfig           `envPrefix:"AUTH_"`
	Security       SecurityConfig       `envPrefix:"SECURITY_"`
	Idempotency    IdempotencyConfig    `envPrefix:"IDEMPOTENCY_"`
	Events         EventsConfig         `envPrefix:"EVENTS_"`
	Uploads        UploadsConfig        `envPrefix:"UPLOADS_"`
	Reconciliation ReconciliationConfig `envPrefix:"RECONCILIATION_"`
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout     time.Duration `env:"IDLE_TIMEOUT" envDefault:"120s"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string `env:"PROJECT_ID"`
	CredentialsFile string `env:"CREDENTIALS_FILE"`
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID    string `env:"PROJECT_ID"`
	EmulatorHost string `env:"EMULATOR_HOST"`
}

// StorageConfig names the bucket product images are written to. Uploads fall back to the local
// directory in UploadsConfig when no bucket is set.
type StorageConfig struct {
	ImagesBucket  string `env:"IMAGES_BUCKET"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL"`
}

// PaymentsConfig selects the gateway and holds its credentials. Stripe confirmations are checked
// by looking the PaymentIntent up with StripeAPIKey, so Stripe needs no separate signing secret.
type PaymentsConfig struct {
	Gateway           string          `env:"GATEWAY" envDefault:"razorpay"`
	Currency          string          `env:"CURRENCY"`
	TaxRate           decimal.Decimal `env:"TAX_RATE" envDefault:"0.08"`
	RazorpayKeyID     string          `env:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret string          `env:"RAZORPAY_KEY_SECRET"`
	StripeAPIKey      string          `env:"STRIPE_API_KEY"`
}

// AuthConfig controls end-user authentication.
type AuthConfig struct {
	Provider    string        `env:"PROVIDER" envDefault:"local"`
	JWTSecret   string        `env:"JWT_SECRET"`
	TokenTTL    time.Duration `env:"TOKEN_TTL" envDefault:"168h"`
	Issuer      string        `env:"ISSUER" envDefault:"brightcart-api"`
	AdminEmails []string      `env:"ADMIN_EMAILS" envSeparator:","`
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	OIDC OIDCConfig `envPrefix:"OIDC_"`
}

// OIDCConfig controls verification of Google-signed tokens on internal endpoints.
type OIDCConfig struct {
	JWKSURL   string            `env:"JWKS_URL" envDefault:"https://www.googleapis.com/oauth2/v3/certs"`
	Audience  string            `env:"AUDIENCE"`
	Audiences map[string]string `env:"AUDIENCES" envSeparator:"," envKeyValSeparator:"="`
	Issuers   []string          `env:"ISSUERS" envSeparator:"," envDefault:"https://accounts.google.com"`
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string        `env:"HEADER" envDefault:"Idempotency-Key"`
	TTL              time.Duration `env:"TTL" envDefault:"24h"`
	CleanupInterval  time.Duration `env:"CLEANUP_INTERVAL" envDefault:"1h"`
	CleanupBatchSize int           `env:"CLEANUP_BATCH" envDefault:"200"`
}

// EventsConfig selects the Pub/Sub topic for order events. Events are only logged when the topic
// is empty.
type EventsConfig struct {
	ProjectID  string `env:"PROJECT_ID"`
	OrderTopic string `env:"ORDER_TOPIC"`
}

// UploadsConfig limits image uploads.
type UploadsConfig struct {
	MaxBytes int64  `env:"MAX_BYTES" envDefault:"5242880"`
	LocalDir string `env:"LOCAL_DIR" envDefault:"uploads/images"`
}

// ReconciliationConfig controls retries of captured payments whose order was not stored.
type ReconciliationConfig struct {
	GracePeriod time.Duration `env:"GRACE_PERIOD" envDefault:"10m"`
	BatchSize   int           `env:"BATCH_SIZE" envDefault:"50"`
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing or invalid field names.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError lists required secrets that resolved to empty values. Names are exposed only
// in redacted form through Error.
type MissingSecretsError struct {
	names []string
}

func (e *MissingSecretsError) Error() string {
	if e == nil || len(e.names) == 0 {
		return "missing required secrets"
	}
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// Names returns the config field names of the missing secrets.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

// RedactedNames returns stable hashes of the missing secret names.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		out = append(out, redactSecretName(name))
	}
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values that take precedence over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv ignores the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Auth.JWTSecret") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{envFile: defaultEnvFile, useSystemEnv: true}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// EnvironmentValues returns the merged environment with precedence .env < OS env < explicit map.
// Callers use it to build dependencies, such as the secret fetcher, before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	return mergedEnvironment(newLoaderOptions(opts))
}

func mergedEnvironment(options loaderOptions) (map[string]string, error) {
	values, err := loadDotEnv(options.envFile)
	if err != nil {
		return nil, err
	}
	if values == nil {
		values = make(map[string]string)
	}
	if options.useSystemEnv {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if !ok || strings.TrimSpace(key) == "" {
				continue
			}
			values[strings.TrimSpace(key)] = value
		}
	}
	for key, value := range options.envMap {
		values[key] = value
	}
	return values, nil
}

// Load parses API_-prefixed settings from the merged environment, resolves secret references and
// validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	values, err := mergedEnvironment(options)
	if err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := env.ParseWithOptions(&cfg, env.Options{Environment: values, Prefix: envPrefix}); err != nil {
		return Config{}, fmt.Errorf("config: parse environment: %w", err)
	}
	normalize(&cfg)

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Auth.JWTSecret", &cfg.Auth.JWTSecret},
		{"Payments.RazorpayKeyID", &cfg.Payments.RazorpayKeyID},
		{"Payments.RazorpayKeySecret", &cfg.Payments.RazorpayKeySecret},
		{"Payments.StripeAPIKey", &cfg.Payments.StripeAPIKey},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		return Config{}, missing
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Environment = strings.ToLower(strings.TrimSpace(cfg.Environment))
	cfg.Auth.Provider = strings.ToLower(strings.TrimSpace(cfg.Auth.Provider))
	cfg.Payments.Gateway = strings.ToLower(strings.TrimSpace(cfg.Payments.Gateway))
	cfg.Payments.Currency = strings.ToUpper(strings.TrimSpace(cfg.Payments.Currency))
	if cfg.Payments.Currency == "" {
		cfg.Payments.Currency = "INR"
		if cfg.Payments.Gateway == GatewayStripe {
			cfg.Payments.Currency = "USD"
		}
	}
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Events.ProjectID == "" {
		cfg.Events.ProjectID = cfg.Firestore.ProjectID
	}
	if cfg.Security.OIDC.Audience == "" {
		cfg.Security.OIDC.Audience = cfg.Security.OIDC.Audiences[cfg.Environment]
	}
	emails := cfg.Auth.AdminEmails[:0]
	for _, email := range cfg.Auth.AdminEmails {
		if trimmed := strings.ToLower(strings.TrimSpace(email)); trimmed != "" {
			emails = append(emails, trimmed)
		}
	}
	cfg.Auth.AdminEmails = emails
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if !isSecretReference(value) {
		return value, nil
	}
	ref := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var fields []string
	invalid := func(name string) { fields = append(fields, name) }

	if strings.TrimSpace(cfg.Server.Port) == "" {
		invalid("Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		invalid("Firestore.ProjectID")
	}
	switch cfg.Auth.Provider {
	case AuthProviderLocal:
		if strings.TrimSpace(cfg.Auth.JWTSecret) == "" {
			invalid("Auth.JWTSecret")
		}
		if cfg.Auth.TokenTTL <= 0 {
			invalid("Auth.TokenTTL")
		}
	case AuthProviderFirebase:
		if cfg.Firebase.ProjectID == "" {
			invalid("Firebase.ProjectID")
		}
	default:
		invalid("Auth.Provider")
	}
	switch cfg.Payments.Gateway {
	case GatewayRazorpay:
		if cfg.Payments.RazorpayKeyID == "" {
			invalid("Payments.RazorpayKeyID")
		}
		if cfg.Payments.RazorpayKeySecret == "" {
			invalid("Payments.RazorpayKeySecret")
		}
	case GatewayStripe:
		if cfg.Payments.StripeAPIKey == "" {
			invalid("Payments.StripeAPIKey")
		}
	default:
		invalid("Payments.Gateway")
	}
	if cfg.Payments.TaxRate.IsNegative() || cfg.Payments.TaxRate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		invalid("Payments.TaxRate")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid("Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid("Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupInterval <= 0 {
		invalid("Idempotency.CleanupInterval")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		invalid("Idempotency.CleanupBatchSize")
	}
	if cfg.Uploads.MaxBytes <= 0 {
		invalid("Uploads.MaxBytes")
	}
	if cfg.Reconciliation.GracePeriod <= 0 {
		invalid("Reconciliation.GracePeriod")
	}
	if cfg.Reconciliation.BatchSize <= 0 {
		invalid("Reconciliation.BatchSize")
	}

	if len(fields) > 0 {
		return &ValidationError{fields: fields}
	}
	return nil
}

func findMissingSecrets(required []string, resolved map[string]string) *MissingSecretsError {
	var names []string
	seen := make(map[string]struct{})
	for _, name := range required {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		if _, dup := seen[name]; dup {
			continue
		}
		seen[name] = struct{}{}
		if resolved[name] == "" {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return &MissingSecretsError{names: names}
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if rest, ok := strings.CutPrefix(trimmed, "sm://"); ok {
		return "secret://" + rest
	}
	return trimmed
}

func redactSecretName(name string) string {
	sum := sha256.Sum256([]byte(name))
	return hex.EncodeToString(sum[:8])
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}
	file, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}
