package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func baseEnv() map[string]string {
	return map[string]string{
		"API_FIREBASE_PROJECT_ID":          "brightcart-dev",
		"API_AUTH_JWT_SECRET":              "dev-secret",
		"API_PAYMENTS_RAZORPAY_KEY_ID":     "rzp_test_key",
		"API_PAYMENTS_RAZORPAY_KEY_SECRET": "rzp_test_secret",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "brightcart-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.Events.ProjectID != "brightcart-dev" {
		t.Errorf("expected events project to follow firestore, got %s", cfg.Events.ProjectID)
	}
	if cfg.Auth.Provider != AuthProviderLocal {
		t.Errorf("expected local auth provider, got %s", cfg.Auth.Provider)
	}
	if cfg.Auth.TokenTTL != 7*24*time.Hour {
		t.Errorf("unexpected token ttl %s", cfg.Auth.TokenTTL)
	}
	if cfg.Payments.Gateway != GatewayRazorpay || cfg.Payments.Currency != "INR" {
		t.Errorf("unexpected payments defaults %+v", cfg.Payments)
	}
	if !cfg.Payments.TaxRate.Equal(decimal.RequireFromString("0.08")) {
		t.Errorf("unexpected tax rate %s", cfg.Payments.TaxRate)
	}
	if cfg.Idempotency.Header != "Idempotency-Key" || cfg.Idempotency.TTL != 24*time.Hour {
		t.Errorf("unexpected idempotency defaults %+v", cfg.Idempotency)
	}
	if cfg.Uploads.MaxBytes != 5*1024*1024 {
		t.Errorf("unexpected upload limit %d", cfg.Uploads.MaxBytes)
	}
	if len(cfg.Security.OIDC.Issuers) != 1 || cfg.Security.OIDC.Issuers[0] != "https://accounts.google.com" {
		t.Errorf("unexpected issuers %v", cfg.Security.OIDC.Issuers)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := baseEnv()
	env["API_ENVIRONMENT"] = "Prod"
	env["API_SERVER_PORT"] = "9090"
	env["API_SERVER_IDLE_TIMEOUT"] = "2m"
	env["API_PAYMENTS_GATEWAY"] = "stripe"
	env["API_PAYMENTS_STRIPE_API_KEY"] = "sm://stripe-key"
	env["API_PAYMENTS_TAX_RATE"] = "0.10"
	env["API_AUTH_JWT_SECRET"] = "secret://jwt?version=3"
	env["API_AUTH_ADMIN_EMAILS"] = " Admin@Example.com , ,ops@example.com"
	env["API_SECURITY_OIDC_AUDIENCES"] = "prod=https://api.example.com,dev=https://dev.example.com"

	resolved := map[string]string{}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		resolved[ref] = "resolved-" + ref
		return "resolved-" + ref, nil
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" || cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected server config %+v", cfg.Server)
	}
	if cfg.Payments.StripeAPIKey != "resolved-secret://stripe-key" {
		t.Errorf("expected normalised secret reference, got %s", cfg.Payments.StripeAPIKey)
	}
	if cfg.Auth.JWTSecret != "resolved-secret://jwt?version=3" {
		t.Errorf("unexpected jwt secret %s", cfg.Auth.JWTSecret)
	}
	if cfg.Payments.Currency != "USD" {
		t.Errorf("expected stripe default currency USD, got %s", cfg.Payments.Currency)
	}
	if !cfg.Payments.TaxRate.Equal(decimal.RequireFromString("0.1")) {
		t.Errorf("unexpected tax rate %s", cfg.Payments.TaxRate)
	}
	if len(cfg.Auth.AdminEmails) != 2 || cfg.Auth.AdminEmails[0] != "admin@example.com" {
		t.Errorf("unexpected admin emails %v", cfg.Auth.AdminEmails)
	}
	if cfg.Security.OIDC.Audience != "https://api.example.com" {
		t.Errorf("expected audience for prod environment, got %s", cfg.Security.OIDC.Audience)
	}
	if len(resolved) != 2 {
		t.Errorf("expected two secret lookups, got %v", resolved)
	}
}

func TestLoadValidationError(t *testing.T) {
	env := map[string]string{
		"API_AUTH_PROVIDER":     "ldap",
		"API_PAYMENTS_GATEWAY":  "paypal",
		"API_PAYMENTS_TAX_RATE": "1.5",
	}
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	want := map[string]bool{
		"Firestore.ProjectID": true,
		"Auth.Provider":       true,
		"Payments.Gateway":    true,
		"Payments.TaxRate":    true,
	}
	for _, field := range validation.Fields() {
		delete(want, field)
	}
	if len(want) != 0 {
		t.Fatalf("missing fields in validation error: %v (got %v)", want, validation.Fields())
	}
}

func TestLoadSecretResolverMissing(t *testing.T) {
	env := baseEnv()
	env["API_AUTH_JWT_SECRET"] = "secret://jwt"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected secret error, got %v", err)
	}
	if !errors.Is(err, errSecretResolverNotConfigured) {
		t.Fatalf("expected resolver not configured, got %v", err)
	}
}

func TestLoadRequiredSecrets(t *testing.T) {
	env := baseEnv()
	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets("Auth.JWTSecret", "Payments.StripeAPIKey"))
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected missing secrets error, got %v", err)
	}
	names := missing.Names()
	if len(names) != 1 || names[0] != "Payments.StripeAPIKey" {
		t.Fatalf("unexpected missing names %v", names)
	}
	if got := missing.Error(); got == "" || strings.Contains(got, "Payments.StripeAPIKey") {
		t.Fatalf("expected redacted error message, got %q", got)
	}
}

func TestEnvironmentValuesPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env")
	content := "# comment\nexport API_SERVER_PORT=7070\nAPI_AUTH_JWT_SECRET='from-file'\nAPI_ONLY_FILE=\"file\"\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("write env file: %v", err)
	}

	values, err := EnvironmentValues(WithEnvFile(path), WithoutSystemEnv(), WithEnvMap(map[string]string{
		"API_SERVER_PORT": "6060",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues: %v", err)
	}
	if values["API_SERVER_PORT"] != "6060" {
		t.Errorf("expected explicit map to win, got %s", values["API_SERVER_PORT"])
	}
	if values["API_AUTH_JWT_SECRET"] != "from-file" || values["API_ONLY_FILE"] != "file" {
		t.Errorf("unexpected dotenv values %v", values)
	}
}
