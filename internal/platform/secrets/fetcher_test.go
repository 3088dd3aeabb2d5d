package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeSecretClient struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values: map[string]string{},
		errs:   map[string]error{},
		calls:  map[string]int{},
	}
}

func (c *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[req.GetName()]++
	if err, ok := c.errs[req.GetName()]; ok {
		return nil, err
	}
	value, ok := c.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (c *fakeSecretClient) Close() error { return nil }

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func newTestFetcher(t *testing.T, opts ...Option) *Fetcher {
	t.Helper()
	opts = append([]Option{WithMeter(noop.NewMeterProvider().Meter("test")), WithFallbackFile("")}, opts...)
	f, err := NewFetcher(context.Background(), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = f.Close() })
	return f
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	client := newFakeSecretClient()
	resource := "projects/shop/secrets/razorpay_key_secret/versions/latest"
	client.values[resource] = "remote-secret"
	f := newTestFetcher(t, withClient(client), WithProject("shop"))

	for i := 0; i < 2; i++ {
		got, err := f.Resolve(context.Background(), "secret://razorpay_key_secret")
		require.NoError(t, err)
		assert.Equal(t, "remote-secret", got)
	}
	assert.Equal(t, 1, client.calls[resource])

	f.Invalidate("sm://razorpay_key_secret")
	_, err := f.ResolveSecret(context.Background(), "secret://razorpay_key_secret")
	require.NoError(t, err)
	assert.Equal(t, 2, client.calls[resource])
}

func TestResolveHonoursVersionAndProject(t *testing.T) {
	client := newFakeSecretClient()
	client.values["projects/other/secrets/jwt/versions/3"] = "v3"
	f := newTestFetcher(t, withClient(client), WithProject("shop"))

	got, err := f.Resolve(context.Background(), "secret://jwt?version=3&project=other")
	require.NoError(t, err)
	assert.Equal(t, "v3", got)
}

func TestResolveFallsBackWhenRemoteDenied(t *testing.T) {
	client := newFakeSecretClient()
	client.errs["projects/shop/secrets/jwt/versions/latest"] = status.Error(codes.PermissionDenied, "denied")
	path := writeFallback(t, "# local secrets\nsecret://jwt=local-jwt\nstripe_api_key = sk_test\n")
	f := newTestFetcher(t, withClient(client), WithProject("shop"), WithFallbackFile(path))

	got, err := f.Resolve(context.Background(), "secret://jwt")
	require.NoError(t, err)
	assert.Equal(t, "local-jwt", got)

	got, err = f.Resolve(context.Background(), "sm://stripe_api_key")
	require.NoError(t, err)
	assert.Equal(t, "sk_test", got)
}

func TestResolveDoesNotFallBackOnInternalErrors(t *testing.T) {
	client := newFakeSecretClient()
	client.errs["projects/shop/secrets/jwt/versions/latest"] = status.Error(codes.Internal, "boom")
	path := writeFallback(t, "secret://jwt=local-jwt\n")
	f := newTestFetcher(t, withClient(client), WithProject("shop"), WithFallbackFile(path))

	_, err := f.Resolve(context.Background(), "secret://jwt")
	require.Error(t, err)
	assert.Equal(t, codes.Internal, status.Code(errors.Unwrap(err)))
}

func TestResolveWithoutAnySource(t *testing.T) {
	f := newTestFetcher(t)

	_, err := f.Resolve(context.Background(), "secret://missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.NoError(t, f.Check(context.Background()))
}

func TestParseReference(t *testing.T) {
	ref, err := parseReference("sm://db/password?version=7")
	require.NoError(t, err)
	assert.Equal(t, reference{name: "db/password", version: "7"}, ref)

	for _, raw := range []string{"", "plain", "https://x", "secret://"} {
		_, err := parseReference(raw)
		assert.Error(t, err, raw)
	}
}
