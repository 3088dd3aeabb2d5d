package idempotency

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/brightcart/api/internal/platform/auth"
	"github.com/brightcart/api/internal/platform/httpx"
)

const (
	// HeaderName carries the client-chosen key.
	HeaderName = "Idempotency-Key"
	// ReplayHeader is set on responses served from the store.
	ReplayHeader = "X-Idempotent-Replay"

	maxKeyLength = 255
)

// Logger is the minimal logging dependency of the middleware.
type Logger interface {
	Printf(format string, args ...any)
}

type options struct {
	header      string
	ttl         time.Duration
	requireKey  bool
	clock       func() time.Time
	logger      Logger
	bodyLimit   int64
	guardedVerb map[string]struct{}
}

// Option customises Middleware.
type Option func(*options)

// WithHeader overrides the request header carrying the key.
func WithHeader(name string) Option {
	return func(o *options) {
		if name = strings.TrimSpace(name); name != "" {
			o.header = name
		}
	}
}

// WithTTL sets how long completed responses are replayed.
func WithTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithRequiredKey rejects guarded requests that carry no key.
func WithRequiredKey() Option {
	return func(o *options) { o.requireKey = true }
}

// WithClock overrides time.Now.
func WithClock(clock func() time.Time) Option {
	return func(o *options) {
		if clock != nil {
			o.clock = clock
		}
	}
}

// WithLogger receives store failures that do not surface to the client.
func WithLogger(logger Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithBodyLimit bounds the request body read for fingerprinting.
func WithBodyLimit(limit int64) Option {
	return func(o *options) {
		if limit > 0 {
			o.bodyLimit = limit
		}
	}
}

// Middleware replays the stored response when a mutating request is retried with the same key.
// Keys are scoped to the caller, so two accounts may use the same key independently.
func Middleware(store Store, opts ...Option) func(http.Handler) http.Handler {
	cfg := options{
		header:    HeaderName,
		ttl:       DefaultTTL,
		clock:     time.Now,
		bodyLimit: 1 << 20,
		guardedVerb: map[string]struct{}{
			http.MethodPost:   {},
			http.MethodPut:    {},
			http.MethodPatch:  {},
			http.MethodDelete: {},
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}

	return func(next http.Handler) http.Handler {
		if store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := cfg.guardedVerb[r.Method]; !ok {
				next.ServeHTTP(w, r)
				return
			}
			ctx := r.Context()
			key := strings.TrimSpace(r.Header.Get(cfg.header))
			switch {
			case key == "" && cfg.requireKey:
				httpx.WriteError(ctx, w, httpx.BadRequest("idempotency_key_required", cfg.header+" header is required"))
				return
			case key == "":
				next.ServeHTTP(w, r)
				return
			case len(key) > maxKeyLength:
				httpx.WriteError(ctx, w, httpx.BadRequest("idempotency_key_invalid", cfg.header+" is too long"))
				return
			}

			body, err := bufferBody(r, cfg.bodyLimit)
			if err != nil {
				httpx.WriteError(ctx, w, httpx.BadRequest("invalid_body", "request body could not be read"))
				return
			}

			caller := requester(ctx)
			scoped := key + "|" + caller
			fp := fingerprint(r, body, caller)

			reservation, err := store.Reserve(ctx, scoped, fp, cfg.clock(), cfg.ttl)
			if err != nil {
				if errors.Is(err, ErrFingerprintMismatch) {
					httpx.WriteError(ctx, w, httpx.NewError("idempotency_key_conflict",
						"idempotency key already used for a different request", http.StatusConflict))
					return
				}
				cfg.logf("idempotency: reserve %q: %v", key, err)
				httpx.WriteError(ctx, w, httpx.ErrInternal)
				return
			}

			switch reservation.State {
			case ReservationStateCompleted:
				replay(w, reservation.Record)
				return
			case ReservationStatePending:
				httpx.WriteError(ctx, w, httpx.NewError("idempotency_in_progress",
					"a request with this idempotency key is still being processed", http.StatusConflict))
				return
			}

			rec := &recorder{header: make(http.Header)}
			next.ServeHTTP(rec, r)

			if rec.statusCode() >= http.StatusInternalServerError {
				// Server failures stay retryable under the same key.
				if err := store.Release(context.WithoutCancel(ctx), scoped); err != nil {
					cfg.logf("idempotency: release %q: %v", key, err)
				}
			} else {
				resp := Response{Status: rec.statusCode(), Headers: rec.header, Body: rec.body.Bytes()}
				if err := store.SaveResponse(context.WithoutCancel(ctx), scoped, fp, resp, cfg.clock(), cfg.ttl); err != nil {
					cfg.logf("idempotency: save %q: %v", key, err)
					if err := store.Release(context.WithoutCancel(ctx), scoped); err != nil {
						cfg.logf("idempotency: release %q: %v", key, err)
					}
				}
			}
			rec.flushTo(w)
		})
	}
}

func (o options) logf(format string, args ...any) {
	if o.logger != nil {
		o.logger.Printf(format, args...)
	}
}

func bufferBody(r *http.Request, limit int64) ([]byte, error) {
	if r.Body == nil || r.Body == http.NoBody {
		return nil, nil
	}
	data, err := io.ReadAll(io.LimitReader(r.Body, limit+1))
	_ = r.Body.Close()
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, errors.New("request body too large")
	}
	r.Body = io.NopCloser(bytes.NewReader(data))
	return data, nil
}

func requester(ctx context.Context) string {
	if identity, ok := auth.IdentityFromContext(ctx); ok && identity.UID != "" {
		return "user:" + identity.UID
	}
	if svc, ok := auth.ServiceIdentityFromContext(ctx); ok && svc.Subject != "" {
		return "svc:" + svc.Subject
	}
	return "anonymous"
}

func fingerprint(r *http.Request, body []byte, caller string) string {
	parts := []string{
		r.Method,
		r.URL.Path,
		r.URL.RawQuery,
		r.Header.Get("Content-Type"),
		caller,
		sha256Hex(body),
	}
	return sha256Hex([]byte(strings.Join(parts, "|")))
}

func replay(w http.ResponseWriter, record Record) {
	for name, values := range record.ResponseHeaders {
		for _, v := range values {
			w.Header().Add(name, v)
		}
	}
	w.Header().Set(ReplayHeader, "true")
	status := record.ResponseStatus
	if status == 0 {
		status = http.StatusOK
	}
	w.WriteHeader(status)
	_, _ = w.Write(record.ResponseBody)
}

// recorder buffers the downstream response until it has been stored.
type recorder struct {
	header http.Header
	status int
	body   bytes.Buffer
}

func (r *recorder) Header() http.Header { return r.header }

func (r *recorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
}

func (r *recorder) Write(p []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	return r.body.Write(p)
}

func (r *recorder) statusCode() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

func (r *recorder) flushTo(w http.ResponseWriter) {
	dst := w.Header()
	for name, values := range r.header {
		dst[name] = values
	}
	w.WriteHeader(r.statusCode())
	_, _ = w.Write(r.body.Bytes())
}
