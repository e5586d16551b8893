// Package backend is the single chokepoint for every call to the remote
// fitness REST service. It owns header construction, bearer-token attachment,
// the one-shot 401 refresh-and-retry recovery, and error normalization.
// Feature services never touch net/http directly.
package backend

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/DannyMyles/fitness-gateway/internal/platform/metrics"
)

// TokenSource resolves the current bearer token for the principal on whose
// behalf a request runs. An empty token with a nil error means "no token".
type TokenSource interface {
	Token(ctx context.Context) (string, error)
}

// TokenSourceFunc adapts a function to the TokenSource interface.
type TokenSourceFunc func(ctx context.Context) (string, error)

func (f TokenSourceFunc) Token(ctx context.Context) (string, error) { return f(ctx) }

// Refresher exchanges the current credentials for a fresh access token after
// the backend rejects the old one.
type Refresher interface {
	Refresh(ctx context.Context) (string, error)
}

// RefresherFunc adapts a function to the Refresher interface.
type RefresherFunc func(ctx context.Context) (string, error)

func (f RefresherFunc) Refresh(ctx context.Context) (string, error) { return f(ctx) }

// Client is the instrumented HTTP API client. Construct one per application
// lifetime; all mutable coordination state (the in-flight refresh, the
// breaker) lives on the instance, never in package globals.
type Client struct {
	baseURL string
	http    *http.Client
	tokens  TokenSource
	refresh Refresher

	// onAuthFailure is invoked when authentication is unrecoverable: no token
	// could be resolved, or a refresh (or its retry) failed. Injected so this
	// package has no dependency on the session layer.
	onAuthFailure func()

	// refreshGroup coalesces concurrent refresh attempts into one in-flight
	// call that every 401ing request awaits.
	refreshGroup singleflight.Group

	breaker *gobreaker.CircuitBreaker
	logger  *slog.Logger
	metrics *metrics.Metrics
	tracer  trace.Tracer
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient injects the underlying HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) {
		cl.http = c
	}
}

// WithRefresher wires the token refresh path. Without one, a 401 is terminal.
func WithRefresher(r Refresher) Option {
	return func(cl *Client) {
		cl.refresh = r
	}
}

// WithAuthFailureHandler installs the global sign-out callback.
func WithAuthFailureHandler(fn func()) Option {
	return func(cl *Client) {
		cl.onAuthFailure = fn
	}
}

// WithLogger injects a structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(cl *Client) {
		cl.logger = logger
	}
}

// WithMetrics wires prometheus collectors.
func WithMetrics(m *metrics.Metrics) Option {
	return func(cl *Client) {
		cl.metrics = m
	}
}

// New builds a Client for the given backend base URL and token source.
func New(baseURL string, tokens TokenSource, opts ...Option) *Client {
	cl := &Client{
		baseURL:       baseURL,
		http:          &http.Client{Timeout: 30 * time.Second},
		tokens:        tokens,
		onAuthFailure: func() {},
		logger:        slog.Default(),
		tracer:        otel.Tracer("fitness-gateway/backend"),
	}
	for _, opt := range opts {
		opt(cl)
	}

	cl.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:    "backend",
		Timeout: 30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Only sustained transport failure opens the circuit; HTTP error
			// statuses are normal responses and never count as failures.
			return counts.ConsecutiveFailures >= 5
		},
	})
	return cl
}
