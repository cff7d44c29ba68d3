package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/fleetbilling/pkg/environment"
	"github.com/dmitrymomot/fleetbilling/pkg/httpserver"
	"github.com/dmitrymomot/fleetbilling/pkg/logger"
)

// Instrumentation records request metrics and serves them.
type Instrumentation interface {
	Middleware(next http.Handler) http.Handler
	Handler() http.Handler
}

type options struct {
	logger          *slog.Logger
	env             environment.Environment
	signatureHeader string
	tenantHeader    string
	maxWebhookBody  int64
	requestTimeout  time.Duration
	metrics         Instrumentation
	readiness       []httpserver.Check
}

// Option configures the router.
type Option func(*options)

// WithLogger sets the request and error logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithEnvironment controls error verbosity: outside production unexpected
// error messages are returned to the client.
func WithEnvironment(env environment.Environment) Option {
	return func(o *options) { o.env = env }
}

// WithSignatureHeader names the header carrying the webhook signature.
func WithSignatureHeader(name string) Option {
	return func(o *options) {
		if name != "" {
			o.signatureHeader = name
		}
	}
}

// WithTenantHeader names the header identifying the calling tenant.
func WithTenantHeader(name string) Option {
	return func(o *options) {
		if name != "" {
			o.tenantHeader = name
		}
	}
}

// WithMaxWebhookBody caps the webhook payload size in bytes.
func WithMaxWebhookBody(n int64) Option {
	return func(o *options) {
		if n > 0 {
			o.maxWebhookBody = n
		}
	}
}

// WithRequestTimeout bounds handler execution for the JSON API.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.requestTimeout = d
		}
	}
}

// WithMetrics enables HTTP instrumentation and mounts /metrics.
func WithMetrics(m Instrumentation) Option {
	return func(o *options) { o.metrics = m }
}

// WithReadinessChecks registers the dependency probes of /health/ready.
func WithReadinessChecks(checks ...httpserver.Check) Option {
	return func(o *options) { o.readiness = append(o.readiness, checks...) }
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:          logger.Discard(),
		env:             environment.Production,
		signatureHeader: "Stripe-Signature",
		tenantHeader:    "X-Tenant-ID",
		maxWebhookBody:  1 << 20,
		requestTimeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}
