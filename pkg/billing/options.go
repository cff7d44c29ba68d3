package billing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dmitrymomot/fleetbilling/pkg/logger"
)

type options struct {
	timeout    time.Duration
	logger     *slog.Logger
	recorder   PaymentRecorder
	observer   Observer
	httpClient *http.Client
	backendURL string
	now        func() time.Time
}

// Option configures a gateway.
type Option func(*options)

// WithTimeout bounds every remote call. Default 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.timeout = d
		}
	}
}

// WithLogger sets the gateway logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithPaymentRecorder captures successful payments seen in notifications.
func WithPaymentRecorder(r PaymentRecorder) Option {
	return func(o *options) { o.recorder = r }
}

// WithObserver reports every remote call with its outcome and latency.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) Option {
	return func(o *options) { o.httpClient = c }
}

// WithBackendURL points the API client at a different base URL.
// Intended for local mocks such as stripe-mock.
func WithBackendURL(u string) Option {
	return func(o *options) { o.backendURL = u }
}

func newOptions(opts []Option) *options {
	o := &options{
		timeout: 10 * time.Second,
		logger:  logger.Discard(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.httpClient == nil {
		o.httpClient = &http.Client{Timeout: o.timeout + time.Second}
	}
	return o
}

// invoke runs one remote call under the configured timeout and normalizes its error.
func invoke[T any](ctx context.Context, o *options, provider, op string, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()

	start := time.Now()
	res, err := fn(ctx)
	if o.observer != nil {
		o.observer.ObserveGatewayCall(provider, op, err, time.Since(start))
	}
	if err != nil {
		var zero T
		if errors.Is(err, ErrGateway) {
			return zero, err
		}
		return zero, errors.Join(ErrGateway, fmt.Errorf("%s %s: %w", provider, op, err))
	}
	return res, nil
}

func unsupported(provider, op string) error {
	return errors.Join(ErrGateway, ErrNotSupported, fmt.Errorf("%s does not support %s", provider, op))
}

// recordPayment forwards a payment-succeeded event to the recorder, if any.
// Failures are logged; the notification itself still succeeds.
func recordPayment(ctx context.Context, o *options, ev *Event) {
	if o.recorder == nil || ev.Type != EventPaymentSucceeded || ev.InvoiceID == "" {
		return
	}
	if err := o.recorder.RecordPayment(ctx, ev.Payment()); err != nil {
		o.logger.ErrorContext(ctx, "failed to record payment",
			logger.InvoiceID(ev.InvoiceID),
			logger.CustomerID(ev.CustomerID),
			logger.Error(err))
	}
}
