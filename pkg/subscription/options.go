package subscription

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/keylock"
	"github.com/dmitrymomot/fleetbilling/pkg/logger"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
)

// LimitObserver is notified when a request is rejected by a resource limit.
type LimitObserver interface {
	ObserveLimitRejection(r plan.Resource)
}

type options struct {
	logger     *slog.Logger
	now        func() time.Time
	freePlanID string
	gateway    billing.Gateway
	tx         Transactor
	locker     keylock.Locker
	observer   LimitObserver
	maxRetries int
}

// Option configures the components of this package.
// Each component reads only the options it needs.
type Option func(*options)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

// WithFreePlanID designates the plan lazily provisioned for tenants without
// a subscription. Defaults to the cheapest zero-price plan in the catalog.
func WithFreePlanID(id string) Option {
	return func(o *options) { o.freePlanID = id }
}

// WithGateway enables best-effort propagation to the payment processor.
func WithGateway(g billing.Gateway) Option {
	return func(o *options) { o.gateway = g }
}

// WithTransactor sets the transaction runner. Defaults to NoTx.
func WithTransactor(tx Transactor) Option {
	return func(o *options) {
		if tx != nil {
			o.tx = tx
		}
	}
}

// WithLocker sets the per-tenant lock shared with the webhook reconciler.
// Defaults to an in-process lock.
func WithLocker(l keylock.Locker) Option {
	return func(o *options) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithLimitObserver reports limit rejections.
func WithLimitObserver(obs LimitObserver) Option {
	return func(o *options) { o.observer = obs }
}

// WithMaxRetries bounds optimistic concurrency retries. Default 3.
func WithMaxRetries(n int) Option {
	return func(o *options) {
		if n > 0 {
			o.maxRetries = n
		}
	}
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:     logger.Discard(),
		now:        time.Now,
		tx:         NoTx,
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.locker == nil {
		o.locker = keylock.NewMemory()
	}
	return o
}
