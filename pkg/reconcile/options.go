package reconcile

import (
	"log/slog"
	"time"

	"github.com/dmitrymomot/fleetbilling/pkg/keylock"
	"github.com/dmitrymomot/fleetbilling/pkg/logger"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
)

type options struct {
	logger     *slog.Logger
	now        func() time.Time
	locker     keylock.Locker
	tx         subscription.Transactor
	notifier   Notifier
	observer   Observer
	maxRetries int
}

// Option configures a Reconciler.
type Option func(*options)

// WithLogger sets the reconciler logger.
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

// WithLocker sets the per-tenant lock. Use the same Locker as the plan changer.
func WithLocker(l keylock.Locker) Option {
	return func(o *options) {
		if l != nil {
			o.locker = l
		}
	}
}

// WithTransactor sets the transaction runner. Defaults to subscription.NoTx.
func WithTransactor(tx subscription.Transactor) Option {
	return func(o *options) {
		if tx != nil {
			o.tx = tx
		}
	}
}

// WithNotifier sends status-change notices after a change is committed.
func WithNotifier(n Notifier) Option {
	return func(o *options) { o.notifier = n }
}

// WithObserver reports the outcome of every notification.
func WithObserver(obs Observer) Option {
	return func(o *options) { o.observer = obs }
}

func newOptions(opts []Option) *options {
	o := &options{
		logger:     logger.Discard(),
		now:        time.Now,
		tx:         subscription.NoTx,
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
