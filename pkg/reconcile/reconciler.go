package reconcile

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/keylock"
	"github.com/dmitrymomot/fleetbilling/pkg/logger"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/subscription"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

// Outcomes reported to the Observer.
const (
	OutcomeApplied    = "applied"
	OutcomeNoop       = "noop"
	OutcomeIgnored    = "ignored"
	OutcomeUnresolved = "unresolved"
	OutcomeRejected   = "rejected"
	OutcomeFailed     = "failed"
)

// Parser verifies and decodes a raw notification. billing.Gateway implements it.
type Parser interface {
	ParseEvent(ctx context.Context, payload []byte, signature string) (*billing.Event, error)
}

// Observer is told how each notification was handled.
type Observer interface {
	ObserveWebhook(eventType billing.EventType, outcome string)
}

// Reconciler applies billing notifications to local tenant state.
//
// Notifications for one tenant are serialized with a keyed lock and the
// tenant is re-read under it. Handlers only overwrite fields, so redelivered
// notifications leave the state unchanged and cause no write.
type Reconciler struct {
	parser  Parser
	tenants tenant.Store
	subs    subscription.Store
	catalog plan.Catalog
	opts    *options
}

// New creates a Reconciler that verifies notifications with parser.
func New(parser Parser, tenants tenant.Store, subs subscription.Store, catalog plan.Catalog, opts ...Option) *Reconciler {
	return &Reconciler{
		parser:  parser,
		tenants: tenants,
		subs:    subs,
		catalog: catalog,
		opts:    newOptions(opts),
	}
}

// Handle verifies payload against signature and applies the notification.
// Invalid signatures fail with billing.ErrSignatureInvalid and change nothing.
// Notifications that cannot be mapped to a tenant are logged and dropped.
func (r *Reconciler) Handle(ctx context.Context, payload []byte, signature string) error {
	ev, err := r.parser.ParseEvent(ctx, payload, signature)
	if err != nil {
		r.observe(billing.EventUnknown, OutcomeRejected)
		return err
	}
	return r.Apply(ctx, ev)
}

// Apply processes an already verified event.
func (r *Reconciler) Apply(ctx context.Context, ev *billing.Event) error {
	log := r.opts.logger.With(
		logger.EventID(ev.ID),
		logger.EventType(ev.ProviderType),
		logger.Provider(ev.Provider),
	)

	if ev.Type == billing.EventUnknown {
		log.DebugContext(ctx, "ignoring unhandled billing event")
		r.observe(ev.Type, OutcomeIgnored)
		return nil
	}

	t, err := r.resolve(ctx, ev)
	if errors.Is(err, tenant.ErrTenantNotFound) {
		log.WarnContext(ctx, "billing event does not match any tenant",
			logger.CustomerID(ev.CustomerID),
			logger.SubscriptionID(ev.SubscriptionID))
		r.observe(ev.Type, OutcomeUnresolved)
		return nil
	}
	if err != nil {
		r.observe(ev.Type, OutcomeFailed)
		return err
	}
	log = log.With(logger.TenantID(t.ID))

	target, err := r.targetPlan(ctx, ev)
	if err != nil {
		r.observe(ev.Type, OutcomeFailed)
		return err
	}

	var before, after *tenant.Tenant
	err = keylock.Do(ctx, r.opts.locker, keylock.TenantKey(t.ID.String()), func(ctx context.Context) error {
		return r.opts.tx.WithinTx(ctx, func(ctx context.Context) error {
			cur, err := r.tenants.Get(ctx, t.ID)
			if err != nil {
				return err
			}
			before = cur.Clone()

			now := r.opts.now().UTC()
			changed := apply(cur, ev, target.ID, now)
			if changed {
				if err := r.tenants.Update(ctx, cur); err != nil {
					return err
				}
			}
			if target.ID != "" {
				switched, err := r.switchSubscriptionPlan(ctx, cur, target, now)
				if err != nil {
					return err
				}
				changed = changed || switched
			}
			if changed {
				after = cur
			}
			return nil
		})
	})
	if err != nil {
		log.ErrorContext(ctx, "failed to apply billing event", logger.Error(err))
		r.observe(ev.Type, OutcomeFailed)
		return err
	}

	if after == nil {
		log.DebugContext(ctx, "billing event changed nothing")
		r.observe(ev.Type, OutcomeNoop)
		return nil
	}

	log.InfoContext(ctx, "billing event applied",
		logger.Status(after.Status),
		logger.PlanID(after.PlanID))
	r.observe(ev.Type, OutcomeApplied)

	if before.Status != after.Status {
		r.notify(ctx, log, StatusChange{
			Tenant:     after,
			From:       before.Status,
			To:         after.Status,
			OccurredAt: ev.OccurredAt,
		})
	}
	return nil
}

func (r *Reconciler) resolve(ctx context.Context, ev *billing.Event) (*tenant.Tenant, error) {
	if resolvesBySubscription(ev.Type) {
		return r.tenants.GetBySubscriptionID(ctx, ev.SubscriptionID)
	}
	return r.tenants.GetByCustomerID(ctx, ev.CustomerID)
}

// targetPlan maps the event's price to a catalog plan. Unknown prices map to none.
func (r *Reconciler) targetPlan(ctx context.Context, ev *billing.Event) (plan.Plan, error) {
	if !mapsPlan(ev.Type) || ev.PriceID == "" {
		return plan.Plan{}, nil
	}
	p, err := r.catalog.GetByPriceID(ctx, ev.PriceID)
	if errors.Is(err, plan.ErrPlanNotFound) {
		r.opts.logger.WarnContext(ctx, "billing event references unknown price",
			logger.EventID(ev.ID),
			slog.String("price_id", ev.PriceID))
		return plan.Plan{}, nil
	}
	return p, err
}

// switchSubscriptionPlan points the active subscription at p, creating one
// when the tenant has none, and reports whether it wrote anything. The row is
// compared on its own so a redelivery repairs a row left behind the tenant.
// Usage counters are kept.
func (r *Reconciler) switchSubscriptionPlan(ctx context.Context, t *tenant.Tenant, p plan.Plan, now time.Time) (bool, error) {
	for attempt := 1; ; attempt++ {
		sub, err := r.subs.GetActive(ctx, t.ID)
		if errors.Is(err, subscription.ErrSubscriptionNotFound) {
			sub = subscription.New(t.ID, p, now)
			sub.ExternalSubscriptionID = t.ExternalSubscriptionID
			return true, r.subs.Create(ctx, sub)
		}
		if err != nil {
			return false, err
		}
		if sub.PlanID == p.ID && sub.ExternalSubscriptionID == t.ExternalSubscriptionID {
			return false, nil
		}

		sub.PlanID = p.ID
		sub.ExternalSubscriptionID = t.ExternalSubscriptionID
		sub.UpdatedAt = now
		err = r.subs.Update(ctx, sub)
		if err == nil {
			return true, nil
		}
		if !errors.Is(err, subscription.ErrVersionConflict) || attempt >= r.opts.maxRetries {
			return false, err
		}
	}
}

func (r *Reconciler) notify(ctx context.Context, log *slog.Logger, c StatusChange) {
	if r.opts.notifier == nil {
		return
	}
	if err := r.opts.notifier.NotifyStatusChange(ctx, c); err != nil {
		log.WarnContext(ctx, "failed to notify tenant about status change",
			logger.Status(c.To),
			logger.Error(err))
	}
}

func (r *Reconciler) observe(t billing.EventType, outcome string) {
	if r.opts.observer != nil {
		r.opts.observer.ObserveWebhook(t, outcome)
	}
}
