package reconcile

import (
	"time"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

// mutation applies overwrites to a tenant and remembers whether any field changed.
type mutation struct {
	t       *tenant.Tenant
	changed bool
}

func (m *mutation) status(s tenant.Status) {
	if s != "" && m.t.Status != s {
		m.t.Status = s
		m.changed = true
	}
}

func (m *mutation) plan(id string) {
	if id != "" && m.t.PlanID != id {
		m.t.PlanID = id
		m.changed = true
	}
}

// subscription attaches an external subscription. A new subscription clears
// the end stamp left by a previous one.
func (m *mutation) subscription(id string) {
	if id == "" || m.t.ExternalSubscriptionID == id {
		return
	}
	m.t.ExternalSubscriptionID = id
	m.t.SubscriptionEndedAt = nil
	m.changed = true
}

// started stamps the start: the reported time, else the existing one, else now.
func (m *mutation) started(at *time.Time, now time.Time) {
	switch {
	case at != nil:
		m.setTime(&m.t.SubscriptionStartedAt, *at)
	case m.t.SubscriptionStartedAt == nil:
		m.setTime(&m.t.SubscriptionStartedAt, now)
	}
}

// ended stamps the end with the reported time. Without one, now is used only
// when fallback is set and no end is recorded yet.
func (m *mutation) ended(at *time.Time, now time.Time, fallback bool) {
	switch {
	case at != nil:
		m.setTime(&m.t.SubscriptionEndedAt, *at)
	case fallback && m.t.SubscriptionEndedAt == nil:
		m.setTime(&m.t.SubscriptionEndedAt, now)
	}
}

func (m *mutation) setTime(dst **time.Time, v time.Time) {
	v = v.UTC()
	if *dst != nil && (*dst).Equal(v) {
		return
	}
	*dst = &v
	m.changed = true
}

// apply overwrites the tenant fields an event carries and reports whether
// anything changed. planID is the local plan mapped from the event's price,
// empty when unknown. Applying the same event twice changes nothing the
// second time.
func apply(t *tenant.Tenant, ev *billing.Event, planID string, now time.Time) bool {
	m := &mutation{t: t}

	switch ev.Type {
	case billing.EventCheckoutCompleted:
		m.subscription(ev.SubscriptionID)
		m.plan(planID)
		m.status(tenant.StatusActive)
		m.started(ev.StartedAt, now)

	case billing.EventSubscriptionCreated:
		m.subscription(ev.SubscriptionID)
		m.status(tenant.NormalizeStatus(ev.Status))
		m.started(ev.StartedAt, now)

	case billing.EventSubscriptionUpdated:
		m.status(tenant.NormalizeStatus(ev.Status))
		m.plan(planID)
		m.ended(ev.CanceledAt, now, false)

	case billing.EventSubscriptionDeleted:
		m.status(tenant.StatusCancelled)
		m.ended(ev.CanceledAt, now, true)

	case billing.EventPaymentSucceeded:
		if t.Status != tenant.StatusActive {
			m.status(tenant.StatusActive)
		}

	case billing.EventPaymentFailed:
		m.status(tenant.StatusPastDue)
	}

	if m.changed {
		t.UpdatedAt = now
	}
	return m.changed
}

// resolvesBySubscription reports whether the tenant for ev is looked up by
// external subscription id rather than customer id.
func resolvesBySubscription(t billing.EventType) bool {
	return t == billing.EventSubscriptionUpdated || t == billing.EventSubscriptionDeleted
}

// mapsPlan reports whether ev may move the tenant to the plan of its price.
func mapsPlan(t billing.EventType) bool {
	return t == billing.EventCheckoutCompleted || t == billing.EventSubscriptionUpdated
}
