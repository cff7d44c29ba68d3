package reconcile

import (
	"context"
	"errors"
	"time"

	"github.com/a-h/templ"

	"github.com/dmitrymomot/fleetbilling/pkg/email"
	"github.com/dmitrymomot/fleetbilling/pkg/email/templates"
	"github.com/dmitrymomot/fleetbilling/pkg/plan"
	"github.com/dmitrymomot/fleetbilling/pkg/tenant"
)

// StatusChange describes a committed lifecycle transition of a tenant.
type StatusChange struct {
	Tenant     *tenant.Tenant
	From       tenant.Status
	To         tenant.Status
	OccurredAt time.Time
}

// Notifier tells a tenant about a status change. Delivery is best effort.
type Notifier interface {
	NotifyStatusChange(ctx context.Context, c StatusChange) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, c StatusChange) error

func (f NotifierFunc) NotifyStatusChange(ctx context.Context, c StatusChange) error {
	return f(ctx, c)
}

// EmailNotifier emails the tenant when it becomes past due or cancelled.
// Other transitions are silent.
type EmailNotifier struct {
	sender       email.EmailSender
	catalog      plan.Catalog
	supportEmail string
}

// NewEmailNotifier creates a notifier that emails the tenant through sender.
func NewEmailNotifier(sender email.EmailSender, catalog plan.Catalog, supportEmail string) *EmailNotifier {
	return &EmailNotifier{sender: sender, catalog: catalog, supportEmail: supportEmail}
}

func (n *EmailNotifier) NotifyStatusChange(ctx context.Context, c StatusChange) error {
	var (
		subject string
		tag     string
		build   func(templates.NoticeData) templ.Component
	)
	switch c.To {
	case tenant.StatusPastDue:
		subject, tag, build = "Payment failed for your fleet subscription", "billing-past-due", templates.PaymentFailed
	case tenant.StatusCancelled:
		subject, tag, build = "Your fleet subscription was cancelled", "billing-cancelled", templates.SubscriptionCancelled
	default:
		return nil
	}
	if c.Tenant.Email == "" {
		return ErrMissingRecipient
	}

	planName := c.Tenant.PlanID
	if p, err := n.catalog.Get(ctx, c.Tenant.PlanID); err == nil {
		planName = p.Name
	}

	body, err := templates.Render(ctx, build(templates.NoticeData{
		TenantName:   c.Tenant.Name,
		PlanName:     planName,
		OccurredAt:   c.OccurredAt,
		SupportEmail: n.supportEmail,
	}))
	if err != nil {
		return errors.Join(ErrNotificationFailed, err)
	}

	if err := n.sender.SendEmail(ctx, email.SendEmailParams{
		SendTo:   c.Tenant.Email,
		Subject:  subject,
		BodyHTML: body,
		Tag:      tag,
		Metadata: map[string]string{"tenant_id": c.Tenant.ID.String(), "status": string(c.To)},
	}); err != nil {
		return errors.Join(ErrNotificationFailed, err)
	}
	return nil
}
