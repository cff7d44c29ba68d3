package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	stripe "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/client"
	"github.com/stripe/stripe-go/v82/webhook"
)

// StripeGateway implements Gateway on top of the Stripe API.
// It uses a dedicated client instead of the package-level stripe.Key.
type StripeGateway struct {
	api           *client.API
	webhookSecret string
	opts          *options
}

// NewStripeGateway creates a Stripe gateway.
func NewStripeGateway(cfg StripeConfig, opts ...Option) (*StripeGateway, error) {
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, ErrMissingAPIKey
	}
	if strings.TrimSpace(cfg.WebhookSecret) == "" {
		return nil, ErrMissingWebhookSecret
	}

	o := newOptions(opts)
	backendCfg := &stripe.BackendConfig{
		HTTPClient:        o.httpClient,
		MaxNetworkRetries: stripe.Int64(0), // no hidden retries on the request path
	}
	if o.backendURL != "" {
		backendCfg.URL = stripe.String(o.backendURL)
	}
	backend := stripe.GetBackendWithConfig(stripe.APIBackend, backendCfg)

	api := &client.API{}
	api.Init(cfg.SecretKey, &stripe.Backends{API: backend, Connect: backend, Uploads: backend})

	return &StripeGateway{
		api:           api,
		webhookSecret: cfg.WebhookSecret,
		opts:          o,
	}, nil
}

func (g *StripeGateway) Provider() string { return ProviderStripe }

func (g *StripeGateway) SignatureHeader() string { return "Stripe-Signature" }

func (g *StripeGateway) CreateCustomer(ctx context.Context, p CustomerParams) (string, error) {
	return invoke(ctx, g.opts, ProviderStripe, "create_customer", func(ctx context.Context) (string, error) {
		params := &stripe.CustomerParams{
			Email:    stripe.String(p.Email),
			Metadata: map[string]string{"tenant_id": p.TenantID},
		}
		if p.Name != "" {
			params.Name = stripe.String(p.Name)
		}
		params.Context = ctx

		c, err := g.api.Customers.New(params)
		if err != nil {
			return "", err
		}
		return c.ID, nil
	})
}

func (g *StripeGateway) CreateSubscription(ctx context.Context, p SubscriptionParams) (*Subscription, error) {
	if p.CustomerID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingCustomerID)
	}
	if p.PriceID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingPriceID)
	}
	return invoke(ctx, g.opts, ProviderStripe, "create_subscription", func(ctx context.Context) (*Subscription, error) {
		params := &stripe.SubscriptionParams{
			Customer: stripe.String(p.CustomerID),
			Items: []*stripe.SubscriptionItemsParams{
				{Price: stripe.String(p.PriceID)},
			},
			Metadata: map[string]string{"tenant_id": p.TenantID},
		}
		if p.TrialDays > 0 {
			params.TrialPeriodDays = stripe.Int64(int64(p.TrialDays))
		}
		params.Context = ctx

		sub, err := g.api.Subscriptions.New(params)
		if err != nil {
			return nil, err
		}
		return stripeSubscriptionView(sub), nil
	})
}

func (g *StripeGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if subscriptionID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingSubscriptionID)
	}
	return invoke(ctx, g.opts, ProviderStripe, "get_subscription", func(ctx context.Context) (*Subscription, error) {
		params := &stripe.SubscriptionParams{}
		params.Context = ctx

		sub, err := g.api.Subscriptions.Get(subscriptionID, params)
		if err != nil {
			return nil, err
		}
		return stripeSubscriptionView(sub), nil
	})
}

// UpdateSubscriptionPrice swaps the price of the first subscription item,
// prorating the difference.
func (g *StripeGateway) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) (*Subscription, error) {
	if subscriptionID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingSubscriptionID)
	}
	if priceID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingPriceID)
	}
	return invoke(ctx, g.opts, ProviderStripe, "update_subscription_price", func(ctx context.Context) (*Subscription, error) {
		getParams := &stripe.SubscriptionParams{}
		getParams.Context = ctx
		current, err := g.api.Subscriptions.Get(subscriptionID, getParams)
		if err != nil {
			return nil, err
		}
		if current.Items == nil || len(current.Items.Data) == 0 {
			return nil, fmt.Errorf("subscription %s has no items", subscriptionID)
		}

		params := &stripe.SubscriptionParams{
			Items: []*stripe.SubscriptionItemsParams{{
				ID:    stripe.String(current.Items.Data[0].ID),
				Price: stripe.String(priceID),
			}},
			ProrationBehavior: stripe.String("create_prorations"),
		}
		params.Context = ctx

		sub, err := g.api.Subscriptions.Update(subscriptionID, params)
		if err != nil {
			return nil, err
		}
		return stripeSubscriptionView(sub), nil
	})
}

func (g *StripeGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return errors.Join(ErrGateway, ErrMissingSubscriptionID)
	}
	_, err := invoke(ctx, g.opts, ProviderStripe, "cancel_subscription", func(ctx context.Context) (struct{}, error) {
		params := &stripe.SubscriptionCancelParams{}
		params.Context = ctx
		_, err := g.api.Subscriptions.Cancel(subscriptionID, params)
		return struct{}{}, err
	})
	return err
}

func (g *StripeGateway) CreatePortalSession(ctx context.Context, customerID, returnURL string) (string, error) {
	if customerID == "" {
		return "", errors.Join(ErrGateway, ErrMissingCustomerID)
	}
	return invoke(ctx, g.opts, ProviderStripe, "create_portal_session", func(ctx context.Context) (string, error) {
		params := &stripe.BillingPortalSessionParams{
			Customer: stripe.String(customerID),
		}
		if returnURL != "" {
			params.ReturnURL = stripe.String(returnURL)
		}
		params.Context = ctx

		s, err := g.api.BillingPortalSessions.New(params)
		if err != nil {
			return "", err
		}
		if s.URL == "" {
			return "", ErrNoPortalURL
		}
		return s.URL, nil
	})
}

func (g *StripeGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	if p.PriceID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingPriceID)
	}
	return invoke(ctx, g.opts, ProviderStripe, "create_checkout_session", func(ctx context.Context) (*CheckoutSession, error) {
		metadata := map[string]string{
			"tenant_id": p.TenantID,
			"plan_id":   p.PlanID,
			"price_id":  p.PriceID,
		}
		params := &stripe.CheckoutSessionParams{
			Mode:       stripe.String(string(stripe.CheckoutSessionModeSubscription)),
			SuccessURL: stripe.String(p.SuccessURL),
			CancelURL:  stripe.String(p.CancelURL),
			LineItems: []*stripe.CheckoutSessionLineItemParams{{
				Price:    stripe.String(p.PriceID),
				Quantity: stripe.Int64(1),
			}},
			ClientReferenceID: stripe.String(p.TenantID),
			Metadata:          metadata,
			SubscriptionData: &stripe.CheckoutSessionSubscriptionDataParams{
				Metadata: metadata,
			},
		}
		if p.CustomerID != "" {
			params.Customer = stripe.String(p.CustomerID)
		} else if p.Email != "" {
			params.CustomerEmail = stripe.String(p.Email)
		}
		if p.TrialDays > 0 {
			params.SubscriptionData.TrialPeriodDays = stripe.Int64(int64(p.TrialDays))
		}
		params.Context = ctx

		s, err := g.api.CheckoutSessions.New(params)
		if err != nil {
			return nil, err
		}
		if s.URL == "" {
			return nil, ErrNoCheckoutURL
		}
		return &CheckoutSession{ID: s.ID, URL: s.URL}, nil
	})
}

func (g *StripeGateway) ListInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error) {
	if customerID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingCustomerID)
	}
	if limit <= 0 {
		limit = 10
	}
	return invoke(ctx, g.opts, ProviderStripe, "list_invoices", func(ctx context.Context) ([]Invoice, error) {
		params := &stripe.InvoiceListParams{Customer: stripe.String(customerID)}
		params.Limit = stripe.Int64(int64(limit))
		params.Context = ctx

		out := make([]Invoice, 0, limit)
		it := g.api.Invoices.List(params)
		for len(out) < limit && it.Next() {
			out = append(out, stripeInvoiceView(it.Invoice()))
		}
		if err := it.Err(); err != nil {
			return nil, err
		}
		return out, nil
	})
}

func (g *StripeGateway) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	if invoiceID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingInvoiceID)
	}
	return invoke(ctx, g.opts, ProviderStripe, "get_invoice", func(ctx context.Context) (*Invoice, error) {
		params := &stripe.InvoiceParams{}
		params.Context = ctx

		inv, err := g.api.Invoices.Get(invoiceID, params)
		if err != nil {
			return nil, err
		}
		v := stripeInvoiceView(inv)
		return &v, nil
	})
}

func (g *StripeGateway) GetDefaultPaymentMethod(ctx context.Context, customerID string) (*PaymentMethod, error) {
	if customerID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingCustomerID)
	}
	return invoke(ctx, g.opts, ProviderStripe, "get_default_payment_method", func(ctx context.Context) (*PaymentMethod, error) {
		params := &stripe.CustomerParams{}
		params.AddExpand("invoice_settings.default_payment_method")
		params.Context = ctx

		c, err := g.api.Customers.Get(customerID, params)
		if err != nil {
			return nil, err
		}
		if c.InvoiceSettings == nil || c.InvoiceSettings.DefaultPaymentMethod == nil {
			return nil, ErrNoPaymentMethod
		}
		pm := c.InvoiceSettings.DefaultPaymentMethod
		out := &PaymentMethod{ID: pm.ID, Type: string(pm.Type)}
		if pm.Card != nil {
			out.Brand = string(pm.Card.Brand)
			out.Last4 = pm.Card.Last4
			out.ExpMonth = pm.Card.ExpMonth
			out.ExpYear = pm.Card.ExpYear
		}
		return out, nil
	})
}

// ParseEvent verifies the Stripe-Signature header and normalizes the event.
func (g *StripeGateway) ParseEvent(ctx context.Context, payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, errors.Join(ErrSignatureInvalid, errors.New("missing Stripe-Signature header"))
	}

	raw, err := webhook.ConstructEventWithOptions(payload, signature, g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, errors.Join(ErrSignatureInvalid, err)
	}

	ev := &Event{
		ID:           raw.ID,
		Type:         mapStripeEventType(string(raw.Type)),
		ProviderType: string(raw.Type),
		Provider:     ProviderStripe,
		OccurredAt:   time.Unix(raw.Created, 0).UTC(),
	}
	if raw.Created == 0 {
		ev.OccurredAt = g.opts.now().UTC()
	}

	if raw.Data != nil {
		if err := decodeStripeObject(ev, raw.Data.Raw); err != nil {
			return nil, errors.Join(ErrMalformedEvent, fmt.Errorf("decode %s: %w", raw.Type, err))
		}
	}

	recordPayment(ctx, g.opts, ev)
	return ev, nil
}

func mapStripeEventType(t string) EventType {
	switch t {
	case "checkout.session.completed":
		return EventCheckoutCompleted
	case "customer.subscription.created":
		return EventSubscriptionCreated
	case "customer.subscription.updated":
		return EventSubscriptionUpdated
	case "customer.subscription.deleted":
		return EventSubscriptionDeleted
	case "invoice.payment_succeeded", "invoice.paid":
		return EventPaymentSucceeded
	case "invoice.payment_failed":
		return EventPaymentFailed
	default:
		return EventUnknown
	}
}

// Minimal views of the Stripe objects carried by the notifications we handle.
// Decoding into local structs keeps us independent of API-version field moves.

type stripeCheckoutObject struct {
	ID                string            `json:"id"`
	Customer          string            `json:"customer"`
	Subscription      string            `json:"subscription"`
	ClientReferenceID string            `json:"client_reference_id"`
	Metadata          map[string]string `json:"metadata"`
	Created           int64             `json:"created"`
}

type stripeSubscriptionObject struct {
	ID         string `json:"id"`
	Customer   string `json:"customer"`
	Status     string `json:"status"`
	CanceledAt int64  `json:"canceled_at"`
	EndedAt    int64  `json:"ended_at"`
	StartDate  int64  `json:"start_date"`
	Created    int64  `json:"created"`
	Items      struct {
		Data []struct {
			Price struct {
				ID string `json:"id"`
			} `json:"price"`
		} `json:"data"`
	} `json:"items"`
}

type stripeInvoiceObject struct {
	ID           string `json:"id"`
	Customer     string `json:"customer"`
	Subscription string `json:"subscription"`
	AmountPaid   int64  `json:"amount_paid"`
	AmountDue    int64  `json:"amount_due"`
	Currency     string `json:"currency"`
	Parent       *struct {
		SubscriptionDetails *struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func decodeStripeObject(ev *Event, raw json.RawMessage) error {
	switch ev.Type {
	case EventCheckoutCompleted:
		var o stripeCheckoutObject
		if err := json.Unmarshal(raw, &o); err != nil {
			return err
		}
		ev.CustomerID = o.Customer
		ev.SubscriptionID = o.Subscription
		ev.PriceID = o.Metadata["price_id"]
		ev.StartedAt = unixTime(o.Created)

	case EventSubscriptionCreated, EventSubscriptionUpdated, EventSubscriptionDeleted:
		var o stripeSubscriptionObject
		if err := json.Unmarshal(raw, &o); err != nil {
			return err
		}
		ev.SubscriptionID = o.ID
		ev.CustomerID = o.Customer
		ev.Status = o.Status
		ev.CanceledAt = firstTime(unixTime(o.CanceledAt), unixTime(o.EndedAt))
		ev.StartedAt = firstTime(unixTime(o.StartDate), unixTime(o.Created))
		if len(o.Items.Data) > 0 {
			ev.PriceID = o.Items.Data[0].Price.ID
		}

	case EventPaymentSucceeded, EventPaymentFailed:
		var o stripeInvoiceObject
		if err := json.Unmarshal(raw, &o); err != nil {
			return err
		}
		ev.InvoiceID = o.ID
		ev.CustomerID = o.Customer
		ev.SubscriptionID = o.Subscription
		if ev.SubscriptionID == "" && o.Parent != nil && o.Parent.SubscriptionDetails != nil {
			ev.SubscriptionID = o.Parent.SubscriptionDetails.Subscription
		}
		ev.Currency = strings.ToUpper(o.Currency)
		ev.Amount = o.AmountPaid
		if ev.Type == EventPaymentFailed {
			ev.Amount = o.AmountDue
		}
	}
	return nil
}

func stripeSubscriptionView(s *stripe.Subscription) *Subscription {
	out := &Subscription{
		ID:         s.ID,
		Status:     string(s.Status),
		TrialEnd:   unixTime(s.TrialEnd),
		CanceledAt: unixTime(s.CanceledAt),
	}
	if s.Customer != nil {
		out.CustomerID = s.Customer.ID
	}
	if s.Items != nil && len(s.Items.Data) > 0 {
		item := s.Items.Data[0]
		if item.Price != nil {
			out.PriceID = item.Price.ID
		}
		out.CurrentPeriodStart = unixTime(item.CurrentPeriodStart)
		out.CurrentPeriodEnd = unixTime(item.CurrentPeriodEnd)
	}
	return out
}

func stripeInvoiceView(inv *stripe.Invoice) Invoice {
	out := Invoice{
		ID:         inv.ID,
		Number:     inv.Number,
		Status:     string(inv.Status),
		AmountDue:  inv.AmountDue,
		AmountPaid: inv.AmountPaid,
		Currency:   strings.ToUpper(string(inv.Currency)),
		HostedURL:  inv.HostedInvoiceURL,
		PDFURL:     inv.InvoicePDF,
		CreatedAt:  time.Unix(inv.Created, 0).UTC(),
	}
	if inv.StatusTransitions != nil {
		out.PaidAt = unixTime(inv.StatusTransitions.PaidAt)
	}
	return out
}
