package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	paddle "github.com/PaddleHQ/paddle-go-sdk/v4"
)

// PaddleGateway implements Gateway for Paddle Billing.
//
// Paddle creates subscriptions only through checkout transactions, so
// CreateSubscription returns ErrNotSupported. Invoices are billed transactions.
type PaddleGateway struct {
	client   *paddle.SDK
	verifier *paddle.WebhookVerifier
	opts     *options
}

// NewPaddleGateway creates a Paddle gateway.
func NewPaddleGateway(cfg PaddleConfig, opts ...Option) (*PaddleGateway, error) {
	if cfg.APIKey == "" {
		return nil, ErrMissingAPIKey
	}
	if cfg.WebhookSecret == "" {
		return nil, ErrMissingWebhookSecret
	}

	o := newOptions(opts)

	sdkOpts := []paddle.Option{paddle.WithClient(o.httpClient)}
	if o.backendURL != "" {
		sdkOpts = append(sdkOpts, paddle.WithBaseURL(o.backendURL))
	}

	var (
		client *paddle.SDK
		err    error
	)
	switch strings.ToLower(cfg.Environment) {
	case "sandbox":
		client, err = paddle.NewSandbox(cfg.APIKey, sdkOpts...)
	case "production", "":
		client, err = paddle.New(cfg.APIKey, sdkOpts...)
	default:
		return nil, fmt.Errorf("%w: %s", ErrInvalidProviderEnvironment, cfg.Environment)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create paddle client: %w", err)
	}

	return &PaddleGateway{
		client:   client,
		verifier: paddle.NewWebhookVerifier(cfg.WebhookSecret),
		opts:     o,
	}, nil
}

func (g *PaddleGateway) Provider() string { return ProviderPaddle }

func (g *PaddleGateway) SignatureHeader() string { return "Paddle-Signature" }

func (g *PaddleGateway) CreateCustomer(ctx context.Context, p CustomerParams) (string, error) {
	return invoke(ctx, g.opts, ProviderPaddle, "create_customer", func(ctx context.Context) (string, error) {
		req := &paddle.CreateCustomerRequest{
			Email:      p.Email,
			CustomData: paddle.CustomData{"tenant_id": p.TenantID},
		}
		if p.Name != "" {
			req.Name = paddle.PtrTo(p.Name)
		}
		c, err := g.client.CustomersClient.CreateCustomer(ctx, req)
		if err != nil {
			return "", err
		}
		return c.ID, nil
	})
}

func (g *PaddleGateway) CreateSubscription(context.Context, SubscriptionParams) (*Subscription, error) {
	return nil, unsupported(ProviderPaddle, "create_subscription")
}

func (g *PaddleGateway) GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error) {
	if subscriptionID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingSubscriptionID)
	}
	return invoke(ctx, g.opts, ProviderPaddle, "get_subscription", func(ctx context.Context) (*Subscription, error) {
		s, err := g.client.SubscriptionsClient.GetSubscription(ctx, &paddle.GetSubscriptionRequest{
			SubscriptionID: subscriptionID,
		})
		if err != nil {
			return nil, err
		}
		return paddleSubscriptionView(s), nil
	})
}

// UpdateSubscriptionPrice replaces the subscription items with the new price,
// prorated and charged immediately.
func (g *PaddleGateway) UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) (*Subscription, error) {
	if subscriptionID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingSubscriptionID)
	}
	if priceID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingPriceID)
	}
	return invoke(ctx, g.opts, ProviderPaddle, "update_subscription_price", func(ctx context.Context) (*Subscription, error) {
		item := paddle.NewUpdateSubscriptionItemsSubscriptionUpdateItemFromCatalog(&paddle.SubscriptionUpdateItemFromCatalog{
			PriceID:  priceID,
			Quantity: 1,
		})
		s, err := g.client.SubscriptionsClient.UpdateSubscription(ctx, &paddle.UpdateSubscriptionRequest{
			SubscriptionID:       subscriptionID,
			Items:                paddle.NewPatchField([]paddle.UpdateSubscriptionItems{*item}),
			ProrationBillingMode: paddle.NewPatchField(paddle.ProrationBillingModeProratedImmediately),
		})
		if err != nil {
			return nil, err
		}
		return paddleSubscriptionView(s), nil
	})
}

// CancelSubscription cancels immediately so the local state and the processor agree.
func (g *PaddleGateway) CancelSubscription(ctx context.Context, subscriptionID string) error {
	if subscriptionID == "" {
		return errors.Join(ErrGateway, ErrMissingSubscriptionID)
	}
	_, err := invoke(ctx, g.opts, ProviderPaddle, "cancel_subscription", func(ctx context.Context) (struct{}, error) {
		_, err := g.client.SubscriptionsClient.CancelSubscription(ctx, &paddle.CancelSubscriptionRequest{
			SubscriptionID: subscriptionID,
			EffectiveFrom:  paddle.PtrTo(paddle.EffectiveFromImmediately),
		})
		return struct{}{}, err
	})
	return err
}

func (g *PaddleGateway) CreatePortalSession(ctx context.Context, customerID, _ string) (string, error) {
	if customerID == "" {
		return "", errors.Join(ErrGateway, ErrMissingCustomerID)
	}
	return invoke(ctx, g.opts, ProviderPaddle, "create_portal_session", func(ctx context.Context) (string, error) {
		s, err := g.client.CustomerPortalSessionsClient.CreateCustomerPortalSession(ctx, &paddle.CreateCustomerPortalSessionRequest{
			CustomerID: customerID,
		})
		if err != nil {
			return "", err
		}
		if s.URLs.General.Overview == "" {
			return "", ErrNoPortalURL
		}
		return s.URLs.General.Overview, nil
	})
}

func (g *PaddleGateway) CreateCheckoutSession(ctx context.Context, p CheckoutParams) (*CheckoutSession, error) {
	if p.PriceID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingPriceID)
	}
	return invoke(ctx, g.opts, ProviderPaddle, "create_checkout_session", func(ctx context.Context) (*CheckoutSession, error) {
		item := paddle.NewCreateTransactionItemsTransactionItemFromCatalog(&paddle.TransactionItemFromCatalog{
			PriceID:  p.PriceID,
			Quantity: 1,
		})
		req := &paddle.CreateTransactionRequest{
			Items: []paddle.CreateTransactionItems{*item},
			CustomData: paddle.CustomData{
				"tenant_id": p.TenantID,
				"plan_id":   p.PlanID,
				"price_id":  p.PriceID,
			},
		}
		if p.CustomerID != "" {
			req.CustomerID = paddle.PtrTo(p.CustomerID)
		}
		if p.SuccessURL != "" {
			req.Checkout = &paddle.TransactionCheckout{URL: paddle.PtrTo(p.SuccessURL)}
		}

		tx, err := g.client.TransactionsClient.CreateTransaction(ctx, req)
		if err != nil {
			return nil, err
		}
		if tx.Checkout == nil || tx.Checkout.URL == nil || *tx.Checkout.URL == "" {
			return nil, ErrNoCheckoutURL
		}
		return &CheckoutSession{ID: tx.ID, URL: *tx.Checkout.URL}, nil
	})
}

// ListInvoices lists billed transactions for the customer, newest first.
func (g *PaddleGateway) ListInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error) {
	if customerID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingCustomerID)
	}
	if limit <= 0 {
		limit = 10
	}
	return invoke(ctx, g.opts, ProviderPaddle, "list_invoices", func(ctx context.Context) ([]Invoice, error) {
		res, err := g.client.TransactionsClient.ListTransactions(ctx, &paddle.ListTransactionsRequest{
			CustomerID: []string{customerID},
			Status:     paddleInvoiceStatuses,
			OrderBy:    paddle.PtrTo("billed_at[DESC]"),
			PerPage:    paddle.PtrTo(min(limit, paddleMaxPerPage)),
		})
		if err != nil {
			return nil, err
		}

		out := make([]Invoice, 0, limit)
		err = res.Iter(ctx, func(tx *paddle.Transaction) (bool, error) {
			out = append(out, paddleInvoiceView(tx))
			return len(out) < limit, nil
		})
		if err != nil {
			return nil, err
		}
		return out, nil
	})
}

// GetInvoice returns a billed transaction with a link to its PDF.
func (g *PaddleGateway) GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error) {
	if invoiceID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingInvoiceID)
	}
	return invoke(ctx, g.opts, ProviderPaddle, "get_invoice", func(ctx context.Context) (*Invoice, error) {
		tx, err := g.client.TransactionsClient.GetTransaction(ctx, &paddle.GetTransactionRequest{
			TransactionID: invoiceID,
		})
		if err != nil {
			return nil, err
		}
		inv := paddleInvoiceView(tx)

		pdf, err := g.client.TransactionsClient.GetTransactionInvoice(ctx, &paddle.GetTransactionInvoiceRequest{
			TransactionID: invoiceID,
			Disposition:   paddle.PtrTo("inline"),
		})
		if err != nil {
			return nil, err
		}
		inv.PDFURL = pdf.URL
		return &inv, nil
	})
}

// GetDefaultPaymentMethod returns the customer's first saved payment method.
// Paddle has no notion of a default one.
func (g *PaddleGateway) GetDefaultPaymentMethod(ctx context.Context, customerID string) (*PaymentMethod, error) {
	if customerID == "" {
		return nil, errors.Join(ErrGateway, ErrMissingCustomerID)
	}
	return invoke(ctx, g.opts, ProviderPaddle, "get_default_payment_method", func(ctx context.Context) (*PaymentMethod, error) {
		res, err := g.client.PaymentMethodsClient.ListCustomerPaymentMethods(ctx, &paddle.ListCustomerPaymentMethodsRequest{
			CustomerID: customerID,
			PerPage:    paddle.PtrTo(1),
		})
		if err != nil {
			return nil, err
		}

		next := res.Next(ctx)
		if err := next.Err(); err != nil {
			return nil, err
		}
		if !next.Ok() {
			return nil, ErrNoPaymentMethod
		}
		pm := next.Value()
		out := &PaymentMethod{ID: pm.ID, Type: string(pm.Type)}
		if pm.Card != nil {
			out.Brand = string(pm.Card.Type)
			out.Last4 = pm.Card.Last4
			out.ExpMonth = int64(pm.Card.ExpiryMonth)
			out.ExpYear = int64(pm.Card.ExpiryYear)
		}
		return out, nil
	})
}

// ParseEvent verifies the Paddle-Signature header and normalizes the notification.
func (g *PaddleGateway) ParseEvent(ctx context.Context, payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, errors.Join(ErrSignatureInvalid, errors.New("missing Paddle-Signature header"))
	}

	// The SDK verifier works on requests, so rebuild one around the raw body.
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, "/webhooks/billing", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Join(ErrSignatureInvalid, err)
	}
	req.Header.Set(g.SignatureHeader(), signature)

	valid, err := g.verifier.Verify(req)
	if err != nil {
		return nil, errors.Join(ErrSignatureInvalid, err)
	}
	if !valid {
		return nil, ErrSignatureInvalid
	}

	var n paddleNotification
	if err := json.Unmarshal(payload, &n); err != nil {
		return nil, errors.Join(ErrMalformedEvent, err)
	}
	var d paddleEntity
	if len(n.Data) > 0 {
		if err := json.Unmarshal(n.Data, &d); err != nil {
			return nil, errors.Join(ErrMalformedEvent, fmt.Errorf("decode %s: %w", n.EventType, err))
		}
	}

	ev := &Event{
		ID:           n.EventID,
		Type:         mapPaddleEventType(n.EventType),
		ProviderType: n.EventType,
		Provider:     ProviderPaddle,
		CustomerID:   d.CustomerID,
		PriceID:      d.priceID(),
	}
	if t := paddleTime(&n.OccurredAt); t != nil {
		ev.OccurredAt = *t
	} else {
		ev.OccurredAt = g.opts.now().UTC()
	}

	switch {
	case strings.HasPrefix(n.EventType, "subscription."):
		ev.SubscriptionID = d.ID
		ev.Status = d.Status
		ev.CanceledAt = paddleTime(d.CanceledAt)
		ev.StartedAt = firstTime(paddleTime(d.StartedAt), paddleTime(&d.CreatedAt))
	case strings.HasPrefix(n.EventType, "transaction."):
		ev.SubscriptionID = d.SubscriptionID
		ev.InvoiceID = d.ID
		ev.Currency = d.CurrencyCode
		ev.Amount = d.grandTotal()
		ev.StartedAt = paddleTime(&d.CreatedAt)
	}

	recordPayment(ctx, g.opts, ev)
	return ev, nil
}

func mapPaddleEventType(t string) EventType {
	switch t {
	case "transaction.completed":
		return EventCheckoutCompleted
	case "subscription.created":
		return EventSubscriptionCreated
	case "subscription.updated", "subscription.activated", "subscription.past_due",
		"subscription.paused", "subscription.resumed", "subscription.trialing":
		return EventSubscriptionUpdated
	case "subscription.canceled":
		return EventSubscriptionDeleted
	case "transaction.paid":
		return EventPaymentSucceeded
	case "transaction.payment_failed":
		return EventPaymentFailed
	default:
		return EventUnknown
	}
}

const paddleMaxPerPage = 30

var paddleInvoiceStatuses = []string{
	string(paddle.TransactionStatusBilled),
	string(paddle.TransactionStatusPaid),
	string(paddle.TransactionStatusCompleted),
	string(paddle.TransactionStatusPastDue),
}

func paddleSubscriptionView(s *paddle.Subscription) *Subscription {
	out := &Subscription{
		ID:         s.ID,
		CustomerID: s.CustomerID,
		Status:     string(s.Status),
		CanceledAt: paddleTime(s.CanceledAt),
	}
	if len(s.Items) > 0 {
		out.PriceID = s.Items[0].Price.ID
	}
	if s.CurrentBillingPeriod != nil {
		out.CurrentPeriodStart = paddleTime(&s.CurrentBillingPeriod.StartsAt)
		out.CurrentPeriodEnd = paddleTime(&s.CurrentBillingPeriod.EndsAt)
	}
	return out
}

func paddleInvoiceView(tx *paddle.Transaction) Invoice {
	total := parseAmount(tx.Details.Totals.GrandTotal)
	inv := Invoice{
		ID:        tx.ID,
		Status:    string(tx.Status),
		AmountDue: total,
		Currency:  strings.ToUpper(string(tx.CurrencyCode)),
	}
	if tx.InvoiceNumber != nil {
		inv.Number = *tx.InvoiceNumber
	}
	if t := paddleTime(&tx.CreatedAt); t != nil {
		inv.CreatedAt = *t
	}
	for _, p := range tx.Payments {
		if p.CapturedAt != nil {
			inv.PaidAt = paddleTime(p.CapturedAt)
			break
		}
	}
	switch tx.Status {
	case paddle.TransactionStatusPaid, paddle.TransactionStatusCompleted:
		inv.AmountPaid = total
		if inv.PaidAt == nil {
			inv.PaidAt = paddleTime(tx.BilledAt)
		}
	}
	return inv
}

type paddleNotification struct {
	EventID    string          `json:"event_id"`
	EventType  string          `json:"event_type"`
	OccurredAt string          `json:"occurred_at"`
	Data       json.RawMessage `json:"data"`
}

type paddleEntity struct {
	ID             string  `json:"id"`
	Status         string  `json:"status"`
	CustomerID     string  `json:"customer_id"`
	SubscriptionID string  `json:"subscription_id"`
	CurrencyCode   string  `json:"currency_code"`
	CreatedAt      string  `json:"created_at"`
	StartedAt      *string `json:"started_at"`
	CanceledAt     *string `json:"canceled_at"`
	Items          []struct {
		PriceID string `json:"price_id"`
		Price   *struct {
			ID string `json:"id"`
		} `json:"price"`
	} `json:"items"`
	Details *struct {
		Totals *struct {
			GrandTotal string `json:"grand_total"`
		} `json:"totals"`
	} `json:"details"`
}

func (e paddleEntity) priceID() string {
	for _, it := range e.Items {
		if it.Price != nil && it.Price.ID != "" {
			return it.Price.ID
		}
		if it.PriceID != "" {
			return it.PriceID
		}
	}
	return ""
}

// Paddle reports amounts as strings in the lowest currency unit.
func (e paddleEntity) grandTotal() int64 {
	if e.Details == nil || e.Details.Totals == nil {
		return 0
	}
	return parseAmount(e.Details.Totals.GrandTotal)
}

func parseAmount(s string) int64 {
	v, _ := strconv.ParseInt(s, 10, 64)
	return v
}

func paddleTime(s *string) *time.Time {
	if s == nil || *s == "" {
		return nil
	}
	t, err := time.Parse(time.RFC3339Nano, *s)
	if err != nil {
		return nil
	}
	t = t.UTC()
	return &t
}
