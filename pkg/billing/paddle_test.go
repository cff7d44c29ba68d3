package billing_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/fleetbilling/pkg/billing"
	"github.com/dmitrymomot/fleetbilling/pkg/billing/billingtest"
)

const paddleSecret = "pdl_ntfset_test"

func newPaddle(t *testing.T, opts ...billing.Option) *billing.PaddleGateway {
	t.Helper()
	g, err := billing.NewPaddleGateway(billing.PaddleConfig{
		APIKey:        "pdl_sdbx_apikey_test",
		WebhookSecret: paddleSecret,
		Environment:   "sandbox",
	}, opts...)
	require.NoError(t, err)
	return g
}

func paddleNotification(t *testing.T, eventType string, data map[string]any) []byte {
	t.Helper()
	body, err := json.Marshal(map[string]any{
		"event_id":    "evt_01h",
		"event_type":  eventType,
		"occurred_at": "2025-01-01T10:00:00Z",
		"data":        data,
	})
	require.NoError(t, err)
	return body
}

func TestNewPaddleGateway_Validation(t *testing.T) {
	t.Parallel()

	_, err := billing.NewPaddleGateway(billing.PaddleConfig{WebhookSecret: "x"})
	assert.ErrorIs(t, err, billing.ErrMissingAPIKey)

	_, err = billing.NewPaddleGateway(billing.PaddleConfig{APIKey: "x"})
	assert.ErrorIs(t, err, billing.ErrMissingWebhookSecret)

	_, err = billing.NewPaddleGateway(billing.PaddleConfig{APIKey: "x", WebhookSecret: "y", Environment: "staging"})
	assert.ErrorIs(t, err, billing.ErrInvalidProviderEnvironment)
}

func TestPaddleGateway_ParseEvent(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	t.Run("rejects missing and bad signatures", func(t *testing.T) {
		t.Parallel()
		g := newPaddle(t)
		body := paddleNotification(t, "subscription.updated", map[string]any{"id": "sub_01"})

		_, err := g.ParseEvent(ctx, body, "")
		assert.ErrorIs(t, err, billing.ErrSignatureInvalid)

		_, err = g.ParseEvent(ctx, body, billingtest.SignPaddle("wrong", body))
		assert.ErrorIs(t, err, billing.ErrSignatureInvalid)

		_, err = g.ParseEvent(ctx, body, "garbage")
		assert.ErrorIs(t, err, billing.ErrSignatureInvalid)
	})

	t.Run("subscription canceled", func(t *testing.T) {
		t.Parallel()
		g := newPaddle(t)
		body := paddleNotification(t, "subscription.canceled", map[string]any{
			"id":          "sub_01",
			"status":      "canceled",
			"customer_id": "ctm_01",
			"created_at":  "2024-12-01T00:00:00Z",
			"canceled_at": "2025-01-01T09:59:00Z",
			"items": []any{
				map[string]any{"price": map[string]any{"id": "pri_pro"}},
			},
		})
		ev, err := g.ParseEvent(ctx, body, billingtest.SignPaddle(paddleSecret, body))
		require.NoError(t, err)
		assert.Equal(t, billing.EventSubscriptionDeleted, ev.Type)
		assert.Equal(t, billing.ProviderPaddle, ev.Provider)
		assert.Equal(t, "sub_01", ev.SubscriptionID)
		assert.Equal(t, "ctm_01", ev.CustomerID)
		assert.Equal(t, "canceled", ev.Status)
		assert.Equal(t, "pri_pro", ev.PriceID)
		require.NotNil(t, ev.CanceledAt)
		require.NotNil(t, ev.StartedAt)
		assert.Equal(t, 2024, ev.StartedAt.Year())
	})

	t.Run("transaction paid is recorded", func(t *testing.T) {
		t.Parallel()
		rec := &recorderStub{}
		g := newPaddle(t, billing.WithPaymentRecorder(rec))
		body := paddleNotification(t, "transaction.paid", map[string]any{
			"id":              "txn_01",
			"customer_id":     "ctm_01",
			"subscription_id": "sub_01",
			"currency_code":   "EUR",
			"details":         map[string]any{"totals": map[string]any{"grand_total": "2900"}},
		})
		ev, err := g.ParseEvent(ctx, body, billingtest.SignPaddle(paddleSecret, body))
		require.NoError(t, err)
		assert.Equal(t, billing.EventPaymentSucceeded, ev.Type)
		require.Len(t, rec.payments, 1)
		assert.Equal(t, "txn_01", rec.payments[0].InvoiceID)
		assert.Equal(t, int64(2900), rec.payments[0].Amount)
		assert.Equal(t, "EUR", rec.payments[0].Currency)
	})

	t.Run("lifecycle events map to updated", func(t *testing.T) {
		t.Parallel()
		g := newPaddle(t)
		for _, typ := range []string{"subscription.activated", "subscription.past_due", "subscription.resumed"} {
			body := paddleNotification(t, typ, map[string]any{"id": "sub_01", "status": "active"})
			ev, err := g.ParseEvent(ctx, body, billingtest.SignPaddle(paddleSecret, body))
			require.NoError(t, err, typ)
			assert.Equal(t, billing.EventSubscriptionUpdated, ev.Type, typ)
		}
	})

	t.Run("malformed payload", func(t *testing.T) {
		t.Parallel()
		g := newPaddle(t)
		body := []byte(`{"event_type":`)
		_, err := g.ParseEvent(ctx, body, billingtest.SignPaddle(paddleSecret, body))
		assert.ErrorIs(t, err, billing.ErrMalformedEvent)
	})
}

func TestPaddleGateway_Unsupported(t *testing.T) {
	t.Parallel()

	_, err := newPaddle(t).CreateSubscription(context.Background(), billing.SubscriptionParams{})
	assert.ErrorIs(t, err, billing.ErrNotSupported)
	assert.ErrorIs(t, err, billing.ErrGateway)
}

// fakePaddleAPI serves the Paddle endpoints behind plan changes, invoices
// and payment methods.
func fakePaddleAPI(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc("PATCH /subscriptions/sub_01", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer pdl_sdbx_apikey_test", r.Header.Get("Authorization"))
		var body struct {
			Items []struct {
				PriceID  string `json:"price_id"`
				Quantity int    `json:"quantity"`
			} `json:"items"`
			ProrationBillingMode string `json:"proration_billing_mode"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		if assert.Len(t, body.Items, 1) {
			assert.Equal(t, "pri_enterprise", body.Items[0].PriceID)
			assert.Equal(t, 1, body.Items[0].Quantity)
		}
		assert.Equal(t, "prorated_immediately", body.ProrationBillingMode)
		writePaddleJSON(w, map[string]any{
			"id":          "sub_01",
			"status":      "active",
			"customer_id": "ctm_01",
			"items":       []any{map[string]any{"price": map[string]any{"id": "pri_enterprise"}}},
			"current_billing_period": map[string]any{
				"starts_at": "2025-01-01T00:00:00Z",
				"ends_at":   "2025-02-01T00:00:00Z",
			},
		})
	})
	mux.HandleFunc("GET /transactions", func(w http.ResponseWriter, r *http.Request) {
		assert.Contains(t, r.URL.RawQuery, "ctm_01")
		writePaddleJSON(w, []any{
			paddleTransaction("txn_02", "paid", "INV-002"),
			paddleTransaction("txn_01", "past_due", "INV-001"),
		})
	})
	mux.HandleFunc("GET /transactions/txn_02", func(w http.ResponseWriter, r *http.Request) {
		writePaddleJSON(w, paddleTransaction("txn_02", "completed", "INV-002"))
	})
	mux.HandleFunc("GET /transactions/txn_02/invoice", func(w http.ResponseWriter, r *http.Request) {
		writePaddleJSON(w, map[string]any{"url": "https://invoices.example/txn_02.pdf"})
	})
	mux.HandleFunc("GET /customers/ctm_01/payment-methods", func(w http.ResponseWriter, r *http.Request) {
		writePaddleJSON(w, []any{map[string]any{
			"id":          "paymtd_01",
			"customer_id": "ctm_01",
			"type":        "card",
			"card": map[string]any{
				"type": "visa", "last4": "4242", "expiry_month": 12, "expiry_year": 2030,
			},
		}})
	})
	mux.HandleFunc("GET /customers/ctm_empty/payment-methods", func(w http.ResponseWriter, r *http.Request) {
		writePaddleJSON(w, []any{})
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func paddleTransaction(id, status, number string) map[string]any {
	return map[string]any{
		"id":             id,
		"status":         status,
		"customer_id":    "ctm_01",
		"currency_code":  "eur",
		"invoice_number": number,
		"created_at":     "2025-01-01T10:00:00Z",
		"billed_at":      "2025-01-01T10:05:00Z",
		"details":        map[string]any{"totals": map[string]any{"grand_total": "2900"}},
	}
}

func writePaddleJSON(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"data": data,
		"meta": map[string]any{"request_id": "req_01"},
	})
}

func TestPaddleGateway_RemoteCalls(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	srv := fakePaddleAPI(t)

	t.Run("update subscription price", func(t *testing.T) {
		t.Parallel()
		obs := &observerStub{}
		g := newPaddle(t, billing.WithBackendURL(srv.URL), billing.WithObserver(obs))

		sub, err := g.UpdateSubscriptionPrice(ctx, "sub_01", "pri_enterprise")
		require.NoError(t, err)
		assert.Equal(t, "pri_enterprise", sub.PriceID)
		assert.Equal(t, "active", sub.Status)
		require.NotNil(t, sub.CurrentPeriodEnd)
		assert.Equal(t, time.February, sub.CurrentPeriodEnd.Month())
		assert.NoError(t, obs.calls["update_subscription_price"])
	})

	t.Run("list invoices", func(t *testing.T) {
		t.Parallel()
		g := newPaddle(t, billing.WithBackendURL(srv.URL))

		invoices, err := g.ListInvoices(ctx, "ctm_01", 10)
		require.NoError(t, err)
		require.Len(t, invoices, 2)
		assert.Equal(t, "INV-002", invoices[0].Number)
		assert.Equal(t, "EUR", invoices[0].Currency)
		assert.Equal(t, int64(2900), invoices[0].AmountPaid)
		require.NotNil(t, invoices[0].PaidAt)
		assert.Equal(t, int64(2900), invoices[1].AmountDue)
		assert.Zero(t, invoices[1].AmountPaid)
		assert.Nil(t, invoices[1].PaidAt)

		invoices, err = g.ListInvoices(ctx, "ctm_01", 1)
		require.NoError(t, err)
		assert.Len(t, invoices, 1)
	})

	t.Run("get invoice with pdf", func(t *testing.T) {
		t.Parallel()
		g := newPaddle(t, billing.WithBackendURL(srv.URL))

		inv, err := g.GetInvoice(ctx, "txn_02")
		require.NoError(t, err)
		assert.Equal(t, "completed", inv.Status)
		assert.Equal(t, "https://invoices.example/txn_02.pdf", inv.PDFURL)
	})

	t.Run("payment method", func(t *testing.T) {
		t.Parallel()
		g := newPaddle(t, billing.WithBackendURL(srv.URL))

		pm, err := g.GetDefaultPaymentMethod(ctx, "ctm_01")
		require.NoError(t, err)
		assert.Equal(t, "paymtd_01", pm.ID)
		assert.Equal(t, "visa", pm.Brand)
		assert.Equal(t, "4242", pm.Last4)
		assert.Equal(t, int64(2030), pm.ExpYear)

		_, err = g.GetDefaultPaymentMethod(ctx, "ctm_empty")
		assert.ErrorIs(t, err, billing.ErrNoPaymentMethod)
		assert.ErrorIs(t, err, billing.ErrGateway)
	})

	t.Run("missing ids fail fast", func(t *testing.T) {
		t.Parallel()
		g := newPaddle(t, billing.WithBackendURL(srv.URL))
		_, err := g.UpdateSubscriptionPrice(ctx, "", "pri_pro")
		assert.ErrorIs(t, err, billing.ErrMissingSubscriptionID)
		_, err = g.UpdateSubscriptionPrice(ctx, "sub_01", "")
		assert.ErrorIs(t, err, billing.ErrMissingPriceID)
		_, err = g.ListInvoices(ctx, "", 10)
		assert.ErrorIs(t, err, billing.ErrMissingCustomerID)
		_, err = g.GetInvoice(ctx, "")
		assert.ErrorIs(t, err, billing.ErrMissingInvoiceID)
	})
}
