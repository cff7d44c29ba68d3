package billing

import (
	"context"
	"time"
)

// Gateway is the narrow interface to the external payment processor.
// Every method performs at most one remote round trip bounded by the configured
// timeout. Errors wrap ErrGateway unless stated otherwise.
type Gateway interface {
	// Provider returns the provider name, e.g. "stripe".
	Provider() string

	CreateCustomer(ctx context.Context, params CustomerParams) (customerID string, err error)
	CreateSubscription(ctx context.Context, params SubscriptionParams) (*Subscription, error)
	GetSubscription(ctx context.Context, subscriptionID string) (*Subscription, error)
	UpdateSubscriptionPrice(ctx context.Context, subscriptionID, priceID string) (*Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) error

	CreatePortalSession(ctx context.Context, customerID, returnURL string) (url string, err error)
	CreateCheckoutSession(ctx context.Context, params CheckoutParams) (*CheckoutSession, error)

	ListInvoices(ctx context.Context, customerID string, limit int) ([]Invoice, error)
	GetInvoice(ctx context.Context, invoiceID string) (*Invoice, error)
	GetDefaultPaymentMethod(ctx context.Context, customerID string) (*PaymentMethod, error)

	// ParseEvent verifies the signature of an inbound notification and
	// normalizes it. Authenticity failures return ErrSignatureInvalid and
	// nothing is parsed.
	ParseEvent(ctx context.Context, payload []byte, signature string) (*Event, error)

	// SignatureHeader names the HTTP header carrying the notification signature.
	SignatureHeader() string
}

// PaymentRecorder captures successful payments reported by the processor.
// Implementations must be idempotent by invoice ID.
type PaymentRecorder interface {
	RecordPayment(ctx context.Context, p Payment) error
}

// Observer receives the outcome of every remote call. Used for metrics.
type Observer interface {
	ObserveGatewayCall(provider, operation string, err error, took time.Duration)
}

// CustomerParams describes an external customer to create.
type CustomerParams struct {
	TenantID string
	Email    string
	Name     string
}

// SubscriptionParams describes an external subscription to create.
type SubscriptionParams struct {
	CustomerID string
	PriceID    string
	TenantID   string
	TrialDays  int
}

// CheckoutParams describes a hosted checkout session.
type CheckoutParams struct {
	CustomerID string
	Email      string
	PriceID    string
	TenantID   string
	PlanID     string
	TrialDays  int
	SuccessURL string
	CancelURL  string
}

// CheckoutSession is a created hosted checkout.
type CheckoutSession struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Subscription is the processor's view of a subscription.
type Subscription struct {
	ID                 string     `json:"id"`
	CustomerID         string     `json:"customer_id"`
	Status             string     `json:"status"`
	PriceID            string     `json:"price_id"`
	CurrentPeriodStart *time.Time `json:"current_period_start,omitempty"`
	CurrentPeriodEnd   *time.Time `json:"current_period_end,omitempty"`
	TrialEnd           *time.Time `json:"trial_end,omitempty"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
}

// Invoice is a processor invoice in minor currency units.
type Invoice struct {
	ID         string     `json:"id"`
	Number     string     `json:"number"`
	Status     string     `json:"status"`
	AmountDue  int64      `json:"amount_due"`
	AmountPaid int64      `json:"amount_paid"`
	Currency   string     `json:"currency"`
	HostedURL  string     `json:"hosted_url,omitempty"`
	PDFURL     string     `json:"pdf_url,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	PaidAt     *time.Time `json:"paid_at,omitempty"`
}

// PaymentMethod is the card or wallet a customer pays with.
type PaymentMethod struct {
	ID       string `json:"id"`
	Type     string `json:"type"`
	Brand    string `json:"brand,omitempty"`
	Last4    string `json:"last4,omitempty"`
	ExpMonth int64  `json:"exp_month,omitempty"`
	ExpYear  int64  `json:"exp_year,omitempty"`
}

// Payment is a captured invoice payment.
type Payment struct {
	InvoiceID      string    `json:"invoice_id"`
	CustomerID     string    `json:"customer_id"`
	SubscriptionID string    `json:"subscription_id,omitempty"`
	Amount         int64     `json:"amount"`
	Currency       string    `json:"currency"`
	Provider       string    `json:"provider"`
	PaidAt         time.Time `json:"paid_at"`
}
