package billing

import "time"

// EventType is the normalized notification type.
type EventType string

const (
	EventCheckoutCompleted   EventType = "checkout_completed"
	EventSubscriptionCreated EventType = "subscription_created"
	EventSubscriptionUpdated EventType = "subscription_updated"
	EventSubscriptionDeleted EventType = "subscription_deleted"
	EventPaymentSucceeded    EventType = "payment_succeeded"
	EventPaymentFailed       EventType = "payment_failed"
	EventUnknown             EventType = "unknown"
)

// Event is a verified, provider-neutral billing notification.
// It is never persisted; consumers must handle redelivery idempotently.
type Event struct {
	ID           string
	Type         EventType
	ProviderType string // original provider event name
	Provider     string

	CustomerID     string
	SubscriptionID string
	PriceID        string
	Status         string // external subscription status, verbatim

	// CanceledAt is set when the processor reports a cancellation timestamp.
	CanceledAt *time.Time
	// StartedAt is the subscription start reported by the processor, if any.
	StartedAt  *time.Time
	OccurredAt time.Time

	InvoiceID string
	Amount    int64
	Currency  string
}

// Payment builds the payment record for a payment-succeeded event.
func (e *Event) Payment() Payment {
	return Payment{
		InvoiceID:      e.InvoiceID,
		CustomerID:     e.CustomerID,
		SubscriptionID: e.SubscriptionID,
		Amount:         e.Amount,
		Currency:       e.Currency,
		Provider:       e.Provider,
		PaidAt:         e.OccurredAt,
	}
}

func unixTime(sec int64) *time.Time {
	if sec <= 0 {
		return nil
	}
	t := time.Unix(sec, 0).UTC()
	return &t
}

func firstTime(ts ...*time.Time) *time.Time {
	for _, t := range ts {
		if t != nil {
			return t
		}
	}
	return nil
}
