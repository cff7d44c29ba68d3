package billing

import "errors"

var (
	// ErrGateway wraps every failed call to the payment processor.
	ErrGateway = errors.New("billing gateway error")

	// ErrSignatureInvalid is returned when an inbound notification fails authenticity checks.
	ErrSignatureInvalid = errors.New("billing webhook signature invalid")

	// ErrMalformedEvent is returned for a verified notification whose body cannot be decoded.
	ErrMalformedEvent = errors.New("billing webhook payload malformed")

	// ErrNotSupported is returned by providers for operations they do not offer.
	ErrNotSupported = errors.New("operation not supported by billing provider")

	ErrMissingAPIKey              = errors.New("billing provider API key is required")
	ErrMissingWebhookSecret       = errors.New("billing provider webhook secret is required")
	ErrInvalidProviderEnvironment = errors.New("invalid billing provider environment")
	ErrUnknownProvider            = errors.New("unknown billing provider")
	ErrNoCheckoutURL              = errors.New("no checkout URL returned from provider")
	ErrNoPortalURL                = errors.New("no portal URL returned from provider")
	ErrMissingCustomerID          = errors.New("external customer ID is required")
	ErrMissingSubscriptionID      = errors.New("external subscription ID is required")
	ErrMissingPriceID             = errors.New("price ID is required")
	ErrMissingInvoiceID           = errors.New("invoice ID is required")
	ErrNoPaymentMethod            = errors.New("customer has no default payment method")
)
