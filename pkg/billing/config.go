package billing

import "time"

// Config selects and tunes the payment processor integration.
type Config struct {
	Provider string        `env:"BILLING_PROVIDER" envDefault:"stripe"` // stripe or paddle
	Timeout  time.Duration `env:"BILLING_TIMEOUT" envDefault:"10s"`     // upper bound for a single remote call
}

// StripeConfig holds Stripe credentials.
type StripeConfig struct {
	SecretKey     string `env:"STRIPE_SECRET_KEY"`
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET"`
}

// PaddleConfig holds configuration for Paddle billing provider.
type PaddleConfig struct {
	APIKey        string `env:"PADDLE_API_KEY"`
	WebhookSecret string `env:"PADDLE_WEBHOOK_SECRET"`
	Environment   string `env:"PADDLE_ENVIRONMENT" envDefault:"production"`
}

const (
	ProviderStripe = "stripe"
	ProviderPaddle = "paddle"
)
