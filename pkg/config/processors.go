package config

import (
	"strings"
	"time"
)

// CheckoutConfig drives order pricing and processor session brokering.
type CheckoutConfig struct {
	Processor      string        `envconfig:"STOREFRONT_CHECKOUT_PROCESSOR" default:"stripe" validate:"oneof=stripe square"`
	Currency       string        `envconfig:"STOREFRONT_CHECKOUT_CURRENCY" default:"jpy" validate:"required,len=3,alpha"`
	ShippingFee    int64         `envconfig:"STOREFRONT_CHECKOUT_SHIPPING_FEE" default:"150" validate:"gte=0"`
	ReturnBaseURL  string        `envconfig:"STOREFRONT_CHECKOUT_RETURN_BASE_URL" default:"http://localhost:3000" validate:"url"`
	SessionTTL     time.Duration `envconfig:"STOREFRONT_CHECKOUT_SESSION_TTL" default:"1h" validate:"gt=0"`
	SessionTimeout time.Duration `envconfig:"STOREFRONT_CHECKOUT_SESSION_TIMEOUT" default:"10s" validate:"gt=0"`
	PollTimeout    time.Duration `envconfig:"STOREFRONT_RECONCILE_POLL_TIMEOUT" default:"5s" validate:"gt=0"`
	ExpiryGrace    time.Duration `envconfig:"STOREFRONT_CHECKOUT_EXPIRY_GRACE" default:"15m" validate:"gte=0"`
}

// ProcessorName returns the normalized processor key.
func (c CheckoutConfig) ProcessorName() string {
	return lowerOr(c.Processor, ProcessorStripe)
}

// ExpiryDeadline is how long a pending order may wait for a processor outcome.
func (c CheckoutConfig) ExpiryDeadline() time.Duration {
	return c.SessionTTL + c.ExpiryGrace
}

type StripeConfig struct {
	APIKey string `envconfig:"STOREFRONT_STRIPE_API_KEY"`
	Secret string `envconfig:"STOREFRONT_STRIPE_SECRET"`
	Env    string `envconfig:"STOREFRONT_STRIPE_ENV" default:"test" validate:"oneof=test live"`
}

func (s StripeConfig) Environment() string { return lowerOr(s.Env, "test") }

type SquareConfig struct {
	AccessToken   string `envconfig:"STOREFRONT_SQUARE_ACCESS_TOKEN"`
	WebhookSecret string `envconfig:"STOREFRONT_SQUARE_WEBHOOK_SIGNATURE_KEY"`
	WebhookURL    string `envconfig:"STOREFRONT_SQUARE_WEBHOOK_URL" validate:"omitempty,url"`
	LocationID    string `envconfig:"STOREFRONT_SQUARE_LOCATION_ID"`
	Env           string `envconfig:"STOREFRONT_SQUARE_ENV" default:"sandbox" validate:"oneof=sandbox production"`
}

func (s SquareConfig) Environment() string { return lowerOr(s.Env, "sandbox") }

func lowerOr(value, fallback string) string {
	if v := strings.ToLower(strings.TrimSpace(value)); v != "" {
		return v
	}
	return fallback
}
