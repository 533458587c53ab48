// Package payment collects money for reservations through an external
// gateway (Stripe in production) and keeps the reservation's payment
// status in step with it.
package payment

import "context"

// IntentRequest asks the gateway to prepare a charge.
type IntentRequest struct {
	AmountCents    int64
	Currency       string
	IdempotencyKey string
	Metadata       map[string]string
}

// Intent is a prepared charge. The client completes it with ClientSecret.
type Intent struct {
	ID           string `json:"id"`
	ClientSecret string `json:"client_secret"`
	Status       string `json:"status"`
	AmountCents  int64  `json:"amount_cents"`
	Currency     string `json:"currency"`
}

// Gateway is the payment provider.
type Gateway interface {
	CreateIntent(ctx context.Context, req IntentRequest) (Intent, error)
	// Refund returns money for a paid intent. amountCents of zero refunds
	// the full amount.
	Refund(ctx context.Context, intentID string, amountCents int64) (string, error)
}

// Event types the service reacts to.
const (
	EventIntentSucceeded = "payment_intent.succeeded"
	EventIntentFailed    = "payment_intent.payment_failed"
)

// WebhookEvent is a verified gateway callback.
type WebhookEvent struct {
	ID       string
	Type     string
	IntentID string
}

// WebhookVerifier authenticates and decodes a gateway callback.
type WebhookVerifier interface {
	Verify(payload []byte, signature string) (WebhookEvent, error)
}
