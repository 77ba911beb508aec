package webhooks

import (
	"context"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/webhook"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const stripeSignatureHeader = "Stripe-Signature"

type StripeWebhookService interface {
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

type stripeClient interface {
	SigningSecret() string
}

// StripeWebhook handles Stripe Checkout Session events.
func StripeWebhook(svc StripeWebhookService, client stripeClient, guard eventGuard, metrics failureRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			unavailable(ctx, logg, w, "webhook service")
			return
		}
		if client == nil {
			unavailable(ctx, logg, w, "stripe client")
			return
		}
		if guard == nil {
			unavailable(ctx, logg, w, "idempotency guard")
			return
		}

		payload, err := readPayload(w, r)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		sigHeader := r.Header.Get(stripeSignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "stripe signature missing"))
			return
		}

		event, err := webhook.ConstructEventWithOptions(payload, sigHeader, client.SigningSecret(), webhook.ConstructEventOptions{
			IgnoreAPIVersionMismatch: true,
		})
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid stripe signature"))
			return
		}

		process(ctx, w, "stripe", event.ID, guard, metrics, logg, func(ctx context.Context) error {
			return svc.HandleEvent(ctx, &event)
		})
	}
}
