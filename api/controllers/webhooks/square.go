package webhooks

import (
	"context"
	"net/http"
	"strings"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

type SquareWebhookService interface {
	HandleEvent(ctx context.Context, event *square.PaymentEvent) error
}

type squareVerifier interface {
	VerifySignature(body []byte, signature string) bool
}

// SquareWebhook handles Square payment notifications.
func SquareWebhook(svc SquareWebhookService, client squareVerifier, guard eventGuard, metrics failureRecorder, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			unavailable(ctx, logg, w, "webhook service")
			return
		}
		if client == nil {
			unavailable(ctx, logg, w, "square client")
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

		sigHeader := r.Header.Get(square.SignatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "square signature missing"))
			return
		}
		if !client.VerifySignature(payload, sigHeader) {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "invalid square signature"))
			return
		}

		event, err := square.ParsePaymentEvent(payload)
		if err != nil {
			// Authenticated but unreadable; redelivery would not help.
			if metrics != nil {
				metrics.IncWebhookFailure("square")
			}
			if logg != nil {
				logg.Error(ctx, "webhook.decode_failed", err)
			}
			responses.WriteSuccess(w, map[string]string{"status": "failed"})
			return
		}

		process(ctx, w, "square", strings.TrimSpace(event.EventID), guard, metrics, logg, func(ctx context.Context) error {
			return svc.HandleEvent(ctx, &event)
		})
	}
}
