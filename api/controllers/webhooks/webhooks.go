// Package webhooks exposes the processor webhook endpoints. Once a delivery is
// authenticated it is always acknowledged; processing failures are logged and
// counted, and the order is picked up again by polling or the expiry sweep.
package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const maxPayloadBytes = 1 << 16

type eventGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

type failureRecorder interface {
	IncWebhookFailure(processor string)
}

func readPayload(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxPayloadBytes))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request body")
	}
	return payload, nil
}

// process runs handle at most once per event id and always acknowledges.
func process(ctx context.Context, w http.ResponseWriter, processor, eventID string, guard eventGuard, metrics failureRecorder, logg *logger.Logger, handle func(context.Context) error) {
	if logg != nil {
		ctx = logg.WithFields(ctx, map[string]any{"processor": processor, "event_id": eventID})
	}

	if eventID != "" {
		seen, err := guard.CheckAndMark(ctx, eventID)
		if err != nil {
			// Processing is idempotent per order, so a guard outage only costs a repeat.
			if logg != nil {
				logg.Warn(logg.WithField(ctx, "error", err.Error()), "webhook.guard_unavailable")
			}
		} else if seen {
			if logg != nil {
				logg.Debug(ctx, "webhook.duplicate")
			}
			responses.WriteSuccess(w, map[string]string{"status": "duplicate"})
			return
		}
	}

	if err := handle(ctx); err != nil {
		if metrics != nil {
			metrics.IncWebhookFailure(processor)
		}
		if logg != nil {
			logg.Error(ctx, "webhook.processing_failed", err)
		}
		if eventID != "" {
			if delErr := guard.Delete(context.WithoutCancel(ctx), eventID); delErr != nil && logg != nil {
				logg.Warn(logg.WithField(ctx, "error", delErr.Error()), "webhook.guard_release_failed")
			}
		}
		responses.WriteSuccess(w, map[string]string{"status": "failed"})
		return
	}

	if logg != nil {
		logg.Info(ctx, "webhook.processed")
	}
	responses.WriteSuccess(w, map[string]string{"status": "processed"})
}

func unavailable(ctx context.Context, logg *logger.Logger, w http.ResponseWriter, what string) {
	responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, what+" unavailable"))
}
