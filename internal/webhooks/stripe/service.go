package stripewebhook

import (
	"context"

	stripe "github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/internal/reconciliation"
	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	pkgstripe "github.com/angelmondragon/storefront-backend/pkg/stripe"
)

type reconciler interface {
	HandleWebhook(ctx context.Context, n reconciliation.Notification) (reconciliation.Result, error)
}

type Service struct {
	engine reconciler
	logg   *logger.Logger
}

func NewService(engine reconciler, logg *logger.Logger) (*Service, error) {
	if engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation engine required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{engine: engine, logg: logg}, nil
}

// HandleEvent routes a verified checkout.session.* event to reconciliation.
// Other event types are acknowledged and ignored.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event required")
	}
	reference, outcome, ok, err := pkgstripe.EventOutcome(*event)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode stripe event")
	}
	if !ok {
		s.logg.Debug(s.logg.WithField(ctx, "event_type", string(event.Type)), "stripe event ignored")
		return nil
	}
	if outcome == checkout.OutcomePending {
		// completed but unpaid; the async_payment_* event follows
		return nil
	}

	_, err = s.engine.HandleWebhook(ctx, reconciliation.Notification{
		Processor: enums.ProcessorStripe,
		EventID:   event.ID,
		Reference: reference,
		Outcome:   outcome,
	})
	return err
}
