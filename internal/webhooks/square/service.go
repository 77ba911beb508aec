package squarewebhook

import (
	"context"
	"strings"

	"github.com/angelmondragon/storefront-backend/internal/reconciliation"
	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

type reconciler interface {
	HandleWebhook(ctx context.Context, n reconciliation.Notification) (reconciliation.Result, error)
}

// orderResolver maps a Square order id to the storefront order number and
// the Square order's own state.
type orderResolver interface {
	ResolveOrder(ctx context.Context, orderID string) (square.OrderRef, error)
}

type Service struct {
	engine   reconciler
	resolver orderResolver
	logg     *logger.Logger
}

func NewService(engine reconciler, resolver orderResolver, logg *logger.Logger) (*Service, error) {
	if engine == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciliation engine required")
	}
	if resolver == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "square client required")
	}
	if logg == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{engine: engine, resolver: resolver, logg: logg}, nil
}

// HandleEvent applies a payment.created / payment.updated notification. A
// completed payment settles the order. A failed or canceled payment only
// settles it when the Square order itself is closed, since the payment link
// otherwise stays open for another attempt.
func (s *Service) HandleEvent(ctx context.Context, event *square.PaymentEvent) error {
	if event == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "square event required")
	}
	if !event.IsPaymentEvent() {
		s.logg.Debug(s.logg.WithField(ctx, "event_type", event.Type), "square event ignored")
		return nil
	}

	payment := event.Data.Object.Payment
	outcome := square.PaymentOutcome(payment.Status)
	if outcome == checkout.OutcomePending && !square.PaymentAttemptEnded(payment.Status) {
		return nil
	}
	orderID := strings.TrimSpace(payment.OrderID)
	if orderID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "square payment has no order id")
	}

	ref, err := s.resolver.ResolveOrder(ctx, orderID)
	if err != nil {
		return err
	}
	if outcome == checkout.OutcomePending {
		outcome = ref.Outcome
	}
	if !outcome.IsTerminal() {
		s.logg.Info(s.logg.WithFields(ctx, map[string]any{
			"order_number":   ref.Reference,
			"payment_status": payment.Status,
		}), "square payment attempt ended, payment link still open")
		return nil
	}
	_, err = s.engine.HandleWebhook(ctx, reconciliation.Notification{
		Processor: enums.ProcessorSquare,
		EventID:   event.EventID,
		Reference: ref.Reference,
		Outcome:   outcome,
	})
	return err
}
