package squarewebhook

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/internal/reconciliation"
	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/square"
)

type recordingEngine struct {
	got []reconciliation.Notification
}

func (r *recordingEngine) HandleWebhook(_ context.Context, n reconciliation.Notification) (reconciliation.Result, error) {
	r.got = append(r.got, n)
	return reconciliation.Result{}, nil
}

type mapResolver map[string]square.OrderRef

func (m mapResolver) ResolveOrder(_ context.Context, orderID string) (square.OrderRef, error) {
	ref, ok := m[orderID]
	if !ok {
		return square.OrderRef{}, pkgerrors.New(pkgerrors.CodeNotFound, "square order not found")
	}
	return ref, nil
}

func paymentEvent(eventType, orderID, status string) *square.PaymentEvent {
	var ev square.PaymentEvent
	ev.EventID = "sq_evt_1"
	ev.Type = eventType
	ev.Data.Object.Payment.ID = "pay_1"
	ev.Data.Object.Payment.OrderID = orderID
	ev.Data.Object.Payment.Status = status
	return &ev
}

func newService(t *testing.T, engine *recordingEngine) *Service {
	t.Helper()
	svc, err := NewService(engine, mapResolver{
		"sq_order_1": {Reference: "ORD-20260301-000001", Outcome: checkout.OutcomePending},
		"sq_order_2": {Reference: "ORD-20260301-000002", Outcome: checkout.OutcomeFailure},
	}, logger.Nop())
	require.NoError(t, err)
	return svc
}

func TestHandleEventResolvesReference(t *testing.T) {
	engine := &recordingEngine{}
	svc := newService(t, engine)

	require.NoError(t, svc.HandleEvent(context.Background(), paymentEvent("payment.updated", "sq_order_1", "COMPLETED")))
	require.Len(t, engine.got, 1)
	assert.Equal(t, "ORD-20260301-000001", engine.got[0].Reference)
	assert.Equal(t, checkout.OutcomeSuccess, engine.got[0].Outcome)
	assert.Equal(t, enums.ProcessorSquare, engine.got[0].Processor)

}

func TestHandleEventDeclinedPaymentKeepsOpenLink(t *testing.T) {
	engine := &recordingEngine{}
	svc := newService(t, engine)

	require.NoError(t, svc.HandleEvent(context.Background(), paymentEvent("payment.updated", "sq_order_1", "FAILED")))
	require.NoError(t, svc.HandleEvent(context.Background(), paymentEvent("payment.updated", "sq_order_1", "CANCELED")))
	assert.Empty(t, engine.got)

	// a retry on the same link still settles the order
	require.NoError(t, svc.HandleEvent(context.Background(), paymentEvent("payment.updated", "sq_order_1", "COMPLETED")))
	require.Len(t, engine.got, 1)
	assert.Equal(t, checkout.OutcomeSuccess, engine.got[0].Outcome)
}

func TestHandleEventFailedPaymentOnClosedOrder(t *testing.T) {
	engine := &recordingEngine{}
	svc := newService(t, engine)

	require.NoError(t, svc.HandleEvent(context.Background(), paymentEvent("payment.updated", "sq_order_2", "FAILED")))
	require.Len(t, engine.got, 1)
	assert.Equal(t, "ORD-20260301-000002", engine.got[0].Reference)
	assert.Equal(t, checkout.OutcomeFailure, engine.got[0].Outcome)
}

func TestHandleEventSkipsPendingAndOtherTypes(t *testing.T) {
	engine := &recordingEngine{}
	svc := newService(t, engine)

	require.NoError(t, svc.HandleEvent(context.Background(), paymentEvent("payment.created", "sq_order_1", "APPROVED")))
	require.NoError(t, svc.HandleEvent(context.Background(), paymentEvent("refund.updated", "sq_order_1", "COMPLETED")))
	assert.Empty(t, engine.got)
}

func TestHandleEventErrors(t *testing.T) {
	svc := newService(t, &recordingEngine{})

	err := svc.HandleEvent(context.Background(), paymentEvent("payment.updated", "", "COMPLETED"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))

	err = svc.HandleEvent(context.Background(), paymentEvent("payment.updated", "sq_unknown", "COMPLETED"))
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}
