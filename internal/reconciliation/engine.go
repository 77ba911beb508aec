// Package reconciliation applies processor outcomes to orders exactly once,
// whichever channel reports them first.
package reconciliation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
	"github.com/angelmondragon/storefront-backend/pkg/metrics"
	"github.com/angelmondragon/storefront-backend/pkg/outbox"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
)

// Channel names where an outcome came from.
type Channel string

const (
	ChannelPoll     Channel = "poll"
	ChannelWebhook  Channel = "webhook"
	ChannelCheckout Channel = "checkout"
	ChannelSweep    Channel = "sweep"
)

const (
	resultApplied  = "applied"
	resultConflict = "conflict"
	resultNoop     = "noop"
	resultError    = "error"

	ReasonPaymentFailed  = "payment_failed"
	ReasonSessionExpired = "session_expired"
)

// Result is the payment and fulfillment state reported back to callers.
type Result struct {
	OrderNumber   string              `json:"order_number"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
	OrderStatus   enums.OrderStatus   `json:"order_status"`
}

func resultOf(order *models.Order) Result {
	return Result{
		OrderNumber:   order.OrderNumber,
		PaymentStatus: order.PaymentStatus,
		OrderStatus:   order.OrderStatus,
	}
}

// Notification is a verified processor webhook reduced to what reconciliation needs.
type Notification struct {
	Processor enums.Processor
	EventID   string
	Reference string
	Outcome   checkout.Outcome
	Reason    string
}

// Notifier sends the buyer's confirmation once payment is committed.
type Notifier interface {
	SendOrderConfirmation(ctx context.Context, email string, snapshot payloads.OrderSnapshot) error
}

// StockReleaser returns the stock held by an order's lines, at most once per line.
type StockReleaser interface {
	ReleaseLines(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (int, error)
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type EngineParams struct {
	Orders      orders.Repository
	TX          txRunner
	Inventory   StockReleaser
	Outbox      outboxPublisher
	Processors  checkout.Processors
	Notifier    Notifier
	Metrics     *metrics.ReconciliationMetrics
	Logger      *logger.Logger
	PollTimeout time.Duration
	Now         func() time.Time
}

type Engine struct {
	orders      orders.Repository
	tx          txRunner
	inventory   StockReleaser
	outbox      outboxPublisher
	processors  checkout.Processors
	notifier    Notifier
	metrics     *metrics.ReconciliationMetrics
	logg        *logger.Logger
	pollTimeout time.Duration
	now         func() time.Time
	polls       singleflight.Group
}

var errConflict = pkgerrors.New(pkgerrors.CodeConflict, "order payment already settled")

func NewEngine(params EngineParams) (*Engine, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.TX == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Inventory == nil {
		return nil, fmt.Errorf("inventory releaser required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox publisher required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	e := &Engine{
		orders:      params.Orders,
		tx:          params.TX,
		inventory:   params.Inventory,
		outbox:      params.Outbox,
		processors:  params.Processors,
		notifier:    params.Notifier,
		metrics:     params.Metrics,
		logg:        params.Logger,
		pollTimeout: params.PollTimeout,
		now:         params.Now,
	}
	if e.pollTimeout <= 0 {
		e.pollTimeout = 5 * time.Second
	}
	if e.now == nil {
		e.now = time.Now
	}
	return e, nil
}

// Poll answers a buyer status check. Settled orders are returned without
// contacting the processor; concurrent polls for one order share a single lookup.
// The shared lookup is detached from every caller, so one caller hanging up
// only ends its own wait.
func (e *Engine) Poll(ctx context.Context, orderNumber string) (Result, error) {
	orderNumber = strings.TrimSpace(orderNumber)
	shared := context.WithoutCancel(ctx)
	ch := e.polls.DoChan(orderNumber, func() (any, error) {
		return e.poll(shared, orderNumber)
	})
	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	}
}

func (e *Engine) poll(ctx context.Context, orderNumber string) (Result, error) {
	order, err := e.orders.FindByNumber(ctx, orderNumber)
	if err != nil {
		return Result{}, err
	}
	if order.PaymentStatus.IsSettled() || order.SessionID() == "" {
		return resultOf(order), nil
	}

	outcome, err := e.querySession(ctx, order)
	if err != nil {
		logCtx := e.logg.WithOrderNumber(ctx, order.OrderNumber)
		e.logg.Warn(e.logg.WithField(logCtx, "error", err.Error()), "payment status poll failed, returning last known state")
		e.metrics.ObserveOutcome(string(ChannelPoll), string(checkout.OutcomePending), resultError)
		return resultOf(order), nil
	}
	return e.ApplyOutcome(ctx, order, outcome, ChannelPoll, "")
}

func (e *Engine) querySession(ctx context.Context, order *models.Order) (checkout.Outcome, error) {
	processor, err := e.processors.Get(order.Processor)
	if err != nil {
		return checkout.OutcomePending, err
	}
	callCtx, cancel := context.WithTimeout(ctx, e.pollTimeout)
	defer cancel()
	outcome, err := processor.SessionStatus(callCtx, order.SessionID())
	if err != nil {
		return checkout.OutcomePending, checkout.UpstreamError(callCtx, err, "session status")
	}
	return outcome, nil
}

// HandleWebhook applies a verified processor notification to the order it references.
func (e *Engine) HandleWebhook(ctx context.Context, n Notification) (Result, error) {
	reference := strings.TrimSpace(n.Reference)
	if reference == "" {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "webhook carries no order reference")
	}
	order, err := e.orders.FindByNumber(ctx, reference)
	if err != nil {
		return Result{}, err
	}
	if n.Processor != "" && n.Processor != order.Processor {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("order %s is not owned by %s", order.OrderNumber, n.Processor))
	}
	return e.ApplyOutcome(ctx, order, n.Outcome, ChannelWebhook, n.Reason)
}

// Sweep settles an order whose session outlived its deadline. A session the
// processor still reports as pending is closed there first, and the order
// expires only once the processor confirms the close. An unreachable
// processor or a close that did not take leaves the order for the next sweep.
func (e *Engine) Sweep(ctx context.Context, order *models.Order) (Result, error) {
	if order.PaymentStatus.IsSettled() {
		return resultOf(order), nil
	}
	if order.SessionID() == "" {
		return e.ApplyOutcome(ctx, order, checkout.OutcomeExpired, ChannelSweep, "")
	}

	outcome, err := e.querySession(ctx, order)
	if err == nil && !outcome.IsTerminal() {
		outcome, err = e.expireSession(ctx, order)
	}
	if err != nil {
		e.metrics.ObserveOutcome(string(ChannelSweep), string(checkout.OutcomePending), resultError)
		return resultOf(order), err
	}
	if !outcome.IsTerminal() {
		e.metrics.ObserveOutcome(string(ChannelSweep), string(outcome), resultNoop)
		e.logg.Warn(e.logg.WithOrderNumber(ctx, order.OrderNumber), "processor kept the session open, retrying next sweep")
		return resultOf(order), nil
	}
	return e.ApplyOutcome(ctx, order, outcome, ChannelSweep, "")
}

func (e *Engine) expireSession(ctx context.Context, order *models.Order) (checkout.Outcome, error) {
	processor, err := e.processors.Get(order.Processor)
	if err != nil {
		return checkout.OutcomePending, err
	}
	callCtx, cancel := context.WithTimeout(ctx, e.pollTimeout)
	defer cancel()
	outcome, err := processor.ExpireSession(callCtx, order.SessionID())
	if err != nil {
		return checkout.OutcomePending, checkout.UpstreamError(callCtx, err, "expire session")
	}
	return outcome, nil
}

// ApplyOutcome commits a terminal outcome if the order is still pending.
// Losing the race to another channel is not an error: the current state is returned.
func (e *Engine) ApplyOutcome(ctx context.Context, order *models.Order, outcome checkout.Outcome, channel Channel, reason string) (Result, error) {
	ctx = e.logg.WithFields(e.logg.WithOrderNumber(ctx, order.OrderNumber), map[string]any{
		"channel": string(channel),
		"outcome": string(outcome),
	})

	var err error
	switch outcome {
	case checkout.OutcomeSuccess:
		err = e.commitPaid(ctx, order, channel)
	case checkout.OutcomeFailure, checkout.OutcomeExpired:
		err = e.commitFailed(ctx, order, outcome, channel, reason)
	default:
		e.metrics.ObserveOutcome(string(channel), string(outcome), resultNoop)
		return resultOf(order), nil
	}

	switch {
	case err == nil:
		e.metrics.ObserveOutcome(string(channel), string(outcome), resultApplied)
		e.logg.Info(ctx, "payment outcome applied")
	case pkgerrors.IsCode(err, pkgerrors.CodeConflict):
		e.metrics.ObserveOutcome(string(channel), string(outcome), resultConflict)
		e.logg.Info(ctx, "payment already settled by another channel")
	default:
		e.metrics.ObserveOutcome(string(channel), string(outcome), resultError)
		return Result{}, err
	}

	current, err := e.orders.FindByID(ctx, order.ID)
	if err != nil {
		return Result{}, err
	}
	return resultOf(current), nil
}

func (e *Engine) commitPaid(ctx context.Context, order *models.Order, channel Channel) error {
	paidAt := e.now().UTC()
	err := e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		changed, err := e.orders.WithTx(tx).MarkPaid(ctx, order.ID, paidAt)
		if err != nil {
			return err
		}
		if !changed {
			return errConflict
		}
		return e.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventOrderPaid,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Role: "reconciliation", Subject: string(channel)},
			OccurredAt:    paidAt,
			Data: payloads.OrderPaidEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				Channel:     string(channel),
				PaidAt:      paidAt,
			},
		})
	})
	if err != nil {
		return err
	}
	e.sendConfirmation(ctx, order)
	return nil
}

func (e *Engine) commitFailed(ctx context.Context, order *models.Order, outcome checkout.Outcome, channel Channel, reason string) error {
	failedAt := e.now().UTC()
	if reason == "" {
		reason = ReasonPaymentFailed
		if outcome == checkout.OutcomeExpired {
			reason = ReasonSessionExpired
		}
	}
	return e.tx.WithTx(ctx, func(tx *gorm.DB) error {
		changed, err := e.orders.WithTx(tx).MarkFailed(ctx, order.ID, failedAt, reason)
		if err != nil {
			return err
		}
		if !changed {
			return errConflict
		}
		released, err := e.inventory.ReleaseLines(ctx, tx, order.ID)
		if err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderPaymentFailed,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{Role: "reconciliation", Subject: string(channel)},
			OccurredAt:    failedAt,
			Data: payloads.OrderPaymentFailedEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				Channel:       string(channel),
				Reason:        reason,
				FailedAt:      failedAt,
				ReleasedLines: released,
			},
		}
		if outcome == checkout.OutcomeExpired {
			event.EventType = enums.EventOrderExpired
			event.Data = payloads.OrderExpiredEvent{
				OrderID:       order.ID,
				OrderNumber:   order.OrderNumber,
				Channel:       string(channel),
				ExpiredAt:     failedAt,
				ReleasedLines: released,
			}
		}
		return e.outbox.Emit(ctx, tx, event)
	})
}

// sendConfirmation is best effort: the payment commit stands whatever happens here.
func (e *Engine) sendConfirmation(ctx context.Context, order *models.Order) {
	if e.notifier == nil {
		return
	}
	full := order
	if len(order.LineItems) == 0 {
		loaded, err := e.orders.FindByID(ctx, order.ID)
		if err != nil {
			e.metrics.IncNotificationFailure()
			e.logg.Error(ctx, "load order for confirmation failed", err)
			return
		}
		full = loaded
	}
	if err := e.notifier.SendOrderConfirmation(ctx, full.CustomerEmail, Snapshot(full)); err != nil {
		e.metrics.IncNotificationFailure()
		e.logg.Error(ctx, "order confirmation dispatch failed", err)
	}
}

// Snapshot freezes what the confirmation email shows.
func Snapshot(order *models.Order) payloads.OrderSnapshot {
	snap := payloads.OrderSnapshot{
		OrderID:      order.ID,
		OrderNumber:  order.OrderNumber,
		CustomerName: order.CustomerName,
		Subtotal:     order.Subtotal,
		ShippingFee:  order.ShippingFee,
		Total:        order.Total,
		Currency:     order.Currency,
		Lines:        make([]payloads.SnapshotLine, 0, len(order.LineItems)),
	}
	for _, part := range []string{
		"〒" + order.ShippingPostalCode,
		order.ShippingPrefecture + " " + order.ShippingCity,
		order.ShippingLine1,
		order.ShippingLine2,
	} {
		if strings.TrimSpace(part) != "" && part != "〒" {
			snap.ShippingLines = append(snap.ShippingLines, strings.TrimSpace(part))
		}
	}
	for _, line := range order.LineItems {
		snap.Lines = append(snap.Lines, payloads.SnapshotLine{
			Name:      line.DisplayName,
			Size:      line.Size,
			Color:     line.Color,
			Quantity:  line.Quantity,
			UnitPrice: line.UnitPrice,
			LineTotal: line.LineTotal,
		})
	}
	return snap
}
