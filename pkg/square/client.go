// Package square adapts Square payment links to the checkout processor contract.
package square

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	sq "github.com/square/square-go-sdk"
	sqcheckout "github.com/square/square-go-sdk/checkout"
	sqclient "github.com/square/square-go-sdk/client"
	sqoption "github.com/square/square-go-sdk/option"

	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

var endpoints = map[string]string{
	"sandbox":    "https://connect.squareupsandbox.com",
	"production": "https://connect.squareup.com",
}

var errIncompleteLink = errors.New("payment link response missing order id or url")

// api is the part of the Square SDK the adapter calls.
type api interface {
	CreatePaymentLink(ctx context.Context, req *sqcheckout.CreatePaymentLinkRequest) (*sq.PaymentLink, error)
	GetOrder(ctx context.Context, orderID string) (*sq.Order, error)
	UpdateOrder(ctx context.Context, req *sq.UpdateOrderRequest) (*sq.Order, error)
}

type sdk struct {
	c *sqclient.Client
}

func (s sdk) CreatePaymentLink(ctx context.Context, req *sqcheckout.CreatePaymentLinkRequest) (*sq.PaymentLink, error) {
	resp, err := s.c.Checkout.PaymentLinks.Create(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.PaymentLink, nil
}

func (s sdk) GetOrder(ctx context.Context, orderID string) (*sq.Order, error) {
	resp, err := s.c.Orders.Get(ctx, &sq.GetOrdersRequest{OrderID: orderID})
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

func (s sdk) UpdateOrder(ctx context.Context, req *sq.UpdateOrderRequest) (*sq.Order, error) {
	resp, err := s.c.Orders.Update(ctx, req)
	if err != nil {
		return nil, err
	}
	return resp.Order, nil
}

// Client opens payment links for storefront orders and reads the Square
// orders behind them.
type Client struct {
	api           api
	locationID    string
	webhookSecret string
	webhookURL    string
	logg          *logger.Logger
}

var _ checkout.Processor = (*Client)(nil)

func NewClient(ctx context.Context, cfg config.SquareConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errors.New("square logger is required")
	}
	env := cfg.Environment()
	baseURL, ok := endpoints[env]
	if !ok {
		return nil, fmt.Errorf("square environment must be sandbox or production, got %q", env)
	}

	required := map[string]string{
		"access token":          cfg.AccessToken,
		"webhook signature key": cfg.WebhookSecret,
		"location id":           cfg.LocationID,
	}
	for name, value := range required {
		if strings.TrimSpace(value) == "" {
			return nil, fmt.Errorf("square %s is required", name)
		}
	}

	c := &Client{
		api: sdk{c: sqclient.NewClient(
			sqoption.WithBaseURL(baseURL),
			sqoption.WithToken(strings.TrimSpace(cfg.AccessToken)),
		)},
		locationID:    strings.TrimSpace(cfg.LocationID),
		webhookSecret: strings.TrimSpace(cfg.WebhookSecret),
		webhookURL:    strings.TrimSpace(cfg.WebhookURL),
		logg:          logg,
	}
	logg.Info(logg.WithField(ctx, "square_env", env), "square client ready")
	return c, nil
}

func (c *Client) Name() enums.Processor {
	return enums.ProcessorSquare
}

// OpenSession creates a payment link whose Square order carries the order
// number as reference_id. The returned session id is the Square order id.
func (c *Client) OpenSession(ctx context.Context, req checkout.SessionRequest) (checkout.Session, error) {
	if err := req.Validate(); err != nil {
		return checkout.Session{}, checkout.UpstreamError(ctx, err, "square: build payment link")
	}

	ctx = c.fields(ctx, map[string]any{"reference": req.Reference, "location_id": c.locationID})
	link, err := c.api.CreatePaymentLink(ctx, paymentLinkRequest(c.locationID, linkKey(req.Reference), req))
	if err != nil {
		return checkout.Session{}, c.fail(ctx, err, "create payment link")
	}

	orderID, url := deref(link.GetOrderID()), deref(link.GetURL())
	if orderID == "" || url == "" {
		return checkout.Session{}, checkout.UpstreamError(ctx, errIncompleteLink, "square: create payment link")
	}
	c.debug(c.fields(ctx, map[string]any{"square_order_id": orderID}), "square payment link created")
	return checkout.Session{ID: orderID, RedirectURL: url}, nil
}

// SessionStatus reads the Square order behind a payment link.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (checkout.Outcome, error) {
	order, err := c.api.GetOrder(ctx, sessionID)
	if err != nil {
		return checkout.OutcomePending, c.fail(c.fields(ctx, map[string]any{"square_order_id": sessionID}), err, "get order")
	}
	return OrderOutcome(order), nil
}

// ExpireSession cancels the Square order behind a payment link, which stops
// the link from taking payment. A cancel that Square rejects is answered by
// re-reading the order, since a payment may have landed first.
func (c *Client) ExpireSession(ctx context.Context, sessionID string) (checkout.Outcome, error) {
	ctx = c.fields(ctx, map[string]any{"square_order_id": sessionID})
	order, err := c.api.GetOrder(ctx, sessionID)
	if err != nil {
		return checkout.OutcomePending, c.fail(ctx, err, "get order")
	}
	if order == nil {
		return checkout.OutcomePending, pkgerrors.New(pkgerrors.CodeNotFound, "square order not found")
	}
	if outcome := OrderOutcome(order); outcome.IsTerminal() {
		return outcome, nil
	}

	canceled := sq.OrderStateCanceled
	_, err = c.api.UpdateOrder(ctx, &sq.UpdateOrderRequest{
		OrderID: sessionID,
		Order: &sq.Order{
			LocationID: c.locationID,
			Version:    order.Version,
			State:      &canceled,
		},
		IdempotencyKey: ptrString("expire-" + sessionID + "-" + uuid.NewString()),
	})
	if err != nil {
		if current, getErr := c.api.GetOrder(ctx, sessionID); getErr == nil {
			if outcome := OrderOutcome(current); outcome.IsTerminal() {
				return outcome, nil
			}
		}
		return checkout.OutcomePending, c.fail(ctx, err, "cancel order")
	}
	c.debug(ctx, "square order canceled")
	return checkout.OutcomeExpired, nil
}

// OrderRef is what a payment webhook needs from the Square order it names.
type OrderRef struct {
	Reference string
	Outcome   checkout.Outcome
}

// ResolveOrder returns the storefront order number attached to a Square order
// and the order's own outcome.
func (c *Client) ResolveOrder(ctx context.Context, orderID string) (OrderRef, error) {
	order, err := c.api.GetOrder(ctx, orderID)
	if err != nil {
		return OrderRef{}, c.fail(c.fields(ctx, map[string]any{"square_order_id": orderID}), err, "get order")
	}
	if order == nil {
		return OrderRef{}, pkgerrors.New(pkgerrors.CodeNotFound, "square order not found")
	}
	return OrderRef{
		Reference: strings.TrimSpace(deref(order.GetReferenceID())),
		Outcome:   OrderOutcome(order),
	}, nil
}

// OrderOutcome maps a payment-link order. An open order that has tenders and
// nothing left to pay is treated as paid.
func OrderOutcome(order *sq.Order) checkout.Outcome {
	if order == nil || order.GetState() == nil {
		return checkout.OutcomePending
	}
	switch *order.GetState() {
	case sq.OrderStateCompleted:
		return checkout.OutcomeSuccess
	case sq.OrderStateCanceled:
		return checkout.OutcomeFailure
	case sq.OrderStateOpen:
		if due := order.GetNetAmountDueMoney(); len(order.GetTenders()) > 0 && (due == nil || due.Amount == nil || *due.Amount == 0) {
			return checkout.OutcomeSuccess
		}
	}
	return checkout.OutcomePending
}

// PaymentOutcome maps the payment status carried by payment.* webhooks. A
// declined or canceled payment leaves the payment link open for another
// attempt, so only a completed payment settles the order.
func PaymentOutcome(status string) checkout.Outcome {
	if normalizeStatus(status) == "COMPLETED" {
		return checkout.OutcomeSuccess
	}
	return checkout.OutcomePending
}

// PaymentAttemptEnded reports a payment that finished without taking money.
func PaymentAttemptEnded(status string) bool {
	switch normalizeStatus(status) {
	case "FAILED", "CANCELED":
		return true
	}
	return false
}

func normalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

// linkKey is unique per attempt; Square rejects a reused key with a different body.
func linkKey(reference string) string {
	return "checkout-" + reference + "-" + uuid.NewString()
}

var sensitiveKeys = []string{"email", "phone", "address", "token", "secret", "nonce", "card"}

func (c *Client) fields(ctx context.Context, fields map[string]any) context.Context {
	if c.logg == nil {
		return ctx
	}
	clean := make(map[string]any, len(fields))
	for k, v := range fields {
		clean[k] = redact(k, v)
	}
	return c.logg.WithFields(ctx, clean)
}

func (c *Client) debug(ctx context.Context, msg string) {
	if c.logg != nil {
		c.logg.Debug(ctx, msg)
	}
}

func (c *Client) fail(ctx context.Context, err error, op string) error {
	mapped := mapError(ctx, err, op)
	if c.logg != nil {
		c.logg.Warn(c.logg.WithField(ctx, "error", err.Error()), "square "+op+" failed")
	}
	return mapped
}

func redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, s := range sensitiveKeys {
		if strings.Contains(lower, s) {
			return "[REDACTED]"
		}
	}
	return value
}

func deref(ptr *string) string {
	if ptr == nil {
		return ""
	}
	return *ptr
}
