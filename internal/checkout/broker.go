// Package checkout opens hosted payment sessions for committed orders.
package checkout

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/internal/orders"
	"github.com/angelmondragon/storefront-backend/internal/reconciliation"
	pkgcheckout "github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

const ReasonSessionOpenFailed = "session_open_failed"

// OutcomeApplier commits a terminal payment outcome; the reconciliation engine implements it.
type OutcomeApplier interface {
	ApplyOutcome(ctx context.Context, order *models.Order, outcome pkgcheckout.Outcome, channel reconciliation.Channel, reason string) (reconciliation.Result, error)
}

// Placement is what the buyer receives after checkout.
type Placement struct {
	OrderNumber   string              `json:"order_number"`
	RedirectURL   string              `json:"redirect_url,omitempty"`
	PaymentStatus enums.PaymentStatus `json:"payment_status"`
}

type BrokerParams struct {
	Orders     orders.Repository
	Processors pkgcheckout.Processors
	Outcomes   OutcomeApplier
	Config     config.CheckoutConfig
	Logger     *logger.Logger
	Now        func() time.Time
}

type Broker struct {
	orders     orders.Repository
	processors pkgcheckout.Processors
	outcomes   OutcomeApplier
	cfg        config.CheckoutConfig
	logg       *logger.Logger
	now        func() time.Time
}

func NewBroker(params BrokerParams) (*Broker, error) {
	if params.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if len(params.Processors) == 0 {
		return nil, fmt.Errorf("at least one payment processor required")
	}
	if params.Outcomes == nil {
		return nil, fmt.Errorf("outcome applier required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if _, err := url.Parse(params.Config.ReturnBaseURL); err != nil {
		return nil, fmt.Errorf("invalid return base url: %w", err)
	}
	b := &Broker{
		orders:     params.Orders,
		processors: params.Processors,
		outcomes:   params.Outcomes,
		cfg:        params.Config,
		logg:       params.Logger,
		now:        params.Now,
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b, nil
}

// Open asks the order's processor for a hosted payment page. When the processor
// cannot be reached the order is failed and its stock released before the
// classified error is returned with the order number attached.
func (b *Broker) Open(ctx context.Context, order *models.Order) (Placement, error) {
	ctx = b.logg.WithOrderNumber(ctx, order.OrderNumber)
	req, err := b.sessionRequest(order)
	if err != nil {
		return Placement{}, err
	}

	session, err := b.openSession(ctx, order, req)
	if err != nil {
		return b.fail(ctx, order, err)
	}

	attached, err := b.orders.AttachSession(ctx, order.ID, session.ID, session.RedirectURL)
	if err != nil {
		return Placement{}, err
	}
	if !attached {
		// settled by another channel before the session came back
		current, err := b.orders.FindByID(ctx, order.ID)
		if err != nil {
			return Placement{}, err
		}
		return Placement{OrderNumber: current.OrderNumber, PaymentStatus: current.PaymentStatus}, nil
	}

	b.logg.Info(b.logg.WithField(ctx, "session_id", session.ID), "checkout session opened")
	return Placement{
		OrderNumber:   order.OrderNumber,
		RedirectURL:   session.RedirectURL,
		PaymentStatus: enums.PaymentStatusPending,
	}, nil
}

func (b *Broker) openSession(ctx context.Context, order *models.Order, req pkgcheckout.SessionRequest) (pkgcheckout.Session, error) {
	processor, err := b.processors.Get(order.Processor)
	if err != nil {
		return pkgcheckout.Session{}, err
	}
	callCtx := ctx
	if b.cfg.SessionTimeout > 0 {
		var cancel context.CancelFunc
		callCtx, cancel = context.WithTimeout(ctx, b.cfg.SessionTimeout)
		defer cancel()
	}
	session, err := processor.OpenSession(callCtx, req)
	if err != nil {
		return pkgcheckout.Session{}, pkgcheckout.UpstreamError(callCtx, err, "open checkout session")
	}
	return session, nil
}

func (b *Broker) fail(ctx context.Context, order *models.Order, cause error) (Placement, error) {
	b.logg.Error(ctx, "checkout session open failed", cause)

	placement := Placement{OrderNumber: order.OrderNumber, PaymentStatus: order.PaymentStatus}
	res, err := b.outcomes.ApplyOutcome(context.WithoutCancel(ctx), order, pkgcheckout.OutcomeFailure, reconciliation.ChannelCheckout, ReasonSessionOpenFailed)
	if err != nil {
		// the expiry sweep will release the stock
		b.logg.Error(ctx, "failing order after session error", err)
	} else {
		placement.PaymentStatus = res.PaymentStatus
	}

	classified := pkgerrors.As(cause)
	if classified == nil {
		classified = pkgerrors.Wrap(pkgerrors.CodeUpstream, cause, "open checkout session failed")
	}
	return placement, classified.WithDetails(map[string]any{
		"order_number":   placement.OrderNumber,
		"payment_status": placement.PaymentStatus,
	})
}

func (b *Broker) sessionRequest(order *models.Order) (pkgcheckout.SessionRequest, error) {
	returns, err := b.returnURLs(order.OrderNumber)
	if err != nil {
		return pkgcheckout.SessionRequest{}, err
	}
	req := pkgcheckout.SessionRequest{
		Reference:   order.OrderNumber,
		Currency:    order.Currency,
		Total:       order.Total,
		ShippingFee: order.ShippingFee,
		Contact: pkgcheckout.Contact{
			Name:  order.CustomerName,
			Email: order.CustomerEmail,
			Phone: order.CustomerPhone,
		},
		Shipping: pkgcheckout.Address{
			PostalCode: order.ShippingPostalCode,
			Prefecture: order.ShippingPrefecture,
			City:       order.ShippingCity,
			Line1:      order.ShippingLine1,
			Line2:      order.ShippingLine2,
		},
		ReturnURLs: returns,
		Lines:      make([]pkgcheckout.LineDescription, 0, len(order.LineItems)),
	}
	if b.cfg.SessionTTL > 0 {
		req.ExpiresAt = b.now().UTC().Add(b.cfg.SessionTTL)
	}
	for _, line := range order.LineItems {
		req.Lines = append(req.Lines, pkgcheckout.LineDescription{
			Name:      line.DisplayName,
			ImageURL:  line.DisplayImage,
			Size:      line.Size,
			Color:     line.Color,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
		})
	}
	if err := req.Validate(); err != nil {
		return pkgcheckout.SessionRequest{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build checkout session")
	}
	return req, nil
}

func (b *Broker) returnURLs(orderNumber string) (pkgcheckout.ReturnURLs, error) {
	base, err := url.Parse(strings.TrimRight(b.cfg.ReturnBaseURL, "/"))
	if err != nil {
		return pkgcheckout.ReturnURLs{}, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "parse return base url")
	}
	build := func(outcome string) string {
		u := *base
		u.Path = base.Path + "/checkout/" + outcome
		q := url.Values{}
		q.Set("order", orderNumber)
		u.RawQuery = q.Encode()
		return u.String()
	}
	return pkgcheckout.ReturnURLs{
		Success: build("success"),
		Failure: build("failure"),
		Cancel:  build("cancel"),
	}, nil
}
