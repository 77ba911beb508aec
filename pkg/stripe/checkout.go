package stripe

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/checkout/session"

	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

const (
	metadataOrderNumber = "order_number"
	shippingLineName    = "Shipping"

	EventSessionCompleted             = "checkout.session.completed"
	EventSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventSessionExpired               = "checkout.session.expired"
)

type sessionAPI interface {
	New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Get(id string, params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error)
	Expire(id string, params *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error)
}

var _ sessionAPI = (*session.Client)(nil)

var _ checkout.Processor = (*Client)(nil)

func (c *Client) Name() enums.Processor {
	return enums.ProcessorStripe
}

// OpenSession creates a hosted Checkout Session keyed by the order number.
func (c *Client) OpenSession(ctx context.Context, req checkout.SessionRequest) (checkout.Session, error) {
	if err := req.Validate(); err != nil {
		return checkout.Session{}, checkout.UpstreamError(ctx, err, "stripe: build session")
	}

	params := buildSessionParams(req)
	params.Context = ctx

	cs, err := c.sessions.New(params)
	if err != nil {
		return checkout.Session{}, checkout.UpstreamError(ctx, err, "stripe: create checkout session")
	}
	if cs == nil || cs.ID == "" || cs.URL == "" {
		return checkout.Session{}, checkout.UpstreamError(ctx, fmt.Errorf("checkout session response missing id or url"), "stripe: create checkout session")
	}
	return checkout.Session{ID: cs.ID, RedirectURL: cs.URL}, nil
}

// SessionStatus retrieves the session and maps it to an outcome.
func (c *Client) SessionStatus(ctx context.Context, sessionID string) (checkout.Outcome, error) {
	params := &stripe.CheckoutSessionParams{}
	params.Context = ctx

	cs, err := c.sessions.Get(sessionID, params)
	if err != nil {
		return checkout.OutcomePending, checkout.UpstreamError(ctx, err, "stripe: retrieve checkout session")
	}
	return SessionOutcome(cs), nil
}

// ExpireSession closes an open Checkout Session. Stripe refuses to expire a
// session that is no longer open, so a refusal is answered by reading what
// closed it.
func (c *Client) ExpireSession(ctx context.Context, sessionID string) (checkout.Outcome, error) {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx

	cs, err := c.sessions.Expire(sessionID, params)
	if err == nil {
		return SessionOutcome(cs), nil
	}
	if current, getErr := c.SessionStatus(ctx, sessionID); getErr == nil && current.IsTerminal() {
		return current, nil
	}
	return checkout.OutcomePending, checkout.UpstreamError(ctx, err, "stripe: expire checkout session")
}

// SessionOutcome maps a Checkout Session's status and payment status to an outcome.
func SessionOutcome(cs *stripe.CheckoutSession) checkout.Outcome {
	if cs == nil {
		return checkout.OutcomePending
	}
	switch cs.Status {
	case stripe.CheckoutSessionStatusComplete:
		if isPaid(cs) {
			return checkout.OutcomeSuccess
		}
		return checkout.OutcomePending
	case stripe.CheckoutSessionStatusExpired:
		return checkout.OutcomeExpired
	default:
		return checkout.OutcomePending
	}
}

// EventOutcome maps a verified checkout.session.* event to its order reference and outcome.
// ok is false for event types that do not concern checkout sessions.
func EventOutcome(event stripe.Event) (reference string, outcome checkout.Outcome, ok bool, err error) {
	eventType := string(event.Type)
	if !strings.HasPrefix(eventType, "checkout.session.") {
		return "", "", false, nil
	}
	if event.Data == nil {
		return "", "", false, fmt.Errorf("stripe event %s has no data", event.ID)
	}

	var cs stripe.CheckoutSession
	if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
		return "", "", false, fmt.Errorf("decode checkout session: %w", err)
	}
	reference = SessionReference(&cs)

	switch eventType {
	case EventSessionCompleted, EventSessionAsyncPaymentSucceeded:
		if isPaid(&cs) {
			return reference, checkout.OutcomeSuccess, true, nil
		}
		return reference, checkout.OutcomePending, true, nil
	case EventSessionAsyncPaymentFailed:
		return reference, checkout.OutcomeFailure, true, nil
	case EventSessionExpired:
		return reference, checkout.OutcomeExpired, true, nil
	default:
		return "", "", false, nil
	}
}

// SessionReference returns the order number a session was opened for.
func SessionReference(cs *stripe.CheckoutSession) string {
	if cs == nil {
		return ""
	}
	if ref := strings.TrimSpace(cs.ClientReferenceID); ref != "" {
		return ref
	}
	return strings.TrimSpace(cs.Metadata[metadataOrderNumber])
}

func isPaid(cs *stripe.CheckoutSession) bool {
	return cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid ||
		cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusNoPaymentRequired
}

func buildSessionParams(req checkout.SessionRequest) *stripe.CheckoutSessionParams {
	currency := strings.ToLower(req.Currency)

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(req.ReturnURLs.Success),
		CancelURL:         stripe.String(req.ReturnURLs.Cancel),
		ClientReferenceID: stripe.String(req.Reference),
	}
	if email := strings.TrimSpace(req.Contact.Email); email != "" {
		params.CustomerEmail = stripe.String(email)
	}
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}

	for _, line := range req.Lines {
		product := &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
			Name: stripe.String(line.Label()),
		}
		if line.ImageURL != "" {
			product.Images = stripe.StringSlice([]string{line.ImageURL})
		}
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(line.UnitPrice),
				ProductData: product,
			},
			Quantity: stripe.Int64(int64(line.Quantity)),
		})
	}
	if req.ShippingFee > 0 {
		params.LineItems = append(params.LineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:    stripe.String(currency),
				UnitAmount:  stripe.Int64(req.ShippingFee),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{Name: stripe.String(shippingLineName)},
			},
			Quantity: stripe.Int64(1),
		})
	}

	params.AddMetadata(metadataOrderNumber, req.Reference)
	params.SetIdempotencyKey("checkout-session-" + req.Reference)
	return params
}
