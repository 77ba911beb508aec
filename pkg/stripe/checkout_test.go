package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"

	"github.com/angelmondragon/storefront-backend/pkg/checkout"
	"github.com/angelmondragon/storefront-backend/pkg/config"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

type fakeSessions struct {
	created *stripe.CheckoutSessionParams
	newResp *stripe.CheckoutSession
	newErr  error

	getID   string
	getResp *stripe.CheckoutSession
	getErr  error

	expiredID  string
	expireResp *stripe.CheckoutSession
	expireErr  error
}

func (f *fakeSessions) New(params *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.created = params
	return f.newResp, f.newErr
}

func (f *fakeSessions) Get(id string, _ *stripe.CheckoutSessionParams) (*stripe.CheckoutSession, error) {
	f.getID = id
	return f.getResp, f.getErr
}

func (f *fakeSessions) Expire(id string, _ *stripe.CheckoutSessionExpireParams) (*stripe.CheckoutSession, error) {
	f.expiredID = id
	return f.expireResp, f.expireErr
}

func sessionRequest() checkout.SessionRequest {
	return checkout.SessionRequest{
		Reference:   "ORD-20260301-000042",
		Currency:    "JPY",
		Total:       2150,
		ShippingFee: 150,
		Contact:     checkout.Contact{Name: "Aiko", Email: "aiko@example.com"},
		Lines: []checkout.LineDescription{
			{Name: "Tee", ImageURL: "https://cdn.example.com/tee.png", Size: "M", Color: "Black", UnitPrice: 1000, Quantity: 2},
		},
		ReturnURLs: checkout.ReturnURLs{
			Success: "https://shop.example.com/checkout/success?order=ORD-20260301-000042",
			Cancel:  "https://shop.example.com/checkout/cancel?order=ORD-20260301-000042",
		},
		ExpiresAt: time.Unix(1772360000, 0),
	}
}

func TestOpenSessionBuildsLineItemsAndReference(t *testing.T) {
	fake := &fakeSessions{newResp: &stripe.CheckoutSession{ID: "cs_test_1", URL: "https://checkout.stripe.com/c/pay/cs_test_1"}}
	client := &Client{sessions: fake}

	sess, err := client.OpenSession(context.Background(), sessionRequest())
	require.NoError(t, err)
	assert.Equal(t, "cs_test_1", sess.ID)
	assert.Equal(t, "https://checkout.stripe.com/c/pay/cs_test_1", sess.RedirectURL)

	params := fake.created
	require.NotNil(t, params)
	assert.Equal(t, "ORD-20260301-000042", *params.ClientReferenceID)
	assert.Equal(t, "aiko@example.com", *params.CustomerEmail)
	assert.Equal(t, int64(1772360000), *params.ExpiresAt)
	assert.Equal(t, "ORD-20260301-000042", params.Metadata[metadataOrderNumber])
	require.Len(t, params.LineItems, 2)
	assert.Equal(t, "Tee (Black / M)", *params.LineItems[0].PriceData.ProductData.Name)
	assert.Equal(t, "jpy", *params.LineItems[0].PriceData.Currency)
	assert.Equal(t, int64(1000), *params.LineItems[0].PriceData.UnitAmount)
	assert.Equal(t, int64(2), *params.LineItems[0].Quantity)
	assert.Equal(t, int64(150), *params.LineItems[1].PriceData.UnitAmount)
}

func TestOpenSessionClassifiesErrors(t *testing.T) {
	client := &Client{sessions: &fakeSessions{newErr: errors.New("boom")}}
	_, err := client.OpenSession(context.Background(), sessionRequest())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstream))

	client = &Client{sessions: &fakeSessions{newErr: context.DeadlineExceeded}}
	_, err = client.OpenSession(context.Background(), sessionRequest())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstreamTime))

	client = &Client{sessions: &fakeSessions{newResp: &stripe.CheckoutSession{ID: "cs_1"}}}
	_, err = client.OpenSession(context.Background(), sessionRequest())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUpstream))
}

func TestSessionStatusMapping(t *testing.T) {
	cases := []struct {
		name    string
		session *stripe.CheckoutSession
		want    checkout.Outcome
	}{
		{"complete paid", &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusComplete, PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid}, checkout.OutcomeSuccess},
		{"complete unpaid", &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusComplete, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid}, checkout.OutcomePending},
		{"open", &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusOpen}, checkout.OutcomePending},
		{"expired", &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusExpired}, checkout.OutcomeExpired},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			fake := &fakeSessions{getResp: tc.session}
			client := &Client{sessions: fake}
			got, err := client.SessionStatus(context.Background(), "cs_test_9")
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, "cs_test_9", fake.getID)
		})
	}

	client := &Client{sessions: &fakeSessions{getErr: errors.New("unavailable")}}
	got, err := client.SessionStatus(context.Background(), "cs_test_9")
	require.Error(t, err)
	assert.Equal(t, checkout.OutcomePending, got)
}

func TestExpireSession(t *testing.T) {
	fake := &fakeSessions{expireResp: &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusExpired}}
	got, err := (&Client{sessions: fake}).ExpireSession(context.Background(), "cs_test_9")
	require.NoError(t, err)
	assert.Equal(t, checkout.OutcomeExpired, got)
	assert.Equal(t, "cs_test_9", fake.expiredID)

	// the buyer paid before the expire call reached Stripe
	fake = &fakeSessions{
		expireErr: errors.New("checkout session is not open"),
		getResp:   &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusComplete, PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid},
	}
	got, err = (&Client{sessions: fake}).ExpireSession(context.Background(), "cs_test_9")
	require.NoError(t, err)
	assert.Equal(t, checkout.OutcomeSuccess, got)

	// an async payment still settling keeps the session unresolved
	fake = &fakeSessions{
		expireErr: errors.New("checkout session is not open"),
		getResp:   &stripe.CheckoutSession{Status: stripe.CheckoutSessionStatusComplete, PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid},
	}
	got, err = (&Client{sessions: fake}).ExpireSession(context.Background(), "cs_test_9")
	require.Error(t, err)
	assert.True(t, checkout.IsUpstream(err))
	assert.Equal(t, checkout.OutcomePending, got)
}

func eventFor(t *testing.T, eventType string, cs stripe.CheckoutSession) stripe.Event {
	t.Helper()
	raw, err := json.Marshal(cs)
	require.NoError(t, err)
	return stripe.Event{ID: "evt_1", Type: stripe.EventType(eventType), Data: &stripe.EventData{Raw: raw}}
}

func TestEventOutcome(t *testing.T) {
	paid := stripe.CheckoutSession{ClientReferenceID: "ORD-1", PaymentStatus: stripe.CheckoutSessionPaymentStatusPaid}
	ref, outcome, ok, err := EventOutcome(eventFor(t, EventSessionCompleted, paid))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "ORD-1", ref)
	assert.Equal(t, checkout.OutcomeSuccess, outcome)

	unpaid := stripe.CheckoutSession{ClientReferenceID: "ORD-1", PaymentStatus: stripe.CheckoutSessionPaymentStatusUnpaid}
	_, outcome, ok, err = EventOutcome(eventFor(t, EventSessionCompleted, unpaid))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, checkout.OutcomePending, outcome)

	_, outcome, _, err = EventOutcome(eventFor(t, EventSessionAsyncPaymentFailed, unpaid))
	require.NoError(t, err)
	assert.Equal(t, checkout.OutcomeFailure, outcome)

	metaOnly := stripe.CheckoutSession{Metadata: map[string]string{metadataOrderNumber: "ORD-2"}}
	ref, outcome, _, err = EventOutcome(eventFor(t, EventSessionExpired, metaOnly))
	require.NoError(t, err)
	assert.Equal(t, "ORD-2", ref)
	assert.Equal(t, checkout.OutcomeExpired, outcome)

	_, _, ok, err = EventOutcome(stripe.Event{Type: "invoice.paid"})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNewClientValidatesKeys(t *testing.T) {
	_, err := NewClient(context.Background(), config.StripeConfig{Env: "test", Secret: "whsec_1"}, nil)
	assert.ErrorIs(t, err, errAPIKeyRequired)

	_, err = NewClient(context.Background(), config.StripeConfig{Env: "test", APIKey: "sk_test_1"}, nil)
	assert.ErrorIs(t, err, errSecretRequired)

	_, err = NewClient(context.Background(), config.StripeConfig{Env: "live", APIKey: "sk_test_1", Secret: "whsec_1"}, nil)
	assert.Error(t, err)

	_, err = NewClient(context.Background(), config.StripeConfig{Env: "staging", APIKey: "sk_test_1", Secret: "whsec_1"}, nil)
	assert.ErrorIs(t, err, errInvalidStripeEnv)

	client, err := NewClient(context.Background(), config.StripeConfig{Env: "", APIKey: "rk_test_1", Secret: "whsec_1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "test", client.Environment())
	assert.Equal(t, "whsec_1", client.SigningSecret())
}
