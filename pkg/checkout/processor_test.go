package checkout

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

func validRequest() SessionRequest {
	return SessionRequest{
		Reference:   "ORD-20260301-000001",
		Currency:    "jpy",
		Total:       2150,
		ShippingFee: 150,
		Lines: []LineDescription{
			{Name: "Tee", Size: "M", UnitPrice: 1000, Quantity: 2},
		},
	}
}

func TestSessionRequestValidate(t *testing.T) {
	require.NoError(t, validRequest().Validate())

	bad := validRequest()
	bad.Total = 2000
	require.Error(t, bad.Validate())

	bad = validRequest()
	bad.Lines[0].Quantity = 0
	require.Error(t, bad.Validate())

	bad = validRequest()
	bad.Reference = " "
	require.Error(t, bad.Validate())

	bad = validRequest()
	bad.Lines = nil
	require.Error(t, bad.Validate())
}

func TestLineDescriptionLabel(t *testing.T) {
	assert.Equal(t, "Tee (M)", LineDescription{Name: "Tee", Size: "M"}.Label())
	assert.Equal(t, "Tee (Black / M)", LineDescription{Name: "Tee", Size: "M", Color: "Black"}.Label())
	assert.Equal(t, "Gift card", LineDescription{Name: "Gift card"}.Label())
}

func TestUpstreamErrorClassification(t *testing.T) {
	timeout := UpstreamError(context.Background(), fmt.Errorf("dial: %w", context.DeadlineExceeded), "open session")
	assert.True(t, pkgerrors.IsCode(timeout, pkgerrors.CodeUpstreamTime))

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()
	expired := UpstreamError(ctx, errors.New("request canceled"), "open session")
	assert.True(t, pkgerrors.IsCode(expired, pkgerrors.CodeUpstreamTime))

	generic := UpstreamError(context.Background(), errors.New("500"), "open session")
	assert.True(t, pkgerrors.IsCode(generic, pkgerrors.CodeUpstream))
	assert.True(t, IsUpstream(generic))

	already := pkgerrors.New(pkgerrors.CodeUpstreamTime, "slow")
	assert.Same(t, already, UpstreamError(context.Background(), already, "x"))

	assert.Nil(t, UpstreamError(context.Background(), nil, "x"))
}

func TestOutcomeTerminal(t *testing.T) {
	assert.True(t, OutcomeSuccess.IsTerminal())
	assert.True(t, OutcomeExpired.IsTerminal())
	assert.False(t, OutcomePending.IsTerminal())
}

type namedProcessor struct{ name enums.Processor }

func (n namedProcessor) Name() enums.Processor { return n.name }
func (namedProcessor) OpenSession(context.Context, SessionRequest) (Session, error) {
	return Session{}, nil
}
func (namedProcessor) SessionStatus(context.Context, string) (Outcome, error) {
	return OutcomePending, nil
}
func (namedProcessor) ExpireSession(context.Context, string) (Outcome, error) {
	return OutcomeExpired, nil
}

func TestProcessorsLookup(t *testing.T) {
	procs := NewProcessors(namedProcessor{name: enums.ProcessorStripe}, nil)

	got, err := procs.Get(enums.ProcessorStripe)
	require.NoError(t, err)
	assert.Equal(t, enums.ProcessorStripe, got.Name())

	_, err = procs.Get(enums.ProcessorSquare)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}
