// Package checkout defines the contract every payment processor adapter meets.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
)

// Outcome is the processor-reported result of a checkout session.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeExpired Outcome = "expired"
	OutcomePending Outcome = "pending"
)

func (o Outcome) String() string {
	return string(o)
}

// IsTerminal reports whether the outcome settles the order's payment.
func (o Outcome) IsTerminal() bool {
	return o == OutcomeSuccess || o == OutcomeFailure || o == OutcomeExpired
}

type Contact struct {
	Name  string
	Email string
	Phone string
}

type Address struct {
	PostalCode string
	Prefecture string
	City       string
	Line1      string
	Line2      string
}

// LineDescription is how one order line is shown on the hosted checkout page.
type LineDescription struct {
	Name      string
	ImageURL  string
	Size      string
	Color     string
	UnitPrice int64
	Quantity  int
}

// Label renders the buyer-facing name with its variant.
func (l LineDescription) Label() string {
	variant := l.Size
	if l.Color != "" {
		variant = l.Color + " / " + l.Size
	}
	if variant == "" {
		return l.Name
	}
	return fmt.Sprintf("%s (%s)", l.Name, variant)
}

type ReturnURLs struct {
	Success string
	Failure string
	Cancel  string
}

// SessionRequest carries everything a processor needs to host the payment page.
// Reference is the order number and is echoed back by webhooks.
type SessionRequest struct {
	Reference   string
	Currency    string
	Total       int64
	ShippingFee int64
	Contact     Contact
	Shipping    Address
	Lines       []LineDescription
	ReturnURLs  ReturnURLs
	ExpiresAt   time.Time
}

// Validate checks the request is internally consistent before it leaves the process.
func (r SessionRequest) Validate() error {
	if strings.TrimSpace(r.Reference) == "" {
		return errors.New("session reference is required")
	}
	if strings.TrimSpace(r.Currency) == "" {
		return errors.New("session currency is required")
	}
	if len(r.Lines) == 0 {
		return errors.New("session requires at least one line")
	}
	var sum int64
	for i, line := range r.Lines {
		if line.Quantity <= 0 {
			return fmt.Errorf("line %d quantity must be positive", i+1)
		}
		sum += line.UnitPrice * int64(line.Quantity)
	}
	if sum+r.ShippingFee != r.Total {
		return fmt.Errorf("session total %d does not match lines %d + shipping %d", r.Total, sum, r.ShippingFee)
	}
	return nil
}

// Session is the handle returned by OpenSession.
type Session struct {
	ID          string
	RedirectURL string
}

// Processor is implemented by each payment processor adapter.
type Processor interface {
	Name() enums.Processor
	OpenSession(ctx context.Context, req SessionRequest) (Session, error)
	SessionStatus(ctx context.Context, sessionID string) (Outcome, error)
	// ExpireSession closes the session so the buyer can no longer pay it.
	// OutcomeExpired means the processor confirmed the close. A payment that
	// won the race is reported as its own outcome, and OutcomePending means
	// the session is still open.
	ExpireSession(ctx context.Context, sessionID string) (Outcome, error)
}

// UpstreamError classifies a failed processor call as a timeout or a generic upstream error.
func UpstreamError(ctx context.Context, err error, op string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || (ctx != nil && errors.Is(ctx.Err(), context.DeadlineExceeded)) {
		return pkgerrors.Wrap(pkgerrors.CodeUpstreamTime, err, op+" timed out")
	}
	if typed := pkgerrors.As(err); typed != nil && (typed.Code() == pkgerrors.CodeUpstream || typed.Code() == pkgerrors.CodeUpstreamTime) {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeUpstream, err, op+" failed")
}

// IsUpstream reports whether err came from a processor call.
func IsUpstream(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeUpstream) || pkgerrors.IsCode(err, pkgerrors.CodeUpstreamTime)
}

// Processors resolves the adapter that owns an order's session.
type Processors map[enums.Processor]Processor

// NewProcessors indexes the given adapters by name, skipping nil entries.
func NewProcessors(adapters ...Processor) Processors {
	out := Processors{}
	for _, p := range adapters {
		if p != nil {
			out[p.Name()] = p
		}
	}
	return out
}

func (p Processors) Get(name enums.Processor) (Processor, error) {
	if proc, ok := p[name]; ok {
		return proc, nil
	}
	return nil, pkgerrors.New(pkgerrors.CodeDependency, fmt.Sprintf("payment processor %q not configured", name))
}
