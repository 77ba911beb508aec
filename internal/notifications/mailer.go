package notifications

import (
	"context"
	"fmt"
	"html"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/angelmondragon/storefront-backend/pkg/config"
	"github.com/angelmondragon/storefront-backend/pkg/outbox/payloads"
	"github.com/angelmondragon/storefront-backend/pkg/types"
)

type mailSender interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// Mailer renders confirmation emails and sends them through SendGrid.
type Mailer struct {
	client   mailSender
	from     string
	fromName string
}

func NewMailer(cfg config.SendgridConfig) (*Mailer, error) {
	key := strings.TrimSpace(cfg.APIKey)
	if key == "" {
		return nil, fmt.Errorf("sendgrid api key required")
	}
	if strings.TrimSpace(cfg.DefaultFrom) == "" {
		return nil, fmt.Errorf("sendgrid from address required")
	}
	return &Mailer{
		client:   sendgrid.NewSendClient(key),
		from:     cfg.DefaultFrom,
		fromName: cfg.FromName,
	}, nil
}

// SendOrderConfirmation delivers the snapshot to the buyer. Any non-2xx answer is an error.
func (m *Mailer) SendOrderConfirmation(ctx context.Context, email string, snapshot payloads.OrderSnapshot) error {
	subject, text, htmlBody := RenderConfirmation(snapshot)
	message := mail.NewSingleEmail(
		mail.NewEmail(m.fromName, m.from),
		subject,
		mail.NewEmail(snapshot.CustomerName, email),
		text,
		htmlBody,
	)
	resp, err := m.client.SendWithContext(ctx, message)
	if err != nil {
		return fmt.Errorf("send confirmation: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("send confirmation: sendgrid status %d: %s", resp.StatusCode, strings.TrimSpace(resp.Body))
	}
	return nil
}

// RenderConfirmation returns the subject plus plain text and HTML bodies.
func RenderConfirmation(s payloads.OrderSnapshot) (subject, text, htmlBody string) {
	subject = fmt.Sprintf("Order confirmed: %s", s.OrderNumber)

	var t, h strings.Builder
	fmt.Fprintf(&t, "Thank you, %s.\n\nOrder %s\n\n", s.CustomerName, s.OrderNumber)
	fmt.Fprintf(&h, "<p>Thank you, %s.</p><h2>Order %s</h2><table>", html.EscapeString(s.CustomerName), html.EscapeString(s.OrderNumber))
	for _, line := range s.Lines {
		name := line.Name
		variant := line.Size
		if line.Color != "" {
			variant = line.Color + " / " + line.Size
		}
		if variant != "" {
			name = fmt.Sprintf("%s (%s)", name, variant)
		}
		total := types.FormatMoney(line.LineTotal, s.Currency)
		fmt.Fprintf(&t, "%s x%d  %s\n", name, line.Quantity, total)
		fmt.Fprintf(&h, "<tr><td>%s</td><td>x%d</td><td>%s</td></tr>", html.EscapeString(name), line.Quantity, html.EscapeString(total))
	}

	subtotal := types.FormatMoney(s.Subtotal, s.Currency)
	shipping := types.FormatMoney(s.ShippingFee, s.Currency)
	grand := types.FormatMoney(s.Total, s.Currency)
	fmt.Fprintf(&t, "\nSubtotal  %s\nShipping  %s\nTotal     %s\n", subtotal, shipping, grand)
	fmt.Fprintf(&h, "</table><p>Subtotal %s<br>Shipping %s<br><strong>Total %s</strong></p>",
		html.EscapeString(subtotal), html.EscapeString(shipping), html.EscapeString(grand))

	if len(s.ShippingLines) > 0 {
		fmt.Fprintf(&t, "\nShipping to:\n%s\n", strings.Join(s.ShippingLines, "\n"))
		escaped := make([]string, 0, len(s.ShippingLines))
		for _, line := range s.ShippingLines {
			escaped = append(escaped, html.EscapeString(line))
		}
		fmt.Fprintf(&h, "<p>Shipping to:<br>%s</p>", strings.Join(escaped, "<br>"))
	}
	return subject, t.String(), h.String()
}
