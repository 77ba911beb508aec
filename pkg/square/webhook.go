package square

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strings"
)

const SignatureHeader = "x-square-hmacsha256-signature"

// PaymentEvent is the subset of a Square payment.* notification the storefront reads.
type PaymentEvent struct {
	EventID string `json:"event_id"`
	Type    string `json:"type"`
	Data    struct {
		Object struct {
			Payment struct {
				ID      string `json:"id"`
				OrderID string `json:"order_id"`
				Status  string `json:"status"`
			} `json:"payment"`
		} `json:"object"`
	} `json:"data"`
}

// VerifySignature checks the notification signature, which Square computes
// over the subscription URL followed by the raw body.
func (c *Client) VerifySignature(body []byte, signature string) bool {
	if c == nil || c.webhookSecret == "" {
		return false
	}
	return verifySignature(c.webhookSecret, c.webhookURL, body, signature)
}

func verifySignature(secret, notificationURL string, body []byte, signature string) bool {
	given, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil || len(given) == 0 {
		return false
	}
	return hmac.Equal(given, computeSignature(secret, notificationURL, body))
}

func computeSignature(secret, notificationURL string, body []byte) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(notificationURL))
	mac.Write(body)
	return mac.Sum(nil)
}

// ParsePaymentEvent decodes a webhook body.
func ParsePaymentEvent(body []byte) (PaymentEvent, error) {
	var event PaymentEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return PaymentEvent{}, fmt.Errorf("decode square event: %w", err)
	}
	return event, nil
}

// IsPaymentEvent reports whether the event type carries a payment status.
func (e PaymentEvent) IsPaymentEvent() bool {
	return e.Type == "payment.created" || e.Type == "payment.updated"
}
