package redis

import "strings"

const keyNamespace = "sf"

// Key families. Every key is "sf:<family>:<parts...>".
const (
	familyIdempotency = "idempotency"
	familyRateLimit   = "rate_limit"
	familyWebhook     = "webhook"
	familyLock        = "lock"
)

func (c *Client) IdempotencyKey(scope, id string) string {
	return joinKey(familyIdempotency, scope, id)
}

func (c *Client) RateLimitKey(scope string) string {
	return joinKey(familyRateLimit, scope)
}

// WebhookEventKey scopes processor event ids so redeliveries of one event collapse.
func (c *Client) WebhookEventKey(processor, eventID string) string {
	return joinKey(familyWebhook, processor, eventID)
}

func (c *Client) LockKey(name string) string {
	return joinKey(familyLock, name)
}

func joinKey(parts ...string) string {
	var b strings.Builder
	b.WriteString(keyNamespace)
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		b.WriteByte(':')
		b.WriteString(part)
	}
	return b.String()
}
