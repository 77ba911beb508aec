package payloads

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// OrderCreatedEvent is emitted when intake commits a reserved order.
type OrderCreatedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	OrderNumber string          `json:"order_number"`
	Total       int64           `json:"total"`
	Currency    string          `json:"currency"`
	Processor   enums.Processor `json:"processor"`
	LineCount   int             `json:"line_count"`
}

// OrderPaidEvent records the pending -> paid commit and which channel won it.
type OrderPaidEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber string    `json:"order_number"`
	Channel     string    `json:"channel"`
	PaidAt      time.Time `json:"paid_at"`
}

// OrderPaymentFailedEvent records the pending -> failed commit and the stock it returned.
type OrderPaymentFailedEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	Channel       string    `json:"channel"`
	Reason        string    `json:"reason"`
	FailedAt      time.Time `json:"failed_at"`
	ReleasedLines int       `json:"released_lines"`
}

// OrderExpiredEvent is the failure variant for sessions that ran out of time.
type OrderExpiredEvent struct {
	OrderID       uuid.UUID `json:"order_id"`
	OrderNumber   string    `json:"order_number"`
	Channel       string    `json:"channel"`
	ExpiredAt     time.Time `json:"expired_at"`
	ReleasedLines int       `json:"released_lines"`
}

// OrderStatusChangedEvent follows admin fulfillment updates.
type OrderStatusChangedEvent struct {
	OrderID        uuid.UUID         `json:"order_id"`
	OrderNumber    string            `json:"order_number"`
	From           enums.OrderStatus `json:"from"`
	To             enums.OrderStatus `json:"to"`
	TrackingNumber *string           `json:"tracking_number,omitempty"`
}

const TemplateOrderConfirmation = "order_confirmation"

// NotificationRequestedEvent asks the worker to send a buyer email.
type NotificationRequestedEvent struct {
	OrderID   uuid.UUID     `json:"order_id"`
	Template  string        `json:"template"`
	Recipient string        `json:"recipient"`
	Snapshot  OrderSnapshot `json:"snapshot"`
}

// OrderSnapshot is what the confirmation email renders; it never reads live rows.
type OrderSnapshot struct {
	OrderID       uuid.UUID      `json:"order_id"`
	OrderNumber   string         `json:"order_number"`
	CustomerName  string         `json:"customer_name"`
	Subtotal      int64          `json:"subtotal"`
	ShippingFee   int64          `json:"shipping_fee"`
	Total         int64          `json:"total"`
	Currency      string         `json:"currency"`
	ShippingLines []string       `json:"shipping_lines"`
	Lines         []SnapshotLine `json:"lines"`
}

type SnapshotLine struct {
	Name      string `json:"name"`
	Size      string `json:"size"`
	Color     string `json:"color,omitempty"`
	Quantity  int    `json:"quantity"`
	UnitPrice int64  `json:"unit_price"`
	LineTotal int64  `json:"line_total"`
}
