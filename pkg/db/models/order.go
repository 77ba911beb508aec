package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// Order is the committed purchase with its payment and fulfillment state.
type Order struct {
	ID          uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber string    `gorm:"column:order_number;not null;uniqueIndex:orders_order_number_key"`

	CustomerName  string `gorm:"column:customer_name;not null"`
	CustomerEmail string `gorm:"column:customer_email;not null"`
	CustomerPhone string `gorm:"column:customer_phone;not null"`

	ShippingPostalCode string `gorm:"column:shipping_postal_code;not null"`
	ShippingPrefecture string `gorm:"column:shipping_prefecture;not null"`
	ShippingCity       string `gorm:"column:shipping_city;not null"`
	ShippingLine1      string `gorm:"column:shipping_line1;not null"`
	ShippingLine2      string `gorm:"column:shipping_line2;not null;default:''"`

	Subtotal    int64  `gorm:"column:subtotal;not null"`
	ShippingFee int64  `gorm:"column:shipping_fee;not null"`
	Total       int64  `gorm:"column:total;not null"`
	Currency    string `gorm:"column:currency;not null"`

	PaymentStatus enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	OrderStatus   enums.OrderStatus   `gorm:"column:order_status;type:text;not null;default:'processing'"`
	Processor     enums.Processor     `gorm:"column:processor;type:text;not null"`

	CheckoutSessionID *string    `gorm:"column:checkout_session_id"`
	CheckoutURL       *string    `gorm:"column:checkout_url"`
	TrackingNumber    *string    `gorm:"column:tracking_number"`
	PaidAt            *time.Time `gorm:"column:paid_at"`
	FailedAt          *time.Time `gorm:"column:failed_at"`
	FailureReason     *string    `gorm:"column:failure_reason"`

	LineItems []OrderLineItem `gorm:"foreignKey:OrderID;references:ID"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	return nil
}

// SessionID returns the attached processor session handle or "".
func (o Order) SessionID() string {
	if o.CheckoutSessionID == nil {
		return ""
	}
	return *o.CheckoutSessionID
}
