package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/storefront-backend/pkg/db/models"
	"github.com/angelmondragon/storefront-backend/pkg/enums"
)

// CreateOrderInput is the buyer's cart plus contact and delivery details.
type CreateOrderInput struct {
	Customer Customer        `json:"customer" validate:"required"`
	Shipping ShippingAddress `json:"shipping" validate:"required"`
	Items    []CartItem      `json:"items" validate:"required,min=1,max=50,dive"`
}

type Customer struct {
	Name  string `json:"name" validate:"required,max=120"`
	Email string `json:"email" validate:"required,email,max=254"`
	Phone string `json:"phone" validate:"required,max=32"`
}

type ShippingAddress struct {
	PostalCode string `json:"postal_code" validate:"required,max=16"`
	Prefecture string `json:"prefecture" validate:"required,max=64"`
	City       string `json:"city" validate:"required,max=120"`
	Line1      string `json:"line1" validate:"required,max=200"`
	Line2      string `json:"line2,omitempty" validate:"max=200"`
}

type CartItem struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	Size      string    `json:"size" validate:"required,max=32"`
	Color     string    `json:"color,omitempty" validate:"max=64"`
	Quantity  int       `json:"quantity" validate:"required,min=1,max=99"`
}

// UpdateStatusInput is an admin fulfillment change.
type UpdateStatusInput struct {
	OrderID        uuid.UUID
	Status         enums.OrderStatus
	TrackingNumber *string
	ActorSubject   string
}

// OrderView is the buyer-facing projection of an order.
type OrderView struct {
	OrderNumber    string              `json:"order_number"`
	PaymentStatus  enums.PaymentStatus `json:"payment_status"`
	OrderStatus    enums.OrderStatus   `json:"order_status"`
	Subtotal       int64               `json:"subtotal"`
	ShippingFee    int64               `json:"shipping_fee"`
	Total          int64               `json:"total"`
	Currency       string              `json:"currency"`
	CustomerName   string              `json:"customer_name"`
	Shipping       ShippingAddress     `json:"shipping"`
	TrackingNumber *string             `json:"tracking_number,omitempty"`
	CheckoutURL    *string             `json:"checkout_url,omitempty"`
	PaidAt         *time.Time          `json:"paid_at,omitempty"`
	CreatedAt      time.Time           `json:"created_at"`
	Lines          []LineView          `json:"lines"`
}

type LineView struct {
	Name      string `json:"name"`
	Image     string `json:"image,omitempty"`
	Size      string `json:"size"`
	Color     string `json:"color,omitempty"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

// AdminOrderView adds identifiers only the back office needs.
type AdminOrderView struct {
	ID uuid.UUID `json:"id"`
	OrderView
	CustomerEmail string          `json:"customer_email"`
	Processor     enums.Processor `json:"processor"`
	FailureReason *string         `json:"failure_reason,omitempty"`
}

func NewOrderView(order *models.Order) OrderView {
	view := OrderView{
		OrderNumber:    order.OrderNumber,
		PaymentStatus:  order.PaymentStatus,
		OrderStatus:    order.OrderStatus,
		Subtotal:       order.Subtotal,
		ShippingFee:    order.ShippingFee,
		Total:          order.Total,
		Currency:       order.Currency,
		CustomerName:   order.CustomerName,
		TrackingNumber: order.TrackingNumber,
		PaidAt:         order.PaidAt,
		CreatedAt:      order.CreatedAt,
		Shipping: ShippingAddress{
			PostalCode: order.ShippingPostalCode,
			Prefecture: order.ShippingPrefecture,
			City:       order.ShippingCity,
			Line1:      order.ShippingLine1,
			Line2:      order.ShippingLine2,
		},
		Lines: make([]LineView, 0, len(order.LineItems)),
	}
	if order.PaymentStatus == enums.PaymentStatusPending {
		view.CheckoutURL = order.CheckoutURL
	}
	for _, line := range order.LineItems {
		view.Lines = append(view.Lines, LineView{
			Name:      line.DisplayName,
			Image:     line.DisplayImage,
			Size:      line.Size,
			Color:     line.Color,
			UnitPrice: line.UnitPrice,
			Quantity:  line.Quantity,
			LineTotal: line.LineTotal,
		})
	}
	return view
}

func NewAdminOrderView(order *models.Order) AdminOrderView {
	return AdminOrderView{
		ID:            order.ID,
		OrderView:     NewOrderView(order),
		CustomerEmail: order.CustomerEmail,
		Processor:     order.Processor,
		FailureReason: order.FailureReason,
	}
}
