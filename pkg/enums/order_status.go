package enums

// OrderStatus tracks fulfillment, independent of payment.
type OrderStatus string

const (
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusConfirmed  OrderStatus = "confirmed"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
)

var orderStatuses = []OrderStatus{
	OrderStatusProcessing,
	OrderStatusConfirmed,
	OrderStatusShipped,
	OrderStatusDelivered,
	OrderStatusCancelled,
}

// nextStatuses lists the single-step moves; final statuses have none.
var nextStatuses = map[OrderStatus][]OrderStatus{
	OrderStatusProcessing: {OrderStatusConfirmed, OrderStatusCancelled},
	OrderStatusConfirmed:  {OrderStatusShipped, OrderStatusCancelled},
	OrderStatusShipped:    {OrderStatusDelivered, OrderStatusCancelled},
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return known(s, orderStatuses) }

func (s OrderStatus) IsFinal() bool { return s.IsValid() && len(nextStatuses[s]) == 0 }

func (s OrderStatus) CanTransitionTo(next OrderStatus) bool {
	return known(next, nextStatuses[s])
}

func ParseOrderStatus(raw string) (OrderStatus, error) {
	return parse("order status", raw, orderStatuses)
}
