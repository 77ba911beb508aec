package enums

// OutboxAggregateType is the kind of entity an outbox row is keyed by.
type OutboxAggregateType string

const (
	AggregateOrder        OutboxAggregateType = "order"
	AggregateNotification OutboxAggregateType = "notification"
)

var aggregateTypes = []OutboxAggregateType{AggregateOrder, AggregateNotification}

func (a OutboxAggregateType) IsValid() bool { return known(a, aggregateTypes) }

// OutboxEventType names a domain event written to the outbox.
type OutboxEventType string

const (
	EventOrderCreated          OutboxEventType = "order_created"
	EventOrderPaid             OutboxEventType = "order_paid"
	EventOrderPaymentFailed    OutboxEventType = "order_payment_failed"
	EventOrderExpired          OutboxEventType = "order_expired"
	EventOrderStatusChanged    OutboxEventType = "order_status_changed"
	EventNotificationRequested OutboxEventType = "notification_requested"
)

var eventTypes = []OutboxEventType{
	EventOrderCreated,
	EventOrderPaid,
	EventOrderPaymentFailed,
	EventOrderExpired,
	EventOrderStatusChanged,
	EventNotificationRequested,
}

func (e OutboxEventType) IsValid() bool { return known(e, eventTypes) }

func ParseOutboxEventType(raw string) (OutboxEventType, error) {
	return parse("event type", raw, eventTypes)
}

// OutboxDLQErrorReason records why a row left the publish loop.
type OutboxDLQErrorReason string

const (
	OutboxDLQReasonMaxAttempts  OutboxDLQErrorReason = "max_attempts"
	OutboxDLQReasonNonRetryable OutboxDLQErrorReason = "non_retryable"
)

func (r OutboxDLQErrorReason) IsValid() bool {
	return r == OutboxDLQReasonMaxAttempts || r == OutboxDLQReasonNonRetryable
}
