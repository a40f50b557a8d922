package enums

// OutboxAggregateType names the entity an outbox event is about. Every
// current event concerns an order; the column constraint also admits item
// and payment for consumers that key on them.
type OutboxAggregateType string

const AggregateOrder OutboxAggregateType = "order"

var aggregateTypes = []OutboxAggregateType{AggregateOrder}

func (a OutboxAggregateType) IsValid() bool { return known(a, aggregateTypes) }

// OutboxEventType maps to the event_type check constraint.
type OutboxEventType string

const (
	EventOrderBooked        OutboxEventType = "order_booked"
	EventOrderStatusChanged OutboxEventType = "order_status_changed"
	EventOrderPaid          OutboxEventType = "order_paid"
	EventOrderPaymentFailed OutboxEventType = "order_payment_failed"

	// EventOrderPaymentOrphaned flags money captured for an order that was
	// already cancelled. It needs manual reconciliation.
	EventOrderPaymentOrphaned OutboxEventType = "order_payment_orphaned"
)

var outboxEventTypes = []OutboxEventType{
	EventOrderBooked,
	EventOrderStatusChanged,
	EventOrderPaid,
	EventOrderPaymentFailed,
	EventOrderPaymentOrphaned,
}

func (e OutboxEventType) IsValid() bool { return known(e, outboxEventTypes) }
