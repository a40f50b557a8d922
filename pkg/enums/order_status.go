package enums

// OrderStatus tracks the lifecycle of a rental order.
type OrderStatus string

const (
	OrderStatusBooked       OrderStatus = "booked"
	OrderStatusWithCustomer OrderStatus = "with-customer"
	OrderStatusCompleted    OrderStatus = "completed"
	OrderStatusCancelled    OrderStatus = "cancelled"
)

// lifecycle order
var orderStatuses = []OrderStatus{
	OrderStatusBooked,
	OrderStatusWithCustomer,
	OrderStatusCompleted,
	OrderStatusCancelled,
}

// OrderStatuses returns a copy of every known status in lifecycle order.
func OrderStatuses() []OrderStatus {
	return append([]OrderStatus(nil), orderStatuses...)
}

func (s OrderStatus) String() string { return string(s) }

func (s OrderStatus) IsValid() bool { return known(s, orderStatuses) }

// IsTerminal reports whether no further transitions are possible.
func (s OrderStatus) IsTerminal() bool {
	return s == OrderStatusCompleted || s == OrderStatusCancelled
}

// HoldsStock reports whether orders in this status count against item
// capacity. Completed orders still hold their own past range.
func (s OrderStatus) HoldsStock() bool {
	return s != OrderStatusCancelled
}

func ParseOrderStatus(value string) (OrderStatus, error) {
	return parse(value, orderStatuses, "order status")
}
