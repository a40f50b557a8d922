package enums

// PaymentStatus tracks one provider payment attempt.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSucceeded PaymentStatus = "succeeded"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCanceled  PaymentStatus = "canceled"
)

var paymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusSucceeded,
	PaymentStatusFailed,
	PaymentStatusCanceled,
}

func (p PaymentStatus) String() string { return string(p) }

func (p PaymentStatus) IsValid() bool { return known(p, paymentStatuses) }

// OrderPaymentStatus is the payment state denormalized onto an order.
type OrderPaymentStatus string

const (
	OrderPaymentUnpaid OrderPaymentStatus = "unpaid"
	OrderPaymentPaid   OrderPaymentStatus = "paid"
	OrderPaymentFailed OrderPaymentStatus = "failed"
)

var orderPaymentStatuses = []OrderPaymentStatus{OrderPaymentUnpaid, OrderPaymentPaid, OrderPaymentFailed}

func (p OrderPaymentStatus) String() string { return string(p) }

func (p OrderPaymentStatus) IsValid() bool { return known(p, orderPaymentStatuses) }
