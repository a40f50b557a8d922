package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
)

// OrderBookedEvent is emitted when a booking commits.
type OrderBookedEvent struct {
	OrderID     uuid.UUID       `json:"order_id"`
	ItemID      uuid.UUID       `json:"item_id"`
	UserID      uuid.UUID       `json:"user_id"`
	FromDate    string          `json:"from_date"`
	ToDate      string          `json:"to_date"`
	Quantity    int             `json:"quantity"`
	TotalAmount decimal.Decimal `json:"total_amount"`
}

// OrderStatusChangedEvent is emitted for every committed status transition.
type OrderStatusChangedEvent struct {
	OrderID   uuid.UUID         `json:"order_id"`
	ItemID    uuid.UUID         `json:"item_id"`
	UserID    uuid.UUID         `json:"user_id"`
	From      enums.OrderStatus `json:"from"`
	To        enums.OrderStatus `json:"to"`
	ChangedAt time.Time         `json:"changed_at"`
}

// OrderPaymentEvent is emitted when a provider settles or rejects a payment.
type OrderPaymentEvent struct {
	OrderID     uuid.UUID                `json:"order_id"`
	PaymentID   uuid.UUID                `json:"payment_id"`
	ProviderRef string                   `json:"provider_ref"`
	Amount      decimal.Decimal          `json:"amount"`
	Status      enums.OrderPaymentStatus `json:"status"`
	Reason      string                   `json:"reason,omitempty"`
}
