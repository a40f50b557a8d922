package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
)

// Order is a booking of Quantity units of an item over the inclusive
// calendar range [FromDate, ToDate]. Rows are never deleted; cancellation
// is a status change.
type Order struct {
	ID            uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	ItemID        uuid.UUID                `gorm:"column:item_id;type:uuid;not null;index"`
	UserID        uuid.UUID                `gorm:"column:user_id;type:uuid;not null;index"`
	FromDate      time.Time                `gorm:"column:from_date;type:date;not null"`
	ToDate        time.Time                `gorm:"column:to_date;type:date;not null"`
	Quantity      int                      `gorm:"column:quantity;not null"`
	Status        enums.OrderStatus        `gorm:"column:status;type:text;not null;default:'booked'"`
	PaymentStatus enums.OrderPaymentStatus `gorm:"column:payment_status;type:text;not null;default:'unpaid'"`
	TotalAmount   decimal.Decimal          `gorm:"column:total_amount;type:numeric(12,2);not null"`
	HandedOverAt  *time.Time               `gorm:"column:handed_over_at"`
	CompletedAt   *time.Time               `gorm:"column:completed_at"`
	CancelledAt   *time.Time               `gorm:"column:cancelled_at"`
	Item          *Item                    `gorm:"foreignKey:ItemID"`
	CreatedAt     time.Time                `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time                `gorm:"column:updated_at;autoUpdateTime"`
}

func (o *Order) BeforeCreate(*gorm.DB) error {
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}
	if o.Status == "" {
		o.Status = enums.OrderStatusBooked
	}
	if o.PaymentStatus == "" {
		o.PaymentStatus = enums.OrderPaymentUnpaid
	}
	return nil
}
