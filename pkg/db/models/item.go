package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
)

// Item is a rentable equipment type. TotalQuantity is owned by admin
// edits only; the quantity available on a given day is always derived
// from overlapping orders.
type Item struct {
	ID            uuid.UUID        `gorm:"column:id;type:uuid;primaryKey"`
	CategoryID    uuid.UUID        `gorm:"column:category_id;type:uuid;not null;index"`
	Name          string           `gorm:"column:name;not null"`
	Description   *string          `gorm:"column:description"`
	RentPerDay    decimal.Decimal  `gorm:"column:rent_per_day;type:numeric(12,2);not null"`
	TotalQuantity int              `gorm:"column:total_quantity;not null;default:0"`
	Images        []string         `gorm:"column:images;type:jsonb;serializer:json"`
	Status        enums.ItemStatus `gorm:"column:status;type:text;not null;default:'active'"`
	Category      *Category        `gorm:"foreignKey:CategoryID"`
	CreatedAt     time.Time        `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time        `gorm:"column:updated_at;autoUpdateTime"`
}

func (i *Item) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Status == "" {
		i.Status = enums.ItemStatusActive
	}
	return nil
}

// Bookable reports whether new orders may be placed against the item.
func (i *Item) Bookable() bool {
	return i != nil && i.Status == enums.ItemStatusActive
}
