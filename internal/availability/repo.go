package availability

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
)

type repository struct {
	db *gorm.DB
}

// NewRepository builds the order-sum store used by the calculator.
func NewRepository(db *gorm.DB) Store {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Store {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) SumBookedQuantity(ctx context.Context, itemID uuid.UUID, rng DateRange) (int, error) {
	var total int64
	err := r.db.WithContext(ctx).
		Model(&models.Order{}).
		Select("COALESCE(SUM(quantity), 0)").
		Where("item_id = ?", itemID).
		Where("status <> ?", enums.OrderStatusCancelled).
		Where("from_date <= ? AND to_date >= ?", rng.To, rng.From).
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}
