package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/internal/availability"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/pagination"
)

// Repository defines persistence operations for the orders table.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	CompareAndSetStatus(ctx context.Context, id uuid.UUID, swap StatusSwap) (bool, error)
	UpdatePaymentStatus(ctx context.Context, id uuid.UUID, status enums.OrderPaymentStatus) error
	MarkPaidUnlessCancelled(ctx context.Context, id uuid.UUID) (bool, error)
	ListForItem(ctx context.Context, itemID uuid.UUID, rng availability.DateRange, statuses []enums.OrderStatus) ([]models.Order, error)
	List(ctx context.Context, filters ListFilters, params pagination.Params) (*OrderList, error)
	FindUnpaidBookedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

// StatusSwap describes a guarded status change. Stamps are written with the
// new status. UnpaidOnly also requires payment_status to not be paid.
type StatusSwap struct {
	From       enums.OrderStatus
	To         enums.OrderStatus
	Stamps     map[string]any
	UnpaidOnly bool
}

// ListFilters narrows the paginated order list.
type ListFilters struct {
	UserID        *uuid.UUID
	ItemID        *uuid.UUID
	Status        *enums.OrderStatus
	PaymentStatus *enums.OrderPaymentStatus
}

// OrderList wraps a page of orders plus the next page cursor.
type OrderList struct {
	Orders     []models.Order `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
