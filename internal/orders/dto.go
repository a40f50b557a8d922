package orders

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ssr0016/next-rental-eq-marketplace/internal/availability"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
)

// OrderDTO is the order payload returned to clients. Dates use YYYY-MM-DD.
type OrderDTO struct {
	ID            uuid.UUID       `json:"id"`
	ItemID        uuid.UUID       `json:"item_id"`
	ItemName      string          `json:"item_name,omitempty"`
	UserID        uuid.UUID       `json:"user_id"`
	FromDate      string          `json:"from_date"`
	ToDate        string          `json:"to_date"`
	Quantity      int             `json:"quantity"`
	Status        string          `json:"status"`
	PaymentStatus string          `json:"payment_status"`
	TotalAmount   decimal.Decimal `json:"total_amount"`
	HandedOverAt  *time.Time      `json:"handed_over_at,omitempty"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty"`
	CancelledAt   *time.Time      `json:"cancelled_at,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

type OrderListDTO struct {
	Orders     []OrderDTO `json:"orders"`
	NextCursor string     `json:"next_cursor,omitempty"`
}

func NewOrderDTO(order *models.Order) OrderDTO {
	dto := OrderDTO{
		ID:            order.ID,
		ItemID:        order.ItemID,
		UserID:        order.UserID,
		FromDate:      order.FromDate.Format(availability.DateLayout),
		ToDate:        order.ToDate.Format(availability.DateLayout),
		Quantity:      order.Quantity,
		Status:        order.Status.String(),
		PaymentStatus: string(order.PaymentStatus),
		TotalAmount:   order.TotalAmount,
		HandedOverAt:  order.HandedOverAt,
		CompletedAt:   order.CompletedAt,
		CancelledAt:   order.CancelledAt,
		CreatedAt:     order.CreatedAt,
		UpdatedAt:     order.UpdatedAt,
	}
	if order.Item != nil {
		dto.ItemName = order.Item.Name
	}
	return dto
}

func NewOrderDTOs(rows []models.Order) []OrderDTO {
	out := make([]OrderDTO, 0, len(rows))
	for i := range rows {
		out = append(out, NewOrderDTO(&rows[i]))
	}
	return out
}

func NewOrderListDTO(list *OrderList) OrderListDTO {
	if list == nil {
		return OrderListDTO{Orders: []OrderDTO{}}
	}
	return OrderListDTO{Orders: NewOrderDTOs(list.Orders), NextCursor: list.NextCursor}
}
