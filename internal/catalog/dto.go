package catalog

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
)

type CategoryDTO struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ItemDTO is the item payload returned to clients. AvailableQuantity is the
// number of units free today.
type ItemDTO struct {
	ID                uuid.UUID       `json:"id"`
	CategoryID        uuid.UUID       `json:"category_id"`
	CategoryName      string          `json:"category_name,omitempty"`
	Name              string          `json:"name"`
	Description       *string         `json:"description,omitempty"`
	RentPerDay        decimal.Decimal `json:"rent_per_day"`
	TotalQuantity     int             `json:"total_quantity"`
	AvailableQuantity int             `json:"available_quantity"`
	Images            []string        `json:"images"`
	Status            string          `json:"status"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

type ItemListResult struct {
	Items      []ItemDTO `json:"items"`
	NextCursor string    `json:"next_cursor,omitempty"`
}

func NewCategoryDTO(category *models.Category) CategoryDTO {
	return CategoryDTO{
		ID:          category.ID,
		Name:        category.Name,
		Description: category.Description,
		CreatedAt:   category.CreatedAt,
		UpdatedAt:   category.UpdatedAt,
	}
}

func NewItemDTO(item *models.Item, available int) ItemDTO {
	dto := ItemDTO{
		ID:                item.ID,
		CategoryID:        item.CategoryID,
		Name:              item.Name,
		Description:       item.Description,
		RentPerDay:        item.RentPerDay,
		TotalQuantity:     item.TotalQuantity,
		AvailableQuantity: available,
		Images:            append([]string{}, item.Images...),
		Status:            item.Status.String(),
		CreatedAt:         item.CreatedAt,
		UpdatedAt:         item.UpdatedAt,
	}
	if item.Category != nil {
		dto.CategoryName = item.Category.Name
	}
	return dto
}
