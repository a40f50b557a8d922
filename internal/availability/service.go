package availability

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
)

// ItemReader loads the item whose capacity bounds a check.
type ItemReader interface {
	FindItem(ctx context.Context, id uuid.UUID) (*models.Item, error)
}

// CheckInput is the public availability question for a catalog item.
type CheckInput struct {
	ItemID   uuid.UUID
	Range    DateRange
	Quantity int
}

// CheckOutput echoes the question alongside the answer.
type CheckOutput struct {
	ItemID        uuid.UUID `json:"item_id"`
	From          string    `json:"from"`
	To            string    `json:"to"`
	Requested     int       `json:"requested_quantity"`
	TotalQuantity int       `json:"total_quantity"`
	Result
}

// Service exposes read-only availability checks. It never writes.
type Service interface {
	CheckAvailability(ctx context.Context, input CheckInput) (*CheckOutput, error)
}

type service struct {
	items ItemReader
	calc  *Calculator
}

func NewService(items ItemReader, calc *Calculator) (Service, error) {
	if items == nil {
		return nil, fmt.Errorf("item reader required")
	}
	if calc == nil {
		return nil, fmt.Errorf("availability calculator required")
	}
	return &service{items: items, calc: calc}, nil
}

func (s *service) CheckAvailability(ctx context.Context, input CheckInput) (*CheckOutput, error) {
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	item, err := s.items.FindItem(ctx, input.ItemID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load item")
	}

	res, err := s.calc.Check(ctx, Query{
		ItemID:    item.ID,
		Range:     input.Range,
		Requested: input.Quantity,
		Total:     item.TotalQuantity,
	})
	if err != nil {
		return nil, err
	}
	return &CheckOutput{
		ItemID:        item.ID,
		From:          input.Range.From.Format(DateLayout),
		To:            input.Range.To.Format(DateLayout),
		Requested:     input.Quantity,
		TotalQuantity: item.TotalQuantity,
		Result:        res,
	}, nil
}
