package availability

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
)

// Store sums booked quantity for an item over a range.
type Store interface {
	WithTx(tx *gorm.DB) Store
	SumBookedQuantity(ctx context.Context, itemID uuid.UUID, r DateRange) (int, error)
}

// Query asks whether Requested units of an item with Total capacity are free
// for every day of Range.
type Query struct {
	ItemID    uuid.UUID
	Range     DateRange
	Requested int
	Total     int
}

// Result is the outcome of a check. Remaining is total minus booked and goes
// negative when an admin has shrunk capacity below what is already booked.
type Result struct {
	Available bool `json:"available"`
	Remaining int  `json:"remaining_quantity"`
	Booked    int  `json:"booked_quantity"`
}

// Calculator answers availability questions. It keeps no state between
// calls; every check recomputes from orders.
type Calculator struct {
	store Store
}

func NewCalculator(store Store) *Calculator {
	return &Calculator{store: store}
}

// WithTx binds the calculator to an open transaction so the sum reflects
// rows locked and written by that transaction.
func (c *Calculator) WithTx(tx *gorm.DB) *Calculator {
	if tx == nil {
		return c
	}
	return &Calculator{store: c.store.WithTx(tx)}
}

// Check sums the quantity of every non-cancelled order for the item whose
// range overlaps q.Range and compares the remainder to q.Requested.
func (c *Calculator) Check(ctx context.Context, q Query) (Result, error) {
	if q.Requested <= 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "requested quantity must be at least 1")
	}
	if q.Total < 0 {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "total quantity must not be negative")
	}
	if q.ItemID == uuid.Nil {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if q.Range.From.After(q.Range.To) {
		return Result{}, pkgerrors.New(pkgerrors.CodeValidation, "from date must not be after to date")
	}

	booked, err := c.store.SumBookedQuantity(ctx, q.ItemID, q.Range)
	if err != nil {
		return Result{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum booked quantity")
	}

	remaining := q.Total - booked
	return Result{
		Available: remaining >= q.Requested,
		Remaining: remaining,
		Booked:    booked,
	}, nil
}
