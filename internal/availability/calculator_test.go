package availability

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/dbtest"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
)

func seedItem(t *testing.T, db *gorm.DB, total int) *models.Item {
	t.Helper()
	category := &models.Category{Name: "cameras-" + uuid.NewString()}
	require.NoError(t, db.Create(category).Error)
	item := &models.Item{
		CategoryID:    category.ID,
		Name:          "Cinema camera",
		RentPerDay:    decimal.NewFromInt(50),
		TotalQuantity: total,
	}
	require.NoError(t, db.Create(item).Error)
	return item
}

func seedOrder(t *testing.T, db *gorm.DB, itemID uuid.UUID, rng DateRange, qty int, status enums.OrderStatus) *models.Order {
	t.Helper()
	order := &models.Order{
		ItemID:      itemID,
		UserID:      uuid.New(),
		FromDate:    rng.From,
		ToDate:      rng.To,
		Quantity:    qty,
		Status:      status,
		TotalAmount: decimal.NewFromInt(int64(qty * 50)),
	}
	require.NoError(t, db.Create(order).Error)
	return order
}

func TestCheckScenarios(t *testing.T) {
	db := dbtest.Open(t, "availability")
	ctx := context.Background()
	item := seedItem(t, db, 5)
	calc := NewCalculator(NewRepository(db))
	request := mustRange(t, "2024-06-01", "2024-06-03")

	res, err := calc.Check(ctx, Query{ItemID: item.ID, Range: request, Requested: 3, Total: item.TotalQuantity})
	require.NoError(t, err)
	assert.Equal(t, Result{Available: true, Remaining: 5, Booked: 0}, res)

	existing := seedOrder(t, db, item.ID, mustRange(t, "2024-06-02", "2024-06-04"), 3, enums.OrderStatusBooked)

	res, err = calc.Check(ctx, Query{ItemID: item.ID, Range: request, Requested: 3, Total: item.TotalQuantity})
	require.NoError(t, err)
	assert.Equal(t, Result{Available: false, Remaining: 2, Booked: 3}, res)

	require.NoError(t, db.Model(existing).Update("status", enums.OrderStatusCancelled).Error)

	res, err = calc.Check(ctx, Query{ItemID: item.ID, Range: request, Requested: 3, Total: item.TotalQuantity})
	require.NoError(t, err)
	assert.Equal(t, Result{Available: true, Remaining: 5, Booked: 0}, res)
}

func TestCheckCountsOnlyTheRequestedItem(t *testing.T) {
	db := dbtest.Open(t, "availability_items")
	ctx := context.Background()
	camera := seedItem(t, db, 2)
	tripod := seedItem(t, db, 2)
	rng := mustRange(t, "2024-07-10", "2024-07-12")

	seedOrder(t, db, tripod.ID, rng, 2, enums.OrderStatusBooked)

	res, err := NewCalculator(NewRepository(db)).Check(ctx, Query{ItemID: camera.ID, Range: rng, Requested: 2, Total: camera.TotalQuantity})
	require.NoError(t, err)
	assert.True(t, res.Available)
	assert.Equal(t, 0, res.Booked)
}

func TestCheckCountsEveryNonCancelledStatus(t *testing.T) {
	db := dbtest.Open(t, "availability_statuses")
	ctx := context.Background()
	item := seedItem(t, db, 10)
	rng := mustRange(t, "2024-08-01", "2024-08-05")

	seedOrder(t, db, item.ID, mustRange(t, "2024-07-30", "2024-08-01"), 1, enums.OrderStatusBooked)
	seedOrder(t, db, item.ID, mustRange(t, "2024-08-03", "2024-08-03"), 2, enums.OrderStatusWithCustomer)
	seedOrder(t, db, item.ID, mustRange(t, "2024-08-05", "2024-08-09"), 3, enums.OrderStatusCompleted)
	seedOrder(t, db, item.ID, mustRange(t, "2024-08-02", "2024-08-04"), 4, enums.OrderStatusCancelled)
	seedOrder(t, db, item.ID, mustRange(t, "2024-08-06", "2024-08-09"), 4, enums.OrderStatusBooked)

	res, err := NewCalculator(NewRepository(db)).Check(ctx, Query{ItemID: item.ID, Range: rng, Requested: 4, Total: item.TotalQuantity})
	require.NoError(t, err)
	assert.Equal(t, 6, res.Booked)
	assert.Equal(t, 4, res.Remaining)
	assert.True(t, res.Available)
}

func TestCheckIsIdempotent(t *testing.T) {
	db := dbtest.Open(t, "availability_idempotent")
	ctx := context.Background()
	item := seedItem(t, db, 4)
	rng := mustRange(t, "2024-09-01", "2024-09-02")
	seedOrder(t, db, item.ID, rng, 1, enums.OrderStatusBooked)

	calc := NewCalculator(NewRepository(db))
	q := Query{ItemID: item.ID, Range: rng, Requested: 2, Total: item.TotalQuantity}
	first, err := calc.Check(ctx, q)
	require.NoError(t, err)
	second, err := calc.Check(ctx, q)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestCheckRejectsNonPositiveQuantity(t *testing.T) {
	calc := NewCalculator(stubStore{})
	rng := DateRange{}
	for _, qty := range []int{0, -1} {
		_, err := calc.Check(context.Background(), Query{ItemID: uuid.New(), Range: rng, Requested: qty, Total: 5})
		require.Error(t, err)
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation), "quantity %d", qty)
	}
}

func TestCheckReportsShortfallWhenOverCapacity(t *testing.T) {
	calc := NewCalculator(stubStore{booked: 7})
	rng := mustRange(t, "2024-06-01", "2024-06-01")
	res, err := calc.Check(context.Background(), Query{ItemID: uuid.New(), Range: rng, Requested: 1, Total: 5})
	require.NoError(t, err)
	assert.False(t, res.Available)
	assert.Equal(t, -2, res.Remaining)
	assert.Equal(t, 7, res.Booked)
}

func TestCheckWrapsStoreFailure(t *testing.T) {
	calc := NewCalculator(stubStore{err: errors.New("connection refused")})
	rng := mustRange(t, "2024-06-01", "2024-06-01")
	_, err := calc.Check(context.Background(), Query{ItemID: uuid.New(), Range: rng, Requested: 1, Total: 5})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
}

type stubStore struct {
	booked int
	err    error
}

func (s stubStore) WithTx(*gorm.DB) Store { return s }

func (s stubStore) SumBookedQuantity(context.Context, uuid.UUID, DateRange) (int, error) {
	return s.booked, s.err
}
