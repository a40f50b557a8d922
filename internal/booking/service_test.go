package booking

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/internal/availability"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/catalog"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/orders"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/auth"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/dbtest"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/outbox"
)

var now = time.Date(2024, 6, 10, 10, 0, 0, 0, time.UTC)

type harness struct {
	conn *gorm.DB
	item *models.Item
}

func newHarness(t *testing.T, name string, total int) *harness {
	t.Helper()
	conn := dbtest.Open(t, name)
	category := &models.Category{Name: "tools-" + uuid.NewString()}
	require.NoError(t, conn.Create(category).Error)
	item := &models.Item{
		CategoryID:    category.ID,
		Name:          "Concrete mixer",
		RentPerDay:    decimal.RequireFromString("12.50"),
		TotalQuantity: total,
	}
	require.NoError(t, conn.Create(item).Error)
	return &harness{conn: conn, item: item}
}

func (h *harness) params() ServiceParams {
	return ServiceParams{
		Tx:      db.Wrap(h.conn),
		Locker:  NewLocalItemLocker(5 * time.Second),
		Items:   catalog.NewRepository(h.conn),
		Orders:  orders.NewRepository(h.conn),
		Calc:    availability.NewCalculator(availability.NewRepository(h.conn)),
		Outbox:  outbox.NewService(outbox.NewRepository(h.conn), nil),
		Now:     func() time.Time { return now },
		MaxDays: 365,
	}
}

func (h *harness) service(t *testing.T, mutate ...func(*ServiceParams)) Service {
	t.Helper()
	p := h.params()
	for _, fn := range mutate {
		fn(&p)
	}
	svc, err := NewService(p)
	require.NoError(t, err)
	return svc
}

func (h *harness) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, h.conn.Model(model).Count(&n).Error)
	return n
}

func day(t *testing.T, value string) time.Time {
	t.Helper()
	d, err := availability.ParseDay(value)
	require.NoError(t, err)
	return d
}

func customer() auth.Actor {
	return auth.Actor{UserID: uuid.New(), Role: enums.RoleUser}
}

func TestCreateBookingPersistsOrderAndEvent(t *testing.T) {
	h := newHarness(t, "booking_happy", 5)
	actor := customer()

	order, err := h.service(t).CreateBooking(context.Background(), Input{
		ItemID:   h.item.ID,
		Actor:    actor,
		From:     day(t, "2024-06-12"),
		To:       day(t, "2024-06-15"),
		Quantity: 2,
	})
	require.NoError(t, err)
	assert.Equal(t, enums.OrderStatusBooked, order.Status)
	assert.Equal(t, enums.OrderPaymentUnpaid, order.PaymentStatus)
	assert.Equal(t, actor.UserID, order.UserID)
	assert.Equal(t, "75", order.TotalAmount.String())

	var stored models.Order
	require.NoError(t, h.conn.First(&stored, "id = ?", order.ID).Error)
	assert.Equal(t, 2, stored.Quantity)
	assert.True(t, stored.TotalAmount.Equal(decimal.RequireFromString("75.00")))

	var events []models.OutboxEvent
	require.NoError(t, h.conn.Find(&events).Error)
	require.Len(t, events, 1)
	assert.Equal(t, enums.EventOrderBooked, events[0].EventType)
	assert.Equal(t, order.ID, events[0].AggregateID)
}

func TestCreateBookingStartingTodayIsRejected(t *testing.T) {
	h := newHarness(t, "booking_today", 5)

	_, err := h.service(t).CreateBooking(context.Background(), Input{
		ItemID:   h.item.ID,
		Actor:    customer(),
		From:     day(t, "2024-06-10"),
		To:       day(t, "2024-06-11"),
		Quantity: 1,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
	assert.Zero(t, h.count(t, &models.Order{}))
}

func TestCreateBookingRespectsBusinessTimeZone(t *testing.T) {
	h := newHarness(t, "booking_zone", 5)
	manila := time.FixedZone("PHT", 8*60*60)
	// 2024-06-10 18:00 UTC is already 2024-06-11 in Manila.
	svc := h.service(t, func(p *ServiceParams) {
		p.Now = func() time.Time { return time.Date(2024, 6, 10, 18, 0, 0, 0, time.UTC) }
		p.Location = manila
	})

	_, err := svc.CreateBooking(context.Background(), Input{
		ItemID: h.item.ID, Actor: customer(), From: day(t, "2024-06-11"), To: day(t, "2024-06-11"), Quantity: 1,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeValidation))
}

func TestCreateBookingValidation(t *testing.T) {
	h := newHarness(t, "booking_validation", 5)
	svc := h.service(t, func(p *ServiceParams) { p.MaxDays = 7 })
	ctx := context.Background()

	cases := []struct {
		name  string
		input Input
		code  pkgerrors.Code
	}{
		{"zero quantity", Input{ItemID: h.item.ID, Actor: customer(), From: day(t, "2024-06-12"), To: day(t, "2024-06-12")}, pkgerrors.CodeValidation},
		{"inverted range", Input{ItemID: h.item.ID, Actor: customer(), From: day(t, "2024-06-14"), To: day(t, "2024-06-12"), Quantity: 1}, pkgerrors.CodeValidation},
		{"too long", Input{ItemID: h.item.ID, Actor: customer(), From: day(t, "2024-06-12"), To: day(t, "2024-06-30"), Quantity: 1}, pkgerrors.CodeValidation},
		{"no actor", Input{ItemID: h.item.ID, From: day(t, "2024-06-12"), To: day(t, "2024-06-12"), Quantity: 1}, pkgerrors.CodeUnauthorized},
		{"system actor", Input{ItemID: h.item.ID, Actor: auth.SystemActor, From: day(t, "2024-06-12"), To: day(t, "2024-06-12"), Quantity: 1}, pkgerrors.CodeUnauthorized},
		{"unknown item", Input{ItemID: uuid.New(), Actor: customer(), From: day(t, "2024-06-12"), To: day(t, "2024-06-12"), Quantity: 1}, pkgerrors.CodeNotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.CreateBooking(ctx, tc.input)
			require.Error(t, err)
			assert.True(t, pkgerrors.IsCode(err, tc.code), "got %v", err)
		})
	}
	assert.Zero(t, h.count(t, &models.Order{}))
}

func TestCreateBookingInactiveItem(t *testing.T) {
	h := newHarness(t, "booking_inactive", 5)
	require.NoError(t, h.conn.Model(h.item).Update("status", enums.ItemStatusInactive).Error)

	_, err := h.service(t).CreateBooking(context.Background(), Input{
		ItemID: h.item.ID, Actor: customer(), From: day(t, "2024-06-12"), To: day(t, "2024-06-12"), Quantity: 1,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))
}

func TestCreateBookingInsufficientAvailability(t *testing.T) {
	h := newHarness(t, "booking_insufficient", 5)
	svc := h.service(t)
	ctx := context.Background()

	_, err := svc.CreateBooking(ctx, Input{ItemID: h.item.ID, Actor: customer(), From: day(t, "2024-06-12"), To: day(t, "2024-06-14"), Quantity: 3})
	require.NoError(t, err)

	_, err = svc.CreateBooking(ctx, Input{ItemID: h.item.ID, Actor: customer(), From: day(t, "2024-06-11"), To: day(t, "2024-06-12"), Quantity: 3})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficientAvailability))
	details, ok := pkgerrors.As(err).Details().(map[string]any)
	require.True(t, ok)
	assert.Equal(t, 2, details["remaining_quantity"])

	_, err = svc.CreateBooking(ctx, Input{ItemID: h.item.ID, Actor: customer(), From: day(t, "2024-06-15"), To: day(t, "2024-06-16"), Quantity: 5})
	require.NoError(t, err, "ranges that only follow the first booking are free")
	assert.EqualValues(t, 2, h.count(t, &models.Order{}))
}

func TestCreateBookingLeavesNoRowsWhenEventFails(t *testing.T) {
	h := newHarness(t, "booking_rollback", 5)
	svc := h.service(t, func(p *ServiceParams) { p.Outbox = failingOutbox{} })

	_, err := svc.CreateBooking(context.Background(), Input{
		ItemID: h.item.ID, Actor: customer(), From: day(t, "2024-06-12"), To: day(t, "2024-06-12"), Quantity: 1,
	})
	require.Error(t, err)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))
	assert.Zero(t, h.count(t, &models.Order{}))
	assert.Zero(t, h.count(t, &models.OutboxEvent{}))
}

func TestCreateBookingLockTimeout(t *testing.T) {
	h := newHarness(t, "booking_lock_timeout", 5)
	locker := NewLocalItemLocker(20 * time.Millisecond)
	release, err := locker.Acquire(context.Background(), h.item.ID)
	require.NoError(t, err)
	defer func() { _ = release(context.Background()) }()

	_, err = h.service(t, func(p *ServiceParams) { p.Locker = locker }).CreateBooking(context.Background(), Input{
		ItemID: h.item.ID, Actor: customer(), From: day(t, "2024-06-12"), To: day(t, "2024-06-12"), Quantity: 1,
	})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict))
	assert.Zero(t, h.count(t, &models.Order{}))
}

func TestTwoConcurrentBookingsOnlyOneWins(t *testing.T) {
	h := newHarness(t, "booking_two", 5)
	svc := h.service(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.CreateBooking(context.Background(), Input{
				ItemID: h.item.ID, Actor: customer(), From: day(t, "2024-06-12"), To: day(t, "2024-06-14"), Quantity: 3,
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t,
			pkgerrors.IsCode(err, pkgerrors.CodeInsufficientAvailability) || pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict),
			"unexpected error %v", err)
	}
	assert.Equal(t, 1, succeeded)
	assert.EqualValues(t, 1, h.count(t, &models.Order{}))
}

func TestConcurrentBookingsNeverExceedCapacity(t *testing.T) {
	lockers := map[string]func() ItemLocker{
		"local lock":       func() ItemLocker { return NewLocalItemLocker(10 * time.Second) },
		"transaction only": func() ItemLocker { return noopLocker{} },
	}
	for name, newLocker := range lockers {
		t.Run(name, func(t *testing.T) {
			const capacity = 5
			h := newHarness(t, "booking_capacity", capacity)
			svc := h.service(t, func(p *ServiceParams) { p.Locker = newLocker() })
			base := day(t, "2024-06-12")

			var wg sync.WaitGroup
			for i := 0; i < 24; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					from := base.AddDate(0, 0, i%4)
					_, _ = svc.CreateBooking(context.Background(), Input{
						ItemID:   h.item.ID,
						Actor:    customer(),
						From:     from,
						To:       from.AddDate(0, 0, i%3),
						Quantity: 1 + i%3,
					})
				}(i)
			}
			wg.Wait()

			var rows []models.Order
			require.NoError(t, h.conn.Where("item_id = ? AND status <> ?", h.item.ID, enums.OrderStatusCancelled).Find(&rows).Error)
			require.NotEmpty(t, rows)
			for d := base; !d.After(base.AddDate(0, 0, 6)); d = d.AddDate(0, 0, 1) {
				total := 0
				for _, o := range rows {
					if (availability.DateRange{From: o.FromDate, To: o.ToDate}).Contains(d) {
						total += o.Quantity
					}
				}
				assert.LessOrEqual(t, total, capacity, "day %s", d.Format(availability.DateLayout))
			}
		})
	}
}

func TestTotalAmount(t *testing.T) {
	rent := decimal.RequireFromString("19.99")
	cases := []struct {
		from, to string
		qty      int
		want     string
	}{
		{"2024-06-12", "2024-06-12", 1, "19.99"},
		{"2024-06-12", "2024-06-13", 1, "19.99"},
		{"2024-06-12", "2024-06-15", 2, "119.94"},
	}
	for _, tc := range cases {
		rng, err := availability.ParseDateRange(tc.from, tc.to)
		require.NoError(t, err)
		got := TotalAmount(rent, tc.qty, rng)
		assert.True(t, got.Equal(decimal.RequireFromString(tc.want)), "%s..%s x%d = %s", tc.from, tc.to, tc.qty, got)
	}
}

func TestNewServiceRequiresDependencies(t *testing.T) {
	_, err := NewService(ServiceParams{})
	assert.Error(t, err)
}

type failingOutbox struct{}

func (failingOutbox) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return errors.New("outbox unavailable")
}

type noopLocker struct{}

func (noopLocker) Acquire(context.Context, uuid.UUID) (ReleaseFunc, error) {
	return func(context.Context) error { return nil }, nil
}
