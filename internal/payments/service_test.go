package payments

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/internal/orders"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/auth"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/dbtest"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/outbox"
)

type fakeIntents struct {
	mu     sync.Mutex
	calls  []*stripe.PaymentIntentParams
	err    error
	nextID int
}

func (f *fakeIntents) Create(_ context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, params)
	if f.err != nil {
		return nil, f.err
	}
	f.nextID++
	id := "pi_test_" + string(rune('a'+f.nextID))
	return &stripe.PaymentIntent{ID: id, ClientSecret: id + "_secret"}, nil
}

type paymentFixture struct {
	conn    *gorm.DB
	svc     Service
	intents *fakeIntents
	owner   auth.Actor
	order   *models.Order
}

func newPaymentFixture(t *testing.T, name string) *paymentFixture {
	t.Helper()
	conn := dbtest.Open(t, name)
	category := &models.Category{Name: "av-" + uuid.NewString()}
	require.NoError(t, conn.Create(category).Error)
	item := &models.Item{CategoryID: category.ID, Name: "Speaker", RentPerDay: decimal.RequireFromString("40.25"), TotalQuantity: 3}
	require.NoError(t, conn.Create(item).Error)

	owner := auth.Actor{UserID: uuid.New(), Role: enums.RoleUser}
	order := &models.Order{
		ItemID:      item.ID,
		UserID:      owner.UserID,
		FromDate:    time.Date(2024, 6, 20, 0, 0, 0, 0, time.UTC),
		ToDate:      time.Date(2024, 6, 22, 0, 0, 0, 0, time.UTC),
		Quantity:    1,
		TotalAmount: decimal.RequireFromString("80.50"),
	}
	require.NoError(t, conn.Create(order).Error)

	intents := &fakeIntents{}
	svc, err := NewService(ServiceParams{
		Payments: NewRepository(conn),
		Orders:   orders.NewRepository(conn),
		Tx:       db.Wrap(conn),
		Outbox:   outbox.NewService(outbox.NewRepository(conn), nil),
		Intents:  intents,
		Currency: "USD",
	})
	require.NoError(t, err)
	return &paymentFixture{conn: conn, svc: svc, intents: intents, owner: owner, order: order}
}

func (f *paymentFixture) reloadOrder(t *testing.T) *models.Order {
	t.Helper()
	var order models.Order
	require.NoError(t, f.conn.First(&order, "id = ?", f.order.ID).Error)
	return &order
}

func intentEvent(t *testing.T, eventType stripe.EventType, intent stripe.PaymentIntent) *stripe.Event {
	t.Helper()
	raw, err := json.Marshal(intent)
	require.NoError(t, err)
	return &stripe.Event{ID: "evt_" + uuid.NewString(), Type: eventType, Data: &stripe.EventData{Raw: raw}}
}

func TestCreateIntentChargesOrderTotalInCents(t *testing.T) {
	f := newPaymentFixture(t, "payments_create")

	dto, err := f.svc.CreateIntent(context.Background(), f.owner, f.order.ID)
	require.NoError(t, err)
	assert.Equal(t, enums.PaymentStatusPending, dto.Status)
	assert.Equal(t, "usd", dto.Currency)
	assert.NotEmpty(t, dto.ClientSecret)

	require.Len(t, f.intents.calls, 1)
	params := f.intents.calls[0]
	assert.EqualValues(t, 8050, *params.Amount)
	assert.Equal(t, "usd", *params.Currency)
	assert.Equal(t, "Rental Equipment Payment", *params.Description)
	assert.Equal(t, f.order.ID.String(), params.Metadata["order_id"])

	var stored models.Payment
	require.NoError(t, f.conn.First(&stored, "id = ?", dto.PaymentID).Error)
	assert.True(t, stored.Amount.Equal(f.order.TotalAmount))
	assert.Equal(t, enums.OrderPaymentUnpaid, f.reloadOrder(t).PaymentStatus)
}

func TestCreateIntentReusesPendingPayment(t *testing.T) {
	f := newPaymentFixture(t, "payments_reuse")
	ctx := context.Background()

	first, err := f.svc.CreateIntent(ctx, f.owner, f.order.ID)
	require.NoError(t, err)
	second, err := f.svc.CreateIntent(ctx, f.owner, f.order.ID)
	require.NoError(t, err)

	assert.Equal(t, first.PaymentID, second.PaymentID)
	assert.Equal(t, first.ClientSecret, second.ClientSecret)
	assert.Len(t, f.intents.calls, 1)
}

func TestCreateIntentGuards(t *testing.T) {
	f := newPaymentFixture(t, "payments_guards")
	ctx := context.Background()

	_, err := f.svc.CreateIntent(ctx, auth.Actor{UserID: uuid.New(), Role: enums.RoleUser}, f.order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeForbidden))

	_, err = f.svc.CreateIntent(ctx, f.owner, uuid.New())
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeNotFound))

	_, err = f.svc.CreateIntent(ctx, auth.Actor{}, f.order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeUnauthorized))

	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", f.order.ID).Update("status", enums.OrderStatusCancelled).Error)
	_, err = f.svc.CreateIntent(ctx, f.owner, f.order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict))
	assert.Empty(t, f.intents.calls)
}

func TestCreateIntentProviderFailure(t *testing.T) {
	f := newPaymentFixture(t, "payments_provider_down")
	f.intents.err = errors.New("stripe unreachable")

	_, err := f.svc.CreateIntent(context.Background(), f.owner, f.order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeDependency))

	var count int64
	require.NoError(t, f.conn.Model(&models.Payment{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestHandleSucceededMarksOrderPaid(t *testing.T) {
	f := newPaymentFixture(t, "payments_succeeded")
	ctx := context.Background()
	dto, err := f.svc.CreateIntent(ctx, f.owner, f.order.ID)
	require.NoError(t, err)

	var payment models.Payment
	require.NoError(t, f.conn.First(&payment, "id = ?", dto.PaymentID).Error)
	event := intentEvent(t, stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: payment.ProviderRef})

	require.NoError(t, f.svc.HandleEvent(ctx, event))
	require.NoError(t, f.svc.HandleEvent(ctx, event), "replays are harmless")

	assert.Equal(t, enums.OrderPaymentPaid, f.reloadOrder(t).PaymentStatus)
	require.NoError(t, f.conn.First(&payment, "id = ?", dto.PaymentID).Error)
	assert.Equal(t, enums.PaymentStatusSucceeded, payment.Status)
	assert.NotNil(t, payment.PaidAt)

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventOrderPaid).Count(&events).Error)
	assert.EqualValues(t, 1, events)

	_, err = f.svc.CreateIntent(ctx, f.owner, f.order.ID)
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeStateConflict), "paid orders cannot be charged again")
}

func TestHandleSucceededForCancelledOrderKeepsOrderCancelled(t *testing.T) {
	f := newPaymentFixture(t, "payments_orphaned")
	ctx := context.Background()
	dto, err := f.svc.CreateIntent(ctx, f.owner, f.order.ID)
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.Order{}).Where("id = ?", f.order.ID).Update("status", enums.OrderStatusCancelled).Error)

	var payment models.Payment
	require.NoError(t, f.conn.First(&payment, "id = ?", dto.PaymentID).Error)
	require.NoError(t, f.svc.HandleEvent(ctx, intentEvent(t, stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: payment.ProviderRef})))

	order := f.reloadOrder(t)
	assert.Equal(t, enums.OrderStatusCancelled, order.Status)
	assert.Equal(t, enums.OrderPaymentUnpaid, order.PaymentStatus)

	require.NoError(t, f.conn.First(&payment, "id = ?", dto.PaymentID).Error)
	assert.Equal(t, enums.PaymentStatusSucceeded, payment.Status, "captured money is still recorded")

	count := func(eventType enums.OutboxEventType) int64 {
		var n int64
		require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", eventType).Count(&n).Error)
		return n
	}
	assert.EqualValues(t, 1, count(enums.EventOrderPaymentOrphaned))
	assert.Zero(t, count(enums.EventOrderPaid))
}

func TestHandleFailedRecordsReasonAndAllowsRetry(t *testing.T) {
	f := newPaymentFixture(t, "payments_failed")
	ctx := context.Background()
	dto, err := f.svc.CreateIntent(ctx, f.owner, f.order.ID)
	require.NoError(t, err)

	var payment models.Payment
	require.NoError(t, f.conn.First(&payment, "id = ?", dto.PaymentID).Error)
	event := intentEvent(t, stripe.EventTypePaymentIntentPaymentFailed, stripe.PaymentIntent{
		ID:               payment.ProviderRef,
		LastPaymentError: &stripe.Error{Msg: "Your card was declined."},
	})
	require.NoError(t, f.svc.HandleEvent(ctx, event))

	assert.Equal(t, enums.OrderPaymentFailed, f.reloadOrder(t).PaymentStatus)
	require.NoError(t, f.conn.First(&payment, "id = ?", dto.PaymentID).Error)
	assert.Equal(t, enums.PaymentStatusFailed, payment.Status)
	require.NotNil(t, payment.FailureReason)
	assert.Equal(t, "Your card was declined.", *payment.FailureReason)

	retry, err := f.svc.CreateIntent(ctx, f.owner, f.order.ID)
	require.NoError(t, err)
	assert.NotEqual(t, dto.PaymentID, retry.PaymentID)
	require.Len(t, f.intents.calls, 2)
	assert.NotEqual(t, f.intents.calls[0].IdempotencyKey, f.intents.calls[1].IdempotencyKey)
}

func TestHandleEventIgnoresUnknownIntentsAndTypes(t *testing.T) {
	f := newPaymentFixture(t, "payments_ignore")
	ctx := context.Background()

	require.NoError(t, f.svc.HandleEvent(ctx, intentEvent(t, stripe.EventTypePaymentIntentSucceeded, stripe.PaymentIntent{ID: "pi_elsewhere"})))
	require.NoError(t, f.svc.HandleEvent(ctx, &stripe.Event{Type: stripe.EventTypeCustomerCreated, Data: &stripe.EventData{Raw: []byte(`{}`)}}))
	assert.Error(t, f.svc.HandleEvent(ctx, nil))
	assert.Equal(t, enums.OrderPaymentUnpaid, f.reloadOrder(t).PaymentStatus)
}

func TestToMinorUnits(t *testing.T) {
	assert.EqualValues(t, 1999, ToMinorUnits(decimal.RequireFromString("19.99")))
	assert.EqualValues(t, 100, ToMinorUnits(decimal.RequireFromString("1")))
	assert.EqualValues(t, 13, ToMinorUnits(decimal.RequireFromString("0.125")))
}
