package booking

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/internal/availability"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/catalog"
	"github.com/ssr0016/next-rental-eq-marketplace/internal/orders"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/auth"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/logger"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/metrics"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/outbox"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/outbox/payloads"
)

const releaseTimeout = 2 * time.Second

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service places bookings.
type Service interface {
	CreateBooking(ctx context.Context, input Input) (*models.Order, error)
}

// Input is a booking request for Quantity units of an item over the
// inclusive calendar range [From, To].
type Input struct {
	ItemID   uuid.UUID
	Actor    auth.Actor
	From     time.Time
	To       time.Time
	Quantity int
}

// ServiceParams wires the booking orchestrator.
type ServiceParams struct {
	Tx       txRunner
	Locker   ItemLocker
	Items    *catalog.Repository
	Orders   orders.Repository
	Calc     *availability.Calculator
	Outbox   outboxPublisher
	Metrics  *metrics.BookingMetrics
	Logger   *logger.Logger
	Now      func() time.Time
	Location *time.Location
	MaxDays  int
}

type service struct {
	tx      txRunner
	locker  ItemLocker
	items   *catalog.Repository
	orders  orders.Repository
	calc    *availability.Calculator
	outbox  outboxPublisher
	metrics *metrics.BookingMetrics
	logg    *logger.Logger
	now     func() time.Time
	loc     *time.Location
	maxDays int
}

func NewService(params ServiceParams) (Service, error) {
	switch {
	case params.Tx == nil:
		return nil, fmt.Errorf("transaction runner required")
	case params.Locker == nil:
		return nil, fmt.Errorf("item locker required")
	case params.Items == nil:
		return nil, fmt.Errorf("catalog repository required")
	case params.Orders == nil:
		return nil, fmt.Errorf("orders repository required")
	case params.Calc == nil:
		return nil, fmt.Errorf("availability calculator required")
	case params.Outbox == nil:
		return nil, fmt.Errorf("outbox publisher required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	loc := params.Location
	if loc == nil {
		loc = time.UTC
	}
	return &service{
		tx:      params.Tx,
		locker:  params.Locker,
		items:   params.Items,
		orders:  params.Orders,
		calc:    params.Calc,
		outbox:  params.Outbox,
		metrics: params.Metrics,
		logg:    params.Logger,
		now:     now,
		loc:     loc,
		maxDays: params.MaxDays,
	}, nil
}

// CreateBooking validates the request, takes the per-item lock and then,
// inside one transaction, locks the item row, checks availability, inserts
// the order, re-checks capacity and queues the order_booked event. Any
// failure leaves no new rows behind.
func (s *service) CreateBooking(ctx context.Context, input Input) (*models.Order, error) {
	started := time.Now()
	order, err := s.createBooking(ctx, input)
	s.metrics.ObserveDuration(time.Since(started))
	s.metrics.IncAttempt(outcomeFor(err))

	if s.logg != nil {
		logCtx := s.logg.WithItemID(ctx, input.ItemID.String())
		logCtx = s.logg.WithUserID(logCtx, input.Actor.UserID.String())
		if err != nil {
			if pkgerrors.MetadataFor(codeOf(err)).HTTPStatus >= 500 {
				s.logg.Error(logCtx, "booking failed", err)
			} else {
				s.logg.Warn(s.logg.WithField(logCtx, "reason", err.Error()), "booking rejected")
			}
		} else {
			s.logg.Info(s.logg.WithOrderID(logCtx, order.ID.String()), "booking created")
		}
	}
	return order, err
}

func (s *service) createBooking(ctx context.Context, input Input) (*models.Order, error) {
	rng, err := s.validate(input)
	if err != nil {
		return nil, err
	}

	waitStarted := time.Now()
	release, err := s.locker.Acquire(ctx, input.ItemID)
	s.metrics.ObserveLockWait(time.Since(waitStarted))
	if err != nil {
		return nil, err
	}
	defer func() {
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if relErr := release(releaseCtx); relErr != nil && s.logg != nil {
			s.logg.Warn(s.logg.WithField(ctx, "error", relErr.Error()), "item lock release failed")
		}
	}()

	var created *models.Order
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		item, err := s.items.WithTx(tx).FindItemForUpdate(ctx, input.ItemID)
		if err != nil {
			if db.IsNotFound(err) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "item not found")
			}
			return err
		}
		if !item.Bookable() {
			return pkgerrors.New(pkgerrors.CodeNotFound, "item is not available for booking")
		}

		calc := s.calc.WithTx(tx)
		query := availability.Query{
			ItemID:    item.ID,
			Range:     rng,
			Requested: input.Quantity,
			Total:     item.TotalQuantity,
		}
		res, err := calc.Check(ctx, query)
		if err != nil {
			return err
		}
		if !res.Available {
			return insufficient(res, input.Quantity)
		}

		order := &models.Order{
			ItemID:        item.ID,
			UserID:        input.Actor.UserID,
			FromDate:      rng.From,
			ToDate:        rng.To,
			Quantity:      input.Quantity,
			Status:        enums.OrderStatusBooked,
			PaymentStatus: enums.OrderPaymentUnpaid,
			TotalAmount:   TotalAmount(item.RentPerDay, input.Quantity, rng),
		}
		if err := s.orders.WithTx(tx).Create(ctx, order); err != nil {
			return err
		}

		after, err := calc.Check(ctx, query)
		if err != nil {
			return err
		}
		if after.Booked > item.TotalQuantity {
			return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "capacity exceeded by a concurrent booking")
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderBooked,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: input.Actor.Role.String()},
			Data: payloads.OrderBookedEvent{
				OrderID:     order.ID,
				ItemID:      order.ItemID,
				UserID:      order.UserID,
				FromDate:    rng.From.Format(availability.DateLayout),
				ToDate:      rng.To.Format(availability.DateLayout),
				Quantity:    order.Quantity,
				TotalAmount: order.TotalAmount,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}
		created = order
		return nil
	})
	if err != nil {
		return nil, classify(err)
	}
	return created, nil
}

func (s *service) validate(input Input) (availability.DateRange, error) {
	if !input.Actor.Valid() || input.Actor.UserID == uuid.Nil {
		return availability.DateRange{}, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if input.ItemID == uuid.Nil {
		return availability.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	if input.Quantity < 1 {
		return availability.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "quantity must be at least 1")
	}
	rng, err := availability.NewDateRange(input.From, input.To)
	if err != nil {
		return availability.DateRange{}, err
	}
	today := availability.Today(s.now(), s.loc)
	if !rng.From.After(today) {
		return availability.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, "from date must be after today").
			WithDetails(map[string]string{"from": rng.From.Format(availability.DateLayout), "today": today.Format(availability.DateLayout)})
	}
	if s.maxDays > 0 && rng.Span() > s.maxDays {
		return availability.DateRange{}, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("bookings are limited to %d days", s.maxDays))
	}
	return rng, nil
}

// TotalAmount prices a booking as quantity * rent per day * billable days,
// rounded to cents.
func TotalAmount(rentPerDay decimal.Decimal, quantity int, rng availability.DateRange) decimal.Decimal {
	return rentPerDay.
		Mul(decimal.NewFromInt(int64(quantity))).
		Mul(decimal.NewFromInt(int64(rng.BillableDays()))).
		Round(2)
}

func insufficient(res availability.Result, requested int) error {
	return pkgerrors.New(pkgerrors.CodeInsufficientAvailability,
		fmt.Sprintf("only %d units available, %d requested", res.Remaining, requested)).
		WithDetails(map[string]any{
			"remaining_quantity": res.Remaining,
			"requested_quantity": requested,
		})
}

// classify maps untyped storage errors onto the error taxonomy. Lock
// timeouts, serialization failures and deadlocks all mean a competing
// booking won.
func classify(err error) error {
	if db.IsConcurrencyFailure(err) && !pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict) {
		return pkgerrors.Wrap(pkgerrors.CodeConcurrencyConflict, err, "booking lost a race with a concurrent booking")
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist booking")
}

func codeOf(err error) pkgerrors.Code {
	if typed := pkgerrors.As(err); typed != nil {
		return typed.Code()
	}
	return pkgerrors.CodeInternal
}

func outcomeFor(err error) string {
	if err == nil {
		return metrics.OutcomeBooked
	}
	switch codeOf(err) {
	case pkgerrors.CodeInsufficientAvailability:
		return metrics.OutcomeInsufficient
	case pkgerrors.CodeConcurrencyConflict:
		return metrics.OutcomeConflict
	case pkgerrors.CodeValidation, pkgerrors.CodeUnauthorized, pkgerrors.CodeNotFound:
		return metrics.OutcomeRejected
	default:
		return metrics.OutcomeError
	}
}
