package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/internal/availability"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/auth"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/logger"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/outbox"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/outbox/payloads"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type transitionRecorder interface {
	IncTransition(from, to, outcome string)
}

// Service defines order operations beyond booking creation.
type Service interface {
	TransitionStatus(ctx context.Context, input TransitionInput) (*models.Order, error)
	GetOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error)
	ListForUser(ctx context.Context, actor auth.Actor, params pagination.Params) (*OrderList, error)
	ListAll(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (*OrderList, error)
	ListForItem(ctx context.Context, input ListForItemInput) ([]models.Order, error)
}

// TransitionInput carries a status change request. Target is the raw value
// supplied by the caller so unknown statuses surface as CodeUnknownStatus.
// RequireUnpaid refuses the change once the order is paid.
type TransitionInput struct {
	OrderID       uuid.UUID
	Actor         auth.Actor
	Target        string
	RequireUnpaid bool
}

// ListForItemInput asks for the orders overlapping a range on one item.
type ListForItemInput struct {
	Actor            auth.Actor
	ItemID           uuid.UUID
	Range            availability.DateRange
	IncludeCancelled bool
}

// ServiceParams wires the order service.
type ServiceParams struct {
	Repo     Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Logger   *logger.Logger
	Metrics  transitionRecorder
	Now      func() time.Time
	Location *time.Location
}

type service struct {
	repo    Repository
	tx      txRunner
	outbox  outboxPublisher
	logg    *logger.Logger
	metrics transitionRecorder
	now     func() time.Time
	loc     *time.Location
}

// NewService builds an order service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if params.Tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Outbox == nil {
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
		repo:    params.Repo,
		tx:      params.Tx,
		outbox:  params.Outbox,
		logg:    params.Logger,
		metrics: params.Metrics,
		now:     now,
		loc:     loc,
	}, nil
}

func (s *service) TransitionStatus(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	target, err := ParseTarget(input.Target)
	if err != nil {
		s.record("", input.Target, err)
		return nil, err
	}
	if !input.Actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}

	var updated *models.Order
	var from enums.OrderStatus
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		order, err := repo.FindByID(ctx, input.OrderID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		from = order.Status
		if input.RequireUnpaid && order.PaymentStatus == enums.OrderPaymentPaid {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is already paid")
		}

		now := s.now()
		if err := EvaluateTransition(order, input.Actor, target, availability.Today(now, s.loc)); err != nil {
			return err
		}

		stampedAt := now.UTC()
		stamps := transitionTimestamps(target, stampedAt)
		swapped, err := repo.CompareAndSetStatus(ctx, order.ID, StatusSwap{
			From:       order.Status,
			To:         target,
			Stamps:     stamps,
			UnpaidOnly: input.RequireUnpaid,
		})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !swapped {
			return pkgerrors.New(pkgerrors.CodeConcurrencyConflict, "order status changed concurrently")
		}

		order.Status = target
		applyTimestamps(order, target, stampedAt)

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderStatusChanged,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: input.Actor.Role.String()},
			Data: payloads.OrderStatusChangedEvent{
				OrderID:   order.ID,
				ItemID:    order.ItemID,
				UserID:    order.UserID,
				From:      from,
				To:        target,
				ChangedAt: stampedAt,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit order status event")
		}
		updated = order
		return nil
	})
	s.record(from.String(), target.String(), err)
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": updated.ID.String(),
			"from":     from,
			"to":       target,
		})
		s.logg.Info(logCtx, "order status changed")
	}
	return updated, nil
}

func (s *service) record(from, to string, err error) {
	if s.metrics == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		if typed := pkgerrors.As(err); typed != nil {
			outcome = string(typed.Code())
		} else {
			outcome = "error"
		}
	}
	s.metrics.IncTransition(from, to, outcome)
}

func applyTimestamps(order *models.Order, target enums.OrderStatus, at time.Time) {
	switch target {
	case enums.OrderStatusWithCustomer:
		order.HandedOverAt = &at
	case enums.OrderStatusCompleted:
		order.CompletedAt = &at
	case enums.OrderStatusCancelled:
		order.CancelledAt = &at
	}
}

func (s *service) GetOrder(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*models.Order, error) {
	if !actor.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	order, err := s.repo.FindByID(ctx, orderID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !actor.IsAdmin() && !actor.Owns(order.UserID) {
		// hide other users' orders
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	return order, nil
}

func (s *service) ListForUser(ctx context.Context, actor auth.Actor, params pagination.Params) (*OrderList, error) {
	if !actor.Valid() || actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	userID := actor.UserID
	list, err := s.repo.List(ctx, ListFilters{UserID: &userID}, params)
	if err != nil {
		return nil, wrapListError(err)
	}
	return list, nil
}

func (s *service) ListAll(ctx context.Context, actor auth.Actor, filters ListFilters, params pagination.Params) (*OrderList, error) {
	if !actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	list, err := s.repo.List(ctx, filters, params)
	if err != nil {
		return nil, wrapListError(err)
	}
	return list, nil
}

func (s *service) ListForItem(ctx context.Context, input ListForItemInput) ([]models.Order, error) {
	if !input.Actor.IsAdmin() {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "admin role required")
	}
	if input.ItemID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "item id required")
	}
	var statuses []enums.OrderStatus
	if !input.IncludeCancelled {
		for _, status := range enums.OrderStatuses() {
			if status.HoldsStock() {
				statuses = append(statuses, status)
			}
		}
	}
	rows, err := s.repo.ListForItem(ctx, input.ItemID, input.Range, statuses)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders for item")
	}
	return rows, nil
}

func wrapListError(err error) error {
	if errors.Is(err, pagination.ErrInvalidCursor) {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list orders")
}
