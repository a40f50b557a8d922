package payments

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stripe/stripe-go/v84"
	"gorm.io/gorm"

	"github.com/ssr0016/next-rental-eq-marketplace/internal/orders"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/auth"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/logger"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/outbox"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/outbox/payloads"
)

const (
	providerStripe    = "stripe"
	intentDescription = "Rental Equipment Payment"
	metadataOrderID   = "order_id"
	metadataUserID    = "user_id"

	orphanedReason = "order cancelled before the payment settled"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service raises payment intents for booked orders and applies provider
// outcomes back onto them.
type Service interface {
	CreateIntent(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*IntentDTO, error)
	HandleEvent(ctx context.Context, event *stripe.Event) error
}

// IntentDTO is returned to the client to confirm the payment.
type IntentDTO struct {
	PaymentID    uuid.UUID           `json:"payment_id"`
	OrderID      uuid.UUID           `json:"order_id"`
	ClientSecret string              `json:"client_secret"`
	Amount       decimal.Decimal     `json:"amount"`
	Currency     string              `json:"currency"`
	Status       enums.PaymentStatus `json:"status"`
}

type ServiceParams struct {
	Payments *Repository
	Orders   orders.Repository
	Tx       txRunner
	Outbox   outboxPublisher
	Intents  IntentClient
	Currency string
	Logger   *logger.Logger
	Now      func() time.Time
}

type service struct {
	payments *Repository
	orders   orders.Repository
	tx       txRunner
	outbox   outboxPublisher
	intents  IntentClient
	currency string
	logg     *logger.Logger
	now      func() time.Time
}

func NewService(params ServiceParams) (Service, error) {
	if params.Payments == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Orders == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "orders repo required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction runner required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "outbox publisher required")
	}
	if params.Intents == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe intent client required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = string(stripe.CurrencyUSD)
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		payments: params.Payments,
		orders:   params.Orders,
		tx:       params.Tx,
		outbox:   params.Outbox,
		intents:  params.Intents,
		currency: currency,
		logg:     params.Logger,
		now:      now,
	}, nil
}

// ToMinorUnits converts a decimal amount into the integer cents Stripe expects.
func ToMinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(decimal.NewFromInt(100)).Round(0).IntPart()
}

func (s *service) CreateIntent(ctx context.Context, actor auth.Actor, orderID uuid.UUID) (*IntentDTO, error) {
	if !actor.Valid() || actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
	}
	if !actor.Owns(order.UserID) {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "only the customer who booked can pay for the order")
	}
	if order.Status != enums.OrderStatusBooked || order.PaymentStatus == enums.OrderPaymentPaid {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "order is not awaiting payment").
			WithDetails(map[string]any{"status": order.Status, "payment_status": order.PaymentStatus})
	}

	pending, err := s.payments.FindPendingForOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load pending payment")
	}
	if pending != nil {
		return newIntentDTO(pending), nil
	}

	cents := ToMinorUnits(order.TotalAmount)
	if cents <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order has nothing to pay")
	}
	attempts, err := s.payments.CountForOrder(ctx, order.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "count payments")
	}

	params := &stripe.PaymentIntentParams{
		Amount:      stripe.Int64(cents),
		Currency:    stripe.String(s.currency),
		Description: stripe.String(intentDescription),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
	}
	params.AddMetadata(metadataOrderID, order.ID.String())
	params.AddMetadata(metadataUserID, order.UserID.String())
	params.SetIdempotencyKey(fmt.Sprintf("order-intent:%s:%d", order.ID, attempts))

	intent, err := s.intents.Create(ctx, params)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create stripe payment intent")
	}

	payment := &models.Payment{
		OrderID:      order.ID,
		UserID:       order.UserID,
		Provider:     providerStripe,
		ProviderRef:  intent.ID,
		ClientSecret: intent.ClientSecret,
		Amount:       order.TotalAmount,
		Currency:     s.currency,
		Status:       enums.PaymentStatusPending,
	}
	if err := s.payments.Create(ctx, payment); err != nil {
		if db.IsUniqueViolation(err, "") {
			// a concurrent request stored the same intent first
			existing, findErr := s.payments.FindByProviderRef(ctx, intent.ID)
			if findErr == nil {
				return newIntentDTO(existing), nil
			}
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store payment")
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Info(s.logg.WithField(logCtx, "provider_ref", intent.ID), "payment intent created")
	}
	return newIntentDTO(payment), nil
}

func (s *service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}

	switch event.Type {
	case stripe.EventTypePaymentIntentSucceeded,
		stripe.EventTypePaymentIntentPaymentFailed,
		stripe.EventTypePaymentIntentCanceled:
	default:
		return nil
	}

	var intent stripe.PaymentIntent
	if err := json.Unmarshal(event.Data.Raw, &intent); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payment intent event")
	}
	if intent.ID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "payment intent id missing")
	}

	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		paymentsRepo := s.payments.WithTx(tx)
		payment, err := paymentsRepo.FindByProviderRef(ctx, intent.ID)
		if err != nil {
			if db.IsNotFound(err) {
				// intents raised outside this service are not ours to track
				return nil
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if payment.Status == enums.PaymentStatusSucceeded {
			return nil
		}

		ordersRepo := s.orders.WithTx(tx)
		switch event.Type {
		case stripe.EventTypePaymentIntentSucceeded:
			paidAt := s.now().UTC()
			if err := paymentsRepo.MarkStatus(ctx, payment.ID, enums.PaymentStatusSucceeded, &paidAt, nil); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment succeeded")
			}
			paid, err := ordersRepo.MarkPaidUnlessCancelled(ctx, payment.OrderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order paid")
			}
			if !paid {
				// money was captured for a cancelled order; keep the order as is
				if s.logg != nil {
					logCtx := s.logg.WithOrderID(ctx, payment.OrderID.String())
					s.logg.Warn(s.logg.WithField(logCtx, "provider_ref", payment.ProviderRef), "payment succeeded for cancelled order")
				}
				return s.emitPayment(ctx, tx, enums.EventOrderPaymentOrphaned, payment, enums.OrderPaymentPaid, orphanedReason)
			}
			return s.emitPayment(ctx, tx, enums.EventOrderPaid, payment, enums.OrderPaymentPaid, "")

		case stripe.EventTypePaymentIntentPaymentFailed:
			reason := "payment failed"
			if intent.LastPaymentError != nil && intent.LastPaymentError.Msg != "" {
				reason = intent.LastPaymentError.Msg
			}
			if err := paymentsRepo.MarkStatus(ctx, payment.ID, enums.PaymentStatusFailed, nil, &reason); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment failed")
			}
			order, err := ordersRepo.FindByID(ctx, payment.OrderID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
			}
			if order.PaymentStatus == enums.OrderPaymentPaid {
				return nil
			}
			if err := ordersRepo.UpdatePaymentStatus(ctx, payment.OrderID, enums.OrderPaymentFailed); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark order payment failed")
			}
			return s.emitPayment(ctx, tx, enums.EventOrderPaymentFailed, payment, enums.OrderPaymentFailed, reason)

		default:
			if err := paymentsRepo.MarkStatus(ctx, payment.ID, enums.PaymentStatusCanceled, nil, nil); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark payment canceled")
			}
			return nil
		}
	})
}

func (s *service) emitPayment(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, payment *models.Payment, status enums.OrderPaymentStatus, reason string) error {
	event := outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateOrder,
		AggregateID:   payment.OrderID,
		Actor:         &outbox.ActorRef{UserID: payment.UserID, Role: enums.RoleUser.String()},
		Data: payloads.OrderPaymentEvent{
			OrderID:     payment.OrderID,
			PaymentID:   payment.ID,
			ProviderRef: payment.ProviderRef,
			Amount:      payment.Amount,
			Status:      status,
			Reason:      reason,
		},
	}
	if err := s.outbox.Emit(ctx, tx, event); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment event")
	}
	return nil
}

func newIntentDTO(payment *models.Payment) *IntentDTO {
	return &IntentDTO{
		PaymentID:    payment.ID,
		OrderID:      payment.OrderID,
		ClientSecret: payment.ClientSecret,
		Amount:       payment.Amount,
		Currency:     payment.Currency,
		Status:       payment.Status,
	}
}
