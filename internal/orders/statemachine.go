package orders

import (
	"fmt"
	"time"

	"github.com/ssr0016/next-rental-eq-marketplace/internal/availability"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/auth"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
)

// edges lists every status reachable from a non-terminal status.
var edges = map[enums.OrderStatus][]enums.OrderStatus{
	enums.OrderStatusBooked: {
		enums.OrderStatusWithCustomer,
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
	},
	enums.OrderStatusWithCustomer: {
		enums.OrderStatusCompleted,
		enums.OrderStatusCancelled,
	},
}

// ParseTarget validates a requested status. Anything outside the closed
// set fails with CodeUnknownStatus.
func ParseTarget(raw string) (enums.OrderStatus, error) {
	status, err := enums.ParseOrderStatus(raw)
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeUnknownStatus, err, fmt.Sprintf("unknown order status %q", raw)).
			WithDetails(map[string]any{"status": raw, "allowed": enums.OrderStatuses()})
	}
	return status, nil
}

// CanTransition reports whether the edge exists regardless of actor.
func CanTransition(from, to enums.OrderStatus) bool {
	for _, candidate := range edges[from] {
		if candidate == to {
			return true
		}
	}
	return false
}

// EvaluateTransition decides whether actor may move order to target on the
// given calendar day. It never mutates the order.
func EvaluateTransition(order *models.Order, actor auth.Actor, target enums.OrderStatus, today time.Time) error {
	if order == nil {
		return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
	}
	if !target.IsValid() {
		return pkgerrors.New(pkgerrors.CodeUnknownStatus, fmt.Sprintf("unknown order status %q", target))
	}
	if !actor.Valid() {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor identity missing")
	}
	if !actor.IsAdmin() && !actor.Owns(order.UserID) {
		return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to user")
	}

	switch order.Status {
	case enums.OrderStatusCompleted, enums.OrderStatusCancelled:
		return invalidTransition(order.Status, target, "order is in a terminal status")
	case enums.OrderStatusBooked, enums.OrderStatusWithCustomer:
	default:
		return pkgerrors.New(pkgerrors.CodeInternal, fmt.Sprintf("order has unrecognized stored status %q", order.Status))
	}

	if !CanTransition(order.Status, target) {
		return invalidTransition(order.Status, target, "transition not allowed")
	}

	switch target {
	case enums.OrderStatusWithCustomer, enums.OrderStatusCompleted:
		if !actor.IsAdmin() {
			return pkgerrors.New(pkgerrors.CodeForbidden, fmt.Sprintf("only admins may mark orders %s", target))
		}
	case enums.OrderStatusCancelled:
		if order.Status == enums.OrderStatusWithCustomer {
			if !actor.IsAdmin() {
				return pkgerrors.New(pkgerrors.CodeForbidden, "only admins may cancel a rental that is with the customer")
			}
			return nil
		}
		if !availability.Day(order.FromDate).After(availability.Day(today)) {
			return invalidTransition(order.Status, target, "bookings can only be cancelled before the rental start date")
		}
	default:
		return invalidTransition(order.Status, target, "transition not allowed")
	}
	return nil
}

func invalidTransition(from, to enums.OrderStatus, reason string) error {
	return pkgerrors.New(pkgerrors.CodeInvalidTransition, reason).
		WithDetails(map[string]any{"from": from, "to": to})
}

// transitionTimestamps returns the audit columns stamped by a transition.
func transitionTimestamps(target enums.OrderStatus, at time.Time) map[string]any {
	switch target {
	case enums.OrderStatusWithCustomer:
		return map[string]any{"handed_over_at": at}
	case enums.OrderStatusCompleted:
		return map[string]any{"completed_at": at}
	case enums.OrderStatusCancelled:
		return map[string]any{"cancelled_at": at}
	}
	return map[string]any{}
}
