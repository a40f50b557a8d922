package cron

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"github.com/ssr0016/next-rental-eq-marketplace/internal/orders"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/auth"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/db/models"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/enums"
	pkgerrors "github.com/ssr0016/next-rental-eq-marketplace/pkg/errors"
	"github.com/ssr0016/next-rental-eq-marketplace/pkg/logger"
)

const (
	defaultUnpaidTTL   = 24 * time.Hour
	defaultExpiryBatch = 200
)

type unpaidOrderReader interface {
	FindUnpaidBookedBefore(ctx context.Context, cutoff time.Time, limit int) ([]models.Order, error)
}

type orderTransitioner interface {
	TransitionStatus(ctx context.Context, input orders.TransitionInput) (*models.Order, error)
}

// UnpaidBookingJobParams configure the unpaid booking sweep.
type UnpaidBookingJobParams struct {
	Logger    *logger.Logger
	Orders    unpaidOrderReader
	Status    orderTransitioner
	TTL       time.Duration
	BatchSize int
	Now       func() time.Time
}

// NewUnpaidBookingJob builds the job that cancels bookings left unpaid past
// the TTL. Cancellation runs through the order state machine, so bookings
// whose rental already started are left alone.
func NewUnpaidBookingJob(params UnpaidBookingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("orders reader required")
	}
	if params.Status == nil {
		return nil, fmt.Errorf("order status service required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = defaultUnpaidTTL
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultExpiryBatch
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &unpaidBookingJob{
		logg:   params.Logger,
		orders: params.Orders,
		status: params.Status,
		ttl:    ttl,
		batch:  batch,
		now:    now,
	}, nil
}

type unpaidBookingJob struct {
	logg   *logger.Logger
	orders unpaidOrderReader
	status orderTransitioner
	ttl    time.Duration
	batch  int
	now    func() time.Time
}

func (j *unpaidBookingJob) Name() string { return "unpaid-booking-expiry" }

func (j *unpaidBookingJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.ttl)
	rows, err := j.orders.FindUnpaidBookedBefore(ctx, cutoff, j.batch)
	if err != nil {
		return fmt.Errorf("query unpaid bookings: %w", err)
	}

	var errs error
	cancelled, skipped := 0, 0
	for _, order := range rows {
		_, err := j.status.TransitionStatus(ctx, orders.TransitionInput{
			OrderID:       order.ID,
			Actor:         auth.SystemActor,
			Target:        enums.OrderStatusCancelled.String(),
			RequireUnpaid: true,
		})
		switch {
		case err == nil:
			cancelled++
		case skippable(err):
			skipped++
		default:
			errs = multierr.Append(errs, fmt.Errorf("cancel order %s: %w", order.ID, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":    cutoff,
		"candidate": len(rows),
		"cancelled": cancelled,
		"skipped":   skipped,
		"failed":    len(multierr.Errors(errs)),
	})
	j.logg.Info(logCtx, "unpaid booking sweep complete")
	return errs
}

// skippable covers orders that moved on since the query, were paid in the
// meantime, or already started.
func skippable(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeInvalidTransition) ||
		pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) ||
		pkgerrors.IsCode(err, pkgerrors.CodeConcurrencyConflict) ||
		pkgerrors.IsCode(err, pkgerrors.CodeNotFound)
}
